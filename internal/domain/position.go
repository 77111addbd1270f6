package domain

import "time"

// Direction is the side of an open position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// PositionStatus tracks the position lifecycle. A position moves from open to
// closed exactly once; canceled marks positions whose entry never filled.
type PositionStatus string

const (
	PositionStatusOpen     PositionStatus = "open"
	PositionStatusClosed   PositionStatus = "closed"
	PositionStatusCanceled PositionStatus = "canceled"
)

// Position is a filled entry owned by a user. Lifecycle mutations go through
// the position service only; rows are archived, never deleted in place.
type Position struct {
	ID         string
	UserID     int64
	Symbol     string
	Exchange   string
	Direction  Direction
	Amount     float64
	EntryPrice float64
	EntryTime  time.Time
	Status     PositionStatus
	ExitPrice  *float64
	ExitTime   *time.Time
}

// EnrichedPosition is a stored open position marked to the current market.
type EnrichedPosition struct {
	Position
	CurrentPrice float64
	PnL          float64
	PnLPercent   float64
}

// MarkToMarket computes the unrealized P&L of the position at the given price.
func (p Position) MarkToMarket(current float64) EnrichedPosition {
	var pnl float64
	if p.Direction == DirectionShort {
		pnl = (p.EntryPrice - current) * p.Amount
	} else {
		pnl = (current - p.EntryPrice) * p.Amount
	}
	var pct float64
	if notional := p.EntryPrice * p.Amount; notional != 0 {
		pct = pnl / notional * 100
	}
	return EnrichedPosition{
		Position:     p,
		CurrentPrice: current,
		PnL:          pnl,
		PnLPercent:   pct,
	}
}
