package domain

import "time"

// Opportunity is a detected, not-yet-executed cross-exchange arbitrage
// candidate: buy at BuyExchange's ask, sell at SellExchange's bid. It is an
// immutable pipeline value; only accepted opportunities are persisted.
type Opportunity struct {
	ID     string
	Symbol string
	// BuyExchange and SellExchange are plain pool names ("binance", not
	// "binance_spot"); the market side is routed from Symbol.
	BuyExchange   string
	SellExchange  string
	BuyPrice      float64
	SellPrice     float64
	ProfitPercent float64 // spread over ask, commission already deducted
	Volume        float64 // min of the two sides' reported base volume
	ComputedAt    time.Time
}
