// Package domain defines the core data types and the storage/cache contracts
// shared by every layer of the arbitrage monitor.
package domain

import (
	"strings"
	"time"
)

// MarketType distinguishes spot venues from futures/derivatives venues for the
// same underlying pair.
type MarketType string

const (
	MarketSpot    MarketType = "spot"
	MarketFutures MarketType = "futures"
)

// MarketTypeFor routes a symbol to the venue that trades it. Futures-style
// symbols carry a settlement suffix ("BTC/USDT:USDT"); everything else is spot.
func MarketTypeFor(symbol string) MarketType {
	if strings.Contains(symbol, ":") {
		return MarketFutures
	}
	return MarketSpot
}

// Quote is one exchange's view of a trading pair at a single instant. Quotes
// are produced fresh per aggregation call and never mutated afterwards.
type Quote struct {
	Exchange   string
	Market     MarketType
	Bid        float64
	Ask        float64
	Last       float64
	BaseVolume float64
	ObservedAt time.Time
}

// Key returns the aggregation map key for this quote, e.g. "binance_spot".
func (q Quote) Key() string {
	return q.Exchange + "_" + string(q.Market)
}

// Consistent reports whether the quote's book sides agree. A bid above the ask
// cannot come from a real book and marks the quote as a data error.
func (q Quote) Consistent() bool {
	if q.Bid > 0 && q.Ask > 0 && q.Bid > q.Ask {
		return false
	}
	return true
}

// Tick is a cached last-seen price for one exchange/symbol.
type Tick struct {
	Bid        float64
	Ask        float64
	Last       float64
	ObservedAt time.Time
}
