// Package exchange defines the normalized exchange adapter capability and the
// connection pool that owns adapter instances per (exchange, market type).
package exchange

import (
	"context"
	"time"

	"github.com/akornilov/crossarb/internal/domain"
)

// Ticker is a normalized top-of-book snapshot.
type Ticker struct {
	Bid        float64
	Ask        float64
	Last       float64
	BaseVolume float64
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price  float64
	Volume float64
}

// OrderBook holds a bounded number of levels per side, best prices first.
type OrderBook struct {
	Bids []BookLevel
	Asks []BookLevel
}

// Candle is one OHLCV bar.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Balance is the free/total holding of a single asset.
type Balance struct {
	Free  float64
	Total float64
}

// OrderSide is the taker direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType selects market or limit execution.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// OrderRequest describes an order to place. Price is ignored for market
// orders. Params carries venue-specific extras such as timeInForce.
type OrderRequest struct {
	Symbol string
	Type   OrderType
	Side   OrderSide
	Amount float64
	Price  float64
	Params map[string]string
}

// Order is a confirmed fill as reported by the exchange.
type Order struct {
	ID        string
	Price     float64
	Timestamp time.Time
}

// Adapter is the per-exchange, per-market-type client capability the core
// consumes. Implementations wrap their transport failures in
// domain.ErrNetwork and terminal balance failures in
// domain.ErrInsufficientFunds so the retry policy can classify them.
// Operations a venue does not offer return domain.ErrUnsupported.
//
// Close releases transport resources; the adapter must remain usable for
// subsequent calls, and Close must be safe to call repeatedly.
type Adapter interface {
	FetchTicker(ctx context.Context, symbol string) (Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	FetchBalance(ctx context.Context) (map[string]Balance, error)
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	SetLeverage(ctx context.Context, leverage int, symbol string) error
	Close() error
}

// Authenticator is implemented by adapters that accept per-user API
// credentials. Callers that hold user keys probe for it with a type
// assertion; adapters without it trade unauthenticated (or not at all).
type Authenticator interface {
	SetCredentials(creds domain.APICredentials)
}
