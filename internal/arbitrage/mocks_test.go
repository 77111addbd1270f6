package arbitrage

import (
	"context"
	"fmt"

	"github.com/akornilov/crossarb/internal/domain"
	"github.com/akornilov/crossarb/internal/exchange"
)

// fakeLeaser serves stub adapters keyed by exchange name, bypassing the real
// pool so tests can inject books and candle histories directly.
type fakeLeaser struct {
	adapters map[string]exchange.Adapter
}

func (f *fakeLeaser) Lease(name string, market domain.MarketType) (*exchange.Lease, error) {
	return nil, domain.ErrUnsupported
}

func (f *fakeLeaser) With(ctx context.Context, name string, market domain.MarketType, fn func(exchange.Adapter) error) error {
	a, ok := f.adapters[name]
	if !ok {
		return fmt.Errorf("fake leaser: %s: %w", name, domain.ErrNotConfigured)
	}
	return fn(a)
}

// bookAdapter serves a fixed order book and candle series.
type bookAdapter struct {
	book    exchange.OrderBook
	bookErr error

	candles    []exchange.Candle
	candlesErr error
}

func (b *bookAdapter) FetchTicker(ctx context.Context, symbol string) (exchange.Ticker, error) {
	return exchange.Ticker{}, domain.ErrUnsupported
}

func (b *bookAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (exchange.OrderBook, error) {
	return b.book, b.bookErr
}

func (b *bookAdapter) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]exchange.Candle, error) {
	return b.candles, b.candlesErr
}

func (b *bookAdapter) FetchBalance(ctx context.Context) (map[string]exchange.Balance, error) {
	return nil, domain.ErrUnsupported
}

func (b *bookAdapter) CreateOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	return exchange.Order{}, domain.ErrUnsupported
}

func (b *bookAdapter) SetLeverage(ctx context.Context, leverage int, symbol string) error {
	return domain.ErrUnsupported
}

func (b *bookAdapter) Close() error { return nil }
