package exchange

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akornilov/crossarb/internal/domain"
)

// stubAdapter is a minimal Adapter for pool tests. Individual methods can be
// overridden per test.
type stubAdapter struct {
	ticker    Ticker
	tickerErr error
	closeErr  error
	closes    atomic.Int64
}

func (s *stubAdapter) FetchTicker(ctx context.Context, symbol string) (Ticker, error) {
	return s.ticker, s.tickerErr
}

func (s *stubAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error) {
	return OrderBook{}, domain.ErrUnsupported
}

func (s *stubAdapter) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	return nil, domain.ErrUnsupported
}

func (s *stubAdapter) FetchBalance(ctx context.Context) (map[string]Balance, error) {
	return nil, domain.ErrUnsupported
}

func (s *stubAdapter) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	return Order{}, domain.ErrUnsupported
}

func (s *stubAdapter) SetLeverage(ctx context.Context, leverage int, symbol string) error {
	return domain.ErrUnsupported
}

func (s *stubAdapter) Close() error {
	s.closes.Add(1)
	return s.closeErr
}

func newTestPool(t *testing.T) (*Pool, *stubAdapter) {
	t.Helper()
	pool := NewPool(slog.Default())
	adapter := &stubAdapter{}
	pool.Register("binance", domain.MarketSpot, adapter)
	return pool, adapter
}

func TestPoolLeaseUnknownExchange(t *testing.T) {
	pool, _ := newTestPool(t)

	_, err := pool.Lease("kraken", domain.MarketSpot)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	_, err = pool.Lease("binance", domain.MarketFutures)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestPoolReleaseClosesAdapterOnce(t *testing.T) {
	pool, adapter := newTestPool(t)

	lease, err := pool.Lease("binance", domain.MarketSpot)
	require.NoError(t, err)

	lease.Release()
	lease.Release() // idempotent
	assert.Equal(t, int64(1), adapter.closes.Load())
}

func TestPoolWithReleasesOnError(t *testing.T) {
	pool, adapter := newTestPool(t)

	wantErr := errors.New("boom")
	err := pool.With(context.Background(), "binance", domain.MarketSpot, func(a Adapter) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, int64(1), adapter.closes.Load())
}

func TestPoolWithReleasesOnPanic(t *testing.T) {
	pool, adapter := newTestPool(t)

	require.Panics(t, func() {
		_ = pool.With(context.Background(), "binance", domain.MarketSpot, func(a Adapter) error {
			panic("caller misuse")
		})
	})
	assert.Equal(t, int64(1), adapter.closes.Load())
}

func TestPoolWithCloseFailureNotPropagated(t *testing.T) {
	pool, adapter := newTestPool(t)
	adapter.closeErr = errors.New("socket already gone")

	err := pool.With(context.Background(), "binance", domain.MarketSpot, func(a Adapter) error {
		return nil
	})
	assert.NoError(t, err)

	// Pool stays usable after a close failure.
	err = pool.With(context.Background(), "binance", domain.MarketSpot, func(a Adapter) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestPoolCloseAll(t *testing.T) {
	pool, adapter := newTestPool(t)
	futures := &stubAdapter{}
	pool.Register("bybit", domain.MarketFutures, futures)

	pool.CloseAll()
	assert.Equal(t, int64(1), adapter.closes.Load())
	assert.Equal(t, int64(1), futures.closes.Load())
}

func TestPoolExchanges(t *testing.T) {
	pool, _ := newTestPool(t)
	pool.Register("binance", domain.MarketFutures, &stubAdapter{})
	pool.Register("bybit", domain.MarketSpot, &stubAdapter{})

	names := pool.Exchanges()
	assert.ElementsMatch(t, []string{"binance", "bybit"}, names)
}
