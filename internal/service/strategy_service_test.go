package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akornilov/crossarb/internal/domain"
	"github.com/akornilov/crossarb/internal/exchange"
)

func newStrategyFixture(t *testing.T, adapter exchange.Adapter) (*StrategyService, *memStrategyStore) {
	t.Helper()
	store := newMemStrategyStore()
	pool := &fakeLeaser{adapters: map[string]exchange.Adapter{"binance": adapter}}
	return NewStrategyService(store, pool, "binance", testLogger()), store
}

func TestActivateGridPlacesSellsBelowAsk(t *testing.T) {
	adapter := &tradeAdapter{
		ticker: exchange.Ticker{Bid: 169, Ask: 170, Last: 169.5},
		fill:   exchange.Order{ID: "o"},
	}
	svc, store := newStrategyFixture(t, adapter)

	grid := domain.GridParams{Lower: 100, Upper: 200, Grids: 5}
	id, placed, err := svc.ActivateGrid(context.Background(), 1, "BTC/USDT", grid)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// levels 120, 140, 160, 180, 200; only those below ask 170 are armed
	assert.Equal(t, 3, placed)
	require.Equal(t, 3, adapter.orderCount())
	for _, order := range adapter.orders {
		assert.Equal(t, exchange.SideSell, order.Side)
		assert.Equal(t, exchange.OrderLimit, order.Type)
		assert.Less(t, order.Price, 170.0)
	}

	active, err := store.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.StrategyGrid, active[0].Kind)
}

func TestActivateGridRejectsInvalidRange(t *testing.T) {
	svc, _ := newStrategyFixture(t, &tradeAdapter{})

	_, _, err := svc.ActivateGrid(context.Background(), 1, "BTC/USDT", domain.GridParams{Lower: 200, Upper: 100, Grids: 5})
	assert.Error(t, err)

	_, _, err = svc.ActivateGrid(context.Background(), 1, "BTC/USDT", domain.GridParams{Lower: 100, Upper: 200, Grids: 0})
	assert.Error(t, err)
}

func TestSweepRearmsGridAtBottom(t *testing.T) {
	// ask 125 leaves one level above the lower bound, so the sweep re-arms.
	adapter := &tradeAdapter{
		ticker: exchange.Ticker{Ask: 125},
		fill:   exchange.Order{ID: "o"},
	}
	svc, store := newStrategyFixture(t, adapter)

	require.NoError(t, store.Create(context.Background(), domain.Strategy{
		ID:     "s1",
		UserID: 1,
		Symbol: "BTC/USDT",
		Kind:   domain.StrategyGrid,
		Grid:   domain.GridParams{Lower: 100, Upper: 200, Grids: 5},
		Active: true,
	}))

	require.NoError(t, svc.Sweep(context.Background()))

	// only level 120 sits below ask 125
	assert.Equal(t, 1, adapter.orderCount())
}

func TestSweepLeavesHealthyGridAlone(t *testing.T) {
	adapter := &tradeAdapter{ticker: exchange.Ticker{Ask: 180}}
	svc, store := newStrategyFixture(t, adapter)

	require.NoError(t, store.Create(context.Background(), domain.Strategy{
		ID:     "s1",
		Symbol: "BTC/USDT",
		Kind:   domain.StrategyGrid,
		Grid:   domain.GridParams{Lower: 100, Upper: 200, Grids: 5},
		Active: true,
	}))

	require.NoError(t, svc.Sweep(context.Background()))
	assert.Equal(t, 0, adapter.orderCount())
}

func TestSweepContinuesPastFailingStrategy(t *testing.T) {
	adapter := &tradeAdapter{tickerErr: domain.ErrNetwork}
	svc, store := newStrategyFixture(t, adapter)

	require.NoError(t, store.Create(context.Background(), domain.Strategy{
		ID:     "s1",
		Symbol: "BTC/USDT",
		Kind:   domain.StrategyGrid,
		Grid:   domain.GridParams{Lower: 100, Upper: 200, Grids: 5},
		Active: true,
	}))

	// Sweep reports success; the per-strategy failure is logged only.
	assert.NoError(t, svc.Sweep(context.Background()))
}

func TestDeactivateRemovesFromSweep(t *testing.T) {
	adapter := &tradeAdapter{ticker: exchange.Ticker{Ask: 125}, fill: exchange.Order{ID: "o"}}
	svc, store := newStrategyFixture(t, adapter)

	require.NoError(t, store.Create(context.Background(), domain.Strategy{
		ID:     "s1",
		Symbol: "BTC/USDT",
		Kind:   domain.StrategyGrid,
		Grid:   domain.GridParams{Lower: 100, Upper: 200, Grids: 5},
		Active: true,
	}))

	require.NoError(t, svc.Deactivate(context.Background(), "s1"))
	require.NoError(t, svc.Sweep(context.Background()))
	assert.Equal(t, 0, adapter.orderCount())
}
