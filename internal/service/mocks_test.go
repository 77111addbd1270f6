package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akornilov/crossarb/internal/domain"
	"github.com/akornilov/crossarb/internal/exchange"
)

// memPositionStore is an in-memory PositionStore with the same conditional
// close semantics as the postgres implementation.
type memPositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{positions: make(map[string]domain.Position)}
}

func (m *memPositionStore) Create(ctx context.Context, pos domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[pos.ID] = pos
	return nil
}

func (m *memPositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (m *memPositionStore) ListOpen(ctx context.Context, userID int64) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, pos := range m.positions {
		if pos.UserID == userID && pos.Status == domain.PositionStatusOpen {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (m *memPositionStore) Close(ctx context.Context, id string, exitPrice float64, exitTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok || pos.Status != domain.PositionStatusOpen {
		return domain.ErrNotFound
	}
	pos.Status = domain.PositionStatusClosed
	pos.ExitPrice = &exitPrice
	pos.ExitTime = &exitTime
	m.positions[id] = pos
	return nil
}

// memUserStore serves a fixed user set.
type memUserStore struct {
	users map[int64]domain.User
}

func (m *memUserStore) GetByID(ctx context.Context, id int64) (domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (m *memUserStore) Upsert(ctx context.Context, user domain.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *memUserStore) UpdateRiskProfile(ctx context.Context, id int64, riskLevel int, autoTrading bool, strategy string) error {
	u, ok := m.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.RiskLevel = riskLevel
	u.AutoTrading = autoTrading
	u.Strategy = strategy
	m.users[id] = u
	return nil
}

func (m *memUserStore) ListAutoTraders(ctx context.Context) ([]domain.User, error) {
	now := time.Now()
	var out []domain.User
	for _, u := range m.users {
		if u.AutoTrading && u.VIPActive(now) && len(u.EncryptedKeys) > 0 {
			out = append(out, u)
		}
	}
	return out, nil
}

// memStrategyStore holds strategies in memory.
type memStrategyStore struct {
	mu         sync.Mutex
	strategies map[string]domain.Strategy
}

func newMemStrategyStore() *memStrategyStore {
	return &memStrategyStore{strategies: make(map[string]domain.Strategy)}
}

func (m *memStrategyStore) Create(ctx context.Context, s domain.Strategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[s.ID] = s
	return nil
}

func (m *memStrategyStore) ListActive(ctx context.Context) ([]domain.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Strategy
	for _, s := range m.strategies {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStrategyStore) Deactivate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.strategies[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Active = false
	m.strategies[id] = s
	return nil
}

// fakeLeaser serves stub adapters keyed by exchange name, bypassing the pool.
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

// tradeAdapter is a scriptable adapter that records every order and
// credential application.
type tradeAdapter struct {
	mu sync.Mutex

	ticker    exchange.Ticker
	tickerErr error

	balances map[string]exchange.Balance

	orderErr error
	fill     exchange.Order

	orders      []exchange.OrderRequest
	leverages   []int
	credentials []domain.APICredentials
}

func (t *tradeAdapter) FetchTicker(ctx context.Context, symbol string) (exchange.Ticker, error) {
	return t.ticker, t.tickerErr
}

func (t *tradeAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (exchange.OrderBook, error) {
	return exchange.OrderBook{}, domain.ErrUnsupported
}

func (t *tradeAdapter) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]exchange.Candle, error) {
	return nil, domain.ErrUnsupported
}

func (t *tradeAdapter) FetchBalance(ctx context.Context) (map[string]exchange.Balance, error) {
	if t.balances == nil {
		return map[string]exchange.Balance{}, nil
	}
	return t.balances, nil
}

func (t *tradeAdapter) CreateOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.orderErr != nil {
		return exchange.Order{}, t.orderErr
	}
	t.orders = append(t.orders, req)
	return t.fill, nil
}

func (t *tradeAdapter) SetLeverage(ctx context.Context, leverage int, symbol string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leverages = append(t.leverages, leverage)
	return nil
}

func (t *tradeAdapter) SetCredentials(creds domain.APICredentials) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credentials = append(t.credentials, creds)
}

func (t *tradeAdapter) Close() error { return nil }

func (t *tradeAdapter) orderCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.orders)
}

func (t *tradeAdapter) lastOrder() exchange.OrderRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.orders[len(t.orders)-1]
}

// memTickCache is an in-memory PriceCache.
type memTickCache struct {
	mu    sync.Mutex
	ticks map[string]domain.Tick
}

func newMemTickCache() *memTickCache {
	return &memTickCache{ticks: make(map[string]domain.Tick)}
}

func (c *memTickCache) SetTick(ctx context.Context, exchangeName, symbol string, tick domain.Tick) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks[exchangeName+":"+symbol] = tick
	return nil
}

func (c *memTickCache) GetTick(ctx context.Context, exchangeName, symbol string) (domain.Tick, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tick, ok := c.ticks[exchangeName+":"+symbol]
	if !ok {
		return domain.Tick{}, domain.ErrNotFound
	}
	return tick, nil
}
