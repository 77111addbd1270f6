package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/akornilov/crossarb/internal/domain"
)

// Key identifies one registered adapter.
type Key struct {
	Exchange string
	Market   domain.MarketType
}

func (k Key) String() string {
	return k.Exchange + "_" + string(k.Market)
}

// Leaser hands out scoped access to pooled adapters. It is the seam the
// aggregation and trading layers depend on; Pool is the production
// implementation.
type Leaser interface {
	Lease(exchange string, market domain.MarketType) (*Lease, error)
	With(ctx context.Context, exchange string, market domain.MarketType, fn func(Adapter) error) error
}

// Pool owns adapter instances keyed by (exchange, market type) and tracks
// outstanding leases so they can be bulk-closed at cycle end or process
// teardown. Centralizing acquisition and release keeps exchange-side
// rate-limit and socket resources from leaking under per-pair polling volume.
type Pool struct {
	mu       sync.Mutex
	adapters map[Key]Adapter
	active   map[Key]int // lease count per key
	logger   *slog.Logger
}

// NewPool creates an empty pool.
func NewPool(logger *slog.Logger) *Pool {
	return &Pool{
		adapters: make(map[Key]Adapter),
		active:   make(map[Key]int),
		logger:   logger.With(slog.String("component", "exchange_pool")),
	}
}

// Register adds an adapter for the given exchange and market type, replacing
// any previous registration.
func (p *Pool) Register(exchange string, market domain.MarketType, a Adapter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adapters[Key{Exchange: exchange, Market: market}] = a
}

// Exchanges returns the distinct exchange names with at least one registered
// market type.
func (p *Pool) Exchanges() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen := make(map[string]bool, len(p.adapters))
	var names []string
	for k := range p.adapters {
		if !seen[k.Exchange] {
			seen[k.Exchange] = true
			names = append(names, k.Exchange)
		}
	}
	return names
}

// Has reports whether the (exchange, market type) combination is registered.
func (p *Pool) Has(exchange string, market domain.MarketType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.adapters[Key{Exchange: exchange, Market: market}]
	return ok
}

// Lease hands out a scoped handle for the given exchange and market type. The
// caller must call Release exactly once; Release is idempotent. It returns
// domain.ErrNotConfigured when the combination is not registered.
func (p *Pool) Lease(exchange string, market domain.MarketType) (*Lease, error) {
	key := Key{Exchange: exchange, Market: market}

	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.adapters[key]
	if !ok {
		return nil, fmt.Errorf("pool: %s: %w", key, domain.ErrNotConfigured)
	}
	p.active[key]++

	return &Lease{Adapter: a, pool: p, key: key}, nil
}

// With leases an adapter, runs fn, and guarantees release on every exit path,
// including a panic inside fn.
func (p *Pool) With(ctx context.Context, exchange string, market domain.MarketType, fn func(Adapter) error) error {
	lease, err := p.Lease(exchange, market)
	if err != nil {
		return err
	}
	defer lease.Release()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(lease.Adapter)
}

// release returns a lease to the pool and closes the adapter's transport.
// Close failures are logged, never propagated; the adapter stays registered
// and reusable.
func (p *Pool) release(key Key, a Adapter) {
	p.mu.Lock()
	if p.active[key] > 0 {
		p.active[key]--
		if p.active[key] == 0 {
			delete(p.active, key)
		}
	}
	p.mu.Unlock()

	if err := a.Close(); err != nil {
		p.logger.Error("closing exchange adapter",
			slog.String("exchange", key.Exchange),
			slog.String("market", string(key.Market)),
			slog.String("error", err.Error()),
		)
	}
}

// CloseAll closes every registered adapter. Called at cycle end and at
// process teardown so long-lived connections do not leak between ticks.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	adapters := make(map[Key]Adapter, len(p.adapters))
	for k, a := range p.adapters {
		adapters[k] = a
	}
	p.active = make(map[Key]int)
	p.mu.Unlock()

	for key, a := range adapters {
		if err := a.Close(); err != nil {
			p.logger.Error("closing exchange adapter",
				slog.String("exchange", key.Exchange),
				slog.String("market", string(key.Market)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Lease is scoped, counted use of a pooled adapter for one logical operation.
type Lease struct {
	Adapter Adapter

	pool     *Pool
	key      Key
	released sync.Once
}

// Release returns the lease to the pool. Safe to call more than once; only
// the first call has effect.
func (l *Lease) Release() {
	l.released.Do(func() {
		l.pool.release(l.key, l.Adapter)
	})
}

// Compile-time interface check.
var _ Leaser = (*Pool)(nil)
