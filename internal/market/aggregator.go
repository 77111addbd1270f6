// Package market aggregates live prices across the configured exchanges.
package market

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/akornilov/crossarb/internal/domain"
	"github.com/akornilov/crossarb/internal/exchange"
)

// Aggregator polls the connection pool for ticker snapshots across every
// configured exchange for a trading pair and normalizes them into per-exchange
// quote records.
type Aggregator struct {
	pool      exchange.Leaser
	exchanges []string
	retry     exchange.RetryPolicy
	cache     domain.PriceCache // optional; nil disables cache warming
	logger    *slog.Logger
}

// NewAggregator creates an Aggregator over the given exchanges. cache may be
// nil.
func NewAggregator(pool exchange.Leaser, exchanges []string, retry exchange.RetryPolicy, cache domain.PriceCache, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		pool:      pool,
		exchanges: exchanges,
		retry:     retry,
		cache:     cache,
		logger:    logger.With(slog.String("component", "price_aggregator")),
	}
}

// Quotes fetches a fresh quote per exchange for the symbol, keyed by
// "exchange_markettype". The market type is routed from the symbol format.
// Fetches fan out concurrently so a slow venue cannot serialize the rest; an
// exchange that keeps failing after retries is simply omitted, and quotes
// whose bid crosses their ask are discarded as data errors. Partial results
// are expected operation, not failure.
func (a *Aggregator) Quotes(ctx context.Context, symbol string) map[string]domain.Quote {
	market := domain.MarketTypeFor(symbol)

	var mu sync.Mutex
	quotes := make(map[string]domain.Quote)

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range a.exchanges {
		name := name
		g.Go(func() error {
			quote, err := a.fetchOne(ctx, name, market, symbol)
			if errors.Is(err, domain.ErrNotConfigured) {
				// Venue does not trade this market type; not an error.
				return nil
			}
			if err != nil {
				a.logger.WarnContext(ctx, "exchange omitted from aggregation",
					slog.String("exchange", name),
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
				return nil // isolation: one venue's failure never aborts the rest
			}
			if !quote.Consistent() {
				a.logger.WarnContext(ctx, "discarding inconsistent quote",
					slog.String("exchange", name),
					slog.String("symbol", symbol),
					slog.Float64("bid", quote.Bid),
					slog.Float64("ask", quote.Ask),
				)
				return nil
			}
			mu.Lock()
			quotes[quote.Key()] = quote
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return quotes
}

func (a *Aggregator) fetchOne(ctx context.Context, name string, market domain.MarketType, symbol string) (domain.Quote, error) {
	var ticker exchange.Ticker
	err := a.retry.Do(ctx, func() error {
		return a.pool.With(ctx, name, market, func(ad exchange.Adapter) error {
			t, err := ad.FetchTicker(ctx, symbol)
			if err != nil {
				return err
			}
			ticker = t
			return nil
		})
	})
	if err != nil {
		return domain.Quote{}, err
	}

	now := time.Now().UTC()
	if a.cache != nil {
		if cerr := a.cache.SetTick(ctx, name, symbol, domain.Tick{
			Bid:        ticker.Bid,
			Ask:        ticker.Ask,
			Last:       ticker.Last,
			ObservedAt: now,
		}); cerr != nil {
			a.logger.DebugContext(ctx, "price cache write failed",
				slog.String("exchange", name),
				slog.String("error", cerr.Error()),
			)
		}
	}

	return domain.Quote{
		Exchange:   name,
		Market:     market,
		Bid:        ticker.Bid,
		Ask:        ticker.Ask,
		Last:       ticker.Last,
		BaseVolume: ticker.BaseVolume,
		ObservedAt: now,
	}, nil
}
