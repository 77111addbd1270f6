package app

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/akornilov/crossarb/internal/arbitrage"
	"github.com/akornilov/crossarb/internal/config"
	"github.com/akornilov/crossarb/internal/domain"
	"github.com/akornilov/crossarb/internal/exchange"
	"github.com/akornilov/crossarb/internal/exchange/paper"
	"github.com/akornilov/crossarb/internal/feed"
	"github.com/akornilov/crossarb/internal/market"
	"github.com/akornilov/crossarb/internal/monitor"
	"github.com/akornilov/crossarb/internal/pipeline"
	"github.com/akornilov/crossarb/internal/service"
)

// MonitorMode runs the full monitoring cycle with automatic execution for
// eligible users. It blocks until ctx is cancelled.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	pool := buildPool(a.cfg, a.logger)

	positions := service.NewPositionService(
		deps.PositionStore, deps.UserStore, pool,
		deps.PriceCache, deps.LockManager, deps.Keyring, a.logger,
	)
	trading := service.NewTradingService(
		positions, deps.UserStore, pool, deps.Keyring,
		service.TradingConfig{
			MinOrderSize:    a.cfg.Trading.MinOrderSize,
			MaxOrderSize:    a.cfg.Trading.MaxOrderSize,
			MaxLeverage:     a.cfg.Trading.MaxLeverage,
			DefaultLeverage: a.cfg.Trading.DefaultLeverage,
		},
		a.logger,
	)

	return a.runCycle(ctx, deps, pool, trading)
}

// PaperMode runs the same detection pipeline as MonitorMode but never
// executes orders for users: opportunities are validated, recorded, and
// announced only.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	pool := buildPool(a.cfg, a.logger)
	return a.runCycle(ctx, deps, pool, nil)
}

// runCycle assembles the detection pipeline around the given pool and
// executor and runs the cycle loop plus the optional feed and archiver until
// ctx is cancelled.
func (a *App) runCycle(ctx context.Context, deps *Dependencies, pool *exchange.Pool, executor monitor.Executor) error {
	cfg := a.cfg

	retry := exchange.RetryPolicy{
		MaxAttempts: cfg.Exchanges.MaxRetries,
		Delay:       cfg.Exchanges.RetryDelay.Duration,
	}
	aggregator := market.NewAggregator(pool, cfg.Exchanges.Names, retry, deps.PriceCache, a.logger)

	detector := arbitrage.NewDetector(aggregator, arbitrage.DetectorConfig{
		MinProfit:  cfg.Arbitrage.MinProfit,
		Commission: cfg.Arbitrage.Commission,
	}, a.logger)

	liquidity := arbitrage.NewLiquidityScorer(pool, a.logger)

	validator := arbitrage.NewValidator(pool, arbitrage.RiskConfig{
		MinVolume:         cfg.Arbitrage.MinVolume,
		MaxProfitPercent:  cfg.Arbitrage.MaxProfitPercent,
		MaxVolatility:     cfg.Arbitrage.MaxVolatility,
		ReferenceExchange: cfg.Exchanges.Reference,
	}, a.logger)

	strategies := service.NewStrategyService(deps.StrategyStore, pool, cfg.Exchanges.Reference, a.logger)

	cycle := monitor.New(
		monitor.Config{
			Pairs:             cfg.Monitor.Pairs,
			MinLiquidity:      cfg.Monitor.MinLiquidity,
			ReferenceExchange: cfg.Exchanges.Reference,
		},
		liquidity, detector, validator, executor,
		deps.UserStore, deps.OpportunityStore,
		strategies, deps.Notifier, pool, a.logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return cycle.RunLoop(gctx, cfg.Monitor.Interval.Duration)
	})

	if cfg.Feed.Enabled {
		if deps.PriceCache == nil {
			a.logger.Warn("ticker feed enabled but no price cache is configured, skipping")
		} else {
			tickerFeed := feed.NewTickerFeed(cfg.Feed.WsURL, cfg.Monitor.Pairs, deps.PriceCache, a.logger)
			g.Go(func() error {
				return tickerFeed.Run(gctx)
			})
		}
	}

	if cfg.Archive.Enabled && deps.BlobWriter != nil {
		archiver := pipeline.NewArchiver(deps.OpportunityStore, deps.BlobWriter, cfg.Archive.RetentionDays, a.logger)
		g.Go(func() error {
			return archiver.RunLoop(gctx, cfg.Archive.Interval.Duration)
		})
	}

	return g.Wait()
}

// buildPool registers a spot and a futures paper venue per configured
// exchange. Venues quote around the shared base prices with a small
// per-exchange offset so cross-venue spreads exist to detect.
func buildPool(cfg *config.Config, logger *slog.Logger) *exchange.Pool {
	pool := exchange.NewPool(logger)

	for i, name := range cfg.Exchanges.Names {
		// Alternate the offset sign so venues straddle the mid price.
		offset := float64(i) * 4
		if i%2 == 1 {
			offset = -offset
		}

		for _, mkt := range []domain.MarketType{domain.MarketSpot, domain.MarketFutures} {
			pool.Register(name, mkt, paper.New(paper.Config{
				Exchange:   name,
				Market:     mkt,
				BasePrices: cfg.Exchanges.Paper.BasePrices,
				SpreadBps:  cfg.Exchanges.Paper.SpreadBps,
				OffsetBps:  offset,
				BaseVolume: cfg.Exchanges.Paper.BaseVolume,
				Balances:   map[string]float64{"USDT": cfg.Exchanges.Paper.QuoteBalance},
			}))
		}
	}

	return pool
}
