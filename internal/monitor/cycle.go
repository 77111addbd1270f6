// Package monitor drives the periodic market monitoring cycle: liquidity
// gate, opportunity detection, risk validation, auto-trading execution,
// notification, and the end-of-cycle strategy sweep.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/akornilov/crossarb/internal/domain"
	"github.com/akornilov/crossarb/internal/notify"
)

// OpportunityFinder detects an arbitrage opportunity for one symbol.
type OpportunityFinder interface {
	FindOpportunity(ctx context.Context, symbol string) (*domain.Opportunity, error)
}

// LiquidityScorer rates the depth of a symbol's book on one exchange.
type LiquidityScorer interface {
	Score(ctx context.Context, symbol, exchange string) float64
}

// RiskValidator accepts or rejects a detected opportunity.
type RiskValidator interface {
	Validate(ctx context.Context, opp domain.Opportunity) error
}

// Executor enters a validated opportunity for one user.
type Executor interface {
	ExecuteOpportunity(ctx context.Context, user domain.User, opp domain.Opportunity) (string, error)
}

// Sweeper re-evaluates persisted automated strategies.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// Alerter delivers opportunity notifications. Delivery failures are the
// alerter's problem; the cycle only logs them.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Closer tears down pooled exchange connections at cycle end.
type Closer interface {
	CloseAll()
}

// Config selects the pairs to watch and the gates applied per pair.
type Config struct {
	Pairs []string
	// MinLiquidity is the liquidity score floor; pairs scoring below it on
	// the reference exchange are skipped for the tick.
	MinLiquidity float64
	// ReferenceExchange supplies the book for the liquidity gate.
	ReferenceExchange string
}

// Cycle runs one monitoring pass over the configured pairs. Ticks never
// overlap: Run returns immediately when a previous tick still holds the
// cycle mutex.
type Cycle struct {
	cfg       Config
	liquidity LiquidityScorer
	detector  OpportunityFinder
	risk      RiskValidator
	executor  Executor
	users     domain.UserStore
	history   domain.OpportunityStore
	sweeper   Sweeper
	alerter   Alerter
	pool      Closer
	logger    *slog.Logger

	running sync.Mutex
}

// New creates a Cycle. history, sweeper, alerter, and executor may be nil;
// the corresponding stages are then skipped.
func New(
	cfg Config,
	liquidity LiquidityScorer,
	detector OpportunityFinder,
	risk RiskValidator,
	executor Executor,
	users domain.UserStore,
	history domain.OpportunityStore,
	sweeper Sweeper,
	alerter Alerter,
	pool Closer,
	logger *slog.Logger,
) *Cycle {
	return &Cycle{
		cfg:       cfg,
		liquidity: liquidity,
		detector:  detector,
		risk:      risk,
		executor:  executor,
		users:     users,
		history:   history,
		sweeper:   sweeper,
		alerter:   alerter,
		pool:      pool,
		logger:    logger.With(slog.String("component", "monitor")),
	}
}

// Run executes one monitoring tick. It returns without doing anything when a
// previous tick is still in flight. Per-pair failures and panics are
// contained; the remaining pairs still run, and pooled connections are closed
// at the end regardless of outcome.
func (c *Cycle) Run(ctx context.Context) {
	if !c.running.TryLock() {
		c.logger.WarnContext(ctx, "previous cycle still running, tick skipped")
		return
	}
	defer c.running.Unlock()

	started := time.Now()
	c.logger.InfoContext(ctx, "monitoring cycle started", slog.Int("pairs", len(c.cfg.Pairs)))

	defer func() {
		if c.pool != nil {
			c.pool.CloseAll()
		}
		c.logger.InfoContext(ctx, "monitoring cycle completed",
			slog.Duration("elapsed", time.Since(started)),
		)
	}()

	for _, symbol := range c.cfg.Pairs {
		if ctx.Err() != nil {
			return
		}
		c.runPair(ctx, symbol)
	}

	if c.sweeper != nil {
		if err := c.sweeper.Sweep(ctx); err != nil {
			c.logger.ErrorContext(ctx, "strategy sweep failed", slog.String("error", err.Error()))
		}
	}
}

// runPair processes one symbol through the full gate chain. A panic in any
// stage is recovered here so one bad pair cannot take down the tick.
func (c *Cycle) runPair(ctx context.Context, symbol string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "pair processing panicked",
				slog.String("symbol", symbol),
				slog.Any("panic", r),
			)
		}
	}()

	score := c.liquidity.Score(ctx, symbol, c.cfg.ReferenceExchange)
	if score < c.cfg.MinLiquidity {
		c.logger.DebugContext(ctx, "pair skipped on liquidity",
			slog.String("symbol", symbol),
			slog.Float64("score", score),
		)
		return
	}

	opp, err := c.detector.FindOpportunity(ctx, symbol)
	if err != nil {
		c.logger.ErrorContext(ctx, "opportunity detection failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return
	}
	if opp == nil {
		return
	}

	if err := c.risk.Validate(ctx, *opp); err != nil {
		c.logger.DebugContext(ctx, "opportunity rejected by risk validation",
			slog.String("symbol", symbol),
			slog.String("reason", err.Error()),
		)
		return
	}

	c.logger.InfoContext(ctx, "opportunity validated",
		slog.String("symbol", symbol),
		slog.String("buy_exchange", opp.BuyExchange),
		slog.String("sell_exchange", opp.SellExchange),
		slog.Float64("profit_percent", opp.ProfitPercent),
		slog.Float64("volume", opp.Volume),
	)

	if c.history != nil {
		if err := c.history.Insert(ctx, *opp); err != nil {
			c.logger.ErrorContext(ctx, "opportunity record failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	c.execute(ctx, *opp)
	c.notify(ctx, *opp)
}

// execute enters the opportunity for every qualifying auto-trading user.
// One user's failure does not block the others.
func (c *Cycle) execute(ctx context.Context, opp domain.Opportunity) {
	if c.executor == nil {
		return
	}

	traders, err := c.users.ListAutoTraders(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "auto-trader listing failed", slog.String("error", err.Error()))
		return
	}

	for _, user := range traders {
		if _, err := c.executor.ExecuteOpportunity(ctx, user, opp); err != nil {
			c.logger.WarnContext(ctx, "auto-trade failed",
				slog.Int64("user_id", user.ID),
				slog.String("symbol", opp.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		c.logger.InfoContext(ctx, "auto-trade executed",
			slog.Int64("user_id", user.ID),
			slog.String("symbol", opp.Symbol),
		)
	}
}

// notify is fire-and-forget; delivery failures never affect the cycle.
func (c *Cycle) notify(ctx context.Context, opp domain.Opportunity) {
	if c.alerter == nil {
		return
	}

	title, message := notify.OpportunityMessage(opp)
	if err := c.alerter.Notify(ctx, notify.EventOpportunity, title, message); err != nil {
		c.logger.WarnContext(ctx, "notification failed",
			slog.String("symbol", opp.Symbol),
			slog.String("error", err.Error()),
		)
	}
}

// RunLoop fires ticks on a fixed interval until the context is cancelled.
// The first tick fires immediately. Each tick runs on its own goroutine so a
// slow cycle never delays the schedule; a tick that arrives while the
// previous one is still in flight is skipped by Run, not queued. In-flight
// work is waited for before returning.
func (c *Cycle) RunLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	tick := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Run(ctx)
		}()
	}

	tick()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			tick()
		}
	}
}
