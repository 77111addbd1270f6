package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/akornilov/crossarb/internal/domain"
	"github.com/akornilov/crossarb/internal/exchange"
)

// RiskConfig bounds which opportunities are worth acting on. MaxProfitPercent
// is deliberately fail-closed: spreads above it are treated as data errors
// even though a legitimately large spread is indistinguishable from one. Tune
// the ceiling rather than removing the check.
type RiskConfig struct {
	MinVolume          float64 // minimum reported volume (notional)
	MaxProfitPercent   float64 // suspiciously high profit ceiling
	MaxVolatility      float64 // annualized volatility ceiling, percent
	ReferenceExchange  string  // venue used for volatility history
	VolatilityBars     int     // lookback window, bars
	VolatilityInterval string  // bar timeframe, e.g. "1h"
}

// Validator applies volume, profit-sanity, and volatility bounds to a
// candidate opportunity. Any single trigger rejects the whole opportunity.
type Validator struct {
	pool   exchange.Leaser
	cfg    RiskConfig
	logger *slog.Logger
}

// NewValidator creates a Validator over the pool.
func NewValidator(pool exchange.Leaser, cfg RiskConfig, logger *slog.Logger) *Validator {
	if cfg.VolatilityBars <= 0 {
		cfg.VolatilityBars = 24
	}
	if cfg.VolatilityInterval == "" {
		cfg.VolatilityInterval = "1h"
	}
	return &Validator{
		pool:   pool,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "risk_validator")),
	}
}

// Validate returns nil to accept the opportunity or a descriptive error for
// the first failed check. Rejections are expected and frequent; they are
// logged at debug severity.
func (v *Validator) Validate(ctx context.Context, opp domain.Opportunity) error {
	if opp.Volume < v.cfg.MinVolume {
		v.logger.DebugContext(ctx, "rejected: volume below minimum",
			slog.String("symbol", opp.Symbol),
			slog.Float64("volume", opp.Volume),
		)
		return fmt.Errorf("risk: volume %.0f below minimum %.0f", opp.Volume, v.cfg.MinVolume)
	}

	if opp.ProfitPercent > v.cfg.MaxProfitPercent {
		v.logger.WarnContext(ctx, "rejected: suspiciously high profit",
			slog.String("symbol", opp.Symbol),
			slog.Float64("profit_percent", opp.ProfitPercent),
		)
		return fmt.Errorf("risk: profit %.2f%% above ceiling %.2f%%, treating as data error",
			opp.ProfitPercent, v.cfg.MaxProfitPercent)
	}

	volatility := v.volatility(ctx, opp.Symbol)
	if volatility > v.cfg.MaxVolatility {
		v.logger.DebugContext(ctx, "rejected: volatility above ceiling",
			slog.String("symbol", opp.Symbol),
			slog.Float64("volatility", volatility),
		)
		return fmt.Errorf("risk: volatility %.2f above ceiling %.2f", volatility, v.cfg.MaxVolatility)
	}

	return nil
}

// volatility computes the standard deviation of close-to-close returns over
// the lookback window on the reference exchange, annualized for hourly bars
// with the sqrt(24) factor. Fetch failures report 0 so a broken history feed
// does not veto otherwise valid opportunities.
func (v *Validator) volatility(ctx context.Context, symbol string) float64 {
	var candles []exchange.Candle
	err := v.pool.With(ctx, v.cfg.ReferenceExchange, domain.MarketTypeFor(symbol), func(a exchange.Adapter) error {
		c, err := a.FetchOHLCV(ctx, symbol, v.cfg.VolatilityInterval, v.cfg.VolatilityBars)
		if err != nil {
			return err
		}
		candles = c
		return nil
	})
	if err != nil {
		v.logger.WarnContext(ctx, "volatility fetch failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return 0
	}
	if len(candles) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, (candles[i].Close-prev)/prev)
	}
	if len(returns) == 0 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance) * 100 * math.Sqrt(24)
}
