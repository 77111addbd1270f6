// Package arbitrage turns aggregated quotes into vetted cross-exchange
// opportunities: detection, liquidity scoring, and risk validation.
package arbitrage

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/akornilov/crossarb/internal/domain"
)

// QuoteSource supplies per-exchange quotes for a symbol. Implemented by
// market.Aggregator.
type QuoteSource interface {
	Quotes(ctx context.Context, symbol string) map[string]domain.Quote
}

// DetectorConfig holds the opportunity threshold policy.
type DetectorConfig struct {
	MinProfit  float64 // minimum profit percent after commission
	Commission float64 // flat round-trip commission percent
}

// Detector synthesizes at most one opportunity per symbol from the best
// cross-exchange spread.
type Detector struct {
	quotes QuoteSource
	cfg    DetectorConfig
	logger *slog.Logger
}

// NewDetector creates a Detector over the given quote source.
func NewDetector(quotes QuoteSource, cfg DetectorConfig, logger *slog.Logger) *Detector {
	return &Detector{
		quotes: quotes,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "arb_detector")),
	}
}

// FindOpportunity aggregates quotes for symbol and returns the best
// cross-exchange opportunity, or nil when none clears the threshold.
//
// It requires at least two quotes with positive volume. The sell target is
// the quote with the maximum bid, the buy source the one with the minimum
// ask; ties prefer the larger reported volume so selection is reproducible.
// When both resolve to the same exchange the spread is intra-exchange and not
// actionable.
func (d *Detector) FindOpportunity(ctx context.Context, symbol string) (*domain.Opportunity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	quotes := d.quotes.Quotes(ctx, symbol)

	tradable := make([]domain.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.BaseVolume > 0 {
			tradable = append(tradable, q)
		}
	}
	if len(tradable) < 2 {
		return nil, nil
	}

	sell := tradable[0]
	buy := tradable[0]
	for _, q := range tradable[1:] {
		if better(q.Bid, q, sell.Bid, sell, true) {
			sell = q
		}
		if better(q.Ask, q, buy.Ask, buy, false) {
			buy = q
		}
	}

	if sell.Exchange == buy.Exchange {
		return nil, nil
	}
	if buy.Ask <= 0 {
		return nil, nil
	}

	profit := (sell.Bid-buy.Ask)/buy.Ask*100 - d.cfg.Commission
	if profit < d.cfg.MinProfit {
		return nil, nil
	}

	volume := min(sell.BaseVolume, buy.BaseVolume)
	if volume <= 0 {
		return nil, nil
	}

	opp := &domain.Opportunity{
		ID:            uuid.New().String(),
		Symbol:        symbol,
		BuyExchange:   buy.Exchange,
		SellExchange:  sell.Exchange,
		BuyPrice:      buy.Ask,
		SellPrice:     sell.Bid,
		ProfitPercent: profit,
		Volume:        volume,
		ComputedAt:    time.Now().UTC(),
	}

	d.logger.InfoContext(ctx, "opportunity detected",
		slog.String("symbol", symbol),
		slog.String("buy", opp.BuyExchange),
		slog.String("sell", opp.SellExchange),
		slog.Float64("profit_percent", opp.ProfitPercent),
		slog.Float64("volume", opp.Volume),
	)
	return opp, nil
}

// better reports whether candidate price/quote beats the current best. wantMax
// selects max-bid comparison; otherwise min-ask. Exact price ties fall back to
// reported volume, then to the lexicographically smaller key, which keeps
// selection deterministic regardless of map iteration order.
func better(price float64, q domain.Quote, bestPrice float64, best domain.Quote, wantMax bool) bool {
	if price != bestPrice {
		if wantMax {
			return price > bestPrice
		}
		return price < bestPrice
	}
	if q.BaseVolume != best.BaseVolume {
		return q.BaseVolume > best.BaseVolume
	}
	return q.Key() < best.Key()
}
