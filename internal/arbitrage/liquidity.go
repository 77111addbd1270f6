package arbitrage

import (
	"context"
	"log/slog"

	"github.com/akornilov/crossarb/internal/domain"
	"github.com/akornilov/crossarb/internal/exchange"
)

// liquidityScale normalizes depth-times-price into a comparable cross-pair
// score (1.0 per million USDT of average top-of-book depth).
const liquidityScale = 1_000_000

// liquidityDepth bounds how many book levels enter the score.
const liquidityDepth = 10

// LiquidityScorer estimates how tradable a pair is on one exchange from
// order-book depth.
type LiquidityScorer struct {
	pool   exchange.Leaser
	logger *slog.Logger
}

// NewLiquidityScorer creates a LiquidityScorer over the pool.
func NewLiquidityScorer(pool exchange.Leaser, logger *slog.Logger) *LiquidityScorer {
	return &LiquidityScorer{
		pool:   pool,
		logger: logger.With(slog.String("component", "liquidity_scorer")),
	}
}

// Score fetches the top levels of the book, sums both sides' volumes, and
// scales the average by the midpoint price. Any fetch failure or empty book
// returns 0: insufficient liquidity, fail-closed.
func (s *LiquidityScorer) Score(ctx context.Context, symbol, exchangeName string) float64 {
	var book exchange.OrderBook
	err := s.pool.With(ctx, exchangeName, domain.MarketTypeFor(symbol), func(a exchange.Adapter) error {
		b, err := a.FetchOrderBook(ctx, symbol, liquidityDepth)
		if err != nil {
			return err
		}
		book = b
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "liquidity check failed",
			slog.String("symbol", symbol),
			slog.String("exchange", exchangeName),
			slog.String("error", err.Error()),
		)
		return 0
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return 0
	}

	var bidVolume, askVolume float64
	for _, level := range book.Bids {
		bidVolume += level.Volume
	}
	for _, level := range book.Asks {
		askVolume += level.Volume
	}

	avgVolume := (bidVolume + askVolume) / 2
	mid := (book.Bids[0].Price + book.Asks[0].Price) / 2
	return avgVolume * mid / liquidityScale
}
