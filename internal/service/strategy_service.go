package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/akornilov/crossarb/internal/domain"
	"github.com/akornilov/crossarb/internal/exchange"
)

// gridOrderAmount is the base-asset size of each grid sell order.
const gridOrderAmount = 0.01

// StrategyService manages user-activated automated strategies. The only kind
// implemented is the sell grid: limit sells spread evenly across a price
// range, armed on every level below the current ask.
type StrategyService struct {
	strategies domain.StrategyStore
	pool       exchange.Leaser
	// referenceExchange prices the grid; grid orders are placed there too.
	referenceExchange string
	logger            *slog.Logger
}

// NewStrategyService creates a StrategyService. referenceExchange names the
// venue whose spot ask drives grid placement.
func NewStrategyService(
	strategies domain.StrategyStore,
	pool exchange.Leaser,
	referenceExchange string,
	logger *slog.Logger,
) *StrategyService {
	return &StrategyService{
		strategies:        strategies,
		pool:              pool,
		referenceExchange: referenceExchange,
		logger:            logger.With(slog.String("component", "strategy_service")),
	}
}

// ActivateGrid places the initial grid orders and persists the strategy as
// active. It returns the strategy id and the number of orders placed.
func (s *StrategyService) ActivateGrid(ctx context.Context, userID int64, symbol string, grid domain.GridParams) (string, int, error) {
	if grid.Grids <= 0 || grid.Upper <= grid.Lower {
		return "", 0, fmt.Errorf("strategy_service: invalid grid range %.4f..%.4f/%d", grid.Lower, grid.Upper, grid.Grids)
	}

	placed, err := s.placeGridOrders(ctx, symbol, grid)
	if err != nil {
		return "", 0, fmt.Errorf("strategy_service: activate grid %s for user %d: %w", symbol, userID, err)
	}

	strat := domain.Strategy{
		ID:        uuid.New().String(),
		UserID:    userID,
		Symbol:    symbol,
		Kind:      domain.StrategyGrid,
		Grid:      grid,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.strategies.Create(ctx, strat); err != nil {
		return "", 0, fmt.Errorf("strategy_service: persist grid %s: %w", symbol, err)
	}

	s.logger.InfoContext(ctx, "grid activated",
		slog.String("strategy_id", strat.ID),
		slog.Int64("user_id", userID),
		slog.String("symbol", symbol),
		slog.Int("orders", placed),
	)

	return strat.ID, placed, nil
}

// placeGridOrders arms limit sells at every grid level below the current ask.
func (s *StrategyService) placeGridOrders(ctx context.Context, symbol string, grid domain.GridParams) (int, error) {
	var currentAsk float64
	err := s.pool.With(ctx, s.referenceExchange, domain.MarketSpot, func(a exchange.Adapter) error {
		ticker, err := a.FetchTicker(ctx, symbol)
		if err != nil {
			return err
		}
		currentAsk = ticker.Ask
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("price %s: %w", symbol, err)
	}

	step := grid.Step()
	placed := 0
	err = s.pool.With(ctx, s.referenceExchange, domain.MarketSpot, func(a exchange.Adapter) error {
		for i := 1; i <= grid.Grids; i++ {
			price := grid.Lower + float64(i)*step
			if price >= currentAsk {
				continue
			}
			_, err := a.CreateOrder(ctx, exchange.OrderRequest{
				Symbol: symbol,
				Type:   exchange.OrderLimit,
				Side:   exchange.SideSell,
				Amount: gridOrderAmount,
				Price:  price,
			})
			if err != nil {
				// Keep the levels already armed; report the first failure.
				return fmt.Errorf("grid level %.4f: %w", price, err)
			}
			placed++
		}
		return nil
	})
	if err != nil {
		return placed, err
	}
	return placed, nil
}

// Sweep re-evaluates every active strategy once. When the reference price has
// fallen to the bottom of a grid (at most one level remains above water) the
// grid is re-armed. Per-strategy failures are logged and do not stop the
// sweep.
func (s *StrategyService) Sweep(ctx context.Context) error {
	active, err := s.strategies.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("strategy_service: list active strategies: %w", err)
	}

	for _, strat := range active {
		if strat.Kind != domain.StrategyGrid {
			continue
		}
		if err := s.sweepGrid(ctx, strat); err != nil {
			s.logger.WarnContext(ctx, "strategy sweep failed",
				slog.String("strategy_id", strat.ID),
				slog.String("symbol", strat.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (s *StrategyService) sweepGrid(ctx context.Context, strat domain.Strategy) error {
	var currentAsk float64
	err := s.pool.With(ctx, s.referenceExchange, domain.MarketSpot, func(a exchange.Adapter) error {
		ticker, err := a.FetchTicker(ctx, strat.Symbol)
		if err != nil {
			return err
		}
		currentAsk = ticker.Ask
		return nil
	})
	if err != nil {
		return fmt.Errorf("price %s: %w", strat.Symbol, err)
	}

	step := strat.Grid.Step()
	if step <= 0 {
		return fmt.Errorf("strategy %s has no grid step", strat.ID)
	}

	activeLevels := int((currentAsk - strat.Grid.Lower) / step)
	if activeLevels > 1 {
		return nil
	}

	placed, err := s.placeGridOrders(ctx, strat.Symbol, strat.Grid)
	if err != nil {
		return fmt.Errorf("re-arm grid: %w", err)
	}

	s.logger.InfoContext(ctx, "grid re-armed",
		slog.String("strategy_id", strat.ID),
		slog.String("symbol", strat.Symbol),
		slog.Float64("current_ask", currentAsk),
		slog.Int("orders", placed),
	)
	return nil
}

// Deactivate marks a strategy inactive so the sweep skips it.
func (s *StrategyService) Deactivate(ctx context.Context, id string) error {
	if err := s.strategies.Deactivate(ctx, id); err != nil {
		return fmt.Errorf("strategy_service: deactivate %s: %w", id, err)
	}
	return nil
}
