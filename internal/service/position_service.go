// Package service implements the application use-cases on top of the domain
// contracts: the position ledger, the auto-trading engine, and the grid
// strategy sweep.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/akornilov/crossarb/internal/crypto"
	"github.com/akornilov/crossarb/internal/domain"
	"github.com/akornilov/crossarb/internal/exchange"
)

// closeLockTTL bounds how long a close lock can outlive a crashed holder.
const closeLockTTL = 30 * time.Second

// PositionService is the position ledger: it opens, enriches, and closes
// positions. Close is serialized per position id so a duplicate request can
// never place a second exchange order.
type PositionService struct {
	positions domain.PositionStore
	users     domain.UserStore
	pool      exchange.Leaser
	prices    domain.PriceCache // optional fast path, may be nil
	locks     domain.LockManager
	keyring   *crypto.Keyring
	logger    *slog.Logger
}

// NewPositionService creates a PositionService with all required dependencies.
// prices may be nil; the service then always fetches live tickers.
func NewPositionService(
	positions domain.PositionStore,
	users domain.UserStore,
	pool exchange.Leaser,
	prices domain.PriceCache,
	locks domain.LockManager,
	keyring *crypto.Keyring,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: positions,
		users:     users,
		pool:      pool,
		prices:    prices,
		locks:     locks,
		keyring:   keyring,
		logger:    logger.With(slog.String("component", "position_service")),
	}
}

// Open persists a new open position and returns its id.
func (s *PositionService) Open(
	ctx context.Context,
	userID int64,
	symbol, exchangeName string,
	direction domain.Direction,
	amount, entryPrice float64,
) (string, error) {
	pos := domain.Position{
		ID:         uuid.New().String(),
		UserID:     userID,
		Symbol:     symbol,
		Exchange:   exchangeName,
		Direction:  direction,
		Amount:     amount,
		EntryPrice: entryPrice,
		EntryTime:  time.Now().UTC(),
		Status:     domain.PositionStatusOpen,
	}

	if err := s.positions.Create(ctx, pos); err != nil {
		return "", fmt.Errorf("position_service: create position: %w", err)
	}

	s.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.Int64("user_id", userID),
		slog.String("symbol", symbol),
		slog.String("exchange", exchangeName),
		slog.Float64("entry_price", entryPrice),
		slog.Float64("amount", amount),
	)

	return pos.ID, nil
}

// GetOpenPositions returns a user's open positions marked to the current
// market price. A position whose price cannot be fetched is excluded from the
// result and logged; the remaining positions are still returned.
func (s *PositionService) GetOpenPositions(ctx context.Context, userID int64) ([]domain.EnrichedPosition, error) {
	open, err := s.positions.ListOpen(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("position_service: list open positions for user %d: %w", userID, err)
	}

	enriched := make([]domain.EnrichedPosition, 0, len(open))
	for _, pos := range open {
		current, err := s.currentPrice(ctx, pos.Exchange, pos.Symbol)
		if err != nil {
			s.logger.WarnContext(ctx, "price fetch failed, position skipped",
				slog.String("position_id", pos.ID),
				slog.String("symbol", pos.Symbol),
				slog.String("exchange", pos.Exchange),
				slog.String("error", err.Error()),
			)
			continue
		}
		enriched = append(enriched, pos.MarkToMarket(current))
	}

	return enriched, nil
}

// currentPrice resolves the last trade price for a symbol, preferring the
// cache and falling back to a live ticker fetch.
func (s *PositionService) currentPrice(ctx context.Context, exchangeName, symbol string) (float64, error) {
	if s.prices != nil {
		tick, err := s.prices.GetTick(ctx, exchangeName, symbol)
		if err == nil && tick.Last > 0 {
			return tick.Last, nil
		}
	}

	var last float64
	err := s.pool.With(ctx, exchangeName, domain.MarketTypeFor(symbol), func(a exchange.Adapter) error {
		ticker, err := a.FetchTicker(ctx, symbol)
		if err != nil {
			return err
		}
		last = ticker.Last
		return nil
	})
	if err != nil {
		return 0, err
	}
	return last, nil
}

// Close exits an open position with an opposing market order at the full
// amount, then transitions the row to closed. It returns the closed position
// with exit fields filled in.
//
// Concurrent and repeated closes of the same id are safe: the position lock
// serializes in-flight closes, and the store's conditional update rejects a
// close of an already-closed row with domain.ErrNotFound. The status change
// happens only after a confirmed fill, so an exchange failure leaves the
// position open.
func (s *PositionService) Close(ctx context.Context, userID int64, positionID string) (domain.Position, error) {
	unlock, err := s.locks.Acquire(ctx, "position:"+positionID, closeLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return domain.Position{}, fmt.Errorf("position_service: close %s already in progress: %w", positionID, err)
		}
		return domain.Position{}, fmt.Errorf("position_service: lock position %s: %w", positionID, err)
	}
	defer unlock()

	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: get position %s: %w", positionID, err)
	}
	// Ownership is checked with the same error as absence so a caller cannot
	// probe for other users' position ids.
	if pos.UserID != userID || pos.Status != domain.PositionStatusOpen {
		return domain.Position{}, fmt.Errorf("position_service: position %s: %w", positionID, domain.ErrNotFound)
	}

	side := exchange.SideSell
	if pos.Direction == domain.DirectionShort {
		side = exchange.SideBuy
	}

	var order exchange.Order
	err = s.pool.With(ctx, pos.Exchange, domain.MarketTypeFor(pos.Symbol), func(a exchange.Adapter) error {
		if err := s.authenticate(ctx, a, userID, pos.Exchange); err != nil {
			return err
		}

		var orderErr error
		order, orderErr = a.CreateOrder(ctx, exchange.OrderRequest{
			Symbol: pos.Symbol,
			Type:   exchange.OrderMarket,
			Side:   side,
			Amount: pos.Amount,
		})
		return orderErr
	})
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: close order for %s: %w", positionID, err)
	}

	exitPrice := order.Price
	exitTime := order.Timestamp
	if exitTime.IsZero() {
		exitTime = time.Now().UTC()
	}

	if err := s.positions.Close(ctx, positionID, exitPrice, exitTime); err != nil {
		// The exchange order filled but the row update failed. Surface the
		// error loudly; the ledger is now behind the exchange.
		s.logger.ErrorContext(ctx, "position closed on exchange but ledger update failed",
			slog.String("position_id", positionID),
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return domain.Position{}, fmt.Errorf("position_service: record close of %s: %w", positionID, err)
	}

	pos.Status = domain.PositionStatusClosed
	pos.ExitPrice = &exitPrice
	pos.ExitTime = &exitTime

	s.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", positionID),
		slog.Int64("user_id", userID),
		slog.String("symbol", pos.Symbol),
		slog.Float64("exit_price", exitPrice),
	)

	return pos, nil
}

// authenticate loads the user's stored API keys and applies the pair for the
// given exchange when the adapter accepts credentials. Missing keys are not
// an error; the adapter then operates with whatever access it has.
func (s *PositionService) authenticate(ctx context.Context, a exchange.Adapter, userID int64, exchangeName string) error {
	auth, ok := a.(exchange.Authenticator)
	if !ok || s.keyring == nil {
		return nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}
	if len(user.EncryptedKeys) == 0 {
		return nil
	}

	keys, err := s.keyring.Open(user.EncryptedKeys)
	if err != nil {
		return fmt.Errorf("decrypt keys for user %d: %w", userID, err)
	}
	if creds, ok := keys[exchangeName]; ok {
		auth.SetCredentials(creds)
	}
	return nil
}
