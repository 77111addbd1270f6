package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/akornilov/crossarb/internal/crypto"
	"github.com/akornilov/crossarb/internal/domain"
	"github.com/akornilov/crossarb/internal/exchange"
)

// TradingConfig sizes automatic executions and caps leverage per exchange.
type TradingConfig struct {
	// MinOrderSize is the USDT notional for risk level 1; higher levels scale
	// it linearly.
	MinOrderSize float64
	// MaxOrderSize caps the notional regardless of risk level.
	MaxOrderSize float64
	// MaxLeverage caps requested leverage per exchange name. Exchanges not in
	// the map get DefaultLeverage.
	MaxLeverage map[string]int
	// DefaultLeverage applies to futures orders when no explicit leverage is
	// requested. Zero disables leverage calls entirely.
	DefaultLeverage int
}

// TradingService executes validated opportunities on behalf of auto-trading
// users: it sizes the order from the user's risk level, authenticates with
// the user's keys, and records the resulting position in the ledger.
type TradingService struct {
	positions *PositionService
	users     domain.UserStore
	pool      exchange.Leaser
	keyring   *crypto.Keyring
	cfg       TradingConfig
	logger    *slog.Logger
}

// NewTradingService creates a TradingService.
func NewTradingService(
	positions *PositionService,
	users domain.UserStore,
	pool exchange.Leaser,
	keyring *crypto.Keyring,
	cfg TradingConfig,
	logger *slog.Logger,
) *TradingService {
	return &TradingService{
		positions: positions,
		users:     users,
		pool:      pool,
		keyring:   keyring,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "trading_service")),
	}
}

// notionalFor converts a risk level (1..5) into a USDT order notional.
func (s *TradingService) notionalFor(riskLevel int) float64 {
	if riskLevel < 1 {
		riskLevel = 1
	}
	notional := s.cfg.MinOrderSize * float64(riskLevel)
	if notional > s.cfg.MaxOrderSize {
		notional = s.cfg.MaxOrderSize
	}
	return notional
}

// leverageFor caps the default leverage by the per-exchange limit.
func (s *TradingService) leverageFor(exchangeName string) int {
	lev := s.cfg.DefaultLeverage
	if max, ok := s.cfg.MaxLeverage[exchangeName]; ok && lev > max {
		lev = max
	}
	return lev
}

// ExecuteOpportunity enters the buy side of a detected opportunity for one
// user: a market buy at the opportunity's buy exchange, sized by the user's
// risk level, then a long position in the ledger at the actual fill price.
//
// The balance check before the order is best-effort: the balance can change
// between the check and the fill, and the exchange remains the authority. The
// check exists to skip obviously unfunded users without burning an order
// attempt.
func (s *TradingService) ExecuteOpportunity(ctx context.Context, user domain.User, opp domain.Opportunity) (string, error) {
	notional := s.notionalFor(user.RiskLevel)
	if opp.BuyPrice <= 0 {
		return "", fmt.Errorf("trading_service: opportunity %s has no buy price: %w", opp.ID, domain.ErrBadQuote)
	}
	amount := notional / opp.BuyPrice

	market := domain.MarketTypeFor(opp.Symbol)

	var order exchange.Order
	err := s.pool.With(ctx, opp.BuyExchange, market, func(a exchange.Adapter) error {
		if err := s.applyCredentials(a, user, opp.BuyExchange); err != nil {
			return err
		}

		balances, err := a.FetchBalance(ctx)
		if err != nil {
			return fmt.Errorf("fetch balance: %w", err)
		}
		if usdt := balances["USDT"]; usdt.Free < notional {
			return fmt.Errorf("balance %.2f below required %.2f: %w", usdt.Free, notional, domain.ErrInsufficientFunds)
		}

		if market == domain.MarketFutures {
			if lev := s.leverageFor(opp.BuyExchange); lev > 0 {
				if err := a.SetLeverage(ctx, lev, opp.Symbol); err != nil {
					return fmt.Errorf("set leverage: %w", err)
				}
			}
		}

		req := exchange.OrderRequest{
			Symbol: opp.Symbol,
			Type:   exchange.OrderMarket,
			Side:   exchange.SideBuy,
			Amount: amount,
		}
		if market == domain.MarketFutures {
			req.Params = map[string]string{"timeInForce": "GTC"}
		}

		var orderErr error
		order, orderErr = a.CreateOrder(ctx, req)
		return orderErr
	})
	if err != nil {
		return "", fmt.Errorf("trading_service: execute %s for user %d: %w", opp.Symbol, user.ID, err)
	}

	entryPrice := order.Price
	if entryPrice <= 0 {
		entryPrice = opp.BuyPrice
	}

	posID, err := s.positions.Open(ctx, user.ID, opp.Symbol, opp.BuyExchange, domain.DirectionLong, amount, entryPrice)
	if err != nil {
		// The order filled but the ledger write failed. The position exists
		// on the exchange with no row tracking it.
		s.logger.ErrorContext(ctx, "order filled but position record failed",
			slog.Int64("user_id", user.ID),
			slog.String("symbol", opp.Symbol),
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return "", err
	}

	s.logger.InfoContext(ctx, "opportunity executed",
		slog.Int64("user_id", user.ID),
		slog.String("symbol", opp.Symbol),
		slog.String("buy_exchange", opp.BuyExchange),
		slog.Float64("amount", amount),
		slog.Float64("entry_price", entryPrice),
		slog.String("position_id", posID),
	)

	return posID, nil
}

// applyCredentials decrypts the user's key blob and configures the adapter
// when it accepts credentials.
func (s *TradingService) applyCredentials(a exchange.Adapter, user domain.User, exchangeName string) error {
	auth, ok := a.(exchange.Authenticator)
	if !ok || s.keyring == nil || len(user.EncryptedKeys) == 0 {
		return nil
	}
	keys, err := s.keyring.Open(user.EncryptedKeys)
	if err != nil {
		return fmt.Errorf("decrypt keys for user %d: %w", user.ID, err)
	}
	if creds, ok := keys[exchangeName]; ok {
		auth.SetCredentials(creds)
	}
	return nil
}
