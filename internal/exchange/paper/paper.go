// Package paper provides a deterministic in-process exchange adapter. It
// serves development runs and integration-style tests; real venue clients
// plug into the same pool through the exchange.Adapter contract.
package paper

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akornilov/crossarb/internal/domain"
	"github.com/akornilov/crossarb/internal/exchange"
)

// Config seeds one paper venue. SpreadBps sets the half-spread around the base
// price; OffsetBps shifts the whole venue so two paper exchanges disagree and
// produce detectable cross-exchange spreads.
type Config struct {
	Exchange   string
	Market     domain.MarketType
	BasePrices map[string]float64 // symbol -> mid price
	SpreadBps  float64
	OffsetBps  float64
	BaseVolume float64            // reported base volume per ticker
	Balances   map[string]float64 // asset -> free balance
	BookDepth  int                // levels per side served by FetchOrderBook
}

// Venue is a simulated exchange. All state is behind a mutex; the zero-value
// drift keeps prices stable so tests stay reproducible.
type Venue struct {
	cfg Config

	mu       sync.Mutex
	creds    domain.APICredentials
	balances map[string]float64
	leverage map[string]int
	orders   int
}

// New creates a paper venue from the given seed.
func New(cfg Config) *Venue {
	if cfg.SpreadBps <= 0 {
		cfg.SpreadBps = 10
	}
	if cfg.BaseVolume <= 0 {
		cfg.BaseVolume = 50_000
	}
	if cfg.BookDepth <= 0 {
		cfg.BookDepth = 10
	}
	balances := make(map[string]float64, len(cfg.Balances))
	for asset, free := range cfg.Balances {
		balances[asset] = free
	}
	return &Venue{
		cfg:      cfg,
		balances: balances,
		leverage: make(map[string]int),
	}
}

func (v *Venue) mid(symbol string) (float64, error) {
	base, ok := v.cfg.BasePrices[symbol]
	if !ok {
		return 0, fmt.Errorf("paper %s: symbol %s: %w", v.cfg.Exchange, symbol, domain.ErrNotFound)
	}
	return base * (1 + v.cfg.OffsetBps/10_000), nil
}

// FetchTicker returns the venue's deterministic top of book.
func (v *Venue) FetchTicker(ctx context.Context, symbol string) (exchange.Ticker, error) {
	mid, err := v.mid(symbol)
	if err != nil {
		return exchange.Ticker{}, err
	}
	half := mid * v.cfg.SpreadBps / 20_000
	return exchange.Ticker{
		Bid:        mid - half,
		Ask:        mid + half,
		Last:       mid,
		BaseVolume: v.cfg.BaseVolume,
	}, nil
}

// FetchOrderBook serves a synthetic book with volume decaying away from the
// top level.
func (v *Venue) FetchOrderBook(ctx context.Context, symbol string, depth int) (exchange.OrderBook, error) {
	ticker, err := v.FetchTicker(ctx, symbol)
	if err != nil {
		return exchange.OrderBook{}, err
	}
	if depth <= 0 || depth > v.cfg.BookDepth {
		depth = v.cfg.BookDepth
	}

	step := (ticker.Ask - ticker.Bid) / 2
	if step <= 0 {
		step = ticker.Last / 10_000
	}
	book := exchange.OrderBook{
		Bids: make([]exchange.BookLevel, 0, depth),
		Asks: make([]exchange.BookLevel, 0, depth),
	}
	levelVolume := v.cfg.BaseVolume / float64(v.cfg.BookDepth) / ticker.Last
	for i := 0; i < depth; i++ {
		decay := 1 / float64(i+1)
		book.Bids = append(book.Bids, exchange.BookLevel{
			Price:  ticker.Bid - float64(i)*step,
			Volume: levelVolume * decay,
		})
		book.Asks = append(book.Asks, exchange.BookLevel{
			Price:  ticker.Ask + float64(i)*step,
			Volume: levelVolume * decay,
		})
	}
	return book, nil
}

// FetchOHLCV synthesizes flat hourly bars ending at the current price.
func (v *Venue) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]exchange.Candle, error) {
	mid, err := v.mid(symbol)
	if err != nil {
		return nil, err
	}
	step, err := barDuration(timeframe)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 24
	}

	start := time.Now().UTC().Truncate(step).Add(-time.Duration(limit-1) * step)
	candles := make([]exchange.Candle, 0, limit)
	for i := 0; i < limit; i++ {
		candles = append(candles, exchange.Candle{
			Time:   start.Add(time.Duration(i) * step),
			Open:   mid,
			High:   mid * 1.001,
			Low:    mid * 0.999,
			Close:  mid,
			Volume: v.cfg.BaseVolume / float64(limit),
		})
	}
	return candles, nil
}

func barDuration(timeframe string) (time.Duration, error) {
	if timeframe == "" {
		return time.Hour, nil
	}
	unit := timeframe[len(timeframe)-1]
	n, err := strconv.Atoi(timeframe[:len(timeframe)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("paper: timeframe %q: %w", timeframe, domain.ErrUnsupported)
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("paper: timeframe %q: %w", timeframe, domain.ErrUnsupported)
	}
}

// FetchBalance returns the simulated account balances.
func (v *Venue) FetchBalance(ctx context.Context) (map[string]exchange.Balance, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]exchange.Balance, len(v.balances))
	for asset, free := range v.balances {
		out[asset] = exchange.Balance{Free: free, Total: free}
	}
	return out, nil
}

// CreateOrder fills immediately at the venue's current bid/ask and debits the
// quote balance for buys.
func (v *Venue) CreateOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	if req.Amount <= 0 {
		return exchange.Order{}, fmt.Errorf("paper %s: amount %v: %w", v.cfg.Exchange, req.Amount, domain.ErrOrderRejected)
	}
	ticker, err := v.FetchTicker(ctx, req.Symbol)
	if err != nil {
		return exchange.Order{}, err
	}

	price := req.Price
	if req.Type == exchange.OrderMarket || price <= 0 {
		if req.Side == exchange.SideBuy {
			price = ticker.Ask
		} else {
			price = ticker.Bid
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if req.Side == exchange.SideBuy {
		cost := price * req.Amount
		if v.balances["USDT"] < cost {
			return exchange.Order{}, fmt.Errorf("paper %s: need %.2f USDT: %w", v.cfg.Exchange, cost, domain.ErrInsufficientFunds)
		}
		v.balances["USDT"] -= cost
	} else {
		v.balances["USDT"] += price * req.Amount
	}
	v.orders++

	return exchange.Order{
		ID:        uuid.New().String(),
		Price:     price,
		Timestamp: time.Now().UTC(),
	}, nil
}

// SetLeverage records the leverage for futures venues and reports the
// operation as unsupported on spot.
func (v *Venue) SetLeverage(ctx context.Context, leverage int, symbol string) error {
	if v.cfg.Market != domain.MarketFutures {
		return fmt.Errorf("paper %s: leverage on spot: %w", v.cfg.Exchange, domain.ErrUnsupported)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.leverage[symbol] = leverage
	return nil
}

// SetCredentials implements exchange.Authenticator. The paper venue accepts
// any credentials.
func (v *Venue) SetCredentials(creds domain.APICredentials) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.creds = creds
}

// Close is a no-op; the venue holds no transport resources.
func (v *Venue) Close() error { return nil }

// OrderCount reports how many orders have been filled, for tests.
func (v *Venue) OrderCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.orders
}

var (
	_ exchange.Adapter       = (*Venue)(nil)
	_ exchange.Authenticator = (*Venue)(nil)
)
