package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akornilov/crossarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLiquidity struct {
	scores map[string]float64
}

func (f *fakeLiquidity) Score(ctx context.Context, symbol, exchange string) float64 {
	return f.scores[symbol]
}

type fakeDetector struct {
	opportunities map[string]*domain.Opportunity
	errs          map[string]error
	panics        map[string]bool
	block         chan struct{} // when set, FindOpportunity waits for it

	mu    sync.Mutex
	calls []string
}

func (f *fakeDetector) FindOpportunity(ctx context.Context, symbol string) (*domain.Opportunity, error) {
	f.mu.Lock()
	f.calls = append(f.calls, symbol)
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	if f.panics[symbol] {
		panic("detector blew up on " + symbol)
	}
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return f.opportunities[symbol], nil
}

func (f *fakeDetector) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRisk struct {
	rejected map[string]error
}

func (f *fakeRisk) Validate(ctx context.Context, opp domain.Opportunity) error {
	return f.rejected[opp.Symbol]
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []int64
	err   error
}

func (f *fakeExecutor) ExecuteOpportunity(ctx context.Context, user domain.User, opp domain.Opportunity) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, user.ID)
	return "pos-1", f.err
}

type fakeUserStore struct {
	traders []domain.User
}

func (f *fakeUserStore) GetByID(ctx context.Context, id int64) (domain.User, error) {
	return domain.User{}, domain.ErrNotFound
}
func (f *fakeUserStore) Upsert(ctx context.Context, user domain.User) error { return nil }
func (f *fakeUserStore) UpdateRiskProfile(ctx context.Context, id int64, riskLevel int, autoTrading bool, strategy string) error {
	return nil
}
func (f *fakeUserStore) ListAutoTraders(ctx context.Context) ([]domain.User, error) {
	return f.traders, nil
}

type fakeHistory struct {
	mu       sync.Mutex
	inserted []domain.Opportunity
}

func (f *fakeHistory) Insert(ctx context.Context, opp domain.Opportunity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, opp)
	return nil
}
func (f *fakeHistory) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	return nil, nil
}
func (f *fakeHistory) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.Opportunity, error) {
	return nil, nil
}
func (f *fakeHistory) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeSweeper struct {
	swept int
}

func (f *fakeSweeper) Sweep(ctx context.Context) error {
	f.swept++
	return nil
}

type fakeAlerter struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (f *fakeAlerter) Notify(ctx context.Context, event, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	return f.err
}

type fakeCloser struct {
	closed int
}

func (f *fakeCloser) CloseAll() { f.closed++ }

func opp(symbol string) *domain.Opportunity {
	return &domain.Opportunity{
		ID:            "opp-1",
		Symbol:        symbol,
		BuyExchange:   "okx",
		SellExchange:  "binance",
		BuyPrice:      99.5,
		SellPrice:     100,
		ProfitPercent: 0.3,
		Volume:        20000,
	}
}

type fixture struct {
	cycle     *Cycle
	liquidity *fakeLiquidity
	detector  *fakeDetector
	risk      *fakeRisk
	executor  *fakeExecutor
	history   *fakeHistory
	sweeper   *fakeSweeper
	alerter   *fakeAlerter
	closer    *fakeCloser
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		liquidity: &fakeLiquidity{scores: map[string]float64{}},
		detector: &fakeDetector{
			opportunities: map[string]*domain.Opportunity{},
			errs:          map[string]error{},
			panics:        map[string]bool{},
		},
		risk:     &fakeRisk{rejected: map[string]error{}},
		executor: &fakeExecutor{},
		history:  &fakeHistory{},
		sweeper:  &fakeSweeper{},
		alerter:  &fakeAlerter{},
		closer:   &fakeCloser{},
	}
	users := &fakeUserStore{traders: []domain.User{{ID: 7}, {ID: 8}}}
	f.cycle = New(cfg, f.liquidity, f.detector, f.risk, f.executor, users, f.history, f.sweeper, f.alerter, f.closer, testLogger())
	return f
}

func TestRunFullPipeline(t *testing.T) {
	f := newFixture(Config{Pairs: []string{"BTC/USDT"}, MinLiquidity: 1, ReferenceExchange: "binance"})
	f.liquidity.scores["BTC/USDT"] = 2.5
	f.detector.opportunities["BTC/USDT"] = opp("BTC/USDT")

	f.cycle.Run(context.Background())

	assert.Equal(t, []int64{7, 8}, f.executor.calls, "validated opportunity is executed for every auto trader")
	require.Len(t, f.history.inserted, 1)
	assert.Len(t, f.alerter.titles, 1)
	assert.Equal(t, 1, f.sweeper.swept)
	assert.Equal(t, 1, f.closer.closed)
}

func TestLiquidityGateSkipsPair(t *testing.T) {
	f := newFixture(Config{Pairs: []string{"BTC/USDT"}, MinLiquidity: 1, ReferenceExchange: "binance"})
	f.liquidity.scores["BTC/USDT"] = 0.2
	f.detector.opportunities["BTC/USDT"] = opp("BTC/USDT")

	f.cycle.Run(context.Background())

	assert.Equal(t, 0, f.detector.callCount(), "illiquid pairs never reach detection")
	assert.Empty(t, f.executor.calls)
	assert.Equal(t, 1, f.closer.closed, "pool is closed even when nothing traded")
}

func TestRiskGateBlocksExecution(t *testing.T) {
	f := newFixture(Config{Pairs: []string{"BTC/USDT"}, MinLiquidity: 1, ReferenceExchange: "binance"})
	f.liquidity.scores["BTC/USDT"] = 2
	f.detector.opportunities["BTC/USDT"] = opp("BTC/USDT")
	f.risk.rejected["BTC/USDT"] = errors.New("volume below minimum")

	f.cycle.Run(context.Background())

	assert.Empty(t, f.executor.calls)
	assert.Empty(t, f.history.inserted)
	assert.Empty(t, f.alerter.titles)
}

func TestPanicInOnePairDoesNotStopOthers(t *testing.T) {
	f := newFixture(Config{Pairs: []string{"BAD/USDT", "ETH/USDT"}, MinLiquidity: 1, ReferenceExchange: "binance"})
	f.liquidity.scores["BAD/USDT"] = 2
	f.liquidity.scores["ETH/USDT"] = 2
	f.detector.panics["BAD/USDT"] = true
	f.detector.opportunities["ETH/USDT"] = opp("ETH/USDT")

	f.cycle.Run(context.Background())

	assert.Equal(t, []int64{7, 8}, f.executor.calls, "pairs after the panic still run")
	assert.Equal(t, 1, f.sweeper.swept)
}

func TestDetectorErrorSkipsPairOnly(t *testing.T) {
	f := newFixture(Config{Pairs: []string{"BTC/USDT", "ETH/USDT"}, MinLiquidity: 1, ReferenceExchange: "binance"})
	f.liquidity.scores["BTC/USDT"] = 2
	f.liquidity.scores["ETH/USDT"] = 2
	f.detector.errs["BTC/USDT"] = errors.New("all exchanges down")
	f.detector.opportunities["ETH/USDT"] = opp("ETH/USDT")

	f.cycle.Run(context.Background())

	require.Len(t, f.history.inserted, 1)
	assert.Equal(t, "ETH/USDT", f.history.inserted[0].Symbol)
}

func TestNotifyFailureDoesNotAffectCycle(t *testing.T) {
	f := newFixture(Config{Pairs: []string{"BTC/USDT"}, MinLiquidity: 1, ReferenceExchange: "binance"})
	f.liquidity.scores["BTC/USDT"] = 2
	f.detector.opportunities["BTC/USDT"] = opp("BTC/USDT")
	f.alerter.err = errors.New("telegram down")

	f.cycle.Run(context.Background())

	assert.Equal(t, []int64{7, 8}, f.executor.calls)
	assert.Equal(t, 1, f.sweeper.swept)
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	f := newFixture(Config{Pairs: []string{"BTC/USDT"}, MinLiquidity: 1, ReferenceExchange: "binance"})
	f.detector.opportunities["BTC/USDT"] = opp("BTC/USDT")
	f.liquidity.scores["BTC/USDT"] = 2

	f.cycle.running.Lock()
	f.cycle.Run(context.Background())
	f.cycle.running.Unlock()

	assert.Equal(t, 0, f.detector.callCount(), "a tick never runs while the previous one holds the cycle lock")
	assert.Equal(t, 0, f.closer.closed)
}

// warnCounter counts WARN records so tests can observe the tick-skip path.
type warnCounter struct {
	mu    sync.Mutex
	count int
}

func (w *warnCounter) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelWarn
}

func (w *warnCounter) Handle(ctx context.Context, r slog.Record) error {
	w.mu.Lock()
	w.count++
	w.mu.Unlock()
	return nil
}

func (w *warnCounter) WithAttrs(attrs []slog.Attr) slog.Handler { return w }
func (w *warnCounter) WithGroup(name string) slog.Handler       { return w }

func (w *warnCounter) warns() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func TestRunLoopSkipsTickWhileCycleInFlight(t *testing.T) {
	f := newFixture(Config{Pairs: []string{"BTC/USDT"}, MinLiquidity: 1, ReferenceExchange: "binance"})
	f.liquidity.scores["BTC/USDT"] = 2
	release := make(chan struct{})
	f.detector.block = release

	counter := &warnCounter{}
	users := &fakeUserStore{traders: nil}
	cycle := New(f.cycle.cfg, f.liquidity, f.detector, f.risk, nil, users, f.history, f.sweeper, f.alerter, f.closer, slog.New(counter))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cycle.RunLoop(ctx, 10*time.Millisecond) }()

	// The first tick is stuck in the detector; later ticks must fire on
	// schedule and be skipped rather than queued behind it.
	deadline := time.After(time.Second)
	for counter.warns() == 0 {
		select {
		case <-deadline:
			t.Fatal("no tick was skipped while the first one was in flight")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	close(release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("RunLoop did not wait out the in-flight tick")
	}

	assert.Equal(t, 1, f.detector.callCount(), "skipped ticks never reach the detector")
	assert.GreaterOrEqual(t, f.closer.closed, 1)
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	f := newFixture(Config{Pairs: nil, MinLiquidity: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.cycle.RunLoop(ctx, 10*time.Millisecond) }()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("RunLoop did not stop on context cancellation")
	}

	assert.GreaterOrEqual(t, f.closer.closed, 1)
}
