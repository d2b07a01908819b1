package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jonathanbbiles/BorB4/api_helper"
	"github.com/jonathanbbiles/BorB4/entities/trader"
	"github.com/jonathanbbiles/BorB4/enum"
	"github.com/jonathanbbiles/BorB4/exchange/paper"
	"github.com/jonathanbbiles/BorB4/journal"
	"github.com/jonathanbbiles/BorB4/models"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type staticPrices map[string][]float64

func (p staticPrices) Closes(symbol string) []float64 {
	return append([]float64(nil), p[symbol]...)
}

func history(n int, last float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = last
	}
	return out
}

// stubEvaluator always wants in at the last close. When block is set every
// call waits on it.
type stubEvaluator struct {
	mu        sync.Mutex
	calls     int
	active    int
	maxActive int
	block     chan struct{}
}

func (e *stubEvaluator) Evaluate(symbol string, prices []float64) models.Signal {
	e.mu.Lock()
	e.calls++
	e.active++
	if e.active > e.maxActive {
		e.maxActive = e.active
	}
	e.mu.Unlock()

	if e.block != nil {
		<-e.block
	}

	e.mu.Lock()
	e.active--
	e.mu.Unlock()
	return models.Signal{Symbol: symbol, EntryReady: true, Strength: 0.01, Price: prices[len(prices)-1]}
}

func (e *stubEvaluator) stats() (calls, maxActive int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls, e.maxActive
}

func paperFactory(b *paper.Broker, rec journal.Recorder) TraderFactory {
	policy := trader.DefaultPolicy()
	policy.BuyBuffer = decimal.NewFromInt(1)
	policy.FillPollInterval = time.Millisecond
	policy.FillMaxAttempts = 2
	return func(symbol string) (*trader.Trader, error) {
		return trader.NewTrader(symbol, policy, trader.Deps{Broker: b, Journal: rec, Logger: quiet})
	}
}

func testCfg(maxConcurrency int) ManagerCfg {
	cfg := DefaultManagerCfg()
	cfg.Interval = time.Hour
	cfg.MaxConcurrency = maxConcurrency
	cfg.MinHistory = 5
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

func TestTickTradesEnabledSymbols(t *testing.T) {
	broker := paper.NewBroker(decimal.NewFromInt(1000))
	broker.SetPrice("BTC/USD", decimal.NewFromInt(100))
	broker.SetPrice("ETH/USD", decimal.NewFromInt(10))

	toggles := api_helper.NewToggleStore([]string{"BTC/USD", "ETH/USD", "SOL/USD"}, true)
	_ = toggles.Set("ETH/USD", false)
	prices := staticPrices{
		"BTC/USD": history(10, 100),
		"ETH/USD": history(10, 10),
		"SOL/USD": history(2, 50), // not enough history
	}
	rec := journal.NewMemory(100)
	m, err := NewManager(testCfg(2), prices, &stubEvaluator{}, toggles, paperFactory(broker, rec), quiet)
	if err != nil {
		t.Fatal(err)
	}

	if n := m.Tick(context.Background()); n != 1 {
		t.Fatalf("dispatched %d cycles, want 1", n)
	}
	if err := m.StopAll(5 * time.Second); err != nil {
		t.Fatal(err)
	}

	states := m.States()
	if len(states) != 1 {
		t.Fatalf("expected only BTC/USD to have a trader, got %v", states)
	}
	if states["BTC/USD"].Phase != enum.PhaseExitSubmitted {
		t.Errorf("BTC/USD phase = %s, want exit_submitted", states["BTC/USD"].Phase)
	}
	pos, _ := broker.GetPosition(context.Background(), "BTC/USD")
	if pos == nil || !pos.Quantity.IsPositive() {
		t.Error("paper broker should hold the entry")
	}
	if len(rec.OfType(journal.EventEntryFilled)) != 1 {
		t.Error("expected an entry fill in the journal")
	}
	st := m.Statuses()["BTC/USD"]
	if st.InFlight || st.LastRun.IsZero() || st.State.Phase != enum.PhaseExitSubmitted {
		t.Errorf("status after the cycle = %+v", st)
	}
}

func TestTickSkipsSymbolStillInFlight(t *testing.T) {
	broker := paper.NewBroker(decimal.NewFromInt(1000))
	broker.SetPrice("BTC/USD", decimal.NewFromInt(100))
	toggles := api_helper.NewToggleStore([]string{"BTC/USD"}, true)
	eval := &stubEvaluator{block: make(chan struct{})}
	m, err := NewManager(testCfg(2), staticPrices{"BTC/USD": history(10, 100)}, eval, toggles, paperFactory(broker, journal.NewMemory(10)), quiet)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if n := m.Tick(ctx); n != 1 {
		t.Fatalf("first tick dispatched %d", n)
	}
	if n := m.Tick(ctx); n != 0 {
		t.Fatalf("second tick dispatched %d while the first cycle runs", n)
	}
	close(eval.block)
	if err := m.StopAll(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	if calls, _ := eval.stats(); calls != 1 {
		t.Errorf("evaluator calls = %d, want 1", calls)
	}
	if n := m.Tick(ctx); n != 1 {
		t.Errorf("symbol should be dispatchable again, got %d", n)
	}
	_ = m.StopAll(5 * time.Second)
}

func TestTickBoundsConcurrency(t *testing.T) {
	broker := paper.NewBroker(decimal.NewFromInt(1000))
	symbols := []string{"A/USD", "B/USD", "C/USD", "D/USD"}
	prices := staticPrices{}
	for _, s := range symbols {
		prices[s] = history(10, 1)
		broker.SetPrice(s, decimal.NewFromInt(1))
	}
	eval := &stubEvaluator{block: make(chan struct{})}
	m, err := NewManager(testCfg(2), prices, eval, api_helper.NewToggleStore(symbols, true), paperFactory(broker, journal.NewMemory(10)), quiet)
	if err != nil {
		t.Fatal(err)
	}

	if n := m.Tick(context.Background()); n != 4 {
		t.Fatalf("dispatched %d, want 4", n)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if calls, _ := eval.stats(); calls == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	if calls, _ := eval.stats(); calls != 2 {
		t.Fatalf("with 2 slots exactly 2 cycles should run, got %d", calls)
	}
	close(eval.block)
	if err := m.StopAll(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	if calls, maxActive := eval.stats(); calls != 4 || maxActive > 2 {
		t.Errorf("calls = %d, max concurrent = %d", calls, maxActive)
	}
}

func TestFactoryErrorSkipsSymbol(t *testing.T) {
	factory := func(string) (*trader.Trader, error) { return nil, errors.New("no credentials") }
	m, err := NewManager(testCfg(1), staticPrices{"BTC/USD": history(10, 1)}, &stubEvaluator{}, api_helper.NewToggleStore([]string{"BTC/USD"}, true), factory, quiet)
	if err != nil {
		t.Fatal(err)
	}
	if n := m.Tick(context.Background()); n != 0 {
		t.Errorf("dispatched %d with a failing factory", n)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	broker := paper.NewBroker(decimal.NewFromInt(1000))
	broker.SetPrice("BTC/USD", decimal.NewFromInt(100))
	cfg := testCfg(1)
	cfg.Interval = 10 * time.Millisecond
	m, err := NewManager(cfg, staticPrices{"BTC/USD": history(10, 100)}, &stubEvaluator{}, api_helper.NewToggleStore([]string{"BTC/USD"}, true), paperFactory(broker, journal.NewMemory(100)), quiet)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, ok := m.States()["BTC/USD"]; !ok {
		t.Error("expected the symbol to have been traded")
	}
}

func TestNewManagerValidates(t *testing.T) {
	toggles := api_helper.NewToggleStore(nil, true)
	if _, err := NewManager(testCfg(1), nil, &stubEvaluator{}, toggles, paperFactory(nil, nil), quiet); err == nil {
		t.Error("expected an error without a price source")
	}
	cfg := testCfg(1)
	cfg.Interval = 0
	if _, err := NewManager(cfg, staticPrices{}, &stubEvaluator{}, toggles, paperFactory(nil, nil), quiet); err == nil {
		t.Error("expected an error for a zero interval")
	}
}

type countingSink struct {
	mu    sync.Mutex
	ticks []models.Tick
}

func (s *countingSink) Ingest(t models.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, t)
}

func TestTickRouterFansOutKnownSymbols(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	r := NewTickRouter(api_helper.NewToggleStore([]string{"BTC/USD"}, false), a)
	r.AddSink(b)

	r.Ingest(models.Tick{Symbol: "BTC/USD", Price: 100})
	r.Ingest(models.Tick{Symbol: "DOGE/USD", Price: 1})
	r.Ingest(models.Tick{Symbol: "BTC/USD", Price: 0})

	if len(a.ticks) != 1 || len(b.ticks) != 1 {
		t.Errorf("sinks got %d and %d ticks, want 1 each", len(a.ticks), len(b.ticks))
	}
	if r.Dropped() != 2 {
		t.Errorf("dropped = %d, want 2", r.Dropped())
	}
}
