// Package manager drives trade cycles for every enabled symbol.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonathanbbiles/BorB4/api_helper"
	"github.com/jonathanbbiles/BorB4/entities/signaler"
	"github.com/jonathanbbiles/BorB4/entities/trader"
	"github.com/jonathanbbiles/BorB4/metrics"
	"github.com/jonathanbbiles/BorB4/models"
)

// PriceSource supplies the rolling close history the evaluator runs on.
type PriceSource interface {
	Closes(symbol string) []float64
}

// TraderFactory builds the controller for a symbol the first time it is
// dispatched.
type TraderFactory func(symbol string) (*trader.Trader, error)

type ManagerCfg struct {
	Interval       time.Duration
	MaxConcurrency int
	// MinHistory is the number of closes a symbol needs before it is
	// evaluated at all.
	MinHistory int
	// ShutdownTimeout bounds how long Run waits for in-flight cycles.
	ShutdownTimeout time.Duration
}

func DefaultManagerCfg() ManagerCfg {
	return ManagerCfg{
		Interval:        15 * time.Second,
		MaxConcurrency:  4,
		MinHistory:      36,
		ShutdownTimeout: 90 * time.Second,
	}
}

// Manager is the periodic driver. Each pass dispatches one cycle per enabled
// symbol, each in its own goroutine, with at most MaxConcurrency running at
// once. A symbol whose previous cycle is still running is skipped.
type Manager struct {
	mu        sync.RWMutex // protects the map
	wg        sync.WaitGroup
	cfg       ManagerCfg
	prices    PriceSource
	evaluator signaler.Evaluator
	toggles   *api_helper.ToggleStore
	factory   TraderFactory
	resources map[string]*trader.TraderResource
	slots     chan struct{}
	logger    *slog.Logger
}

func NewManager(cfg ManagerCfg, prices PriceSource, evaluator signaler.Evaluator, toggles *api_helper.ToggleStore, factory TraderFactory, logger *slog.Logger) (*Manager, error) {
	if prices == nil || evaluator == nil || toggles == nil || factory == nil {
		return nil, errors.New("manager: prices, evaluator, toggles and factory are required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("manager: interval must be positive, got %s", cfg.Interval)
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:       cfg,
		prices:    prices,
		evaluator: evaluator,
		toggles:   toggles,
		factory:   factory,
		resources: make(map[string]*trader.TraderResource),
		slots:     make(chan struct{}, cfg.MaxConcurrency),
		logger:    logger.With("component", "manager"),
	}, nil
}

// Run dispatches a pass every Interval until ctx is done, then waits for the
// cycles already running.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("scheduler started", "interval", m.cfg.Interval, "max_concurrency", m.cfg.MaxConcurrency)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("scheduler stopping, waiting for in-flight cycles")
			return m.StopAll(m.cfg.ShutdownTimeout)
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick dispatches one pass and returns the number of cycles started. It never
// blocks on a busy symbol.
func (m *Manager) Tick(ctx context.Context) int {
	dispatched := 0
	for _, symbol := range m.toggles.Enabled() {
		if ctx.Err() != nil {
			break
		}
		closes := m.prices.Closes(symbol)
		if len(closes) < m.cfg.MinHistory {
			m.logger.Debug("not enough price history", "symbol", symbol, "have", len(closes), "need", m.cfg.MinHistory)
			continue
		}
		res, err := m.safeGetOrAddTraderResource(symbol)
		if err != nil {
			m.logger.Error("could not build trader", "symbol", symbol, "error", err)
			continue
		}
		if !res.TryStart() {
			m.logger.Debug("previous cycle still running", "symbol", symbol)
			metrics.IncSkips("in_flight")
			continue
		}
		dispatched++
		m.wg.Add(1)
		go m.runCycle(ctx, res, symbol)
	}
	return dispatched
}

func (m *Manager) runCycle(ctx context.Context, res *trader.TraderResource, symbol string) {
	defer m.wg.Done()
	defer func() { res.Finish(time.Now()) }()

	select {
	case m.slots <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-m.slots }()

	// evaluate once a slot is held so the signal is as fresh as possible
	sig := m.evaluator.Evaluate(symbol, m.prices.Closes(symbol))
	if err := res.Trader.RunCycle(ctx, sig); err != nil {
		m.logger.Error("trade cycle failed", "symbol", symbol, "phase", res.Trader.State().Phase.String(), "error", err)
	}
}

// StopAll waits up to timeout for in-flight cycles to return.
func (m *Manager) StopAll(timeout time.Duration) error {
	doneCh := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(doneCh)
	}()

	if timeout <= 0 {
		<-doneCh
		return nil
	}
	select {
	case <-doneCh:
		m.logger.Info("all trade cycles stopped cleanly")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timed out after %s waiting for trade cycles", timeout)
	}
}

func (m *Manager) safeGetOrAddTraderResource(symbol string) (*trader.TraderResource, error) {
	m.mu.RLock()
	res, ok := m.resources[symbol]
	m.mu.RUnlock()
	if ok {
		return res, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if res, ok := m.resources[symbol]; ok {
		return res, nil
	}
	t, err := m.factory(symbol)
	if err != nil {
		return nil, err
	}
	res = trader.NewTraderResource(t)
	m.resources[symbol] = res
	m.logger.Info("trader created", "symbol", symbol)
	return res, nil
}

func (m *Manager) safeGetTraderResources() map[string]*trader.TraderResource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resources := make(map[string]*trader.TraderResource, len(m.resources))
	for symbol, resource := range m.resources {
		resources[symbol] = resource
	}
	return resources
}

// States returns the last published state of every symbol traded so far.
func (m *Manager) States() map[string]models.SymbolTradeState {
	out := make(map[string]models.SymbolTradeState)
	for symbol, res := range m.safeGetTraderResources() {
		out[symbol] = res.Trader.State()
	}
	return out
}

// SymbolStatus is a symbol's published state plus what the scheduler knows
// about it.
type SymbolStatus struct {
	State    models.SymbolTradeState
	InFlight bool
	LastRun  time.Time
}

func (m *Manager) Statuses() map[string]SymbolStatus {
	out := make(map[string]SymbolStatus)
	for symbol, res := range m.safeGetTraderResources() {
		out[symbol] = SymbolStatus{
			State:    res.Trader.State(),
			InFlight: res.InFlight(),
			LastRun:  res.LastRun(),
		}
	}
	return out
}

func (m *Manager) Toggles() *api_helper.ToggleStore {
	return m.toggles
}
