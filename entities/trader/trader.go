// Package trader runs one symbol's buy -> sell cycle against a brokerage.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jonathanbbiles/BorB4/enum"
	"github.com/jonathanbbiles/BorB4/exchange"
	"github.com/jonathanbbiles/BorB4/journal"
	"github.com/jonathanbbiles/BorB4/metrics"
	"github.com/jonathanbbiles/BorB4/models"
	"github.com/jonathanbbiles/BorB4/notify"
	"github.com/jonathanbbiles/BorB4/retry"
)

// Locker guards a symbol across processes. redislock.Locker satisfies it.
type Locker interface {
	TryLock(ctx context.Context, symbol string) (unlock func(), acquired bool, err error)
}

// Deps are the collaborators of a Trader. Only Broker is required.
type Deps struct {
	Broker   exchange.Brokerage
	Journal  journal.Recorder
	Notifier notify.Notifier
	Locker   Locker
	Logger   *slog.Logger
	Now      func() time.Time
	Sleep    SleepFunc
}

// Trader is the controller for one symbol. It exclusively owns that symbol's
// SymbolTradeState; every mutation happens inside RunCycle while mu is held.
type Trader struct {
	symbol   string
	policy   Policy
	broker   exchange.Brokerage
	sizer    Sizer
	waiter   *FillWaiter
	journal  journal.Recorder
	notifier notify.Notifier
	locker   Locker
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	state models.SymbolTradeState
	snap  atomic.Pointer[models.SymbolTradeState]

	// set once recover has tried to cancel the entries left open by an abort
	recoveryCancelSent bool
}

// NewTrader builds a controller in the idle phase.
func NewTrader(symbol string, policy Policy, deps Deps) (*Trader, error) {
	if symbol == "" {
		return nil, errors.New("trader: symbol is required")
	}
	if deps.Broker == nil {
		return nil, errors.New("trader: brokerage is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("trader: invalid policy: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "trader", "symbol", symbol)
	if deps.Journal == nil {
		deps.Journal = journal.NewLogRecorder(logger)
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLogNotifier(logger)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	t := &Trader{
		symbol:   symbol,
		policy:   policy,
		broker:   deps.Broker,
		sizer:    NewSizer(policy),
		waiter:   NewFillWaiter(deps.Broker, deps.Sleep),
		journal:  deps.Journal,
		notifier: deps.Notifier,
		locker:   deps.Locker,
		logger:   logger,
		now:      deps.Now,
	}
	t.publish()
	return t, nil
}

func (t *Trader) Symbol() string {
	return t.symbol
}

// State returns the state as of the end of the last cycle.
func (t *Trader) State() models.SymbolTradeState {
	return *t.snap.Load()
}

func (t *Trader) publish() {
	s := t.state.Snapshot()
	t.snap.Store(&s)
}

// RunCycle advances the symbol by one step for sig. A call that arrives while
// another cycle for the same symbol is running is coalesced into a no-op.
// Skips return nil; transport failures during submission or polling are
// returned after being journaled.
func (t *Trader) RunCycle(ctx context.Context, sig models.Signal) error {
	if !t.mu.TryLock() {
		t.record(ctx, journal.EventCoalesced, map[string]any{"holder": "local"})
		metrics.IncSkips("coalesced")
		return nil
	}
	defer t.mu.Unlock()

	start := time.Now()
	defer func() {
		t.publish()
		metrics.ObserveCycle(t.symbol, time.Since(start).Seconds())
	}()

	if err := t.validate(sig); err != nil {
		t.record(ctx, journal.EventInvalidSignal, map[string]any{"error": err.Error()})
		metrics.IncSkips("invalid_signal")
		return fmt.Errorf("%s: %w", t.symbol, err)
	}

	if t.locker != nil {
		unlock, acquired, err := t.locker.TryLock(ctx, t.symbol)
		if err != nil {
			t.logger.Warn("symbol lock unavailable, skipping cycle", "error", err)
			return fmt.Errorf("%s: acquire symbol lock: %w", t.symbol, err)
		}
		if !acquired {
			t.record(ctx, journal.EventCoalesced, map[string]any{"holder": "remote"})
			metrics.IncSkips("coalesced")
			return nil
		}
		defer unlock()
	}

	ref := decimal.NewFromFloat(sig.Price)
	switch t.state.Phase {
	case enum.PhaseAborted:
		return t.recover(ctx)
	case enum.PhaseEntrySubmitted:
		if t.state.HasPendingEntry() {
			return t.verifyEntry(ctx, sig, ref)
		}
		t.state.Phase = enum.PhaseIdle
		return t.tryEntry(ctx, sig, ref)
	case enum.PhaseEntryFilled:
		if t.shouldForceExit(sig, ref) {
			return t.forceExit(ctx, ref)
		}
		return t.placeExit(ctx)
	case enum.PhaseExitSubmitted:
		return t.manageExit(ctx, sig, ref)
	default:
		return t.tryEntry(ctx, sig, ref)
	}
}

func (t *Trader) validate(sig models.Signal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	if exchange.NormalizeSymbol(sig.Symbol) != exchange.NormalizeSymbol(t.symbol) {
		return errors.Join(ErrInvalidSignalData, fmt.Errorf("signal is for %s", sig.Symbol))
	}
	return nil
}

func (t *Trader) record(ctx context.Context, typ journal.EventType, details map[string]any) {
	t.journal.Record(ctx, journal.Event{
		Timestamp: t.now(),
		Type:      typ,
		Symbol:    t.symbol,
		Details:   details,
	})
}

func (t *Trader) notify(ctx context.Context, level notify.Level, title, text string) {
	err := t.notifier.Notify(ctx, notify.Message{Level: level, Symbol: t.symbol, Title: title, Text: text})
	if err != nil {
		t.logger.Warn("notification failed", "title", title, "error", err)
	}
}

// withError adds err and, for transport failures, the upstream status and
// body to details.
func withError(details map[string]any, err error) map[string]any {
	if details == nil {
		details = make(map[string]any)
	}
	details["error"] = err.Error()
	var te *exchange.TransportError
	if errors.As(err, &te) {
		details["op"] = te.Op
		if te.StatusCode != 0 {
			details["status_code"] = te.StatusCode
		}
		if te.Body != "" {
			details["body"] = te.Body
		}
	}
	return details
}

// readFailed journals a failed read; the symbol is skipped for this cycle.
func (t *Trader) readFailed(ctx context.Context, op string, err error) {
	t.logger.Warn("brokerage read failed, skipping symbol", "op", op, "error", err)
	t.record(ctx, journal.EventTransportError, withError(map[string]any{"read": op}, err))
}

func (t *Trader) onRetry(ctx context.Context, op string) retry.OnRetryFunc {
	return func(attempt int, err error, wait time.Duration) {
		t.logger.Warn("retrying brokerage call", "op", op, "attempt", attempt, "wait", wait, "error", err)
		t.record(ctx, journal.EventTransportError, withError(map[string]any{
			"call":    op,
			"attempt": attempt,
			"retry":   true,
		}, err))
	}
}

func (t *Trader) submit(ctx context.Context, req models.OrderRequest) (models.OrderRecord, error) {
	rec, err := retry.Do(ctx, t.policy.Retry, exchange.IsRetryable, t.onRetry(ctx, "submit_order"), func() (models.OrderRecord, error) {
		return t.broker.SubmitOrder(ctx, req)
	})
	if err != nil {
		return rec, err
	}
	if rec.ID == "" {
		return rec, &exchange.TransportError{Op: "submit order", Err: errors.New("brokerage returned no order id")}
	}
	metrics.IncOrders(req.Side.String(), req.Kind.String())
	return rec, nil
}

func (t *Trader) cancel(ctx context.Context, orderID string) error {
	return retry.DoVoid(ctx, t.policy.Retry, exchange.IsRetryable, t.onRetry(ctx, "cancel_order"), func() error {
		return t.broker.CancelOrder(ctx, orderID)
	})
}

// abort parks the symbol until recover reconciles it against the brokerage.
func (t *Trader) abort(ctx context.Context, reason string, err error) error {
	now := t.now()
	t.state.Phase = enum.PhaseAborted
	t.state.AbortedAt = now
	t.state.LastError = err.Error()
	t.recoveryCancelSent = false
	t.record(ctx, journal.EventAborted, withError(map[string]any{"reason": reason}, err))
	metrics.IncAborts()
	t.notify(ctx, notify.LevelError, "aborted", fmt.Sprintf("%s: %v", reason, err))
	return fmt.Errorf("%s aborted: %s: %w", t.symbol, reason, err)
}
