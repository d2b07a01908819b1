package trader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jonathanbbiles/BorB4/enum"
	"github.com/jonathanbbiles/BorB4/exchange"
	"github.com/jonathanbbiles/BorB4/journal"
	"github.com/jonathanbbiles/BorB4/models"
	"github.com/jonathanbbiles/BorB4/notify"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeBroker is a scriptable brokerage. New orders rest as "new" unless
// onSubmit changes the record.
type fakeBroker struct {
	mu sync.Mutex

	account   models.AccountSnapshot
	position  *models.Position
	open      []models.OrderRecord
	orders    map[string]models.OrderRecord
	submitted []models.OrderRequest
	canceled  []string
	seq       int

	accountErr  error
	positionErr error
	openErr     error
	getErr      error
	cancelErr   error
	// queueCancels acknowledges cancels but leaves the order working, the
	// way pending_cancel and CANCEL_QUEUED report it
	queueCancels bool
	submitErr    func(req models.OrderRequest) error
	onSubmit     func(req models.OrderRequest, rec *models.OrderRecord)

	// when set SubmitOrder signals entered and blocks until gate is closed
	gate    chan struct{}
	entered chan struct{}
}

var _ exchange.Brokerage = (*fakeBroker)(nil)

func newFakeBroker(cash string) *fakeBroker {
	return &fakeBroker{
		account: models.AccountSnapshot{Cash: d(cash), BuyingPower: d(cash), Equity: d(cash)},
		orders:  make(map[string]models.OrderRecord),
	}
}

func (f *fakeBroker) GetAccount(_ context.Context) (models.AccountSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.account, f.accountErr
}

func (f *fakeBroker) GetPosition(_ context.Context, _ string) (*models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.positionErr != nil {
		return nil, f.positionErr
	}
	if f.position == nil {
		return nil, nil
	}
	p := *f.position
	return &p, nil
}

func (f *fakeBroker) ListOpenOrders(_ context.Context, _ string) ([]models.OrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OrderRecord(nil), f.open...), f.openErr
}

func (f *fakeBroker) SubmitOrder(_ context.Context, req models.OrderRequest) (models.OrderRecord, error) {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		if err := f.submitErr(req); err != nil {
			return models.OrderRecord{}, err
		}
	}
	f.seq++
	f.submitted = append(f.submitted, req)
	rec := models.OrderRecord{
		ID:            fmt.Sprintf("ord-%d", f.seq),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Kind:          req.Kind,
		Status:        enum.StatusNew,
		Quantity:      req.Quantity,
	}
	if f.onSubmit != nil {
		f.onSubmit(req, &rec)
	}
	f.orders[rec.ID] = rec
	return rec, nil
}

func (f *fakeBroker) GetOrder(_ context.Context, id string) (models.OrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return models.OrderRecord{}, f.getErr
	}
	rec, ok := f.orders[id]
	if !ok {
		return models.OrderRecord{}, fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, id)
	}
	return rec, nil
}

func (f *fakeBroker) CancelOrder(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.canceled = append(f.canceled, id)
	rec, ok := f.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, id)
	}
	if !rec.Status.IsTerminal() {
		rec.Status = enum.StatusCanceled
		if f.queueCancels {
			rec.Status = enum.StatusPending
		}
		f.orders[id] = rec
	}
	return nil
}

func (f *fakeBroker) setOrder(rec models.OrderRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[rec.ID] = rec
}

func (f *fakeBroker) order(id string) models.OrderRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id]
}

func (f *fakeBroker) setPosition(p *models.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = p
}

func (f *fakeBroker) submissions() []models.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OrderRequest(nil), f.submitted...)
}

func (f *fakeBroker) cancellations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.canceled...)
}

// fillAndHold fills every order on submit. Buys create the position, sells
// leave it in place so the exit legs can be inspected.
func (f *fakeBroker) fillAndHold(price string) {
	f.onSubmit = func(req models.OrderRequest, rec *models.OrderRecord) {
		if req.Side != enum.SideBuy {
			return
		}
		rec.Status = enum.StatusFilled
		rec.FilledQuantity = req.Quantity
		rec.FilledAvgPrice = d(price)
		qty := req.Quantity
		if f.position != nil {
			qty = qty.Add(f.position.Quantity)
		}
		f.position = &models.Position{
			Symbol:            req.Symbol,
			Quantity:          qty,
			CostBasis:         qty.Mul(d(price)),
			AvailableQuantity: qty,
		}
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(dur time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(dur)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.msgs))
	for _, m := range n.msgs {
		out = append(out, m.Title)
	}
	return out
}

type fakeLocker struct {
	acquired bool
	err      error
	unlocked int
}

func (l *fakeLocker) TryLock(_ context.Context, _ string) (func(), bool, error) {
	if l.err != nil || !l.acquired {
		return func() {}, false, l.err
	}
	return func() { l.unlocked++ }, true, nil
}

// countingSleep never blocks and counts the waits it was asked for.
type countingSleep struct {
	mu    sync.Mutex
	calls int
	hook  func(call int)
}

func (s *countingSleep) Sleep(_ context.Context, _ time.Duration) error {
	s.mu.Lock()
	s.calls++
	n := s.calls
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

type harness struct {
	broker   *fakeBroker
	clock    *fakeClock
	journal  *journal.Memory
	notifier *recordingNotifier
	sleep    *countingSleep
	trader   *Trader
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.BuyBuffer = decimal.NewFromInt(1)
	p.Retry.Backoff = time.Millisecond
	p.Retry.MaxBackoff = time.Millisecond
	return p
}

func newHarness(t testing.TB, broker *fakeBroker, policy Policy) *harness {
	t.Helper()
	h := &harness{
		broker:   broker,
		clock:    newFakeClock(),
		journal:  journal.NewMemory(500),
		notifier: &recordingNotifier{},
		sleep:    &countingSleep{},
	}
	tr, err := NewTrader("BTC/USD", policy, Deps{
		Broker:   broker,
		Journal:  h.journal,
		Notifier: h.notifier,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      h.clock.Now,
		Sleep:    h.sleep.Sleep,
	})
	if err != nil {
		t.Fatalf("NewTrader: %v", err)
	}
	h.trader = tr
	return h
}

func buySignal(price float64) models.Signal {
	return models.Signal{Symbol: "BTC/USD", EntryReady: true, Strength: 0.01, Price: price}
}

func holdSignal(price float64) models.Signal {
	return models.Signal{Symbol: "BTC/USD", Strength: 0.01, Price: price}
}
