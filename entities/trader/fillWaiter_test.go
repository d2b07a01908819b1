package trader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonathanbbiles/BorB4/enum"
	"github.com/jonathanbbiles/BorB4/exchange"
	"github.com/jonathanbbiles/BorB4/models"
)

func TestAwaitFillsAfterPolls(t *testing.T) {
	broker := newFakeBroker("0")
	broker.setOrder(models.OrderRecord{ID: "a", Status: enum.StatusNew})
	sleep := &countingSleep{hook: func(call int) {
		if call == 2 {
			broker.setOrder(models.OrderRecord{ID: "a", Status: enum.StatusFilled, FilledQuantity: d("1"), FilledAvgPrice: d("5")})
		}
	}}

	rec, err := NewFillWaiter(broker, sleep.Sleep).Await(context.Background(), "a", time.Second, 20)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if !rec.IsFilled() || !rec.FilledAvgPrice.Equal(d("5")) {
		t.Errorf("unexpected record %+v", rec)
	}
	if sleep.calls != 2 {
		t.Errorf("slept %d times, want 2", sleep.calls)
	}
}

func TestAwaitTimesOut(t *testing.T) {
	broker := newFakeBroker("0")
	broker.setOrder(models.OrderRecord{ID: "a", Status: enum.StatusPartiallyFilled, FilledQuantity: d("0.3")})
	sleep := &countingSleep{}

	rec, err := NewFillWaiter(broker, sleep.Sleep).Await(context.Background(), "a", 3*time.Second, 5)
	if !errors.Is(err, ErrFillTimeout) {
		t.Fatalf("expected ErrFillTimeout, got %v", err)
	}
	var te *FillTimeoutError
	if !errors.As(err, &te) || te.Attempts != 5 || !te.Last.FilledQuantity.Equal(d("0.3")) {
		t.Errorf("unexpected timeout %+v", te)
	}
	if rec.Status != enum.StatusPartiallyFilled {
		t.Errorf("last record = %+v", rec)
	}
	if sleep.calls != 4 {
		t.Errorf("slept %d times, want 4", sleep.calls)
	}
}

func TestAwaitTransportErrorAbortsEarly(t *testing.T) {
	broker := newFakeBroker("0")
	broker.getErr = &exchange.TransportError{Op: "get order", StatusCode: 500}
	sleep := &countingSleep{}

	_, err := NewFillWaiter(broker, sleep.Sleep).Await(context.Background(), "a", time.Second, 20)
	var te *exchange.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if errors.Is(err, ErrFillTimeout) {
		t.Error("a transport failure is not a timeout")
	}
	if sleep.calls != 0 {
		t.Errorf("slept %d times before giving up", sleep.calls)
	}
}

func TestAwaitClosedOrder(t *testing.T) {
	broker := newFakeBroker("0")
	broker.setOrder(models.OrderRecord{ID: "a", Status: enum.StatusRejected})

	_, err := NewFillWaiter(broker, (&countingSleep{}).Sleep).Await(context.Background(), "a", time.Second, 3)
	var closed *OrderClosedError
	if !errors.As(err, &closed) || closed.Record.Status != enum.StatusRejected {
		t.Fatalf("expected OrderClosedError, got %v", err)
	}
}

func TestAwaitHonoursContext(t *testing.T) {
	broker := newFakeBroker("0")
	broker.setOrder(models.OrderRecord{ID: "a", Status: enum.StatusNew})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFillWaiter(broker, nil).Await(ctx, "a", time.Hour, 3)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
