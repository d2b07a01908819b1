package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathanbbiles/BorB4/exchange"
	"github.com/jonathanbbiles/BorB4/models"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FillWaiter polls an order at a fixed interval until it fills, closes, or
// the attempt budget is spent.
type FillWaiter struct {
	orders exchange.OrderGateway
	sleep  SleepFunc
}

func NewFillWaiter(orders exchange.OrderGateway, sleep SleepFunc) *FillWaiter {
	if sleep == nil {
		sleep = sleepCtx
	}
	return &FillWaiter{orders: orders, sleep: sleep}
}

// Await returns the filled record. Otherwise it returns a *FillTimeoutError,
// an *OrderClosedError, the get-order failure as is, or the context error.
func (w *FillWaiter) Await(ctx context.Context, orderID string, interval time.Duration, maxAttempts int) (models.OrderRecord, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var last models.OrderRecord
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		rec, err := w.orders.GetOrder(ctx, orderID)
		if err != nil {
			return last, err
		}
		last = rec
		if rec.IsFilled() {
			return rec, nil
		}
		if rec.Status.IsTerminal() {
			return rec, &OrderClosedError{Record: rec}
		}
		if attempt == maxAttempts {
			break
		}
		if err := w.sleep(ctx, interval); err != nil {
			return last, fmt.Errorf("waiting on order %s: %w", orderID, err)
		}
	}
	return last, &FillTimeoutError{OrderID: orderID, Attempts: maxAttempts, Last: last}
}
