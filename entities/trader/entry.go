package trader

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jonathanbbiles/BorB4/enum"
	"github.com/jonathanbbiles/BorB4/journal"
	"github.com/jonathanbbiles/BorB4/metrics"
	"github.com/jonathanbbiles/BorB4/models"
	"github.com/jonathanbbiles/BorB4/notify"
)

// EvaluateGuards runs the pre-entry guards at price without placing
// anything. It reads state and brokerage only, so repeated calls with no
// order activity in between agree.
func (t *Trader) EvaluateGuards(ctx context.Context, price decimal.Decimal) (SkipReason, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.guards(ctx, price)
}

// guards returns SkipNone when an entry may be attempted.
func (t *Trader) guards(ctx context.Context, price decimal.Decimal) (SkipReason, error) {
	if t.now().Before(t.state.CooldownUntil) {
		return SkipCooldown, nil
	}
	open, err := t.broker.ListOpenOrders(ctx, t.symbol)
	if err != nil {
		return SkipNone, fmt.Errorf("list open orders: %w", err)
	}
	if len(open) > 0 {
		return SkipOpenOrder, nil
	}
	pos, err := t.broker.GetPosition(ctx, t.symbol)
	if err != nil {
		return SkipNone, fmt.Errorf("get position: %w", err)
	}
	if pos != nil && pos.MarketValue(price).GreaterThanOrEqual(t.policy.MinPositionNotional) {
		return SkipPositionHeld, nil
	}
	return SkipNone, nil
}

func (t *Trader) tryEntry(ctx context.Context, sig models.Signal, ref decimal.Decimal) error {
	now := t.now()
	if t.state.Phase == enum.PhaseComplete && !now.Before(t.state.CooldownUntil) {
		t.state.Phase = enum.PhaseIdle
	}
	if !sig.EntryReady {
		return nil
	}

	reason, err := t.guards(ctx, ref)
	if err != nil {
		t.readFailed(ctx, "guards", err)
		return nil
	}
	if reason != SkipNone {
		details := map[string]any{"reason": string(reason)}
		if reason == SkipCooldown {
			details["cooldown_until"] = t.state.CooldownUntil
		}
		t.record(ctx, journal.EventGuardSkip, details)
		metrics.IncSkips(string(reason))
		return nil
	}

	acct, err := t.broker.GetAccount(ctx)
	if err != nil {
		t.readFailed(ctx, "account", err)
		return nil
	}
	limit := EntryLimitPrice(ref, t.policy.BuyBuffer, t.policy.PricePrecision)
	alloc := t.sizer.Size(acct, sig.Strength, limit)
	if alloc.Skipped() {
		t.record(ctx, journal.EventSizingSkip, map[string]any{
			"reason":   string(alloc.Skip),
			"cash":     acct.Cash.String(),
			"equity":   acct.Equity.String(),
			"strength": sig.Strength,
		})
		metrics.IncSkips(string(alloc.Skip))
		return nil
	}

	req := models.NewOrderRequest(t.symbol, enum.SideBuy, enum.KindLimit).
		WithQuantity(alloc.Quantity).
		WithLimitPrice(limit)
	rec, err := t.submit(ctx, req)
	if err != nil {
		t.record(ctx, journal.EventEntrySubmitFailed, withError(req.LogAttrs(), err))
		t.notify(ctx, notify.LevelError, "buy failed", err.Error())
		return fmt.Errorf("%s: submit entry: %w", t.symbol, err)
	}

	t.setPendingEntry(rec, req, now)
	t.state.EntryTimestamp = now
	t.state.EntryPrice = limit
	t.state.EntryQuantity = decimal.Zero
	t.startCooldown(now)

	details := t.pendingLogAttrs()
	details["notional"] = alloc.Notional.String()
	details["strength"] = sig.Strength
	t.record(ctx, journal.EventEntrySubmitted, details)
	return t.awaitEntry(ctx)
}

// awaitEntry waits on the pending entry. A timeout or transport failure
// leaves it tracked for verification on the next cycle.
func (t *Trader) awaitEntry(ctx context.Context) error {
	pe := t.state.PendingEntry
	rec, err := t.waiter.Await(ctx, pe.OrderID, t.policy.FillPollInterval, t.policy.FillMaxAttempts)

	var closed *OrderClosedError
	var timeout *FillTimeoutError
	switch {
	case err == nil:
		return t.settleEntry(ctx, rec)
	case errors.As(err, &closed):
		return t.settleEntry(ctx, closed.Record)
	case errors.As(err, &timeout):
		t.markAwaitingVerification()
		details := t.pendingLogAttrs()
		details["attempts"] = timeout.Attempts
		details["status"] = timeout.Last.Status.String()
		details["filled_qty"] = timeout.Last.FilledQuantity.String()
		t.record(ctx, journal.EventFillTimeout, details)
		metrics.IncFillTimeouts()
		return nil
	default:
		t.markAwaitingVerification()
		t.record(ctx, journal.EventTransportError, withError(t.pendingLogAttrs(), err))
		return fmt.Errorf("%s: await fill of %s: %w", t.symbol, pe.OrderID, err)
	}
}

// verifyEntry re-checks an entry that outlived its fill wait. A fill found
// now is settled. Otherwise the order is canceled and, once the broker
// reports it finished, the unfilled remainder goes out as a market order if
// the live signal still wants in. An order still working after an
// acknowledged cancel stays tracked and is checked again next cycle.
func (t *Trader) verifyEntry(ctx context.Context, sig models.Signal, ref decimal.Decimal) error {
	pe := t.state.PendingEntry

	rec, fetchErr := t.broker.GetOrder(ctx, pe.OrderID)
	if fetchErr == nil && rec.Status.IsTerminal() {
		if pe.CancelRequested && !rec.IsFilled() {
			return t.resolveCanceled(ctx, sig, ref, rec)
		}
		details := t.pendingLogAttrs()
		details["outcome"] = rec.Status.String()
		t.record(ctx, journal.EventVerification, details)
		return t.settleEntry(ctx, rec)
	}
	if pe.CancelRequested {
		if fetchErr != nil {
			t.record(ctx, journal.EventTransportError, withError(t.pendingLogAttrs(), fetchErr))
			return fmt.Errorf("%s: re-check canceled entry %s: %w", t.symbol, pe.OrderID, fetchErr)
		}
		t.holdCancelPending(ctx, rec)
		return nil
	}

	cancelErr := t.cancel(ctx, pe.OrderID)
	if fetchErr != nil && cancelErr != nil {
		return t.abort(ctx, "entry verification failed", errors.Join(fetchErr, cancelErr))
	}

	final, err := t.broker.GetOrder(ctx, pe.OrderID)
	if err != nil {
		if fetchErr != nil {
			return t.abort(ctx, "entry verification failed", errors.Join(fetchErr, err))
		}
		final = rec
	}
	if final.IsFilled() {
		details := t.pendingLogAttrs()
		details["outcome"] = "filled"
		t.record(ctx, journal.EventVerification, details)
		return t.settleEntry(ctx, final)
	}
	if !final.Status.IsTerminal() {
		if cancelErr != nil {
			t.record(ctx, journal.EventTransportError, withError(t.pendingLogAttrs(), cancelErr))
			return fmt.Errorf("%s: cancel stale entry %s: %w", t.symbol, pe.OrderID, cancelErr)
		}
		pe.CancelRequested = true
		t.holdCancelPending(ctx, final)
		return nil
	}
	return t.resolveCanceled(ctx, sig, ref, final)
}

// holdCancelPending journals an entry whose cancel is acknowledged but not
// yet final. The order stays the symbol's pending entry.
func (t *Trader) holdCancelPending(ctx context.Context, rec models.OrderRecord) {
	details := t.pendingLogAttrs()
	details["outcome"] = "cancel_pending"
	details["status"] = rec.Status.String()
	details["filled_qty"] = rec.FilledQuantity.String()
	t.record(ctx, journal.EventVerification, details)
}

// resolveCanceled decides what follows a finished, not fully filled entry:
// a market order for the remainder when the signal still holds, otherwise
// settlement of whatever filled.
func (t *Trader) resolveCanceled(ctx context.Context, sig models.Signal, ref decimal.Decimal, final models.OrderRecord) error {
	pe := t.state.PendingEntry
	remainder := pe.Request.Quantity.Sub(final.FilledQuantity)
	details := t.pendingLogAttrs()
	details["outcome"] = "canceled"
	details["status"] = final.Status.String()
	details["filled_qty"] = final.FilledQuantity.String()
	details["remainder"] = remainder.String()
	details["entry_ready"] = sig.EntryReady
	t.record(ctx, journal.EventVerification, details)

	if sig.EntryReady && !pe.Fallback && remainder.Mul(ref).GreaterThanOrEqual(t.policy.MinOrderNotional) {
		return t.submitFallback(ctx, final, remainder)
	}
	return t.settleEntry(ctx, final)
}

// submitFallback replaces the canceled limit entry with a market order for
// the quantity it left unfilled.
func (t *Trader) submitFallback(ctx context.Context, canceled models.OrderRecord, remainder decimal.Decimal) error {
	pe := t.state.PendingEntry
	req := models.NewOrderRequest(t.symbol, enum.SideBuy, enum.KindMarket).WithQuantity(remainder)
	rec, err := t.submit(ctx, req)
	if err != nil {
		t.record(ctx, journal.EventEntrySubmitFailed, withError(req.LogAttrs(), err))
		t.notify(ctx, notify.LevelError, "fallback buy failed", err.Error())
		if settleErr := t.settleEntry(ctx, canceled); settleErr != nil {
			return errors.Join(err, settleErr)
		}
		return fmt.Errorf("%s: submit fallback: %w", t.symbol, err)
	}

	priorQty := pe.PriorFilledQuantity.Add(canceled.FilledQuantity)
	priorNotional := pe.PriorFilledNotional.Add(canceled.FilledQuantity.Mul(canceled.FilledAvgPrice))
	next := t.setPendingEntry(rec, req, t.now())
	next.Fallback = true
	next.PriorFilledQuantity = priorQty
	next.PriorFilledNotional = priorNotional

	details := t.pendingLogAttrs()
	details["replaces"] = pe.OrderID
	t.record(ctx, journal.EventFallbackSubmitted, details)
	return t.awaitEntry(ctx)
}

// settleEntry closes out the pending entry from its final record. Any filled
// quantity, including fills of a replaced order, moves on to the exit legs;
// nothing filled returns the symbol to Idle behind its cooldown.
func (t *Trader) settleEntry(ctx context.Context, rec models.OrderRecord) error {
	pe := t.state.PendingEntry
	qty, avg := pe.CombineFill(rec)
	if !qty.IsPositive() {
		details := t.pendingLogAttrs()
		details["status"] = rec.Status.String()
		t.record(ctx, journal.EventEntryClosed, details)
		t.resetToFlat(enum.PhaseIdle)
		return nil
	}
	if !avg.IsPositive() {
		avg = pe.Request.LimitPrice
	}

	details := t.pendingLogAttrs()
	details["filled_qty"] = qty.String()
	details["avg_price"] = avg.String()
	details["partial"] = !rec.IsFilled() || !pe.PriorFilledQuantity.IsZero()
	t.record(ctx, journal.EventEntryFilled, details)
	metrics.IncFills(enum.SideBuy.String())
	t.notify(ctx, notify.LevelInfo, "buy filled", fmt.Sprintf("%s @ %s", qty, avg))

	t.state.ClearPendingEntry()
	t.state.EntryPrice = avg
	t.state.EntryQuantity = qty
	t.state.Phase = enum.PhaseEntryFilled
	return t.placeExit(ctx)
}
