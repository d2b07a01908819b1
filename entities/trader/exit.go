package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jonathanbbiles/BorB4/enum"
	"github.com/jonathanbbiles/BorB4/journal"
	"github.com/jonathanbbiles/BorB4/metrics"
	"github.com/jonathanbbiles/BorB4/models"
	"github.com/jonathanbbiles/BorB4/notify"
)

// placeExit puts the take-profit on the filled entry and then, if enabled,
// the stop. A failed stop does not undo the take-profit.
func (t *Trader) placeExit(ctx context.Context) error {
	pos, err := t.broker.GetPosition(ctx, t.symbol)
	if err != nil {
		t.readFailed(ctx, "position", err)
		return fmt.Errorf("%s: read position for exit: %w", t.symbol, err)
	}
	if pos == nil {
		t.record(ctx, journal.EventExitSubmitFailed, map[string]any{"reason": "no_position"})
		return t.finish(ctx, "position_gone")
	}
	qty := models.FloorTo(decimal.Min(t.state.EntryQuantity, pos.AvailableQuantity), t.policy.QuantityPrecision)
	if !qty.IsPositive() {
		t.record(ctx, journal.EventExitSubmitFailed, map[string]any{
			"reason":        "no_available_quantity",
			"qty_available": pos.AvailableQuantity.String(),
		})
		return nil
	}

	plan, err := PlanExit(t.state.EntryPrice, t.policy.exitPolicy())
	if err != nil {
		return t.abort(ctx, "exit plan", err)
	}

	limitReq := models.NewOrderRequest(t.symbol, enum.SideSell, enum.KindLimit).
		WithQuantity(qty).
		WithLimitPrice(plan.LimitPrice)
	rec, err := t.submit(ctx, limitReq)
	if err != nil {
		t.record(ctx, journal.EventExitSubmitFailed, withError(limitReq.LogAttrs(), err))
		t.notify(ctx, notify.LevelError, "exit failed", err.Error())
		return fmt.Errorf("%s: submit take-profit: %w", t.symbol, err)
	}
	t.state.ExitOrderIDs = []string{rec.ID}
	t.state.Phase = enum.PhaseExitSubmitted

	details := limitReq.LogAttrs()
	details["order_id"] = rec.ID
	details["basis"] = t.state.EntryPrice.String()
	t.record(ctx, journal.EventExitSubmitted, details)
	t.notify(ctx, notify.LevelInfo, "take-profit placed", fmt.Sprintf("sell %s @ %s", qty, plan.LimitPrice))

	if !t.policy.Exit.StopLossEnabled || !plan.StopPrice.IsPositive() {
		return nil
	}
	kind := enum.KindStop
	if plan.StopLimitPrice.IsPositive() {
		kind = enum.KindStopLimit
	}
	stopReq := models.NewOrderRequest(t.symbol, enum.SideSell, kind).
		WithQuantity(qty).
		WithStopPrice(plan.StopPrice).
		WithLimitPrice(plan.StopLimitPrice)
	srec, err := t.submit(ctx, stopReq)
	if err != nil {
		pf := &PartialExitFailure{Symbol: t.symbol, LimitOrderID: rec.ID, Err: err}
		t.logger.Error("stop leg failed, take-profit left in place", "order_id", rec.ID, "error", err)
		t.record(ctx, journal.EventPartialExit, withError(stopReq.LogAttrs(), err))
		metrics.IncPartialExitFailures()
		t.notify(ctx, notify.LevelWarn, "stop-loss not placed", pf.Error())
		return pf
	}
	t.state.ExitOrderIDs = append(t.state.ExitOrderIDs, srec.ID)
	details = stopReq.LogAttrs()
	details["order_id"] = srec.ID
	t.record(ctx, journal.EventStopSubmitted, details)
	return nil
}

// manageExit watches a position with working exit orders. It completes once
// the position is gone and forces a market exit on stagnant capital.
func (t *Trader) manageExit(ctx context.Context, sig models.Signal, ref decimal.Decimal) error {
	pos, err := t.broker.GetPosition(ctx, t.symbol)
	if err != nil {
		t.readFailed(ctx, "position", err)
		return nil
	}
	if pos == nil || pos.MarketValue(ref).LessThan(t.policy.MinPositionNotional) {
		return t.finish(ctx, "exit_filled")
	}
	if t.shouldForceExit(sig, ref) {
		return t.forceExit(ctx, ref)
	}
	return nil
}

// shouldForceExit is true once a position has been held past MaxHoldDuration
// without leaving the stagnation band and momentum has faded.
func (t *Trader) shouldForceExit(sig models.Signal, ref decimal.Decimal) bool {
	if t.state.EntryTimestamp.IsZero() || !t.state.EntryPrice.IsPositive() {
		return false
	}
	if t.now().Sub(t.state.EntryTimestamp) <= t.policy.MaxHoldDuration {
		return false
	}
	move := ref.Sub(t.state.EntryPrice).Abs().Div(t.state.EntryPrice)
	if move.GreaterThanOrEqual(t.policy.StagnationBand) {
		return false
	}
	return sig.ExitSignalValid
}

// forceExit pulls the working exit legs and sells everything available at
// market. The symbol is parked as aborted until recover sees the book clean.
func (t *Trader) forceExit(ctx context.Context, ref decimal.Decimal) error {
	for _, id := range t.state.ExitOrderIDs {
		if err := t.cancel(ctx, id); err != nil {
			t.logger.Warn("cancel exit leg failed", "order_id", id, "error", err)
			t.record(ctx, journal.EventTransportError, withError(map[string]any{"order_id": id, "call": "cancel_order"}, err))
		}
	}

	pos, err := t.broker.GetPosition(ctx, t.symbol)
	if err != nil {
		t.readFailed(ctx, "position", err)
		return fmt.Errorf("%s: read position for forced exit: %w", t.symbol, err)
	}
	if pos == nil {
		return t.finish(ctx, "position_gone")
	}
	qty := models.FloorTo(pos.AvailableQuantity, t.policy.QuantityPrecision)
	if !qty.IsPositive() {
		t.record(ctx, journal.EventExitSubmitFailed, map[string]any{"reason": "no_available_quantity", "forced": true})
		return nil
	}

	req := models.NewOrderRequest(t.symbol, enum.SideSell, enum.KindMarket).WithQuantity(qty)
	rec, err := t.submit(ctx, req)
	if err != nil {
		t.record(ctx, journal.EventExitSubmitFailed, withError(map[string]any{"forced": true, "qty": qty.String()}, err))
		t.notify(ctx, notify.LevelError, "forced exit failed", err.Error())
		return fmt.Errorf("%s: submit forced exit: %w", t.symbol, err)
	}

	now := t.now()
	held := now.Sub(t.state.EntryTimestamp)
	details := req.LogAttrs()
	details["order_id"] = rec.ID
	details["held"] = held.String()
	details["entry_price"] = t.state.EntryPrice.String()
	details["price"] = ref.String()
	t.record(ctx, journal.EventForcedExit, details)
	metrics.IncForcedExits()
	t.notify(ctx, notify.LevelWarn, "forced exit", fmt.Sprintf("sold %s at market after %s", qty, held.Round(time.Second)))

	t.state.ExitOrderIDs = []string{rec.ID}
	t.state.Phase = enum.PhaseAborted
	t.state.AbortedAt = now
	t.state.LastError = "forced exit"
	t.startCooldown(now)
	return nil
}

// finish clears the cycle once the position is gone. Exit legs that are
// still working, such as the stop after the take-profit filled, are
// canceled.
func (t *Trader) finish(ctx context.Context, reason string) error {
	for _, id := range t.state.ExitOrderIDs {
		rec, err := t.broker.GetOrder(ctx, id)
		if err != nil || rec.Status.IsTerminal() {
			continue
		}
		if err := t.cancel(ctx, id); err != nil {
			t.logger.Warn("cancel leftover exit leg failed", "order_id", id, "error", err)
		}
	}

	now := t.now()
	details := map[string]any{
		"reason":      reason,
		"entry_price": t.state.EntryPrice.String(),
		"qty":         t.state.EntryQuantity.String(),
	}
	if !t.state.EntryTimestamp.IsZero() {
		details["held"] = now.Sub(t.state.EntryTimestamp).String()
	}
	t.record(ctx, journal.EventComplete, details)
	metrics.IncFills(enum.SideSell.String())
	t.notify(ctx, notify.LevelInfo, "position closed", fmt.Sprintf("%s %s @ %s", reason, t.state.EntryQuantity, t.state.EntryPrice))

	t.resetToFlat(enum.PhaseComplete)
	t.startCooldown(now)
	return nil
}

// recover reconciles an aborted symbol with the brokerage once
// AbortRecoveryDelay has passed. A tracked entry that filled meanwhile is
// picked back up; otherwise the symbol returns to idle when it has no open
// orders left. Buy orders still open get one cancel attempt per abort.
func (t *Trader) recover(ctx context.Context) error {
	now := t.now()
	if now.Sub(t.state.AbortedAt) < t.policy.AbortRecoveryDelay {
		return nil
	}

	if pe := t.state.PendingEntry; pe != nil {
		rec, err := t.broker.GetOrder(ctx, pe.OrderID)
		if err == nil && rec.Status.IsTerminal() {
			if qty, _ := pe.CombineFill(rec); qty.IsPositive() {
				t.record(ctx, journal.EventRecovered, map[string]any{"outcome": "entry_filled", "order_id": pe.OrderID})
				t.state.AbortedAt = time.Time{}
				t.state.LastError = ""
				return t.settleEntry(ctx, rec)
			}
		}
	}

	open, err := t.broker.ListOpenOrders(ctx, t.symbol)
	if err != nil {
		t.readFailed(ctx, "open_orders", err)
		return nil
	}
	if len(open) > 0 {
		if !t.recoveryCancelSent && t.cancelOpenEntries(ctx, open) > 0 {
			return nil
		}
		t.record(ctx, journal.EventRecovered, map[string]any{"outcome": "open_orders_remaining", "open_orders": len(open)})
		return nil
	}

	last := t.state.LastError
	t.resetToFlat(enum.PhaseIdle)
	t.record(ctx, journal.EventRecovered, map[string]any{"outcome": "idle", "last_error": last})
	t.notify(ctx, notify.LevelInfo, "recovered", "no open orders left, back to idle")
	return nil
}

// cancelOpenEntries sends one cancel for every open buy order and returns how
// many it tried. Sell orders are left alone since they may protect a position.
func (t *Trader) cancelOpenEntries(ctx context.Context, open []models.OrderRecord) int {
	t.recoveryCancelSent = true
	tried := 0
	for _, o := range open {
		if o.Side != enum.SideBuy {
			continue
		}
		tried++
		details := map[string]any{"outcome": "cancel_open_entry", "order_id": o.ID}
		if err := t.cancel(ctx, o.ID); err != nil {
			details = withError(details, err)
		}
		t.record(ctx, journal.EventRecovered, details)
	}
	return tried
}
