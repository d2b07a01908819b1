package trader

import (
	"time"

	"github.com/jonathanbbiles/BorB4/enum"
	"github.com/jonathanbbiles/BorB4/models"
)

func (t *Trader) setPendingEntry(rec models.OrderRecord, req models.OrderRequest, submitted time.Time) *models.PendingOrder {
	pe := &models.PendingOrder{
		OrderID:    rec.ID,
		SubmitTime: submitted,
		Request:    req,
	}
	t.state.PendingEntry = pe
	t.state.Phase = enum.PhaseEntrySubmitted
	t.state.LastTradeAt = submitted
	return pe
}

func (t *Trader) markAwaitingVerification() {
	if t.state.PendingEntry != nil {
		t.state.PendingEntry.AwaitingVerification = true
	}
}

func (t *Trader) pendingLogAttrs() map[string]any {
	pe := t.state.PendingEntry
	if pe == nil {
		return map[string]any{}
	}
	attrs := pe.Request.LogAttrs()
	attrs["order_id"] = pe.OrderID
	attrs["submitted_at"] = pe.SubmitTime
	if pe.Fallback {
		attrs["fallback"] = true
	}
	return attrs
}

// startCooldown pushes CooldownUntil out to now + Cooldown, never back.
func (t *Trader) startCooldown(now time.Time) {
	until := now.Add(t.policy.Cooldown)
	if until.After(t.state.CooldownUntil) {
		t.state.CooldownUntil = until
	}
}

// resetToFlat forgets the last entry and leaves the symbol ready for the
// next one once the cooldown expires.
func (t *Trader) resetToFlat(phase enum.TradePhase) {
	t.state.ClearPosition()
	t.state.Phase = phase
	t.state.AbortedAt = time.Time{}
	t.state.LastError = ""
}
