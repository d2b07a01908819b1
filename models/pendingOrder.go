package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingOrder is the single non-terminal order a symbol owns.
// AwaitingVerification is set once the fill wait ran out of attempts and the
// order must be re-checked against the live signal before anything else.
type PendingOrder struct {
	OrderID              string
	SubmitTime           time.Time
	Request              OrderRequest
	AwaitingVerification bool

	// CancelRequested is set once a cancel was acknowledged but the broker
	// still reports the order working. Nothing replaces or forgets the order
	// until it reaches a terminal status.
	CancelRequested bool

	// Fallback marks a market order that replaced a stale limit entry. The
	// prior fields carry whatever the replaced order had already filled.
	Fallback            bool
	PriorFilledQuantity decimal.Decimal
	PriorFilledNotional decimal.Decimal
}

// CombineFill merges the prior partial fill with rec into one quantity and
// volume-weighted average price.
func (p PendingOrder) CombineFill(rec OrderRecord) (qty, avgPrice decimal.Decimal) {
	qty = p.PriorFilledQuantity.Add(rec.FilledQuantity)
	if !qty.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	notional := p.PriorFilledNotional.Add(rec.FilledQuantity.Mul(rec.FilledAvgPrice))
	return qty, notional.Div(qty)
}
