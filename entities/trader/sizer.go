package trader

import (
	"github.com/shopspring/decimal"

	"github.com/jonathanbbiles/BorB4/models"
)

// SkipReason names why a cycle placed no order. Skips are outcomes, not
// errors: the caller logs them and waits for the next tick.
type SkipReason string

const (
	SkipNone              SkipReason = ""
	SkipCooldown          SkipReason = "cooldown"
	SkipOpenOrder         SkipReason = "open_order"
	SkipPositionHeld      SkipReason = "position_held"
	SkipBelowMinimum      SkipReason = "below_minimum_notional"
	SkipInsufficientFunds SkipReason = "insufficient_funds"
	SkipInvalidPrice      SkipReason = "invalid_reference_price"
)

// Allocation is the sizer's answer. When Skip is set Notional and Quantity
// are zero.
type Allocation struct {
	Notional decimal.Decimal
	Quantity decimal.Decimal
	Skip     SkipReason
}

func (a Allocation) Skipped() bool {
	return a.Skip != SkipNone
}

func skip(reason SkipReason) Allocation {
	return Allocation{Skip: reason}
}

// Sizer turns an account snapshot and signal strength into an entry size.
type Sizer struct {
	policy Policy
}

func NewSizer(policy Policy) Sizer {
	return Sizer{policy: policy}
}

// Size computes the entry notional and the quantity it buys at refPrice.
//
//	target     = equity * fraction (fraction scaled down for strong signals)
//	allocation = (min(target, cash) - margin) * (1 - collar - buffer)
//
// Notional is floored to the notional precision, quantity to the quantity
// precision. Neither is ever rounded up.
func (s Sizer) Size(acct models.AccountSnapshot, strength float64, refPrice decimal.Decimal) Allocation {
	p := s.policy
	if !refPrice.IsPositive() {
		return skip(SkipInvalidPrice)
	}
	cash := acct.Cash
	if cash.LessThan(p.MinOrderNotional) {
		return skip(SkipBelowMinimum)
	}

	fraction := p.BaseFraction
	if strength > p.StrengthThreshold {
		fraction = fraction.Mul(p.StrongSignalScale)
	}
	equity := acct.Equity
	if !equity.IsPositive() {
		equity = cash
	}
	target := equity.Mul(fraction)

	allocation := decimal.Min(target, cash).Sub(p.SafetyMargin)
	if !allocation.IsPositive() {
		return skip(SkipInsufficientFunds)
	}
	allocation = allocation.Mul(p.SafetyFactor())
	if allocation.GreaterThan(cash) {
		allocation = cash
	}

	notional := models.FloorTo(allocation, p.NotionalPrecision)
	if !notional.IsPositive() {
		return skip(SkipInsufficientFunds)
	}
	if notional.LessThan(p.MinOrderNotional) {
		return skip(SkipBelowMinimum)
	}
	qty := models.FloorTo(notional.Div(refPrice), p.QuantityPrecision)
	if !qty.IsPositive() {
		return skip(SkipBelowMinimum)
	}
	return Allocation{Notional: notional, Quantity: qty}
}
