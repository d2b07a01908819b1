package trader

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jonathanbbiles/BorB4/models"
)

// ExitPlan prices the sell legs for a filled entry. Zero StopPrice means no
// stop leg; zero StopLimitPrice means a plain stop.
type ExitPlan struct {
	LimitPrice     decimal.Decimal
	StopPrice      decimal.Decimal
	StopLimitPrice decimal.Decimal
}

// Markup is the take-profit distance actually used: never below the fees
// plus the target margin.
func (e ExitPolicy) Markup() decimal.Decimal {
	return decimal.Max(e.ProfitMarkup, e.FeeBuffer.Add(e.TargetProfit))
}

// PlanExit prices the exit legs around basis. Sell prices round half-up;
// a price collapsed onto the wrong side of basis by rounding is moved one
// tick.
func PlanExit(basis decimal.Decimal, policy ExitPolicy) (ExitPlan, error) {
	if !basis.IsPositive() {
		return ExitPlan{}, fmt.Errorf("exit basis must be positive, got %s", basis)
	}
	one := decimal.NewFromInt(1)
	prec := policy.PricePrecision
	tick := models.TickSize(prec)

	var plan ExitPlan
	markup := policy.Markup()
	plan.LimitPrice = models.RoundTo(basis.Mul(one.Add(markup)), prec)
	if markup.IsPositive() && plan.LimitPrice.LessThanOrEqual(basis) {
		plan.LimitPrice = plan.LimitPrice.Add(tick)
	}

	if policy.StopLossPercent.IsPositive() {
		stop := models.RoundTo(basis.Mul(one.Sub(policy.StopLossPercent)), prec)
		if stop.GreaterThanOrEqual(basis) {
			stop = stop.Sub(tick)
		}
		if stop.IsPositive() {
			plan.StopPrice = stop
		}
	}

	if plan.StopPrice.IsPositive() && policy.StopLimitOffset.IsPositive() {
		limit := models.RoundTo(plan.StopPrice.Mul(one.Sub(policy.StopLimitOffset)), prec)
		if limit.GreaterThanOrEqual(plan.StopPrice) {
			limit = limit.Sub(tick)
		}
		if limit.IsPositive() {
			plan.StopLimitPrice = limit
		}
	}
	return plan, nil
}

// EntryLimitPrice is the buy limit for a reference price, floored so the
// order never pays more than intended.
func EntryLimitPrice(ref, buyBuffer decimal.Decimal, precision int32) decimal.Decimal {
	if !buyBuffer.IsPositive() {
		buyBuffer = decimal.NewFromInt(1)
	}
	return models.FloorTo(ref.Mul(buyBuffer), precision)
}
