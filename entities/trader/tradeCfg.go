package trader

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jonathanbbiles/BorB4/retry"
)

// Policy holds every knob of one symbol's buy -> sell cycle.
type Policy struct {
	// sizing
	BaseFraction        decimal.Decimal
	StrengthThreshold   float64
	StrongSignalScale   decimal.Decimal
	SafetyMargin        decimal.Decimal
	PriceCollar         decimal.Decimal
	ExtraBuffer         decimal.Decimal
	MinOrderNotional    decimal.Decimal
	MinPositionNotional decimal.Decimal
	NotionalPrecision   int32
	PricePrecision      int32
	QuantityPrecision   int32

	// entry limit = reference price * BuyBuffer
	BuyBuffer decimal.Decimal

	Exit ExitPolicy

	FillPollInterval time.Duration
	FillMaxAttempts  int

	Cooldown           time.Duration
	MaxHoldDuration    time.Duration
	StagnationBand     decimal.Decimal
	AbortRecoveryDelay time.Duration

	// Retry applies to submit and cancel calls.
	Retry retry.Policy
}

// ExitPolicy drives the take-profit and stop-loss legs.
type ExitPolicy struct {
	ProfitMarkup    decimal.Decimal
	FeeBuffer       decimal.Decimal
	TargetProfit    decimal.Decimal
	StopLossEnabled bool
	StopLossPercent decimal.Decimal
	// StopLimitOffset > 0 turns the stop leg into a stop-limit priced this
	// fraction below the stop.
	StopLimitOffset decimal.Decimal
	PricePrecision  int32
}

func DefaultPolicy() Policy {
	return Policy{
		BaseFraction:        decimal.RequireFromString("0.1"),
		StrengthThreshold:   0.1,
		StrongSignalScale:   decimal.RequireFromString("0.5"),
		SafetyMargin:        decimal.NewFromInt(1),
		PriceCollar:         decimal.RequireFromString("0.02"),
		ExtraBuffer:         decimal.RequireFromString("0.01"),
		MinOrderNotional:    decimal.NewFromInt(1),
		MinPositionNotional: decimal.NewFromInt(1),
		NotionalPrecision:   2,
		PricePrecision:      2,
		QuantityPrecision:   6,
		BuyBuffer:           decimal.RequireFromString("0.999"),
		Exit: ExitPolicy{
			ProfitMarkup:    decimal.RequireFromString("0.0075"),
			FeeBuffer:       decimal.RequireFromString("0.005"),
			TargetProfit:    decimal.RequireFromString("0.0025"),
			StopLossEnabled: true,
			StopLossPercent: decimal.RequireFromString("0.025"),
			PricePrecision:  2,
		},
		FillPollInterval:   3 * time.Second,
		FillMaxAttempts:    20,
		Cooldown:           time.Minute,
		MaxHoldDuration:    2 * time.Hour,
		StagnationBand:     decimal.RequireFromString("0.005"),
		AbortRecoveryDelay: time.Minute,
		Retry: retry.Policy{
			MaxRetries: 1,
			Backoff:    time.Second,
			MaxBackoff: 5 * time.Second,
			Factor:     1,
		},
	}
}

// SafetyFactor is the share of an allocation that may actually be spent.
func (p Policy) SafetyFactor() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(p.PriceCollar).Sub(p.ExtraBuffer)
}

func (p Policy) exitPolicy() ExitPolicy {
	e := p.Exit
	e.PricePrecision = p.PricePrecision
	return e
}

func (p Policy) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	one := decimal.NewFromInt(1)

	check(p.BaseFraction.IsPositive() && p.BaseFraction.LessThanOrEqual(one), "base fraction must be in (0, 1], got %s", p.BaseFraction)
	check(p.StrongSignalScale.IsPositive() && p.StrongSignalScale.LessThanOrEqual(one), "strong signal scale must be in (0, 1], got %s", p.StrongSignalScale)
	check(!p.SafetyMargin.IsNegative(), "safety margin must not be negative")
	check(p.SafetyFactor().IsPositive(), "price collar plus extra buffer must stay below 1")
	check(!p.PriceCollar.IsNegative() && !p.ExtraBuffer.IsNegative(), "collar and buffer must not be negative")
	check(p.MinOrderNotional.IsPositive(), "minimum order notional must be positive")
	check(!p.MinPositionNotional.IsNegative(), "minimum position notional must not be negative")
	check(p.NotionalPrecision >= 0 && p.PricePrecision >= 0 && p.QuantityPrecision >= 0, "precisions must not be negative")
	check(p.BuyBuffer.IsPositive(), "buy buffer must be positive")
	check(!p.Exit.ProfitMarkup.IsNegative() && !p.Exit.FeeBuffer.IsNegative() && !p.Exit.TargetProfit.IsNegative(), "exit markups must not be negative")
	check(!p.Exit.StopLossPercent.IsNegative() && p.Exit.StopLossPercent.LessThan(one), "stop loss percent must be in [0, 1)")
	check(!p.Exit.StopLimitOffset.IsNegative() && p.Exit.StopLimitOffset.LessThan(one), "stop limit offset must be in [0, 1)")
	check(p.FillPollInterval >= 0, "fill poll interval must not be negative")
	check(p.FillMaxAttempts > 0, "fill max attempts must be positive")
	check(p.Cooldown >= 0 && p.MaxHoldDuration > 0 && p.AbortRecoveryDelay >= 0, "durations must not be negative")
	check(!p.StagnationBand.IsNegative(), "stagnation band must not be negative")
	check(p.Retry.MaxRetries >= 0, "retry count must not be negative")

	return errors.Join(errs...)
}
