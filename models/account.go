package models

import "github.com/shopspring/decimal"

// AccountSnapshot is a point-in-time read of the brokerage account. It is
// fetched fresh for every sizing decision and never cached.
type AccountSnapshot struct {
	Cash        decimal.Decimal `json:"cash"`
	BuyingPower decimal.Decimal `json:"buying_power"`
	Equity      decimal.Decimal `json:"equity"`
}
