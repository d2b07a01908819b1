package models

import "github.com/shopspring/decimal"

// FloorTo truncates toward negative infinity at places decimals. Used for
// anything that spends money so a request is never rounded up.
func FloorTo(d decimal.Decimal, places int32) decimal.Decimal {
	return d.RoundFloor(places)
}

// RoundTo rounds half away from zero at places decimals.
func RoundTo(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

// TickSize returns the smallest representable step at places decimals.
func TickSize(places int32) decimal.Decimal {
	return decimal.New(1, -places)
}
