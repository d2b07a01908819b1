package models

import "github.com/shopspring/decimal"

// Position is the brokerage-reported holding for one symbol. A nil *Position
// means the account is flat in that symbol.
type Position struct {
	Symbol            string          `json:"symbol"`
	Quantity          decimal.Decimal `json:"qty"`
	CostBasis         decimal.Decimal `json:"cost_basis"`
	AvailableQuantity decimal.Decimal `json:"qty_available"`
}

// AvgEntryPrice is the basis per unit, zero when the brokerage does not
// report a cost basis.
func (p Position) AvgEntryPrice() decimal.Decimal {
	if p.Quantity.IsZero() {
		return decimal.Zero
	}
	return p.CostBasis.Div(p.Quantity)
}

// MarketValue values the full quantity at price.
func (p Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(price)
}
