package alpaca

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jonathanbbiles/BorB4/enum"
	"github.com/jonathanbbiles/BorB4/models"
)

type accountResponse struct {
	Cash                 decimal.Decimal `json:"cash"`
	BuyingPower          decimal.Decimal `json:"buying_power"`
	NonMarginBuyingPower decimal.Decimal `json:"non_marginable_buying_power"`
	Equity               decimal.Decimal `json:"equity"`
}

func (a accountResponse) toModel() models.AccountSnapshot {
	bp := a.BuyingPower
	// crypto can only be bought with settled, non-margin funds
	if a.NonMarginBuyingPower.IsPositive() {
		bp = a.NonMarginBuyingPower
	}
	return models.AccountSnapshot{Cash: a.Cash, BuyingPower: bp, Equity: a.Equity}
}

type positionResponse struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	QtyAvailable  decimal.Decimal `json:"qty_available"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
}

func (p positionResponse) toModel(symbol string) models.Position {
	basis := p.CostBasis
	if basis.IsZero() {
		basis = p.AvgEntryPrice.Mul(p.Qty)
	}
	return models.Position{
		Symbol:            symbol,
		Quantity:          p.Qty,
		CostBasis:         basis,
		AvailableQuantity: p.QtyAvailable,
	}
}

type orderBody struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	Qty           string `json:"qty,omitempty"`
	Notional      string `json:"notional,omitempty"`
	LimitPrice    string `json:"limit_price,omitempty"`
	StopPrice     string `json:"stop_price,omitempty"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

func newOrderBody(r models.OrderRequest) orderBody {
	b := orderBody{
		Symbol:        r.Symbol,
		Side:          r.Side.String(),
		Type:          r.Kind.String(),
		TimeInForce:   r.TimeInForce.String(),
		ClientOrderID: r.ClientOrderID,
	}
	// plain stop orders are not accepted for crypto
	if r.Kind == enum.KindStop {
		b.Type = enum.KindStopLimit.String()
		if r.LimitPrice.IsZero() {
			r.LimitPrice = r.StopPrice
		}
	}
	if r.IsNotional() {
		b.Notional = r.Notional.String()
	} else {
		b.Qty = r.Quantity.String()
	}
	if !r.LimitPrice.IsZero() {
		b.LimitPrice = r.LimitPrice.String()
	}
	if !r.StopPrice.IsZero() {
		b.StopPrice = r.StopPrice.String()
	}
	return b
}

type orderResponse struct {
	ID             string          `json:"id"`
	ClientOrderID  string          `json:"client_order_id"`
	Symbol         string          `json:"symbol"`
	Side           string          `json:"side"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	Qty            decimal.Decimal `json:"qty"`
	FilledQty      decimal.Decimal `json:"filled_qty"`
	FilledAvgPrice decimal.Decimal `json:"filled_avg_price"`
}

func (o orderResponse) toModel() (models.OrderRecord, error) {
	side, err := enum.GetOrderSide(o.Side)
	if err != nil {
		return models.OrderRecord{}, fmt.Errorf("order %s: %w", o.ID, err)
	}
	kind, err := enum.GetOrderKind(o.Type)
	if err != nil {
		return models.OrderRecord{}, fmt.Errorf("order %s: %w", o.ID, err)
	}
	return models.OrderRecord{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           side,
		Kind:           kind,
		Status:         statusFromAlpaca(o.Status),
		Quantity:       o.Qty,
		FilledQuantity: o.FilledQty,
		FilledAvgPrice: o.FilledAvgPrice,
	}, nil
}

func statusFromAlpaca(s string) enum.OrderStatus {
	switch s {
	case "new", "accepted":
		return enum.StatusNew
	case "partially_filled":
		return enum.StatusPartiallyFilled
	case "filled":
		return enum.StatusFilled
	case "canceled", "expired", "done_for_day", "replaced":
		return enum.StatusCanceled
	case "rejected", "suspended":
		return enum.StatusRejected
	default:
		return enum.StatusPending
	}
}
