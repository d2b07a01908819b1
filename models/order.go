package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jonathanbbiles/BorB4/enum"
)

// OrderRequest is the immutable value handed to an OrderGateway. Exactly one
// of Quantity or Notional is set. ClientOrderID is minted once so a retried
// submission is recognised as a duplicate by the brokerage.
type OrderRequest struct {
	ClientOrderID string
	Symbol        string
	Side          enum.OrderSide
	Kind          enum.OrderKind
	Quantity      decimal.Decimal
	Notional      decimal.Decimal
	LimitPrice    decimal.Decimal
	StopPrice     decimal.Decimal
	TimeInForce   enum.TimeInForce
}

func NewOrderRequest(symbol string, side enum.OrderSide, kind enum.OrderKind) OrderRequest {
	return OrderRequest{
		ClientOrderID: uuid.New().String(),
		Symbol:        symbol,
		Side:          side,
		Kind:          kind,
		TimeInForce:   enum.TimeInForceGTC,
	}
}

func (r OrderRequest) WithQuantity(qty decimal.Decimal) OrderRequest {
	r.Quantity = qty
	r.Notional = decimal.Zero
	return r
}

func (r OrderRequest) WithNotional(notional decimal.Decimal) OrderRequest {
	r.Notional = notional
	r.Quantity = decimal.Zero
	return r
}

func (r OrderRequest) WithLimitPrice(price decimal.Decimal) OrderRequest {
	r.LimitPrice = price
	return r
}

func (r OrderRequest) WithStopPrice(price decimal.Decimal) OrderRequest {
	r.StopPrice = price
	return r
}

func (r OrderRequest) WithTimeInForce(tif enum.TimeInForce) OrderRequest {
	r.TimeInForce = tif
	return r
}

// IsNotional reports whether the request is denominated in quote currency.
func (r OrderRequest) IsNotional() bool {
	return r.Notional.IsPositive()
}

// LogAttrs flattens the request for journal and log output.
func (r OrderRequest) LogAttrs() map[string]any {
	attrs := map[string]any{
		"client_order_id": r.ClientOrderID,
		"symbol":          r.Symbol,
		"side":            r.Side.String(),
		"kind":            r.Kind.String(),
		"time_in_force":   r.TimeInForce.String(),
	}
	if r.IsNotional() {
		attrs["notional"] = r.Notional.String()
	} else {
		attrs["qty"] = r.Quantity.String()
	}
	if !r.LimitPrice.IsZero() {
		attrs["limit_price"] = r.LimitPrice.String()
	}
	if !r.StopPrice.IsZero() {
		attrs["stop_price"] = r.StopPrice.String()
	}
	return attrs
}

// OrderRecord is the brokerage's view of an order and the only source of
// truth for fill detection.
type OrderRecord struct {
	ID             string
	ClientOrderID  string
	Symbol         string
	Side           enum.OrderSide
	Kind           enum.OrderKind
	Status         enum.OrderStatus
	Quantity       decimal.Decimal
	FilledQuantity decimal.Decimal
	FilledAvgPrice decimal.Decimal
}

func (o OrderRecord) IsFilled() bool {
	return o.Status == enum.StatusFilled
}
