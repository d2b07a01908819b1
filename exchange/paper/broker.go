// Package paper is an in-memory brokerage used for dry runs. Orders fill
// against the last price it was fed.
package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jonathanbbiles/BorB4/enum"
	"github.com/jonathanbbiles/BorB4/exchange"
	"github.com/jonathanbbiles/BorB4/models"
)

const qtyPlaces = 8

type holding struct {
	qty   decimal.Decimal
	basis decimal.Decimal
}

type order struct {
	req    models.OrderRequest
	record models.OrderRecord
}

type Broker struct {
	mu       sync.Mutex
	cash     decimal.Decimal
	prices   map[string]decimal.Decimal
	holdings map[string]*holding
	orders   map[string]*order
	// open preserves submission order so fills are deterministic
	open []string
}

var _ exchange.Brokerage = (*Broker)(nil)

func NewBroker(startingCash decimal.Decimal) *Broker {
	return &Broker{
		cash:     startingCash,
		prices:   make(map[string]decimal.Decimal),
		holdings: make(map[string]*holding),
		orders:   make(map[string]*order),
	}
}

// Ingest lets the broker sit directly on a price feed.
func (b *Broker) Ingest(tick models.Tick) {
	b.SetPrice(tick.Symbol, decimal.NewFromFloat(tick.Price))
}

// SetPrice records the latest price and fills whatever it crosses.
func (b *Broker) SetPrice(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
	b.matchLocked(symbol)
}

func (b *Broker) GetAccount(_ context.Context) (models.AccountSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	equity := b.cash
	for sym, h := range b.holdings {
		equity = equity.Add(h.qty.Mul(b.prices[sym]))
	}
	return models.AccountSnapshot{Cash: b.cash, BuyingPower: b.cash, Equity: equity}, nil
}

func (b *Broker) GetPosition(_ context.Context, symbol string) (*models.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.holdings[symbol]
	if !ok || !h.qty.IsPositive() {
		return nil, nil
	}
	reserved := decimal.Zero
	for _, id := range b.open {
		o := b.orders[id]
		if o.req.Symbol == symbol && o.req.Side == enum.SideSell {
			reserved = reserved.Add(o.req.Quantity)
		}
	}
	avail := h.qty.Sub(reserved)
	if avail.IsNegative() {
		avail = decimal.Zero
	}
	return &models.Position{Symbol: symbol, Quantity: h.qty, CostBasis: h.basis, AvailableQuantity: avail}, nil
}

func (b *Broker) ListOpenOrders(_ context.Context, symbol string) ([]models.OrderRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.OrderRecord
	for _, id := range b.open {
		if o := b.orders[id]; o.req.Symbol == symbol {
			out = append(out, o.record)
		}
	}
	return out, nil
}

func (b *Broker) SubmitOrder(_ context.Context, req models.OrderRequest) (models.OrderRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, o := range b.orders {
		if req.ClientOrderID != "" && o.req.ClientOrderID == req.ClientOrderID {
			return o.record, nil
		}
	}
	if req.Side == enum.SideSell {
		h := b.holdings[req.Symbol]
		if h == nil || h.qty.LessThan(req.Quantity) {
			return models.OrderRecord{}, &exchange.TransportError{Op: "submit order", StatusCode: 403, Body: "insufficient balance"}
		}
	}

	o := &order{
		req: req,
		record: models.OrderRecord{
			ID:            uuid.NewString(),
			ClientOrderID: req.ClientOrderID,
			Symbol:        req.Symbol,
			Side:          req.Side,
			Kind:          req.Kind,
			Status:        enum.StatusNew,
			Quantity:      req.Quantity,
		},
	}
	b.orders[o.record.ID] = o
	b.open = append(b.open, o.record.ID)
	b.matchLocked(req.Symbol)
	return o.record, nil
}

func (b *Broker) GetOrder(_ context.Context, orderID string) (models.OrderRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return models.OrderRecord{}, fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, orderID)
	}
	return o.record, nil
}

func (b *Broker) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, orderID)
	}
	if o.record.Status.IsTerminal() {
		return &exchange.TransportError{Op: "cancel order", StatusCode: 422, Body: "order is not cancelable"}
	}
	o.record.Status = enum.StatusCanceled
	b.removeOpenLocked(orderID)
	return nil
}

func (b *Broker) matchLocked(symbol string) {
	price, ok := b.prices[symbol]
	if !ok || !price.IsPositive() {
		return
	}
	for _, id := range append([]string(nil), b.open...) {
		o := b.orders[id]
		if o.req.Symbol != symbol {
			continue
		}
		fillPrice, crosses := crossPrice(o.req, price)
		if !crosses {
			continue
		}
		b.fillLocked(o, fillPrice)
	}
}

// crossPrice decides whether req trades at the current price and at what
// price it fills.
func crossPrice(req models.OrderRequest, price decimal.Decimal) (decimal.Decimal, bool) {
	switch req.Kind {
	case enum.KindMarket:
		return price, true
	case enum.KindLimit:
		if req.Side == enum.SideBuy && price.LessThanOrEqual(req.LimitPrice) {
			return req.LimitPrice, true
		}
		if req.Side == enum.SideSell && price.GreaterThanOrEqual(req.LimitPrice) {
			return req.LimitPrice, true
		}
	case enum.KindStop, enum.KindStopLimit:
		if req.Side == enum.SideSell && price.LessThanOrEqual(req.StopPrice) {
			return price, true
		}
		if req.Side == enum.SideBuy && price.GreaterThanOrEqual(req.StopPrice) {
			return price, true
		}
	}
	return decimal.Zero, false
}

func (b *Broker) fillLocked(o *order, price decimal.Decimal) {
	qty := o.req.Quantity
	if o.req.IsNotional() {
		qty = o.req.Notional.Div(price).RoundFloor(qtyPlaces)
	}
	cost := qty.Mul(price)

	h := b.holdings[o.req.Symbol]
	if h == nil {
		h = &holding{}
		b.holdings[o.req.Symbol] = h
	}

	switch o.req.Side {
	case enum.SideBuy:
		if cost.GreaterThan(b.cash) {
			o.record.Status = enum.StatusRejected
			b.removeOpenLocked(o.record.ID)
			return
		}
		b.cash = b.cash.Sub(cost)
		h.qty = h.qty.Add(qty)
		h.basis = h.basis.Add(cost)
	case enum.SideSell:
		if qty.GreaterThan(h.qty) {
			qty = h.qty
			cost = qty.Mul(price)
		}
		if h.qty.IsPositive() {
			h.basis = h.basis.Sub(h.basis.Mul(qty).Div(h.qty))
		}
		h.qty = h.qty.Sub(qty)
		b.cash = b.cash.Add(cost)
		if !h.qty.IsPositive() {
			delete(b.holdings, o.req.Symbol)
		}
	}

	o.record.Status = enum.StatusFilled
	o.record.FilledQuantity = qty
	o.record.FilledAvgPrice = price
	o.record.Quantity = qty
	b.removeOpenLocked(o.record.ID)
}

func (b *Broker) removeOpenLocked(id string) {
	for i, v := range b.open {
		if v == id {
			b.open = append(b.open[:i], b.open[i+1:]...)
			return
		}
	}
}
