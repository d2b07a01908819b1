package coinbase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/jonathanbbiles/BorB4/enum"
	"github.com/jonathanbbiles/BorB4/exchange"
	"github.com/jonathanbbiles/BorB4/models"
)

var _ exchange.Brokerage = (*CoinbaseClient)(nil)

// QuoteCurrency is what cash is held in.
const QuoteCurrency = "USD"

func (c *CoinbaseClient) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	q := url.Values{}
	q.Set("limit", "250")
	for {
		var out AccountsListResponse
		if err := c.sendWithJwt(ctx, "list accounts", http.MethodGet, "/api/v3/brokerage/accounts", q, nil, &out); err != nil {
			return nil, err
		}
		accounts = append(accounts, out.Accounts...)
		if !out.HasNext || out.Cursor == "" {
			return accounts, nil
		}
		q.Set("cursor", out.Cursor)
	}
}

// GetProductPrice reads the last trade price from the public market endpoint.
func (c *CoinbaseClient) GetProductPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var out productResponse
	if err := c.sendPublic(ctx, "get product", "/api/v3/brokerage/market/products/"+ProductID(symbol), &out); err != nil {
		return decimal.Zero, err
	}
	return out.Price, nil
}

// GetAccount reports USD as cash and values every other balance at its
// current USD price for equity.
func (c *CoinbaseClient) GetAccount(ctx context.Context) (models.AccountSnapshot, error) {
	accounts, err := c.ListAccounts(ctx)
	if err != nil {
		return models.AccountSnapshot{}, err
	}
	var snap models.AccountSnapshot
	for _, a := range accounts {
		if !a.Active {
			continue
		}
		total := a.AvailableBalance.Value.Add(a.Hold.Value)
		if !total.IsPositive() {
			continue
		}
		if a.Currency == QuoteCurrency {
			snap.Cash = snap.Cash.Add(a.AvailableBalance.Value)
			snap.Equity = snap.Equity.Add(total)
			continue
		}
		price, err := c.GetProductPrice(ctx, a.Currency+"-"+QuoteCurrency)
		if err != nil {
			c.logger.Warn("skipping holding in equity", "currency", a.Currency, "error", err)
			continue
		}
		snap.Equity = snap.Equity.Add(total.Mul(price))
	}
	snap.BuyingPower = snap.Cash
	return snap, nil
}

// GetPosition derives the holding from the base-currency account. Coinbase
// does not report a cost basis, so it is left at zero.
func (c *CoinbaseClient) GetPosition(ctx context.Context, symbol string) (*models.Position, error) {
	accounts, err := c.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	base := baseCurrency(symbol)
	for _, a := range accounts {
		if a.Currency != base {
			continue
		}
		qty := a.AvailableBalance.Value.Add(a.Hold.Value)
		if !qty.IsPositive() {
			return nil, nil
		}
		return &models.Position{
			Symbol:            symbol,
			Quantity:          qty,
			AvailableQuantity: a.AvailableBalance.Value,
		}, nil
	}
	return nil, nil
}

func (c *CoinbaseClient) ListOpenOrders(ctx context.Context, symbol string) ([]models.OrderRecord, error) {
	q := url.Values{}
	q.Set("product_ids", ProductID(symbol))
	q.Set("order_status", "OPEN")
	var out ListOrdersResponse
	if err := c.sendWithJwt(ctx, "list open orders", http.MethodGet, "/api/v3/brokerage/orders/historical/batch", q, nil, &out); err != nil {
		return nil, err
	}
	records := make([]models.OrderRecord, 0, len(out.Orders))
	for _, o := range out.Orders {
		r, err := o.toModel()
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", o.OrderID, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func (c *CoinbaseClient) SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderRecord, error) {
	var out CreateOrderResponse
	if err := c.sendWithJwt(ctx, "submit order", http.MethodPost, "/api/v3/brokerage/orders", nil, newCreateOrderRequest(req), &out); err != nil {
		return models.OrderRecord{}, err
	}
	if !out.Success {
		return models.OrderRecord{}, &exchange.TransportError{
			Op:         "submit order",
			StatusCode: http.StatusUnprocessableEntity,
			Body:       out.ErrorResponse.Error + ": " + out.ErrorResponse.Message,
		}
	}
	return models.OrderRecord{
		ID:            out.SuccessResponse.OrderID,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Kind:          req.Kind,
		Status:        enum.StatusPending,
		Quantity:      req.Quantity,
	}, nil
}

func (c *CoinbaseClient) GetOrder(ctx context.Context, orderID string) (models.OrderRecord, error) {
	var out GetOrderResponse
	err := c.sendWithJwt(ctx, "get order", http.MethodGet, "/api/v3/brokerage/orders/historical/"+url.PathEscape(orderID), nil, nil, &out)
	if exchange.IsNotFound(err) {
		return models.OrderRecord{}, fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, orderID)
	}
	if err != nil {
		return models.OrderRecord{}, err
	}
	return out.Order.toModel()
}

func (c *CoinbaseClient) CancelOrder(ctx context.Context, orderID string) error {
	var out CancelOrdersResponse
	if err := c.sendWithJwt(ctx, "cancel order", http.MethodPost, "/api/v3/brokerage/orders/batch_cancel", nil, cancelRequest{OrderIDs: []string{orderID}}, &out); err != nil {
		return err
	}
	for _, r := range out.Results {
		if r.OrderID == orderID && !r.Success {
			return &exchange.TransportError{Op: "cancel order", StatusCode: http.StatusConflict, Body: r.FailureReason}
		}
	}
	return nil
}
