package coinbase

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jonathanbbiles/BorB4/enum"
	"github.com/jonathanbbiles/BorB4/models"
)

type Money struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

type Account struct {
	UUID             string `json:"uuid"`
	Currency         string `json:"currency"`
	AvailableBalance Money  `json:"available_balance"`
	Hold             Money  `json:"hold"`
	Active           bool   `json:"active"`
	Ready            bool   `json:"ready"`
}

type AccountsListResponse struct {
	Accounts []Account `json:"accounts"`
	HasNext  bool      `json:"has_next"`
	Cursor   string    `json:"cursor"`
}

type productResponse struct {
	ProductID string          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
}

type MarketMarketIOC struct {
	QuoteSize string `json:"quote_size,omitempty"`
	BaseSize  string `json:"base_size,omitempty"`
}

type LimitLimitGTC struct {
	QuoteSize  string `json:"quote_size,omitempty"`
	BaseSize   string `json:"base_size,omitempty"`
	LimitPrice string `json:"limit_price"`
	PostOnly   bool   `json:"post_only"`
}

type SORLimitIOC struct {
	QuoteSize  string `json:"quote_size,omitempty"`
	BaseSize   string `json:"base_size,omitempty"`
	LimitPrice string `json:"limit_price"`
}

type StopLimitStopLimitGTC struct {
	BaseSize      string `json:"base_size"`
	LimitPrice    string `json:"limit_price"`
	StopPrice     string `json:"stop_price"`
	StopDirection string `json:"stop_direction"`
}

type OrderConfiguration struct {
	MarketMarketIOC       *MarketMarketIOC       `json:"market_market_ioc,omitempty"`
	LimitLimitGTC         *LimitLimitGTC         `json:"limit_limit_gtc,omitempty"`
	SORLimitIOC           *SORLimitIOC           `json:"sor_limit_ioc,omitempty"`
	StopLimitStopLimitGTC *StopLimitStopLimitGTC `json:"stop_limit_stop_limit_gtc,omitempty"`
}

type CreateOrderRequest struct {
	ClientOrderID      string             `json:"client_order_id"`
	ProductID          string             `json:"product_id"`
	Side               string             `json:"side"`
	OrderConfiguration OrderConfiguration `json:"order_configuration"`
}

type CreateOrderResponse struct {
	Success         bool `json:"success"`
	SuccessResponse struct {
		OrderID       string `json:"order_id"`
		ProductID     string `json:"product_id"`
		Side          string `json:"side"`
		ClientOrderID string `json:"client_order_id"`
	} `json:"success_response"`
	ErrorResponse struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	} `json:"error_response"`
}

type Order struct {
	OrderID            string          `json:"order_id"`
	ClientOrderID      string          `json:"client_order_id"`
	ProductID          string          `json:"product_id"`
	Side               string          `json:"side"`
	OrderType          string          `json:"order_type"`
	Status             string          `json:"status"`
	FilledSize         decimal.Decimal `json:"filled_size"`
	AverageFilledPrice decimal.Decimal `json:"average_filled_price"`
}

type GetOrderResponse struct {
	Order Order `json:"order"`
}

type ListOrdersResponse struct {
	Orders  []Order `json:"orders"`
	HasNext bool    `json:"has_next"`
	Cursor  string  `json:"cursor"`
}

type cancelRequest struct {
	OrderIDs []string `json:"order_ids"`
}

type CancelOrdersResponse struct {
	Results []struct {
		Success       bool   `json:"success"`
		FailureReason string `json:"failure_reason"`
		OrderID       string `json:"order_id"`
	} `json:"results"`
}

// ProductID maps "BTC/USD" onto Coinbase's "BTC-USD".
func ProductID(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "-")
}

func symbolFromProduct(productID string) string {
	return strings.ReplaceAll(productID, "-", "/")
}

// baseCurrency returns the asset being traded, "BTC" for "BTC/USD".
func baseCurrency(symbol string) string {
	id := ProductID(symbol)
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func newCreateOrderRequest(r models.OrderRequest) CreateOrderRequest {
	out := CreateOrderRequest{
		ClientOrderID: r.ClientOrderID,
		ProductID:     ProductID(r.Symbol),
		Side:          strings.ToUpper(r.Side.String()),
	}
	quote, base := "", ""
	if r.IsNotional() {
		quote = r.Notional.String()
	} else {
		base = r.Quantity.String()
	}

	switch r.Kind {
	case enum.KindMarket:
		out.OrderConfiguration.MarketMarketIOC = &MarketMarketIOC{QuoteSize: quote, BaseSize: base}
	case enum.KindLimit:
		if r.TimeInForce == enum.TimeInForceIOC {
			out.OrderConfiguration.SORLimitIOC = &SORLimitIOC{QuoteSize: quote, BaseSize: base, LimitPrice: r.LimitPrice.String()}
		} else {
			out.OrderConfiguration.LimitLimitGTC = &LimitLimitGTC{QuoteSize: quote, BaseSize: base, LimitPrice: r.LimitPrice.String()}
		}
	case enum.KindStop, enum.KindStopLimit:
		limit := r.LimitPrice
		if limit.IsZero() {
			limit = r.StopPrice
		}
		direction := "STOP_DIRECTION_STOP_DOWN"
		if r.Side == enum.SideBuy {
			direction = "STOP_DIRECTION_STOP_UP"
		}
		out.OrderConfiguration.StopLimitStopLimitGTC = &StopLimitStopLimitGTC{
			BaseSize:      base,
			LimitPrice:    limit.String(),
			StopPrice:     r.StopPrice.String(),
			StopDirection: direction,
		}
	}
	return out
}

func (o Order) toModel() (models.OrderRecord, error) {
	side, err := enum.GetOrderSide(o.Side)
	if err != nil {
		return models.OrderRecord{}, err
	}
	return models.OrderRecord{
		ID:             o.OrderID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         symbolFromProduct(o.ProductID),
		Side:           side,
		Kind:           kindFromCoinbase(o.OrderType),
		Status:         statusFromCoinbase(o.Status, o.FilledSize),
		FilledQuantity: o.FilledSize,
		FilledAvgPrice: o.AverageFilledPrice,
	}, nil
}

func kindFromCoinbase(t string) enum.OrderKind {
	switch t {
	case "MARKET":
		return enum.KindMarket
	case "STOP_LIMIT":
		return enum.KindStopLimit
	case "STOP":
		return enum.KindStop
	default:
		return enum.KindLimit
	}
}

func statusFromCoinbase(s string, filled decimal.Decimal) enum.OrderStatus {
	switch s {
	case "OPEN":
		if filled.IsPositive() {
			return enum.StatusPartiallyFilled
		}
		return enum.StatusNew
	case "FILLED":
		return enum.StatusFilled
	case "CANCELLED", "EXPIRED":
		return enum.StatusCanceled
	case "FAILED":
		return enum.StatusRejected
	default:
		return enum.StatusPending
	}
}
