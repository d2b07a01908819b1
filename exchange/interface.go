package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathanbbiles/BorB4/models"
)

// AccountGateway reads the account snapshot used for sizing.
type AccountGateway interface {
	GetAccount(ctx context.Context) (models.AccountSnapshot, error)
}

// PositionGateway reads the live holding for a symbol. A nil position with a
// nil error means the account is flat.
type PositionGateway interface {
	GetPosition(ctx context.Context, symbol string) (*models.Position, error)
}

// OrderGateway submits, inspects and cancels orders.
type OrderGateway interface {
	ListOpenOrders(ctx context.Context, symbol string) ([]models.OrderRecord, error)
	SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderRecord, error)
	GetOrder(ctx context.Context, orderID string) (models.OrderRecord, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Brokerage is everything the execution engine needs from a venue.
type Brokerage interface {
	AccountGateway
	PositionGateway
	OrderGateway
}

// ErrOrderNotFound is returned when the brokerage has no record of an order.
var ErrOrderNotFound = errors.New("order not found")

// TransportError is any failure talking to the brokerage. StatusCode is zero
// when the request never got a response.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable is true for network failures, throttling and server errors.
func (e *TransportError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRetryable reports whether err is a transport failure worth repeating.
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable()
	}
	return false
}

// IsNotFound reports whether err, however wrapped, is an http 404 from the
// brokerage.
func IsNotFound(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == http.StatusNotFound
}

// NormalizeSymbol strips the pair separator, which is how positions are
// keyed by brokerages that do not accept a slash in the path.
func NormalizeSymbol(symbol string) string {
	out := make([]byte, 0, len(symbol))
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '/' || symbol[i] == '-' {
			continue
		}
		out = append(out, symbol[i])
	}
	return string(out)
}
