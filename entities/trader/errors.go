package trader

import (
	"errors"
	"fmt"

	"github.com/jonathanbbiles/BorB4/models"
)

// ErrInvalidSignalData is returned for a signal with a missing or non-finite
// input. Only that symbol's cycle is abandoned.
var ErrInvalidSignalData = models.ErrInvalidSignal

// ErrFillTimeout means the order was still working when the poll budget ran
// out. It starts verification, it does not fail the symbol.
var ErrFillTimeout = errors.New("fill timeout")

type FillTimeoutError struct {
	OrderID  string
	Attempts int
	Last     models.OrderRecord
}

func (e *FillTimeoutError) Error() string {
	return fmt.Sprintf("order %s not filled after %d polls (status %s)", e.OrderID, e.Attempts, e.Last.Status)
}

func (e *FillTimeoutError) Unwrap() error {
	return ErrFillTimeout
}

// OrderClosedError reports an order the brokerage canceled or rejected while
// it was being waited on. Record may still carry a partial fill.
type OrderClosedError struct {
	Record models.OrderRecord
}

func (e *OrderClosedError) Error() string {
	return fmt.Sprintf("order %s closed with status %s", e.Record.ID, e.Record.Status)
}

// PartialExitFailure is returned when the take-profit leg was placed but the
// stop-loss leg was not. The take-profit is left in place.
type PartialExitFailure struct {
	Symbol       string
	LimitOrderID string
	Err          error
}

func (e *PartialExitFailure) Error() string {
	return fmt.Sprintf("%s: stop leg failed, take-profit %s stays open: %v", e.Symbol, e.LimitOrderID, e.Err)
}

func (e *PartialExitFailure) Unwrap() error {
	return e.Err
}
