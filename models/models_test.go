package models

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/jonathanbbiles/BorB4/enum"
)

func TestSignalValidate(t *testing.T) {
	tests := []struct {
		name    string
		sig     Signal
		wantErr bool
	}{
		{"valid", Signal{Symbol: "BTC/USD", Price: 100, Strength: 0.2}, false},
		{"missing symbol", Signal{Price: 100}, true},
		{"nan price", Signal{Symbol: "BTC/USD", Price: math.NaN()}, true},
		{"zero price", Signal{Symbol: "BTC/USD", Price: 0}, true},
		{"inf strength", Signal{Symbol: "BTC/USD", Price: 1, Strength: math.Inf(1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sig.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSignal) {
				t.Errorf("expected ErrInvalidSignal, got %v", err)
			}
		})
	}
}

func TestFloorToNeverRoundsUp(t *testing.T) {
	d := decimal.RequireFromString("8.739999")
	if got := FloorTo(d, 2); !got.Equal(decimal.RequireFromString("8.73")) {
		t.Errorf("FloorTo = %s, want 8.73", got)
	}
	if got := RoundTo(d, 2); !got.Equal(decimal.RequireFromString("8.74")) {
		t.Errorf("RoundTo = %s, want 8.74", got)
	}
	if got := TickSize(6); !got.Equal(decimal.RequireFromString("0.000001")) {
		t.Errorf("TickSize(6) = %s", got)
	}
}

func TestNewOrderRequestMintsClientID(t *testing.T) {
	a := NewOrderRequest("BTC/USD", enum.SideBuy, enum.KindLimit)
	b := NewOrderRequest("BTC/USD", enum.SideBuy, enum.KindLimit)
	if a.ClientOrderID == "" || a.ClientOrderID == b.ClientOrderID {
		t.Fatalf("expected distinct client ids, got %q and %q", a.ClientOrderID, b.ClientOrderID)
	}
	n := a.WithNotional(decimal.NewFromInt(10))
	if !n.IsNotional() || !n.Quantity.IsZero() {
		t.Errorf("WithNotional did not switch denomination: %+v", n)
	}
	q := n.WithQuantity(decimal.NewFromInt(1))
	if q.IsNotional() {
		t.Error("WithQuantity should clear notional")
	}
	if q.ClientOrderID != a.ClientOrderID {
		t.Error("With* must keep the client order id")
	}
}

func TestSnapshotCopiesPending(t *testing.T) {
	s := SymbolTradeState{PendingEntry: &PendingOrder{OrderID: "a"}, ExitOrderIDs: []string{"x"}}
	cp := s.Snapshot()
	cp.PendingEntry.OrderID = "b"
	cp.ExitOrderIDs[0] = "y"
	if s.PendingEntry.OrderID != "a" || s.ExitOrderIDs[0] != "x" {
		t.Error("Snapshot shares memory with the original state")
	}
}

func TestPositionAvgEntryPrice(t *testing.T) {
	p := Position{Quantity: decimal.NewFromInt(2), CostBasis: decimal.NewFromInt(200)}
	if got := p.AvgEntryPrice(); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("AvgEntryPrice = %s, want 100", got)
	}
	if got := (Position{}).AvgEntryPrice(); !got.IsZero() {
		t.Errorf("flat AvgEntryPrice = %s, want 0", got)
	}
}

func TestCombineFillWeightsPriorFill(t *testing.T) {
	p := PendingOrder{
		PriorFilledQuantity: decimal.NewFromInt(1),
		PriorFilledNotional: decimal.NewFromInt(100),
	}
	qty, avg := p.CombineFill(OrderRecord{FilledQuantity: decimal.NewFromInt(1), FilledAvgPrice: decimal.NewFromInt(102)})
	if !qty.Equal(decimal.NewFromInt(2)) || !avg.Equal(decimal.NewFromInt(101)) {
		t.Errorf("CombineFill = %s @ %s, want 2 @ 101", qty, avg)
	}
	qty, avg = PendingOrder{}.CombineFill(OrderRecord{})
	if !qty.IsZero() || !avg.IsZero() {
		t.Errorf("empty CombineFill = %s @ %s", qty, avg)
	}
}
