package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jonathanbbiles/BorB4/enum"
)

// SymbolTradeState is the soft, per-symbol state of the execution engine. It
// is owned by exactly one controller and can be rebuilt from brokerage truth.
type SymbolTradeState struct {
	Phase          enum.TradePhase
	LastTradeAt    time.Time
	CooldownUntil  time.Time
	PendingEntry   *PendingOrder
	EntryTimestamp time.Time
	EntryPrice     decimal.Decimal
	EntryQuantity  decimal.Decimal
	ExitOrderIDs   []string
	AbortedAt      time.Time
	LastError      string
}

func (s *SymbolTradeState) HasPendingEntry() bool {
	return s.PendingEntry != nil
}

func (s *SymbolTradeState) ClearPendingEntry() {
	s.PendingEntry = nil
}

// ClearPosition drops everything recorded about the last entry.
func (s *SymbolTradeState) ClearPosition() {
	s.PendingEntry = nil
	s.EntryTimestamp = time.Time{}
	s.EntryPrice = decimal.Zero
	s.EntryQuantity = decimal.Zero
	s.ExitOrderIDs = nil
}

// Snapshot returns a copy safe to hand to readers outside the controller.
func (s SymbolTradeState) Snapshot() SymbolTradeState {
	cp := s
	if s.PendingEntry != nil {
		pe := *s.PendingEntry
		cp.PendingEntry = &pe
	}
	cp.ExitOrderIDs = append([]string(nil), s.ExitOrderIDs...)
	return cp
}
