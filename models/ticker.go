package models

import "time"

// Tick is one observed trade price for a symbol.
type Tick struct {
	Symbol string
	Price  float64
	Time   time.Time
}
