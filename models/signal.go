package models

import (
	"errors"
	"math"
	"time"
)

var ErrInvalidSignal = errors.New("invalid signal data")

// Signal is what the evaluator hands the engine for one symbol on one tick.
// Price is the reference price the signal was computed on.
type Signal struct {
	Symbol          string
	EntryReady      bool
	ExitSignalValid bool
	Strength        float64
	Price           float64
	Time            time.Time
}

// Validate rejects missing, NaN or non-positive inputs.
func (s Signal) Validate() error {
	if s.Symbol == "" {
		return errors.Join(ErrInvalidSignal, errors.New("missing symbol"))
	}
	if math.IsNaN(s.Price) || math.IsInf(s.Price, 0) || s.Price <= 0 {
		return errors.Join(ErrInvalidSignal, errors.New("reference price must be a positive number"))
	}
	if math.IsNaN(s.Strength) || math.IsInf(s.Strength, 0) {
		return errors.Join(ErrInvalidSignal, errors.New("strength must be finite"))
	}
	return nil
}
