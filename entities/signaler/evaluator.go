// Package signaler turns a price history into entry and exit signals.
package signaler

import (
	"math"
	"time"

	talib "github.com/markcheno/go-talib"

	"github.com/jonathanbbiles/BorB4/enum"
	"github.com/jonathanbbiles/BorB4/models"
)

// Evaluator is pure: same history in, same signal out.
type Evaluator interface {
	Evaluate(symbol string, prices []float64) models.Signal
}

type EvaluatorConfig struct {
	EntryMode       enum.EntryMode
	ZScoreMode      enum.ZScoreMode
	RSIPeriod       int
	RSIOverbought   float64
	RSIOversold     float64
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	SlopePeriod     int
	ZScorePeriod    int
	ZScoreThreshold float64
}

func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		EntryMode:       enum.EntryMACDCross,
		ZScoreMode:      enum.ZScoreReversion,
		RSIPeriod:       14,
		RSIOverbought:   70,
		RSIOversold:     30,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		SlopePeriod:     20,
		ZScorePeriod:    20,
		ZScoreThreshold: 1,
	}
}

type TalibEvaluator struct {
	cfg EvaluatorConfig
	now func() time.Time
}

func NewTalibEvaluator(cfg EvaluatorConfig) *TalibEvaluator {
	return &TalibEvaluator{cfg: cfg, now: time.Now}
}

// MinHistory is the shortest series every indicator can be read from.
func (e *TalibEvaluator) MinHistory() int {
	n := e.cfg.MACDSlow + e.cfg.MACDSignal
	for _, p := range []int{e.cfg.RSIPeriod + 1, e.cfg.SlopePeriod, e.cfg.ZScorePeriod} {
		if p > n {
			n = p
		}
	}
	return n + 1
}

// Evaluate reads MACD, RSI, regression slope and z-score at the last sample.
// Strength is the absolute regression slope as a percent of price per sample.
func (e *TalibEvaluator) Evaluate(symbol string, prices []float64) models.Signal {
	sig := models.Signal{Symbol: symbol, Time: e.now()}
	if len(prices) == 0 {
		return sig
	}
	i := len(prices) - 1
	sig.Price = prices[i]
	if len(prices) < e.MinHistory() {
		return sig
	}

	macd, macdSignal, hist := talib.Macd(prices, e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal)
	rsi := talib.Rsi(prices, e.cfg.RSIPeriod)[i]
	slope := talib.LinearRegSlope(prices, e.cfg.SlopePeriod)[i]
	z := zScore(prices, e.cfg.ZScorePeriod, i)

	crossUp := macd[i-1] <= macdSignal[i-1] && macd[i] > macdSignal[i]
	sig.Strength = math.Abs(slope) / sig.Price * 100

	switch e.cfg.EntryMode {
	case enum.EntryMultiFactor:
		zOK := z <= -e.cfg.ZScoreThreshold
		if e.cfg.ZScoreMode == enum.ZScoreMomentum {
			zOK = z >= e.cfg.ZScoreThreshold
		}
		sig.EntryReady = macd[i] > macdSignal[i] &&
			rsi > e.cfg.RSIOversold && rsi < e.cfg.RSIOverbought &&
			slope > 0 && zOK
	default:
		sig.EntryReady = crossUp && rsi < e.cfg.RSIOverbought
	}

	// momentum has faded once the histogram is shrinking below the signal line
	sig.ExitSignalValid = hist[i] < hist[i-1] && macd[i] < macdSignal[i]
	return sig
}

func zScore(prices []float64, period, i int) float64 {
	mean := talib.Sma(prices, period)[i]
	std := talib.StdDev(prices, period, 1)[i]
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return (prices[i] - mean) / std
}
