// Package metrics exposes the engine's Prometheus series:
//
//	borb_orders_total{side,kind}          orders accepted by the brokerage
//	borb_skips_total{reason}              cycles that did not trade, by reason
//	borb_fills_total{side}                orders observed filled
//	borb_fill_timeouts_total              fill waits that ran out of attempts
//	borb_forced_exits_total               stagnant positions sold at market
//	borb_partial_exit_failures_total      stop legs that failed after the limit leg
//	borb_aborts_total                     symbols parked in the aborted phase
//	borb_cycle_duration_seconds{symbol}   time spent in one trade cycle
//	borb_journal_dropped_total            trade events the database writer could not queue
//	borb_last_price{symbol}               latest price seen on the feed
//	borb_ticks_dropped_total              feed ticks for unknown symbols or bad prices
//
// They are registered in init() and served at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "borb_orders_total",
			Help: "Orders accepted by the brokerage",
		},
		[]string{"side", "kind"},
	)

	skips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "borb_skips_total",
			Help: "Trade cycles that ended without an order",
		},
		[]string{"reason"},
	)

	fills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "borb_fills_total",
			Help: "Orders observed filled",
		},
		[]string{"side"},
	)

	fillTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "borb_fill_timeouts_total",
			Help: "Fill waits that exhausted their attempt budget",
		},
	)

	forcedExits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "borb_forced_exits_total",
			Help: "Stagnant positions sold at market",
		},
	)

	partialExitFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "borb_partial_exit_failures_total",
			Help: "Exit stop legs that failed after the limit leg was placed",
		},
	)

	aborts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "borb_aborts_total",
			Help: "Symbols moved to the aborted phase",
		},
	)

	journalDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "borb_journal_dropped_total",
			Help: "Trade events dropped because the database writer queue was full",
		},
	)

	lastPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "borb_last_price",
			Help: "Latest price seen on the feed",
		},
		[]string{"symbol"},
	)

	ticksDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "borb_ticks_dropped_total",
			Help: "Feed ticks that were not routed",
		},
	)

	cycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "borb_cycle_duration_seconds",
			Help:    "Duration of one trade cycle",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(orders, skips, fills)
	prometheus.MustRegister(fillTimeouts, forcedExits, partialExitFailures, aborts, journalDrops)
	prometheus.MustRegister(lastPrice, ticksDropped, cycleDuration)
}

func IncOrders(side, kind string) { orders.WithLabelValues(side, kind).Inc() }
func IncSkips(reason string)      { skips.WithLabelValues(reason).Inc() }
func IncFills(side string)        { fills.WithLabelValues(side).Inc() }
func IncFillTimeouts()            { fillTimeouts.Inc() }
func IncForcedExits()             { forcedExits.Inc() }
func IncPartialExitFailures()     { partialExitFailures.Inc() }
func IncAborts()                  { aborts.Inc() }
func IncJournalDrops()            { journalDrops.Inc() }
func IncTicksDropped()            { ticksDropped.Inc() }
func SetLastPrice(symbol string, price float64) {
	lastPrice.WithLabelValues(symbol).Set(price)
}
func ObserveCycle(symbol string, seconds float64) {
	cycleDuration.WithLabelValues(symbol).Observe(seconds)
}
