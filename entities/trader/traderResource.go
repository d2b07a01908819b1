package trader

import (
	"sync/atomic"
	"time"
)

// TraderResource is the scheduler's handle on one symbol's controller. The
// in-flight flag lets the scheduler skip dispatch instead of queueing a
// goroutine behind a busy controller.
type TraderResource struct {
	Trader   *Trader
	inFlight atomic.Bool
	lastRun  atomic.Int64
}

func NewTraderResource(t *Trader) *TraderResource {
	return &TraderResource{Trader: t}
}

// TryStart claims the resource for one cycle.
func (r *TraderResource) TryStart() bool {
	return r.inFlight.CompareAndSwap(false, true)
}

func (r *TraderResource) Finish(at time.Time) {
	r.lastRun.Store(at.UnixNano())
	r.inFlight.Store(false)
}

func (r *TraderResource) InFlight() bool {
	return r.inFlight.Load()
}

// LastRun is when the last dispatched cycle ended, zero if none has.
func (r *TraderResource) LastRun() time.Time {
	n := r.lastRun.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
