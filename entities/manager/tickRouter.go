package manager

import (
	"sync"

	"github.com/jonathanbbiles/BorB4/api_helper"
	"github.com/jonathanbbiles/BorB4/metrics"
	"github.com/jonathanbbiles/BorB4/models"
)

// TickSink consumes price ticks. signaler.PriceStore and paper.Broker both
// satisfy it, as does the coinbase feed's sink interface.
type TickSink interface {
	Ingest(tick models.Tick)
}

// TickRouter fans each tick out to every sink. Ticks for symbols the toggle
// store has never heard of are dropped.
type TickRouter struct {
	mu      sync.RWMutex
	toggles *api_helper.ToggleStore
	sinks   []TickSink
	dropped uint64
}

func NewTickRouter(toggles *api_helper.ToggleStore, sinks ...TickSink) *TickRouter {
	return &TickRouter{toggles: toggles, sinks: sinks}
}

func (r *TickRouter) AddSink(sink TickSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, sink)
}

func (r *TickRouter) Ingest(tick models.Tick) {
	if _, known := r.toggles.Get(tick.Symbol); !known || tick.Price <= 0 {
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		metrics.IncTicksDropped()
		return
	}
	r.mu.RLock()
	sinks := r.sinks
	r.mu.RUnlock()
	for _, s := range sinks {
		s.Ingest(tick)
	}
}

// Dropped counts ticks that were not routed.
func (r *TickRouter) Dropped() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dropped
}
