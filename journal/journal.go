// Package journal is the append-only stream of trade events.
package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	EventInvalidSignal     EventType = "invalid_signal"
	EventCoalesced         EventType = "cycle_coalesced"
	EventGuardSkip         EventType = "guard_skip"
	EventSizingSkip        EventType = "sizing_skip"
	EventEntrySubmitted    EventType = "entry_submitted"
	EventEntrySubmitFailed EventType = "entry_submit_failed"
	EventEntryFilled       EventType = "entry_filled"
	EventEntryClosed       EventType = "entry_closed"
	EventFillTimeout       EventType = "fill_timeout"
	EventVerification      EventType = "verification"
	EventFallbackSubmitted EventType = "fallback_submitted"
	EventExitSubmitted     EventType = "exit_submitted"
	EventExitSubmitFailed  EventType = "exit_submit_failed"
	EventStopSubmitted     EventType = "stop_submitted"
	EventPartialExit       EventType = "partial_exit_failure"
	EventForcedExit        EventType = "forced_exit"
	EventComplete          EventType = "complete"
	EventAborted           EventType = "aborted"
	EventRecovered         EventType = "recovered"
	EventTransportError    EventType = "transport_error"
)

type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Symbol    string         `json:"symbol"`
	Details   map[string]any `json:"details,omitempty"`
}

// Recorder appends events. Sinks deal with their own failures; recording
// never fails the caller.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// LogRecorder writes every event as a structured log line.
type LogRecorder struct {
	logger *slog.Logger
}

func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger.With("component", "journal")}
}

func (r *LogRecorder) Record(ctx context.Context, e Event) {
	attrs := make([]any, 0, 4+2*len(e.Details))
	attrs = append(attrs, "type", string(e.Type), "symbol", e.Symbol)
	for k, v := range e.Details {
		attrs = append(attrs, k, v)
	}
	r.logger.InfoContext(ctx, "trade event", attrs...)
}

// Memory keeps the most recent events in a ring.
type Memory struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 1000
	}
	return &Memory{limit: limit}
}

func (m *Memory) Record(_ context.Context, e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	if len(m.events) > m.limit {
		m.events = append([]Event(nil), m.events[len(m.events)-m.limit:]...)
	}
}

// Recent returns up to n events, newest last.
func (m *Memory) Recent(n int) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.events) {
		n = len(m.events)
	}
	return append([]Event(nil), m.events[len(m.events)-n:]...)
}

func (m *Memory) OfType(t EventType) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Multi fans an event out to every recorder in order.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, e Event) {
	for _, r := range m {
		if r != nil {
			r.Record(ctx, e)
		}
	}
}
