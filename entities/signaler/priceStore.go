package signaler

import (
	"context"
	"sync"

	"github.com/jonathanbbiles/BorB4/channel_helper"
	"github.com/jonathanbbiles/BorB4/models"
)

const DefaultHistoryCapacity = 500

// PriceStore keeps a rolling window of ticks per symbol and fans new ticks
// out to subscribers.
type PriceStore struct {
	mu          sync.RWMutex
	capacity    int
	history     map[string][]models.Tick
	subscribers map[string][]chan models.Tick
}

func NewPriceStore(capacity int) *PriceStore {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &PriceStore{
		capacity:    capacity,
		history:     make(map[string][]models.Tick),
		subscribers: make(map[string][]chan models.Tick),
	}
}

func (s *PriceStore) Ingest(tick models.Tick) {
	if tick.Price <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h := append(s.history[tick.Symbol], tick)
	if len(h) > s.capacity {
		h = append([]models.Tick(nil), h[len(h)-s.capacity:]...)
	}
	s.history[tick.Symbol] = h

	for _, ch := range s.subscribers[tick.Symbol] {
		channel_helper.WriteToChannelAndBufferLatest(ch, tick)
	}
}

// Closes returns a copy of the price series, oldest first.
func (s *PriceStore) Closes(symbol string) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[symbol]
	out := make([]float64, len(h))
	for i, t := range h {
		out[i] = t.Price
	}
	return out
}

func (s *PriceStore) Latest(symbol string) (models.Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[symbol]
	if len(h) == 0 {
		return models.Tick{}, false
	}
	return h[len(h)-1], true
}

// Subscribe returns a channel that always holds the most recent tick for
// symbol, and a func that closes it.
func (s *PriceStore) Subscribe(symbol string) (<-chan models.Tick, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan models.Tick, 1)
	s.subscribers[symbol] = append(s.subscribers[symbol], ch)

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			subs := s.subscribers[symbol]
			for i, c := range subs {
				if c == ch {
					s.subscribers[symbol] = append(subs[:i], subs[i+1:]...)
					close(ch)
					break
				}
			}
		})
	}
	return ch, cleanup
}

// Watch calls fn with the latest tick for symbol until ctx is done. Ticks
// that arrive while fn runs collapse into the newest one.
func (s *PriceStore) Watch(ctx context.Context, symbol string, fn func(models.Tick)) {
	ch, cancel := s.Subscribe(symbol)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ch:
			if !ok {
				return
			}
			fn(tick)
		}
	}
}
