package api_helper

import (
	"fmt"
	"sort"
	"sync"
)

// ToggleStore is the set of known symbols and whether each one is traded.
type ToggleStore struct {
	mu      sync.RWMutex
	toggles map[string]bool
}

// NewToggleStore registers symbols with the given initial state.
func NewToggleStore(symbols []string, enabled bool) *ToggleStore {
	m := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		m[s] = enabled
	}
	return &ToggleStore{toggles: m}
}

// Add registers a symbol, leaving an existing one untouched.
func (s *ToggleStore) Add(symbol string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.toggles[symbol]; !ok {
		s.toggles[symbol] = enabled
	}
}

func (s *ToggleStore) Set(symbol string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.toggles[symbol]; !ok {
		return fmt.Errorf("unknown symbol: %s", symbol)
	}
	s.toggles[symbol] = enabled
	return nil
}

func (s *ToggleStore) Toggle(symbol string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.toggles[symbol]
	if !ok {
		return false, fmt.Errorf("unknown symbol: %s", symbol)
	}

	s.toggles[symbol] = !s.toggles[symbol]
	return s.toggles[symbol], nil
}

// Get returns the symbol's state and whether it is known at all.
func (s *ToggleStore) Get(symbol string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.toggles[symbol]
	return v, ok
}

// Enabled lists the traded symbols in sorted order.
func (s *ToggleStore) Enabled() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.toggles))
	for k, v := range s.toggles {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (s *ToggleStore) Snapshot() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// copy so caller can’t mutate internal state
	cp := make(map[string]bool, len(s.toggles))
	for k, v := range s.toggles {
		cp[k] = v
	}
	return cp
}
