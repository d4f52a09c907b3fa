// Package knowledge implements the mimic/learn/digest loop: a bounded
// experience buffer feeding a frequency/recency ledger that distills into
// compact grains.
package knowledge

import (
	"sync"
	"time"
)

// Experience is one observed interaction.
type Experience struct {
	At   time.Time         `json:"at"`
	Text string            `json:"text"`
	Meta map[string]string `json:"meta,omitempty"`
}

// Store is a capacity-capped experience buffer with strict oldest-first
// eviction. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	capacity int
	records  []Experience
}

// NewStore creates a bounded store. Capacity must be positive; the default
// is 200 records.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 200
	}
	return &Store{capacity: capacity}
}

// Mimic appends an experience stamped with the current time and returns the
// number of records evicted (0 or 1: exactly the single oldest when full).
func (s *Store) Mimic(text string, meta map[string]string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, Experience{At: time.Now(), Text: text, Meta: meta})
	if len(s.records) > s.capacity {
		s.records = s.records[1:]
		return 1
	}
	return 0
}

// Recent returns experiences observed within the trailing window, oldest
// first.
func (s *Store) Recent(window time.Duration) []Experience {
	cutoff := time.Now().Add(-window)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Experience
	for _, rec := range s.records {
		if !rec.At.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

// All returns a copy of the buffer, oldest first.
func (s *Store) All() []Experience {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Experience, len(s.records))
	copy(out, s.records)
	return out
}

// Len reports the current number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Seed preloads records, e.g. from a handoff package, evicting oldest-first
// past capacity.
func (s *Store) Seed(records []Experience) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	if n := len(s.records) - s.capacity; n > 0 {
		s.records = s.records[n:]
	}
}
