package dispatcher

import (
	"sync"

	"github.com/torosent/soapfire/internal/outcome"
)

// ResultSet is an append-only, concurrency-safe collection of outcome records.
// Drain is the only way to read the records back and seals the set.
type ResultSet struct {
	mu      sync.Mutex
	records []outcome.Record
	sealed  bool
}

// NewResultSet returns an empty set with room for capacity records.
func NewResultSet(capacity int) *ResultSet {
	if capacity < 0 {
		capacity = 0
	}
	return &ResultSet{records: make([]outcome.Record, 0, capacity)}
}

// Add appends rec. It reports false when the set has already been drained.
func (s *ResultSet) Add(rec outcome.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return false
	}
	s.records = append(s.records, rec)
	return true
}

// Len returns the number of records collected so far.
func (s *ResultSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Drain seals the set and hands over its records.
func (s *ResultSet) Drain() []outcome.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
	out := s.records
	s.records = nil
	return out
}
