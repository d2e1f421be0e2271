package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMemoryCap bounds the in-memory trail. Past the cap the oldest
// entries are evicted.
const DefaultMemoryCap = 10_000

// MemoryStore is an in-memory Store. Insertion order is the total order;
// queries walk it newest-first.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
}

// NewMemoryStore creates a MemoryStore holding at most cap entries.
// cap <= 0 means DefaultMemoryCap.
func NewMemoryStore(cap int) *MemoryStore {
	if cap <= 0 {
		cap = DefaultMemoryCap
	}
	return &MemoryStore{cap: cap}
}

// Append records an entry, assigning an ID and timestamp when missing.
func (s *MemoryStore) Append(e *Entry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *e)
	if len(s.entries) > s.cap {
		s.entries = s.entries[len(s.entries)-s.cap:]
	}
}

// Query returns entries newest-first, optionally filtered by category and
// limited. TotalEntries is the unfiltered store size.
func (s *MemoryStore) Query(q Query) QueryResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := QueryResult{
		Entries:      []Entry{},
		TotalEntries: len(s.entries),
	}
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if q.Category != "" && e.Category != q.Category {
			continue
		}
		res.Entries = append(res.Entries, e)
		if q.Limit > 0 && len(res.Entries) >= q.Limit {
			break
		}
	}
	return res
}

func (s *MemoryStore) Close() {}
