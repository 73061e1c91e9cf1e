package store

import (
	"sync"
	"time"

	"github.com/relojcausal/relojcausal/pkg/types"
)

// Entry is a report together with the time the server received it.
type Entry struct {
	Report     types.Report
	ReceivedAt time.Time
}

// Store is a thread-safe fixed-capacity ring buffer of reports.
// When full, Add overwrites the oldest entry.
type Store struct {
	mu    sync.RWMutex
	buf   []Entry
	start int              // index of the oldest entry
	n     int              // number of live entries
	now   func() time.Time // injectable for deterministic tests
}

// New creates a Store holding at most capacity reports.
// A non-positive capacity is treated as 1.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1
	}
	return &Store{
		buf: make([]Entry, capacity),
		now: time.Now,
	}
}

// Add appends r, evicting the oldest report when the store is full.
// It returns the stored Entry.
func (s *Store) Add(r types.Report) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := Entry{Report: r, ReceivedAt: s.now()}
	idx := (s.start + s.n) % len(s.buf)
	s.buf[idx] = e
	if s.n < len(s.buf) {
		s.n++
	} else {
		s.start = (s.start + 1) % len(s.buf)
	}
	return e
}

// All returns every held entry, oldest first.
func (s *Store) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tail(s.n)
}

// Latest returns up to n of the newest entries, oldest first.
func (s *Store) Latest(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > s.n {
		n = s.n
	}
	if n < 0 {
		n = 0
	}
	return s.tail(n)
}

// Since returns the entries received at or after t, oldest first.
func (s *Store) Since(t time.Time) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Entries are in arrival order: scan back from the newest.
	k := 0
	for k < s.n {
		e := s.buf[(s.start+s.n-1-k)%len(s.buf)]
		if e.ReceivedAt.Before(t) {
			break
		}
		k++
	}
	return s.tail(k)
}

// Len returns the number of held entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.n
}

// Cap returns the maximum number of entries.
func (s *Store) Cap() int {
	return len(s.buf)
}

// Reset drops every entry.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.buf)
	s.start, s.n = 0, 0
}

// tail copies the newest k entries in arrival order. Callers hold the lock.
func (s *Store) tail(k int) []Entry {
	out := make([]Entry, k)
	first := s.start + s.n - k
	for i := 0; i < k; i++ {
		out[i] = s.buf[(first+i)%len(s.buf)]
	}
	return out
}
