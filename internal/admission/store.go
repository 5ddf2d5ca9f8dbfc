package admission

import (
	"hash/fnv"
	"sync"
	"time"
)

// WindowState is the per-key fixed-window counter.
type WindowState struct {
	Count       int
	WindowStart time.Time
	Window      time.Duration
}

// Store owns window state for every key.
//
// Increment must run the check-and-increment step atomically for a key;
// different keys must not serialize behind each other.
type Store interface {
	Get(key string) (WindowState, bool)
	Increment(key string, limit int, window time.Duration, now time.Time) (WindowState, bool)
	Evict(now time.Time) int
}

const (
	shardCount        = 32
	defaultEvictAfter = 3
)

// MemoryStore keeps window state in process memory, sharded by key hash.
// Each key has its own lock; the shard lock only guards map membership.
type MemoryStore struct {
	shards     [shardCount]*shard
	evictAfter int
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	state   WindowState
	evicted bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithEvictAfter sets how many full windows must pass after a window started
// before the sweep removes it.
func WithEvictAfter(windows int) MemoryOption {
	return func(s *MemoryStore) {
		if windows > 0 {
			s.evictAfter = windows
		}
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{evictAfter: defaultEvictAfter}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a snapshot of the state for key.
func (s *MemoryStore) Get(key string) (WindowState, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	e, ok := sh.entries[key]
	sh.mu.Unlock()
	if !ok {
		return WindowState{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return WindowState{}, false
	}
	return e.state, true
}

// Increment applies one fixed-window step for key and reports whether the
// call was admitted.
func (s *MemoryStore) Increment(key string, limit int, window time.Duration, now time.Time) (WindowState, bool) {
	for {
		e := s.lookup(key)

		e.mu.Lock()
		if e.evicted {
			// Lost a race with the sweep; the key has a fresh entry now.
			e.mu.Unlock()
			continue
		}
		allowed := advance(&e.state, limit, window, now)
		state := e.state
		e.mu.Unlock()

		return state, allowed
	}
}

// Evict removes entries whose window started more than evictAfter windows
// before now.
func (s *MemoryStore) Evict(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, e := range sh.entries {
			e.mu.Lock()
			if s.expired(e.state, now) {
				e.evicted = true
				delete(sh.entries, key)
				removed++
			}
			e.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.entries)
		sh.mu.Unlock()
	}
	return total
}

func (s *MemoryStore) expired(state WindowState, now time.Time) bool {
	if state.WindowStart.IsZero() {
		return true
	}
	retention := state.Window * time.Duration(s.evictAfter)
	return now.Sub(state.WindowStart) >= retention
}

func (s *MemoryStore) lookup(key string) *entry {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		e = &entry{}
		sh.entries[key] = e
	}
	return e
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}
