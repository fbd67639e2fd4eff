package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// Entry is the token bucket state of one integration.
type Entry struct {
	Tokens       float64   `json:"tokens"`
	LastRefill   time.Time `json:"lastRefill"`
	WindowStart  time.Time `json:"windowStart"`
	RequestCount int       `json:"requestCount"`
}

// Store holds bucket state keyed by integration id.
//
// Update must run fn atomically with respect to other Update calls for the
// same id; this is what keeps the limiter from over-admitting under contention.
type Store interface {
	Get(ctx context.Context, id string) (Entry, bool, error)
	Set(ctx context.Context, id string, entry Entry) error
	Delete(ctx context.Context, id string) error
	Update(ctx context.Context, id string, fn func(entry Entry, found bool) Entry) (Entry, error)
	// Sweep removes entries whose LastRefill is before cutoff and reports how many.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
	Range(ctx context.Context, fn func(id string, entry Entry) bool) error
	Clear(ctx context.Context) error
}

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// MemoryStore is a process-local Store. Ids are spread over independently
// locked shards.
type MemoryStore struct {
	shards [shardCount]*shard
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]Entry)}
	}
	return s
}

func (s *MemoryStore) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%shardCount]
}

func (s *MemoryStore) Get(_ context.Context, id string) (Entry, bool, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	entry, ok := sh.entries[id]
	return entry, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, id string, entry Entry) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.entries[id] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.entries, id)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn func(Entry, bool) Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	current, ok := sh.entries[id]
	next := fn(current, ok)
	sh.entries[id] = next
	return next, nil
}

func (s *MemoryStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, entry := range sh.entries {
			if entry.LastRefill.Before(cutoff) {
				delete(sh.entries, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

func (s *MemoryStore) Range(_ context.Context, fn func(string, Entry) bool) error {
	for _, sh := range s.shards {
		sh.mu.Lock()
		snapshot := make(map[string]Entry, len(sh.entries))
		for id, entry := range sh.entries {
			snapshot[id] = entry
		}
		sh.mu.Unlock()

		for id, entry := range snapshot {
			if !fn(id, entry) {
				return nil
			}
		}
	}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.entries = make(map[string]Entry)
		sh.mu.Unlock()
	}
	return nil
}

// Len returns the number of tracked ids.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}
