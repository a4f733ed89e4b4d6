package ratelimit

import (
	"sync"
	"time"
)

// Store is the persistence layer for window counters and block state.
// Implementations must be thread-safe. MemoryStore is the only
// implementation the kernel needs: rate-limit buckets are explicitly
// in-memory, advisory state (spec §3's RateBucket entity, evicted when idle
// past window) rather than durable Store-backed state.
type Store interface {
	GetUsage(clientID string, window Window) (current int64, windowEnd time.Time)
	Increment(clientID string, window Window) (current int64, windowEnd time.Time)
	GetBlockUntil(clientID string) (time.Time, bool)
	SetBlockUntil(clientID string, until time.Time)
	DeleteExpired(before time.Time)
}

type usageKey struct {
	clientID string
	window   Window
}

type usageRecord struct {
	amount    int64
	windowEnd time.Time
}

// MemoryStore is the in-memory, sharded Store implementation. Sharding by
// clientID hash keeps contention local to one client's bucket instead of a
// single global mutex (spec §5 "Rate-limit buckets use per-client
// fine-grained mutual exclusion (sharded)").
type MemoryStore struct {
	shards []shard
}

type shard struct {
	mu         sync.Mutex
	usage      map[usageKey]*usageRecord
	blockUntil map[string]time.Time
}

const shardCount = 32

// NewMemoryStore creates a sharded in-memory rate-limit store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{shards: make([]shard, shardCount)}
	for i := range s.shards {
		s.shards[i].usage = make(map[usageKey]*usageRecord)
		s.shards[i].blockUntil = make(map[string]time.Time)
	}
	return s
}

func (s *MemoryStore) shardFor(clientID string) *shard {
	var h uint32
	for i := 0; i < len(clientID); i++ {
		h = h*31 + uint32(clientID[i])
	}
	return &s.shards[h%shardCount]
}

func (s *MemoryStore) GetUsage(clientID string, window Window) (int64, time.Time) {
	sh := s.shardFor(clientID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	key := usageKey{clientID, window}
	rec, ok := sh.usage[key]
	now := time.Now()
	if !ok || rec.windowEnd.Before(now) {
		return 0, now.Add(window.Duration())
	}
	return rec.amount, rec.windowEnd
}

func (s *MemoryStore) Increment(clientID string, window Window) (int64, time.Time) {
	sh := s.shardFor(clientID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	key := usageKey{clientID, window}
	now := time.Now()
	rec, ok := sh.usage[key]
	if !ok || rec.windowEnd.Before(now) {
		rec = &usageRecord{amount: 1, windowEnd: now.Add(window.Duration())}
		sh.usage[key] = rec
		return rec.amount, rec.windowEnd
	}
	rec.amount++
	return rec.amount, rec.windowEnd
}

func (s *MemoryStore) GetBlockUntil(clientID string) (time.Time, bool) {
	sh := s.shardFor(clientID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	t, ok := sh.blockUntil[clientID]
	return t, ok
}

func (s *MemoryStore) SetBlockUntil(clientID string, until time.Time) {
	sh := s.shardFor(clientID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.blockUntil[clientID] = until
}

func (s *MemoryStore) DeleteExpired(before time.Time) {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, rec := range sh.usage {
			if rec.windowEnd.Before(before) {
				delete(sh.usage, key)
			}
		}
		for client, until := range sh.blockUntil {
			if until.Before(before) {
				delete(sh.blockUntil, client)
			}
		}
		sh.mu.Unlock()
	}
}
