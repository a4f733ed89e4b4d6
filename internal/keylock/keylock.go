// Package keylock provides a keyed mutex: per-key mutual exclusion without
// a single global lock, the same sharding idea the rate limiter applies to
// per-client counters (pkg/ratelimit in the teacher), applied here to
// per-agent evolution mutations (spec §4.5 "evolution mutations to an agent
// are serialized per-agent").
package keylock

import "sync"

// Keyed hands out one *sync.Mutex per key, created lazily.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an empty Keyed lock set.
func New() *Keyed {
	return &Keyed{locks: make(map[string]*sync.Mutex)}
}

func (k *Keyed) lockFor(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	return l
}

// Lock acquires the per-key lock, blocking until available.
func (k *Keyed) Lock(key string) { k.lockFor(key).Lock() }

// Unlock releases the per-key lock.
func (k *Keyed) Unlock(key string) { k.lockFor(key).Unlock() }

// With runs fn while holding key's lock.
func (k *Keyed) With(key string, fn func() error) error {
	k.Lock(key)
	defer k.Unlock(key)
	return fn()
}
