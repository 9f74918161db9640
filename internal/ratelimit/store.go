package ratelimit

import (
	"hash/maphash"
	"sync"
	"time"
)

const defaultShards = 64

// bucket is the token-bucket state of a single key. credit is the stored
// token count multiplied by the quota period, which keeps refill arithmetic
// exact in nanoseconds.
type bucket struct {
	mu      sync.Mutex
	credit  time.Duration
	last    time.Time
	seen    bool
	evicted bool
}

type shard[K comparable] struct {
	mu      sync.RWMutex
	buckets map[K]*bucket
}

// store is a sharded map from key to bucket. The shard lock only guards map
// membership; check-and-consume happens under the bucket's own lock so that
// unrelated keys never wait on each other.
type store[K comparable] struct {
	seed     maphash.Seed
	mask     uint64
	shards   []shard[K]
	capacity time.Duration
}

func newStore[K comparable](shards int, capacity time.Duration) *store[K] {
	n := 1
	for n < shards {
		n <<= 1
	}
	s := &store[K]{
		seed:     maphash.MakeSeed(),
		mask:     uint64(n - 1),
		shards:   make([]shard[K], n),
		capacity: capacity,
	}
	for i := range s.shards {
		s.shards[i].buckets = make(map[K]*bucket)
	}
	return s
}

func (s *store[K]) shardFor(key K) *shard[K] {
	return &s.shards[maphash.Comparable(s.seed, key)&s.mask]
}

// acquire returns the bucket for key with its lock held, creating a full
// bucket on first sight. A bucket evicted between lookup and lock is retried.
func (s *store[K]) acquire(key K) *bucket {
	sh := s.shardFor(key)
	for {
		sh.mu.RLock()
		b, ok := sh.buckets[key]
		sh.mu.RUnlock()

		if !ok {
			sh.mu.Lock()
			b, ok = sh.buckets[key]
			if !ok {
				b = &bucket{credit: s.capacity}
				sh.buckets[key] = b
			}
			sh.mu.Unlock()
		}

		b.mu.Lock()
		if !b.evicted {
			return b
		}
		b.mu.Unlock()
	}
}

// sweep removes every bucket for which full reports true and returns the
// number removed.
func (s *store[K]) sweep(full func(*bucket) bool) int {
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, b := range sh.buckets {
			b.mu.Lock()
			if full(b) {
				b.evicted = true
				delete(sh.buckets, key)
				removed++
			}
			b.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	return removed
}

func (s *store[K]) len() int {
	total := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		total += len(sh.buckets)
		sh.mu.RUnlock()
	}
	return total
}
