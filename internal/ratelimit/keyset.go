package ratelimit

import (
	"sync"
	"sync/atomic"
)

// KeySet is a set of keys optimized for concurrent reads. Readers never
// lock; writers copy the set and publish the new version atomically.
type KeySet[K comparable] struct {
	mu   sync.Mutex
	keys atomic.Pointer[map[K]struct{}]
}

// NewKeySet returns a set holding keys.
func NewKeySet[K comparable](keys ...K) *KeySet[K] {
	s := &KeySet[K]{}
	s.Replace(keys)
	return s
}

// Contains reports whether key is in the set. A nil set contains nothing.
func (s *KeySet[K]) Contains(key K) bool {
	if s == nil {
		return false
	}
	m := s.keys.Load()
	if m == nil {
		return false
	}
	_, ok := (*m)[key]
	return ok
}

// Len returns the number of keys in the set.
func (s *KeySet[K]) Len() int {
	if s == nil {
		return 0
	}
	m := s.keys.Load()
	if m == nil {
		return 0
	}
	return len(*m)
}

// Replace swaps the whole set for keys.
func (s *KeySet[K]) Replace(keys []K) {
	m := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	s.mu.Lock()
	s.keys.Store(&m)
	s.mu.Unlock()
}

// Add inserts key and reports whether it was absent.
func (s *KeySet[K]) Add(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.snapshot()
	if _, ok := cur[key]; ok {
		return false
	}
	next := make(map[K]struct{}, len(cur)+1)
	for k := range cur {
		next[k] = struct{}{}
	}
	next[key] = struct{}{}
	s.keys.Store(&next)
	return true
}

// Remove deletes key and reports whether it was present.
func (s *KeySet[K]) Remove(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.snapshot()
	if _, ok := cur[key]; !ok {
		return false
	}
	next := make(map[K]struct{}, len(cur))
	for k := range cur {
		if k != key {
			next[k] = struct{}{}
		}
	}
	s.keys.Store(&next)
	return true
}

// Keys returns the members in no particular order.
func (s *KeySet[K]) Keys() []K {
	cur := s.snapshot()
	out := make([]K, 0, len(cur))
	for k := range cur {
		out = append(out, k)
	}
	return out
}

func (s *KeySet[K]) snapshot() map[K]struct{} {
	if s == nil {
		return nil
	}
	if m := s.keys.Load(); m != nil {
		return *m
	}
	return nil
}
