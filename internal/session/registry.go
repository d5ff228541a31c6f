// File: internal/session/registry.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe connection registry. Keys are connection ids, which
// are allocated from a monotonic counter and never reused, so a stale event
// carrying an old id can never resolve to a newer connection.

package session

import (
	"sync"
	"sync/atomic"
)

// Registry maps connection ids to sessions.
type Registry struct {
	shards []*registryShard
	mask   uint64
	nextID atomic.Uint64
	count  atomic.Int64
}

type registryShard struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
}

// NewRegistry constructs a registry with shardCount shards.
func NewRegistry(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = 16
	}
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*registryShard, m)
	for i := range shards {
		shards[i] = &registryShard{sessions: make(map[uint64]*Session)}
	}
	return &Registry{shards: shards, mask: uint64(m - 1)}
}

// NextID allocates a fresh connection id. Ids start at 1.
func (r *Registry) NextID() uint64 {
	return r.nextID.Add(1)
}

func (r *Registry) shard(id uint64) *registryShard {
	return r.shards[id&r.mask]
}

// Add inserts s, replacing nothing; it reports false on a duplicate id.
func (r *Registry) Add(s *Session) bool {
	sh := r.shard(s.ID())
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[s.ID()]; ok {
		return false
	}
	sh.sessions[s.ID()] = s
	r.count.Add(1)
	return true
}

// Get fetches a session if present.
func (r *Registry) Get(id uint64) (*Session, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[id]
	return s, ok
}

// Remove deletes id and reports whether it was present.
func (r *Registry) Remove(id uint64) bool {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[id]; !ok {
		return false
	}
	delete(sh.sessions, id)
	r.count.Add(-1)
	return true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	return int(r.count.Load())
}

// Snapshot returns all registered sessions at the time of the call.
func (r *Registry) Snapshot() []*Session {
	out := make([]*Session, 0, r.Len())
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			out = append(out, s)
		}
		sh.mu.RUnlock()
	}
	return out
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
