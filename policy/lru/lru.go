// Package lru implements the least-recently-used recency policy.
package lru

import "github.com/IvanBrykalov/sheetcache/policy"

// lru is a classic move-to-front policy. The shard list is the recency
// order, so the policy keeps no state of its own.
type lru[K comparable] struct {
	h policy.Hooks[K]
}

type lruPolicy[K comparable] struct{}

// New returns a Policy factory that constructs per-shard LRU instances.
func New[K comparable]() policy.Policy[K] { return lruPolicy[K]{} }

// New implements policy.Policy.
func (lruPolicy[K]) New(h policy.Hooks[K]) policy.ShardPolicy[K] {
	return &lru[K]{h: h}
}

// OnAdd places the new entry at MRU.
func (p *lru[K]) OnAdd(n policy.Node[K]) { p.h.PushFront(n) }

// OnGet promotes the entry to MRU.
func (p *lru[K]) OnGet(n policy.Node[K]) { p.h.MoveToFront(n) }

// OnRemove is a no-op for pure LRU.
func (p *lru[K]) OnRemove(_ policy.Node[K]) {}

// Victim is the tail of the shard list.
func (p *lru[K]) Victim() policy.Node[K] { return p.h.Back() }
