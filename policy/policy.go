// Package policy defines the contract between a cache shard and the recency
// policy that orders its entries for eviction.
package policy

// Node is the minimal view of a cache entry a policy needs.
type Node[K comparable] interface {
	Key() K
}

// Hooks expose the O(1) operations a shard offers over its intrusive
// MRU/LRU list. Implementations are provided by the shard.
//
// Concurrency: all hook calls happen under the shard lock.
// Hooks manage only the list; the shard owns the key->entry map, the tag
// index and the memory gauge.
type Hooks[K comparable] interface {
	// MoveToFront promotes the node to MRU.
	MoveToFront(Node[K])
	// PushFront inserts the node at MRU (used on admission).
	PushFront(Node[K])
	// Back returns the current LRU node (or nil if empty).
	Back() Node[K]
	// Len returns the number of resident nodes in the shard.
	Len() int
}

// ShardPolicy is a per-shard recency policy bound to shard hooks.
// All methods are invoked under the shard lock.
//
//   - OnAdd places a newly admitted node. An overwrite is delivered as
//     OnRemove of the old placement followed by OnAdd.
//   - OnGet records a hit on the node.
//   - OnRemove notifies the policy that the shard dropped the node; the
//     shard has already unlinked it.
//   - Victim names the node to evict next, or nil when the shard is empty.
type ShardPolicy[K comparable] interface {
	OnAdd(Node[K])
	OnGet(Node[K])
	OnRemove(Node[K])
	Victim() Node[K]
}

// Policy is a factory that creates shard-local policy instances.
type Policy[K comparable] interface {
	New(Hooks[K]) ShardPolicy[K]
}
