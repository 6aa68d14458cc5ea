package cache

import (
	"context"
	"regexp"
)

// Cache is a process-local, tag-aware TTL + LRU cache keyed by string.
// All methods are safe for concurrent use by multiple goroutines.
//
// Values are stored as given and returned as stored; callers must treat
// them as read-only or copy them.
type Cache[V any] interface {
	// Get returns the value for key and records a hit or a miss.
	// On hit the entry becomes most recently used; an expired entry is
	// removed and reported as a miss.
	Get(key string) (V, bool)

	// Has reports whether a live entry exists for key without touching
	// hit/miss counters or recency. An expired entry is removed.
	Has(key string) bool

	// Set inserts or replaces key. Without WithTTL the cache's DefaultTTL
	// applies. Replacing a key drops its old size and tags first.
	Set(key string, v V, opts ...SetOption)

	// GetOrSet returns the cached value for key, or runs loader on a miss
	// and caches its result. Concurrent misses for the same key share one
	// loader call. A loader error is returned unchanged and nothing is
	// cached. The loader receives a context that keeps ctx's values but is
	// never cancelled by any one caller. A caller whose ctx ends while
	// waiting returns ctx.Err(); the load itself continues and is cached.
	GetOrSet(ctx context.Context, key string, loader Loader[V], opts ...SetOption) (V, error)

	// Warm loads several keys concurrently through GetOrSet. Every entry is
	// attempted; the failures are returned joined.
	Warm(ctx context.Context, entries []WarmEntry[V]) error

	// Delete removes key and reports whether it was present.
	Delete(key string) bool

	// InvalidateByTag removes every entry tagged with tag and returns the count.
	InvalidateByTag(tag string) int

	// InvalidateByPattern removes every key matched by re and returns the count.
	// A nil re matches nothing.
	InvalidateByPattern(re *regexp.Regexp) int

	// InvalidateByGlob removes every key matching a shell-style pattern, where
	// '*' stops at ':' and '/' and '**' crosses them.
	InvalidateByGlob(pattern string) (int, error)

	// Clear removes every entry. Cumulative counters are kept.
	Clear()

	// ClearExpired removes every expired entry and returns the count.
	ClearExpired() int

	// Keys returns the keys of all live entries.
	Keys() []string

	// KeysByTag returns the keys of live entries tagged with tag.
	KeysByTag(tag string) []string

	// EntryInfo returns the metadata of a live entry, without its value.
	EntryInfo(key string) (EntryInfo, bool)

	// Stats returns a snapshot of counters and gauges.
	Stats() Stats

	// ResetStats zeroes the cumulative counters. Gauges are unaffected.
	ResetStats()

	// Len returns the number of resident entries, expired ones included
	// until they are removed.
	Len() int

	// MemoryUsage returns the estimated bytes held by resident entries.
	MemoryUsage() int64

	// Close stops the background sweeper and waits for it to exit.
	// Afterwards reads miss, writes are ignored and GetOrSet returns
	// ErrClosed. Close is idempotent.
	Close() error
}

// WarmEntry is one key to populate in Warm.
type WarmEntry[V any] struct {
	Key     string
	Loader  Loader[V]
	Options []SetOption
}
