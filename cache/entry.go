package cache

import (
	"math"
	"time"
)

// entry is an intrusive doubly linked list element owned by a shard.
// It carries the value together with the expiration, access and memory
// bookkeeping the shard needs.
type entry[V any] struct {
	key string
	val V

	// Intrusive list links: head is MRU, tail is LRU.
	prev *entry[V]
	next *entry[V]

	// UnixNano timestamps. expiresAt > createdAt always holds.
	createdAt    int64
	expiresAt    int64
	lastAccessAt int64

	accessCount uint64
	size        int64
	tags        []string
}

// Key implements policy.Node.
func (e *entry[V]) Key() string { return e.key }

// expired reports whether e is stale at now. An entry is stale from its
// deadline onwards.
func (e *entry[V]) expired(now int64) bool { return now >= e.expiresAt }

// deadline returns now+ttl, saturating at math.MaxInt64.
func deadline(now int64, ttl time.Duration) int64 {
	if int64(ttl) > math.MaxInt64-now {
		return math.MaxInt64
	}
	return now + int64(ttl)
}

// EntryInfo describes a cached entry without its value.
type EntryInfo struct {
	Key            string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastAccessedAt time.Time
	// TTL is the time left until ExpiresAt.
	TTL         time.Duration
	AccessCount uint64
	SizeBytes   int64
	Tags        []string
}

func (e *entry[V]) info(now int64) EntryInfo {
	tags := make([]string, len(e.tags))
	copy(tags, e.tags)
	return EntryInfo{
		Key:            e.key,
		CreatedAt:      time.Unix(0, e.createdAt),
		ExpiresAt:      time.Unix(0, e.expiresAt),
		LastAccessedAt: time.Unix(0, e.lastAccessAt),
		TTL:            time.Duration(e.expiresAt - now),
		AccessCount:    e.accessCount,
		SizeBytes:      e.size,
		Tags:           tags,
	}
}
