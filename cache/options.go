package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/IvanBrykalov/sheetcache/internal/util"
	"github.com/IvanBrykalov/sheetcache/policy"
)

// Defaults applied by New to zero-valued Options fields.
const (
	DefaultTTL             = 30 * time.Second
	DefaultMaxEntries      = 1000
	DefaultMaxMemoryBytes  = 50 * 1024 * 1024
	DefaultSweepInterval   = 60 * time.Second
	DefaultEntrySize       = 1024 // bytes, used when a value cannot be sized
	DefaultWarmConcurrency = 8
)

// EvictReason explains why the cache dropped an entry on its own.
type EvictReason int

const (
	// EvictLRU: removed as least recently used to satisfy MaxEntries.
	EvictLRU EvictReason = iota
	// EvictMemory: removed as least recently used to satisfy MaxMemoryBytes.
	EvictMemory
	// EvictTTL: expired, either lazily on access or by the sweeper.
	// Expiration is not counted in Stats.Evictions.
	EvictTTL
)

func (r EvictReason) String() string {
	switch r {
	case EvictLRU:
		return "lru"
	case EvictMemory:
		return "memory"
	case EvictTTL:
		return "ttl"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is used by default.
type Metrics interface {
	Hit()
	Miss()
	Set()
	Delete()
	Evict(reason EvictReason)
	// Size reports cache-wide gauges after a mutation.
	Size(entries int, bytes int64)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Loader produces the value for a missing key, typically by calling the
// remote store. It may be slow and it may fail; a failed load is never cached.
// Loaders must be safe to call more than once for the same key.
type Loader[V any] func(ctx context.Context) (V, error)

// Options configures a cache. Zero values are safe; New applies:
//   - DefaultTTL <= 0      => 30s
//   - MaxEntries == 0      => 1000, < 0 => unbounded
//   - MaxMemoryBytes == 0  => 50 MiB, < 0 => unbounded
//   - SweepInterval == 0   => 60s, < 0 => no background sweeper
//   - Shards == 0          => 1, < 0 => auto (power of two ≈ 2*GOMAXPROCS)
//   - nil Policy           => LRU
//   - nil Metrics          => NoopMetrics
//   - nil Logger           => slog.Default()
type Options[V any] struct {
	DefaultTTL     time.Duration
	MaxEntries     int
	MaxMemoryBytes int64
	SweepInterval  time.Duration

	// Shards splits the cache into independently locked partitions. Each
	// shard gets ceil(limit/Shards) of both limits and its own recency order,
	// so LRU is exact only with a single shard.
	Shards int

	// Policy orders entries for eviction; nil => LRU.
	Policy policy.Policy[string]

	// Size returns the estimated footprint of v in bytes. Nil means the
	// JSON-encoded length of v, falling back to DefaultEntrySize when v
	// cannot be encoded. Supplying a cheap hint avoids encoding large
	// payloads on every Set.
	Size func(v V) int64

	// WarmConcurrency bounds parallel loads in Warm (0 => 8).
	WarmConcurrency int

	// OnEvict is called for every entry the cache drops on its own (LRU
	// pressure or expiry), after the shard lock is released and before the
	// triggering call returns. It may call back into the cache.
	OnEvict func(key string, v V, reason EvictReason)
	Metrics Metrics
	Logger  *slog.Logger

	// Clock overrides the time source (tests). Nil => time.Now().
	Clock Clock
}

// withDefaults returns a copy of o with every zero value resolved.
func (o Options[V]) withDefaults() Options[V] {
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = DefaultTTL
	}
	if o.MaxEntries == 0 {
		o.MaxEntries = DefaultMaxEntries
	}
	if o.MaxMemoryBytes == 0 {
		o.MaxMemoryBytes = DefaultMaxMemoryBytes
	}
	if o.SweepInterval == 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	switch {
	case o.Shards == 0:
		o.Shards = 1
	case o.Shards < 0:
		o.Shards = util.ReasonableShardCount()
	case o.Shards > util.MaxShards:
		o.Shards = util.MaxShards
	}
	if o.WarmConcurrency <= 0 {
		o.WarmConcurrency = DefaultWarmConcurrency
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// setConfig is the resolved form of per-call SetOptions.
type setConfig struct {
	ttl  time.Duration
	tags []string
}

// SetOption customizes a single Set or GetOrSet call.
type SetOption func(*setConfig)

// WithTTL overrides DefaultTTL for one entry. Non-positive values are ignored.
func WithTTL(ttl time.Duration) SetOption {
	return func(c *setConfig) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithTags attaches labels used by InvalidateByTag. Empty and duplicate tags
// are dropped; repeated WithTags calls accumulate.
func WithTags(tags ...string) SetOption {
	return func(c *setConfig) {
		for _, t := range tags {
			if t == "" || containsString(c.tags, t) {
				continue
			}
			c.tags = append(c.tags, t)
		}
	}
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
