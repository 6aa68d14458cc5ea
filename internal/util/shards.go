package util

import (
	"math/bits"
	"runtime"
)

// MaxShards caps the automatic shard count.
const MaxShards = 256

// ReasonableShardCount picks a shard count from CPU parallelism:
// nextPow2(2*GOMAXPROCS), clamped to [1..MaxShards].
func ReasonableShardCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	n := int(NextPow2(uint64(p * 2)))
	if n > MaxShards {
		n = MaxShards
	}
	return n
}

// ShardIndex maps a 64-bit hash to a shard index. Power-of-two counts take
// the mask path; anything else falls back to modulo.
func ShardIndex(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	if IsPowerOfTwo(uint64(shards)) {
		return int(hash & uint64(shards-1))
	}
	return int(hash % uint64(shards))
}

// SplitLimit divides a cache-wide limit across shards (ceil division).
// Non-positive limits mean "unbounded" and are returned unchanged.
func SplitLimit(limit int64, shards int) int64 {
	if limit <= 0 || shards <= 1 {
		return limit
	}
	return (limit + int64(shards) - 1) / int64(shards)
}

// IsPowerOfTwo reports whether x is a power of two (> 0).
func IsPowerOfTwo(x uint64) bool { return bits.OnesCount64(x) == 1 }

// NextPow2 returns the smallest power of two >= x; 0 and 1 give 1 and
// anything above 1<<63 is clamped to 1<<63.
func NextPow2(x uint64) uint64 {
	switch {
	case x <= 1:
		return 1
	case x > 1<<63:
		return 1 << 63
	}
	return 1 << bits.Len64(x-1)
}
