// Package util contains internal helpers for sharding and hot counters.
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"sync/atomic"
	"unsafe"
)

// CacheLineSize is a reasonable default for most modern CPUs.
const CacheLineSize = 64

// CacheLinePad separates groups of hot fields into distinct cache lines.
type CacheLinePad struct{ _ [CacheLineSize]byte }

// Counter is a monotonically increasing atomic uint64 padded to exactly one
// cache line, so per-shard counters bumped by different goroutines do not
// false-share.
type Counter struct {
	atomic.Uint64
	_ [CacheLineSize - 8]byte
}

// Inc adds one.
func (c *Counter) Inc() { c.Add(1) }

// Reset sets the counter back to zero.
func (c *Counter) Reset() { c.Store(0) }

var _ [CacheLineSize - int(unsafe.Sizeof(Counter{}))]byte
