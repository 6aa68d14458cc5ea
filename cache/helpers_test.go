package cache

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t atomic.Int64 }

func newFakeClock() *fakeClock {
	c := &fakeClock{}
	c.t.Store(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC).UnixNano())
	return c
}

func (f *fakeClock) NowUnixNano() int64  { return f.t.Load() }
func (f *fakeClock) add(d time.Duration) { f.t.Add(int64(d)) }

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newTestCache builds a cache driven by a fake clock with the sweeper off.
func newTestCache[V any](t *testing.T, opt Options[V]) (Cache[V], *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	opt.Clock = clk
	if opt.SweepInterval == 0 {
		opt.SweepInterval = -1
	}
	if opt.Logger == nil {
		opt.Logger = quietLogger
	}
	c := New(opt)
	t.Cleanup(func() { _ = c.Close() })
	return c, clk
}

// lenSize sizes strings by their length.
func lenSize(s string) int64 { return int64(len(s)) }

// checkInvariants walks every shard and asserts that the entry map, the
// recency list, the tag index and the gauges agree.
func checkInvariants[V any](t *testing.T, c Cache[V]) {
	t.Helper()
	impl := c.(*cache[V])

	var totalEntries, totalBytes int64
	for i, s := range impl.shards {
		s.mu.Lock()

		seen := make(map[string]bool, len(s.m))
		var prev *entry[V]
		n := 0
		var mem int64
		for e := s.head; e != nil; e = e.next {
			require.True(t, e.prev == prev, "shard %d: broken prev link at %q", i, e.key)
			require.False(t, seen[e.key], "shard %d: %q listed twice", i, e.key)
			seen[e.key] = true
			require.True(t, s.m[e.key] == e, "shard %d: %q listed but not mapped", i, e.key)
			require.Greater(t, e.expiresAt, e.createdAt)
			for _, tag := range e.tags {
				_, ok := s.tags[tag][e.key]
				require.True(t, ok, "shard %d: %q missing from tag %q", i, e.key, tag)
			}
			prev = e
			n++
			mem += e.size
		}
		require.True(t, s.tail == prev, "shard %d: tail mismatch", i)
		require.Equal(t, len(s.m), n, "shard %d: map/list size mismatch", i)
		require.Equal(t, s.len, n, "shard %d: len gauge", i)
		require.Equal(t, s.mem, mem, "shard %d: mem gauge", i)

		for tag, bucket := range s.tags {
			require.NotEmpty(t, bucket, "shard %d: empty bucket for %q", i, tag)
			for k := range bucket {
				e, ok := s.m[k]
				require.True(t, ok, "shard %d: tag %q points at missing %q", i, tag, k)
				require.Contains(t, e.tags, tag)
			}
		}

		s.mu.Unlock()
		totalEntries += int64(n)
		totalBytes += mem
	}
	require.Equal(t, totalEntries, impl.gauges.entries.Load())
	require.Equal(t, totalBytes, impl.gauges.bytes.Load())
}
