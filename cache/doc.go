// Package cache provides a process-local, generic, tag-aware cache for values
// fetched from a slow remote store such as a spreadsheet API. Entries expire
// after a TTL. The cache bounds both its entry count and its estimated memory,
// evicts least-recently-used entries under pressure, and supports bulk
// invalidation by tag or key pattern.
//
// Design
//
//   - Storage: each shard keeps a map[string]*entry for lookups, an intrusive
//     MRU↔LRU doubly linked list for recency and a tag → keys index. One
//     mutex per shard guards all three plus the memory gauge, so they never
//     disagree. The default is a single shard, which gives exact global LRU.
//
//   - Limits: before admitting an entry of size s the shard evicts LRU victims
//     while len >= MaxEntries, then while mem+s > MaxMemoryBytes. If the shard
//     runs empty the entry is admitted anyway.
//
//   - TTL: every entry has a deadline. Expiry is lazy on Get/Has and also
//     enforced by a background sweeper every SweepInterval. Expiry is counted
//     in Stats.Expirations and Stats.Deletes, never in Stats.Evictions.
//
//   - Sizes: Options.Size gives the footprint of a value; by default the
//     length of its JSON encoding, or DefaultEntrySize if encoding fails.
//
//   - GetOrSet: coalesces concurrent loads for the same key (singleflight).
//     Failed loads are returned to every waiter and nothing is cached.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Set/Delete/Evict/Size signals;
//     see metrics/prom for a Prometheus adapter. Stats returns a snapshot.
//
// Basic usage
//
//	c := cache.New(cache.Options[[]Employee]{MaxEntries: 500})
//	defer c.Close()
//
//	emps, err := c.GetOrSet(ctx, "employees:all",
//	    func(ctx context.Context) ([]Employee, error) { return sheets.Employees(ctx) },
//	    cache.WithTTL(5*time.Minute), cache.WithTags("employees"))
//
//	// after any employee mutation
//	c.InvalidateByTag("employees")
//
// Keys are opaque strings; hierarchical names such as "leaves:user:ann" or
// "reports:monthly:2024-05" work well with InvalidateByGlob("leaves:user:*").
package cache
