package cache

// Stats is a point-in-time snapshot of cache counters and gauges.
//
// Counters are cumulative until ResetStats. Deletes counts every removal the
// caller caused or that expiry caused (Delete, invalidation, TTL); Expirations
// is the TTL subset of it. Evictions counts only LRU pressure from the
// MaxEntries and MaxMemoryBytes limits.
type Stats struct {
	Hits        uint64
	Misses      uint64
	Sets        uint64
	Deletes     uint64
	Evictions   uint64
	Expirations uint64

	// Gauges.
	Size             int
	MemoryUsageBytes int64

	// Configured limits (negative: unbounded).
	MaxEntries     int
	MaxMemoryBytes int64

	// HitRate is Hits/(Hits+Misses), or 0 before the first lookup.
	HitRate float64
}

// hitRate is Hits/(Hits+Misses), or 0 when nothing was looked up yet.
func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

func (c *cache[V]) snapshot() Stats {
	st := Stats{
		Size:             int(c.gauges.entries.Load()),
		MemoryUsageBytes: c.gauges.bytes.Load(),
		MaxEntries:       c.opt.MaxEntries,
		MaxMemoryBytes:   c.opt.MaxMemoryBytes,
	}
	for _, s := range c.shards {
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
		st.Sets += s.sets.Load()
		st.Deletes += s.deletes.Load()
		st.Evictions += s.evictions.Load()
		st.Expirations += s.expirations.Load()
	}
	st.HitRate = hitRate(st.Hits, st.Misses)
	return st
}
