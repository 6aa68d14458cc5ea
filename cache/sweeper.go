package cache

import (
	"context"
	"time"
)

// sweepLoop removes expired entries every interval until ctx is cancelled.
// Entries written once and never read again would otherwise stay resident
// until LRU pressure pushes them out.
func (c *cache[V]) sweepLoop(ctx context.Context, every time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// sweep visits shards one at a time; each shard lock is held only for that
// shard's scan, and a cancelled ctx stops the sweep between shards.
func (c *cache[V]) sweep(ctx context.Context) int {
	start := time.Now()
	removed := 0
	for _, s := range c.shards {
		if ctx.Err() != nil {
			break
		}
		removed += s.clearExpired(c.now())
	}
	if removed > 0 {
		c.log.Debug("cache: swept expired entries",
			"removed", removed,
			"remaining", c.Len(),
			"took", time.Since(start),
		)
	}
	return removed
}
