package cache

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gobwas/glob"
	perrors "github.com/jmgilman/go/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/IvanBrykalov/sheetcache/internal/util"
	"github.com/IvanBrykalov/sheetcache/policy/lru"
)

var (
	// ErrClosed is returned by GetOrSet and Warm after Close.
	ErrClosed = perrors.New(perrors.CodeConflict, "cache: closed")
	// ErrNilLoader is returned by GetOrSet when no loader is given.
	ErrNilLoader = perrors.New(perrors.CodeInvalidInput, "cache: nil loader")
)

// cache is a sharded, tag-aware TTL + LRU store.
type cache[V any] struct {
	shards []*shard[V]
	gauges gauges
	opt    Options[V]
	log    *slog.Logger

	closed atomic.Bool

	// loads coalesces concurrent GetOrSet misses per key.
	loads singleflight.Group

	// sweeper lifecycle
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New constructs a cache and, unless SweepInterval is negative, starts the
// background sweeper. Call Close to stop it. See Options for defaults.
func New[V any](opt Options[V]) Cache[V] {
	opt = opt.withDefaults()
	if opt.Policy == nil {
		opt.Policy = lru.New[string]()
	}

	c := &cache[V]{
		opt: opt,
		log: opt.Logger.With("component", "cache"),
	}

	n := opt.Shards
	perShardEntries := int(util.SplitLimit(int64(opt.MaxEntries), n))
	perShardMem := util.SplitLimit(opt.MaxMemoryBytes, n)
	c.shards = make([]*shard[V], n)
	for i := range c.shards {
		c.shards[i] = newShard[V](perShardEntries, perShardMem, &c.opt, &c.gauges)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.stop = cancel
	if opt.SweepInterval > 0 {
		c.wg.Add(1)
		go c.sweepLoop(ctx, opt.SweepInterval)
	}
	return c
}

// ---- Cache[V] implementation ----

func (c *cache[V]) Get(key string) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	return c.shardFor(key).get(key, c.now())
}

func (c *cache[V]) Has(key string) bool {
	if c.closed.Load() {
		return false
	}
	return c.shardFor(key).has(key, c.now())
}

func (c *cache[V]) Set(key string, v V, opts ...SetOption) {
	if c.closed.Load() {
		return
	}
	cfg := setConfig{ttl: c.opt.DefaultTTL}
	for _, o := range opts {
		o(&cfg)
	}
	size := c.sizeOf(v)
	c.shardFor(key).set(key, v, cfg.ttl, size, cfg.tags, c.now())
}

func (c *cache[V]) GetOrSet(ctx context.Context, key string, loader Loader[V], opts ...SetOption) (V, error) {
	var zero V
	if c.closed.Load() {
		return zero, ErrClosed
	}
	if loader == nil {
		return zero, ErrNilLoader
	}
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	ch := c.loads.DoChan(key, func() (any, error) {
		// A flight that finished between our miss and this one may have
		// stored the key already.
		if v, ok := c.shardFor(key).peek(key, c.now()); ok {
			return v, nil
		}
		// The flight outlives any single caller: a waiter that gives up
		// must not fail the others.
		v, err := loader(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.Set(key, v, opts...)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *cache[V]) Warm(ctx context.Context, entries []WarmEntry[V]) error {
	if c.closed.Load() {
		return ErrClosed
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	// A plain Group: one failed key must not cancel the others.
	var g errgroup.Group
	g.SetLimit(c.opt.WarmConcurrency)
	for _, we := range entries {
		g.Go(func() error {
			if _, err := c.GetOrSet(ctx, we.Key, we.Loader, we.Options...); err != nil {
				c.log.Warn("cache: warm-up failed", "key", we.Key, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %q: %w", we.Key, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return stderrors.Join(errs...)
}

func (c *cache[V]) Delete(key string) bool {
	if c.closed.Load() {
		return false
	}
	return c.shardFor(key).remove(key)
}

func (c *cache[V]) InvalidateByTag(tag string) int {
	n := 0
	for _, s := range c.shards {
		n += s.removeTag(tag)
	}
	return n
}

func (c *cache[V]) InvalidateByPattern(re *regexp.Regexp) int {
	if re == nil {
		return 0
	}
	return c.invalidateWhere(re.MatchString)
}

func (c *cache[V]) InvalidateByGlob(pattern string) (int, error) {
	g, err := glob.Compile(pattern, ':', '/')
	if err != nil {
		return 0, perrors.WithContext(
			perrors.Wrap(err, perrors.CodeInvalidInput, "cache: invalid glob pattern"),
			"pattern", pattern,
		)
	}
	return c.invalidateWhere(g.Match), nil
}

func (c *cache[V]) invalidateWhere(match func(string) bool) int {
	n := 0
	for _, s := range c.shards {
		n += s.removeMatching(match)
	}
	return n
}

func (c *cache[V]) Clear() {
	for _, s := range c.shards {
		s.clear()
	}
}

func (c *cache[V]) ClearExpired() int {
	now := c.now()
	n := 0
	for _, s := range c.shards {
		n += s.clearExpired(now)
	}
	return n
}

func (c *cache[V]) Keys() []string {
	now := c.now()
	out := make([]string, 0, c.Len())
	for _, s := range c.shards {
		out = s.appendKeys(out, now)
	}
	return out
}

func (c *cache[V]) KeysByTag(tag string) []string {
	now := c.now()
	var out []string
	for _, s := range c.shards {
		out = s.appendKeysByTag(out, tag, now)
	}
	return out
}

func (c *cache[V]) EntryInfo(key string) (EntryInfo, bool) {
	return c.shardFor(key).info(key, c.now())
}

func (c *cache[V]) Stats() Stats { return c.snapshot() }

func (c *cache[V]) ResetStats() {
	for _, s := range c.shards {
		s.resetCounters()
	}
}

func (c *cache[V]) Len() int { return int(c.gauges.entries.Load()) }

func (c *cache[V]) MemoryUsage() int64 { return c.gauges.bytes.Load() }

func (c *cache[V]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.stop()
	c.wg.Wait()
	return nil
}

// ---- helpers ----

func (c *cache[V]) shardFor(key string) *shard[V] {
	if len(c.shards) == 1 {
		return c.shards[0]
	}
	return c.shards[util.ShardIndex(xxhash.Sum64String(key), len(c.shards))]
}

func (c *cache[V]) now() int64 {
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}
