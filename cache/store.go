package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/sheetcache/internal/util"
	"github.com/IvanBrykalov/sheetcache/policy"
)

// gauges are cache-wide point-in-time totals, updated by deltas from every
// shard so Stats and Metrics.Size never need to lock all shards.
type gauges struct {
	entries atomic.Int64
	bytes   atomic.Int64
}

// removal says why an entry leaves a shard; it decides which counters move.
type removal int

const (
	removeDelete removal = iota // explicit Delete or tag/pattern invalidation
	removeExpire                // TTL (lazy or swept)
	removeEvictLRU
	removeEvictMemory
	removeClear
)

// eviction is an OnEvict call recorded under the lock.
type eviction[V any] struct {
	key    string
	val    V
	reason EvictReason
}

// shard is an independently locked partition of the cache. It owns the
// entry map, an intrusive list (head=MRU, tail=LRU) and the tag index for
// its keys; one mutex guards all of them together with the memory gauge.
type shard[V any] struct {
	// ---- guarded by mu ----
	mu         sync.Mutex
	m          map[string]*entry[V]
	head       *entry[V] // MRU
	tail       *entry[V] // LRU
	len        int
	mem        int64
	tags       tagIndex
	maxEntries int   // <= 0: unbounded
	maxMem     int64 // <= 0: unbounded

	pol     policy.ShardPolicy[string]
	opt     *Options[V]
	g       *gauges
	pending []eviction[V] // OnEvict calls deferred until mu is released

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_           util.CacheLinePad
	hits        util.Counter
	misses      util.Counter
	sets        util.Counter
	deletes     util.Counter
	evictions   util.Counter
	expirations util.Counter
}

func newShard[V any](maxEntries int, maxMem int64, opt *Options[V], g *gauges) *shard[V] {
	s := &shard[V]{
		m:          make(map[string]*entry[V]),
		tags:       make(tagIndex),
		maxEntries: maxEntries,
		maxMem:     maxMem,
		opt:        opt,
		g:          g,
	}
	s.pol = opt.Policy.New(shardHooks[V]{s: s})
	return s
}

// get returns the value for k and records a hit or a miss. An expired entry
// is removed and reported as a miss.
func (s *shard[V]) get(k string, now int64) (V, bool) {
	s.mu.Lock()
	defer s.unlock()

	e, ok := s.m[k]
	if ok && e.expired(now) {
		s.dropLocked(e, removeExpire)
		s.publishSizeLocked()
		ok = false
	}
	if !ok {
		s.misses.Inc()
		s.opt.Metrics.Miss()
		var zero V
		return zero, false
	}

	e.accessCount++
	e.lastAccessAt = now
	s.pol.OnGet(e)
	s.hits.Inc()
	s.opt.Metrics.Hit()
	return e.val, true
}

// peek is get without stats or recency side effects. Expired entries are
// reported absent but left for get or the sweeper to remove.
func (s *shard[V]) peek(k string, now int64) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.m[k]; ok && !e.expired(now) {
		return e.val, true
	}
	var zero V
	return zero, false
}

// has reports whether a live entry exists for k, removing it if expired.
// Hit/miss counters and recency are untouched.
func (s *shard[V]) has(k string, now int64) bool {
	s.mu.Lock()
	defer s.unlock()

	e, ok := s.m[k]
	if !ok {
		return false
	}
	if e.expired(now) {
		s.dropLocked(e, removeExpire)
		s.publishSizeLocked()
		return false
	}
	return true
}

// set inserts or replaces k. A replaced entry gives back its size and tag
// memberships before limits are enforced, so an overwrite is never counted
// twice and never evicts itself.
func (s *shard[V]) set(k string, v V, ttl time.Duration, size int64, tags []string, now int64) {
	s.mu.Lock()
	defer s.unlock()

	var accessCount uint64
	if old, ok := s.m[k]; ok {
		accessCount = old.accessCount
		s.unlinkLocked(old)
	}

	s.admitLocked(size)

	e := &entry[V]{
		key:          k,
		val:          v,
		createdAt:    now,
		expiresAt:    deadline(now, ttl),
		lastAccessAt: now,
		accessCount:  accessCount,
		size:         size,
		tags:         tags,
	}
	s.m[k] = e
	s.pol.OnAdd(e)
	s.mem += size
	s.g.entries.Add(1)
	s.g.bytes.Add(size)
	s.tags.add(k, tags)

	s.sets.Inc()
	s.opt.Metrics.Set()
	s.publishSizeLocked()
}

// remove deletes k if present and reports whether it did.
func (s *shard[V]) remove(k string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[k]
	if !ok {
		return false
	}
	s.dropLocked(e, removeDelete)
	s.publishSizeLocked()
	return true
}

// removeTag deletes every key carrying tag and returns how many were removed.
func (s *shard[V]) removeTag(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.tags.keys(tag)
	for _, k := range keys {
		if e, ok := s.m[k]; ok {
			s.dropLocked(e, removeDelete)
		}
	}
	// dropLocked prunes the bucket once its last key is gone.
	if len(keys) > 0 {
		s.publishSizeLocked()
	}
	return len(keys)
}

// removeMatching deletes every key for which match returns true.
func (s *shard[V]) removeMatching(match func(string) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, e := range s.m {
		if match(k) {
			s.dropLocked(e, removeDelete)
			n++
		}
	}
	if n > 0 {
		s.publishSizeLocked()
	}
	return n
}

// clearExpired removes every entry stale at now.
func (s *shard[V]) clearExpired(now int64) int {
	s.mu.Lock()
	defer s.unlock()

	n := 0
	for _, e := range s.m {
		if e.expired(now) {
			s.dropLocked(e, removeExpire)
			n++
		}
	}
	if n > 0 {
		s.publishSizeLocked()
	}
	return n
}

// clear empties the shard. Cumulative counters are kept.
func (s *shard[V]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.m {
		s.dropLocked(e, removeClear)
	}
	s.publishSizeLocked()
}

// appendKeys appends the keys of live entries to dst, MRU first.
func (s *shard[V]) appendKeys(dst []string, now int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for e := s.head; e != nil; e = e.next {
		if !e.expired(now) {
			dst = append(dst, e.key)
		}
	}
	return dst
}

// appendKeysByTag appends the keys of live entries indexed under tag to dst.
func (s *shard[V]) appendKeysByTag(dst []string, tag string, now int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range s.tags.keys(tag) {
		if e, ok := s.m[k]; ok && !e.expired(now) {
			dst = append(dst, k)
		}
	}
	return dst
}

// info returns the metadata of a live entry.
func (s *shard[V]) info(k string, now int64) (EntryInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[k]
	if !ok || e.expired(now) {
		return EntryInfo{}, false
	}
	return e.info(now), true
}

func (s *shard[V]) resetCounters() {
	s.hits.Reset()
	s.misses.Reset()
	s.sets.Reset()
	s.deletes.Reset()
	s.evictions.Reset()
	s.expirations.Reset()
}

// -------------------- internals (mu held) --------------------

// admitLocked makes room for an incoming entry of the given size: first the
// entry-count limit, then the memory limit, evicting the policy's victim
// each round. When the shard runs empty the entry is admitted anyway, even if
// it alone exceeds maxMem.
func (s *shard[V]) admitLocked(size int64) {
	if s.maxEntries > 0 {
		for s.len >= s.maxEntries {
			if !s.evictOneLocked(removeEvictLRU) {
				return
			}
		}
	}
	if s.maxMem > 0 {
		for s.mem+size > s.maxMem {
			if !s.evictOneLocked(removeEvictMemory) {
				return
			}
		}
	}
}

func (s *shard[V]) evictOneLocked(why removal) bool {
	v := s.pol.Victim()
	if v == nil {
		return false
	}
	s.dropLocked(v.(*entry[V]), why)
	return true
}

// dropLocked unlinks e and accounts for the removal.
func (s *shard[V]) dropLocked(e *entry[V], why removal) {
	s.unlinkLocked(e)

	switch why {
	case removeDelete:
		s.deletes.Inc()
		s.opt.Metrics.Delete()
	case removeExpire:
		s.deletes.Inc()
		s.expirations.Inc()
		s.opt.Metrics.Delete()
		s.notifyEvictLocked(e, EvictTTL)
	case removeEvictLRU:
		s.evictions.Inc()
		s.notifyEvictLocked(e, EvictLRU)
	case removeEvictMemory:
		s.evictions.Inc()
		s.notifyEvictLocked(e, EvictMemory)
	case removeClear:
	}
}

func (s *shard[V]) notifyEvictLocked(e *entry[V], reason EvictReason) {
	s.opt.Metrics.Evict(reason)
	if s.opt.OnEvict != nil {
		s.pending = append(s.pending, eviction[V]{key: e.key, val: e.val, reason: reason})
	}
}

// unlock releases mu, then runs the OnEvict calls collected while it was
// held. Callbacks may therefore call back into the cache.
func (s *shard[V]) unlock() {
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, ev := range pending {
		s.opt.OnEvict(ev.key, ev.val, ev.reason)
	}
}

// unlinkLocked removes e from the map, the list and the tag index and gives
// back its size. No counters move.
func (s *shard[V]) unlinkLocked(e *entry[V]) {
	s.removeFromList(e)
	s.pol.OnRemove(e)
	delete(s.m, e.key)
	s.tags.remove(e.key, e.tags)
	s.mem -= e.size
	s.g.entries.Add(-1)
	s.g.bytes.Add(-e.size)
}

func (s *shard[V]) publishSizeLocked() {
	s.opt.Metrics.Size(int(s.g.entries.Load()), s.g.bytes.Load())
}

// insertFront inserts e at MRU in O(1).
func (s *shard[V]) insertFront(e *entry[V]) {
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
	s.len++
}

// moveToFront promotes e to MRU in O(1).
func (s *shard[V]) moveToFront(e *entry[V]) {
	if e == s.head {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if s.tail == e {
		s.tail = e.prev
	}
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
}

// removeFromList detaches e in O(1).
func (s *shard[V]) removeFromList(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if s.head == e {
		s.head = e.next
	}
	if s.tail == e {
		s.tail = e.prev
	}
	e.prev, e.next = nil, nil
	s.len--
}

// -------------------- policy hooks --------------------

// shardHooks adapts the shard's list operations to policy.Hooks.
type shardHooks[V any] struct{ s *shard[V] }

func (h shardHooks[V]) MoveToFront(x policy.Node[string]) { h.s.moveToFront(x.(*entry[V])) }
func (h shardHooks[V]) PushFront(x policy.Node[string])   { h.s.insertFront(x.(*entry[V])) }
func (h shardHooks[V]) Len() int                          { return h.s.len }

// Back returns the LRU entry. An empty list yields a nil interface, not a
// typed nil pointer.
func (h shardHooks[V]) Back() policy.Node[string] {
	if h.s.tail == nil {
		return nil
	}
	return h.s.tail
}
