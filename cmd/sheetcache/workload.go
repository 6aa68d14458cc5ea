package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	perrors "github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/sheetcache/cache"
)

// Tags the application attaches to cached sheet reads. A mutation of any
// row in a sheet invalidates everything carrying that sheet's tag.
var sheetTags = []string{
	"employees",
	"leaves",
	"night_duty",
	"attendance",
	"notifications",
	"audit_logs",
	"reports",
}

// workload drives read-through traffic against the cache.
type workload struct {
	cache  cache.Cache[[]byte]
	store  *sheetStore
	log    *slog.Logger
	keys   int     // rows per sheet
	writes float64 // fraction of operations that mutate a row

	loadErrs atomic.Int64
}

// key returns the cache key for row id of sheet tag, e.g. "leaves:user:42".
func key(tag string, id int) string {
	return fmt.Sprintf("%s:user:%d", tag, id)
}

// warmUp preloads the first rows of every sheet.
func (w *workload) warmUp(ctx context.Context, rows int) error {
	entries := make([]cache.WarmEntry[[]byte], 0, rows*len(sheetTags))
	for _, tag := range sheetTags {
		for id := 0; id < rows && id < w.keys; id++ {
			k := key(tag, id)
			entries = append(entries, cache.WarmEntry[[]byte]{
				Key:     k,
				Loader:  w.loader(k),
				Options: []cache.SetOption{cache.WithTags(tag)},
			})
		}
	}
	start := time.Now()
	err := w.cache.Warm(ctx, entries)
	w.log.Info("warm-up finished",
		"entries", len(entries),
		"resident", w.cache.Len(),
		"elapsed", time.Since(start),
		"failed", err != nil,
	)
	return err
}

func (w *workload) loader(k string) cache.Loader[[]byte] {
	return func(ctx context.Context) ([]byte, error) {
		return w.store.Read(ctx, k)
	}
}

// run starts n workers and blocks until ctx ends.
func (w *workload) run(ctx context.Context, n int) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				w.step(ctx)
			}
		}()
	}
	wg.Wait()
}

func (w *workload) step(ctx context.Context) {
	tag := sheetTags[rand.IntN(len(sheetTags))]
	id := rand.IntN(w.keys)
	k := key(tag, id)

	if rand.Float64() < w.writes {
		w.store.Update(k)
		n := w.cache.InvalidateByTag(tag)
		w.log.Debug("sheet mutated", "key", k, "tag", tag, "invalidated", n)
		return
	}

	_, err := w.cache.GetOrSet(ctx, k, w.loader(k), cache.WithTags(tag))
	switch {
	case err == nil, ctx.Err() != nil:
	case perrors.IsRetryable(err):
		w.loadErrs.Add(1)
		w.log.Debug("load failed", "key", k, "code", perrors.GetCode(err))
	default:
		w.loadErrs.Add(1)
		w.log.Warn("load failed", "key", k, "error", err)
	}
}

// report logs a stats line every interval until ctx ends.
func (w *workload) report(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			st := w.cache.Stats()
			w.log.Info("cache stats",
				"size", st.Size,
				"memory_bytes", st.MemoryUsageBytes,
				"hit_rate", fmt.Sprintf("%.3f", st.HitRate),
				"evictions", st.Evictions,
				"expirations", st.Expirations,
				"backend_reads", w.store.Reads(),
				"load_errors", w.loadErrs.Load(),
			)
		}
	}
}
