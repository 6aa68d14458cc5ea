package main

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	perrors "github.com/jmgilman/go/errors"
)

// sheetStore stands in for the spreadsheet backend the cache fronts. Every
// read sleeps for latency and a failRate fraction of reads fail with a
// retryable error, which is what the read-through path has to tolerate.
type sheetStore struct {
	latency  time.Duration
	failRate float64
	reads    atomic.Int64

	mu        sync.Mutex
	revisions map[string]int
}

// sheetRecord is the payload cached for every key.
type sheetRecord struct {
	Key       string    `json:"key"`
	Revision  int       `json:"revision"`
	FetchedAt time.Time `json:"fetched_at"`
}

func newSheetStore(latency time.Duration, failRate float64) *sheetStore {
	return &sheetStore{
		latency:   latency,
		failRate:  failRate,
		revisions: make(map[string]int),
	}
}

// Read fetches key from the backend.
func (s *sheetStore) Read(ctx context.Context, key string) ([]byte, error) {
	s.reads.Add(1)

	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, perrors.WithContext(perrors.Wrap(ctx.Err(), perrors.CodeTimeout, "read sheet"), "key", key)
	case <-t.C:
	}

	if s.failRate > 0 && rand.Float64() < s.failRate {
		return nil, perrors.WithContext(perrors.New(perrors.CodeUnavailable, "sheet backend unavailable"), "key", key)
	}

	s.mu.Lock()
	rev := s.revisions[key]
	s.mu.Unlock()

	data, err := json.Marshal(sheetRecord{Key: key, Revision: rev, FetchedAt: time.Now().UTC()})
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CodeInternal, "encode record")
	}
	return data, nil
}

// Update records a mutation of key; later reads see a new revision.
func (s *sheetStore) Update(key string) {
	s.mu.Lock()
	s.revisions[key]++
	s.mu.Unlock()
}

// Reads returns how many backend reads were issued.
func (s *sheetStore) Reads() int64 { return s.reads.Load() }
