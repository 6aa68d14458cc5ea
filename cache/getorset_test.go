package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var errSheetDown = errors.New("sheets api: 503")

func TestGetOrSet_CachesOnSuccess(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, Options[[]string]{})
	var calls int
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"ann", "bob"}, nil
	}

	v, err := c.GetOrSet(context.Background(), "employees:all", load, WithTags("employees"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ann", "bob"}, v)

	v, err = c.GetOrSet(context.Background(), "employees:all", load)
	require.NoError(t, err)
	assert.Equal(t, []string{"ann", "bob"}, v)
	assert.Equal(t, 1, calls, "second call must be a hit")
	assert.Equal(t, []string{"employees:all"}, c.KeysByTag("employees"))

	st := c.Stats()
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
	assert.Equal(t, uint64(1), st.Sets)
}

// A failing loader caches nothing and a later call loads again.
func TestGetOrSet_FailureNotCached(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, Options[int]{})

	_, err := c.GetOrSet(context.Background(), "attendance:2024-05",
		func(context.Context) (int, error) { return 0, errSheetDown })
	require.ErrorIs(t, err, errSheetDown, "loader error must come back unchanged")
	assert.False(t, c.Has("attendance:2024-05"))
	assert.Zero(t, c.Stats().Sets)

	var called bool
	v, err := c.GetOrSet(context.Background(), "attendance:2024-05",
		func(context.Context) (int, error) { called = true; return 31, nil })
	require.NoError(t, err)
	assert.True(t, called, "failure must not be cached")
	assert.Equal(t, 31, v)
	assert.Equal(t, uint64(1), c.Stats().Sets)
	checkInvariants(t, c)
}

func TestGetOrSet_NilLoader(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, Options[int]{})
	_, err := c.GetOrSet(context.Background(), "a", nil)
	assert.ErrorIs(t, err, ErrNilLoader)
}

func TestGetOrSet_Closed(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, Options[int]{})
	require.NoError(t, c.Close())
	_, err := c.GetOrSet(context.Background(), "a", func(context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrClosed)
}

// Concurrent misses on one key run the loader once.
func TestGetOrSet_Singleflight(t *testing.T) {
	var calls atomic.Int64

	c := New(Options[string]{SweepInterval: -1, Logger: quietLogger})
	t.Cleanup(func() { _ = c.Close() })

	load := func(context.Context) (string, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond) // simulate the remote API
		return "v:k", nil
	}

	const N = 64
	var g errgroup.Group
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := make(chan struct{})
	for i := 0; i < N; i++ {
		g.Go(func() error {
			<-start
			v, err := c.GetOrSet(ctx, "k", load)
			if err != nil {
				return err
			}
			if v != "v:k" {
				return fmt.Errorf("got %q", v)
			}
			return nil
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), calls.Load(), "loader must run exactly once")
	assert.Equal(t, uint64(1), c.Stats().Sets)
}

// A waiter whose ctx ends gives up; the shared load still completes.
func TestGetOrSet_FollowerContextCancel(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, Options[int]{})

	release := make(chan struct{})
	started := make(chan struct{})
	leaderDone := make(chan error, 1)
	go func() {
		_, err := c.GetOrSet(context.Background(), "slow", func(context.Context) (int, error) {
			close(started)
			<-release
			return 7, nil
		})
		leaderDone <- err
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetOrSet(ctx, "slow", func(context.Context) (int, error) { return -1, nil })
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	require.NoError(t, <-leaderDone)
	v, ok := c.Get("slow")
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

// Cancelling the caller that started a load does not fail the others
// waiting on it, and the value is still cached.
func TestGetOrSet_LeaderCancelKeepsLoad(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, Options[int]{})

	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return 42, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan error, 1)
	go func() {
		_, err := c.GetOrSet(leaderCtx, "night_duty:2024-05", load)
		leaderDone <- err
	}()
	<-started

	type result struct {
		v   int
		err error
	}
	followerDone := make(chan result, 1)
	go func() {
		v, err := c.GetOrSet(context.Background(), "night_duty:2024-05", load)
		followerDone <- result{v, err}
	}()
	time.Sleep(10 * time.Millisecond) // let the follower join the flight

	cancelLeader()
	assert.ErrorIs(t, <-leaderDone, context.Canceled)

	close(release)
	res := <-followerDone
	require.NoError(t, res.err)
	assert.Equal(t, 42, res.v)
	assert.Equal(t, int64(1), calls.Load(), "one shared load")

	v, ok := c.Get("night_duty:2024-05")
	require.True(t, ok, "the shared load must be cached")
	assert.Equal(t, 42, v)
}

// Warm attempts every entry and reports the failures together.
func TestWarm_BestEffort(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, Options[string]{WarmConcurrency: 2})

	ok := func(v string) Loader[string] {
		return func(context.Context) (string, error) { return v, nil }
	}
	fail := func(context.Context) (string, error) { return "", errSheetDown }

	err := c.Warm(context.Background(), []WarmEntry[string]{
		{Key: "employees:all", Loader: ok("e"), Options: []SetOption{WithTags("employees")}},
		{Key: "leaves:all", Loader: fail},
		{Key: "night_duty:all", Loader: ok("n")},
		{Key: "audit_logs:recent", Loader: ok("a")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errSheetDown)
	assert.Contains(t, err.Error(), `"leaves:all"`)

	assert.ElementsMatch(t, []string{"employees:all", "night_duty:all", "audit_logs:recent"}, c.Keys())
	assert.Equal(t, []string{"employees:all"}, c.KeysByTag("employees"))

	assert.NoError(t, c.Warm(context.Background(), nil))
}
