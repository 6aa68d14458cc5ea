package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	perrors "github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/sheetcache/cache"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newDebugServer(t *testing.T) (cache.Cache[[]byte], *httptest.Server) {
	t.Helper()
	c := cache.New(cache.Options[[]byte]{SweepInterval: -1, Logger: discard})
	t.Cleanup(func() { _ = c.Close() })

	c.Set("employees:user:1", []byte(`{"name":"ann"}`), cache.WithTags("employees"))
	c.Set("leaves:user:1", []byte(`{}`), cache.WithTags("leaves"))
	c.Set("leaves:user:2", []byte(`{}`), cache.WithTags("leaves"))

	srv := httptest.NewServer(&debugHandler{cache: c, log: discard})
	t.Cleanup(srv.Close)
	return c, srv
}

func do(t *testing.T, method, target string, out any) int {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, target, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestDebugHandler_Get(t *testing.T) {
	_, srv := newDebugServer(t)

	t.Run("overview", func(t *testing.T) {
		var view cacheView
		require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL, &view))
		assert.Equal(t, 3, view.Stats.Size)
		assert.ElementsMatch(t, []string{"employees:user:1", "leaves:user:1", "leaves:user:2"}, view.Keys)
	})

	t.Run("entry", func(t *testing.T) {
		var info cache.EntryInfo
		require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"?key=employees:user:1", &info))
		assert.Equal(t, "employees:user:1", info.Key)
		assert.Equal(t, []string{"employees"}, info.Tags)
		assert.Positive(t, info.SizeBytes)
		assert.Positive(t, info.TTL)
	})

	t.Run("missing entry", func(t *testing.T) {
		var e perrors.ErrorResponse
		require.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"?key=nope", &e))
		assert.Equal(t, string(perrors.CodeNotFound), e.Code)
		assert.Equal(t, "nope", e.Context["key"])
	})

	t.Run("keys by tag", func(t *testing.T) {
		var body struct {
			Tag  string   `json:"tag"`
			Keys []string `json:"keys"`
		}
		require.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"?tag=leaves", &body))
		assert.Equal(t, "leaves", body.Tag)
		assert.ElementsMatch(t, []string{"leaves:user:1", "leaves:user:2"}, body.Keys)
	})
}

func TestDebugHandler_Invalidate(t *testing.T) {
	c, srv := newDebugServer(t)

	var removed map[string]int
	require.Equal(t, http.StatusOK, do(t, http.MethodDelete, srv.URL+"?glob=leaves:user:*", &removed))
	assert.Equal(t, 2, removed["removed"])

	require.Equal(t, http.StatusOK, do(t, http.MethodDelete, srv.URL+"?tag=employees", &removed))
	assert.Equal(t, 1, removed["removed"])
	assert.Zero(t, c.Len())

	var e perrors.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodDelete, srv.URL+"?glob="+url.QueryEscape("leaves:["), &e))
	assert.Equal(t, string(perrors.CodeInvalidInput), e.Code)

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodDelete, srv.URL, &e))
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, http.MethodPost, srv.URL, &e))
}

func TestSheetStore(t *testing.T) {
	s := newSheetStore(time.Millisecond, 0)

	data, err := s.Read(context.Background(), "reports:user:1")
	require.NoError(t, err)
	var rec sheetRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, 0, rec.Revision)

	s.Update("reports:user:1")
	data, err = s.Read(context.Background(), "reports:user:1")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, 1, rec.Revision)
	assert.Equal(t, int64(2), s.Reads())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newSheetStore(time.Hour, 0).Read(ctx, "k")
	assert.Equal(t, perrors.CodeTimeout, perrors.GetCode(err))

	_, err = newSheetStore(0, 1).Read(context.Background(), "k")
	assert.True(t, perrors.IsRetryable(err))
}

// A mutation invalidates the sheet's tag so the next read goes to the backend.
func TestWorkload_ReadThrough(t *testing.T) {
	c := cache.New(cache.Options[[]byte]{SweepInterval: -1, Logger: discard})
	t.Cleanup(func() { _ = c.Close() })
	store := newSheetStore(0, 0)
	wl := &workload{cache: c, store: store, log: discard, keys: 2}

	require.NoError(t, wl.warmUp(context.Background(), 2))
	assert.Equal(t, 2*len(sheetTags), c.Len())
	assert.Equal(t, int64(2*len(sheetTags)), store.Reads())

	ctx := context.Background()
	k := key("leaves", 1)
	_, err := c.GetOrSet(ctx, k, wl.loader(k), cache.WithTags("leaves"))
	require.NoError(t, err)
	assert.Equal(t, int64(2*len(sheetTags)), store.Reads(), "warm entry served from cache")

	store.Update(k)
	assert.Equal(t, 2, c.InvalidateByTag("leaves"))

	data, err := c.GetOrSet(ctx, k, wl.loader(k), cache.WithTags("leaves"))
	require.NoError(t, err)
	var rec sheetRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, 1, rec.Revision)
}
