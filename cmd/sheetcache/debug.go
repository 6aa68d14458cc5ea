package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	perrors "github.com/jmgilman/go/errors"

	"github.com/IvanBrykalov/sheetcache/cache"
)

// debugHandler serves cache introspection as JSON:
//
//	GET    /debug/cache            stats and live keys
//	GET    /debug/cache?tag=T      keys indexed under T
//	GET    /debug/cache?key=K      entry metadata for K
//	DELETE /debug/cache?tag=T      invalidate by tag
//	DELETE /debug/cache?glob=P     invalidate by key pattern
type debugHandler struct {
	cache cache.Cache[[]byte]
	log   *slog.Logger
}

type cacheView struct {
	Stats cache.Stats `json:"stats"`
	Keys  []string    `json:"keys"`
}

func (h *debugHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodDelete:
		h.invalidate(w, r)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		h.fail(w, http.StatusMethodNotAllowed,
			perrors.WithContext(perrors.New(perrors.CodeInvalidInput, "method not allowed"), "method", r.Method))
	}
}

func (h *debugHandler) get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Has("key"):
		k := q.Get("key")
		info, ok := h.cache.EntryInfo(k)
		if !ok {
			h.fail(w, http.StatusNotFound,
				perrors.WithContext(perrors.New(perrors.CodeNotFound, "no live entry"), "key", k))
			return
		}
		h.write(w, http.StatusOK, info)
	case q.Has("tag"):
		h.write(w, http.StatusOK, map[string]any{"tag": q.Get("tag"), "keys": h.cache.KeysByTag(q.Get("tag"))})
	default:
		h.write(w, http.StatusOK, cacheView{Stats: h.cache.Stats(), Keys: h.cache.Keys()})
	}
}

func (h *debugHandler) invalidate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		n   int
		err error
	)
	switch {
	case q.Has("tag"):
		n = h.cache.InvalidateByTag(q.Get("tag"))
	case q.Has("glob"):
		n, err = h.cache.InvalidateByGlob(q.Get("glob"))
	default:
		err = perrors.New(perrors.CodeInvalidInput, "tag or glob is required")
	}
	if err != nil {
		h.fail(w, http.StatusBadRequest, err)
		return
	}
	h.log.Info("cache invalidated", "query", r.URL.RawQuery, "removed", n)
	h.write(w, http.StatusOK, map[string]int{"removed": n})
}

func (h *debugHandler) fail(w http.ResponseWriter, status int, err error) {
	h.write(w, status, perrors.ToJSON(err))
}

func (h *debugHandler) write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("encode response", "error", err)
	}
}
