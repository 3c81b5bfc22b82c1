// Package api implements the JSON HTTP surface of the object store: bucket
// and object CRUD, filtered listing, metadata, versions, multipart parts,
// and the operational endpoints (health, stats, activity, events, rebuild).
package api

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sanyexieai/sevino/internal/journal"
	"github.com/sanyexieai/sevino/internal/objectstore"
)

// Handler routes every request under the service root. It is mounted as a
// catch-all so unknown paths fall through to a JSON 404.
type Handler struct {
	store   *objectstore.Store
	journal *journal.Journal
	bus     *EventBus
	log     *zap.SugaredLogger
	started time.Time
}

// NewHandler wires the REST surface. journal and bus may be nil; the
// endpoints backed by them degrade to empty or unavailable responses.
func NewHandler(store *objectstore.Store, jrnl *journal.Journal, bus *EventBus, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{
		store:   store,
		journal: jrnl,
		bus:     bus,
		log:     log,
		started: time.Now().UTC(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		h.handleWelcome(w, r)

	case path == "/health":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		h.handleHealth(w, r)

	case path == "/api/stats":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		h.handleStats(w, r)

	case path == "/api/activity":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		h.handleActivity(w, r)

	case path == "/api/events":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		h.handleEvents(w, r)

	case path == "/api/maintenance/rebuild-index":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		h.handleRebuildIndex(w, r)

	case path == "/api/buckets":
		switch r.Method {
		case http.MethodGet:
			h.handleListBuckets(w, r)
		case http.MethodPost:
			h.handleCreateBucket(w, r)
		default:
			writeMethodNotAllowed(w)
		}

	case strings.HasPrefix(path, "/api/buckets/"):
		h.routeBucket(w, r, strings.TrimPrefix(path, "/api/buckets/"))

	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// routeBucket dispatches /api/buckets/{bucket}[/objects[/{key...}]] paths.
// Keys may contain slashes; the trailing segments metadata, versions and
// multipart are reserved subresource names.
func (h *Handler) routeBucket(w http.ResponseWriter, r *http.Request, rest string) {
	bucket, tail, nested := strings.Cut(rest, "/")
	if bucket == "" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	if !nested || tail == "" {
		switch r.Method {
		case http.MethodGet:
			h.handleGetBucket(w, r, bucket)
		case http.MethodDelete:
			h.handleDeleteBucket(w, r, bucket)
		default:
			writeMethodNotAllowed(w)
		}
		return
	}

	if tail == "objects" {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		h.handleListObjects(w, r, bucket)
		return
	}

	key, ok := strings.CutPrefix(tail, "objects/")
	if !ok || key == "" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	if k, ok := strings.CutSuffix(key, "/metadata"); ok {
		switch r.Method {
		case http.MethodGet:
			h.handleGetObjectMetadata(w, r, bucket, k)
		case http.MethodPut:
			h.handleUpdateObjectMetadata(w, r, bucket, k)
		default:
			writeMethodNotAllowed(w)
		}
		return
	}

	if k, ok := strings.CutSuffix(key, "/versions"); ok {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		h.handleListObjectVersions(w, r, bucket, k)
		return
	}

	if k, ok := strings.CutSuffix(key, "/multipart"); ok {
		if r.Method != http.MethodPut {
			writeMethodNotAllowed(w)
			return
		}
		h.handleMultipartUpload(w, r, bucket, k)
		return
	}

	switch r.Method {
	case http.MethodPut:
		h.handlePutObject(w, r, bucket, key)
	case http.MethodGet:
		h.handleGetObject(w, r, bucket, key)
	case http.MethodDelete:
		h.handleDeleteObject(w, r, bucket, key)
	default:
		writeMethodNotAllowed(w)
	}
}
