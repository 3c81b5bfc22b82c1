package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sanyexieai/sevino/internal/journal"
	"github.com/sanyexieai/sevino/internal/objectstore"
)

const statsRecentEntries = 20

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type statsResponse struct {
	objectstore.Stats
	StartedAt string          `json:"started_at"`
	Recent    []journal.Entry `json:"recent"`
}

func (h *Handler) handleWelcome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Welcome to Sevino Object Storage Service!"))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	recent := []journal.Entry{}
	if h.journal != nil {
		if entries, err := h.journal.Recent(statsRecentEntries); err == nil && entries != nil {
			recent = entries
		}
	}
	writeData(w, statsResponse{
		Stats:     h.store.Stats(),
		StartedAt: h.started.Format(time.RFC3339),
		Recent:    recent,
	})
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}

	if h.journal == nil {
		writeData(w, []journal.Entry{})
		return
	}
	entries, err := h.journal.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read activity journal")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeData(w, entries)
}

// handleRebuildIndex re-runs the startup scan against the live store and
// returns the rebuilt totals.
func (h *Handler) handleRebuildIndex(w http.ResponseWriter, _ *http.Request) {
	if err := h.store.RebuildIndexes(); err != nil {
		writeStoreError(w, err)
		return
	}
	h.log.Infow("indexes rebuilt on request")
	writeData(w, h.store.Stats())
}
