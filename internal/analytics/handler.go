package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handler serves the aggregate over HTTP: live stats from the Aggregator
// and the latest persisted snapshot when a SnapshotStore is wired.
type Handler struct {
	agg       *Aggregator
	snapshots *SnapshotStore
	logger    *slog.Logger
}

// NewHandler creates a Handler. snapshots may be nil when persistence is
// disabled.
func NewHandler(agg *Aggregator, snapshots *SnapshotStore) *Handler {
	return &Handler{
		agg:       agg,
		snapshots: snapshots,
		logger:    slog.Default().With("component", "analytics-api"),
	}
}

// Stats answers with the live in-memory aggregate.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.agg.Stats())
}

// Snapshot answers with the most recently persisted aggregate.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "snapshot persistence disabled",
		})
		return
	}
	stats, err := h.snapshots.Latest(r.Context())
	if err != nil {
		h.logger.Error("loading snapshot failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "snapshot unavailable",
		})
		return
	}
	if stats == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no snapshot captured yet",
		})
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("writing analytics response failed", "error", err)
	}
}
