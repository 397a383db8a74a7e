package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/udlabs/pulseratings/internal/domain"
)

// archivePrefix is the object-store prefix archived snapshots live under.
const archivePrefix = "snapshots/"

// SnapshotHandler serves the raw read model, the refresh trigger, and the
// archived snapshot history.
type SnapshotHandler struct {
	snapshots SnapshotProvider
	archive   domain.BlobReader // nil when no object store is configured
	logger    *slog.Logger
}

// NewSnapshotHandler creates a SnapshotHandler. archive may be nil; the
// history endpoints then report the archive as unconfigured.
func NewSnapshotHandler(snapshots SnapshotProvider, archive domain.BlobReader, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots, archive: archive, logger: logger}
}

// Get returns the last refreshed snapshot.
// GET /api/snapshot
func (h *SnapshotHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshots.Snapshot()
	if !ok {
		writeError(w, http.StatusNotFound, "no snapshot yet; trigger a refresh")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Refresh triggers a full rebuild of the read model. A refresh already in
// flight is reported as unavailable, not queued; the caller re-triggers
// after observing completion.
// POST /api/snapshot/refresh
func (h *SnapshotHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Refresh(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// archiveEntry is one archived snapshot in a history listing.
type archiveEntry struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
}

// History lists archived snapshots, newest first. The mutable latest pointer
// is omitted; it duplicates the newest history entry.
// GET /api/snapshot/history
func (h *SnapshotHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "snapshot archive not configured")
		return
	}

	infos, err := h.archive.List(r.Context(), archivePrefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "archive listing failed", slog.Any("error", err))
		writeDomainError(w, err)
		return
	}

	entries := make([]archiveEntry, 0, len(infos))
	for _, info := range infos {
		key := strings.TrimPrefix(info.Path, archivePrefix)
		if key == "latest.json" {
			continue
		}
		entries = append(entries, archiveEntry{
			Key:          key,
			Size:         info.Size,
			LastModified: info.LastModified.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key > entries[j].Key
	})
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": entries})
}

// HistoryEntry streams one archived snapshot document by its history key.
// GET /api/snapshot/history/{key...}
func (h *SnapshotHandler) HistoryEntry(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "snapshot archive not configured")
		return
	}

	key := r.PathValue("key")
	if key == "" || strings.Contains(key, "..") {
		writeError(w, http.StatusBadRequest, "invalid snapshot key")
		return
	}

	body, err := h.archive.Get(r.Context(), archivePrefix+key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no archived snapshot "+key)
			return
		}
		h.logger.ErrorContext(r.Context(), "archive read failed",
			slog.String("key", key),
			slog.Any("error", err),
		)
		writeDomainError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted",
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
}
