package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udlabs/pulseratings/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSnapshots struct {
	snap domain.Snapshot
	have bool
}

func (s *stubSnapshots) Snapshot() (domain.Snapshot, bool) { return s.snap, s.have }

func (s *stubSnapshots) Refresh(ctx context.Context) (domain.Snapshot, error) {
	return s.snap, nil
}

type stubArchive struct {
	objects map[string][]byte
	infos   []domain.BlobInfo
}

func (a *stubArchive) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	data, ok := a.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (a *stubArchive) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	return a.infos, nil
}

func (a *stubArchive) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := a.objects[path]
	return ok, nil
}

func snapshotMux(h *SnapshotHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/snapshot/history", h.History)
	mux.HandleFunc("GET /api/snapshot/history/{key...}", h.HistoryEntry)
	return mux
}

func TestHistoryListsArchivedSnapshotsNewestFirst(t *testing.T) {
	when := time.Date(2026, 8, 29, 10, 15, 0, 0, time.UTC)
	archive := &stubArchive{infos: []domain.BlobInfo{
		{Path: "snapshots/2026-08/20260801T000000Z-seq10.json", Size: 120, LastModified: when.AddDate(0, 0, -28)},
		{Path: "snapshots/latest.json", Size: 240, LastModified: when},
		{Path: "snapshots/2026-08/20260829T101500Z-seq42.json", Size: 240, LastModified: when},
	}}
	h := NewSnapshotHandler(&stubSnapshots{}, archive, testLogger())

	rec := httptest.NewRecorder()
	snapshotMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Snapshots []struct {
			Key          string `json:"key"`
			Size         int64  `json:"size"`
			LastModified string `json:"last_modified"`
		} `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	// The latest pointer is omitted and history entries come newest first.
	require.Len(t, body.Snapshots, 2)
	assert.Equal(t, "2026-08/20260829T101500Z-seq42.json", body.Snapshots[0].Key)
	assert.Equal(t, "2026-08/20260801T000000Z-seq10.json", body.Snapshots[1].Key)
	assert.Equal(t, int64(240), body.Snapshots[0].Size)
	assert.Equal(t, "2026-08-29T10:15:00Z", body.Snapshots[0].LastModified)
}

func TestHistoryEntryStreamsArchivedSnapshot(t *testing.T) {
	doc := []byte(`{"latest_sequence":42,"markets":[],"users":[]}`)
	archive := &stubArchive{objects: map[string][]byte{
		"snapshots/2026-08/20260829T101500Z-seq42.json": doc,
	}}
	h := NewSnapshotHandler(&stubSnapshots{}, archive, testLogger())
	mux := snapshotMux(h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/snapshot/history/2026-08/20260829T101500Z-seq42.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, doc, rec.Body.Bytes())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/snapshot/history/2026-08/missing.json", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryRejectsTraversalKeys(t *testing.T) {
	h := NewSnapshotHandler(&stubSnapshots{}, &stubArchive{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/snapshot/history/key", nil)
	req.SetPathValue("key", "../secrets.json")
	rec := httptest.NewRecorder()
	h.HistoryEntry(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryWithoutArchiveConfigured(t *testing.T) {
	h := NewSnapshotHandler(&stubSnapshots{}, nil, testLogger())

	rec := httptest.NewRecorder()
	snapshotMux(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
