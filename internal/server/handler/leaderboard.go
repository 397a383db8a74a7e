package handler

import (
	"log/slog"
	"net/http"

	"github.com/udlabs/pulseratings/internal/domain"
	"github.com/udlabs/pulseratings/internal/view"
)

// LeaderboardHandler serves the per-user leaderboard built from the read
// model.
type LeaderboardHandler struct {
	snapshots SnapshotProvider
	logger    *slog.Logger
}

// NewLeaderboardHandler creates a LeaderboardHandler.
func NewLeaderboardHandler(snapshots SnapshotProvider, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{snapshots: snapshots, logger: logger}
}

type leaderboardResponse struct {
	Users     []domain.LeaderboardEntry `json:"users"`
	Page      int                       `json:"page"`
	PageCount int                       `json:"page_count"`
	Total     int                       `json:"total"`
}

// List returns the leaderboard with sort and pagination.
// GET /api/leaderboard?sort=activity|markets|upvotes|downvotes&page=&page_size=
func (h *LeaderboardHandler) List(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshots.Snapshot()
	if !ok {
		var err error
		snap, err = h.snapshots.Refresh(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
	}

	users := view.SortUsers(snap.Users, view.UserOrder(r.URL.Query().Get("sort")))

	pageSize, pageNum := parsePagination(r)
	page := view.Paginate(users, pageSize, pageNum)

	writeJSON(w, http.StatusOK, leaderboardResponse{
		Users:     page.Items,
		Page:      page.PageNumber,
		PageCount: page.PageCount,
		Total:     page.Total,
	})
}
