package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// UserLedger defines the per-user balance queries the user handler requires.
type UserLedger interface {
	UserVotes(ctx context.Context, user common.Address) (up, down *big.Int, err error)
	UserRatings(user common.Address) *big.Int
}

// UserHandler serves per-user reputation account queries directly from the
// ledger, bypassing the read model.
type UserHandler struct {
	ledger UserLedger
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(ledger UserLedger, logger *slog.Logger) *UserHandler {
	return &UserHandler{ledger: ledger, logger: logger}
}

// GetRatings returns a user's cumulative up, down, and combined stake.
// GET /api/users/{address}/ratings
func (h *UserHandler) GetRatings(w http.ResponseWriter, r *http.Request) {
	user, err := parseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	up, down, err := h.ledger.UserVotes(r.Context(), user)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"user":  user.Hex(),
		"up":    up.String(),
		"down":  down.String(),
		"total": h.ledger.UserRatings(user).String(),
	})
}
