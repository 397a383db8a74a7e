package handler

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/udlabs/pulseratings/internal/notify"
)

// AdminLedger defines the owner-gated ledger operations.
type AdminLedger interface {
	SetPaused(ctx context.Context, caller common.Address, paused bool) error
	SetReceiver(ctx context.Context, caller, receiver common.Address) error
	TransferOwnership(ctx context.Context, caller, candidate common.Address) error
	AcceptOwnership(ctx context.Context, caller common.Address) error
	RecoverForeignAsset(ctx context.Context, caller, asset, recipient common.Address) (*big.Int, error)
	IsPaused() bool
	Owner() common.Address
	PendingOwner() common.Address
	Receiver() common.Address
}

// AdminHandler serves the owner control surface. Routes are gated by API-key
// auth at the middleware layer; within a request the configured operator
// address acts as the ledger caller, so the ledger's own owner check is
// still the final authority.
type AdminHandler struct {
	ledger   AdminLedger
	operator common.Address
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler acting as the given operator.
// notifier may be nil.
func NewAdminHandler(ledger AdminLedger, operator common.Address, notifier *notify.Notifier, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		ledger:   ledger,
		operator: operator,
		notifier: notifier,
		logger:   logger,
	}
}

// Status reports the ledger's configuration surface.
// GET /api/admin/status
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":         h.ledger.Owner().Hex(),
		"pending_owner": h.ledger.PendingOwner().Hex(),
		"receiver":      h.ledger.Receiver().Hex(),
		"paused":        h.ledger.IsPaused(),
		"operator":      h.operator.Hex(),
	})
}

type setPausedRequest struct {
	Paused bool `json:"paused"`
}

// SetPaused toggles the pause gate.
// POST /api/admin/pause
func (h *AdminHandler) SetPaused(w http.ResponseWriter, r *http.Request) {
	var req setPausedRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.ledger.SetPaused(r.Context(), h.operator, req.Paused); err != nil {
		writeDomainError(w, err)
		return
	}
	h.notify(r.Context(), notify.EventLedgerPaused, "Ledger pause state changed",
		fmt.Sprintf("paused=%t by %s", req.Paused, h.operator.Hex()))
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

type setReceiverRequest struct {
	Receiver string `json:"receiver"`
}

// SetReceiver changes the fee receiver.
// POST /api/admin/receiver
func (h *AdminHandler) SetReceiver(w http.ResponseWriter, r *http.Request) {
	var req setReceiverRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	receiver, err := parseAddress(req.Receiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.ledger.SetReceiver(r.Context(), h.operator, receiver); err != nil {
		writeDomainError(w, err)
		return
	}
	h.notify(r.Context(), notify.EventReceiverUpdated, "Fee receiver updated",
		fmt.Sprintf("receiver=%s", receiver.Hex()))
	writeJSON(w, http.StatusOK, map[string]string{"receiver": receiver.Hex()})
}

type transferOwnershipRequest struct {
	Candidate string `json:"candidate"`
}

// TransferOwnership nominates a candidate owner. An empty candidate cancels
// a pending transfer.
// POST /api/admin/ownership/transfer
func (h *AdminHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req transferOwnershipRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var candidate common.Address
	if req.Candidate != "" {
		var err error
		candidate, err = parseAddress(req.Candidate)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.ledger.TransferOwnership(r.Context(), h.operator, candidate); err != nil {
		writeDomainError(w, err)
		return
	}
	h.notify(r.Context(), notify.EventOwnershipChanged, "Ownership transfer nominated",
		fmt.Sprintf("candidate=%s", candidate.Hex()))
	writeJSON(w, http.StatusOK, map[string]string{"pending_owner": candidate.Hex()})
}

// AcceptOwnership completes a pending ownership transfer as the operator.
// POST /api/admin/ownership/accept
func (h *AdminHandler) AcceptOwnership(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.AcceptOwnership(r.Context(), h.operator); err != nil {
		writeDomainError(w, err)
		return
	}
	h.notify(r.Context(), notify.EventOwnershipChanged, "Ownership transferred",
		fmt.Sprintf("owner=%s", h.operator.Hex()))
	writeJSON(w, http.StatusOK, map[string]string{"owner": h.operator.Hex()})
}

type recoverAssetRequest struct {
	Asset     string `json:"asset"`
	Recipient string `json:"recipient"`
}

// RecoverAsset drains a mistakenly-received asset balance to a recipient.
// POST /api/admin/recover
func (h *AdminHandler) RecoverAsset(w http.ResponseWriter, r *http.Request) {
	var req recoverAssetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	asset, err := parseAddress(req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := h.ledger.RecoverForeignAsset(r.Context(), h.operator, asset, recipient)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":     asset.Hex(),
		"recipient": recipient.Hex(),
		"amount":    amount.String(),
	})
}

func (h *AdminHandler) notify(ctx context.Context, event, title, message string) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Notify(ctx, event, title, message); err != nil {
		h.logger.WarnContext(ctx, "admin notification failed", slog.Any("error", err))
	}
}
