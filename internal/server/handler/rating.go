package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/udlabs/pulseratings/internal/domain"
	"github.com/udlabs/pulseratings/internal/submit"
)

// RatingLedger defines the ledger operations the rating handler requires.
type RatingLedger interface {
	CreateUpRating(ctx context.Context, caller common.Address, r domain.Rating, payment *big.Int) (domain.RatingReceipt, error)
	CreateDownRating(ctx context.Context, caller common.Address, r domain.Rating, payment *big.Int) (domain.RatingReceipt, error)
	PreviewPayment(amount *big.Int) *big.Int
	MarketAddress(url string) common.Address
	MinRatingAmount() *big.Int
}

// RatingHandler serves rating settlement endpoints. Submissions route
// through the coordinator so a market can never have two ratings in flight
// at once.
type RatingHandler struct {
	ledger RatingLedger
	subs   *submit.Coordinator
	logger *slog.Logger
}

// NewRatingHandler creates a RatingHandler.
func NewRatingHandler(ledger RatingLedger, subs *submit.Coordinator, logger *slog.Logger) *RatingHandler {
	return &RatingHandler{
		ledger: ledger,
		subs:   subs,
		logger: logger,
	}
}

// Preview quotes the payment a stake requires.
// GET /api/ratings/preview?amount=1000
func (h *RatingHandler) Preview(w http.ResponseWriter, r *http.Request) {
	amount, err := parseBigInt(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"amount":            amount.String(),
		"required_payment":  h.ledger.PreviewPayment(amount).String(),
		"min_rating_amount": h.ledger.MinRatingAmount().String(),
	})
}

type createRatingRequest struct {
	Caller  string `json:"caller"`
	URL     string `json:"url"`
	Amount  string `json:"amount"`
	Payment string `json:"payment"`
	Surface string `json:"surface"`
}

// CreateUp settles an up rating.
// POST /api/ratings/up
func (h *RatingHandler) CreateUp(w http.ResponseWriter, r *http.Request) {
	h.createRating(w, r, h.ledger.CreateUpRating)
}

// CreateDown settles a down rating.
// POST /api/ratings/down
func (h *RatingHandler) CreateDown(w http.ResponseWriter, r *http.Request) {
	h.createRating(w, r, h.ledger.CreateDownRating)
}

func (h *RatingHandler) createRating(
	w http.ResponseWriter,
	r *http.Request,
	settle func(context.Context, common.Address, domain.Rating, *big.Int) (domain.RatingReceipt, error),
) {
	var req createRatingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing url")
		return
	}
	amount, err := parseBigInt(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payment, err := parseBigInt(req.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	surface := req.Surface
	if surface == "" {
		surface = "api"
	}

	market := h.ledger.MarketAddress(req.URL)

	var receipt domain.RatingReceipt
	pending, err := h.subs.Submit(r.Context(), market, surface, func(ctx context.Context) error {
		var settleErr error
		receipt, settleErr = settle(ctx, caller, domain.Rating{URL: req.URL, Amount: amount}, payment)
		return settleErr
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Settlement cannot be aborted once started; wait out the submission
	// even if the client goes away.
	if err := pending.Wait(context.WithoutCancel(r.Context())); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}
