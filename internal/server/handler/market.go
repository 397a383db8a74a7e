package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/udlabs/pulseratings/internal/domain"
	"github.com/udlabs/pulseratings/internal/view"
)

// MarketRegistry defines the ledger operations the market handler requires.
// Declared locally so the handler package does not depend on the concrete
// ledger implementation.
type MarketRegistry interface {
	CreateMarket(ctx context.Context, caller common.Address, url string) (domain.Market, error)
	URLToMarket(url string) common.Address
	MarketAddress(url string) common.Address
	MarketToURL(market common.Address) (string, error)
}

// SnapshotProvider supplies the read model the list endpoints page over.
type SnapshotProvider interface {
	Snapshot() (domain.Snapshot, bool)
	Refresh(ctx context.Context) (domain.Snapshot, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	registry  MarketRegistry
	snapshots SnapshotProvider
	logger    *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(registry MarketRegistry, snapshots SnapshotProvider, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		registry:  registry,
		snapshots: snapshots,
		logger:    logger,
	}
}

type createMarketRequest struct {
	Caller string `json:"caller"`
	URL    string `json:"url"`
}

// CreateMarket registers a new market for a URL.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	market, err := h.registry.CreateMarket(r.Context(), caller, req.URL)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, market)
}

type listMarketsResponse struct {
	Markets   []domain.CatalogEntry `json:"markets"`
	Page      int                   `json:"page"`
	PageCount int                   `json:"page_count"`
	Total     int                   `json:"total"`
}

// ListMarkets returns the market catalog with search, sort, and pagination.
// GET /api/markets?search=&sort=newest|upvotes|downvotes&page=&page_size=
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshots.Snapshot()
	if !ok {
		// First call before any refresh: build the read model now.
		var err error
		snap, err = h.snapshots.Refresh(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
	}

	q := r.URL.Query()
	markets := view.FilterMarkets(snap.Markets, q.Get("search"))
	markets = view.SortMarkets(markets, view.MarketOrder(q.Get("sort")))

	pageSize, pageNum := parsePagination(r)
	page := view.Paginate(markets, pageSize, pageNum)

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets:   page.Items,
		Page:      page.PageNumber,
		PageCount: page.PageCount,
		Total:     page.Total,
	})
}

type resolveMarketResponse struct {
	URL        string         `json:"url"`
	Address    common.Address `json:"address"`
	Registered bool           `json:"registered"`
}

// ResolveMarket reports the address a URL maps to and whether a market is
// registered for it. The address is derivable before registration, so the
// endpoint is total over non-empty URLs.
// GET /api/markets/resolve?url=
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "missing url parameter")
		return
	}

	registered := h.registry.URLToMarket(url) != (common.Address{})
	writeJSON(w, http.StatusOK, resolveMarketResponse{
		URL:        url,
		Address:    h.registry.MarketAddress(url),
		Registered: registered,
	})
}
