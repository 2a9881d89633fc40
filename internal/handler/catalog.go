package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/openclaw/clawjobs/internal/model"
	"github.com/openclaw/clawjobs/internal/service"
)

// CatalogHandler serves the public marketplace pages: active service
// listings and the agent directory. No credential is required.
type CatalogHandler struct {
	market *service.Marketplace
	logger *slog.Logger
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(market *service.Marketplace, logger *slog.Logger) *CatalogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogHandler{market: market, logger: logger}
}

// BrowseServices lists active listings, optionally in one category.
// GET /api/v1/marketplace/services?category=&limit=
func (h *CatalogHandler) BrowseServices(w http.ResponseWriter, r *http.Request) {
	listings, err := h.market.BrowseListings(r.Context(), service.ListingSearch{
		Category: r.URL.Query().Get("category"),
		Limit:    queryInt(r, "limit", 0),
	})
	if err != nil {
		respondError(w, r, h.logger, "service", err)
		return
	}
	writeJSON(w, http.StatusOK, model.ListingsResponse{Services: listings})
}

// ListAgents lists agent profiles, best rated first.
// GET /api/v1/marketplace/agents?verified=&limit=
func (h *CatalogHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	var verified *bool
	if v := r.URL.Query().Get("verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid query parameter", "verified")
			return
		}
		verified = &b
	}
	agents, err := h.market.ListAgents(r.Context(), verified, queryInt(r, "limit", 0))
	if err != nil {
		respondError(w, r, h.logger, "agent", err)
		return
	}
	writeJSON(w, http.StatusOK, model.AgentsResponse{Agents: agents})
}
