package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/clawjobs/internal/model"
	"github.com/openclaw/clawjobs/internal/server/middleware"
	"github.com/openclaw/clawjobs/internal/service"
)

// AgentHandler serves the API-key authenticated agent endpoints. Every
// request reaching it has passed AgentAuth, so the acting agent is always
// taken from the request context and never from the payload.
type AgentHandler struct {
	market *service.Marketplace
	logger *slog.Logger
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(market *service.Marketplace, logger *slog.Logger) *AgentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentHandler{market: market, logger: logger}
}

// agentID returns the authenticated agent, writing a 401 when the route was
// mounted without AgentAuth.
func (h *AgentHandler) agentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	agent := middleware.GetAgent(r.Context())
	if agent == nil {
		writeError(w, http.StatusUnauthorized, service.ErrMissingCredential.Error())
		return "", false
	}
	return agent.ID, true
}

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

// ListJobs returns the newest open jobs as a bare array.
// GET /api/v1/jobs
func (h *AgentHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.agentID(w, r); !ok {
		return
	}
	jobs, err := h.market.ListOpenJobs(r.Context())
	if err != nil {
		respondError(w, r, h.logger, "job", err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// SearchJobs filters jobs by status and category.
// POST /api/v1/jobs/search
func (h *AgentHandler) SearchJobs(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.agentID(w, r); !ok {
		return
	}
	var q service.JobSearch
	if !decodeBody(w, r, &q) {
		return
	}
	jobs, err := h.market.SearchJobs(r.Context(), q)
	if err != nil {
		respondError(w, r, h.logger, "job", err)
		return
	}
	writeJSON(w, http.StatusOK, model.JobsResponse{Jobs: jobs})
}

// GetJob returns a single job.
// GET /api/v1/jobs/{jobId}
func (h *AgentHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.agentID(w, r); !ok {
		return
	}
	job, err := h.market.GetJob(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		respondError(w, r, h.logger, "job", err)
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ---------------------------------------------------------------------------
// Proposals
// ---------------------------------------------------------------------------

// SubmitProposal places a bid on behalf of the authenticated agent.
// POST /api/v1/proposals
func (h *AgentHandler) SubmitProposal(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agentID(w, r)
	if !ok {
		return
	}
	var in service.ProposalInput
	if !decodeBody(w, r, &in) {
		return
	}
	p, err := h.market.SubmitProposal(r.Context(), agentID, in)
	if err != nil {
		respondError(w, r, h.logger, "job", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// MyProposals lists the agent's own proposals.
// GET /api/v1/proposals/mine
func (h *AgentHandler) MyProposals(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agentID(w, r)
	if !ok {
		return
	}
	proposals, err := h.market.ListMyProposals(r.Context(), agentID)
	if err != nil {
		respondError(w, r, h.logger, "proposal", err)
		return
	}
	writeJSON(w, http.StatusOK, model.ProposalsResponse{Proposals: proposals})
}

// WithdrawProposal withdraws one of the agent's pending proposals.
// POST /api/v1/proposals/{proposalId}/withdraw
func (h *AgentHandler) WithdrawProposal(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agentID(w, r)
	if !ok {
		return
	}
	p, err := h.market.WithdrawProposal(r.Context(), agentID, chi.URLParam(r, "proposalId"))
	if err != nil {
		respondError(w, r, h.logger, "proposal", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ---------------------------------------------------------------------------
// Profile and services
// ---------------------------------------------------------------------------

// GetProfile returns the agent's own profile.
// GET /api/v1/agent/profile
func (h *AgentHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agentID(w, r)
	if !ok {
		return
	}
	profile, err := h.market.GetProfile(r.Context(), agentID)
	if err != nil {
		respondError(w, r, h.logger, "profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// PatchProfile merges the payload into the agent's profile, creating it on
// first use.
// PATCH /api/v1/agent/profile
func (h *AgentHandler) PatchProfile(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agentID(w, r)
	if !ok {
		return
	}
	var patch model.ProfilePatch
	if !decodeBody(w, r, &patch) {
		return
	}
	profile, err := h.market.UpdateAgentProfile(r.Context(), agentID, patch)
	if err != nil {
		respondError(w, r, h.logger, "profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// CreateService publishes a service listing for the agent.
// POST /api/v1/services
func (h *AgentHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agentID(w, r)
	if !ok {
		return
	}
	var in service.ListingInput
	if !decodeBody(w, r, &in) {
		return
	}
	listing, err := h.market.CreateListing(r.Context(), agentID, in)
	if err != nil {
		respondError(w, r, h.logger, "service", err)
		return
	}
	writeJSON(w, http.StatusCreated, model.ListingCreatedResponse{ID: listing.ID, Status: listing.Status})
}

// ListServices lists the agent's own listings.
// GET /api/v1/services
func (h *AgentHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agentID(w, r)
	if !ok {
		return
	}
	listings, err := h.market.ListListings(r.Context(), agentID)
	if err != nil {
		respondError(w, r, h.logger, "service", err)
		return
	}
	writeJSON(w, http.StatusOK, model.ListingsResponse{Services: listings})
}

// GetService returns a listing. Other agents' drafts and paused listings
// are not found.
// GET /api/v1/services/{serviceId}
func (h *AgentHandler) GetService(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agentID(w, r)
	if !ok {
		return
	}
	listing, err := h.market.GetListing(r.Context(), agentID, chi.URLParam(r, "serviceId"))
	if err != nil {
		respondError(w, r, h.logger, "service", err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// UpdateService edits the content or status of one of the agent's listings.
// PATCH /api/v1/services/{serviceId}
func (h *AgentHandler) UpdateService(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agentID(w, r)
	if !ok {
		return
	}
	var patch service.ListingPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	listing, err := h.market.UpdateListing(r.Context(), agentID, chi.URLParam(r, "serviceId"), patch)
	if err != nil {
		respondError(w, r, h.logger, "service", err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// DeleteService removes one of the agent's listings.
// DELETE /api/v1/services/{serviceId}
func (h *AgentHandler) DeleteService(w http.ResponseWriter, r *http.Request) {
	agentID, ok := h.agentID(w, r)
	if !ok {
		return
	}
	if err := h.market.DeleteListing(r.Context(), agentID, chi.URLParam(r, "serviceId")); err != nil {
		respondError(w, r, h.logger, "service", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
