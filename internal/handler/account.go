package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/clawjobs/internal/calllog"
	"github.com/openclaw/clawjobs/internal/model"
	"github.com/openclaw/clawjobs/internal/server/middleware"
	"github.com/openclaw/clawjobs/internal/service"
)

// AccountHandler serves the session-authenticated owner surface used by the
// web UI: profile, API keys, call logs, posted jobs and the proposals on
// them.
type AccountHandler struct {
	keys   *service.KeyService
	market *service.Marketplace
	logs   *calllog.Recorder
	logger *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(keys *service.KeyService, market *service.Marketplace, logs *calllog.Recorder, logger *slog.Logger) *AccountHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountHandler{keys: keys, market: market, logs: logs, logger: logger}
}

func (h *AccountHandler) uid(w http.ResponseWriter, r *http.Request) (string, bool) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "missing session token")
		return "", false
	}
	return sess.UID, true
}

// ---------------------------------------------------------------------------
// Profile
// ---------------------------------------------------------------------------

// PutProfile creates or updates the caller's profile.
// PUT /api/v1/account/profile
func (h *AccountHandler) PutProfile(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.uid(w, r)
	if !ok {
		return
	}
	var patch model.ProfilePatch
	if !decodeBody(w, r, &patch) {
		return
	}
	profile, err := h.market.UpsertProfile(r.Context(), uid, patch)
	if err != nil {
		respondError(w, r, h.logger, "profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

type createKeyRequest struct {
	Name string `json:"name"`
}

// ListKeys lists the caller's keys, active and revoked.
// GET /api/v1/account/keys
func (h *AccountHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.uid(w, r)
	if !ok {
		return
	}
	keys, err := h.keys.ListForAgent(r.Context(), uid)
	if err != nil {
		respondError(w, r, h.logger, "key", err)
		return
	}
	writeJSON(w, http.StatusOK, model.APIKeysResponse{Keys: keys})
}

// CreateKey issues a new key. The plaintext is in this response only.
// POST /api/v1/account/keys
func (h *AccountHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.uid(w, r)
	if !ok {
		return
	}
	var req createKeyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	gen, err := h.keys.Generate(r.Context(), uid, req.Name)
	if err != nil {
		respondError(w, r, h.logger, "key", err)
		return
	}
	writeJSON(w, http.StatusCreated, gen)
}

// RevokeKey deactivates one of the caller's keys. Revoking twice succeeds.
// DELETE /api/v1/account/keys/{keyId}
func (h *AccountHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.uid(w, r)
	if !ok {
		return
	}
	if err := h.keys.RevokeForAgent(r.Context(), uid, chi.URLParam(r, "keyId")); err != nil {
		respondError(w, r, h.logger, "key", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListLogs returns the caller's call log, newest first.
// GET /api/v1/account/logs?limit=
func (h *AccountHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.uid(w, r)
	if !ok {
		return
	}
	logs, err := h.logs.ListForAgent(r.Context(), uid, queryInt(r, "limit", 0))
	if err != nil {
		respondError(w, r, h.logger, "log", err)
		return
	}
	writeJSON(w, http.StatusOK, model.CallLogsResponse{Logs: logs})
}

// ---------------------------------------------------------------------------
// Jobs and proposals
// ---------------------------------------------------------------------------

type jobStatusRequest struct {
	Status model.JobStatus `json:"status"`
}

// CreateJob posts a job owned by the caller.
// POST /api/v1/account/jobs
func (h *AccountHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.uid(w, r)
	if !ok {
		return
	}
	var in service.JobInput
	if !decodeBody(w, r, &in) {
		return
	}
	job, err := h.market.CreateJob(r.Context(), uid, in)
	if err != nil {
		respondError(w, r, h.logger, "job", err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// ListJobs lists the jobs the caller posted.
// GET /api/v1/account/jobs
func (h *AccountHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.uid(w, r)
	if !ok {
		return
	}
	jobs, err := h.market.ListClientJobs(r.Context(), uid)
	if err != nil {
		respondError(w, r, h.logger, "job", err)
		return
	}
	writeJSON(w, http.StatusOK, model.JobsResponse{Jobs: jobs})
}

// UpdateJobStatus moves one of the caller's jobs along its lifecycle.
// PATCH /api/v1/account/jobs/{jobId}/status
func (h *AccountHandler) UpdateJobStatus(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.uid(w, r)
	if !ok {
		return
	}
	var req jobStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	job, err := h.market.UpdateOwnedJobStatus(r.Context(), uid, chi.URLParam(r, "jobId"), req.Status)
	if err != nil {
		respondError(w, r, h.logger, "job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ListJobProposals lists the bids on one of the caller's jobs.
// GET /api/v1/account/jobs/{jobId}/proposals
func (h *AccountHandler) ListJobProposals(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.uid(w, r)
	if !ok {
		return
	}
	proposals, err := h.market.ListProposalsForJob(r.Context(), uid, chi.URLParam(r, "jobId"))
	if err != nil {
		respondError(w, r, h.logger, "job", err)
		return
	}
	writeJSON(w, http.StatusOK, model.ProposalsResponse{Proposals: proposals})
}

// AcceptProposal accepts a bid and assigns the job.
// POST /api/v1/account/proposals/{proposalId}/accept
func (h *AccountHandler) AcceptProposal(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.uid(w, r)
	if !ok {
		return
	}
	p, err := h.market.AcceptProposal(r.Context(), uid, chi.URLParam(r, "proposalId"))
	if err != nil {
		respondError(w, r, h.logger, "proposal", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RejectProposal declines a bid.
// POST /api/v1/account/proposals/{proposalId}/reject
func (h *AccountHandler) RejectProposal(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.uid(w, r)
	if !ok {
		return
	}
	p, err := h.market.RejectProposal(r.Context(), uid, chi.URLParam(r, "proposalId"))
	if err != nil {
		respondError(w, r, h.logger, "proposal", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
