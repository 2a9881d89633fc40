package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openclaw/clawjobs/internal/events"
	"github.com/openclaw/clawjobs/internal/metrics"
	"github.com/openclaw/clawjobs/internal/model"
	"github.com/openclaw/clawjobs/internal/store"
)

// Listing limits for the agent job endpoints.
const (
	OpenJobsLimit      = 50
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// publishTimeout bounds how long a request waits on the event broker.
const publishTimeout = 3 * time.Second

// JobInput is the client-supplied part of a new job.
type JobInput struct {
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Category     string            `json:"category"`
	PaymentType  model.PaymentType `json:"paymentType"`
	BudgetMin    *float64          `json:"budgetMin,omitempty"`
	BudgetMax    *float64          `json:"budgetMax,omitempty"`
	Currency     string            `json:"currency"`
	Tags         []string          `json:"tags,omitempty"`
	Requirements []string          `json:"requirements,omitempty"`
	Permissions  []string          `json:"permissions,omitempty"`
	Attachments  []string          `json:"attachments,omitempty"`
	Deadline     *time.Time        `json:"deadline,omitempty"`
}

// JobSearch filters the agent job search.
type JobSearch struct {
	Status   model.JobStatus `json:"status,omitempty"`
	Category string          `json:"category,omitempty"`
	Limit    int             `json:"limit,omitempty"`
}

// ProposalInput is an agent's bid. BidAmount is a pointer so a missing field
// can be told apart from zero.
type ProposalInput struct {
	JobID             string   `json:"jobId"`
	BidAmount         *float64 `json:"bidAmount"`
	CoverLetter       string   `json:"coverLetter"`
	EstimatedDuration string   `json:"estimatedDuration"`
}

// ListingInput is the agent-supplied part of a service listing.
type ListingInput struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Category    string              `json:"category"`
	Tags        []string            `json:"tags,omitempty"`
	Tiers       *model.ServiceTiers `json:"tiers"`
	UseTiers    *bool               `json:"useTiers,omitempty"`
	MainImage   string              `json:"mainImage"`
	Gallery     []string            `json:"gallery,omitempty"`
	VideoURL    string              `json:"videoUrl,omitempty"`
}

// ListingPatch carries the owner-editable listing fields. Nil fields are
// left unchanged.
type ListingPatch struct {
	Title       *string              `json:"title,omitempty"`
	Description *string              `json:"description,omitempty"`
	Category    *string              `json:"category,omitempty"`
	Tags        []string             `json:"tags,omitempty"`
	Tiers       *model.ServiceTiers  `json:"tiers,omitempty"`
	UseTiers    *bool                `json:"useTiers,omitempty"`
	MainImage   *string              `json:"mainImage,omitempty"`
	Gallery     []string             `json:"gallery,omitempty"`
	VideoURL    *string              `json:"videoUrl,omitempty"`
	Status      *model.ListingStatus `json:"status,omitempty"`
}

// ListingSearch filters the public listing catalogue.
type ListingSearch struct {
	Category string
	Limit    int
}

// Marketplace implements the job, proposal, profile and listing operations
// on top of the store. Owner and agent ids always come from the caller's
// authenticated identity.
type Marketplace struct {
	store     *store.Store
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewMarketplace creates a Marketplace. A nil publisher discards events.
func NewMarketplace(s *store.Store, publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) *Marketplace {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Marketplace{store: s, publisher: publisher, metrics: m, logger: logger}
}

// publish delivers an event after a committed write. Failures are logged
// and counted but never surface to the caller.
func (m *Marketplace) publish(ctx context.Context, eventType string, payload interface{}) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := m.publisher.Publish(ctx, events.New(eventType, payload)); err != nil {
		m.metrics.EventPublishFailed(eventType)
		m.logger.Warn("failed to publish event", "type", eventType, "error", err)
	}
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// --- Jobs ---

// CreateJob posts a new open job owned by clientID.
func (m *Marketplace) CreateJob(ctx context.Context, clientID string, in JobInput) (*model.Job, error) {
	var c fieldCheck
	c.require(!blank(in.Title), "title")
	c.require(!blank(in.Description), "description")
	c.require(!blank(in.Category), "category")
	c.require(!blank(clientID), "clientId")
	c.require(!blank(in.Currency), "currency")
	c.require(in.PaymentType.Valid(), "paymentType")
	c.require(in.BudgetMin == nil || *in.BudgetMin >= 0, "budgetMin")
	c.require(in.BudgetMax == nil || in.BudgetMin == nil || *in.BudgetMin <= *in.BudgetMax, "budgetMax")
	if err := c.err(); err != nil {
		return nil, err
	}

	job := &model.Job{
		Title:        in.Title,
		Description:  in.Description,
		Category:     in.Category,
		PaymentType:  in.PaymentType,
		BudgetMin:    in.BudgetMin,
		BudgetMax:    in.BudgetMax,
		Currency:     in.Currency,
		ClientID:     clientID,
		Tags:         model.StringList(in.Tags),
		Requirements: model.StringList(in.Requirements),
		Permissions:  model.StringList(in.Permissions),
		Attachments:  model.StringList(in.Attachments),
		Deadline:     in.Deadline,
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	m.publish(ctx, events.JobCreated, job)
	return job, nil
}

// ListOpenJobs returns the newest open jobs.
func (m *Marketplace) ListOpenJobs(ctx context.Context) ([]model.Job, error) {
	return m.store.ListJobs(ctx, model.JobFilter{Status: model.JobOpen, Limit: OpenJobsLimit})
}

// SearchJobs filters jobs by status and category. The limit defaults to
// DefaultSearchLimit and is capped at MaxSearchLimit.
func (m *Marketplace) SearchJobs(ctx context.Context, q JobSearch) ([]model.Job, error) {
	var c fieldCheck
	c.require(q.Status == "" || q.Status.Valid(), "status")
	c.require(q.Limit >= 0, "limit")
	if err := c.err(); err != nil {
		return nil, err
	}

	return m.store.ListJobs(ctx, model.JobFilter{Status: q.Status, Category: q.Category, Limit: clampLimit(q.Limit)})
}

// GetJob returns the job or nil when it does not exist.
func (m *Marketplace) GetJob(ctx context.Context, id string) (*model.Job, error) {
	job, err := m.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return job, err
}

// ListClientJobs returns the jobs posted by clientID.
func (m *Marketplace) ListClientJobs(ctx context.Context, clientID string) ([]model.Job, error) {
	return m.store.ListJobs(ctx, model.JobFilter{ClientID: clientID})
}

// UpdateJobStatus moves a job along its lifecycle without an ownership
// check. It backs trusted callers such as the payment webhook.
func (m *Marketplace) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus) (*model.Job, error) {
	if !status.Valid() {
		return nil, &ValidationError{Fields: []string{"status"}}
	}
	before, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job, err := m.store.UpdateJobStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if before.Status != job.Status {
		m.publish(ctx, events.JobStatusChanged, map[string]string{
			"jobId": job.ID,
			"from":  string(before.Status),
			"to":    string(job.Status),
		})
	}
	return job, nil
}

// UpdateOwnedJobStatus is UpdateJobStatus for the job's owner. Jobs owned
// by someone else are reported as not found.
func (m *Marketplace) UpdateOwnedJobStatus(ctx context.Context, clientID, id string, status model.JobStatus) (*model.Job, error) {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.ClientID != clientID {
		return nil, store.ErrNotFound
	}
	return m.UpdateJobStatus(ctx, id, status)
}

// MarkJobFunded handles a completed checkout for jobID. Funding reopens the
// job for bids; jobs already past bidding are left as they are.
func (m *Marketplace) MarkJobFunded(ctx context.Context, jobID string) error {
	_, err := m.UpdateJobStatus(ctx, jobID, model.JobOpen)
	switch {
	case errors.Is(err, store.ErrInvalidTransition):
		m.logger.Warn("payment received for job past bidding", "job_id", jobID)
		return nil
	case errors.Is(err, store.ErrNotFound):
		m.logger.Warn("payment received for unknown job", "job_id", jobID)
		return nil
	}
	return err
}

// --- Proposals ---

// SubmitProposal places a bid by agentID. The agent's display name and
// avatar are copied from its profile.
func (m *Marketplace) SubmitProposal(ctx context.Context, agentID string, in ProposalInput) (*model.Proposal, error) {
	var c fieldCheck
	c.require(!blank(in.JobID), "jobId")
	c.require(in.BidAmount != nil && *in.BidAmount > 0, "bidAmount")
	c.require(!blank(in.CoverLetter), "coverLetter")
	c.require(!blank(in.EstimatedDuration), "estimatedDuration")
	if err := c.err(); err != nil {
		return nil, err
	}

	profile, err := m.agentProfile(ctx, agentID)
	if err != nil {
		return nil, err
	}

	p := &model.Proposal{
		JobID:             in.JobID,
		FreelancerID:      agentID,
		FreelancerName:    profile.DisplayName,
		FreelancerAvatar:  profile.PhotoURL,
		CoverLetter:       in.CoverLetter,
		BidAmount:         *in.BidAmount,
		EstimatedDuration: in.EstimatedDuration,
	}
	if err := m.store.SubmitProposal(ctx, p); err != nil {
		return nil, err
	}

	m.metrics.ProposalSubmitted()
	m.publish(ctx, events.ProposalSubmitted, p)
	return p, nil
}

// ListMyProposals returns the proposals placed by agentID, newest first.
func (m *Marketplace) ListMyProposals(ctx context.Context, agentID string) ([]model.Proposal, error) {
	return m.store.ListProposalsForFreelancer(ctx, agentID)
}

// ListProposalsForJob returns the proposals on a job owned by ownerID.
func (m *Marketplace) ListProposalsForJob(ctx context.Context, ownerID, jobID string) ([]model.Proposal, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != ownerID {
		return nil, store.ErrNotFound
	}
	return m.store.ListProposalsForJob(ctx, jobID, ownerID)
}

// WithdrawProposal withdraws agentID's pending proposal.
func (m *Marketplace) WithdrawProposal(ctx context.Context, agentID, id string) (*model.Proposal, error) {
	p, err := m.store.WithdrawProposal(ctx, id, agentID)
	if err != nil {
		return nil, err
	}
	m.publish(ctx, events.ProposalWithdrawn, p)
	return p, nil
}

// AcceptProposal accepts a proposal on a job owned by clientID and assigns
// the job to the bidding agent.
func (m *Marketplace) AcceptProposal(ctx context.Context, clientID, id string) (*model.Proposal, error) {
	p, err := m.store.AcceptProposal(ctx, id, clientID)
	if err != nil {
		return nil, err
	}
	m.publish(ctx, events.ProposalAccepted, p)
	m.publish(ctx, events.JobStatusChanged, map[string]string{
		"jobId": p.JobID,
		"to":    string(model.JobAssigned),
	})
	return p, nil
}

// RejectProposal rejects a proposal on a job owned by clientID.
func (m *Marketplace) RejectProposal(ctx context.Context, clientID, id string) (*model.Proposal, error) {
	p, err := m.store.RejectProposal(ctx, id, clientID)
	if err != nil {
		return nil, err
	}
	m.publish(ctx, events.ProposalRejected, p)
	return p, nil
}

// --- Profiles ---

func (m *Marketplace) agentProfile(ctx context.Context, agentID string) (*model.UserProfile, error) {
	profile, err := m.store.GetProfile(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProfileNotFound
	}
	return profile, err
}

// GetProfile returns the profile of uid or ErrProfileNotFound.
func (m *Marketplace) GetProfile(ctx context.Context, uid string) (*model.UserProfile, error) {
	return m.agentProfile(ctx, uid)
}

func validatePatch(patch model.ProfilePatch) error {
	var c fieldCheck
	c.require(patch.Role == nil || patch.Role.Valid(), "role")
	c.require(patch.HourlyRate == nil || *patch.HourlyRate >= 0, "hourlyRate")
	c.require(patch.DisplayName == nil || !blank(*patch.DisplayName), "displayName")
	return c.err()
}

// UpsertProfile merges patch into the profile of uid, creating it if needed.
func (m *Marketplace) UpsertProfile(ctx context.Context, uid string, patch model.ProfilePatch) (*model.UserProfile, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	return m.store.UpsertProfile(ctx, uid, patch.Apply)
}

// UpdateAgentProfile merges patch into the calling agent's profile. The
// role is always kept as agent.
func (m *Marketplace) UpdateAgentProfile(ctx context.Context, agentID string, patch model.ProfilePatch) (*model.UserProfile, error) {
	patch.Role = nil
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	return m.store.UpsertProfile(ctx, agentID, func(p *model.UserProfile) {
		patch.Apply(p)
		p.Role = model.RoleAgent
	})
}

// --- Listings ---

// initialListingRating is what a listing shows before its first review.
const initialListingRating = 5.0

// CreateListing publishes a service listing for agentID.
func (m *Marketplace) CreateListing(ctx context.Context, agentID string, in ListingInput) (*model.ServiceListing, error) {
	var c fieldCheck
	c.require(!blank(in.Title), "title")
	c.require(!blank(in.Description), "description")
	c.require(!blank(in.Category), "category")
	c.require(in.Tiers != nil && in.Tiers.Basic != nil, "tiers")
	c.require(!blank(in.MainImage), "mainImage")
	if err := c.err(); err != nil {
		return nil, err
	}

	profile, err := m.agentProfile(ctx, agentID)
	if err != nil {
		return nil, err
	}

	tiers, err := json.Marshal(in.Tiers)
	if err != nil {
		return nil, fmt.Errorf("encode tiers: %w", err)
	}
	useTiers := true
	if in.UseTiers != nil {
		useTiers = *in.UseTiers
	}
	name := profile.DisplayName
	if name == "" {
		name = "Agent"
	}

	l := &model.ServiceListing{
		AgentID:         agentID,
		AgentIdentifier: profile.AgentIdentifier,
		AgentName:       name,
		AgentAvatar:     profile.PhotoURL,
		Title:           in.Title,
		Description:     in.Description,
		Category:        in.Category,
		Tags:            model.StringList(in.Tags),
		Tiers:           model.RawJSON(tiers),
		UseTiers:        useTiers,
		MainImage:       in.MainImage,
		Gallery:         model.StringList(in.Gallery),
		VideoURL:        in.VideoURL,
		Rating:          initialListingRating,
		Status:          model.ListingActive,
	}
	if err := m.store.CreateListing(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// ListListings returns the listings published by agentID.
func (m *Marketplace) ListListings(ctx context.Context, agentID string) ([]model.ServiceListing, error) {
	return m.store.ListListingsForAgent(ctx, agentID)
}

// GetListing returns a listing. Draft and paused listings are only visible
// to their owner; for anyone else they do not exist.
func (m *Marketplace) GetListing(ctx context.Context, viewerID, id string) (*model.ServiceListing, error) {
	l, err := m.store.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Status != model.ListingActive && l.AgentID != viewerID {
		return nil, store.ErrNotFound
	}
	return l, nil
}

// BrowseListings returns active listings, newest first. Limit defaults to
// DefaultSearchLimit and is capped at MaxSearchLimit.
func (m *Marketplace) BrowseListings(ctx context.Context, q ListingSearch) ([]model.ServiceListing, error) {
	var c fieldCheck
	c.require(q.Limit >= 0, "limit")
	if err := c.err(); err != nil {
		return nil, err
	}
	return m.store.ListListings(ctx, model.ListingFilter{
		Status:   model.ListingActive,
		Category: q.Category,
		Limit:    clampLimit(q.Limit),
	})
}

func validateListingPatch(p ListingPatch) error {
	var c fieldCheck
	c.require(p.Title == nil || !blank(*p.Title), "title")
	c.require(p.Description == nil || !blank(*p.Description), "description")
	c.require(p.Category == nil || !blank(*p.Category), "category")
	c.require(p.Tiers == nil || p.Tiers.Basic != nil, "tiers")
	c.require(p.MainImage == nil || !blank(*p.MainImage), "mainImage")
	c.require(p.Status == nil || p.Status.Valid(), "status")
	return c.err()
}

// UpdateListing merges patch into a listing owned by agentID. Listings of
// other agents are reported as store.ErrNotFound.
func (m *Marketplace) UpdateListing(ctx context.Context, agentID, id string, patch ListingPatch) (*model.ServiceListing, error) {
	if err := validateListingPatch(patch); err != nil {
		return nil, err
	}
	var tiers model.RawJSON
	if patch.Tiers != nil {
		b, err := json.Marshal(patch.Tiers)
		if err != nil {
			return nil, fmt.Errorf("encode tiers: %w", err)
		}
		tiers = model.RawJSON(b)
	}

	l, err := m.store.UpdateListing(ctx, id, func(l *model.ServiceListing) error {
		if l.AgentID != agentID {
			return store.ErrNotFound
		}
		if patch.Title != nil {
			l.Title = *patch.Title
		}
		if patch.Description != nil {
			l.Description = *patch.Description
		}
		if patch.Category != nil {
			l.Category = *patch.Category
		}
		if patch.Tags != nil {
			l.Tags = model.StringList(patch.Tags)
		}
		if tiers != nil {
			l.Tiers = tiers
		}
		if patch.UseTiers != nil {
			l.UseTiers = *patch.UseTiers
		}
		if patch.MainImage != nil {
			l.MainImage = *patch.MainImage
		}
		if patch.Gallery != nil {
			l.Gallery = model.StringList(patch.Gallery)
		}
		if patch.VideoURL != nil {
			l.VideoURL = *patch.VideoURL
		}
		if patch.Status != nil {
			l.Status = *patch.Status
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("service listing updated", "listing_id", id, "agent_id", agentID, "status", l.Status)
	return l, nil
}

// DeleteListing removes a listing owned by agentID.
func (m *Marketplace) DeleteListing(ctx context.Context, agentID, id string) error {
	if err := m.store.DeleteListing(ctx, id, agentID); err != nil {
		return err
	}
	m.logger.Info("service listing deleted", "listing_id", id, "agent_id", agentID)
	return nil
}

// ListAgents returns the public agent directory. A nil verified lists all
// agents.
func (m *Marketplace) ListAgents(ctx context.Context, verified *bool, limit int) ([]model.UserProfile, error) {
	var c fieldCheck
	c.require(limit >= 0, "limit")
	if err := c.err(); err != nil {
		return nil, err
	}
	return m.store.ListAgents(ctx, model.AgentFilter{Verified: verified, Limit: clampLimit(limit)})
}

// clampLimit applies the default and maximum page size of catalogue reads.
func clampLimit(limit int) int {
	if limit == 0 {
		return DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}
