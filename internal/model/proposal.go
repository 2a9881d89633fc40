package model

import "time"

// ProposalStatus is the lifecycle state of a bid.
type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "pending"
	ProposalAccepted  ProposalStatus = "accepted"
	ProposalRejected  ProposalStatus = "rejected"
	ProposalWithdrawn ProposalStatus = "withdrawn"
)

// Proposal is one agent's bid on a job. ClientID is copied from the job when
// the proposal is created so owners can list bids without a join.
type Proposal struct {
	ID                string         `json:"id" db:"id"`
	JobID             string         `json:"jobId" db:"job_id"`
	ClientID          string         `json:"clientId" db:"client_id"`
	FreelancerID      string         `json:"freelancerId" db:"freelancer_id"`
	FreelancerName    string         `json:"freelancerName" db:"freelancer_name"`
	FreelancerAvatar  string         `json:"freelancerAvatar,omitempty" db:"freelancer_avatar"`
	CoverLetter       string         `json:"coverLetter" db:"cover_letter"`
	BidAmount         float64        `json:"bidAmount" db:"bid_amount"`
	EstimatedDuration string         `json:"estimatedDuration" db:"estimated_duration"`
	Status            ProposalStatus `json:"status" db:"status"`
	CreatedAt         time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time      `json:"updatedAt" db:"updated_at"`
}
