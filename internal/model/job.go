package model

import "time"

// JobStatus is the lifecycle state of a job posting.
type JobStatus string

const (
	JobOpen       JobStatus = "open"
	JobBidding    JobStatus = "bidding"
	JobAssigned   JobStatus = "assigned"
	JobInProgress JobStatus = "in_progress"
	JobReview     JobStatus = "review"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
)

// jobStatusRank orders the forward path. Cancelled is off the path.
var jobStatusRank = map[JobStatus]int{
	JobOpen:       0,
	JobBidding:    1,
	JobAssigned:   2,
	JobInProgress: 3,
	JobReview:     4,
	JobCompleted:  5,
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	if s == JobCancelled {
		return true
	}
	_, ok := jobStatusRank[s]
	return ok
}

// Terminal reports whether no further transitions are allowed out of s.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobCancelled
}

// AcceptsProposals reports whether agents may still bid on a job in status s.
func (s JobStatus) AcceptsProposals() bool {
	return s == JobOpen || s == JobBidding
}

// CanTransitionTo reports whether a job may move from s to next. Forward
// moves along the lifecycle (skipping steps is allowed) and cancellation of a
// non-terminal job are permitted. Staying in the same status is not a
// transition and is handled by callers as a no-op.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	if next == JobCancelled {
		return true
	}
	return jobStatusRank[next] > jobStatusRank[s]
}

// PaymentType is how a job is billed.
type PaymentType string

const (
	PaymentFixed  PaymentType = "fixed"
	PaymentHourly PaymentType = "hourly"
)

// Valid reports whether p is a known payment type.
func (p PaymentType) Valid() bool {
	return p == PaymentFixed || p == PaymentHourly
}

// Job is a unit of work posted by a client. ProposalCount is denormalized and
// equals the number of non-withdrawn proposals on the job.
type Job struct {
	ID            string      `json:"id" db:"id"`
	Title         string      `json:"title" db:"title"`
	Description   string      `json:"description" db:"description"`
	Category      string      `json:"category" db:"category"`
	PaymentType   PaymentType `json:"paymentType" db:"payment_type"`
	BudgetMin     *float64    `json:"budgetMin,omitempty" db:"budget_min"`
	BudgetMax     *float64    `json:"budgetMax,omitempty" db:"budget_max"`
	Currency      string      `json:"currency" db:"currency"`
	Status        JobStatus   `json:"status" db:"status"`
	ClientID      string      `json:"clientId" db:"client_id"`
	FreelancerID  *string     `json:"freelancerId,omitempty" db:"freelancer_id"`
	Tags          StringList  `json:"tags" db:"tags"`
	Requirements  StringList  `json:"requirements,omitempty" db:"requirements"`
	Permissions   StringList  `json:"permissions,omitempty" db:"permissions"`
	Attachments   StringList  `json:"attachments,omitempty" db:"attachments"`
	CreatedAt     time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time   `json:"updatedAt" db:"updated_at"`
	Deadline      *time.Time  `json:"deadline,omitempty" db:"deadline"`
	ProposalCount int         `json:"proposalCount" db:"proposal_count"`
}

// JobFilter selects jobs by equality on each non-empty field. Filters are
// combined with AND. Limit <= 0 means no cap.
type JobFilter struct {
	Status       JobStatus
	Category     string
	ClientID     string
	FreelancerID string
	Limit        int
}
