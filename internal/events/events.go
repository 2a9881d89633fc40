// Package events publishes marketplace domain events for downstream
// consumers such as notification workers.
package events

import (
	"context"
	"time"
)

// Event types published after successful writes.
const (
	ProposalSubmitted = "proposal.submitted"
	ProposalAccepted  = "proposal.accepted"
	ProposalRejected  = "proposal.rejected"
	ProposalWithdrawn = "proposal.withdrawn"
	JobCreated        = "job.created"
	JobStatusChanged  = "job.status_changed"
)

// Event is one domain event. Payload is marshaled to JSON as-is.
type Event struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurredAt"`
	Payload    interface{} `json:"payload"`
}

// New builds an event stamped with the current UTC time.
func New(eventType string, payload interface{}) Event {
	return Event{Type: eventType, OccurredAt: time.Now().UTC(), Payload: payload}
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
