// Package calllog records one audit entry per agent API call. Write failures
// are contained here so they never reach the caller's response.
package calllog

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/openclaw/clawjobs/internal/metrics"
	"github.com/openclaw/clawjobs/internal/model"
)

// Listing limits for ListForAgent.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// writeTimeout bounds a single call log write, which runs after the
// request context may already be cancelled.
const writeTimeout = 5 * time.Second

// Store is the persistence the recorder needs.
type Store interface {
	AppendCallLog(ctx context.Context, entry *model.CallLog) error
	ListCallLogsForAgent(ctx context.Context, agentID string, limit int) ([]model.CallLog, error)
}

// Recorder writes and reads call log entries.
type Recorder struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(s Store, m *metrics.Metrics, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: s, metrics: m, logger: logger}
}

// Record persists entry. The store assigns the timestamp. Failures are
// logged, counted and reported to the error tracker, never returned.
func (r *Recorder) Record(ctx context.Context, entry model.CallLog) {
	if entry.APIKeyID == "" {
		entry.APIKeyID = model.UnknownPrincipal
	}
	if entry.AgentID == "" {
		entry.AgentID = model.UnknownPrincipal
	}
	if entry.ResponseTime < 0 {
		entry.ResponseTime = 0
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.store.AppendCallLog(ctx, &entry); err != nil {
		r.metrics.CallLogWriteFailed()
		r.logger.Error("failed to record api call",
			"endpoint", entry.Endpoint,
			"method", entry.Method,
			"status", entry.StatusCode,
			"agent_id", entry.AgentID,
			"error", err,
		)
		sentry.CaptureException(err)
	}
}

// ListForAgent returns the agent's entries, newest first. limit defaults to
// DefaultListLimit and is capped at MaxListLimit.
func (r *Recorder) ListForAgent(ctx context.Context, agentID string, limit int) ([]model.CallLog, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return r.store.ListCallLogsForAgent(ctx, agentID, limit)
}
