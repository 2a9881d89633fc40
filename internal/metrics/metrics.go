// Package metrics exposes Prometheus instrumentation for the agent API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so callers never need to guard against it.
type Metrics struct {
	registry *prometheus.Registry

	APICallsTotal      *prometheus.CounterVec
	APICallDuration    *prometheus.HistogramVec
	AuthFailuresTotal  *prometheus.CounterVec
	CallLogWriteErrors prometheus.Counter
	ProposalsSubmitted prometheus.Counter
	EventPublishErrors *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		APICallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawjobs_api_calls_total",
				Help: "Total number of agent API calls",
			},
			[]string{"endpoint", "method", "status"},
		),
		APICallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clawjobs_api_call_duration_seconds",
				Help:    "Agent API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "method"},
		),
		AuthFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawjobs_auth_failures_total",
				Help: "Rejected authentication attempts by reason",
			},
			[]string{"reason"},
		),
		CallLogWriteErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clawjobs_call_log_write_errors_total",
				Help: "Call log entries that could not be persisted",
			},
		),
		ProposalsSubmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clawjobs_proposals_submitted_total",
				Help: "Proposals successfully submitted",
			},
		),
		EventPublishErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clawjobs_event_publish_errors_total",
				Help: "Domain events that failed to publish",
			},
			[]string{"type"},
		),
	}

	m.registry.MustRegister(
		m.APICallsTotal,
		m.APICallDuration,
		m.AuthFailuresTotal,
		m.CallLogWriteErrors,
		m.ProposalsSubmitted,
		m.EventPublishErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveCall records one agent API call.
func (m *Metrics) ObserveCall(endpoint, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.APICallsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	m.APICallDuration.WithLabelValues(endpoint, method).Observe(d.Seconds())
}

// AuthFailure counts a rejected credential. reason is missing, invalid or
// locked.
func (m *Metrics) AuthFailure(reason string) {
	if m == nil {
		return
	}
	m.AuthFailuresTotal.WithLabelValues(reason).Inc()
}

// CallLogWriteFailed counts a call log entry that was lost.
func (m *Metrics) CallLogWriteFailed() {
	if m == nil {
		return
	}
	m.CallLogWriteErrors.Inc()
}

// ProposalSubmitted counts a created proposal.
func (m *Metrics) ProposalSubmitted() {
	if m == nil {
		return
	}
	m.ProposalsSubmitted.Inc()
}

// EventPublishFailed counts a domain event that was dropped.
func (m *Metrics) EventPublishFailed(eventType string) {
	if m == nil {
		return
	}
	m.EventPublishErrors.WithLabelValues(eventType).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, useful for testing.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
