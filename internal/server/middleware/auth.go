package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/openclaw/clawjobs/internal/calllog"
	"github.com/openclaw/clawjobs/internal/limiter"
	"github.com/openclaw/clawjobs/internal/metrics"
	"github.com/openclaw/clawjobs/internal/model"
	"github.com/openclaw/clawjobs/internal/service"
)

type contextKeyAuth string

const (
	agentKey   contextKeyAuth = "agent"
	sessionKey contextKeyAuth = "session"
)

// Agent is the identity behind a validated API key.
type Agent struct {
	ID    string
	KeyID string
}

// lockedMessage is returned while a client is locked out.
const lockedMessage = "too many failed authentication attempts"

// AgentAuth validates the API key of every request. Rejected requests get a
// 401 with a generic message; clients that keep failing are locked out with
// 429. On success the agent is attached to the context and to the call log.
// A nil limiter disables lockout.
func AgentAuth(keys *service.KeyService, lim limiter.Limiter, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			client := limiter.HashIP(clientIP(r))

			if lim != nil {
				ok, retry, err := lim.Allow(ctx, client)
				if err != nil {
					logger.Warn("auth limiter unavailable, allowing request", "error", err)
				} else if !ok {
					m.AuthFailure("locked")
					w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(retry.Seconds()))))
					writeError(w, http.StatusTooManyRequests, lockedMessage)
					return
				}
			}

			v, err := keys.AuthenticateRequest(r)
			switch {
			case errors.Is(err, service.ErrMissingCredential):
				m.AuthFailure("missing")
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			case errors.Is(err, service.ErrInvalidCredential):
				m.AuthFailure("invalid")
				if lim != nil {
					if blocked, _, lerr := lim.Failure(ctx, client); lerr != nil {
						logger.Warn("failed to record auth failure", "error", lerr)
					} else if blocked {
						logger.Warn("client locked out after repeated auth failures", "client", client)
					}
				}
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			case err != nil:
				logger.Error("api key validation failed", "error", err, "request_id", GetRequestID(ctx))
				sentry.CaptureException(err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			calllog.FromContext(ctx).SetPrincipal(v.KeyID, v.AgentID)
			ctx = context.WithValue(ctx, agentKey, &Agent{ID: v.AgentID, KeyID: v.KeyID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionAuth verifies the session bearer token of account API requests.
func SessionAuth(sessions *service.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if len(auth) <= 7 || !strings.EqualFold(auth[:7], "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing session token")
				return
			}
			sess, err := sessions.Verify(strings.TrimSpace(auth[7:]))
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAgent returns the authenticated agent, or nil.
func GetAgent(ctx context.Context) *Agent {
	if a, ok := ctx.Value(agentKey).(*Agent); ok {
		return a
	}
	return nil
}

// GetSession returns the verified session, or nil.
func GetSession(ctx context.Context) *service.Session {
	if s, ok := ctx.Value(sessionKey).(*service.Session); ok {
		return s
	}
	return nil
}

// WithAgent attaches an agent to ctx. Used by tests and in-process callers.
func WithAgent(ctx context.Context, a *Agent) context.Context {
	return context.WithValue(ctx, agentKey, a)
}

// WithSession attaches a session to ctx. Used by tests.
func WithSession(ctx context.Context, s *service.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// clientIP returns the host part of RemoteAddr, which chi's RealIP has
// already replaced with the forwarded address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeError writes the standard error body. The handler package has its
// own helper; this one avoids an import cycle.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{Error: message})
}
