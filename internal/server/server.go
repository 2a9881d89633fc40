package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/openclaw/clawjobs/internal/calllog"
	"github.com/openclaw/clawjobs/internal/handler"
	"github.com/openclaw/clawjobs/internal/limiter"
	"github.com/openclaw/clawjobs/internal/metrics"
	"github.com/openclaw/clawjobs/internal/openapi"
	"github.com/openclaw/clawjobs/internal/server/middleware"
	"github.com/openclaw/clawjobs/internal/service"
	"github.com/openclaw/clawjobs/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	MaxBodySize     int64 // bytes
	RateLimit       int   // agent requests per minute per credential, 0 disables
	IPRateLimit     int   // /api/v1 requests per minute per client IP, 0 disables
	PublicURL       string
	WebhookSecret   string
	Sentry          bool
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		MaxBodySize:     1 << 20, // 1MB
		RateLimit:       120,
		IPRateLimit:     600,
	}
}

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Store    *store.Store
	Keys     *service.KeyService
	Sessions *service.SessionService
	Market   *service.Marketplace
	CallLogs *calllog.Recorder
	Limiter  limiter.Limiter
	Metrics  *metrics.Metrics
}

// Server is the top-level HTTP server. It owns the Chi router and routes
// agent, account and webhook traffic to the handlers.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Limiter == nil {
		deps.Limiter = limiter.NewMemory(limiter.DefaultPolicy())
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

// sentryMiddleware reports panics to Sentry and re-panics so the recoverer
// in front of it still answers the request.
func (s *Server) sentryMiddleware() func(http.Handler) http.Handler {
	if !s.cfg.Sentry {
		return func(next http.Handler) http.Handler { return next }
	}
	return sentryhttp.New(sentryhttp.Options{Repanic: true, Timeout: 2 * time.Second}).Handle
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(s.sentryMiddleware())
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Requested-With", "Stripe-Signature"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}

	// --- Health, metrics and API description (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method("GET", "/metrics", s.deps.Metrics.Handler())
	r.Get("/openapi.json", s.handleOpenAPI)

	agentHandler := handler.NewAgentHandler(s.deps.Market, s.logger)
	accountHandler := handler.NewAccountHandler(s.deps.Keys, s.deps.Market, s.deps.CallLogs, s.logger)
	catalogHandler := handler.NewCatalogHandler(s.deps.Market, s.logger)
	webhookHandler := handler.NewWebhookHandler(s.cfg.WebhookSecret, s.deps.Market, s.logger)

	// One per-IP budget covers every /api/v1 route.
	ipLimit := func(next http.Handler) http.Handler { return next }
	if s.cfg.IPRateLimit > 0 {
		ipLimit = middleware.RateLimit(s.cfg.IPRateLimit)
	}
	callLog := middleware.CallLog(s.deps.CallLogs, s.deps.Metrics)

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {
		// Anything unmatched under /api/v1 falls in the agent API's space, so
		// it is call-logged like every other agent request. Sub-routers set
		// their own handlers to keep their misses out of the call log.
		r.NotFound(callLog(http.HandlerFunc(handler.NotFound)).ServeHTTP)
		r.MethodNotAllowed(callLog(http.HandlerFunc(handler.MethodNotAllowed)).ServeHTTP)

		// Payment provider callbacks authenticate by signature.
		r.Route("/webhooks", func(r chi.Router) {
			r.Use(ipLimit)
			r.NotFound(handler.NotFound)
			r.MethodNotAllowed(handler.MethodNotAllowed)

			r.Post("/payments", webhookHandler.Payments)
		})

		// Public catalogue pages.
		r.Route("/marketplace", func(r chi.Router) {
			r.Use(ipLimit)
			r.NotFound(handler.NotFound)
			r.MethodNotAllowed(handler.MethodNotAllowed)

			r.Get("/services", catalogHandler.BrowseServices)
			r.Get("/agents", catalogHandler.ListAgents)
		})

		// Owner surface for the web UI, authenticated by session token.
		r.Route("/account", func(r chi.Router) {
			r.Use(ipLimit)
			r.Use(middleware.SessionAuth(s.deps.Sessions))
			r.NotFound(handler.NotFound)
			r.MethodNotAllowed(handler.MethodNotAllowed)

			r.Put("/profile", accountHandler.PutProfile)

			r.Get("/keys", accountHandler.ListKeys)
			r.Post("/keys", accountHandler.CreateKey)
			r.Delete("/keys/{keyId}", accountHandler.RevokeKey)

			r.Get("/logs", accountHandler.ListLogs)

			r.Post("/jobs", accountHandler.CreateJob)
			r.Get("/jobs", accountHandler.ListJobs)
			r.Patch("/jobs/{jobId}/status", accountHandler.UpdateJobStatus)
			r.Get("/jobs/{jobId}/proposals", accountHandler.ListJobProposals)

			r.Post("/proposals/{proposalId}/accept", accountHandler.AcceptProposal)
			r.Post("/proposals/{proposalId}/reject", accountHandler.RejectProposal)
		})

		// Agent API. CallLog sits outside everything else so that every
		// outcome, including auth failures, rate limits and panics, is
		// recorded with the status the caller saw.
		r.Group(func(r chi.Router) {
			r.Use(callLog)
			r.Use(chimw.Recoverer)
			r.Use(s.sentryMiddleware())
			r.Use(ipLimit)
			if s.cfg.RateLimit > 0 {
				r.Use(middleware.RateLimitByCredential(s.cfg.RateLimit))
			}
			r.Use(middleware.AgentAuth(s.deps.Keys, s.deps.Limiter, s.deps.Metrics, s.logger))

			r.Get("/jobs", agentHandler.ListJobs)
			r.Post("/jobs/search", agentHandler.SearchJobs)
			r.Get("/jobs/{jobId}", agentHandler.GetJob)

			r.Post("/proposals", agentHandler.SubmitProposal)
			r.Get("/proposals/mine", agentHandler.MyProposals)
			r.Post("/proposals/{proposalId}/withdraw", agentHandler.WithdrawProposal)

			r.Get("/agent/profile", agentHandler.GetProfile)
			r.Patch("/agent/profile", agentHandler.PatchProfile)

			r.Post("/services", agentHandler.CreateService)
			r.Get("/services", agentHandler.ListServices)
			r.Get("/services/{serviceId}", agentHandler.GetService)
			r.Patch("/services/{serviceId}", agentHandler.UpdateService)
			r.Delete("/services/{serviceId}", agentHandler.DeleteService)
		})
	})

	s.router = r
}

// handleHealthz reports liveness. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz reports readiness. Returns 200 when the database is
// reachable, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := map[string]string{"database": "ok"}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		checks["database"] = "unreachable"
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// handleOpenAPI serves the OpenAPI description of the agent API.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	baseURL := s.cfg.PublicURL
	if baseURL == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		baseURL = scheme + "://" + r.Host
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(openapi.Document(baseURL)); err != nil {
		s.logger.Error("encode openapi document", "error", err)
	}
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
