package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/clawjobs/internal/calllog"
	"github.com/openclaw/clawjobs/internal/model"
	"github.com/openclaw/clawjobs/internal/server/middleware"
	"github.com/openclaw/clawjobs/internal/service"
	"github.com/openclaw/clawjobs/internal/store"
)

// Test-only headers that stand in for the auth middleware.
const (
	testAgentHeader = "X-Test-Agent"
	testUserHeader  = "X-Test-User"
)

// testEnv holds shared state for handler integration tests.
type testEnv struct {
	store   *store.Store
	keys    *service.KeyService
	market  *service.Marketplace
	agent   *AgentHandler
	account *AccountHandler
	catalog *CatalogHandler
	router  chi.Router
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeIdentity puts the principal named by the test headers into the
// request context, the way AgentAuth and SessionAuth do.
func fakeIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get(testAgentHeader); id != "" {
			ctx = middleware.WithAgent(ctx, &middleware.Agent{ID: id, KeyID: "key-" + id})
		}
		if uid := r.Header.Get(testUserHeader); uid != "" {
			ctx = middleware.WithSession(ctx, &service.Session{UID: uid, Role: model.RoleHuman})
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// newTestEnv creates a fresh test environment with an in-memory store and a
// Chi router with routes mounted behind fakeIdentity.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("store.NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := discardLogger()
	keys := service.NewKeyService(s, logger)
	market := service.NewMarketplace(s, nil, nil, logger)
	rec := calllog.NewRecorder(s, nil, logger)

	env := &testEnv{
		store:   s,
		keys:    keys,
		market:  market,
		agent:   NewAgentHandler(market, logger),
		account: NewAccountHandler(keys, market, rec, logger),
		catalog: NewCatalogHandler(market, logger),
	}

	r := chi.NewRouter()
	r.Use(fakeIdentity)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/jobs", env.agent.ListJobs)
		r.Post("/jobs/search", env.agent.SearchJobs)
		r.Get("/jobs/{jobId}", env.agent.GetJob)
		r.Post("/proposals", env.agent.SubmitProposal)
		r.Get("/proposals/mine", env.agent.MyProposals)
		r.Post("/proposals/{proposalId}/withdraw", env.agent.WithdrawProposal)
		r.Get("/agent/profile", env.agent.GetProfile)
		r.Patch("/agent/profile", env.agent.PatchProfile)
		r.Post("/services", env.agent.CreateService)
		r.Get("/services", env.agent.ListServices)
		r.Get("/services/{serviceId}", env.agent.GetService)
		r.Patch("/services/{serviceId}", env.agent.UpdateService)
		r.Delete("/services/{serviceId}", env.agent.DeleteService)

		r.Get("/marketplace/services", env.catalog.BrowseServices)
		r.Get("/marketplace/agents", env.catalog.ListAgents)

		r.Route("/account", func(r chi.Router) {
			r.Put("/profile", env.account.PutProfile)
			r.Get("/keys", env.account.ListKeys)
			r.Post("/keys", env.account.CreateKey)
			r.Delete("/keys/{keyId}", env.account.RevokeKey)
			r.Get("/logs", env.account.ListLogs)
			r.Post("/jobs", env.account.CreateJob)
			r.Get("/jobs", env.account.ListJobs)
			r.Patch("/jobs/{jobId}/status", env.account.UpdateJobStatus)
			r.Get("/jobs/{jobId}/proposals", env.account.ListJobProposals)
			r.Post("/proposals/{proposalId}/accept", env.account.AcceptProposal)
			r.Post("/proposals/{proposalId}/reject", env.account.RejectProposal)
		})
	})
	env.router = r
	return env
}

// doAs executes an HTTP request as the given agent (or anonymously when
// agentID is empty) and returns the recorder.
func (e *testEnv) doAs(t *testing.T, agentID, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if agentID != "" {
		req.Header.Set(testAgentHeader, agentID)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// doUser executes an HTTP request with a session for uid.
func (e *testEnv) doUser(t *testing.T, uid, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(testUserHeader, uid)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// seedAgent gives agentID a profile so it can bid and publish listings.
func (e *testEnv) seedAgent(t *testing.T, agentID, name string) {
	t.Helper()
	_, err := e.market.UpdateAgentProfile(context.Background(), agentID, model.ProfilePatch{DisplayName: &name})
	if err != nil {
		t.Fatalf("seed agent profile: %v", err)
	}
}

// seedJob posts an open job owned by clientID.
func (e *testEnv) seedJob(t *testing.T, clientID, title string) *model.Job {
	t.Helper()
	job, err := e.market.CreateJob(context.Background(), clientID, service.JobInput{
		Title:       title,
		Description: "Scrape and normalize product data",
		Category:    "Data",
		PaymentType: model.PaymentFixed,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}
