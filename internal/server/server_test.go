package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/openclaw/clawjobs/internal/calllog"
	"github.com/openclaw/clawjobs/internal/handler"
	"github.com/openclaw/clawjobs/internal/limiter"
	"github.com/openclaw/clawjobs/internal/metrics"
	"github.com/openclaw/clawjobs/internal/model"
	"github.com/openclaw/clawjobs/internal/service"
	"github.com/openclaw/clawjobs/internal/store"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const (
	testSessionSecret = "test-secret-for-session-tokens"
	testWebhookSecret = "whsec_server_test"
)

// testEnv holds all the shared state for integration tests.
type testEnv struct {
	server   *Server
	store    *store.Store
	keys     *service.KeyService
	sessions *service.SessionService
	market   *service.Marketplace
	metrics  *metrics.Metrics
}

// newTestEnv creates a fresh test environment with an in-memory store and a
// fully wired Server. Lockout triggers after three failures.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, DefaultConfig())
}

func newTestEnvWithConfig(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	s, err := store.NewStore("") // in-memory SQLite
	if err != nil {
		t.Fatalf("store.NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	keys := service.NewKeyService(s, logger)
	sessions := service.NewSessionService(testSessionSecret)
	market := service.NewMarketplace(s, nil, m, logger)

	cfg.WebhookSecret = testWebhookSecret
	srv := New(cfg, Deps{
		Store:    s,
		Keys:     keys,
		Sessions: sessions,
		Market:   market,
		CallLogs: calllog.NewRecorder(s, m, logger),
		Limiter:  limiter.NewMemory(limiter.Policy{MaxFailures: 3, Window: time.Minute, BlockFor: time.Minute}),
		Metrics:  m,
	}, logger)

	return &testEnv{
		server:   srv,
		store:    s,
		keys:     keys,
		sessions: sessions,
		market:   market,
		metrics:  m,
	}
}

// do executes an HTTP request against the test server and returns the recorder.
// headers is an optional map of header key-value pairs.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "198.51.100.7:41000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

// doAPIKey executes an HTTP request authenticated with an API key.
func (e *testEnv) doAPIKey(t *testing.T, method, path string, body io.Reader, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{
		"X-API-Key": apiKey,
	})
}

// doSession executes an HTTP request with a session token for uid.
func (e *testEnv) doSession(t *testing.T, method, path string, body io.Reader, uid string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := e.sessions.Issue(uid, model.RoleHuman, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return e.do(t, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// seedAgent creates an agent profile and a key for it.
func (e *testEnv) seedAgent(t *testing.T, agentID string) string {
	t.Helper()
	name := "Agent " + agentID
	if _, err := e.market.UpdateAgentProfile(context.Background(), agentID, model.ProfilePatch{DisplayName: &name}); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	gen, err := e.keys.Generate(context.Background(), agentID, "test")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return gen.PlaintextKey
}

func (e *testEnv) seedJob(t *testing.T, clientID string) *model.Job {
	t.Helper()
	job, err := e.market.CreateJob(context.Background(), clientID, service.JobInput{
		Title:       "Scrape listings",
		Description: "Collect and normalize",
		Category:    "Data",
		PaymentType: model.PaymentFixed,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func (e *testEnv) callLogs(t *testing.T, agentID string) []model.CallLog {
	t.Helper()
	logs, err := e.store.ListCallLogsForAgent(context.Background(), agentID, 0)
	if err != nil {
		t.Fatalf("ListCallLogsForAgent: %v", err)
	}
	return logs
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func assertContentType(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	got := rr.Header().Get("Content-Type")
	if got != want {
		t.Errorf("Content-Type = %q, want %q", got, want)
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Health, metrics and OpenAPI
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/healthz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	assertContentType(t, rr, "application/json")

	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Status != "ok" || resp.Checks["database"] != "ok" {
		t.Errorf("readyz = %+v", resp)
	}

	env.store.Close()
	rr = env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusServiceUnavailable)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "GET", "/api/v1/jobs", nil, nil)

	rr := env.do(t, "GET", "/metrics", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	body := rr.Body.String()
	for _, want := range []string{
		`clawjobs_auth_failures_total{reason="missing"} 1`,
		`clawjobs_api_calls_total{endpoint="/api/v1/jobs",method="GET",status="401"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestOpenAPISpec(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "GET", "/openapi.json", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	assertContentType(t, rr, "application/json")

	var doc map[string]interface{}
	decodeJSON(t, rr, &doc)
	paths, ok := doc["paths"].(map[string]interface{})
	if !ok {
		t.Fatal("expected paths in OpenAPI document")
	}
	for _, p := range []string{"/jobs", "/jobs/search", "/proposals", "/agent/profile", "/services"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("OpenAPI document missing path %s", p)
		}
	}
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "OPTIONS", "/api/v1/jobs", nil, map[string]string{
		"Origin":                         "http://localhost:3000",
		"Access-Control-Request-Method":  "GET",
		"Access-Control-Request-Headers": "Authorization,Content-Type,X-API-Key",
	})

	if rr.Code < 200 || rr.Code >= 300 {
		t.Errorf("CORS preflight status = %d, want 2xx", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected Access-Control-Allow-Origin header")
	}
}

// ---------------------------------------------------------------------------
// Agent API and call logging
// ---------------------------------------------------------------------------

func TestAgentRequestIsCallLogged(t *testing.T) {
	env := newTestEnv(t)
	key := env.seedAgent(t, "agent-1")
	env.seedJob(t, "c1")

	rr := env.doAPIKey(t, "GET", "/api/v1/jobs", nil, key)
	assertStatus(t, rr, http.StatusOK)

	var jobs []model.Job
	decodeJSON(t, rr, &jobs)
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}

	logs := env.callLogs(t, "agent-1")
	if len(logs) != 1 {
		t.Fatalf("got %d call logs, want 1", len(logs))
	}
	l := logs[0]
	if l.Endpoint != "/api/v1/jobs" || l.Method != "GET" || l.StatusCode != http.StatusOK {
		t.Errorf("call log = %+v", l)
	}
	if l.APIKeyID == "" || l.APIKeyID == model.UnknownPrincipal {
		t.Errorf("apiKeyId = %q", l.APIKeyID)
	}

	keys, _ := env.keys.ListForAgent(context.Background(), "agent-1")
	if len(keys) != 1 || keys[0].LastUsedAt == nil {
		t.Errorf("last used not recorded: %+v", keys)
	}
}

func TestBearerCredential(t *testing.T) {
	env := newTestEnv(t)
	key := env.seedAgent(t, "agent-1")

	rr := env.do(t, "GET", "/api/v1/proposals/mine", nil, map[string]string{
		"Authorization": "bearer " + key,
	})
	assertStatus(t, rr, http.StatusOK)
}

func TestUnauthenticatedRequestIsCallLoggedAsUnknown(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/v1/jobs/search", jsonBody(t, map[string]string{}), nil)
	assertStatus(t, rr, http.StatusUnauthorized)

	var body model.ErrorResponse
	decodeJSON(t, rr, &body)
	if body.Error != service.ErrMissingCredential.Error() {
		t.Errorf("error = %q", body.Error)
	}

	rr = env.doAPIKey(t, "GET", "/api/v1/jobs", nil, "oc_live_doesnotexist")
	assertStatus(t, rr, http.StatusUnauthorized)

	logs := env.callLogs(t, model.UnknownPrincipal)
	if len(logs) != 2 {
		t.Fatalf("got %d unknown call logs, want 2", len(logs))
	}
	for _, l := range logs {
		if l.StatusCode != http.StatusUnauthorized || l.APIKeyID != model.UnknownPrincipal {
			t.Errorf("call log = %+v", l)
		}
	}
}

func TestRevokedKeyIsRejected(t *testing.T) {
	env := newTestEnv(t)
	key := env.seedAgent(t, "agent-1")

	keys, _ := env.keys.ListForAgent(context.Background(), "agent-1")
	if err := env.keys.Revoke(context.Background(), keys[0].ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	rr := env.doAPIKey(t, "GET", "/api/v1/jobs", nil, key)
	assertStatus(t, rr, http.StatusUnauthorized)
	if len(env.callLogs(t, "agent-1")) != 0 {
		t.Error("revoked key request attributed to the agent")
	}
}

func TestSubmitProposalMissingBidIsLoggedAs400(t *testing.T) {
	env := newTestEnv(t)
	key := env.seedAgent(t, "agent-1")
	job := env.seedJob(t, "c1")

	rr := env.doAPIKey(t, "POST", "/api/v1/proposals", jsonBody(t, map[string]string{
		"jobId":             job.ID,
		"coverLetter":       "I can do this",
		"estimatedDuration": "3 days",
	}), key)
	assertStatus(t, rr, http.StatusBadRequest)

	var body model.ErrorResponse
	decodeJSON(t, rr, &body)
	if len(body.Fields) != 1 || body.Fields[0] != "bidAmount" {
		t.Errorf("fields = %v, want [bidAmount]", body.Fields)
	}

	logs := env.callLogs(t, "agent-1")
	if len(logs) != 1 || logs[0].StatusCode != http.StatusBadRequest {
		t.Fatalf("call logs = %+v", logs)
	}
	if !strings.Contains(string(logs[0].RequestBody), job.ID) {
		t.Errorf("request body not captured: %s", logs[0].RequestBody)
	}

	got, _ := env.market.GetJob(context.Background(), job.ID)
	if got.ProposalCount != 0 {
		t.Errorf("proposalCount = %d, want 0", got.ProposalCount)
	}
}

func TestAgentWorkflow(t *testing.T) {
	env := newTestEnv(t)
	key := env.seedAgent(t, "agent-1")
	job := env.seedJob(t, "c1")

	// Search, bid, list, withdraw.
	rr := env.doAPIKey(t, "POST", "/api/v1/jobs/search", jsonBody(t, map[string]interface{}{"category": "Data"}), key)
	assertStatus(t, rr, http.StatusOK)

	rr = env.doAPIKey(t, "POST", "/api/v1/proposals", jsonBody(t, map[string]interface{}{
		"jobId": job.ID, "bidAmount": 99.5, "coverLetter": "hello", "estimatedDuration": "1 day",
	}), key)
	assertStatus(t, rr, http.StatusCreated)
	var p model.Proposal
	decodeJSON(t, rr, &p)

	rr = env.doAPIKey(t, "GET", "/api/v1/proposals/mine", nil, key)
	assertStatus(t, rr, http.StatusOK)

	rr = env.doAPIKey(t, "POST", "/api/v1/proposals/"+p.ID+"/withdraw", nil, key)
	assertStatus(t, rr, http.StatusOK)

	rr = env.doAPIKey(t, "GET", "/api/v1/jobs/"+job.ID, nil, key)
	assertStatus(t, rr, http.StatusOK)
	var got model.Job
	decodeJSON(t, rr, &got)
	if got.ProposalCount != 0 {
		t.Errorf("proposalCount after withdraw = %d, want 0", got.ProposalCount)
	}

	// One entry per request, statuses as served.
	logs := env.callLogs(t, "agent-1")
	if len(logs) != 5 {
		t.Fatalf("got %d call logs, want 5", len(logs))
	}
	if got := testutil.ToFloat64(env.metrics.ProposalsSubmitted); got != 1 {
		t.Errorf("proposals submitted metric = %v, want 1", got)
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)
	key := env.seedAgent(t, "agent-1")

	for i := 0; i < 3; i++ {
		rr := env.doAPIKey(t, "GET", "/api/v1/jobs", nil, "oc_live_wrong")
		assertStatus(t, rr, http.StatusUnauthorized)
	}

	// Even the right key is refused while the address is blocked.
	rr := env.doAPIKey(t, "GET", "/api/v1/jobs", nil, key)
	assertStatus(t, rr, http.StatusTooManyRequests)
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	logs := env.callLogs(t, model.UnknownPrincipal)
	if len(logs) != 4 || logs[0].StatusCode != http.StatusTooManyRequests {
		t.Errorf("call logs = %+v", logs)
	}
}

func TestRateLimitIsCallLogged(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 2
	env := newTestEnvWithConfig(t, cfg)
	key := env.seedAgent(t, "agent-1")

	for i := 0; i < 2; i++ {
		assertStatus(t, env.doAPIKey(t, "GET", "/api/v1/jobs", nil, key), http.StatusOK)
	}
	rr := env.doAPIKey(t, "GET", "/api/v1/jobs", nil, key)
	assertStatus(t, rr, http.StatusTooManyRequests)

	// The limiter runs before authentication, so the rejected call has no
	// principal yet.
	logs := env.callLogs(t, model.UnknownPrincipal)
	if len(logs) != 1 || logs[0].StatusCode != http.StatusTooManyRequests {
		t.Errorf("call logs = %+v", logs)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "DELETE", "/healthz", nil, nil)
	assertStatus(t, rr, http.StatusMethodNotAllowed)
}

func TestAgentRouteMissesAreCallLogged(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{"DELETE", "/api/v1/jobs", http.StatusMethodNotAllowed},
		{"PUT", "/api/v1/proposals", http.StatusMethodNotAllowed},
		{"GET", "/api/v1/no-such-route", http.StatusNotFound},
	}
	for _, tt := range tests {
		rr := env.do(t, tt.method, tt.path, nil, nil)
		assertStatus(t, rr, tt.want)
		assertContentType(t, rr, "application/json")

		logs := env.callLogs(t, model.UnknownPrincipal)
		if len(logs) == 0 {
			t.Fatalf("%s %s: no call log", tt.method, tt.path)
		}
		got := logs[0]
		if got.Endpoint != tt.path || got.Method != tt.method || got.StatusCode != tt.want {
			t.Errorf("%s %s: newest log = %+v", tt.method, tt.path, got)
		}
	}
	if n := len(env.callLogs(t, model.UnknownPrincipal)); n != len(tests) {
		t.Errorf("call logs = %d, want one per request (%d)", n, len(tests))
	}
}

func TestAccountRouteMissesAreNotCallLogged(t *testing.T) {
	env := newTestEnv(t)

	assertStatus(t, env.doSession(t, "DELETE", "/api/v1/account/profile", nil, "owner-1"), http.StatusMethodNotAllowed)
	assertStatus(t, env.doSession(t, "GET", "/api/v1/account/nothing", nil, "owner-1"), http.StatusNotFound)
	assertStatus(t, env.do(t, "GET", "/api/v1/webhooks/payments", nil, nil), http.StatusMethodNotAllowed)

	if logs := env.callLogs(t, model.UnknownPrincipal); len(logs) != 0 {
		t.Errorf("call logs = %+v, want none", logs)
	}
}

func TestIPRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IPRateLimit = 3
	env := newTestEnvWithConfig(t, cfg)

	// The budget is shared across public and agent routes.
	assertStatus(t, env.do(t, "GET", "/api/v1/marketplace/services", nil, nil), http.StatusOK)
	assertStatus(t, env.do(t, "GET", "/api/v1/marketplace/agents", nil, nil), http.StatusOK)
	assertStatus(t, env.do(t, "GET", "/api/v1/jobs", nil, nil), http.StatusUnauthorized)

	rr := env.do(t, "GET", "/api/v1/marketplace/services", nil, nil)
	assertStatus(t, rr, http.StatusTooManyRequests)
	assertContentType(t, rr, "application/json")

	rr = env.do(t, "GET", "/api/v1/jobs", nil, nil)
	assertStatus(t, rr, http.StatusTooManyRequests)
	logs := env.callLogs(t, model.UnknownPrincipal)
	if len(logs) != 2 || logs[0].StatusCode != http.StatusTooManyRequests {
		t.Errorf("call logs = %+v", logs)
	}

	// Health checks are never limited.
	assertStatus(t, env.do(t, "GET", "/healthz", nil, nil), http.StatusOK)
}

func TestIPRateLimitDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IPRateLimit = 0
	env := newTestEnvWithConfig(t, cfg)

	for i := 0; i < 10; i++ {
		assertStatus(t, env.do(t, "GET", "/api/v1/marketplace/services", nil, nil), http.StatusOK)
	}
}

func TestSuccessfulAuthDoesNotResetLockout(t *testing.T) {
	env := newTestEnv(t)
	key := env.seedAgent(t, "agent-1")

	assertStatus(t, env.doAPIKey(t, "GET", "/api/v1/jobs", nil, "oc_live_guess1"), http.StatusUnauthorized)
	assertStatus(t, env.doAPIKey(t, "GET", "/api/v1/jobs", nil, "oc_live_guess2"), http.StatusUnauthorized)
	assertStatus(t, env.doAPIKey(t, "GET", "/api/v1/jobs", nil, key), http.StatusOK)
	assertStatus(t, env.doAPIKey(t, "GET", "/api/v1/jobs", nil, "oc_live_guess3"), http.StatusUnauthorized)

	assertStatus(t, env.doAPIKey(t, "GET", "/api/v1/jobs", nil, key), http.StatusTooManyRequests)
}

// ---------------------------------------------------------------------------
// Service listings
// ---------------------------------------------------------------------------

func TestServiceListingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	owner := env.seedAgent(t, "agent-1")
	other := env.seedAgent(t, "agent-2")

	rr := env.doAPIKey(t, "POST", "/api/v1/services", jsonBody(t, map[string]interface{}{
		"title":       "Data pipelines",
		"description": "ETL on demand",
		"category":    "Data",
		"mainImage":   "https://example.com/a.png",
		"tiers": map[string]interface{}{
			"basic": map[string]interface{}{"name": "Basic", "price": 50, "deliveryTime": 3},
		},
	}), owner)
	assertStatus(t, rr, http.StatusCreated)
	var created model.ListingCreatedResponse
	decodeJSON(t, rr, &created)
	path := "/api/v1/services/" + created.ID

	// Active listings show up in the public catalogue.
	rr = env.do(t, "GET", "/api/v1/marketplace/services?category=Data", nil, nil)
	assertStatus(t, rr, http.StatusOK)
	var browse model.ListingsResponse
	decodeJSON(t, rr, &browse)
	if len(browse.Services) != 1 || browse.Services[0].ID != created.ID {
		t.Fatalf("catalogue = %+v", browse.Services)
	}

	// Only the owner may edit.
	assertStatus(t, env.doAPIKey(t, "PATCH", path, jsonBody(t, map[string]string{"title": "Stolen"}), other), http.StatusNotFound)

	rr = env.doAPIKey(t, "PATCH", path, jsonBody(t, map[string]string{"title": "Pipelines v2", "status": "paused"}), owner)
	assertStatus(t, rr, http.StatusOK)
	var updated model.ServiceListing
	decodeJSON(t, rr, &updated)
	if updated.Title != "Pipelines v2" || updated.Status != model.ListingPaused {
		t.Errorf("updated = %+v", updated)
	}

	// Paused listings leave the catalogue and are hidden from other agents.
	rr = env.do(t, "GET", "/api/v1/marketplace/services", nil, nil)
	browse = model.ListingsResponse{}
	decodeJSON(t, rr, &browse)
	if len(browse.Services) != 0 {
		t.Errorf("paused listing still browsable: %+v", browse.Services)
	}
	assertStatus(t, env.doAPIKey(t, "GET", path, nil, other), http.StatusNotFound)
	assertStatus(t, env.doAPIKey(t, "GET", path, nil, owner), http.StatusOK)

	assertStatus(t, env.doAPIKey(t, "DELETE", path, nil, other), http.StatusNotFound)
	assertStatus(t, env.doAPIKey(t, "DELETE", path, nil, owner), http.StatusNoContent)
	assertStatus(t, env.doAPIKey(t, "GET", path, nil, owner), http.StatusNotFound)
}

// ---------------------------------------------------------------------------
// Account API
// ---------------------------------------------------------------------------

func TestAccountRequiresSessionToken(t *testing.T) {
	env := newTestEnv(t)
	key := env.seedAgent(t, "agent-1")

	rr := env.do(t, "GET", "/api/v1/account/keys", nil, nil)
	assertStatus(t, rr, http.StatusUnauthorized)

	// An API key is not a session token.
	rr = env.do(t, "GET", "/api/v1/account/keys", nil, map[string]string{"Authorization": "Bearer " + key})
	assertStatus(t, rr, http.StatusUnauthorized)

	// Account traffic is not call-logged.
	if n := len(env.callLogs(t, model.UnknownPrincipal)); n != 0 {
		t.Errorf("account requests produced %d call logs", n)
	}
}

func TestAccountKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doSession(t, "POST", "/api/v1/account/keys", jsonBody(t, map[string]string{"name": "laptop"}), "agent-9")
	assertStatus(t, rr, http.StatusCreated)
	var gen struct {
		Key    string       `json:"key"`
		Record model.APIKey `json:"record"`
	}
	decodeJSON(t, rr, &gen)

	rr = env.doAPIKey(t, "GET", "/api/v1/proposals/mine", nil, gen.Key)
	assertStatus(t, rr, http.StatusOK)

	rr = env.doSession(t, "GET", "/api/v1/account/logs", nil, "agent-9")
	assertStatus(t, rr, http.StatusOK)
	var logs model.CallLogsResponse
	decodeJSON(t, rr, &logs)
	if len(logs.Logs) != 1 || logs.Logs[0].Endpoint != "/api/v1/proposals/mine" {
		t.Errorf("logs = %+v", logs.Logs)
	}

	rr = env.doSession(t, "DELETE", "/api/v1/account/keys/"+gen.Record.ID, nil, "agent-9")
	assertStatus(t, rr, http.StatusNoContent)

	rr = env.doAPIKey(t, "GET", "/api/v1/proposals/mine", nil, gen.Key)
	assertStatus(t, rr, http.StatusUnauthorized)
}

// ---------------------------------------------------------------------------
// Payment webhook
// ---------------------------------------------------------------------------

func TestPaymentWebhook(t *testing.T) {
	env := newTestEnv(t)
	job := env.seedJob(t, "c1")

	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"metadata":{"taskId":"` + job.ID + `"}}}}`)

	rr := env.do(t, "POST", "/api/v1/webhooks/payments", bytes.NewReader(payload), nil)
	assertStatus(t, rr, http.StatusBadRequest)

	rr = env.do(t, "POST", "/api/v1/webhooks/payments", bytes.NewReader(payload), map[string]string{
		"Stripe-Signature": handler.SignPayload(payload, testWebhookSecret, time.Now()),
	})
	assertStatus(t, rr, http.StatusOK)

	got, _ := env.market.GetJob(context.Background(), job.ID)
	if got.Status != model.JobOpen {
		t.Errorf("job status = %s, want open", got.Status)
	}
}
