package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/openclaw/clawjobs/internal/model"
	"github.com/openclaw/clawjobs/internal/service"
)

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

func TestListJobsReturnsOpenJobsArray(t *testing.T) {
	env := newTestEnv(t)
	env.seedJob(t, "c1", "First")
	second := env.seedJob(t, "c1", "Second")
	closed := env.seedJob(t, "c1", "Closed")
	if _, err := env.market.UpdateJobStatus(context.Background(), closed.ID, model.JobCancelled); err != nil {
		t.Fatalf("cancel job: %v", err)
	}

	rr := env.doAs(t, "agent-1", "GET", "/api/v1/jobs", nil)
	assertStatus(t, rr, http.StatusOK)

	var jobs []model.Job
	decodeJSON(t, rr, &jobs)
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != second.ID {
		t.Errorf("first job = %s, want newest %s", jobs[0].ID, second.ID)
	}
}

func TestListJobsRequiresAgent(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doAs(t, "", "GET", "/api/v1/jobs", nil)
	assertStatus(t, rr, http.StatusUnauthorized)
}

func TestSearchJobs(t *testing.T) {
	env := newTestEnv(t)
	env.seedJob(t, "c1", "Scraper")
	env.seedJob(t, "c1", "Another scraper")

	t.Run("empty body uses defaults", func(t *testing.T) {
		rr := env.doAs(t, "agent-1", "POST", "/api/v1/jobs/search", nil)
		assertStatus(t, rr, http.StatusOK)
		var resp model.JobsResponse
		decodeJSON(t, rr, &resp)
		if len(resp.Jobs) != 2 {
			t.Errorf("got %d jobs, want 2", len(resp.Jobs))
		}
	})

	t.Run("filters and limit", func(t *testing.T) {
		rr := env.doAs(t, "agent-1", "POST", "/api/v1/jobs/search", toJSON(t, map[string]interface{}{
			"status": "open", "category": "Data", "limit": 1,
		}))
		assertStatus(t, rr, http.StatusOK)
		var resp model.JobsResponse
		decodeJSON(t, rr, &resp)
		if len(resp.Jobs) != 1 {
			t.Errorf("got %d jobs, want 1", len(resp.Jobs))
		}
	})

	t.Run("unknown category is empty, not null", func(t *testing.T) {
		rr := env.doAs(t, "agent-1", "POST", "/api/v1/jobs/search", toJSON(t, map[string]string{"category": "Nope"}))
		assertStatus(t, rr, http.StatusOK)
		if !strings.Contains(rr.Body.String(), `"jobs":[]`) {
			t.Errorf("body = %s", rr.Body.String())
		}
	})

	t.Run("invalid status is 400", func(t *testing.T) {
		rr := env.doAs(t, "agent-1", "POST", "/api/v1/jobs/search", toJSON(t, map[string]string{"status": "bogus"}))
		assertStatus(t, rr, http.StatusBadRequest)
		var resp model.ErrorResponse
		decodeJSON(t, rr, &resp)
		if len(resp.Fields) != 1 || resp.Fields[0] != "status" {
			t.Errorf("fields = %v, want [status]", resp.Fields)
		}
	})

	t.Run("malformed JSON is 400", func(t *testing.T) {
		rr := env.doAs(t, "agent-1", "POST", "/api/v1/jobs/search", strings.NewReader("{"))
		assertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestGetJob(t *testing.T) {
	env := newTestEnv(t)
	job := env.seedJob(t, "c1", "Scraper")

	rr := env.doAs(t, "agent-1", "GET", "/api/v1/jobs/"+job.ID, nil)
	assertStatus(t, rr, http.StatusOK)
	var got model.Job
	decodeJSON(t, rr, &got)
	if got.Title != "Scraper" {
		t.Errorf("title = %q", got.Title)
	}

	rr = env.doAs(t, "agent-1", "GET", "/api/v1/jobs/missing", nil)
	assertStatus(t, rr, http.StatusNotFound)
}

// ---------------------------------------------------------------------------
// Proposals
// ---------------------------------------------------------------------------

func TestSubmitProposal(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "agent-1", "Scout")
	job := env.seedJob(t, "c1", "Scraper")

	rr := env.doAs(t, "agent-1", "POST", "/api/v1/proposals", toJSON(t, map[string]interface{}{
		"jobId":             job.ID,
		"bidAmount":         150,
		"coverLetter":       "I can do this",
		"estimatedDuration": "2 days",
	}))
	assertStatus(t, rr, http.StatusCreated)

	var p model.Proposal
	decodeJSON(t, rr, &p)
	if p.FreelancerID != "agent-1" || p.FreelancerName != "Scout" {
		t.Errorf("freelancer = %s/%s", p.FreelancerID, p.FreelancerName)
	}
	if p.ClientID != "c1" || p.Status != model.ProposalPending {
		t.Errorf("clientId = %s status = %s", p.ClientID, p.Status)
	}

	got, _ := env.market.GetJob(context.Background(), job.ID)
	if got.ProposalCount != 1 {
		t.Errorf("proposalCount = %d, want 1", got.ProposalCount)
	}
}

func TestSubmitProposalErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "agent-1", "Scout")
	job := env.seedJob(t, "c1", "Scraper")
	assigned := env.seedJob(t, "c1", "Taken")
	if _, err := env.market.UpdateJobStatus(context.Background(), assigned.ID, model.JobAssigned); err != nil {
		t.Fatalf("assign: %v", err)
	}

	valid := func(jobID string) map[string]interface{} {
		return map[string]interface{}{
			"jobId": jobID, "bidAmount": 10, "coverLetter": "hi", "estimatedDuration": "1d",
		}
	}

	tests := []struct {
		name       string
		agent      string
		body       map[string]interface{}
		wantStatus int
		wantFields []string
	}{
		{
			name:       "missing bidAmount",
			agent:      "agent-1",
			body:       map[string]interface{}{"jobId": job.ID, "coverLetter": "hi", "estimatedDuration": "1d"},
			wantStatus: http.StatusBadRequest,
			wantFields: []string{"bidAmount"},
		},
		{
			name:       "everything missing",
			agent:      "agent-1",
			body:       map[string]interface{}{},
			wantStatus: http.StatusBadRequest,
			wantFields: []string{"jobId", "bidAmount", "coverLetter", "estimatedDuration"},
		},
		{"unknown job", "agent-1", valid("missing"), http.StatusNotFound, nil},
		{"job not accepting bids", "agent-1", valid(assigned.ID), http.StatusConflict, nil},
		{"agent without profile", "agent-2", valid(job.ID), http.StatusNotFound, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.doAs(t, tt.agent, "POST", "/api/v1/proposals", toJSON(t, tt.body))
			assertStatus(t, rr, tt.wantStatus)
			if tt.wantFields == nil {
				return
			}
			var resp model.ErrorResponse
			decodeJSON(t, rr, &resp)
			if strings.Join(resp.Fields, ",") != strings.Join(tt.wantFields, ",") {
				t.Errorf("fields = %v, want %v", resp.Fields, tt.wantFields)
			}
		})
	}
}

func TestMyProposalsAndWithdraw(t *testing.T) {
	env := newTestEnv(t)
	env.seedAgent(t, "agent-1", "Scout")
	env.seedAgent(t, "agent-2", "Other")
	job := env.seedJob(t, "c1", "Scraper")

	bid := 25.0
	p, err := env.market.SubmitProposal(context.Background(), "agent-1", service.ProposalInput{
		JobID: job.ID, BidAmount: &bid, CoverLetter: "hi", EstimatedDuration: "1d",
	})
	if err != nil {
		t.Fatalf("SubmitProposal: %v", err)
	}

	rr := env.doAs(t, "agent-1", "GET", "/api/v1/proposals/mine", nil)
	assertStatus(t, rr, http.StatusOK)
	var mine model.ProposalsResponse
	decodeJSON(t, rr, &mine)
	if len(mine.Proposals) != 1 || mine.Proposals[0].ID != p.ID {
		t.Fatalf("mine = %+v", mine.Proposals)
	}

	rr = env.doAs(t, "agent-2", "GET", "/api/v1/proposals/mine", nil)
	assertStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), `"proposals":[]`) {
		t.Errorf("other agent sees proposals: %s", rr.Body.String())
	}

	t.Run("other agent cannot withdraw", func(t *testing.T) {
		rr := env.doAs(t, "agent-2", "POST", "/api/v1/proposals/"+p.ID+"/withdraw", nil)
		assertStatus(t, rr, http.StatusNotFound)
	})

	t.Run("owner withdraws", func(t *testing.T) {
		rr := env.doAs(t, "agent-1", "POST", "/api/v1/proposals/"+p.ID+"/withdraw", nil)
		assertStatus(t, rr, http.StatusOK)
		var got model.Proposal
		decodeJSON(t, rr, &got)
		if got.Status != model.ProposalWithdrawn {
			t.Errorf("status = %s", got.Status)
		}
	})

	t.Run("second withdraw conflicts", func(t *testing.T) {
		rr := env.doAs(t, "agent-1", "POST", "/api/v1/proposals/"+p.ID+"/withdraw", nil)
		assertStatus(t, rr, http.StatusConflict)
	})
}

// ---------------------------------------------------------------------------
// Profile and services
// ---------------------------------------------------------------------------

func TestAgentProfile(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doAs(t, "agent-1", "GET", "/api/v1/agent/profile", nil)
	assertStatus(t, rr, http.StatusNotFound)

	rr = env.doAs(t, "agent-1", "PATCH", "/api/v1/agent/profile", toJSON(t, map[string]interface{}{
		"displayName": "Scout",
		"skills":      []string{"scraping"},
		"role":        "human",
	}))
	assertStatus(t, rr, http.StatusOK)
	var p model.UserProfile
	decodeJSON(t, rr, &p)
	if p.Role != model.RoleAgent {
		t.Errorf("role = %s, want agent", p.Role)
	}

	rr = env.doAs(t, "agent-1", "GET", "/api/v1/agent/profile", nil)
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &p)
	if p.DisplayName != "Scout" || len(p.Skills) != 1 {
		t.Errorf("profile = %+v", p)
	}

	rr = env.doAs(t, "agent-1", "PATCH", "/api/v1/agent/profile", toJSON(t, map[string]interface{}{"hourlyRate": -1}))
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestCreateService(t *testing.T) {
	env := newTestEnv(t)

	listing := map[string]interface{}{
		"title":       "Data pipelines",
		"description": "ETL on demand",
		"category":    "Data",
		"mainImage":   "https://example.com/a.png",
		"tiers": map[string]interface{}{
			"basic": map[string]interface{}{"name": "Basic", "price": 50, "deliveryTime": 3},
		},
	}

	rr := env.doAs(t, "agent-1", "POST", "/api/v1/services", toJSON(t, listing))
	assertStatus(t, rr, http.StatusNotFound)

	env.seedAgent(t, "agent-1", "Scout")
	rr = env.doAs(t, "agent-1", "POST", "/api/v1/services", toJSON(t, listing))
	assertStatus(t, rr, http.StatusCreated)
	var created model.ListingCreatedResponse
	decodeJSON(t, rr, &created)
	if created.ID == "" || created.Status != model.ListingActive {
		t.Errorf("created = %+v", created)
	}

	rr = env.doAs(t, "agent-1", "GET", "/api/v1/services", nil)
	assertStatus(t, rr, http.StatusOK)
	var list model.ListingsResponse
	decodeJSON(t, rr, &list)
	if len(list.Services) != 1 || list.Services[0].Rating != 5.0 || list.Services[0].AgentName != "Scout" {
		t.Errorf("services = %+v", list.Services)
	}

	delete(listing, "tiers")
	rr = env.doAs(t, "agent-1", "POST", "/api/v1/services", toJSON(t, listing))
	assertStatus(t, rr, http.StatusBadRequest)
}

func (e *testEnv) createService(t *testing.T, agentID string) string {
	t.Helper()
	e.seedAgent(t, agentID, "Scout")
	rr := e.doAs(t, agentID, "POST", "/api/v1/services", toJSON(t, map[string]interface{}{
		"title":       "Data pipelines",
		"description": "ETL on demand",
		"category":    "Data",
		"mainImage":   "https://example.com/a.png",
		"tiers": map[string]interface{}{
			"basic": map[string]interface{}{"name": "Basic", "price": 50, "deliveryTime": 3},
		},
	}))
	assertStatus(t, rr, http.StatusCreated)
	var created model.ListingCreatedResponse
	decodeJSON(t, rr, &created)
	return created.ID
}

func TestGetService(t *testing.T) {
	env := newTestEnv(t)
	id := env.createService(t, "agent-1")

	rr := env.doAs(t, "agent-2", "GET", "/api/v1/services/"+id, nil)
	assertStatus(t, rr, http.StatusOK)
	var got model.ServiceListing
	decodeJSON(t, rr, &got)
	if got.ID != id || got.AgentName != "Scout" {
		t.Errorf("listing = %+v", got)
	}

	rr = env.doAs(t, "agent-1", "GET", "/api/v1/services/missing", nil)
	assertStatus(t, rr, http.StatusNotFound)
	var resp model.ErrorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error != "service not found" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestUpdateService(t *testing.T) {
	env := newTestEnv(t)
	id := env.createService(t, "agent-1")
	path := "/api/v1/services/" + id

	t.Run("owner edits content and status", func(t *testing.T) {
		rr := env.doAs(t, "agent-1", "PATCH", path, toJSON(t, map[string]interface{}{
			"description": "Batch and streaming ETL",
			"status":      "paused",
		}))
		assertStatus(t, rr, http.StatusOK)
		var got model.ServiceListing
		decodeJSON(t, rr, &got)
		if got.Description != "Batch and streaming ETL" || got.Status != model.ListingPaused || got.Title != "Data pipelines" {
			t.Errorf("listing = %+v", got)
		}
	})

	t.Run("other agents see not found", func(t *testing.T) {
		rr := env.doAs(t, "agent-2", "PATCH", path, toJSON(t, map[string]string{"title": "Mine now"}))
		assertStatus(t, rr, http.StatusNotFound)
		rr = env.doAs(t, "agent-2", "GET", path, nil)
		assertStatus(t, rr, http.StatusNotFound)
	})

	t.Run("invalid status is 400", func(t *testing.T) {
		rr := env.doAs(t, "agent-1", "PATCH", path, toJSON(t, map[string]string{"status": "deleted"}))
		assertStatus(t, rr, http.StatusBadRequest)
		var resp model.ErrorResponse
		decodeJSON(t, rr, &resp)
		if len(resp.Fields) != 1 || resp.Fields[0] != "status" {
			t.Errorf("fields = %v, want [status]", resp.Fields)
		}
	})
}

func TestDeleteService(t *testing.T) {
	env := newTestEnv(t)
	id := env.createService(t, "agent-1")
	path := "/api/v1/services/" + id

	assertStatus(t, env.doAs(t, "agent-2", "DELETE", path, nil), http.StatusNotFound)

	rr := env.doAs(t, "agent-1", "DELETE", path, nil)
	assertStatus(t, rr, http.StatusNoContent)
	if rr.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rr.Body.String())
	}
	assertStatus(t, env.doAs(t, "agent-1", "GET", path, nil), http.StatusNotFound)
}
