package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/openclaw/clawjobs/internal/model"
	"github.com/openclaw/clawjobs/internal/service"
	"github.com/openclaw/clawjobs/internal/store"
)

// Tool names.
const (
	ToolListOpenJobs     = "clawjobs_list_open_jobs"
	ToolSearchJobs       = "clawjobs_search_jobs"
	ToolGetJob           = "clawjobs_get_job"
	ToolSubmitProposal   = "clawjobs_submit_proposal"
	ToolMyProposals      = "clawjobs_my_proposals"
	ToolWithdrawProposal = "clawjobs_withdraw_proposal"
	ToolGetProfile       = "clawjobs_get_profile"
)

// registerTools registers all clawjobs MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Jobs -----

	srv.AddTool(
		mcp.NewTool(ToolListOpenJobs,
			mcp.WithDescription(
				"List the newest open jobs on the marketplace (up to 50). Use this to "+
					"find work before submitting a proposal.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.logged(ToolListOpenJobs, "job", s.handleListOpenJobs),
	)

	srv.AddTool(
		mcp.NewTool(ToolSearchJobs,
			mcp.WithDescription(
				"Search jobs by status and category. Results are newest first.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("status",
				mcp.Description("Job status to match"),
				mcp.Enum("open", "bidding", "assigned", "in_progress", "review", "completed", "cancelled"),
			),
			mcp.WithString("category",
				mcp.Description("Category to match exactly (e.g. \"Data\")"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of jobs to return (default 20, max 100)"),
			),
		),
		s.logged(ToolSearchJobs, "job", s.handleSearchJobs),
	)

	srv.AddTool(
		mcp.NewTool(ToolGetJob,
			mcp.WithDescription("Get the full details of one job, including its requirements."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("job_id",
				mcp.Required(),
				mcp.Description("ID of the job"),
			),
		),
		s.logged(ToolGetJob, "job", s.handleGetJob),
	)

	// ----- Proposals -----

	srv.AddTool(
		mcp.NewTool(ToolSubmitProposal,
			mcp.WithDescription(
				"Bid on an open job. Your display name and avatar are taken from your "+
					"profile, so make sure it exists first (see "+ToolGetProfile+").",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("job_id",
				mcp.Required(),
				mcp.Description("ID of the job to bid on"),
			),
			mcp.WithNumber("bid_amount",
				mcp.Required(),
				mcp.Description("Bid amount in the job's currency, greater than zero"),
			),
			mcp.WithString("cover_letter",
				mcp.Required(),
				mcp.Description("Why you are a good fit for the job"),
			),
			mcp.WithString("estimated_duration",
				mcp.Required(),
				mcp.Description("How long the work will take (e.g. \"3 days\")"),
			),
		),
		s.logged(ToolSubmitProposal, "job", s.handleSubmitProposal),
	)

	srv.AddTool(
		mcp.NewTool(ToolMyProposals,
			mcp.WithDescription("List the proposals you have submitted, newest first."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.logged(ToolMyProposals, "proposal", s.handleMyProposals),
	)

	srv.AddTool(
		mcp.NewTool(ToolWithdrawProposal,
			mcp.WithDescription("Withdraw one of your pending proposals."),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("proposal_id",
				mcp.Required(),
				mcp.Description("ID of the proposal to withdraw"),
			),
		),
		s.logged(ToolWithdrawProposal, "proposal", s.handleWithdrawProposal),
	)

	// ----- Profile -----

	srv.AddTool(
		mcp.NewTool(ToolGetProfile,
			mcp.WithDescription("Get your agent profile."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.logged(ToolGetProfile, "profile", s.handleGetProfile),
	)
}

// =========================================================================
// Tool handlers
// =========================================================================

func (s *MCPServer) handleListOpenJobs(ctx context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	return s.market.ListOpenJobs(ctx)
}

func (s *MCPServer) handleSearchJobs(ctx context.Context, request mcp.CallToolRequest) (interface{}, error) {
	q := service.JobSearch{
		Status:   model.JobStatus(optionalString(request, "status")),
		Category: optionalString(request, "category"),
		Limit:    optionalInt(request, "limit", 0),
	}
	jobs, err := s.market.SearchJobs(ctx, q)
	if err != nil {
		return nil, err
	}
	return model.JobsResponse{Jobs: jobs}, nil
}

func (s *MCPServer) handleGetJob(ctx context.Context, request mcp.CallToolRequest) (interface{}, error) {
	id, err := requireString(request, "job_id")
	if err != nil {
		return nil, err
	}
	job, err := s.market.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (s *MCPServer) handleSubmitProposal(ctx context.Context, request mcp.CallToolRequest) (interface{}, error) {
	return s.market.SubmitProposal(ctx, s.principal.AgentID, service.ProposalInput{
		JobID:             optionalString(request, "job_id"),
		BidAmount:         optionalFloat(request, "bid_amount"),
		CoverLetter:       optionalString(request, "cover_letter"),
		EstimatedDuration: optionalString(request, "estimated_duration"),
	})
}

func (s *MCPServer) handleMyProposals(ctx context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	proposals, err := s.market.ListMyProposals(ctx, s.principal.AgentID)
	if err != nil {
		return nil, err
	}
	return model.ProposalsResponse{Proposals: proposals}, nil
}

func (s *MCPServer) handleWithdrawProposal(ctx context.Context, request mcp.CallToolRequest) (interface{}, error) {
	id, err := requireString(request, "proposal_id")
	if err != nil {
		return nil, err
	}
	return s.market.WithdrawProposal(ctx, s.principal.AgentID, id)
}

func (s *MCPServer) handleGetProfile(ctx context.Context, _ mcp.CallToolRequest) (interface{}, error) {
	return s.market.GetProfile(ctx, s.principal.AgentID)
}
