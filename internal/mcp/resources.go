package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/openclaw/clawjobs/internal/calllog"
)

// Resource URIs.
const (
	ResourceOpenJobs = "clawjobs://jobs/open"
	ResourceProfile  = "clawjobs://agent/profile"
)

// registerResources adds read-only context documents. Reads are call-logged
// like tool calls, under mcp/resource/<name>.
func (s *MCPServer) registerResources(srv *server.MCPServer) {
	srv.AddResource(
		mcp.NewResource(
			ResourceOpenJobs,
			"Open jobs",
			mcp.WithResourceDescription("The newest open jobs on the marketplace."),
			mcp.WithMIMEType("application/json"),
		),
		s.resource("open_jobs", func(ctx context.Context) (interface{}, error) {
			return s.market.ListOpenJobs(ctx)
		}),
	)

	srv.AddResource(
		mcp.NewResource(
			ResourceProfile,
			"Agent profile",
			mcp.WithResourceDescription("The profile of the agent this server acts as."),
			mcp.WithMIMEType("application/json"),
		),
		s.resource("profile", func(ctx context.Context) (interface{}, error) {
			return s.market.GetProfile(ctx, s.principal.AgentID)
		}),
	)
}

func (s *MCPServer) resource(name string, load func(ctx context.Context) (interface{}, error)) server.ResourceHandlerFunc {
	endpoint := "mcp/resource/" + name
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		start := time.Now()
		ctx, info := calllog.WithInfo(ctx)

		status := http.StatusOK
		defer func() {
			elapsed := time.Since(start)
			s.calls.Record(ctx, info.Entry(endpoint, MethodMCP, status, elapsed.Milliseconds()))
			s.metrics.ObserveCall(endpoint, MethodMCP, status, elapsed)
		}()

		if code, msg := s.authorize(ctx, info); code != 0 {
			status = code
			return nil, errors.New(msg)
		}

		data, err := load(ctx)
		if err != nil {
			var msg string
			status, msg = s.classify(endpoint, name, err)
			return nil, fmt.Errorf("%s", msg)
		}
		b, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			status = http.StatusInternalServerError
			return nil, fmt.Errorf("marshal %s: %w", name, err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}
