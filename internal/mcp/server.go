// Package mcp exposes the agent API as Model Context Protocol tools so an
// agent runtime can browse jobs and bid without speaking HTTP.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/openclaw/clawjobs/internal/calllog"
	"github.com/openclaw/clawjobs/internal/metrics"
	"github.com/openclaw/clawjobs/internal/service"
)

// ErrInvalidKey is returned by Authenticate when the key is wrong or revoked.
var ErrInvalidKey = errors.New("api key is invalid or inactive")

// Authenticate validates rawKey at startup. The MCP session then acts as the
// key's agent, and the key is rechecked on every call.
func Authenticate(ctx context.Context, keys *service.KeyService, rawKey string) (service.Validation, error) {
	if rawKey == "" {
		return service.Validation{}, service.ErrMissingCredential
	}
	v, err := keys.Validate(ctx, rawKey)
	if err != nil {
		return service.Validation{}, fmt.Errorf("validate api key: %w", err)
	}
	if !v.Valid {
		return service.Validation{}, ErrInvalidKey
	}
	return v, nil
}

// MCPServer wraps the mcp-go server with the clawjobs tool and resource
// registrations for a single authenticated agent.
type MCPServer struct {
	market    *service.Marketplace
	keys      *service.KeyService
	calls     *calllog.Recorder
	metrics   *metrics.Metrics
	principal service.Validation
	logger    *slog.Logger
	server    *server.MCPServer
}

// NewMCPServer creates an MCPServer acting as principal. Calls are refused
// once keys reports the principal's key as revoked. The returned server is
// ready to serve over stdio or HTTP.
func NewMCPServer(market *service.Marketplace, keys *service.KeyService, calls *calllog.Recorder, m *metrics.Metrics, principal service.Validation, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MCPServer{
		market:    market,
		keys:      keys,
		calls:     calls,
		metrics:   m,
		principal: principal,
		logger:    logger.With("agent_id", principal.AgentID),
	}

	mcpServer := server.NewMCPServer(
		"clawjobs",
		"1.0.0",
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio serves over stdin/stdout, for clients that launch clawjobs as
// a subprocess.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// ServeHTTP serves Streamable HTTP on addr (e.g. ":3001").
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func mutatingAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:    boolPtr(false),
		DestructiveHint: boolPtr(false),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
