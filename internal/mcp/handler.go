package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/openclaw/clawjobs/internal/calllog"
	"github.com/openclaw/clawjobs/internal/service"
	"github.com/openclaw/clawjobs/internal/store"
)

// MethodMCP is the call log method recorded for tool calls.
const MethodMCP = "MCP"

// toolFunc is a tool body. It returns the value to serialize on success.
type toolFunc func(ctx context.Context, request mcp.CallToolRequest) (interface{}, error)

// argumentError is a missing or malformed tool argument.
type argumentError struct {
	name string
}

func (e *argumentError) Error() string {
	return fmt.Sprintf("missing or invalid parameter %q", e.name)
}

// invalidCredentialMessage matches the REST API's 401 body.
const invalidCredentialMessage = "invalid or inactive credential"

// authorize rechecks the session's key and attaches the principal to info.
// It returns 0 when the call may proceed, otherwise the status to record and
// the message to return. Revoked keys are logged as unknown.
func (s *MCPServer) authorize(ctx context.Context, info *calllog.Info) (int, string) {
	v, err := s.keys.Recheck(ctx, s.principal.KeyID)
	if err != nil {
		s.logger.Error("api key recheck failed", "key_id", s.principal.KeyID, "error", err)
		sentry.CaptureException(err)
		info.SetPrincipal(s.principal.KeyID, s.principal.AgentID)
		return http.StatusInternalServerError, internalErrorMessage
	}
	if !v.Valid {
		s.metrics.AuthFailure("invalid")
		s.logger.Warn("mcp call with revoked api key", "key_id", s.principal.KeyID)
		return http.StatusUnauthorized, invalidCredentialMessage
	}
	info.SetPrincipal(v.KeyID, v.AgentID)
	return 0, ""
}

// logged adapts fn into an mcp-go handler. Every call is recorded in the
// agent's call log under mcp/<name>, with the HTTP status the same failure
// would have produced on the REST API.
func (s *MCPServer) logged(name, resource string, fn toolFunc) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	endpoint := "mcp/" + name
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		ctx, info := calllog.WithInfo(ctx)
		if args := request.GetArguments(); len(args) > 0 {
			if b, err := json.Marshal(args); err == nil {
				info.SetRequestBody(b)
			}
		}

		var (
			status int
			result *mcp.CallToolResult
		)
		if code, msg := s.authorize(ctx, info); code != 0 {
			status, result = code, mcp.NewToolResultError(msg)
		} else {
			status, result = s.invoke(ctx, name, resource, fn, request)
		}

		elapsed := time.Since(start)
		s.calls.Record(ctx, info.Entry(endpoint, MethodMCP, status, elapsed.Milliseconds()))
		s.metrics.ObserveCall(endpoint, MethodMCP, status, elapsed)
		return result, nil
	}
}

// invoke runs fn and converts its outcome to a status and tool result.
func (s *MCPServer) invoke(ctx context.Context, name, resource string, fn toolFunc, request mcp.CallToolRequest) (int, *mcp.CallToolResult) {
	data, err := fn(ctx, request)
	if err != nil {
		status, msg := s.classify(name, resource, err)
		return status, mcp.NewToolResultError(msg)
	}
	result, err := successJSON(data)
	if err != nil {
		return http.StatusInternalServerError, mcp.NewToolResultError(internalErrorMessage)
	}
	return http.StatusOK, result
}

const internalErrorMessage = "internal server error"

// classify maps a tool failure to a status and the message shown to the
// model. Internal causes are logged and reported, never returned.
func (s *MCPServer) classify(tool, resource string, err error) (int, string) {
	var verr *service.ValidationError
	var aerr *argumentError
	switch {
	case errors.As(err, &aerr):
		return http.StatusBadRequest, aerr.Error()
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, service.ErrProfileNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, resource + " not found"
	case errors.Is(err, store.ErrJobClosed),
		errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict, err.Error()
	default:
		s.logger.Error("tool call failed", "tool", tool, "error", err)
		sentry.CaptureException(err)
		return http.StatusInternalServerError, internalErrorMessage
	}
}

// --------------------------------------------------------------------------
// Parameter extraction helpers
// --------------------------------------------------------------------------

// requireString extracts a required, non-empty string argument.
func requireString(request mcp.CallToolRequest, key string) (string, error) {
	val, err := request.RequireString(key)
	if err != nil || val == "" {
		return "", &argumentError{name: key}
	}
	return val, nil
}

// optionalString extracts an optional string argument from the tool request.
func optionalString(request mcp.CallToolRequest, key string) string {
	return request.GetString(key, "")
}

// optionalInt extracts an optional integer argument from the tool request.
func optionalInt(request mcp.CallToolRequest, key string, defaultVal int) int {
	return request.GetInt(key, defaultVal)
}

// optionalFloat returns a pointer to a numeric argument, nil when absent so
// the service can report it as missing.
func optionalFloat(request mcp.CallToolRequest, key string) *float64 {
	if _, ok := request.GetArguments()[key]; !ok {
		return nil
	}
	v, err := request.RequireFloat(key)
	if err != nil {
		return nil
	}
	return &v
}

// --------------------------------------------------------------------------
// Response builders
// --------------------------------------------------------------------------

// successJSON marshals data to JSON and returns it as a tool result.
func successJSON(data interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
