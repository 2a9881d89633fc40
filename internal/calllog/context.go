package calllog

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/openclaw/clawjobs/internal/model"
)

type contextKey struct{}

// Info collects what later middleware and handlers learn about a call while
// it is served: who made it and, for some endpoints, the request payload.
type Info struct {
	mu      sync.Mutex
	keyID   string
	agentID string
	body    model.RawJSON
}

// WithInfo attaches a fresh Info to ctx.
func WithInfo(ctx context.Context) (context.Context, *Info) {
	info := &Info{}
	return context.WithValue(ctx, contextKey{}, info), info
}

// FromContext returns the Info attached to ctx, or nil.
func FromContext(ctx context.Context) *Info {
	info, _ := ctx.Value(contextKey{}).(*Info)
	return info
}

// SetPrincipal records the authenticated key and agent.
func (i *Info) SetPrincipal(keyID, agentID string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.keyID, i.agentID = keyID, agentID
}

// SetRequestBody snapshots a JSON payload. Non-JSON bodies are ignored.
func (i *Info) SetRequestBody(body []byte) {
	if i == nil || !json.Valid(body) {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.body = append(model.RawJSON(nil), body...)
}

// Principal returns the recorded key and agent ids, empty when the call
// never authenticated.
func (i *Info) Principal() (keyID, agentID string) {
	if i == nil {
		return "", ""
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.keyID, i.agentID
}

// Entry builds the log entry for a finished call.
func (i *Info) Entry(endpoint, method string, status int, responseTimeMS int64) model.CallLog {
	keyID, agentID := i.Principal()
	e := model.CallLog{
		APIKeyID:     keyID,
		AgentID:      agentID,
		Endpoint:     endpoint,
		Method:       method,
		StatusCode:   status,
		ResponseTime: responseTimeMS,
	}
	if i != nil {
		i.mu.Lock()
		e.RequestBody = i.body
		i.mu.Unlock()
	}
	return e
}
