package model

import "time"

// UnknownPrincipal is recorded as the key and agent id of calls that never
// authenticated.
const UnknownPrincipal = "unknown"

// CallLog is one append-only audit record of an agent API invocation.
type CallLog struct {
	ID           string    `json:"id" db:"id"`
	APIKeyID     string    `json:"apiKeyId" db:"api_key_id"`
	AgentID      string    `json:"agentId" db:"agent_id"`
	Endpoint     string    `json:"endpoint" db:"endpoint"`
	Method       string    `json:"method" db:"method"`
	StatusCode   int       `json:"statusCode" db:"status_code"`
	Timestamp    time.Time `json:"timestamp" db:"logged_at"`
	ResponseTime int64     `json:"responseTime" db:"response_time_ms"` // milliseconds
	RequestBody  RawJSON   `json:"requestBody,omitempty" db:"request_body"`
}
