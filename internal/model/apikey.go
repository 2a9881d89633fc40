package model

import "time"

// APIKeyPrefix marks a plaintext key as a live credential so secret scanners
// can flag leaked keys.
const APIKeyPrefix = "oc_live_"

// APIKey represents an API key issued to an agent. The raw key is never
// stored; only a SHA-256 hash and a short display prefix are persisted.
type APIKey struct {
	ID         string     `json:"id" db:"id"`
	AgentID    string     `json:"agentId" db:"agent_id"`
	KeyHash    string     `json:"-" db:"key_hash"`                // SHA-256 hex, never expose
	KeyPrefix  string     `json:"keyPrefix" db:"key_prefix"`      // oc_live_ + 8 hex chars
	Name       string     `json:"name" db:"name"`
	IsActive   bool       `json:"isActive" db:"is_active"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty" db:"last_used_at"`
}
