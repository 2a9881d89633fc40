package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openclaw/clawjobs/internal/model"
	"github.com/openclaw/clawjobs/internal/store"
)

// keyEntropyBytes is the amount of randomness behind every key (256 bits).
const keyEntropyBytes = 32

// keyPrefixLen is how much of a plaintext key is kept for display.
const keyPrefixLen = 16

// touchTimeout bounds the best-effort last-used update.
const touchTimeout = 2 * time.Second

// KeyStore is the persistence the key service needs.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKey(ctx context.Context, id string) (*model.APIKey, error)
	GetActiveAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error)
	ListAPIKeysForAgent(ctx context.Context, agentID string) ([]model.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}

// GeneratedKey is returned once at issuance. PlaintextKey is never stored.
type GeneratedKey struct {
	PlaintextKey string        `json:"key"`
	Record       *model.APIKey `json:"record"`
}

// Validation is the outcome of checking a presented key. AgentID and KeyID
// are only set when Valid is true.
type Validation struct {
	Valid   bool   `json:"valid"`
	AgentID string `json:"agentId,omitempty"`
	KeyID   string `json:"keyId,omitempty"`
}

// KeyService issues, validates and revokes agent API keys.
type KeyService struct {
	store  KeyStore
	logger *slog.Logger
	now    func() time.Time
}

// NewKeyService creates a KeyService.
func NewKeyService(s KeyStore, logger *slog.Logger) *KeyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyService{store: s, logger: logger, now: time.Now}
}

// HashKey returns the SHA-256 hex digest stored for a plaintext key.
func HashKey(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}

// DisplayPrefix returns the non-secret part of a key shown in listings.
func DisplayPrefix(rawKey string) string {
	if len(rawKey) <= keyPrefixLen {
		return rawKey
	}
	return rawKey[:keyPrefixLen]
}

func newPlaintextKey() (string, error) {
	b := make([]byte, keyEntropyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random key: %w", err)
	}
	return model.APIKeyPrefix + hex.EncodeToString(b), nil
}

// Generate issues a new key for agentID. The plaintext is returned exactly
// once; only its hash is persisted.
func (s *KeyService) Generate(ctx context.Context, agentID, label string) (*GeneratedKey, error) {
	var c fieldCheck
	c.require(strings.TrimSpace(agentID) != "", "agentId")
	c.require(strings.TrimSpace(label) != "", "name")
	if err := c.err(); err != nil {
		return nil, err
	}

	raw, err := newPlaintextKey()
	if err != nil {
		return nil, err
	}

	key := &model.APIKey{
		AgentID:   agentID,
		KeyHash:   HashKey(raw),
		KeyPrefix: DisplayPrefix(raw),
		Name:      label,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	s.logger.Info("api key issued", "key_id", key.ID, "agent_id", agentID, "prefix", key.KeyPrefix)
	return &GeneratedKey{PlaintextKey: raw, Record: key}, nil
}

// Validate checks a presented key. Wrong and revoked keys both yield
// Valid=false with a nil error; an error means the store is unavailable.
func (s *KeyService) Validate(ctx context.Context, rawKey string) (Validation, error) {
	hash := HashKey(rawKey)

	key, err := s.store.GetActiveAPIKeyByHash(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Debug("api key rejected", "prefix", DisplayPrefix(rawKey))
		return Validation{}, nil
	}
	if err != nil {
		return Validation{}, fmt.Errorf("look up api key: %w", err)
	}
	if !key.IsActive {
		return Validation{}, nil
	}

	s.touch(ctx, key.ID)

	return Validation{Valid: true, AgentID: key.AgentID, KeyID: key.ID}, nil
}

// Recheck confirms that a previously validated key is still active, for
// long-lived sessions that authenticate once. A revoked or deleted key
// yields Valid=false with a nil error.
func (s *KeyService) Recheck(ctx context.Context, keyID string) (Validation, error) {
	key, err := s.store.GetAPIKey(ctx, keyID)
	if errors.Is(err, store.ErrNotFound) {
		return Validation{}, nil
	}
	if err != nil {
		return Validation{}, fmt.Errorf("look up api key: %w", err)
	}
	if !key.IsActive {
		return Validation{}, nil
	}

	s.touch(ctx, key.ID)

	return Validation{Valid: true, AgentID: key.AgentID, KeyID: key.ID}, nil
}

// touch records the last-used time. Failures only degrade metadata.
func (s *KeyService) touch(ctx context.Context, keyID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), touchTimeout)
	defer cancel()
	if err := s.store.TouchAPIKey(ctx, keyID, s.now()); err != nil {
		s.logger.Warn("failed to update api key last used", "key_id", keyID, "error", err)
	}
}

// Revoke deactivates a key. Revoking a revoked key is a no-op; an unknown
// id returns store.ErrNotFound.
func (s *KeyService) Revoke(ctx context.Context, keyID string) error {
	if err := s.store.RevokeAPIKey(ctx, keyID); err != nil {
		return err
	}
	s.logger.Info("api key revoked", "key_id", keyID)
	return nil
}

// RevokeForAgent revokes keyID only when it belongs to agentID. Keys of
// other agents are reported as store.ErrNotFound.
func (s *KeyService) RevokeForAgent(ctx context.Context, agentID, keyID string) error {
	key, err := s.store.GetAPIKey(ctx, keyID)
	if err != nil {
		return err
	}
	if key.AgentID != agentID {
		return store.ErrNotFound
	}
	return s.Revoke(ctx, keyID)
}

// ListForAgent returns the agent's keys without hashes.
func (s *KeyService) ListForAgent(ctx context.Context, agentID string) ([]model.APIKey, error) {
	return s.store.ListAPIKeysForAgent(ctx, agentID)
}

// CredentialFromRequest extracts the presented key, preferring the
// X-API-Key header over an Authorization bearer token.
func CredentialFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// AuthenticateRequest validates the credential carried by r. It returns
// ErrMissingCredential or ErrInvalidCredential for rejected callers; any
// other error is a store failure.
func (s *KeyService) AuthenticateRequest(r *http.Request) (Validation, error) {
	raw := CredentialFromRequest(r)
	if raw == "" {
		return Validation{}, ErrMissingCredential
	}
	v, err := s.Validate(r.Context(), raw)
	if err != nil {
		return Validation{}, err
	}
	if !v.Valid {
		return Validation{}, ErrInvalidCredential
	}
	return v, nil
}
