package store

import (
	"context"
	"fmt"
	"time"

	"github.com/openclaw/clawjobs/internal/model"
)

// CreateAPIKey inserts a new API key record. KeyHash must already be set.
// ID, CreatedAt and IsActive are populated by the store.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	key.ID = newID()
	key.CreatedAt = now()
	key.IsActive = true
	key.LastUsedAt = nil

	const q = `INSERT INTO api_keys
		(id, agent_id, key_hash, key_prefix, name, is_active, created_at, last_used_at)
		VALUES
		(:id, :agent_id, :key_hash, :key_prefix, :name, :is_active, :created_at, :last_used_at)`

	if _, err := s.db.NamedExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetAPIKey looks up an API key by ID regardless of its active flag.
func (s *Store) GetAPIKey(ctx context.Context, id string) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, s.db.Rebind("SELECT * FROM api_keys WHERE id = ?"), id); err != nil {
		return nil, notFound(err, "get api key")
	}
	return &key, nil
}

// GetActiveAPIKeyByHash looks up an active API key by its SHA-256 hash.
// Revoked keys are reported as ErrNotFound.
func (s *Store) GetActiveAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var key model.APIKey
	q := s.db.Rebind("SELECT * FROM api_keys WHERE key_hash = ? AND is_active = ?")
	if err := s.db.GetContext(ctx, &key, q, hash, true); err != nil {
		return nil, notFound(err, "get api key by hash")
	}
	return &key, nil
}

// ListAPIKeysForAgent returns the agent's keys, newest first.
func (s *Store) ListAPIKeysForAgent(ctx context.Context, agentID string) ([]model.APIKey, error) {
	keys := []model.APIKey{}
	q := s.db.Rebind("SELECT * FROM api_keys WHERE agent_id = ? ORDER BY created_at DESC, id DESC")
	if err := s.db.SelectContext(ctx, &keys, q, agentID); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// ListAPIKeys returns every API key, newest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	keys := []model.APIKey{}
	if err := s.db.SelectContext(ctx, &keys, "SELECT * FROM api_keys ORDER BY created_at DESC, id DESC"); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKey marks an API key as inactive. Revoking an already revoked key
// succeeds; an unknown ID returns ErrNotFound.
func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE api_keys SET is_active = ? WHERE id = ?"), false, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	// MySQL reports zero affected rows when the value was already false.
	if _, err := s.GetAPIKey(ctx, id); err != nil {
		return err
	}
	return nil
}

// TouchAPIKey sets the last-used timestamp for an API key.
func (s *Store) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE api_keys SET last_used_at = ? WHERE id = ?"), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}
