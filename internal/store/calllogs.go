package store

import (
	"context"
	"fmt"

	"github.com/openclaw/clawjobs/internal/model"
)

// AppendCallLog inserts an audit record. ID and Timestamp are assigned by the
// store; a negative ResponseTime is clamped to zero.
func (s *Store) AppendCallLog(ctx context.Context, entry *model.CallLog) error {
	entry.ID = newID()
	entry.Timestamp = now()
	if entry.ResponseTime < 0 {
		entry.ResponseTime = 0
	}

	const q = `INSERT INTO call_logs
		(id, api_key_id, agent_id, endpoint, method, status_code, logged_at, response_time_ms, request_body)
		VALUES
		(:id, :api_key_id, :agent_id, :endpoint, :method, :status_code, :logged_at, :response_time_ms, :request_body)`

	return s.withRetry(ctx, func(ctx context.Context) error {
		if _, err := s.db.NamedExecContext(ctx, q, entry); err != nil {
			return fmt.Errorf("insert call log: %w", err)
		}
		return nil
	})
}

// ListCallLogsForAgent returns up to limit entries for one agent, newest
// first. limit <= 0 returns every entry.
func (s *Store) ListCallLogsForAgent(ctx context.Context, agentID string, limit int) ([]model.CallLog, error) {
	q := "SELECT * FROM call_logs WHERE agent_id = ? ORDER BY logged_at DESC, id DESC"
	args := []interface{}{agentID}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	logs := []model.CallLog{}
	if err := s.db.SelectContext(ctx, &logs, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list call logs: %w", err)
	}
	return logs, nil
}
