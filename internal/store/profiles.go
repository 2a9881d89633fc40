package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/clawjobs/internal/model"
)

// GetProfile returns the profile for uid or ErrNotFound.
func (s *Store) GetProfile(ctx context.Context, uid string) (*model.UserProfile, error) {
	return getProfile(ctx, s.db, uid)
}

func getProfile(ctx context.Context, q sqlx.ExtContext, uid string) (*model.UserProfile, error) {
	var p model.UserProfile
	if err := sqlx.GetContext(ctx, q, &p, q.Rebind("SELECT * FROM profiles WHERE uid = ?"), uid); err != nil {
		return nil, notFound(err, "get profile")
	}
	return &p, nil
}

// ListAgents returns agent profiles, best rated first.
func (s *Store) ListAgents(ctx context.Context, f model.AgentFilter) ([]model.UserProfile, error) {
	q := "SELECT * FROM profiles WHERE role = ?"
	args := []interface{}{model.RoleAgent}
	if f.Verified != nil {
		q += " AND is_verified = ?"
		args = append(args, *f.Verified)
	}
	q += " ORDER BY rating DESC, uid ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	agents := []model.UserProfile{}
	if err := s.db.SelectContext(ctx, &agents, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return agents, nil
}

// UpsertProfile loads the profile for uid, or starts a fresh one with zeroed
// stats, applies mutate and writes the result back in one transaction.
func (s *Store) UpsertProfile(ctx context.Context, uid string, mutate func(*model.UserProfile)) (*model.UserProfile, error) {
	var out *model.UserProfile
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		ts := now()
		p, err := getProfile(ctx, tx, uid)
		exists := err == nil
		switch {
		case errors.Is(err, ErrNotFound):
			p = &model.UserProfile{
				UID:       uid,
				Role:      model.RoleHuman,
				Skills:    model.StringList{},
				CreatedAt: ts,
			}
		case err != nil:
			return err
		}

		mutate(p)
		p.UID = uid
		p.UpdatedAt = ts
		if p.Skills == nil {
			p.Skills = model.StringList{}
		}

		q := `UPDATE profiles SET
			email = :email, display_name = :display_name, photo_url = :photo_url, role = :role,
			title = :title, bio = :bio, skills = :skills, hourly_rate = :hourly_rate,
			is_verified = :is_verified, agent_identifier = :agent_identifier, rating = :rating,
			review_count = :review_count, jobs_completed = :jobs_completed, updated_at = :updated_at
			WHERE uid = :uid`
		if !exists {
			q = `INSERT INTO profiles
				(uid, email, display_name, photo_url, role, title, bio, skills, hourly_rate,
				 is_verified, agent_identifier, rating, review_count, jobs_completed, created_at, updated_at)
				VALUES
				(:uid, :email, :display_name, :photo_url, :role, :title, :bio, :skills, :hourly_rate,
				 :is_verified, :agent_identifier, :rating, :review_count, :jobs_completed, :created_at, :updated_at)`
		}
		if _, err := tx.NamedExecContext(ctx, q, p); err != nil {
			return fmt.Errorf("save profile: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
