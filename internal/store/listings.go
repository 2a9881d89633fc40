package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/clawjobs/internal/model"
)

// CreateListing inserts a service listing. ID and timestamps are assigned by
// the store; nil list fields are stored as empty lists.
func (s *Store) CreateListing(ctx context.Context, l *model.ServiceListing) error {
	ts := now()
	l.ID = newID()
	l.CreatedAt = ts
	l.UpdatedAt = ts
	if l.Tags == nil {
		l.Tags = model.StringList{}
	}
	if l.Gallery == nil {
		l.Gallery = model.StringList{}
	}

	const q = `INSERT INTO service_listings
		(id, agent_id, agent_identifier, agent_name, agent_avatar, title, description, category,
		 tags, tiers, use_tiers, main_image, gallery, video_url, rating, review_count, order_count,
		 status, created_at, updated_at)
		VALUES
		(:id, :agent_id, :agent_identifier, :agent_name, :agent_avatar, :title, :description, :category,
		 :tags, :tiers, :use_tiers, :main_image, :gallery, :video_url, :rating, :review_count, :order_count,
		 :status, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, l); err != nil {
		return fmt.Errorf("insert service listing: %w", err)
	}
	return nil
}

// GetListing returns the listing with the given ID or ErrNotFound.
func (s *Store) GetListing(ctx context.Context, id string) (*model.ServiceListing, error) {
	return getListing(ctx, s.db, id)
}

func getListing(ctx context.Context, q sqlx.ExtContext, id string) (*model.ServiceListing, error) {
	var l model.ServiceListing
	if err := sqlx.GetContext(ctx, q, &l, q.Rebind("SELECT * FROM service_listings WHERE id = ?"), id); err != nil {
		return nil, notFound(err, "get service listing")
	}
	return &l, nil
}

// ListListingsForAgent returns the agent's listings, newest first.
func (s *Store) ListListingsForAgent(ctx context.Context, agentID string) ([]model.ServiceListing, error) {
	listings := []model.ServiceListing{}
	q := s.db.Rebind("SELECT * FROM service_listings WHERE agent_id = ? ORDER BY created_at DESC, id DESC")
	if err := s.db.SelectContext(ctx, &listings, q, agentID); err != nil {
		return nil, fmt.Errorf("list service listings: %w", err)
	}
	return listings, nil
}

// ListListings returns listings matching f, newest first.
func (s *Store) ListListings(ctx context.Context, f model.ListingFilter) ([]model.ServiceListing, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM service_listings")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	if f.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}

	listings := []model.ServiceListing{}
	if err := s.db.SelectContext(ctx, &listings, s.db.Rebind(b.String()), args...); err != nil {
		return nil, fmt.Errorf("list service listings: %w", err)
	}
	return listings, nil
}

// UpdateListing loads the listing, applies mutate and writes the editable
// fields back in one transaction. An error from mutate aborts the update
// and is returned unchanged.
func (s *Store) UpdateListing(ctx context.Context, id string, mutate func(*model.ServiceListing) error) (*model.ServiceListing, error) {
	var out *model.ServiceListing
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		l, err := getListing(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := mutate(l); err != nil {
			return err
		}
		l.ID = id
		l.UpdatedAt = now()
		if l.Tags == nil {
			l.Tags = model.StringList{}
		}
		if l.Gallery == nil {
			l.Gallery = model.StringList{}
		}

		const q = `UPDATE service_listings SET
			title = :title, description = :description, category = :category, tags = :tags,
			tiers = :tiers, use_tiers = :use_tiers, main_image = :main_image, gallery = :gallery,
			video_url = :video_url, status = :status, updated_at = :updated_at
			WHERE id = :id`
		if _, err := tx.NamedExecContext(ctx, q, l); err != nil {
			return fmt.Errorf("update service listing: %w", err)
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteListing removes a listing owned by agentID. Listings of other agents
// are reported as ErrNotFound.
func (s *Store) DeleteListing(ctx context.Context, id, agentID string) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind("DELETE FROM service_listings WHERE id = ? AND agent_id = ?"), id, agentID)
	if err != nil {
		return fmt.Errorf("delete service listing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete service listing: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
