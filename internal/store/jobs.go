package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/clawjobs/internal/model"
)

// CreateJob inserts a new job. The store assigns ID, timestamps, status open
// and a zero proposal count.
func (s *Store) CreateJob(ctx context.Context, job *model.Job) error {
	ts := now()
	job.ID = newID()
	job.Status = model.JobOpen
	job.ProposalCount = 0
	job.FreelancerID = nil
	job.CreatedAt = ts
	job.UpdatedAt = ts
	if job.Tags == nil {
		job.Tags = model.StringList{}
	}

	const q = `INSERT INTO jobs
		(id, title, description, category, payment_type, budget_min, budget_max, currency,
		 status, client_id, freelancer_id, tags, requirements, permissions, attachments,
		 created_at, updated_at, deadline, proposal_count)
		VALUES
		(:id, :title, :description, :category, :payment_type, :budget_min, :budget_max, :currency,
		 :status, :client_id, :freelancer_id, :tags, :requirements, :permissions, :attachments,
		 :created_at, :updated_at, :deadline, :proposal_count)`

	if _, err := s.db.NamedExecContext(ctx, q, job); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob returns the job with the given ID or ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	return getJob(ctx, s.db, id)
}

func getJob(ctx context.Context, q sqlx.ExtContext, id string) (*model.Job, error) {
	var job model.Job
	if err := sqlx.GetContext(ctx, q, &job, q.Rebind("SELECT * FROM jobs WHERE id = ?"), id); err != nil {
		return nil, notFound(err, "get job")
	}
	return &job, nil
}

// ListJobs returns jobs matching every non-empty filter field, newest first.
func (s *Store) ListJobs(ctx context.Context, f model.JobFilter) ([]model.Job, error) {
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
	if f.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, f.ClientID)
	}
	if f.FreelancerID != "" {
		where = append(where, "freelancer_id = ?")
		args = append(args, f.FreelancerID)
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM jobs")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	if f.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}

	jobs := []model.Job{}
	if err := s.db.SelectContext(ctx, &jobs, s.db.Rebind(b.String()), args...); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJobStatus moves a job to status and returns the updated job. Setting
// the current status again is a no-op. Transitions the lifecycle does not
// allow return ErrInvalidTransition. The update is a compare-and-swap on the
// previous status, retried while other writers race it.
func (s *Store) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus) (*model.Job, error) {
	var updated *model.Job
	err := s.withRetry(ctx, func(ctx context.Context) error {
		job, err := getJob(ctx, s.db, id)
		if err != nil {
			return err
		}
		if job.Status == status {
			updated = job
			return nil
		}
		if !job.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, status)
		}

		ts := now()
		result, err := s.db.ExecContext(ctx,
			s.db.Rebind("UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?"),
			status, ts, id, job.Status)
		if err != nil {
			return fmt.Errorf("update job status: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("update job status rows affected: %w", err)
		}
		if n == 0 {
			return errCASMiss
		}
		job.Status = status
		job.UpdatedAt = ts
		updated = job
		return nil
	})
	if err != nil {
		return nil, casConflict(err)
	}
	return updated, nil
}
