package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/clawjobs/internal/model"
)

const insertProposal = `INSERT INTO proposals
	(id, job_id, client_id, freelancer_id, freelancer_name, freelancer_avatar,
	 cover_letter, bid_amount, estimated_duration, status, created_at, updated_at)
	VALUES
	(:id, :job_id, :client_id, :freelancer_id, :freelancer_name, :freelancer_avatar,
	 :cover_letter, :bid_amount, :estimated_duration, :status, :created_at, :updated_at)`

// SubmitProposal creates a pending proposal on p.JobID and increments the
// job's proposal count in the same transaction. The job's client ID is copied
// onto the proposal. A missing job returns ErrNotFound; a job that no longer
// accepts bids returns ErrJobClosed.
func (s *Store) SubmitProposal(ctx context.Context, p *model.Proposal) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		job, err := getJob(ctx, tx, p.JobID)
		if err != nil {
			return err
		}
		if !job.Status.AcceptsProposals() {
			return fmt.Errorf("%w: job is %s", ErrJobClosed, job.Status)
		}

		ts := now()
		p.ID = newID()
		p.ClientID = job.ClientID
		p.Status = model.ProposalPending
		p.CreatedAt = ts
		p.UpdatedAt = ts

		if _, err := tx.NamedExecContext(ctx, insertProposal, p); err != nil {
			return fmt.Errorf("insert proposal: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			tx.Rebind("UPDATE jobs SET proposal_count = proposal_count + 1, updated_at = ? WHERE id = ?"),
			ts, p.JobID); err != nil {
			return fmt.Errorf("increment proposal count: %w", err)
		}
		return nil
	})
}

// GetProposal returns the proposal with the given ID or ErrNotFound.
func (s *Store) GetProposal(ctx context.Context, id string) (*model.Proposal, error) {
	return getProposal(ctx, s.db, id)
}

func getProposal(ctx context.Context, q sqlx.ExtContext, id string) (*model.Proposal, error) {
	var p model.Proposal
	if err := sqlx.GetContext(ctx, q, &p, q.Rebind("SELECT * FROM proposals WHERE id = ?"), id); err != nil {
		return nil, notFound(err, "get proposal")
	}
	return &p, nil
}

// ListProposalsForJob returns the proposals on jobID whose denormalized
// client ID equals ownerID, newest first. Callers pass the authenticated
// caller's ID as ownerID.
func (s *Store) ListProposalsForJob(ctx context.Context, jobID, ownerID string) ([]model.Proposal, error) {
	proposals := []model.Proposal{}
	q := s.db.Rebind(`SELECT * FROM proposals WHERE job_id = ? AND client_id = ?
		ORDER BY created_at DESC, id DESC`)
	if err := s.db.SelectContext(ctx, &proposals, q, jobID, ownerID); err != nil {
		return nil, fmt.Errorf("list proposals for job: %w", err)
	}
	return proposals, nil
}

// ListProposalsForFreelancer returns the freelancer's proposals, newest
// first. The ordering is total so repeated reads are identical.
func (s *Store) ListProposalsForFreelancer(ctx context.Context, freelancerID string) ([]model.Proposal, error) {
	proposals := []model.Proposal{}
	q := s.db.Rebind(`SELECT * FROM proposals WHERE freelancer_id = ?
		ORDER BY created_at DESC, id DESC`)
	if err := s.db.SelectContext(ctx, &proposals, q, freelancerID); err != nil {
		return nil, fmt.Errorf("list proposals for freelancer: %w", err)
	}
	return proposals, nil
}

// WithdrawProposal moves a pending proposal owned by freelancerID to
// withdrawn and decrements the job's proposal count. Proposals owned by
// someone else are reported as ErrNotFound.
func (s *Store) WithdrawProposal(ctx context.Context, id, freelancerID string) (*model.Proposal, error) {
	var out *model.Proposal
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		p, err := getProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.FreelancerID != freelancerID {
			return ErrNotFound
		}
		if err := setProposalStatus(ctx, tx, p, model.ProposalWithdrawn); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			tx.Rebind(`UPDATE jobs SET proposal_count = proposal_count - 1, updated_at = ?
				WHERE id = ? AND proposal_count > 0`),
			p.UpdatedAt, p.JobID); err != nil {
			return fmt.Errorf("decrement proposal count: %w", err)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, casConflict(err)
	}
	return out, nil
}

// AcceptProposal accepts a pending proposal on a job owned by clientID. In
// the same transaction the freelancer is assigned to the job and the job
// moves to assigned.
func (s *Store) AcceptProposal(ctx context.Context, id, clientID string) (*model.Proposal, error) {
	var out *model.Proposal
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		p, err := getProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.ClientID != clientID {
			return ErrNotFound
		}
		job, err := getJob(ctx, tx, p.JobID)
		if err != nil {
			return err
		}
		if !job.Status.CanTransitionTo(model.JobAssigned) {
			return fmt.Errorf("%w: job is %s", ErrInvalidTransition, job.Status)
		}
		if err := setProposalStatus(ctx, tx, p, model.ProposalAccepted); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			tx.Rebind(`UPDATE jobs SET status = ?, freelancer_id = ?, updated_at = ?
				WHERE id = ? AND status = ?`),
			model.JobAssigned, p.FreelancerID, p.UpdatedAt, job.ID, job.Status)
		if err != nil {
			return fmt.Errorf("assign job: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("assign job rows affected: %w", err)
		} else if n == 0 {
			return errCASMiss
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, casConflict(err)
	}
	return out, nil
}

// RejectProposal rejects a pending proposal on a job owned by clientID.
func (s *Store) RejectProposal(ctx context.Context, id, clientID string) (*model.Proposal, error) {
	var out *model.Proposal
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		p, err := getProposal(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.ClientID != clientID {
			return ErrNotFound
		}
		if err := setProposalStatus(ctx, tx, p, model.ProposalRejected); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, casConflict(err)
	}
	return out, nil
}

// setProposalStatus moves a pending proposal to status, guarding against a
// concurrent decision on the same proposal.
func setProposalStatus(ctx context.Context, tx *sqlx.Tx, p *model.Proposal, status model.ProposalStatus) error {
	if p.Status != model.ProposalPending {
		return fmt.Errorf("%w: proposal is %s", ErrInvalidTransition, p.Status)
	}
	ts := now()
	result, err := tx.ExecContext(ctx,
		tx.Rebind("UPDATE proposals SET status = ?, updated_at = ? WHERE id = ? AND status = ?"),
		status, ts, p.ID, model.ProposalPending)
	if err != nil {
		return fmt.Errorf("update proposal status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update proposal status rows affected: %w", err)
	}
	if n == 0 {
		return errCASMiss
	}
	p.Status = status
	p.UpdatedAt = ts
	return nil
}
