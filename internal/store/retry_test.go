package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/clawjobs/internal/model"
)

func newMockStore(t *testing.T, driver string) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewWithDB(db, driver)
	s.retryBase = time.Millisecond
	return s, mock
}

func TestIsTransient(t *testing.T) {
	assert.False(t, isTransient(nil))
	assert.False(t, isTransient(errors.New("syntax error")))
	assert.False(t, isTransient(ErrNotFound))
	assert.True(t, isTransient(errCASMiss))
	assert.True(t, isTransient(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isTransient(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, isTransient(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isTransient(&mysql.MySQLError{Number: 1213}))
	assert.False(t, isTransient(&mysql.MySQLError{Number: 1062}))
}

func TestAppendCallLogRetriesDeadlock(t *testing.T) {
	s, mock := newMockStore(t, DriverMySQL)

	mock.ExpectExec("INSERT INTO call_logs").WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})
	mock.ExpectExec("INSERT INTO call_logs").WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.AppendCallLog(context.Background(), &model.CallLog{
		APIKeyID: "k1", AgentID: "a1", Endpoint: "/api/v1/jobs", Method: "GET", StatusCode: 200,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendCallLogGivesUpAfterRetries(t *testing.T) {
	s, mock := newMockStore(t, DriverMySQL)
	s.maxRetries = 2

	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO call_logs").WillReturnError(&mysql.MySQLError{Number: 1205})
	}

	err := s.AppendCallLog(context.Background(), &model.CallLog{AgentID: "a1"})
	require.Error(t, err)
	var myErr *mysql.MySQLError
	assert.True(t, errors.As(err, &myErr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitProposalRetriesWholeTransaction(t *testing.T) {
	s, mock := newMockStore(t, DriverPostgres)
	ts := time.Now().UTC()

	jobRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"id", "title", "description", "category", "payment_type", "budget_min", "budget_max",
			"currency", "status", "client_id", "freelancer_id", "tags", "requirements",
			"permissions", "attachments", "created_at", "updated_at", "deadline", "proposal_count",
		}).AddRow("j1", "t", "d", "Data", "fixed", nil, nil, "USD", "open", "c1", nil,
			"[]", "[]", "[]", "[]", ts, ts, nil, 0)
	}

	// First attempt hits a serialization failure on the counter update.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE id = \$1`).WithArgs("j1").WillReturnRows(jobRow())
	mock.ExpectExec("INSERT INTO proposals").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE jobs SET proposal_count = proposal_count \\+ 1").
		WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM jobs WHERE id = \$1`).WithArgs("j1").WillReturnRows(jobRow())
	mock.ExpectExec("INSERT INTO proposals").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE jobs SET proposal_count = proposal_count \\+ 1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p := newProposal("j1", "a1")
	require.NoError(t, s.SubmitProposal(context.Background(), p))
	assert.Equal(t, "c1", p.ClientID)
	assert.Equal(t, model.ProposalPending, p.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAPIKeyMySQLAlreadyRevoked(t *testing.T) {
	s, mock := newMockStore(t, DriverMySQL)
	ts := time.Now().UTC()

	mock.ExpectExec("UPDATE api_keys SET is_active").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM api_keys WHERE id = \?`).WithArgs("k1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "agent_id", "key_hash", "key_prefix", "name", "is_active", "created_at", "last_used_at",
		}).AddRow("k1", "a1", "h", "oc_live_x", "n", false, ts, nil))

	require.NoError(t, s.RevokeAPIKey(context.Background(), "k1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobsPostgresPlaceholders(t *testing.T) {
	s, mock := newMockStore(t, DriverPostgres)

	mock.ExpectQuery(`SELECT \* FROM jobs WHERE status = \$1 AND category = \$2 ORDER BY created_at DESC, id DESC LIMIT \$3`).
		WithArgs("open", "Data", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	jobs, err := s.ListJobs(context.Background(), model.JobFilter{Status: model.JobOpen, Category: "Data", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
