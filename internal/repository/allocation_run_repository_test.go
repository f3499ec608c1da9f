package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/room-allocation-api/internal/models"
)

func newAllocationRunRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAllocationRunRepositoryLifecycle(t *testing.T) {
	db, mock, cleanup := newAllocationRunRepoMock(t)
	defer cleanup()
	repo := NewAllocationRunRepository(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO allocation_runs")).
		WithArgs(sqlmock.AnyArg(), "sem-1", string(models.AllocationRunQueued), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := &models.AllocationRun{SemesterID: "sem-1", Status: models.AllocationRunQueued}
	require.NoError(t, repo.Create(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, types.JSONText("{}"), run.Options)

	started := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE allocation_runs SET status = $2, started_at = $3 WHERE id = $1")).
		WithArgs(run.ID, string(models.AllocationRunRunning), started).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkRunning(ctx, run.ID, started))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE allocation_runs SET status = ")).
		WithArgs(string(models.AllocationRunCompleted), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), run.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	run.Status = models.AllocationRunCompleted
	require.NoError(t, repo.Finish(ctx, tx, run))
	require.NoError(t, tx.Commit())
	assert.NotNil(t, run.FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocationRunRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newAllocationRunRepoMock(t)
	defer cleanup()
	repo := NewAllocationRunRepository(db)

	now := time.Now()
	logPath := "decision-logs/sem-1/run-1.log"
	mock.ExpectQuery(regexp.QuoteMeta("FROM allocation_runs WHERE id = $1")).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "semester_id", "status", "options", "summary", "log_path", "error", "started_at", "finished_at"}).
			AddRow("run-1", "sem-1", "COMPLETED", `{}`, `{"runId":"run-1"}`, logPath, nil, now, now))

	run, err := repo.FindByID(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.AllocationRunCompleted, run.Status)
	require.NotNil(t, run.LogPath)
	assert.Equal(t, logPath, *run.LogPath)
	assert.Nil(t, run.Error)
	assert.True(t, run.Terminal())

	mock.ExpectQuery(regexp.QuoteMeta("FROM allocation_runs WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllocationRunRepositoryListQueued(t *testing.T) {
	db, mock, cleanup := newAllocationRunRepoMock(t)
	defer cleanup()
	repo := NewAllocationRunRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM allocation_runs WHERE status = $1 ORDER BY started_at ASC LIMIT $2")).
		WithArgs(string(models.AllocationRunQueued), 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "semester_id", "status", "options", "summary", "log_path", "error", "started_at", "finished_at"}).
			AddRow("run-1", "sem-1", "QUEUED", `{"includeHardRules":false,"maxIterations":3}`, `{}`, nil, nil, now, nil).
			AddRow("run-2", "sem-2", "QUEUED", `{}`, `{}`, nil, nil, now.Add(time.Second), nil))

	runs, err := repo.ListQueued(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Nil(t, runs[1].FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
