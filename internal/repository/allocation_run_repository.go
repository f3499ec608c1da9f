package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/room-allocation-api/internal/models"
)

// AllocationRunRepository stores allocation run records.
type AllocationRunRepository struct {
	db *sqlx.DB
}

// NewAllocationRunRepository constructs the repository.
func NewAllocationRunRepository(db *sqlx.DB) *AllocationRunRepository {
	return &AllocationRunRepository{db: db}
}

func (r *AllocationRunRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new run.
func (r *AllocationRunRepository) Create(ctx context.Context, run *models.AllocationRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if len(run.Options) == 0 {
		run.Options = []byte("{}")
	}
	const query = `INSERT INTO allocation_runs (id, semester_id, status, options, started_at)
VALUES (:id, :semester_id, :status, :options, :started_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create allocation run: %w", err)
	}
	return nil
}

// MarkRunning moves a run to RUNNING.
func (r *AllocationRunRepository) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	const query = `UPDATE allocation_runs SET status = $2, started_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.AllocationRunRunning, startedAt); err != nil {
		return fmt.Errorf("mark allocation run running: %w", err)
	}
	return nil
}

// Finish stores the terminal state of a run, inside exec when given.
func (r *AllocationRunRepository) Finish(ctx context.Context, exec sqlx.ExtContext, run *models.AllocationRun) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	if len(run.Summary) == 0 {
		run.Summary = []byte("{}")
	}
	const query = `UPDATE allocation_runs SET status = :status, summary = :summary, log_path = :log_path, error = :error, finished_at = :finished_at
WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, run); err != nil {
		return fmt.Errorf("finish allocation run: %w", err)
	}
	return nil
}

// FindByID returns a run or sql.ErrNoRows.
func (r *AllocationRunRepository) FindByID(ctx context.Context, id string) (*models.AllocationRun, error) {
	const query = `SELECT id, semester_id, status, options, COALESCE(summary, '{}') AS summary, log_path, error, started_at, finished_at
FROM allocation_runs WHERE id = $1`
	var run models.AllocationRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListQueued returns queued runs, oldest first.
func (r *AllocationRunRepository) ListQueued(ctx context.Context, limit int) ([]models.AllocationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, semester_id, status, options, COALESCE(summary, '{}') AS summary, log_path, error, started_at, finished_at
FROM allocation_runs WHERE status = $1 ORDER BY started_at ASC LIMIT $2`
	var runs []models.AllocationRun
	if err := r.db.SelectContext(ctx, &runs, query, models.AllocationRunQueued, limit); err != nil {
		return nil, fmt.Errorf("list queued allocation runs: %w", err)
	}
	return runs, nil
}
