package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/room-allocation-api/internal/dto"
	appErrors "github.com/noah-isme/room-allocation-api/pkg/errors"
	"github.com/noah-isme/room-allocation-api/pkg/jobs"
)

type queuedRunExecutor interface {
	ExecuteQueued(ctx context.Context, runID string, req dto.AllocationRunRequest) (*dto.AllocationRunResult, error)
	Abandon(ctx context.Context, runID string, cause error) error
}

// AllocationWorker bridges queue jobs to AllocationService.
type AllocationWorker struct {
	runner     queuedRunExecutor
	logger     *zap.Logger
	maxRetries int
}

// NewAllocationWorker constructs a worker.
func NewAllocationWorker(runner queuedRunExecutor, maxRetries int, logger *zap.Logger) *AllocationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &AllocationWorker{runner: runner, logger: logger, maxRetries: maxRetries}
}

// Handle processes a queue job. Only a busy semester lock is retried; every other failure
// is already recorded on the run.
func (w *AllocationWorker) Handle(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(dto.AllocationRunRequest)
	if !ok {
		w.logger.Error("allocation job carries unexpected payload", zap.String("job_id", job.ID))
		return nil
	}

	_, err := w.runner.ExecuteQueued(ctx, job.ID, req)
	if err == nil {
		return nil
	}
	if errors.Is(err, appErrors.ErrRunInProgress) {
		if job.Attempt < w.maxRetries {
			w.logger.Info("semester busy, allocation run will retry", zap.String("run_id", job.ID), zap.Int("attempt", job.Attempt))
			return err
		}
		if abandonErr := w.runner.Abandon(ctx, job.ID, err); abandonErr != nil {
			w.logger.Warn("failed to abandon allocation run", zap.String("run_id", job.ID), zap.Error(abandonErr))
		}
		return nil
	}
	w.logger.Warn("queued allocation run failed", zap.String("run_id", job.ID), zap.Error(err))
	return nil
}
