package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/room-allocation-api/internal/dto"
	"github.com/noah-isme/room-allocation-api/internal/models"
	appErrors "github.com/noah-isme/room-allocation-api/pkg/errors"
	"github.com/noah-isme/room-allocation-api/pkg/jobs"
)

// AllocationJobType labels queued allocation runs.
const AllocationJobType = "allocation_run"

type semesterReader interface {
	FindByID(ctx context.Context, id string) (*models.Semester, error)
	ListWithAllocations(ctx context.Context) ([]models.Semester, error)
}

type demandReader interface {
	ListBySemester(ctx context.Context, semesterID string) ([]models.Demand, error)
}

type roomReader interface {
	ListActive(ctx context.Context) ([]models.Room, error)
}

type hardRuleReader interface {
	ListActive(ctx context.Context) ([]models.HardRuleRecord, error)
}

type professorDirectory interface {
	ListAll(ctx context.Context) ([]models.Professor, error)
}

type preferenceReader interface {
	ListAll(ctx context.Context) ([]models.ProfessorPreferenceRecord, error)
}

type allocationStore interface {
	allocationLedger
	allocationHistoryReader
	ListHistory(ctx context.Context, excludeSemesterID string) ([]models.HistoricalAllocation, error)
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, rows []models.Allocation) error
	DeleteByDemands(ctx context.Context, exec sqlx.ExtContext, semesterID string, demandIDs []string) (int64, error)
	ListBySemester(ctx context.Context, semesterID string) ([]models.Allocation, error)
}

type allocationRunStore interface {
	Create(ctx context.Context, run *models.AllocationRun) error
	MarkRunning(ctx context.Context, id string, startedAt time.Time) error
	Finish(ctx context.Context, exec sqlx.ExtContext, run *models.AllocationRun) error
	FindByID(ctx context.Context, id string) (*models.AllocationRun, error)
	ListQueued(ctx context.Context, limit int) ([]models.AllocationRun, error)
}

type weightsSource interface {
	Current() models.ScoringWeights
}

type runLocker interface {
	Acquire(ctx context.Context, semesterID, owner string) (func(), error)
}

type runArtifacts interface {
	DecisionLogPath(semesterID, runID string) string
	SaveDecisionLog(relPath string, data []byte) (string, error)
	ReadDecisionLog(relPath string) ([]byte, error)
	SignDownload(runID, relPath string) (string, time.Time, error)
	ParseToken(token string) (runID, relPath string, err error)
	RenderOutcomes(result dto.AllocationRunResult, format models.ExportFormat) ([]byte, string, error)
}

type runDispatcher interface {
	Enqueue(job jobs.Job) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// AllocationServiceConfig tunes allocation runs.
type AllocationServiceConfig struct {
	DefaultMaxIterations int
	RunTimeout           time.Duration
	RunCacheTTL          time.Duration
}

// AllocationDependencies groups the collaborators of AllocationService.
type AllocationDependencies struct {
	Semesters   semesterReader
	Demands     demandReader
	Rooms       roomReader
	Rules       hardRuleReader
	Professors  professorDirectory
	Preferences preferenceReader
	Allocations allocationStore
	Runs        allocationRunStore
	Weights     weightsSource
	Locker      runLocker
	Artifacts   runArtifacts
	Queue       runDispatcher
	Cache       *CacheService
	Metrics     *MetricsService
	Tx          txProvider
}

// AllocationService runs allocation sessions and persists their results.
type AllocationService struct {
	semesters   semesterReader
	demands     demandReader
	rooms       roomReader
	rules       hardRuleReader
	professors  professorDirectory
	preferences preferenceReader
	allocations allocationStore
	runs        allocationRunStore
	weights     weightsSource
	locker      runLocker
	artifacts   runArtifacts
	queue       runDispatcher
	cache       *CacheService
	metrics     *MetricsService
	tx          txProvider
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         AllocationServiceConfig
	now         func() time.Time
}

// NewAllocationService wires allocation dependencies.
func NewAllocationService(deps AllocationDependencies, validate *validator.Validate, logger *zap.Logger, cfg AllocationServiceConfig) *AllocationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RunCacheTTL <= 0 {
		cfg.RunCacheTTL = 10 * time.Minute
	}
	if deps.Locker == nil {
		deps.Locker = NewSemesterLocker(nil, 0, logger)
	}
	return &AllocationService{
		semesters:   deps.Semesters,
		demands:     deps.Demands,
		rooms:       deps.Rooms,
		rules:       deps.Rules,
		professors:  deps.Professors,
		preferences: deps.Preferences,
		allocations: deps.Allocations,
		runs:        deps.Runs,
		weights:     deps.Weights,
		locker:      deps.Locker,
		artifacts:   deps.Artifacts,
		queue:       deps.Queue,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		tx:          deps.Tx,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// SetQueue attaches the dispatcher used by Submit. The queue's handler usually needs the
// service itself, so it is wired after construction.
func (s *AllocationService) SetQueue(queue runDispatcher) {
	s.queue = queue
}

// Run executes an allocation session synchronously and returns its result.
func (s *AllocationService) Run(ctx context.Context, req dto.AllocationRunRequest) (*dto.AllocationRunResult, error) {
	if err := s.validateRequest(ctx, req); err != nil {
		return nil, err
	}
	release, err := s.locker.Acquire(ctx, req.SemesterID, uuid.NewString())
	if err != nil {
		return nil, err
	}
	defer release()

	run, err := s.createRun(ctx, req, models.AllocationRunRunning)
	if err != nil {
		return nil, err
	}
	return s.process(ctx, run, req)
}

// Submit records a queued run and hands it to the worker queue.
func (s *AllocationService) Submit(ctx context.Context, req dto.AllocationRunRequest) (*dto.AllocationRunAccepted, error) {
	if err := s.validateRequest(ctx, req); err != nil {
		return nil, err
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "asynchronous allocation runs are disabled")
	}
	run, err := s.createRun(ctx, req, models.AllocationRunQueued)
	if err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: AllocationJobType, Payload: req}); err != nil {
		wrapped := appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue allocation run")
		_, _ = s.fail(ctx, run, nil, s.now(), wrapped)
		return nil, wrapped
	}
	s.logger.Info("allocation run queued", zap.String("run_id", run.ID), zap.String("semester_id", run.SemesterID))
	return &dto.AllocationRunAccepted{RunID: run.ID, SemesterID: run.SemesterID, Status: run.Status}, nil
}

// ExecuteQueued runs a previously submitted session. Runs already stopped are ignored.
func (s *AllocationService) ExecuteQueued(ctx context.Context, runID string, req dto.AllocationRunRequest) (*dto.AllocationRunResult, error) {
	run, err := s.findRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Terminal() {
		return nil, nil
	}
	release, err := s.locker.Acquire(ctx, run.SemesterID, run.ID)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.process(ctx, run, req)
}

// RecoverQueued re-enqueues runs left QUEUED by a previous process.
func (s *AllocationService) RecoverQueued(ctx context.Context) int {
	if s.queue == nil {
		return 0
	}
	pending, err := s.runs.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to load queued allocation runs", zap.Error(err))
		return 0
	}
	recovered := 0
	for i := range pending {
		run := pending[i]
		req := dto.AllocationRunRequest{}
		if len(run.Options) > 0 {
			if err := json.Unmarshal(run.Options, &req); err != nil {
				s.logger.Warn("discarding queued run with unreadable options", zap.String("run_id", run.ID), zap.Error(err))
				_, _ = s.fail(ctx, &run, nil, s.now(), appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "queued run options unreadable"))
				continue
			}
		}
		req.SemesterID = run.SemesterID
		req.Async = true
		if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: AllocationJobType, Payload: req}); err != nil {
			s.logger.Warn("failed to requeue allocation run", zap.String("run_id", run.ID), zap.Error(err))
			continue
		}
		recovered++
	}
	if recovered > 0 {
		s.logger.Info("requeued allocation runs", zap.Int("count", recovered))
	}
	return recovered
}

// Abandon marks a queued run failed without executing it.
func (s *AllocationService) Abandon(ctx context.Context, runID string, cause error) error {
	run, err := s.findRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return nil
	}
	_, _ = s.fail(ctx, run, nil, s.now(), cause)
	return nil
}

func (s *AllocationService) validateRequest(ctx context.Context, req dto.AllocationRunRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid allocation run payload")
	}
	if _, err := s.semesters.FindByID(ctx, req.SemesterID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	return nil
}

func (s *AllocationService) createRun(ctx context.Context, req dto.AllocationRunRequest, status models.AllocationRunStatus) (*models.AllocationRun, error) {
	options, err := json.Marshal(map[string]any{
		"includeHardRules":       req.HardRulesEnabled(),
		"includeSoftPreferences": req.SoftPreferencesEnabled(),
		"maxIterations":          s.maxIterations(req),
		"async":                  req.Async,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode run options")
	}
	run := &models.AllocationRun{
		ID:         uuid.NewString(),
		SemesterID: req.SemesterID,
		Status:     status,
		Options:    types.JSONText(options),
		StartedAt:  s.now().UTC(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create allocation run")
	}
	return run, nil
}

func (s *AllocationService) maxIterations(req dto.AllocationRunRequest) int {
	if req.MaxIterations > 0 {
		return req.MaxIterations
	}
	return s.cfg.DefaultMaxIterations
}

func (s *AllocationService) process(ctx context.Context, run *models.AllocationRun, req dto.AllocationRunRequest) (*dto.AllocationRunResult, error) {
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}
	defer s.metrics.TrackActiveRun()()

	started := s.now()
	weights := s.weights.Current()
	options := ScoringOptions{
		IncludeHardRules:       req.HardRulesEnabled(),
		IncludeSoftPreferences: req.SoftPreferencesEnabled(),
	}
	if err := s.runs.MarkRunning(ctx, run.ID, started.UTC()); err != nil {
		return s.fail(ctx, run, nil, started, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark run as running"))
	}
	run.Status = models.AllocationRunRunning

	loadStart := s.now()
	arena, err := s.loadArena(ctx, run.SemesterID)
	if err != nil {
		return s.fail(ctx, run, nil, started, err)
	}
	loadTime := s.now().Sub(loadStart)

	detector := NewHybridDetector(s.semesters, s.allocations, s.logger)
	if err := detector.Detect(ctx, run.SemesterID); err != nil {
		return s.fail(ctx, run, nil, started, err)
	}
	index := NewConflictIndex(s.allocations, run.SemesterID, s.metrics)
	if err := index.Prime(ctx); err != nil {
		return s.fail(ctx, run, nil, started, err)
	}

	recorder := NewTextDecisionRecorder()
	recorder.RunStarted(RunHeader{
		RunID:               run.ID,
		SemesterID:          run.SemesterID,
		DetectionSemesterID: detector.DetectionSemesterID(),
		HybridCourses:       detector.Courses(),
		Weights:             weights,
		Options:             options,
		MaxIterations:       s.maxIterations(req),
		DemandCount:         len(arena.demands),
		RoomCount:           len(arena.rooms),
		StartedAt:           started,
	})

	session := &allocationSession{
		runID:         run.ID,
		semesterID:    run.SemesterID,
		arena:         arena,
		scorer:        NewCompatibilityScorer(weights, NewHistoryIndex(arena.history, run.SemesterID), options),
		detector:      detector,
		index:         index,
		recorder:      recorder,
		weights:       weights,
		options:       options,
		maxIterations: s.maxIterations(req),
		logger:        s.logger,
		now:           s.now,
	}
	result, err := session.run(ctx)
	if err != nil {
		return s.fail(ctx, run, recorder, started, err)
	}
	result.phases = append([]PhaseCounter{{Phase: "load", Count: len(arena.demands), Duration: loadTime}}, result.phases...)
	return s.commit(ctx, run, recorder, result, started)
}

// loadArena fetches every input of a session in parallel.
func (s *AllocationService) loadArena(ctx context.Context, semesterID string) (*allocationArena, error) {
	var (
		semester   *models.Semester
		demands    []models.Demand
		rooms      []models.Room
		records    []models.HardRuleRecord
		professors []models.Professor
		prefs      []models.ProfessorPreferenceRecord
		history    []models.HistoricalAllocation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		semester, err = s.semesters.FindByID(gctx, semesterID)
		return wrapLoadError(err, "failed to load semester")
	})
	g.Go(func() (err error) {
		demands, err = s.demands.ListBySemester(gctx, semesterID)
		return wrapLoadError(err, "failed to load demands")
	})
	g.Go(func() (err error) {
		rooms, err = s.rooms.ListActive(gctx)
		return wrapLoadError(err, "failed to load rooms")
	})
	g.Go(func() (err error) {
		records, err = s.rules.ListActive(gctx)
		return wrapLoadError(err, "failed to load hard rules")
	})
	g.Go(func() (err error) {
		professors, err = s.professors.ListAll(gctx)
		return wrapLoadError(err, "failed to load professors")
	})
	g.Go(func() (err error) {
		prefs, err = s.preferences.ListAll(gctx)
		return wrapLoadError(err, "failed to load professor preferences")
	})
	g.Go(func() (err error) {
		history, err = s.allocations.ListHistory(gctx, semesterID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrConflictIndexUnavailable.Code, appErrors.ErrConflictIndexUnavailable.Status, "failed to load allocation history")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	arena := &allocationArena{
		semester:    *semester,
		demands:     demands,
		rooms:       rooms,
		preferences: make(map[string]models.ProfessorPreference),
		professors:  make(map[string]bool, len(professors)),
		history:     history,
	}
	sort.SliceStable(arena.rooms, func(i, j int) bool {
		if arena.rooms[i].Name != arena.rooms[j].Name {
			return arena.rooms[i].Name < arena.rooms[j].Name
		}
		return arena.rooms[i].ID < arena.rooms[j].ID
	})
	for _, record := range records {
		rule, err := record.Parse()
		if err != nil {
			s.logger.Warn("hard rule configuration invalid", zap.String("rule_id", record.ID), zap.Error(err))
			arena.brokenRules = append(arena.brokenRules, brokenRule{record: record, err: err})
			continue
		}
		arena.rules = append(arena.rules, rule)
	}
	for _, professor := range professors {
		arena.professors[normalizeProfessor(professor.Name)] = true
	}
	for _, record := range prefs {
		key := normalizeProfessor(record.ProfessorName)
		pref := arena.preferences[key]
		pref.ProfessorName = record.ProfessorName
		switch record.Kind {
		case models.PreferenceKindRoom:
			pref.RoomIDs = append(pref.RoomIDs, record.Target)
		case models.PreferenceKindCharacteristic:
			pref.Characteristics = append(pref.Characteristics, record.Target)
		default:
			s.logger.Warn("unknown preference kind", zap.String("preference_id", record.ID), zap.String("kind", string(record.Kind)))
			continue
		}
		arena.preferences[key] = pref
	}
	return arena, nil
}

func wrapLoadError(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrMissingReference, message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// commit persists the rows of every processed demand together with the run record.
func (s *AllocationService) commit(ctx context.Context, run *models.AllocationRun, recorder *TextDecisionRecorder, result *sessionResult, started time.Time) (*dto.AllocationRunResult, error) {
	status := models.AllocationRunCompleted
	persistCtx := ctx
	if result.cancelled {
		status = models.AllocationRunCancelled
	}
	if result.cancelled || ctx.Err() != nil {
		persistCtx = context.WithoutCancel(ctx)
	}

	out := buildRunResult(run, status, result, s.now().Sub(started))
	if result.cancelled {
		out.Error = appErrors.ErrRunCancelled.Message
	}

	var logPath *string
	if s.artifacts != nil {
		path := s.artifacts.DecisionLogPath(run.SemesterID, run.ID)
		logPath = &path
	}
	finished := s.now().UTC()
	run.Status = status
	run.LogPath = logPath
	run.FinishedAt = &finished
	if out.Error != "" {
		msg := out.Error
		run.Error = &msg
	}
	summary, err := json.Marshal(out)
	if err != nil {
		return s.fail(persistCtx, run, recorder, started, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode run summary"))
	}
	run.Summary = types.JSONText(summary)

	if err := s.persist(persistCtx, run, processedDemandIDs(result.outcomes), result.rows); err != nil {
		return s.fail(persistCtx, run, recorder, started, err)
	}

	recorder.RunFinished(RunSummary{
		Status:            status,
		StatusCounts:      out.StatusCounts,
		RowsCommitted:     out.RowsCommitted,
		ConflictsDetected: out.ConflictsDetected,
		Phases:            result.phases,
		Duration:          out.Duration,
		Error:             out.Error,
	})
	s.saveLog(run, recorder)

	s.metrics.ObserveAllocationRun(string(status), out.Duration)
	for demandStatus, count := range out.StatusCounts {
		s.metrics.RecordDemandOutcomes(string(demandStatus), count)
	}
	s.cacheRun(persistCtx, run)
	if s.cache != nil {
		_ = s.cache.Invalidate(persistCtx, semesterAllocationsCachePattern(run.SemesterID))
	}

	s.logger.Info("allocation run finished",
		zap.String("run_id", run.ID),
		zap.String("semester_id", run.SemesterID),
		zap.String("status", string(status)),
		zap.Int("rows_committed", out.RowsCommitted),
		zap.Int("allocations_completed", out.AllocationsCompleted),
		zap.Int("unallocated", out.UnallocatedCount),
		zap.Int("conflicts_detected", out.ConflictsDetected),
		zap.Duration("duration", out.Duration),
	)
	return out, nil
}

func (s *AllocationService) persist(ctx context.Context, run *models.AllocationRun, superseded []string, rows []models.Allocation) (err error) {
	if s.tx == nil {
		return appErrors.Clone(appErrors.ErrConflictIndexUnavailable, "allocation store is not configured")
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrConflictIndexUnavailable.Code, appErrors.ErrConflictIndexUnavailable.Status, "failed to begin allocation transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	removed, err := s.allocations.DeleteByDemands(ctx, tx, run.SemesterID, superseded)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrConflictIndexUnavailable.Code, appErrors.ErrConflictIndexUnavailable.Status, "failed to replace previous allocations")
		return err
	}
	if removed > 0 {
		s.logger.Info("previous allocations replaced", zap.String("run_id", run.ID), zap.Int64("rows", removed))
	}
	if err = s.allocations.InsertBatch(ctx, tx, rows); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrConflictIndexUnavailable.Code, appErrors.ErrConflictIndexUnavailable.Status, "failed to persist allocations")
		return err
	}
	if err = s.runs.Finish(ctx, tx, run); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finish allocation run")
		return err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrConflictIndexUnavailable.Code, appErrors.ErrConflictIndexUnavailable.Status, "failed to commit allocation transaction")
		return err
	}
	return nil
}

// processedDemandIDs lists the demands the session reached; their earlier rows are replaced.
func processedDemandIDs(outcomes []dto.DemandOutcome) []string {
	ids := make([]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.Reason == models.ReasonNotProcessed {
			continue
		}
		ids = append(ids, outcome.DemandID)
	}
	return ids
}

// fail marks the run FAILED outside any transaction; no allocation row is written.
func (s *AllocationService) fail(ctx context.Context, run *models.AllocationRun, recorder *TextDecisionRecorder, started time.Time, cause error) (*dto.AllocationRunResult, error) {
	persistCtx := context.WithoutCancel(ctx)
	appErr := appErrors.FromError(cause)
	duration := s.now().Sub(started)
	message := appErr.Message
	if appErr.Err != nil {
		message = appErr.Message + ": " + appErr.Err.Error()
	}

	finished := s.now().UTC()
	run.Status = models.AllocationRunFailed
	run.Error = &message
	run.FinishedAt = &finished
	summary, _ := json.Marshal(dto.AllocationRunResult{
		RunID:      run.ID,
		SemesterID: run.SemesterID,
		Status:     models.AllocationRunFailed,
		Duration:   duration,
		Error:      message,
	})
	run.Summary = types.JSONText(summary)

	if recorder != nil && s.artifacts != nil {
		recorder.RunFinished(RunSummary{Status: models.AllocationRunFailed, Duration: duration, Error: message})
		path := s.artifacts.DecisionLogPath(run.SemesterID, run.ID)
		run.LogPath = &path
		s.saveLog(run, recorder)
	}
	if err := s.runs.Finish(persistCtx, nil, run); err != nil {
		s.logger.Warn("failed to record failed allocation run", zap.String("run_id", run.ID), zap.Error(err))
	}
	s.metrics.ObserveAllocationRun(string(models.AllocationRunFailed), duration)
	s.cacheRun(persistCtx, run)

	s.logger.Error("allocation run failed",
		zap.String("run_id", run.ID),
		zap.String("semester_id", run.SemesterID),
		zap.Error(cause),
	)
	return nil, appErr
}

func (s *AllocationService) saveLog(run *models.AllocationRun, recorder *TextDecisionRecorder) {
	if s.artifacts == nil || run.LogPath == nil {
		return
	}
	if _, err := s.artifacts.SaveDecisionLog(*run.LogPath, recorder.Bytes()); err != nil {
		s.logger.Warn("failed to store decision log", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (s *AllocationService) cacheRun(ctx context.Context, run *models.AllocationRun) {
	if s.cache == nil || !run.Terminal() {
		return
	}
	_ = s.cache.Set(ctx, runCacheKey(run.ID), run, s.cfg.RunCacheTTL)
}

func (s *AllocationService) findRun(ctx context.Context, id string) (*models.AllocationRun, error) {
	run, err := s.runs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "allocation run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocation run")
	}
	return run, nil
}

func buildRunResult(run *models.AllocationRun, status models.AllocationRunStatus, result *sessionResult, duration time.Duration) *dto.AllocationRunResult {
	out := &dto.AllocationRunResult{
		RunID:             run.ID,
		SemesterID:        run.SemesterID,
		Status:            status,
		Success:           status == models.AllocationRunCompleted,
		RowsCommitted:     len(result.rows),
		ConflictsDetected: result.conflicts,
		StatusCounts:      make(map[models.DemandStatus]int),
		Outcomes:          result.outcomes,
		Duration:          duration,
	}
	for _, outcome := range result.outcomes {
		out.StatusCounts[outcome.Status]++
		switch outcome.Status {
		case models.DemandAllocated, models.DemandSplitAllocated, models.DemandPartiallyAllocated:
			out.AllocationsCompleted++
		case models.DemandUnallocated:
			out.UnallocatedCount++
		}
	}
	if out.Outcomes == nil {
		out.Outcomes = []dto.DemandOutcome{}
	}
	return out
}

func runCacheKey(runID string) string {
	return "allocation:run:" + runID
}

func semesterAllocationsCacheKey(semesterID string) string {
	return "allocation:semester:" + strings.TrimSpace(semesterID) + ":rows"
}

func semesterAllocationsCachePattern(semesterID string) string {
	return "allocation:semester:" + strings.TrimSpace(semesterID) + ":*"
}
