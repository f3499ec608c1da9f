package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/room-allocation-api/api/swagger"
	"github.com/noah-isme/room-allocation-api/internal/handler"
	"github.com/noah-isme/room-allocation-api/internal/models"
	"github.com/noah-isme/room-allocation-api/internal/repository"
	"github.com/noah-isme/room-allocation-api/internal/service"
	"github.com/noah-isme/room-allocation-api/pkg/cache"
	"github.com/noah-isme/room-allocation-api/pkg/config"
	"github.com/noah-isme/room-allocation-api/pkg/database"
	"github.com/noah-isme/room-allocation-api/pkg/export"
	"github.com/noah-isme/room-allocation-api/pkg/jobs"
	"github.com/noah-isme/room-allocation-api/pkg/logger"
	"github.com/noah-isme/room-allocation-api/pkg/storage"
)

// @title Room Allocation API
// @version 1.0.0
// @description Assigns university rooms to course sections for a semester
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database, logr)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, continuing without cache and distributed locks", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	var cacheSvc *service.CacheService
	var remoteLock *repository.RunLockRepository
	if redisClient != nil {
		cacheSvc = service.NewCacheService(repository.NewCacheRepository(redisClient, cfg.Redis.Namespace, logr), metrics, cfg.Allocation.RunCacheTTL, logr, true)
		if cfg.Allocation.DistributedLocking {
			remoteLock = repository.NewRunLockRepository(redisClient)
		}
	}
	locker := newSemesterLocker(remoteLock, cfg.Allocation.LockTTL, logr)

	scoringSvc, err := service.NewScoringConfigService(repository.NewScoringProfileRepository(db), validate, logr, service.ScoringConfig{
		ProfileName: cfg.Scoring.ProfileName,
		ProfileFile: cfg.Scoring.ProfileFile,
		Defaults:    scoringDefaults(cfg.Scoring),
	})
	if err != nil {
		return fmt.Errorf("load scoring weights: %w", err)
	}
	if _, err := scoringSvc.Reload(ctx); err != nil {
		logr.Warn("scoring profile not loaded, using defaults", zap.Error(err))
	}

	artifacts, err := storage.NewLocalStorage(cfg.Allocation.ArtifactDir)
	if err != nil {
		return fmt.Errorf("prepare artifact storage: %w", err)
	}
	exportSvc := service.NewExportService(
		artifacts,
		storage.NewSignedURLSigner(cfg.Allocation.SignedURLSecret, cfg.Allocation.SignedURLTTL),
		service.ExportConfig{APIPrefix: cfg.APIPrefix, LogRetention: cfg.Allocation.LogRetention},
		logr,
		export.NewCSVExporter(),
		export.NewPDFExporter(),
	)

	allocationSvc := service.NewAllocationService(service.AllocationDependencies{
		Semesters:   repository.NewSemesterRepository(db),
		Demands:     repository.NewDemandRepository(db),
		Rooms:       repository.NewRoomRepository(db),
		Rules:       repository.NewHardRuleRepository(db),
		Professors:  repository.NewProfessorRepository(db),
		Preferences: repository.NewProfessorPreferenceRepository(db),
		Allocations: repository.NewAllocationRepository(db).WithInsertChunk(cfg.Allocation.InsertChunkSize),
		Runs:        repository.NewAllocationRunRepository(db),
		Weights:     scoringSvc,
		Locker:      locker,
		Artifacts:   exportSvc,
		Cache:       cacheSvc,
		Metrics:     metrics,
		Tx:          db,
	}, validate, logr, service.AllocationServiceConfig{
		DefaultMaxIterations: cfg.Allocation.DefaultMaxIter,
		RunTimeout:           cfg.Allocation.RunTimeout,
		RunCacheTTL:          cfg.Allocation.RunCacheTTL,
	})

	var queue *jobs.Queue
	if cfg.Allocation.Enabled {
		worker := service.NewAllocationWorker(allocationSvc, cfg.Allocation.QueueRetries, logr)
		queue = jobs.NewQueue("allocation", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Allocation.QueueWorkers,
			BufferSize: cfg.Allocation.QueueBuffer,
			MaxRetries: cfg.Allocation.QueueRetries,
			RetryDelay: cfg.Allocation.QueueRetryDelay,
			JobTimeout: cfg.Allocation.RunTimeout,
			OnExhausted: func(job jobs.Job, cause error) {
				if err := allocationSvc.Abandon(context.Background(), job.ID, cause); err != nil {
					logr.Warn("failed to abandon exhausted allocation run", zap.String("run_id", job.ID), zap.Error(err))
				}
			},
			Logger: logr,
		})
		allocationSvc.SetQueue(queue)
		if err := metrics.RegisterQueue(queue); err != nil {
			logr.Warn("queue metrics not registered", zap.Error(err))
		}
		queue.Start(ctx)
		defer queue.Stop()
		allocationSvc.RecoverQueued(ctx)
	}

	go runArtifactCleanup(ctx, exportSvc, cfg.Allocation.CleanupInterval, logr)

	checks := map[string]handler.ReadinessCheck{
		"database": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var queueStats interface{ Stats() jobs.Stats }
	if queue != nil {
		queueStats = queue
	}

	router := newRouter(cfg, logr, routeHandlers{
		allocation:   handler.NewAllocationHandler(allocationSvc, cfg.APIPrefix),
		scoring:      handler.NewScoringConfigHandler(scoringSvc),
		scheduleCode: handler.NewScheduleCodeHandler(),
		metrics:      handler.NewMetricsHandler(metrics, queueStats, checks),
		tokens: service.NewTokenVerifier(service.TokenConfig{
			Secret:   cfg.JWT.Secret,
			Issuer:   cfg.JWT.Issuer,
			Audience: cfg.JWT.Audience,
		}),
		metricsSvc: metrics,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newSemesterLocker keeps a nil repository from becoming a non-nil interface.
func newSemesterLocker(remote *repository.RunLockRepository, ttl time.Duration, logr *zap.Logger) *service.SemesterLocker {
	if remote == nil {
		return service.NewSemesterLocker(nil, ttl, logr)
	}
	return service.NewSemesterLocker(remote, ttl, logr)
}

func scoringDefaults(cfg config.ScoringConfig) models.ScoringWeights {
	return models.ScoringWeights{
		Capacity:                cfg.Capacity,
		HardRule:                cfg.HardRule,
		PreferredRoom:           cfg.PreferredRoom,
		PreferredCharacteristic: cfg.PreferredCharacteristic,
		HistoricalPerAllocation: cfg.HistoricalPerAllocation,
		HistoricalMaxCap:        cfg.HistoricalMaxCap,
		EnrollmentDivisor:       cfg.EnrollmentDivisor,
		EnrollmentCap:           cfg.EnrollmentCap,
		SpecificRoomPriority:    cfg.SpecificRoomPriority,
	}
}

func runArtifactCleanup(ctx context.Context, exportSvc *service.ExportService, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := exportSvc.Cleanup(0)
			if err != nil {
				logr.Warn("artifact cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired decision logs removed", zap.Int("count", len(removed)))
			}
		}
	}
}
