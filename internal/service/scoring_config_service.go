package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/room-allocation-api/internal/models"
	appErrors "github.com/noah-isme/room-allocation-api/pkg/errors"
)

type scoringProfileStore interface {
	GetByName(ctx context.Context, name string) (*models.ScoringProfile, error)
	Upsert(ctx context.Context, profile *models.ScoringProfile) error
}

// Scoring weight sources, highest precedence first.
const (
	ScoringSourceDatabase = "database"
	ScoringSourceFile     = "file"
	ScoringSourceDefaults = "defaults"
	ScoringSourceRuntime  = "runtime"
)

// ScoringConfig selects where weights are loaded from.
type ScoringConfig struct {
	ProfileName string
	ProfileFile string
	Defaults    models.ScoringWeights
}

// ScoringSnapshot is the weight set in force together with its origin.
type ScoringSnapshot struct {
	Profile  string                `json:"profile"`
	Source   string                `json:"source"`
	Weights  models.ScoringWeights `json:"weights"`
	LoadedAt time.Time             `json:"loadedAt"`
}

// ScoringConfigService owns the immutable weight set handed to allocation runs.
// Reloads build a new value and swap it atomically; runs keep the snapshot they started with.
type ScoringConfigService struct {
	store     scoringProfileStore
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ScoringConfig
	current   atomic.Pointer[ScoringSnapshot]
}

// NewScoringConfigService validates the defaults and installs them as the current weights.
func NewScoringConfigService(store scoringProfileStore, validate *validator.Validate, logger *zap.Logger, cfg ScoringConfig) (*ScoringConfigService, error) {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProfileName == "" {
		cfg.ProfileName = "default"
	}
	if cfg.Defaults == (models.ScoringWeights{}) {
		cfg.Defaults = models.DefaultScoringWeights()
	}
	svc := &ScoringConfigService{store: store, validator: validate, logger: logger, cfg: cfg}
	if err := svc.validate(cfg.Defaults); err != nil {
		return nil, err
	}
	svc.current.Store(&ScoringSnapshot{
		Profile:  cfg.ProfileName,
		Source:   ScoringSourceDefaults,
		Weights:  cfg.Defaults,
		LoadedAt: time.Now().UTC(),
	})
	return svc, nil
}

// Current returns the weights in force.
func (s *ScoringConfigService) Current() models.ScoringWeights {
	return s.current.Load().Weights
}

// Snapshot returns the weights in force with their origin.
func (s *ScoringConfigService) Snapshot() ScoringSnapshot {
	return *s.current.Load()
}

// Reload resolves weights from the profile store, then the profile file, then the defaults.
// An invalid source aborts the reload and keeps the previous weights.
func (s *ScoringConfigService) Reload(ctx context.Context) (ScoringSnapshot, error) {
	weights, source, err := s.resolve(ctx)
	if err != nil {
		return s.Snapshot(), err
	}
	if err := s.validate(weights); err != nil {
		return s.Snapshot(), err
	}
	snapshot := &ScoringSnapshot{
		Profile:  s.cfg.ProfileName,
		Source:   source,
		Weights:  weights,
		LoadedAt: time.Now().UTC(),
	}
	s.current.Store(snapshot)
	s.logger.Info("scoring weights loaded", zap.String("profile", snapshot.Profile), zap.String("source", source))
	return *snapshot, nil
}

// Update validates and persists new weights, then installs them.
func (s *ScoringConfigService) Update(ctx context.Context, weights models.ScoringWeights) (ScoringSnapshot, error) {
	if err := s.validate(weights); err != nil {
		return s.Snapshot(), err
	}
	source := ScoringSourceRuntime
	if s.store != nil {
		profile := &models.ScoringProfile{Name: s.cfg.ProfileName, ScoringWeights: weights, UpdatedAt: time.Now().UTC()}
		if err := s.store.Upsert(ctx, profile); err != nil {
			return s.Snapshot(), appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist scoring profile")
		}
		source = ScoringSourceDatabase
	}
	snapshot := &ScoringSnapshot{
		Profile:  s.cfg.ProfileName,
		Source:   source,
		Weights:  weights,
		LoadedAt: time.Now().UTC(),
	}
	s.current.Store(snapshot)
	s.logger.Info("scoring weights updated", zap.String("profile", snapshot.Profile))
	return *snapshot, nil
}

func (s *ScoringConfigService) resolve(ctx context.Context) (models.ScoringWeights, string, error) {
	if s.store != nil {
		profile, err := s.store.GetByName(ctx, s.cfg.ProfileName)
		switch {
		case err == nil:
			return profile.ScoringWeights, ScoringSourceDatabase, nil
		case !errors.Is(err, sql.ErrNoRows):
			return models.ScoringWeights{}, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scoring profile")
		}
	}
	if s.cfg.ProfileFile != "" {
		profile, err := LoadScoringProfileFile(s.cfg.ProfileFile)
		if err != nil {
			return models.ScoringWeights{}, "", appErrors.Wrap(err, appErrors.ErrInvalidScoringConfig.Code, appErrors.ErrInvalidScoringConfig.Status, "failed to read scoring profile file")
		}
		return profile.ScoringWeights, ScoringSourceFile, nil
	}
	return s.cfg.Defaults, ScoringSourceDefaults, nil
}

func (s *ScoringConfigService) validate(weights models.ScoringWeights) error {
	if err := s.validator.Struct(weights); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInvalidScoringConfig.Code, appErrors.ErrInvalidScoringConfig.Status, "every scoring weight must be greater than zero")
	}
	return nil
}

// LoadScoringProfileFile reads a YAML scoring profile.
func LoadScoringProfileFile(path string) (*models.ScoringProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scoring profile: %w", err)
	}
	var profile models.ScoringProfile
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("decode scoring profile: %w", err)
	}
	return &profile, nil
}
