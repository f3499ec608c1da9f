package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/room-allocation-api/internal/models"
	appErrors "github.com/noah-isme/room-allocation-api/pkg/errors"
)

type scoringProfileStoreStub struct {
	profile   *models.ScoringProfile
	getErr    error
	upsertErr error
	upserted  []models.ScoringProfile
}

func (s *scoringProfileStoreStub) GetByName(ctx context.Context, name string) (*models.ScoringProfile, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.profile == nil || s.profile.Name != name {
		return nil, sql.ErrNoRows
	}
	clone := *s.profile
	return &clone, nil
}

func (s *scoringProfileStoreStub) Upsert(ctx context.Context, profile *models.ScoringProfile) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserted = append(s.upserted, *profile)
	return nil
}

const scoringProfileYAML = `name: default
capacity: 5
hard_rule: 9
preferred_room: 3
preferred_characteristic: 2
historical_per_allocation: 2
historical_max_cap: 6
enrollment_divisor: 15
enrollment_cap: 10
specific_room_priority: 500
`

func writeProfileFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestScoringConfigServiceStartsWithDefaults(t *testing.T) {
	svc, err := NewScoringConfigService(nil, nil, nil, ScoringConfig{})
	require.NoError(t, err)

	snapshot := svc.Snapshot()
	assert.Equal(t, "default", snapshot.Profile)
	assert.Equal(t, ScoringSourceDefaults, snapshot.Source)
	assert.Equal(t, models.DefaultScoringWeights(), svc.Current())
}

func TestScoringConfigServiceRejectsInvalidDefaults(t *testing.T) {
	weights := models.DefaultScoringWeights()
	weights.HardRule = 0
	_, err := NewScoringConfigService(nil, nil, nil, ScoringConfig{Defaults: weights})
	assert.ErrorIs(t, err, appErrors.ErrInvalidScoringConfig)
}

func TestScoringConfigServiceReloadPrecedence(t *testing.T) {
	file := writeProfileFile(t, scoringProfileYAML)
	stored := models.DefaultScoringWeights()
	stored.Capacity = 7
	store := &scoringProfileStoreStub{profile: &models.ScoringProfile{Name: "default", ScoringWeights: stored}}

	svc, err := NewScoringConfigService(store, nil, nil, ScoringConfig{ProfileFile: file})
	require.NoError(t, err)

	snapshot, err := svc.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScoringSourceDatabase, snapshot.Source)
	assert.Equal(t, 7, svc.Current().Capacity)

	store.profile = nil
	snapshot, err = svc.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScoringSourceFile, snapshot.Source)
	assert.Equal(t, 5, snapshot.Weights.Capacity)
	assert.Equal(t, 500, snapshot.Weights.SpecificRoomPriority)

	svc.cfg.ProfileFile = ""
	snapshot, err = svc.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScoringSourceDefaults, snapshot.Source)
	assert.Equal(t, models.DefaultScoringWeights(), snapshot.Weights)
}

func TestScoringConfigServiceReloadKeepsPreviousOnInvalidSource(t *testing.T) {
	file := writeProfileFile(t, "capacity: 5\nhard_rule: 0\n")
	svc, err := NewScoringConfigService(nil, nil, nil, ScoringConfig{ProfileFile: file})
	require.NoError(t, err)

	snapshot, err := svc.Reload(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrInvalidScoringConfig)
	assert.Equal(t, ScoringSourceDefaults, snapshot.Source)
	assert.Equal(t, models.DefaultScoringWeights(), svc.Current())
}

func TestScoringConfigServiceReloadStoreError(t *testing.T) {
	store := &scoringProfileStoreStub{getErr: errors.New("db down")}
	svc, err := NewScoringConfigService(store, nil, nil, ScoringConfig{})
	require.NoError(t, err)

	_, err = svc.Reload(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestScoringConfigServiceReloadMissingFile(t *testing.T) {
	svc, err := NewScoringConfigService(nil, nil, nil, ScoringConfig{ProfileFile: filepath.Join(t.TempDir(), "missing.yaml")})
	require.NoError(t, err)

	_, err = svc.Reload(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrInvalidScoringConfig)
}

func TestScoringConfigServiceUpdate(t *testing.T) {
	store := &scoringProfileStoreStub{}
	svc, err := NewScoringConfigService(store, nil, nil, ScoringConfig{ProfileName: "spring"})
	require.NoError(t, err)

	weights := models.DefaultScoringWeights()
	weights.PreferredRoom = 6
	snapshot, err := svc.Update(context.Background(), weights)
	require.NoError(t, err)
	assert.Equal(t, ScoringSourceDatabase, snapshot.Source)
	assert.Equal(t, 6, svc.Current().PreferredRoom)
	require.Len(t, store.upserted, 1)
	assert.Equal(t, "spring", store.upserted[0].Name)

	weights.Capacity = -1
	_, err = svc.Update(context.Background(), weights)
	assert.ErrorIs(t, err, appErrors.ErrInvalidScoringConfig)
	assert.Equal(t, 4, svc.Current().Capacity)

	store.upsertErr = errors.New("write failed")
	weights.Capacity = 9
	_, err = svc.Update(context.Background(), weights)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Equal(t, 4, svc.Current().Capacity)
}

func TestScoringConfigServiceUpdateWithoutStore(t *testing.T) {
	svc, err := NewScoringConfigService(nil, nil, nil, ScoringConfig{})
	require.NoError(t, err)

	snapshot, err := svc.Update(context.Background(), models.DefaultScoringWeights())
	require.NoError(t, err)
	assert.Equal(t, ScoringSourceRuntime, snapshot.Source)
}
