package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/room-allocation-api/internal/models"
)

// ScoringProfileRepository persists named scoring weight sets.
type ScoringProfileRepository struct {
	db *sqlx.DB
}

// NewScoringProfileRepository constructs the repository.
func NewScoringProfileRepository(db *sqlx.DB) *ScoringProfileRepository {
	return &ScoringProfileRepository{db: db}
}

// GetByName returns a profile or sql.ErrNoRows.
func (r *ScoringProfileRepository) GetByName(ctx context.Context, name string) (*models.ScoringProfile, error) {
	const query = `SELECT name, capacity, hard_rule, preferred_room, preferred_characteristic, historical_per_allocation,
historical_max_cap, enrollment_divisor, enrollment_cap, specific_room_priority, updated_at
FROM scoring_profiles WHERE name = $1`
	var profile models.ScoringProfile
	if err := r.db.GetContext(ctx, &profile, query, name); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Upsert creates or replaces a profile.
func (r *ScoringProfileRepository) Upsert(ctx context.Context, profile *models.ScoringProfile) error {
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO scoring_profiles (name, capacity, hard_rule, preferred_room, preferred_characteristic, historical_per_allocation,
historical_max_cap, enrollment_divisor, enrollment_cap, specific_room_priority, updated_at)
VALUES (:name, :capacity, :hard_rule, :preferred_room, :preferred_characteristic, :historical_per_allocation,
:historical_max_cap, :enrollment_divisor, :enrollment_cap, :specific_room_priority, :updated_at)
ON CONFLICT (name) DO UPDATE
SET capacity = EXCLUDED.capacity,
    hard_rule = EXCLUDED.hard_rule,
    preferred_room = EXCLUDED.preferred_room,
    preferred_characteristic = EXCLUDED.preferred_characteristic,
    historical_per_allocation = EXCLUDED.historical_per_allocation,
    historical_max_cap = EXCLUDED.historical_max_cap,
    enrollment_divisor = EXCLUDED.enrollment_divisor,
    enrollment_cap = EXCLUDED.enrollment_cap,
    specific_room_priority = EXCLUDED.specific_room_priority,
    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("upsert scoring profile: %w", err)
	}
	return nil
}
