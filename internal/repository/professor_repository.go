package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/room-allocation-api/internal/models"
)

// ProfessorRepository reads the professor directory and their room preferences.
type ProfessorRepository struct {
	db *sqlx.DB
}

// NewProfessorRepository constructs the repository.
func NewProfessorRepository(db *sqlx.DB) *ProfessorRepository {
	return &ProfessorRepository{db: db}
}

// ListAll returns every professor.
func (r *ProfessorRepository) ListAll(ctx context.Context) ([]models.Professor, error) {
	const query = `SELECT id, name FROM professors ORDER BY name ASC`
	var professors []models.Professor
	if err := r.db.SelectContext(ctx, &professors, query); err != nil {
		return nil, fmt.Errorf("list professors: %w", err)
	}
	return professors, nil
}

// ProfessorPreferenceRepository reads soft room preferences.
type ProfessorPreferenceRepository struct {
	db *sqlx.DB
}

// NewProfessorPreferenceRepository constructs the repository.
func NewProfessorPreferenceRepository(db *sqlx.DB) *ProfessorPreferenceRepository {
	return &ProfessorPreferenceRepository{db: db}
}

// ListAll returns every preference row.
func (r *ProfessorPreferenceRepository) ListAll(ctx context.Context) ([]models.ProfessorPreferenceRecord, error) {
	const query = `SELECT id, professor_name, kind, target FROM professor_preferences ORDER BY professor_name ASC, id ASC`
	var prefs []models.ProfessorPreferenceRecord
	if err := r.db.SelectContext(ctx, &prefs, query); err != nil {
		return nil, fmt.Errorf("list professor preferences: %w", err)
	}
	return prefs, nil
}
