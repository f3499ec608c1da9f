package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/room-allocation-api/internal/models"
)

// DemandRepository reads course section demands.
type DemandRepository struct {
	db *sqlx.DB
}

// NewDemandRepository constructs the repository.
func NewDemandRepository(db *sqlx.DB) *DemandRepository {
	return &DemandRepository{db: db}
}

// ListBySemester returns the demands of a semester in a stable order.
func (r *DemandRepository) ListBySemester(ctx context.Context, semesterID string) ([]models.Demand, error) {
	const query = `SELECT id, semester_id, course_code, course_name, section, professor_names, seat_count, schedule_code, created_at
FROM demands WHERE semester_id = $1 ORDER BY course_code ASC, section ASC, id ASC`
	var demands []models.Demand
	if err := r.db.SelectContext(ctx, &demands, query, semesterID); err != nil {
		return nil, fmt.Errorf("list demands: %w", err)
	}
	return demands, nil
}
