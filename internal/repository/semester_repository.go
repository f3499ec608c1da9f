package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/room-allocation-api/internal/models"
)

// SemesterRepository reads academic periods.
type SemesterRepository struct {
	db *sqlx.DB
}

// NewSemesterRepository constructs the repository.
func NewSemesterRepository(db *sqlx.DB) *SemesterRepository {
	return &SemesterRepository{db: db}
}

// FindByID returns a semester or sql.ErrNoRows.
func (r *SemesterRepository) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	const query = `SELECT id, code, starts_on FROM semesters WHERE id = $1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, id); err != nil {
		return nil, err
	}
	return &semester, nil
}

// ListWithAllocations returns the semesters holding at least one allocation, most recent first.
func (r *SemesterRepository) ListWithAllocations(ctx context.Context) ([]models.Semester, error) {
	const query = `SELECT s.id, s.code, s.starts_on FROM semesters s
WHERE EXISTS (SELECT 1 FROM allocations a WHERE a.semester_id = s.id)
ORDER BY s.starts_on DESC, s.code DESC`
	var semesters []models.Semester
	if err := r.db.SelectContext(ctx, &semesters, query); err != nil {
		return nil, err
	}
	return semesters, nil
}
