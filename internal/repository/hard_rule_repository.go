package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/room-allocation-api/internal/models"
)

// HardRuleRepository reads stored hard rules.
type HardRuleRepository struct {
	db *sqlx.DB
}

// NewHardRuleRepository constructs the repository.
func NewHardRuleRepository(db *sqlx.DB) *HardRuleRepository {
	return &HardRuleRepository{db: db}
}

// ListActive returns enabled rules. Payloads are parsed by the caller.
func (r *HardRuleRepository) ListActive(ctx context.Context) ([]models.HardRuleRecord, error) {
	const query = `SELECT id, name, COALESCE(course_code, '') AS course_code, COALESCE(professor_name, '') AS professor_name, kind, config
FROM hard_rules WHERE active = TRUE ORDER BY id ASC`
	var rules []models.HardRuleRecord
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("list hard rules: %w", err)
	}
	return rules, nil
}
