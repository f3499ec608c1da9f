package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/room-allocation-api/internal/models"
)

// ErrSlotTaken is returned when the unique (semester, room, day, block) index rejects a row.
var ErrSlotTaken = errors.New("room slot already allocated")

const (
	defaultInsertChunk = 500
	uniqueViolation    = "23505"
)

// AllocationRepository persists booked atomic blocks. Rows are inserted, never updated.
type AllocationRepository struct {
	db    *sqlx.DB
	chunk int
}

// NewAllocationRepository constructs the repository.
func NewAllocationRepository(db *sqlx.DB) *AllocationRepository {
	return &AllocationRepository{db: db, chunk: defaultInsertChunk}
}

// WithInsertChunk sets how many rows one INSERT statement carries.
func (r *AllocationRepository) WithInsertChunk(n int) *AllocationRepository {
	if n > 0 {
		r.chunk = n
	}
	return r
}

func (r *AllocationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindOccupied returns the subset of slots already booked in the semester and the demand holding each.
func (r *AllocationRepository) FindOccupied(ctx context.Context, semesterID string, slots []models.RoomSlot) ([]models.BookedSlot, error) {
	if len(slots) == 0 {
		return nil, nil
	}
	rooms := make([]string, len(slots))
	days := make([]int64, len(slots))
	blocks := make([]string, len(slots))
	for i, slot := range slots {
		rooms[i] = slot.RoomID
		days[i] = int64(slot.Day)
		blocks[i] = slot.Block
	}

	const query = `SELECT DISTINCT a.room_id, a.day_of_week, a.block, a.demand_id
FROM allocations a
JOIN unnest($2::text[], $3::int[], $4::text[]) AS s(room_id, day_of_week, block)
  ON a.room_id = s.room_id AND a.day_of_week = s.day_of_week AND a.block = s.block
WHERE a.semester_id = $1`
	var occupied []models.BookedSlot
	if err := r.db.SelectContext(ctx, &occupied, query, semesterID, pq.Array(rooms), pq.Array(days), pq.Array(blocks)); err != nil {
		return nil, fmt.Errorf("find occupied slots: %w", err)
	}
	return occupied, nil
}

// ExistsInSemester reports whether the slot is booked, ignoring the allocation excludeID.
func (r *AllocationRepository) ExistsInSemester(ctx context.Context, semesterID string, slot models.RoomSlot, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (
SELECT 1 FROM allocations
WHERE semester_id = $1 AND room_id = $2 AND day_of_week = $3 AND block = $4 AND id <> $5)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, semesterID, slot.RoomID, slot.Day, slot.Block, excludeID); err != nil {
		return false, fmt.Errorf("check allocation slot: %w", err)
	}
	return exists, nil
}

// CountByRoom returns the number of booked blocks per room in the semester.
func (r *AllocationRepository) CountByRoom(ctx context.Context, semesterID string) (map[string]int, error) {
	const query = `SELECT room_id, COUNT(*) AS total FROM allocations WHERE semester_id = $1 GROUP BY room_id`
	var rows []struct {
		RoomID string `db:"room_id"`
		Total  int    `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, semesterID); err != nil {
		return nil, fmt.Errorf("count allocations by room: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.RoomID] = row.Total
	}
	return counts, nil
}

// InsertBatch writes rows in chunks using exec, which is usually the run transaction.
func (r *AllocationRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, rows []models.Allocation) error {
	if len(rows) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
		if rows[i].CreatedAt.IsZero() {
			rows[i].CreatedAt = now
		}
	}

	const query = `INSERT INTO allocations (id, run_id, semester_id, demand_id, room_id, day_of_week, block, created_at)
VALUES (:id, :run_id, :semester_id, :demand_id, :room_id, :day_of_week, :block, :created_at)`
	for start := 0; start < len(rows); start += r.chunk {
		end := start + r.chunk
		if end > len(rows) {
			end = len(rows)
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, rows[start:end]); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return fmt.Errorf("insert allocations: %w", ErrSlotTaken)
			}
			return fmt.Errorf("insert allocations: %w", err)
		}
	}
	return nil
}

// DeleteByDemands removes the semester rows held by the given demands using exec.
func (r *AllocationRepository) DeleteByDemands(ctx context.Context, exec sqlx.ExtContext, semesterID string, demandIDs []string) (int64, error) {
	if len(demandIDs) == 0 {
		return 0, nil
	}
	const query = `DELETE FROM allocations WHERE semester_id = $1 AND demand_id = ANY($2)`
	res, err := r.exec(exec).ExecContext(ctx, query, semesterID, pq.Array(demandIDs))
	if err != nil {
		return 0, fmt.Errorf("delete superseded allocations: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete superseded allocations: %w", err)
	}
	return affected, nil
}

// ListBySemester returns the committed rows of a semester.
func (r *AllocationRepository) ListBySemester(ctx context.Context, semesterID string) ([]models.Allocation, error) {
	const query = `SELECT id, run_id, semester_id, demand_id, room_id, day_of_week, block, created_at
FROM allocations WHERE semester_id = $1 ORDER BY room_id ASC, day_of_week ASC, block ASC`
	var rows []models.Allocation
	if err := r.db.SelectContext(ctx, &rows, query, semesterID); err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	return rows, nil
}

const historyColumns = `SELECT a.semester_id, d.course_code, a.room_id, r.room_type_id, rt.code AS room_type_code, a.day_of_week, a.block
FROM allocations a
JOIN demands d ON d.id = a.demand_id
JOIN rooms r ON r.id = a.room_id
JOIN room_types rt ON rt.id = r.room_type_id`

// ListHistory returns every past booking outside excludeSemesterID.
func (r *AllocationRepository) ListHistory(ctx context.Context, excludeSemesterID string) ([]models.HistoricalAllocation, error) {
	query := historyColumns + ` WHERE a.semester_id <> $1`
	var rows []models.HistoricalAllocation
	if err := r.db.SelectContext(ctx, &rows, query, excludeSemesterID); err != nil {
		return nil, fmt.Errorf("list allocation history: %w", err)
	}
	return rows, nil
}

// ListHistoryBySemester returns the bookings of one semester joined with course and room type.
func (r *AllocationRepository) ListHistoryBySemester(ctx context.Context, semesterID string) ([]models.HistoricalAllocation, error) {
	query := historyColumns + ` WHERE a.semester_id = $1 ORDER BY d.course_code ASC, a.day_of_week ASC, a.block ASC`
	var rows []models.HistoricalAllocation
	if err := r.db.SelectContext(ctx, &rows, query, semesterID); err != nil {
		return nil, fmt.Errorf("list semester allocation history: %w", err)
	}
	return rows, nil
}
