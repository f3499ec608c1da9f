package service

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/room-allocation-api/internal/models"
	appErrors "github.com/noah-isme/room-allocation-api/pkg/errors"
)

// allocationLedger is the persisted source of truth for booked (room, day, block) triples.
type allocationLedger interface {
	FindOccupied(ctx context.Context, semesterID string, slots []models.RoomSlot) ([]models.BookedSlot, error)
	ExistsInSemester(ctx context.Context, semesterID string, slot models.RoomSlot, excludeID string) (bool, error)
	CountByRoom(ctx context.Context, semesterID string) (map[string]int, error)
}

// ConflictIndex answers occupancy questions for one semester. Persisted rows are read through
// the ledger; rows reserved by the running session are overlaid in memory until commit.
// A persisted row never conflicts with the demand that holds it; the run replaces that
// demand's rows on commit.
type ConflictIndex struct {
	ledger     allocationLedger
	semesterID string
	metrics    *MetricsService

	mu        sync.Mutex
	reserved  map[models.RoomSlot]string
	persisted map[models.RoomSlot]string
	occupancy map[string]int
	primed    int
}

// NewConflictIndex builds an index scoped to the target semester.
func NewConflictIndex(ledger allocationLedger, semesterID string, metrics *MetricsService) *ConflictIndex {
	return &ConflictIndex{
		ledger:     ledger,
		semesterID: semesterID,
		metrics:    metrics,
		reserved:   make(map[models.RoomSlot]string),
		persisted:  make(map[models.RoomSlot]string),
		occupancy:  make(map[string]int),
	}
}

// Prime loads the per-room booking counts of the target semester.
func (c *ConflictIndex) Prime(ctx context.Context) error {
	start := time.Now()
	counts, err := c.ledger.CountByRoom(ctx, c.semesterID)
	c.metrics.ObserveDBQuery("conflict_prime", time.Since(start))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrConflictIndexUnavailable.Code, appErrors.ErrConflictIndexUnavailable.Status, "failed to load room occupancy")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primed = 0
	for roomID, count := range counts {
		c.occupancy[roomID] += count
		c.primed += count
	}
	return nil
}

// PersistedBookings reports how many rows the semester held when the index was primed.
func (c *ConflictIndex) PersistedBookings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.primed
}

// HasConflict reports whether the room is booked at (day, block) in the given semester,
// ignoring the row identified by excludeID.
func (c *ConflictIndex) HasConflict(ctx context.Context, roomID string, day int, block, semesterID, excludeID string) (bool, error) {
	slot := models.RoomSlot{RoomID: roomID, Day: day, Block: block}
	if semesterID == c.semesterID {
		c.mu.Lock()
		owner, reserved := c.reserved[slot]
		c.mu.Unlock()
		if reserved && owner != excludeID {
			return true, nil
		}
	}

	start := time.Now()
	exists, err := c.ledger.ExistsInSemester(ctx, semesterID, slot, excludeID)
	c.metrics.ObserveDBQuery("conflict_exists", time.Since(start))
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrConflictIndexUnavailable.Code, appErrors.ErrConflictIndexUnavailable.Status, "failed to check room conflict")
	}
	return exists, nil
}

// CheckBatch answers every triple for demandID in one round trip and returns the occupied subset.
// Answers already fetched during the session are served from memory.
func (c *ConflictIndex) CheckBatch(ctx context.Context, demandID string, slots []models.RoomSlot) (map[models.RoomSlot]bool, error) {
	occupied := make(map[models.RoomSlot]bool)
	var unknown []models.RoomSlot

	c.mu.Lock()
	for _, slot := range slots {
		if _, ok := c.reserved[slot]; ok {
			occupied[slot] = true
			continue
		}
		owner, ok := c.persisted[slot]
		if !ok {
			unknown = append(unknown, slot)
			continue
		}
		if owner != "" && owner != demandID {
			occupied[slot] = true
		}
	}
	c.mu.Unlock()

	if len(unknown) == 0 {
		return occupied, nil
	}

	start := time.Now()
	found, err := c.ledger.FindOccupied(ctx, c.semesterID, unknown)
	c.metrics.ObserveDBQuery("conflict_batch", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflictIndexUnavailable.Code, appErrors.ErrConflictIndexUnavailable.Status, "failed to check room conflicts")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, slot := range unknown {
		c.persisted[slot] = ""
	}
	for _, booked := range found {
		c.persisted[booked.RoomSlot] = booked.DemandID
		if booked.DemandID != demandID {
			occupied[booked.RoomSlot] = true
		}
	}
	return occupied, nil
}

// Reserve records rows booked by the session. It refuses any triple that is already taken.
func (c *ConflictIndex) Reserve(rows []models.Allocation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, row := range rows {
		slot := row.Slot()
		if owner, ok := c.reserved[slot]; ok {
			return appErrors.Clone(appErrors.ErrConflict, "room "+slot.RoomID+" already reserved at "+slot.Block+" by "+owner)
		}
		if owner := c.persisted[slot]; owner != "" && owner != row.DemandID {
			return appErrors.Clone(appErrors.ErrConflict, "room "+slot.RoomID+" already booked at "+slot.Block)
		}
	}
	for _, row := range rows {
		c.reserved[row.Slot()] = row.ID
		c.occupancy[row.RoomID]++
	}
	return nil
}

// Occupancy returns the number of bookings the room carries in the target semester,
// including rows reserved by the session.
func (c *ConflictIndex) Occupancy(roomID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.occupancy[roomID]
}
