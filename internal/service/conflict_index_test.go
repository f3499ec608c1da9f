package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/room-allocation-api/internal/models"
	appErrors "github.com/noah-isme/room-allocation-api/pkg/errors"
)

type countingLedger struct {
	*memoryAllocationStore
	lookups int
}

func (c *countingLedger) FindOccupied(ctx context.Context, semesterID string, slots []models.RoomSlot) ([]models.BookedSlot, error) {
	c.lookups++
	return c.memoryAllocationStore.FindOccupied(ctx, semesterID, slots)
}

func TestConflictIndexCheckBatchCachesPersistedAnswers(t *testing.T) {
	ledger := &countingLedger{memoryAllocationStore: &memoryAllocationStore{rows: []models.Allocation{booked("old-1", "room-a", 2, "M1")}}}
	index := NewConflictIndex(ledger, "sem-1", nil)
	require.NoError(t, index.Prime(context.Background()))
	assert.Equal(t, 1, index.PersistedBookings())
	assert.Equal(t, 1, index.Occupancy("room-a"))

	slots := []models.RoomSlot{{RoomID: "room-a", Day: 2, Block: "M1"}, {RoomID: "room-a", Day: 2, Block: "M2"}}
	occupied, err := index.CheckBatch(context.Background(), "dem-1", slots)
	require.NoError(t, err)
	assert.Equal(t, map[models.RoomSlot]bool{slots[0]: true}, occupied)

	occupied, err = index.CheckBatch(context.Background(), "dem-1", slots)
	require.NoError(t, err)
	assert.True(t, occupied[slots[0]])
	assert.Equal(t, 1, ledger.lookups)
}

func TestConflictIndexReserveOverlaysSessionRows(t *testing.T) {
	index := NewConflictIndex(&memoryAllocationStore{}, "sem-1", nil)
	row := models.Allocation{ID: "new-1", SemesterID: "sem-1", RoomID: "room-a", Day: 3, Block: "T1"}
	require.NoError(t, index.Reserve([]models.Allocation{row}))
	assert.Equal(t, 1, index.Occupancy("room-a"))

	occupied, err := index.CheckBatch(context.Background(), "dem-1", []models.RoomSlot{row.Slot()})
	require.NoError(t, err)
	assert.True(t, occupied[row.Slot()])

	conflict, err := index.HasConflict(context.Background(), "room-a", 3, "T1", "sem-1", "")
	require.NoError(t, err)
	assert.True(t, conflict)

	conflict, err = index.HasConflict(context.Background(), "room-a", 3, "T1", "sem-1", "new-1")
	require.NoError(t, err)
	assert.False(t, conflict, "the excluded row does not conflict with itself")

	err = index.Reserve([]models.Allocation{{ID: "new-2", SemesterID: "sem-1", RoomID: "room-a", Day: 3, Block: "T1"}})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestConflictIndexReserveRejectsPersistedSlot(t *testing.T) {
	store := &memoryAllocationStore{rows: []models.Allocation{booked("old-1", "room-a", 2, "M1")}}
	index := NewConflictIndex(store, "sem-1", nil)
	_, err := index.CheckBatch(context.Background(), "dem-1", []models.RoomSlot{{RoomID: "room-a", Day: 2, Block: "M1"}})
	require.NoError(t, err)

	err = index.Reserve([]models.Allocation{{ID: "new-1", RoomID: "room-a", Day: 2, Block: "M1"}})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestConflictIndexIgnoresRowsOfTheSameDemand(t *testing.T) {
	store := &memoryAllocationStore{rows: []models.Allocation{booked("old-1", "room-a", 2, "M1")}}
	index := NewConflictIndex(store, "sem-1", nil)
	slot := models.RoomSlot{RoomID: "room-a", Day: 2, Block: "M1"}

	occupied, err := index.CheckBatch(context.Background(), "dem-old", []models.RoomSlot{slot})
	require.NoError(t, err)
	assert.False(t, occupied[slot], "a demand may keep its own previous room")

	occupied, err = index.CheckBatch(context.Background(), "dem-2", []models.RoomSlot{slot})
	require.NoError(t, err)
	assert.True(t, occupied[slot])

	require.NoError(t, index.Reserve([]models.Allocation{{ID: "new-1", SemesterID: "sem-1", DemandID: "dem-old", RoomID: "room-a", Day: 2, Block: "M1"}}))
	occupied, err = index.CheckBatch(context.Background(), "dem-3", []models.RoomSlot{slot})
	require.NoError(t, err)
	assert.True(t, occupied[slot])
}

func TestConflictIndexHasConflictOtherSemester(t *testing.T) {
	store := &memoryAllocationStore{rows: []models.Allocation{{ID: "old-1", SemesterID: "sem-0", RoomID: "room-a", Day: 2, Block: "M1"}}}
	index := NewConflictIndex(store, "sem-1", nil)

	conflict, err := index.HasConflict(context.Background(), "room-a", 2, "M1", "sem-0", "")
	require.NoError(t, err)
	assert.True(t, conflict)

	conflict, err = index.HasConflict(context.Background(), "room-a", 2, "M1", "sem-1", "")
	require.NoError(t, err)
	assert.False(t, conflict)
}

func TestConflictIndexWrapsLedgerErrors(t *testing.T) {
	index := NewConflictIndex(&memoryAllocationStore{lookupErr: errors.New("broken pipe")}, "sem-1", nil)

	_, err := index.CheckBatch(context.Background(), "dem-1", []models.RoomSlot{{RoomID: "room-a", Day: 2, Block: "M1"}})
	assert.ErrorIs(t, err, appErrors.ErrConflictIndexUnavailable)
}
