package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/room-allocation-api/internal/dto"
	"github.com/noah-isme/room-allocation-api/internal/models"
)

func TestTextDecisionRecorderRendersRun(t *testing.T) {
	rec := NewTextDecisionRecorder()
	d := demand("dem-1", "CS101", 30, "2M12", "Ada Lovelace")

	rec.RunStarted(RunHeader{
		RunID:         "run-1",
		SemesterID:    "sem-1",
		Weights:       models.DefaultScoringWeights(),
		Options:       allOptions(),
		MaxIterations: 10,
		DemandCount:   1,
		RoomCount:     2,
		StartedAt:     time.Date(2025, 2, 3, 8, 0, 0, 0, time.UTC),
	})
	rec.DemandStarted(d, 3)
	rec.BlockGroupDecided(BlockGroupDecision{
		Demand: d,
		Group: models.BlockGroup{Day: 2, Blocks: []models.AtomicBlock{
			{Day: 2, Shift: models.ShiftMorning, Slot: 1},
			{Day: 2, Shift: models.ShiftMorning, Slot: 2},
		}},
		Ranked: []CandidateDecision{
			{Breakdown: models.ScoringBreakdown{RoomID: "room-b", RoomName: "B-201", Total: 12, CapacityPoints: 4}},
		},
		Conflicting: []CandidateDecision{
			{Breakdown: models.ScoringBreakdown{RoomID: "room-a", RoomName: "A-101", Total: 16}, Conflicting: []string{"2M1"}},
		},
		NonCompliant: []CandidateDecision{
			{Breakdown: models.ScoringBreakdown{RoomID: "lab-1", RoomName: "LAB-1", ViolatedRules: []string{"needs projector"}}},
		},
		ChosenRoomID: "room-b",
	})
	rec.DemandResolved(dto.DemandOutcome{DemandID: "dem-1", Status: models.DemandAllocated, RoomIDs: []string{"room-b"}})
	rec.RunFinished(RunSummary{
		Status:            models.AllocationRunCompleted,
		StatusCounts:      map[models.DemandStatus]int{models.DemandAllocated: 1},
		RowsCommitted:     2,
		ConflictsDetected: 1,
		Phases:            []PhaseCounter{{Phase: "allocate", Count: 1, Duration: 5 * time.Millisecond}},
		Duration:          8 * time.Millisecond,
	})

	out := rec.String()
	assert.Contains(t, out, "=== allocation run run-1 ===")
	assert.Contains(t, out, "started at: 2025-02-03T08:00:00Z")
	assert.Contains(t, out, "max_iterations=10")
	assert.Contains(t, out, "hybrid detection: no historical semester available")
	assert.Contains(t, out, "--- demand CS101-A (dem-1) priority=3 ---")
	assert.Contains(t, out, "day 2 [2M1 2M2]")
	assert.Contains(t, out, "* 1. B-201 (room-b) total=12")
	assert.Contains(t, out, "A-101 (room-a) total=16")
	assert.Contains(t, out, "conflicts at 2M1")
	assert.Contains(t, out, "LAB-1 (lab-1) violates needs projector")
	assert.Contains(t, out, "=> booked room-b")
	assert.Contains(t, out, "status: ALLOCATED rooms: room-b")
	assert.Contains(t, out, "rows committed: 2")
	assert.Contains(t, out, "conflicts detected: 1")
	assert.NotContains(t, out, "error:")
	assert.Equal(t, out, string(rec.Bytes()))
}

func TestTextDecisionRecorderSkipsAndFailures(t *testing.T) {
	rec := NewTextDecisionRecorder()
	d := demand("dem-9", "BIO1", 20, "9X9")

	rec.DemandStarted(d, 2)
	rec.DemandSkipped(d, "malformed schedule code", errors.New("unknown day 9"))
	rec.BlockGroupDecided(BlockGroupDecision{Demand: d, Group: models.BlockGroup{Day: 3}, Reason: "no compliant room"})
	rec.RunFinished(RunSummary{Status: models.AllocationRunFailed, Error: "database unavailable"})

	out := rec.String()
	assert.Contains(t, out, "skipped: malformed schedule code (unknown day 9)")
	assert.Contains(t, out, "=> unallocated: no compliant room")
	assert.Contains(t, out, "status: FAILED")
	assert.Contains(t, out, "error: database unavailable")
}
