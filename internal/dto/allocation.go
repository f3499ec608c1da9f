package dto

import (
	"time"

	"github.com/noah-isme/room-allocation-api/internal/models"
)

// AllocationRunRequest starts an allocation session for one semester.
type AllocationRunRequest struct {
	SemesterID             string `json:"semesterId" validate:"required"`
	IncludeHardRules       *bool  `json:"includeHardRules"`
	IncludeSoftPreferences *bool  `json:"includeSoftPreferences"`
	MaxIterations          int    `json:"maxIterations" validate:"omitempty,min=1"`
	Async                  bool   `json:"async"`
}

// HardRulesEnabled defaults to true when unset.
func (r AllocationRunRequest) HardRulesEnabled() bool {
	return r.IncludeHardRules == nil || *r.IncludeHardRules
}

// SoftPreferencesEnabled defaults to true when unset.
func (r AllocationRunRequest) SoftPreferencesEnabled() bool {
	return r.IncludeSoftPreferences == nil || *r.IncludeSoftPreferences
}

// BlockGroupOutcome reports where one day of a demand landed.
type BlockGroupOutcome struct {
	Day       int      `json:"day"`
	Blocks    []string `json:"blocks"`
	RoomID    string   `json:"roomId,omitempty"`
	RoomName  string   `json:"roomName,omitempty"`
	Score     int      `json:"score,omitempty"`
	Allocated bool     `json:"allocated"`
	Reason    string   `json:"reason,omitempty"`
}

// DemandOutcome is the terminal state of one demand.
type DemandOutcome struct {
	DemandID     string              `json:"demandId"`
	CourseCode   string              `json:"courseCode"`
	Section      string              `json:"section"`
	ScheduleCode string              `json:"scheduleCode"`
	Priority     int                 `json:"priority"`
	Status       models.DemandStatus `json:"status"`
	Reason       string              `json:"reason,omitempty"`
	RoomIDs      []string            `json:"roomIds,omitempty"`
	Groups       []BlockGroupOutcome `json:"groups,omitempty"`
}

// AllocationRunResult is returned once a run stops.
type AllocationRunResult struct {
	RunID                string                      `json:"runId"`
	SemesterID           string                      `json:"semesterId"`
	Status               models.AllocationRunStatus  `json:"status"`
	Success              bool                        `json:"success"`
	AllocationsCompleted int                         `json:"allocationsCompleted"`
	RowsCommitted        int                         `json:"rowsCommitted"`
	ConflictsDetected    int                         `json:"conflictsDetected"`
	UnallocatedCount     int                         `json:"unallocatedCount"`
	StatusCounts         map[models.DemandStatus]int `json:"statusCounts"`
	Outcomes             []DemandOutcome             `json:"outcomes"`
	Duration             time.Duration               `json:"duration"`
	Error                string                      `json:"error,omitempty"`
}

// AllocationRunAccepted is returned for asynchronously submitted runs.
type AllocationRunAccepted struct {
	RunID      string                     `json:"runId"`
	SemesterID string                     `json:"semesterId"`
	Status     models.AllocationRunStatus `json:"status"`
}

// DecodeScheduleRequest previews the codec for one schedule code.
type DecodeScheduleRequest struct {
	Code string `json:"code" validate:"required"`
}

// DecodeScheduleResponse echoes the decoded structure of a schedule code.
type DecodeScheduleResponse struct {
	Code          string               `json:"code"`
	Normalized    string               `json:"normalized"`
	HumanReadable string               `json:"humanReadable"`
	Blocks        []models.AtomicBlock `json:"blocks"`
	Groups        []models.BlockGroup  `json:"groups"`
}

// SemesterAllocationView is a committed allocation with a readable schedule.
type SemesterAllocationView struct {
	models.Allocation
	Schedule string `json:"schedule"`
}

// LogURLResponse carries a signed download link for a decision log.
type LogURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
