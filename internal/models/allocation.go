package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Allocation is one booked atomic block. Rows are never updated; a later run replaces them.
type Allocation struct {
	ID         string    `db:"id" json:"id"`
	RunID      string    `db:"run_id" json:"run_id"`
	SemesterID string    `db:"semester_id" json:"semester_id"`
	DemandID   string    `db:"demand_id" json:"demand_id"`
	RoomID     string    `db:"room_id" json:"room_id"`
	Day        int       `db:"day_of_week" json:"day"`
	Block      string    `db:"block" json:"block"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Slot returns the conflict key of the row.
func (a Allocation) Slot() RoomSlot {
	return RoomSlot{RoomID: a.RoomID, Day: a.Day, Block: a.Block}
}

// HistoricalAllocation is a past booking joined with its course and room type.
type HistoricalAllocation struct {
	SemesterID   string `db:"semester_id" json:"semester_id"`
	CourseCode   string `db:"course_code" json:"course_code"`
	RoomID       string `db:"room_id" json:"room_id"`
	RoomTypeID   string `db:"room_type_id" json:"room_type_id"`
	RoomTypeCode string `db:"room_type_code" json:"room_type_code"`
	Day          int    `db:"day_of_week" json:"day"`
	Block        string `db:"block" json:"block"`
}

// HybridDisciplineInfo describes a course historically split between labs and classrooms.
type HybridDisciplineInfo struct {
	CourseCode          string          `json:"course_code"`
	LabDays             map[int]bool    `json:"lab_days"`
	ClassroomDays       map[int]bool    `json:"classroom_days"`
	LabRoomTypes        map[string]bool `json:"lab_room_types"`
	DetectionSemesterID string          `json:"detection_semester_id"`
}

// AllocationRunStatus tracks the lifecycle of an allocation run.
type AllocationRunStatus string

const (
	AllocationRunQueued    AllocationRunStatus = "QUEUED"
	AllocationRunRunning   AllocationRunStatus = "RUNNING"
	AllocationRunCompleted AllocationRunStatus = "COMPLETED"
	AllocationRunCancelled AllocationRunStatus = "CANCELLED"
	AllocationRunFailed    AllocationRunStatus = "FAILED"
)

// AllocationRun is the persisted record of one allocation session.
type AllocationRun struct {
	ID         string              `db:"id" json:"id"`
	SemesterID string              `db:"semester_id" json:"semester_id"`
	Status     AllocationRunStatus `db:"status" json:"status"`
	Options    types.JSONText      `db:"options" json:"options"`
	Summary    types.JSONText      `db:"summary" json:"summary"`
	LogPath    *string             `db:"log_path" json:"log_path,omitempty"`
	Error      *string             `db:"error" json:"error,omitempty"`
	StartedAt  time.Time           `db:"started_at" json:"started_at"`
	FinishedAt *time.Time          `db:"finished_at" json:"finished_at,omitempty"`
}

// Terminal reports whether the run has stopped.
func (r AllocationRun) Terminal() bool {
	switch r.Status {
	case AllocationRunCompleted, AllocationRunCancelled, AllocationRunFailed:
		return true
	}
	return false
}

// ExportFormat enumerates the renderings of a run's outcome table.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)
