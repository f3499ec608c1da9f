package service

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/room-allocation-api/internal/dto"
	"github.com/noah-isme/room-allocation-api/internal/models"
)

// RunHeader opens a decision log.
type RunHeader struct {
	RunID               string
	SemesterID          string
	DetectionSemesterID string
	HybridCourses       []string
	Weights             models.ScoringWeights
	Options             ScoringOptions
	MaxIterations       int
	DemandCount         int
	RoomCount           int
	StartedAt           time.Time
}

// CandidateDecision is one room considered for a block group.
type CandidateDecision struct {
	Breakdown   models.ScoringBreakdown
	Tier        int
	Occupancy   int
	Conflicting []string
}

// BlockGroupDecision captures the full ranking behind one block group placement.
type BlockGroupDecision struct {
	Demand       models.Demand
	Group        models.BlockGroup
	Ranked       []CandidateDecision
	Conflicting  []CandidateDecision
	NonCompliant []CandidateDecision
	ChosenRoomID string
	Reason       string
}

// PhaseCounter is a named step of the run with its duration.
type PhaseCounter struct {
	Phase    string
	Count    int
	Duration time.Duration
}

// RunSummary closes a decision log.
type RunSummary struct {
	Status            models.AllocationRunStatus
	StatusCounts      map[models.DemandStatus]int
	RowsCommitted     int
	ConflictsDetected int
	Phases            []PhaseCounter
	Duration          time.Duration
	Error             string
}

// DecisionRecorder receives structured events while a run progresses.
type DecisionRecorder interface {
	RunStarted(header RunHeader)
	DemandStarted(demand models.Demand, priority int)
	BlockGroupDecided(decision BlockGroupDecision)
	DemandSkipped(demand models.Demand, reason string, cause error)
	DemandResolved(outcome dto.DemandOutcome)
	RunFinished(summary RunSummary)
}

// TextDecisionRecorder renders events into a human-readable audit log.
type TextDecisionRecorder struct {
	mu  sync.Mutex
	buf strings.Builder
}

// NewTextDecisionRecorder constructs an empty recorder.
func NewTextDecisionRecorder() *TextDecisionRecorder {
	return &TextDecisionRecorder{}
}

func (r *TextDecisionRecorder) printf(format string, args ...interface{}) {
	fmt.Fprintf(&r.buf, format, args...)
}

// RunStarted writes the header with the weights in force.
func (r *TextDecisionRecorder) RunStarted(h RunHeader) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.printf("=== allocation run %s ===\n", h.RunID)
	r.printf("semester: %s\n", h.SemesterID)
	r.printf("started at: %s\n", h.StartedAt.UTC().Format(time.RFC3339))
	r.printf("demands: %d  rooms: %d\n", h.DemandCount, h.RoomCount)
	r.printf("options: hard_rules=%t soft_preferences=%t", h.Options.IncludeHardRules, h.Options.IncludeSoftPreferences)
	if h.MaxIterations > 0 {
		r.printf(" max_iterations=%d", h.MaxIterations)
	}
	r.printf("\n")
	w := h.Weights
	r.printf("weights: capacity=%d hard_rule=%d preferred_room=%d preferred_characteristic=%d\n",
		w.Capacity, w.HardRule, w.PreferredRoom, w.PreferredCharacteristic)
	r.printf("         historical_per_allocation=%d historical_max_cap=%d\n", w.HistoricalPerAllocation, w.HistoricalMaxCap)
	r.printf("         enrollment_divisor=%d enrollment_cap=%d specific_room_priority=%d\n",
		w.EnrollmentDivisor, w.EnrollmentCap, w.SpecificRoomPriority)
	if h.DetectionSemesterID == "" {
		r.printf("hybrid detection: no historical semester available\n")
	} else {
		r.printf("hybrid detection semester: %s\n", h.DetectionSemesterID)
		r.printf("hybrid courses: %s\n", joinOrDash(h.HybridCourses))
	}
	r.printf("\n")
}

// DemandStarted opens the section of one demand.
func (r *TextDecisionRecorder) DemandStarted(demand models.Demand, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.printf("--- demand %s (%s) priority=%d ---\n", demand.Label(), demand.ID, priority)
	r.printf("schedule: %s [%s]  seats: %d  professors: %s\n",
		demand.ScheduleCode, HumanReadableSchedule(demand.ScheduleCode), demand.SeatCount, joinOrDash(demand.ProfessorNames))
}

// BlockGroupDecided lists the full ranking for one day.
func (r *TextDecisionRecorder) BlockGroupDecided(d BlockGroupDecision) {
	r.mu.Lock()
	defer r.mu.Unlock()

	blocks := make([]string, 0, len(d.Group.Blocks))
	for _, b := range d.Group.Blocks {
		blocks = append(blocks, b.String())
	}
	r.printf("  day %d [%s]\n", d.Group.Day, strings.Join(blocks, " "))
	for i, c := range d.Ranked {
		marker := " "
		if c.Breakdown.RoomID == d.ChosenRoomID {
			marker = "*"
		}
		r.printf("   %s%2d. %s\n", marker, i+1, formatCandidate(c))
	}
	for _, c := range d.Conflicting {
		r.printf("     x  %s conflicts at %s\n", formatCandidate(c), strings.Join(c.Conflicting, " "))
	}
	for _, c := range d.NonCompliant {
		r.printf("     -  %s (%s) violates %s\n", c.Breakdown.RoomName, c.Breakdown.RoomID, strings.Join(c.Breakdown.ViolatedRules, ", "))
	}
	if d.ChosenRoomID == "" {
		r.printf("  => unallocated: %s\n", d.Reason)
		return
	}
	r.printf("  => booked %s\n", d.ChosenRoomID)
}

// DemandSkipped records a demand rejected before scoring.
func (r *TextDecisionRecorder) DemandSkipped(demand models.Demand, reason string, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cause != nil {
		r.printf("  skipped: %s (%v)\n\n", reason, cause)
		return
	}
	r.printf("  skipped: %s\n\n", reason)
}

// DemandResolved closes the section of one demand.
func (r *TextDecisionRecorder) DemandResolved(outcome dto.DemandOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.printf("  status: %s", outcome.Status)
	if len(outcome.RoomIDs) > 0 {
		r.printf(" rooms: %s", strings.Join(outcome.RoomIDs, ", "))
	}
	if outcome.Reason != "" {
		r.printf(" reason: %s", outcome.Reason)
	}
	r.printf("\n\n")
}

// RunFinished writes the summary with per-status and per-phase counters.
func (r *TextDecisionRecorder) RunFinished(s RunSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.printf("=== summary ===\n")
	r.printf("status: %s\n", s.Status)
	statuses := make([]string, 0, len(s.StatusCounts))
	for status := range s.StatusCounts {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		r.printf("  %-20s %d\n", status, s.StatusCounts[models.DemandStatus(status)])
	}
	r.printf("rows committed: %d\n", s.RowsCommitted)
	r.printf("conflicts detected: %d\n", s.ConflictsDetected)
	for _, phase := range s.Phases {
		r.printf("phase %-12s count=%-6d duration=%s\n", phase.Phase, phase.Count, phase.Duration.Round(time.Millisecond))
	}
	r.printf("duration: %s\n", s.Duration.Round(time.Millisecond))
	if s.Error != "" {
		r.printf("error: %s\n", s.Error)
	}
}

// String returns the rendered log.
func (r *TextDecisionRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

// Bytes returns the rendered log as bytes.
func (r *TextDecisionRecorder) Bytes() []byte {
	return []byte(r.String())
}

func formatCandidate(c CandidateDecision) string {
	b := c.Breakdown
	return fmt.Sprintf("%s (%s) total=%d capacity=%d hard=%d pref_room=%d pref_char=%d history=%d/%d tier=%d occupancy=%d",
		b.RoomName, b.RoomID, b.Total, b.CapacityPoints, b.HardRulePoints, b.PreferredRoomPoints,
		b.PreferredCharacteristicPoints, b.HistoricalFrequencyPoints, b.HistoricalCount, c.Tier, c.Occupancy)
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

type nopDecisionRecorder struct{}

func (nopDecisionRecorder) RunStarted(RunHeader) {}
func (nopDecisionRecorder) DemandStarted(models.Demand, int) {}
func (nopDecisionRecorder) BlockGroupDecided(BlockGroupDecision) {}
func (nopDecisionRecorder) DemandSkipped(models.Demand, string, error) {}
func (nopDecisionRecorder) DemandResolved(dto.DemandOutcome) {}
func (nopDecisionRecorder) RunFinished(RunSummary) {}
