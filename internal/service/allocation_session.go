package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/room-allocation-api/internal/dto"
	"github.com/noah-isme/room-allocation-api/internal/models"
)

// allocationArena is the read-only input of one session, loaded before any decision.
type allocationArena struct {
	semester    models.Semester
	demands     []models.Demand
	rooms       []models.Room
	rules       []models.HardRule
	brokenRules []brokenRule
	preferences map[string]models.ProfessorPreference
	professors  map[string]bool
	history     []models.HistoricalAllocation
}

type brokenRule struct {
	record models.HardRuleRecord
	err    error
}

func (b brokenRule) appliesTo(demand models.Demand) bool {
	probe := models.HardRule{
		CourseCode:    strings.TrimSpace(b.record.CourseCode),
		ProfessorName: strings.TrimSpace(b.record.ProfessorName),
	}
	return probe.AppliesTo(demand)
}

type hybridLookup interface {
	IsHybrid(courseCode string) bool
	IsLabDay(courseCode string, day int) bool
	IsClassroomDay(courseCode string, day int) bool
	HistoricalLabRooms(courseCode string, day int) []string
	UsesLabRoomType(courseCode, roomTypeID string) bool
	RoomUsage(roomID string) int
}

type queuedDemand struct {
	demand   models.Demand
	priority int
	rules    []models.HardRule
	prefs    []models.ProfessorPreference
}

// allocationSession owns the state of one run; it is never shared across runs.
type allocationSession struct {
	runID         string
	semesterID    string
	arena         *allocationArena
	scorer        *CompatibilityScorer
	detector      hybridLookup
	index         *ConflictIndex
	recorder      DecisionRecorder
	weights       models.ScoringWeights
	options       ScoringOptions
	maxIterations int
	logger        *zap.Logger
	now           func() time.Time

	historyOccupancy bool
	rows             []models.Allocation
	outcomes         []dto.DemandOutcome
	conflicts        int
	scoringTime      time.Duration
	conflictTime     time.Duration
}

// sessionResult is what a session hands back to the service for persistence.
type sessionResult struct {
	outcomes  []dto.DemandOutcome
	rows      []models.Allocation
	conflicts int
	cancelled bool
	phases    []PhaseCounter
}

func (s *allocationSession) run(ctx context.Context) (*sessionResult, error) {
	if s.recorder == nil {
		s.recorder = nopDecisionRecorder{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.historyOccupancy = s.index.PersistedBookings() == 0

	start := s.now()
	queue := s.prioritize()
	prioritizeTime := s.now().Sub(start)

	result := &sessionResult{}
	for i, item := range queue {
		if ctx.Err() != nil {
			result.cancelled = true
			s.markNotProcessed(queue[i:])
			break
		}
		outcome, err := s.allocateDemand(ctx, item)
		if err != nil {
			return nil, err
		}
		s.outcomes = append(s.outcomes, outcome)
	}

	result.outcomes = s.outcomes
	result.rows = s.rows
	result.conflicts = s.conflicts
	result.phases = []PhaseCounter{
		{Phase: "prioritize", Count: len(queue), Duration: prioritizeTime},
		{Phase: "scoring", Count: len(s.outcomes), Duration: s.scoringTime},
		{Phase: "conflicts", Count: s.conflicts, Duration: s.conflictTime},
	}
	return result, nil
}

// prioritize orders demands by priority, then seats, course, section and id.
func (s *allocationSession) prioritize() []queuedDemand {
	queue := make([]queuedDemand, 0, len(s.arena.demands))
	for _, demand := range s.arena.demands {
		var rules []models.HardRule
		if s.options.IncludeHardRules {
			for _, rule := range s.arena.rules {
				if rule.AppliesTo(demand) {
					rules = append(rules, rule)
				}
			}
		}
		var prefs []models.ProfessorPreference
		if s.options.IncludeSoftPreferences {
			for _, name := range demand.ProfessorNames {
				if pref, ok := s.arena.preferences[normalizeProfessor(name)]; ok {
					prefs = append(prefs, pref)
				}
			}
		}
		queue = append(queue, queuedDemand{
			demand:   demand,
			priority: DemandPriority(demand, rules, s.weights),
			rules:    rules,
			prefs:    prefs,
		})
	}

	sort.SliceStable(queue, func(i, j int) bool {
		a, b := queue[i], queue[j]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if a.demand.SeatCount != b.demand.SeatCount {
			return a.demand.SeatCount > b.demand.SeatCount
		}
		if a.demand.CourseCode != b.demand.CourseCode {
			return a.demand.CourseCode < b.demand.CourseCode
		}
		if a.demand.Section != b.demand.Section {
			return a.demand.Section < b.demand.Section
		}
		return a.demand.ID < b.demand.ID
	})
	return queue
}

func (s *allocationSession) allocateDemand(ctx context.Context, item queuedDemand) (dto.DemandOutcome, error) {
	demand := item.demand
	outcome := dto.DemandOutcome{
		DemandID:     demand.ID,
		CourseCode:   demand.CourseCode,
		Section:      demand.Section,
		ScheduleCode: demand.ScheduleCode,
		Priority:     item.priority,
		Status:       models.DemandPending,
	}
	s.recorder.DemandStarted(demand, item.priority)

	if reason, cause := s.checkReferences(demand); reason != "" {
		return s.skip(outcome, demand, reason, cause), nil
	}

	blocks, err := DecodeSchedule(demand.ScheduleCode)
	if err != nil {
		return s.skip(outcome, demand, models.ReasonMalformedSchedule, err), nil
	}

	rooms := make(map[string]bool)
	allocated := 0
	for _, group := range GroupByDay(blocks) {
		groupOutcome, err := s.placeGroup(ctx, item, group)
		if err != nil {
			return outcome, err
		}
		outcome.Groups = append(outcome.Groups, groupOutcome)
		if !groupOutcome.Allocated {
			if outcome.Reason == "" {
				outcome.Reason = groupOutcome.Reason
			}
			continue
		}
		allocated++
		if !rooms[groupOutcome.RoomID] {
			rooms[groupOutcome.RoomID] = true
			outcome.RoomIDs = append(outcome.RoomIDs, groupOutcome.RoomID)
		}
	}

	switch {
	case allocated == 0:
		outcome.Status = models.DemandUnallocated
	case allocated < len(outcome.Groups):
		outcome.Status = models.DemandPartiallyAllocated
	case len(rooms) > 1:
		outcome.Status = models.DemandSplitAllocated
		outcome.Reason = ""
	default:
		outcome.Status = models.DemandAllocated
		outcome.Reason = ""
	}
	s.recorder.DemandResolved(outcome)
	return outcome, nil
}

// checkReferences returns a skip reason when the demand points at data the arena lacks.
func (s *allocationSession) checkReferences(demand models.Demand) (string, error) {
	if s.options.IncludeHardRules {
		for _, broken := range s.arena.brokenRules {
			if broken.appliesTo(demand) {
				return models.ReasonMissingRule, broken.err
			}
		}
	}
	for _, name := range demand.ProfessorNames {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if !s.arena.professors[normalizeProfessor(name)] {
			return models.ReasonMissingProfessor, nil
		}
	}
	return "", nil
}

func (s *allocationSession) skip(outcome dto.DemandOutcome, demand models.Demand, reason string, cause error) dto.DemandOutcome {
	outcome.Status = models.DemandUnallocated
	outcome.Reason = reason
	s.recorder.DemandSkipped(demand, reason, cause)
	fields := []zap.Field{
		zap.String("run_id", s.runID),
		zap.String("demand_id", demand.ID),
		zap.String("reason", reason),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	s.logger.Warn("demand skipped", fields...)
	return outcome
}

func (s *allocationSession) placeGroup(ctx context.Context, item queuedDemand, group models.BlockGroup) (dto.BlockGroupOutcome, error) {
	demand := item.demand
	groupOutcome := dto.BlockGroupOutcome{Day: group.Day}
	for _, block := range group.Blocks {
		groupOutcome.Blocks = append(groupOutcome.Blocks, block.String())
	}

	scoreStart := s.now()
	decision := BlockGroupDecision{Demand: demand, Group: group}
	var compliant []rankedCandidate
	for i, room := range s.arena.rooms {
		if s.maxIterations > 0 && i >= s.maxIterations {
			break
		}
		breakdown := s.scorer.Score(room, demand, item.rules, item.prefs)
		if !breakdown.Compliant {
			decision.NonCompliant = append(decision.NonCompliant, CandidateDecision{Breakdown: breakdown})
			continue
		}
		compliant = append(compliant, rankedCandidate{
			room:      room,
			breakdown: breakdown,
			tier:      s.hybridTier(demand.CourseCode, group.Day, room),
			occupancy: s.occupancy(room.ID),
		})
	}
	rankCandidates(compliant)
	s.scoringTime += s.now().Sub(scoreStart)

	conflictStart := s.now()
	slots := make([]models.RoomSlot, 0, len(compliant)*len(group.Blocks))
	for _, candidate := range compliant {
		for _, block := range group.Blocks {
			slots = append(slots, models.RoomSlot{RoomID: candidate.room.ID, Day: block.Day, Block: block.Code()})
		}
	}
	// Cancellation is only observed between demands, so an in-flight demand always completes.
	occupied, err := s.index.CheckBatch(context.WithoutCancel(ctx), demand.ID, slots)
	s.conflictTime += s.now().Sub(conflictStart)
	if err != nil {
		return groupOutcome, err
	}

	var chosen *rankedCandidate
	for i := range compliant {
		candidate := &compliant[i]
		var clashes []string
		for _, block := range group.Blocks {
			if occupied[models.RoomSlot{RoomID: candidate.room.ID, Day: block.Day, Block: block.Code()}] {
				clashes = append(clashes, block.String())
			}
		}
		entry := CandidateDecision{Breakdown: candidate.breakdown, Tier: candidate.tier, Occupancy: candidate.occupancy}
		if len(clashes) > 0 {
			if i == 0 {
				s.conflicts++
			}
			entry.Conflicting = clashes
			decision.Conflicting = append(decision.Conflicting, entry)
			continue
		}
		decision.Ranked = append(decision.Ranked, entry)
		if chosen == nil {
			chosen = candidate
		}
	}

	if chosen == nil {
		groupOutcome.Reason = models.ReasonNoCandidate
		if len(compliant) > 0 {
			groupOutcome.Reason = models.ReasonAllConflicting
		}
		decision.Reason = groupOutcome.Reason
		s.recorder.BlockGroupDecided(decision)
		return groupOutcome, nil
	}

	now := s.now().UTC()
	rows := make([]models.Allocation, 0, len(group.Blocks))
	for _, block := range group.Blocks {
		rows = append(rows, models.Allocation{
			ID:         uuid.NewString(),
			RunID:      s.runID,
			SemesterID: s.semesterID,
			DemandID:   demand.ID,
			RoomID:     chosen.room.ID,
			Day:        block.Day,
			Block:      block.Code(),
			CreatedAt:  now,
		})
	}
	if err := s.index.Reserve(rows); err != nil {
		return groupOutcome, err
	}
	s.rows = append(s.rows, rows...)

	decision.ChosenRoomID = chosen.room.ID
	s.recorder.BlockGroupDecided(decision)

	groupOutcome.Allocated = true
	groupOutcome.RoomID = chosen.room.ID
	groupOutcome.RoomName = chosen.room.Name
	groupOutcome.Score = chosen.breakdown.Total
	return groupOutcome, nil
}

// hybridTier ranks rooms matching the historical lab/classroom split of a hybrid course.
func (s *allocationSession) hybridTier(courseCode string, day int, room models.Room) int {
	if s.detector == nil || !s.detector.IsHybrid(courseCode) {
		return 0
	}
	if s.detector.IsLabDay(courseCode, day) {
		for _, id := range s.detector.HistoricalLabRooms(courseCode, day) {
			if id == room.ID {
				return 2
			}
		}
		if s.detector.UsesLabRoomType(courseCode, room.RoomTypeID) {
			return 1
		}
		return 0
	}
	if s.detector.IsClassroomDay(courseCode, day) && room.IsClassroom() {
		return 1
	}
	return 0
}

// occupancy uses the detection semester's usage while the target semester holds no bookings.
func (s *allocationSession) occupancy(roomID string) int {
	count := s.index.Occupancy(roomID)
	if s.historyOccupancy && s.detector != nil {
		count += s.detector.RoomUsage(roomID)
	}
	return count
}

func (s *allocationSession) markNotProcessed(remaining []queuedDemand) {
	for _, item := range remaining {
		s.outcomes = append(s.outcomes, dto.DemandOutcome{
			DemandID:     item.demand.ID,
			CourseCode:   item.demand.CourseCode,
			Section:      item.demand.Section,
			ScheduleCode: item.demand.ScheduleCode,
			Priority:     item.priority,
			Status:       models.DemandUnallocated,
			Reason:       models.ReasonNotProcessed,
		})
	}
}

func normalizeProfessor(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
