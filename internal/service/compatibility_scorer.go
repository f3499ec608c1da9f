package service

import (
	"sort"
	"strings"

	"github.com/noah-isme/room-allocation-api/internal/models"
)

// ScoringOptions toggles the optional scoring components of a run.
type ScoringOptions struct {
	IncludeHardRules       bool `json:"includeHardRules"`
	IncludeSoftPreferences bool `json:"includeSoftPreferences"`
}

type historyCounter interface {
	Count(courseCode, roomID string) int
}

// HistoryIndex counts prior bookings per (course, room) across semesters other than the target.
type HistoryIndex struct {
	counts map[string]map[string]int
}

// NewHistoryIndex builds the index, skipping rows of the excluded semester.
func NewHistoryIndex(records []models.HistoricalAllocation, excludeSemesterID string) *HistoryIndex {
	counts := make(map[string]map[string]int)
	for _, record := range records {
		if record.SemesterID == excludeSemesterID {
			continue
		}
		course := courseKey(record.CourseCode)
		rooms, ok := counts[course]
		if !ok {
			rooms = make(map[string]int)
			counts[course] = rooms
		}
		rooms[record.RoomID]++
	}
	return &HistoryIndex{counts: counts}
}

// Count returns how many prior bookings the course had in the room.
func (h *HistoryIndex) Count(courseCode, roomID string) int {
	if h == nil {
		return 0
	}
	return h.counts[courseKey(courseCode)][roomID]
}

// CompatibilityScorer computes the deterministic (room, demand) score.
type CompatibilityScorer struct {
	weights models.ScoringWeights
	history historyCounter
	options ScoringOptions
}

// NewCompatibilityScorer constructs a scorer bound to one weight snapshot.
func NewCompatibilityScorer(weights models.ScoringWeights, history historyCounter, options ScoringOptions) *CompatibilityScorer {
	return &CompatibilityScorer{weights: weights, history: history, options: options}
}

// Score evaluates the room for the demand. A single unmet hard rule makes the room
// non-compliant and zeroes every component except capacity.
func (s *CompatibilityScorer) Score(room models.Room, demand models.Demand, rules []models.HardRule, prefs []models.ProfessorPreference) models.ScoringBreakdown {
	breakdown := models.ScoringBreakdown{
		RoomID:    room.ID,
		RoomName:  room.Name,
		Compliant: true,
	}
	if room.Capacity >= demand.SeatCount {
		breakdown.CapacityPoints = s.weights.Capacity
	}

	if s.options.IncludeHardRules {
		for _, rule := range rules {
			if !rule.AppliesTo(demand) {
				continue
			}
			if rule.Requirement != nil && rule.Requirement.SatisfiedBy(room) {
				breakdown.HardRulePoints += s.weights.HardRule
				breakdown.SatisfiedRules = append(breakdown.SatisfiedRules, rule.Name)
				continue
			}
			breakdown.Compliant = false
			breakdown.ViolatedRules = append(breakdown.ViolatedRules, rule.Name)
		}
	}
	if !breakdown.Compliant {
		breakdown.HardRulePoints = 0
		breakdown.Total = breakdown.CapacityPoints
		return breakdown
	}

	if s.options.IncludeSoftPreferences {
		breakdown.PreferredRoomPoints = s.preferredRoomPoints(room, prefs)
		breakdown.PreferredCharacteristicPoints = s.preferredCharacteristicPoints(room, prefs)
	}

	if s.history != nil {
		breakdown.HistoricalCount = s.history.Count(demand.CourseCode, room.ID)
		points := breakdown.HistoricalCount * s.weights.HistoricalPerAllocation
		if points > s.weights.HistoricalMaxCap {
			points = s.weights.HistoricalMaxCap
		}
		breakdown.HistoricalFrequencyPoints = points
	}

	breakdown.Total = breakdown.CapacityPoints +
		breakdown.HardRulePoints +
		breakdown.PreferredRoomPoints +
		breakdown.PreferredCharacteristicPoints +
		breakdown.HistoricalFrequencyPoints
	return breakdown
}

func (s *CompatibilityScorer) preferredRoomPoints(room models.Room, prefs []models.ProfessorPreference) int {
	for _, pref := range prefs {
		for _, id := range pref.RoomIDs {
			if id == room.ID {
				return s.weights.PreferredRoom
			}
		}
	}
	return 0
}

func (s *CompatibilityScorer) preferredCharacteristicPoints(room models.Room, prefs []models.ProfessorPreference) int {
	for _, pref := range prefs {
		for _, characteristic := range pref.Characteristics {
			if room.HasCharacteristic(characteristic) {
				return s.weights.PreferredCharacteristic
			}
		}
	}
	return 0
}

// DemandPriority ranks demands: larger enrollments first, with a bonus for demands pinned
// to a specific room by a hard rule.
func DemandPriority(demand models.Demand, rules []models.HardRule, weights models.ScoringWeights) int {
	priority := 0
	if weights.EnrollmentDivisor > 0 && demand.SeatCount > 0 {
		priority = demand.SeatCount / weights.EnrollmentDivisor
	}
	if priority > weights.EnrollmentCap {
		priority = weights.EnrollmentCap
	}
	for _, rule := range rules {
		if rule.Requirement != nil && rule.Requirement.Kind() == models.RuleKindSpecificRoom && rule.AppliesTo(demand) {
			priority += weights.SpecificRoomPriority
			break
		}
	}
	return priority
}

// rankedCandidate is a compliant room scored for one block group.
type rankedCandidate struct {
	room      models.Room
	breakdown models.ScoringBreakdown
	tier      int
	occupancy int
}

// rankCandidates orders candidates by score, hybrid tier, occupancy, then name and id.
// The tier only separates rooms of equal score.
func rankCandidates(candidates []rankedCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.breakdown.Total != b.breakdown.Total {
			return a.breakdown.Total > b.breakdown.Total
		}
		if a.tier != b.tier {
			return a.tier > b.tier
		}
		if a.occupancy != b.occupancy {
			return a.occupancy > b.occupancy
		}
		if c := strings.Compare(a.room.Name, b.room.Name); c != 0 {
			return c < 0
		}
		return a.room.ID < b.room.ID
	})
}
