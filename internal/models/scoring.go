package models

import "time"

// ScoringWeights is the immutable weight set used by one allocation session.
type ScoringWeights struct {
	Capacity                int `db:"capacity" json:"capacity" yaml:"capacity" validate:"gt=0"`
	HardRule                int `db:"hard_rule" json:"hardRule" yaml:"hard_rule" validate:"gt=0"`
	PreferredRoom           int `db:"preferred_room" json:"preferredRoom" yaml:"preferred_room" validate:"gt=0"`
	PreferredCharacteristic int `db:"preferred_characteristic" json:"preferredCharacteristic" yaml:"preferred_characteristic" validate:"gt=0"`
	HistoricalPerAllocation int `db:"historical_per_allocation" json:"historicalPerAllocation" yaml:"historical_per_allocation" validate:"gt=0"`
	HistoricalMaxCap        int `db:"historical_max_cap" json:"historicalMaxCap" yaml:"historical_max_cap" validate:"gt=0"`
	EnrollmentDivisor       int `db:"enrollment_divisor" json:"enrollmentDivisor" yaml:"enrollment_divisor" validate:"gt=0"`
	EnrollmentCap           int `db:"enrollment_cap" json:"enrollmentCap" yaml:"enrollment_cap" validate:"gt=0"`
	SpecificRoomPriority    int `db:"specific_room_priority" json:"specificRoomPriority" yaml:"specific_room_priority" validate:"gt=0"`
}

// DefaultScoringWeights mirrors the stock weight table.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Capacity:                4,
		HardRule:                8,
		PreferredRoom:           4,
		PreferredCharacteristic: 4,
		HistoricalPerAllocation: 1,
		HistoricalMaxCap:        8,
		EnrollmentDivisor:       10,
		EnrollmentCap:           20,
		SpecificRoomPriority:    1000,
	}
}

// ScoringProfile is a named, persisted weight set.
type ScoringProfile struct {
	Name           string `db:"name" json:"name" yaml:"name"`
	ScoringWeights `yaml:",inline"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at" yaml:"-"`
}

// ScoringBreakdown holds every component of one (room, demand) score.
type ScoringBreakdown struct {
	RoomID                        string   `json:"roomId"`
	RoomName                      string   `json:"roomName"`
	CapacityPoints                int      `json:"capacityPoints"`
	HardRulePoints                int      `json:"hardRulePoints"`
	PreferredRoomPoints           int      `json:"preferredRoomPoints"`
	PreferredCharacteristicPoints int      `json:"preferredCharacteristicPoints"`
	HistoricalCount               int      `json:"historicalCount"`
	HistoricalFrequencyPoints     int      `json:"historicalFrequencyPoints"`
	Total                         int      `json:"total"`
	Compliant                     bool     `json:"compliant"`
	SatisfiedRules                []string `json:"satisfiedRules,omitempty"`
	ViolatedRules                 []string `json:"violatedRules,omitempty"`
}

// SoftPreferencePoints sums the professor affinity components.
func (b ScoringBreakdown) SoftPreferencePoints() int {
	return b.PreferredRoomPoints + b.PreferredCharacteristicPoints
}

// DemandStatus is the terminal state of one demand in a run.
type DemandStatus string

const (
	DemandPending            DemandStatus = "PENDING"
	DemandAllocated          DemandStatus = "ALLOCATED"
	DemandSplitAllocated     DemandStatus = "SPLIT_ALLOCATED"
	DemandPartiallyAllocated DemandStatus = "PARTIALLY_ALLOCATED"
	DemandUnallocated        DemandStatus = "UNALLOCATED"
)

// Reason codes attached to unallocated demands and block groups.
const (
	ReasonMalformedSchedule = "MALFORMED_SCHEDULE"
	ReasonMissingProfessor  = "MISSING_PROFESSOR"
	ReasonMissingRule       = "MISSING_RULE_CONFIGURATION"
	ReasonNoCandidate       = "NO_COMPLIANT_ROOM"
	ReasonAllConflicting    = "ALL_CANDIDATES_CONFLICT"
	ReasonNotProcessed      = "RUN_CANCELLED"
)
