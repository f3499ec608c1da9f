package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx/types"
)

// RuleKind discriminates the stored hard rule payloads.
type RuleKind string

const (
	RuleKindRoomType       RuleKind = "ROOM_TYPE"
	RuleKindSpecificRoom   RuleKind = "SPECIFIC_ROOM"
	RuleKindCharacteristic RuleKind = "CHARACTERISTIC"
)

// RoomRequirement is the closed set of mandatory room attributes a hard rule can demand.
type RoomRequirement interface {
	Kind() RuleKind
	SatisfiedBy(room Room) bool
	Describe() string
	roomRequirement()
}

// RoomTypeRequirement demands a room of a given type.
type RoomTypeRequirement struct {
	RoomTypeID string `json:"room_type_id"`
}

func (RoomTypeRequirement) Kind() RuleKind { return RuleKindRoomType }

func (r RoomTypeRequirement) SatisfiedBy(room Room) bool { return room.RoomTypeID == r.RoomTypeID }

func (r RoomTypeRequirement) Describe() string { return "room type " + r.RoomTypeID }

func (RoomTypeRequirement) roomRequirement() {}

// SpecificRoomRequirement pins a demand to one room.
type SpecificRoomRequirement struct {
	RoomID string `json:"room_id"`
}

func (SpecificRoomRequirement) Kind() RuleKind { return RuleKindSpecificRoom }

func (r SpecificRoomRequirement) SatisfiedBy(room Room) bool { return room.ID == r.RoomID }

func (r SpecificRoomRequirement) Describe() string { return "room " + r.RoomID }

func (SpecificRoomRequirement) roomRequirement() {}

// CharacteristicRequirement demands a room offering a characteristic (projector, sink, ...).
type CharacteristicRequirement struct {
	Characteristic string `json:"characteristic"`
}

func (CharacteristicRequirement) Kind() RuleKind { return RuleKindCharacteristic }

func (r CharacteristicRequirement) SatisfiedBy(room Room) bool {
	return room.HasCharacteristic(r.Characteristic)
}

func (r CharacteristicRequirement) Describe() string { return "characteristic " + r.Characteristic }

func (CharacteristicRequirement) roomRequirement() {}

// HardRuleRecord is the persisted, loosely typed form of a hard rule.
type HardRuleRecord struct {
	ID            string         `db:"id" json:"id"`
	Name          string         `db:"name" json:"name"`
	CourseCode    string         `db:"course_code" json:"course_code"`
	ProfessorName string         `db:"professor_name" json:"professor_name"`
	Kind          RuleKind       `db:"kind" json:"kind"`
	Config        types.JSONText `db:"config" json:"config"`
}

// HardRule is a parsed mandatory room constraint bound to a course or professor.
type HardRule struct {
	ID            string
	Name          string
	CourseCode    string
	ProfessorName string
	Requirement   RoomRequirement
}

// AppliesTo reports whether the rule binds to the demand.
func (r HardRule) AppliesTo(d Demand) bool {
	if r.CourseCode != "" && r.CourseCode == d.CourseCode {
		return true
	}
	if r.ProfessorName == "" {
		return false
	}
	for _, name := range d.ProfessorNames {
		if strings.EqualFold(strings.TrimSpace(name), r.ProfessorName) {
			return true
		}
	}
	return false
}

// Parse decodes the JSON payload into its typed requirement.
func (rec HardRuleRecord) Parse() (HardRule, error) {
	rule := HardRule{
		ID:            rec.ID,
		Name:          rec.Name,
		CourseCode:    strings.TrimSpace(rec.CourseCode),
		ProfessorName: strings.TrimSpace(rec.ProfessorName),
	}
	if rule.Name == "" {
		rule.Name = rec.ID
	}
	if rule.CourseCode == "" && rule.ProfessorName == "" {
		return rule, fmt.Errorf("hard rule %s binds to neither course nor professor", rec.ID)
	}
	raw := []byte(rec.Config)
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	switch rec.Kind {
	case RuleKindRoomType:
		var req RoomTypeRequirement
		if err := json.Unmarshal(raw, &req); err != nil {
			return rule, fmt.Errorf("decode hard rule %s: %w", rec.ID, err)
		}
		if req.RoomTypeID == "" {
			return rule, fmt.Errorf("hard rule %s: room_type_id is required", rec.ID)
		}
		rule.Requirement = req
	case RuleKindSpecificRoom:
		var req SpecificRoomRequirement
		if err := json.Unmarshal(raw, &req); err != nil {
			return rule, fmt.Errorf("decode hard rule %s: %w", rec.ID, err)
		}
		if req.RoomID == "" {
			return rule, fmt.Errorf("hard rule %s: room_id is required", rec.ID)
		}
		rule.Requirement = req
	case RuleKindCharacteristic:
		var req CharacteristicRequirement
		if err := json.Unmarshal(raw, &req); err != nil {
			return rule, fmt.Errorf("decode hard rule %s: %w", rec.ID, err)
		}
		if req.Characteristic == "" {
			return rule, fmt.Errorf("hard rule %s: characteristic is required", rec.ID)
		}
		rule.Requirement = req
	default:
		return rule, fmt.Errorf("hard rule %s: unknown kind %q", rec.ID, rec.Kind)
	}
	return rule, nil
}

// PreferenceKind discriminates professor soft preference records.
type PreferenceKind string

const (
	PreferenceKindRoom           PreferenceKind = "ROOM"
	PreferenceKindCharacteristic PreferenceKind = "CHARACTERISTIC"
)

// ProfessorPreferenceRecord is one flat soft preference row.
type ProfessorPreferenceRecord struct {
	ID            string         `db:"id" json:"id"`
	ProfessorName string         `db:"professor_name" json:"professor_name"`
	Kind          PreferenceKind `db:"kind" json:"kind"`
	Target        string         `db:"target" json:"target"`
}

// ProfessorPreference aggregates a professor's room and characteristic affinities.
type ProfessorPreference struct {
	ProfessorName   string   `json:"professor_name"`
	RoomIDs         []string `json:"room_ids"`
	Characteristics []string `json:"characteristics"`
}
