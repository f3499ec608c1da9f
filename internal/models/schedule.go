package models

import "fmt"

// Shift identifies the period of the day a block belongs to.
type Shift string

const (
	ShiftMorning   Shift = "M"
	ShiftAfternoon Shift = "T"
	ShiftNight     Shift = "N"
)

// Order returns the chronological position of the shift within a day.
func (s Shift) Order() int {
	switch s {
	case ShiftMorning:
		return 0
	case ShiftAfternoon:
		return 1
	case ShiftNight:
		return 2
	default:
		return 3
	}
}

// Valid reports whether the shift is one of M, T or N.
func (s Shift) Valid() bool {
	return s.Order() < 3
}

// Day bounds use the 2=Monday .. 7=Saturday convention of the schedule grammar.
const (
	MinDay  = 2
	MaxDay  = 7
	MinSlot = 1
	MaxSlot = 7
)

// AtomicBlock is the smallest indivisible unit of weekly occupancy.
type AtomicBlock struct {
	Day   int   `json:"day"`
	Shift Shift `json:"shift"`
	Slot  int   `json:"slot"`
}

// Code renders the block without its day, e.g. "M1".
func (b AtomicBlock) Code() string {
	return fmt.Sprintf("%s%d", b.Shift, b.Slot)
}

// String renders the block with its day, e.g. "2M1".
func (b AtomicBlock) String() string {
	return fmt.Sprintf("%d%s%d", b.Day, b.Shift, b.Slot)
}

// Less orders blocks by day, shift and slot.
func (b AtomicBlock) Less(other AtomicBlock) bool {
	if b.Day != other.Day {
		return b.Day < other.Day
	}
	if b.Shift != other.Shift {
		return b.Shift.Order() < other.Shift.Order()
	}
	return b.Slot < other.Slot
}

// BlockGroup holds one demand's atomic blocks on a single day.
type BlockGroup struct {
	Day    int           `json:"day"`
	Blocks []AtomicBlock `json:"blocks"`
}

// RoomSlot identifies a (room, day, block) triple used for conflict lookups.
type RoomSlot struct {
	RoomID string `db:"room_id" json:"room_id"`
	Day    int    `db:"day_of_week" json:"day"`
	Block  string `db:"block" json:"block"`
}

// BookedSlot is a persisted slot together with the demand holding it.
type BookedSlot struct {
	RoomSlot
	DemandID string `db:"demand_id" json:"demand_id"`
}
