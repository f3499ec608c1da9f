package models

import "github.com/lib/pq"

// RoomTypeRegularClassroom marks ordinary lecture rooms; every other type counts as lab-like.
const RoomTypeRegularClassroom = "REGULAR_CLASSROOM"

// Room is a bookable physical space.
type Room struct {
	ID              string         `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	Capacity        int            `db:"capacity" json:"capacity"`
	RoomTypeID      string         `db:"room_type_id" json:"room_type_id"`
	RoomTypeCode    string         `db:"room_type_code" json:"room_type_code"`
	BuildingID      string         `db:"building_id" json:"building_id"`
	Characteristics pq.StringArray `db:"characteristics" json:"characteristics"`
}

// IsClassroom reports whether the room is a regular classroom.
func (r Room) IsClassroom() bool {
	return r.RoomTypeCode == RoomTypeRegularClassroom
}

// HasCharacteristic reports whether the room offers the named characteristic.
func (r Room) HasCharacteristic(name string) bool {
	for _, c := range r.Characteristics {
		if c == name {
			return true
		}
	}
	return false
}
