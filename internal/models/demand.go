package models

import (
	"time"

	"github.com/lib/pq"
)

// Demand is a course section's need for a recurring weekly room booking.
type Demand struct {
	ID             string         `db:"id" json:"id"`
	SemesterID     string         `db:"semester_id" json:"semester_id"`
	CourseCode     string         `db:"course_code" json:"course_code"`
	CourseName     string         `db:"course_name" json:"course_name"`
	Section        string         `db:"section" json:"section"`
	ProfessorNames pq.StringArray `db:"professor_names" json:"professor_names"`
	SeatCount      int            `db:"seat_count" json:"seat_count"`
	ScheduleCode   string         `db:"schedule_code" json:"schedule_code"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// Label renders the demand as "COURSE-SECTION" for logs.
func (d Demand) Label() string {
	if d.Section == "" {
		return d.CourseCode
	}
	return d.CourseCode + "-" + d.Section
}

// Professor is an entry of the professor directory.
type Professor struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Semester is an academic period that scopes allocations.
type Semester struct {
	ID       string    `db:"id" json:"id"`
	Code     string    `db:"code" json:"code"`
	StartsOn time.Time `db:"starts_on" json:"starts_on"`
}
