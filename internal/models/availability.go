package models

import "time"

// WeeklyAvailabilityRule is a recurring weekly window in which a tutor is
// willing to teach. Times are minutes from midnight; day_of_week follows ISO
// numbering (Monday=1 .. Sunday=7).
type WeeklyAvailabilityRule struct {
	ID          string    `db:"id" json:"id"`
	TutorID     string    `db:"tutor_id" json:"tutor_id"`
	DayOfWeek   int       `db:"day_of_week" json:"day_of_week"`
	StartMinute int       `db:"start_minute" json:"start_minute"`
	EndMinute   int       `db:"end_minute" json:"end_minute"`
	IsAvailable bool      `db:"is_available" json:"is_available"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ScheduleException blocks an entire date regardless of weekly rules.
type ScheduleException struct {
	ID        string    `db:"id" json:"id"`
	TutorID   string    `db:"tutor_id" json:"tutor_id"`
	Date      time.Time `db:"date" json:"date"`
	IsFullDay bool      `db:"is_full_day" json:"is_full_day"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TimeSlot is an ephemeral, fixed-width candidate lesson time computed on
// demand for a (tutor, date) pair. Never persisted.
type TimeSlot struct {
	SlotID      string    `json:"slot_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	IsAvailable bool      `json:"is_available"`
}
