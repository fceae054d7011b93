package models

import "time"

// LessonStatus is the canonical lesson status vocabulary.
type LessonStatus string

const (
	LessonPending   LessonStatus = "pending"
	LessonConfirmed LessonStatus = "confirmed"
	LessonCompleted LessonStatus = "completed"
	LessonCancelled LessonStatus = "cancelled"
)

// Lesson is the durable artifact of a successful booking. For a fixed tutor,
// no two lessons with status pending or confirmed may overlap.
type Lesson struct {
	ID        string       `db:"id" json:"id"`
	TutorID   string       `db:"tutor_id" json:"tutor_id"`
	StudentID string       `db:"student_id" json:"student_id"`
	SubjectID string       `db:"subject_id" json:"subject_id"`
	StartTime time.Time    `db:"start_time" json:"start_time"`
	EndTime   time.Time    `db:"end_time" json:"end_time"`
	Status    LessonStatus `db:"status" json:"status"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// LessonFilter describes query params for listing lessons.
type LessonFilter struct {
	TutorID   string
	StudentID string
	Status    LessonStatus
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// JoinDecision reports whether a participant may enter a lesson's session.
type JoinDecision struct {
	Allowed           bool   `json:"allowed"`
	Reason            string `json:"reason,omitempty"`
	MinutesUntilStart int    `json:"minutes_until_start,omitempty"`
}
