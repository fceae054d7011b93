package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// RequestStatus is the canonical lesson-request status vocabulary.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestProposed  RequestStatus = "time_slots_proposed"
	RequestConfirmed RequestStatus = "confirmed"
	RequestRejected  RequestStatus = "rejected"
	RequestCancelled RequestStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestConfirmed, RequestRejected, RequestCancelled:
		return true
	}
	return false
}

// ProposedSlot is one alternative interval offered by the tutor.
type ProposedSlot struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// LessonRequest is the negotiation record between a student and a tutor that
// precedes a confirmed lesson. Mutable only by the addressed tutor, except for
// cancellation and proposal acceptance by the requesting student.
type LessonRequest struct {
	ID             string         `db:"id" json:"id"`
	StudentID      string         `db:"student_id" json:"student_id"`
	TutorID        string         `db:"tutor_id" json:"tutor_id"`
	SubjectID      string         `db:"subject_id" json:"subject_id"`
	RequestedStart time.Time      `db:"requested_start" json:"requested_start"`
	RequestedEnd   time.Time      `db:"requested_end" json:"requested_end"`
	Message        string         `db:"message" json:"message"`
	Status         RequestStatus  `db:"status" json:"status"`
	TutorResponse  string         `db:"tutor_response" json:"tutor_response"`
	ProposedSlots  types.JSONText `db:"proposed_slots" json:"proposed_slots,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	RespondedAt    *time.Time     `db:"responded_at" json:"responded_at,omitempty"`
}

// RequestFilter describes query params for listing lesson requests.
type RequestFilter struct {
	StudentID string
	TutorID   string
	Status    RequestStatus
	Page      int
	PageSize  int
}

// StudentTutorRelationship marks an ongoing pedagogical relationship. It is
// upserted whenever a request is confirmed; the wider platform owns the rest
// of its lifecycle.
type StudentTutorRelationship struct {
	ID            string    `db:"id" json:"id"`
	StudentID     string    `db:"student_id" json:"student_id"`
	TutorID       string    `db:"tutor_id" json:"tutor_id"`
	SubjectID     string    `db:"subject_id" json:"subject_id"`
	LessonCount   int       `db:"lesson_count" json:"lesson_count"`
	FirstLessonAt time.Time `db:"first_lesson_at" json:"first_lesson_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
