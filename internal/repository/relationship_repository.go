package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tutorhive/tutorhive-api/internal/models"
)

// RelationshipRepository persists student-tutor relationships.
type RelationshipRepository struct {
	db *sqlx.DB
}

// NewRelationshipRepository constructs the repository.
func NewRelationshipRepository(db *sqlx.DB) *RelationshipRepository {
	return &RelationshipRepository{db: db}
}

// Upsert records a confirmed lesson between the pair, bumping the lesson count
// when the relationship already exists.
func (r *RelationshipRepository) Upsert(ctx context.Context, studentID, tutorID, subjectID string) error {
	now := time.Now().UTC()
	rel := models.StudentTutorRelationship{
		ID:            uuid.NewString(),
		StudentID:     studentID,
		TutorID:       tutorID,
		SubjectID:     subjectID,
		LessonCount:   1,
		FirstLessonAt: now,
		UpdatedAt:     now,
	}

	const query = `INSERT INTO student_tutor_relationships (id, student_id, tutor_id, subject_id, lesson_count, first_lesson_at, updated_at)
	VALUES (:id, :student_id, :tutor_id, :subject_id, :lesson_count, :first_lesson_at, :updated_at)
	ON CONFLICT (student_id, tutor_id) DO UPDATE
	SET lesson_count = student_tutor_relationships.lesson_count + 1,
	    subject_id = EXCLUDED.subject_id,
	    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, rel); err != nil {
		return fmt.Errorf("upsert student-tutor relationship: %w", err)
	}
	return nil
}

// ListByTutor returns the tutor's ongoing relationships, most recent first.
func (r *RelationshipRepository) ListByTutor(ctx context.Context, tutorID string) ([]models.StudentTutorRelationship, error) {
	const query = `SELECT id, student_id, tutor_id, subject_id, lesson_count, first_lesson_at, updated_at
	FROM student_tutor_relationships WHERE tutor_id = $1 ORDER BY updated_at DESC`
	var relationships []models.StudentTutorRelationship
	if err := r.db.SelectContext(ctx, &relationships, query, tutorID); err != nil {
		return nil, fmt.Errorf("list relationships by tutor: %w", err)
	}
	return relationships, nil
}
