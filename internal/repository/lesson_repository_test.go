package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorhive/tutorhive-api/internal/models"
)

func newLessonRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func lessonRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "tutor_id", "student_id", "subject_id", "start_time", "end_time", "status", "created_at", "updated_at"})
}

func TestLessonRepositoryReserve(t *testing.T) {
	db, mock, cleanup := newLessonRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	start := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("tutor-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM lessons WHERE tutor_id = $1 AND status IN ('pending', 'confirmed') AND start_time < $3 AND end_time > $2")).
		WithArgs("tutor-1", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lessons")).
		WithArgs(sqlmock.AnyArg(), "tutor-1", "student-1", "subject-1", start, end, "confirmed", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	lesson := &models.Lesson{
		TutorID:   "tutor-1",
		StudentID: "student-1",
		SubjectID: "subject-1",
		StartTime: start,
		EndTime:   end,
		Status:    models.LessonConfirmed,
	}

	require.NoError(t, repo.Reserve(context.Background(), lesson))
	assert.NotEmpty(t, lesson.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryReserveConflict(t *testing.T) {
	db, mock, cleanup := newLessonRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	start := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("tutor-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM lessons")).
		WithArgs("tutor-1", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	lesson := &models.Lesson{
		TutorID:   "tutor-1",
		StudentID: "student-2",
		SubjectID: "subject-1",
		StartTime: start,
		EndTime:   end,
		Status:    models.LessonConfirmed,
	}

	err := repo.Reserve(context.Background(), lesson)
	require.ErrorIs(t, err, ErrLessonOverlap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryListActiveForDate(t *testing.T) {
	db, mock, cleanup := newLessonRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	date := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	rows := lessonRows().
		AddRow("lesson-1", "tutor-1", "student-1", "subject-1",
			date.Add(10*time.Hour), date.Add(11*time.Hour), "confirmed", time.Now(), time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("FROM lessons")).
		WithArgs("tutor-1", date, date.AddDate(0, 0, 1)).
		WillReturnRows(rows)

	lessons, err := repo.ListActiveForDate(context.Background(), "tutor-1", date)
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, models.LessonConfirmed, lessons[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryList(t *testing.T) {
	db, mock, cleanup := newLessonRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	rows := lessonRows().
		AddRow("lesson-1", "tutor-1", "student-1", "subject-1",
			time.Now(), time.Now().Add(time.Hour), "confirmed", time.Now(), time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("FROM lessons WHERE 1=1 AND tutor_id = $1")).
		WithArgs("tutor-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM lessons WHERE 1=1 AND tutor_id = $1")).
		WithArgs("tutor-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	lessons, total, err := repo.List(context.Background(), models.LessonFilter{TutorID: "tutor-1"})
	require.NoError(t, err)
	assert.Len(t, lessons, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLessonRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newLessonRepoMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE lessons SET status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("lesson-1", models.LessonCancelled, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "lesson-1", models.LessonCancelled))
	assert.NoError(t, mock.ExpectationsWereMet())
}
