package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryExistsActivePair(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status IN ($3, $4) LIMIT 1")).
		WithArgs("stu-1", "course-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsActivePair(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsActivePairNoRows(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT 1 FROM enrollments").
		WithArgs("stu-1", "course-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted).
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsActivePair(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySumEnrolledCredits(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(c.credits\\), 0\\) FROM enrollments e").
		WithArgs("stu-1", "sem-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(12))

	total, err := repo.SumEnrolledCredits(context.Background(), "stu-1", "sem-1")
	require.NoError(t, err)
	require.Equal(t, 12, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAdmitEnrollsWhenSeatFree(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = $2")).
		WithArgs("course-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	eligibleCalled := false
	result, err := repo.Admit(context.Background(), "stu-1", "course-1", func(ctx context.Context) error {
		eligibleCalled = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, eligibleCalled)
	require.Equal(t, models.AdmissionEnrolled, result.Status)
	require.Equal(t, models.EnrollmentStatusEnrolled, result.Enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAdmitWaitlistsWhenFull(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = $2")).
		WithArgs("course-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = $2")).
		WithArgs("course-1", models.EnrollmentStatusWaitlisted).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := repo.Admit(context.Background(), "stu-1", "course-1", func(ctx context.Context) error {
		t.Fatal("eligibility must not run on the waitlist path")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, models.AdmissionWaitlisted, result.Status)
	require.Equal(t, 3, result.WaitlistPosition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAdmitAbortsOnEligibilityError(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = $2")).
		WithArgs("course-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	wantErr := errors.New("prerequisites not met")
	_, err := repo.Admit(context.Background(), "stu-1", "course-1", func(ctx context.Context) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryMarkDroppedWithWithdrawal(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	droppedAt := time.Now().UTC()
	grade := models.GradeW
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, dropped_at = $3, grade = $4, grade_points = NULL, graded_at = $3, updated_at = $3 WHERE id = $1")).
		WithArgs("enr-1", models.EnrollmentStatusDropped, droppedAt, grade).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.MarkDropped(context.Background(), "enr-1", droppedAt, &grade)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryMarkDroppedBeforeDeadline(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	droppedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, dropped_at = $3, updated_at = $3 WHERE id = $1")).
		WithArgs("enr-1", models.EnrollmentStatusDropped, droppedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.MarkDropped(context.Background(), "enr-1", droppedAt, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryPromoteOldestWaitlisted(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	promotedAt := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(30))
	rows := sqlmock.NewRows([]string{"id", "student_id", "course_id", "status", "grade", "grade_points", "enrolled_at", "dropped_at", "graded_at", "graded_by", "created_at", "updated_at"}).
		AddRow("enr-2", "stu-2", "course-1", models.EnrollmentStatusWaitlisted, nil, nil, promotedAt.Add(-time.Hour), nil, nil, nil, promotedAt.Add(-time.Hour), promotedAt.Add(-time.Hour))
	mock.ExpectQuery("FROM enrollments WHERE course_id = \\$1 AND status = \\$2 ORDER BY enrolled_at ASC LIMIT 1").
		WithArgs("course-1", models.EnrollmentStatusWaitlisted).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, enrolled_at = $3, updated_at = $3 WHERE id = $1")).
		WithArgs("enr-2", models.EnrollmentStatusEnrolled, promotedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	promoted, err := repo.PromoteOldestWaitlisted(context.Background(), "course-1", promotedAt)
	require.NoError(t, err)
	require.NotNil(t, promoted)
	require.Equal(t, "stu-2", promoted.StudentID)
	require.Equal(t, models.EnrollmentStatusEnrolled, promoted.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryPromoteOldestWaitlistedEmpty(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM courses WHERE id = $1 FOR UPDATE")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(30))
	mock.ExpectQuery("FROM enrollments WHERE course_id = \\$1 AND status = \\$2 ORDER BY enrolled_at ASC LIMIT 1").
		WithArgs("course-1", models.EnrollmentStatusWaitlisted).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	promoted, err := repo.PromoteOldestWaitlisted(context.Background(), "course-1", time.Now().UTC())
	require.NoError(t, err)
	require.Nil(t, promoted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryRecordGrade(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	gradedAt := time.Now().UTC()
	points := 12.0
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, grade = $3, grade_points = $4, graded_by = $5, graded_at = $6, updated_at = $6 WHERE id = $1")).
		WithArgs("enr-1", models.EnrollmentStatusCompleted, models.GradeA, points, "inst-1", gradedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.RecordGrade(context.Background(), "enr-1", models.GradeA, &points, "inst-1", gradedAt)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}