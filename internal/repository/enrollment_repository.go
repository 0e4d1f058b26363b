package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

const enrollmentDetailColumns = `e.id, e.student_id, e.course_id, e.status, e.grade, e.grade_points,
        e.enrolled_at, e.dropped_at, e.graded_at, e.graded_by, e.created_at, e.updated_at,
        u.full_name AS student_name, u.email AS student_email,
        c.code AS course_code, c.title AS course_title, c.credits, c.capacity,
        s.id AS semester_id, s.name AS semester_name, s.start_date AS semester_start,
        s.end_date AS semester_end, s.drop_deadline`

const enrollmentDetailJoins = `FROM enrollments e
        JOIN users u ON u.id = e.student_id
        JOIN courses c ON c.id = e.course_id
        JOIN semesters s ON s.id = c.semester_id`

// EnrollmentRepository handles persistence of enrollments, including the
// seat-locked admission and promotion paths.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, status, grade, grade_points, enrolled_at, dropped_at, graded_at, graded_by, created_at, updated_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with course and semester context.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE e.id = $1", enrollmentDetailColumns, enrollmentDetailJoins)
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsActivePair checks for an ENROLLED or WAITLISTED row for the pair.
func (r *EnrollmentRepository) ExistsActivePair(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status IN ($3, $4) LIMIT 1`
	var exists int
	err := r.db.GetContext(ctx, &exists, query, studentID, courseID, models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// SumEnrolledCredits totals the credits of a student's ENROLLED courses in
// the given semester.
func (r *EnrollmentRepository) SumEnrolledCredits(ctx context.Context, studentID, semesterID string) (int, error) {
	const query = `SELECT COALESCE(SUM(c.credits), 0) FROM enrollments e
        JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1 AND c.semester_id = $2 AND e.status = $3`
	var total int
	if err := r.db.GetContext(ctx, &total, query, studentID, semesterID, models.EnrollmentStatusEnrolled); err != nil {
		return 0, fmt.Errorf("sum enrolled credits: %w", err)
	}
	return total, nil
}

// CountEnrolledInSemester counts a student's ENROLLED courses in a semester.
func (r *EnrollmentRepository) CountEnrolledInSemester(ctx context.Context, studentID, semesterID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments e
        JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1 AND c.semester_id = $2 AND e.status = $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, semesterID, models.EnrollmentStatusEnrolled); err != nil {
		return 0, fmt.Errorf("count enrolled courses: %w", err)
	}
	return count, nil
}

// Admit inserts the enrollment while holding a row lock on the course so the
// capacity check and the insert observe the same seat count. When the course
// is full the row is created WAITLISTED with its FIFO position; otherwise the
// eligible callback runs before the ENROLLED insert and any error it returns
// aborts the admission.
func (r *EnrollmentRepository) Admit(ctx context.Context, studentID, courseID string, eligible func(context.Context) error) (*models.AdmissionResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin admission: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var capacity int
	if err := tx.GetContext(ctx, &capacity, `SELECT capacity FROM courses WHERE id = $1 FOR UPDATE`, courseID); err != nil {
		return nil, fmt.Errorf("lock course: %w", err)
	}

	var enrolled int
	if err := tx.GetContext(ctx, &enrolled, `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = $2`, courseID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("count enrolled: %w", err)
	}

	now := time.Now().UTC()
	enrollment := &models.Enrollment{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		CourseID:   courseID,
		EnrolledAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if enrolled >= capacity {
		var waitlisted int
		if err := tx.GetContext(ctx, &waitlisted, `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status = $2`, courseID, models.EnrollmentStatusWaitlisted); err != nil {
			return nil, fmt.Errorf("count waitlisted: %w", err)
		}
		enrollment.Status = models.EnrollmentStatusWaitlisted
		if err := insertEnrollment(ctx, tx, enrollment); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit admission: %w", err)
		}
		return &models.AdmissionResult{
			Status:           models.AdmissionWaitlisted,
			WaitlistPosition: waitlisted + 1,
			Enrollment:       enrollment,
		}, nil
	}

	if eligible != nil {
		if err := eligible(ctx); err != nil {
			return nil, err
		}
	}

	enrollment.Status = models.EnrollmentStatusEnrolled
	if err := insertEnrollment(ctx, tx, enrollment); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit admission: %w", err)
	}
	return &models.AdmissionResult{Status: models.AdmissionEnrolled, Enrollment: enrollment}, nil
}

func insertEnrollment(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	const query = `INSERT INTO enrollments (id, student_id, course_id, status, enrolled_at, created_at, updated_at)
        VALUES (:id, :student_id, :course_id, :status, :enrolled_at, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

// MarkDropped transitions a row to DROPPED. A non-nil grade records the
// withdrawal token for drops past the deadline.
func (r *EnrollmentRepository) MarkDropped(ctx context.Context, id string, droppedAt time.Time, grade *models.Grade) error {
	if grade != nil {
		const query = `UPDATE enrollments SET status = $2, dropped_at = $3, grade = $4, grade_points = NULL, graded_at = $3, updated_at = $3 WHERE id = $1`
		if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusDropped, droppedAt, *grade); err != nil {
			return fmt.Errorf("mark withdrawal: %w", err)
		}
		return nil
	}
	const query = `UPDATE enrollments SET status = $2, dropped_at = $3, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusDropped, droppedAt); err != nil {
		return fmt.Errorf("mark dropped: %w", err)
	}
	return nil
}

// PromoteOldestWaitlisted moves the oldest WAITLISTED row for the course to
// ENROLLED, re-stamping enrolled_at to the promotion time. The course row
// lock serialises promotions per course. Returns nil when no one is waiting.
func (r *EnrollmentRepository) PromoteOldestWaitlisted(ctx context.Context, courseID string, promotedAt time.Time) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin promotion: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var capacity int
	if err := tx.GetContext(ctx, &capacity, `SELECT capacity FROM courses WHERE id = $1 FOR UPDATE`, courseID); err != nil {
		return nil, fmt.Errorf("lock course: %w", err)
	}

	var next models.Enrollment
	const selectQuery = `SELECT id, student_id, course_id, status, grade, grade_points, enrolled_at, dropped_at, graded_at, graded_by, created_at, updated_at
        FROM enrollments WHERE course_id = $1 AND status = $2 ORDER BY enrolled_at ASC LIMIT 1`
	if err := tx.GetContext(ctx, &next, selectQuery, courseID, models.EnrollmentStatusWaitlisted); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find oldest waitlisted: %w", err)
	}

	const updateQuery = `UPDATE enrollments SET status = $2, enrolled_at = $3, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateQuery, next.ID, models.EnrollmentStatusEnrolled, promotedAt); err != nil {
		return nil, fmt.Errorf("promote waitlisted: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit promotion: %w", err)
	}

	next.Status = models.EnrollmentStatusEnrolled
	next.EnrolledAt = promotedAt
	next.UpdatedAt = promotedAt
	return &next, nil
}

// RecordGrade stores the grade outcome and completes the enrollment.
func (r *EnrollmentRepository) RecordGrade(ctx context.Context, id string, grade models.Grade, gradePoints *float64, gradedBy string, gradedAt time.Time) error {
	const query = `UPDATE enrollments SET status = $2, grade = $3, grade_points = $4, graded_by = $5, graded_at = $6, updated_at = $6 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusCompleted, grade, gradePoints, gradedBy, gradedAt); err != nil {
		return fmt.Errorf("record grade: %w", err)
	}
	return nil
}

// ListByStudent returns every enrollment for the student, all statuses,
// ordered by the owning semester's start date.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE e.student_id = $1 ORDER BY s.start_date ASC, e.enrolled_at ASC", enrollmentDetailColumns, enrollmentDetailJoins)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// ListCompletedByStudent returns the student's COMPLETED rows; used by the
// prerequisite checker.
func (r *EnrollmentRepository) ListCompletedByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE e.student_id = $1 AND e.status = $2", enrollmentDetailColumns, enrollmentDetailJoins)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, models.EnrollmentStatusCompleted); err != nil {
		return nil, fmt.Errorf("list completed enrollments: %w", err)
	}
	return enrollments, nil
}

// ListByCourse returns enrollments for a course, optionally filtered by status.
func (r *EnrollmentRepository) ListByCourse(ctx context.Context, courseID string, status models.EnrollmentStatus) ([]models.EnrollmentDetail, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE e.course_id = $1", enrollmentDetailColumns, enrollmentDetailJoins)
	args := []interface{}{courseID}
	if status != "" {
		query += " AND e.status = $2"
		args = append(args, status)
	}
	query += " ORDER BY e.enrolled_at ASC"
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("list course enrollments: %w", err)
	}
	return enrollments, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("c.semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "u.full_name",
		"course_code":  "c.code",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s%s ORDER BY %s %s LIMIT %d OFFSET %d",
		enrollmentDetailColumns, enrollmentDetailJoins, clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s%s", enrollmentDetailJoins, clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}
