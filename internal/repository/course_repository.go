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

const courseDetailColumns = `c.id, c.code, c.title, c.description, c.semester_id, c.credits, c.capacity, c.created_at, c.updated_at,
        s.name AS semester_name, s.start_date AS semester_start, s.end_date AS semester_end,
        s.enrollment_start, s.enrollment_end, s.drop_deadline`

// CourseRepository handles persistence of courses and instructor assignments.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course by identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, code, title, description, semester_id, credits, capacity, created_at, updated_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindDetailByID returns a course joined with its semester windows.
func (r *CourseRepository) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses c JOIN semesters s ON s.id = c.semester_id WHERE c.id = $1`, courseDetailColumns)
	var detail models.CourseDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByCodeInSemester reports whether the code is already offered in the
// semester; codes are the catalog identity used by prerequisites.
func (r *CourseRepository) ExistsByCodeInSemester(ctx context.Context, code, semesterID, excludeID string) (bool, error) {
	query := `SELECT 1 FROM courses WHERE code = $1 AND semester_id = $2`
	args := []interface{}{code, semesterID}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check course code: %w", err)
	}
	return true, nil
}

// List returns courses filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	base := `FROM courses c JOIN semesters s ON s.id = c.semester_id`
	var conditions []string
	var args []interface{}

	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("c.semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.Code != "" {
		conditions = append(conditions, fmt.Sprintf("c.code = $%d", len(args)+1))
		args = append(args, filter.Code)
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM course_instructors ci WHERE ci.course_id = c.id AND ci.instructor_id = $%d)", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.code) LIKE $%d OR LOWER(c.title) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"code":       "c.code",
		"title":      "c.title",
		"created_at": "c.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf("SELECT %s %s%s ORDER BY %s %s LIMIT %d OFFSET %d", courseDetailColumns, base, clause, orderBy, order, size, (page-1)*size)
	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s%s", base, clause), args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// Create persists a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, code, title, description, semester_id, credits, capacity, created_at, updated_at)
        VALUES (:id, :code, :title, :description, :semester_id, :credits, :capacity, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update updates mutable fields of a course.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = :title, description = :description, credits = :credits, capacity = :capacity, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// ListInstructors returns the instructor assignments for a course.
func (r *CourseRepository) ListInstructors(ctx context.Context, courseID string) ([]models.CourseInstructorDetail, error) {
	const query = `SELECT ci.id, ci.course_id, ci.instructor_id, ci.is_primary, ci.created_at,
        u.full_name AS instructor_name, u.email AS instructor_email
        FROM course_instructors ci JOIN users u ON u.id = ci.instructor_id
        WHERE ci.course_id = $1 ORDER BY ci.is_primary DESC, ci.created_at ASC`
	var instructors []models.CourseInstructorDetail
	if err := r.db.SelectContext(ctx, &instructors, query, courseID); err != nil {
		return nil, fmt.Errorf("list course instructors: %w", err)
	}
	return instructors, nil
}

// IsInstructorAssigned reports whether the instructor teaches the course.
func (r *CourseRepository) IsInstructorAssigned(ctx context.Context, courseID, instructorID string) (bool, error) {
	const query = `SELECT 1 FROM course_instructors WHERE course_id = $1 AND instructor_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, courseID, instructorID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check instructor assignment: %w", err)
	}
	return true, nil
}

// AssignInstructor links an instructor to a course. Promoting an assignment
// to primary demotes any existing primary in the same transaction.
func (r *CourseRepository) AssignInstructor(ctx context.Context, assignment *models.CourseInstructor) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assign instructor: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if assignment.IsPrimary {
		if _, err := tx.ExecContext(ctx, `UPDATE course_instructors SET is_primary = FALSE WHERE course_id = $1 AND is_primary = TRUE`, assignment.CourseID); err != nil {
			return fmt.Errorf("demote primary instructor: %w", err)
		}
	}
	const query = `INSERT INTO course_instructors (id, course_id, instructor_id, is_primary, created_at)
        VALUES (:id, :course_id, :instructor_id, :is_primary, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("assign instructor: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assign instructor: %w", err)
	}
	return nil
}

// UnassignInstructor removes an instructor from a course.
func (r *CourseRepository) UnassignInstructor(ctx context.Context, courseID, instructorID string) error {
	const query = `DELETE FROM course_instructors WHERE course_id = $1 AND instructor_id = $2`
	if _, err := r.db.ExecContext(ctx, query, courseID, instructorID); err != nil {
		return fmt.Errorf("unassign instructor: %w", err)
	}
	return nil
}
