package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

// PrerequisiteRepository handles persistence of the code-based
// prerequisite graph.
type PrerequisiteRepository struct {
	db *sqlx.DB
}

// NewPrerequisiteRepository constructs the repository.
func NewPrerequisiteRepository(db *sqlx.DB) *PrerequisiteRepository {
	return &PrerequisiteRepository{db: db}
}

// ListForCourse returns the prerequisite edges declared for a course code.
func (r *PrerequisiteRepository) ListForCourse(ctx context.Context, courseCode string) ([]models.CoursePrerequisite, error) {
	const query = `SELECT id, course_code, prerequisite_code, created_at FROM course_prerequisites WHERE course_code = $1 ORDER BY prerequisite_code ASC`
	var edges []models.CoursePrerequisite
	if err := r.db.SelectContext(ctx, &edges, query, courseCode); err != nil {
		return nil, fmt.Errorf("list prerequisites: %w", err)
	}
	return edges, nil
}

// Exists reports whether the edge is already declared.
func (r *PrerequisiteRepository) Exists(ctx context.Context, courseCode, prerequisiteCode string) (bool, error) {
	const query = `SELECT 1 FROM course_prerequisites WHERE course_code = $1 AND prerequisite_code = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, courseCode, prerequisiteCode); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check prerequisite: %w", err)
	}
	return true, nil
}

// Create persists a new prerequisite edge.
func (r *PrerequisiteRepository) Create(ctx context.Context, edge *models.CoursePrerequisite) error {
	if edge.ID == "" {
		edge.ID = uuid.NewString()
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_prerequisites (id, course_code, prerequisite_code, created_at)
        VALUES (:id, :course_code, :prerequisite_code, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, edge); err != nil {
		return fmt.Errorf("create prerequisite: %w", err)
	}
	return nil
}

// Delete removes a prerequisite edge by identifier.
func (r *PrerequisiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM course_prerequisites WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete prerequisite: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
