package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

// AssessmentRepository handles persistence of weighted course assessments
// and per-enrollment scores.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository constructs the repository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// FindByID returns an assessment by identifier.
func (r *AssessmentRepository) FindByID(ctx context.Context, id string) (*models.CourseAssessment, error) {
	const query = `SELECT id, course_id, name, weight, created_at, updated_at FROM course_assessments WHERE id = $1`
	var assessment models.CourseAssessment
	if err := r.db.GetContext(ctx, &assessment, query, id); err != nil {
		return nil, err
	}
	return &assessment, nil
}

// ListByCourse returns the assessments declared for a course.
func (r *AssessmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.CourseAssessment, error) {
	const query = `SELECT id, course_id, name, weight, created_at, updated_at FROM course_assessments WHERE course_id = $1 ORDER BY created_at ASC`
	var assessments []models.CourseAssessment
	if err := r.db.SelectContext(ctx, &assessments, query, courseID); err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	return assessments, nil
}

// ReplaceForCourse swaps the full assessment set for a course in one
// transaction; the caller validates that weights sum to 100 beforehand.
func (r *AssessmentRepository) ReplaceForCourse(ctx context.Context, courseID string, assessments []models.CourseAssessment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace assessments: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM course_assessments WHERE course_id = $1`, courseID); err != nil {
		return fmt.Errorf("clear assessments: %w", err)
	}

	now := time.Now().UTC()
	const query = `INSERT INTO course_assessments (id, course_id, name, weight, created_at, updated_at)
        VALUES (:id, :course_id, :name, :weight, :created_at, :updated_at)`
	for i := range assessments {
		assessments[i].CourseID = courseID
		if assessments[i].ID == "" {
			assessments[i].ID = uuid.NewString()
		}
		assessments[i].CreatedAt = now
		assessments[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, assessments[i]); err != nil {
			return fmt.Errorf("insert assessment: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace assessments: %w", err)
	}
	return nil
}

// UpsertScore records or updates a score for one enrollment and assessment.
func (r *AssessmentRepository) UpsertScore(ctx context.Context, score *models.EnrollmentAssessmentScore) error {
	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	score.CreatedAt = now
	score.UpdatedAt = now
	const query = `INSERT INTO enrollment_assessment_scores (id, enrollment_id, assessment_id, score, created_at, updated_at)
        VALUES (:id, :enrollment_id, :assessment_id, :score, :created_at, :updated_at)
        ON CONFLICT (enrollment_id, assessment_id)
        DO UPDATE SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, score); err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}
	return nil
}

// ListScores returns an enrollment's scores joined with component metadata.
func (r *AssessmentRepository) ListScores(ctx context.Context, enrollmentID string) ([]models.AssessmentScoreDetail, error) {
	const query = `SELECT es.id, es.enrollment_id, es.assessment_id, es.score, es.created_at, es.updated_at,
        a.name AS assessment_name, a.weight
        FROM enrollment_assessment_scores es
        JOIN course_assessments a ON a.id = es.assessment_id
        WHERE es.enrollment_id = $1 ORDER BY a.created_at ASC`
	var scores []models.AssessmentScoreDetail
	if err := r.db.SelectContext(ctx, &scores, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	return scores, nil
}
