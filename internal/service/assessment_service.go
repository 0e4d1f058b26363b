package service

import (
	"context"
	"database/sql"
	"math"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type assessmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.CourseAssessment, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.CourseAssessment, error)
	ReplaceForCourse(ctx context.Context, courseID string, assessments []models.CourseAssessment) error
	UpsertScore(ctx context.Context, score *models.EnrollmentAssessmentScore) error
	ListScores(ctx context.Context, enrollmentID string) ([]models.AssessmentScoreDetail, error)
}

type assessmentEnrollmentReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

// AssessmentComponent is one weighted component in a scheme definition.
type AssessmentComponent struct {
	Name   string  `json:"name" validate:"required"`
	Weight float64 `json:"weight" validate:"gt=0,lte=100"`
}

// DefineAssessmentsRequest replaces the grading scheme of a course.
type DefineAssessmentsRequest struct {
	Components []AssessmentComponent `json:"components" validate:"required,min=1,dive"`
}

// RecordScoreRequest records a 0-100 score against one component.
type RecordScoreRequest struct {
	AssessmentID string  `json:"assessment_id" validate:"required"`
	Score        float64 `json:"score" validate:"gte=0,lte=100"`
}

// AssessmentService manages per-course grading schemes and component
// scores. Schemes must weigh out to exactly 100.
type AssessmentService struct {
	repo        assessmentRepository
	enrollments assessmentEnrollmentReader
	courses     instructorAssignmentReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssessmentService constructs AssessmentService.
func NewAssessmentService(repo assessmentRepository, enrollments assessmentEnrollmentReader, courses instructorAssignmentReader, validate *validator.Validate, logger *zap.Logger) *AssessmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssessmentService{repo: repo, enrollments: enrollments, courses: courses, validator: validate, logger: logger}
}

// ListByCourse returns the grading scheme of a course.
func (s *AssessmentService) ListByCourse(ctx context.Context, courseID string) ([]models.CourseAssessment, error) {
	assessments, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assessments")
	}
	return assessments, nil
}

// Define replaces the course grading scheme atomically. Weights are float
// but must sum to 100 within a hundredth to absorb representation error.
func (s *AssessmentService) Define(ctx context.Context, courseID, graderID string, req DefineAssessmentsRequest) ([]models.CourseAssessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment scheme")
	}
	if err := s.requireAssigned(ctx, courseID, graderID); err != nil {
		return nil, err
	}

	var totalWeight float64
	assessments := make([]models.CourseAssessment, 0, len(req.Components))
	for _, component := range req.Components {
		totalWeight += component.Weight
		assessments = append(assessments, models.CourseAssessment{
			CourseID: courseID,
			Name:     component.Name,
			Weight:   component.Weight,
		})
	}
	if math.Abs(totalWeight-100) > 0.01 {
		return nil, appErrors.Clone(appErrors.ErrInvalidWeights, "")
	}

	if err := s.repo.ReplaceForCourse(ctx, courseID, assessments); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store assessment scheme")
	}
	s.logger.Info("assessment scheme replaced",
		zap.String("course_id", courseID),
		zap.Int("components", len(assessments)))

	stored, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assessments")
	}
	return stored, nil
}

// RecordScore upserts a component score for an enrollment.
func (s *AssessmentService) RecordScore(ctx context.Context, enrollmentID, graderID string, req RecordScoreRequest) (*models.EnrollmentAssessmentScore, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid score payload")
	}
	detail, err := s.enrollments.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if detail.Status != models.EnrollmentStatusEnrolled && detail.Status != models.EnrollmentStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "scores can only be recorded on active or completed enrollments")
	}
	if err := s.requireAssigned(ctx, detail.CourseID, graderID); err != nil {
		return nil, err
	}

	assessment, err := s.repo.FindByID(ctx, req.AssessmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
	}
	if assessment.CourseID != detail.CourseID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assessment belongs to another course")
	}

	score := &models.EnrollmentAssessmentScore{
		EnrollmentID: enrollmentID,
		AssessmentID: req.AssessmentID,
		Score:        req.Score,
	}
	if err := s.repo.UpsertScore(ctx, score); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record score")
	}
	return score, nil
}

// WeightedScore returns the running weighted total of an enrollment. The
// total is the sum of score x weight / 100 over the scored components;
// WeightScored reports how much of the scheme has been graded so far.
func (s *AssessmentService) WeightedScore(ctx context.Context, enrollmentID string) (*models.WeightedScore, error) {
	if _, err := s.enrollments.FindDetailByID(ctx, enrollmentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	components, err := s.repo.ListScores(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scores")
	}
	result := &models.WeightedScore{EnrollmentID: enrollmentID, Components: components}
	for _, component := range components {
		result.WeightScored += component.Weight
		result.Total += component.Score * component.Weight / 100
	}
	return result, nil
}

func (s *AssessmentService) requireAssigned(ctx context.Context, courseID, graderID string) error {
	if graderID == "" {
		return nil
	}
	assigned, err := s.courses.IsInstructorAssigned(ctx, courseID, graderID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course assignment")
	}
	if !assigned {
		return appErrors.Clone(appErrors.ErrForbidden, "instructor is not assigned to this course")
	}
	return nil
}
