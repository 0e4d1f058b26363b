package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type prerequisiteRepository interface {
	ListForCourse(ctx context.Context, courseCode string) ([]models.CoursePrerequisite, error)
	Exists(ctx context.Context, courseCode, prerequisiteCode string) (bool, error)
	Create(ctx context.Context, edge *models.CoursePrerequisite) error
	Delete(ctx context.Context, id string) error
}

type completedEnrollmentReader interface {
	ListCompletedByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

// AddPrerequisiteRequest declares a prerequisite edge between catalog codes.
type AddPrerequisiteRequest struct {
	CourseCode       string `json:"course_code" validate:"required"`
	PrerequisiteCode string `json:"prerequisite_code" validate:"required"`
}

// PrerequisiteService manages the prerequisite graph and answers
// eligibility checks for the enrollment engine.
type PrerequisiteService struct {
	repo        prerequisiteRepository
	enrollments completedEnrollmentReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewPrerequisiteService constructs PrerequisiteService.
func NewPrerequisiteService(repo prerequisiteRepository, enrollments completedEnrollmentReader, validate *validator.Validate, logger *zap.Logger) *PrerequisiteService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrerequisiteService{repo: repo, enrollments: enrollments, validator: validate, logger: logger}
}

// ListForCourse returns the declared prerequisites of a catalog code.
func (s *PrerequisiteService) ListForCourse(ctx context.Context, courseCode string) ([]models.CoursePrerequisite, error) {
	edges, err := s.repo.ListForCourse(ctx, courseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list prerequisites")
	}
	return edges, nil
}

// Check validates the student's completed grades against a course's
// prerequisites. A completed course only satisfies a prerequisite when its
// grade passes; F, W, DO, NG and I do not count even though some of them
// participate in GPA math.
func (s *PrerequisiteService) Check(ctx context.Context, studentID, courseCode string) (*models.PrerequisiteCheck, error) {
	edges, err := s.repo.ListForCourse(ctx, courseCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list prerequisites")
	}
	check := &models.PrerequisiteCheck{CourseCode: courseCode, Met: true, Missing: []string{}}
	if len(edges) == 0 {
		return check, nil
	}

	completed, err := s.enrollments.ListCompletedByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed courses")
	}
	satisfied := make(map[string]bool, len(completed))
	for _, enrollment := range completed {
		if enrollment.Grade != nil && enrollment.Grade.SatisfiesPrerequisite() {
			satisfied[enrollment.CourseCode] = true
		}
	}

	for _, edge := range edges {
		if !satisfied[edge.PrerequisiteCode] {
			check.Missing = append(check.Missing, edge.PrerequisiteCode)
		}
	}
	check.Met = len(check.Missing) == 0
	return check, nil
}

// Add declares a prerequisite edge. Self-references and duplicates are
// rejected.
func (s *PrerequisiteService) Add(ctx context.Context, req AddPrerequisiteRequest) (*models.CoursePrerequisite, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid prerequisite payload")
	}
	courseCode := strings.TrimSpace(req.CourseCode)
	prereqCode := strings.TrimSpace(req.PrerequisiteCode)
	if strings.EqualFold(courseCode, prereqCode) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a course cannot be its own prerequisite")
	}
	exists, err := s.repo.Exists(ctx, courseCode, prereqCode)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prerequisite")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "prerequisite already declared")
	}
	edge := &models.CoursePrerequisite{CourseCode: courseCode, PrerequisiteCode: prereqCode}
	if err := s.repo.Create(ctx, edge); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create prerequisite")
	}
	s.logger.Info("prerequisite declared",
		zap.String("course_code", courseCode),
		zap.String("prerequisite_code", prereqCode))
	return edge, nil
}

// Remove deletes a prerequisite edge by ID.
func (s *PrerequisiteService) Remove(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "prerequisite not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete prerequisite")
	}
	return nil
}
