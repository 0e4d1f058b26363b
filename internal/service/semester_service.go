package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type semesterRepository interface {
	FindByID(ctx context.Context, id string) (*models.Semester, error)
	FindActive(ctx context.Context) (*models.Semester, error)
	List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, int, error)
	Create(ctx context.Context, semester *models.Semester) error
	Update(ctx context.Context, semester *models.Semester) error
	Activate(ctx context.Context, id string) error
}

// SemesterRequest carries the semester dates for create and update.
type SemesterRequest struct {
	Name            string    `json:"name" validate:"required"`
	StartDate       time.Time `json:"start_date" validate:"required"`
	EndDate         time.Time `json:"end_date" validate:"required"`
	EnrollmentStart time.Time `json:"enrollment_start" validate:"required"`
	EnrollmentEnd   time.Time `json:"enrollment_end" validate:"required"`
	DropDeadline    time.Time `json:"drop_deadline" validate:"required"`
}

// SemesterService manages academic periods. At most one semester is active
// at a time; activation always goes through a single transaction.
type SemesterService struct {
	repo      semesterRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSemesterService constructs SemesterService.
func NewSemesterService(repo semesterRepository, validate *validator.Validate, logger *zap.Logger) *SemesterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemesterService{repo: repo, validator: validate, logger: logger}
}

func (s *SemesterService) validateDates(req SemesterRequest) error {
	if !req.StartDate.Before(req.EndDate) {
		return appErrors.Clone(appErrors.ErrValidation, "start date must precede end date")
	}
	if !req.EnrollmentStart.Before(req.EnrollmentEnd) {
		return appErrors.Clone(appErrors.ErrValidation, "enrollment start must precede enrollment end")
	}
	if req.DropDeadline.Before(req.StartDate) || req.DropDeadline.After(req.EndDate) {
		return appErrors.Clone(appErrors.ErrValidation, "drop deadline must fall within the semester")
	}
	return nil
}

// List returns semesters with pagination metadata.
func (s *SemesterService) List(ctx context.Context, filter models.SemesterFilter) ([]models.Semester, *models.Pagination, error) {
	semesters, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list semesters")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return semesters, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a semester by ID.
func (s *SemesterService) Get(ctx context.Context, id string) (*models.Semester, error) {
	semester, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	return semester, nil
}

// GetActive returns the currently active semester. The lookup is always a
// live query so activation changes are visible immediately.
func (s *SemesterService) GetActive(ctx context.Context) (*models.Semester, error) {
	semester, err := s.repo.FindActive(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active semester")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active semester")
	}
	return semester, nil
}

// Create registers a new semester. New semesters start inactive.
func (s *SemesterService) Create(ctx context.Context, req SemesterRequest) (*models.Semester, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}
	if err := s.validateDates(req); err != nil {
		return nil, err
	}
	semester := &models.Semester{
		Name:            req.Name,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		EnrollmentStart: req.EnrollmentStart,
		EnrollmentEnd:   req.EnrollmentEnd,
		DropDeadline:    req.DropDeadline,
	}
	if err := s.repo.Create(ctx, semester); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create semester")
	}
	s.logger.Info("semester created", zap.String("semester_id", semester.ID), zap.String("name", semester.Name))
	return semester, nil
}

// Update edits the dates of an existing semester.
func (s *SemesterService) Update(ctx context.Context, id string, req SemesterRequest) (*models.Semester, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}
	if err := s.validateDates(req); err != nil {
		return nil, err
	}
	semester, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	semester.Name = req.Name
	semester.StartDate = req.StartDate
	semester.EndDate = req.EndDate
	semester.EnrollmentStart = req.EnrollmentStart
	semester.EnrollmentEnd = req.EnrollmentEnd
	semester.DropDeadline = req.DropDeadline
	if err := s.repo.Update(ctx, semester); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update semester")
	}
	return semester, nil
}

// Activate makes the semester the single active one.
func (s *SemesterService) Activate(ctx context.Context, id string) (*models.Semester, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	if err := s.repo.Activate(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate semester")
	}
	s.logger.Info("semester activated", zap.String("semester_id", id))
	return s.repo.FindByID(ctx, id)
}
