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

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error)
	ExistsByCodeInSemester(ctx context.Context, code, semesterID, excludeID string) (bool, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	ListInstructors(ctx context.Context, courseID string) ([]models.CourseInstructorDetail, error)
	AssignInstructor(ctx context.Context, assignment *models.CourseInstructor) error
	UnassignInstructor(ctx context.Context, courseID, instructorID string) error
}

type semesterReader interface {
	FindByID(ctx context.Context, id string) (*models.Semester, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CourseRequest carries the offering fields for create and update.
type CourseRequest struct {
	Code        string  `json:"code" validate:"required"`
	Title       string  `json:"title" validate:"required"`
	Description *string `json:"description,omitempty"`
	SemesterID  string  `json:"semester_id" validate:"required"`
	Credits     int     `json:"credits" validate:"required,min=1,max=6"`
	Capacity    int     `json:"capacity" validate:"required,min=1,max=500"`
}

// AssignInstructorRequest links an instructor to a course.
type AssignInstructorRequest struct {
	InstructorID string `json:"instructor_id" validate:"required"`
	IsPrimary    bool   `json:"is_primary"`
}

// CourseService manages course offerings and instructor assignments.
type CourseService struct {
	repo      courseRepository
	semesters semesterReader
	users     userReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, semesters semesterReader, users userReader, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, semesters: semesters, users: users, validator: validate, logger: logger}
}

// List returns courses joined with their semester windows.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a course with its semester context.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseDetail, error) {
	course, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a course offering. The catalog code must be unique
// within the semester.
func (s *CourseService) Create(ctx context.Context, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if _, err := s.semesters.FindByID(ctx, req.SemesterID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	exists, err := s.repo.ExistsByCodeInSemester(ctx, code, req.SemesterID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already offered in this semester")
	}
	course := &models.Course{
		Code:        code,
		Title:       req.Title,
		Description: req.Description,
		SemesterID:  req.SemesterID,
		Credits:     req.Credits,
		Capacity:    req.Capacity,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("code", course.Code))
	return course, nil
}

// Update edits an existing offering.
func (s *CourseService) Update(ctx context.Context, id string, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	exists, err := s.repo.ExistsByCodeInSemester(ctx, code, req.SemesterID, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already offered in this semester")
	}
	course.Code = code
	course.Title = req.Title
	course.Description = req.Description
	course.SemesterID = req.SemesterID
	course.Credits = req.Credits
	course.Capacity = req.Capacity
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// ListInstructors returns the instructors assigned to a course.
func (s *CourseService) ListInstructors(ctx context.Context, courseID string) ([]models.CourseInstructorDetail, error) {
	instructors, err := s.repo.ListInstructors(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list instructors")
	}
	return instructors, nil
}

// AssignInstructor links an instructor account to a course. The target user
// must carry the INSTRUCTOR role.
func (s *CourseService) AssignInstructor(ctx context.Context, courseID string, req AssignInstructorRequest) (*models.CourseInstructor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if _, err := s.repo.FindByID(ctx, courseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	user, err := s.users.FindByID(ctx, req.InstructorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}
	if user.Role != models.RoleInstructor {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not an instructor")
	}
	assignment := &models.CourseInstructor{
		CourseID:     courseID,
		InstructorID: req.InstructorID,
		IsPrimary:    req.IsPrimary,
	}
	if err := s.repo.AssignInstructor(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign instructor")
	}
	s.logger.Info("instructor assigned",
		zap.String("course_id", courseID),
		zap.String("instructor_id", req.InstructorID),
		zap.Bool("primary", req.IsPrimary))
	return assignment, nil
}

// UnassignInstructor removes an instructor from a course.
func (s *CourseService) UnassignInstructor(ctx context.Context, courseID, instructorID string) error {
	if err := s.repo.UnassignInstructor(ctx, courseID, instructorID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unassign instructor")
	}
	return nil
}
