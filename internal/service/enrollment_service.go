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

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsActivePair(ctx context.Context, studentID, courseID string) (bool, error)
	SumEnrolledCredits(ctx context.Context, studentID, semesterID string) (int, error)
	CountEnrolledInSemester(ctx context.Context, studentID, semesterID string) (int, error)
	Admit(ctx context.Context, studentID, courseID string, eligible func(context.Context) error) (*models.AdmissionResult, error)
	MarkDropped(ctx context.Context, id string, droppedAt time.Time, grade *models.Grade) error
	PromoteOldestWaitlisted(ctx context.Context, courseID string, promotedAt time.Time) (*models.Enrollment, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	ListByCourse(ctx context.Context, courseID string, status models.EnrollmentStatus) ([]models.EnrollmentDetail, error)
}

type courseDetailReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error)
}

type prerequisiteChecker interface {
	Check(ctx context.Context, studentID, courseCode string) (*models.PrerequisiteCheck, error)
}

type enrollmentNotifier interface {
	EnrollmentConfirmed(studentID string, course *models.CourseDetail)
	WaitlistJoined(studentID string, course *models.CourseDetail, position int)
	WaitlistPromoted(studentID string, course *models.CourseDetail)
}

type transcriptInvalidator interface {
	Invalidate(ctx context.Context, studentID string)
}

// EnrollRequest describes an enrollment attempt payload.
type EnrollRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

// EnrollmentService orchestrates enrollment, drop and waitlist workflows.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   courseDetailReader
	prereqs   prerequisiteChecker
	notifier  enrollmentNotifier
	cache     transcriptInvalidator
	metrics   *MetricsService
	policy    models.AcademicPolicy
	now       func() time.Time
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses courseDetailReader, prereqs prerequisiteChecker, notifier enrollmentNotifier, cache transcriptInvalidator, metrics *MetricsService, policy models.AcademicPolicy, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:      repo,
		courses:   courses,
		prereqs:   prereqs,
		notifier:  notifier,
		cache:     cache,
		metrics:   metrics,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
		validator: validate,
		logger:    logger,
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// ListByStudent returns every enrollment for the student across semesters.
func (s *EnrollmentService) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student enrollments")
	}
	return enrollments, nil
}

// ListByCourse returns a course roster, optionally filtered to one status.
func (s *EnrollmentService) ListByCourse(ctx context.Context, courseID string, status models.EnrollmentStatus) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.repo.ListByCourse(ctx, courseID, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course roster")
	}
	return enrollments, nil
}

// Enroll attempts to register the student in a course. The checks run in a
// fixed order so callers get deterministic failures: course existence, the
// semester enrollment window, a duplicate-registration conflict, then
// capacity. A full course waitlists the student immediately; prerequisite
// and credit-limit checks apply only when a seat is free.
func (s *EnrollmentService) Enroll(ctx context.Context, studentID string, req EnrollRequest) (*models.AdmissionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	course, err := s.courses.FindDetailByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	now := s.now()
	if !course.EnrollmentOpen(now) {
		return nil, appErrors.Clone(appErrors.ErrEnrollmentClosed, "enrollment window for the semester is closed")
	}

	exists, err := s.repo.ExistsActivePair(ctx, studentID, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled or waitlisted in this course")
	}

	result, err := s.repo.Admit(ctx, studentID, course.ID, func(ctx context.Context) error {
		check, err := s.prereqs.Check(ctx, studentID, course.Code)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prerequisites")
		}
		if !check.Met {
			return appErrors.WithDetails(appErrors.ErrPrerequisiteNotMet, "missing prerequisites for "+course.Code, map[string]interface{}{
				"missing_prerequisites": check.Missing,
			})
		}
		credits, err := s.repo.SumEnrolledCredits(ctx, studentID, course.SemesterID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to total semester credits")
		}
		if credits+course.Credits > s.policy.MaxCreditsPerSemester {
			return appErrors.Clone(appErrors.ErrCreditLimit, "enrolling would exceed the semester credit limit")
		}
		return nil
	})
	if err != nil {
		if appErr, ok := err.(*appErrors.Error); ok {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to admit enrollment")
	}

	switch result.Status {
	case models.AdmissionEnrolled:
		s.metrics.RecordAdmission("enrolled")
		s.logger.Info("student enrolled",
			zap.String("student_id", studentID),
			zap.String("course_id", course.ID),
			zap.String("course_code", course.Code))
		if s.notifier != nil {
			s.notifier.EnrollmentConfirmed(studentID, course)
		}
	case models.AdmissionWaitlisted:
		s.metrics.RecordAdmission("waitlisted")
		s.logger.Info("student waitlisted",
			zap.String("student_id", studentID),
			zap.String("course_id", course.ID),
			zap.Int("position", result.WaitlistPosition))
		if s.notifier != nil {
			s.notifier.WaitlistJoined(studentID, course, result.WaitlistPosition)
		}
	}
	return result, nil
}

// Drop removes an ENROLLED student from a course. A drop on or before the
// semester drop deadline leaves no transcript trace; after the deadline the
// row keeps a W grade. Dropping frees a seat, so the oldest waitlisted
// student, if any, is promoted exactly once.
func (s *EnrollmentService) Drop(ctx context.Context, enrollmentID, studentID string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if studentID != "" && detail.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
	}
	if detail.Status != models.EnrollmentStatusEnrolled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only enrolled courses can be dropped")
	}

	enrolledCount, err := s.repo.CountEnrolledInSemester(ctx, detail.StudentID, detail.SemesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count semester enrollments")
	}
	if enrolledCount <= 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot drop the only enrolled course of the semester")
	}

	now := s.now()
	var withdrawal *models.Grade
	if now.After(detail.DropDeadline) {
		w := models.GradeW
		withdrawal = &w
	}
	if err := s.repo.MarkDropped(ctx, enrollmentID, now, withdrawal); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop enrollment")
	}
	s.logger.Info("enrollment dropped",
		zap.String("enrollment_id", enrollmentID),
		zap.String("student_id", detail.StudentID),
		zap.Bool("withdrawal", withdrawal != nil))

	if withdrawal != nil && s.cache != nil {
		s.cache.Invalidate(ctx, detail.StudentID)
	}

	s.promoteNext(ctx, detail.CourseID)

	updated, err := s.repo.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return updated, nil
}

// LeaveWaitlist removes a WAITLISTED entry. No seat is freed, so no
// promotion happens.
func (s *EnrollmentService) LeaveWaitlist(ctx context.Context, enrollmentID, studentID string) error {
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "waitlist entry not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load waitlist entry")
	}
	if studentID != "" && enrollment.StudentID != studentID {
		return appErrors.Clone(appErrors.ErrForbidden, "waitlist entry belongs to another student")
	}
	if enrollment.Status != models.EnrollmentStatusWaitlisted {
		return appErrors.Clone(appErrors.ErrConflict, "enrollment is not waitlisted")
	}
	if err := s.repo.MarkDropped(ctx, enrollmentID, s.now(), nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to leave waitlist")
	}
	s.logger.Info("waitlist entry removed",
		zap.String("enrollment_id", enrollmentID),
		zap.String("student_id", enrollment.StudentID))
	return nil
}

// promoteNext moves the head of the course waitlist into the freed seat.
// Promotion failures are logged, not propagated: the drop already succeeded.
func (s *EnrollmentService) promoteNext(ctx context.Context, courseID string) {
	promoted, err := s.repo.PromoteOldestWaitlisted(ctx, courseID, s.now())
	if err != nil {
		s.logger.Error("waitlist promotion failed", zap.String("course_id", courseID), zap.Error(err))
		return
	}
	if promoted == nil {
		return
	}
	s.logger.Info("waitlisted student promoted",
		zap.String("course_id", courseID),
		zap.String("student_id", promoted.StudentID),
		zap.String("enrollment_id", promoted.ID))
	if s.notifier != nil {
		course, err := s.courses.FindDetailByID(ctx, courseID)
		if err != nil {
			s.logger.Warn("failed to load course for promotion notice", zap.String("course_id", courseID), zap.Error(err))
			return
		}
		s.notifier.WaitlistPromoted(promoted.StudentID, course)
	}
}
