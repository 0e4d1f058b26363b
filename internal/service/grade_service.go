package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type gradeEnrollmentRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	RecordGrade(ctx context.Context, id string, grade models.Grade, gradePoints *float64, gradedBy string, gradedAt time.Time) error
	ListByCourse(ctx context.Context, courseID string, status models.EnrollmentStatus) ([]models.EnrollmentDetail, error)
}

type instructorAssignmentReader interface {
	IsInstructorAssigned(ctx context.Context, courseID, instructorID string) (bool, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type gradeNotifier interface {
	GradePosted(studentID, courseCode string, grade models.Grade)
}

// SubmitGradeRequest carries a grade token for one enrollment.
type SubmitGradeRequest struct {
	Grade string `json:"grade" validate:"required"`
}

// GradeService records final grades and enforces the grading window. Grade
// points are derived from the policy table, never accepted from the caller.
type GradeService struct {
	enrollments gradeEnrollmentRepository
	courses     instructorAssignmentReader
	audit       auditWriter
	notifier    gradeNotifier
	cache       transcriptInvalidator
	policy      models.AcademicPolicy
	now         func() time.Time
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs GradeService.
func NewGradeService(enrollments gradeEnrollmentRepository, courses instructorAssignmentReader, audit auditWriter, notifier gradeNotifier, cache transcriptInvalidator, policy models.AcademicPolicy, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		enrollments: enrollments,
		courses:     courses,
		audit:       audit,
		notifier:    notifier,
		cache:       cache,
		policy:      policy,
		now:         func() time.Time { return time.Now().UTC() },
		validator:   validate,
		logger:      logger,
	}
}

// Submit records a final grade on an ENROLLED enrollment and completes it.
// Re-submitting onto a COMPLETED row is allowed inside the grading window;
// the instructor must be assigned to the course. The grading window runs
// until the semester end date plus the configured grace period.
func (s *GradeService) Submit(ctx context.Context, enrollmentID, graderID string, req SubmitGradeRequest) (*models.EnrollmentDetail, error) {
	return s.record(ctx, enrollmentID, graderID, req, models.AuditActionGradeSubmit, false)
}

// Update overwrites the grade of a COMPLETED enrollment. Unlike Submit it
// refuses rows that were never graded.
func (s *GradeService) Update(ctx context.Context, enrollmentID, graderID string, req SubmitGradeRequest) (*models.EnrollmentDetail, error) {
	return s.record(ctx, enrollmentID, graderID, req, models.AuditActionGradeUpdate, true)
}

func (s *GradeService) record(ctx context.Context, enrollmentID, graderID string, req SubmitGradeRequest, action string, requireCompleted bool) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	grade := models.Grade(req.Grade)
	if !grade.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown grade token")
	}

	detail, err := s.enrollments.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if requireCompleted {
		if detail.Status != models.EnrollmentStatusCompleted {
			return nil, appErrors.Clone(appErrors.ErrConflict, "only completed enrollments can have their grade updated")
		}
	} else if detail.Status != models.EnrollmentStatusEnrolled && detail.Status != models.EnrollmentStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment is not gradable")
	}

	if graderID != "" {
		assigned, err := s.courses.IsInstructorAssigned(ctx, detail.CourseID, graderID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course assignment")
		}
		if !assigned {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "instructor is not assigned to this course")
		}
	}

	now := s.now()
	deadline := detail.SemesterEnd.Add(s.policy.GradingWindow)
	if now.After(deadline) {
		return nil, appErrors.Clone(appErrors.ErrGradingClosed, "grading window for the semester has closed")
	}

	var gradePoints *float64
	if points, ok := grade.Points(); ok {
		qp := points * float64(detail.Credits)
		gradePoints = &qp
	}

	if err := s.enrollments.RecordGrade(ctx, enrollmentID, grade, gradePoints, graderID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}

	s.logger.Info("grade recorded",
		zap.String("enrollment_id", enrollmentID),
		zap.String("grade", string(grade)),
		zap.String("graded_by", graderID),
		zap.String("action", action))

	s.writeAudit(ctx, action, enrollmentID, graderID, detail.Grade, grade)

	if s.cache != nil {
		s.cache.Invalidate(ctx, detail.StudentID)
	}
	if s.notifier != nil {
		s.notifier.GradePosted(detail.StudentID, detail.CourseCode, grade)
	}

	updated, err := s.enrollments.FindDetailByID(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return updated, nil
}

// CourseGrades returns the graded roster of a course. A non-admin caller
// must be assigned to the course.
func (s *GradeService) CourseGrades(ctx context.Context, courseID, graderID string) ([]models.EnrollmentDetail, error) {
	if graderID != "" {
		assigned, err := s.courses.IsInstructorAssigned(ctx, courseID, graderID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course assignment")
		}
		if !assigned {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "instructor is not assigned to this course")
		}
	}
	roster, err := s.enrollments.ListByCourse(ctx, courseID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course grades")
	}
	return roster, nil
}

// writeAudit stores the before/after grade values. Audit failures never
// block the grade itself.
func (s *GradeService) writeAudit(ctx context.Context, action, enrollmentID, graderID string, before *models.Grade, after models.Grade) {
	if s.audit == nil {
		return
	}
	oldValues, _ := json.Marshal(map[string]interface{}{"grade": before})
	newValues, _ := json.Marshal(map[string]interface{}{"grade": after})
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "enrollment",
		ResourceID: &enrollmentID,
		OldValues:  oldValues,
		NewValues:  newValues,
	}
	if graderID != "" {
		entry.UserID = &graderID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write grade audit entry", zap.String("enrollment_id", enrollmentID), zap.Error(err))
	}
}
