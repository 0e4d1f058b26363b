package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	"github.com/noah-isme/uni-registrar-api/pkg/jobs"
)

type notificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

// NotificationService delivers in-app notifications through a background
// worker queue. Enqueue failures are logged and swallowed: notifications
// never fail the operation that triggered them.
type NotificationService struct {
	repo   notificationRepository
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService constructs NotificationService. Call Start before
// dispatching and Stop during shutdown.
func NewNotificationService(repo notificationRepository, cfg jobs.QueueConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{repo: repo, logger: logger}
	s.queue = jobs.NewQueue("notifications", s.handle, cfg)
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(*models.Notification)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.repo.Create(ctx, notification)
}

func (s *NotificationService) dispatch(notification *models.Notification) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    notification.Type,
		Payload: notification,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("user_id", notification.UserID),
			zap.String("type", notification.Type),
			zap.Error(err))
	}
}

// EnrollmentConfirmed notifies a student their seat is confirmed.
func (s *NotificationService) EnrollmentConfirmed(studentID string, course *models.CourseDetail) {
	s.dispatch(&models.Notification{
		UserID: studentID,
		Type:   models.NotificationEnrollment,
		Title:  "Enrollment confirmed",
		Body:   fmt.Sprintf("You are enrolled in %s (%s).", course.Code, course.Title),
	})
}

// WaitlistJoined notifies a student of their waitlist position.
func (s *NotificationService) WaitlistJoined(studentID string, course *models.CourseDetail, position int) {
	s.dispatch(&models.Notification{
		UserID: studentID,
		Type:   models.NotificationWaitlistJoin,
		Title:  "Added to waitlist",
		Body:   fmt.Sprintf("%s is full. You are number %d on the waitlist.", course.Code, position),
	})
}

// WaitlistPromoted notifies a student a seat has opened up for them.
func (s *NotificationService) WaitlistPromoted(studentID string, course *models.CourseDetail) {
	s.dispatch(&models.Notification{
		UserID: studentID,
		Type:   models.NotificationWaitlistPromotion,
		Title:  "Promoted from waitlist",
		Body:   fmt.Sprintf("A seat opened in %s (%s). You are now enrolled.", course.Code, course.Title),
	})
}

// GradePosted notifies a student their grade is available.
func (s *NotificationService) GradePosted(studentID, courseCode string, grade models.Grade) {
	s.dispatch(&models.Notification{
		UserID: studentID,
		Type:   models.NotificationGradePosted,
		Title:  "Grade posted",
		Body:   fmt.Sprintf("Your grade for %s has been posted: %s.", courseCode, grade),
	})
}

// ListForUser returns a user's notifications.
func (s *NotificationService) ListForUser(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	return s.repo.ListByUser(ctx, filter)
}

// MarkRead flags a notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	return s.repo.MarkRead(ctx, id, userID)
}
