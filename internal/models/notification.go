package models

import "time"

// Notification types emitted by the registrar workflows.
const (
	NotificationEnrollment        = "ENROLLMENT"
	NotificationWaitlistJoin      = "WAITLIST_JOIN"
	NotificationWaitlistPromotion = "WAITLIST_PROMOTION"
	NotificationGradePosted       = "GRADE_POSTED"
)

// Notification is an in-app message delivered to a user. Delivery is
// fire-and-forget: failures are logged, never surfaced to the caller.
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Type      string    `db:"type" json:"type"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body"`
	Read      bool      `db:"read" json:"read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NotificationFilter provides filters for listing notifications.
type NotificationFilter struct {
	UserID   string
	Unread   *bool
	Page     int
	PageSize int
}
