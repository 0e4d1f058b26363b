package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Status transitions: WAITLISTED -> ENROLLED (promotion) or DROPPED;
// ENROLLED -> DROPPED or COMPLETED. DROPPED is terminal; COMPLETED is
// terminal but its grade may be overwritten by an authorized update.
const (
	EnrollmentStatusEnrolled   EnrollmentStatus = "ENROLLED"
	EnrollmentStatusWaitlisted EnrollmentStatus = "WAITLISTED"
	EnrollmentStatusDropped    EnrollmentStatus = "DROPPED"
	EnrollmentStatusCompleted  EnrollmentStatus = "COMPLETED"
)

// Enrollment captures a student's registration in a course. Rows are never
// deleted so transcripts retain withdrawn and completed history.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	CourseID    string           `db:"course_id" json:"course_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	Grade       *Grade           `db:"grade" json:"grade,omitempty"`
	GradePoints *float64         `db:"grade_points" json:"grade_points,omitempty"`
	EnrolledAt  time.Time        `db:"enrolled_at" json:"enrolled_at"`
	DroppedAt   *time.Time       `db:"dropped_at" json:"dropped_at,omitempty"`
	GradedAt    *time.Time       `db:"graded_at" json:"graded_at,omitempty"`
	GradedBy    *string          `db:"graded_by" json:"graded_by,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// Active reports whether the row blocks a new enrollment in the same course.
func (e *Enrollment) Active() bool {
	return e.Status == EnrollmentStatusEnrolled || e.Status == EnrollmentStatusWaitlisted
}

// EnrollmentDetail joins the course and semester context needed by the
// enrollment, grading and transcript engines.
type EnrollmentDetail struct {
	Enrollment
	StudentName   string    `db:"student_name" json:"student_name"`
	StudentEmail  string    `db:"student_email" json:"student_email"`
	CourseCode    string    `db:"course_code" json:"course_code"`
	CourseTitle   string    `db:"course_title" json:"course_title"`
	Credits       int       `db:"credits" json:"credits"`
	Capacity      int       `db:"capacity" json:"capacity"`
	SemesterID    string    `db:"semester_id" json:"semester_id"`
	SemesterName  string    `db:"semester_name" json:"semester_name"`
	SemesterStart time.Time `db:"semester_start" json:"semester_start"`
	SemesterEnd   time.Time `db:"semester_end" json:"semester_end"`
	DropDeadline  time.Time `db:"drop_deadline" json:"drop_deadline"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID  string
	CourseID   string
	SemesterID string
	Status     EnrollmentStatus
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// Admission outcome statuses returned by the enroll operation.
const (
	AdmissionEnrolled   = "enrolled"
	AdmissionWaitlisted = "waitlisted"
)

// AdmissionResult reports how an enroll attempt was admitted.
type AdmissionResult struct {
	Status           string      `json:"status"`
	WaitlistPosition int         `json:"waitlist_position,omitempty"`
	Enrollment       *Enrollment `json:"enrollment"`
}
