package models

import "time"

// Course is an offering of a catalog code within a single semester.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description,omitempty"`
	SemesterID  string    `db:"semester_id" json:"semester_id"`
	Credits     int       `db:"credits" json:"credits"`
	Capacity    int       `db:"capacity" json:"capacity"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches a course with its semester windows, which the
// enrollment and grading engines consult on every decision.
type CourseDetail struct {
	Course
	SemesterName    string    `db:"semester_name" json:"semester_name"`
	SemesterStart   time.Time `db:"semester_start" json:"semester_start"`
	SemesterEnd     time.Time `db:"semester_end" json:"semester_end"`
	EnrollmentStart time.Time `db:"enrollment_start" json:"enrollment_start"`
	EnrollmentEnd   time.Time `db:"enrollment_end" json:"enrollment_end"`
	DropDeadline    time.Time `db:"drop_deadline" json:"drop_deadline"`
}

// EnrollmentOpen reports whether now falls inside the semester enrollment window.
func (c *CourseDetail) EnrollmentOpen(now time.Time) bool {
	return !now.Before(c.EnrollmentStart) && !now.After(c.EnrollmentEnd)
}

// CourseInstructor links an instructor to a course.
type CourseInstructor struct {
	ID           string    `db:"id" json:"id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	InstructorID string    `db:"instructor_id" json:"instructor_id"`
	IsPrimary    bool      `db:"is_primary" json:"is_primary"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// CourseInstructorDetail joins the instructor's identity for listings.
type CourseInstructorDetail struct {
	CourseInstructor
	InstructorName  string `db:"instructor_name" json:"instructor_name"`
	InstructorEmail string `db:"instructor_email" json:"instructor_email"`
}

// CourseFilter captures filtering criteria for listing courses.
type CourseFilter struct {
	SemesterID   string
	Code         string
	InstructorID string
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
