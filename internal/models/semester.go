package models

import "time"

// Semester owns the academic period and its enrollment/drop windows.
type Semester struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	StartDate       time.Time `db:"start_date" json:"start_date"`
	EndDate         time.Time `db:"end_date" json:"end_date"`
	EnrollmentStart time.Time `db:"enrollment_start" json:"enrollment_start"`
	EnrollmentEnd   time.Time `db:"enrollment_end" json:"enrollment_end"`
	DropDeadline    time.Time `db:"drop_deadline" json:"drop_deadline"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// EnrollmentOpen reports whether now falls inside the enrollment window.
func (s *Semester) EnrollmentOpen(now time.Time) bool {
	return !now.Before(s.EnrollmentStart) && !now.After(s.EnrollmentEnd)
}

// PastDropDeadline reports whether a drop at now is a withdrawal.
func (s *Semester) PastDropDeadline(now time.Time) bool {
	return now.After(s.DropDeadline)
}

// SemesterFilter defines filters supported by list endpoints.
type SemesterFilter struct {
	IsActive  *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
