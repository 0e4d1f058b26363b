package models

import "time"

// TranscriptEntry is one enrollment row as shown on the transcript. Every
// status appears; CountsTowardGPA marks the rows that survived repeat-course
// deduplication and carry a GPA-eligible grade.
type TranscriptEntry struct {
	EnrollmentID    string           `json:"enrollment_id"`
	CourseCode      string           `json:"course_code"`
	CourseTitle     string           `json:"course_title"`
	Credits         int              `json:"credits"`
	Status          EnrollmentStatus `json:"status"`
	Grade           *Grade           `json:"grade,omitempty"`
	GradePoints     *float64         `json:"grade_points,omitempty"`
	CountsTowardGPA bool             `json:"counts_toward_gpa"`
}

// TranscriptSemester groups entries by semester in chronological order.
type TranscriptSemester struct {
	SemesterID   string            `json:"semester_id"`
	SemesterName string            `json:"semester_name"`
	StartDate    time.Time         `json:"start_date"`
	Entries      []TranscriptEntry `json:"entries"`
	Credits      int               `json:"credits"`
	GradePoints  float64           `json:"grade_points"`
	GPA          *float64          `json:"gpa,omitempty"`
}

// GpaProgression splits cumulative totals into previous vs last semester.
type GpaProgression struct {
	PreviousCredits     int      `json:"previous_credits"`
	PreviousGradePoints float64  `json:"previous_grade_points"`
	PreviousGPA         *float64 `json:"previous_gpa,omitempty"`
	LastCredits         int      `json:"last_credits"`
	LastGradePoints     float64  `json:"last_grade_points"`
	LastGPA             *float64 `json:"last_gpa,omitempty"`
	CumulativeCredits   int      `json:"cumulative_credits"`
	CumulativePoints    float64  `json:"cumulative_points"`
	CumulativeGPA       *float64 `json:"cumulative_gpa,omitempty"`
	AcademicStatus      string   `json:"academic_status"`
}

// GpaSummary aggregates the GPA-eligible rows across all semesters.
type GpaSummary struct {
	TotalCredits     int             `json:"total_credits"`
	TotalGradePoints float64         `json:"total_grade_points"`
	CumulativeGPA    *float64        `json:"cumulative_gpa,omitempty"`
	AcademicStanding string          `json:"academic_standing"`
	Progression      *GpaProgression `json:"progression,omitempty"`
}

// Transcript is the full academic record for one student.
type Transcript struct {
	StudentID   string               `json:"student_id"`
	StudentName string               `json:"student_name,omitempty"`
	Semesters   []TranscriptSemester `json:"semesters"`
	Summary     GpaSummary           `json:"summary"`
	GeneratedAt time.Time            `json:"generated_at"`
}
