package models

import "time"

// CourseAssessment is a weighted grading component of a course, e.g.
// "Midterm 30" / "Final 70". Weights across a course must sum to 100.
type CourseAssessment struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Name      string    `db:"name" json:"name"`
	Weight    float64   `db:"weight" json:"weight"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EnrollmentAssessmentScore records a 0-100 score for one assessment.
type EnrollmentAssessmentScore struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	AssessmentID string    `db:"assessment_id" json:"assessment_id"`
	Score        float64   `db:"score" json:"score"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// AssessmentScoreDetail joins the component metadata for listings.
type AssessmentScoreDetail struct {
	EnrollmentAssessmentScore
	AssessmentName string  `db:"assessment_name" json:"assessment_name"`
	Weight         float64 `db:"weight" json:"weight"`
}

// WeightedScore summarises a student's running weighted total for a course.
type WeightedScore struct {
	EnrollmentID string                  `json:"enrollment_id"`
	Components   []AssessmentScoreDetail `json:"components"`
	WeightScored float64                 `json:"weight_scored"`
	Total        float64                 `json:"total"`
}
