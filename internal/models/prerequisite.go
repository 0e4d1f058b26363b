package models

import "time"

// CoursePrerequisite is a directed edge between catalog codes. Edges are
// code-based rather than row FKs so a prerequisite can be declared before
// the equivalent offering exists in a given semester.
type CoursePrerequisite struct {
	ID               string    `db:"id" json:"id"`
	CourseCode       string    `db:"course_code" json:"course_code"`
	PrerequisiteCode string    `db:"prerequisite_code" json:"prerequisite_code"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// PrerequisiteCheck is the outcome of validating a student's completed set
// against a course's declared prerequisites.
type PrerequisiteCheck struct {
	CourseCode string   `json:"course_code"`
	Met        bool     `json:"met"`
	Missing    []string `json:"missing"`
}
