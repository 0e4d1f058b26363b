package models

import (
	"math"
	"time"
)

// Grade is a letter-grade token recorded on a completed enrollment.
type Grade string

// Grade tokens. P/I/W/DO/NG appear on transcripts but carry no grade points.
const (
	GradeAPlus  Grade = "A_PLUS"
	GradeA      Grade = "A"
	GradeAMinus Grade = "A_MINUS"
	GradeBPlus  Grade = "B_PLUS"
	GradeB      Grade = "B"
	GradeBMinus Grade = "B_MINUS"
	GradeCPlus  Grade = "C_PLUS"
	GradeC      Grade = "C"
	GradeD      Grade = "D"
	GradeF      Grade = "F"
	GradeP      Grade = "P"
	GradeI      Grade = "I"
	GradeW      Grade = "W"
	GradeDO     Grade = "DO"
	GradeNG     Grade = "NG"
)

// gradePoints maps GPA-eligible tokens to their 4.0-anchored point values.
var gradePoints = map[Grade]float64{
	GradeAPlus:  4.0,
	GradeA:      4.0,
	GradeAMinus: 3.7,
	GradeBPlus:  3.3,
	GradeB:      3.0,
	GradeBMinus: 2.7,
	GradeCPlus:  2.3,
	GradeC:      2.0,
	GradeD:      1.0,
	GradeF:      0.0,
}

// gradeOnly tokens are valid grades without a numeric point value.
var pointlessGrades = map[Grade]struct{}{
	GradeP:  {},
	GradeI:  {},
	GradeW:  {},
	GradeDO: {},
	GradeNG: {},
}

// nonPassingGrades is the stricter filter used by the prerequisite checker.
// Note it differs from GPA eligibility: P passes a prerequisite but never
// enters GPA math; F enters GPA math but never passes a prerequisite.
var nonPassingGrades = map[Grade]struct{}{
	GradeF:  {},
	GradeW:  {},
	GradeDO: {},
	GradeNG: {},
	GradeI:  {},
}

// Points returns the grade-point value and whether the token is GPA-eligible.
func (g Grade) Points() (float64, bool) {
	points, ok := gradePoints[g]
	return points, ok
}

// GPAEligible reports whether the grade counts toward GPA totals.
func (g Grade) GPAEligible() bool {
	_, ok := gradePoints[g]
	return ok
}

// SatisfiesPrerequisite reports whether a completed course with this grade
// counts as a fulfilled prerequisite.
func (g Grade) SatisfiesPrerequisite() bool {
	_, nonPassing := nonPassingGrades[g]
	return !nonPassing
}

// Valid reports whether the token belongs to the grade policy table.
func (g Grade) Valid() bool {
	if _, ok := gradePoints[g]; ok {
		return true
	}
	_, ok := pointlessGrades[g]
	return ok
}

// Academic standing buckets derived from cumulative GPA.
const (
	StandingDeansList    = "Dean's List"
	StandingGoodStanding = "Good Standing"
	StandingProbation    = "Academic Probation"
	StandingNA           = "N/A"

	ProgressionPromoted  = "Promoted"
	ProgressionProbation = "Academic Probation"
)

// AcademicPolicy bundles the registrar-wide policy constants.
type AcademicPolicy struct {
	MaxCreditsPerSemester int
	GradingWindow         time.Duration
	DeansListGPA          float64
	GoodStandingGPA       float64
}

// DefaultAcademicPolicy returns the institution defaults.
func DefaultAcademicPolicy() AcademicPolicy {
	return AcademicPolicy{
		MaxCreditsPerSemester: 18,
		GradingWindow:         30 * 24 * time.Hour,
		DeansListGPA:          3.7,
		GoodStandingGPA:       2.0,
	}
}

// Standing maps a cumulative GPA to its qualitative bucket.
func (p AcademicPolicy) Standing(gpa *float64) string {
	if gpa == nil {
		return StandingNA
	}
	switch {
	case *gpa >= p.DeansListGPA:
		return StandingDeansList
	case *gpa >= p.GoodStandingGPA:
		return StandingGoodStanding
	default:
		return StandingProbation
	}
}

// ProgressionStatus maps a cumulative GPA to the progression verdict.
func (p AcademicPolicy) ProgressionStatus(gpa float64) string {
	if gpa >= p.GoodStandingGPA {
		return ProgressionPromoted
	}
	return ProgressionProbation
}

// RoundGPA rounds half-up to three decimal places, the rule applied to both
// semester and cumulative figures.
func RoundGPA(v float64) float64 {
	return math.Round(v*1000) / 1000
}
