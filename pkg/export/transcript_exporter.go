package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

// TranscriptExporter renders transcripts into downloadable documents.
type TranscriptExporter struct{}

// NewTranscriptExporter constructs a transcript exporter.
func NewTranscriptExporter() *TranscriptExporter {
	return &TranscriptExporter{}
}

func formatGrade(grade *models.Grade) string {
	if grade == nil {
		return ""
	}
	return string(*grade)
}

func formatPoints(points *float64) string {
	if points == nil {
		return ""
	}
	return strconv.FormatFloat(*points, 'f', 1, 64)
}

func formatGPA(gpa *float64) string {
	if gpa == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*gpa, 'f', 3, 64)
}

// TranscriptCSV renders one row per enrollment with a trailing summary row.
func (e *TranscriptExporter) TranscriptCSV(transcript *models.Transcript) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	header := []string{"semester", "course_code", "course_title", "credits", "status", "grade", "grade_points", "counts_toward_gpa"}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, semester := range transcript.Semesters {
		for _, entry := range semester.Entries {
			record := []string{
				semester.SemesterName,
				entry.CourseCode,
				entry.CourseTitle,
				strconv.Itoa(entry.Credits),
				string(entry.Status),
				formatGrade(entry.Grade),
				formatPoints(entry.GradePoints),
				strconv.FormatBool(entry.CountsTowardGPA),
			}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
	}

	summary := []string{
		"TOTAL", "", "",
		strconv.Itoa(transcript.Summary.TotalCredits),
		"", "",
		strconv.FormatFloat(transcript.Summary.TotalGradePoints, 'f', 1, 64),
		formatGPA(transcript.Summary.CumulativeGPA),
	}
	if err := writer.Write(summary); err != nil {
		return nil, fmt.Errorf("write csv summary: %w", err)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// TranscriptPDF renders the transcript with one section per semester and a
// cumulative summary block.
func (e *TranscriptExporter) TranscriptPDF(transcript *models.Transcript) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "ACADEMIC TRANSCRIPT", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Student: %s", transcript.StudentName), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", transcript.GeneratedAt.Format("2006-01-02 15:04 MST")), "", 1, "", false, 0, "")
	pdf.Ln(4)

	headers := []string{"Code", "Title", "Credits", "Status", "Grade", "Points"}
	widths := []float64{25, 75, 18, 28, 22, 22}

	for _, semester := range transcript.Semesters {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, strings.ToUpper(semester.SemesterName), "", 1, "", false, 0, "")

		pdf.SetFont("Arial", "B", 9)
		for i, header := range headers {
			pdf.CellFormat(widths[i], 7, header, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, entry := range semester.Entries {
			cells := []string{
				entry.CourseCode,
				entry.CourseTitle,
				strconv.Itoa(entry.Credits),
				string(entry.Status),
				formatGrade(entry.Grade),
				formatPoints(entry.GradePoints),
			}
			for i, cell := range cells {
				pdf.CellFormat(widths[i], 6, cell, "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}

		pdf.SetFont("Arial", "I", 9)
		pdf.CellFormat(0, 6, fmt.Sprintf("Semester GPA: %s (%d credits)", formatGPA(semester.GPA), semester.Credits), "", 1, "R", false, 0, "")
		pdf.Ln(3)
	}

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 8, "SUMMARY", "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Total credits: %d", transcript.Summary.TotalCredits), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Total grade points: %.1f", transcript.Summary.TotalGradePoints), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Cumulative GPA: %s", formatGPA(transcript.Summary.CumulativeGPA)), "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Academic standing: %s", transcript.Summary.AcademicStanding), "", 1, "", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render transcript pdf: %w", err)
	}
	return buf.Bytes(), nil
}
