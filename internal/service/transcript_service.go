package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type transcriptEnrollmentReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type transcriptCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type transcriptExporter interface {
	TranscriptPDF(transcript *models.Transcript) ([]byte, error)
	TranscriptCSV(transcript *models.Transcript) ([]byte, error)
}

// TranscriptService assembles transcripts and GPA summaries from the raw
// enrollment history. Results are cached per student and invalidated on
// every grade or withdrawal write.
type TranscriptService struct {
	enrollments transcriptEnrollmentReader
	users       studentReader
	cache       transcriptCache
	exporter    transcriptExporter
	metrics     *MetricsService
	policy      models.AcademicPolicy
	cacheTTL    time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// NewTranscriptService constructs TranscriptService. A nil cache disables
// caching entirely.
func NewTranscriptService(enrollments transcriptEnrollmentReader, users studentReader, cache transcriptCache, exporter transcriptExporter, metrics *MetricsService, policy models.AcademicPolicy, cacheTTL time.Duration, logger *zap.Logger) *TranscriptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &TranscriptService{
		enrollments: enrollments,
		users:       users,
		cache:       cache,
		exporter:    exporter,
		metrics:     metrics,
		policy:      policy,
		cacheTTL:    cacheTTL,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

func transcriptCacheKey(studentID string) string {
	return fmt.Sprintf("transcript:%s", studentID)
}

// Get returns the student's full transcript and whether it was served from
// cache.
func (s *TranscriptService) Get(ctx context.Context, studentID string) (*models.Transcript, bool, error) {
	if s.cache != nil {
		var cached models.Transcript
		if err := s.cache.Get(ctx, transcriptCacheKey(studentID), &cached); err == nil {
			return &cached, true, nil
		} else if err != appErrors.ErrCacheMiss {
			s.logger.Warn("transcript cache read failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}

	transcript, err := s.build(ctx, studentID)
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, transcriptCacheKey(studentID), transcript, s.cacheTTL); err != nil {
			s.logger.Warn("transcript cache write failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return transcript, false, nil
}

// Summary returns only the cumulative GPA block of the transcript.
func (s *TranscriptService) Summary(ctx context.Context, studentID string) (*models.GpaSummary, error) {
	transcript, _, err := s.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return &transcript.Summary, nil
}

// ExportPDF renders the transcript as a PDF document.
func (s *TranscriptService) ExportPDF(ctx context.Context, studentID string) ([]byte, error) {
	transcript, _, err := s.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}
	payload, err := s.exporter.TranscriptPDF(transcript)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript PDF")
	}
	return payload, nil
}

// ExportCSV renders the transcript as CSV rows.
func (s *TranscriptService) ExportCSV(ctx context.Context, studentID string) ([]byte, error) {
	transcript, _, err := s.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}
	payload, err := s.exporter.TranscriptCSV(transcript)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript CSV")
	}
	return payload, nil
}

// Invalidate drops the cached transcript for a student. Invalidation
// failures are logged, never propagated.
func (s *TranscriptService) Invalidate(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, transcriptCacheKey(studentID)); err != nil {
		s.logger.Warn("transcript cache invalidation failed", zap.String("student_id", studentID), zap.Error(err))
	}
}

// build assembles the transcript from scratch: collect every enrollment,
// deduplicate repeated courses so only the most recent graded attempt
// counts toward GPA, group rows by semester in chronological order, then
// derive per-semester and cumulative figures.
func (s *TranscriptService) build(ctx context.Context, studentID string) (*models.Transcript, error) {
	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	start := time.Now()
	rows, err := s.enrollments.ListByStudent(ctx, studentID)
	s.metrics.ObserveDBQuery("transcript_enrollments", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment history")
	}

	counted := countedAttempts(rows)

	transcript := &models.Transcript{
		StudentID:   studentID,
		StudentName: student.FullName,
		Semesters:   []models.TranscriptSemester{},
		GeneratedAt: s.now(),
	}

	semesterIndex := map[string]int{}
	for _, row := range rows {
		idx, ok := semesterIndex[row.SemesterID]
		if !ok {
			transcript.Semesters = append(transcript.Semesters, models.TranscriptSemester{
				SemesterID:   row.SemesterID,
				SemesterName: row.SemesterName,
				StartDate:    row.SemesterStart,
				Entries:      []models.TranscriptEntry{},
			})
			idx = len(transcript.Semesters) - 1
			semesterIndex[row.SemesterID] = idx
		}

		entry := models.TranscriptEntry{
			EnrollmentID:    row.ID,
			CourseCode:      row.CourseCode,
			CourseTitle:     row.CourseTitle,
			Credits:         row.Credits,
			Status:          row.Status,
			Grade:           row.Grade,
			GradePoints:     row.GradePoints,
			CountsTowardGPA: counted[row.ID],
		}
		transcript.Semesters[idx].Entries = append(transcript.Semesters[idx].Entries, entry)

		if entry.CountsTowardGPA && row.GradePoints != nil {
			transcript.Semesters[idx].Credits += row.Credits
			transcript.Semesters[idx].GradePoints += *row.GradePoints
		}
	}

	var totalCredits int
	var totalPoints float64
	for i := range transcript.Semesters {
		sem := &transcript.Semesters[i]
		if sem.Credits > 0 {
			gpa := models.RoundGPA(sem.GradePoints / float64(sem.Credits))
			sem.GPA = &gpa
		}
		totalCredits += sem.Credits
		totalPoints += sem.GradePoints
	}

	transcript.Summary = models.GpaSummary{
		TotalCredits:     totalCredits,
		TotalGradePoints: totalPoints,
	}
	if totalCredits > 0 {
		cumulative := models.RoundGPA(totalPoints / float64(totalCredits))
		transcript.Summary.CumulativeGPA = &cumulative
	}
	transcript.Summary.AcademicStanding = s.policy.Standing(transcript.Summary.CumulativeGPA)
	transcript.Summary.Progression = s.progression(transcript.Semesters, totalCredits, totalPoints)

	return transcript, nil
}

// countedAttempts implements repeat-course deduplication: for each course
// code, only the GPA-eligible attempt from the latest semester counts.
// Earlier attempts stay on the transcript but are excluded from GPA math.
func countedAttempts(rows []models.EnrollmentDetail) map[string]bool {
	latest := map[string]models.EnrollmentDetail{}
	for _, row := range rows {
		if row.Status != models.EnrollmentStatusCompleted || row.Grade == nil || !row.Grade.GPAEligible() {
			continue
		}
		current, ok := latest[row.CourseCode]
		if !ok || row.SemesterStart.After(current.SemesterStart) {
			latest[row.CourseCode] = row
		}
	}
	counted := make(map[string]bool, len(latest))
	for _, row := range latest {
		counted[row.ID] = true
	}
	return counted
}

// progression splits the cumulative totals into everything before the most
// recent graded semester versus that semester alone.
func (s *TranscriptService) progression(semesters []models.TranscriptSemester, totalCredits int, totalPoints float64) *models.GpaProgression {
	lastIdx := -1
	for i := range semesters {
		if semesters[i].Credits > 0 {
			lastIdx = i
		}
	}
	if lastIdx < 0 {
		return nil
	}

	last := semesters[lastIdx]
	progression := &models.GpaProgression{
		LastCredits:       last.Credits,
		LastGradePoints:   last.GradePoints,
		LastGPA:           last.GPA,
		CumulativeCredits: totalCredits,
		CumulativePoints:  totalPoints,
	}
	progression.PreviousCredits = totalCredits - last.Credits
	progression.PreviousGradePoints = totalPoints - last.GradePoints
	if progression.PreviousCredits > 0 {
		prev := models.RoundGPA(progression.PreviousGradePoints / float64(progression.PreviousCredits))
		progression.PreviousGPA = &prev
	}
	if totalCredits > 0 {
		cumulative := models.RoundGPA(totalPoints / float64(totalCredits))
		progression.CumulativeGPA = &cumulative
		progression.AcademicStatus = s.policy.ProgressionStatus(cumulative)
	}
	return progression
}
