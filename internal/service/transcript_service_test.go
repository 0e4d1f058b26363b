package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type stubTranscriptEnrollments struct {
	rows  []models.EnrollmentDetail
	calls int
}

func (m *stubTranscriptEnrollments) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	m.calls++
	return m.rows, nil
}

type stubStudentReader struct {
	users map[string]*models.User
}

func (m *stubStudentReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type stubTranscriptCache struct {
	store   map[string]models.Transcript
	sets    int
	deletes []string
}

func newStubTranscriptCache() *stubTranscriptCache {
	return &stubTranscriptCache{store: map[string]models.Transcript{}}
}

func (m *stubTranscriptCache) Get(ctx context.Context, key string, dest interface{}) error {
	cached, ok := m.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*dest.(*models.Transcript) = cached
	return nil
}

func (m *stubTranscriptCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.sets++
	m.store[key] = *value.(*models.Transcript)
	return nil
}

func (m *stubTranscriptCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deletes = append(m.deletes, pattern)
	delete(m.store, pattern)
	return nil
}

type stubDocRenderer struct{}

func (stubDocRenderer) TranscriptPDF(transcript *models.Transcript) ([]byte, error) {
	return []byte("%PDF-1.4"), nil
}

func (stubDocRenderer) TranscriptCSV(transcript *models.Transcript) ([]byte, error) {
	return []byte("course_code,grade\n"), nil
}

func transcriptRow(id, courseCode, semesterID string, semesterStart time.Time, credits int, status models.EnrollmentStatus, grade *models.Grade, points *float64) models.EnrollmentDetail {
	return models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID:          id,
			StudentID:   "s1",
			Status:      status,
			Grade:       grade,
			GradePoints: points,
		},
		CourseCode:    courseCode,
		CourseTitle:   courseCode + " title",
		Credits:       credits,
		SemesterID:    semesterID,
		SemesterName:  semesterID,
		SemesterStart: semesterStart,
	}
}

func completedRow(id, courseCode, semesterID string, semesterStart time.Time, credits int, grade models.Grade) models.EnrollmentDetail {
	points, ok := grade.Points()
	var gp *float64
	if ok {
		qp := points * float64(credits)
		gp = &qp
	}
	return transcriptRow(id, courseCode, semesterID, semesterStart, credits, models.EnrollmentStatusCompleted, &grade, gp)
}

func newTranscriptService(enrollments *stubTranscriptEnrollments, cache *stubTranscriptCache) *TranscriptService {
	users := &stubStudentReader{users: map[string]*models.User{
		"s1": {ID: "s1", FullName: "Test Student"},
	}}
	var c transcriptCache
	if cache != nil {
		c = cache
	}
	return NewTranscriptService(enrollments, users, c, stubDocRenderer{}, nil, models.DefaultAcademicPolicy(), time.Minute, zap.NewNop())
}

func TestTranscriptServiceEmptyHistory(t *testing.T) {
	svc := newTranscriptService(&stubTranscriptEnrollments{}, nil)

	transcript, cacheHit, err := svc.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Empty(t, transcript.Semesters)
	assert.Nil(t, transcript.Summary.CumulativeGPA)
	assert.Equal(t, models.StandingNA, transcript.Summary.AcademicStanding)
	assert.Nil(t, transcript.Summary.Progression)
}

func TestTranscriptServiceCumulativeGPARounding(t *testing.T) {
	sem := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	enrollments := &stubTranscriptEnrollments{rows: []models.EnrollmentDetail{
		completedRow("e1", "CS101", "sem-1", sem, 3, models.GradeA),
		completedRow("e2", "MATH100", "sem-1", sem, 4, models.GradeB),
	}}
	svc := newTranscriptService(enrollments, nil)

	summary, err := svc.Summary(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 7, summary.TotalCredits)
	assert.InDelta(t, 24.0, summary.TotalGradePoints, 0.0001)
	require.NotNil(t, summary.CumulativeGPA)
	// 24 / 7 = 3.428571..., rounded half-up to three decimals.
	assert.InDelta(t, 3.429, *summary.CumulativeGPA, 0.0001)
	assert.Equal(t, models.StandingGoodStanding, summary.AcademicStanding)
}

func TestTranscriptServiceRetakeCountsLatestAttempt(t *testing.T) {
	fall := time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)
	spring := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	enrollments := &stubTranscriptEnrollments{rows: []models.EnrollmentDetail{
		completedRow("e1", "CS101", "sem-fall", fall, 3, models.GradeF),
		completedRow("e2", "CS101", "sem-spring", spring, 3, models.GradeA),
	}}
	svc := newTranscriptService(enrollments, nil)

	transcript, _, err := svc.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, transcript.Semesters, 2)

	// The failed fall attempt stays on the transcript but no longer counts.
	assert.False(t, transcript.Semesters[0].Entries[0].CountsTowardGPA)
	assert.Zero(t, transcript.Semesters[0].Credits)
	assert.Nil(t, transcript.Semesters[0].GPA)

	assert.True(t, transcript.Semesters[1].Entries[0].CountsTowardGPA)
	assert.Equal(t, 3, transcript.Summary.TotalCredits)
	require.NotNil(t, transcript.Summary.CumulativeGPA)
	assert.Equal(t, 4.0, *transcript.Summary.CumulativeGPA)
}

func TestTranscriptServicePointlessGradesExcluded(t *testing.T) {
	sem := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	gradeW := models.GradeW
	enrollments := &stubTranscriptEnrollments{rows: []models.EnrollmentDetail{
		completedRow("e1", "CS101", "sem-1", sem, 3, models.GradeA),
		transcriptRow("e2", "HIST200", "sem-1", sem, 3, models.EnrollmentStatusCompleted, &gradeW, nil),
	}}
	svc := newTranscriptService(enrollments, nil)

	transcript, _, err := svc.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, transcript.Semesters, 1)
	assert.Len(t, transcript.Semesters[0].Entries, 2)
	assert.Equal(t, 3, transcript.Summary.TotalCredits)
	require.NotNil(t, transcript.Summary.CumulativeGPA)
	assert.Equal(t, 4.0, *transcript.Summary.CumulativeGPA)
}

func TestTranscriptServiceProgressionSplitsLastSemester(t *testing.T) {
	fall := time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)
	spring := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	enrollments := &stubTranscriptEnrollments{rows: []models.EnrollmentDetail{
		completedRow("e1", "CS101", "sem-fall", fall, 3, models.GradeB),
		completedRow("e2", "CS201", "sem-spring", spring, 3, models.GradeA),
	}}
	svc := newTranscriptService(enrollments, nil)

	transcript, _, err := svc.Get(context.Background(), "s1")
	require.NoError(t, err)
	progression := transcript.Summary.Progression
	require.NotNil(t, progression)
	assert.Equal(t, 3, progression.PreviousCredits)
	require.NotNil(t, progression.PreviousGPA)
	assert.Equal(t, 3.0, *progression.PreviousGPA)
	assert.Equal(t, 3, progression.LastCredits)
	require.NotNil(t, progression.LastGPA)
	assert.Equal(t, 4.0, *progression.LastGPA)
	assert.Equal(t, 6, progression.CumulativeCredits)
	assert.Equal(t, models.ProgressionPromoted, progression.AcademicStatus)
}

func TestTranscriptServiceDeansListStanding(t *testing.T) {
	sem := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	enrollments := &stubTranscriptEnrollments{rows: []models.EnrollmentDetail{
		completedRow("e1", "CS101", "sem-1", sem, 3, models.GradeA),
		completedRow("e2", "CS201", "sem-1", sem, 3, models.GradeAMinus),
	}}
	svc := newTranscriptService(enrollments, nil)

	summary, err := svc.Summary(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, summary.CumulativeGPA)
	assert.InDelta(t, 3.85, *summary.CumulativeGPA, 0.0001)
	assert.Equal(t, models.StandingDeansList, summary.AcademicStanding)
}

func TestTranscriptServiceCacheRoundTrip(t *testing.T) {
	sem := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	enrollments := &stubTranscriptEnrollments{rows: []models.EnrollmentDetail{
		completedRow("e1", "CS101", "sem-1", sem, 3, models.GradeA),
	}}
	cache := newStubTranscriptCache()
	svc := newTranscriptService(enrollments, cache)

	_, cacheHit, err := svc.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, 1, cache.sets)

	_, cacheHit, err = svc.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, cacheHit)
	assert.Equal(t, 1, enrollments.calls)

	svc.Invalidate(context.Background(), "s1")
	assert.Equal(t, []string{"transcript:s1"}, cache.deletes)

	_, cacheHit, err = svc.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, 2, enrollments.calls)
}

func TestTranscriptServiceUnknownStudent(t *testing.T) {
	svc := newTranscriptService(&stubTranscriptEnrollments{}, nil)

	_, _, err := svc.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTranscriptServiceExportFormats(t *testing.T) {
	sem := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	enrollments := &stubTranscriptEnrollments{rows: []models.EnrollmentDetail{
		completedRow("e1", "CS101", "sem-1", sem, 3, models.GradeA),
	}}
	svc := newTranscriptService(enrollments, nil)

	pdf, err := svc.ExportPDF(context.Background(), "s1")
	require.NoError(t, err)
	assert.Contains(t, string(pdf), "%PDF")

	csv, err := svc.ExportCSV(context.Background(), "s1")
	require.NoError(t, err)
	assert.Contains(t, string(csv), "course_code")
}