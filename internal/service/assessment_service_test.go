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

type stubAssessmentRepo struct {
	assessments map[string]models.CourseAssessment
	schemes     map[string][]models.CourseAssessment
	scores      map[string][]models.AssessmentScoreDetail
	upserted    []*models.EnrollmentAssessmentScore
	replaced    int
}

func newStubAssessmentRepo() *stubAssessmentRepo {
	return &stubAssessmentRepo{
		assessments: map[string]models.CourseAssessment{},
		schemes:     map[string][]models.CourseAssessment{},
		scores:      map[string][]models.AssessmentScoreDetail{},
	}
}

func (m *stubAssessmentRepo) FindByID(ctx context.Context, id string) (*models.CourseAssessment, error) {
	if a, ok := m.assessments[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *stubAssessmentRepo) ListByCourse(ctx context.Context, courseID string) ([]models.CourseAssessment, error) {
	return m.schemes[courseID], nil
}

func (m *stubAssessmentRepo) ReplaceForCourse(ctx context.Context, courseID string, assessments []models.CourseAssessment) error {
	m.replaced++
	m.schemes[courseID] = assessments
	return nil
}

func (m *stubAssessmentRepo) UpsertScore(ctx context.Context, score *models.EnrollmentAssessmentScore) error {
	m.upserted = append(m.upserted, score)
	return nil
}

func (m *stubAssessmentRepo) ListScores(ctx context.Context, enrollmentID string) ([]models.AssessmentScoreDetail, error) {
	return m.scores[enrollmentID], nil
}

type stubAssessmentEnrollments struct {
	details map[string]models.EnrollmentDetail
}

func (m *stubAssessmentEnrollments) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if d, ok := m.details[id]; ok {
		return &d, nil
	}
	return nil, sql.ErrNoRows
}

func activeEnrollment(id, courseID string) models.EnrollmentDetail {
	return models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID:        id,
			StudentID: "s1",
			CourseID:  courseID,
			Status:    models.EnrollmentStatusEnrolled,
		},
		CourseCode:  "CS101",
		Credits:     3,
		SemesterEnd: time.Now().UTC().Add(30 * 24 * time.Hour),
	}
}

func newAssessmentService(repo *stubAssessmentRepo, enrollments *stubAssessmentEnrollments, courses *stubAssignmentReader) *AssessmentService {
	if courses == nil {
		courses = &stubAssignmentReader{assigned: map[string]bool{}}
	}
	return NewAssessmentService(repo, enrollments, courses, nil, zap.NewNop())
}

func TestAssessmentServiceDefineScheme(t *testing.T) {
	repo := newStubAssessmentRepo()
	svc := newAssessmentService(repo, &stubAssessmentEnrollments{}, nil)

	stored, err := svc.Define(context.Background(), "c1", "", DefineAssessmentsRequest{Components: []AssessmentComponent{
		{Name: "Midterm", Weight: 30},
		{Name: "Final", Weight: 70},
	}})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 1, repo.replaced)
	assert.Equal(t, "c1", stored[0].CourseID)
}

func TestAssessmentServiceDefineRejectsBadWeights(t *testing.T) {
	repo := newStubAssessmentRepo()
	svc := newAssessmentService(repo, &stubAssessmentEnrollments{}, nil)

	_, err := svc.Define(context.Background(), "c1", "", DefineAssessmentsRequest{Components: []AssessmentComponent{
		{Name: "Midterm", Weight: 30},
		{Name: "Final", Weight: 60},
	}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidWeights.Code, appErrors.FromError(err).Code)
	assert.Zero(t, repo.replaced)
}

func TestAssessmentServiceDefineToleratesFloatDrift(t *testing.T) {
	repo := newStubAssessmentRepo()
	svc := newAssessmentService(repo, &stubAssessmentEnrollments{}, nil)

	_, err := svc.Define(context.Background(), "c1", "", DefineAssessmentsRequest{Components: []AssessmentComponent{
		{Name: "Quizzes", Weight: 33.33},
		{Name: "Midterm", Weight: 33.33},
		{Name: "Final", Weight: 33.34},
	}})
	require.NoError(t, err)
}

func TestAssessmentServiceDefineUnassignedInstructor(t *testing.T) {
	svc := newAssessmentService(newStubAssessmentRepo(), &stubAssessmentEnrollments{}, &stubAssignmentReader{})

	_, err := svc.Define(context.Background(), "c1", "i1", DefineAssessmentsRequest{Components: []AssessmentComponent{
		{Name: "Final", Weight: 100},
	}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAssessmentServiceRecordScore(t *testing.T) {
	repo := newStubAssessmentRepo()
	repo.assessments["a1"] = models.CourseAssessment{ID: "a1", CourseID: "c1", Name: "Midterm", Weight: 30}
	enrollments := &stubAssessmentEnrollments{details: map[string]models.EnrollmentDetail{
		"e1": activeEnrollment("e1", "c1"),
	}}
	svc := newAssessmentService(repo, enrollments, nil)

	score, err := svc.RecordScore(context.Background(), "e1", "", RecordScoreRequest{AssessmentID: "a1", Score: 87.5})
	require.NoError(t, err)
	assert.Equal(t, 87.5, score.Score)
	require.Len(t, repo.upserted, 1)
	assert.Equal(t, "e1", repo.upserted[0].EnrollmentID)
}

func TestAssessmentServiceRecordScoreWrongCourse(t *testing.T) {
	repo := newStubAssessmentRepo()
	repo.assessments["a1"] = models.CourseAssessment{ID: "a1", CourseID: "c2", Name: "Midterm", Weight: 30}
	enrollments := &stubAssessmentEnrollments{details: map[string]models.EnrollmentDetail{
		"e1": activeEnrollment("e1", "c1"),
	}}
	svc := newAssessmentService(repo, enrollments, nil)

	_, err := svc.RecordScore(context.Background(), "e1", "", RecordScoreRequest{AssessmentID: "a1", Score: 50})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.upserted)
}

func TestAssessmentServiceRecordScoreRejectsWaitlisted(t *testing.T) {
	detail := activeEnrollment("e1", "c1")
	detail.Status = models.EnrollmentStatusWaitlisted
	enrollments := &stubAssessmentEnrollments{details: map[string]models.EnrollmentDetail{"e1": detail}}
	svc := newAssessmentService(newStubAssessmentRepo(), enrollments, nil)

	_, err := svc.RecordScore(context.Background(), "e1", "", RecordScoreRequest{AssessmentID: "a1", Score: 50})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAssessmentServiceWeightedScore(t *testing.T) {
	repo := newStubAssessmentRepo()
	repo.scores["e1"] = []models.AssessmentScoreDetail{
		{EnrollmentAssessmentScore: models.EnrollmentAssessmentScore{EnrollmentID: "e1", AssessmentID: "a1", Score: 80}, AssessmentName: "Midterm", Weight: 30},
		{EnrollmentAssessmentScore: models.EnrollmentAssessmentScore{EnrollmentID: "e1", AssessmentID: "a2", Score: 90}, AssessmentName: "Final", Weight: 70},
	}
	enrollments := &stubAssessmentEnrollments{details: map[string]models.EnrollmentDetail{
		"e1": activeEnrollment("e1", "c1"),
	}}
	svc := newAssessmentService(repo, enrollments, nil)

	result, err := svc.WeightedScore(context.Background(), "e1")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, result.WeightScored, 0.0001)
	// 80 x 0.30 + 90 x 0.70 = 87
	assert.InDelta(t, 87.0, result.Total, 0.0001)
}

func TestAssessmentServiceWeightedScorePartialScheme(t *testing.T) {
	repo := newStubAssessmentRepo()
	repo.scores["e1"] = []models.AssessmentScoreDetail{
		{EnrollmentAssessmentScore: models.EnrollmentAssessmentScore{EnrollmentID: "e1", AssessmentID: "a1", Score: 80}, AssessmentName: "Midterm", Weight: 30},
	}
	enrollments := &stubAssessmentEnrollments{details: map[string]models.EnrollmentDetail{
		"e1": activeEnrollment("e1", "c1"),
	}}
	svc := newAssessmentService(repo, enrollments, nil)

	result, err := svc.WeightedScore(context.Background(), "e1")
	require.NoError(t, err)
	assert.InDelta(t, 30.0, result.WeightScored, 0.0001)
	assert.InDelta(t, 24.0, result.Total, 0.0001)
}

func TestAssessmentServiceWeightedScoreUnknownEnrollment(t *testing.T) {
	svc := newAssessmentService(newStubAssessmentRepo(), &stubAssessmentEnrollments{}, nil)

	_, err := svc.WeightedScore(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}