package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
)

type stubPrerequisiteRepo struct {
	edges   map[string][]models.CoursePrerequisite
	created []*models.CoursePrerequisite
	deleted []string
}

func newStubPrerequisiteRepo() *stubPrerequisiteRepo {
	return &stubPrerequisiteRepo{edges: map[string][]models.CoursePrerequisite{}}
}

func (m *stubPrerequisiteRepo) ListForCourse(ctx context.Context, courseCode string) ([]models.CoursePrerequisite, error) {
	return m.edges[courseCode], nil
}

func (m *stubPrerequisiteRepo) Exists(ctx context.Context, courseCode, prerequisiteCode string) (bool, error) {
	for _, edge := range m.edges[courseCode] {
		if edge.PrerequisiteCode == prerequisiteCode {
			return true, nil
		}
	}
	return false, nil
}

func (m *stubPrerequisiteRepo) Create(ctx context.Context, edge *models.CoursePrerequisite) error {
	m.created = append(m.created, edge)
	m.edges[edge.CourseCode] = append(m.edges[edge.CourseCode], *edge)
	return nil
}

func (m *stubPrerequisiteRepo) Delete(ctx context.Context, id string) error {
	for _, edges := range m.edges {
		for _, edge := range edges {
			if edge.ID == id {
				m.deleted = append(m.deleted, id)
				return nil
			}
		}
	}
	return sql.ErrNoRows
}

type stubCompletedReader struct {
	completed []models.EnrollmentDetail
}

func (m *stubCompletedReader) ListCompletedByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return m.completed, nil
}

func completedCourse(courseCode string, grade models.Grade) models.EnrollmentDetail {
	return models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			StudentID: "s1",
			Status:    models.EnrollmentStatusCompleted,
			Grade:     &grade,
		},
		CourseCode: courseCode,
	}
}

func newPrerequisiteService(repo *stubPrerequisiteRepo, completed *stubCompletedReader) *PrerequisiteService {
	if completed == nil {
		completed = &stubCompletedReader{}
	}
	return NewPrerequisiteService(repo, completed, nil, zap.NewNop())
}

func TestPrerequisiteServiceCheckNoEdges(t *testing.T) {
	svc := newPrerequisiteService(newStubPrerequisiteRepo(), nil)

	check, err := svc.Check(context.Background(), "s1", "CS101")
	require.NoError(t, err)
	assert.True(t, check.Met)
	assert.Empty(t, check.Missing)
}

func TestPrerequisiteServiceCheckSatisfied(t *testing.T) {
	repo := newStubPrerequisiteRepo()
	repo.edges["CS201"] = []models.CoursePrerequisite{{CourseCode: "CS201", PrerequisiteCode: "CS101"}}
	completed := &stubCompletedReader{completed: []models.EnrollmentDetail{
		completedCourse("CS101", models.GradeC),
	}}
	svc := newPrerequisiteService(repo, completed)

	check, err := svc.Check(context.Background(), "s1", "CS201")
	require.NoError(t, err)
	assert.True(t, check.Met)
}

func TestPrerequisiteServiceCheckFailingGradeDoesNotSatisfy(t *testing.T) {
	repo := newStubPrerequisiteRepo()
	repo.edges["CS201"] = []models.CoursePrerequisite{{CourseCode: "CS201", PrerequisiteCode: "CS101"}}
	completed := &stubCompletedReader{completed: []models.EnrollmentDetail{
		completedCourse("CS101", models.GradeF),
	}}
	svc := newPrerequisiteService(repo, completed)

	check, err := svc.Check(context.Background(), "s1", "CS201")
	require.NoError(t, err)
	assert.False(t, check.Met)
	assert.Equal(t, []string{"CS101"}, check.Missing)
}

func TestPrerequisiteServiceCheckPassGradeSatisfies(t *testing.T) {
	// P carries no grade points but still clears a prerequisite.
	repo := newStubPrerequisiteRepo()
	repo.edges["CS201"] = []models.CoursePrerequisite{{CourseCode: "CS201", PrerequisiteCode: "CS101"}}
	completed := &stubCompletedReader{completed: []models.EnrollmentDetail{
		completedCourse("CS101", models.GradeP),
	}}
	svc := newPrerequisiteService(repo, completed)

	check, err := svc.Check(context.Background(), "s1", "CS201")
	require.NoError(t, err)
	assert.True(t, check.Met)
}

func TestPrerequisiteServiceCheckReportsAllMissing(t *testing.T) {
	repo := newStubPrerequisiteRepo()
	repo.edges["CS301"] = []models.CoursePrerequisite{
		{CourseCode: "CS301", PrerequisiteCode: "CS201"},
		{CourseCode: "CS301", PrerequisiteCode: "MATH200"},
	}
	svc := newPrerequisiteService(repo, &stubCompletedReader{})

	check, err := svc.Check(context.Background(), "s1", "CS301")
	require.NoError(t, err)
	assert.False(t, check.Met)
	assert.Equal(t, []string{"CS201", "MATH200"}, check.Missing)
}

func TestPrerequisiteServiceAddRejectsSelfReference(t *testing.T) {
	svc := newPrerequisiteService(newStubPrerequisiteRepo(), nil)

	_, err := svc.Add(context.Background(), AddPrerequisiteRequest{CourseCode: "CS101", PrerequisiteCode: "cs101"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPrerequisiteServiceAddRejectsDuplicate(t *testing.T) {
	repo := newStubPrerequisiteRepo()
	repo.edges["CS201"] = []models.CoursePrerequisite{{CourseCode: "CS201", PrerequisiteCode: "CS101"}}
	svc := newPrerequisiteService(repo, nil)

	_, err := svc.Add(context.Background(), AddPrerequisiteRequest{CourseCode: "CS201", PrerequisiteCode: "CS101"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.created)
}

func TestPrerequisiteServiceAddTrimsCodes(t *testing.T) {
	repo := newStubPrerequisiteRepo()
	svc := newPrerequisiteService(repo, nil)

	edge, err := svc.Add(context.Background(), AddPrerequisiteRequest{CourseCode: " CS201 ", PrerequisiteCode: " CS101 "})
	require.NoError(t, err)
	assert.Equal(t, "CS201", edge.CourseCode)
	assert.Equal(t, "CS101", edge.PrerequisiteCode)
}

func TestPrerequisiteServiceRemoveUnknownEdge(t *testing.T) {
	svc := newPrerequisiteService(newStubPrerequisiteRepo(), nil)

	err := svc.Remove(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}