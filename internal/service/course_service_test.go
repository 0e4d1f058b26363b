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

type stubCourseRepo struct {
	courses    map[string]*models.Course
	codes      map[string]string // code+semester -> course ID
	assigned   []*models.CourseInstructor
	unassigned []string
}

func newStubCourseRepo() *stubCourseRepo {
	return &stubCourseRepo{courses: map[string]*models.Course{}, codes: map[string]string{}}
}

func (m *stubCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *stubCourseRepo) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	if c, ok := m.courses[id]; ok {
		return &models.CourseDetail{Course: *c}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *stubCourseRepo) ExistsByCodeInSemester(ctx context.Context, code, semesterID, excludeID string) (bool, error) {
	id, ok := m.codes[code+"/"+semesterID]
	return ok && id != excludeID, nil
}

func (m *stubCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	list := make([]models.CourseDetail, 0, len(m.courses))
	for _, c := range m.courses {
		list = append(list, models.CourseDetail{Course: *c})
	}
	return list, len(list), nil
}

func (m *stubCourseRepo) Create(ctx context.Context, course *models.Course) error {
	course.ID = "c-new"
	m.courses[course.ID] = course
	m.codes[course.Code+"/"+course.SemesterID] = course.ID
	return nil
}

func (m *stubCourseRepo) Update(ctx context.Context, course *models.Course) error {
	m.courses[course.ID] = course
	return nil
}

func (m *stubCourseRepo) ListInstructors(ctx context.Context, courseID string) ([]models.CourseInstructorDetail, error) {
	return nil, nil
}

func (m *stubCourseRepo) AssignInstructor(ctx context.Context, assignment *models.CourseInstructor) error {
	m.assigned = append(m.assigned, assignment)
	return nil
}

func (m *stubCourseRepo) UnassignInstructor(ctx context.Context, courseID, instructorID string) error {
	for _, a := range m.assigned {
		if a.CourseID == courseID && a.InstructorID == instructorID {
			m.unassigned = append(m.unassigned, instructorID)
			return nil
		}
	}
	return sql.ErrNoRows
}

type stubSemesterReader struct {
	semesters map[string]*models.Semester
}

func (m *stubSemesterReader) FindByID(ctx context.Context, id string) (*models.Semester, error) {
	if s, ok := m.semesters[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type stubUserReader struct {
	users map[string]*models.User
}

func (m *stubUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func validCourseRequest() CourseRequest {
	return CourseRequest{
		Code:       "cs101",
		Title:      "Intro to Computer Science",
		SemesterID: "sem-1",
		Credits:    3,
		Capacity:   30,
	}
}

func newCourseService(repo *stubCourseRepo, users *stubUserReader) *CourseService {
	semesters := &stubSemesterReader{semesters: map[string]*models.Semester{
		"sem-1": {ID: "sem-1", Name: "Fall 2025"},
	}}
	if users == nil {
		users = &stubUserReader{users: map[string]*models.User{}}
	}
	return NewCourseService(repo, semesters, users, nil, zap.NewNop())
}

func TestCourseServiceCreateUppercasesCode(t *testing.T) {
	repo := newStubCourseRepo()
	svc := newCourseService(repo, nil)

	course, err := svc.Create(context.Background(), validCourseRequest())
	require.NoError(t, err)
	assert.Equal(t, "CS101", course.Code)
	assert.Equal(t, "c-new", course.ID)
}

func TestCourseServiceCreateRejectsDuplicateCode(t *testing.T) {
	repo := newStubCourseRepo()
	repo.codes["CS101/sem-1"] = "c-existing"
	svc := newCourseService(repo, nil)

	_, err := svc.Create(context.Background(), validCourseRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceCreateUnknownSemester(t *testing.T) {
	svc := newCourseService(newStubCourseRepo(), nil)

	req := validCourseRequest()
	req.SemesterID = "ghost"

	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceCreateRejectsBadCredits(t *testing.T) {
	svc := newCourseService(newStubCourseRepo(), nil)

	req := validCourseRequest()
	req.Credits = 9

	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceUpdateAllowsOwnCode(t *testing.T) {
	repo := newStubCourseRepo()
	repo.courses["c1"] = &models.Course{ID: "c1", Code: "CS101", SemesterID: "sem-1", Credits: 3, Capacity: 30}
	repo.codes["CS101/sem-1"] = "c1"
	svc := newCourseService(repo, nil)

	req := validCourseRequest()
	req.Capacity = 45

	course, err := svc.Update(context.Background(), "c1", req)
	require.NoError(t, err)
	assert.Equal(t, 45, course.Capacity)
}

func TestCourseServiceAssignInstructor(t *testing.T) {
	repo := newStubCourseRepo()
	repo.courses["c1"] = &models.Course{ID: "c1", Code: "CS101", SemesterID: "sem-1"}
	users := &stubUserReader{users: map[string]*models.User{
		"i1": {ID: "i1", Role: models.RoleInstructor},
	}}
	svc := newCourseService(repo, users)

	assignment, err := svc.AssignInstructor(context.Background(), "c1", AssignInstructorRequest{InstructorID: "i1", IsPrimary: true})
	require.NoError(t, err)
	assert.True(t, assignment.IsPrimary)
	require.Len(t, repo.assigned, 1)
}

func TestCourseServiceAssignRejectsNonInstructor(t *testing.T) {
	repo := newStubCourseRepo()
	repo.courses["c1"] = &models.Course{ID: "c1", Code: "CS101", SemesterID: "sem-1"}
	users := &stubUserReader{users: map[string]*models.User{
		"s1": {ID: "s1", Role: models.RoleStudent},
	}}
	svc := newCourseService(repo, users)

	_, err := svc.AssignInstructor(context.Background(), "c1", AssignInstructorRequest{InstructorID: "s1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.assigned)
}

func TestCourseServiceUnassignUnknownAssignment(t *testing.T) {
	repo := newStubCourseRepo()
	svc := newCourseService(repo, nil)

	err := svc.UnassignInstructor(context.Background(), "c1", "i1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}