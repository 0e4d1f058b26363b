package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-registrar-api/internal/middleware"
	"github.com/noah-isme/uni-registrar-api/internal/models"
	"github.com/noah-isme/uni-registrar-api/internal/service"
	"github.com/noah-isme/uni-registrar-api/pkg/storage"
)

type responseEnvelope struct {
	Data       map[string]interface{} `json:"data"`
	Error      map[string]interface{} `json:"error"`
	Meta       map[string]interface{} `json:"meta"`
	Pagination map[string]interface{} `json:"pagination"`
}

type fakeTranscriptRows struct {
	rows []models.EnrollmentDetail
}

func (f *fakeTranscriptRows) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return f.rows, nil
}

type fakeStudents struct {
	users map[string]*models.User
}

func (f *fakeStudents) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type fakeRenderer struct{}

func (fakeRenderer) TranscriptPDF(transcript *models.Transcript) ([]byte, error) {
	return []byte("%PDF-1.4"), nil
}

func (fakeRenderer) TranscriptCSV(transcript *models.Transcript) ([]byte, error) {
	return []byte("course_code,grade\n"), nil
}

func testTranscriptHandler(t *testing.T) *TranscriptHandler {
	t.Helper()
	students := &fakeStudents{users: map[string]*models.User{
		"stu-1": {ID: "stu-1", FullName: "Test Student"},
	}}
	transcripts := service.NewTranscriptService(&fakeTranscriptRows{}, students, nil, fakeRenderer{}, nil, models.DefaultAcademicPolicy(), time.Minute, nil)

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	exports := service.NewExportService(transcripts, store, signer, time.Hour, nil)

	return NewTranscriptHandler(transcripts, exports)
}

func studentContext(rec *httptest.ResponseRecorder, target string) *gin.Context {
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/transcripts/"+target, nil)
	c.Params = gin.Params{{Key: "studentId", Value: target}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})
	return c
}

func TestTranscriptHandlerStudentCannotReadOthers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := testTranscriptHandler(t)

	rec := httptest.NewRecorder()
	handler.Get(studentContext(rec, "stu-2"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTranscriptHandlerMeResolvesToOwnRecord(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := testTranscriptHandler(t)

	rec := httptest.NewRecorder()
	handler.Get(studentContext(rec, "me"))

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "stu-1", envelope.Data["student_id"])
	assert.Equal(t, false, envelope.Meta["cache_hit"])
}

func TestTranscriptHandlerStaffReadsAnyStudent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := testTranscriptHandler(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/transcripts/stu-1", nil)
	c.Params = gin.Params{{Key: "studentId", Value: "stu-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "adm-1", Role: models.RoleAdmin})

	handler.Get(c)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTranscriptHandlerGetUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := testTranscriptHandler(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/transcripts/me", nil)

	handler.Get(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTranscriptHandlerExportPDF(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := testTranscriptHandler(t)

	rec := httptest.NewRecorder()
	handler.Export(studentContext(rec, "me"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
}

func TestTranscriptHandlerExportRejectsUnknownFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := testTranscriptHandler(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/transcripts/me/export?format=xlsx", nil)
	c.Params = gin.Params{{Key: "studentId", Value: "me"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})

	handler.Export(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTranscriptHandlerArchiveAndDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := testTranscriptHandler(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/transcripts/me/exports?format=csv", nil)
	c.Params = gin.Params{{Key: "studentId", Value: "me"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent})

	handler.Archive(c)
	require.Equal(t, http.StatusCreated, rec.Code)

	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	token, _ := envelope.Data["download_token"].(string)
	require.NotEmpty(t, token)

	downloadRec := httptest.NewRecorder()
	dc, _ := gin.CreateTestContext(downloadRec)
	dc.Request = httptest.NewRequest(http.MethodGet, "/exports/"+token, nil)
	dc.Params = gin.Params{{Key: "token", Value: token}}

	handler.Download(dc)

	assert.Equal(t, http.StatusOK, downloadRec.Code)
	assert.Equal(t, "text/csv", downloadRec.Header().Get("Content-Type"))
	assert.Contains(t, downloadRec.Body.String(), "course_code")
}

func TestTranscriptHandlerDownloadInvalidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := testTranscriptHandler(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/bogus", nil)
	c.Params = gin.Params{{Key: "token", Value: "bogus"}}

	handler.Download(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}