package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
	"github.com/noah-isme/uni-registrar-api/pkg/storage"
)

type stubExportSource struct{}

func (stubExportSource) ExportPDF(ctx context.Context, studentID string) ([]byte, error) {
	return []byte("%PDF-1.4 transcript"), nil
}

func (stubExportSource) ExportCSV(ctx context.Context, studentID string) ([]byte, error) {
	return []byte("course_code,grade\nCS101,A\n"), nil
}

func newExportService(t *testing.T) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewExportService(stubExportSource{}, store, signer, time.Hour, zap.NewNop())
}

func TestExportServiceArchiveAndDownload(t *testing.T) {
	svc := newExportService(t)

	export, err := svc.Archive(context.Background(), "s1", models.ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "s1", export.StudentID)
	assert.Equal(t, models.ExportFormatPDF, export.Format)
	assert.NotEmpty(t, export.DownloadToken)
	assert.True(t, export.ExpiresAt.After(time.Now()))

	file, format, err := svc.Open(export.DownloadToken)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, "pdf", format)

	payload, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "%PDF")
}

func TestExportServiceArchiveCSV(t *testing.T) {
	svc := newExportService(t)

	export, err := svc.Archive(context.Background(), "s1", models.ExportFormatCSV)
	require.NoError(t, err)

	file, format, err := svc.Open(export.DownloadToken)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, "csv", format)
}

func TestExportServiceArchiveRejectsUnknownFormat(t *testing.T) {
	svc := newExportService(t)

	_, err := svc.Archive(context.Background(), "s1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceOpenRejectsForgedToken(t *testing.T) {
	svc := newExportService(t)

	_, _, err := svc.Open("forged.token.payload.sig")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestExportServiceOpenRejectsExpiredToken(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", -time.Minute)
	svc := NewExportService(stubExportSource{}, store, signer, time.Hour, zap.NewNop())

	export, err := svc.Archive(context.Background(), "s1", models.ExportFormatPDF)
	require.NoError(t, err)

	_, _, err = svc.Open(export.DownloadToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestExportServiceOpenMissingDocument(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewExportService(stubExportSource{}, store, signer, time.Hour, zap.NewNop())

	// A valid token whose backing file was already purged.
	token, _, err := signer.Generate("export-1", "transcripts/s1/export-1.pdf")
	require.NoError(t, err)

	_, _, err = svc.Open(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}