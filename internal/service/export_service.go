package service

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-registrar-api/internal/models"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
	"github.com/noah-isme/uni-registrar-api/pkg/storage"
)

type transcriptDocumentSource interface {
	ExportPDF(ctx context.Context, studentID string) ([]byte, error)
	ExportCSV(ctx context.Context, studentID string) ([]byte, error)
}

type exportStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportService archives rendered transcript documents on disk and hands out
// signed, time-limited download tokens. Expired documents are purged by a
// background sweep.
type ExportService struct {
	transcripts transcriptDocumentSource
	store       exportStore
	signer      *storage.SignedURLSigner
	retention   time.Duration
	logger      *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(transcripts transcriptDocumentSource, store exportStore, signer *storage.SignedURLSigner, retention time.Duration, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &ExportService{
		transcripts: transcripts,
		store:       store,
		signer:      signer,
		retention:   retention,
		logger:      logger,
	}
}

// Archive renders the student's transcript in the requested format, stores the
// document and returns a signed download token for it.
func (s *ExportService) Archive(ctx context.Context, studentID, format string) (*models.TranscriptExport, error) {
	var (
		payload []byte
		err     error
	)
	switch format {
	case models.ExportFormatPDF:
		payload, err = s.transcripts.ExportPDF(ctx, studentID)
	case models.ExportFormatCSV:
		payload, err = s.transcripts.ExportCSV(ctx, studentID)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be pdf or csv")
	}
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	relPath := fmt.Sprintf("transcripts/%s/%s.%s", studentID, id, format)
	if _, err := s.store.Save(relPath, payload); err != nil {
		return nil, appErrors.Wrap(err, "EXPORT_FAILED", http.StatusInternalServerError, "failed to store export document")
	}

	token, expiresAt, err := s.signer.Generate(id, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, "EXPORT_FAILED", http.StatusInternalServerError, "failed to sign download token")
	}

	s.logger.Info("transcript export archived",
		zap.String("export_id", id),
		zap.String("student_id", studentID),
		zap.String("format", format))

	return &models.TranscriptExport{
		ID:            id,
		StudentID:     studentID,
		Format:        format,
		DownloadToken: token,
		ExpiresAt:     expiresAt,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Open validates a download token and returns a handle on the stored
// document plus its format.
func (s *ExportService) Open(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "download link is invalid or expired")
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export document no longer available")
	}

	format := "csv"
	if path.Ext(relPath) == ".pdf" {
		format = "pdf"
	}
	return file, format, nil
}

// StartCleanup launches the retention sweep. It stops when ctx is cancelled.
func (s *ExportService) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.store.CleanupOlderThan(s.retention)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(deleted) > 0 {
					s.logger.Info("expired exports purged", zap.Int("count", len(deleted)))
				}
			}
		}
	}()
}
