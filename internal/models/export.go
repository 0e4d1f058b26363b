package models

import "time"

// Export formats accepted by the transcript archive.
const (
	ExportFormatPDF = "pdf"
	ExportFormatCSV = "csv"
)

// TranscriptExport describes one archived transcript document. The download
// token is self-contained; no database row backs it.
type TranscriptExport struct {
	ID            string    `json:"id"`
	StudentID     string    `json:"student_id"`
	Format        string    `json:"format"`
	DownloadToken string    `json:"download_token"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}
