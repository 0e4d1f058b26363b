package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-registrar-api/internal/middleware"
	"github.com/noah-isme/uni-registrar-api/internal/models"
	"github.com/noah-isme/uni-registrar-api/internal/service"
	appErrors "github.com/noah-isme/uni-registrar-api/pkg/errors"
	"github.com/noah-isme/uni-registrar-api/pkg/response"
)

// TranscriptHandler exposes transcript, GPA and export endpoints.
type TranscriptHandler struct {
	transcripts *service.TranscriptService
	exports     *service.ExportService
}

// NewTranscriptHandler constructs TranscriptHandler.
func NewTranscriptHandler(transcripts *service.TranscriptService, exports *service.ExportService) *TranscriptHandler {
	return &TranscriptHandler{transcripts: transcripts, exports: exports}
}

// studentScope resolves the target student: students may only read their
// own record, staff may read anyone's.
func studentScope(c *gin.Context) (string, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return "", appErrors.ErrUnauthorized
	}
	target := c.Param("studentId")
	if target == "" || target == "me" {
		return claims.UserID, nil
	}
	if claims.Role == models.RoleStudent && target != claims.UserID {
		return "", appErrors.Clone(appErrors.ErrForbidden, "students may only view their own transcript")
	}
	return target, nil
}

// Get godoc
// @Summary Get a student transcript
// @Tags Transcripts
// @Produce json
// @Param studentId path string true "Student ID or 'me'"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /transcripts/{studentId} [get]
func (h *TranscriptHandler) Get(c *gin.Context) {
	studentID, err := studentScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	transcript, cacheHit, err := h.transcripts.Get(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, transcript, nil, middleware.ExtractMeta(c))
}

// Summary godoc
// @Summary Get a student's GPA summary
// @Tags Transcripts
// @Produce json
// @Param studentId path string true "Student ID or 'me'"
// @Success 200 {object} response.Envelope
// @Router /transcripts/{studentId}/gpa [get]
func (h *TranscriptHandler) Summary(c *gin.Context) {
	studentID, err := studentScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.transcripts.Summary(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Export godoc
// @Summary Download a transcript document
// @Tags Transcripts
// @Produce application/pdf
// @Produce text/csv
// @Param studentId path string true "Student ID or 'me'"
// @Param format query string false "pdf or csv" default(pdf)
// @Success 200 {file} binary
// @Router /transcripts/{studentId}/export [get]
func (h *TranscriptHandler) Export(c *gin.Context) {
	studentID, err := studentScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	format := c.DefaultQuery("format", "pdf")
	switch format {
	case "pdf":
		payload, err := h.transcripts.ExportPDF(c.Request.Context(), studentID)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=transcript-%s.pdf", studentID))
		c.Data(http.StatusOK, "application/pdf", payload)
	case "csv":
		payload, err := h.transcripts.ExportCSV(c.Request.Context(), studentID)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=transcript-%s.csv", studentID))
		c.Data(http.StatusOK, "text/csv", payload)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be pdf or csv"))
	}
}

// Archive godoc
// @Summary Archive a transcript document and return a signed download link
// @Tags Transcripts
// @Produce json
// @Param studentId path string true "Student ID or 'me'"
// @Param format query string false "pdf or csv" default(pdf)
// @Success 201 {object} response.Envelope
// @Router /transcripts/{studentId}/exports [post]
func (h *TranscriptHandler) Archive(c *gin.Context) {
	studentID, err := studentScope(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	export, err := h.exports.Archive(c.Request.Context(), studentID, c.DefaultQuery("format", "pdf"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, export)
}

// Download streams an archived document. The signed token in the path is the
// only credential; the route is unauthenticated.
// @Summary Download an archived transcript document
// @Tags Transcripts
// @Produce application/pdf
// @Produce text/csv
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/{token} [get]
func (h *TranscriptHandler) Download(c *gin.Context) {
	file, format, err := h.exports.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	contentType := "text/csv"
	if format == "pdf" {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=transcript.%s", format))
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file); err != nil {
		_ = c.Error(err)
	}
}
