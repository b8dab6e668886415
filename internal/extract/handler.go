package extract

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"conformity-backend/internal/shared/server/middleware"
	"conformity-backend/internal/shared/server/respond"
	"conformity-backend/internal/shared/storage/object"
	"conformity-backend/internal/shared/telemetry"
	"conformity-backend/internal/shared/util"
)

const (
	DefaultMaxBytes = 4 << 20 // 4MB

	// multipart framing on top of the file itself
	formOverhead = 64 << 10
)

// Handler serves POST /extract.
type Handler struct {
	// Store archives the uploaded file; nil skips archiving.
	Store    object.ObjectStore
	MaxBytes int64
	NewID    func() string
}

// NewHandler constructs a Handler.
func NewHandler(store object.ObjectStore, maxBytes int64) *Handler {
	return &Handler{Store: store, MaxBytes: maxBytes}
}

// RegisterRoutes attaches the extraction route.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/extract", h.extract)
}

type extractResponse struct {
	Extracted
	UploadID string `json:"uploadId"`
}

func (h *Handler) extract(c *gin.Context) {
	limit := h.maxBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+formOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			tooLarge(c, limit)
			return
		}
		respond.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "file is required", nil)
		return
	}
	if fileHeader.Size > limit {
		tooLarge(c, limit)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "unable to read file", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "unable to read file", nil)
		return
	}
	if int64(len(data)) > limit {
		tooLarge(c, limit)
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	out, err := FromBytes(c.Request.Context(), data, contentType, fileHeader.Filename)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnsupported):
			respond.Error(c, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "only PDF, DOCX and plain text are supported", nil)
		case errors.Is(err, ErrEmpty):
			respond.Error(c, http.StatusUnprocessableEntity, "EMPTY_DOCUMENT", "no text could be extracted", nil)
		default:
			respond.Error(c, http.StatusUnprocessableEntity, "EXTRACTION_FAILED", "document could not be read", nil)
		}
		return
	}

	uploadID := h.newID()
	h.archive(c.Request.Context(), c, uploadID, fileHeader.Filename, out.MimeType, data)

	respond.OK(c, extractResponse{Extracted: out, UploadID: uploadID})
}

// archive keeps the original upload next to the caller's other files. A
// storage failure does not fail the extraction.
func (h *Handler) archive(ctx context.Context, c *gin.Context, uploadID, fileName, mimeType string, data []byte) {
	if h.Store == nil {
		return
	}
	safeName, err := util.SanitizeFileName(fileName)
	if err != nil {
		safeName = "upload"
	}
	callerKey := util.HashKey(middleware.CallerIDFromContext(c))
	key := object.UploadKey(callerKey, uploadID, safeName)
	if _, err := h.Store.Put(ctx, key, mimeType, bytes.NewReader(data)); err != nil {
		telemetry.Warn("extract.archive_failed", map[string]any{
			"request_id": middleware.RequestIDFromContext(c),
			"upload_id":  uploadID,
			"error":      err.Error(),
		})
		return
	}
	telemetry.Info("extract.archived", map[string]any{
		"request_id": middleware.RequestIDFromContext(c),
		"upload_id":  uploadID,
		"mime_type":  mimeType,
		"bytes":      len(data),
	})
}

func (h *Handler) maxBytes() int64 {
	if h.MaxBytes > 0 {
		return h.MaxBytes
	}
	return DefaultMaxBytes
}

func (h *Handler) newID() string {
	if h.NewID != nil {
		return h.NewID()
	}
	return uuid.NewString()
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func tooLarge(c *gin.Context, limit int64) {
	respond.Error(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "file exceeds the upload limit", gin.H{"maxBytes": limit})
}
