package analyses

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"conformity-backend/internal/conformity"
	"conformity-backend/internal/idempotency"
	"conformity-backend/internal/jobs"
	"conformity-backend/internal/shared/server/middleware"
	"conformity-backend/internal/shared/server/respond"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 255
)

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc *Service
	// CreateLimit and PollLimit guard job creation and polling. Nil skips.
	CreateLimit gin.HandlerFunc
	PollLimit   gin.HandlerFunc
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", withLimit(h.CreateLimit, h.createAnalysis)...)
	rg.GET("/jobs/:id", withLimit(h.PollLimit, h.getJob)...)
	rg.GET("/results/:id", withLimit(h.PollLimit, h.getResult)...)
	rg.POST("/results/:id/review", h.reviewResult)
}

func withLimit(limit, handler gin.HandlerFunc) []gin.HandlerFunc {
	if limit == nil {
		return []gin.HandlerFunc{handler}
	}
	return []gin.HandlerFunc{limit, handler}
}

type reviewRequest struct {
	Decision      string `json:"decisao"`
	Reviewer      string `json:"revisor"`
	Justification string `json:"justificativa"`
}

func (h *Handler) createAnalysis(c *gin.Context) {
	var req conformity.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", nil)
		return
	}

	key := strings.TrimSpace(c.GetHeader(idempotencyHeader))
	if len(key) > maxIdempotencyKeyLen {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "Idempotency-Key too long", nil)
		return
	}
	if key != "" {
		key = middleware.CallerIDFromContext(c) + ":" + key
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	job, replayed, err := h.Svc.CreateWithKey(ctx, key, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRequest):
			respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "documento, tipoDocumento and unique evidence chunkId are required", nil)
		case errors.Is(err, idempotency.ErrConflict):
			respond.Error(c, http.StatusConflict, ErrorCodeConflict, "Idempotency-Key already used with a different payload", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to start analysis", nil)
		}
		return
	}

	status := http.StatusAccepted
	if replayed {
		status = http.StatusOK
		c.Header(replayedHeader, "true")
	}
	respond.JSON(c, status, gin.H{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

func (h *Handler) getJob(c *gin.Context) {
	job, err := h.Svc.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "job not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to fetch job", nil)
		}
		return
	}
	respond.OK(c, job)
}

func (h *Handler) getResult(c *gin.Context) {
	result, err := h.Svc.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "result not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to fetch result", nil)
		}
		return
	}
	respond.OK(c, result)
}

func (h *Handler) reviewResult(c *gin.Context) {
	var body reviewRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	result, err := h.Svc.Review(ctx, c.Param("id"), Review{
		Decision:      body.Decision,
		Reviewer:      body.Reviewer,
		Justification: body.Justification,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidReview):
			respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, err.Error(), nil)
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "result not found", nil)
		case errors.Is(err, ErrAlreadyReviewed):
			respond.Error(c, http.StatusConflict, ErrorCodeConflict, "result already reviewed", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to record review", nil)
		}
		return
	}
	respond.OK(c, result)
}
