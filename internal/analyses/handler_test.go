package analyses

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"conformity-backend/internal/shared/server/middleware"
)

func setupAnalysisRouter(t *testing.T, completer *fakeCompleter) (*gin.Engine, serviceFixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := newServiceFixture(t, completer, true)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Caller())
	NewHandler(f.svc).RegisterRoutes(r.Group("/api/v1"))
	return r, f
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return doJSONWithHeaders(t, r, method, path, body, nil)
}

func doJSONWithHeaders(t *testing.T, r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", "req-handler")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCreateAnalysisReturnsJob(t *testing.T) {
	router, f := setupAnalysisRouter(t, staticCompleter(oneHighGapCitingE1))

	resp := doJSON(t, router, http.MethodPost, "/api/v1/analyses", sampleRequest())
	require.Equal(t, http.StatusAccepted, resp.Code)

	var created struct {
		JobID  string `json:"jobId"`
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.JobID)
	require.Equal(t, "pending", created.Status)

	msgs := f.queue.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "req-handler", msgs[0].RequestID)
}

func TestCreateAnalysisRejectsInvalidBody(t *testing.T) {
	router, _ := setupAnalysisRouter(t, staticCompleter(`{}`))

	resp := doJSON(t, router, http.MethodPost, "/api/v1/analyses", map[string]any{"tipoDocumento": "PGR"})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, ErrorCodeValidation, body.Error.Code)
}

func TestCreateAnalysisRejectsDuplicateChunkIDs(t *testing.T) {
	router, f := setupAnalysisRouter(t, staticCompleter(`{}`))

	req := sampleRequest()
	req.Evidence = append(req.Evidence, req.Evidence[0])
	resp := doJSON(t, router, http.MethodPost, "/api/v1/analyses", req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Contains(t, resp.Body.String(), ErrorCodeValidation)
	require.Empty(t, f.queue.Messages())
}

func TestCreateAnalysisIdempotencyKeyReplays(t *testing.T) {
	router, f := setupAnalysisRouter(t, staticCompleter(`{}`))
	headers := map[string]string{"Idempotency-Key": "pgr-2026-03"}

	first := doJSONWithHeaders(t, router, http.MethodPost, "/api/v1/analyses", sampleRequest(), headers)
	require.Equal(t, http.StatusAccepted, first.Code)
	var created struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.NewDecoder(first.Body).Decode(&created))

	second := doJSONWithHeaders(t, router, http.MethodPost, "/api/v1/analyses", sampleRequest(), headers)
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	var replayed struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.NewDecoder(second.Body).Decode(&replayed))
	require.Equal(t, created.JobID, replayed.JobID)
	require.Len(t, f.queue.Messages(), 1)
}

func TestCreateAnalysisIdempotencyKeyConflict(t *testing.T) {
	router, f := setupAnalysisRouter(t, staticCompleter(`{}`))
	headers := map[string]string{"Idempotency-Key": "pgr-2026-03"}

	first := doJSONWithHeaders(t, router, http.MethodPost, "/api/v1/analyses", sampleRequest(), headers)
	require.Equal(t, http.StatusAccepted, first.Code)

	changed := sampleRequest()
	changed.DocumentType = "PCMSO"
	resp := doJSONWithHeaders(t, router, http.MethodPost, "/api/v1/analyses", changed, headers)
	require.Equal(t, http.StatusConflict, resp.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, ErrorCodeConflict, body.Error.Code)
	require.Len(t, f.queue.Messages(), 1)

	// Keys are scoped per caller.
	other := doJSONWithHeaders(t, router, http.MethodPost, "/api/v1/analyses", changed, map[string]string{
		"Idempotency-Key": "pgr-2026-03",
		"X-Caller-Id":     "tenant-b",
	})
	require.Equal(t, http.StatusAccepted, other.Code)
}

func TestJobAndResultLifecycle(t *testing.T) {
	router, f := setupAnalysisRouter(t, staticCompleter(oneHighGapCitingE1))
	ctx := context.Background()

	job, err := f.svc.Create(ctx, sampleRequest())
	require.NoError(t, err)

	resp := doJSON(t, router, http.MethodGet, "/api/v1/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var pending map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pending))
	require.Equal(t, "pending", pending["status"])
	require.EqualValues(t, 0, pending["progresso"])
	require.NotContains(t, pending, "resultadoId")

	require.NoError(t, f.svc.ProcessJob(ctx, job.ID))

	resp = doJSON(t, router, http.MethodGet, "/api/v1/jobs/"+job.ID, nil)
	var done struct {
		Status   string `json:"status"`
		Progress int    `json:"progresso"`
		ResultID string `json:"resultadoId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&done))
	require.Equal(t, "completed", done.Status)
	require.Equal(t, 100, done.Progress)

	resp = doJSON(t, router, http.MethodGet, "/api/v1/results/"+done.ResultID, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.EqualValues(t, 85, result["score"])
	require.Equal(t, "baixo", result["nivelRisco"])
	require.Equal(t, string(ReviewPending), result["statusRevisao"])
	require.Contains(t, result, "metadados")
	require.Contains(t, result, "confianca")

	resp = doJSON(t, router, http.MethodPost, "/api/v1/results/"+done.ResultID+"/review", map[string]string{
		"decisao":       "aprovado",
		"revisor":       "eng. ana",
		"justificativa": "conforme",
	})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doJSON(t, router, http.MethodPost, "/api/v1/results/"+done.ResultID+"/review", map[string]string{
		"decisao":       "rejeitado",
		"revisor":       "eng. ana",
		"justificativa": "mudei de ideia sobre o laudo",
	})
	require.Equal(t, http.StatusConflict, resp.Code)
}

func TestJobErrorHidesProviderText(t *testing.T) {
	router, f := setupAnalysisRouter(t, failingCompleter(&llmAuthError{}))
	ctx := context.Background()

	job, err := f.svc.Create(ctx, sampleRequest())
	require.NoError(t, err)
	_ = f.svc.ProcessJob(ctx, job.ID)

	resp := doJSON(t, router, http.MethodGet, "/api/v1/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotContains(t, resp.Body.String(), "sk-live")
	require.Contains(t, resp.Body.String(), `"status":"error"`)
	require.Contains(t, resp.Body.String(), "erroDetalhes")
}

func TestNotFoundRoutes(t *testing.T) {
	router, _ := setupAnalysisRouter(t, staticCompleter(`{}`))

	for _, path := range []string{"/api/v1/jobs/missing", "/api/v1/results/missing"} {
		resp := doJSON(t, router, http.MethodGet, path, nil)
		require.Equal(t, http.StatusNotFound, resp.Code, path)
	}
	resp := doJSON(t, router, http.MethodPost, "/api/v1/results/missing/review", map[string]string{
		"decisao": "aprovado", "revisor": "ana", "justificativa": "ok",
	})
	require.Equal(t, http.StatusNotFound, resp.Code)
}

type llmAuthError struct{}

func (llmAuthError) Error() string { return "primary error (HTTP 401): invalid key sk-live-123" }
