package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"conformity-backend/internal/analyses"
	"conformity-backend/internal/extract"
	"conformity-backend/internal/ratelimit"
	"conformity-backend/internal/shared/config"
	"conformity-backend/internal/shared/metrics"
	"conformity-backend/internal/shared/server/middleware"
	"conformity-backend/internal/shared/server/respond"
)

// RouterDeps holds handlers and shared dependencies for routing.
type RouterDeps struct {
	Config          config.Config
	Limiter         *ratelimit.Limiter
	AnalysisHandler *analyses.Handler
	ExtractHandler  *extract.Handler
	// Health reports readiness details; nil answers {"ok": true}.
	Health func() map[string]any
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Caller(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		body := map[string]any{"ok": true}
		if deps.Health != nil {
			for k, v := range deps.Health() {
				body[k] = v
			}
		}
		respond.JSON(c, http.StatusOK, body)
	})

	if h := deps.AnalysisHandler; h != nil {
		if deps.Limiter != nil {
			h.CreateLimit = middleware.RateLimit(deps.Limiter, middleware.RateLimitRule{
				Name:   "analysis",
				Max:    deps.Config.AnalysisRateLimit,
				Window: windowOr(deps.Config.AnalysisRateWin),
			})
			h.PollLimit = middleware.RateLimit(deps.Limiter, middleware.RateLimitRule{
				Name:   "poll",
				Max:    deps.Config.PollRateLimit,
				Window: windowOr(deps.Config.PollRateWin),
			})
		}
		h.RegisterRoutes(api)
	}
	if deps.ExtractHandler != nil {
		deps.ExtractHandler.RegisterRoutes(api)
	}

	return r
}

func windowOr(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Minute
	}
	return d
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
