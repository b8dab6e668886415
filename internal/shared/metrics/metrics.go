package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	analysisStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analysis_started_total",
		Help: "Total analyses started",
	})
	analysisCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analysis_completed_total",
		Help: "Total analyses completed",
	})
	analysisFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_failed_total",
		Help: "Total analyses failed by error class",
	}, []string{"class"})
	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "analysis_duration_ms",
		Help:    "Analysis duration in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000},
	})

	providerAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_provider_attempts_total",
		Help: "Provider call attempts by provider and outcome class",
	}, []string{"provider", "class"})
	providerFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_provider_fallbacks_total",
		Help: "Provider fallbacks by origin and destination",
	}, []string{"from", "to"})

	rateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_decisions_total",
		Help: "Rate limiter decisions by outcome",
	}, []string{"outcome"})

	workerJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_jobs_total",
		Help: "Queue messages handled by the worker by outcome",
	}, []string{"outcome"})
)

// IncAnalysisStarted increments the started counter.
func IncAnalysisStarted() { analysisStarted.Inc() }

// IncAnalysisCompleted increments the completed counter.
func IncAnalysisCompleted() { analysisCompleted.Inc() }

// IncAnalysisFailed increments the failed counter for an error class.
func IncAnalysisFailed(class string) {
	if class == "" {
		class = "unknown"
	}
	analysisFailed.WithLabelValues(class).Inc()
}

// ObserveAnalysisDurationMs records an analysis duration in milliseconds.
func ObserveAnalysisDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	analysisDuration.Observe(value)
}

// IncProviderAttempt counts one provider attempt. class is "ok" on success.
func IncProviderAttempt(provider, class string) {
	providerAttempts.WithLabelValues(provider, class).Inc()
}

// IncProviderFallback counts a switch from one provider to another.
func IncProviderFallback(from, to string) {
	providerFallbacks.WithLabelValues(from, to).Inc()
}

// IncRateLimit counts a limiter decision: allowed, rejected or fail_open.
func IncRateLimit(outcome string) {
	rateLimitDecisions.WithLabelValues(outcome).Inc()
}

// IncWorkerJob counts a worker outcome: received, completed, failed or unrecoverable.
func IncWorkerJob(outcome string) {
	workerJobs.WithLabelValues(outcome).Inc()
}

// Handler exposes the default registry in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
