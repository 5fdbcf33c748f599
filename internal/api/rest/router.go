package rest

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/probelab/agent-testbed/internal/infrastructure/config"
	"github.com/probelab/agent-testbed/internal/metrics"
)

// NewRouter assembles the HTTP surface: the versioned API routes behind
// the shared middleware chain, plus the Prometheus scrape endpoint and
// the health probe outside of rate limiting.
func NewRouter(cfg *config.ServerConfig, handler *Handler, registry *metrics.Registry, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	observe := func(route, code string, seconds float64) {
		if registry == nil {
			return
		}
		registry.RequestDuration.WithLabelValues(route, code).Observe(seconds)
		registry.RequestCounter.WithLabelValues(route, code).Inc()
	}

	route := func(pattern string, fn http.HandlerFunc) {
		chain := NewChain(
			MetricsMiddleware(pattern, observe),
			CORSMiddleware(),
		)
		mux.Handle(pattern, chain.Then(fn))
	}

	route("POST /api/v1/chat", handler.handleChat)
	route("POST /api/v1/chat/reset/{session_id}", handler.handleResetSession)
	route("GET /api/v1/sessions/{session_id}/history", handler.handleSessionHistory)
	route("GET /api/v1/sessions/{session_id}/behavior", handler.handleSessionBehavior)
	route("GET /api/v1/failure-scenarios", handler.handleListScenarios)
	route("POST /api/v1/failure-scenarios", handler.handleCreateScenario)
	route("DELETE /api/v1/failure-scenarios/{id}", handler.handleDeleteScenario)
	route("POST /api/v1/failure-scenarios/{id}/activate", handler.handleActivateScenario)
	route("POST /api/v1/failure-scenarios/deactivate", handler.handleDeactivateScenario)
	route("GET /api/v1/analytics/failures", handler.handleFailureAnalytics)
	route("GET /api/v1/validation/stats", handler.handleValidationStats)

	mux.HandleFunc("GET /healthz", handler.handleHealth)

	if registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry.Gatherer(), promhttp.HandlerOpts{}))
	}

	var root http.Handler = mux
	if cfg.RateLimit.RequestsPerSecond > 0 {
		root = RateLimitMiddleware(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize)(root)
	}
	root = RequestIDMiddleware()(root)
	root = LoggingMiddleware(logger)(root)
	root = RecoveryMiddleware(logger)(root)
	return root
}
