package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SystemHandler serves the service banner, health and documentation
type SystemHandler struct {
	base
	store   HealthChecker
	version string
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(store HealthChecker, version string, logger logging.Logger, metricsCollector *metrics.Collector) *SystemHandler {
	return &SystemHandler{
		base:    base{logger: logger, metrics: metricsCollector},
		store:   store,
		version: version,
	}
}

// Root handles GET /
func (h *SystemHandler) Root(w http.ResponseWriter, r *http.Request) {
	h.sendOK(w, r, "/", http.StatusOK, Payload{
		"message": "Demand Forecast API",
		"version": h.version,
		"docs":    "/api/docs",
	})
}

// HealthCheck handles GET /health
func (h *SystemHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]interface{}{
		"status":    "healthy",
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.store.HealthCheck(checkCtx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK_FAILED] Registry unreachable", logging.Fields{"error": err.Error()})
		status["status"] = "unhealthy"
		status["registry"] = err.Error()
		h.metrics.RecordAPIRequest("/health", r.Method, "503")
		h.sendJSON(w, status, http.StatusServiceUnavailable)
		return
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.metrics.RecordAPIRequest("/health", r.Method, "200")
	h.sendJSON(w, status, http.StatusOK)
}

// RegisterRoutes registers the service routes. gatherer backs /metrics.
func (h *SystemHandler) RegisterRoutes(router *mux.Router, gatherer prometheus.Gatherer) {
	router.HandleFunc("/", h.Root).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/api/docs", h.Docs).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
}
