package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"demand-forecast/internal/services"
	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

// DashboardHandler handles dashboard API endpoints
type DashboardHandler struct {
	base
	dashboard *services.DashboardService
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboard *services.DashboardService, logger logging.Logger, metricsCollector *metrics.Collector) *DashboardHandler {
	return &DashboardHandler{
		base:      base{logger: logger, metrics: metricsCollector},
		dashboard: dashboard,
	}
}

// serve runs load and sends its result under key.
func (h *DashboardHandler) serve(endpoint, key string, load func(ctx context.Context) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer h.observe(endpoint)()

		data, err := load(r.Context())
		if err != nil {
			h.fail(w, r, endpoint, err)
			return
		}
		h.sendOK(w, r, endpoint, http.StatusOK, Payload{
			key:          data,
			"updated_at": time.Now().UTC(),
		})
	}
}

// RegisterRoutes registers all dashboard API routes
func (h *DashboardHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/dashboard/metrics", h.serve("/dashboard/metrics", "metrics", func(ctx context.Context) (interface{}, error) {
		return h.dashboard.Metrics(ctx)
	})).Methods("GET")

	router.HandleFunc("/dashboard/performance", h.serve("/dashboard/performance", "performance", func(ctx context.Context) (interface{}, error) {
		return h.dashboard.Performance(ctx)
	})).Methods("GET")

	router.HandleFunc("/dashboard/trends", h.serve("/dashboard/trends", "trends", func(ctx context.Context) (interface{}, error) {
		return h.dashboard.Trends(ctx)
	})).Methods("GET")

	router.HandleFunc("/dashboard/alerts", h.serve("/dashboard/alerts", "alerts", func(ctx context.Context) (interface{}, error) {
		return h.dashboard.Alerts(ctx)
	})).Methods("GET")

	router.HandleFunc("/dashboard/summary", h.serve("/dashboard/summary", "summary", func(ctx context.Context) (interface{}, error) {
		return h.dashboard.Summary(ctx)
	})).Methods("GET")
}
