package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"demand-forecast/internal/config"
	"demand-forecast/internal/repository"
	"demand-forecast/internal/services"
	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

// Services bundles what the API serves
type Services struct {
	Store     repository.Store
	Datasets  *services.DatasetService
	Training  *services.TrainingService
	Models    *services.ModelService
	Dashboard *services.DashboardService
}

// NewRouter wires every handler group onto one router and wraps it in the
// request ID, CORS and rate limiting middleware. The middleware wraps the
// router rather than being registered on it so that preflight requests
// reach it.
func NewRouter(
	svc Services,
	cfg config.APIConfig,
	maxUpload int64,
	version string,
	gatherer prometheus.Gatherer,
	logger logging.Logger,
	metricsCollector *metrics.Collector,
) http.Handler {
	router := mux.NewRouter()

	NewSystemHandler(svc.Store, version, logger, metricsCollector).RegisterRoutes(router, gatherer)
	NewDatasetHandler(svc.Datasets, maxUpload, logger, metricsCollector).RegisterRoutes(router)
	NewTrainHandler(svc.Training, svc.Datasets, logger, metricsCollector).RegisterRoutes(router)
	NewModelHandler(svc.Models, svc.Training, svc.Dashboard, logger, metricsCollector).RegisterRoutes(router)
	NewDashboardHandler(svc.Dashboard, logger, metricsCollector).RegisterRoutes(router)

	limiter := NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, metricsCollector)
	return RequestID(logger)(CORS(cfg.CORSOrigins)(limiter.Middleware(router)))
}
