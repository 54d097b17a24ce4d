package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection
type Collector struct {
	// API Metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIErrorsTotal     *prometheus.CounterVec

	// Dataset processing metrics
	DatasetRowsTotal        *prometheus.CounterVec
	DatasetProductsExcluded prometheus.Counter
	DatasetProcessDuration  prometheus.Histogram
	DatasetProcessingErrors *prometheus.CounterVec

	// Training metrics
	TrainingProductsTotal *prometheus.CounterVec
	TrainingJobsTotal     *prometheus.CounterVec
	TrainingJobDuration   *prometheus.HistogramVec
	TrainingFitDuration   *prometheus.HistogramVec
	ActiveJobs            prometheus.Gauge

	// Registry / database metrics
	DBQueryDuration  *prometheus.HistogramVec
	DBConnectionPool *prometheus.GaugeVec
	DBErrorsTotal    *prometheus.CounterVec
}

// NewCollector creates a collector whose series are registered on reg.
// Pass prometheus.DefaultRegisterer in binaries and prometheus.NewRegistry()
// in tests.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 15.0},
			},
			[]string{"endpoint"},
		),

		APIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of API errors by type",
			},
			[]string{"error_type", "endpoint"},
		),

		DatasetRowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dataset_rows_total",
				Help:      "Raw sales rows seen during dataset processing, by outcome",
			},
			[]string{"outcome"}, // "read", "dropped_null", "dropped_filter", "dropped_non_positive", "dropped_bad_date", "kept"
		),

		DatasetProductsExcluded: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dataset_products_excluded_total",
				Help:      "Products excluded from weekly aggregation for having too few sales days",
			},
		),

		DatasetProcessDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dataset_process_duration_seconds",
				Help:      "Duration of raw file cleaning and weekly aggregation in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
		),

		DatasetProcessingErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dataset_processing_errors_total",
				Help:      "Dataset processing failures by error type",
			},
			[]string{"error_type"},
		),

		TrainingProductsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "training_products_total",
				Help:      "Per-product training outcomes by model type",
			},
			[]string{"model_type", "outcome"}, // "trained", "skipped", "failed"
		),

		TrainingJobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "training_jobs_total",
				Help:      "Training job status transitions by model type",
			},
			[]string{"model_type", "status"},
		),

		TrainingJobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "training_job_duration_seconds",
				Help:      "Wall time of a whole-dataset training run in seconds",
				Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"model_type"},
		),

		TrainingFitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "training_fit_duration_seconds",
				Help:      "Duration of a single product fit and evaluation in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"model_type"},
		),

		ActiveJobs: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "training_active_jobs",
				Help:      "Number of training jobs currently running",
			},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"query_type"},
		),

		DBConnectionPool: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"state"}, // "in_use", "idle", "total"
		),

		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of database errors by type",
			},
			[]string{"error_type"},
		),
	}
}

// NewNopCollector returns a collector registered on a private registry.
func NewNopCollector() *Collector {
	return NewCollector("test", prometheus.NewRegistry())
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordAPIRequest increments API request counter
func (c *Collector) RecordAPIRequest(endpoint, method, status string) {
	c.APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordAPIError increments API error counter
func (c *Collector) RecordAPIError(errorType, endpoint string) {
	c.APIErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}

// RecordDatasetRows adds n rows to the given processing outcome.
func (c *Collector) RecordDatasetRows(outcome string, n int) {
	if n <= 0 {
		return
	}
	c.DatasetRowsTotal.WithLabelValues(outcome).Add(float64(n))
}

// RecordDatasetError increments the dataset processing error counter
func (c *Collector) RecordDatasetError(errorType string) {
	c.DatasetProcessingErrors.WithLabelValues(errorType).Inc()
}

// RecordProductOutcome counts one product's training outcome.
func (c *Collector) RecordProductOutcome(modelType, outcome string) {
	c.TrainingProductsTotal.WithLabelValues(modelType, outcome).Inc()
}

// RecordJobStatus counts a job entering status.
func (c *Collector) RecordJobStatus(modelType, status string) {
	c.TrainingJobsTotal.WithLabelValues(modelType, status).Inc()
}

// RecordDBError increments database error counter
func (c *Collector) RecordDBError(errorType string) {
	c.DBErrorsTotal.WithLabelValues(errorType).Inc()
}

// UpdateDBConnectionPool updates database connection pool metrics
func (c *Collector) UpdateDBConnectionPool(inUse, idle, total int) {
	c.DBConnectionPool.WithLabelValues("in_use").Set(float64(inUse))
	c.DBConnectionPool.WithLabelValues("idle").Set(float64(idle))
	c.DBConnectionPool.WithLabelValues("total").Set(float64(total))
}
