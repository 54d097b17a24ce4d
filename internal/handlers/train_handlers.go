package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"demand-forecast/internal/models"
	"demand-forecast/internal/repository"
	"demand-forecast/internal/services"
	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

// ValidateRequest names the dataset to check before training
type ValidateRequest struct {
	DatasetID string `json:"dataset_id" validate:"required"`
}

// TrainHandler handles training API endpoints
type TrainHandler struct {
	base
	training *services.TrainingService
	datasets *services.DatasetService
}

// NewTrainHandler creates a new training handler
func NewTrainHandler(
	training *services.TrainingService,
	datasets *services.DatasetService,
	logger logging.Logger,
	metricsCollector *metrics.Collector,
) *TrainHandler {
	return &TrainHandler{
		base:     base{logger: logger, metrics: metricsCollector},
		training: training,
		datasets: datasets,
	}
}

// Train handles POST /train
func (h *TrainHandler) Train(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/train"
	defer h.observe(endpoint)()

	var req services.TrainRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, endpoint, err)
		return
	}

	job, _, err := h.training.Submit(r.Context(), req)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}

	h.sendOK(w, r, endpoint, http.StatusAccepted, Payload{
		"job_id":  job.ID,
		"message": "Training job started",
		"status":  job.Status,
	})
}

// Validate handles POST /train/validate
func (h *TrainHandler) Validate(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/train/validate"
	defer h.observe(endpoint)()

	var req ValidateRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, endpoint, err)
		return
	}

	validation, err := h.datasets.Validate(r.Context(), req.DatasetID)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{"validation": validation})
}

// ListJobs handles GET /train/jobs
func (h *TrainHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/train/jobs"
	defer h.observe(endpoint)()

	q := r.URL.Query()
	filter := repository.JobFilter{
		DatasetID: q.Get("dataset_id"),
		Status:    models.JobStatus(q.Get("status")),
	}
	if t := q.Get("model_type"); t != "" {
		modelType, err := models.ParseModelType(t)
		if err != nil {
			h.fail(w, r, endpoint, err)
			return
		}
		filter.ModelType = modelType
	}

	list, err := h.training.ListJobs(r.Context(), filter)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{"jobs": list, "total": len(list)})
}

// JobStatus handles GET /train/job/{id}/status
func (h *TrainHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/train/job/{id}/status"
	defer h.observe(endpoint)()

	job, err := h.training.GetJob(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{
		"job_id":       job.ID,
		"dataset_id":   job.DatasetID,
		"model_type":   job.ModelType,
		"status":       job.Status,
		"created_at":   job.CreatedAt,
		"started_at":   job.StartedAt,
		"completed_at": job.CompletedAt,
		"error":        job.Error,
		"model_id":     job.ModelID,
	})
}

// JobResult handles GET /train/job/{id}/result
func (h *TrainHandler) JobResult(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/train/job/{id}/result"
	defer h.observe(endpoint)()

	outcome, err := h.training.Result(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	job, result := outcome.Job, outcome.Job.Result
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{
		"job_id":                 job.ID,
		"model_type":             job.ModelType,
		"model_id":               job.ModelID,
		"metrics":                result.AverageMetrics,
		"total_products_trained": result.TotalProductsTrained,
		"products_skipped":       result.ProductsSkipped,
		"products_failed":        result.ProductsFailed,
		"results_file":           result.ResultsFile,
		"plot_file":              result.PlotFile,
		"results":                outcome.Results,
	})
}

// RegisterRoutes registers all training API routes
func (h *TrainHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/train", h.Train).Methods("POST")
	router.HandleFunc("/train/validate", h.Validate).Methods("POST")
	router.HandleFunc("/train/jobs", h.ListJobs).Methods("GET")
	router.HandleFunc("/train/job/{id}/status", h.JobStatus).Methods("GET")
	router.HandleFunc("/train/job/{id}/result", h.JobResult).Methods("GET")
}
