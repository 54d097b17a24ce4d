package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"demand-forecast/internal/forecast"
	"demand-forecast/internal/models"
	"demand-forecast/internal/repository"
	"demand-forecast/internal/services"
	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

// defaultRollingWindow is the trailing window of the performance endpoint.
const defaultRollingWindow = 4

// ModelHandler handles model registry API endpoints
type ModelHandler struct {
	base
	models    *services.ModelService
	training  *services.TrainingService
	dashboard *services.DashboardService
}

// NewModelHandler creates a new model handler
func NewModelHandler(
	modelService *services.ModelService,
	training *services.TrainingService,
	dashboard *services.DashboardService,
	logger logging.Logger,
	metricsCollector *metrics.Collector,
) *ModelHandler {
	return &ModelHandler{
		base:      base{logger: logger, metrics: metricsCollector},
		models:    modelService,
		training:  training,
		dashboard: dashboard,
	}
}

func modelFilter(r *http.Request) (repository.ModelFilter, error) {
	q := r.URL.Query()
	filter := repository.ModelFilter{
		DatasetID: q.Get("dataset_id"),
		Status:    models.ModelStatus(q.Get("status")),
	}
	if t := q.Get("type"); t != "" {
		modelType, err := models.ParseModelType(t)
		if err != nil {
			return filter, err
		}
		filter.Type = modelType
	}
	return filter, nil
}

// List handles GET /models
func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/models"
	defer h.observe(endpoint)()

	filter, err := modelFilter(r)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	list, err := h.models.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{"models": list, "total": len(list)})
}

// Best handles GET /models/best
func (h *ModelHandler) Best(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/models/best"
	defer h.observe(endpoint)()

	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = forecast.MetricMAPE
	}
	filter, err := modelFilter(r)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	best, err := h.dashboard.Best(r.Context(), metric, filter)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{"best": best})
}

// Get handles GET /models/{id}
func (h *ModelHandler) Get(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/models/{id}"
	defer h.observe(endpoint)()

	m, err := h.models.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{"model": m})
}

// Update handles PATCH /models/{id}
func (h *ModelHandler) Update(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/models/{id}"
	defer h.observe(endpoint)()

	var req models.ModelUpdate
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	m, err := h.models.Update(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{"message": "Model updated successfully", "model": m})
}

// Delete handles DELETE /models/{id}
func (h *ModelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/models/{id}"
	defer h.observe(endpoint)()

	if err := h.models.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{"message": "Model deleted successfully"})
}

// Deploy handles POST /models/{id}/deploy
func (h *ModelHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/models/{id}/deploy"
	defer h.observe(endpoint)()

	m, err := h.models.Deploy(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{"message": "Model deployed successfully", "model": m})
}

// Retrain handles POST /models/{id}/retrain
func (h *ModelHandler) Retrain(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/models/{id}/retrain"
	defer h.observe(endpoint)()

	var req services.RetrainRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	job, _, err := h.training.Retrain(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusAccepted, Payload{
		"job_id":  job.ID,
		"message": "Retraining job started",
		"status":  job.Status,
	})
}

// Predict handles POST /models/{id}/predict
func (h *ModelHandler) Predict(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/models/{id}/predict"
	defer h.observe(endpoint)()

	var req services.PredictRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	prediction, err := h.models.Predict(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{"prediction": prediction})
}

// BatchPredict handles POST /models/{id}/batch_predict
func (h *ModelHandler) BatchPredict(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/models/{id}/batch_predict"
	defer h.observe(endpoint)()

	var req services.BatchPredictRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	forecasts, err := h.models.BatchPredict(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{"predictions": forecasts, "total": len(forecasts)})
}

// Performance handles GET /models/{id}/performance
func (h *ModelHandler) Performance(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/models/{id}/performance"
	defer h.observe(endpoint)()

	product := r.URL.Query().Get("product_code")
	if product == "" {
		h.fail(w, r, endpoint, &models.ValidationError{Field: "product_code", Message: "product_code is required"})
		return
	}
	window, err := intQuery(r, "window", defaultRollingWindow)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	perf, err := h.models.Performance(r.Context(), mux.Vars(r)["id"], product, window)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{"performance": perf})
}

// Download handles GET /models/{id}/download
func (h *ModelHandler) Download(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/models/{id}/download"
	defer h.observe(endpoint)()

	path, name, err := h.models.ModelFile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendFile(w, r, endpoint, path, name, "application/json")
}

// RegisterRoutes registers all model API routes
func (h *ModelHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/models", h.List).Methods("GET")
	router.HandleFunc("/models/best", h.Best).Methods("GET")
	router.HandleFunc("/models/{id}", h.Get).Methods("GET")
	router.HandleFunc("/models/{id}", h.Update).Methods("PATCH")
	router.HandleFunc("/models/{id}", h.Delete).Methods("DELETE")
	router.HandleFunc("/models/{id}/deploy", h.Deploy).Methods("POST")
	router.HandleFunc("/models/{id}/retrain", h.Retrain).Methods("POST")
	router.HandleFunc("/models/{id}/predict", h.Predict).Methods("POST")
	router.HandleFunc("/models/{id}/batch_predict", h.BatchPredict).Methods("POST")
	router.HandleFunc("/models/{id}/performance", h.Performance).Methods("GET")
	router.HandleFunc("/models/{id}/download", h.Download).Methods("GET")
}
