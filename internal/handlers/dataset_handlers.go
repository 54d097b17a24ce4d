package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"demand-forecast/internal/models"
	"demand-forecast/internal/services"
	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

// multipartMemory is how much of an upload is buffered before spilling to
// temporary files.
const multipartMemory = 8 << 20

// DatasetHandler handles dataset API endpoints
type DatasetHandler struct {
	base
	datasets  *services.DatasetService
	maxUpload int64
}

// NewDatasetHandler creates a new dataset handler. maxUpload bounds the
// size of an uploaded file in bytes.
func NewDatasetHandler(
	datasets *services.DatasetService,
	maxUpload int64,
	logger logging.Logger,
	metricsCollector *metrics.Collector,
) *DatasetHandler {
	return &DatasetHandler{
		base:      base{logger: logger, metrics: metricsCollector},
		datasets:  datasets,
		maxUpload: maxUpload,
	}
}

// Upload handles POST /datasets
func (h *DatasetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/datasets"
	defer h.observe(endpoint)()

	// Form fields and multipart framing need some room beyond the file.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, endpoint, &models.ValidationError{Field: "file", Message: "upload exceeds size limit"})
			return
		}
		h.fail(w, r, endpoint, &models.ValidationError{Field: "body", Message: "expected multipart form data"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, endpoint, &models.ValidationError{Field: "file", Message: "file is required"})
		return
	}
	defer file.Close()

	var tags []string
	if raw := r.FormValue("tags"); raw != "" {
		tags = strings.Split(raw, ",")
	}

	dataset, err := h.datasets.Upload(r.Context(), services.UploadRequest{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Tags:        tags,
		Filename:    header.Filename,
		Content:     file,
	})
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}

	h.logger.Info(r.Context(), "[API_DATASET_UPLOADED] Dataset uploaded", logging.Fields{
		"dataset_id": dataset.ID,
		"filename":   dataset.Filename,
		"products":   dataset.Stats.TotalProducts,
		"weeks":      dataset.Stats.TotalWeeks,
	})

	h.sendOK(w, r, endpoint, http.StatusCreated, Payload{
		"dataset_id": dataset.ID,
		"message":    "Dataset uploaded successfully",
		"stats":      dataset.Stats,
		"report":     dataset.Report,
	})
}

// List handles GET /datasets
func (h *DatasetHandler) List(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/datasets"
	defer h.observe(endpoint)()

	list, err := h.datasets.List(r.Context())
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{"datasets": list, "total": len(list)})
}

// Get handles GET /datasets/{id}
func (h *DatasetHandler) Get(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/datasets/{id}"
	defer h.observe(endpoint)()

	dataset, err := h.datasets.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{"dataset": dataset})
}

// Update handles PATCH /datasets/{id}
func (h *DatasetHandler) Update(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/datasets/{id}"
	defer h.observe(endpoint)()

	var req models.DatasetUpdate
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	dataset, err := h.datasets.Update(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{"message": "Dataset updated successfully", "dataset": dataset})
}

// Delete handles DELETE /datasets/{id}
func (h *DatasetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/datasets/{id}"
	defer h.observe(endpoint)()

	id := mux.Vars(r)["id"]
	if err := h.datasets.Delete(r.Context(), id); err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.logger.Info(r.Context(), "[API_DATASET_DELETED] Dataset deleted", logging.Fields{"dataset_id": id})
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{"message": "Dataset deleted successfully"})
}

// Download handles GET /datasets/{id}/download
func (h *DatasetHandler) Download(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/datasets/{id}/download"
	defer h.observe(endpoint)()

	path, name, err := h.datasets.RawFile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendFile(w, r, endpoint, path, name, "application/octet-stream")
}

// Visualization handles GET /datasets/{id}/visualization
func (h *DatasetHandler) Visualization(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/datasets/{id}/visualization"
	defer h.observe(endpoint)()

	var buf bytes.Buffer
	err := h.datasets.Visualize(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("product_code"), &buf)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}

	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// RawFiles handles GET /datasets/raw/list
func (h *DatasetHandler) RawFiles(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/datasets/raw/list"
	defer h.observe(endpoint)()

	raw, _, err := h.datasets.Files(r.Context())
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{"files": raw, "total": len(raw)})
}

// ProcessedFiles handles GET /datasets/processed/list
func (h *DatasetHandler) ProcessedFiles(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/datasets/processed/list"
	defer h.observe(endpoint)()

	_, processed, err := h.datasets.Files(r.Context())
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	h.sendOK(w, r, endpoint, http.StatusOK, Payload{"files": processed, "total": len(processed)})
}

// RegisterRoutes registers all dataset API routes
func (h *DatasetHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/datasets", h.Upload).Methods("POST")
	router.HandleFunc("/datasets", h.List).Methods("GET")
	router.HandleFunc("/datasets/raw/list", h.RawFiles).Methods("GET")
	router.HandleFunc("/datasets/processed/list", h.ProcessedFiles).Methods("GET")
	router.HandleFunc("/datasets/{id}", h.Get).Methods("GET")
	router.HandleFunc("/datasets/{id}", h.Update).Methods("PATCH")
	router.HandleFunc("/datasets/{id}", h.Delete).Methods("DELETE")
	router.HandleFunc("/datasets/{id}/download", h.Download).Methods("GET")
	router.HandleFunc("/datasets/{id}/visualization", h.Visualization).Methods("GET")
}
