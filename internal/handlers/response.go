package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"demand-forecast/internal/models"
	"demand-forecast/internal/repository"
	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

// maxJSONBody bounds request bodies other than uploads.
const maxJSONBody = 1 << 20

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Payload is the body of a successful response. success is added on write.
type Payload map[string]interface{}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// base carries what every handler group needs to answer requests.
type base struct {
	logger  logging.Logger
	metrics *metrics.Collector
}

// observe starts the latency timer of endpoint. Call the returned func on
// exit.
func (b base) observe(endpoint string) func() {
	start := time.Now()
	return func() {
		b.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

// sendJSON sends a JSON response
func (b base) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendOK sends a success envelope
func (b base) sendOK(w http.ResponseWriter, r *http.Request, endpoint string, statusCode int, payload Payload) {
	b.metrics.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(statusCode))
	if payload == nil {
		payload = Payload{}
	}
	payload["success"] = true
	b.sendJSON(w, payload, statusCode)
}

// sendError sends an error response
func (b base) sendError(w http.ResponseWriter, r *http.Request, endpoint, message string, statusCode int) {
	b.metrics.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	b.sendJSON(w, response, statusCode)
}

// fail classifies err, logs server-side failures and sends the matching
// error response.
func (b base) fail(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	status, errType := classify(err)
	b.metrics.RecordAPIError(errType, endpoint)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		b.logger.Error(r.Context(), "[API_ERROR] Request failed", logging.Fields{
			"endpoint": endpoint,
			"method":   r.Method,
			"path":     r.URL.Path,
		}, err)
		message = "internal server error"
	} else {
		b.logger.Debug(r.Context(), "[API_REJECTED] Request rejected", logging.Fields{
			"endpoint": endpoint,
			"status":   status,
			"error":    err.Error(),
		})
	}

	b.sendError(w, r, endpoint, message, status)
}

// classify maps a domain error onto an HTTP status and a metric label.
func classify(err error) (int, string) {
	var (
		schemaErr      *models.SchemaError
		formatErr      *models.FormatError
		validationErr  *models.ValidationError
		unsupportedErr *models.UnsupportedModelTypeError
		notFoundErr    *repository.NotFoundError
		conflictErr    *repository.ConflictError
		transitionErr  *models.InvalidTransitionError
		insufficient   *models.InsufficientDataError
		metricErr      *models.MetricComputationError
	)
	switch {
	case errors.As(err, &schemaErr):
		return http.StatusBadRequest, "schema_error"
	case errors.As(err, &formatErr):
		return http.StatusBadRequest, "format_error"
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "validation_error"
	case errors.As(err, &unsupportedErr):
		return http.StatusBadRequest, "unsupported_model_type"
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &conflictErr), errors.As(err, &transitionErr):
		return http.StatusConflict, "conflict"
	case errors.As(err, &insufficient):
		return http.StatusUnprocessableEntity, "insufficient_data"
	case errors.As(err, &metricErr):
		return http.StatusUnprocessableEntity, "metric_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeJSON reads a JSON body into dst and validates it. An empty body is
// accepted when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return &models.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON body: %v", err)}
		}
	}
	return validateStruct(dst)
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &models.ValidationError{
			Field:   fe.Field(),
			Value:   fmt.Sprint(fe.Value()),
			Message: fmt.Sprintf("failed %q validation", fe.Tag()),
		}
	}
	return &models.ValidationError{Field: "body", Message: err.Error()}
}

// intQuery parses an optional positive integer query parameter.
func intQuery(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, &models.ValidationError{Field: name, Value: s, Message: "expected a positive integer"}
	}
	return n, nil
}

// sendFile streams a stored artifact as an attachment
func (b base) sendFile(w http.ResponseWriter, r *http.Request, endpoint, path, name, contentType string) {
	b.metrics.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(http.StatusOK))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}
