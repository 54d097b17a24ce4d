package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"demand-forecast/internal/forecast"
	"demand-forecast/internal/models"
	"demand-forecast/internal/pipeline"
	"demand-forecast/internal/repository"
	"demand-forecast/internal/storage"
	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

// MaxForecastWeeks bounds a batch prediction range.
const MaxForecastWeeks = 520

// PredictRequest asks for the demand of one product in the week of Date
type PredictRequest struct {
	ProductCode string `json:"product_code" validate:"required"`
	Date        string `json:"date" validate:"required"`
}

// BatchPredictRequest asks for weekly demand of several products
type BatchPredictRequest struct {
	Products  []string `json:"products" validate:"required,min=1,dive,required"`
	StartDate string   `json:"start_date" validate:"required"`
	EndDate   string   `json:"end_date" validate:"required"`
}

// Prediction is the forecast demand of one product in one week
type Prediction struct {
	ProductCode       string  `json:"product_code"`
	Date              string  `json:"date,omitempty"`
	Week              string  `json:"week"`
	PredictedQuantity float64 `json:"predicted_quantity"`
}

// ProductForecast holds the weekly predictions of one product. Error is set
// instead when the model cannot forecast it.
type ProductForecast struct {
	ProductCode string       `json:"product_code"`
	Predictions []Prediction `json:"predictions"`
	Error       string       `json:"error,omitempty"`
}

// ProductPerformance compares a model's fitted values with the history of
// one product.
type ProductPerformance struct {
	ModelID     string                  `json:"model_id"`
	ProductCode string                  `json:"product_code"`
	Weeks       int                     `json:"weeks"`
	Metrics     models.Metrics          `json:"metrics"`
	Rolling     forecast.RollingMetrics `json:"rolling"`
}

// ModelService manages trained models and serves their predictions
type ModelService struct {
	repo     repository.ModelRepository
	datasets *DatasetService
	logger   logging.Logger
	metrics  *metrics.Collector
	now      func() time.Time
}

// NewModelService creates a new model service
func NewModelService(repo repository.ModelRepository, datasets *DatasetService, logger logging.Logger, metricsCollector *metrics.Collector) *ModelService {
	return &ModelService{
		repo:     repo,
		datasets: datasets,
		logger:   logger,
		metrics:  metricsCollector,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// List returns models matching filter
func (s *ModelService) List(ctx context.Context, filter repository.ModelFilter) ([]*models.ModelInfo, error) {
	return s.repo.ListModels(ctx, filter)
}

// Get returns one model
func (s *ModelService) Get(ctx context.Context, id string) (*models.ModelInfo, error) {
	return s.repo.GetModel(ctx, id)
}

// Update applies metadata changes
func (s *ModelService) Update(ctx context.Context, id string, u models.ModelUpdate) (*models.ModelInfo, error) {
	m, err := s.repo.GetModel(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Tags != nil {
		u.Tags = cleanTags(u.Tags)
	}
	u.Apply(m, s.now())
	if err := s.repo.UpdateModel(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Delete removes the model record and its fitted model file
func (s *ModelService) Delete(ctx context.Context, id string) error {
	m, err := s.repo.GetModel(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteModel(ctx, id); err != nil {
		return err
	}
	if err := storage.Remove(m.ModelFile); err != nil {
		s.logger.Warn(ctx, "[MODEL_DELETE_FILE] Could not remove model file", logging.Fields{
			"model_id": id,
			"error":    err.Error(),
		})
	}
	return nil
}

// Deploy marks a model as serving predictions
func (s *ModelService) Deploy(ctx context.Context, id string) (*models.ModelInfo, error) {
	m, err := s.repo.GetModel(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Deploy(s.now())
	if err := s.repo.UpdateModel(ctx, m); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "[MODEL_DEPLOYED] Model deployed", logging.Fields{
		"model_id": id,
		"type":     m.Type,
	})
	return m, nil
}

// ModelFile returns the fitted model file and a download name
func (s *ModelService) ModelFile(ctx context.Context, id string) (string, string, error) {
	m, err := s.repo.GetModel(ctx, id)
	if err != nil {
		return "", "", err
	}
	if m.ModelFile == "" || !storage.Exists(m.ModelFile) {
		return "", "", &repository.NotFoundError{Resource: "model file", ID: id}
	}
	return m.ModelFile, fmt.Sprintf("model_%s.json", id), nil
}

// Predict forecasts one product for the week containing req.Date
func (s *ModelService) Predict(ctx context.Context, id string, req PredictRequest) (*Prediction, error) {
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	bundle, err := s.bundle(ctx, id)
	if err != nil {
		return nil, err
	}
	fitted, ok := bundle.Model(req.ProductCode)
	if !ok {
		return nil, &repository.NotFoundError{Resource: "product", ID: req.ProductCode}
	}

	week := pipeline.WeekStart(date)
	values, err := fitted.Forecast([]time.Time{week})
	if err != nil {
		return nil, err
	}
	return &Prediction{
		ProductCode:       req.ProductCode,
		Date:              req.Date,
		Week:              week.Format(pipeline.DateLayout),
		PredictedQuantity: values[0],
	}, nil
}

// BatchPredict forecasts every requested product for each week from
// StartDate to EndDate. Products the model cannot forecast carry an error.
func (s *ModelService) BatchPredict(ctx context.Context, id string, req BatchPredictRequest) ([]ProductForecast, error) {
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		return nil, err
	}
	weeks, err := weekRange(start, end)
	if err != nil {
		return nil, err
	}

	bundle, err := s.bundle(ctx, id)
	if err != nil {
		return nil, err
	}

	out := make([]ProductForecast, 0, len(req.Products))
	for _, code := range req.Products {
		pf := ProductForecast{ProductCode: code, Predictions: []Prediction{}}
		fitted, ok := bundle.Model(code)
		if !ok {
			pf.Error = "product not found in model"
			out = append(out, pf)
			continue
		}
		values, err := fitted.Forecast(weeks)
		if err != nil {
			pf.Error = err.Error()
			out = append(out, pf)
			continue
		}
		for i, w := range weeks {
			pf.Predictions = append(pf.Predictions, Prediction{
				ProductCode:       code,
				Week:              w.Format(pipeline.DateLayout),
				PredictedQuantity: values[i],
			})
		}
		out = append(out, pf)
	}
	return out, nil
}

// Performance scores a model's fitted values against the recorded history
// of one product, overall and over a trailing window.
func (s *ModelService) Performance(ctx context.Context, id, productCode string, window int) (*ProductPerformance, error) {
	m, err := s.repo.GetModel(ctx, id)
	if err != nil {
		return nil, err
	}
	bundle, err := s.bundle(ctx, id)
	if err != nil {
		return nil, err
	}
	fitted, ok := bundle.Model(productCode)
	if !ok {
		return nil, &repository.NotFoundError{Resource: "product", ID: productCode}
	}

	_, points, err := s.datasets.Weekly(ctx, m.DatasetID)
	if err != nil {
		return nil, err
	}
	series, ok := pipeline.FindSeries(points, productCode)
	if !ok {
		return nil, &repository.NotFoundError{Resource: "product", ID: productCode}
	}

	// The first weeks have no lag history for the boosted-tree model.
	if series.Len() <= pipeline.FeatureWindow {
		return nil, &models.InsufficientDataError{Scope: "product " + productCode, Need: pipeline.FeatureWindow + 1, Got: series.Len()}
	}
	weeks := series.Weeks()[pipeline.FeatureWindow:]
	actual := series.Values()[pipeline.FeatureWindow:]

	predicted, err := fitted.Forecast(weeks)
	if err != nil {
		return nil, err
	}
	overall, err := forecast.Evaluate(actual, predicted)
	if err != nil {
		return nil, err
	}
	rolling, err := forecast.Rolling(actual, predicted, window)
	if err != nil {
		return nil, err
	}

	return &ProductPerformance{
		ModelID:     id,
		ProductCode: productCode,
		Weeks:       len(actual),
		Metrics:     overall,
		Rolling:     rolling,
	}, nil
}

func (s *ModelService) bundle(ctx context.Context, id string) (*forecast.Bundle, error) {
	m, err := s.repo.GetModel(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.ModelFile == "" {
		return nil, &repository.NotFoundError{Resource: "model file", ID: id}
	}
	b, err := forecast.LoadBundle(m.ModelFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &repository.NotFoundError{Resource: "model file", ID: id}
	}
	return b, err
}

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(pipeline.DateLayout, s)
	if err != nil {
		return time.Time{}, &models.ValidationError{Field: field, Value: s, Message: "expected YYYY-MM-DD"}
	}
	return t, nil
}

func weekRange(start, end time.Time) ([]time.Time, error) {
	first, last := pipeline.WeekStart(start), pipeline.WeekStart(end)
	if last.Before(first) {
		return nil, &models.ValidationError{Field: "end_date", Value: end.Format(pipeline.DateLayout), Message: "end_date must not be before start_date"}
	}
	var weeks []time.Time
	for w := first; !w.After(last); w = w.AddDate(0, 0, 7) {
		if len(weeks) == MaxForecastWeeks {
			return nil, &models.ValidationError{Field: "end_date", Message: fmt.Sprintf("range exceeds %d weeks", MaxForecastWeeks)}
		}
		weeks = append(weeks, w)
	}
	return weeks, nil
}
