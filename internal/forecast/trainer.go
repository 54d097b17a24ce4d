package forecast

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"demand-forecast/internal/models"
	"demand-forecast/internal/pipeline"
)

// FittedModel is a trained per-product model that can forecast demand for
// arbitrary week start dates.
type FittedModel interface {
	Type() models.ModelType
	Product() string
	Forecast(weeks []time.Time) ([]float64, error)
}

// Evaluation is the outcome of fitting one product on its train partition
// and scoring it on the test partition.
type Evaluation struct {
	ItemCode          string
	Metrics           models.Metrics
	Model             FittedModel
	TrainWeeks        []time.Time
	TrainValues       []float64
	TestWeeks         []time.Time
	Actual            []float64
	Predicted         []float64
	FeatureImportance map[string]float64
	GapWeeks          int
}

// Trainer fits one model family.
type Trainer interface {
	// Type returns the model family this trainer handles.
	Type() models.ModelType

	// Fit trains on the whole series.
	Fit(ctx context.Context, s pipeline.Series) (FittedModel, error)

	// Evaluate trains on the chronological train partition of s and
	// scores the test partition.
	Evaluate(ctx context.Context, s pipeline.Series, testRatio float64) (*Evaluation, error)
}

// TrainerConstructor builds a trainer from user supplied parameters.
type TrainerConstructor func(params models.Params) (Trainer, error)

// Registry maps model types onto trainer constructors.
type Registry struct {
	constructors map[models.ModelType]TrainerConstructor
}

// NewRegistry creates a registry with every built-in model family.
func NewRegistry() *Registry {
	r := &Registry{constructors: make(map[models.ModelType]TrainerConstructor)}
	r.Register(models.ModelXGBoost, NewXGBoostTrainerFromParams)
	r.Register(models.ModelProphet, NewProphetTrainerFromParams)
	return r
}

// Register adds or replaces the constructor for modelType.
func (r *Registry) Register(modelType models.ModelType, c TrainerConstructor) {
	r.constructors[modelType] = c
}

// Trainer returns a trainer for modelType configured with params.
func (r *Registry) Trainer(modelType models.ModelType, params models.Params) (Trainer, error) {
	c, ok := r.constructors[modelType]
	if !ok {
		return nil, &models.UnsupportedModelTypeError{ModelType: string(modelType)}
	}
	return c(params)
}

// Types lists the registered model types in name order.
func (r *Registry) Types() []models.ModelType {
	out := make([]models.ModelType, 0, len(r.constructors))
	for t := range r.constructors {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func paramFloat(params models.Params, key string, def float64) (float64, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, &models.ValidationError{Field: key, Value: fmt.Sprint(raw), Message: key + " must be a number"}
}

func paramInt(params models.Params, key string, def int) (int, error) {
	f, err := paramFloat(params, key, float64(def))
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, &models.ValidationError{Field: key, Value: fmt.Sprint(params[key]), Message: key + " must be an integer"}
	}
	return int(f), nil
}

func positive(key string, v float64) error {
	if v <= 0 {
		return &models.ValidationError{Field: key, Value: fmt.Sprint(v), Message: key + " must be positive"}
	}
	return nil
}
