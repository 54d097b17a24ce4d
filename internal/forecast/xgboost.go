package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"demand-forecast/internal/models"
	"demand-forecast/internal/pipeline"
)

// XGBoostModel is a boosted tree ensemble over lag features together with
// the history it needs to build features for future weeks.
type XGBoostModel struct {
	ItemCode     string      `json:"item_code"`
	Booster      *GBRT       `json:"booster"`
	HistoryWeeks []time.Time `json:"history_weeks"`
	History      []float64   `json:"history"`
}

func (m *XGBoostModel) Type() models.ModelType { return models.ModelXGBoost }
func (m *XGBoostModel) Product() string        { return m.ItemCode }

// Forecast predicts demand at each week. Weeks inside the history use the
// observed lags; later weeks are predicted recursively, feeding each
// prediction back in as the next week's lag.
func (m *XGBoostModel) Forecast(weeks []time.Time) ([]float64, error) {
	n := len(m.History)
	if n < pipeline.FeatureWindow || len(m.HistoryWeeks) != n {
		return nil, &models.InsufficientDataError{Scope: "forecast history of " + m.ItemCode, Need: pipeline.FeatureWindow, Got: n}
	}
	last := m.HistoryWeeks[n-1]

	maxSteps := 0
	for _, w := range weeks {
		if steps := weeksAfter(last, pipeline.WeekStart(w)); steps > maxSteps {
			maxSteps = steps
		}
	}
	extended := m.extend(maxSteps)

	out := make([]float64, len(weeks))
	for i, raw := range weeks {
		w := pipeline.WeekStart(raw)
		if steps := weeksAfter(last, w); steps > 0 {
			out[i] = extended[n-1+steps]
			continue
		}

		idx := sort.Search(n, func(j int) bool { return !m.HistoryWeeks[j].Before(w) })
		if idx == n || !m.HistoryWeeks[idx].Equal(w) || idx < pipeline.FeatureWindow {
			return nil, &models.ValidationError{
				Field:   "date",
				Value:   w.Format(pipeline.DateLayout),
				Message: fmt.Sprintf("no feature history for %s in week %s", m.ItemCode, w.Format(pipeline.DateLayout)),
			}
		}
		lags := lagsBefore(m.History, idx)
		out[i] = m.Booster.Predict(pipeline.FeatureVector(w, lags, m.History[idx-pipeline.FeatureWindow+1:idx+1], idx))
	}
	return out, nil
}

// extend returns the history followed by steps recursive predictions. The
// current week's value is unknown when predicting, so the rolling window
// uses the latest known value in its place.
func (m *XGBoostModel) extend(steps int) []float64 {
	values := append([]float64(nil), m.History...)
	last := m.HistoryWeeks[len(m.HistoryWeeks)-1]
	for s := 1; s <= steps; s++ {
		i := len(values)
		week := last.AddDate(0, 0, 7*s)
		lags := lagsBefore(values, i)
		window := append(append([]float64(nil), values[i-pipeline.FeatureWindow+1:i]...), values[i-1])
		values = append(values, m.Booster.Predict(pipeline.FeatureVector(week, lags, window, i)))
	}
	return values
}

func lagsBefore(values []float64, i int) []float64 {
	lags := make([]float64, pipeline.FeatureWindow)
	for k := 1; k <= pipeline.FeatureWindow; k++ {
		lags[k-1] = values[i-k]
	}
	return lags
}

// weeksAfter is the number of whole weeks from a to b, zero or negative
// when b is not later.
func weeksAfter(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / (24 * 7)))
}

// XGBoostTrainer fits boosted trees on lag and calendar features.
type XGBoostTrainer struct {
	config GBRTConfig
}

// NewXGBoostTrainer creates a trainer with cfg.
func NewXGBoostTrainer(cfg GBRTConfig) *XGBoostTrainer {
	return &XGBoostTrainer{config: cfg}
}

// NewXGBoostTrainerFromParams applies user parameters over the defaults.
func NewXGBoostTrainerFromParams(params models.Params) (Trainer, error) {
	cfg := DefaultGBRTConfig()
	var err error
	if cfg.NEstimators, err = paramInt(params, "n_estimators", cfg.NEstimators); err != nil {
		return nil, err
	}
	if cfg.MaxDepth, err = paramInt(params, "max_depth", cfg.MaxDepth); err != nil {
		return nil, err
	}
	if cfg.LearningRate, err = paramFloat(params, "learning_rate", cfg.LearningRate); err != nil {
		return nil, err
	}
	if cfg.Lambda, err = paramFloat(params, "reg_lambda", cfg.Lambda); err != nil {
		return nil, err
	}
	if cfg.MinChildWeight, err = paramFloat(params, "min_child_weight", cfg.MinChildWeight); err != nil {
		return nil, err
	}
	if cfg.Subsample, err = paramFloat(params, "subsample", cfg.Subsample); err != nil {
		return nil, err
	}
	seed, err := paramInt(params, "random_state", int(cfg.Seed))
	if err != nil {
		return nil, err
	}
	cfg.Seed = int64(seed)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewXGBoostTrainer(cfg), nil
}

func (x *XGBoostTrainer) Type() models.ModelType { return models.ModelXGBoost }

func (x *XGBoostTrainer) Fit(ctx context.Context, s pipeline.Series) (FittedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := pipeline.SeriesFeatures(s)
	if err != nil {
		return nil, err
	}
	features, targets := pipeline.Matrix(rows)
	booster, err := FitGBRT(features, targets, x.config)
	if err != nil {
		return nil, err
	}
	return x.model(s, booster), nil
}

// Evaluate splits the product's feature rows chronologically, fits on the
// first part and predicts the rest from their observed features.
func (x *XGBoostTrainer) Evaluate(ctx context.Context, s pipeline.Series, testRatio float64) (*Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := pipeline.SeriesFeatures(s)
	if err != nil {
		return nil, err
	}
	train, test, err := pipeline.Split(rows, testRatio)
	if err != nil {
		return nil, err
	}
	if len(train) == 0 {
		return nil, &models.InsufficientDataError{Scope: "xgboost training rows of " + s.ItemCode, Need: 1}
	}

	features, targets := pipeline.Matrix(train)
	booster, err := FitGBRT(features, targets, x.config)
	if err != nil {
		return nil, err
	}

	testX, actual := pipeline.Matrix(test)
	predicted := make([]float64, len(testX))
	for i, row := range testX {
		predicted[i] = booster.Predict(row)
	}
	metrics, err := Evaluate(actual, predicted)
	if err != nil {
		return nil, err
	}

	eval := &Evaluation{
		ItemCode:          s.ItemCode,
		Metrics:           metrics,
		Model:             x.model(s, booster),
		Actual:            actual,
		Predicted:         predicted,
		FeatureImportance: booster.Importance(pipeline.FeatureNames),
		GapWeeks:          s.GapWeeks(),
	}
	for _, r := range train {
		eval.TrainWeeks = append(eval.TrainWeeks, r.Week)
		eval.TrainValues = append(eval.TrainValues, r.Y)
	}
	for _, r := range test {
		eval.TestWeeks = append(eval.TestWeeks, r.Week)
	}
	return eval, nil
}

func (x *XGBoostTrainer) model(s pipeline.Series, booster *GBRT) *XGBoostModel {
	return &XGBoostModel{
		ItemCode:     s.ItemCode,
		Booster:      booster,
		HistoryWeeks: s.Weeks(),
		History:      s.Values(),
	}
}
