package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demand-forecast/internal/models"
	"demand-forecast/internal/pipeline"
)

var monday = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func makeSeries(item string, values ...float64) pipeline.Series {
	s := pipeline.Series{ItemCode: item}
	for i, v := range values {
		s.Points = append(s.Points, models.WeeklyDemandPoint{
			ItemCode:      item,
			Week:          monday.AddDate(0, 0, 7*i),
			TotalQuantity: decimal.NewFromFloat(v),
		})
	}
	return s
}

// cycle repeats 10, 20, 30, 40 for n weeks.
func cycle(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(10 * (i%4 + 1))
	}
	return out
}

func linear(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 10 + 2*float64(i)
	}
	return out
}

func TestFitGBRT_StepFunction(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 20; i++ {
		x = append(x, []float64{float64(i)})
		if i < 10 {
			y = append(y, 0)
		} else {
			y = append(y, 10)
		}
	}

	g, err := FitGBRT(x, y, DefaultGBRTConfig())
	require.NoError(t, err)
	assert.Len(t, g.Trees, 100)
	assert.InDelta(t, 5.0, g.BaseScore, 1e-12)
	assert.InDelta(t, 0, g.Predict([]float64{2}), 0.01)
	assert.InDelta(t, 10, g.Predict([]float64{15}), 0.01)
	assert.Equal(t, map[string]float64{"x": 1}, g.Importance([]string{"x"}))

	again, err := FitGBRT(x, y, DefaultGBRTConfig())
	require.NoError(t, err)
	assert.Equal(t, g.Predict([]float64{9.7}), again.Predict([]float64{9.7}))
}

func TestFitGBRT_ConstantTarget(t *testing.T) {
	x := [][]float64{{1, 5}, {2, 4}, {3, 3}}
	y := []float64{7, 7, 7}

	g, err := FitGBRT(x, y, DefaultGBRTConfig())
	require.NoError(t, err)
	assert.Equal(t, 7.0, g.Predict([]float64{100, -1}))
	for _, tree := range g.Trees {
		assert.Len(t, tree.Nodes, 1)
	}
	assert.Equal(t, map[string]float64{"a": 0, "b": 0}, g.Importance([]string{"a", "b"}))
}

func TestFitGBRT_InvalidInput(t *testing.T) {
	_, err := FitGBRT(nil, nil, DefaultGBRTConfig())
	var ie *models.InsufficientDataError
	assert.True(t, errors.As(err, &ie))

	cfg := DefaultGBRTConfig()
	cfg.Subsample = 0
	_, err = FitGBRT([][]float64{{1}}, []float64{1}, cfg)
	var ve *models.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestXGBoostTrainer_Evaluate(t *testing.T) {
	trainer := NewXGBoostTrainer(DefaultGBRTConfig())
	s := makeSeries("CYCLE", cycle(20)...)

	eval, err := trainer.Evaluate(context.Background(), s, 0.3)
	require.NoError(t, err)

	// 20 weeks give 16 feature rows, split 11 / 5.
	assert.Len(t, eval.TrainWeeks, 11)
	assert.Len(t, eval.TestWeeks, 5)
	assert.True(t, eval.TestWeeks[0].Equal(monday.AddDate(0, 0, 7*15)))
	assert.Equal(t, []float64{40, 10, 20, 30, 40}, eval.Actual)
	assert.Less(t, eval.Metrics.MAPE, 5.0)

	var total float64
	for _, v := range eval.FeatureImportance {
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Equal(t, models.ModelXGBoost, eval.Model.Type())
	assert.Equal(t, "CYCLE", eval.Model.Product())
}

func TestXGBoostTrainer_SkipsShortSeries(t *testing.T) {
	trainer := NewXGBoostTrainer(DefaultGBRTConfig())

	_, err := trainer.Evaluate(context.Background(), makeSeries("SHORT", cycle(9)...), 0.3)
	var se *models.SkippedError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "SHORT", se.ItemCode)
}

func TestXGBoostModel_Forecast(t *testing.T) {
	trainer := NewXGBoostTrainer(DefaultGBRTConfig())
	model, err := trainer.Fit(context.Background(), makeSeries("CYCLE", cycle(20)...))
	require.NoError(t, err)

	var future []time.Time
	for i := 20; i < 24; i++ {
		// Mid-week dates resolve to their week start.
		future = append(future, monday.AddDate(0, 0, 7*i+2))
	}
	got, err := model.Forecast(future)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i, want := range []float64{10, 20, 30, 40} {
		assert.InDelta(t, want, got[i], 1, "week %d", i)
	}

	inSample, err := model.Forecast([]time.Time{monday.AddDate(0, 0, 7*6)})
	require.NoError(t, err)
	assert.InDelta(t, 30, inSample[0], 1)

	_, err = model.Forecast([]time.Time{monday})
	var ve *models.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestProphetTrainer_LinearTrend(t *testing.T) {
	trainer := NewProphetTrainer(DefaultProphetConfig())
	s := makeSeries("TREND", linear(20)...)

	eval, err := trainer.Evaluate(context.Background(), s, 0.3)
	require.NoError(t, err)
	assert.Len(t, eval.TrainWeeks, 14)
	assert.Len(t, eval.Predicted, 6)
	assert.Less(t, eval.Metrics.MAPE, 5.0)
	for _, p := range eval.Predicted {
		assert.False(t, math.IsNaN(p))
	}
}

func TestProphetTrainer_PredictsAtTestWeeks(t *testing.T) {
	s := makeSeries("GAPPY", linear(12)...)
	// Drop week 8 so the series has a gap inside the test partition.
	s.Points = append(s.Points[:8], s.Points[9:]...)

	eval, err := NewProphetTrainer(DefaultProphetConfig()).Evaluate(context.Background(), s, 0.3)
	require.NoError(t, err)
	assert.Equal(t, 1, eval.GapWeeks)

	_, test, err := pipeline.Split(s.Points, 0.3)
	require.NoError(t, err)
	require.Len(t, eval.TestWeeks, len(test))
	for i := range test {
		assert.True(t, eval.TestWeeks[i].Equal(test[i].Week))
	}
	// Predictions follow the dates, so the week after the gap is still close.
	for i := range eval.Actual {
		assert.InDelta(t, eval.Actual[i], eval.Predicted[i], 0.1*eval.Actual[i])
	}
}

func TestProphetTrainer_TooShort(t *testing.T) {
	trainer := NewProphetTrainer(DefaultProphetConfig())

	_, err := trainer.Fit(context.Background(), makeSeries("ONE", 5))
	var ie *models.InsufficientDataError
	assert.True(t, errors.As(err, &ie))

	// Three weeks leave a single test point, where R² is undefined.
	_, err = trainer.Evaluate(context.Background(), makeSeries("THREE", 5, 6, 7), 0.3)
	var me *models.MetricComputationError
	assert.True(t, errors.As(err, &me))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []models.ModelType{models.ModelProphet, models.ModelXGBoost}, r.Types())

	tests := []struct {
		name      string
		modelType models.ModelType
		params    models.Params
		wantErr   interface{}
	}{
		{name: "xgboost defaults", modelType: models.ModelXGBoost},
		{name: "prophet defaults", modelType: models.ModelProphet},
		{name: "xgboost overrides", modelType: models.ModelXGBoost, params: models.Params{"n_estimators": 10.0, "max_depth": "3"}},
		{name: "unknown type", modelType: "arima", wantErr: &models.UnsupportedModelTypeError{}},
		{name: "fractional depth", modelType: models.ModelXGBoost, params: models.Params{"max_depth": 2.5}, wantErr: &models.ValidationError{}},
		{name: "negative prior", modelType: models.ModelProphet, params: models.Params{"changepoint_prior_scale": -1}, wantErr: &models.ValidationError{}},
		{name: "text param", modelType: models.ModelProphet, params: models.Params{"yearly_order": "ten"}, wantErr: &models.ValidationError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trainer, err := r.Trainer(tt.modelType, tt.params)
			switch want := tt.wantErr.(type) {
			case nil:
				require.NoError(t, err)
				assert.Equal(t, tt.modelType, trainer.Type())
			case *models.UnsupportedModelTypeError:
				assert.True(t, errors.As(err, &want))
			case *models.ValidationError:
				assert.True(t, errors.As(err, &want))
			}
		})
	}

	trainer, err := r.Trainer(models.ModelXGBoost, models.Params{"n_estimators": 10.0, "max_depth": "3"})
	require.NoError(t, err)
	assert.Equal(t, 10, trainer.(*XGBoostTrainer).config.NEstimators)
	assert.Equal(t, 3, trainer.(*XGBoostTrainer).config.MaxDepth)
}

func TestTrainer_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, trainer := range []Trainer{NewXGBoostTrainer(DefaultGBRTConfig()), NewProphetTrainer(DefaultProphetConfig())} {
		_, err := trainer.Evaluate(ctx, makeSeries("A", linear(20)...), 0.3)
		assert.ErrorIs(t, err, context.Canceled)
	}
}
