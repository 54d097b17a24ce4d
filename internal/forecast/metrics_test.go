package forecast

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demand-forecast/internal/models"
)

func TestEvaluate(t *testing.T) {
	actual := []float64{10, 20, 30, 40}
	predicted := []float64{12, 18, 33, 40}

	m, err := Evaluate(actual, predicted)
	require.NoError(t, err)

	assert.InDelta(t, 1.75, m.MAE, 1e-12)
	assert.InDelta(t, math.Sqrt(17.0/4), m.RMSE, 1e-12)
	assert.InDelta(t, (0.2+0.1+0.1+0)/4*100, m.MAPE, 1e-9)
	assert.InDelta(t, 1-17.0/500, m.R2, 1e-12)
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		actual    []float64
		predicted []float64
		check     func(error) bool
	}{
		{
			name: "empty",
			check: func(err error) bool {
				var e *models.InsufficientDataError
				return errors.As(err, &e)
			},
		},
		{
			name:      "zero actual",
			actual:    []float64{5, 0, 3},
			predicted: []float64{5, 1, 3},
			check: func(err error) bool {
				var e *models.MetricComputationError
				return errors.As(err, &e) && e.Metric == MetricMAPE
			},
		},
		{
			name:      "single point",
			actual:    []float64{5},
			predicted: []float64{4},
			check: func(err error) bool {
				var e *models.MetricComputationError
				return errors.As(err, &e) && e.Metric == MetricR2
			},
		},
		{
			name:      "length mismatch",
			actual:    []float64{1, 2},
			predicted: []float64{1},
			check: func(err error) bool {
				var e *models.MetricComputationError
				return errors.As(err, &e)
			},
		},
		{
			name:      "non-finite prediction",
			actual:    []float64{1, 2},
			predicted: []float64{1, math.Inf(1)},
			check: func(err error) bool {
				var e *models.MetricComputationError
				return errors.As(err, &e)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.actual, tt.predicted)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
		})
	}
}

func TestR2_ConstantActuals(t *testing.T) {
	r2, err := R2([]float64{4, 4, 4}, []float64{4, 4, 4})
	require.NoError(t, err)
	assert.Equal(t, 1.0, r2)

	r2, err = R2([]float64{4, 4, 4}, []float64{4, 5, 4})
	require.NoError(t, err)
	assert.Equal(t, 0.0, r2)
}

func TestAverage(t *testing.T) {
	assert.Equal(t, models.MetricMap{}, Average(nil))

	avg := Average(map[string]models.Metrics{
		"A": {MAE: 1, RMSE: 2, MAPE: 10, R2: 0.5},
		"B": {MAE: 3, RMSE: 4, MAPE: 30, R2: 0.7},
	})
	assert.InDelta(t, 2.0, avg[MetricMAE], 1e-12)
	assert.InDelta(t, 3.0, avg[MetricRMSE], 1e-12)
	assert.InDelta(t, 20.0, avg[MetricMAPE], 1e-12)
	assert.InDelta(t, 0.6, avg[MetricR2], 1e-12)
}

func TestRolling(t *testing.T) {
	actual := []float64{10, 10, 10, 10, 20, 20}
	predicted := []float64{9, 11, 10, 10, 20, 10}

	r, err := Rolling(actual, predicted, 4)
	require.NoError(t, err)
	require.Len(t, r.MAE, 2)
	assert.InDelta(t, 0.5, r.MAE[0], 1e-12)
	assert.InDelta(t, 0.25, r.MAE[1], 1e-12)
	assert.InDelta(t, 5.0, r.MAPE[0], 1e-12)

	short, err := Rolling(actual[:3], predicted[:3], 4)
	require.NoError(t, err)
	assert.Empty(t, short.MAE)

	_, err = Rolling(actual, predicted, 0)
	var ve *models.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestBestModel(t *testing.T) {
	results := map[string]models.MetricMap{
		"xgb":     {MetricMAE: 3, MetricR2: 0.9},
		"prophet": {MetricMAE: 2, MetricR2: 0.4},
		"naive":   {MetricR2: 0.1},
	}

	best, v, ok := BestModel(results, MetricMAE)
	require.True(t, ok)
	assert.Equal(t, "prophet", best)
	assert.Equal(t, 2.0, v)

	best, _, ok = BestModel(results, MetricR2)
	require.True(t, ok)
	assert.Equal(t, "xgb", best)

	_, _, ok = BestModel(results, "accuracy")
	assert.False(t, ok)
}
