package forecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"demand-forecast/internal/models"
)

// Metric names used in metric maps and for model comparison.
const (
	MetricMAE  = "mae"
	MetricRMSE = "rmse"
	MetricMAPE = "mape"
	MetricR2   = "r2"
)

// MetricNames lists metric keys in report order.
var MetricNames = []string{MetricMAE, MetricRMSE, MetricMAPE, MetricR2}

// Evaluate scores predicted against actual. Every metric must be finite:
// an empty input is an InsufficientDataError and a zero actual (MAPE) or a
// single point (R²) is a MetricComputationError.
func Evaluate(actual, predicted []float64) (models.Metrics, error) {
	if len(actual) != len(predicted) {
		return models.Metrics{}, &models.MetricComputationError{
			Metric: "metrics",
			Reason: fmt.Sprintf("%d actual values but %d predictions", len(actual), len(predicted)),
		}
	}
	if len(actual) == 0 {
		return models.Metrics{}, &models.InsufficientDataError{Scope: "metric computation", Need: 1}
	}

	mape, err := MAPE(actual, predicted)
	if err != nil {
		return models.Metrics{}, err
	}
	r2, err := R2(actual, predicted)
	if err != nil {
		return models.Metrics{}, err
	}

	m := models.Metrics{
		MAE:  MAE(actual, predicted),
		RMSE: RMSE(actual, predicted),
		MAPE: mape,
		R2:   r2,
	}
	for name, v := range m.Map() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.Metrics{}, &models.MetricComputationError{Metric: name, Reason: "result is not finite"}
		}
	}
	return m, nil
}

// MAE is the mean absolute error.
func MAE(actual, predicted []float64) float64 {
	return floats.Distance(actual, predicted, 1) / float64(len(actual))
}

// RMSE is the square root of the mean squared error.
func RMSE(actual, predicted []float64) float64 {
	return floats.Distance(actual, predicted, 2) / math.Sqrt(float64(len(actual)))
}

// MAPE is the mean absolute percentage error, in percent.
func MAPE(actual, predicted []float64) (float64, error) {
	var sum float64
	for i, a := range actual {
		if a == 0 {
			return 0, &models.MetricComputationError{
				Metric: MetricMAPE,
				Reason: fmt.Sprintf("actual value at position %d is zero", i),
			}
		}
		sum += math.Abs((a - predicted[i]) / a)
	}
	return sum / float64(len(actual)) * 100, nil
}

// R2 is the coefficient of determination. Constant actuals give 1 for a
// perfect fit and 0 otherwise.
func R2(actual, predicted []float64) (float64, error) {
	if len(actual) < 2 {
		return 0, &models.MetricComputationError{Metric: MetricR2, Reason: "needs at least two points"}
	}

	mean := stat.Mean(actual, nil)
	var ssRes, ssTot float64
	for i, a := range actual {
		ssRes += (a - predicted[i]) * (a - predicted[i])
		ssTot += (a - mean) * (a - mean)
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - ssRes/ssTot, nil
}

// Average is the arithmetic mean of each metric over all entries. An
// empty input gives an empty map.
func Average(perProduct map[string]models.Metrics) models.MetricMap {
	out := models.MetricMap{}
	if len(perProduct) == 0 {
		return out
	}
	for _, m := range perProduct {
		for name, v := range m.Map() {
			out[name] += v
		}
	}
	n := float64(len(perProduct))
	for name := range out {
		out[name] /= n
	}
	return out
}

// RollingMetrics holds error metrics over a sliding window.
type RollingMetrics struct {
	MAE  []float64 `json:"rolling_mae"`
	RMSE []float64 `json:"rolling_rmse"`
	MAPE []float64 `json:"rolling_mape"`
}

// Rolling computes MAE, RMSE and MAPE over each trailing window of size
// window that ends before position i, for i from window to len-1. Series
// shorter than the window give an empty result.
func Rolling(actual, predicted []float64, window int) (RollingMetrics, error) {
	var out RollingMetrics
	if window <= 0 {
		return out, &models.ValidationError{Field: "window", Value: fmt.Sprint(window), Message: "window must be positive"}
	}
	if len(actual) != len(predicted) {
		return out, &models.MetricComputationError{Metric: "rolling metrics", Reason: "length mismatch"}
	}

	for i := window; i < len(actual); i++ {
		a, p := actual[i-window:i], predicted[i-window:i]
		mape, err := MAPE(a, p)
		if err != nil {
			return RollingMetrics{}, err
		}
		out.MAE = append(out.MAE, MAE(a, p))
		out.RMSE = append(out.RMSE, RMSE(a, p))
		out.MAPE = append(out.MAPE, mape)
	}
	return out, nil
}

// LowerIsBetter reports whether smaller values of metric are better.
func LowerIsBetter(metric string) bool {
	switch metric {
	case MetricMAE, MetricRMSE, MetricMAPE:
		return true
	default:
		return false
	}
}

// BestModel picks the key of results with the best value of metric.
// Entries missing the metric are ignored; ok is false when none has it.
func BestModel(results map[string]models.MetricMap, metric string) (best string, value float64, ok bool) {
	lower := LowerIsBetter(metric)
	for name, m := range results {
		v, has := m[metric]
		if !has {
			continue
		}
		if !ok || (lower && v < value) || (!lower && v > value) || (v == value && name < best) {
			best, value, ok = name, v, true
		}
	}
	return best, value, ok
}
