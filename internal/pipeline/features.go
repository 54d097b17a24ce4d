package pipeline

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"demand-forecast/internal/models"
)

// MinFeatureWeeks is the shortest series features are built for.
const MinFeatureWeeks = 10

// FeatureWindow is both the maximum lag and the rolling window size.
const FeatureWindow = 4

// FeatureNames lists feature columns in the order of FeatureRow.X.
var FeatureNames = []string{
	"week_of_year", "month", "quarter", "year",
	"lag_1", "lag_2", "lag_3", "lag_4",
	"rolling_mean_4", "rolling_std_4", "rolling_min_4", "rolling_max_4",
	"trend", "sin_week", "cos_week", "sin_month", "cos_month",
}

// FeatureRow is one week of a product with its derived predictors.
type FeatureRow struct {
	ItemCode string
	Week     time.Time
	X        []float64
	Y        float64
}

// FeatureTable is the combined feature output of one or more products.
type FeatureTable struct {
	Names []string
	Rows  []FeatureRow
}

// Matrix returns the feature rows and targets of rows.
func Matrix(rows []FeatureRow) ([][]float64, []float64) {
	x := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for i, r := range rows {
		x[i] = r.X
		y[i] = r.Y
	}
	return x, y
}

// SeriesFeatures derives calendar, lag, rolling, trend and cyclic features
// for one product. Rows without a full lag history are dropped, so the
// first FeatureWindow weeks never appear. Series shorter than
// MinFeatureWeeks are skipped.
func SeriesFeatures(s Series) ([]FeatureRow, error) {
	if s.Len() < MinFeatureWeeks {
		return nil, &models.SkippedError{
			ItemCode: s.ItemCode,
			Reason:   fmt.Sprintf("%d weekly points, need at least %d", s.Len(), MinFeatureWeeks),
		}
	}

	values := s.Values()
	rows := make([]FeatureRow, 0, len(values)-FeatureWindow)
	for i := FeatureWindow; i < len(values); i++ {
		lags := make([]float64, FeatureWindow)
		for k := 1; k <= FeatureWindow; k++ {
			lags[k-1] = values[i-k]
		}
		window := values[i-FeatureWindow+1 : i+1]

		rows = append(rows, FeatureRow{
			ItemCode: s.ItemCode,
			Week:     s.Points[i].Week,
			X:        FeatureVector(s.Points[i].Week, lags, window, i),
			Y:        values[i],
		})
	}
	return rows, nil
}

// BuildFeatures builds features for every series and concatenates them.
// Products that are too short contribute nothing; if none contribute the
// result is an InsufficientDataError.
func BuildFeatures(series []Series) (*FeatureTable, error) {
	table := &FeatureTable{Names: FeatureNames}
	for _, s := range series {
		rows, err := SeriesFeatures(s)
		if err != nil {
			continue
		}
		table.Rows = append(table.Rows, rows...)
	}
	if len(table.Rows) == 0 {
		return nil, &models.InsufficientDataError{Scope: "feature building", Need: MinFeatureWeeks}
	}
	return table, nil
}

// FeatureVector assembles one feature row. lags[k-1] is the value k weeks
// before week and window is the trailing FeatureWindow values ending at
// week. trend is the zero-based position of week within its series.
func FeatureVector(week time.Time, lags, window []float64, trend int) []float64 {
	_, isoWeek := week.ISOWeek()
	month := int(week.Month())
	quarter := (month-1)/3 + 1

	x := make([]float64, 0, len(FeatureNames))
	x = append(x,
		float64(isoWeek),
		float64(month),
		float64(quarter),
		float64(week.Year()),
	)
	x = append(x, lags...)
	x = append(x,
		stat.Mean(window, nil),
		stat.StdDev(window, nil),
		floats.Min(window),
		floats.Max(window),
		float64(trend),
		math.Sin(2*math.Pi*float64(isoWeek)/52),
		math.Cos(2*math.Pi*float64(isoWeek)/52),
		math.Sin(2*math.Pi*float64(month)/12),
		math.Cos(2*math.Pi*float64(month)/12),
	)
	return x
}
