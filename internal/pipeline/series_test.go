package pipeline

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demand-forecast/internal/models"
)

func weeklySeries(item string, start time.Time, values ...float64) Series {
	s := Series{ItemCode: item}
	for i, v := range values {
		s.Points = append(s.Points, models.WeeklyDemandPoint{
			ItemCode:      item,
			Week:          start.AddDate(0, 0, 7*i),
			TotalQuantity: decimal.NewFromFloat(v),
		})
	}
	return s
}

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func TestSplit_Chronological(t *testing.T) {
	s := weeklySeries("A1", day(2022, 1, 3), ramp(100)...)

	train, test, err := Split(s.Points, 0.3)
	require.NoError(t, err)
	assert.Len(t, train, 70)
	assert.Len(t, test, 30)
	assert.True(t, train[len(train)-1].Week.Before(test[0].Week))
}

func TestSplit_Sizes(t *testing.T) {
	tests := []struct {
		n         int
		ratio     float64
		wantTrain int
	}{
		{n: 10, ratio: 0.3, wantTrain: 7},
		{n: 3, ratio: 0.3, wantTrain: 2},
		{n: 1, ratio: 0.3, wantTrain: 0},
		{n: 0, ratio: 0.5, wantTrain: 0},
		{n: 6, ratio: 0.2, wantTrain: 4},
	}
	for _, tt := range tests {
		train, test, err := Split(ramp(tt.n), tt.ratio)
		require.NoError(t, err)
		if len(train) != tt.wantTrain || len(train)+len(test) != tt.n {
			t.Errorf("Split(n=%d, %v) = %d/%d, want train %d", tt.n, tt.ratio, len(train), len(test), tt.wantTrain)
		}
	}
}

func TestSplit_InvalidRatio(t *testing.T) {
	for _, ratio := range []float64{0, 1, -0.1, 1.5, math.NaN()} {
		_, _, err := Split(ramp(10), ratio)
		var ve *models.ValidationError
		assert.True(t, errors.As(err, &ve), "ratio %v", ratio)
	}
}

func TestGroupByProduct(t *testing.T) {
	points := []models.WeeklyDemandPoint{
		{ItemCode: "B", Week: day(2024, 1, 15), TotalQuantity: decimal.NewFromInt(3)},
		{ItemCode: "A", Week: day(2024, 1, 8), TotalQuantity: decimal.NewFromInt(2)},
		{ItemCode: "B", Week: day(2024, 1, 1), TotalQuantity: decimal.NewFromInt(1)},
	}

	groups := GroupByProduct(points)
	require.Len(t, groups, 2)
	assert.Equal(t, "B", groups[0].ItemCode)
	assert.Equal(t, []float64{1, 3}, groups[0].Values())
	assert.Equal(t, "A", groups[1].ItemCode)

	s, ok := FindSeries(points, "A")
	require.True(t, ok)
	assert.Equal(t, 1, s.Len())
	_, ok = FindSeries(points, "Z")
	assert.False(t, ok)
}

func TestSeries_GapWeeks(t *testing.T) {
	s := weeklySeries("A1", day(2024, 1, 1), 1, 2, 3)
	assert.Equal(t, 0, s.GapWeeks())

	s.Points[2].Week = day(2024, 2, 5) // three weeks after Jan 8
	assert.Equal(t, 3, s.GapWeeks())
}

func TestSeriesFeatures_TooShort(t *testing.T) {
	s := weeklySeries("NINE", day(2024, 1, 1), ramp(9)...)

	_, err := SeriesFeatures(s)
	var se *models.SkippedError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "NINE", se.ItemCode)

	_, err = BuildFeatures([]Series{s})
	var ie *models.InsufficientDataError
	assert.True(t, errors.As(err, &ie))
}

func TestSeriesFeatures_TenPoints(t *testing.T) {
	s := weeklySeries("TEN", day(2024, 1, 1), ramp(10)...)

	rows, err := SeriesFeatures(s)
	require.NoError(t, err)
	require.Len(t, rows, 6)

	first := rows[0]
	require.Len(t, first.X, len(FeatureNames))
	assert.True(t, first.Week.Equal(day(2024, 1, 29)))
	assert.Equal(t, 5.0, first.Y)

	col := func(name string) float64 {
		for i, n := range FeatureNames {
			if n == name {
				return first.X[i]
			}
		}
		t.Fatalf("no feature %s", name)
		return 0
	}

	assert.Equal(t, 5.0, col("week_of_year"))
	assert.Equal(t, 1.0, col("month"))
	assert.Equal(t, 1.0, col("quarter"))
	assert.Equal(t, 2024.0, col("year"))
	assert.Equal(t, 4.0, col("lag_1"))
	assert.Equal(t, 1.0, col("lag_4"))
	assert.Equal(t, 3.5, col("rolling_mean_4"))
	assert.InDelta(t, math.Sqrt(5.0/3.0), col("rolling_std_4"), 1e-12)
	assert.Equal(t, 2.0, col("rolling_min_4"))
	assert.Equal(t, 5.0, col("rolling_max_4"))
	assert.Equal(t, 4.0, col("trend"))
	assert.InDelta(t, math.Sin(2*math.Pi*5/52), col("sin_week"), 1e-12)
	assert.InDelta(t, math.Cos(2*math.Pi/12), col("cos_month"), 1e-12)

	for _, r := range rows {
		for i, v := range r.X {
			assert.False(t, math.IsNaN(v), "feature %s is NaN", FeatureNames[i])
		}
	}
}

func TestBuildFeatures_SkipsShortProducts(t *testing.T) {
	table, err := BuildFeatures([]Series{
		weeklySeries("SHORT", day(2024, 1, 1), ramp(5)...),
		weeklySeries("LONG", day(2024, 1, 1), ramp(12)...),
	})
	require.NoError(t, err)
	assert.Len(t, table.Rows, 8)
	for _, r := range table.Rows {
		assert.Equal(t, "LONG", r.ItemCode)
	}

	x, y := Matrix(table.Rows)
	assert.Len(t, x, 8)
	assert.Equal(t, 5.0, y[0])
}
