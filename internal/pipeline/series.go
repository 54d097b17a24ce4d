package pipeline

import (
	"fmt"
	"math"
	"sort"
	"time"

	"demand-forecast/internal/models"
)

// Series is one product's weekly demand ordered by Week.
type Series struct {
	ItemCode string
	Points   []models.WeeklyDemandPoint
}

// Len returns the number of weekly points.
func (s Series) Len() int {
	return len(s.Points)
}

// Values returns the weekly quantities as floats.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Quantity()
	}
	return out
}

// Weeks returns the week start dates.
func (s Series) Weeks() []time.Time {
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Week
	}
	return out
}

// GapWeeks counts missing weeks between consecutive points.
func (s Series) GapWeeks() int {
	gaps := 0
	for i := 1; i < len(s.Points); i++ {
		step := int(s.Points[i].Week.Sub(s.Points[i-1].Week).Hours()/24/7 + 0.5)
		if step > 1 {
			gaps += step - 1
		}
	}
	return gaps
}

// GroupByProduct splits points into per-product series. Products appear in
// the order their first point is encountered; each series is sorted by Week.
func GroupByProduct(points []models.WeeklyDemandPoint) []Series {
	index := make(map[string]int)
	var out []Series
	for _, p := range points {
		i, ok := index[p.ItemCode]
		if !ok {
			i = len(out)
			index[p.ItemCode] = i
			out = append(out, Series{ItemCode: p.ItemCode})
		}
		out[i].Points = append(out[i].Points, p)
	}

	for i := range out {
		pts := out[i].Points
		sort.SliceStable(pts, func(a, b int) bool { return pts[a].Week.Before(pts[b].Week) })
	}
	return out
}

// FindSeries returns the series for itemCode.
func FindSeries(points []models.WeeklyDemandPoint, itemCode string) (Series, bool) {
	for _, s := range GroupByProduct(points) {
		if s.ItemCode == itemCode {
			return s, true
		}
	}
	return Series{}, false
}

// TrainSize returns floor(n * (1 - testRatio)).
func TrainSize(n int, testRatio float64) int {
	return int(math.Floor(float64(n) * (1 - testRatio)))
}

// Split partitions a chronologically ordered slice into a train prefix and a
// test suffix. No shuffling takes place. Either partition may be empty;
// fitting and evaluation reject empty input.
func Split[T any](series []T, testRatio float64) (train, test []T, err error) {
	if err := ValidateTestRatio(testRatio); err != nil {
		return nil, nil, err
	}

	n := TrainSize(len(series), testRatio)
	return series[:n], series[n:], nil
}

// ValidateTestRatio rejects ratios outside the open interval (0, 1).
func ValidateTestRatio(testRatio float64) error {
	if testRatio <= 0 || testRatio >= 1 || math.IsNaN(testRatio) {
		return &models.ValidationError{
			Field:   "test_ratio",
			Value:   fmt.Sprint(testRatio),
			Message: "test_ratio must be between 0 and 1 (exclusive)",
		}
	}
	return nil
}
