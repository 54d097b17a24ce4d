package pipeline

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"demand-forecast/internal/models"
)

// ValidateWeekly checks whether a weekly table has enough products and
// weeks to train on.
func ValidateWeekly(points []models.WeeklyDemandPoint, minProducts, minWeeks int) models.DatasetValidation {
	stats := Summarize(points)

	v := models.DatasetValidation{
		TotalProducts:   stats.TotalProducts,
		TotalWeeks:      stats.TotalWeeks,
		TotalRecords:    stats.TotalRecords,
		MissingValues:   map[string]int{"ItemCode": 0, "Week": 0, "TotalQuantity": 0},
		DataRange:       map[string]string{"start": stats.MinWeek, "end": stats.MaxWeek},
		QuantityStats:   map[string]float64{},
		Recommendations: []string{},
	}

	values := make([]float64, 0, len(points))
	for _, p := range points {
		if p.ItemCode == "" {
			v.MissingValues["ItemCode"]++
		}
		if p.Week.IsZero() {
			v.MissingValues["Week"]++
		}
		values = append(values, p.Quantity())
	}

	if len(values) > 0 {
		v.QuantityStats["mean"] = stat.Mean(values, nil)
		v.QuantityStats["min"] = floats.Min(values)
		v.QuantityStats["max"] = floats.Max(values)
		v.QuantityStats["std"] = 0
		if len(values) > 1 {
			v.QuantityStats["std"] = stat.StdDev(values, nil)
		}
	}

	// Feature rows are what the xgboost model trains on.
	if table, err := BuildFeatures(GroupByProduct(points)); err == nil {
		seen := make(map[string]bool)
		for _, r := range table.Rows {
			seen[r.ItemCode] = true
		}
		v.FeatureProducts = len(seen)
		v.FeatureRows = len(table.Rows)
	}

	v.IsSufficient = v.TotalProducts >= minProducts && v.TotalWeeks >= minWeeks
	if v.TotalProducts < minProducts {
		v.Recommendations = append(v.Recommendations,
			fmt.Sprintf("at least %d products are needed to train a model", minProducts))
	}
	if v.TotalWeeks < minWeeks {
		v.Recommendations = append(v.Recommendations,
			fmt.Sprintf("at least %d weeks of data are needed to train a model", minWeeks))
	}
	if short := v.TotalProducts - v.FeatureProducts; short > 0 {
		v.Recommendations = append(v.Recommendations,
			fmt.Sprintf("%d of %d products have fewer than %d weeks and are skipped by the xgboost model",
				short, v.TotalProducts, MinFeatureWeeks))
	}

	return v
}
