package pipeline

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"demand-forecast/internal/models"
)

// WeeklyTable is the per-product weekly demand produced by Aggregate.
type WeeklyTable struct {
	Points           []models.WeeklyDemandPoint
	Stats            models.DatasetStats
	DroppedBadDate   int
	ProductsExcluded int
	ProductsKept     int
}

type itemDay struct {
	item string
	day  string
}

type itemWeek struct {
	item string
	week time.Time
}

// Aggregate sums canonical records per (ItemCode, DocDate), parses the
// dates, removes products with at most five distinct sales days, then sums
// per (ItemCode, week start) and sorts by (ItemCode, Week).
func Aggregate(records []models.CanonicalRecord) *WeeklyTable {
	// Same-day totals keyed by the raw date text.
	daily := make(map[itemDay]decimal.Decimal, len(records))
	order := make([]itemDay, 0, len(records))
	for _, r := range records {
		k := itemDay{item: r.ItemCode, day: r.DocDate}
		if _, ok := daily[k]; !ok {
			order = append(order, k)
		}
		daily[k] = daily[k].Add(r.Quantity)
	}

	table := &WeeklyTable{}

	type datedSum struct {
		item string
		date time.Time
		qty  decimal.Decimal
	}
	dated := make([]datedSum, 0, len(order))
	days := make(map[string]map[time.Time]struct{})
	for _, k := range order {
		d, ok := ParseDocDate(k.day)
		if !ok {
			table.DroppedBadDate++
			continue
		}
		dated = append(dated, datedSum{item: k.item, date: d, qty: daily[k]})
		if days[k.item] == nil {
			days[k.item] = make(map[time.Time]struct{})
		}
		days[k.item][d] = struct{}{}
	}

	for _, set := range days {
		if len(set) <= models.MinDistinctDays {
			table.ProductsExcluded++
		} else {
			table.ProductsKept++
		}
	}

	weekly := make(map[itemWeek]decimal.Decimal)
	for _, s := range dated {
		if len(days[s.item]) <= models.MinDistinctDays {
			continue
		}
		k := itemWeek{item: s.item, week: WeekStart(s.date)}
		weekly[k] = weekly[k].Add(s.qty)
	}

	table.Points = make([]models.WeeklyDemandPoint, 0, len(weekly))
	for k, qty := range weekly {
		table.Points = append(table.Points, models.WeeklyDemandPoint{
			ItemCode:      k.item,
			Week:          k.week,
			TotalQuantity: qty,
		})
	}
	SortPoints(table.Points)
	table.Stats = Summarize(table.Points)

	return table
}

// SortPoints orders points by (ItemCode, Week) ascending.
func SortPoints(points []models.WeeklyDemandPoint) {
	sort.Slice(points, func(i, j int) bool {
		if points[i].ItemCode != points[j].ItemCode {
			return points[i].ItemCode < points[j].ItemCode
		}
		return points[i].Week.Before(points[j].Week)
	})
}

// Summarize computes product, week and record counts plus the week range.
func Summarize(points []models.WeeklyDemandPoint) models.DatasetStats {
	stats := models.DatasetStats{TotalRecords: len(points)}
	if len(points) == 0 {
		return stats
	}

	products := make(map[string]struct{})
	weeks := make(map[time.Time]struct{})
	minWeek, maxWeek := points[0].Week, points[0].Week
	for _, p := range points {
		products[p.ItemCode] = struct{}{}
		weeks[p.Week] = struct{}{}
		if p.Week.Before(minWeek) {
			minWeek = p.Week
		}
		if p.Week.After(maxWeek) {
			maxWeek = p.Week
		}
	}

	stats.TotalProducts = len(products)
	stats.TotalWeeks = len(weeks)
	stats.MinWeek = minWeek.Format(DateLayout)
	stats.MaxWeek = maxWeek.Format(DateLayout)
	return stats
}

// Processed is the result of running a raw table through cleaning and
// weekly aggregation.
type Processed struct {
	Weekly *WeeklyTable
	Report models.ProcessingReport
}

// Process cleans and aggregates t and completes the processing report.
// A table in which no product survives aggregation is an
// InsufficientDataError.
func Process(t *RawTable) (*Processed, error) {
	records, report, err := Clean(t)
	if err != nil {
		return nil, err
	}

	weekly := Aggregate(records)
	report.DroppedBadDate = weekly.DroppedBadDate
	report.ProductsExcluded = weekly.ProductsExcluded
	report.ProductsKept = weekly.ProductsKept
	report.WeeklyRows = len(weekly.Points)

	if len(weekly.Points) == 0 {
		return nil, &models.InsufficientDataError{Scope: "weekly demand", Need: 1, Got: 0}
	}

	return &Processed{Weekly: weekly, Report: report}, nil
}
