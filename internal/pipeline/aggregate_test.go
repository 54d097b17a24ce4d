package pipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demand-forecast/internal/models"
)

func canonical(item, date string, qty int64) models.CanonicalRecord {
	return models.CanonicalRecord{ItemCode: item, DocDate: date, Quantity: decimal.NewFromInt(qty)}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAggregate_DistinctDayBoundary(t *testing.T) {
	var records []models.CanonicalRecord
	for d := 1; d <= 5; d++ {
		records = append(records, canonical("FIVE", fmt.Sprintf("2024-01-%02d", d), 1))
	}
	for d := 1; d <= 6; d++ {
		records = append(records, canonical("SIX", fmt.Sprintf("2024-01-%02d", d), 1))
	}
	// Repeated sales on one day do not add distinct days.
	records = append(records, canonical("FIVE", "2024-01-05", 10))

	table := Aggregate(records)

	for _, p := range table.Points {
		assert.Equal(t, "SIX", p.ItemCode)
	}
	assert.Equal(t, 1, table.ProductsExcluded)
	assert.Equal(t, 1, table.ProductsKept)
	assert.Equal(t, 1, table.Stats.TotalProducts)
}

func TestAggregate_EndToEndScenario(t *testing.T) {
	dates := []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-08", "2024-01-10", "2024-01-15"}
	qtys := []string{"2", "3", "1", "4", "2", "5"}

	table := &RawTable{Header: testHeader}
	for i := range dates {
		table.Rows = append(table.Rows, row(dates[i], "A100", qtys[i], "viên"))
	}

	processed, err := Process(table)
	require.NoError(t, err)
	assert.Equal(t, 6, processed.Report.CanonicalRows)

	want := []struct {
		week time.Time
		qty  int64
	}{
		{day(2024, 1, 1), 6},
		{day(2024, 1, 8), 6},
		{day(2024, 1, 15), 5},
	}
	require.Len(t, processed.Weekly.Points, len(want))
	for i, w := range want {
		p := processed.Weekly.Points[i]
		assert.Equal(t, "A100", p.ItemCode)
		assert.True(t, p.Week.Equal(w.week), "week %d = %v, want %v", i, p.Week, w.week)
		assert.True(t, p.TotalQuantity.Equal(decimal.NewFromInt(w.qty)), "week %d total = %v", i, p.TotalQuantity)
	}

	assert.Equal(t, models.DatasetStats{
		TotalProducts: 1,
		TotalWeeks:    3,
		TotalRecords:  3,
		MinWeek:       "2024-01-01",
		MaxWeek:       "2024-01-15",
	}, processed.Weekly.Stats)
	assert.Equal(t, 1, processed.Report.ProductsKept)
	assert.Equal(t, 3, processed.Report.WeeklyRows)
}

func TestProcess_NoProductSurvives(t *testing.T) {
	table := &RawTable{Header: testHeader}
	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		table.Rows = append(table.Rows, row(d, "A100", "4", "viên"), row(d, "B200", "2", "viên"))
	}

	processed, err := Process(table)
	assert.Nil(t, processed)

	var insufficient *models.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "weekly demand", insufficient.Scope)
}

func TestAggregate_DropsUnparseableDates(t *testing.T) {
	var records []models.CanonicalRecord
	for d := 1; d <= 7; d++ {
		records = append(records, canonical("A1", fmt.Sprintf("2024-02-%02d", d), 1))
	}
	records = append(records, canonical("A1", "not a date", 100), canonical("A1", "2024-13-45", 100))

	table := Aggregate(records)
	assert.Equal(t, 2, table.DroppedBadDate)

	total := decimal.Zero
	for _, p := range table.Points {
		total = total.Add(p.TotalQuantity)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(7)))
}

func TestAggregate_SortedAndIdempotent(t *testing.T) {
	var records []models.CanonicalRecord
	start := day(2024, 3, 4)
	for _, item := range []string{"B2", "A1"} {
		for w := 6; w >= 0; w-- {
			d := start.AddDate(0, 0, 7*w+w%3)
			records = append(records, canonical(item, d.Format(DateLayout), int64(w+1)))
		}
	}

	first := Aggregate(records)
	require.Len(t, first.Points, 14)
	assert.Equal(t, "A1", first.Points[0].ItemCode)
	for i := 1; i < len(first.Points); i++ {
		a, b := first.Points[i-1], first.Points[i]
		assert.True(t, a.ItemCode < b.ItemCode || (a.ItemCode == b.ItemCode && a.Week.Before(b.Week)))
	}

	// Feeding weekly totals back in, dated at their week start, gives the same table.
	again := make([]models.CanonicalRecord, 0, len(first.Points))
	for _, p := range first.Points {
		again = append(again, models.CanonicalRecord{ItemCode: p.ItemCode, DocDate: p.Week.Format(DateLayout), Quantity: p.TotalQuantity})
	}
	second := Aggregate(again)
	require.Len(t, second.Points, len(first.Points))
	for i := range first.Points {
		assert.True(t, first.Points[i].Week.Equal(second.Points[i].Week))
		assert.True(t, first.Points[i].TotalQuantity.Equal(second.Points[i].TotalQuantity))
	}
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		{day(2024, 1, 1), day(2024, 1, 1)},
		{day(2024, 1, 7), day(2024, 1, 1)},
		{day(2024, 1, 3), day(2024, 1, 1)},
		{day(2023, 1, 1), day(2022, 12, 26)},
		{time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC), day(2024, 2, 26)},
	}
	for _, tt := range tests {
		got := WeekStart(tt.in)
		if !got.Equal(tt.want) {
			t.Errorf("WeekStart(%v) = %v, want %v", tt.in, got, tt.want)
		}
		if got.Weekday() != time.Monday {
			t.Errorf("WeekStart(%v) is a %v", tt.in, got.Weekday())
		}
	}
}

func TestParseDocDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-01-15", day(2024, 1, 15), true},
		{"2024-01-15 13:45:00", day(2024, 1, 15), true},
		{"2024-01-15T13:45:00", day(2024, 1, 15), true},
		{"2024/01/15", day(2024, 1, 15), true},
		{"03/04/2024", day(2024, 3, 4), true},
		{"25/12/2024", day(2024, 12, 25), true},
		{"45292", day(2024, 1, 1), true},
		{" 2024-01-15 ", day(2024, 1, 15), true},
		{"", time.Time{}, false},
		{"yesterday", time.Time{}, false},
		{"-5", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseDocDate(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseDocDate(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("ParseDocDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
