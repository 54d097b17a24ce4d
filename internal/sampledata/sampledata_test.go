package sampledata

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demand-forecast/internal/models"
	"demand-forecast/internal/pipeline"
)

func smallOptions(noise bool) Options {
	return Options{
		Products: 3,
		Weeks:    12,
		Start:    time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		Seed:     7,
		Noise:    noise,
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(smallOptions(true))
	b := Generate(smallOptions(true))
	assert.Equal(t, a.Rows, b.Rows)
	assert.Equal(t, models.RequiredColumns, a.Header)

	other := smallOptions(true)
	other.Seed = 8
	assert.NotEqual(t, a.Rows, Generate(other).Rows)
}

func TestGenerate_ProcessesIntoEveryProduct(t *testing.T) {
	tests := []struct {
		name  string
		noise bool
	}{
		{name: "clean", noise: false},
		{name: "with noise", noise: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processed, err := pipeline.Process(Generate(smallOptions(tt.noise)))
			require.NoError(t, err)

			stats := processed.Weekly.Stats
			assert.Equal(t, 3, stats.TotalProducts)
			assert.Equal(t, 12, stats.TotalWeeks)
			assert.Equal(t, 36, processed.Report.WeeklyRows)
			assert.Equal(t, "2024-03-04", stats.MinWeek)
			assert.Equal(t, 0, processed.Report.ProductsExcluded)

			if tt.noise {
				// Twelve shipping lines at least.
				assert.GreaterOrEqual(t, processed.Report.DroppedFilter, 12)
			} else {
				assert.Equal(t, processed.Report.RowsRead, processed.Report.CanonicalRows)
			}
		})
	}
}

func TestWriters_RoundTrip(t *testing.T) {
	table := Generate(smallOptions(false))
	dir := t.TempDir()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table))
	fromCSV, err := pipeline.ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, table.Header, fromCSV.Header)
	assert.Len(t, fromCSV.Rows, len(table.Rows))

	xlsxPath := filepath.Join(dir, "sales.xlsx")
	require.NoError(t, WriteXLSX(xlsxPath, table))
	fromXLSX, err := pipeline.ReadRawFile(xlsxPath)
	require.NoError(t, err)
	assert.Len(t, fromXLSX.Rows, len(table.Rows))

	want, err := pipeline.Process(table)
	require.NoError(t, err)
	got, err := pipeline.Process(fromXLSX)
	require.NoError(t, err)
	assert.Equal(t, want.Weekly.Stats, got.Weekly.Stats)
}
