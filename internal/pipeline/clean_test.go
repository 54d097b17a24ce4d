package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demand-forecast/internal/models"
)

var testHeader = []string{"DocDate", "BranchCode0", "BranchName0", "CustomerCode", "ItemCode", "ItemName", "Quantity", "Unit", "Extra"}

func row(date, item, qty, unit string) []string {
	return []string{date, "B01", "Chi nhánh 1", "C001", item, "Gạch " + item, qty, unit, "ignored"}
}

func TestClean_SchemaError(t *testing.T) {
	table := &RawTable{
		Header: []string{"DocDate", "BranchCode0", "BranchName0", "CustomerCode", "ItemCode", "ItemName"},
		Rows:   [][]string{{"2024-01-01", "B", "N", "C", "A1", "X"}},
	}

	_, _, err := Clean(table)
	require.Error(t, err)

	var se *models.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"Quantity", "Unit"}, se.Missing)
	assert.Contains(t, err.Error(), "Quantity")
}

func TestClean_Filters(t *testing.T) {
	tests := []struct {
		name string
		row  []string
		keep bool
	}{
		{name: "counted unit", row: row("2024-01-01", "A1", "2", "viên"), keep: true},
		{name: "upper case unit", row: row("2024-01-01", "A1", "2", "VIÊN"), keep: true},
		{name: "decomposed unit", row: row("2024-01-01", "A1", "2", "vie\u0302n"), keep: true},
		{name: "padded item code", row: row("2024-01-01", "  A1 ", "2", "Viên"), keep: true},
		{name: "decimal quantity", row: row("2024-01-01", "A1", "2.5", "viên"), keep: true},
		{name: "other unit", row: row("2024-01-01", "A1", "2", "thùng"), keep: false},
		{name: "shipping line", row: row("2024-01-01", "VANCHUYEN", "1", "viên"), keep: false},
		{name: "padded shipping line", row: row("2024-01-01", " VANCHUYEN ", "1", "viên"), keep: false},
		{name: "zero quantity", row: row("2024-01-01", "A1", "0", "viên"), keep: false},
		{name: "return line", row: row("2024-01-01", "A1", "-3", "viên"), keep: false},
		{name: "empty customer", row: []string{"2024-01-01", "B", "N", "", "A1", "X", "2", "viên"}, keep: false},
		{name: "NA item name", row: []string{"2024-01-01", "B", "N", "C", "A1", "NA", "2", "viên"}, keep: false},
		{name: "short row", row: []string{"2024-01-01", "B", "N", "C", "A1"}, keep: false},
		{name: "text quantity", row: row("2024-01-01", "A1", "two", "viên"), keep: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := Clean(&RawTable{Header: testHeader, Rows: [][]string{tt.row}})
			require.NoError(t, err)
			if tt.keep {
				require.Len(t, out, 1)
				assert.Equal(t, "A1", out[0].ItemCode)
			} else {
				assert.Empty(t, out)
			}
		})
	}
}

func TestClean_KeptRowsAndReport(t *testing.T) {
	table := &RawTable{Header: testHeader, Rows: [][]string{
		row("2024-01-01", "A1", "2", "viên"),
		row("2024-01-02", "A1", "3", "Viên"),
		row("2024-01-02", "A2", "", "viên"),
		row("2024-01-03", "A2", "1", "hộp"),
		row("2024-01-03", "VANCHUYEN", "1", "viên"),
		row("2024-01-04", "A3", "0", "viên"),
		row("2024-01-05", "A3", "-1", "viên"),
	}}

	out, report, err := Clean(table)
	require.NoError(t, err)

	for _, r := range out {
		assert.True(t, r.Quantity.IsPositive())
		assert.NotEqual(t, models.ShippingItem, r.ItemCode)
	}
	assert.Equal(t, models.ProcessingReport{
		RowsRead:           7,
		DroppedNull:        1,
		DroppedFilter:      2,
		DroppedNonPositive: 2,
		CanonicalRows:      2,
	}, report)
}

func TestIsNull(t *testing.T) {
	for _, s := range []string{"", "  ", "NA", "nan", "NULL", "#N/A", "None"} {
		assert.True(t, IsNull(s), "%q should be null", s)
	}
	for _, s := range []string{"0", "A1", "viên", "Nam"} {
		assert.False(t, IsNull(s), "%q should not be null", s)
	}
}
