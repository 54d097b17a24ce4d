package pipeline

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"demand-forecast/internal/models"
)

// Cell values read as missing, matching the NA markers spreadsheet exports
// commonly carry.
var nullMarkers = map[string]struct{}{
	"":         {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"-1.#IND":  {},
	"-1.#QNAN": {},
	"-NaN":     {},
	"-nan":     {},
	"1.#IND":   {},
	"1.#QNAN":  {},
	"<NA>":     {},
	"N/A":      {},
	"NA":       {},
	"NULL":     {},
	"NaN":      {},
	"None":     {},
	"n/a":      {},
	"nan":      {},
	"null":     {},
}

// IsNull reports whether a raw cell counts as missing.
func IsNull(s string) bool {
	_, ok := nullMarkers[strings.TrimSpace(s)]
	return ok
}

// CheckSchema verifies that every required column is present.
func CheckSchema(t *RawTable) error {
	var missing []string
	for _, col := range models.RequiredColumns {
		if t.Index(col) < 0 {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &models.SchemaError{Missing: missing, Available: append([]string(nil), t.Header...)}
	}
	return nil
}

// Project keeps the required columns and drops rows with a missing value in
// any of them. A Quantity that does not parse as a number counts as missing.
// It returns the surviving records and the number of rows dropped.
func Project(t *RawTable) ([]models.RawRecord, int, error) {
	if err := CheckSchema(t); err != nil {
		return nil, 0, err
	}

	idx := make([]int, len(models.RequiredColumns))
	for i, col := range models.RequiredColumns {
		idx[i] = t.Index(col)
	}

	records := make([]models.RawRecord, 0, len(t.Rows))
	dropped := 0
	for _, row := range t.Rows {
		cells := make([]string, len(idx))
		ok := true
		for i, j := range idx {
			cells[i] = Cell(row, j)
			if IsNull(cells[i]) {
				ok = false
				break
			}
		}
		if !ok {
			dropped++
			continue
		}

		qty, err := decimal.NewFromString(strings.TrimSpace(cells[6]))
		if err != nil {
			dropped++
			continue
		}

		records = append(records, models.RawRecord{
			DocDate:      cells[0],
			BranchCode:   cells[1],
			BranchName:   cells[2],
			CustomerCode: cells[3],
			ItemCode:     cells[4],
			ItemName:     cells[5],
			Quantity:     qty,
			Unit:         cells[7],
		})
	}

	return records, dropped, nil
}

// Clean turns a raw sales table into canonical demand records: project and
// drop nulls, lower-case Unit, trim ItemCode, keep counted units that are
// not the shipping line, keep positive quantities. The returned report
// carries the per-stage counts.
func Clean(t *RawTable) ([]models.CanonicalRecord, models.ProcessingReport, error) {
	report := models.ProcessingReport{RowsRead: len(t.Rows)}

	raw, droppedNull, err := Project(t)
	if err != nil {
		return nil, report, err
	}
	report.DroppedNull = droppedNull

	lower := cases.Lower(language.Vietnamese)
	out := make([]models.CanonicalRecord, 0, len(raw))
	for _, r := range raw {
		unit := lower.String(norm.NFC.String(r.Unit))
		item := strings.TrimSpace(r.ItemCode)

		if unit != models.CountedUnit || item == models.ShippingItem {
			report.DroppedFilter++
			continue
		}
		if !r.Quantity.IsPositive() {
			report.DroppedNonPositive++
			continue
		}

		out = append(out, models.CanonicalRecord{
			ItemCode: item,
			DocDate:  strings.TrimSpace(r.DocDate),
			Quantity: r.Quantity,
		})
	}
	report.CanonicalRows = len(out)

	return out, report, nil
}
