// Package sampledata generates synthetic raw sales tables in the layout of
// the sales export the pipeline reads.
package sampledata

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/xuri/excelize/v2"

	"demand-forecast/internal/models"
	"demand-forecast/internal/pipeline"
)

// Options shape a generated table.
type Options struct {
	Products int
	Weeks    int
	Start    time.Time
	Seed     int64

	// Noise adds rows the cleaning stage drops: other units, shipping
	// lines, returns and blank quantities.
	Noise bool
}

// DefaultOptions is a year of weekly sales for twenty products.
func DefaultOptions() Options {
	return Options{
		Products: 20,
		Weeks:    52,
		Start:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Seed:     42,
		Noise:    true,
	}
}

var (
	branches  = []string{"Chi nhánh Hà Nội", "Chi nhánh Đà Nẵng", "Chi nhánh TP.HCM", "Chi nhánh Cần Thơ"}
	materials = []string{"Gạch đỏ", "Gạch men", "Gạch block", "Ngói", "Gạch ốp lát", "Gạch thẻ"}
	otherUnit = []string{"thùng", "m2", "kg"}
)

type product struct {
	code      string
	name      string
	level     float64
	amplitude float64
	phase     float64
}

// Generate builds a raw sales table. Every product sells on at least two
// days of every week, so all of them survive the sparse product filter.
func Generate(opts Options) *pipeline.RawTable {
	faker := gofakeit.New(opts.Seed)

	products := make([]product, opts.Products)
	for i := range products {
		products[i] = product{
			code:      fmt.Sprintf("SP%04d", i+1),
			name:      fmt.Sprintf("%s %s", faker.RandomString(materials), faker.Numerify("##x##")),
			level:     faker.Float64Range(20, 200),
			amplitude: faker.Float64Range(0.1, 0.5),
			phase:     faker.Float64Range(0, 2*math.Pi),
		}
	}

	customers := make([]string, 30)
	for i := range customers {
		customers[i] = faker.Numerify("KH#####")
	}

	t := &pipeline.RawTable{Header: append([]string(nil), models.RequiredColumns...)}
	add := func(day time.Time, branch int, customer, code, name, qty, unit string) {
		t.Rows = append(t.Rows, []string{
			day.Format(pipeline.DateLayout),
			fmt.Sprintf("CN%02d", branch+1),
			branches[branch],
			customer,
			code,
			name,
			qty,
			unit,
		})
	}

	for w := 0; w < opts.Weeks; w++ {
		monday := opts.Start.AddDate(0, 0, 7*w)
		season := 2 * math.Pi * float64(w) / 52
		for _, p := range products {
			weekly := p.level * (1 + p.amplitude*math.Sin(season+p.phase))
			days := faker.Number(2, 4)
			for d := 0; d < days; d++ {
				qty := math.Max(1, math.Round(weekly/float64(days)*faker.Float64Range(0.7, 1.3)))
				branch := faker.Number(0, len(branches)-1)
				day := monday.AddDate(0, 0, d*7/days)
				unit := models.CountedUnit
				if faker.Number(1, 10) == 1 {
					unit = "Viên"
				}
				add(day, branch, faker.RandomString(customers), p.code, p.name, fmt.Sprintf("%.0f", qty), unit)
			}

			if !opts.Noise {
				continue
			}
			day := monday.AddDate(0, 0, faker.Number(0, 6))
			branch := faker.Number(0, len(branches)-1)
			switch faker.Number(1, 8) {
			case 1:
				add(day, branch, faker.RandomString(customers), p.code, p.name, fmt.Sprint(faker.Number(1, 10)), faker.RandomString(otherUnit))
			case 2:
				add(day, branch, faker.RandomString(customers), p.code, p.name, fmt.Sprint(-faker.Number(1, 10)), models.CountedUnit)
			case 3:
				add(day, branch, faker.RandomString(customers), p.code, p.name, "", models.CountedUnit)
			}
		}
		if opts.Noise {
			add(monday.AddDate(0, 0, 2), 0, faker.RandomString(customers), models.ShippingItem, "Vận chuyển", "1", models.CountedUnit)
		}
	}
	return t
}

// WriteCSV writes t as UTF-8 CSV.
func WriteCSV(w io.Writer, t *pipeline.RawTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteXLSX writes t to the first sheet of a new workbook at path.
// Quantities are stored as numbers when they parse as such.
func WriteXLSX(path string, t *pipeline.RawTable) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := make([]interface{}, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	qtyCol := t.Index(models.ColQuantity)
	for r, row := range t.Rows {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			cells[i] = v
			if i == qtyCol {
				if n, err := strconv.Atoi(v); err == nil {
					cells[i] = n
				}
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
