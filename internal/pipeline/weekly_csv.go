package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"demand-forecast/internal/models"
)

// DateLayout is the ISO date format used in processed files and the API.
const DateLayout = "2006-01-02"

// WeeklyHeader is the header row of a processed weekly demand file.
var WeeklyHeader = []string{"ItemCode", "Week", "TotalQuantity"}

// WriteWeeklyCSV writes points as UTF-8 CSV with ISO week dates.
func WriteWeeklyCSV(w io.Writer, points []models.WeeklyDemandPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(WeeklyHeader); err != nil {
		return err
	}
	for _, p := range points {
		if err := cw.Write([]string{p.ItemCode, p.Week.Format(DateLayout), p.TotalQuantity.String()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadWeeklyCSV reads a processed weekly demand file. A leading BOM is
// accepted.
func ReadWeeklyCSV(r io.Reader) ([]models.WeeklyDemandPoint, error) {
	cr := csv.NewReader(transform.NewReader(r, unicode.UTF8BOM.NewDecoder()))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &models.SchemaError{Missing: WeeklyHeader}
	}
	if err != nil {
		return nil, err
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	var missing []string
	for _, h := range WeeklyHeader {
		if _, ok := cols[h]; !ok {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return nil, &models.SchemaError{Missing: missing, Available: header}
	}

	var points []models.WeeklyDemandPoint
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		week, err := parseWeek(Cell(rec, cols["Week"]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		qty, err := decimal.NewFromString(strings.TrimSpace(Cell(rec, cols["TotalQuantity"])))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid TotalQuantity: %w", line, err)
		}

		points = append(points, models.WeeklyDemandPoint{
			ItemCode:      strings.TrimSpace(Cell(rec, cols["ItemCode"])),
			Week:          week,
			TotalQuantity: qty,
		})
	}

	return points, nil
}

// SaveWeeklyCSV writes points to path.
func SaveWeeklyCSV(path string, points []models.WeeklyDemandPoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWeeklyCSV(f, points); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadWeeklyCSV reads a processed weekly demand file from path.
func LoadWeeklyCSV(path string) ([]models.WeeklyDemandPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	points, err := ReadWeeklyCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return points, nil
}

func parseWeek(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{DateLayout, "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid Week %q", s)
}
