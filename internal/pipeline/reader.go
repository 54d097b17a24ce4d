package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"demand-forecast/internal/models"
)

// Supported raw file extensions.
const (
	ExtXLSX = ".xlsx"
	ExtCSV  = ".csv"
)

// RawTable is a header plus string cells as read from a sales file.
// Rows may be shorter than Header; missing cells read as empty.
type RawTable struct {
	Header []string
	Rows   [][]string
}

// Index returns the position of column name in the header, or -1.
func (t *RawTable) Index(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Cell returns row[i], or "" when the row is short.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// CheckExtension rejects anything other than .xlsx and .csv.
func CheckExtension(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ExtXLSX && ext != ExtCSV {
		return "", &models.FormatError{Path: path, Reason: "unsupported file format, expected .xlsx or .csv"}
	}
	return ext, nil
}

// ReadRawFile reads a raw sales file, choosing the decoder by extension.
func ReadRawFile(path string) (*RawTable, error) {
	ext, err := CheckExtension(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &models.FormatError{Path: path, Reason: "open failed", Err: err}
	}
	defer f.Close()

	var table *RawTable
	switch ext {
	case ExtXLSX:
		table, err = ReadXLSX(f)
	default:
		table, err = ReadCSV(f)
	}
	if err != nil {
		return nil, &models.FormatError{Path: path, Reason: "parse failed", Err: err}
	}
	return table, nil
}

// ReadXLSX reads the first worksheet. Cells are read raw so that dates
// arrive as Excel serial numbers regardless of the workbook's display
// format.
func ReadXLSX(r io.Reader) (*RawTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("worksheet is empty")
	}

	return newRawTable(rows[0], rows[1:]), nil
}

// ReadCSV reads comma separated input. A UTF-8 BOM is stripped; input that
// is not valid UTF-8 is decoded as Windows-1258, the legacy Vietnamese
// code page.
func ReadCSV(r io.Reader) (*RawTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	data, err = DecodeText(data)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("file is empty")
	}

	return newRawTable(records[0], records[1:]), nil
}

// DecodeText returns data as UTF-8 without a byte order mark.
func DecodeText(data []byte) ([]byte, error) {
	out, _, err := transform.Bytes(unicode.UTF8BOM.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("strip BOM: %w", err)
	}
	if utf8.Valid(out) {
		return out, nil
	}

	out, _, err = transform.Bytes(charmap.Windows1258.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("decode windows-1258: %w", err)
	}
	return out, nil
}

func newRawTable(header []string, rows [][]string) *RawTable {
	h := make([]string, len(header))
	for i, name := range header {
		h[i] = strings.TrimSpace(name)
	}
	return &RawTable{Header: h, Rows: rows}
}
