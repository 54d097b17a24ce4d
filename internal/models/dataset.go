package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Column names required in every raw sales file.
const (
	ColDocDate      = "DocDate"
	ColBranchCode   = "BranchCode0"
	ColBranchName   = "BranchName0"
	ColCustomerCode = "CustomerCode"
	ColItemCode     = "ItemCode"
	ColItemName     = "ItemName"
	ColQuantity     = "Quantity"
	ColUnit         = "Unit"
)

// RequiredColumns lists the raw columns in projection order.
var RequiredColumns = []string{
	ColDocDate,
	ColBranchCode,
	ColBranchName,
	ColCustomerCode,
	ColItemCode,
	ColItemName,
	ColQuantity,
	ColUnit,
}

// Filter constants applied during cleaning.
const (
	CountedUnit     = "viên"
	ShippingItem    = "VANCHUYEN"
	MinDistinctDays = 5
)

// RawRecord is one sales line after projection and null removal.
type RawRecord struct {
	DocDate      string
	BranchCode   string
	BranchName   string
	CustomerCode string
	ItemCode     string
	ItemName     string
	Quantity     decimal.Decimal
	Unit         string
}

// CanonicalRecord is a cleaned per-transaction demand record.
// DocDate keeps the raw cell text; it is parsed during aggregation.
type CanonicalRecord struct {
	ItemCode string
	DocDate  string
	Quantity decimal.Decimal
}

// WeeklyDemandPoint is the summed demand of one product in one week.
// Week is the Monday (UTC) starting the ISO week.
type WeeklyDemandPoint struct {
	ItemCode      string          `json:"item_code"`
	Week          time.Time       `json:"week"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
}

// Quantity returns TotalQuantity as a float for model fitting.
func (p WeeklyDemandPoint) Quantity() float64 {
	return p.TotalQuantity.InexactFloat64()
}

// DatasetStats summarises a weekly demand table.
type DatasetStats struct {
	TotalProducts int    `json:"total_products"`
	TotalWeeks    int    `json:"total_weeks"`
	TotalRecords  int    `json:"total_records"`
	MinWeek       string `json:"min_week,omitempty"`
	MaxWeek       string `json:"max_week,omitempty"`
}

// Value stores stats as JSON in the registry table
func (s DatasetStats) Value() (driver.Value, error) {
	return jsonValue(s)
}

// Scan reads stats stored as JSON
func (s *DatasetStats) Scan(src interface{}) error {
	return jsonScan(src, s)
}

// ProcessingReport counts rows and products removed by each cleaning and
// aggregation stage.
type ProcessingReport struct {
	RowsRead           int `json:"rows_read"`
	DroppedNull        int `json:"dropped_null"`
	DroppedFilter      int `json:"dropped_filter"`
	DroppedNonPositive int `json:"dropped_non_positive"`
	CanonicalRows      int `json:"canonical_rows"`
	DroppedBadDate     int `json:"dropped_bad_date"`
	ProductsExcluded   int `json:"products_excluded"`
	ProductsKept       int `json:"products_kept"`
	WeeklyRows         int `json:"weekly_rows"`
}

func (r ProcessingReport) Value() (driver.Value, error) {
	return jsonValue(r)
}

func (r *ProcessingReport) Scan(src interface{}) error {
	return jsonScan(src, r)
}

// StringList is a JSON-encoded list column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return jsonValue(l)
}

func (l *StringList) Scan(src interface{}) error {
	return jsonScan(src, l)
}

// DatasetInfo is a registered upload and its processed weekly table.
type DatasetInfo struct {
	ID            string           `json:"id" db:"id"`
	Name          string           `json:"name" db:"name"`
	Description   string           `json:"description" db:"description"`
	Tags          StringList       `json:"tags" db:"tags"`
	Filename      string           `json:"filename" db:"filename"`
	FilePath      string           `json:"file_path" db:"file_path"`
	ProcessedFile string           `json:"processed_file" db:"processed_file"`
	UploadedAt    time.Time        `json:"uploaded_at" db:"uploaded_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
	Stats         DatasetStats     `json:"stats" db:"stats"`
	Report        ProcessingReport `json:"report" db:"report"`
}

// DatasetUpdate carries optional metadata changes; nil fields are untouched.
type DatasetUpdate struct {
	Name        *string  `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,dive,min=1,max=50"`
}

// Apply copies the set fields of u onto d.
func (u DatasetUpdate) Apply(d *DatasetInfo, now time.Time) {
	if u.Name != nil {
		d.Name = *u.Name
	}
	if u.Description != nil {
		d.Description = *u.Description
	}
	if u.Tags != nil {
		d.Tags = StringList(u.Tags)
	}
	d.UpdatedAt = now
}

// DatasetValidation is the pre-training sufficiency check of a weekly table.
type DatasetValidation struct {
	TotalProducts   int                `json:"total_products"`
	TotalWeeks      int                `json:"total_weeks"`
	TotalRecords    int                `json:"total_records"`
	MissingValues   map[string]int     `json:"missing_values"`
	DataRange       map[string]string  `json:"data_range"`
	QuantityStats   map[string]float64 `json:"quantity_stats"`
	FeatureProducts int                `json:"feature_products"`
	FeatureRows     int                `json:"feature_rows"`
	IsSufficient    bool               `json:"is_sufficient"`
	Recommendations []string           `json:"recommendations"`
}

func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("cannot scan %T into JSON column", src)
	}
}
