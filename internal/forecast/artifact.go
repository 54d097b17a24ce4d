package forecast

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"demand-forecast/internal/models"
)

// Bundle holds every product model fitted by one training job.
type Bundle struct {
	ModelType models.ModelType         `json:"model_type"`
	JobID     string                   `json:"job_id,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
	XGBoost   map[string]*XGBoostModel `json:"xgboost,omitempty"`
	Prophet   map[string]*ProphetModel `json:"prophet,omitempty"`
}

// NewBundle collects fitted models into a bundle.
func NewBundle(modelType models.ModelType, jobID string, fitted map[string]FittedModel, now time.Time) (*Bundle, error) {
	b := &Bundle{ModelType: modelType, JobID: jobID, CreatedAt: now}
	for _, m := range fitted {
		if err := b.Add(m); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Add stores m under its product code.
func (b *Bundle) Add(m FittedModel) error {
	if m.Type() != b.ModelType {
		return fmt.Errorf("cannot add %s model for %s to a %s bundle", m.Type(), m.Product(), b.ModelType)
	}
	switch fm := m.(type) {
	case *XGBoostModel:
		if b.XGBoost == nil {
			b.XGBoost = make(map[string]*XGBoostModel)
		}
		b.XGBoost[fm.ItemCode] = fm
	case *ProphetModel:
		if b.Prophet == nil {
			b.Prophet = make(map[string]*ProphetModel)
		}
		b.Prophet[fm.ItemCode] = fm
	default:
		return &models.UnsupportedModelTypeError{ModelType: string(m.Type())}
	}
	return nil
}

// Model returns the model fitted for itemCode.
func (b *Bundle) Model(itemCode string) (FittedModel, bool) {
	if m, ok := b.XGBoost[itemCode]; ok {
		return m, true
	}
	if m, ok := b.Prophet[itemCode]; ok {
		return m, true
	}
	return nil, false
}

// Products lists the product codes in the bundle, sorted.
func (b *Bundle) Products() []string {
	out := make([]string, 0, len(b.XGBoost)+len(b.Prophet))
	for code := range b.XGBoost {
		out = append(out, code)
	}
	for code := range b.Prophet {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// SaveBundle writes b as JSON to path.
func SaveBundle(path string, b *Bundle) error {
	return writeJSON(path, b)
}

// LoadBundle reads a bundle written by SaveBundle.
func LoadBundle(path string) (*Bundle, error) {
	var b Bundle
	if err := readJSON(path, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Results is the persisted summary of one training job.
type Results struct {
	ModelName         string                    `json:"model_name"`
	OverallMetrics    models.MetricMap          `json:"overall_metrics"`
	ProductResults    map[string]models.Metrics `json:"product_results"`
	TotalProducts     int                       `json:"total_products"`
	SkippedProducts   []ProductFailure          `json:"skipped_products"`
	FailedProducts    []ProductFailure          `json:"failed_products"`
	FeatureImportance map[string]float64        `json:"feature_importance,omitempty"`
	CreatedAt         time.Time                 `json:"created_at"`
}

// Results summarises r for persistence.
func (r *BatchResult) Results(now time.Time) *Results {
	out := &Results{
		ModelName:         string(r.ModelType),
		OverallMetrics:    r.Average,
		ProductResults:    r.PerProduct,
		TotalProducts:     r.TotalProductsTrained,
		SkippedProducts:   r.Skipped,
		FailedProducts:    r.Failed,
		FeatureImportance: r.FeatureImportance,
		CreatedAt:         now,
	}
	if out.OverallMetrics == nil {
		out.OverallMetrics = models.MetricMap{}
	}
	if out.SkippedProducts == nil {
		out.SkippedProducts = []ProductFailure{}
	}
	if out.FailedProducts == nil {
		out.FailedProducts = []ProductFailure{}
	}
	return out
}

// SaveResults writes res as indented JSON to path.
func SaveResults(path string, res *Results) error {
	return writeJSON(path, res)
}

// LoadResults reads a results file written by SaveResults.
func LoadResults(path string) (*Results, error) {
	var res Results
	if err := readJSON(path, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// writeJSON writes through a temporary file so readers never observe a
// partial artifact.
func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &models.FormatError{Path: path, Reason: "invalid JSON artifact", Err: err}
	}
	return nil
}
