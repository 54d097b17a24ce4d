package models

import (
	"database/sql/driver"
	"strings"
	"time"
)

// ModelType selects a forecasting model family.
type ModelType string

const (
	ModelXGBoost ModelType = "xgboost"
	ModelProphet ModelType = "prophet"
)

// ModelTypes lists every supported family.
var ModelTypes = []ModelType{ModelXGBoost, ModelProphet}

// ParseModelType maps user input onto a ModelType.
func ParseModelType(s string) (ModelType, error) {
	switch t := ModelType(strings.ToLower(strings.TrimSpace(s))); t {
	case ModelXGBoost, ModelProphet:
		return t, nil
	default:
		return "", &UnsupportedModelTypeError{ModelType: s}
	}
}

func (t ModelType) String() string {
	return string(t)
}

// JobStatus is the lifecycle state of a training job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

var allowedTransitions = map[JobStatus][]JobStatus{
	JobPending: {JobRunning},
	JobRunning: {JobCompleted, JobFailed},
}

// CanTransition reports whether from -> to is a legal job transition.
func CanTransition(from, to JobStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Metrics holds forecast accuracy of one product or an average.
type Metrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	MAPE float64 `json:"mape"`
	R2   float64 `json:"r2"`
}

// Map returns the metrics keyed by their lower-case names.
func (m Metrics) Map() MetricMap {
	return MetricMap{"mae": m.MAE, "rmse": m.RMSE, "mape": m.MAPE, "r2": m.R2}
}

// MetricMap is a JSON-encoded name -> value map. An empty map means no
// product contributed.
type MetricMap map[string]float64

func (m MetricMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return jsonValue(m)
}

func (m *MetricMap) Scan(src interface{}) error {
	return jsonScan(src, m)
}

// Params carries free-form training parameters.
type Params map[string]interface{}

func (p Params) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	return jsonValue(p)
}

func (p *Params) Scan(src interface{}) error {
	return jsonScan(src, p)
}

// JobResult is the outcome of a completed whole-dataset training pass.
type JobResult struct {
	AverageMetrics       MetricMap `json:"metrics"`
	TotalProductsTrained int       `json:"total_products"`
	ProductsSkipped      int       `json:"products_skipped"`
	ProductsFailed       int       `json:"products_failed"`
	ResultsFile          string    `json:"results_file,omitempty"`
	ModelFile            string    `json:"model_file,omitempty"`
	PlotFile             string    `json:"plot_file,omitempty"`
}

func (r JobResult) Value() (driver.Value, error) {
	return jsonValue(r)
}

func (r *JobResult) Scan(src interface{}) error {
	return jsonScan(src, r)
}

// TrainingJob tracks one background training run.
type TrainingJob struct {
	ID          string     `json:"id" db:"id"`
	DatasetID   string     `json:"dataset_id" db:"dataset_id"`
	ModelType   ModelType  `json:"model_type" db:"model_type"`
	Status      JobStatus  `json:"status" db:"status"`
	Parameters  Params     `json:"parameters" db:"parameters"`
	TestRatio   float64    `json:"test_ratio" db:"test_ratio"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	Result      *JobResult `json:"result,omitempty" db:"result"`
	Error       string     `json:"error,omitempty" db:"error"`
	ModelID     string     `json:"model_id,omitempty" db:"model_id"`
	RetrainOf   string     `json:"retrain_of,omitempty" db:"retrain_of"`
}

// NewTrainingJob creates a pending job.
func NewTrainingJob(id, datasetID string, modelType ModelType, params Params, testRatio float64, now time.Time) *TrainingJob {
	if params == nil {
		params = Params{}
	}
	return &TrainingJob{
		ID:         id,
		DatasetID:  datasetID,
		ModelType:  modelType,
		Status:     JobPending,
		Parameters: params,
		TestRatio:  testRatio,
		CreatedAt:  now,
	}
}

// Transition moves the job to status to, stamping start and completion
// times. Terminal jobs never change again.
func (j *TrainingJob) Transition(to JobStatus, now time.Time) error {
	if !CanTransition(j.Status, to) {
		return &InvalidTransitionError{From: j.Status, To: to}
	}
	j.Status = to
	switch to {
	case JobRunning:
		j.StartedAt = &now
	case JobCompleted, JobFailed:
		j.CompletedAt = &now
	}
	return nil
}

// Complete records result and moves the job to completed.
func (j *TrainingJob) Complete(result *JobResult, now time.Time) error {
	if err := j.Transition(JobCompleted, now); err != nil {
		return err
	}
	j.Result = result
	return nil
}

// Fail records the error message and moves the job to failed.
func (j *TrainingJob) Fail(cause error, now time.Time) error {
	if err := j.Transition(JobFailed, now); err != nil {
		return err
	}
	if cause != nil {
		j.Error = cause.Error()
	}
	return nil
}

// Abandon fails a job that never started, such as one rejected by a full
// queue or left queued at shutdown. Started jobs go through Fail.
func (j *TrainingJob) Abandon(cause error, now time.Time) error {
	if j.Status != JobPending {
		return &InvalidTransitionError{From: j.Status, To: JobFailed}
	}
	j.Status = JobFailed
	j.CompletedAt = &now
	if cause != nil {
		j.Error = cause.Error()
	}
	return nil
}

// Clone returns a copy that shares no mutable state with j.
func (j *TrainingJob) Clone() *TrainingJob {
	c := *j
	if j.Parameters != nil {
		c.Parameters = make(Params, len(j.Parameters))
		for k, v := range j.Parameters {
			c.Parameters[k] = v
		}
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Result != nil {
		r := *j.Result
		if j.Result.AverageMetrics != nil {
			r.AverageMetrics = make(MetricMap, len(j.Result.AverageMetrics))
			for k, v := range j.Result.AverageMetrics {
				r.AverageMetrics[k] = v
			}
		}
		c.Result = &r
	}
	return &c
}
