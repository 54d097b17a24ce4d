package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTrainingJob_Transition(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		path    []JobStatus
		wantErr bool
		want    JobStatus
	}{
		{name: "pending to running", path: []JobStatus{JobRunning}, want: JobRunning},
		{name: "running to completed", path: []JobStatus{JobRunning, JobCompleted}, want: JobCompleted},
		{name: "running to failed", path: []JobStatus{JobRunning, JobFailed}, want: JobFailed},
		{name: "pending to completed", path: []JobStatus{JobCompleted}, wantErr: true, want: JobPending},
		{name: "pending to failed", path: []JobStatus{JobFailed}, wantErr: true, want: JobPending},
		{name: "completed never reverts", path: []JobStatus{JobRunning, JobCompleted, JobRunning}, wantErr: true, want: JobCompleted},
		{name: "failed never completes", path: []JobStatus{JobRunning, JobFailed, JobCompleted}, wantErr: true, want: JobFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewTrainingJob("j1", "d1", ModelXGBoost, nil, 0.3, now)

			var err error
			for _, next := range tt.path {
				if err = job.Transition(next, now); err != nil {
					break
				}
			}

			if (err != nil) != tt.wantErr {
				t.Fatalf("Transition() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var ite *InvalidTransitionError
				if !errors.As(err, &ite) {
					t.Errorf("error type = %T, want *InvalidTransitionError", err)
				}
			}
			if job.Status != tt.want {
				t.Errorf("Status = %v, want %v", job.Status, tt.want)
			}
		})
	}
}

func TestTrainingJob_TimestampsAndResult(t *testing.T) {
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	job := NewTrainingJob("j1", "d1", ModelProphet, Params{"k": 1}, 0.3, start)

	if job.StartedAt != nil || job.CompletedAt != nil {
		t.Fatal("new job should have no start or completion time")
	}
	if err := job.Transition(JobRunning, start); err != nil {
		t.Fatal(err)
	}
	if err := job.Complete(&JobResult{TotalProductsTrained: 3, AverageMetrics: MetricMap{}}, end); err != nil {
		t.Fatal(err)
	}

	if !job.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", job.StartedAt, start)
	}
	if !job.CompletedAt.Equal(end) {
		t.Errorf("CompletedAt = %v, want %v", job.CompletedAt, end)
	}
	if job.Result == nil || job.Result.TotalProductsTrained != 3 {
		t.Errorf("Result = %+v, want 3 products trained", job.Result)
	}

	clone := job.Clone()
	clone.Parameters["k"] = 2
	*clone.StartedAt = end
	if job.Parameters["k"] != 1 {
		t.Error("Clone shares Parameters with original")
	}
	if !job.StartedAt.Equal(start) {
		t.Error("Clone shares StartedAt with original")
	}
}

func TestTrainingJob_Fail(t *testing.T) {
	now := time.Now().UTC()
	job := NewTrainingJob("j1", "d1", ModelXGBoost, nil, 0.3, now)
	if err := job.Fail(errors.New("boom"), now); err == nil {
		t.Fatal("pending job must not fail directly")
	}

	_ = job.Transition(JobRunning, now)
	if err := job.Fail(fmt.Errorf("load: %w", errors.New("no such file")), now); err != nil {
		t.Fatal(err)
	}
	if job.Error != "load: no such file" {
		t.Errorf("Error = %q", job.Error)
	}
	if !job.Status.Terminal() {
		t.Error("failed should be terminal")
	}
}

func TestTrainingJob_Abandon(t *testing.T) {
	now := time.Now().UTC()

	job := NewTrainingJob("j1", "d1", ModelProphet, nil, 0.3, now)
	if err := job.Abandon(errors.New("queue full"), now); err != nil {
		t.Fatal(err)
	}
	if job.Status != JobFailed || job.Error != "queue full" {
		t.Errorf("Status = %v, Error = %q", job.Status, job.Error)
	}
	if job.StartedAt != nil || job.CompletedAt == nil {
		t.Error("abandoned job has a start time or lacks a completion time")
	}

	running := NewTrainingJob("j2", "d1", ModelProphet, nil, 0.3, now)
	_ = running.Transition(JobRunning, now)
	var ite *InvalidTransitionError
	if err := running.Abandon(errors.New("late"), now); !errors.As(err, &ite) {
		t.Errorf("Abandon on running job error = %v, want *InvalidTransitionError", err)
	}
}

func TestParseModelType(t *testing.T) {
	tests := []struct {
		in      string
		want    ModelType
		wantErr bool
	}{
		{in: "xgboost", want: ModelXGBoost},
		{in: " Prophet ", want: ModelProphet},
		{in: "lstm", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseModelType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseModelType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				var ute *UnsupportedModelTypeError
				if !errors.As(err, &ute) {
					t.Errorf("error type = %T, want *UnsupportedModelTypeError", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ParseModelType(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestJSONColumns_ScanValue(t *testing.T) {
	stats := DatasetStats{TotalProducts: 2, TotalWeeks: 10, TotalRecords: 20, MinWeek: "2024-01-01", MaxWeek: "2024-03-04"}
	v, err := stats.Value()
	if err != nil {
		t.Fatal(err)
	}

	var back DatasetStats
	if err := back.Scan([]byte(v.(string))); err != nil {
		t.Fatal(err)
	}
	if back != stats {
		t.Errorf("Scan(Value()) = %+v, want %+v", back, stats)
	}

	var tags StringList
	if err := tags.Scan(nil); err != nil || tags != nil {
		t.Errorf("Scan(nil) = %v, %v; want nil list", tags, err)
	}
	if err := tags.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}

	empty, _ := MetricMap(nil).Value()
	if empty != "{}" {
		t.Errorf("nil MetricMap Value = %v, want {}", empty)
	}
}

func TestUpdates_Apply(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	name := "renamed"

	d := &DatasetInfo{Name: "orig", Description: "keep", Tags: StringList{"a"}}
	DatasetUpdate{Name: &name, Tags: []string{"x", "y"}}.Apply(d, now)
	if d.Name != "renamed" || d.Description != "keep" || len(d.Tags) != 2 || !d.UpdatedAt.Equal(now) {
		t.Errorf("DatasetUpdate.Apply produced %+v", d)
	}

	m := &ModelInfo{Name: "orig", Status: ModelReady}
	ModelUpdate{Description: &name}.Apply(m, now)
	if m.Name != "orig" || m.Description != "renamed" {
		t.Errorf("ModelUpdate.Apply produced %+v", m)
	}

	m.Deploy(now)
	if m.Status != ModelDeployed || m.DeployedAt == nil {
		t.Errorf("Deploy left status %v deployed_at %v", m.Status, m.DeployedAt)
	}
}

func TestWeeklyDemandPoint_Quantity(t *testing.T) {
	p := WeeklyDemandPoint{TotalQuantity: decimal.RequireFromString("12.5")}
	if p.Quantity() != 12.5 {
		t.Errorf("Quantity() = %v, want 12.5", p.Quantity())
	}
}

func TestErrors_Messages(t *testing.T) {
	tests := []struct {
		err       error
		want      string
		transient bool
	}{
		{&SchemaError{Missing: []string{"Unit", "Quantity"}}, "missing required columns: Unit, Quantity", false},
		{&InsufficientDataError{Scope: "product A1 features", Need: 10, Got: 9}, "insufficient data for product A1 features: need 10, got 9", false},
		{&MetricComputationError{Metric: "mape", Reason: "actual value is zero"}, "cannot compute mape: actual value is zero", false},
		{&UnsupportedModelTypeError{ModelType: "lstm"}, `unsupported model type: "lstm"`, false},
		{&ProcessingError{Op: "read dataset", Err: errors.New("disk")}, "read dataset: disk", true},
		{&ValidationError{Field: "date", Message: "invalid date format"}, "invalid date format", false},
	}

	for _, tt := range tests {
		if tt.err.Error() != tt.want {
			t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.want)
		}
		if tr, ok := tt.err.(interface{ IsTransient() bool }); !ok || tr.IsTransient() != tt.transient {
			t.Errorf("%T IsTransient mismatch", tt.err)
		}
	}

	inner := errors.New("eof")
	if !errors.Is(&FormatError{Path: "x.xlsx", Reason: "corrupt", Err: inner}, inner) {
		t.Error("FormatError should unwrap to its cause")
	}
}
