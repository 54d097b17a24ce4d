package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"demand-forecast/internal/forecast"
	"demand-forecast/internal/models"
	"demand-forecast/internal/pipeline"
	"demand-forecast/internal/repository"
	"demand-forecast/pkg/logging"
)

// Dashboard thresholds
const (
	PoorMAPEThreshold = 50.0
	StaleModelAge     = 30 * 24 * time.Hour
	RecentJobs        = 5
	RecentWindow      = 7 * 24 * time.Hour
	TrendWeeks        = 10
	TrendMonths       = 6
)

// Overview counts registry records
type Overview struct {
	TotalDatasets  int `json:"total_datasets"`
	TotalModels    int `json:"total_models"`
	TotalJobs      int `json:"total_jobs"`
	DeployedModels int `json:"deployed_models"`
}

// JobActivity is a short view of a training job
type JobActivity struct {
	ID        string           `json:"id"`
	Type      string           `json:"type,omitempty"`
	ModelType models.ModelType `json:"model_type"`
	Status    models.JobStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	DaysAgo   *int             `json:"days_ago,omitempty"`
}

// MetricsOverview is the payload of the dashboard metrics view
type MetricsOverview struct {
	Overview       Overview         `json:"overview"`
	AverageMetrics models.MetricMap `json:"average_metrics"`
	RecentActivity []JobActivity    `json:"recent_activity"`
}

// ModelPerformance is the accuracy of one deployed model
type ModelPerformance struct {
	ModelID       string           `json:"model_id"`
	ModelName     string           `json:"model_name"`
	ModelType     models.ModelType `json:"model_type"`
	MAE           float64          `json:"mae"`
	RMSE          float64          `json:"rmse"`
	MAPE          float64          `json:"mape"`
	R2            float64          `json:"r2"`
	TotalProducts int              `json:"total_products"`
}

// TrendPoint is total demand in one period
type TrendPoint struct {
	Period        string  `json:"period"`
	TotalQuantity float64 `json:"total_quantity"`
}

// Trend is a series of period totals
type Trend struct {
	Type string       `json:"type"`
	Data []TrendPoint `json:"data"`
}

// Trends holds demand trends of the latest dataset
type Trends struct {
	DatasetID string  `json:"dataset_id,omitempty"`
	Trends    []Trend `json:"trends"`
	Message   string  `json:"message,omitempty"`
}

// Alert flags a condition that needs attention
type Alert struct {
	Type     string   `json:"type"`
	Severity string   `json:"severity"`
	Message  string   `json:"message"`
	Count    int      `json:"count,omitempty"`
	ModelIDs []string `json:"model_ids,omitempty"`
}

// Summary is the system-wide summary
type Summary struct {
	TotalDatasets       int                      `json:"total_datasets"`
	TotalModels         int                      `json:"total_models"`
	TotalJobs           int                      `json:"total_jobs"`
	JobStatusBreakdown  map[models.JobStatus]int `json:"job_status_breakdown"`
	ModelTypeBreakdown  map[models.ModelType]int `json:"model_type_breakdown"`
	RecentActivityCount int                      `json:"recent_activity_count"`
	RecentActivity      []JobActivity            `json:"recent_activity"`
}

// BestModel is the model with the best average value of a metric
type BestModel struct {
	Metric  string             `json:"metric"`
	ModelID string             `json:"model_id"`
	Name    string             `json:"name"`
	Type    models.ModelType   `json:"type"`
	Value   float64            `json:"value"`
	Status  models.ModelStatus `json:"status"`
}

// DashboardService aggregates registry state for the dashboard
type DashboardService struct {
	store    repository.Store
	datasets *DatasetService
	logger   logging.Logger
	now      func() time.Time
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(store repository.Store, datasets *DatasetService, logger logging.Logger) *DashboardService {
	return &DashboardService{
		store:    store,
		datasets: datasets,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type snapshot struct {
	datasets []*models.DatasetInfo
	jobs     []*models.TrainingJob
	models   []*models.ModelInfo
}

func (s *DashboardService) snapshot(ctx context.Context) (*snapshot, error) {
	datasets, err := s.store.ListDatasets(ctx)
	if err != nil {
		return nil, err
	}
	jobs, err := s.store.ListJobs(ctx, repository.JobFilter{})
	if err != nil {
		return nil, err
	}
	list, err := s.store.ListModels(ctx, repository.ModelFilter{})
	if err != nil {
		return nil, err
	}
	return &snapshot{datasets: datasets, jobs: jobs, models: list}, nil
}

func (snap *snapshot) deployed() []*models.ModelInfo {
	var out []*models.ModelInfo
	for _, m := range snap.models {
		if m.Status == models.ModelDeployed {
			out = append(out, m)
		}
	}
	return out
}

// Metrics returns registry counts, the average metrics of deployed models
// and the most recent jobs.
func (s *DashboardService) Metrics(ctx context.Context) (*MetricsOverview, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	deployed := snap.deployed()

	avg := models.MetricMap{}
	for _, name := range forecast.MetricNames {
		avg[name] = 0
	}
	if len(deployed) > 0 {
		for _, m := range deployed {
			for _, name := range forecast.MetricNames {
				avg[name] += m.Metrics[name]
			}
		}
		for _, name := range forecast.MetricNames {
			avg[name] /= float64(len(deployed))
		}
	}

	recent := snap.jobs
	if len(recent) > RecentJobs {
		recent = recent[len(recent)-RecentJobs:]
	}
	activity := make([]JobActivity, 0, len(recent))
	for _, j := range recent {
		activity = append(activity, JobActivity{ID: j.ID, ModelType: j.ModelType, Status: j.Status, CreatedAt: j.CreatedAt})
	}

	return &MetricsOverview{
		Overview: Overview{
			TotalDatasets:  len(snap.datasets),
			TotalModels:    len(snap.models),
			TotalJobs:      len(snap.jobs),
			DeployedModels: len(deployed),
		},
		AverageMetrics: avg,
		RecentActivity: activity,
	}, nil
}

// Performance lists the metrics of every deployed model
func (s *DashboardService) Performance(ctx context.Context) ([]ModelPerformance, error) {
	deployed, err := s.store.ListModels(ctx, repository.ModelFilter{Status: models.ModelDeployed})
	if err != nil {
		return nil, err
	}
	out := make([]ModelPerformance, 0, len(deployed))
	for _, m := range deployed {
		out = append(out, ModelPerformance{
			ModelID:       m.ID,
			ModelName:     m.Name,
			ModelType:     m.Type,
			MAE:           m.Metrics[forecast.MetricMAE],
			RMSE:          m.Metrics[forecast.MetricRMSE],
			MAPE:          m.Metrics[forecast.MetricMAPE],
			R2:            m.Metrics[forecast.MetricR2],
			TotalProducts: m.TotalProducts,
		})
	}
	return out, nil
}

// Trends returns weekly and monthly demand totals of the most recently
// uploaded dataset.
func (s *DashboardService) Trends(ctx context.Context) (*Trends, error) {
	datasets, err := s.store.ListDatasets(ctx)
	if err != nil {
		return nil, err
	}
	if len(datasets) == 0 {
		return &Trends{Trends: []Trend{}, Message: "No datasets available"}, nil
	}
	latest := datasets[len(datasets)-1]

	_, points, err := s.datasets.Weekly(ctx, latest.ID)
	if err != nil {
		return nil, err
	}

	weekly := periodTotals(points, func(w time.Time) string { return w.Format(pipeline.DateLayout) })
	monthly := periodTotals(points, func(w time.Time) string { return w.Format("2006-01") })

	return &Trends{
		DatasetID: latest.ID,
		Trends: []Trend{
			{Type: "weekly", Data: tail(weekly, TrendWeeks)},
			{Type: "monthly", Data: tail(monthly, TrendMonths)},
		},
	}, nil
}

// Alerts reports failed jobs, deployed models with poor accuracy and
// deployed models older than StaleModelAge.
func (s *DashboardService) Alerts(ctx context.Context) ([]Alert, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	alerts := []Alert{}

	failed := 0
	for _, j := range snap.jobs {
		if j.Status == models.JobFailed {
			failed++
		}
	}
	if failed > 0 {
		alerts = append(alerts, Alert{
			Type:     "training_failed",
			Severity: "high",
			Message:  fmt.Sprintf("%d training jobs failed", failed),
			Count:    failed,
		})
	}

	var poor, stale []string
	for _, m := range snap.deployed() {
		if mape, ok := m.Metric(forecast.MetricMAPE); ok && mape > PoorMAPEThreshold {
			poor = append(poor, m.ID)
		}
		if now.Sub(m.CreatedAt) > StaleModelAge {
			stale = append(stale, m.ID)
		}
	}
	if len(poor) > 0 {
		alerts = append(alerts, Alert{
			Type:     "poor_performance",
			Severity: "medium",
			Message:  fmt.Sprintf("%d models have poor performance (MAPE > %.0f%%)", len(poor), PoorMAPEThreshold),
			Count:    len(poor),
			ModelIDs: poor,
		})
	}
	if len(stale) > 0 {
		alerts = append(alerts, Alert{
			Type:     "old_models",
			Severity: "low",
			Message:  fmt.Sprintf("%d models are older than %d days", len(stale), int(StaleModelAge.Hours()/24)),
			Count:    len(stale),
			ModelIDs: stale,
		})
	}
	return alerts, nil
}

// Summary returns counts, breakdowns and the jobs of the last week
func (s *DashboardService) Summary(ctx context.Context) (*Summary, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()

	sum := &Summary{
		TotalDatasets:      len(snap.datasets),
		TotalModels:        len(snap.models),
		TotalJobs:          len(snap.jobs),
		JobStatusBreakdown: map[models.JobStatus]int{},
		ModelTypeBreakdown: map[models.ModelType]int{},
		RecentActivity:     []JobActivity{},
	}
	for _, j := range snap.jobs {
		sum.JobStatusBreakdown[j.Status]++
		age := now.Sub(j.CreatedAt)
		if age > RecentWindow {
			continue
		}
		days := int(age.Hours() / 24)
		sum.RecentActivity = append(sum.RecentActivity, JobActivity{
			ID:        j.ID,
			Type:      "training_job",
			ModelType: j.ModelType,
			Status:    j.Status,
			CreatedAt: j.CreatedAt,
			DaysAgo:   &days,
		})
	}
	for _, m := range snap.models {
		sum.ModelTypeBreakdown[m.Type]++
	}
	sum.RecentActivityCount = len(sum.RecentActivity)
	return sum, nil
}

// Best picks the registered model with the best average value of metric
func (s *DashboardService) Best(ctx context.Context, metric string, filter repository.ModelFilter) (*BestModel, error) {
	if !validMetric(metric) {
		return nil, &models.ValidationError{Field: "metric", Value: metric, Message: "expected one of mae, rmse, mape, r2"}
	}
	list, err := s.store.ListModels(ctx, filter)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.ModelInfo, len(list))
	results := make(map[string]models.MetricMap, len(list))
	for _, m := range list {
		byID[m.ID] = m
		results[m.ID] = m.Metrics
	}
	id, value, ok := forecast.BestModel(results, metric)
	if !ok {
		return nil, &repository.NotFoundError{Resource: "model with metric", ID: metric}
	}
	m := byID[id]
	return &BestModel{Metric: metric, ModelID: id, Name: m.Name, Type: m.Type, Value: value, Status: m.Status}, nil
}

func validMetric(metric string) bool {
	for _, name := range forecast.MetricNames {
		if name == metric {
			return true
		}
	}
	return false
}

func periodTotals(points []models.WeeklyDemandPoint, period func(time.Time) string) []TrendPoint {
	totals := make(map[string]decimal.Decimal)
	for _, p := range points {
		key := period(p.Week)
		totals[key] = totals[key].Add(p.TotalQuantity)
	}
	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]TrendPoint, 0, len(keys))
	for _, k := range keys {
		out = append(out, TrendPoint{Period: k, TotalQuantity: totals[k].InexactFloat64()})
	}
	return out
}

func tail(points []TrendPoint, n int) []TrendPoint {
	if len(points) > n {
		return points[len(points)-n:]
	}
	return points
}
