package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demand-forecast/internal/config"
	"demand-forecast/internal/models"
	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := Open(context.Background(), config.DatabaseConfig{
		Driver:   "sqlite3",
		Database: filepath.Join(t.TempDir(), "registry.db"),
	}, logging.NewNopLogger(), metrics.NewNopCollector())
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	memory, err := Open(context.Background(), config.DatabaseConfig{Driver: DriverMemory}, logging.NewNopLogger(), metrics.NewNopCollector())
	require.NoError(t, err)

	return map[string]Store{"memory": memory, "sqlite": sqlite}
}

func isNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func TestStore_Datasets(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			d := &models.DatasetInfo{
				ID:            "ds-2",
				Name:          "Sales 2024",
				Tags:          models.StringList{"north", "bricks"},
				Filename:      "sales.xlsx",
				FilePath:      "storage/datasets/ds-2_sales.xlsx",
				ProcessedFile: "storage/processed/ds-2_processed.csv",
				UploadedAt:    base.Add(time.Hour),
				UpdatedAt:     base.Add(time.Hour),
				Stats:         models.DatasetStats{TotalProducts: 3, TotalWeeks: 10, TotalRecords: 30, MinWeek: "2024-01-01", MaxWeek: "2024-03-04"},
				Report:        models.ProcessingReport{RowsRead: 100, CanonicalRows: 90, WeeklyRows: 30},
			}
			older := &models.DatasetInfo{ID: "ds-1", Name: "Old", Filename: "old.csv", FilePath: "old.csv", UploadedAt: base, UpdatedAt: base}

			require.NoError(t, store.CreateDataset(ctx, d))
			require.NoError(t, store.CreateDataset(ctx, older))

			var conflict *ConflictError
			assert.True(t, errors.As(store.CreateDataset(ctx, d), &conflict))

			got, err := store.GetDataset(ctx, "ds-2")
			require.NoError(t, err)
			assert.Equal(t, d.Name, got.Name)
			assert.Equal(t, d.Tags, got.Tags)
			assert.Equal(t, d.Stats, got.Stats)
			assert.Equal(t, d.Report, got.Report)
			assert.True(t, d.UploadedAt.Equal(got.UploadedAt))

			list, err := store.ListDatasets(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "ds-1", list[0].ID)

			desc := "weekly brick sales"
			models.DatasetUpdate{Description: &desc, Tags: []string{"south"}}.Apply(got, base.Add(2*time.Hour))
			require.NoError(t, store.UpdateDataset(ctx, got))
			updated, err := store.GetDataset(ctx, "ds-2")
			require.NoError(t, err)
			assert.Equal(t, desc, updated.Description)
			assert.Equal(t, models.StringList{"south"}, updated.Tags)

			require.NoError(t, store.DeleteDataset(ctx, "ds-2"))
			_, err = store.GetDataset(ctx, "ds-2")
			assert.True(t, isNotFound(err))
			assert.True(t, isNotFound(store.DeleteDataset(ctx, "ds-2")))
			assert.True(t, isNotFound(store.UpdateDataset(ctx, d)))
		})
	}
}

func TestStore_Jobs(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := models.NewTrainingJob("job-a", "ds-1", models.ModelXGBoost, models.Params{"max_depth": 4.0}, 0.3, base)
			b := models.NewTrainingJob("job-b", "ds-2", models.ModelProphet, nil, 0.2, base.Add(time.Minute))
			require.NoError(t, store.CreateJob(ctx, a))
			require.NoError(t, store.CreateJob(ctx, b))

			got, err := store.GetJob(ctx, "job-a")
			require.NoError(t, err)
			assert.Equal(t, models.JobPending, got.Status)
			assert.Equal(t, models.Params{"max_depth": 4.0}, got.Parameters)
			assert.Nil(t, got.StartedAt)
			assert.Nil(t, got.Result)

			require.NoError(t, got.Transition(models.JobRunning, base.Add(2*time.Minute)))
			require.NoError(t, store.UpdateJob(ctx, got))
			require.NoError(t, got.Complete(&models.JobResult{
				AverageMetrics:       models.MetricMap{"mae": 1.5},
				TotalProductsTrained: 4,
				ResultsFile:          "storage/results/job-a.json",
			}, base.Add(3*time.Minute)))
			got.ModelID = "model-1"
			require.NoError(t, store.UpdateJob(ctx, got))

			done, err := store.GetJob(ctx, "job-a")
			require.NoError(t, err)
			assert.Equal(t, models.JobCompleted, done.Status)
			require.NotNil(t, done.StartedAt)
			require.NotNil(t, done.CompletedAt)
			assert.True(t, done.CompletedAt.Equal(base.Add(3*time.Minute)))
			require.NotNil(t, done.Result)
			assert.Equal(t, 4, done.Result.TotalProductsTrained)
			assert.Equal(t, "model-1", done.ModelID)

			all, err := store.ListJobs(ctx, JobFilter{})
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "job-a", all[0].ID)

			prophet, err := store.ListJobs(ctx, JobFilter{ModelType: models.ModelProphet})
			require.NoError(t, err)
			require.Len(t, prophet, 1)
			assert.Equal(t, "job-b", prophet[0].ID)

			completed, err := store.ListJobs(ctx, JobFilter{Status: models.JobCompleted, DatasetID: "ds-1"})
			require.NoError(t, err)
			assert.Len(t, completed, 1)

			_, err = store.GetJob(ctx, "missing")
			assert.True(t, isNotFound(err))
		})
	}
}

func TestStore_Models(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := &models.ModelInfo{
				ID:            "model-1",
				Name:          "xgboost_20240301",
				Type:          models.ModelXGBoost,
				DatasetID:     "ds-1",
				JobID:         "job-a",
				Status:        models.ModelReady,
				Metrics:       models.MetricMap{"mae": 2.5, "r2": 0.8},
				TotalProducts: 12,
				Parameters:    models.Params{},
				Tags:          models.StringList{},
				ModelFile:     "storage/models/job-a.json",
				CreatedAt:     base,
				UpdatedAt:     base,
			}
			require.NoError(t, store.CreateModel(ctx, m))

			got, err := store.GetModel(ctx, "model-1")
			require.NoError(t, err)
			assert.Equal(t, m.Metrics, got.Metrics)
			assert.Equal(t, 12, got.TotalProducts)
			assert.Nil(t, got.DeployedAt)

			got.Deploy(base.Add(time.Hour))
			require.NoError(t, store.UpdateModel(ctx, got))

			deployed, err := store.ListModels(ctx, ModelFilter{Status: models.ModelDeployed})
			require.NoError(t, err)
			require.Len(t, deployed, 1)
			require.NotNil(t, deployed[0].DeployedAt)
			assert.True(t, deployed[0].DeployedAt.Equal(base.Add(time.Hour)))

			ready, err := store.ListModels(ctx, ModelFilter{Status: models.ModelReady})
			require.NoError(t, err)
			assert.Empty(t, ready)

			require.NoError(t, store.DeleteModel(ctx, "model-1"))
			assert.True(t, isNotFound(store.DeleteModel(ctx, "model-1")))
			assert.NoError(t, store.HealthCheck(ctx))
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	m := &models.ModelInfo{ID: "m", Metrics: models.MetricMap{"mae": 1}, Tags: models.StringList{"a"}, CreatedAt: base}
	require.NoError(t, store.CreateModel(ctx, m))
	m.Metrics["mae"] = 99
	m.Tags[0] = "changed"

	got, err := store.GetModel(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Metrics["mae"])
	assert.Equal(t, "a", got.Tags[0])

	got.Metrics["mae"] = 50
	again, err := store.GetModel(ctx, "m")
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.Metrics["mae"])
}
