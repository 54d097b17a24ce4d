package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demand-forecast/internal/models"
	"demand-forecast/internal/repository"
	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

func newJob(id string) *models.TrainingJob {
	return models.NewTrainingJob(id, "ds-1", models.ModelXGBoost, nil, 0.3, time.Now().UTC())
}

func startRunner(t *testing.T, store repository.Store, handler Handler, opts Options) *Runner {
	t.Helper()
	r := NewRunner(store, handler, opts, logging.NewNopLogger(), metrics.NewNopCollector())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r
}

func wait(t *testing.T, ch <-chan *models.TrainingJob) *models.TrainingJob {
	t.Helper()
	select {
	case job := <-ch:
		return job
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
		return nil
	}
}

func TestRunner_CompletesJob(t *testing.T) {
	store := repository.NewMemoryStore()
	r := startRunner(t, store, func(ctx context.Context, job *models.TrainingJob) (*models.JobResult, error) {
		assert.Equal(t, job.ID, logging.JobID(ctx))
		job.ModelID = "model-" + job.ID
		return &models.JobResult{TotalProductsTrained: 3, AverageMetrics: models.MetricMap{"mae": 1}}, nil
	}, Options{Workers: 2, QueueSize: 4})

	done, err := r.Submit(context.Background(), newJob("a"))
	require.NoError(t, err)

	job := wait(t, done)
	assert.Equal(t, models.JobCompleted, job.Status)
	assert.Equal(t, "model-a", job.ModelID)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)
	require.NotNil(t, job.Result)
	assert.Equal(t, 3, job.Result.TotalProductsTrained)

	stored, err := store.GetJob(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, stored.Status)
	assert.Equal(t, "model-a", stored.ModelID)

	var statuses []models.JobStatus
	for len(statuses) < 3 {
		select {
		case ev := <-r.Events():
			statuses = append(statuses, ev.Status)
		case <-time.After(time.Second):
			t.Fatal("missing events")
		}
	}
	assert.Equal(t, []models.JobStatus{models.JobPending, models.JobRunning, models.JobCompleted}, statuses)
}

func TestRunner_FailedAndPanickingJobs(t *testing.T) {
	tests := []struct {
		name    string
		handler Handler
		wantErr string
	}{
		{
			name: "error",
			handler: func(ctx context.Context, job *models.TrainingJob) (*models.JobResult, error) {
				return nil, errors.New("dataset file missing")
			},
			wantErr: "dataset file missing",
		},
		{
			name: "panic",
			handler: func(ctx context.Context, job *models.TrainingJob) (*models.JobResult, error) {
				panic("boom")
			},
			wantErr: "panic: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := repository.NewMemoryStore()
			r := startRunner(t, store, tt.handler, Options{Workers: 1, QueueSize: 1})

			done, err := r.Submit(context.Background(), newJob("j"))
			require.NoError(t, err)

			job := wait(t, done)
			assert.Equal(t, models.JobFailed, job.Status)
			assert.Contains(t, job.Error, tt.wantErr)
			assert.Nil(t, job.Result)

			stored, err := store.GetJob(context.Background(), "j")
			require.NoError(t, err)
			assert.Equal(t, models.JobFailed, stored.Status)
		})
	}
}

func TestRunner_QueueFull(t *testing.T) {
	store := repository.NewMemoryStore()
	// No workers are started, so the single slot stays occupied.
	r := NewRunner(store, func(ctx context.Context, job *models.TrainingJob) (*models.JobResult, error) {
		return &models.JobResult{}, nil
	}, Options{Workers: 1, QueueSize: 1}, logging.NewNopLogger(), metrics.NewNopCollector())

	_, err := r.Submit(context.Background(), newJob("first"))
	require.NoError(t, err)

	_, err = r.Submit(context.Background(), newJob("second"))
	assert.ErrorIs(t, err, ErrQueueFull)

	stored, err := store.GetJob(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, stored.Status)
}

func TestRunner_RejectsNonPendingAndClosed(t *testing.T) {
	r := NewRunner(repository.NewMemoryStore(), nil, Options{}, logging.NewNopLogger(), metrics.NewNopCollector())

	job := newJob("x")
	job.Status = models.JobRunning
	_, err := r.Submit(context.Background(), job)
	var transition *models.InvalidTransitionError
	assert.True(t, errors.As(err, &transition))

	r.Close()
	_, err = r.Submit(context.Background(), newJob("y"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRunner_CloseDrainsQueue(t *testing.T) {
	store := repository.NewMemoryStore()
	r := NewRunner(store, func(ctx context.Context, job *models.TrainingJob) (*models.JobResult, error) {
		return &models.JobResult{TotalProductsTrained: 1}, nil
	}, Options{Workers: 1, QueueSize: 3}, logging.NewNopLogger(), metrics.NewNopCollector())

	var results []<-chan *models.TrainingJob
	for _, id := range []string{"a", "b", "c"} {
		done, err := r.Submit(context.Background(), newJob(id))
		require.NoError(t, err)
		results = append(results, done)
	}
	r.Close()

	require.NoError(t, r.Run(context.Background()))
	for _, done := range results {
		assert.Equal(t, models.JobCompleted, wait(t, done).Status)
	}
}

func TestRunner_CancelFailsQueuedJobs(t *testing.T) {
	store := repository.NewMemoryStore()
	r := NewRunner(store, func(ctx context.Context, job *models.TrainingJob) (*models.JobResult, error) {
		t.Errorf("job %s ran after cancellation", job.ID)
		return &models.JobResult{}, nil
	}, Options{Workers: 2, QueueSize: 2}, logging.NewNopLogger(), metrics.NewNopCollector())

	var results []<-chan *models.TrainingJob
	for _, id := range []string{"a", "b"} {
		done, err := r.Submit(context.Background(), newJob(id))
		require.NoError(t, err)
		results = append(results, done)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))

	for i, id := range []string{"a", "b"} {
		job := wait(t, results[i])
		assert.Equal(t, models.JobFailed, job.Status)
		assert.Contains(t, job.Error, ErrStopped.Error())

		stored, err := store.GetJob(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.JobFailed, stored.Status)
	}

	_, err := r.Submit(context.Background(), newJob("late"))
	assert.ErrorIs(t, err, ErrClosed)
}
