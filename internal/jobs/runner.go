package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"demand-forecast/internal/models"
	"demand-forecast/internal/repository"
	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("training queue is full")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("job runner is closed")
	// ErrStopped fails jobs still queued when Run returns.
	ErrStopped = errors.New("job runner stopped before the job started")
)

// Handler performs the work of one running job. Fields it sets on job,
// such as ModelID, are persisted with the terminal status.
type Handler func(ctx context.Context, job *models.TrainingJob) (*models.JobResult, error)

// Event is one observed job status transition.
type Event struct {
	JobID     string           `json:"job_id"`
	ModelType models.ModelType `json:"model_type"`
	Status    models.JobStatus `json:"status"`
	At        time.Time        `json:"at"`
	Error     string           `json:"error,omitempty"`
}

// Options sizes the runner.
type Options struct {
	Workers     int
	QueueSize   int
	EventBuffer int
}

type task struct {
	job  *models.TrainingJob
	done chan *models.TrainingJob
}

// Runner executes training jobs on a bounded worker pool. Each job runs
// on a single worker from start to finish.
type Runner struct {
	jobs    repository.JobRepository
	handler Handler
	logger  logging.Logger
	metrics *metrics.Collector
	workers int
	now     func() time.Time

	queue  chan *task
	events chan Event

	mu     sync.RWMutex
	closed bool
}

// NewRunner creates a runner. Jobs are picked up once Run is called.
func NewRunner(jobs repository.JobRepository, handler Handler, opts Options, logger logging.Logger, m *metrics.Collector) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.EventBuffer < 1 {
		opts.EventBuffer = 64
	}
	return &Runner{
		jobs:    jobs,
		handler: handler,
		logger:  logger,
		metrics: m,
		workers: opts.Workers,
		now:     func() time.Time { return time.Now().UTC() },
		queue:   make(chan *task, opts.QueueSize),
		events:  make(chan Event, opts.EventBuffer),
	}
}

// Events delivers status transitions. Events are dropped while the buffer
// is full.
func (r *Runner) Events() <-chan Event {
	return r.events
}

// Submit records job as pending and queues it. The returned channel
// receives the job once it reaches a terminal status.
func (r *Runner) Submit(ctx context.Context, job *models.TrainingJob) (<-chan *models.TrainingJob, error) {
	if job.Status != models.JobPending {
		return nil, &models.InvalidTransitionError{From: job.Status, To: models.JobRunning}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}

	if err := r.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	r.publish(job)

	t := &task{job: job.Clone(), done: make(chan *models.TrainingJob, 1)}
	select {
	case r.queue <- t:
	default:
		r.finish(ctx, t, nil, ErrQueueFull)
		return nil, ErrQueueFull
	}

	r.logger.Info(ctx, "[JOB_QUEUED] Training job queued", logging.Fields{
		"job_id":     job.ID,
		"dataset_id": job.DatasetID,
		"model_type": job.ModelType,
		"queued":     len(r.queue),
	})
	return t.done, nil
}

// Run starts the workers and blocks until ctx is cancelled or Close has
// been called and the queue is drained. Once Run returns the runner is
// closed, and jobs that never left the queue are recorded as failed.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info(ctx, "[JOB_RUNNER_START] Starting training workers", logging.Fields{
		"workers":    r.workers,
		"queue_size": cap(r.queue),
	})

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.workers; i++ {
		worker := i
		g.Go(func() error {
			r.work(gctx, worker)
			return nil
		})
	}
	err := g.Wait()

	r.Close()
	abandoned := 0
	for t := range r.queue {
		r.finish(ctx, t, nil, ErrStopped)
		abandoned++
	}

	r.logger.Info(context.Background(), "[JOB_RUNNER_STOP] Training workers stopped", logging.Fields{
		"abandoned": abandoned,
	})
	return err
}

// Close stops accepting jobs. Queued jobs still run.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
}

func (r *Runner) work(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case t, ok := <-r.queue:
			if !ok {
				return
			}
			r.execute(ctx, t, worker)
		}
	}
}

func (r *Runner) execute(ctx context.Context, t *task, worker int) {
	job := t.job
	ctx = logging.WithJobID(ctx, job.ID)

	if err := job.Transition(models.JobRunning, r.now()); err != nil {
		r.finish(ctx, t, nil, err)
		return
	}
	if err := r.jobs.UpdateJob(ctx, job); err != nil {
		r.logger.Error(ctx, "[JOB_UPDATE_ERROR] Could not record running status", logging.Fields{
			"job_id": job.ID,
		}, err)
	}
	r.publish(job)

	r.metrics.ActiveJobs.Inc()
	defer r.metrics.ActiveJobs.Dec()

	r.logger.Info(ctx, "[JOB_START] Training job started", logging.Fields{
		"job_id":     job.ID,
		"model_type": job.ModelType,
		"worker":     worker,
	})

	start := time.Now()
	result, err := r.run(ctx, job)
	r.metrics.TrainingJobDuration.WithLabelValues(string(job.ModelType)).Observe(time.Since(start).Seconds())

	r.finish(ctx, t, result, err)
}

// run calls the handler, turning a panic into a job failure.
func (r *Runner) run(ctx context.Context, job *models.TrainingJob) (result *models.JobResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &models.ProcessingError{Op: "training job", Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	return r.handler(ctx, job)
}

// finish moves the job to its terminal status, stores it and delivers it.
func (r *Runner) finish(ctx context.Context, t *task, result *models.JobResult, cause error) {
	job := t.job
	ctx = context.WithoutCancel(ctx)

	var terr error
	switch {
	case cause != nil && job.Status == models.JobPending:
		terr = job.Abandon(cause, r.now())
	case cause != nil:
		terr = job.Fail(cause, r.now())
	default:
		if result == nil {
			result = &models.JobResult{}
		}
		terr = job.Complete(result, r.now())
	}
	if terr != nil {
		r.logger.Error(ctx, "[JOB_TRANSITION_ERROR] Invalid job transition", logging.Fields{
			"job_id": job.ID,
			"status": job.Status,
		}, terr)
	}

	if err := r.jobs.UpdateJob(ctx, job); err != nil {
		r.logger.Error(ctx, "[JOB_UPDATE_ERROR] Could not record terminal status", logging.Fields{
			"job_id": job.ID,
			"status": job.Status,
		}, err)
	}
	r.publish(job)

	if cause != nil {
		r.logger.Error(ctx, "[JOB_FAILED] Training job failed", logging.Fields{
			"job_id":     job.ID,
			"model_type": job.ModelType,
		}, cause)
	} else {
		r.logger.Info(ctx, "[JOB_COMPLETE] Training job completed", logging.Fields{
			"job_id":         job.ID,
			"model_type":     job.ModelType,
			"total_products": result.TotalProductsTrained,
		})
	}

	t.done <- job.Clone()
	close(t.done)
}

func (r *Runner) publish(job *models.TrainingJob) {
	r.metrics.RecordJobStatus(string(job.ModelType), string(job.Status))

	ev := Event{JobID: job.ID, ModelType: job.ModelType, Status: job.Status, At: r.now(), Error: job.Error}
	select {
	case r.events <- ev:
	default:
		r.logger.Warn(context.Background(), "[JOB_EVENT_DROPPED] Event buffer full", logging.Fields{
			"job_id": job.ID,
			"status": job.Status,
		})
	}
}
