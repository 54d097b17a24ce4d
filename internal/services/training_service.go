package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"demand-forecast/internal/config"
	"demand-forecast/internal/forecast"
	"demand-forecast/internal/jobs"
	"demand-forecast/internal/models"
	"demand-forecast/internal/pipeline"
	"demand-forecast/internal/repository"
	"demand-forecast/internal/storage"
	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

// TrainRequest asks for a whole-dataset training run
type TrainRequest struct {
	DatasetID  string        `json:"dataset_id" validate:"required"`
	ModelType  string        `json:"model_type" validate:"required"`
	Parameters models.Params `json:"parameters"`
	TestRatio  *float64      `json:"test_ratio" validate:"omitempty,gt=0,lt=1"`
}

// RetrainRequest asks for a new run of a registered model
type RetrainRequest struct {
	Parameters models.Params `json:"parameters"`
	TestRatio  *float64      `json:"test_ratio" validate:"omitempty,gt=0,lt=1"`
}

// JobOutcome is a completed job with its results document
type JobOutcome struct {
	Job     *models.TrainingJob
	Results *forecast.Results
}

// TrainingService submits training jobs and runs them in the background:
// train every product, persist results and fitted models, register the
// model.
type TrainingService struct {
	store    repository.Store
	registry *forecast.Registry
	batch    *forecast.BatchTrainer
	layout   *storage.Layout
	cfg      config.TrainingConfig
	runner   *jobs.Runner
	logger   logging.Logger
	metrics  *metrics.Collector
	now      func() time.Time
}

// NewTrainingService creates a new training service together with its
// job runner. Start the runner with Runner().Run.
func NewTrainingService(
	store repository.Store,
	registry *forecast.Registry,
	layout *storage.Layout,
	cfg config.TrainingConfig,
	logger logging.Logger,
	metricsCollector *metrics.Collector,
) *TrainingService {
	s := &TrainingService{
		store:    store,
		registry: registry,
		batch:    forecast.NewBatchTrainer(logger, metricsCollector),
		layout:   layout,
		cfg:      cfg,
		logger:   logger,
		metrics:  metricsCollector,
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.runner = jobs.NewRunner(store, s.execute, jobs.Options{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
	}, logger, metricsCollector)
	return s
}

// Runner returns the background job runner
func (s *TrainingService) Runner() *jobs.Runner {
	return s.runner
}

// Submit validates req and queues a pending job. The channel receives the
// job when it finishes.
func (s *TrainingService) Submit(ctx context.Context, req TrainRequest) (*models.TrainingJob, <-chan *models.TrainingJob, error) {
	modelType, err := models.ParseModelType(req.ModelType)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.store.GetDataset(ctx, req.DatasetID); err != nil {
		return nil, nil, err
	}
	return s.submit(ctx, req.DatasetID, modelType, req.Parameters, req.TestRatio, "")
}

// Retrain queues a new job on the model's dataset. Once the new job
// registers a replacement, the model is marked retrained; a deployed model
// hands its deployment to the replacement.
func (s *TrainingService) Retrain(ctx context.Context, modelID string, req RetrainRequest) (*models.TrainingJob, <-chan *models.TrainingJob, error) {
	m, err := s.store.GetModel(ctx, modelID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.store.GetDataset(ctx, m.DatasetID); err != nil {
		return nil, nil, err
	}
	params := req.Parameters
	if params == nil {
		params = m.Parameters
	}
	return s.submit(ctx, m.DatasetID, m.Type, params, req.TestRatio, modelID)
}

func (s *TrainingService) submit(ctx context.Context, datasetID string, modelType models.ModelType, params models.Params, ratio *float64, retrainOf string) (*models.TrainingJob, <-chan *models.TrainingJob, error) {
	testRatio := s.cfg.DefaultTestRatio
	if ratio != nil {
		testRatio = *ratio
	}
	if err := pipeline.ValidateTestRatio(testRatio); err != nil {
		return nil, nil, err
	}
	// Parameters are checked now so bad input fails the request, not the job.
	if _, err := s.registry.Trainer(modelType, params); err != nil {
		return nil, nil, err
	}

	job := models.NewTrainingJob(uuid.NewString(), datasetID, modelType, params, testRatio, s.now())
	job.RetrainOf = retrainOf

	done, err := s.runner.Submit(ctx, job)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info(ctx, "[TRAIN_SUBMIT] Training job submitted", logging.Fields{
		"job_id":     job.ID,
		"dataset_id": datasetID,
		"model_type": modelType,
		"test_ratio": testRatio,
		"retrain_of": retrainOf,
	})
	return job, done, nil
}

// ListJobs returns jobs matching filter
func (s *TrainingService) ListJobs(ctx context.Context, filter repository.JobFilter) ([]*models.TrainingJob, error) {
	return s.store.ListJobs(ctx, filter)
}

// GetJob returns one job
func (s *TrainingService) GetJob(ctx context.Context, id string) (*models.TrainingJob, error) {
	return s.store.GetJob(ctx, id)
}

// Result returns a completed job and its results document. Jobs that have
// not completed are rejected.
func (s *TrainingService) Result(ctx context.Context, id string) (*JobOutcome, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobCompleted || job.Result == nil {
		return nil, &models.ValidationError{Field: "status", Value: string(job.Status), Message: "job not completed yet"}
	}

	outcome := &JobOutcome{Job: job}
	if job.Result.ResultsFile != "" {
		res, err := forecast.LoadResults(job.Result.ResultsFile)
		switch {
		case err == nil:
			outcome.Results = res
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}
	return outcome, nil
}

// execute is the job handler run by the runner.
func (s *TrainingService) execute(ctx context.Context, job *models.TrainingJob) (*models.JobResult, error) {
	logger := logging.WithFields(s.logger, logging.Fields{
		"job_id":     job.ID,
		"model_type": job.ModelType,
	})

	dataset, err := s.store.GetDataset(ctx, job.DatasetID)
	if err != nil {
		return nil, err
	}
	trainer, err := s.registry.Trainer(job.ModelType, job.Parameters)
	if err != nil {
		return nil, err
	}

	opts := forecast.BatchOptions{TestRatio: job.TestRatio, Refit: true}
	if s.cfg.RenderPlots {
		opts.PlotDir = s.layout.PlotsDir()
		opts.PlotName = fmt.Sprintf("%s_%s", job.ModelType, job.ID)
	}

	batch, err := s.batch.TrainFile(ctx, trainer, dataset.ProcessedFile, opts)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := &models.JobResult{
		AverageMetrics:       batch.Average,
		TotalProductsTrained: batch.TotalProductsTrained,
		ProductsSkipped:      len(batch.Skipped),
		ProductsFailed:       len(batch.Failed),
		PlotFile:             batch.PlotFile,
	}

	resultsFile := s.layout.ResultsFile(job.ModelType, job.ID)
	if err := forecast.SaveResults(resultsFile, batch.Results(now)); err != nil {
		return nil, &models.ProcessingError{Op: "save results", Err: err}
	}
	result.ResultsFile = resultsFile

	if batch.TotalProductsTrained == 0 {
		logger.Warn(ctx, "[TRAIN_NO_PRODUCTS] No product could be trained; no model registered", logging.Fields{
			"skipped": len(batch.Skipped),
			"failed":  len(batch.Failed),
		})
		return result, nil
	}

	bundle, err := forecast.NewBundle(job.ModelType, job.ID, batch.Models, now)
	if err != nil {
		return nil, &models.ProcessingError{Op: "bundle models", Err: err}
	}
	modelFile := s.layout.ModelFile(job.ModelType, job.ID)
	if err := forecast.SaveBundle(modelFile, bundle); err != nil {
		return nil, &models.ProcessingError{Op: "save models", Err: err}
	}
	result.ModelFile = modelFile

	m := &models.ModelInfo{
		ID:            uuid.NewString(),
		Name:          fmt.Sprintf("%s_%s", job.ModelType, now.Format("20060102_150405")),
		Type:          job.ModelType,
		DatasetID:     job.DatasetID,
		JobID:         job.ID,
		Status:        models.ModelReady,
		Metrics:       batch.Average,
		TotalProducts: batch.TotalProductsTrained,
		Parameters:    job.Parameters,
		Tags:          models.StringList{},
		ResultsFile:   resultsFile,
		ModelFile:     modelFile,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// A retrain of a serving model takes over its deployment.
	var prev *models.ModelInfo
	if job.RetrainOf != "" {
		if prev, err = s.store.GetModel(ctx, job.RetrainOf); err != nil {
			logger.Warn(ctx, "[MODEL_RETRAIN_SOURCE_MISSING] Retrained model source not found", logging.Fields{
				"model_id": job.RetrainOf,
				"error":    err.Error(),
			})
			prev = nil
		} else if prev.Status == models.ModelDeployed {
			m.Deploy(now)
		}
	}

	if err := s.store.CreateModel(ctx, m); err != nil {
		return nil, err
	}
	job.ModelID = m.ID

	logger.Info(ctx, "[MODEL_REGISTERED] Trained model registered", logging.Fields{
		"model_id":       m.ID,
		"total_products": m.TotalProducts,
		"metrics":        m.Metrics,
	})

	if prev != nil {
		s.retire(ctx, logger, prev, m, now)
	}
	return result, nil
}

func (s *TrainingService) retire(ctx context.Context, logger logging.Logger, prev, replacement *models.ModelInfo, now time.Time) {
	wasDeployed := prev.Status == models.ModelDeployed
	prev.Retire(now)
	if err := s.store.UpdateModel(ctx, prev); err != nil {
		logger.Error(ctx, "[MODEL_RETRAIN_MARK_ERROR] Could not mark model as retrained", logging.Fields{
			"model_id": prev.ID,
		}, err)
		return
	}
	logger.Info(ctx, "[MODEL_RETRAINED] Model superseded by retrained model", logging.Fields{
		"model_id":       prev.ID,
		"replacement_id": replacement.ID,
		"was_deployed":   wasDeployed,
	})
}
