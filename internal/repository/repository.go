package repository

import (
	"context"
	"fmt"

	"demand-forecast/internal/models"
)

// DatasetRepository provides access to registered datasets
type DatasetRepository interface {
	CreateDataset(ctx context.Context, d *models.DatasetInfo) error
	GetDataset(ctx context.Context, id string) (*models.DatasetInfo, error)
	ListDatasets(ctx context.Context) ([]*models.DatasetInfo, error)
	UpdateDataset(ctx context.Context, d *models.DatasetInfo) error
	DeleteDataset(ctx context.Context, id string) error
}

// JobRepository provides access to training jobs
type JobRepository interface {
	CreateJob(ctx context.Context, job *models.TrainingJob) error
	GetJob(ctx context.Context, id string) (*models.TrainingJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.TrainingJob, error)
	UpdateJob(ctx context.Context, job *models.TrainingJob) error
}

// ModelRepository provides access to trained models
type ModelRepository interface {
	CreateModel(ctx context.Context, m *models.ModelInfo) error
	GetModel(ctx context.Context, id string) (*models.ModelInfo, error)
	ListModels(ctx context.Context, filter ModelFilter) ([]*models.ModelInfo, error)
	UpdateModel(ctx context.Context, m *models.ModelInfo) error
	DeleteModel(ctx context.Context, id string) error
}

// Store bundles every registry behind one backend.
type Store interface {
	DatasetRepository
	JobRepository
	ModelRepository

	HealthCheck(ctx context.Context) error
	Close() error
}

// JobFilter narrows ListJobs. Zero fields match everything.
type JobFilter struct {
	DatasetID string
	Status    models.JobStatus
	ModelType models.ModelType
}

func (f JobFilter) matches(j *models.TrainingJob) bool {
	return (f.DatasetID == "" || j.DatasetID == f.DatasetID) &&
		(f.Status == "" || j.Status == f.Status) &&
		(f.ModelType == "" || j.ModelType == f.ModelType)
}

// ModelFilter narrows ListModels. Zero fields match everything.
type ModelFilter struct {
	DatasetID string
	Status    models.ModelStatus
	Type      models.ModelType
}

func (f ModelFilter) matches(m *models.ModelInfo) bool {
	return (f.DatasetID == "" || m.DatasetID == f.DatasetID) &&
		(f.Status == "" || m.Status == f.Status) &&
		(f.Type == "" || m.Type == f.Type)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}

// ConflictError reports a record that already exists
type ConflictError struct {
	Resource string
	ID       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Resource, e.ID)
}

func (e *ConflictError) IsTransient() bool {
	return false
}
