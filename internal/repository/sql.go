package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"demand-forecast/internal/models"
	"demand-forecast/pkg/database"
	"demand-forecast/pkg/logging"
)

const datasetColumns = `id, name, description, tags, filename, file_path, processed_file,
	uploaded_at, updated_at, stats, report`

const jobColumns = `id, dataset_id, model_type, status, parameters, test_ratio, created_at,
	started_at, completed_at, result, error, model_id, retrain_of`

const modelColumns = `id, name, type, dataset_id, job_id, status, metrics, total_products,
	parameters, tags, description, results_file, model_file, created_at, updated_at, deployed_at`

// sqlStore implements Store on top of pkg/database. Queries use '?'
// placeholders and are rebound for the configured driver.
type sqlStore struct {
	db     *database.DB
	logger logging.Logger
}

// NewSQLStore creates a store backed by db. The schema in migrations/
// must already be applied.
func NewSQLStore(db *database.DB, logger logging.Logger) Store {
	return &sqlStore{db: db, logger: logger}
}

// CreateDataset registers a new dataset
func (r *sqlStore) CreateDataset(ctx context.Context, d *models.DatasetInfo) error {
	query := `
		INSERT INTO datasets (` + datasetColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, "insert_dataset", query,
		d.ID, d.Name, d.Description, d.Tags, d.Filename, d.FilePath, d.ProcessedFile,
		d.UploadedAt, d.UpdatedAt, d.Stats, d.Report,
	)
	if err != nil {
		return r.insertError("dataset", d.ID, err)
	}

	r.logger.Debug(ctx, "[REPO_CREATE_DATASET] Dataset registered", logging.Fields{
		"dataset_id": d.ID,
		"name":       d.Name,
	})
	return nil
}

// GetDataset retrieves a dataset by ID
func (r *sqlStore) GetDataset(ctx context.Context, id string) (*models.DatasetInfo, error) {
	query := `SELECT ` + datasetColumns + ` FROM datasets WHERE id = ?`

	var d models.DatasetInfo
	err := r.db.GetContext(ctx, "get_dataset", &d, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: "dataset", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return &d, nil
}

// ListDatasets returns every dataset, oldest upload first
func (r *sqlStore) ListDatasets(ctx context.Context) ([]*models.DatasetInfo, error) {
	query := `SELECT ` + datasetColumns + ` FROM datasets ORDER BY uploaded_at, id`

	datasets := []*models.DatasetInfo{}
	if err := r.db.SelectContext(ctx, "list_datasets", &datasets, query); err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	return datasets, nil
}

// UpdateDataset overwrites a dataset's mutable fields
func (r *sqlStore) UpdateDataset(ctx context.Context, d *models.DatasetInfo) error {
	query := `
		UPDATE datasets
		SET name = ?, description = ?, tags = ?, processed_file = ?, updated_at = ?, stats = ?, report = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, "update_dataset", query,
		d.Name, d.Description, d.Tags, d.ProcessedFile, d.UpdatedAt, d.Stats, d.Report, d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update dataset: %w", err)
	}
	return requireRow(result, "dataset", d.ID)
}

// DeleteDataset removes a dataset record
func (r *sqlStore) DeleteDataset(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "delete_dataset", `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	return requireRow(result, "dataset", id)
}

// CreateJob records a submitted training job
func (r *sqlStore) CreateJob(ctx context.Context, job *models.TrainingJob) error {
	query := `
		INSERT INTO training_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, "insert_job", query,
		job.ID, job.DatasetID, job.ModelType, job.Status, job.Parameters, job.TestRatio, job.CreatedAt,
		job.StartedAt, job.CompletedAt, job.Result, job.Error, job.ModelID, job.RetrainOf,
	)
	if err != nil {
		return r.insertError("training_job", job.ID, err)
	}

	r.logger.Debug(ctx, "[REPO_CREATE_JOB] Training job recorded", logging.Fields{
		"job_id":     job.ID,
		"dataset_id": job.DatasetID,
		"model_type": job.ModelType,
	})
	return nil
}

// GetJob retrieves a training job by ID
func (r *sqlStore) GetJob(ctx context.Context, id string) (*models.TrainingJob, error) {
	query := `SELECT ` + jobColumns + ` FROM training_jobs WHERE id = ?`

	var job models.TrainingJob
	err := r.db.GetContext(ctx, "get_job", &job, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: "training_job", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get training job: %w", err)
	}
	return &job, nil
}

// ListJobs returns jobs matching filter, oldest first
func (r *sqlStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.TrainingJob, error) {
	var conditions []string
	var args []interface{}
	if filter.DatasetID != "" {
		conditions = append(conditions, "dataset_id = ?")
		args = append(args, filter.DatasetID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.ModelType != "" {
		conditions = append(conditions, "model_type = ?")
		args = append(args, filter.ModelType)
	}

	query := `SELECT ` + jobColumns + ` FROM training_jobs` + where(conditions) + ` ORDER BY created_at, id`

	jobs := []*models.TrainingJob{}
	if err := r.db.SelectContext(ctx, "list_jobs", &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list training jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJob stores a job's status, timestamps and outcome
func (r *sqlStore) UpdateJob(ctx context.Context, job *models.TrainingJob) error {
	query := `
		UPDATE training_jobs
		SET status = ?, started_at = ?, completed_at = ?, result = ?, error = ?, model_id = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, "update_job", query,
		job.Status, job.StartedAt, job.CompletedAt, job.Result, job.Error, job.ModelID, job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update training job: %w", err)
	}
	return requireRow(result, "training_job", job.ID)
}

// CreateModel registers a trained model
func (r *sqlStore) CreateModel(ctx context.Context, m *models.ModelInfo) error {
	query := `
		INSERT INTO trained_models (` + modelColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, "insert_model", query,
		m.ID, m.Name, m.Type, m.DatasetID, m.JobID, m.Status, m.Metrics, m.TotalProducts,
		m.Parameters, m.Tags, m.Description, m.ResultsFile, m.ModelFile, m.CreatedAt, m.UpdatedAt, m.DeployedAt,
	)
	if err != nil {
		return r.insertError("model", m.ID, err)
	}

	r.logger.Debug(ctx, "[REPO_CREATE_MODEL] Model registered", logging.Fields{
		"model_id": m.ID,
		"job_id":   m.JobID,
		"type":     m.Type,
	})
	return nil
}

// GetModel retrieves a model by ID
func (r *sqlStore) GetModel(ctx context.Context, id string) (*models.ModelInfo, error) {
	query := `SELECT ` + modelColumns + ` FROM trained_models WHERE id = ?`

	var m models.ModelInfo
	err := r.db.GetContext(ctx, "get_model", &m, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: "model", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	return &m, nil
}

// ListModels returns models matching filter, oldest first
func (r *sqlStore) ListModels(ctx context.Context, filter ModelFilter) ([]*models.ModelInfo, error) {
	var conditions []string
	var args []interface{}
	if filter.DatasetID != "" {
		conditions = append(conditions, "dataset_id = ?")
		args = append(args, filter.DatasetID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, filter.Type)
	}

	query := `SELECT ` + modelColumns + ` FROM trained_models` + where(conditions) + ` ORDER BY created_at, id`

	list := []*models.ModelInfo{}
	if err := r.db.SelectContext(ctx, "list_models", &list, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return list, nil
}

// UpdateModel overwrites a model's mutable fields
func (r *sqlStore) UpdateModel(ctx context.Context, m *models.ModelInfo) error {
	query := `
		UPDATE trained_models
		SET name = ?, status = ?, metrics = ?, total_products = ?, parameters = ?, tags = ?,
			description = ?, updated_at = ?, deployed_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, "update_model", query,
		m.Name, m.Status, m.Metrics, m.TotalProducts, m.Parameters, m.Tags,
		m.Description, m.UpdatedAt, m.DeployedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update model: %w", err)
	}
	return requireRow(result, "model", m.ID)
}

// DeleteModel removes a model record
func (r *sqlStore) DeleteModel(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "delete_model", `DELETE FROM trained_models WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	return requireRow(result, "model", id)
}

// HealthCheck pings the database
func (r *sqlStore) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// Close closes the database connection
func (r *sqlStore) Close() error {
	return r.db.Close()
}

// insertError maps unique violations on the primary key to ConflictError.
func (r *sqlStore) insertError(resource, id string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key") {
		return &ConflictError{Resource: resource, ID: id}
	}
	return fmt.Errorf("failed to create %s: %w", resource, err)
}

func requireRow(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return &NotFoundError{Resource: resource, ID: id}
	}
	return nil
}

func where(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}
