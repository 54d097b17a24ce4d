package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"demand-forecast/internal/config"
	"demand-forecast/internal/forecast"
	"demand-forecast/internal/models"
	"demand-forecast/internal/pipeline"
	"demand-forecast/internal/repository"
	"demand-forecast/internal/storage"
	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

// DatasetService handles raw sales uploads and their weekly demand tables
type DatasetService struct {
	repo     repository.DatasetRepository
	layout   *storage.Layout
	training config.TrainingConfig
	logger   logging.Logger
	metrics  *metrics.Collector
	now      func() time.Time
}

// UploadRequest is a raw sales file with its metadata
type UploadRequest struct {
	Name        string
	Description string
	Tags        []string
	Filename    string
	Content     io.Reader
}

// NewDatasetService creates a new dataset service
func NewDatasetService(
	repo repository.DatasetRepository,
	layout *storage.Layout,
	training config.TrainingConfig,
	logger logging.Logger,
	metricsCollector *metrics.Collector,
) *DatasetService {
	return &DatasetService{
		repo:     repo,
		layout:   layout,
		training: training,
		logger:   logger,
		metrics:  metricsCollector,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ProcessFile cleans and aggregates a raw sales file
func (s *DatasetService) ProcessFile(ctx context.Context, path string) (*pipeline.Processed, error) {
	timer := s.metrics.NewTimer(s.metrics.DatasetProcessDuration)
	defer timer.ObserveDuration()

	s.logger.Info(ctx, "[DATASET_PROCESS_START] Processing raw sales file", logging.Fields{
		"file_path": path,
		"stage":     "READ",
	})

	table, err := pipeline.ReadRawFile(path)
	if err != nil {
		s.metrics.RecordDatasetError("format_error")
		return nil, err
	}

	processed, err := pipeline.Process(table)
	if err != nil {
		s.metrics.RecordDatasetError(errorType(err))
		return nil, err
	}

	report := processed.Report
	s.metrics.RecordDatasetRows("read", report.RowsRead)
	s.metrics.RecordDatasetRows("dropped_null", report.DroppedNull)
	s.metrics.RecordDatasetRows("dropped_filter", report.DroppedFilter)
	s.metrics.RecordDatasetRows("dropped_non_positive", report.DroppedNonPositive)
	s.metrics.RecordDatasetRows("dropped_bad_date", report.DroppedBadDate)
	s.metrics.RecordDatasetRows("kept", report.CanonicalRows)
	s.metrics.DatasetProductsExcluded.Add(float64(report.ProductsExcluded))

	if report.DroppedBadDate > 0 {
		s.logger.Warn(ctx, "[DATASET_BAD_DATES] Dropped rows with unparseable DocDate", logging.Fields{
			"file_path": path,
			"dropped":   report.DroppedBadDate,
		})
	}

	s.logger.Info(ctx, "[DATASET_PROCESS_COMPLETE] Raw sales file processed", logging.Fields{
		"file_path":         path,
		"rows_read":         report.RowsRead,
		"canonical_rows":    report.CanonicalRows,
		"products_kept":     report.ProductsKept,
		"products_excluded": report.ProductsExcluded,
		"weekly_rows":       report.WeeklyRows,
		"stage":             "COMPLETE",
	})

	return processed, nil
}

// Upload stores, processes and registers a raw sales file. Nothing is kept
// when processing fails.
func (s *DatasetService) Upload(ctx context.Context, req UploadRequest) (*models.DatasetInfo, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, &models.ValidationError{Field: "name", Message: "name is required"}
	}

	id := uuid.NewString()
	path, size, err := s.layout.SaveUpload(id, req.Filename, req.Content)
	if errors.Is(err, storage.ErrTooLarge) {
		return nil, &models.ValidationError{Field: "file", Value: req.Filename, Message: err.Error()}
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "[DATASET_UPLOAD] Raw file stored", logging.Fields{
		"dataset_id": id,
		"filename":   req.Filename,
		"size_bytes": size,
	})

	processed, err := s.ProcessFile(ctx, path)
	if err != nil {
		storage.Remove(path)
		return nil, err
	}

	processedFile := s.layout.ProcessedFile(id)
	if err := pipeline.SaveWeeklyCSV(processedFile, processed.Weekly.Points); err != nil {
		storage.Remove(path)
		return nil, &models.ProcessingError{Op: "save weekly table", Err: err}
	}

	now := s.now()
	info := &models.DatasetInfo{
		ID:            id,
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		Tags:          models.StringList(cleanTags(req.Tags)),
		Filename:      req.Filename,
		FilePath:      path,
		ProcessedFile: processedFile,
		UploadedAt:    now,
		UpdatedAt:     now,
		Stats:         processed.Weekly.Stats,
		Report:        processed.Report,
	}

	if err := s.repo.CreateDataset(ctx, info); err != nil {
		storage.Remove(path, processedFile)
		return nil, err
	}

	return info, nil
}

// List returns every registered dataset
func (s *DatasetService) List(ctx context.Context) ([]*models.DatasetInfo, error) {
	return s.repo.ListDatasets(ctx)
}

// Get returns one dataset
func (s *DatasetService) Get(ctx context.Context, id string) (*models.DatasetInfo, error) {
	return s.repo.GetDataset(ctx, id)
}

// Update applies metadata changes
func (s *DatasetService) Update(ctx context.Context, id string, u models.DatasetUpdate) (*models.DatasetInfo, error) {
	d, err := s.repo.GetDataset(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Tags != nil {
		u.Tags = cleanTags(u.Tags)
	}
	u.Apply(d, s.now())
	if err := s.repo.UpdateDataset(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Delete removes the dataset record with its raw and processed files
func (s *DatasetService) Delete(ctx context.Context, id string) error {
	d, err := s.repo.GetDataset(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteDataset(ctx, id); err != nil {
		return err
	}
	if err := storage.Remove(d.FilePath, d.ProcessedFile); err != nil {
		s.logger.Warn(ctx, "[DATASET_DELETE_FILES] Could not remove dataset files", logging.Fields{
			"dataset_id": id,
			"error":      err.Error(),
		})
	}
	return nil
}

// RawFile returns the stored upload path and its original file name
func (s *DatasetService) RawFile(ctx context.Context, id string) (string, string, error) {
	d, err := s.repo.GetDataset(ctx, id)
	if err != nil {
		return "", "", err
	}
	if !storage.Exists(d.FilePath) {
		return "", "", &repository.NotFoundError{Resource: "dataset file", ID: id}
	}
	return d.FilePath, d.Filename, nil
}

// Weekly loads the weekly demand table of a dataset
func (s *DatasetService) Weekly(ctx context.Context, id string) (*models.DatasetInfo, []models.WeeklyDemandPoint, error) {
	d, err := s.repo.GetDataset(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	points, err := pipeline.LoadWeeklyCSV(d.ProcessedFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, &repository.NotFoundError{Resource: "processed file", ID: id}
	}
	if err != nil {
		return nil, nil, err
	}
	return d, points, nil
}

// Validate checks whether a dataset has enough products and weeks to train
func (s *DatasetService) Validate(ctx context.Context, id string) (models.DatasetValidation, error) {
	_, points, err := s.Weekly(ctx, id)
	if err != nil {
		return models.DatasetValidation{}, err
	}
	v := pipeline.ValidateWeekly(points, s.training.MinProducts, s.training.MinWeeks)

	s.logger.Info(ctx, "[DATASET_VALIDATE] Dataset validated", logging.Fields{
		"dataset_id":    id,
		"products":      v.TotalProducts,
		"weeks":         v.TotalWeeks,
		"is_sufficient": v.IsSufficient,
	})
	return v, nil
}

// Visualize writes a PNG of weekly demand for one product, or for the first
// products of the dataset when productCode is empty.
func (s *DatasetService) Visualize(ctx context.Context, id, productCode string, w io.Writer) error {
	d, points, err := s.Weekly(ctx, id)
	if err != nil {
		return err
	}

	var series []pipeline.Series
	title := d.Name
	if productCode != "" {
		one, ok := pipeline.FindSeries(points, productCode)
		if !ok {
			return &repository.NotFoundError{Resource: "product", ID: productCode}
		}
		series = []pipeline.Series{one}
		title = fmt.Sprintf("%s - %s", d.Name, productCode)
	} else {
		series = pipeline.GroupByProduct(points)
		if len(series) > forecast.MaxPlottedProducts {
			series = series[:forecast.MaxPlottedProducts]
		}
	}
	if len(series) == 0 {
		return &models.InsufficientDataError{Scope: "dataset " + id, Need: 1}
	}

	return forecast.WriteSeriesPlot(w, title, series)
}

// Files lists raw and processed files on disk
func (s *DatasetService) Files(ctx context.Context) ([]storage.FileInfo, []storage.FileInfo, error) {
	raw, err := s.layout.RawFiles()
	if err != nil {
		return nil, nil, err
	}
	processed, err := s.layout.ProcessedFiles()
	if err != nil {
		return nil, nil, err
	}
	return raw, processed, nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func errorType(err error) string {
	var schemaErr *models.SchemaError
	var formatErr *models.FormatError
	var insufficient *models.InsufficientDataError
	switch {
	case errors.As(err, &schemaErr):
		return "schema_error"
	case errors.As(err, &formatErr):
		return "format_error"
	case errors.As(err, &insufficient):
		return "insufficient_data"
	default:
		return "processing_error"
	}
}
