package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"demand-forecast/internal/config"
	"demand-forecast/internal/forecast"
	"demand-forecast/internal/models"
	"demand-forecast/internal/pipeline"
)

// ErrTooLarge is returned by SaveUpload when the upload exceeds the limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

// FileInfo describes a file in one of the artifact directories
type FileInfo struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Layout maps datasets, jobs and models onto the artifact directories.
type Layout struct {
	cfg config.StorageConfig
}

// New creates a layout over cfg. Call Ensure before writing.
func New(cfg config.StorageConfig) *Layout {
	return &Layout{cfg: cfg}
}

// Ensure creates every artifact directory.
func (l *Layout) Ensure() error {
	for _, dir := range []string{l.cfg.DatasetsDir, l.cfg.ProcessedDir, l.cfg.ResultsDir, l.cfg.PlotsDir, l.cfg.ModelsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}
	return nil
}

// MaxUploadBytes is the configured upload limit.
func (l *Layout) MaxUploadBytes() int64 {
	return l.cfg.MaxUploadMB << 20
}

// DatasetFile is where the raw upload of a dataset is kept.
func (l *Layout) DatasetFile(datasetID, filename string) string {
	return filepath.Join(l.cfg.DatasetsDir, datasetID+"_"+forecast.SafeName(filepath.Base(filename)))
}

// ProcessedFile is where the weekly demand table of a dataset is kept.
func (l *Layout) ProcessedFile(datasetID string) string {
	return filepath.Join(l.cfg.ProcessedDir, "weekly_demand_"+datasetID+".csv")
}

// ResultsFile is the results document of a training job.
func (l *Layout) ResultsFile(modelType models.ModelType, jobID string) string {
	return filepath.Join(l.cfg.ResultsDir, fmt.Sprintf("%s_results_%s.json", modelType, jobID))
}

// ModelFile is the fitted model bundle of a training job.
func (l *Layout) ModelFile(modelType models.ModelType, jobID string) string {
	return filepath.Join(l.cfg.ModelsDir, fmt.Sprintf("%s_%s.json", modelType, jobID))
}

// PlotsDir receives comparison plots.
func (l *Layout) PlotsDir() string {
	return l.cfg.PlotsDir
}

// SaveUpload copies r to the raw file path of datasetID. Writes beyond the
// upload limit fail with ErrTooLarge and leave no file behind.
func (l *Layout) SaveUpload(datasetID, filename string, r io.Reader) (string, int64, error) {
	if _, err := pipeline.CheckExtension(filename); err != nil {
		return "", 0, err
	}

	path := l.DatasetFile(datasetID, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create %s: %w", path, err)
	}

	limit := l.MaxUploadBytes()
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && limit > 0 && n > limit {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}
	return path, n, nil
}

// Remove deletes paths, ignoring empty and already missing ones.
func Remove(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Exists reports whether path names a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// RawFiles lists uploaded raw sales files.
func (l *Layout) RawFiles() ([]FileInfo, error) {
	return listFiles(l.cfg.DatasetsDir, pipeline.ExtXLSX, pipeline.ExtCSV)
}

// ProcessedFiles lists weekly demand tables.
func (l *Layout) ProcessedFiles() ([]FileInfo, error) {
	return listFiles(l.cfg.ProcessedDir, pipeline.ExtCSV)
}

func listFiles(dir string, exts ...string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []FileInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	files := []FileInfo{}
	for _, e := range entries {
		if e.IsDir() || !hasExt(e.Name(), exts) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:       e.Name(),
			Path:       filepath.Join(dir, e.Name()),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
