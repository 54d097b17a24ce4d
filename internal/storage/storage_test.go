package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demand-forecast/internal/config"
	"demand-forecast/internal/models"
)

func newLayout(t *testing.T, maxMB int64) *Layout {
	t.Helper()
	base := t.TempDir()
	l := New(config.StorageConfig{
		BaseDir:      base,
		DatasetsDir:  filepath.Join(base, "datasets"),
		ProcessedDir: filepath.Join(base, "processed"),
		ResultsDir:   filepath.Join(base, "results"),
		PlotsDir:     filepath.Join(base, "plots"),
		ModelsDir:    filepath.Join(base, "models"),
		MaxUploadMB:  maxMB,
	})
	require.NoError(t, l.Ensure())
	return l
}

func TestLayout_Paths(t *testing.T) {
	l := newLayout(t, 1)

	assert.Equal(t, "ds1_sales_2024.xlsx", filepath.Base(l.DatasetFile("ds1", "../sales 2024.xlsx")))
	assert.Equal(t, "weekly_demand_ds1.csv", filepath.Base(l.ProcessedFile("ds1")))
	assert.Equal(t, "prophet_results_j1.json", filepath.Base(l.ResultsFile(models.ModelProphet, "j1")))
	assert.Equal(t, "xgboost_j1.json", filepath.Base(l.ModelFile(models.ModelXGBoost, "j1")))
}

func TestLayout_SaveUpload(t *testing.T) {
	l := newLayout(t, 1)

	path, n, err := l.SaveUpload("ds1", "sales.csv", strings.NewReader("DocDate,ItemCode\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)
	assert.True(t, Exists(path))

	_, _, err = l.SaveUpload("ds2", "sales.txt", strings.NewReader("x"))
	var formatErr *models.FormatError
	assert.True(t, errors.As(err, &formatErr))

	big := strings.NewReader(strings.Repeat("x", (1<<20)+1))
	_, _, err = l.SaveUpload("ds3", "big.csv", big)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.False(t, Exists(l.DatasetFile("ds3", "big.csv")))

	raw, err := l.RawFiles()
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, "ds1_sales.csv", raw[0].Name)
	assert.Equal(t, int64(17), raw[0].SizeBytes)
}

func TestRemove_IgnoresMissing(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "a.csv")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))

	assert.NoError(t, Remove(existing, filepath.Join(dir, "missing.csv"), ""))
	assert.False(t, Exists(existing))
}

func TestLayout_ListMissingDirectory(t *testing.T) {
	l := New(config.StorageConfig{ProcessedDir: filepath.Join(t.TempDir(), "nope")})

	files, err := l.ProcessedFiles()
	require.NoError(t, err)
	assert.Empty(t, files)
}
