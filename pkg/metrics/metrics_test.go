package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_PrivateRegistriesDoNotCollide(t *testing.T) {
	a := NewCollector("forecast", prometheus.NewRegistry())
	b := NewCollector("forecast", prometheus.NewRegistry())

	a.RecordProductOutcome("xgboost", "trained")
	a.RecordProductOutcome("xgboost", "trained")
	b.RecordProductOutcome("xgboost", "failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(a.TrainingProductsTotal.WithLabelValues("xgboost", "trained")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.TrainingProductsTotal.WithLabelValues("xgboost", "trained")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.TrainingProductsTotal.WithLabelValues("xgboost", "failed")))
}

func TestCollector_RecordDatasetRowsIgnoresEmpty(t *testing.T) {
	c := NewNopCollector()
	c.RecordDatasetRows("read", 10)
	c.RecordDatasetRows("read", 0)
	c.RecordDatasetRows("read", -3)

	assert.Equal(t, 10.0, testutil.ToFloat64(c.DatasetRowsTotal.WithLabelValues("read")))
}

func TestCollector_DBPool(t *testing.T) {
	c := NewNopCollector()
	c.UpdateDBConnectionPool(2, 3, 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.DBConnectionPool.WithLabelValues("in_use")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.DBConnectionPool.WithLabelValues("idle")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.DBConnectionPool.WithLabelValues("total")))
}
