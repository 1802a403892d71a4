package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.DocumentIngested("indexed")
	m.DocumentIngested("indexed")
	m.DocumentIngested("empty")
	m.ChunksUpserted(7)
	m.ChunksSkipped("dimension", 2)
	m.ChunksSkipped("dimension", 0)
	m.Search("vector", 0)
	m.GraphMerged(3, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.documents.WithLabelValues("indexed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.documents.WithLabelValues("empty")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.chunksUpserted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.chunksSkipped.WithLabelValues("dimension")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searches.WithLabelValues("vector", "empty")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.graphWrites.WithLabelValues("node")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.DocumentIngested("indexed")
		m.ChunksUpserted(1)
		m.OCRRun("ok")
		m.ObserveStage("extract", time.Now())
		m.Search("graph", 1)
		m.GraphMerged(1, 1)
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveStage("embed", time.Now().Add(-time.Second))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `docindex_stage_duration_seconds_count{stage="embed"} 1`))
}
