package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-bulletin-api/internal/models"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()

	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/bulletins/students/:id", http.StatusOK, 20*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/bulletins/students/:id", http.StatusNotFound, 40*time.Millisecond)
	m.ObserveDBQuery("roster_active", 4*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.ObserveClassCompute(32, 15*time.Millisecond)
	m.ObserveRender("single", 1, 30*time.Millisecond)
	m.ObserveRender("bulk", 31, time.Second)
	m.RecordJob(models.BulletinJobFinished)

	snapshot := m.Snapshot()
	assert.EqualValues(t, 2, snapshot.RequestsTotal)
	assert.InDelta(t, 30, snapshot.AverageRequestDurationMs, 1e-6)
	assert.EqualValues(t, 1, snapshot.DBQueryCount)
	assert.InDelta(t, 4, snapshot.AverageDBQueryDurationMs, 1e-6)
	assert.InDelta(t, 1.0/3.0, snapshot.CacheHitRatio, 1e-9)
	assert.EqualValues(t, 32, snapshot.BulletinsRendered)
	assert.EqualValues(t, 1, snapshot.ClassComputations)
	assert.Positive(t, snapshot.Goroutines)
	assert.False(t, snapshot.GeneratedAt.IsZero())
}

func TestMetricsServiceHandlerExposesBulletinCollectors(t *testing.T) {
	m := NewMetricsService()
	m.ObserveRender("bulk", 3, time.Second)
	m.RecordJob(models.BulletinJobFailed)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `bulletins_rendered_total{mode="bulk"} 3`)
	assert.Contains(t, body, `bulletin_jobs_total{status="FAILED"} 1`)
	assert.Contains(t, body, "bulletin_render_seconds")
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService

	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.ObserveClassCompute(1, time.Millisecond)
	m.ObserveRender("single", 1, time.Millisecond)
	m.RecordJob(models.BulletinJobFinished)
	assert.Equal(t, models.SystemMetrics{}, m.Snapshot())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
