package service

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/room-allocation-api/pkg/jobs"
)

type queueStatsStub struct{}

func (queueStatsStub) Stats() jobs.Stats {
	return jobs.Stats{Name: "allocation", Depth: 3, InFlight: 1}
}

func scrape(t *testing.T, m *MetricsService) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/health", http.StatusOK, 2*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/health", http.StatusOK, 4*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.ObserveDBQuery("conflict_batch", 10*time.Millisecond)

	stats := m.Snapshot()
	assert.Equal(t, uint64(2), stats.RequestsTotal)
	assert.InDelta(t, 3.0, stats.AverageRequestDurationMs, 0.001)
	assert.InDelta(t, 2.0/3.0, stats.CacheHitRatio, 0.001)
	assert.Equal(t, uint64(1), stats.DBQueryCount)
	assert.InDelta(t, 10.0, stats.AverageDBQueryDurationMs, 0.001)
}

func TestMetricsServiceExposesRunAndQueueCollectors(t *testing.T) {
	m := NewMetricsService()
	done := m.TrackActiveRun()
	m.ObserveAllocationRun("COMPLETED", time.Second)
	m.RecordDemandOutcomes("ALLOCATED", 4)
	m.RecordDemandOutcomes("UNALLOCATED", 0)
	require.NoError(t, m.RegisterQueue(queueStatsStub{}))

	body := scrape(t, m)
	assert.Contains(t, body, `room_allocation_allocation_runs_total{status="COMPLETED"} 1`)
	assert.Contains(t, body, `room_allocation_allocation_demand_outcomes_total{status="ALLOCATED"} 4`)
	assert.NotContains(t, body, `status="UNALLOCATED"`)
	assert.Contains(t, body, "room_allocation_allocation_runs_active 1")
	assert.Contains(t, body, `room_allocation_queue_depth{queue="allocation"} 3`)

	done()
	assert.Contains(t, scrape(t, m), "room_allocation_allocation_runs_active 0")
}

func TestMetricsServiceNilIsSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.ObserveAllocationRun("FAILED", time.Second)
	m.TrackActiveRun()()
	assert.Equal(t, Stats{}, m.Snapshot())
	assert.NoError(t, m.RegisterQueue(queueStatsStub{}))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
