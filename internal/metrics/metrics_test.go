package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)
	require.NotNil(t, m)
	assert.NotNil(t, m.opsTotal)
	assert.NotNil(t, m.opDuration)
	assert.NotNil(t, m.bytesTotal)
}

func TestRecordOperationSuccessAndError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordOperation(context.Background(), "put", "server", 10*time.Millisecond, 1024, nil)
	m.RecordOperation(context.Background(), "get", "proxy", 5*time.Millisecond, 0, errors.New("boom"))
	m.RecordOperationError("get", "proxy", "not_found")
}

func TestRecordIndexLookupOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordIndexLookup(false, false)
	m.RecordIndexLookup(true, true)
	m.RecordIndexLookup(true, false)
}

func TestBufferPoolCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordBufferPoolHit()
	m.RecordBufferPoolMiss()
}

func TestActiveConnectionsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.IncrementActiveConnections()
	m.IncrementActiveConnections()
	m.DecrementActiveConnections()
}

func TestSystemMetricsCollectorStartStop(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.StartSystemMetricsCollector()
	m.StopSystemMetricsCollector()
	m.StopSystemMetricsCollector() // must be idempotent
}

func TestHandlerExposesRecordedMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordOperation(context.Background(), "put", "server", 10*time.Millisecond, 1024, nil)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "blobcache_operations_total")
	assert.True(t, strings.Contains(w.Body.String(), "blobcache_bytes_total"))
}
