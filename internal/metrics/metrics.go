package metrics

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

var defaultRegistry = prometheus.DefaultRegisterer

// Metrics holds every blob cache metric: per-operation counters/histograms,
// buffer pool hit/miss counters, and process-level gauges sampled on a
// ticker.
type Metrics struct {
	opsTotal      *prometheus.CounterVec
	opDuration    *prometheus.HistogramVec
	opErrors      *prometheus.CounterVec
	bytesTotal    *prometheus.CounterVec
	indexHits     *prometheus.CounterVec
	bufferHits    prometheus.Counter
	bufferMisses  prometheus.Counter
	activeConns   prometheus.Gauge
	goroutines    prometheus.Gauge
	memAllocBytes prometheus.Gauge
	memSysBytes   prometheus.Gauge

	stopSystemCollector chan struct{}
}

// NewMetrics constructs a Metrics registered against the default Prometheus
// registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(defaultRegistry)
}

// NewMetricsWithRegistry constructs a Metrics against a custom registry, so
// tests can avoid collisions with the process-wide default registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		opsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobcache_operations_total",
				Help: "Total number of put/get/fetch operations.",
			},
			[]string{"operation", "role", "outcome"},
		),
		opDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blobcache_operation_duration_seconds",
				Help:    "Duration of put/get/fetch operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "role"},
		),
		opErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobcache_operation_errors_total",
				Help: "Total number of operation failures by error kind.",
			},
			[]string{"operation", "role", "kind"},
		),
		bytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobcache_bytes_total",
				Help: "Total bytes transferred by operation.",
			},
			[]string{"operation", "role"},
		),
		indexHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobcache_index_lookups_total",
				Help: "Total existence-index consultations by outcome.",
			},
			[]string{"outcome"}, // "hit", "miss", "unconsulted"
		),
		bufferHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "blobcache_buffer_pool_hits_total",
				Help: "Total transfer buffer pool hits.",
			},
		),
		bufferMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "blobcache_buffer_pool_misses_total",
				Help: "Total transfer buffer pool misses.",
			},
		),
		activeConns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "blobcache_active_connections",
				Help: "Number of in-flight server connection handlers.",
			},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "blobcache_goroutines",
				Help: "Number of goroutines in the process.",
			},
		),
		memAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "blobcache_memory_alloc_bytes",
				Help: "Bytes allocated and not yet freed.",
			},
		),
		memSysBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "blobcache_memory_sys_bytes",
				Help: "Total bytes obtained from the OS.",
			},
		),
	}
}

// RecordOperation records a completed put/get/fetch: the op counter, the
// duration histogram, and the byte counter, attaching a trace exemplar when
// ctx carries a valid span.
func (m *Metrics) RecordOperation(ctx context.Context, operation, role string, duration time.Duration, bytes int64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	labels := prometheus.Labels{"operation": operation, "role": role, "outcome": outcome}

	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.opsTotal.With(labels).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.opsTotal.With(labels).Inc()
		}
		durLabels := prometheus.Labels{"operation": operation, "role": role}
		if observer, ok := m.opDuration.With(durLabels).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.opDuration.With(durLabels).Observe(duration.Seconds())
		}
	} else {
		m.opsTotal.With(labels).Inc()
		m.opDuration.WithLabelValues(operation, role).Observe(duration.Seconds())
	}

	m.bytesTotal.WithLabelValues(operation, role).Add(float64(bytes))
}

// RecordOperationError records the error kind of a failed operation.
func (m *Metrics) RecordOperationError(operation, role, kind string) {
	m.opErrors.WithLabelValues(operation, role, kind).Inc()
}

// RecordIndexLookup records whether the optional index was consulted and
// whether it reported a hit.
func (m *Metrics) RecordIndexLookup(consulted, present bool) {
	switch {
	case !consulted:
		m.indexHits.WithLabelValues("unconsulted").Inc()
	case present:
		m.indexHits.WithLabelValues("hit").Inc()
	default:
		m.indexHits.WithLabelValues("miss").Inc()
	}
}

// RecordBufferPoolHit records a transfer buffer pool hit.
func (m *Metrics) RecordBufferPoolHit() { m.bufferHits.Inc() }

// RecordBufferPoolMiss records a transfer buffer pool miss.
func (m *Metrics) RecordBufferPoolMiss() { m.bufferMisses.Inc() }

// IncrementActiveConnections increments the active server connection gauge.
func (m *Metrics) IncrementActiveConnections() { m.activeConns.Inc() }

// DecrementActiveConnections decrements the active server connection gauge.
func (m *Metrics) DecrementActiveConnections() { m.activeConns.Dec() }

// UpdateSystemMetrics samples runtime.MemStats and goroutine count into
// their gauges.
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memAllocBytes.Set(float64(memStats.Alloc))
	m.memSysBytes.Set(float64(memStats.Sys))
}

// StartSystemMetricsCollector starts a ticker goroutine sampling system
// metrics every 5 seconds. Call StopSystemMetricsCollector on shutdown.
func (m *Metrics) StartSystemMetricsCollector() {
	m.stopSystemCollector = make(chan struct{})
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.UpdateSystemMetrics()
			case <-m.stopSystemCollector:
				return
			}
		}
	}()
}

// StopSystemMetricsCollector stops the ticker goroutine started by
// StartSystemMetricsCollector. Safe to call even if it was never started.
func (m *Metrics) StopSystemMetricsCollector() {
	if m.stopSystemCollector != nil {
		close(m.stopSystemCollector)
		m.stopSystemCollector = nil
	}
}

// Handler returns the HTTP handler serving this process's metrics in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// getExemplar extracts a trace ID from ctx and returns it as exemplar
// labels, or nil if ctx carries no valid span.
func getExemplar(ctx context.Context) prometheus.Labels {
	if ctx == nil {
		return nil
	}
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if spanContext.IsValid() {
		return prometheus.Labels{"trace_id": spanContext.TraceID().String()}
	}
	return nil
}
