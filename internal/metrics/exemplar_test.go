package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func spanContextForTest(t *testing.T) trace.SpanContext {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	if err != nil {
		t.Fatalf("TraceIDFromHex failed: %v", err)
	}
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	if err != nil {
		t.Fatalf("SpanIDFromHex failed: %v", err)
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
		Remote:  true,
	})
}

func TestGetExemplarWithValidSpan(t *testing.T) {
	ctx := trace.ContextWithSpanContext(context.Background(), spanContextForTest(t))

	labels := getExemplar(ctx)
	assert.NotNil(t, labels)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", labels["trace_id"])
}

func TestGetExemplarWithoutSpanIsNil(t *testing.T) {
	assert.Nil(t, getExemplar(context.Background()))
}

func TestGetExemplarNilContextIsNil(t *testing.T) {
	assert.Nil(t, getExemplar(nil))
}

func TestRecordOperationAttachesExemplar(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)
	ctx := trace.ContextWithSpanContext(context.Background(), spanContextForTest(t))

	m.RecordOperation(ctx, "put", "server", time.Millisecond, 100, nil)

	metricFamilies, err := reg.Gather()
	assert.NoError(t, err)

	var foundExemplar bool
	for _, mf := range metricFamilies {
		if mf.GetName() != "blobcache_operations_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if ex := metric.GetCounter().GetExemplar(); ex != nil {
				for _, label := range ex.GetLabel() {
					if label.GetName() == "trace_id" && label.GetValue() == "4bf92f3577b34da6a3ce929d0e0e4736" {
						foundExemplar = true
					}
				}
			}
		}
	}
	assert.True(t, foundExemplar, "expected an exemplar carrying the span's trace id")
}
