// Package tracing wires up an OpenTelemetry TracerProvider whose exporter is
// chosen at startup by config.Config.Tracing: none, a stdout exporter for
// local debugging, or OTLP-over-gRPC for production. The server role starts
// a span per network put/get and per local stream put; the proxy role starts
// one per put and get (a read-through fetch runs inside the get span). Each
// hands its context down so internal/metrics can attach a trace-id exemplar.
package tracing

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/jobrun/blobcache/internal/config"
)

const instrumentationName = "github.com/jobrun/blobcache"

// Provider wraps an sdktrace.TracerProvider and exposes a Tracer plus a
// Shutdown hook, so callers don't need to import the SDK package directly.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// Noop is a Provider whose Tracer emits spans that never get recorded or
// exported. Used when tracing is disabled, so call sites never need a nil
// check.
func Noop() *Provider {
	return &Provider{tracer: trace.NewNoopTracerProvider().Tracer(instrumentationName)}
}

// New builds a Provider for the given exporter kind. otlpEndpoint is only
// consulted when exporter == config.TracingOTLP.
func New(ctx context.Context, exporter config.TracingExporter, otlpEndpoint, role string, log *logrus.Logger) (*Provider, error) {
	if exporter == config.TracingNone {
		return Noop(), nil
	}

	var sp sdktrace.SpanExporter
	var err error
	switch exporter {
	case config.TracingStdout:
		sp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case config.TracingOTLP:
		if otlpEndpoint == "" {
			return nil, fmt.Errorf("tracing: otlp exporter requires an endpoint")
		}
		sp, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(otlpEndpoint),
			otlptracegrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("tracing: unknown exporter %q", exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("tracing: building %s exporter: %w", exporter, err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceNameKey.String("blobcache"),
		semconv.ServiceNamespaceKey.String(role),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: building resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(sp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.WithFields(logrus.Fields{"exporter": exporter, "role": role}).Info("tracing provider initialized")

	return &Provider{tp: tp, tracer: tp.Tracer(instrumentationName)}, nil
}

// StartSpan starts a span for the named operation and returns the derived
// context plus a function that must be called (typically deferred) to end
// it.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, func() { span.End() }
}

// Shutdown flushes any buffered spans and releases exporter resources. A
// no-op Provider has nothing to flush.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
