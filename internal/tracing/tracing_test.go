package tracing

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobrun/blobcache/internal/config"
)

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestNoopProviderStartSpanNeverPanics(t *testing.T) {
	p := Noop()
	ctx, end := p.StartSpan(context.Background(), "put")
	require.NotNil(t, ctx)
	end()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewWithTracingNoneReturnsNoop(t *testing.T) {
	p, err := New(context.Background(), config.TracingNone, "", "server", discardLogger())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Nil(t, p.tp)
}

func TestNewWithStdoutExporterBuildsSpans(t *testing.T) {
	p, err := New(context.Background(), config.TracingStdout, "", "server", discardLogger())
	require.NoError(t, err)
	require.NotNil(t, p.tp)

	ctx, end := p.StartSpan(context.Background(), "put")
	require.NotNil(t, ctx)
	end()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewWithOTLPExporterRequiresEndpoint(t *testing.T) {
	_, err := New(context.Background(), config.TracingOTLP, "", "server", discardLogger())
	assert.Error(t, err)
}

func TestNewWithUnknownExporterErrors(t *testing.T) {
	_, err := New(context.Background(), config.TracingExporter("bogus"), "", "server", discardLogger())
	assert.Error(t, err)
}
