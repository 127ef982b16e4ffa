package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabledInstallsNoop(t *testing.T) {
	p, err := Init(context.Background(), Options{})
	require.NoError(t, err)

	inst := NewSyncInstruments()
	ctx, span := inst.StartIssue(context.Background(), "PROJ-1", false)
	span.Event("created")
	span.End(ctx, "created", nil)
	assert.False(t, span.span.SpanContext().IsValid())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitStdout(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

	var buf bytes.Buffer
	p, err := Init(context.Background(), Options{Enabled: true, Writer: &buf, ServiceName: "j2g", Version: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = Init(context.Background(), Options{}) })

	inst := NewSyncInstruments()
	ctx, span := inst.StartIssue(context.Background(), "PROJ-2", true)
	assert.True(t, span.span.SpanContext().IsValid())
	span.End(ctx, "failed", errors.New("boom"))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "sync.issue")
	assert.Contains(t, buf.String(), "PROJ-2")
	assert.Contains(t, buf.String(), "j2g.sync.issues")
}

func TestShutdownNil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestEndpointFallback(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	assert.Equal(t, "collector:4318", Options{}.endpoint())
	assert.Equal(t, "local:4318", Options{Endpoint: "local:4318"}.endpoint())
}
