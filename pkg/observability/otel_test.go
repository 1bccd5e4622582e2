package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitOTel_Disabled(t *testing.T) {
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, NewLogger(InfoLevel, &bytes.Buffer{}))
	assert.NoError(t, err)
	assert.Nil(t, providers)
}

// OTLP exporters connect lazily, so initialization succeeds without a collector
func TestInitOTel_Enabled(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	providers, err := InitOTel(context.Background(), OTelConfig{
		Enabled:        true,
		Endpoint:       "localhost:4317",
		ServiceName:    "collabd-test",
		ServiceVersion: "test",
		Insecure:       true,
		SampleRatio:    0.5,
	}, logger)
	assert.NoError(t, err)
	assert.NotNil(t, providers)

	_ = ShutdownOTel(context.Background(), providers, logger)
}

func TestShutdownOTel(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	assert.NoError(t, ShutdownOTel(context.Background(), nil, logger))
	assert.NoError(t, ShutdownOTel(context.Background(), &OTelProviders{}, logger))
	assert.NoError(t, ShutdownOTel(context.Background(), &OTelProviders{TracerProvider: sdktrace.NewTracerProvider()}, logger))
}

func TestTracer(t *testing.T) {
	assert.NotNil(t, Tracer())
}
