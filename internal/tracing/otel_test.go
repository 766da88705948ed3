package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpointHost(t *testing.T) {
	assert.Equal(t, "collector:4318", endpointHost("http://collector:4318"))
	assert.Equal(t, "collector:4318", endpointHost("https://collector:4318/"))
	assert.Equal(t, "collector:4318", endpointHost("collector:4318"))
}

func TestTracer_NoopWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	_, span := Tracer("test").Start(context.Background(), "op")
	span.End()

	assert.NoError(t, Shutdown(context.Background()))
}
