package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", " collector:4317 ")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "false")
	t.Setenv("CARDGEN_TRACE_SAMPLE_RATIO", "0.25")

	opts := OptionsFromEnv()
	assert.Equal(t, "collector:4317", opts.Endpoint)
	assert.False(t, opts.Insecure)
	assert.Equal(t, 0.25, opts.SampleRatio)

	t.Setenv("CARDGEN_TRACE_SAMPLE_RATIO", "7")
	assert.Equal(t, 1.0, OptionsFromEnv().SampleRatio)
}

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSpansRecordComponentAndError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, ok := StartSpan(context.Background(), "gateway", "Gateway.GenerateText")
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), "", "Orchestrator.run")
	EndSpan(failed, errors.New("quota exceeded"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "cardgen-go/gateway", spans[0].InstrumentationScope().Name)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "cardgen-go", spans[1].InstrumentationScope().Name)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "quota exceeded", spans[1].Status().Description)
}
