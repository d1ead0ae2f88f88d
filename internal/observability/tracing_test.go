package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := Tracer
	Tracer = tp.Tracer("test")
	t.Cleanup(func() { Tracer = prev })
	return rec
}

func TestStartSpan_NamesAndAttributes(t *testing.T) {
	rec := useRecorder(t)

	_, span := StartSpan(context.Background(), "post_service", "create", attribute.Int64("community.id", 7))
	EndSpan(span, nil)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "post_service.create", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.Int64("community.id", 7))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestEndSpan_RecordsError(t *testing.T) {
	rec := useRecorder(t)

	_, span := StartSpan(context.Background(), "query", "fetch")
	EndSpan(span, errors.New("upstream down"))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "upstream down", spans[0].Status().Description)
	assert.NotEmpty(t, spans[0].Events())
}

func TestNewSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), newSampler(1).Description())
	assert.Contains(t, newSampler(0.25).Description(), "ParentBased")
}

func TestInitTracing_Disabled(t *testing.T) {
	prev := Tracer
	t.Cleanup(func() { Tracer = prev })

	shutdown, err := InitTracing(TracingConfig{ServiceName: "nexora"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
