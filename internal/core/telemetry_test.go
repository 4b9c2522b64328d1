// AngelaMos | 2026
// telemetry_test.go

package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/carterperez-dev/courseware/internal/config"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return recorder
}

func TestNewTelemetryDisabled(t *testing.T) {
	tel, err := NewTelemetry(
		context.Background(),
		config.OtelConfig{Enabled: false, Endpoint: "collector:4317"},
		config.AppConfig{},
	)
	require.NoError(t, err)

	assert.False(t, tel.Enabled())
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestSampleRate(t *testing.T) {
	assert.InDelta(t, defaultSampleRate, sampleRate(0), 0)
	assert.InDelta(t, defaultSampleRate, sampleRate(-1), 0)
	assert.InDelta(t, defaultSampleRate, sampleRate(1.5), 0)
	assert.InDelta(t, 0.5, sampleRate(0.5), 0)
	assert.InDelta(t, 1.0, sampleRate(1), 0)
}

func TestSpanHelpers(t *testing.T) {
	recorder := recordSpans(t)

	ctx, span := StartSpan(context.Background(), "user.create",
		attribute.String("provider", "google"),
	)
	assert.NotEmpty(t, TraceIDFromContext(ctx))
	AddSpanEvent(ctx, "user_created")
	EndSpan(span, nil)

	_, failed := StartSpan(ctx, "mail.send")
	EndSpan(failed, errors.New("smtp down"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "user.create", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "user_created", spans[0].Events()[0].Name)

	assert.Equal(t, "mail.send", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "smtp down", spans[1].Status().Description)
	assert.Equal(t, spans[0].SpanContext().TraceID(), spans[1].Parent().TraceID())
}

func TestTraceIDFromContextWithoutSpan(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))
}
