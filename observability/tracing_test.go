package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/latticehsm/hsm"
	"github.com/latticehsm/hsm/observability"
)

func TestTracingObserverEmitsSpanPerEvent(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prevTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prevTP)

	o := observability.NewTracingObserver("hsm-test")
	o.OnTransition(hsm.StateID(1), hsm.StateID(2), hsm.EventID(5), false)
	o.OnEventProcessed(hsm.EventID(5), hsm.DoneOk)

	require.NoError(t, tp.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "hsm.transition", spans[0].Name)
}

func TestTracingObserverTimerFireEmitsSpanImmediately(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prevTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prevTP)

	o := observability.NewTracingObserver("hsm-test")
	o.OnTimerFire(hsm.TimerID(9))

	require.NoError(t, tp.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "hsm.timer_fire", spans[0].Name)
}
