package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/latticehsm/hsm"
)

// TracingObserver opens a span at the first OnTransition reported for an
// event id and ends it at that event's OnEventProcessed, so every
// dispatched event that reached at least one transition candidate gets
// one span carrying the from/to/event ids as attributes. An event that
// matched no transition produces no span. Spans are keyed by EventID
// because the engine's Observer callbacks carry no context.Context.
type TracingObserver struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[hsm.EventID]trace.Span
}

// NewTracingObserver creates a TracingObserver using the tracer named
// name from the global TracerProvider (set up by the host application
// via go.opentelemetry.io/otel/sdk).
func NewTracingObserver(name string) *TracingObserver {
	return &TracingObserver{
		tracer: otel.Tracer(name),
		spans:  make(map[hsm.EventID]trace.Span),
	}
}

func (t *TracingObserver) OnStateEnter(hsm.StateID) {}
func (t *TracingObserver) OnStateExit(hsm.StateID)  {}

func (t *TracingObserver) OnTransition(from, to hsm.StateID, event hsm.EventID, failed bool) {
	t.mu.Lock()
	span, ok := t.spans[event]
	t.mu.Unlock()
	if !ok {
		_, span = t.tracer.Start(context.Background(), "hsm.transition")
		t.mu.Lock()
		t.spans[event] = span
		t.mu.Unlock()
	}
	span.SetAttributes(
		attribute.Int("hsm.from", int(from)),
		attribute.Int("hsm.to", int(to)),
		attribute.Int("hsm.event", int(event)),
	)
	if failed {
		span.SetStatus(codes.Error, "no matching candidate executed")
	}
}

func (t *TracingObserver) OnEventProcessed(event hsm.EventID, status hsm.EventStatus) {
	t.mu.Lock()
	span, ok := t.spans[event]
	delete(t.spans, event)
	t.mu.Unlock()
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("hsm.status", status.String()))
	span.End()
}

func (t *TracingObserver) OnTimerStart(hsm.TimerID) {}
func (t *TracingObserver) OnTimerFire(timer hsm.TimerID) {
	_, span := t.tracer.Start(context.Background(), "hsm.timer_fire",
		trace.WithAttributes(attribute.Int("hsm.timer", int(timer))))
	span.End()
}

func (t *TracingObserver) OnError(err error) {
	_, span := t.tracer.Start(context.Background(), "hsm.error")
	span.SetStatus(codes.Error, err.Error())
	span.End()
}
