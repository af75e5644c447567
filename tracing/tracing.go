// Package tracing instruments an actor.ActorSystem with OpenTelemetry
// spans and a pull-style metrics surface, without requiring message
// types to know anything about tracing beyond an optional embedded
// TraceContext field.
package tracing

import (
	"context"
	"time"

	"github.com/corvidlabs/actorkit/actor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationName is the tracer name registered with the global
// otel TracerProvider, matching the module path convention so spans
// are attributable to this library in a multi-tenant collector.
const instrumentationName = "github.com/corvidlabs/actorkit"

// TraceContext carries a propagated trace/span id pair. Message types
// that want their processing to show up as a child span of the
// caller's trace embed this alongside actor.BaseMessage and populate it
// from trace.SpanContextFromContext(ctx) at send time.
type TraceContext struct {
	TraceID string
	SpanID  string
}

// FromContext extracts a TraceContext from ctx's current span, for
// stamping onto an outbound message.
func FromContext(ctx context.Context) TraceContext {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return TraceContext{}
	}
	return TraceContext{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// Tracer wraps an otel Tracer for the actor runtime's use.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer drawing from the global otel
// TracerProvider. Callers that set up their own SDK TracerProvider
// (via go.opentelemetry.io/otel/sdk/trace) should call
// otel.SetTracerProvider before constructing this.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(instrumentationName)}
}

// StartSpan starts a span named name as a child of ctx's current span,
// returning the derived context and a function that ends the span,
// recording err (if non-nil) as the span's status.
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, func(err error)) {
	spanCtx, span := t.tracer.Start(ctx, name)
	return spanCtx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// startRetroactiveSpan records a span for work that already finished
// dur ago, used by InstrumentSystem's processing hook: the actor
// runtime's hooks fire after a message has already been handled, so the
// span has to be backdated to when processing actually began rather
// than started fresh at hook time.
func (t *Tracer) startRetroactiveSpan(
	ctx context.Context, name string, dur time.Duration, err error,
) {
	start := time.Now().Add(-dur)
	_, span := t.tracer.Start(ctx, name, trace.WithTimestamp(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End(trace.WithTimestamp(start.Add(dur)))
}

// InstrumentSystem wires a Tracer and a Metrics instance into sys's
// hook registry: every message processed becomes a span (named after
// the message's MessageType), every restart and dead letter increments
// a counter Metrics exposes via its pull API.
func InstrumentSystem(sys *actor.ActorSystem, tracer *Tracer, metrics *Metrics) {
	hooks := sys.Hooks()

	hooks.AddActorCreationHook(func(_ context.Context, pid actor.PID) {
		metrics.activeCells.Add(1)
		log.DebugS(context.Background(), "tracing: actor created", "pid", pid.String())
	})

	hooks.AddActorTerminationHook(func(_ context.Context, pid actor.PID, _ error) {
		metrics.activeCells.Add(-1)
	})

	hooks.AddMessageProcessingHook(func(ctx context.Context, pid actor.PID, msg actor.Message, durNanos int64) {
		metrics.recordProcessed(time.Duration(durNanos))
		tracer.startRetroactiveSpan(ctx, "actor.receive:"+msg.MessageType(), time.Duration(durNanos), nil)
	})

	hooks.AddErrorHook(func(ctx context.Context, pid actor.PID, reason error) {
		metrics.recordError()
	})

	hooks.AddRestartHook(func(_ context.Context, pid actor.PID, _ error) {
		metrics.recordRestart()
	})

	hooks.AddDeadLetterHook(func(_ context.Context, target actor.PID, msg actor.Message, reason error) {
		metrics.recordDeadLetter()
	})
}
