package tracing

import (
	"context"
	"log/slog"

	"github.com/corvidlabs/actorkit/actor"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// NewLogBridge returns an slog.Logger whose records are emitted through
// the OpenTelemetry logs pipeline via otelslog, correlating each record
// with the current span when called from an instrumented context.
// Callers that configure an SDK LoggerProvider should call
// global.SetLoggerProvider before constructing this so records actually
// get exported; otherwise otelslog falls back to a no-op provider.
func NewLogBridge() *slog.Logger {
	return slog.New(otelslog.NewHandler(instrumentationName))
}

// InstrumentErrorLogging wires logBridge into sys's error and restart
// hooks, so supervision events surface as OTel log records correlated
// by trace/span id alongside the spans InstrumentSystem already emits.
// This is additive to InstrumentSystem, not a replacement for it.
func InstrumentErrorLogging(sys *actor.ActorSystem, logBridge *slog.Logger) {
	hooks := sys.Hooks()

	hooks.AddErrorHook(func(ctx context.Context, pid actor.PID, reason error) {
		logBridge.ErrorContext(ctx, "actor error",
			"pid", pid.String(), "error", reason)
	})

	hooks.AddRestartHook(func(ctx context.Context, pid actor.PID, reason error) {
		logBridge.WarnContext(ctx, "actor restarted",
			"pid", pid.String(), "reason", reason)
	})

	hooks.AddDeadLetterHook(func(ctx context.Context, target actor.PID, msg actor.Message, reason error) {
		logBridge.WarnContext(ctx, "dead letter",
			"pid", target.String(), "msgType", msg.MessageType(), "reason", reason)
	})
}
