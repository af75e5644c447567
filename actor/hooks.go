package actor

import (
	"context"
	"sync"
)

// MessageInterceptor runs before a message is handed to an actor's
// behavior. Returning false prevents the message from being processed
// (the interceptor owns its own side effects, e.g. auditing or
// rate-limiting).
type MessageInterceptor func(ctx context.Context, target PID, msg Message) bool

// MessageProcessingHook runs after a message has been processed,
// regardless of outcome.
type MessageProcessingHook func(ctx context.Context, target PID, msg Message, dur int64)

// ActorCreationHook runs whenever a new actor cell is registered with
// the system.
type ActorCreationHook func(ctx context.Context, pid PID)

// ActorTerminationHook runs whenever an actor cell reaches the Stopped
// state.
type ActorTerminationHook func(ctx context.Context, pid PID, reason error)

// ErrorHook runs whenever a behavior panics while processing a message,
// before the supervisor decides a directive. An error Result returned by
// the behavior does not trigger it.
type ErrorHook func(ctx context.Context, pid PID, reason error)

// DeadLetterHook runs whenever a message could not be delivered and was
// routed to the dead letter office.
type DeadLetterHook func(ctx context.Context, target PID, msg Message, reason error)

// RestartHook runs whenever a supervisor directive restarts an actor.
type RestartHook func(ctx context.Context, pid PID, cause error)

// StateUpdateHook takes an actor's PID and the name of a new behavior.
// Hooks of this kind can be registered, but no code path in the
// runtime invokes them: the behavior stack's become/push/pop are not
// reachable from a running actor.
type StateUpdateHook func(ctx context.Context, pid PID, newBehaviorName string)

// hookRegistry holds every registered hook, invoked in registration
// order. Hooks are additive only; there is no unregister, matching the
// teacher's preference for simple, append-only observer lists set up
// once at system construction.
type hookRegistry struct {
	mu sync.RWMutex

	messageInterceptors []MessageInterceptor
	processingHooks     []MessageProcessingHook
	creationHooks       []ActorCreationHook
	terminationHooks    []ActorTerminationHook
	errorHooks          []ErrorHook
	deadLetterHooks     []DeadLetterHook
	restartHooks        []RestartHook
	stateUpdateHooks    []StateUpdateHook
}

func newHookRegistry() *hookRegistry {
	return &hookRegistry{}
}

func (h *hookRegistry) AddMessageInterceptor(fn MessageInterceptor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messageInterceptors = append(h.messageInterceptors, fn)
}

func (h *hookRegistry) AddMessageProcessingHook(fn MessageProcessingHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processingHooks = append(h.processingHooks, fn)
}

func (h *hookRegistry) AddActorCreationHook(fn ActorCreationHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.creationHooks = append(h.creationHooks, fn)
}

func (h *hookRegistry) AddActorTerminationHook(fn ActorTerminationHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminationHooks = append(h.terminationHooks, fn)
}

func (h *hookRegistry) AddErrorHook(fn ErrorHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errorHooks = append(h.errorHooks, fn)
}

func (h *hookRegistry) AddDeadLetterHook(fn DeadLetterHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deadLetterHooks = append(h.deadLetterHooks, fn)
}

func (h *hookRegistry) AddRestartHook(fn RestartHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restartHooks = append(h.restartHooks, fn)
}

func (h *hookRegistry) AddStateUpdateHook(fn StateUpdateHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stateUpdateHooks = append(h.stateUpdateHooks, fn)
}

// runMessageInterceptors returns false as soon as any interceptor vetoes
// the message.
func (h *hookRegistry) runMessageInterceptors(
	ctx context.Context, target PID, msg Message,
) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, fn := range h.messageInterceptors {
		if !fn(ctx, target, msg) {
			return false
		}
	}
	return true
}

func (h *hookRegistry) runProcessingHooks(
	ctx context.Context, target PID, msg Message, durNanos int64,
) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, fn := range h.processingHooks {
		fn(ctx, target, msg, durNanos)
	}
}

func (h *hookRegistry) runCreationHooks(ctx context.Context, pid PID) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, fn := range h.creationHooks {
		fn(ctx, pid)
	}
}

func (h *hookRegistry) runTerminationHooks(
	ctx context.Context, pid PID, reason error,
) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, fn := range h.terminationHooks {
		fn(ctx, pid, reason)
	}
}

func (h *hookRegistry) runErrorHooks(
	ctx context.Context, pid PID, reason error,
) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, fn := range h.errorHooks {
		fn(ctx, pid, reason)
	}
}

func (h *hookRegistry) runDeadLetterHooks(
	ctx context.Context, target PID, msg Message, reason error,
) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, fn := range h.deadLetterHooks {
		fn(ctx, target, msg, reason)
	}
}

func (h *hookRegistry) runRestartHooks(
	ctx context.Context, pid PID, cause error,
) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, fn := range h.restartHooks {
		fn(ctx, pid, cause)
	}
}

func (h *hookRegistry) runStateUpdateHooks(
	ctx context.Context, pid PID, newBehaviorName string,
) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, fn := range h.stateUpdateHooks {
		fn(ctx, pid, newBehaviorName)
	}
}
