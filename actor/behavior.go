package actor

import (
	"context"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// FunctionBehavior adapts a plain function to the ActorBehavior interface,
// mirroring the teacher's convenience constructor for stateless actors
// that don't need a dedicated type.
type FunctionBehavior[M Message, R any] struct {
	fn func(ctx context.Context, msg M) fn.Result[R]
}

// NewFunctionBehavior wraps fn as an ActorBehavior.
func NewFunctionBehavior[M Message, R any](
	fn func(ctx context.Context, msg M) fn.Result[R],
) *FunctionBehavior[M, R] {
	return &FunctionBehavior[M, R]{fn: fn}
}

// Receive implements ActorBehavior.
func (f *FunctionBehavior[M, R]) Receive(
	ctx context.Context, msg M,
) fn.Result[R] {
	return f.fn(ctx, msg)
}

// behaviorStack holds the push/pop/become history of a cell's current
// ActorBehavior, per spec.md §4.3's "become" operation: pushing a new
// frame replaces how the next message is handled without discarding the
// previous frame, which is restored on pop.
type behaviorStack[M Message, R any] struct {
	frames []ActorBehavior[M, R]
}

// newBehaviorStack creates a stack with initial as its bottom (and only)
// frame.
func newBehaviorStack[M Message, R any](
	initial ActorBehavior[M, R],
) *behaviorStack[M, R] {
	return &behaviorStack[M, R]{frames: []ActorBehavior[M, R]{initial}}
}

// current returns the active (top-of-stack) behavior.
func (s *behaviorStack[M, R]) current() ActorBehavior[M, R] {
	return s.frames[len(s.frames)-1]
}

// become replaces the top frame with next, discarding the previous top.
// Use push if the replaced behavior should be restorable later.
func (s *behaviorStack[M, R]) become(next ActorBehavior[M, R]) {
	s.frames[len(s.frames)-1] = next
}

// push adds next as the new top frame, preserving the current one
// beneath it.
func (s *behaviorStack[M, R]) push(next ActorBehavior[M, R]) {
	s.frames = append(s.frames, next)
}

// pop removes the top frame and returns to the one beneath it. Popping
// the last remaining frame is a no-op: a cell must always have a
// behavior to dispatch to.
func (s *behaviorStack[M, R]) pop() {
	if len(s.frames) <= 1 {
		return
	}
	s.frames = s.frames[:len(s.frames)-1]
}

// reset clears the stack back to a single frame, initial. Used on
// restart: postRestart starts from a clean behavior stack rather than
// whatever become/push history the failed instance accumulated.
func (s *behaviorStack[M, R]) reset(initial ActorBehavior[M, R]) {
	s.frames = []ActorBehavior[M, R]{initial}
}
