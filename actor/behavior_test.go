package actor

import (
	"context"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

type nameBehavior struct{ name string }

func (b nameBehavior) Receive(_ context.Context, _ testMsg) fn.Result[string] {
	return fn.Ok(b.name)
}

func TestBehaviorStackBecomeReplacesTop(t *testing.T) {
	t.Parallel()

	stack := newBehaviorStack[testMsg, string](nameBehavior{"initial"})
	res, _ := stack.current().Receive(context.Background(), newTestMsg("x")).Unpack()
	require.Equal(t, "initial", res)

	stack.become(nameBehavior{"replaced"})
	res, _ = stack.current().Receive(context.Background(), newTestMsg("x")).Unpack()
	require.Equal(t, "replaced", res)

	// become does not grow the stack.
	stack.pop()
	res, _ = stack.current().Receive(context.Background(), newTestMsg("x")).Unpack()
	require.Equal(t, "replaced", res)
}

func TestBehaviorStackPushPop(t *testing.T) {
	t.Parallel()

	stack := newBehaviorStack[testMsg, string](nameBehavior{"base"})
	stack.push(nameBehavior{"middle"})
	stack.push(nameBehavior{"top"})

	res, _ := stack.current().Receive(context.Background(), newTestMsg("x")).Unpack()
	require.Equal(t, "top", res)

	stack.pop()
	res, _ = stack.current().Receive(context.Background(), newTestMsg("x")).Unpack()
	require.Equal(t, "middle", res)

	stack.pop()
	res, _ = stack.current().Receive(context.Background(), newTestMsg("x")).Unpack()
	require.Equal(t, "base", res)

	// popping the last frame is a no-op.
	stack.pop()
	res, _ = stack.current().Receive(context.Background(), newTestMsg("x")).Unpack()
	require.Equal(t, "base", res)
}

func TestBehaviorStackReset(t *testing.T) {
	t.Parallel()

	stack := newBehaviorStack[testMsg, string](nameBehavior{"base"})
	stack.push(nameBehavior{"middle"})
	stack.push(nameBehavior{"top"})

	stack.reset(nameBehavior{"fresh"})
	res, _ := stack.current().Receive(context.Background(), newTestMsg("x")).Unpack()
	require.Equal(t, "fresh", res)

	// reset collapses the frame history; a single pop is now a no-op.
	stack.pop()
	res, _ = stack.current().Receive(context.Background(), newTestMsg("x")).Unpack()
	require.Equal(t, "fresh", res)
}

func TestFunctionBehaviorDelegates(t *testing.T) {
	t.Parallel()

	called := false
	b := NewFunctionBehavior(func(_ context.Context, msg testMsg) fn.Result[string] {
		called = true
		return fn.Ok(msg.value)
	})

	res, err := b.Receive(context.Background(), newTestMsg("hello")).Unpack()
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, "hello", res)
}
