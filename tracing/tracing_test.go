package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/corvidlabs/actorkit/actor"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

type pingMsg struct {
	actor.BaseMessage
	fail bool
}

func (pingMsg) MessageType() string { return "tracing.Ping" }

func TestInstrumentSystemRecordsProcessedAndActiveCells(t *testing.T) {
	sys := actor.NewActorSystem()
	defer sys.Shutdown(context.Background())

	metrics := NewMetrics()
	InstrumentSystem(sys, NewTracer(), metrics)

	ref := actor.Spawn[pingMsg, any](sys, "pinger", func() actor.ActorBehavior[pingMsg, any] {
		return actor.NewFunctionBehavior(func(_ context.Context, msg pingMsg) fn.Result[any] {
			if msg.fail {
				panic(errors.New("boom"))
			}
			return fn.Ok[any](nil)
		})
	})

	require.Eventually(t, func() bool {
		return metrics.ActiveCellCount() >= 1
	}, time.Second, time.Millisecond)

	_, err := ref.Ask(context.Background(), pingMsg{}).Await(context.Background()).Unpack()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return metrics.Processed() == 1
	}, time.Second, time.Millisecond)

	_, err = ref.Ask(context.Background(), pingMsg{fail: true}).Await(context.Background()).Unpack()
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return metrics.Errors() >= 1
	}, time.Second, time.Millisecond)
}

func TestFromContextReturnsZeroValueWithoutActiveSpan(t *testing.T) {
	tc := FromContext(context.Background())
	require.Empty(t, tc.TraceID)
	require.Empty(t, tc.SpanID)
}
