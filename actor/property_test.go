package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"pgregory.net/rapid"
)

var errBoom = errors.New("boom")

// TestPropertyPerSenderFIFO asserts that messages from a single sender,
// regardless of how many are sent or how the dispatcher interleaves other
// actors' turns, are always observed by the target in send order.
func TestPropertyPerSenderFIFO(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		sys := NewActorSystem()
		defer sys.Shutdown(context.Background())

		n := rapid.IntRange(1, 200).Draw(rt, "numMessages")

		var mu sync.Mutex
		var received []int
		done := make(chan struct{})

		ref := Spawn[seqMsg, any](sys, "fifo-target", func() ActorBehavior[seqMsg, any] {
			return NewFunctionBehavior(func(_ context.Context, msg seqMsg) fn.Result[any] {
				mu.Lock()
				received = append(received, msg.n)
				if len(received) == n {
					close(done)
				}
				mu.Unlock()
				return fn.Ok[any](nil)
			})
		})

		for i := 0; i < n; i++ {
			ref.Tell(context.Background(), seqMsg{n: i})
		}

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			rt.Fatalf("timed out waiting for %d messages", n)
		}

		mu.Lock()
		defer mu.Unlock()
		for i, v := range received {
			if v != i {
				rt.Fatalf("out-of-order delivery at index %d: got %d, want %d", i, v, i)
			}
		}
	})
}

type seqMsg struct {
	BaseMessage
	n int
}

func (seqMsg) MessageType() string { return "test.Seq" }

// TestPropertyRestartBoundInvariant asserts that OneForOneStrategy never
// permits more than MaxRestarts restarts within WithinDuration: whatever
// sequence of failures arrives, the strategy escalates exactly once it
// crosses the bound, never before and never indefinitely after (spec.md
// §4.4, §8 scenario 2 — exceeding the bound escalates, it does not stop
// outright).
func TestPropertyRestartBoundInvariant(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		maxRestarts := rapid.IntRange(0, 10).Draw(rt, "maxRestarts")
		numFailures := rapid.IntRange(0, 20).Draw(rt, "numFailures")

		strategy := NewOneForOneStrategy(maxRestarts, time.Hour)
		stats := NewRestartStatistics()
		pid := NewLocalPID("probed")

		escalatedAt := -1
		for i := 0; i < numFailures; i++ {
			d := strategy.HandleFailure(FailureInfo{
				Child: pid, Reason: errBoom, Stats: stats,
			})
			if d == Escalate {
				escalatedAt = i
				break
			}
			if d != Restart {
				rt.Fatalf("unexpected directive %v with nil Decider", d)
			}
		}

		if maxRestarts <= 0 {
			// MaxRestarts<=0 means the bound check never fires; every
			// failure restarts.
			if escalatedAt != -1 {
				rt.Fatalf("strategy escalated at %d despite MaxRestarts=%d (unbounded)", escalatedAt, maxRestarts)
			}
			return
		}

		if numFailures <= maxRestarts {
			if escalatedAt != -1 {
				rt.Fatalf("escalated at failure %d, within MaxRestarts=%d bound", escalatedAt, maxRestarts)
			}
		} else {
			if escalatedAt != maxRestarts {
				rt.Fatalf("expected Escalate exactly at failure index %d (0-based), got %d", maxRestarts, escalatedAt)
			}
		}
	})
}
