package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordHeartbeatMarksActive(t *testing.T) {
	m := NewMembership("self", "self:7000", DefaultThresholds(), NewEventBus())

	m.RecordHeartbeat("peer-a")

	info, ok := m.Get("peer-a")
	require.True(t, ok)
	require.Equal(t, Active, info.Status)
}

func TestTickTransitionsThroughSuspectedToDead(t *testing.T) {
	cfg := Thresholds{ActiveThreshold: 10 * time.Millisecond, DeadThreshold: 30 * time.Millisecond}
	m := NewMembership("self", "self:7000", cfg, NewEventBus())

	base := time.Now()
	restoreTimeNow(t, &base)

	m.RecordHeartbeat("peer-a")

	base = base.Add(20 * time.Millisecond)
	m.Tick()
	info, _ := m.Get("peer-a")
	require.Equal(t, Suspected, info.Status)

	// Crossing DeadThreshold removes the peer from the registry
	// entirely (spec.md §4.9 step 4), rather than leaving it visible
	// with a Dead status.
	base = base.Add(30 * time.Millisecond)
	m.Tick()
	_, ok := m.Get("peer-a")
	require.False(t, ok, "a Dead peer must be removed from the registry")
	require.Equal(t, 1, m.DeadTotal())
}

func TestTickRecoversToActiveOnFreshHeartbeat(t *testing.T) {
	cfg := Thresholds{ActiveThreshold: 10 * time.Millisecond, DeadThreshold: 30 * time.Millisecond}
	m := NewMembership("self", "self:7000", cfg, NewEventBus())

	base := time.Now()
	restoreTimeNow(t, &base)

	m.RecordHeartbeat("peer-a")
	base = base.Add(50 * time.Millisecond)
	m.Tick()
	_, ok := m.Get("peer-a")
	require.False(t, ok, "a Dead peer must be removed from the registry")

	// A heartbeat from a peer not in the registry is recorded fresh at
	// Active, exactly as it would for a never-before-seen peer.
	m.RecordHeartbeat("peer-a")
	info, _ := m.Get("peer-a")
	require.Equal(t, Active, info.Status)
}

func TestTransportFailureTripsBreakerAndForcesDead(t *testing.T) {
	cfg := Thresholds{ActiveThreshold: time.Hour, DeadThreshold: time.Hour}
	m := NewMembership("self", "self:7000", cfg, NewEventBus())

	m.RecordHeartbeat("peer-a")

	for i := 0; i < 3; i++ {
		m.RecordTransportFailure("peer-a")
	}

	m.Tick()

	_, ok := m.Get("peer-a")
	require.False(t, ok, "breaker tripping should force Dead, and removal, even with a fresh heartbeat")
	require.Equal(t, 1, m.DeadTotal())
}

func TestSelfIsNeverReevaluatedByTick(t *testing.T) {
	m := NewMembership("self", "self:7000", DefaultThresholds(), NewEventBus())

	m.Tick()

	self := m.Self()
	require.Equal(t, Active, self.Status)
}

func TestMergeHigherIncarnationWins(t *testing.T) {
	m := NewMembership("self", "self:7000", DefaultThresholds(), NewEventBus())

	m.merge(NodeInfo{ID: "peer-a", Incarnation: 1, Status: Active})
	m.merge(NodeInfo{ID: "peer-a", Incarnation: 0, Status: Dead})

	info, _ := m.Get("peer-a")
	require.Equal(t, Active, info.Status, "lower incarnation digest must not overwrite a higher one")
}

func TestMergeSameIncarnationDeadBeatsActive(t *testing.T) {
	m := NewMembership("self", "self:7000", DefaultThresholds(), NewEventBus())

	m.merge(NodeInfo{ID: "peer-a", Incarnation: 5, Status: Active})
	m.merge(NodeInfo{ID: "peer-a", Incarnation: 5, Status: Dead})

	_, ok := m.Get("peer-a")
	require.False(t, ok, "a Dead digest removes the peer from the registry, same as Tick does")
	require.Equal(t, 1, m.DeadTotal())
}

func TestEventBusPublishesJoinAndLeftTransitions(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe()

	cfg := Thresholds{ActiveThreshold: time.Millisecond, DeadThreshold: 2 * time.Millisecond}
	m := NewMembership("self", "self:7000", cfg, bus)

	m.RecordHeartbeat("peer-a")

	// RecordHeartbeat on an unknown peer records it fresh at Active
	// rather than Joining, so only NodeJoined fires here, not NodeActive.
	ev := <-sub
	require.Equal(t, NodeJoined, ev.Kind)
	require.Equal(t, "peer-a", ev.Node)

	time.Sleep(5 * time.Millisecond)
	m.Tick()
	m.Tick()

	seenSuspected, seenLeft := false, false
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub:
			switch ev.Kind {
			case NodeSuspected:
				seenSuspected = true
			case NodeLeft:
				seenLeft = true
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for status-transition events")
		}
	}
	require.True(t, seenSuspected)
	require.True(t, seenLeft)
}

// restoreTimeNow swaps the package's timeNow indirection to read from a
// pointer the test controls, restoring the real clock on cleanup.
func restoreTimeNow(t *testing.T, cur *time.Time) {
	t.Helper()
	orig := timeNow
	timeNow = func() time.Time { return *cur }
	t.Cleanup(func() { timeNow = orig })
}
