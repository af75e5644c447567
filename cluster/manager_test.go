package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManagerRegisterAndHeartbeat(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.FailureDetectionThreshold = 50 * time.Millisecond

	mgr := NewManager("self", "self:7070", cfg, nil)
	mgr.RegisterNode("peer-a", "peer-a:7070", 1)

	info, ok := mgr.GetNodeInfo("peer-a")
	require.True(t, ok)
	require.Equal(t, Joining, info.Status)

	mgr.UpdateNodeHeartbeat("peer-a")
	info, ok = mgr.GetNodeInfo("peer-a")
	require.True(t, ok)
	require.Equal(t, Active, info.Status)
}

func TestManagerStartStopSweepsToSuspectedAndDead(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.FailureDetectionThreshold = 30 * time.Millisecond
	cfg.MembershipProtocol = ProtocolStatic

	mgr := NewManager("self", "self:7070", cfg, nil)
	mgr.RegisterNode("peer-a", "peer-a:7070", 1)
	mgr.UpdateNodeHeartbeat("peer-a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop()

	require.Eventually(t, func() bool {
		info, ok := mgr.GetNodeInfo("peer-a")
		return ok && info.Status == Suspected
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := mgr.GetNodeInfo("peer-a")
		return !ok
	}, 2*time.Second, 5*time.Millisecond, "a Dead peer is removed from the registry, not just flagged")

	metrics := mgr.GetMetrics()
	require.Equal(t, 1, metrics.Dead)
}

func TestManagerStopIsIdempotent(t *testing.T) {
	t.Parallel()

	mgr := NewManager("self", "self:7070", DefaultConfig(), nil)
	mgr.Start(context.Background())
	mgr.Stop()
	mgr.Stop()
}

func TestManagerReconnectionBackoffGrowsExponentially(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 100 * time.Millisecond
	cfg.ReconnectionStrategy = ExponentialBackoff

	mgr := NewManager("self", "self:7070", cfg, nil)
	mgr.RegisterNode("peer-a", "peer-a:7070", 1)

	first := mgr.NextRetryDelay("peer-a")
	mgr.RecordTransportFailure("peer-a")
	second := mgr.NextRetryDelay("peer-a")
	mgr.RecordTransportFailure("peer-a")
	third := mgr.NextRetryDelay("peer-a")

	require.Less(t, first, second)
	require.Less(t, second, third)

	mgr.RecordTransportSuccess("peer-a")
	require.Equal(t, cfg.HeartbeatInterval, mgr.NextRetryDelay("peer-a"))
}
