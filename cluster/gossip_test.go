package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeGossipTransport simulates a single peer's membership view,
// answering Exchange by merging the caller's digests into its own and
// replying with its current snapshot, exactly like
// Membership.RespondDigests would over a real wire.
type fakeGossipTransport struct {
	peerMembership *Membership
}

func (f *fakeGossipTransport) Exchange(_ context.Context, _ string, digests []NodeInfo) ([]NodeInfo, error) {
	return f.peerMembership.RespondDigests(digests), nil
}

func TestGossipRoundMergesRemoteDigests(t *testing.T) {
	local := NewMembership("local", "local:7000", DefaultThresholds(), NewEventBus())

	remote := NewMembership("remote", "remote:7000", DefaultThresholds(), NewEventBus())
	remote.RecordHeartbeat("third-node")

	local.Join("remote", "remote:7000", 1)
	local.RecordHeartbeat("remote")

	gossip := NewGossip(local, &fakeGossipTransport{peerMembership: remote}, GossipConfig{
		Fanout:   1,
		Interval: time.Hour,
	})

	gossip.round(context.Background())

	_, ok := local.Get("third-node")
	require.True(t, ok, "gossip round should have learned about third-node from the remote peer")
}

func TestPickPeersExcludesSelfAndDead(t *testing.T) {
	local := NewMembership("local", "local:7000", DefaultThresholds(), NewEventBus())
	local.Join("alive", "alive:7000", 1)
	local.Join("gone", "gone:7000", 1)
	local.merge(NodeInfo{ID: "gone", Incarnation: 2, Status: Dead})

	gossip := NewGossip(local, nil, DefaultGossipConfig())

	picked := gossip.pickPeers(local.Snapshot(), 10)

	for _, p := range picked {
		require.NotEqual(t, "local", p.ID)
		require.NotEqual(t, "gone", p.ID)
	}
	require.Len(t, picked, 1)
	require.Equal(t, "alive", picked[0].ID)
}

func TestGossipRoundRecordsTransportFailure(t *testing.T) {
	local := NewMembership("local", "local:7000", DefaultThresholds(), NewEventBus())
	local.Join("unreachable", "unreachable:7000", 1)

	gossip := NewGossip(local, &erroringTransport{}, GossipConfig{Fanout: 1, Interval: time.Hour})
	gossip.round(context.Background())

	for i := 0; i < 3; i++ {
		gossip.round(context.Background())
	}

	require.True(t, local.breaker.IsOpen("unreachable"))
}

type erroringTransport struct{}

func (erroringTransport) Exchange(_ context.Context, _ string, _ []NodeInfo) ([]NodeInfo, error) {
	return nil, errGossipUnreachable
}

var errGossipUnreachable = gossipError("unreachable")

type gossipError string

func (e gossipError) Error() string { return string(e) }
