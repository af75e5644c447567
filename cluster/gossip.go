package cluster

import (
	"context"
	"math/rand/v2"
	"time"
)

// Transport is the minimal peer-exchange primitive Gossip needs: push a
// batch of digests to a peer and get its batch back. A remote.Bridge
// can implement this by carrying GossipDigest values as an
// actor.Message over its existing Transport.
type Transport interface {
	Exchange(ctx context.Context, peerAddr string, digests []NodeInfo) ([]NodeInfo, error)
}

// GossipConfig controls the gossip round's fan-out and cadence.
type GossipConfig struct {
	// Fanout is how many random peers each round gossips with.
	Fanout int

	// Interval is the time between rounds.
	Interval time.Duration
}

// DefaultGossipConfig gossips with 3 random peers every second.
func DefaultGossipConfig() GossipConfig {
	return GossipConfig{Fanout: 3, Interval: time.Second}
}

// Gossip periodically exchanges membership digests with a random
// subset of peers, merging what it learns into a Membership. Each
// node's view converges without any single point of failure:
// conflicting digests resolve by incarnation, then by status
// precedence (see Membership.merge).
type Gossip struct {
	membership *Membership
	transport  Transport
	cfg        GossipConfig
}

// NewGossip constructs a Gossip driving membership over transport.
func NewGossip(membership *Membership, transport Transport, cfg GossipConfig) *Gossip {
	return &Gossip{membership: membership, transport: transport, cfg: cfg}
}

// Run drives gossip rounds until ctx is cancelled.
func (g *Gossip) Run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.round(ctx)
		}
	}
}

func (g *Gossip) round(ctx context.Context) {
	peers := g.membership.Snapshot()
	targets := g.pickPeers(peers, g.cfg.Fanout)

	digests := g.membership.Snapshot()

	for _, peer := range targets {
		remoteDigests, err := g.transport.Exchange(ctx, peer.Address, digests)
		if err != nil {
			g.membership.RecordTransportFailure(peer.ID)
			log.DebugS(ctx, "cluster gossip exchange failed",
				"peer", peer.ID, "error", err)
			continue
		}

		g.membership.RecordTransportSuccess(peer.ID)
		for _, d := range remoteDigests {
			g.membership.merge(d)
		}
	}
}

// pickPeers selects up to n random peers from candidates, excluding
// this node itself and any already-Dead peer (no point gossiping with
// the presumed-gone).
func (g *Gossip) pickPeers(candidates []NodeInfo, n int) []NodeInfo {
	eligible := make([]NodeInfo, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == g.membership.selfID || c.Status == Dead {
			continue
		}
		eligible = append(eligible, c)
	}

	rand.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})

	if n > len(eligible) {
		n = len(eligible)
	}
	return eligible[:n]
}

// RespondDigests computes this node's reply to an incoming gossip
// exchange: merge the peer's digests, then answer with our own current
// snapshot.
func (m *Membership) RespondDigests(incoming []NodeInfo) []NodeInfo {
	for _, d := range incoming {
		m.merge(d)
	}
	return m.Snapshot()
}
