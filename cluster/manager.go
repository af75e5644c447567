package cluster

import (
	"context"
	"sync"
	"time"
)

// ReconnectionStrategy controls how a node backs off between attempts
// to re-establish contact with a Suspected peer's transport.
type ReconnectionStrategy int

const (
	// Immediate retries on every tick with no backoff.
	Immediate ReconnectionStrategy = iota

	// ExponentialBackoff doubles the retry interval up to a cap after
	// each consecutive failure.
	ExponentialBackoff

	// Linear increases the retry interval by a fixed step after each
	// consecutive failure.
	Linear
)

// MembershipProtocol selects how nodes exchange liveness information.
type MembershipProtocol int

const (
	// ProtocolGossip exchanges digests with a random peer subset each
	// round (see Gossip).
	ProtocolGossip MembershipProtocol = iota

	// ProtocolMulticast would broadcast heartbeats to all peers at
	// once; not implemented by this package (see DESIGN.md) but named
	// here so Config can select it without a breaking change later.
	ProtocolMulticast

	// ProtocolStatic disables peer discovery entirely: membership starts
	// from the seed list and changes only through direct heartbeats and
	// the sweeper, which marks a silent seed Suspected and removes it
	// once Dead, like any other peer.
	ProtocolStatic
)

// Config is the full per-cluster configuration surface named in
// spec.md §6.
type Config struct {
	// HeartbeatInterval is how often this node emits its own
	// heartbeat/gossip round.
	HeartbeatInterval time.Duration

	// FailureDetectionThreshold is ActiveThreshold in Thresholds terms:
	// how long since the last heartbeat before a peer is Suspected.
	// DeadThreshold is always 2x this value, per spec.md §4.9.
	FailureDetectionThreshold time.Duration

	ReconnectionStrategy ReconnectionStrategy
	MembershipProtocol   MembershipProtocol

	// SeedNodes bootstraps the initial peer set by address.
	SeedNodes []string

	// GossipFanout is how many random peers each gossip round contacts
	// (only consulted when MembershipProtocol == ProtocolGossip).
	GossipFanout int
}

// DefaultConfig mirrors Membership's and Gossip's own package defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:         time.Second,
		FailureDetectionThreshold: 5 * time.Second,
		ReconnectionStrategy:      ExponentialBackoff,
		MembershipProtocol:        ProtocolGossip,
		GossipFanout:              3,
	}
}

// Manager is the single public facade spec.md §6 names as
// ClusterManager: it owns a Membership, drives its Tick loop and
// (when configured) a Gossip round, and exposes registration,
// heartbeat, and metrics accessors plus an event subscription.
//
// Grounded on the teacher's HeartbeatManager lifecycle (a single
// background goroutine ticking on a time.Ticker, Start/Stop guarded by
// a done channel) generalized from one process's agents to a cluster's
// nodes.
type Manager struct {
	cfg        Config
	membership *Membership
	gossip     *Gossip
	events     *EventBus
	metrics    *Metrics

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	backoffs map[string]time.Duration
}

// NewManager constructs a Manager for a node named selfID reachable at
// selfAddr. transport is used for gossip exchanges when cfg selects
// ProtocolGossip; it may be nil for ProtocolStatic.
func NewManager(selfID, selfAddr string, cfg Config, transport Transport) *Manager {
	events := NewEventBus()
	thresholds := Thresholds{
		ActiveThreshold: cfg.FailureDetectionThreshold,
		DeadThreshold:   2 * cfg.FailureDetectionThreshold,
	}
	membership := NewMembership(selfID, selfAddr, thresholds, events)

	m := &Manager{
		cfg:        cfg,
		membership: membership,
		events:     events,
		metrics:    NewMetrics(),
		backoffs:   make(map[string]time.Duration),
	}

	if cfg.MembershipProtocol == ProtocolGossip && transport != nil {
		gcfg := GossipConfig{
			Fanout:   cfg.GossipFanout,
			Interval: cfg.HeartbeatInterval,
		}
		m.gossip = NewGossip(membership, transport, gcfg)
	}

	for _, seed := range cfg.SeedNodes {
		membership.Join(seed, seed, 1)
	}

	return m
}

// Start begins the membership sweeper (and gossip rounds, if
// configured) on background goroutines. Safe to call only once; a
// second Start before Stop is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.sweepLoop(runCtx)
	}()

	if m.gossip != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.gossip.Run(runCtx)
		}()
	}
}

// Stop halts the sweeper and gossip loop and waits for them to exit.
// Idempotent: calling Stop twice has the same observable effect as
// calling it once.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *Manager) sweepLoop(ctx context.Context) {
	interval := m.cfg.FailureDetectionThreshold / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.membership.Tick()
			m.refreshMetrics()
		}
	}
}

func (m *Manager) refreshMetrics() {
	snap := m.membership.Snapshot()
	var active, suspected int
	for _, n := range snap {
		switch n.Status {
		case Active:
			active++
		case Suspected:
			suspected++
		}
	}
	// Dead peers are removed from the registry the instant they're
	// detected (spec.md §4.9 step 4), so the snapshot never holds one;
	// DeadTotal is the lifetime count of removals instead.
	m.metrics.setCounts(active, suspected, m.membership.DeadTotal())
}

// RegisterNode records a peer joining the cluster, per spec.md §6's
// ClusterManager.registerNode.
func (m *Manager) RegisterNode(id, addr string, incarnation uint64) {
	m.membership.Join(id, addr, incarnation)
}

// UpdateNodeHeartbeat records a liveness signal from id, per spec.md
// §6's ClusterManager.updateNodeHeartbeat.
func (m *Manager) UpdateNodeHeartbeat(id string) {
	m.membership.RecordHeartbeat(id)
}

// GetNodeInfo returns the current view of a single peer.
func (m *Manager) GetNodeInfo(id string) (NodeInfo, bool) {
	return m.membership.Get(id)
}

// GetMetrics returns the cluster's active/suspected/dead node counts.
func (m *Manager) GetMetrics() ClusterMetrics {
	return m.metrics.snapshot()
}

// On subscribes to membership events (NodeJoined, NodeActive,
// NodeSuspected, NodeRecovered, NodeLeft), per spec.md §4.9's event
// vocabulary.
func (m *Manager) On() <-chan Event {
	return m.events.Subscribe()
}

// Snapshot returns every known peer's current NodeInfo.
func (m *Manager) Snapshot() []NodeInfo {
	return m.membership.Snapshot()
}

// RecordTransportFailure feeds an outbound failure for id into the
// failure detector, applying the configured ReconnectionStrategy's
// backoff before the next retry is attempted by callers that consult
// NextRetryDelay.
func (m *Manager) RecordTransportFailure(id string) {
	m.membership.RecordTransportFailure(id)

	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.cfg.ReconnectionStrategy {
	case ExponentialBackoff:
		cur := m.backoffs[id]
		if cur == 0 {
			cur = m.cfg.HeartbeatInterval
		}
		next := cur * 2
		if cap := 30 * time.Second; next > cap {
			next = cap
		}
		m.backoffs[id] = next
	case Linear:
		m.backoffs[id] += m.cfg.HeartbeatInterval
	case Immediate:
		m.backoffs[id] = m.cfg.HeartbeatInterval
	}
}

// RecordTransportSuccess resets id's reconnection backoff.
func (m *Manager) RecordTransportSuccess(id string) {
	m.membership.RecordTransportSuccess(id)

	m.mu.Lock()
	delete(m.backoffs, id)
	m.mu.Unlock()
}

// NextRetryDelay returns how long a caller should wait before its next
// attempt to reach id, per the configured ReconnectionStrategy.
func (m *Manager) NextRetryDelay(id string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.backoffs[id]; ok {
		return d
	}
	return m.cfg.HeartbeatInterval
}
