// Package cluster implements heartbeat/gossip-based membership for a
// set of actorkit nodes: liveness tracking, a bounded state machine per
// peer (Joining, Active, Suspected, Dead), and a failure detector that
// escalates Suspected->Dead faster when a peer's transport is tripping
// its circuit breaker rather than waiting purely on heartbeat age.
package cluster

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// NodeStatus is a peer's position in the membership state machine.
type NodeStatus string

const (
	// Joining is the initial status for a node that has announced
	// itself but hasn't yet sent a heartbeat this membership has seen.
	Joining NodeStatus = "joining"

	// Active means the node's last heartbeat arrived within
	// ActiveThreshold.
	Active NodeStatus = "active"

	// Suspected means the node's last heartbeat is older than
	// ActiveThreshold but not yet DeadThreshold; a failure detector
	// probe may accelerate this to Dead.
	Suspected NodeStatus = "suspected"

	// Dead means the node is presumed gone: either its heartbeat aged
	// past DeadThreshold, or its failure detector breaker is open.
	Dead NodeStatus = "dead"
)

// NodeInfo is a membership-local view of one cluster peer.
type NodeInfo struct {
	// ID is the node's stable identifier, minted once at join time.
	ID string

	// Address is the dial target (or pub/sub topic) peers use to reach
	// this node's remote.Transport.
	Address string

	// Incarnation increases every time the node restarts or
	// re-announces itself; higher incarnation always wins a gossip
	// conflict regardless of status.
	Incarnation uint64

	Status        NodeStatus
	LastHeartbeat time.Time
}

// statusRank orders statuses for gossip conflict resolution when two
// digests report the same incarnation: Dead beats Suspected beats
// Active beats Joining.
func statusRank(s NodeStatus) int {
	switch s {
	case Dead:
		return 3
	case Suspected:
		return 2
	case Active:
		return 1
	default:
		return 0
	}
}

// Thresholds configures how long since the last heartbeat before a
// node is considered Suspected, and then Dead.
type Thresholds struct {
	ActiveThreshold time.Duration
	DeadThreshold   time.Duration
}

// DefaultThresholds mirrors the teacher's agent-liveness windows,
// repurposed from agent heartbeats to node heartbeats: a shorter
// suspect window than the 5/30 minute agent defaults, since cluster
// membership needs to react within seconds, not minutes.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ActiveThreshold: 5 * time.Second,
		DeadThreshold:   10 * time.Second,
	}
}

// Membership tracks the liveness state of every known peer, including
// this node itself. Grounded on the teacher's HeartbeatManager
// (internal/agent/heartbeat.go): RecordHeartbeat plus a
// threshold-comparison ComputeStatus, repurposed from per-agent
// sessions to per-node heartbeats.
type Membership struct {
	selfID  string
	cfg     Thresholds
	events  *EventBus
	breaker *PeerBreakers

	mu    sync.RWMutex
	peers map[string]*NodeInfo

	// deadTotal counts every Suspected->Dead transition this Membership
	// has ever applied, since a dead peer is removed from peers on the
	// same transition and so can't be recovered by counting the map.
	deadTotal atomic.Int64
}

// NewMembership constructs a Membership for a node named selfID,
// already Active and at Address addr.
func NewMembership(selfID, addr string, cfg Thresholds, events *EventBus) *Membership {
	m := &Membership{
		selfID:  selfID,
		cfg:     cfg,
		events:  events,
		breaker: NewPeerBreakers(),
		peers:   make(map[string]*NodeInfo),
	}
	m.peers[selfID] = &NodeInfo{
		ID:            selfID,
		Address:       addr,
		Incarnation:   1,
		Status:        Active,
		LastHeartbeat: time.Now(),
	}
	return m
}

// NewNodeID mints a fresh node identifier for a joining process.
func NewNodeID() string {
	return uuid.NewString()
}

// Join records a newly-discovered peer in the Joining state. If the
// peer is already known with an equal or higher incarnation, Join is a
// no-op.
func (m *Membership) Join(id, addr string, incarnation uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.peers[id]; ok && existing.Incarnation >= incarnation {
		return
	}

	m.peers[id] = &NodeInfo{
		ID:          id,
		Address:     addr,
		Incarnation: incarnation,
		Status:      Joining,
	}
	m.events.publish(Event{Kind: NodeJoined, Node: id})
}

// RecordHeartbeat marks id as Active as of now. Unknown ids are
// recorded fresh at Active rather than rejected, since a heartbeat is
// itself proof of liveness.
func (m *Membership) RecordHeartbeat(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := timeNow()
	info, ok := m.peers[id]
	if !ok {
		m.peers[id] = &NodeInfo{ID: id, Incarnation: 1, Status: Active, LastHeartbeat: now}
		m.events.publish(Event{Kind: NodeJoined, Node: id})
		return
	}

	wasDown := info.Status == Suspected || info.Status == Dead
	wasJoining := info.Status == Joining
	info.LastHeartbeat = now
	info.Status = Active

	switch {
	case wasDown:
		m.breaker.Reset(id)
		m.events.publish(Event{Kind: NodeRecovered, Node: id})
	case wasJoining:
		m.events.publish(Event{Kind: NodeActive, Node: id})
	}
}

// Tick re-evaluates every peer's status against the configured
// thresholds and the failure detector's breaker state, publishing
// NodeSuspected/NodeLeft transitions as they occur. A peer that reaches
// Dead is removed from the registry in the same pass (spec.md §4.9 step
// 4). Call this periodically (e.g. every ActiveThreshold/2) from a
// background goroutine.
func (m *Membership) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := timeNow()
	for id, info := range m.peers {
		if id == m.selfID {
			continue
		}

		elapsed := now.Sub(info.LastHeartbeat)
		breakerOpen := m.breaker.IsOpen(id)

		next := info.Status
		switch {
		case breakerOpen, elapsed > m.cfg.DeadThreshold:
			next = Dead
		case elapsed > m.cfg.ActiveThreshold:
			next = Suspected
		default:
			if info.Status != Joining {
				next = Active
			}
		}

		if next == info.Status {
			continue
		}

		prev := info.Status
		info.Status = next
		switch next {
		case Suspected:
			m.events.publish(Event{Kind: NodeSuspected, Node: id})
		case Dead:
			// A peer still Active when it crosses DeadThreshold passes
			// through Suspected on its way out.
			if prev == Active {
				m.events.publish(Event{Kind: NodeSuspected, Node: id})
			}
			m.deadTotal.Add(1)
			m.events.publish(Event{Kind: NodeLeft, Node: id})
			delete(m.peers, id)
		}
	}
}

// RecordTransportFailure tells the failure detector that an outbound
// call to id failed, feeding its circuit breaker. Repeated failures
// trip the breaker and accelerate id's Suspected->Dead transition on
// the next Tick, independent of heartbeat age.
func (m *Membership) RecordTransportFailure(id string) {
	m.breaker.RecordFailure(id)
}

// RecordTransportSuccess tells the failure detector an outbound call to
// id succeeded.
func (m *Membership) RecordTransportSuccess(id string) {
	m.breaker.RecordSuccess(id)
}

// Snapshot returns a point-in-time copy of every known peer.
func (m *Membership) Snapshot() []NodeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]NodeInfo, 0, len(m.peers))
	for _, info := range m.peers {
		out = append(out, *info)
	}
	return out
}

// Self returns this node's own current NodeInfo.
func (m *Membership) Self() NodeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.peers[m.selfID]
}

// Get returns the current view of a single peer.
func (m *Membership) Get(id string) (NodeInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.peers[id]
	if !ok {
		return NodeInfo{}, false
	}
	return *info, true
}

// DeadTotal returns the lifetime count of Suspected->Dead transitions
// this Membership has applied. Dead peers are removed from the
// registry on the same transition, so this is the only way to recover
// the "dead" count spec.md §4.9 names among its metrics counters.
func (m *Membership) DeadTotal() int {
	return int(m.deadTotal.Load())
}

// merge folds a gossiped digest into the local view, keeping whichever
// side has the higher incarnation, and on a tie, the higher-ranked
// status (Dead > Suspected > Active > Joining).
func (m *Membership) merge(digest NodeInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.peers[digest.ID]
	if !ok {
		cp := digest
		m.peers[digest.ID] = &cp
		m.events.publish(Event{Kind: NodeJoined, Node: digest.ID})
		return
	}

	if digest.Incarnation < existing.Incarnation {
		return
	}
	if digest.Incarnation == existing.Incarnation &&
		statusRank(digest.Status) <= statusRank(existing.Status) {
		return
	}

	prevStatus := existing.Status
	*existing = digest

	// A Dead peer is deleted from m.peers the instant it's detected (see
	// below and Tick), so prevStatus can never already be Dead here: the
	// "not ok" branch above handles a digest about a peer this node no
	// longer knows, including one that was previously removed.
	if prevStatus != Dead && digest.Status == Dead {
		m.deadTotal.Add(1)
		m.events.publish(Event{Kind: NodeLeft, Node: digest.ID})
		delete(m.peers, digest.ID)
	}
}

// timeNow is a package-level indirection point for deterministic tests,
// mirroring the actor package's same pattern for RestartStatistics.
var timeNow = time.Now
