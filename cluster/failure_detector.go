package cluster

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// PeerBreakers holds one circuit breaker per peer node, wrapping
// outbound heartbeat/gossip/remote-send calls. Repeated failures to a
// given peer trip its breaker, which Membership.Tick treats as
// equivalent to that peer being Dead even if its heartbeat hasn't
// technically aged past DeadThreshold yet: a peer whose transport is
// refusing connections is unreachable regardless of what its last
// heartbeat timestamp says.
type PeerBreakers struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

// NewPeerBreakers constructs an empty PeerBreakers.
func NewPeerBreakers() *PeerBreakers {
	return &PeerBreakers{
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

func (p *PeerBreakers) breakerFor(id string) *gobreaker.CircuitBreaker[struct{}] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if b, ok := p.breakers[id]; ok {
		return b
	}

	b := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "peer:" + id,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	p.breakers[id] = b
	return b
}

// RecordFailure feeds a failed outbound call for id into its breaker.
func (p *PeerBreakers) RecordFailure(id string) {
	b := p.breakerFor(id)
	_, _ = b.Execute(func() (struct{}, error) {
		return struct{}{}, errTransportProbeFailed
	})
}

// RecordSuccess feeds a successful outbound call for id into its
// breaker.
func (p *PeerBreakers) RecordSuccess(id string) {
	b := p.breakerFor(id)
	_, _ = b.Execute(func() (struct{}, error) {
		return struct{}{}, nil
	})
}

// IsOpen reports whether id's breaker is currently open (tripped).
func (p *PeerBreakers) IsOpen(id string) bool {
	p.mu.Lock()
	b, ok := p.breakers[id]
	p.mu.Unlock()

	if !ok {
		return false
	}
	return b.State() == gobreaker.StateOpen
}

// Reset clears id's breaker back to closed, used once a Suspected peer
// is heard from again.
func (p *PeerBreakers) Reset(id string) {
	p.mu.Lock()
	delete(p.breakers, id)
	p.mu.Unlock()
}

type transportProbeError struct{ s string }

func (e transportProbeError) Error() string { return e.s }

var errTransportProbeFailed = transportProbeError{s: "cluster: transport probe failed"}
