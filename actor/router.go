package actor

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// RoutingStrategy selects which routee(s) a message is delivered to.
// Grounded on the teacher's actorutil.Pool round-robin scheduling,
// generalized into a pluggable interface per spec.md §4.6 so a Router
// can swap strategies without changing its own bookkeeping.
type RoutingStrategy[M Message, R any] interface {
	// Select returns the routees that msg should be delivered to. Most
	// strategies return exactly one; BroadcastStrategy returns all of
	// them.
	Select(routees []ActorRef[M, R], msg M) []ActorRef[M, R]
}

// RoundRobinStrategy cycles through routees in order, matching the
// teacher's Pool.Tell/Ask indexing.
type RoundRobinStrategy[M Message, R any] struct {
	next atomic.Uint64
}

// NewRoundRobinStrategy returns a RoundRobinStrategy.
func NewRoundRobinStrategy[M Message, R any]() *RoundRobinStrategy[M, R] {
	return &RoundRobinStrategy[M, R]{}
}

// Select implements RoutingStrategy.
func (s *RoundRobinStrategy[M, R]) Select(
	routees []ActorRef[M, R], _ M,
) []ActorRef[M, R] {
	if len(routees) == 0 {
		return nil
	}
	idx := s.next.Add(1) % uint64(len(routees))
	return routees[idx : idx+1]
}

// BroadcastStrategy delivers to every routee, matching the teacher's
// Pool.Broadcast/BroadcastAsk.
type BroadcastStrategy[M Message, R any] struct{}

// NewBroadcastStrategy returns a BroadcastStrategy.
func NewBroadcastStrategy[M Message, R any]() *BroadcastStrategy[M, R] {
	return &BroadcastStrategy[M, R]{}
}

// Select implements RoutingStrategy.
func (s *BroadcastStrategy[M, R]) Select(
	routees []ActorRef[M, R], _ M,
) []ActorRef[M, R] {
	return routees
}

// RandomStrategy picks a uniformly random routee per message.
type RandomStrategy[M Message, R any] struct{}

// NewRandomStrategy returns a RandomStrategy.
func NewRandomStrategy[M Message, R any]() *RandomStrategy[M, R] {
	return &RandomStrategy[M, R]{}
}

// Select implements RoutingStrategy.
func (s *RandomStrategy[M, R]) Select(
	routees []ActorRef[M, R], _ M,
) []ActorRef[M, R] {
	if len(routees) == 0 {
		return nil
	}
	idx := rand.IntN(len(routees))
	return routees[idx : idx+1]
}

// HashableMessage is implemented by messages that carry their own
// routing key, used by ConsistentHashStrategy to keep related messages
// on the same routee (e.g. per-entity ordering).
type HashableMessage interface {
	Message
	RoutingKey() string
}

// ConsistentHashStrategy routes a HashableMessage to the routee whose
// index the message's routing key hashes to. Non-HashableMessage values
// fall back to round-robin so the router still makes progress.
type ConsistentHashStrategy[M Message, R any] struct {
	fallback *RoundRobinStrategy[M, R]
}

// NewConsistentHashStrategy returns a ConsistentHashStrategy.
func NewConsistentHashStrategy[M Message, R any]() *ConsistentHashStrategy[M, R] {
	return &ConsistentHashStrategy[M, R]{
		fallback: NewRoundRobinStrategy[M, R](),
	}
}

// Select implements RoutingStrategy.
func (s *ConsistentHashStrategy[M, R]) Select(
	routees []ActorRef[M, R], msg M,
) []ActorRef[M, R] {
	if len(routees) == 0 {
		return nil
	}

	hm, ok := Message(msg).(HashableMessage)
	if !ok {
		return s.fallback.Select(routees, msg)
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(hm.RoutingKey()))
	idx := int(h.Sum32()) % len(routees)
	if idx < 0 {
		idx += len(routees)
	}

	return routees[idx : idx+1]
}

// RouterConfig configures a Router.
type RouterConfig[M Message, R any] struct {
	// ID identifies this router for logging/tracing.
	ID string

	// Strategy selects routees per message. Defaults to round-robin.
	Strategy RoutingStrategy[M, R]

	// Routees is the initial set of actor references to route to.
	Routees []ActorRef[M, R]
}

// Router distributes messages across a dynamic set of routees according
// to a RoutingStrategy, generalizing the teacher's actorutil.Pool (which
// hard-coded round-robin) into spec.md §4.6's pluggable-strategy router
// with live AddRoutee/RemoveRoutee.
type Router[M Message, R any] struct {
	id       string
	strategy RoutingStrategy[M, R]

	mu      sync.RWMutex
	routees []ActorRef[M, R]
}

// NewRouter creates a Router. Management (AddRoutee/RemoveRoutee) is
// copy-on-write under a mutex; the hot Tell/Ask path only takes a read
// lock to snapshot the current routee slice.
func NewRouter[M Message, R any](cfg RouterConfig[M, R]) *Router[M, R] {
	strategy := cfg.Strategy
	if strategy == nil {
		strategy = NewRoundRobinStrategy[M, R]()
	}

	routees := make([]ActorRef[M, R], len(cfg.Routees))
	copy(routees, cfg.Routees)

	return &Router[M, R]{
		id:       cfg.ID,
		strategy: strategy,
		routees:  routees,
	}
}

// ID implements BaseActorRef.
func (r *Router[M, R]) ID() string { return r.id }

// AddRoutee adds ref to the routing set.
func (r *Router[M, R]) AddRoutee(ref ActorRef[M, R]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]ActorRef[M, R], len(r.routees)+1)
	copy(next, r.routees)
	next[len(r.routees)] = ref
	r.routees = next
}

// RemoveRoutee removes ref from the routing set, matched by ID.
func (r *Router[M, R]) RemoveRoutee(ref ActorRef[M, R]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]ActorRef[M, R], 0, len(r.routees))
	for _, existing := range r.routees {
		if existing.ID() != ref.ID() {
			next = append(next, existing)
		}
	}
	r.routees = next
}

// GetRoutees returns a snapshot of the current routing set.
func (r *Router[M, R]) GetRoutees() []ActorRef[M, R] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ActorRef[M, R], len(r.routees))
	copy(out, r.routees)
	return out
}

// snapshot returns the current routee slice without copying, safe
// because routees is always replaced wholesale (copy-on-write), never
// mutated in place.
func (r *Router[M, R]) snapshot() []ActorRef[M, R] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routees
}

// Tell implements TellOnlyRef: it selects routee(s) per the configured
// strategy and forwards the message to each.
func (r *Router[M, R]) Tell(ctx context.Context, msg M) {
	targets := r.strategy.Select(r.snapshot(), msg)
	for _, t := range targets {
		t.Tell(ctx, msg)
	}
}

// Ask implements ActorRef: for a single-target strategy it forwards
// directly; for BroadcastStrategy (multiple targets), only the first
// target's future is returned since Ask has exactly one reply slot.
// Callers that need every reply should use AskAll.
func (r *Router[M, R]) Ask(ctx context.Context, msg M) Future[R] {
	targets := r.strategy.Select(r.snapshot(), msg)
	if len(targets) == 0 {
		return AlreadyCompletedFuture[R](fn.Err[R](ErrActorNotFound))
	}
	return targets[0].Ask(ctx, msg)
}

// AskAll sends msg to every selected routee and returns one Future per
// target, mirroring the teacher's Pool.BroadcastAsk.
func (r *Router[M, R]) AskAll(ctx context.Context, msg M) []Future[R] {
	targets := r.strategy.Select(r.snapshot(), msg)
	futures := make([]Future[R], len(targets))
	for i, t := range targets {
		futures[i] = t.Ask(ctx, msg)
	}
	return futures
}
