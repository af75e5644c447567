// Package actor implements a local actor runtime: isolated,
// message-passing cells with per-cell single-threaded dispatch, a
// supervision tree, and a receptionist for service discovery. It is the
// core that the remote/cluster and worker-pool layers build on.
package actor

import (
	"context"
	"fmt"
	"iter"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// BaseMessage is a helper struct that can be embedded in message types
// defined outside this package to satisfy the Message interface's
// unexported messageMarker method.
type BaseMessage struct{}

// messageMarker implements the unexported method for the Message
// interface, allowing types that embed BaseMessage to satisfy it.
func (BaseMessage) messageMarker() {}

// Message is a sealed interface for actor messages. The interface is
// "sealed" by the unexported messageMarker method, meaning only types
// that embed BaseMessage (or live in this package) can satisfy it.
type Message interface {
	// messageMarker is a private method that makes this a sealed
	// interface (see BaseMessage for embedding).
	messageMarker()

	// MessageType returns the type name of the message for
	// routing/filtering/tracing.
	MessageType() string
}

// PriorityMessage is an extension of Message for messages that carry a
// priority level. No component of this package reads Priority: the
// mailbox's user lane is plain FIFO, and ConsistentHashStrategy keys on
// HashableMessage instead.
type PriorityMessage interface {
	Message

	// Priority returns the processing priority of this message (higher
	// is more important).
	Priority() int
}

// Future represents the result of an asynchronous computation.
type Future[T any] interface {
	// Await blocks until the result is available or the context is
	// cancelled, then returns it.
	Await(ctx context.Context) fn.Result[T]

	// ThenApply registers a function to transform the result of a
	// future. The original future is not modified; a new instance is
	// returned.
	ThenApply(ctx context.Context, fn func(T) T) Future[T]

	// OnComplete registers a function to be called when the result of
	// the future is ready.
	OnComplete(ctx context.Context, fn func(fn.Result[T]))
}

// Promise allows completion of an associated Future.
type Promise[T any] interface {
	// Future returns the Future associated with this Promise.
	Future() Future[T]

	// Complete attempts to set the result of the future. Returns true
	// if this call was the first to complete it.
	Complete(result fn.Result[T]) bool
}

// BaseActorRef is a non-generic base interface for all actor references,
// enabling heterogeneous storage (e.g. the Receptionist's registration
// map).
type BaseActorRef interface {
	// ID returns the unique identifier for this actor.
	ID() string
}

// TellOnlyRef is a reference to an actor that only supports fire-and-forget
// sends.
type TellOnlyRef[M Message] interface {
	BaseActorRef

	// Tell sends a message without waiting for a response. If ctx is
	// cancelled before the message reaches the mailbox, the message may
	// be dropped (and routed to the dead letter office).
	Tell(ctx context.Context, msg M)
}

// ActorRef is a reference to an actor supporting both Tell and Ask.
type ActorRef[M Message, R any] interface {
	TellOnlyRef[M]

	// Ask sends a message and returns a Future for the response.
	Ask(ctx context.Context, msg M) Future[R]
}

// ActorBehavior defines the logic for how an actor processes incoming
// messages in its current behavior-stack frame.
type ActorBehavior[M Message, R any] interface {
	// Receive processes a message and returns a Result. The context
	// merges the cell's lifecycle context with the caller's request
	// context for Ask sends.
	Receive(ctx context.Context, msg M) fn.Result[R]
}

// Stoppable is an optional interface ActorBehavior implementations can
// satisfy to run cleanup when the actor is stopping.
type Stoppable interface {
	// OnStop is called after the message loop exits but before the
	// cell's goroutine terminates. Errors are logged, never propagated.
	OnStop(ctx context.Context) error
}

// Startable is an optional interface for one-time setup before the first
// message is processed (spec's preStart hook).
type Startable interface {
	// OnStart runs once, before the mailbox is drained for the first
	// time.
	OnStart(ctx context.Context) error
}

// SystemContext is the minimal interface needed by actors and service
// keys, enabling dependency injection and unit testing without a full
// ActorSystem.
type SystemContext interface {
	// Receptionist returns the system's receptionist for actor
	// discovery.
	Receptionist() *Receptionist

	// DeadLetters returns a reference to the dead letter actor for
	// undeliverable messages.
	DeadLetters() ActorRef[Message, any]
}

// Mailbox defines the interface for an actor's message queue, split into
// a system lane (priority: Stop, Restart, Watch, Unwatch, Terminated)
// and a user lane. The system lane is always fully drained before the
// user lane within a single turn.
//
// Thread safety:
//   - SendUser/SendSystem/TrySendUser may be called concurrently from
//     multiple goroutines.
//   - DrainTurn should only be called from the cell's own dispatch turn.
//   - Close may be called concurrently with sends and is idempotent.
//   - IsClosed may be called concurrently from any goroutine.
type Mailbox[M Message, R any] interface {
	// SendSystem enqueues a system-lane message, blocking until
	// accepted, ctx is cancelled, or the actor's context is cancelled.
	// System messages are type-erased (SystemMessage) since they are
	// identical across every cell regardless of M, R.
	SendSystem(ctx context.Context, msg SystemMessage) bool

	// SendUser enqueues a user-lane envelope, with the same blocking
	// semantics as SendSystem, except that a bounded user lane returns
	// false at once when full instead of blocking.
	SendUser(ctx context.Context, env envelope[M, R]) bool

	// TrySendUser attempts to enqueue a user-lane envelope without
	// blocking.
	TrySendUser(env envelope[M, R]) bool

	// Wait blocks until at least one message is available in either
	// lane, the mailbox is closed, or ctx is cancelled. It returns false
	// when the mailbox is closed and empty.
	Wait(ctx context.Context) bool

	// DrainTurn drains a single turn's worth of work: the entire system
	// lane first, then up to maxUser user-lane envelopes. maxUser <= 0
	// means "system lane only, no user messages this turn".
	DrainTurn(maxUser int) (sys []SystemMessage, user []envelope[M, R])

	// Close closes the mailbox, preventing further sends.
	Close()

	// IsClosed returns true if the mailbox has been closed.
	IsClosed() bool

	// DrainRemaining returns an iterator over any user-lane envelopes
	// left after Close. Used during shutdown to route to the dead
	// letter office. System-lane messages are not drained; they are
	// moot once the cell is gone.
	DrainRemaining() iter.Seq[envelope[M, R]]
}

// systemKind identifies the built-in system messages that travel on the
// mailbox's priority lane.
type systemKind int

const (
	sysUser systemKind = iota
	sysStop
	sysRestart
	sysWatch
	sysUnwatch
	sysTerminated
)

// SystemMessage is implemented by built-in lifecycle messages that must
// always be routed to the mailbox's system lane rather than the user
// lane, regardless of what type parameter the cell is instantiated with.
type SystemMessage interface {
	Message
	systemKind() systemKind
}

// compile-time interface satisfaction checks.
var (
	_ fmt.Stringer = (*Address)(nil)
)
