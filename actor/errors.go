package actor

import "errors"

// The following sentinel errors form the runtime's closed error-kind set.
// Every failure surfaced across actor, workerpool, remote, and cluster
// resolves to one of these (wrapped with context via fmt.Errorf's %w).
var (
	// ErrActorTerminated indicates that an operation failed because the
	// target actor was terminated or in the process of shutting down.
	ErrActorTerminated = errors.New("actor terminated")

	// ErrMailboxFull indicates a bounded mailbox rejected a send because
	// it was at capacity.
	ErrMailboxFull = errors.New("mailbox full")

	// ErrActorNotFound indicates a send target is unknown locally and was
	// not resolvable as a remote address either.
	ErrActorNotFound = errors.New("actor not found")

	// ErrRequestTimeout indicates an ask exceeded its caller-provided
	// timeout before a reply arrived.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrSupervisorEscalation indicates a supervisor's policy returned
	// Escalate, re-raising the fault in the parent's context.
	ErrSupervisorEscalation = errors.New("supervisor escalation")

	// ErrInvariantViolated indicates an internal defect. Recovery is not
	// attempted; callers should treat this as fatal.
	ErrInvariantViolated = errors.New("invariant violated")

	// ErrServiceKeyTypeMismatch indicates that a registration attempt
	// failed because the service key name is already registered with a
	// different message or response type.
	ErrServiceKeyTypeMismatch = errors.New("service key type mismatch")

	// ErrTaskTimeout indicates a worker-pool task exceeded its timeout
	// before completing.
	ErrTaskTimeout = errors.New("task timeout")

	// ErrWorkerFailed indicates a worker-pool worker crashed while
	// processing a task; the task's future is rejected with this error.
	ErrWorkerFailed = errors.New("worker failed")

	// ErrQueueFull indicates a bounded worker-pool queue rejected a
	// submitTask because it was at capacity.
	ErrQueueFull = errors.New("queue full")

	// ErrTransportError indicates a remote send or ask failed at the
	// wire layer (connection, serialization, or peer-side rejection).
	ErrTransportError = errors.New("transport error")

	// ErrPeerUnreachable indicates the target of a remote operation is a
	// node the cluster membership view considers Dead.
	ErrPeerUnreachable = errors.New("peer unreachable")
)
