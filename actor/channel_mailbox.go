package actor

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
)

// ChannelMailbox is the default Mailbox implementation, backed by two Go
// channels: a small system lane (priority control messages) and a
// buffered user lane. It is grounded on the teacher's single-lane
// ChannelMailbox, generalized to the spec's two-lane, throughput-bounded
// contract (spec.md §4.1): the system lane always drains fully before any
// user message is taken for a turn.
type ChannelMailbox[M Message, R any] struct {
	sys  chan SystemMessage
	user chan envelope[M, R]

	// notify is a capacity-1 "something was enqueued" signal. Wait
	// selects on it without ever consuming a message payload, so it
	// never reorders sys/user relative to a concurrent sender; every
	// successful send attempts a non-blocking push onto it.
	notify chan struct{}

	// bounded reports whether the user lane has finite capacity, in
	// which case SendUser makes a non-blocking attempt and returns false
	// when the lane is full instead of blocking indefinitely; the cell's
	// ref reports that rejection as ErrMailboxFull.
	bounded bool

	closed    atomic.Bool
	mu        sync.RWMutex
	closeOnce sync.Once

	// actorCtx is the context governing the actor's lifecycle. When
	// cancelled, Wait/Send operations unblock.
	actorCtx context.Context
}

// MailboxConfig configures a ChannelMailbox.
type MailboxConfig struct {
	// UserCapacity is the buffer capacity of the user lane. <= 0 means
	// unbounded (a very large buffer is used, matching the spec's
	// "default unbounded" mailbox).
	UserCapacity int

	// SystemCapacity is the buffer capacity of the system lane. Defaults
	// to 16; system messages are rare and latency-sensitive, so this
	// should never need to be large.
	SystemCapacity int
}

// unboundedUserCapacity is used when MailboxConfig.UserCapacity is
// unset; large enough that legitimate workloads never observe the
// channel as "full", while still being a concrete, finite buffer (Go
// channels cannot be truly unbounded).
const unboundedUserCapacity = 1 << 20

// NewChannelMailbox creates a new dual-lane channel mailbox.
func NewChannelMailbox[M Message, R any](
	actorCtx context.Context, cfg MailboxConfig,
) *ChannelMailbox[M, R] {
	userCap := cfg.UserCapacity
	bounded := userCap > 0
	if userCap <= 0 {
		userCap = unboundedUserCapacity
	}

	sysCap := cfg.SystemCapacity
	if sysCap <= 0 {
		sysCap = 16
	}

	return &ChannelMailbox[M, R]{
		sys:      make(chan SystemMessage, sysCap),
		user:     make(chan envelope[M, R], userCap),
		notify:   make(chan struct{}, 1),
		bounded:  bounded,
		actorCtx: actorCtx,
	}
}

// signal wakes one blocked Wait call, if any, without blocking itself.
func (m *ChannelMailbox[M, R]) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// SendSystem implements Mailbox.
func (m *ChannelMailbox[M, R]) SendSystem(
	ctx context.Context, msg SystemMessage,
) bool {
	if ctx.Err() != nil || m.actorCtx.Err() != nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return false
	}

	select {
	case m.sys <- msg:
		m.signal()
		return true
	case <-ctx.Done():
		return false
	case <-m.actorCtx.Done():
		return false
	}
}

// SendUser implements Mailbox.
func (m *ChannelMailbox[M, R]) SendUser(
	ctx context.Context, env envelope[M, R],
) bool {
	if ctx.Err() != nil || m.actorCtx.Err() != nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return false
	}

	if m.bounded {
		// Bounded mailboxes fail fast rather than block: the spec
		// requires a bounded send to reject with MailboxFull instead
		// of applying backpressure to the caller.
		select {
		case m.user <- env:
			m.signal()
			return true
		default:
			return false
		}
	}

	select {
	case m.user <- env:
		m.signal()
		return true
	case <-ctx.Done():
		return false
	case <-m.actorCtx.Done():
		return false
	}
}

// TrySendUser implements Mailbox.
func (m *ChannelMailbox[M, R]) TrySendUser(env envelope[M, R]) bool {
	if m.actorCtx.Err() != nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return false
	}

	select {
	case m.user <- env:
		m.signal()
		return true
	default:
		return false
	}
}

// Wait implements Mailbox. It never dequeues a message itself (that
// would let a concurrent sender's message land ahead of the one Wait
// peeked and put back, breaking per-sender FIFO order); it only polls
// channel length and blocks on the non-destructive notify signal.
func (m *ChannelMailbox[M, R]) Wait(ctx context.Context) bool {
	if len(m.sys) > 0 || len(m.user) > 0 {
		return true
	}

	select {
	case <-m.notify:
		return true

	case <-ctx.Done():
		return false

	case <-m.actorCtx.Done():
		return len(m.sys) > 0 || len(m.user) > 0
	}
}

// DrainTurn implements Mailbox: the system lane is always drained
// completely first (spec.md §4.1, "system lane empties fully before the
// user lane begins each turn"), then up to maxUser user messages are
// taken, enforcing the throughput bound that prevents one cell from
// starving its dispatcher.
func (m *ChannelMailbox[M, R]) DrainTurn(
	maxUser int,
) ([]SystemMessage, []envelope[M, R]) {
	var sysMsgs []SystemMessage
	for {
		select {
		case msg := <-m.sys:
			sysMsgs = append(sysMsgs, msg)
		default:
			goto drainUser
		}
	}

drainUser:
	if maxUser <= 0 {
		return sysMsgs, nil
	}

	userMsgs := make([]envelope[M, R], 0, maxUser)
	for len(userMsgs) < maxUser {
		select {
		case env := <-m.user:
			userMsgs = append(userMsgs, env)
		default:
			return sysMsgs, userMsgs
		}
	}

	return sysMsgs, userMsgs
}

// Close implements Mailbox.
func (m *ChannelMailbox[M, R]) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		m.closed.Store(true)
		close(m.user)
		close(m.sys)
	})
}

// IsClosed implements Mailbox.
func (m *ChannelMailbox[M, R]) IsClosed() bool {
	return m.closed.Load()
}

// DrainRemaining implements Mailbox.
func (m *ChannelMailbox[M, R]) DrainRemaining() iter.Seq[envelope[M, R]] {
	return func(yield func(envelope[M, R]) bool) {
		if !m.IsClosed() {
			return
		}

		for {
			select {
			case env, ok := <-m.user:
				if !ok {
					return
				}
				if !yield(env) {
					return
				}
			default:
				return
			}
		}
	}
}
