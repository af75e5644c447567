package actor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// mergeContexts creates a context that cancels when either parent
// context cancels, so a cell can honor both its own shutdown and an
// Ask caller's deadline at once. Grounded on the teacher's actor.go
// helper of the same name and purpose, unchanged.
func mergeContexts(
	ctx1, ctx2 context.Context,
) (context.Context, context.CancelFunc) {
	deadline1, hasDeadline1 := ctx1.Deadline()
	deadline2, hasDeadline2 := ctx2.Deadline()

	baseCtx := ctx1
	if hasDeadline2 {
		if !hasDeadline1 || deadline2.Before(deadline1) {
			baseCtx = ctx2
		}
	}

	mergedCtx, cancel := context.WithCancel(baseCtx)

	go func() {
		select {
		case <-ctx1.Done():
			cancel()
		case <-ctx2.Done():
			cancel()
		case <-mergedCtx.Done():
		}
	}()

	return mergedCtx, cancel
}

// Restarting is an optional interface an ActorBehavior can implement to
// run cleanup/setup logic around a supervisor-ordered restart (spec's
// preRestart/postRestart hooks).
type Restarting interface {
	// PreRestart runs on the failing instance before it is discarded.
	PreRestart(ctx context.Context, cause error) error

	// PostRestart runs on the freshly constructed instance before it
	// processes its first message.
	PostRestart(ctx context.Context, cause error) error
}

// TerminationWatcher is an optional interface an ActorBehavior can
// implement to observe a Terminated message that arrives on the cell's
// system lane. Watchers registered through a Watch message do not go
// through this path: finalize sends them Terminated with WatcherRef.Tell,
// so it reaches the watcher's Receive as an ordinary user message.
type TerminationWatcher interface {
	OnTerminated(ctx context.Context, who PID) error
}

// CellConfig holds the configuration for a new ActorCell.
type CellConfig[M Message, R any] struct {
	// PID is this cell's address.
	PID PID

	// NewBehavior constructs a fresh ActorBehavior instance. Called once
	// at Start and again on every supervisor-ordered Restart, so a
	// behavior with internal state gets a clean slate after a restart
	// the way spec.md §4.3/§4.4 requires.
	NewBehavior func() ActorBehavior[M, R]

	// Dispatcher runs this cell's turns. If nil, the cell gets its own
	// PinnedDispatcher; Spawn fills in the ActorSystem's shared pool
	// when the caller does not pick a dispatcher.
	Dispatcher Dispatcher

	// Supervisor decides directives for this cell's own failures. Use
	// OneForOneStrategy/AllForOneStrategy, or nil for an
	// always-restart default with no bound.
	Supervisor SupervisorStrategy

	// DLO receives undeliverable messages on shutdown and failed sends.
	DLO ActorRef[Message, any]

	// Mailbox configures buffering for this cell's mailbox.
	Mailbox MailboxConfig

	// Throughput bounds how many user messages are processed per turn
	// before a shared-pool dispatcher yields the worker to another
	// cell. <= 0 defaults to 30 (spec.md §5).
	Throughput int

	// Wg, if non-nil, is incremented on Start and decremented once the
	// cell's goroutine(s) fully exit, for deterministic system shutdown.
	Wg *sync.WaitGroup

	// CleanupTimeout bounds OnStop. Defaults to 5s.
	CleanupTimeout fn.Option[time.Duration]

	// Hooks is the system-wide hook registry; may be nil.
	Hooks *hookRegistry

	// OnEscalate is invoked when this cell's supervisor strategy returns
	// Escalate, handing the failure up to whatever owns the supervision
	// tree above this cell (typically the ActorSystem or a parent
	// cell). If nil, Escalate is treated as Stop.
	OnEscalate func(FailureInfo)
}

// ActorCell is the runtime instance of an actor: a behavior stack driven
// by a mailbox, scheduled by a Dispatcher, restarted or stopped per its
// SupervisorStrategy. Grounded on the teacher's Actor[M,R] (actor.go),
// generalized with a behavior stack, pluggable dispatch, and
// supervision.
type ActorCell[M Message, R any] struct {
	pid PID

	newBehavior func() ActorBehavior[M, R]
	behaviors   *behaviorStack[M, R]

	mailbox    Mailbox[M, R]
	dispatcher Dispatcher
	throughput int

	ctx    context.Context
	cancel context.CancelFunc

	dlo ActorRef[Message, any]

	wg             *sync.WaitGroup
	cleanupTimeout time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	scheduled atomic.Bool

	supervisor   SupervisorStrategy
	restartStats *RestartStatistics
	onEscalate   func(FailureInfo)

	hooks *hookRegistry

	watchersMu sync.Mutex
	watchers   map[Address]TellOnlyRef[Message]

	ref *cellRef[M, R]
}

// NewActorCell constructs a cell in its pre-start state; call Start to
// begin processing.
func NewActorCell[M Message, R any](cfg CellConfig[M, R]) *ActorCell[M, R] {
	ctx, cancel := context.WithCancel(context.Background())

	throughput := cfg.Throughput
	if throughput <= 0 {
		throughput = 30
	}

	supervisor := cfg.Supervisor
	if supervisor == nil {
		supervisor = NewOneForOneStrategy(0, time.Minute)
	}

	c := &ActorCell[M, R]{
		pid:            cfg.PID,
		newBehavior:    cfg.NewBehavior,
		mailbox:        NewChannelMailbox[M, R](ctx, cfg.Mailbox),
		dispatcher:     cfg.Dispatcher,
		throughput:     throughput,
		ctx:            ctx,
		cancel:         cancel,
		dlo:            cfg.DLO,
		wg:             cfg.Wg,
		cleanupTimeout: cfg.CleanupTimeout.UnwrapOr(5 * time.Second),
		supervisor:     supervisor,
		restartStats:   NewRestartStatistics(),
		onEscalate:     cfg.OnEscalate,
		hooks:          cfg.Hooks,
		watchers:       make(map[Address]TellOnlyRef[Message]),
	}

	c.behaviors = newBehaviorStack[M, R](cfg.NewBehavior())
	c.ref = &cellRef[M, R]{cell: c}

	if cfg.Dispatcher == nil {
		c.dispatcher = NewPinnedDispatcher()
	}

	return c
}

// PID returns this cell's address.
func (c *ActorCell[M, R]) PID() PID { return c.pid }

// Ref returns an ActorRef for this cell.
func (c *ActorCell[M, R]) Ref() ActorRef[M, R] { return c.ref }

// TellRef returns a TellOnlyRef for this cell.
func (c *ActorCell[M, R]) TellRef() TellOnlyRef[M] { return c.ref }

// Start begins the cell's processing, invoking OnStart (Startable) first
// if the current behavior implements it.
func (c *ActorCell[M, R]) Start() {
	c.startOnce.Do(func() {
		log.DebugS(c.ctx, "starting actor", "pid", c.pid.String())

		if c.wg != nil {
			c.wg.Add(1)
		}

		if startable, ok := c.behaviors.current().(Startable); ok {
			if err := startable.OnStart(c.ctx); err != nil {
				log.WarnS(c.ctx, "actor OnStart failed", err,
					"pid", c.pid.String())
			}
		}

		if c.hooks != nil {
			c.hooks.runCreationHooks(c.ctx, c.pid)
		}

		go c.watchForStop()

		if _, pinned := c.dispatcher.(*PinnedDispatcher); pinned {
			go c.pinnedLoop()
		}
	})
}

// pinnedLoop drives a dedicated goroutine for cells on a
// PinnedDispatcher: block for work, run turns until the mailbox is
// drained, repeat until the cell's context is cancelled.
func (c *ActorCell[M, R]) pinnedLoop() {
	for {
		if !c.mailbox.Wait(c.ctx) {
			return
		}

		for c.runTurn() {
		}

		if c.ctx.Err() != nil {
			return
		}
	}
}

// watchForStop finalizes the cell exactly once its context is
// cancelled, whether that was triggered by an explicit Stop message, an
// external Stop() call, or a supervisor Stop directive.
func (c *ActorCell[M, R]) watchForStop() {
	<-c.ctx.Done()

	c.stopOnce.Do(func() {
		c.finalize()
	})
}

// Stop requests termination of this cell.
func (c *ActorCell[M, R]) Stop() {
	c.cancel()
}

// tryMarkScheduled implements schedulable.
func (c *ActorCell[M, R]) tryMarkScheduled() bool {
	if c.ctx.Err() != nil {
		return false
	}
	return c.scheduled.CompareAndSwap(false, true)
}

// clearScheduled implements schedulable. After releasing the flag it
// re-checks the mailbox: a message enqueued while the turn was running
// found the flag still set, so its own schedule() call was a no-op and
// this is the only place that can still give it a turn.
func (c *ActorCell[M, R]) clearScheduled() {
	c.scheduled.Store(false)

	if mb, ok := c.mailbox.(*ChannelMailbox[M, R]); ok &&
		(len(mb.sys) > 0 || len(mb.user) > 0) {

		c.schedule()
	}
}

// schedule asks this cell's dispatcher to run it, used after a
// successful send so shared-pool dispatchers know there is work.
func (c *ActorCell[M, R]) schedule() {
	c.dispatcher.Schedule(c)
}

// runTurn implements schedulable: it drains one turn's worth of work
// (system lane fully, then up to c.throughput user messages) and
// processes it. It returns true if the user lane likely still has more
// work than fit in this turn, signalling the dispatcher to reschedule
// immediately.
func (c *ActorCell[M, R]) runTurn() bool {
	sysMsgs, userMsgs := c.mailbox.DrainTurn(c.throughput)

	for _, sm := range sysMsgs {
		c.handleSystemMessage(sm)
		if c.ctx.Err() != nil {
			// A Stop (or a Stop-directive restart failure) ended
			// this cell; any remaining system messages in this
			// batch are moot.
			return false
		}
	}

	for _, env := range userMsgs {
		c.processUserEnvelope(env)
		if c.ctx.Err() != nil {
			return false
		}
	}

	return len(userMsgs) >= c.throughput && c.throughput > 0
}

// handleSystemMessage applies the effect of a single system-lane
// message.
func (c *ActorCell[M, R]) handleSystemMessage(sm SystemMessage) {
	switch sm.systemKind() {
	case sysStop:
		c.cancel()

	case sysRestart:
		cause := error(nil)
		if r, ok := sm.(Restart); ok {
			cause = r.Cause
		}
		c.performRestart(cause)

	case sysWatch:
		if w, ok := sm.(Watch); ok && w.WatcherRef != nil {
			c.watchersMu.Lock()
			c.watchers[w.Watcher.Address] = w.WatcherRef
			c.watchersMu.Unlock()
		}

	case sysUnwatch:
		if u, ok := sm.(Unwatch); ok {
			c.watchersMu.Lock()
			delete(c.watchers, u.Watcher.Address)
			c.watchersMu.Unlock()
		}

	case sysTerminated:
		if t, ok := sm.(Terminated); ok {
			if watcher, ok := c.behaviors.current().(TerminationWatcher); ok {
				if err := watcher.OnTerminated(c.ctx, t.Who); err != nil {
					log.WarnS(c.ctx, "OnTerminated failed", err,
						"pid", c.pid.String())
				}
			}
		}

	default:
		log.DebugS(c.ctx, "unhandled system message",
			"pid", c.pid.String(), "kind", sm.MessageType())
	}
}

// processUserEnvelope delivers a single user message to the current
// behavior, recovering from a panic and routing it through the
// supervisor. An error Result returned by the behavior is not a failure:
// it is handed back to an Ask caller like any other reply.
func (c *ActorCell[M, R]) processUserEnvelope(env envelope[M, R]) {
	if c.hooks != nil {
		if !c.hooks.runMessageInterceptors(env.callerCtx, c.pid, env.message) {
			return
		}
	}

	var processCtx context.Context
	var cancel context.CancelFunc
	if env.promise != nil {
		processCtx, cancel = mergeContexts(c.ctx, env.callerCtx)
	} else {
		processCtx, cancel = c.ctx, func() {}
	}
	defer cancel()

	start := timeNow()

	result, failure := c.safeReceive(processCtx, env.message)

	if c.hooks != nil {
		c.hooks.runProcessingHooks(
			processCtx, c.pid, env.message, timeNow().Sub(start).Nanoseconds(),
		)
	}

	if failure != nil {
		if c.hooks != nil {
			c.hooks.runErrorHooks(processCtx, c.pid, failure)
		}

		if env.promise != nil {
			env.promise.Complete(fn.Err[R](failure))
		}

		c.applyDirective(failure)
		return
	}

	if env.promise != nil {
		env.promise.Complete(result)
	}
}

// safeReceive invokes the current behavior's Receive, converting a
// panic into a failure error rather than crashing the cell's goroutine.
func (c *ActorCell[M, R]) safeReceive(
	ctx context.Context, msg M,
) (result fn.Result[R], failure error) {
	defer func() {
		if r := recover(); r != nil {
			failure = fmt.Errorf("actor panic: %v", r)
		}
	}()

	result = c.behaviors.current().Receive(ctx, msg)
	return result, nil
}

// applyDirective consults this cell's supervisor strategy for failure
// and applies the resulting directive.
func (c *ActorCell[M, R]) applyDirective(failure error) {
	directive := c.supervisor.HandleFailure(FailureInfo{
		Child:  c.pid,
		Reason: failure,
		Stats:  c.restartStats,
	})

	log.DebugS(c.ctx, "supervisor directive",
		"pid", c.pid.String(), "directive", directive.String())

	switch directive {
	case Resume:
		// Leave state untouched; next message proceeds normally.

	case Restart:
		c.performRestart(failure)

	case Stop:
		c.cancel()

	case Escalate:
		if c.onEscalate != nil {
			c.onEscalate(FailureInfo{
				Child:  c.pid,
				Reason: failure,
				Stats:  c.restartStats,
			})
		} else {
			log.WarnS(c.ctx, "escalate with no parent supervisor, stopping",
				failure, "pid", c.pid.String())
			c.cancel()
		}
	}
}

// performRestart runs preRestart on the current behavior, swaps in a
// freshly constructed instance via newBehavior, resets the behavior
// stack, and runs postRestart on the new instance.
func (c *ActorCell[M, R]) performRestart(cause error) {
	if restarting, ok := c.behaviors.current().(Restarting); ok {
		if err := restarting.PreRestart(c.ctx, cause); err != nil {
			log.WarnS(c.ctx, "PreRestart failed", err, "pid", c.pid.String())
		}
	}

	fresh := c.newBehavior()
	c.behaviors.reset(fresh)

	if restarting, ok := fresh.(Restarting); ok {
		if err := restarting.PostRestart(c.ctx, cause); err != nil {
			log.WarnS(c.ctx, "PostRestart failed", err, "pid", c.pid.String())
		}
	}

	if c.hooks != nil {
		c.hooks.runRestartHooks(c.ctx, c.pid, cause)
	}
}

// finalize runs once, after the cell's context is cancelled: close the
// mailbox, drain remaining user messages to the DLO, run OnStop, notify
// watchers, and release the WaitGroup.
func (c *ActorCell[M, R]) finalize() {
	c.mailbox.Close()

	drained := 0
	for env := range c.mailbox.DrainRemaining() {
		drained++

		if c.dlo != nil {
			c.dlo.Tell(context.Background(), env.message)
		}
		if c.hooks != nil {
			c.hooks.runDeadLetterHooks(
				context.Background(), c.pid, env.message, ErrActorTerminated,
			)
		}
		if env.promise != nil {
			env.promise.Complete(fn.Err[R](ErrActorTerminated))
		}
	}

	if stoppable, ok := c.behaviors.current().(Stoppable); ok {
		cleanupCtx, cancel := context.WithTimeout(
			context.Background(), c.cleanupTimeout,
		)
		if err := stoppable.OnStop(cleanupCtx); err != nil {
			log.WarnS(c.ctx, "actor OnStop failed", err, "pid", c.pid.String())
		}
		cancel()
	}

	c.watchersMu.Lock()
	watchers := make([]TellOnlyRef[Message], 0, len(c.watchers))
	for _, w := range c.watchers {
		watchers = append(watchers, w)
	}
	c.watchersMu.Unlock()

	for _, w := range watchers {
		w.Tell(context.Background(), Terminated{Who: c.pid})
	}

	if c.hooks != nil {
		c.hooks.runTerminationHooks(context.Background(), c.pid, nil)
	}

	log.DebugS(c.ctx, "actor terminated",
		"pid", c.pid.String(), "drained_messages", drained)

	if c.wg != nil {
		c.wg.Done()
	}
}

// cellRef implements ActorRef[M, R] over an ActorCell, mirroring the
// teacher's actorRefImpl but adding the schedule() nudge to the
// dispatcher after every successful send.
type cellRef[M Message, R any] struct {
	cell *ActorCell[M, R]
}

func (r *cellRef[M, R]) ID() string { return r.cell.pid.String() }

func (r *cellRef[M, R]) Tell(ctx context.Context, msg M) {
	env := envelope[M, R]{message: msg, callerCtx: ctx}

	ok := r.cell.mailbox.SendUser(ctx, env)
	if ok {
		r.cell.schedule()
		return
	}

	if ctx.Err() == nil || r.cell.ctx.Err() != nil {
		reason := ErrActorTerminated
		if r.cell.ctx.Err() == nil {
			// The cell is alive, so a bounded user lane was full.
			reason = ErrMailboxFull
		}
		if r.cell.dlo != nil {
			r.cell.dlo.Tell(context.Background(), msg)
		}
		if r.cell.hooks != nil {
			r.cell.hooks.runDeadLetterHooks(
				ctx, r.cell.pid, msg, reason,
			)
		}
	}
}

func (r *cellRef[M, R]) Ask(ctx context.Context, msg M) Future[R] {
	promise := NewPromise[R]()

	if r.cell.ctx.Err() != nil {
		promise.Complete(fn.Err[R](ErrActorTerminated))
		return promise.Future()
	}

	env := envelope[M, R]{message: msg, promise: promise, callerCtx: ctx}
	ok := r.cell.mailbox.SendUser(ctx, env)
	if ok {
		r.cell.schedule()
		return promise.Future()
	}

	if r.cell.ctx.Err() != nil {
		promise.Complete(fn.Err[R](ErrActorTerminated))
	} else {
		err := ctx.Err()
		if err == nil {
			// The cell is alive, so a bounded user lane was full.
			err = ErrMailboxFull
		}
		promise.Complete(fn.Err[R](err))
	}

	return promise.Future()
}
