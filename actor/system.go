package actor

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// registerConfig holds optional per-actor configuration for Spawn.
type registerConfig[M Message, R any] struct {
	cleanupTimeout fn.Option[time.Duration]
	supervisor     SupervisorStrategy
	dispatcher     Dispatcher
	mailbox        MailboxConfig
	throughput     int
}

// SpawnOption configures an individual actor spawned through the
// ActorSystem, in the teacher's functional-options idiom
// (RegisterOption in the original system.go).
type SpawnOption[M Message, R any] func(*registerConfig[M, R])

// WithCleanupTimeout overrides the default 5s OnStop cleanup timeout.
func WithCleanupTimeout[M Message, R any](d time.Duration) SpawnOption[M, R] {
	return func(cfg *registerConfig[M, R]) {
		cfg.cleanupTimeout = fn.Some(d)
	}
}

// WithSupervisor sets this actor's SupervisorStrategy.
func WithSupervisor[M Message, R any](s SupervisorStrategy) SpawnOption[M, R] {
	return func(cfg *registerConfig[M, R]) {
		cfg.supervisor = s
	}
}

// WithDispatcher pins this actor to a specific Dispatcher instead of the
// system's default.
func WithDispatcher[M Message, R any](d Dispatcher) SpawnOption[M, R] {
	return func(cfg *registerConfig[M, R]) {
		cfg.dispatcher = d
	}
}

// WithMailboxConfig overrides the system default mailbox sizing for this
// actor.
func WithMailboxConfig[M Message, R any](mb MailboxConfig) SpawnOption[M, R] {
	return func(cfg *registerConfig[M, R]) {
		cfg.mailbox = mb
	}
}

// WithThroughput overrides the system default per-turn message budget
// for this actor.
func WithThroughput[M Message, R any](n int) SpawnOption[M, R] {
	return func(cfg *registerConfig[M, R]) {
		cfg.throughput = n
	}
}

// stoppable is satisfied by any managed cell, independent of its M/R
// type parameters.
type stoppable interface {
	Stop()
}

// SystemConfig holds process-wide defaults for an ActorSystem.
type SystemConfig struct {
	// MailboxCapacity is the default user-lane buffer capacity for
	// actors that don't override it with WithMailboxConfig. <= 0 means
	// unbounded.
	MailboxCapacity int

	// Throughput is the default per-turn user-message budget.
	Throughput int

	// DispatcherWorkers sizes the system's default shared-pool
	// dispatcher.
	DispatcherWorkers int
}

// DefaultConfig returns sane defaults matching spec.md §5: unbounded
// mailboxes, 30-message throughput per turn, and a shared pool of 8
// dispatcher workers.
func DefaultConfig() SystemConfig {
	return SystemConfig{
		MailboxCapacity:   0,
		Throughput:        30,
		DispatcherWorkers: 8,
	}
}

// ActorSystem owns every actor cell spawned under it, the receptionist
// used for service discovery, and the dead letter office. Grounded on
// the teacher's ActorSystem (system.go), generalized with
// supervisor/dispatcher wiring per actor. Spawn does not set
// CellConfig.OnEscalate, so a cell whose strategy returns Escalate is
// stopped; the fault is not passed on to any other supervisor.
type ActorSystem struct {
	receptionist *Receptionist
	hooks        *hookRegistry

	cells map[string]stoppable
	mu    sync.RWMutex

	deadLetterActor ActorRef[Message, any]

	config SystemConfig

	defaultDispatcher Dispatcher

	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup

	ephemeralSeq atomic.Uint64
}

// NewActorSystem creates an ActorSystem using DefaultConfig.
func NewActorSystem() *ActorSystem {
	return NewActorSystemWithConfig(DefaultConfig())
}

// NewActorSystemWithConfig creates an ActorSystem with custom defaults.
func NewActorSystemWithConfig(config SystemConfig) *ActorSystem {
	ctx, cancel := context.WithCancel(context.Background())

	workers := config.DispatcherWorkers
	if workers <= 0 {
		workers = 8
	}

	sys := &ActorSystem{
		receptionist:      newReceptionist(),
		hooks:             newHookRegistry(),
		config:            config,
		cells:             make(map[string]stoppable),
		ctx:               ctx,
		cancel:            cancel,
		defaultDispatcher: NewSharedPoolDispatcher(workers, 4096),
	}

	deadLetterBehavior := NewFunctionBehavior(
		func(_ context.Context, msg Message) fn.Result[any] {
			return fn.Err[any](fmt.Errorf(
				"message undeliverable: %s", msg.MessageType(),
			))
		},
	)

	dloCell := NewActorCell[Message, any](CellConfig[Message, any]{
		PID:         NewLocalPID("dead-letters"),
		NewBehavior: func() ActorBehavior[Message, any] { return deadLetterBehavior },
		Dispatcher:  NewPinnedDispatcher(),
		Wg:          &sys.wg,
		Hooks:       sys.hooks,
	})
	dloCell.Start()
	sys.deadLetterActor = dloCell.Ref()
	sys.cells[dloCell.PID().String()] = dloCell

	return sys
}

// Hooks returns the system-wide hook registry so callers can register
// observers (tracing, metrics) before spawning actors.
func (as *ActorSystem) Hooks() *hookRegistry { return as.hooks }

// newStoppedActorRef returns a ref to an already-terminated cell, so
// callers never receive a nil ActorRef on failure paths.
func newStoppedActorRef[M Message, R any](id string) ActorRef[M, R] {
	cell := NewActorCell[M, R](CellConfig[M, R]{
		PID:         NewLocalPID(id),
		NewBehavior: func() ActorBehavior[M, R] { return NewFunctionBehavior(func(_ context.Context, _ M) fn.Result[R] { var zero R; return fn.Ok(zero) }) },
	})
	cell.Stop()
	return cell.Ref()
}

// Spawn creates, starts, and manages an actor cell on this system,
// without registering it with the receptionist. Use RegisterWithSystem
// or ServiceKey.Spawn to make it discoverable.
func Spawn[M Message, R any](
	as *ActorSystem, id string, newBehavior func() ActorBehavior[M, R],
	opts ...SpawnOption[M, R],
) ActorRef[M, R] {
	if as.ctx.Err() != nil {
		return newStoppedActorRef[M, R](id)
	}

	var cfg registerConfig[M, R]
	for _, opt := range opts {
		opt(&cfg)
	}

	dispatcher := cfg.dispatcher
	if dispatcher == nil {
		dispatcher = as.defaultDispatcher
	}

	mailbox := cfg.mailbox
	if mailbox.UserCapacity == 0 {
		mailbox.UserCapacity = as.config.MailboxCapacity
	}

	throughput := cfg.throughput
	if throughput <= 0 {
		throughput = as.config.Throughput
	}

	cell := NewActorCell[M, R](CellConfig[M, R]{
		PID:            NewLocalPID(id),
		NewBehavior:    newBehavior,
		Dispatcher:     dispatcher,
		Supervisor:     cfg.supervisor,
		DLO:            as.deadLetterActor,
		Mailbox:        mailbox,
		Throughput:     throughput,
		Wg:             &as.wg,
		CleanupTimeout: cfg.cleanupTimeout,
		Hooks:          as.hooks,
	})
	cell.Start()

	as.mu.Lock()
	as.cells[id] = cell
	as.mu.Unlock()

	return cell.Ref()
}

// RegisterWithSystem spawns an actor and registers it with the
// receptionist under key, in one call (mirrors the teacher's function
// of the same name).
func RegisterWithSystem[M Message, R any](
	as *ActorSystem, id string, key ServiceKey[M, R],
	newBehavior func() ActorBehavior[M, R], opts ...SpawnOption[M, R],
) ActorRef[M, R] {
	ref := Spawn(as, id, newBehavior, opts...)

	if err := RegisterWithReceptionist(as.receptionist, key, ref); err != nil {
		as.StopAndRemoveActor(id)
		return newStoppedActorRef[M, R](id)
	}

	log.DebugS(as.ctx, "actor registered with system",
		"actor_id", id, "service_key", key.name)

	return ref
}

// Receptionist implements SystemContext.
func (as *ActorSystem) Receptionist() *Receptionist { return as.receptionist }

// DeadLetters implements SystemContext.
func (as *ActorSystem) DeadLetters() ActorRef[Message, any] {
	return as.deadLetterActor
}

// Shutdown cancels the system, stops every managed cell, and blocks
// until all of their goroutines exit or ctx expires.
func (as *ActorSystem) Shutdown(ctx context.Context) error {
	as.cancel()

	as.mu.Lock()
	cells := make([]stoppable, 0, len(as.cells))
	for _, c := range as.cells {
		cells = append(cells, c)
	}
	as.cells = nil
	as.mu.Unlock()

	log.InfoS(ctx, "actor system shutting down", "num_actors", len(cells))

	for _, c := range cells {
		c.Stop()
	}

	done := make(chan struct{})
	go func() {
		as.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.InfoS(ctx, "actor system shutdown completed")
		if pool, ok := as.defaultDispatcher.(*SharedPoolDispatcher); ok {
			pool.Close()
		}
		return nil

	case <-ctx.Done():
		log.ErrorS(ctx, "actor system shutdown incomplete, "+
			"some actors may have leaked", ctx.Err())
		return ctx.Err()
	}
}

// StopAndRemoveActor stops and unregisters the cell with the given id.
func (as *ActorSystem) StopAndRemoveActor(id string) bool {
	as.mu.Lock()
	defer as.mu.Unlock()

	c, ok := as.cells[id]
	if !ok {
		return false
	}

	c.Stop()
	delete(as.cells, id)

	return true
}

// AskVia implements the ask-via-ephemeral-actor pattern for targets that
// only expose Tell: it spawns a short-lived actor whose sole purpose is
// to receive exactly one reply, completes the returned Future with it,
// and stops itself. makeMsg builds the outbound message given the
// ephemeral actor's TellOnlyRef[R] as the reply-to address.
func AskVia[M Message, R Message](
	ctx context.Context, as *ActorSystem, target TellOnlyRef[M],
	makeMsg func(replyTo TellOnlyRef[R]) M,
) Future[R] {
	promise := NewPromise[R]()
	seq := as.ephemeralSeq.Add(1)
	id := fmt.Sprintf("ask-%d", seq)

	replyBehavior := &askReplyBehavior[R]{promise: promise}

	ref := Spawn[R, any](as, id, func() ActorBehavior[R, any] { return replyBehavior })

	target.Tell(ctx, makeMsg(ref))

	// The ephemeral actor has served its purpose once the promise is
	// resolved; tear it down rather than leaking one cell per Ask. This
	// uses its own bounded context rather than the caller's ctx, so an
	// early-cancelling caller doesn't kill the ephemeral actor out from
	// under an in-flight reply.
	cleanupCtx, cancelCleanup := context.WithTimeout(
		context.Background(), 5*time.Minute,
	)
	promise.Future().OnComplete(cleanupCtx, func(fn.Result[R]) {
		cancelCleanup()
		as.StopAndRemoveActor(id)
	})

	return promise.Future()
}

// askReplyBehavior completes its promise with the first message it
// receives. It never replies twice: only the first delivery can win the
// underlying promise's Complete race.
type askReplyBehavior[R Message] struct {
	promise Promise[R]
}

// Receive implements ActorBehavior.
func (b *askReplyBehavior[R]) Receive(
	_ context.Context, msg R,
) fn.Result[any] {
	b.promise.Complete(fn.Ok(msg))
	return fn.Ok[any](nil)
}

// ServiceKey is a type-safe discovery token for the Receptionist.
type ServiceKey[M Message, R any] struct {
	name string
}

// NewServiceKey creates a ServiceKey with the given name.
func NewServiceKey[M Message, R any](name string) ServiceKey[M, R] {
	return ServiceKey[M, R]{name: name}
}

// Spawn registers a new actor for this service key.
func (sk ServiceKey[M, R]) Spawn(
	as *ActorSystem, id string, newBehavior func() ActorBehavior[M, R],
	opts ...SpawnOption[M, R],
) ActorRef[M, R] {
	return RegisterWithSystem(as, id, sk, newBehavior, opts...)
}

// routerConfig holds configuration for a ServiceKey-backed router.
type routerConfig[M Message, R any] struct {
	strategy RoutingStrategy[M, R]
}

// RouterOption configures a ServiceKey.Ref router.
type RouterOption[M Message, R any] func(*routerConfig[M, R])

// WithStrategy selects a non-default RoutingStrategy for ServiceKey.Ref.
func WithStrategy[M Message, R any](s RoutingStrategy[M, R]) RouterOption[M, R] {
	return func(cfg *routerConfig[M, R]) { cfg.strategy = s }
}

// Ref returns a virtual ActorRef that load-balances across every actor
// currently registered under this key, re-querying the receptionist on
// every send so that newly registered or unregistered actors are picked
// up without re-fetching a Ref.
func (sk ServiceKey[M, R]) Ref(
	sys SystemContext, opts ...RouterOption[M, R],
) ActorRef[M, R] {
	cfg := routerConfig[M, R]{strategy: NewRoundRobinStrategy[M, R]()}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &serviceRouter[M, R]{
		sys:      sys,
		key:      sk,
		strategy: cfg.strategy,
	}
}

// serviceRouter is the dynamic, receptionist-backed counterpart to the
// static Router: it re-reads the current registration set on every
// Tell/Ask instead of caching a routee slice.
type serviceRouter[M Message, R any] struct {
	sys      SystemContext
	key      ServiceKey[M, R]
	strategy RoutingStrategy[M, R]
}

func (r *serviceRouter[M, R]) ID() string { return "service:" + r.key.name }

func (r *serviceRouter[M, R]) Tell(ctx context.Context, msg M) {
	refs := FindInReceptionist(r.sys.Receptionist(), r.key)
	for _, target := range r.strategy.Select(refs, msg) {
		target.Tell(ctx, msg)
	}
}

func (r *serviceRouter[M, R]) Ask(ctx context.Context, msg M) Future[R] {
	refs := FindInReceptionist(r.sys.Receptionist(), r.key)
	targets := r.strategy.Select(refs, msg)
	if len(targets) == 0 {
		return AlreadyCompletedFuture[R](fn.Err[R](ErrActorNotFound))
	}
	return targets[0].Ask(ctx, msg)
}

// Broadcast sends msg to every actor currently registered under this
// key, returning how many actors it was sent to.
func (sk ServiceKey[M, R]) Broadcast(
	sys SystemContext, ctx context.Context, msg M,
) int {
	refs := FindInReceptionist(sys.Receptionist(), sk)
	for _, ref := range refs {
		ref.Tell(ctx, msg)
	}
	return len(refs)
}

// Unregister removes a single ref from this key's registration set. The
// actor keeps running; use ActorSystem.StopAndRemoveActor to stop it.
func (sk ServiceKey[M, R]) Unregister(
	sys SystemContext, refToRemove ActorRef[M, R],
) bool {
	return UnregisterFromReceptionist(sys.Receptionist(), sk, refToRemove)
}

// serviceTypeInfo captures a service's message/response type signature
// for registration-time validation.
type serviceTypeInfo struct {
	msgTypeName  string
	respTypeName string
}

// Receptionist is a type-checked service registry: actors register
// under a ServiceKey and are discovered by other components without
// either side needing a direct reference.
type Receptionist struct {
	registrations map[string][]BaseActorRef
	typeRegistry  map[string]serviceTypeInfo
	mu            sync.RWMutex
}

func newReceptionist() *Receptionist {
	return &Receptionist{
		registrations: make(map[string][]BaseActorRef),
		typeRegistry:  make(map[string]serviceTypeInfo),
	}
}

// RegisterWithReceptionist registers ref under key, rejecting the
// registration if key.name was already registered with a different
// (M, R) pair.
func RegisterWithReceptionist[M Message, R any](
	r *Receptionist, key ServiceKey[M, R], ref ActorRef[M, R],
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	expected := serviceTypeInfo{
		msgTypeName:  reflect.TypeOf((*M)(nil)).Elem().String(),
		respTypeName: reflect.TypeOf((*R)(nil)).Elem().String(),
	}

	if existing, ok := r.typeRegistry[key.name]; ok {
		if existing != expected {
			return fmt.Errorf(
				"%w: service %q already registered with (%s, %s)",
				ErrServiceKeyTypeMismatch, key.name,
				existing.msgTypeName, existing.respTypeName,
			)
		}
	} else {
		r.typeRegistry[key.name] = expected
	}

	r.registrations[key.name] = append(r.registrations[key.name], ref)

	return nil
}

// UnregisterFromReceptionist removes refToRemove from key's
// registration set, cleaning up the type registry if it was the last
// entry.
func UnregisterFromReceptionist[M Message, R any](
	r *Receptionist, key ServiceKey[M, R], refToRemove ActorRef[M, R],
) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	refs, ok := r.registrations[key.name]
	if !ok {
		return false
	}

	found := false
	kept := make([]BaseActorRef, 0, len(refs))
	for _, base := range refs {
		if specific, ok := base.(ActorRef[M, R]); ok && specific == refToRemove {
			found = true
			continue
		}
		kept = append(kept, base)
	}

	if !found {
		return false
	}

	if len(kept) == 0 {
		delete(r.registrations, key.name)
		delete(r.typeRegistry, key.name)
	} else {
		r.registrations[key.name] = kept
	}

	return true
}

// FindInReceptionist returns every actor currently registered under
// key.
func FindInReceptionist[M Message, R any](
	r *Receptionist, key ServiceKey[M, R],
) []ActorRef[M, R] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	baseRefs, ok := r.registrations[key.name]
	if !ok {
		return nil
	}

	out := make([]ActorRef[M, R], 0, len(baseRefs))
	for _, base := range baseRefs {
		if typed, ok := base.(ActorRef[M, R]); ok {
			out = append(out, typed)
		}
	}
	return out
}
