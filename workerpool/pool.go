// Package workerpool implements an off-dispatcher CPU worker fleet: a
// priority task queue serviced by a lazily-grown, autoscaling set of
// worker goroutines, independent of the actor package's mailbox/cell
// machinery. Grounded on actorutil.Pool's lifecycle conventions (atomic
// counters, sync.WaitGroup, functional-option configuration) but built
// around an entirely different state machine (spec.md §4.7/§3).
package workerpool

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corvidlabs/actorkit/actor"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// TaskFunc is the unit of work a Pool runs. ctx is cancelled if the task
// is cancelled or times out; the task should honor it promptly.
type TaskFunc func(ctx context.Context) (any, error)

// TaskOptions configures a single submitTask call.
type TaskOptions struct {
	// Priority orders this task relative to others in the queue; higher
	// runs first. Within equal priority, submission order (FIFO) wins.
	Priority int

	// Timeout bounds how long the task may run before it is cancelled
	// and its future rejects with ErrTaskTimeout. Zero means no timeout.
	Timeout time.Duration

	// Sender optionally identifies who submitted the task, carried
	// through for tracing/metrics only.
	Sender string
}

// Config configures a Pool.
type Config struct {
	// MinWorkers is the floor the maintenance loop never scales below.
	MinWorkers int

	// MaxWorkers bounds lazy worker creation.
	MaxWorkers int

	// IdleTimeout is how long a worker may sit Idle before the
	// maintenance loop terminates it (while above MinWorkers).
	IdleTimeout time.Duration

	// MaintenanceInterval is how often the maintenance loop runs.
	// Defaults to 5s per spec.md §4.7.
	MaintenanceInterval time.Duration

	// QueueCapacity bounds the pending task queue; <= 0 means
	// unbounded. When bounded and full, submitTask rejects with
	// ErrQueueFull instead of blocking.
	QueueCapacity int

	// CancelGrace bounds how long a worker has to acknowledge a
	// cancellation/timeout before it is forcibly terminated and
	// replaced.
	CancelGrace time.Duration
}

// DefaultConfig returns reasonable defaults: 1..16 workers,
// 30s idle timeout, 5s maintenance tick, unbounded queue, 2s cancel
// grace.
func DefaultConfig() Config {
	return Config{
		MinWorkers:          1,
		MaxWorkers:          16,
		IdleTimeout:         30 * time.Second,
		MaintenanceInterval: 5 * time.Second,
		QueueCapacity:       0,
		CancelGrace:         2 * time.Second,
	}
}

// WorkerState is a worker's position in its Starting -> Idle -> Busy ->
// {Idle | Error | Terminated} state machine (spec.md §4.7).
type WorkerState int

const (
	WorkerStarting WorkerState = iota
	WorkerIdle
	WorkerBusy
	WorkerError
	WorkerTerminated
)

func (s WorkerState) String() string {
	switch s {
	case WorkerStarting:
		return "starting"
	case WorkerIdle:
		return "idle"
	case WorkerBusy:
		return "busy"
	case WorkerError:
		return "error"
	case WorkerTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// task is an internal queue entry: the submitted work plus its result
// promise and bookkeeping.
type task struct {
	id       uint64
	fn       TaskFunc
	opts     TaskOptions
	promise  actor.Promise[any]
	submitAt time.Time

	// seq breaks priority ties in FIFO order (heap is not stable).
	seq uint64

	cancelCtx context.Context
	cancel    context.CancelFunc
}

// taskHeap implements container/heap.Interface, ordering by priority
// descending then by submission sequence ascending (FIFO within a
// priority band).
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].opts.Priority != h[j].opts.Priority {
		return h[i].opts.Priority > h[j].opts.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Metrics captures the running totals and gauges spec.md §4.7 requires.
type Metrics struct {
	Queued    uint64
	Processed uint64
	Failed    uint64

	PeakWorkers  int
	PeakQueueLen int

	AvgWaitMillis  float64
	AvgProcMillis  float64
}

// metricsTracker accumulates Metrics under a mutex; wait/processing
// averages are exponentially-weighted running averages rather than
// storing every sample, matching the teacher's preference for
// lightweight, allocation-free counters over a full histogram library.
type metricsTracker struct {
	mu sync.Mutex
	m  Metrics
}

const ewmaAlpha = 0.2

func (t *metricsTracker) recordQueued(queueLen int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.m.Queued++
	if queueLen > t.m.PeakQueueLen {
		t.m.PeakQueueLen = queueLen
	}
}

func (t *metricsTracker) recordWorkerCount(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n > t.m.PeakWorkers {
		t.m.PeakWorkers = n
	}
}

func (t *metricsTracker) recordCompletion(waited, processed time.Duration, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if failed {
		t.m.Failed++
	} else {
		t.m.Processed++
	}

	waitMs := float64(waited.Milliseconds())
	procMs := float64(processed.Milliseconds())

	if t.m.Processed+t.m.Failed == 1 {
		t.m.AvgWaitMillis = waitMs
		t.m.AvgProcMillis = procMs
		return
	}

	t.m.AvgWaitMillis = ewmaAlpha*waitMs + (1-ewmaAlpha)*t.m.AvgWaitMillis
	t.m.AvgProcMillis = ewmaAlpha*procMs + (1-ewmaAlpha)*t.m.AvgProcMillis
}

func (t *metricsTracker) snapshot() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m
}

// worker is a single pool goroutine's bookkeeping record
// (spec.md's WorkerRec).
type worker struct {
	id          uint64
	state       atomic.Int32 // WorkerState
	pending     atomic.Pointer[task]
	startTime   time.Time
	taskCount   atomic.Uint64
	lastActive  atomic.Int64 // unix nanos
	assign      chan *task
}

func (w *worker) setState(s WorkerState) {
	w.state.Store(int32(s))
}

func (w *worker) getState() WorkerState {
	return WorkerState(w.state.Load())
}

// Pool is the autoscaling, priority-queued worker fleet.
type Pool struct {
	cfg Config

	mu        sync.Mutex
	queue     taskHeap
	queueSeq  uint64
	workers   map[uint64]*worker
	workerSeq uint64

	taskSeq atomic.Uint64

	metrics metricsTracker

	shutdown atomic.Bool
	wg       sync.WaitGroup

	maintCancel context.CancelFunc
}

// New creates and starts a Pool: it launches MinWorkers workers and the
// periodic maintenance loop immediately.
func New(cfg Config) *Pool {
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = 1
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = 5 * time.Second
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = 2 * time.Second
	}

	p := &Pool{
		cfg:     cfg,
		workers: make(map[uint64]*worker),
	}
	heap.Init(&p.queue)

	for i := 0; i < cfg.MinWorkers; i++ {
		p.spawnWorker()
	}

	maintCtx, cancel := context.WithCancel(context.Background())
	p.maintCancel = cancel
	go p.maintainLoop(maintCtx)

	return p
}

// spawnWorker creates and starts one worker goroutine. Caller must hold
// p.mu.
func (p *Pool) spawnWorker() *worker {
	p.workerSeq++
	w := &worker{
		id:        p.workerSeq,
		startTime: time.Now(),
		assign:    make(chan *task, 1),
	}
	w.setState(WorkerStarting)
	w.lastActive.Store(time.Now().UnixNano())

	p.workers[w.id] = w
	p.metrics.recordWorkerCount(len(p.workers))

	p.wg.Add(1)
	go p.runWorker(w)

	w.setState(WorkerIdle)

	return w
}

// runWorker is a single worker's main loop: wait for an assignment, run
// it, report completion, repeat until told to stop.
func (p *Pool) runWorker(w *worker) {
	defer p.wg.Done()

	for t := range w.assign {
		w.setState(WorkerBusy)
		w.pending.Store(t)

		result, err, workerFailed := p.runTask(w, t)

		w.pending.Store(nil)
		w.taskCount.Add(1)
		w.lastActive.Store(time.Now().UnixNano())

		if err != nil {
			t.promise.Complete(fn.Err[any](err))

			if workerFailed {
				w.setState(WorkerError)
				p.replaceFailedWorker(w)
				return
			}

			w.setState(WorkerIdle)
			p.mu.Lock()
			p.dispatchLocked()
			p.mu.Unlock()
			continue
		}

		w.setState(WorkerIdle)
		t.promise.Complete(fn.Ok(result))

		p.mu.Lock()
		p.dispatchLocked()
		p.mu.Unlock()
	}
}

// taskOutcome carries a task function's result back across the
// goroutine boundary so a panicking task can be recovered without
// taking the whole worker (and process) down with it.
type taskOutcome struct {
	result any
	err    error
}

// runTask executes a single task, honoring its timeout if set, and
// recovering a panic inside the task function as a worker failure
// rather than letting it crash the pool's goroutine. The third return
// value reports whether the worker itself must be terminated and
// replaced, which is distinct from whether the task's future rejects:
// a task that honors cancellation promptly still rejects with
// ErrTaskTimeout, but its worker is healthy and stays in the pool.
func (p *Pool) runTask(w *worker, t *task) (result any, err error, workerFailed bool) {
	waited := time.Since(t.submitAt)
	start := time.Now()

	if t.opts.Timeout > 0 {
		ctx, cancel := context.WithTimeout(t.cancelCtx, t.opts.Timeout)
		defer cancel()
		t.cancelCtx = ctx
	}

	done := make(chan taskOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- taskOutcome{err: fmt.Errorf("%w: %v", actor.ErrWorkerFailed, r)}
			}
		}()

		res, taskErr := t.fn(t.cancelCtx)
		done <- taskOutcome{result: res, err: taskErr}
	}()

	select {
	case outcome := <-done:
		p.metrics.recordCompletion(waited, time.Since(start), outcome.err != nil)
		return outcome.result, outcome.err, outcome.err != nil

	case <-t.cancelCtx.Done():
		select {
		case outcome := <-done:
			// The future always rejects with ErrTaskTimeout on expiry,
			// whether or not the task honored cancellation promptly;
			// CancelGrace only governs whether the worker itself gets
			// replaced, not the caller-visible error (spec.md §4.7).
			// The task's own error, if any, is wrapped for diagnostics
			// rather than discarded. The worker acknowledged within
			// the grace window, so it is not replaced.
			taskErr := error(actor.ErrTaskTimeout)
			if outcome.err != nil {
				taskErr = fmt.Errorf("%w: %v", actor.ErrTaskTimeout, outcome.err)
			}
			p.metrics.recordCompletion(waited, time.Since(start), true)
			return outcome.result, taskErr, false
		case <-time.After(p.cfg.CancelGrace):
			err = fmt.Errorf("%w: worker %d did not honor cancellation",
				actor.ErrTaskTimeout, w.id)
			p.metrics.recordCompletion(waited, time.Since(start), true)
			return nil, err, true
		}
	}
}

// replaceFailedWorker removes w and spawns its replacement, unless the
// pool is shutting down.
func (p *Pool) replaceFailedWorker(w *worker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w.setState(WorkerTerminated)
	delete(p.workers, w.id)

	if p.shutdown.Load() {
		return
	}

	p.spawnWorker()
	p.dispatchLocked()
}

// SubmitTask enqueues a task and returns a Future for its result,
// matching spec.md §4.7's submitTask. Never blocks: a bounded queue at
// capacity rejects immediately with ErrQueueFull.
func (p *Pool) SubmitTask(
	ctx context.Context, fn_ TaskFunc, opts TaskOptions,
) actor.Future[any] {
	promise := actor.NewPromise[any]()

	if p.shutdown.Load() {
		promise.Complete(fn.Err[any](actor.ErrActorTerminated))
		return promise.Future()
	}

	p.mu.Lock()

	if p.cfg.QueueCapacity > 0 && len(p.queue) >= p.cfg.QueueCapacity {
		p.mu.Unlock()
		promise.Complete(fn.Err[any](actor.ErrQueueFull))
		return promise.Future()
	}

	taskCtx, cancel := context.WithCancel(ctx)
	p.queueSeq++
	t := &task{
		id:        p.taskSeq.Add(1),
		fn:        fn_,
		opts:      opts,
		promise:   promise,
		submitAt:  time.Now(),
		seq:       p.queueSeq,
		cancelCtx: taskCtx,
		cancel:    cancel,
	}

	heap.Push(&p.queue, t)
	p.metrics.recordQueued(len(p.queue))

	p.dispatchLocked()
	p.mu.Unlock()

	return promise.Future()
}

// CancelTask removes a still-queued task, or, if it has already been
// dispatched, cancels its context so the worker can abandon it. Returns
// true if the task was found in either state.
func (p *Pool) CancelTask(id uint64) bool {
	p.mu.Lock()
	for i, t := range p.queue {
		if t.id == id {
			heap.Remove(&p.queue, i)
			p.mu.Unlock()
			t.cancel()
			t.promise.Complete(fn.Err[any](actor.ErrTaskTimeout))
			return true
		}
	}
	p.mu.Unlock()

	p.mu.Lock()
	workers := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	for _, w := range workers {
		if pending := w.pending.Load(); pending != nil && pending.id == id {
			pending.cancel()
			return true
		}
	}

	return false
}

// dispatchLocked assigns queued tasks to idle workers, growing the
// fleet lazily up to MaxWorkers when none is idle. Caller must hold
// p.mu.
func (p *Pool) dispatchLocked() {
	for len(p.queue) > 0 {
		idle := p.findIdleWorkerLocked()
		if idle == nil {
			if len(p.workers) < p.cfg.MaxWorkers {
				idle = p.spawnWorker()
			} else {
				return
			}
		}

		t := heap.Pop(&p.queue).(*task)
		idle.setState(WorkerBusy)
		idle.assign <- t
	}
}

func (p *Pool) findIdleWorkerLocked() *worker {
	for _, w := range p.workers {
		if w.getState() == WorkerIdle {
			return w
		}
	}
	return nil
}

// maintainLoop periodically reaps idle workers above MinWorkers and
// scales up toward ceil(1.5 x active) while the queue is non-empty,
// per spec.md §4.7.
func (p *Pool) maintainLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runMaintenance()
		}
	}
}

func (p *Pool) runMaintenance() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown.Load() {
		return
	}

	now := time.Now()

	for id, w := range p.workers {
		if len(p.workers) <= p.cfg.MinWorkers {
			break
		}
		if w.getState() != WorkerIdle {
			continue
		}

		lastActive := time.Unix(0, w.lastActive.Load())
		if now.Sub(lastActive) > p.cfg.IdleTimeout {
			close(w.assign)
			delete(p.workers, id)
		}
	}

	if len(p.queue) > 0 {
		active := len(p.workers)
		target := int((float64(active) * 1.5) + 0.999999)
		if target > p.cfg.MaxWorkers {
			target = p.cfg.MaxWorkers
		}
		for len(p.workers) < target {
			p.spawnWorker()
		}
		p.dispatchLocked()
	}
}

// Metrics returns a snapshot of the pool's running metrics.
func (p *Pool) Metrics() Metrics {
	return p.metrics.snapshot()
}

// WorkerCount returns the current number of live workers.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Shutdown stops accepting new tasks, cancels the maintenance loop,
// closes every worker's assignment channel, and waits (bounded by ctx)
// for all worker goroutines to exit.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.shutdown.Store(true)
	p.maintCancel()

	p.mu.Lock()
	for _, t := range p.queue {
		t.promise.Complete(fn.Err[any](actor.ErrActorTerminated))
	}
	p.queue = nil

	for _, w := range p.workers {
		close(w.assign)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
