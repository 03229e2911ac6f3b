package actor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/actor")

// spanName builds the actor.<kind>.<message-type> span name every
// ask/send/process boundary opens, the way pkg/fn.TracedStage names its
// stage spans.
func spanName(kind string, msg any) string {
	return fmt.Sprintf("actor.%s.%T", kind, msg)
}

// RuntimeKind selects which of the two worker pools an actor is scheduled
// onto: NonBlocking for actors whose Receive never blocks on I/O (routing,
// fan-out, bookkeeping), Blocking for actors that call out to storage
// backends, network sources, or external engines.
type RuntimeKind int

const (
	NonBlocking RuntimeKind = iota
	Blocking
)

func (k RuntimeKind) String() string {
	if k == Blocking {
		return "blocking"
	}
	return "non-blocking"
}

// PoolSizes reproduces the teacher's CPU-proportional worker count: a small
// fixed non-blocking pool so routing stays responsive, and the remaining
// CPUs dedicated to blocking work.
func PoolSizes(cpus int) (nonBlocking, blocking int) {
	nonBlocking = 1
	if cpus > 6 {
		nonBlocking = 2
	}
	blocking = cpus - nonBlocking
	if blocking < 1 {
		blocking = 1
	}
	return nonBlocking, blocking
}

// Runtime owns the two worker pools actors run on and the registry used by
// Observe lookups.
type Runtime struct {
	nonBlocking chan struct{}
	blocking    chan struct{}
	registry    *Registry
	scheduler   Scheduler
	logger      *slog.Logger
}

// NewRuntime builds a runtime sized for the host's CPU count, in real-time
// mode.
func NewRuntime(logger *slog.Logger) *Runtime {
	return NewRuntimeWithScheduler(logger, NewRealScheduler())
}

// NewRuntimeWithScheduler builds a runtime using the given scheduler, so
// tests can pass an AcceleratedScheduler.
func NewRuntimeWithScheduler(logger *slog.Logger, sched Scheduler) *Runtime {
	nb, b := PoolSizes(runtime.NumCPU())
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		nonBlocking: make(chan struct{}, nb),
		blocking:    make(chan struct{}, b),
		registry:    NewRegistry(),
		scheduler:   sched,
		logger:      logger,
	}
}

func (r *Runtime) Registry() *Registry { return r.registry }
func (r *Runtime) Scheduler() Scheduler { return r.scheduler }

// SpawnOption configures a spawned actor.
type SpawnOption func(*spawnConfig)

type spawnConfig struct {
	capacity  Capacity
	parent    *TerminateSignal
	kind      RuntimeKind
	heartbeat time.Duration
}

// WithCapacity sets the normal-queue capacity; the default is Bounded(1000).
func WithCapacity(c Capacity) SpawnOption {
	return func(cfg *spawnConfig) { cfg.capacity = c }
}

// WithRuntimeKind selects the worker pool; the default is NonBlocking.
func WithRuntimeKind(k RuntimeKind) SpawnOption {
	return func(cfg *spawnConfig) { cfg.kind = k }
}

// WithHeartbeatInterval sets how often the supervisor expects a heartbeat;
// the default is 1s.
func WithHeartbeatInterval(d time.Duration) SpawnOption {
	return func(cfg *spawnConfig) { cfg.heartbeat = d }
}

func withParentTerminate(parent TerminateSignal) SpawnOption {
	return func(cfg *spawnConfig) { cfg.parent = &parent }
}

// Handle is the externally held reference to a running actor: every field
// needed to send it messages, observe it, or wait for it to exit.
type Handle struct {
	Name      string
	mailbox   *mailbox
	state     *atomicState
	terminate TerminateSignal
	kind      RuntimeKind

	lastHeartbeat atomic.Int64 // unix nanos
	exitOnce      sync.Once
	exitCh        chan ActorExitStatus
	exitStatus    atomic.Value // ActorExitStatus
}

// State returns the actor's current lifecycle state.
func (h *Handle) State() State { return h.state.get() }

// Terminate returns the actor's terminate signal; callers that are not its
// parent should only ever read IsAlive/IsDead from it, never Kill it
// directly unless they own the tree root.
func (h *Handle) Terminate() TerminateSignal { return h.terminate }

// LastHeartbeat returns the last time the actor reported liveness.
func (h *Handle) LastHeartbeat() time.Time {
	return time.Unix(0, h.lastHeartbeat.Load())
}

// Done returns a channel closed when the actor has exited.
func (h *Handle) Done() <-chan ActorExitStatus { return h.exitCh }

// ExitStatus returns the actor's exit status once Done is closed; the zero
// value otherwise.
func (h *Handle) ExitStatus() ActorExitStatus {
	v, _ := h.exitStatus.Load().(ActorExitStatus)
	return v
}

// Send delivers a domain message, blocking if the bounded queue is full.
func (h *Handle) Send(ctx context.Context, msg any) error {
	return h.mailbox.normal.send(ctx, envelope{msg: msg})
}

// TrySend attempts non-blocking delivery.
func (h *Handle) TrySend(msg any) error {
	return h.mailbox.normal.trySend(envelope{msg: msg})
}

// Command sends a high-priority control message; commands are never
// rejected for capacity (the command queue is unbounded).
func (h *Handle) Command(cmd Command) {
	h.mailbox.high.trySend(envelope{msg: cmd})
}

// Ask sends msg and blocks for the Receive-returned reply.
func (h *Handle) Ask(ctx context.Context, msg any) (any, error) {
	reply := make(chan askReply, 1)
	if err := h.mailbox.normal.send(ctx, envelope{msg: askEnvelope{msg: msg, reply: reply}}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Observe requests the behavior's current ObservableState snapshot via the
// high-priority queue, with a timeout since a stuck actor must not hang its
// supervisor forever.
func (h *Handle) Observe(ctx context.Context, timeout time.Duration) (any, error) {
	reply := make(chan any, 1)
	if err := h.mailbox.high.trySend(envelope{msg: observeRequest{reply: reply}}); err != nil {
		return nil, err
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case v := <-reply:
		return v, nil
	case <-tctx.Done():
		return nil, tctx.Err()
	}
}

type askEnvelope struct {
	msg   any
	reply chan askReply
}

type askReply struct {
	value any
	err   error
}

// Spawn starts behavior running on one of the runtime's worker pools and
// returns a Handle to it.
func (r *Runtime) Spawn(name string, behavior Behavior, opts ...SpawnOption) (*Handle, error) {
	cfg := spawnConfig{capacity: Bounded(1000), kind: NonBlocking, heartbeat: time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	term := NewTerminateSignal()
	if cfg.parent != nil {
		term = cfg.parent.Child()
	}

	h := &Handle{
		Name:      name,
		mailbox:   newMailbox(cfg.capacity),
		state:     newAtomicState(),
		terminate: term,
		kind:      cfg.kind,
		exitCh:    make(chan ActorExitStatus),
	}
	h.lastHeartbeat.Store(r.scheduler.Now().UnixNano())

	pool := r.nonBlocking
	if cfg.kind == Blocking {
		pool = r.blocking
	}

	r.registry.register(name, h)

	go func() {
		pool <- struct{}{}
		defer func() { <-pool }()
		r.runLoop(h, behavior, cfg.heartbeat)
	}()

	return h, nil
}

func (r *Runtime) runLoop(h *Handle, behavior Behavior, heartbeat time.Duration) {
	ctx := &Context{self: h, runtime: r, scheduler: r.scheduler, logger: r.logger.With("actor", h.Name)}

	status := r.initialize(ctx, behavior)
	if status == nil {
		status = r.messageLoop(ctx, behavior, heartbeat)
	}
	r.finalize(ctx, behavior, *status)
}

func (r *Runtime) initialize(ctx *Context, behavior Behavior) *ActorExitStatus {
	init, ok := behavior.(Initializer)
	if !ok {
		return nil
	}
	var status *ActorExitStatus
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				s := ExitPanicked(rec)
				status = &s
			}
		}()
		if err := init.Initialize(ctx); err != nil {
			s := ExitFailure(err)
			status = &s
		}
	}()
	return status
}

// messageLoop implements spec's drain-order contract: every wakeup first
// drains all pending high-priority messages (commands, Observe requests),
// then advances at most one normal-priority domain message, yielding the
// worker-pool goroutine between those two batches (and after the normal
// message) when the behavior declares YieldAfterEachMessage.
func (r *Runtime) messageLoop(ctx *Context, behavior Behavior, heartbeat time.Duration) *ActorExitStatus {
	h := ctx.self
	paused := false
	yieldAfterEachMessage := false
	if y, ok := behavior.(YieldHint); ok {
		yieldAfterEachMessage = y.YieldAfterEachMessage()
	}

	maybeYield := func() {
		if yieldAfterEachMessage {
			runtime.Gosched()
		}
	}

	// process handles one envelope — a command, an Observe request, or a
	// domain message — and reports a terminal exit status if the actor
	// should stop running.
	process := func(env envelope) *ActorExitStatus {
		h.state.toProcessing()
		h.lastHeartbeat.Store(r.scheduler.Now().UnixNano())
		defer env.release()

		if cmd, isCmd := env.msg.(Command); isCmd {
			switch cmd {
			case Pause:
				if !h.state.get().IsExit() {
					h.state.pause()
					paused = true
				}
			case Resume:
				if h.state.get() == Paused {
					h.state.resume()
					paused = false
				}
			case ExitWithSuccess:
				h.state.exit(true)
				s := ExitSuccess
				return &s
			case Quit:
				h.state.exit(true)
				s := ExitQuit
				return &s
			case Nudge:
				// no-op, only wakes the select above.
			}
			return nil
		}

		if obs, isObs := env.msg.(observeRequest); isObs {
			var snapshot any
			if o, ok := behavior.(Observable); ok {
				snapshot = o.ObservableState()
			}
			select {
			case obs.reply <- snapshot:
			default:
			}
			return nil
		}

		return r.deliver(ctx, behavior, env)
	}

	// drainHigh processes every high-priority message currently queued,
	// without blocking once the queue runs dry, so a wakeup always clears
	// every pending command/Observe before a single normal message moves.
	drainHigh := func() *ActorExitStatus {
		for {
			select {
			case env, ok := <-h.mailbox.high.recv():
				if !ok {
					s := ExitDownstreamClosed
					return &s
				}
				if status := process(env); status != nil {
					return status
				}
				maybeYield()
			default:
				return nil
			}
		}
	}

	// woken is the full drain-order contract for a wakeup whose first
	// envelope came off the high-priority queue: process it, drain every
	// remaining high-priority message, then advance at most one normal
	// message.
	woken := func(first envelope) *ActorExitStatus {
		if status := process(first); status != nil {
			return status
		}
		maybeYield()
		if status := drainHigh(); status != nil {
			return status
		}
		maybeYield()
		if paused {
			return nil
		}
		select {
		case env, ok := <-h.mailbox.normal.recv():
			if !ok {
				s := ExitDownstreamClosed
				return &s
			}
			if status := process(env); status != nil {
				return status
			}
			maybeYield()
		default:
		}
		return nil
	}

	for {
		if h.terminate.IsDead() {
			h.state.exit(false)
			s := ExitKilled
			return &s
		}

		h.state.toIdle()

		if paused {
			env, ok := <-h.mailbox.high.recv()
			if !ok {
				s := ExitDownstreamClosed
				return &s
			}
			if status := woken(env); status != nil {
				return status
			}
			continue
		}

		// A non-blocking peek first: a select with both queues ready picks
		// between them at random, which would violate the
		// high-priority-first contract whenever both are ready at once.
		select {
		case env, ok := <-h.mailbox.high.recv():
			if !ok {
				s := ExitDownstreamClosed
				return &s
			}
			if status := woken(env); status != nil {
				return status
			}
			continue
		default:
		}

		select {
		case env, ok := <-h.mailbox.high.recv():
			if !ok {
				s := ExitDownstreamClosed
				return &s
			}
			if status := woken(env); status != nil {
				return status
			}
		case env, ok := <-h.mailbox.normal.recv():
			if !ok {
				s := ExitDownstreamClosed
				return &s
			}
			// A high-priority message queued concurrently with this one
			// still drains first, even though the normal message already
			// left its channel.
			if status := drainHigh(); status != nil {
				return status
			}
			maybeYield()
			if status := process(env); status != nil {
				return status
			}
			maybeYield()
		case <-r.scheduler.After(heartbeat):
			h.lastHeartbeat.Store(r.scheduler.Now().UnixNano())
		}
	}
}

func (r *Runtime) deliver(ctx *Context, behavior Behavior, env envelope) (status *ActorExitStatus) {
	defer func() {
		if rec := recover(); rec != nil {
			s := ExitPanicked(rec)
			status = &s
		}
	}()

	if ask, isAsk := env.msg.(askEnvelope); isAsk {
		_, span := tracer.Start(context.Background(), spanName("process", ask.msg))
		value, err := behavior.Receive(ctx, ask.msg)
		select {
		case ask.reply <- askReply{value: value, err: err}:
		default:
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if err != nil {
			s := ExitFailure(err)
			return &s
		}
		return nil
	}

	_, span := tracer.Start(context.Background(), spanName("process", env.msg))
	_, err := behavior.Receive(ctx, env.msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	if err != nil {
		s := ExitFailure(err)
		return &s
	}
	return status
}

func (r *Runtime) finalize(ctx *Context, behavior Behavior, status ActorExitStatus) {
	ctx.self.state.exit(status.State() == Success)

	if fin, ok := behavior.(Finalizer); ok {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("finalize panicked", "actor", ctx.self.Name, "recovered", fmt.Sprint(rec))
				}
			}()
			if err := fin.Finalize(ctx, status); err != nil {
				r.logger.Error("finalize failed", "actor", ctx.self.Name, "err", err)
			}
		}()
	}

	ctx.self.exitOnce.Do(func() {
		ctx.self.exitStatus.Store(status)
		close(ctx.self.exitCh)
	})
	r.registry.unregister(ctx.self.Name)
}
