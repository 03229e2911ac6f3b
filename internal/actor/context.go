package actor

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
)

// Context is the per-message handle a Behavior's Receive is given: it can
// send to other actors, spawn children, schedule self-messages, and read
// its own terminate signal.
type Context struct {
	self      *Handle
	runtime   *Runtime
	scheduler Scheduler
	logger    *slog.Logger
}

// Self returns the handle of the actor this Context belongs to.
func (c *Context) Self() *Handle { return c.self }

// Terminate returns this actor's terminate signal.
func (c *Context) Terminate() TerminateSignal { return c.self.terminate }

// Logger returns the structured logger scoped to this actor.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Scheduler returns the runtime's scheduler, real-time or accelerated.
func (c *Context) Scheduler() Scheduler { return c.scheduler }

// Spawn starts a child actor whose terminate signal descends from this
// actor's, so killing the parent kills the child within one heartbeat.
func (c *Context) Spawn(name string, behavior Behavior, opts ...SpawnOption) (*Handle, error) {
	childOpts := append([]SpawnOption{withParentTerminate(c.self.terminate)}, opts...)
	return c.runtime.Spawn(name, behavior, childOpts...)
}

// Send delivers a domain message to to's normal-priority queue, blocking
// until delivered, the queue is full and never drains, or ctx is canceled.
func (c *Context) Send(ctx context.Context, to *Handle, msg any) error {
	ctx, span := tracer.Start(ctx, spanName("send", msg))
	defer span.End()
	err := to.Send(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// TrySend attempts non-blocking delivery; ErrMailboxFull if to's bounded
// queue is at capacity.
func (c *Context) TrySend(to *Handle, msg any) error {
	return to.TrySend(msg)
}

// Ask sends msg to to and waits for the value its Receive returns.
func (c *Context) Ask(ctx context.Context, to *Handle, msg any) (any, error) {
	ctx, span := tracer.Start(ctx, spanName("ask", msg))
	defer span.End()
	v, err := to.Ask(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return v, err
}

// ScheduleSelfMsg delivers msg to this actor's own mailbox immediately and
// then again each time d elapses on the runtime's scheduler (real or
// accelerated), until canceled. The returned func cancels it.
func (c *Context) ScheduleSelfMsg(d time.Duration, msg any) (cancel func()) {
	stop := make(chan struct{})
	deliver := func() bool {
		guard := c.scheduler.NewGuard()
		env := envelope{msg: msg, guard: guard}
		if err := c.self.mailbox.normal.trySend(env); err != nil {
			guard.Release()
			return false
		}
		return true
	}
	go func() {
		if !deliver() {
			return
		}
		for {
			select {
			case <-stop:
				return
			case <-c.scheduler.After(d):
				// Hold a guard from the moment the timer fires until the
				// message has actually been processed, so an accelerated
				// scheduler can't race ahead of delivery: the virtual
				// clock only advances to the next tick once this one has
				// landed in the actor's mailbox and been handled.
				if !deliver() {
					return
				}
			}
		}
	}()
	return func() { close(stop) }
}
