package actor

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type echoBehavior struct {
	received atomic.Int64
}

func (b *echoBehavior) Receive(ctx *Context, msg any) (any, error) {
	b.received.Add(1)
	return msg, nil
}

func TestRuntimeSpawnSendAndObserve(t *testing.T) {
	rt := NewRuntime(nil)
	behavior := &echoBehavior{}
	h, err := rt.Spawn("echo", behavior)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.Send(ctx, "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for behavior.received.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if behavior.received.Load() != 1 {
		t.Fatalf("behavior should have received exactly one message, got %d", behavior.received.Load())
	}

	h.Command(Quit)
	select {
	case status := <-h.Done():
		if status.State() != Success {
			t.Fatalf("Quit should exit Success-equivalent, got %v", status)
		}
	case <-time.After(time.Second):
		t.Fatalf("actor never exited after Quit")
	}
}

type replyBehavior struct{}

func (replyBehavior) Receive(ctx *Context, msg any) (any, error) {
	n, ok := msg.(int)
	if !ok {
		return nil, errors.New("unexpected message type")
	}
	return n * 2, nil
}

func TestRuntimeAsk(t *testing.T) {
	rt := NewRuntime(nil)
	h, err := rt.Spawn("doubler", replyBehavior{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer h.Command(Quit)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := h.Ask(ctx, 21)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if v.(int) != 42 {
		t.Fatalf("Ask reply = %v, want 42", v)
	}
}

type observableBehavior struct{}

func (observableBehavior) Receive(ctx *Context, msg any) (any, error) { return nil, nil }
func (observableBehavior) ObservableState() any                      { return "snapshot" }

func TestRuntimeObserve(t *testing.T) {
	rt := NewRuntime(nil)
	h, err := rt.Spawn("observable", observableBehavior{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer h.Command(Quit)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := h.Observe(ctx, time.Second)
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if v != "snapshot" {
		t.Fatalf("Observe = %v, want snapshot", v)
	}
}

func TestRuntimePauseStopsDomainDeliveryButNotCommands(t *testing.T) {
	rt := NewRuntime(nil)
	behavior := &echoBehavior{}
	h, err := rt.Spawn("pausable", behavior, WithCapacity(Bounded(10)))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	h.Command(Pause)
	time.Sleep(20 * time.Millisecond) // let Pause land

	if err := h.TrySend("queued-while-paused"); err != nil {
		t.Fatalf("TrySend while paused: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if behavior.received.Load() != 0 {
		t.Fatalf("paused actor must not process domain messages, got %d", behavior.received.Load())
	}

	h.Command(Resume)
	deadline := time.Now().Add(time.Second)
	for behavior.received.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if behavior.received.Load() != 1 {
		t.Fatalf("resumed actor should have processed the queued message, got %d", behavior.received.Load())
	}
	h.Command(Quit)
}

func TestRuntimeKillViaTerminateSignal(t *testing.T) {
	rt := NewRuntime(nil)
	h, err := rt.Spawn("killable", &echoBehavior{})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	h.Terminate().Kill()

	select {
	case status := <-h.Done():
		if status.State() != Failure {
			t.Fatalf("Kill should exit Failure-equivalent, got %v", status)
		}
	case <-time.After(time.Second):
		t.Fatalf("actor never noticed its terminate signal")
	}
}

type tickBehavior struct {
	count atomic.Int64
}

func (b *tickBehavior) Receive(ctx *Context, msg any) (any, error) {
	if msg == "tick" {
		b.count.Add(1)
	}
	return nil, nil
}

func (b *tickBehavior) Initialize(ctx *Context) error {
	ctx.ScheduleSelfMsg(10*time.Millisecond, "tick")
	return nil
}

type orderedBehavior struct {
	mu    sync.Mutex
	order []string
}

func (b *orderedBehavior) Receive(ctx *Context, msg any) (any, error) {
	b.mu.Lock()
	b.order = append(b.order, msg.(string))
	b.mu.Unlock()
	return nil, nil
}

func (b *orderedBehavior) ObservableState() any {
	b.mu.Lock()
	b.order = append(b.order, "observe")
	b.mu.Unlock()
	return nil
}

func (b *orderedBehavior) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// TestMessageLoopDrainsAllHighBeforeNormal asserts the wakeup contract: every
// pending high-priority message (here, Observe requests) is processed before
// a single normal-priority message, even when the normal messages have been
// sitting in the mailbox the whole time.
func TestMessageLoopDrainsAllHighBeforeNormal(t *testing.T) {
	rt := NewRuntime(nil)
	behavior := &orderedBehavior{}
	h, err := rt.Spawn("ordered", behavior, WithCapacity(Bounded(10)))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer h.Command(Quit)

	h.Command(Pause)
	time.Sleep(20 * time.Millisecond) // let Pause land before anything else queues

	if err := h.TrySend("normal-1"); err != nil {
		t.Fatalf("TrySend normal-1: %v", err)
	}
	if err := h.TrySend("normal-2"); err != nil {
		t.Fatalf("TrySend normal-2: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if _, err := h.Observe(ctx, time.Second); err != nil {
				t.Errorf("Observe: %v", err)
			}
		}()
	}
	wg.Wait()

	// All three Observe calls returned, which can only happen once the
	// runtime has fully processed their high-priority envelopes. The two
	// normal messages were queued first but must still be untouched,
	// because the actor is still paused.
	if got := behavior.snapshot(); !reflect.DeepEqual(got, []string{"observe", "observe", "observe"}) {
		t.Fatalf("high-priority batch should drain before any normal message, got %v", got)
	}

	h.Command(Resume)

	deadline := time.Now().Add(time.Second)
	for len(behavior.snapshot()) < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	want := []string{"observe", "observe", "observe", "normal-1", "normal-2"}
	if got := behavior.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("drain order = %v, want %v", got, want)
	}
}

type yieldAwareBehavior struct {
	orderedBehavior
	yield bool
}

func (b *yieldAwareBehavior) YieldAfterEachMessage() bool { return b.yield }

// TestYieldHintIsHonoredWithoutBreakingDelivery checks that a behavior
// declaring YieldAfterEachMessage still receives every message, in order,
// whether or not it opts into yielding between batches.
func TestYieldHintIsHonoredWithoutBreakingDelivery(t *testing.T) {
	for _, yield := range []bool{true, false} {
		behavior := &yieldAwareBehavior{yield: yield}
		var ifaceCheck YieldHint = behavior
		if ifaceCheck.YieldAfterEachMessage() != yield {
			t.Fatalf("YieldAfterEachMessage() = %v, want %v", ifaceCheck.YieldAfterEachMessage(), yield)
		}

		rt := NewRuntime(nil)
		h, err := rt.Spawn("yield-aware", behavior, WithCapacity(Bounded(10)))
		if err != nil {
			t.Fatalf("Spawn: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		for _, msg := range []string{"a", "b", "c"} {
			if err := h.Send(ctx, msg); err != nil {
				t.Fatalf("Send(%s): %v", msg, err)
			}
		}
		cancel()

		deadline := time.Now().Add(time.Second)
		for len(behavior.snapshot()) < 3 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		if got := behavior.snapshot(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
			t.Fatalf("yield=%v delivery order = %v, want [a b c]", yield, got)
		}
		h.Command(Quit)
	}
}

// supervisorBehavior spawns a fixed set of children on Initialize and, once
// its own run ends in Quit, forwards Quit to each child and waits for them
// to exit before Finalize returns — fan-out across the terminate tree only
// carries Kill, so a cooperative Quit has to be relayed explicitly by the
// parent that received it.
type supervisorBehavior struct {
	childNames []string
	children   []*Handle
}

func (s *supervisorBehavior) Receive(ctx *Context, msg any) (any, error) { return nil, nil }

func (s *supervisorBehavior) Initialize(ctx *Context) error {
	for _, name := range s.childNames {
		child, err := ctx.Spawn(name, &echoBehavior{})
		if err != nil {
			return err
		}
		s.children = append(s.children, child)
	}
	return nil
}

func (s *supervisorBehavior) Finalize(ctx *Context, status ActorExitStatus) error {
	if status != ExitQuit {
		return nil
	}
	for _, child := range s.children {
		child.Command(Quit)
	}
	for _, child := range s.children {
		<-child.Done()
	}
	return nil
}

// TestQuitPropagatesFromRootThroughSupervisedChildren builds a three-actor
// pipeline (one root, two children) and sends Quit to the root, asserting
// all three report ExitQuit.
func TestQuitPropagatesFromRootThroughSupervisedChildren(t *testing.T) {
	rt := NewRuntime(nil)
	sup := &supervisorBehavior{childNames: []string{"stage-a", "stage-b"}}
	root, err := rt.Spawn("root", sup)
	if err != nil {
		t.Fatalf("Spawn root: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(sup.children) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(sup.children) != 2 {
		t.Fatalf("supervisor should have spawned 2 children, got %d", len(sup.children))
	}
	children := append([]*Handle(nil), sup.children...)

	root.Command(Quit)

	select {
	case <-root.Done():
		if status := root.ExitStatus(); status != ExitQuit {
			t.Fatalf("root exit status = %v, want ExitQuit", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("root never exited after Quit")
	}

	for i, child := range children {
		select {
		case <-child.Done():
			if status := child.ExitStatus(); status != ExitQuit {
				t.Fatalf("child %d exit status = %v, want ExitQuit", i, status)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("child %d never exited after root relayed Quit", i)
		}
	}
}

func TestScheduleSelfMsgDeliversRepeatedly(t *testing.T) {
	rt := NewRuntime(nil)
	behavior := &tickBehavior{}
	h, err := rt.Spawn("ticker", behavior, WithHeartbeatInterval(time.Hour))
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer h.Command(Quit)

	time.Sleep(55 * time.Millisecond)
	if got := behavior.count.Load(); got < 4 {
		t.Fatalf("expected at least 4 ticks in 55ms at a 10ms interval, got %d", got)
	}
}
