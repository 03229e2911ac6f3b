package actor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBoundedQueueTrySendFailsOnCPlusOneth(t *testing.T) {
	const capacity = 3
	mb := newMailbox(Bounded(capacity))

	for i := 0; i < capacity; i++ {
		if err := mb.normal.trySend(envelope{msg: i}); err != nil {
			t.Fatalf("trySend %d: unexpected error %v", i, err)
		}
	}

	err := mb.normal.trySend(envelope{msg: "one-too-many"})
	if !errors.Is(err, ErrMailboxFull) {
		t.Fatalf("(C+1)-th trySend = %v, want ErrMailboxFull", err)
	}
}

func TestUnboundedQueueNeverRejectsOnCapacity(t *testing.T) {
	mb := newMailbox(Unbounded())
	for i := 0; i < 10_000; i++ {
		if err := mb.normal.trySend(envelope{msg: i}); err != nil {
			t.Fatalf("trySend %d: unexpected error %v", i, err)
		}
	}
	for i := 0; i < 10_000; i++ {
		select {
		case e := <-mb.normal.recv():
			if e.msg.(int) != i {
				t.Fatalf("out of order delivery: got %v want %d", e.msg, i)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestHighPriorityQueueIsAlwaysUnbounded(t *testing.T) {
	mb := newMailbox(Bounded(1))
	for i := 0; i < 100; i++ {
		if err := mb.high.trySend(envelope{msg: Nudge}); err != nil {
			t.Fatalf("high-priority trySend %d: unexpected error %v", i, err)
		}
	}
}

func TestBoundedQueueSendBlocksUntilSpace(t *testing.T) {
	mb := newMailbox(Bounded(1))
	if err := mb.normal.trySend(envelope{msg: 1}); err != nil {
		t.Fatalf("trySend: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- mb.normal.send(ctx, envelope{msg: 2})
	}()

	select {
	case <-done:
		t.Fatalf("send should have blocked while queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	<-mb.normal.recv() // drain the first message, freeing a slot

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("send after drain: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("send never unblocked after drain")
	}
}
