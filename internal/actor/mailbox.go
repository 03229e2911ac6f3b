package actor

import (
	"context"
	"errors"
)

// ErrMailboxFull is returned by TrySend when a Bounded queue is at capacity.
var ErrMailboxFull = errors.New("actor: mailbox is at capacity")

// ErrActorGone is returned when a message cannot be delivered because the
// receiving actor's mailbox has been closed.
var ErrActorGone = errors.New("actor: mailbox closed, actor is gone")

// Capacity configures the normal-priority queue of a mailbox.
type Capacity struct {
	bounded   int
	unbounded bool
}

// Bounded returns a capacity that holds at most n domain messages; beyond
// that, Send blocks and TrySend fails with ErrMailboxFull.
func Bounded(n int) Capacity { return Capacity{bounded: n} }

// Unbounded returns a capacity with no limit. Send and TrySend never block
// on capacity.
func Unbounded() Capacity { return Capacity{unbounded: true} }

// envelope carries one message (command or domain) through a queue, plus an
// optional scheduler guard that keeps virtual time from advancing past an
// in-flight message (see Scheduler).
type envelope struct {
	msg   any
	guard *guardHandle
}

func (e envelope) release() {
	if e.guard != nil {
		e.guard.Release()
	}
}

// mailbox is the two-queue prioritized channel owned by one actor: a
// high-priority queue for Commands/Observe, and a normal queue for domain
// messages with configurable capacity.
type mailbox struct {
	high   queue
	normal queue
}

func newMailbox(cap Capacity) *mailbox {
	return &mailbox{
		high:   newUnboundedQueue(),
		normal: newQueueForCapacity(cap),
	}
}

// queue abstracts over a bounded channel-backed queue and an unbounded
// pump-backed queue so the mailbox can treat both uniformly.
type queue interface {
	send(ctx context.Context, e envelope) error
	trySend(e envelope) error
	recv() <-chan envelope
	close()
}

func newQueueForCapacity(c Capacity) queue {
	if c.unbounded {
		return newUnboundedQueue()
	}
	n := c.bounded
	if n <= 0 {
		n = 1
	}
	return &boundedQueue{ch: make(chan envelope, n)}
}

// boundedQueue is a fixed-capacity queue backed directly by a Go channel.
type boundedQueue struct {
	ch chan envelope
}

func (q *boundedQueue) send(ctx context.Context, e envelope) error {
	select {
	case q.ch <- e:
		return nil
	default:
	}
	select {
	case q.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *boundedQueue) trySend(e envelope) error {
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrMailboxFull
	}
}

func (q *boundedQueue) recv() <-chan envelope { return q.ch }
func (q *boundedQueue) close()                { close(q.ch) }

// unboundedQueue is a growable queue: a feeder goroutine buffers pending
// envelopes in a slice and republishes them on an output channel, so sends
// never block on capacity.
type unboundedQueue struct {
	in  chan envelope
	out chan envelope
	die chan struct{}
}

func newUnboundedQueue() *unboundedQueue {
	q := &unboundedQueue{
		in:  make(chan envelope),
		out: make(chan envelope),
		die: make(chan struct{}),
	}
	go q.pump()
	return q
}

func (q *unboundedQueue) pump() {
	var buf []envelope
	for {
		if len(buf) == 0 {
			select {
			case e, ok := <-q.in:
				if !ok {
					close(q.out)
					return
				}
				buf = append(buf, e)
			case <-q.die:
				close(q.out)
				return
			}
			continue
		}
		select {
		case e, ok := <-q.in:
			if !ok {
				for _, pending := range buf {
					q.out <- pending
				}
				close(q.out)
				return
			}
			buf = append(buf, e)
		case q.out <- buf[0]:
			buf = buf[1:]
		case <-q.die:
			close(q.out)
			return
		}
	}
}

func (q *unboundedQueue) send(ctx context.Context, e envelope) error {
	select {
	case q.in <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *unboundedQueue) trySend(e envelope) error {
	select {
	case q.in <- e:
		return nil
	default:
		// The pump goroutine always has a receive ready, so this only
		// happens under extreme contention; spin once more with send.
		q.in <- e
		return nil
	}
}

func (q *unboundedQueue) recv() <-chan envelope { return q.out }
func (q *unboundedQueue) close()                { close(q.die) }
