// Package eventstream implements the fan-out stage between an Engine's
// event output and the storage mapper / indexer: it batches events by
// count or time, drains cleanly on a terminal control event, and applies
// backpressure to bounded downstream queues without ever dropping an
// event silently.
package eventstream

import (
	"errors"

	"github.com/querent-ai/querent-go/internal/corepb"
)

// DefaultDownstreamCapacity is the bounded queue capacity applied to every
// downstream sink, matching spec.md §4.E's backpressure section.
const DefaultDownstreamCapacity = 10

// ErrSinkFull is returned by TrySend when the bounded queue has no free
// capacity; callers retry rather than drop the batch.
var ErrSinkFull = errors.New("eventstream: sink queue is full")

// ErrSinkClosed is returned once the sink has been shut down (shutdown,
// called when the streamer sends its trailing shutdown notice).
var ErrSinkClosed = errors.New("eventstream: sink is closed")

// Sink is a bounded downstream queue of EventsBatch, with a distinct signal
// for the trailing graceful-shutdown notice the streamer sends once it
// drains after a terminal Success event.
type Sink struct {
	batches chan *corepb.EventsBatch
	closed  chan struct{}
}

// NewSink creates a Sink with the given bounded capacity (falling back to
// DefaultDownstreamCapacity when capacity <= 0).
func NewSink(capacity int) *Sink {
	if capacity <= 0 {
		capacity = DefaultDownstreamCapacity
	}
	return &Sink{
		batches: make(chan *corepb.EventsBatch, capacity),
		closed:  make(chan struct{}),
	}
}

// TrySend is the non-blocking send the streamer retries on backpressure.
func (s *Sink) TrySend(batch *corepb.EventsBatch) error {
	select {
	case <-s.closed:
		return ErrSinkClosed
	default:
	}
	select {
	case s.batches <- batch:
		return nil
	default:
		return ErrSinkFull
	}
}

// Batches returns the channel a downstream consumer ranges over.
func (s *Sink) Batches() <-chan *corepb.EventsBatch { return s.batches }

// Closed returns a channel that is closed once the streamer has sent its
// trailing graceful-shutdown notice.
func (s *Sink) Closed() <-chan struct{} { return s.closed }

// shutdown signals graceful close exactly once; safe to call only from the
// streamer's single writer goroutine.
func (s *Sink) shutdown() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
}
