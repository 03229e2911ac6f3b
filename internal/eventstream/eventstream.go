package eventstream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/querent-ai/querent-go/internal/actor"
	"github.com/querent-ai/querent-go/internal/corepb"
)

// DefaultBatchNumEventsLimit is spec.md §4.E's BATCH_NUM_EVENTS_LIMIT.
const DefaultBatchNumEventsLimit = 10

// DefaultEmitBatchesTimeout is spec.md §4.E's EMIT_BATCHES_TIMEOUT.
const DefaultEmitBatchesTimeout = time.Second

// retryInterval is how long TrySend backs off between backpressure retries.
const retryInterval = 5 * time.Millisecond

// Publisher fans a finished batch out to an external observer. It is purely
// additive: storage delivery never depends on it succeeding.
type Publisher interface {
	Publish(ctx context.Context, subject string, batch *corepb.EventsBatch) error
}

// Streamer batches an Engine's EventState stream by count or time and
// forwards grouped EventsBatch values to the storage mapper, and — for
// Graph events — additionally to the indexer.
type Streamer struct {
	PipelineID string

	StorageMapper *Sink
	Indexer       *Sink

	// Publisher and Subject are optional; when both are set, every flushed
	// batch is additionally published for external observability.
	Publisher Publisher
	Subject   string

	BatchNumEventsLimit int
	EmitBatchesTimeout  time.Duration

	Scheduler actor.Scheduler
	Logger    *slog.Logger
}

// NewStreamer builds a Streamer with spec.md §4.E's default batch limits
// and a real wall-clock scheduler.
func NewStreamer(pipelineID string, storageMapper, indexer *Sink) *Streamer {
	return &Streamer{
		PipelineID:          pipelineID,
		StorageMapper:       storageMapper,
		Indexer:             indexer,
		BatchNumEventsLimit: DefaultBatchNumEventsLimit,
		EmitBatchesTimeout:  DefaultEmitBatchesTimeout,
		Scheduler:           actor.NewRealScheduler(),
		Logger:              slog.Default(),
	}
}

// Run drains in until a terminal control event is received (or the channel
// closes), batching by count/time along the way. It returns nil on a clean
// Success exit and the carried error on Failure or context cancellation.
func (s *Streamer) Run(ctx context.Context, in <-chan corepb.EventState) error {
	limit := s.BatchNumEventsLimit
	if limit <= 0 {
		limit = DefaultBatchNumEventsLimit
	}
	timeout := s.EmitBatchesTimeout
	if timeout <= 0 {
		timeout = DefaultEmitBatchesTimeout
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	current := corepb.NewEventsBatch(s.PipelineID)
	tick := s.Scheduler.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-in:
			if !ok {
				s.flush(ctx, current, logger)
				s.drainShutdown()
				return nil
			}

			switch ev.EventType {
			case corepb.EventSuccess:
				s.flush(ctx, current, logger)
				s.drainShutdown()
				return nil
			case corepb.EventFailure:
				return ev.Err
			default:
				current.Add(ev)
				if current.Len() >= limit {
					s.flush(ctx, current, logger)
					current = corepb.NewEventsBatch(s.PipelineID)
					tick = s.Scheduler.After(timeout)
				}
			}

		case <-tick:
			if current.Len() > 0 {
				s.flush(ctx, current, logger)
				current = corepb.NewEventsBatch(s.PipelineID)
			}
			tick = s.Scheduler.After(timeout)
		}
	}
}

// flush delivers every non-empty event-type group in batch to the storage
// mapper, and Graph groups additionally to the indexer, retrying on
// backpressure until the send succeeds or ctx is cancelled.
func (s *Streamer) flush(ctx context.Context, batch *corepb.EventsBatch, logger *slog.Logger) {
	if batch.Len() == 0 {
		return
	}

	for eventType, events := range batch.Events {
		if len(events) == 0 {
			continue
		}
		grouped := corepb.NewEventsBatch(batch.PipelineID)
		grouped.Timestamp = batch.Timestamp
		for _, ev := range events {
			grouped.Add(ev)
		}

		s.deliver(ctx, s.StorageMapper, grouped, logger)
		if eventType == corepb.EventGraph {
			s.deliver(ctx, s.Indexer, grouped, logger)
		}

		if s.Publisher != nil && s.Subject != "" {
			subject := fmt.Sprintf("%s.%s", s.Subject, eventType.String())
			if err := s.Publisher.Publish(ctx, subject, grouped); err != nil {
				logger.Warn("eventstream: publish fan-out failed", "subject", subject, "error", err)
			}
		}
	}
}

// deliver retries TrySend until it succeeds, the sink is closed, or ctx is
// cancelled. The send path never drops an event silently.
func (s *Streamer) deliver(ctx context.Context, sink *Sink, batch *corepb.EventsBatch, logger *slog.Logger) {
	if sink == nil {
		return
	}
	for {
		err := sink.TrySend(batch)
		switch err {
		case nil:
			return
		case ErrSinkClosed:
			logger.Warn("eventstream: dropped batch, sink already closed", "pipeline_id", batch.PipelineID)
			return
		default:
			select {
			case <-ctx.Done():
				return
			case <-s.Scheduler.After(retryInterval):
			}
		}
	}
}

// drainShutdown sends the trailing graceful-shutdown notice to every
// configured downstream sink.
func (s *Streamer) drainShutdown() {
	if s.StorageMapper != nil {
		s.StorageMapper.shutdown()
	}
	if s.Indexer != nil {
		s.Indexer.shutdown()
	}
}
