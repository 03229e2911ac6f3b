package ingestpipe

import (
	"context"
	"log/slog"

	"github.com/querent-ai/querent-go/internal/corepb"
)

// Ingestor spawns one goroutine per CollectionBatch, bounded by a shared
// NUMBER_FILES_IN_MEMORY semaphore, and fans every batch's IngestedTokens
// onto a single output channel — the concurrency shape spec.md §4.C and §5
// describe for the ingestion actor.
type Ingestor struct {
	registry *Registry
	sem      *Semaphore
	logger   *slog.Logger
}

// NewIngestor builds an Ingestor bounding in-flight batches to capacity
// (DefaultNumberFilesInMemory if capacity <= 0).
func NewIngestor(registry *Registry, capacity int, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{registry: registry, sem: NewSemaphore(capacity), logger: logger}
}

// Submit acquires a semaphore permit (blocking until one is free), then
// parses batch in its own goroutine, releasing the permit when the batch's
// bytes are fully consumed — on success, on a read failure, or on ctx
// cancellation. Per-batch parser errors are logged with document identity
// and never close out or fail the pipeline; a complete read failure
// degrades to the terminal empty-data sentinel, same as any other format.
//
// The returned channel is closed once this batch's goroutine has exited on
// every path, including the unsupported-extension case where the parser
// yields a genuinely empty stream with no sentinel at all — callers that
// need to know when a specific batch has finished (rather than relying on
// the sentinel alone) should wait on it instead of scanning out for identity.
func (ing *Ingestor) Submit(ctx context.Context, batch *corepb.CollectionBatch, out chan<- corepb.IngestedTokens) <-chan struct{} {
	permit := ing.sem.Acquire()
	batch.Permit = permit

	done := make(chan struct{})
	go func() {
		defer close(done)
		id := identityOf(batch)
		tokens, err := ing.registry.Ingest(ctx, batch)
		if err != nil {
			ing.logger.Error("parser resolution failed", "file", id.file, "source", id.docSource, "ext", batch.Ext, "err", err)
			batch.Release()
			select {
			case out <- sentinel(id):
			case <-ctx.Done():
			}
			return
		}
		for t := range tokens {
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}
