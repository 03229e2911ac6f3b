// Package pipeline assembles the end-to-end run spec.md §4.F describes:
// it resolves storage backends, spawns collectors sharing one ingestor,
// binds an engine's output to an event streamer, and wires a hierarchical
// terminate signal so killing the root kills every stage.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/querent-ai/querent-go/internal/actor"
	"github.com/querent-ai/querent-go/internal/corepb"
	"github.com/querent-ai/querent-go/internal/engine"
	"github.com/querent-ai/querent-go/internal/eventstream"
	"github.com/querent-ai/querent-go/internal/ingestpipe"
	"github.com/querent-ai/querent-go/internal/source"
	"github.com/querent-ai/querent-go/internal/storage"
)

// Status is the pipeline's terminal disposition, set once and only once.
type Status int

const (
	StatusRunning Status = iota
	StatusSuccess
	StatusFailure
	StatusKilled
	// StatusQuit is the cooperative counterpart to StatusKilled: the
	// pipeline stopped because Quit was requested, not because its
	// terminate signal was killed. The distinction mirrors
	// actor.ExitQuit vs actor.ExitKilled.
	StatusQuit
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusKilled:
		return "killed"
	case StatusQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Spec describes everything needed to assemble and run a pipeline.
type Spec struct {
	PipelineID   string
	CollectionID string
	Sources      []source.Source
	Storage      *storage.Facade
	Engine       engine.Engine

	IngestorCapacity    int
	BatchNumEventsLimit int
	EmitBatchesTimeout  time.Duration

	// Publisher, when set, fans every flushed EventsBatch out to
	// "events.<pipeline_id>.<event_type>" in addition to storage, for
	// external observability. Optional; nil means no external publishing.
	Publisher eventstream.Publisher

	Logger *slog.Logger
}

// Handle is returned by Start: the only way a caller interacts with a
// running pipeline.
type Handle struct {
	id        string
	terminate actor.TerminateSignal
	cancel    context.CancelFunc
	stats     *statsCounter
	quit      atomic.Bool

	mu     sync.Mutex
	status Status
	err    error

	stageMu sync.Mutex
	stages  map[string]Status

	done chan struct{}
}

// ID returns the pipeline's identifier.
func (h *Handle) ID() string { return h.id }

// Observe returns a snapshot of the pipeline's current statistics and status.
func (h *Handle) Observe() (IndexingStatistics, Status) {
	h.mu.Lock()
	status := h.status
	h.mu.Unlock()
	return h.stats.snapshot(), status
}

// StageStatuses returns the terminal status each of the pipeline's three
// stages (ingest, engine, storage) reported, for callers that need to
// confirm Quit actually propagated to every stage rather than just the
// pipeline's aggregate status. A stage absent from the map is still running.
func (h *Handle) StageStatuses() map[string]Status {
	h.stageMu.Lock()
	defer h.stageMu.Unlock()
	out := make(map[string]Status, len(h.stages))
	for k, v := range h.stages {
		out[k] = v
	}
	return out
}

func (h *Handle) recordStage(name string) {
	status := StatusSuccess
	switch {
	case h.quit.Load():
		status = StatusQuit
	case h.terminate.IsDead():
		status = StatusKilled
	}
	h.stageMu.Lock()
	h.stages[name] = status
	h.stageMu.Unlock()
}

// Stop kills the pipeline's terminate signal tree, cancelling every stage
// within one heartbeat interval. Stages that are mid-message finish that
// message before observing the cancellation.
func (h *Handle) Stop() {
	h.terminate.Kill()
	h.cancel()
}

// Quit requests cooperative shutdown: every stage stops accepting new
// input but is allowed to finish whatever it is already holding, then
// reports StatusQuit instead of StatusKilled. This is the pipeline-level
// counterpart to sending the Quit command to an actor's high-priority
// queue (spec's cancellation mechanism (b)), as opposed to Stop's hard
// Kill (mechanism (a)).
func (h *Handle) Quit() {
	h.quit.Store(true)
	h.cancel()
}

// Wait blocks until the pipeline reaches a terminal status.
func (h *Handle) Wait() {
	<-h.done
}

func (h *Handle) setTerminal(status Status, err error) {
	h.mu.Lock()
	if h.status != StatusRunning {
		h.mu.Unlock()
		return
	}
	h.status = status
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Start resolves backends, spawns one collector per configured source
// (sharing one ingestor), binds the engine's output to the event
// streamer, and returns a Handle supervising the run.
func Start(ctx context.Context, spec Spec) (*Handle, error) {
	logger := spec.Logger
	if logger == nil {
		logger = slog.Default()
	}

	root := actor.NewTerminateSignal()
	runCtx, cancel := context.WithCancel(ctx)

	h := &Handle{
		id:        spec.PipelineID,
		terminate: root,
		cancel:    cancel,
		stats:     &statsCounter{},
		stages:    make(map[string]Status, 3),
		done:      make(chan struct{}),
	}

	// Bridge the terminate-signal tree to runCtx: killing root cancels every
	// stage within one heartbeat interval.
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if root.IsDead() {
					cancel()
					return
				}
			}
		}
	}()

	registry := ingestpipe.NewRegistry()
	ingestor := ingestpipe.NewIngestor(registry, spec.IngestorCapacity, logger)

	tokensOut := make(chan corepb.IngestedTokens, 64)
	var batchesWG sync.WaitGroup
	var collectorsWG sync.WaitGroup
	// stagesWG counts the ingest and engine stages still to record their
	// own completion.
	var stagesWG sync.WaitGroup
	stagesWG.Add(2)

	for _, src := range spec.Sources {
		collectorsWG.Add(1)
		go func(src source.Source) {
			defer collectorsWG.Done()
			runCollector(runCtx, src, ingestor, tokensOut, &batchesWG, h.stats, logger)
		}(src)
	}

	go func() {
		defer stagesWG.Done()
		collectorsWG.Wait()
		batchesWG.Wait()
		close(tokensOut)
		h.recordStage("ingest")
	}()

	engineEvents := spec.Engine.Process(runCtx, tokensOut)

	// Relay engineEvents through a private channel so the engine stage's own
	// completion (the channel closing) can be recorded independently of
	// however the streamer chooses to consume it.
	events := make(chan corepb.EventState, 16)
	go func() {
		defer stagesWG.Done()
		defer h.recordStage("engine")
		defer close(events)
		for ev := range engineEvents {
			select {
			case events <- ev:
			case <-runCtx.Done():
				return
			}
		}
	}()

	mapperSink := eventstream.NewSink(eventstream.DefaultDownstreamCapacity)
	indexerSink := eventstream.NewSink(eventstream.DefaultDownstreamCapacity)

	streamer := eventstream.NewStreamer(spec.PipelineID, mapperSink, indexerSink)
	if spec.BatchNumEventsLimit > 0 {
		streamer.BatchNumEventsLimit = spec.BatchNumEventsLimit
	}
	if spec.EmitBatchesTimeout > 0 {
		streamer.EmitBatchesTimeout = spec.EmitBatchesTimeout
	}
	streamer.Logger = logger
	if spec.Publisher != nil {
		streamer.Publisher = spec.Publisher
		streamer.Subject = fmt.Sprintf("events.%s", spec.PipelineID)
	}

	var consumersWG sync.WaitGroup
	consumersWG.Add(2)
	go func() {
		defer consumersWG.Done()
		runStorageMapper(runCtx, mapperSink, spec.Storage, spec.CollectionID, h.stats, logger)
	}()
	go func() {
		defer consumersWG.Done()
		runIndexer(runCtx, indexerSink, spec.Storage, spec.CollectionID, h.stats, logger)
	}()

	go func() {
		streamErr := streamer.Run(runCtx, events)
		consumersWG.Wait()
		h.recordStage("storage")
		if runCtx.Err() != nil {
			// A cancelled run reaches its terminal status only after the
			// ingest and engine stages have recorded theirs.
			stagesWG.Wait()
		}

		switch {
		case h.quit.Load():
			h.setTerminal(StatusQuit, nil)
		case root.IsDead():
			h.setTerminal(StatusKilled, nil)
		case streamErr != nil:
			h.setTerminal(StatusFailure, streamErr)
		default:
			h.setTerminal(StatusSuccess, nil)
		}
	}()

	return h, nil
}

// runCollector polls a source, groups its CollectedBytes into per-file
// batches, and submits each finished batch to the shared ingestor.
func runCollector(
	ctx context.Context,
	src source.Source,
	ingestor *ingestpipe.Ingestor,
	tokensOut chan<- corepb.IngestedTokens,
	batchesWG *sync.WaitGroup,
	stats *statsCounter,
	logger *slog.Logger,
) {
	chunks, errs := src.PollData(ctx)

	open := map[string]*corepb.CollectionBatch{}
	finish := func(file string) {
		batch := open[file]
		delete(open, file)
		if batch == nil || len(batch.Items) == 0 {
			return
		}

		var size int64
		for _, it := range batch.Items {
			size += int64(len(it.Data))
		}
		stats.addDoc(size)

		batchesWG.Add(1)
		perBatch := make(chan corepb.IngestedTokens, 8)
		submitDone := ingestor.Submit(ctx, batch, perBatch)
		go forwardBatch(ctx, perBatch, tokensOut, submitDone, batchesWG)
	}

	for {
		select {
		case <-ctx.Done():
			for file := range open {
				finish(file)
			}
			return
		case err, ok := <-errs:
			if ok && err != nil {
				logger.Warn("pipeline: collector polling failed", "error", err)
			}
		case chunk, ok := <-chunks:
			if !ok {
				for file := range open {
					finish(file)
				}
				return
			}
			batch, exists := open[chunk.File]
			if !exists {
				batch = &corepb.CollectionBatch{File: chunk.File, Ext: chunk.Extension}
				open[chunk.File] = batch
			}
			batch.Items = append(batch.Items, chunk)
			if chunk.EOF {
				finish(chunk.File)
			}
		}
	}
}

// forwardBatch relays one batch's tokens from its private channel onto the
// engine's shared input until the ingestor's submitDone signal fires — this
// covers both the normal case (a trailing end-of-document sentinel) and the
// unsupported-extension case, where the parser yields a genuinely empty
// stream with no sentinel at all.
func forwardBatch(ctx context.Context, in <-chan corepb.IngestedTokens, out chan<- corepb.IngestedTokens, submitDone <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case tok := <-in:
			select {
			case out <- tok:
			case <-ctx.Done():
				return
			}
			if tok.IsEndOfDocument() {
				return
			}
		case <-submitDone:
			// Drain any tokens that raced in just before the signal.
			for {
				select {
				case tok := <-in:
					select {
					case out <- tok:
					case <-ctx.Done():
						return
					}
				default:
					return
				}
			}
		}
	}
}

// runStorageMapper drains mapperSink, persisting every event group to the
// storage façade and updating statistics.
func runStorageMapper(ctx context.Context, sink *eventstream.Sink, st *storage.Facade, collectionID string, stats *statsCounter, logger *slog.Logger) {
	handle := func(batch *corepb.EventsBatch) {
		graphSent, vectorSent := 0, 0
		for eventType, events := range batch.Events {
			switch eventType {
			case corepb.EventGraph:
				items := make([]storage.GraphItem, 0, len(events))
				for _, ev := range events {
					if ev.Graph == nil {
						continue
					}
					items = append(items, storage.GraphItem{
						DocID:     ev.File,
						DocSource: ev.DocSource,
						ImageID:   ev.ImageID,
						Payload:   *ev.Graph,
					})
				}
				if err := st.InsertGraph(ctx, collectionID, items); err != nil {
					logger.Warn("pipeline: storage mapper insert_graph failed", "error", err)
				}
				graphSent += len(items)
			case corepb.EventVector:
				items := make([]storage.VectorItem, 0, len(events))
				for _, ev := range events {
					if ev.Vector == nil {
						continue
					}
					items = append(items, storage.VectorItem{
						DocID:     ev.File,
						DocSource: ev.DocSource,
						ImageID:   ev.ImageID,
						Payload:   *ev.Vector,
					})
				}
				if err := st.InsertVector(ctx, collectionID, items); err != nil {
					logger.Warn("pipeline: storage mapper insert_vector failed", "error", err)
				}
				vectorSent += len(items)
			}
		}
		stats.addBatch(graphSent, vectorSent, batch.Len())
		stats.addSent(graphSent, vectorSent)
	}

	drainUntilClosed(sink, handle)
}

// runIndexer drains indexerSink (graph events only), writing a
// denormalized projection via IndexKnowledge.
func runIndexer(ctx context.Context, sink *eventstream.Sink, st *storage.Facade, collectionID string, stats *statsCounter, logger *slog.Logger) {
	handle := func(batch *corepb.EventsBatch) {
		events := batch.Events[corepb.EventGraph]
		if len(events) == 0 {
			return
		}
		items := make([]storage.GraphItem, 0, len(events))
		for _, ev := range events {
			if ev.Graph == nil {
				continue
			}
			items = append(items, storage.GraphItem{
				DocID:     ev.File,
				DocSource: ev.DocSource,
				ImageID:   ev.ImageID,
				Payload:   *ev.Graph,
			})
		}
		if err := st.IndexKnowledge(ctx, collectionID, items); err != nil {
			logger.Warn("pipeline: indexer index_knowledge failed", "error", err)
			return
		}
		stats.addIndexed(len(items))
	}

	drainUntilClosed(sink, handle)
}

// drainUntilClosed ranges over sink's batches until its shutdown signal
// fires, then flushes any batches still sitting in the buffer.
func drainUntilClosed(sink *eventstream.Sink, handle func(*corepb.EventsBatch)) {
	for {
		select {
		case batch := <-sink.Batches():
			handle(batch)
		case <-sink.Closed():
			for {
				select {
				case batch := <-sink.Batches():
					handle(batch)
				default:
					return
				}
			}
		}
	}
}
