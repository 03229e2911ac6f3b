package eventstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/querent-ai/querent-go/internal/actor"
	"github.com/querent-ai/querent-go/internal/corepb"
)

func graphEvent() corepb.EventState {
	return corepb.EventState{
		EventType: corepb.EventGraph,
		Graph:     &corepb.SemanticKnowledgePayload{EventID: "e"},
	}
}

func TestStreamerFlushesOnCountLimit(t *testing.T) {
	mapper := NewSink(4)
	indexer := NewSink(4)
	s := NewStreamer("p1", mapper, indexer)
	s.BatchNumEventsLimit = 2
	s.EmitBatchesTimeout = time.Hour // never fires on its own

	in := make(chan corepb.EventState, 8)
	for i := 0; i < 2; i++ {
		in <- graphEvent()
	}
	in <- corepb.EventState{EventType: corepb.EventSuccess}
	close(in)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), in) }()

	select {
	case batch := <-mapper.Batches():
		if batch.Len() != 2 {
			t.Fatalf("got %d events in batch, want 2", batch.Len())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for count-triggered flush")
	}

	select {
	case <-indexer.Batches():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for graph batch to reach the indexer")
	}

	if err := <-done; err != nil {
		t.Fatalf("Run returned %v, want nil (clean Success exit)", err)
	}

	select {
	case <-mapper.Closed():
	case <-time.After(time.Second):
		t.Fatal("expected the storage mapper sink to receive a trailing shutdown")
	}
}

func TestStreamerFlushesOnTimeout(t *testing.T) {
	mapper := NewSink(4)
	s := NewStreamer("p1", mapper, nil)
	s.BatchNumEventsLimit = 100 // never reached
	sched := actor.NewAcceleratedScheduler()
	defer sched.Close()
	s.Scheduler = sched
	s.EmitBatchesTimeout = time.Second

	in := make(chan corepb.EventState, 2)
	in <- graphEvent()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, in)

	select {
	case batch := <-mapper.Batches():
		if batch.Len() != 1 {
			t.Fatalf("got %d events, want 1", batch.Len())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for timeout-triggered flush")
	}
}

func TestStreamerExitsWithFailureEventError(t *testing.T) {
	mapper := NewSink(4)
	s := NewStreamer("p1", mapper, nil)

	in := make(chan corepb.EventState, 1)
	wantErr := errors.New("boom")
	in <- corepb.EventState{EventType: corepb.EventFailure, Err: wantErr}

	err := s.Run(context.Background(), in)
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestStreamerRetriesOnBackpressureAndNeverDrops(t *testing.T) {
	mapper := NewSink(1)
	s := NewStreamer("p1", mapper, nil)
	s.BatchNumEventsLimit = 1
	s.EmitBatchesTimeout = time.Hour

	in := make(chan corepb.EventState, 4)
	in <- graphEvent()
	in <- graphEvent()
	in <- corepb.EventState{EventType: corepb.EventSuccess}
	close(in)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), in) }()

	received := 0
	timeout := time.After(2 * time.Second)
	for received < 2 {
		select {
		case <-mapper.Batches():
			received++
		case <-timeout:
			t.Fatalf("only received %d of 2 batches despite capacity-1 sink with retrying sends", received)
		}
	}

	if err := <-done; err != nil {
		t.Fatalf("Run returned %v, want nil", err)
	}
}
