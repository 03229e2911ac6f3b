package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/querent-ai/querent-go/internal/corepb"
	"github.com/querent-ai/querent-go/pkg/resilience"
)

type failingGraphBackend struct {
	failures int
}

func (f *failingGraphBackend) CheckConnectivity(ctx context.Context) error { return nil }
func (f *failingGraphBackend) InsertGraph(ctx context.Context, collectionID string, items []GraphItem) error {
	f.failures++
	return errors.New("backend unreachable")
}
func (f *failingGraphBackend) Neighbors(ctx context.Context, value string, depth int) ([]string, error) {
	return nil, errors.New("backend unreachable")
}

func TestResilientGraphBackendTripsAfterRepeatedFailures(t *testing.T) {
	backend := &failingGraphBackend{}
	resilient := NewResilientGraphBackend(backend, resilience.BreakerOpts{FailThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := resilient.InsertGraph(ctx, "c1", nil); err == nil {
			t.Fatal("expected the underlying failure to propagate")
		}
	}
	if backend.failures != 2 {
		t.Fatalf("expected 2 calls through to the backend, got %d", backend.failures)
	}

	err := resilient.InsertGraph(ctx, "c1", nil)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected the breaker to short-circuit further calls, got %v", err)
	}
	if backend.failures != 2 {
		t.Fatalf("expected no further calls to reach the backend once open, got %d", backend.failures)
	}
}

type succeedingVectorBackend struct{}

func (succeedingVectorBackend) CheckConnectivity(ctx context.Context) error { return nil }
func (succeedingVectorBackend) InsertVector(ctx context.Context, collectionID string, items []VectorItem) error {
	return nil
}
func (succeedingVectorBackend) SimilaritySearchL2(ctx context.Context, sessionID, query, collectionID string, queryEmbedding []float32, maxResults, offset int, topPairEmbeddings bool) ([]corepb.DocumentPayload, error) {
	return []corepb.DocumentPayload{{DocID: "d1"}}, nil
}
func (succeedingVectorBackend) InsertDiscoveredKnowledge(ctx context.Context, items []corepb.DocumentPayload) error {
	return nil
}

func TestResilientVectorBackendPassesThroughOnSuccess(t *testing.T) {
	resilient := NewResilientVectorBackend(succeedingVectorBackend{}, resilience.DefaultBreakerOpts)
	results, err := resilient.SimilaritySearchL2(context.Background(), "s1", "q", "c1", nil, 5, 0, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].DocID != "d1" {
		t.Fatalf("got %v", results)
	}
}
