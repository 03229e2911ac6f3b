package localstore

import (
	"context"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/querent-ai/querent-go/internal/corepb"
	"github.com/querent-ai/querent-go/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndSearchGraph(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	item := storage.GraphItem{
		DocID: "doc-1", DocSource: "fs", ImageID: "",
		Payload: corepb.SemanticKnowledgePayload{EventID: "ev-1", Subject: "cat", Object: "mat", Predicate: "on"},
	}
	if err := s.InsertGraph(ctx, "col-1", []storage.GraphItem{item}); err != nil {
		t.Fatalf("InsertGraph: %v", err)
	}
	// Replaying the same event_id should overwrite, not duplicate.
	if err := s.InsertGraph(ctx, "col-1", []storage.GraphItem{item}); err != nil {
		t.Fatalf("InsertGraph (replay): %v", err)
	}
	keys := 0
	if err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketGraph).ForEach(func(_, _ []byte) error { keys++; return nil })
	}); err != nil {
		t.Fatalf("count graph records: %v", err)
	}
	if keys != 1 {
		t.Fatalf("expected 1 stored triple after replay, got %d", keys)
	}
	got, err := s.Neighbors(ctx, "cat", 1)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(got) != 1 || got[0] != "mat" {
		t.Fatalf("expected [mat], got %v", got)
	}
}

func TestSimilaritySearchL2OrdersByDistanceAscending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	items := []storage.VectorItem{
		{DocID: "far", Payload: corepb.VectorPayload{EventID: "e-far", Embedding: []float32{10, 10}}},
		{DocID: "near", Payload: corepb.VectorPayload{EventID: "e-near", Embedding: []float32{1, 1}}},
		{DocID: "exact", Payload: corepb.VectorPayload{EventID: "e-exact", Embedding: []float32{0, 0}}},
	}
	if err := s.InsertVector(ctx, "col-1", items); err != nil {
		t.Fatalf("InsertVector: %v", err)
	}

	results, err := s.SimilaritySearchL2(ctx, "sess-1", "q", "col-1", []float32{0, 0}, 10, 0, false)
	if err != nil {
		t.Fatalf("SimilaritySearchL2: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].DocID != "exact" || results[1].DocID != "near" || results[2].DocID != "far" {
		t.Fatalf("results not ordered by ascending distance: %v, %v, %v", results[0].DocID, results[1].DocID, results[2].DocID)
	}
	if *results[0].CosineDistance != 0 {
		t.Fatalf("exact match should report distance 0, got %v", *results[0].CosineDistance)
	}
}

func TestSimilaritySearchL2ScopesToCollection(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertVector(ctx, "col-a", []storage.VectorItem{{DocID: "a1", Payload: corepb.VectorPayload{EventID: "ea1", Embedding: []float32{0, 0}}}}); err != nil {
		t.Fatalf("InsertVector: %v", err)
	}
	if err := s.InsertVector(ctx, "col-b", []storage.VectorItem{{DocID: "b1", Payload: corepb.VectorPayload{EventID: "eb1", Embedding: []float32{0, 0}}}}); err != nil {
		t.Fatalf("InsertVector: %v", err)
	}

	results, err := s.SimilaritySearchL2(ctx, "sess-1", "q", "col-a", []float32{0, 0}, 10, 0, false)
	if err != nil {
		t.Fatalf("SimilaritySearchL2: %v", err)
	}
	if len(results) != 1 || results[0].DocID != "a1" {
		t.Fatalf("expected only col-a's vector, got %+v", results)
	}
}

func TestSimilaritySearchL2RespectsOffsetAndMaxResults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	items := []storage.VectorItem{
		{DocID: "p0", Payload: corepb.VectorPayload{EventID: "p0", Embedding: []float32{0, 0}}},
		{DocID: "p1", Payload: corepb.VectorPayload{EventID: "p1", Embedding: []float32{1, 0}}},
		{DocID: "p2", Payload: corepb.VectorPayload{EventID: "p2", Embedding: []float32{2, 0}}},
	}
	if err := s.InsertVector(ctx, "col-1", items); err != nil {
		t.Fatalf("InsertVector: %v", err)
	}

	results, err := s.SimilaritySearchL2(ctx, "sess-1", "q", "col-1", []float32{0, 0}, 1, 1, false)
	if err != nil {
		t.Fatalf("SimilaritySearchL2: %v", err)
	}
	if len(results) != 1 || results[0].DocID != "p1" {
		t.Fatalf("expected offset 1 limit 1 to return p1, got %+v", results)
	}
}

func TestPipelineMetadataRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SetPipeline(ctx, "pipe-1", []byte(`{"pipeline":"one"}`)); err != nil {
		t.Fatalf("SetPipeline: %v", err)
	}
	got, err := s.GetPipeline(ctx, "pipe-1")
	if err != nil {
		t.Fatalf("GetPipeline: %v", err)
	}
	if string(got) != `{"pipeline":"one"}` {
		t.Fatalf("got %q", got)
	}

	all, err := s.GetAllPipelines(ctx)
	if err != nil {
		t.Fatalf("GetAllPipelines: %v", err)
	}
	if _, ok := all["pipe-1"]; !ok {
		t.Fatalf("expected pipe-1 in GetAllPipelines, got %v", all)
	}
}

func TestGetPipelineMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetPipeline(context.Background(), "missing")
	if !storage.NotFound(err) {
		t.Fatalf("expected a NotFound error, got %v", err)
	}
}

func TestSecretStoreGetDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.StoreSecret(ctx, "token", []byte("s3cr3t")); err != nil {
		t.Fatalf("StoreSecret: %v", err)
	}
	got, err := s.GetSecret(ctx, "token")
	if err != nil {
		t.Fatalf("GetSecret: %v", err)
	}
	if string(got) != "s3cr3t" {
		t.Fatalf("got %q", got)
	}
	if err := s.DeleteSecret(ctx, "token"); err != nil {
		t.Fatalf("DeleteSecret: %v", err)
	}
	if _, err := s.GetSecret(ctx, "token"); !storage.NotFound(err) {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
}

func TestRianAPIKeyRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SetRianAPIKey(ctx, "abc123"); err != nil {
		t.Fatalf("SetRianAPIKey: %v", err)
	}
	got, err := s.GetRianAPIKey(ctx)
	if err != nil {
		t.Fatalf("GetRianAPIKey: %v", err)
	}
	if got != "abc123" {
		t.Fatalf("got %q, want %q", got, "abc123")
	}
}

func TestInsertDiscoveredKnowledgePersists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	items := []corepb.DocumentPayload{{DocID: "d1", SessionID: "sess-1"}}
	if err := s.InsertDiscoveredKnowledge(ctx, items); err != nil {
		t.Fatalf("InsertDiscoveredKnowledge: %v", err)
	}
}
