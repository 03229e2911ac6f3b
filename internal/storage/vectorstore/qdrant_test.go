package vectorstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/querent-ai/querent-go/internal/corepb"
	"github.com/querent-ai/querent-go/internal/storage"
)

// --- Mocks, following the teacher's engine/semantic store_test.go pattern ---

type mockPoints struct {
	mu sync.Mutex

	upsertErrs []error // consumed in order; last one repeats once exhausted
	upsertCall int
	upsertErr  error

	deleteResp *pb.PointsOperationResponse
	deleteErr  error

	searchResp *pb.SearchResponse
	searchErr  error
}

func (m *mockPoints) Upsert(_ context.Context, _ *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { m.upsertCall++ }()
	if m.upsertCall < len(m.upsertErrs) {
		return &pb.PointsOperationResponse{}, m.upsertErrs[m.upsertCall]
	}
	return &pb.PointsOperationResponse{}, m.upsertErr
}

func (m *mockPoints) Delete(_ context.Context, _ *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	return m.deleteResp, m.deleteErr
}

func (m *mockPoints) Search(_ context.Context, _ *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	return m.searchResp, m.searchErr
}

type mockCollections struct {
	listResp   *pb.ListCollectionsResponse
	listErr    error
	createResp *pb.CollectionOperationResponse
	createErr  error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}

func (m *mockCollections) Create(_ context.Context, _ *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return m.createResp, m.createErr
}

func (m *mockCollections) Delete(_ context.Context, _ *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	return nil, nil
}

func newTestStore(points pb.PointsClient, collections pb.CollectionsClient, dims int) *Store {
	return &Store{points: points, collections: collections, collection: "test", dims: dims}
}

// --- ensureCollection ---

func TestEnsureCollectionAlreadyExists(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{
			Collections: []*pb.CollectionDescription{{Name: "test"}},
		},
	}
	s := newTestStore(&mockPoints{}, cols, 4)
	if err := s.ensureCollection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureCollectionCreatesWhenMissing(t *testing.T) {
	cols := &mockCollections{
		listResp:   &pb.ListCollectionsResponse{Collections: []*pb.CollectionDescription{{Name: "other"}}},
		createResp: &pb.CollectionOperationResponse{Result: true},
	}
	s := newTestStore(&mockPoints{}, cols, 128)
	if err := s.ensureCollection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureCollectionListError(t *testing.T) {
	cols := &mockCollections{listErr: errors.New("rpc unavailable")}
	s := newTestStore(&mockPoints{}, cols, 4)
	err := s.ensureCollection(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var se *storage.Error
	if !errors.As(err, &se) || se.Kind != storage.KindCollectionRetrieval {
		t.Fatalf("expected KindCollectionRetrieval, got %v", err)
	}
}

func TestEnsureCollectionCreateError(t *testing.T) {
	cols := &mockCollections{
		listResp: &pb.ListCollectionsResponse{},
		createErr: errors.New("create failed"),
	}
	s := newTestStore(&mockPoints{}, cols, 4)
	err := s.ensureCollection(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var se *storage.Error
	if !errors.As(err, &se) || se.Kind != storage.KindCollectionCreation {
		t.Fatalf("expected KindCollectionCreation, got %v", err)
	}
	if se.Context != "test" {
		t.Fatalf("expected context %q, got %q", "test", se.Context)
	}
}

// --- InsertVector ---

func TestInsertVectorEmptyIsNoop(t *testing.T) {
	pts := &mockPoints{upsertErr: errors.New("should never be called")}
	s := newTestStore(pts, &mockCollections{}, 4)
	if err := s.InsertVector(context.Background(), "col", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pts.upsertCall != 0 {
		t.Fatalf("expected Upsert not called, got %d calls", pts.upsertCall)
	}
}

func TestInsertVectorRetriesThenSucceeds(t *testing.T) {
	saved := retryOpts
	retryOpts.InitialWait = time.Millisecond
	retryOpts.MaxWait = time.Millisecond
	t.Cleanup(func() { retryOpts = saved })

	pts := &mockPoints{upsertErrs: []error{errors.New("transient"), nil}}
	s := newTestStore(pts, &mockCollections{}, 4)

	items := []storage.VectorItem{{
		DocID:     "doc-1",
		DocSource: "fs",
		Payload: corepb.VectorPayload{
			EventID:   "evt-1",
			Embedding: []float32{1, 0, 0, 0},
			Sentence:  "hello world",
			SourceID:  "src-1",
		},
	}}
	if err := s.InsertVector(context.Background(), "col", items); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pts.upsertCall != 2 {
		t.Fatalf("expected Upsert retried exactly once (2 calls), got %d", pts.upsertCall)
	}
}

func TestInsertVectorExhaustsRetriesAndFails(t *testing.T) {
	// retryOpts.MaxAttempts is tuned for production (30 attempts, up to 20s
	// backoff); shrink it for the duration of this test so a permanently
	// failing upsert fails fast instead of stalling the test run.
	saved := retryOpts
	retryOpts.MaxAttempts = 2
	retryOpts.InitialWait = time.Millisecond
	retryOpts.MaxWait = time.Millisecond
	t.Cleanup(func() { retryOpts = saved })

	pts := &mockPoints{upsertErr: errors.New("permanently down")}
	s := newTestStore(pts, &mockCollections{}, 4)
	items := []storage.VectorItem{{Payload: corepb.VectorPayload{EventID: "evt-1", Embedding: []float32{1}}}}
	err := s.InsertVector(context.Background(), "col", items)
	if err == nil {
		t.Fatal("expected error")
	}
	var se *storage.Error
	if !errors.As(err, &se) || se.Kind != storage.KindInsertion {
		t.Fatalf("expected KindInsertion, got %v", err)
	}
	if se.Context != "col" {
		t.Fatalf("expected context %q, got %q", "col", se.Context)
	}
	if pts.upsertCall != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", pts.upsertCall)
	}
}

// --- SimilaritySearchL2 ---

func TestSimilaritySearchL2ConvertsScoreToDistance(t *testing.T) {
	pts := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				{
					Score: 1.0,
					Payload: map[string]*pb.Value{
						"doc_id":     strVal("d1"),
						"doc_source": strVal("reddit"),
						"sentence":   strVal("exact match"),
					},
				},
				{
					Score: 0.25,
					Payload: map[string]*pb.Value{
						"doc_id":     strVal("d2"),
						"doc_source": strVal("fs"),
						"sentence":   strVal("distant match"),
					},
				},
			},
		},
	}
	s := newTestStore(pts, &mockCollections{}, 4)
	out, err := s.SimilaritySearchL2(context.Background(), "sess-1", "q", "col-1", []float32{1, 0}, 5, 0, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].DocID != "d1" || out[0].CosineDistance == nil || *out[0].CosineDistance != 0 {
		t.Fatalf("expected exact match at distance 0, got %+v", out[0])
	}
	if out[1].DocID != "d2" || out[1].CosineDistance == nil || *out[1].CosineDistance != 0.75 {
		t.Fatalf("expected distant match at distance 0.75, got %+v", out[1])
	}
	if out[0].CollectionID != "col-1" || out[0].SessionID != "sess-1" || out[0].Query != "q" {
		t.Fatalf("expected request context carried through, got %+v", out[0])
	}
}

func TestSimilaritySearchL2AppliesOffset(t *testing.T) {
	pts := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				{Score: 0.9, Payload: map[string]*pb.Value{"doc_id": strVal("d1")}},
				{Score: 0.8, Payload: map[string]*pb.Value{"doc_id": strVal("d2")}},
			},
		},
	}
	s := newTestStore(pts, &mockCollections{}, 4)
	out, err := s.SimilaritySearchL2(context.Background(), "sess", "q", "col", []float32{1}, 5, 1, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].DocID != "d2" {
		t.Fatalf("expected only the second hit past the offset, got %+v", out)
	}
}

func TestSimilaritySearchL2OffsetBeyondResultsIsEmpty(t *testing.T) {
	pts := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{{Score: 0.9, Payload: map[string]*pb.Value{"doc_id": strVal("d1")}}},
		},
	}
	s := newTestStore(pts, &mockCollections{}, 4)
	out, err := s.SimilaritySearchL2(context.Background(), "sess", "q", "col", []float32{1}, 5, 10, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no results, got %d", len(out))
	}
}

func TestSimilaritySearchL2Error(t *testing.T) {
	pts := &mockPoints{searchErr: errors.New("search down")}
	s := newTestStore(pts, &mockCollections{}, 4)
	_, err := s.SimilaritySearchL2(context.Background(), "sess", "q", "col", []float32{1}, 5, 0, false)
	if err == nil {
		t.Fatal("expected error")
	}
	var se *storage.Error
	if !errors.As(err, &se) || se.Kind != storage.KindQuery {
		t.Fatalf("expected KindQuery, got %v", err)
	}
}

func TestFieldMatchBuildsKeywordCondition(t *testing.T) {
	cond := fieldMatch("collection_id", "col-1")
	fc := cond.GetField()
	if fc.Key != "collection_id" {
		t.Fatalf("expected key collection_id, got %s", fc.Key)
	}
	if fc.Match.GetKeyword() != "col-1" {
		t.Fatalf("expected value col-1, got %s", fc.Match.GetKeyword())
	}
}
