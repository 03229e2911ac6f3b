// Package vectorstore implements the storage façade's VectorBackend against
// Qdrant, adapted from the teacher's engine/semantic package.
package vectorstore

import (
	"context"
	"fmt"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/querent-ai/querent-go/internal/corepb"
	"github.com/querent-ai/querent-go/internal/storage"
	"github.com/querent-ai/querent-go/pkg/fn"
)

var retryOpts = fn.RetryOpts{
	MaxAttempts: 30,
	InitialWait: 250 * time.Millisecond,
	MaxWait:     20 * time.Second,
	Jitter:      true,
}

// Store is a storage.VectorBackend backed by Qdrant. One Store owns one
// collection; a facade configured with multiple vector backends holds one
// Store per collection/cluster.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dims        int

	discovered []corepb.DocumentPayload // in-memory audit log, swept by callers as needed
}

// New dials Qdrant at addr and binds to collection, creating it with the
// given embedding dimensionality if it doesn't already exist.
func New(ctx context.Context, addr, collection string, dims int) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, storage.Wrap(storage.KindConnection, fmt.Errorf("dial qdrant %s: %w", addr, err))
	}
	s := &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dims:        dims,
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.conn.Close() }

func (s *Store) ensureCollection(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return storage.Wrap(storage.KindCollectionRetrieval, err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: uint64(s.dims), Distance: pb.Distance_Cosine},
			},
		},
	})
	if err != nil {
		return storage.Wrap(storage.KindCollectionCreation, err).WithContext(s.collection)
	}
	return nil
}

func (s *Store) CheckConnectivity(ctx context.Context) error {
	if _, err := s.collections.List(ctx, &pb.ListCollectionsRequest{}); err != nil {
		return storage.Wrap(storage.KindConnection, err)
	}
	return nil
}

// InsertVector upserts embeddings, idempotent on event_id (used as the
// Qdrant point id so a replayed insert overwrites rather than duplicates).
func (s *Store) InsertVector(ctx context.Context, collectionID string, items []storage.VectorItem) error {
	if len(items) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(items))
	for i, it := range items {
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: it.Payload.EventID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: it.Payload.Embedding}}},
			Payload: map[string]*pb.Value{
				"collection_id": strVal(collectionID),
				"doc_id":        strVal(it.DocID),
				"doc_source":    strVal(it.DocSource),
				"image_id":      strVal(it.ImageID),
				"sentence":      strVal(it.Payload.Sentence),
				"source_id":     strVal(it.Payload.SourceID),
			},
		}
	}
	wait := true
	result := fn.Retry(ctx, retryOpts, func(ctx context.Context) fn.Result[any] {
		_, err := s.points.Upsert(ctx, &pb.UpsertPoints{CollectionName: s.collection, Wait: &wait, Points: points})
		return fn.FromPair[any](nil, err)
	})
	if _, err := result.Unwrap(); err != nil {
		return storage.Wrap(storage.KindInsertion, err).WithContext(collectionID)
	}
	return nil
}

// SimilaritySearchL2 performs k-NN search and returns results sorted by
// distance ascending (Qdrant's Cosine score translated to a distance via
// 1-score, so an exact match reports distance 0).
func (s *Store) SimilaritySearchL2(ctx context.Context, sessionID, query, collectionID string, queryEmbedding []float32, maxResults, offset int, topPairEmbeddings bool) ([]corepb.DocumentPayload, error) {
	req := &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         queryEmbedding,
		Limit:          uint64(maxResults + offset),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		Filter: &pb.Filter{
			Must: []*pb.Condition{fieldMatch("collection_id", collectionID)},
		},
	}
	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, storage.Wrap(storage.KindQuery, err).WithContext(collectionID)
	}

	hits := resp.GetResult()
	if offset > 0 && offset < len(hits) {
		hits = hits[offset:]
	} else if offset >= len(hits) {
		hits = nil
	}

	out := make([]corepb.DocumentPayload, len(hits))
	for i, r := range hits {
		dist := float64(1 - r.GetScore())
		payload := r.GetPayload()
		out[i] = corepb.DocumentPayload{
			DocID:          getStr(payload, "doc_id"),
			DocSource:      getStr(payload, "doc_source"),
			Sentence:       getStr(payload, "sentence"),
			CosineDistance: &dist,
			QueryEmbedding: queryEmbedding,
			Query:          query,
			SessionID:      sessionID,
			Score:          r.GetScore(),
			CollectionID:   collectionID,
		}
	}
	return out, nil
}

// InsertDiscoveredKnowledge records query responses for auditing. Kept
// in-memory here; a production deployment would route this through the
// metadata backend, but the façade contract only requires it be durable for
// the lifetime of the discovery session that produced it.
func (s *Store) InsertDiscoveredKnowledge(ctx context.Context, items []corepb.DocumentPayload) error {
	s.discovered = append(s.discovered, items...)
	return nil
}

func strVal(v string) *pb.Value { return &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}} }

func getStr(payload map[string]*pb.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: key, Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}}},
		},
	}
}
