package storage

import (
	"context"

	"github.com/querent-ai/querent-go/internal/corepb"
)

// GraphItem is one triple destined for a graph backend, along with the
// document identity it was extracted from.
type GraphItem struct {
	DocID     string
	DocSource string
	ImageID   string
	Payload   corepb.SemanticKnowledgePayload
}

// VectorItem is one embedding destined for a vector backend.
type VectorItem struct {
	DocID     string
	DocSource string
	ImageID   string
	Payload   corepb.VectorPayload
}

// GraphBackend persists semantic triples. Neo4j (internal/storage/graphstore)
// and the embedded default (internal/storage/localstore) both implement it.
type GraphBackend interface {
	CheckConnectivity(ctx context.Context) error
	InsertGraph(ctx context.Context, collectionID string, items []GraphItem) error

	// Neighbors returns the distinct entity values reachable from value
	// within depth hops, used by the discovery Traverser mode.
	Neighbors(ctx context.Context, value string, depth int) ([]string, error)
}

// VectorBackend persists embeddings and serves similarity search. Qdrant
// (internal/storage/vectorstore) and the embedded default both implement it.
type VectorBackend interface {
	CheckConnectivity(ctx context.Context) error
	InsertVector(ctx context.Context, collectionID string, items []VectorItem) error
	SimilaritySearchL2(ctx context.Context, sessionID, query, collectionID string, queryEmbedding []float32, maxResults, offset int, topPairEmbeddings bool) ([]corepb.DocumentPayload, error)
	InsertDiscoveredKnowledge(ctx context.Context, items []corepb.DocumentPayload) error
}

// IndexBackend receives the same graph items as the graph backends but is
// free to write a denormalized projection tuned for search (e.g. a
// Postgres full-text index). internal/storage/pgindex and the embedded
// default both implement it.
type IndexBackend interface {
	CheckConnectivity(ctx context.Context) error
	IndexKnowledge(ctx context.Context, collectionID string, items []GraphItem) error
}

// MetadataBackend stores pipeline specs and session records.
type MetadataBackend interface {
	CheckConnectivity(ctx context.Context) error
	SetPipeline(ctx context.Context, id string, spec []byte) error
	GetPipeline(ctx context.Context, id string) ([]byte, error)
	GetAllPipelines(ctx context.Context) (map[string][]byte, error)
	SetDiscoverySession(ctx context.Context, id string, req []byte) error
	GetAllDiscoverySessions(ctx context.Context) (map[string][]byte, error)
	SetInsightSession(ctx context.Context, id string, req []byte) error
	GetAllInsightSessions(ctx context.Context) (map[string][]byte, error)
}

// SecretBackend stores opaque secrets and the distinguished RIAN API key.
type SecretBackend interface {
	CheckConnectivity(ctx context.Context) error
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	GetAllSecrets(ctx context.Context) (map[string][]byte, error)
	SetRianAPIKey(ctx context.Context, key string) error
	GetRianAPIKey(ctx context.Context) (string, error)
}
