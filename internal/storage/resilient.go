package storage

import (
	"context"

	"github.com/querent-ai/querent-go/internal/corepb"
	"github.com/querent-ai/querent-go/pkg/resilience"
)

// ResilientGraphBackend wraps a GraphBackend with a circuit breaker so a
// remote backend's repeated failures stop adding latency to every fan-out
// call instead of silently retrying it forever.
type ResilientGraphBackend struct {
	GraphBackend
	breaker *resilience.Breaker
}

// NewResilientGraphBackend wraps backend with a fresh breaker using opts,
// or resilience.DefaultBreakerOpts if opts is the zero value.
func NewResilientGraphBackend(backend GraphBackend, opts resilience.BreakerOpts) *ResilientGraphBackend {
	return &ResilientGraphBackend{GraphBackend: backend, breaker: resilience.NewBreaker(opts)}
}

func (r *ResilientGraphBackend) InsertGraph(ctx context.Context, collectionID string, items []GraphItem) error {
	return r.breaker.Call(ctx, func(ctx context.Context) error {
		return r.GraphBackend.InsertGraph(ctx, collectionID, items)
	})
}

func (r *ResilientGraphBackend) Neighbors(ctx context.Context, value string, depth int) ([]string, error) {
	var out []string
	err := r.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.GraphBackend.Neighbors(ctx, value, depth)
		return err
	})
	return out, err
}

// ResilientVectorBackend does the same for VectorBackend.
type ResilientVectorBackend struct {
	VectorBackend
	breaker *resilience.Breaker
}

func NewResilientVectorBackend(backend VectorBackend, opts resilience.BreakerOpts) *ResilientVectorBackend {
	return &ResilientVectorBackend{VectorBackend: backend, breaker: resilience.NewBreaker(opts)}
}

func (r *ResilientVectorBackend) InsertVector(ctx context.Context, collectionID string, items []VectorItem) error {
	return r.breaker.Call(ctx, func(ctx context.Context) error {
		return r.VectorBackend.InsertVector(ctx, collectionID, items)
	})
}

func (r *ResilientVectorBackend) SimilaritySearchL2(ctx context.Context, sessionID, query, collectionID string, queryEmbedding []float32, maxResults, offset int, topPairEmbeddings bool) ([]corepb.DocumentPayload, error) {
	var out []corepb.DocumentPayload
	err := r.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		out, err = r.VectorBackend.SimilaritySearchL2(ctx, sessionID, query, collectionID, queryEmbedding, maxResults, offset, topPairEmbeddings)
		return err
	})
	return out, err
}

// ResilientIndexBackend does the same for IndexBackend.
type ResilientIndexBackend struct {
	IndexBackend
	breaker *resilience.Breaker
}

func NewResilientIndexBackend(backend IndexBackend, opts resilience.BreakerOpts) *ResilientIndexBackend {
	return &ResilientIndexBackend{IndexBackend: backend, breaker: resilience.NewBreaker(opts)}
}

func (r *ResilientIndexBackend) IndexKnowledge(ctx context.Context, collectionID string, items []GraphItem) error {
	return r.breaker.Call(ctx, func(ctx context.Context) error {
		return r.IndexBackend.IndexKnowledge(ctx, collectionID, items)
	})
}
