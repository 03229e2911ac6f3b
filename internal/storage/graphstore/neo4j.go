// Package graphstore implements the storage façade's GraphBackend and
// IndexBackend against Neo4j, adapted from the teacher's engine/graph
// package and pkg/repo generic repository.
package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/querent-ai/querent-go/internal/storage"
	"github.com/querent-ai/querent-go/pkg/fn"
)

// retryOpts reproduces the spec's default retry parameters: exponential
// backoff from 250ms, each wait jittered to 0.5x-1.5x and capped at 20s,
// max 30 attempts.
var retryOpts = fn.RetryOpts{
	MaxAttempts: 30,
	InitialWait: 250 * time.Millisecond,
	MaxWait:     20 * time.Second,
	Jitter:      true,
}

// Store is a storage.GraphBackend and storage.IndexBackend backed by Neo4j.
type Store struct {
	driver neo4j.DriverWithContext
}

// New wraps an already-connected Neo4j driver.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{driver: driver}
}

func (s *Store) CheckConnectivity(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return storage.Wrap(storage.KindConnection, err)
	}
	return nil
}

// InsertGraph MERGEs every triple's subject/object nodes and predicate
// relationship, idempotent on event_id: replaying the same item twice
// leaves the graph in the same state as a single insert.
func (s *Store) InsertGraph(ctx context.Context, collectionID string, items []storage.GraphItem) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	result := fn.Retry(ctx, retryOpts, func(ctx context.Context) fn.Result[any] {
		_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			for _, it := range items {
				cypher := `
					MERGE (s:Entity {value: $subject, type: $subjectType})
					MERGE (o:Entity {value: $object, type: $objectType})
					MERGE (s)-[r:RELATION {predicate: $predicate, event_id: $eventID}]->(o)
					SET r.sentence = $sentence, r.collection_id = $collectionID,
					    r.doc_id = $docID, r.doc_source = $docSource, r.image_id = $imageID`
				if _, err := tx.Run(ctx, cypher, map[string]any{
					"subject":      it.Payload.Subject,
					"subjectType":  it.Payload.SubjectType,
					"object":       it.Payload.Object,
					"objectType":   it.Payload.ObjectType,
					"predicate":    it.Payload.Predicate,
					"eventID":      it.Payload.EventID,
					"sentence":     it.Payload.Sentence,
					"collectionID": collectionID,
					"docID":        it.DocID,
					"docSource":    it.DocSource,
					"imageID":      it.ImageID,
				}); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
		return fn.FromPair[any](nil, err)
	})
	if _, err := result.Unwrap(); err != nil {
		return storage.Wrap(storage.KindInsertion, err).WithContext(collectionID)
	}
	return nil
}

// IndexKnowledge writes the same triples into a relationship property bag
// tuned for full-text lookup (collection_id-scoped), the denormalized
// projection spec.md §4.B calls for on top of the canonical graph.
func (s *Store) IndexKnowledge(ctx context.Context, collectionID string, items []storage.GraphItem) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, it := range items {
			cypher := `MERGE (i:Index {event_id: $eventID}) SET i += $props`
			if _, err := tx.Run(ctx, cypher, map[string]any{
				"eventID": it.Payload.EventID,
				"props": map[string]any{
					"collection_id": collectionID,
					"subject":       it.Payload.Subject,
					"object":        it.Payload.Object,
					"sentence":      it.Payload.Sentence,
					"doc_id":        it.DocID,
				},
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return storage.Wrap(storage.KindIndexCreation, err).WithContext(collectionID)
	}
	return nil
}

// Neighbors returns nodes within the given traversal depth, used by the
// discovery Traverser mode.
func (s *Store) Neighbors(ctx context.Context, value string, depth int) ([]string, error) {
	if depth <= 0 {
		depth = 1
	}
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (start:Entity {value: $value})-[*1..%d]-(n:Entity)
		 WHERE n.value <> $value
		 RETURN DISTINCT n.value AS value`, depth)
	result, err := sess.Run(ctx, cypher, map[string]any{"value": value})
	if err != nil {
		return nil, storage.Wrap(storage.KindQuery, err)
	}

	var out []string
	for result.Next(ctx) {
		if v, ok := result.Record().Get("value"); ok {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
	}
	if err := result.Err(); err != nil {
		return nil, storage.Wrap(storage.KindQuery, err)
	}
	return out, nil
}
