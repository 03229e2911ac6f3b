// Package localstore is the local single-file embedded backend substituted
// whenever no backend is configured for an event type: it implements
// storage.GraphBackend, storage.VectorBackend, storage.IndexBackend,
// storage.MetadataBackend, and storage.SecretBackend on top of a single
// bbolt file, using a flat brute-force index for vector search.
//
// Grounded on the teacher's pkg/storage/boltdb.go bucket-per-entity-kind
// pattern, adapted from warren's infrastructure-node model to this spec's
// event-keyed data model.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/querent-ai/querent-go/internal/corepb"
	"github.com/querent-ai/querent-go/internal/storage"
)

var (
	bucketGraph    = []byte("graph")
	bucketIndex    = []byte("index")
	bucketVectors  = []byte("vectors")
	bucketMeta     = []byte("metadata")
	bucketSecrets  = []byte("secrets")
	bucketSessions = []byte("sessions")
	rianAPIKeyKey  = "RIAN_API_KEY"
)

// Store is the embedded bbolt-backed default, satisfying every backend
// role the façade can fall back to.
type Store struct {
	db *bolt.DB
	mu sync.RWMutex // not taken by any method; there is no in-memory cache, searches read bbolt directly
}

// Open creates or opens the bbolt file at path, creating every bucket the
// backend roles use.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, storage.Wrap(storage.KindIo, fmt.Errorf("open %s: %w", path, err))
	}
	buckets := [][]byte{bucketGraph, bucketIndex, bucketVectors, bucketMeta, bucketSecrets, bucketSessions}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, storage.Wrap(storage.KindIo, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CheckConnectivity(ctx context.Context) error {
	return nil // the bbolt file is either open or Open would have failed
}

// graphRecord is the JSON representation of one GraphItem persisted under
// its event_id, giving InsertGraph/InsertVector/IndexKnowledge idempotent
// replay semantics (same key, same value, overwrite is a no-op effect).
type graphRecord struct {
	CollectionID string                          `json:"collection_id"`
	DocID        string                          `json:"doc_id"`
	DocSource    string                           `json:"doc_source"`
	ImageID      string                          `json:"image_id"`
	Payload      corepb.SemanticKnowledgePayload `json:"payload"`
}

func (s *Store) InsertGraph(ctx context.Context, collectionID string, items []storage.GraphItem) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGraph)
		for _, it := range items {
			rec := graphRecord{CollectionID: collectionID, DocID: it.DocID, DocSource: it.DocSource, ImageID: it.ImageID, Payload: it.Payload}
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(it.Payload.EventID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) IndexKnowledge(ctx context.Context, collectionID string, items []storage.GraphItem) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIndex)
		for _, it := range items {
			rec := graphRecord{CollectionID: collectionID, DocID: it.DocID, DocSource: it.DocSource, ImageID: it.ImageID, Payload: it.Payload}
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(it.Payload.EventID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Neighbors does a breadth-first walk of the brute-force-scanned triple set
// out to depth hops, returning every distinct subject/object value reached
// other than the start value itself. Adequate for the embedded default's
// expected scale; Neo4j's Cypher traversal (internal/storage/graphstore)
// takes over at real scale.
func (s *Store) Neighbors(ctx context.Context, value string, depth int) ([]string, error) {
	if depth <= 0 {
		depth = 1
	}
	var edges []graphRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGraph)
		return b.ForEach(func(k, v []byte) error {
			var rec graphRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			edges = append(edges, rec)
			return nil
		})
	})
	if err != nil {
		return nil, storage.Wrap(storage.KindQuery, err)
	}

	seen := map[string]bool{value: true}
	frontier := []string{value}
	for hop := 0; hop < depth; hop++ {
		var next []string
		for _, cur := range frontier {
			for _, e := range edges {
				var other string
				switch cur {
				case e.Payload.Subject:
					other = e.Payload.Object
				case e.Payload.Object:
					other = e.Payload.Subject
				default:
					continue
				}
				if !seen[other] {
					seen[other] = true
					next = append(next, other)
				}
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	delete(seen, value)
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// vectorRecord is the JSON representation of one VectorItem.
type vectorRecord struct {
	CollectionID string                 `json:"collection_id"`
	DocID        string                 `json:"doc_id"`
	DocSource    string                 `json:"doc_source"`
	ImageID      string                 `json:"image_id"`
	Payload      corepb.VectorPayload `json:"payload"`
}

func (s *Store) InsertVector(ctx context.Context, collectionID string, items []storage.VectorItem) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		for _, it := range items {
			rec := vectorRecord{CollectionID: collectionID, DocID: it.DocID, DocSource: it.DocSource, ImageID: it.ImageID, Payload: it.Payload}
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(it.Payload.EventID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// SimilaritySearchL2 scans every vector in the collection and ranks by L2
// (Euclidean) distance ascending — a flat brute-force index, adequate for
// the embedded default's expected scale.
func (s *Store) SimilaritySearchL2(ctx context.Context, sessionID, query, collectionID string, queryEmbedding []float32, maxResults, offset int, topPairEmbeddings bool) ([]corepb.DocumentPayload, error) {
	type scored struct {
		dist float64
		rec  vectorRecord
	}
	var candidates []scored

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		return b.ForEach(func(k, v []byte) error {
			var rec vectorRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.CollectionID != collectionID {
				return nil
			}
			candidates = append(candidates, scored{dist: l2Distance(queryEmbedding, rec.Payload.Embedding), rec: rec})
			return nil
		})
	})
	if err != nil {
		return nil, storage.Wrap(storage.KindQuery, err).WithContext(collectionID)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })

	if offset > len(candidates) {
		offset = len(candidates)
	}
	candidates = candidates[offset:]
	if maxResults > 0 && maxResults < len(candidates) {
		candidates = candidates[:maxResults]
	}

	out := make([]corepb.DocumentPayload, len(candidates))
	for i, c := range candidates {
		dist := c.dist
		out[i] = corepb.DocumentPayload{
			DocID:          c.rec.DocID,
			DocSource:      c.rec.DocSource,
			Sentence:       c.rec.Payload.Sentence,
			CosineDistance: &dist,
			QueryEmbedding: queryEmbedding,
			Query:          query,
			SessionID:      sessionID,
			CollectionID:   collectionID,
		}
		if topPairEmbeddings {
			out[i].Score = c.rec.Payload.Score
		}
	}
	return out, nil
}

func l2Distance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (s *Store) InsertDiscoveredKnowledge(ctx context.Context, items []corepb.DocumentPayload) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		for _, it := range items {
			data, err := json.Marshal(it)
			if err != nil {
				return err
			}
			key := fmt.Sprintf("discovered/%s/%s", it.SessionID, it.DocID)
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) SetPipeline(ctx context.Context, id string, spec []byte) error {
	return s.put(bucketMeta, "pipeline/"+id, spec)
}

func (s *Store) GetPipeline(ctx context.Context, id string) ([]byte, error) {
	return s.get(bucketMeta, "pipeline/"+id)
}

func (s *Store) GetAllPipelines(ctx context.Context) (map[string][]byte, error) {
	return s.prefixScan(bucketMeta, "pipeline/")
}

func (s *Store) SetDiscoverySession(ctx context.Context, id string, req []byte) error {
	return s.put(bucketMeta, "discovery-session/"+id, req)
}

func (s *Store) GetAllDiscoverySessions(ctx context.Context) (map[string][]byte, error) {
	return s.prefixScan(bucketMeta, "discovery-session/")
}

func (s *Store) SetInsightSession(ctx context.Context, id string, req []byte) error {
	return s.put(bucketMeta, "insight-session/"+id, req)
}

func (s *Store) GetAllInsightSessions(ctx context.Context) (map[string][]byte, error) {
	return s.prefixScan(bucketMeta, "insight-session/")
}

func (s *Store) StoreSecret(ctx context.Context, key string, value []byte) error {
	return s.put(bucketSecrets, key, value)
}

func (s *Store) GetSecret(ctx context.Context, key string) ([]byte, error) {
	return s.get(bucketSecrets, key)
}

func (s *Store) DeleteSecret(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSecrets).Delete([]byte(key))
	})
}

func (s *Store) GetAllSecrets(ctx context.Context) (map[string][]byte, error) {
	return s.prefixScan(bucketSecrets, "")
}

func (s *Store) SetRianAPIKey(ctx context.Context, key string) error {
	return s.put(bucketSecrets, rianAPIKeyKey, []byte(key))
}

func (s *Store) GetRianAPIKey(ctx context.Context) (string, error) {
	v, err := s.get(bucketSecrets, rianAPIKeyKey)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (s *Store) put(bucket []byte, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), value)
	})
}

func (s *Store) get(bucket []byte, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		if v == nil {
			return storage.Wrap(storage.KindNotFound, fmt.Errorf("key %q not found", key))
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (s *Store) prefixScan(bucket []byte, prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && hasPrefix(k, p); k, v = c.Next() {
			out[string(k)[len(prefix):]] = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func hasPrefix(k, prefix []byte) bool {
	if len(prefix) == 0 {
		return true
	}
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
