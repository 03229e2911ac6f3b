// Package pgindex implements the storage façade's optional IndexBackend
// against PostgreSQL, giving the denormalized search projection a
// full-text-searchable home independent of the graph store. Connection
// handling follows the teacher's pkg/database client: a pooled connection
// string built from discrete fields, verified with a ping before use.
package pgindex

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/querent-ai/querent-go/internal/storage"
	"github.com/querent-ai/querent-go/pkg/fn"
)

var retryOpts = fn.RetryOpts{
	MaxAttempts: 30,
	InitialWait: 250 * time.Millisecond,
	MaxWait:     20 * time.Second,
	Jitter:      true,
}

// Config mirrors the teacher's database.Config field-for-field, adapted to
// pgxpool instead of database/sql+Ent.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxConns int32
}

// Store is a storage.IndexBackend backed by PostgreSQL full-text search.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a pool, pings it, and ensures the index table and its GIN
// full-text index exist.
func New(ctx context.Context, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, storage.Wrap(storage.KindConnection, fmt.Errorf("parse dsn: %w", err))
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, storage.Wrap(storage.KindConnection, fmt.Errorf("open pool: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.Wrap(storage.KindConnection, fmt.Errorf("ping: %w", err))
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS knowledge_index (
			event_id      TEXT PRIMARY KEY,
			collection_id TEXT NOT NULL,
			subject       TEXT NOT NULL,
			object        TEXT NOT NULL,
			sentence      TEXT NOT NULL,
			doc_id        TEXT NOT NULL,
			doc_source    TEXT NOT NULL,
			image_id      TEXT NOT NULL DEFAULT '',
			search        TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', sentence)) STORED
		);
		CREATE INDEX IF NOT EXISTS knowledge_index_search_idx ON knowledge_index USING GIN (search);
		CREATE INDEX IF NOT EXISTS knowledge_index_collection_idx ON knowledge_index (collection_id);
	`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return storage.Wrap(storage.KindIndexCreation, err)
	}
	return nil
}

func (s *Store) CheckConnectivity(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return storage.Wrap(storage.KindConnection, err)
	}
	return nil
}

// IndexKnowledge upserts every item keyed on event_id, giving idempotent
// replay the same way the Neo4j MERGE does for the canonical graph.
func (s *Store) IndexKnowledge(ctx context.Context, collectionID string, items []storage.GraphItem) error {
	if len(items) == 0 {
		return nil
	}
	result := fn.Retry(ctx, retryOpts, func(ctx context.Context) fn.Result[any] {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fn.FromPair[any](nil, err)
		}
		defer tx.Rollback(ctx)

		const upsert = `
			INSERT INTO knowledge_index (event_id, collection_id, subject, object, sentence, doc_id, doc_source, image_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (event_id) DO UPDATE SET
				collection_id = EXCLUDED.collection_id,
				subject       = EXCLUDED.subject,
				object        = EXCLUDED.object,
				sentence      = EXCLUDED.sentence,
				doc_id        = EXCLUDED.doc_id,
				doc_source    = EXCLUDED.doc_source,
				image_id      = EXCLUDED.image_id`
		for _, it := range items {
			if _, err := tx.Exec(ctx, upsert,
				it.Payload.EventID, collectionID, it.Payload.Subject, it.Payload.Object,
				it.Payload.Sentence, it.DocID, it.DocSource, it.ImageID,
			); err != nil {
				return fn.FromPair[any](nil, err)
			}
		}
		return fn.FromPair[any](nil, tx.Commit(ctx))
	})
	if _, err := result.Unwrap(); err != nil {
		return storage.Wrap(storage.KindIndexCreation, err).WithContext(collectionID)
	}
	return nil
}

// Search runs a full-text query against the indexed sentences, used by
// insight plugins that want keyword rather than vector search.
func (s *Store) Search(ctx context.Context, collectionID, query string, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sentence FROM knowledge_index
		WHERE collection_id = $1 AND search @@ plainto_tsquery('english', $2)
		ORDER BY ts_rank(search, plainto_tsquery('english', $2)) DESC
		LIMIT $3`, collectionID, query, limit)
	if err != nil {
		return nil, storage.Wrap(storage.KindQuery, err).WithContext(collectionID)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sentence string
		if err := rows.Scan(&sentence); err != nil {
			return nil, storage.Wrap(storage.KindQuery, err)
		}
		out = append(out, sentence)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap(storage.KindQuery, err)
	}
	return out, nil
}
