package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/querent-ai/querent-go/internal/corepb"
)

// Routes is the configured routing table: which backends receive graph and
// vector events, and which index backends additionally receive graph
// events for a denormalized search projection. An empty slice for an event
// type means the local embedded default substitutes for it.
type Routes struct {
	Graph  []GraphBackend
	Vector []VectorBackend
	Index  []IndexBackend
}

// Facade is the single entry point downstream pipeline stages use to reach
// storage, regardless of how many concrete backends are configured.
type Facade struct {
	routes   Routes
	local    *localDefault
	metadata MetadataBackend
	secrets  SecretBackend
	logger   *slog.Logger
}

// localDefault is whatever implements all five backend roles for the
// embedded fallback; internal/storage/localstore provides the concrete bbolt
// implementation, injected here as plain interfaces so this package never
// imports the localstore package directly (keeping the dependency edge
// pointing outward, the way the teacher's pkg/repo keeps its generic
// Repository independent of any one driver).
type localDefault struct {
	graph    GraphBackend
	vector   VectorBackend
	index    IndexBackend
	metadata MetadataBackend
	secrets  SecretBackend
}

// New builds a Facade. local must be non-nil: it is the fallback used for
// every event type with no configured backend, and the exclusive backend
// for metadata/secrets unless metadata/secrets overrides are given.
func New(routes Routes, local *localDefault, metadata MetadataBackend, secrets SecretBackend, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	if metadata == nil {
		metadata = local.metadata
	}
	if secrets == nil {
		secrets = local.secrets
	}
	return &Facade{
		routes:   routes,
		local:    local,
		metadata: metadata,
		secrets:  secrets,
		logger:   logger,
	}
}

// NewLocalDefault wraps the five backend roles the embedded store
// implements, for use both as Facade's fallback and (via NewLocalOnly) as a
// complete standalone storage layer.
func NewLocalDefault(graph GraphBackend, vector VectorBackend, index IndexBackend, metadata MetadataBackend, secrets SecretBackend) *localDefault {
	return &localDefault{graph: graph, vector: vector, index: index, metadata: metadata, secrets: secrets}
}

// NewLocalOnly builds a Facade backed solely by the embedded default,
// matching invariant 6: writes succeed against the embedded backend when no
// backend is configured for an event type.
func NewLocalOnly(local *localDefault, logger *slog.Logger) *Facade {
	return New(Routes{}, local, nil, nil, logger)
}

func (f *Facade) graphTargets() []GraphBackend {
	if len(f.routes.Graph) == 0 {
		return []GraphBackend{f.local.graph}
	}
	return f.routes.Graph
}

func (f *Facade) vectorTargets() []VectorBackend {
	if len(f.routes.Vector) == 0 {
		return []VectorBackend{f.local.vector}
	}
	return f.routes.Vector
}

func (f *Facade) indexTargets() []IndexBackend {
	if len(f.routes.Index) == 0 {
		return []IndexBackend{f.local.index}
	}
	return f.routes.Index
}

// CheckConnectivity pings every configured backend (graph, vector, index,
// metadata and secrets, or the embedded default standing in for them) and,
// if any fail, returns one KindConnection error naming every backend that
// failed with its cause, so every failure (not just the first) is visible.
func (f *Facade) CheckConnectivity(ctx context.Context) error {
	var mu sync.Mutex
	var errs []error
	check := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			mu.Unlock()
		}
	}
	var wg sync.WaitGroup
	for i, b := range f.graphTargets() {
		wg.Add(1)
		go func(i int, b GraphBackend) { defer wg.Done(); check(fmt.Sprintf("graph[%d]", i), b.CheckConnectivity) }(i, b)
	}
	for i, b := range f.vectorTargets() {
		wg.Add(1)
		go func(i int, b VectorBackend) { defer wg.Done(); check(fmt.Sprintf("vector[%d]", i), b.CheckConnectivity) }(i, b)
	}
	for i, b := range f.indexTargets() {
		wg.Add(1)
		go func(i int, b IndexBackend) { defer wg.Done(); check(fmt.Sprintf("index[%d]", i), b.CheckConnectivity) }(i, b)
	}
	wg.Add(2)
	go func() { defer wg.Done(); check("metadata", f.metadata.CheckConnectivity) }()
	go func() { defer wg.Done(); check("secrets", f.secrets.CheckConnectivity) }()
	wg.Wait()

	if len(errs) == 0 {
		return nil
	}
	return Wrap(KindConnection, fmt.Errorf("%d backend(s) unreachable: %v", len(errs), errs))
}

// InsertGraph fans triples out to every configured graph backend
// concurrently. A per-backend failure is logged and does not prevent the
// others from succeeding; the façade provides no cross-backend atomicity.
func (f *Facade) InsertGraph(ctx context.Context, collectionID string, items []GraphItem) error {
	targets := f.graphTargets()
	var wg sync.WaitGroup
	for i, b := range targets {
		wg.Add(1)
		go func(i int, b GraphBackend) {
			defer wg.Done()
			if err := b.InsertGraph(ctx, collectionID, items); err != nil {
				f.logger.Error("graph backend insert failed", "backend", i, "collection", collectionID, "err", err)
			}
		}(i, b)
	}
	wg.Wait()
	return nil
}

// InsertVector fans embeddings out the same way InsertGraph does.
func (f *Facade) InsertVector(ctx context.Context, collectionID string, items []VectorItem) error {
	targets := f.vectorTargets()
	var wg sync.WaitGroup
	for i, b := range targets {
		wg.Add(1)
		go func(i int, b VectorBackend) {
			defer wg.Done()
			if err := b.InsertVector(ctx, collectionID, items); err != nil {
				f.logger.Error("vector backend insert failed", "backend", i, "collection", collectionID, "err", err)
			}
		}(i, b)
	}
	wg.Wait()
	return nil
}

// IndexKnowledge writes the denormalized search projection; called by the
// indexer in addition to InsertGraph for graph events.
func (f *Facade) IndexKnowledge(ctx context.Context, collectionID string, items []GraphItem) error {
	targets := f.indexTargets()
	var wg sync.WaitGroup
	for i, b := range targets {
		wg.Add(1)
		go func(i int, b IndexBackend) {
			defer wg.Done()
			if err := b.IndexKnowledge(ctx, collectionID, items); err != nil {
				f.logger.Error("index backend failed", "backend", i, "collection", collectionID, "err", err)
			}
		}(i, b)
	}
	wg.Wait()
	return nil
}

// SimilaritySearchL2 queries the first configured vector backend (or the
// embedded default); discovery sessions are bound to exactly one backend
// set at session creation, so there's no fan-out ambiguity here.
func (f *Facade) SimilaritySearchL2(ctx context.Context, sessionID, query, collectionID string, queryEmbedding []float32, maxResults, offset int, topPairEmbeddings bool) ([]corepb.DocumentPayload, error) {
	targets := f.vectorTargets()
	results, err := targets[0].SimilaritySearchL2(ctx, sessionID, query, collectionID, queryEmbedding, maxResults, offset, topPairEmbeddings)
	if err != nil {
		return nil, Wrap(KindQuery, err).WithContext(collectionID)
	}
	return results, nil
}

// Neighbors queries the first configured graph backend (or the embedded
// default), the same single-target rule SimilaritySearchL2 uses for vector
// backends: a discovery session is bound to one backend set at creation.
func (f *Facade) Neighbors(ctx context.Context, value string, depth int) ([]string, error) {
	targets := f.graphTargets()
	out, err := targets[0].Neighbors(ctx, value, depth)
	if err != nil {
		return nil, Wrap(KindQuery, err)
	}
	return out, nil
}

// InsertDiscoveredKnowledge records query responses for auditing against
// every configured vector backend.
func (f *Facade) InsertDiscoveredKnowledge(ctx context.Context, items []corepb.DocumentPayload) error {
	for i, b := range f.vectorTargets() {
		if err := b.InsertDiscoveredKnowledge(ctx, items); err != nil {
			f.logger.Error("insert discovered knowledge failed", "backend", i, "err", err)
		}
	}
	return nil
}

func (f *Facade) SetPipeline(ctx context.Context, id string, spec []byte) error {
	return wrapErr(KindInsertion, f.metadata.SetPipeline(ctx, id, spec))
}

func (f *Facade) GetPipeline(ctx context.Context, id string) ([]byte, error) {
	v, err := f.metadata.GetPipeline(ctx, id)
	return v, wrapErr(KindQuery, err)
}

func (f *Facade) GetAllPipelines(ctx context.Context) (map[string][]byte, error) {
	v, err := f.metadata.GetAllPipelines(ctx)
	return v, wrapErr(KindQuery, err)
}

func (f *Facade) SetDiscoverySession(ctx context.Context, id string, req []byte) error {
	return wrapErr(KindInsertion, f.metadata.SetDiscoverySession(ctx, id, req))
}

func (f *Facade) GetAllDiscoverySessions(ctx context.Context) (map[string][]byte, error) {
	v, err := f.metadata.GetAllDiscoverySessions(ctx)
	return v, wrapErr(KindQuery, err)
}

func (f *Facade) SetInsightSession(ctx context.Context, id string, req []byte) error {
	return wrapErr(KindInsertion, f.metadata.SetInsightSession(ctx, id, req))
}

func (f *Facade) GetAllInsightSessions(ctx context.Context) (map[string][]byte, error) {
	v, err := f.metadata.GetAllInsightSessions(ctx)
	return v, wrapErr(KindQuery, err)
}

func (f *Facade) StoreSecret(ctx context.Context, key string, value []byte) error {
	return wrapErr(KindInsertion, f.secrets.StoreSecret(ctx, key, value))
}

func (f *Facade) GetSecret(ctx context.Context, key string) ([]byte, error) {
	v, err := f.secrets.GetSecret(ctx, key)
	return v, wrapErr(KindQuery, err)
}

func (f *Facade) DeleteSecret(ctx context.Context, key string) error {
	return wrapErr(KindInsertion, f.secrets.DeleteSecret(ctx, key))
}

func (f *Facade) GetAllSecrets(ctx context.Context) (map[string][]byte, error) {
	v, err := f.secrets.GetAllSecrets(ctx)
	return v, wrapErr(KindQuery, err)
}

// SetRianAPIKey stores the RIAN_API_KEY secret used to authenticate
// external API calls against this node.
func (f *Facade) SetRianAPIKey(ctx context.Context, key string) error {
	return wrapErr(KindInsertion, f.secrets.SetRianAPIKey(ctx, key))
}

func (f *Facade) GetRianAPIKey(ctx context.Context) (string, error) {
	v, err := f.secrets.GetRianAPIKey(ctx)
	return v, wrapErr(KindQuery, err)
}

func wrapErr(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	return Wrap(kind, err)
}
