// Package api implements the REST method contracts of spec.md §6 over
// net/http and github.com/go-chi/chi/v5, the lightweight router used by
// dohr-michael-ozzie's gateway server in the retrieved pack. Wire codec is
// JSON; everything downstream of the handler signature is swappable.
package api

import (
	"log/slog"
	"sync"

	"github.com/querent-ai/querent-go/internal/discovery"
	"github.com/querent-ai/querent-go/internal/engine"
	"github.com/querent-ai/querent-go/internal/eventstream"
	"github.com/querent-ai/querent-go/internal/insight"
	"github.com/querent-ai/querent-go/internal/pipeline"
	"github.com/querent-ai/querent-go/internal/source/fssource"
	"github.com/querent-ai/querent-go/internal/storage"
)

// NodeInfo answers the node-info "version"/"config" contracts.
type NodeInfo struct {
	Version   string `json:"version"`
	ClusterID string `json:"cluster_id"`
	NodeID    string `json:"node_id"`
}

// Server holds every dependency the handlers need and owns the set of
// pipelines currently running in this process.
type Server struct {
	Storage   *storage.Facade
	Discovery *discovery.Manager
	Insight   *insight.Manager
	Engine    engine.Engine
	Info      NodeInfo
	Logger    *slog.Logger

	// Publisher, when set, is attached to every pipeline this server
	// starts or restarts, so flushed EventsBatches are additionally
	// published over NATS. Nil means no external publishing.
	Publisher eventstream.Publisher

	mu        sync.Mutex
	pipelines map[string]*pipeline.Handle
}

// NewServer builds a Server. Storage, Discovery, and Insight must already be
// wired by the caller (cmd/querent-node).
func NewServer(st *storage.Facade, disco *discovery.Manager, ins *insight.Manager, info NodeInfo, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Storage:   st,
		Discovery: disco,
		Insight:   ins,
		Engine:    defaultEngine,
		Info:      info,
		Logger:    logger,
		pipelines: make(map[string]*pipeline.Handle),
	}
}

func (s *Server) getHandle(id string) (*pipeline.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.pipelines[id]
	return h, ok
}

func (s *Server) putHandle(id string, h *pipeline.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipelines[id] = h
}

func (s *Server) dropHandle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pipelines, id)
}

// PipelineStartRequest is the JSON body for POST /api/v1/pipelines.
type PipelineStartRequest struct {
	PipelineID   string   `json:"pipeline_id"`
	CollectionID string   `json:"collection_id"`
	SourceRoots  []string `json:"source_roots"`

	IngestorCapacity    int `json:"ingestor_capacity,omitempty"`
	BatchNumEventsLimit int `json:"batch_num_events_limit,omitempty"`
}

// buildSources turns a PipelineStartRequest's source roots into concrete
// filesystem connectors, the one in-scope source implementation.
func buildSources(req PipelineStartRequest) []*fssource.Source {
	out := make([]*fssource.Source, 0, len(req.SourceRoots))
	for _, root := range req.SourceRoots {
		out = append(out, fssource.New(root, req.PipelineID))
	}
	return out
}

// defaultEngine is the only concrete, in-scope Engine implementation; a
// deployment with a real extraction engine injects its own via
// Server.Engine.
var defaultEngine engine.Engine = engine.NewMockEngine()
