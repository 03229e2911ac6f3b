package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/querent-ai/querent-go/internal/actor"
	"github.com/querent-ai/querent-go/internal/engine"
	"github.com/querent-ai/querent-go/internal/storage"
)

// Manager spawns, routes to, and tears down discovery sessions: the
// "Responsibility: interactive query over the persisted fabric" surface
// spec.md §4.G describes. One Manager is shared across every session, the
// way one engine/rag.Service is shared across every RAG query in the
// teacher.
type Manager struct {
	runtime  *actor.Runtime
	storage  *storage.Facade
	embedder engine.Embedder
	chat     engine.ChatModel
	logger   *slog.Logger
}

// NewManager builds a Manager. embedder/chat may be nil; a nil embedder
// makes Retriever sessions fail fast, a nil chat model makes Traverser
// sessions fall back to using the raw query text as the walk's anchor.
func NewManager(runtime *actor.Runtime, st *storage.Facade, embedder engine.Embedder, chat engine.ChatModel, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{runtime: runtime, storage: st, embedder: embedder, chat: chat, logger: logger}
}

// Start persists req in the metadata store, spawns its session actor, and
// returns the id callers route subsequent Requests to.
func (m *Manager) Start(ctx context.Context, req SessionRequest) (string, error) {
	if req.SessionID == "" {
		return "", Wrap(KindInvalidArgument, fmt.Errorf("session id is required"))
	}
	if _, ok := m.runtime.Registry().Lookup(req.SessionID); ok {
		return "", Wrap(KindInvalidArgument, fmt.Errorf("session %s already running", req.SessionID))
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", Wrap(KindInternal, err)
	}
	if err := m.storage.SetDiscoverySession(ctx, req.SessionID, data); err != nil {
		return "", Wrap(KindStorageError, err)
	}

	behavior := &sessionBehavior{req: req, storage: m.storage, embedder: m.embedder, chat: m.chat, logger: m.logger.With("session", req.SessionID)}
	if _, err := m.runtime.Spawn(req.SessionID, behavior, actor.WithRuntimeKind(actor.Blocking)); err != nil {
		return "", Wrap(KindInternal, err)
	}
	m.logger.Info("discovery session started", "session", req.SessionID, "mode", req.Mode, "collection", req.CollectionID)
	return req.SessionID, nil
}

// Search routes query to sessionID's actor and waits for its Response. If
// ctx carries no deadline of its own, one is imposed (spec.md §5:
// "observation has a per-call timeout; actors not replying within it are
// reported as silent").
func (m *Manager) Search(ctx context.Context, sessionID, query string) (Response, error) {
	h, ok := m.runtime.Registry().Lookup(sessionID)
	if !ok {
		return Response{}, Wrap(KindInvalidArgument, fmt.Errorf("no open session %s", sessionID))
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultAskTimeout)
		defer cancel()
	}
	v, err := h.Ask(ctx, Request{SessionID: sessionID, Query: query})
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, Wrap(KindTimeout, err)
		}
		return Response{}, Wrap(KindUnavailable, err)
	}
	resp, ok := v.(Response)
	if !ok {
		if derr, ok := v.(error); ok {
			return Response{}, derr
		}
		return Response{}, Wrap(KindInternal, fmt.Errorf("session %s returned unexpected reply %T", sessionID, v))
	}
	return resp, nil
}

// Stop sends the Quit command to sessionID's actor; the persisted record remains for audit per
// spec.md §4.G ("Stop removes the in-memory actor; persistent record
// remains").
func (m *Manager) Stop(sessionID string) error {
	h, ok := m.runtime.Registry().Lookup(sessionID)
	if !ok {
		return Wrap(KindInvalidArgument, fmt.Errorf("no open session %s", sessionID))
	}
	h.Command(actor.Quit)
	return nil
}

// List returns every persisted session request, open or stopped, keyed by
// session id.
func (m *Manager) List(ctx context.Context) (map[string]SessionRequest, error) {
	raw, err := m.storage.GetAllDiscoverySessions(ctx)
	if err != nil {
		return nil, Wrap(KindStorageError, err)
	}
	out := make(map[string]SessionRequest, len(raw))
	for id, data := range raw {
		var req SessionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			m.logger.Warn("discovery: dropping unreadable persisted session", "session", id, "err", err)
			continue
		}
		out[id] = req
	}
	return out, nil
}

// defaultAskTimeout bounds Search when the caller's context carries no
// deadline of its own, matching spec.md §5's "observation has a per-call
// timeout" rule for interactive session queries.
const defaultAskTimeout = 30 * time.Second
