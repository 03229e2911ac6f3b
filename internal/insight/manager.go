package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/querent-ai/querent-go/internal/actor"
	"github.com/querent-ai/querent-go/internal/storage"
)

// Manager spawns, queries, and tears down insight sessions, and exposes the
// installed-plugins registry for the "list installed" REST method.
type Manager struct {
	runtime  *actor.Runtime
	registry *Registry
	storage  *storage.Facade
	logger   *slog.Logger
}

func NewManager(runtime *actor.Runtime, registry *Registry, st *storage.Facade, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{runtime: runtime, registry: registry, storage: st, logger: logger}
}

// Installed lists every plugin id in the registry.
func (m *Manager) Installed() []string { return m.registry.List() }

// Start resolves req.PluginID, validates req.Options against its declared
// schema, persists the request, and spawns its runner actor.
func (m *Manager) Start(ctx context.Context, req AnalystRequest) (string, error) {
	if req.SessionID == "" {
		return "", Wrap(KindInternal, fmt.Errorf("session id is required"))
	}
	plugin, ok := m.registry.Lookup(req.PluginID)
	if !ok {
		return "", Wrap(KindNotSupported, fmt.Errorf("no installed plugin %q", req.PluginID))
	}
	if err := ValidateOptions(plugin.Options(), req.Options); err != nil {
		return "", Wrap(KindNotSupported, err)
	}
	if _, ok := m.runtime.Registry().Lookup(req.SessionID); ok {
		return "", Wrap(KindNotSupported, fmt.Errorf("session %s already running", req.SessionID))
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", Wrap(KindInternal, err)
	}
	if err := m.storage.SetInsightSession(ctx, req.SessionID, data); err != nil {
		return "", Wrap(KindInternal, err)
	}

	cfg := Config{Storage: m.storage, CollectionID: req.CollectionID, Options: req.Options}
	behavior := &runnerBehavior{sessionID: req.SessionID, plugin: plugin, cfg: cfg, logger: m.logger.With("session", req.SessionID)}
	if _, err := m.runtime.Spawn(req.SessionID, behavior, actor.WithRuntimeKind(actor.Blocking)); err != nil {
		return "", Wrap(KindInternal, err)
	}
	m.logger.Info("insight session started", "session", req.SessionID, "plugin", req.PluginID)
	return req.SessionID, nil
}

// Prompt routes text to sessionID's runner actor and waits for its Result.
func (m *Manager) Prompt(ctx context.Context, sessionID, text string) (Result, error) {
	h, ok := m.runtime.Registry().Lookup(sessionID)
	if !ok {
		return Result{}, Wrap(KindNotSupported, fmt.Errorf("no open session %s", sessionID))
	}
	v, err := h.Ask(ctx, Query{SessionID: sessionID, Text: text})
	if err != nil {
		return Result{}, Wrap(KindInference, err)
	}
	res, ok := v.(Result)
	if !ok {
		return Result{}, Wrap(KindInternal, fmt.Errorf("session %s returned unexpected reply %T", sessionID, v))
	}
	return res, nil
}

// Stop sends the Quit command to sessionID's runner actor; the persisted
// request remains.
func (m *Manager) Stop(sessionID string) error {
	h, ok := m.runtime.Registry().Lookup(sessionID)
	if !ok {
		return Wrap(KindNotSupported, fmt.Errorf("no open session %s", sessionID))
	}
	h.Command(actor.Quit)
	return nil
}

// List returns every persisted insight session request, open or stopped.
func (m *Manager) List(ctx context.Context) (map[string]AnalystRequest, error) {
	raw, err := m.storage.GetAllInsightSessions(ctx)
	if err != nil {
		return nil, Wrap(KindInternal, err)
	}
	out := make(map[string]AnalystRequest, len(raw))
	for id, data := range raw {
		var req AnalystRequest
		if err := json.Unmarshal(data, &req); err != nil {
			m.logger.Warn("insight: dropping unreadable persisted session", "session", id, "err", err)
			continue
		}
		out[id] = req
	}
	return out, nil
}
