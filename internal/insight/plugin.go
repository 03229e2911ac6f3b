package insight

import (
	"context"
	"sync"

	"github.com/querent-ai/querent-go/internal/storage"
)

// Config bundles the storage handles and validated option values an
// installed plugin's Run method needs, per spec.md §4.G
// ("constructs an InsightConfig bundling storage handles and options").
type Config struct {
	Storage      *storage.Facade
	CollectionID string
	Options      map[string]any
}

// Plugin is an installed insight analyst: it declares the custom options it
// accepts and runs a query against a Config.
type Plugin interface {
	ID() string
	Options() []OptionSpec
	Run(ctx context.Context, cfg Config, query string) (string, error)
}

// Registry is the installed-plugins registry spec.md §4.G resolves a
// plugin id against when an insight session is created.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register installs a plugin, replacing any previously installed plugin
// with the same id.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.ID()] = p
}

// Lookup resolves a plugin by id.
func (r *Registry) Lookup(id string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	return p, ok
}

// List returns every installed plugin's id.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.plugins))
	for id := range r.plugins {
		ids = append(ids, id)
	}
	return ids
}
