package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds the active plugins keyed by name. All methods are
// safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		logger:  logger.With("component", "plugins"),
	}
}

// Register adds a plugin. Duplicate names are an error.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin %q already registered", name)
	}
	r.plugins[name] = p
	r.logger.Debug("plugin registered", "plugin", name)
	return nil
}

// Get returns the named plugin.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// Process routes a request to the named plugin.
func (r *Registry) Process(ctx context.Context, name string, req Request) (*Result, error) {
	p, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("plugin %q not found", name)
	}

	r.logger.Debug("processing with plugin", "plugin", name, "action", req.Action)
	return p.Execute(ctx, req)
}

// Names returns the registered plugin names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info describes a registered plugin for the analyzer prompt and the
// plugins API endpoint.
type Info struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Actions     []ActionSpec `json:"actions"`
}

// Describe returns plugin descriptions sorted by name.
func (r *Registry) Describe() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.plugins))
	for _, p := range r.plugins {
		infos = append(infos, Info{
			Name:        p.Name(),
			Description: p.Description(),
			Actions:     p.Actions(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// CloseAll closes every plugin. Errors are logged; the first one is
// returned.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for name, p := range r.plugins {
		if err := p.Close(); err != nil {
			r.logger.Warn("plugin close failed", "plugin", name, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	r.plugins = make(map[string]Plugin)
	return first
}
