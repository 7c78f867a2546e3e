package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is one plugin activation file (plugins.d/<name>.yaml). A
// manifest turns a compiled-in plugin on and supplies its settings.
type Manifest struct {
	Plugin   string   `yaml:"plugin"`
	Enabled  *bool    `yaml:"enabled"` // nil means enabled
	Settings Settings `yaml:"settings"`
}

// enabled reports whether the manifest activates its plugin.
func (m Manifest) enabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// Loader activates compiled-in plugins from a manifest directory.
type Loader struct {
	dir      string
	builtins map[string]Plugin
	logger   *slog.Logger
}

// NewLoader creates a loader over the available compiled-in plugins.
func NewLoader(dir string, builtins []Plugin, logger *slog.Logger) *Loader {
	m := make(map[string]Plugin, len(builtins))
	for _, p := range builtins {
		m[p.Name()] = p
	}
	return &Loader{
		dir:      dir,
		builtins: m,
		logger:   logger.With("component", "plugins"),
	}
}

// Activate scans the manifest directory and registers every enabled
// plugin after a successful Init. A plugin that fails to initialize is
// logged and skipped so one broken plugin cannot take the assistant
// down. When no manifest directory exists, the plugins named in
// defaults are activated with empty settings.
func (l *Loader) Activate(ctx context.Context, reg *Registry, defaults ...string) error {
	manifests, err := l.readManifests()
	if err != nil {
		return err
	}

	if manifests == nil {
		for _, name := range defaults {
			l.activate(ctx, reg, name, Settings{})
		}
		return nil
	}

	for _, m := range manifests {
		if !m.enabled() {
			l.logger.Debug("plugin disabled by manifest", "plugin", m.Plugin)
			continue
		}
		l.activate(ctx, reg, m.Plugin, m.Settings)
	}
	return nil
}

// activate initializes and registers one plugin by name.
func (l *Loader) activate(ctx context.Context, reg *Registry, name string, settings Settings) {
	p, ok := l.builtins[name]
	if !ok {
		l.logger.Warn("unknown plugin in manifest, skipping", "plugin", name)
		return
	}
	if settings == nil {
		settings = Settings{}
	}
	if err := p.Init(ctx, settings, l.logger); err != nil {
		l.logger.Warn("plugin initialization failed, skipping", "plugin", name, "error", err)
		return
	}
	if err := reg.Register(p); err != nil {
		l.logger.Warn("plugin registration failed", "plugin", name, "error", err)
		return
	}
	l.logger.Info("plugin activated", "plugin", name)
}

// readManifests parses all *.yaml files in the manifest directory in
// name order. A missing or unset directory returns nil, nil so the
// caller can fall back to the default plugin set.
func (l *Loader) readManifests() ([]Manifest, error) {
	if l.dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read plugins dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	manifests := make([]Manifest, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(l.dir, f))
		if err != nil {
			return nil, fmt.Errorf("read manifest %s: %w", f, err)
		}

		var m Manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			l.logger.Warn("invalid plugin manifest, skipping", "file", f, "error", err)
			continue
		}
		if m.Plugin == "" {
			l.logger.Warn("manifest missing plugin name, skipping", "file", f)
			continue
		}
		manifests = append(manifests, m)
	}

	return manifests, nil
}
