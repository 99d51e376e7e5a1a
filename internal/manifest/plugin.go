package manifest

import (
	"fmt"

	"github.com/antigravity-dev/agentengine/internal/errs"
	"github.com/antigravity-dev/agentengine/internal/telemetry"
)

// PluginFactory builds a telemetry.Plugin from its declared config.
// Go has no runtime module-import equivalent to original_source's
// `importlib.import_module(module_path)`; a plugin is instead looked up
// by id in a compiled-in registry the façade populates at startup, a
// closed-set-of-adapters pattern matching this module's other pluggable
// backends.
type PluginFactory func(config map[string]any) (telemetry.Plugin, error)

// PluginRegistry resolves plugin ids declared in plugins.yaml to their
// concrete constructors.
type PluginRegistry struct {
	factories map[string]PluginFactory
}

// NewPluginRegistry builds an empty registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{factories: map[string]PluginFactory{}}
}

// Register adds a named plugin constructor.
func (r *PluginRegistry) Register(id string, f PluginFactory) {
	r.factories[id] = f
}

// Build instantiates every enabled plugin declared in m, in manifest
// order, failing fast on an id with no registered factory (spec.md §7:
// plugin emission errors are swallowed at emit time, but a load-time
// configuration error for an unknown plugin id is still fatal, matching
// original_source/plugin_loader.py raising ValueError for an
// unresolvable plugin).
func (r *PluginRegistry) Build(m PluginsManifest) ([]telemetry.Plugin, error) {
	var out []telemetry.Plugin
	for _, pc := range m.Plugins {
		if !pc.Enabled {
			continue
		}
		factory, ok := r.factories[pc.ID]
		if !ok {
			return nil, errs.Validation(errs.SourceConfigLoader, "manifest_load", "plugins.yaml: unknown plugin id %q", pc.ID)
		}
		p, err := factory(pc.Config)
		if err != nil {
			return nil, errs.Wrap(errs.CategoryValidation, errs.SourceConfigLoader, "manifest_load", fmt.Errorf("plugin %q: %w", pc.ID, err))
		}
		out = append(out, p)
	}
	return out, nil
}
