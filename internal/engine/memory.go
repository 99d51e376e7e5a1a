package engine

import (
	"path/filepath"

	"github.com/antigravity-dev/agentengine/internal/errs"
	"github.com/antigravity-dev/agentengine/internal/manifest"
	"github.com/antigravity-dev/agentengine/internal/memory"
	"github.com/antigravity-dev/agentengine/internal/memory/filelog"
	"github.com/antigravity-dev/agentengine/internal/memory/inmem"
	"github.com/antigravity-dev/agentengine/internal/memory/sqlitestore"
)

// buildBackendFactory returns a memory.BackendFactory for one tier's
// config, grounded on spec.md §4.3's three interchangeable backends.
// filelog/sqlite backends reopen the same configured path on every call
// (the tier's lazy-create contract has no per-scope-id parameter to
// interpolate into the path), so a task-tier backend configured with a
// persistent store is shared across tasks rather than truly per-task —
// acceptable since the common case (task tier) defaults to inmem, and
// ConcludeTask's Clear() still empties it between tasks.
func buildBackendFactory(cfg manifest.TierBackendConfig, stateRoot, tierName string) memory.BackendFactory {
	return func() (memory.Backend, error) {
		switch cfg.Backend {
		case "", "inmem":
			return inmem.New(), nil
		case "filelog":
			path := cfg.Path
			if path == "" {
				path = filepath.Join(stateRoot, "memory", tierName+".jsonl")
			}
			return filelog.Open(path)
		case "sqlite":
			path := cfg.Path
			if path == "" {
				path = filepath.Join(stateRoot, "memory", tierName+".db")
			}
			return sqlitestore.Open(path)
		default:
			return nil, errs.Validation(errs.SourceConfigLoader, "manifest_load", "memory.yaml: %s: unknown backend %q", tierName, cfg.Backend)
		}
	}
}

// buildTiers constructs the three memory.Tiers backends from memory.yaml,
// defaulting every tier to an inmem.Backend when the manifest is absent or
// a tier is left unconfigured.
func buildTiers(m manifest.MemoryManifest, stateRoot string) (*memory.Tiers, error) {
	globalFactory := buildBackendFactory(m.Global, stateRoot, "global")
	global, err := globalFactory()
	if err != nil {
		return nil, err
	}
	return memory.NewTiers(
		buildBackendFactory(m.Task, stateRoot, "task"),
		buildBackendFactory(m.Project, stateRoot, "project"),
		global,
	), nil
}
