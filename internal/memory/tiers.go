package memory

import (
	"sync"

	"github.com/antigravity-dev/agentengine/internal/errs"
)

// Tier names a memory store role (spec.md §4.3).
type Tier string

const (
	TierTask    Tier = "task"
	TierProject Tier = "project"
	TierGlobal  Tier = "global"
)

// BackendFactory builds a fresh Backend for one store. Task stores are
// created lazily per task_id; project stores are created lazily per
// project_id; the global store is a singleton.
type BackendFactory func() (Backend, error)

// Tiers owns the three memory stores described by spec.md §4.3: an
// ephemeral per-task store created lazily, a per-project store created
// lazily and kept for the engine's lifetime, and a single global store.
type Tiers struct {
	mu sync.Mutex

	newTaskBackend    BackendFactory
	newProjectBackend BackendFactory

	taskStores    map[string]Backend
	projectStores map[string]Backend
	global        Backend
}

// NewTiers constructs a Tiers instance. newTaskBackend and newProjectBackend
// are invoked lazily on first access for a given id; global is the single
// long-lived global backend.
func NewTiers(newTaskBackend, newProjectBackend BackendFactory, global Backend) *Tiers {
	return &Tiers{
		newTaskBackend:    newTaskBackend,
		newProjectBackend: newProjectBackend,
		taskStores:        make(map[string]Backend),
		projectStores:     make(map[string]Backend),
		global:            global,
	}
}

// Store returns the backend for the given tier, creating it lazily for
// task/project tiers if this is the first reference.
func (t *Tiers) Store(tier Tier, scopeID string) (Backend, error) {
	switch tier {
	case TierGlobal:
		return t.global, nil
	case TierTask:
		return t.lazyStore(t.taskStores, t.newTaskBackend, scopeID)
	case TierProject:
		return t.lazyStore(t.projectStores, t.newProjectBackend, scopeID)
	default:
		return nil, errs.Validation(errs.SourceMemory, "unknown_tier", "unknown memory tier %q", tier)
	}
}

func (t *Tiers) lazyStore(stores map[string]Backend, factory BackendFactory, scopeID string) (Backend, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := stores[scopeID]; ok {
		return b, nil
	}
	b, err := factory()
	if err != nil {
		return nil, errs.Wrap(errs.CategoryUnknown, errs.SourceMemory, "backend_init_failed", err)
	}
	stores[scopeID] = b
	return b, nil
}

// ConcludeTask clears and discards the task-scoped store for taskID
// (spec.md §4.3: "ephemeral; cleared on task conclusion").
func (t *Tiers) ConcludeTask(taskID string) error {
	t.mu.Lock()
	b, ok := t.taskStores[taskID]
	delete(t.taskStores, taskID)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return b.Clear()
}
