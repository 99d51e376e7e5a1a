package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/agentengine/internal/clock"
	"github.com/antigravity-dev/agentengine/internal/errs"
)

// Manager owns every Task for the engine's lifetime: creation, history
// append, lineage bookkeeping, and checkpoint persistence (spec.md §4.2).
// All mutation happens under a single mutex; handlers only ever observe
// borrowed, read-only Task views.
type Manager struct {
	mu    sync.Mutex
	tasks map[string]*Task
	clock clock.Clock
	root  string // checkpoint storage root
}

// NewManager creates a Manager that checkpoints under root.
func NewManager(root string) *Manager {
	return &Manager{
		tasks: make(map[string]*Task),
		clock: clock.New(),
		root:  root,
	}
}

// WithClock overrides the manager's time source (tests only).
func (m *Manager) WithClock(c clock.Clock) *Manager {
	m.clock = c
	return m
}

func (m *Manager) now() time.Time {
	return m.clock.Now().UTC()
}

// CreateRoot creates a new root task from a Spec.
func (m *Manager) CreateRoot(spec Spec) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	t := &Task{
		TaskID:    generateTaskID(spec),
		Spec:      spec,
		Status:    StatusPending,
		Lineage:   Lineage{Type: LineageRoot},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.tasks[t.TaskID] = t
	return t
}

// CreateClone creates a clone task produced by a BRANCH node (spec.md
// §4.9). The clone inherits the parent's current output.
func (m *Manager) CreateClone(parentID string, branchLabel string, currentOutput any) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	parent, ok := m.tasks[parentID]
	if !ok {
		return nil, errs.Validation(errs.SourceTaskManager, "task_not_found", "task %q not found", parentID).WithTask(parentID)
	}
	now := m.now()
	clone := &Task{
		TaskID:        generateTaskID(parent.Spec),
		Spec:          parent.Spec,
		Status:        StatusPending,
		CurrentOutput: currentOutput,
		Lineage: Lineage{
			Type:            LineageClone,
			ParentTaskID:    parentID,
			LineageMetadata: map[string]any{"branch_label": branchLabel},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.tasks[clone.TaskID] = clone
	parent.Lineage.ChildTaskIDs = append(parent.Lineage.ChildTaskIDs, clone.TaskID)
	parent.UpdatedAt = now
	return clone, nil
}

// CreateSubtask creates a subtask produced by a SPLIT node (spec.md §4.9).
func (m *Manager) CreateSubtask(parentID string, index int, input any) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	parent, ok := m.tasks[parentID]
	if !ok {
		return nil, errs.Validation(errs.SourceTaskManager, "task_not_found", "task %q not found", parentID).WithTask(parentID)
	}
	now := m.now()
	sub := &Task{
		TaskID:        generateTaskID(parent.Spec),
		Spec:          parent.Spec,
		Status:        StatusPending,
		CurrentOutput: input,
		Lineage: Lineage{
			Type:            LineageSubtask,
			ParentTaskID:    parentID,
			LineageMetadata: map[string]any{"subtask_input": input, "subtask_index": index},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.tasks[sub.TaskID] = sub
	parent.Lineage.ChildTaskIDs = append(parent.Lineage.ChildTaskIDs, sub.TaskID)
	parent.UpdatedAt = now
	return sub, nil
}

// Get returns a read-only snapshot of a task.
func (m *Manager) Get(taskID string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return t.Clone(), true
}

// SetCurrentNode updates the task's current node pointer.
func (m *Manager) SetCurrentNode(taskID, nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[taskID]; ok {
		t.CurrentNodeID = nodeID
		t.UpdatedAt = m.now()
	}
}

// SetStatus transitions a task's status.
func (m *Manager) SetStatus(taskID string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[taskID]; ok {
		t.Status = status
		t.UpdatedAt = m.now()
	}
}

// AppendHistory appends a stage execution record and updates current
// output (spec.md §4.2: "Records stage execution by appending to history
// and updating current_output").
func (m *Manager) AppendHistory(taskID string, rec StageExecutionRecord, newOutput any, outputValid bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return errs.Validation(errs.SourceTaskManager, "task_not_found", "task %q not found", taskID).WithTask(taskID)
	}
	t.History = append(t.History, rec)
	if outputValid {
		t.CurrentOutput = newOutput
	}
	t.UpdatedAt = m.now()
	return nil
}

// SetOutput overwrites a task's current_output directly, without an
// accompanying StageExecutionRecord. Used by the router for MERGE
// combination and BRANCH-parent conclusion (spec.md §4.9), where the
// output transition isn't itself a node execution.
func (m *Manager) SetOutput(taskID string, output any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[taskID]; ok {
		t.CurrentOutput = output
		t.UpdatedAt = m.now()
	}
}

// MergeMetadata sets merge-wait-state bookkeeping on a task parked at a
// MERGE node, so it survives a checkpoint round trip (spec.md §9 Open
// Question 2).
func (m *Manager) MergeMetadata(taskID string, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return
	}
	if t.Lineage.LineageMetadata == nil {
		t.Lineage.LineageMetadata = map[string]any{}
	}
	t.Lineage.LineageMetadata[key] = value
	t.UpdatedAt = m.now()
}

// AllIDs returns every known task id.
func (m *Manager) AllIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.tasks))
	for id := range m.tasks {
		ids = append(ids, id)
	}
	return ids
}

func generateTaskID(spec Spec) string {
	return fmt.Sprintf("task-%s-%s", spec.SpecID, uuid.NewString()[:8])
}

// ProjectIDFromTaskID parses the project id out of the task_id format
// task-<spec_id>-<suffix>, joining any middle components (spec.md §4.2).
func ProjectIDFromTaskID(taskID string) string {
	parts := strings.Split(taskID, "-")
	if len(parts) >= 3 {
		return strings.Join(parts[1:len(parts)-1], "-")
	}
	return "default"
}

// --- Checkpoint persistence ---

// Save serializes a task to <root>/<project_id>/<task_id>.json, writing
// atomically via a temp-file-then-rename so a crash mid-write never
// leaves a truncated checkpoint.
func (m *Manager) Save(taskID string) error {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if ok {
		cp := t.Clone()
		t = &cp
	}
	m.mu.Unlock()
	if !ok {
		return errs.Validation(errs.SourceTaskManager, "task_not_found", "task %q not found in memory", taskID).WithTask(taskID)
	}

	projectID := ProjectIDFromTaskID(taskID)
	dir := filepath.Join(m.root, projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.CategoryUnknown, errs.SourceTaskManager, "checkpoint_mkdir_failed", err).WithTask(taskID)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return errs.Wrap(errs.CategoryUnknown, errs.SourceTaskManager, "serialization_failed", err).WithTask(taskID)
	}

	target := filepath.Join(dir, taskID+".json")
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.Wrap(errs.CategoryUnknown, errs.SourceTaskManager, "checkpoint_save_failed", err).WithTask(taskID).WithDetails(map[string]any{"path": target})
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return errs.Wrap(errs.CategoryUnknown, errs.SourceTaskManager, "checkpoint_save_failed", err).WithTask(taskID).WithDetails(map[string]any{"path": target})
	}
	return nil
}

// Load restores a task from its checkpoint file into memory, overwriting
// any existing in-memory task with the same id.
func (m *Manager) Load(taskID string) (Task, error) {
	projectID := ProjectIDFromTaskID(taskID)
	path := filepath.Join(m.root, projectID, taskID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Task{}, errs.Validation(errs.SourceTaskManager, "checkpoint_not_found", "checkpoint file not found: %s", path).WithTask(taskID)
		}
		return Task{}, errs.Wrap(errs.CategoryUnknown, errs.SourceTaskManager, "checkpoint_read_failed", err).WithTask(taskID)
	}
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return Task{}, errs.JSONErr(errs.SourceTaskManager, "checkpoint_invalid_json", "invalid checkpoint JSON for %q: %v", taskID, err).WithTask(taskID)
	}

	m.mu.Lock()
	m.tasks[t.TaskID] = &t
	m.mu.Unlock()
	return t.Clone(), nil
}

// List lists checkpoint task ids for a project.
func (m *Manager) List(projectID string) ([]string, error) {
	dir := filepath.Join(m.root, projectID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.CategoryUnknown, errs.SourceTaskManager, "checkpoint_list_failed", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".json") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	return ids, nil
}

// Summary is the lightweight metadata view returned by Metadata (spec.md
// §4.2: "metadata(task_id)").
type Summary struct {
	TaskID    string    `json:"task_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Metadata returns a Summary without requiring the full task to already be
// loaded in memory — if absent in memory it is restored with Load, which
// deserializes the whole checkpoint (history included) and keeps the task
// in memory.
func (m *Manager) Metadata(taskID string) (Summary, error) {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	m.mu.Unlock()
	if ok {
		return Summary{TaskID: t.TaskID, Status: t.Status, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt}, nil
	}
	loaded, err := m.Load(taskID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{TaskID: loaded.TaskID, Status: loaded.Status, CreatedAt: loaded.CreatedAt, UpdatedAt: loaded.UpdatedAt}, nil
}
