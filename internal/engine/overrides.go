package engine

import (
	"sync"
	"time"

	"github.com/antigravity-dev/agentengine/internal/errs"
	"github.com/antigravity-dev/agentengine/internal/task"
	"github.com/antigravity-dev/agentengine/internal/tool"
)

// Scope is the precedence level at which an override is set (spec.md §6:
// overrides are "each scoped to global|project|task").
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
	ScopeTask    Scope = "task"
)

// tieredString/tieredBool/tieredDuration/tieredAny hold one override value
// at each of the three precedence levels, resolved task > project >
// global. Grounded on original_source/runtime/parameter_resolver.py's
// three-dict lookup chain (SPEC_FULL.md §4 "Override scoping").
type tieredString struct {
	global  *string
	project map[string]string
	task    map[string]string
}

func (t *tieredString) set(scope Scope, scopeID, value string) {
	switch scope {
	case ScopeGlobal:
		t.global = &value
	case ScopeProject:
		if t.project == nil {
			t.project = map[string]string{}
		}
		t.project[scopeID] = value
	case ScopeTask:
		if t.task == nil {
			t.task = map[string]string{}
		}
		t.task[scopeID] = value
	}
}

func (t *tieredString) resolve(taskID, projectID string) (string, bool) {
	if t == nil {
		return "", false
	}
	if v, ok := t.task[taskID]; ok {
		return v, true
	}
	if v, ok := t.project[projectID]; ok {
		return v, true
	}
	if t.global != nil {
		return *t.global, true
	}
	return "", false
}

func (t *tieredString) clear(scope Scope, scopeID string) {
	switch scope {
	case ScopeGlobal:
		t.global = nil
	case ScopeProject:
		delete(t.project, scopeID)
	case ScopeTask:
		delete(t.task, scopeID)
	}
}

type tieredBool struct {
	global  *bool
	project map[string]bool
	task    map[string]bool
}

func (t *tieredBool) set(scope Scope, scopeID string, value bool) {
	switch scope {
	case ScopeGlobal:
		t.global = &value
	case ScopeProject:
		if t.project == nil {
			t.project = map[string]bool{}
		}
		t.project[scopeID] = value
	case ScopeTask:
		if t.task == nil {
			t.task = map[string]bool{}
		}
		t.task[scopeID] = value
	}
}

func (t *tieredBool) resolve(taskID, projectID string) (bool, bool) {
	if t == nil {
		return false, false
	}
	if v, ok := t.task[taskID]; ok {
		return v, true
	}
	if v, ok := t.project[projectID]; ok {
		return v, true
	}
	if t.global != nil {
		return *t.global, true
	}
	return false, false
}

func (t *tieredBool) clear(scope Scope, scopeID string) {
	switch scope {
	case ScopeGlobal:
		t.global = nil
	case ScopeProject:
		delete(t.project, scopeID)
	case ScopeTask:
		delete(t.task, scopeID)
	}
}

type tieredDuration struct {
	global  *time.Duration
	project map[string]time.Duration
	task    map[string]time.Duration
}

func (t *tieredDuration) set(scope Scope, scopeID string, value time.Duration) {
	switch scope {
	case ScopeGlobal:
		t.global = &value
	case ScopeProject:
		if t.project == nil {
			t.project = map[string]time.Duration{}
		}
		t.project[scopeID] = value
	case ScopeTask:
		if t.task == nil {
			t.task = map[string]time.Duration{}
		}
		t.task[scopeID] = value
	}
}

func (t *tieredDuration) resolve(taskID, projectID string) (time.Duration, bool) {
	if t == nil {
		return 0, false
	}
	if v, ok := t.task[taskID]; ok {
		return v, true
	}
	if v, ok := t.project[projectID]; ok {
		return v, true
	}
	if t.global != nil {
		return *t.global, true
	}
	return 0, false
}

func (t *tieredDuration) clear(scope Scope, scopeID string) {
	switch scope {
	case ScopeGlobal:
		t.global = nil
	case ScopeProject:
		delete(t.project, scopeID)
	case ScopeTask:
		delete(t.task, scopeID)
	}
}

type tieredAny struct {
	global  map[string]any
	project map[string]map[string]any
	task    map[string]map[string]any
}

func (t *tieredAny) set(scope Scope, scopeID string, value map[string]any) {
	switch scope {
	case ScopeGlobal:
		t.global = value
	case ScopeProject:
		if t.project == nil {
			t.project = map[string]map[string]any{}
		}
		t.project[scopeID] = value
	case ScopeTask:
		if t.task == nil {
			t.task = map[string]map[string]any{}
		}
		t.task[scopeID] = value
	}
}

func (t *tieredAny) resolve(taskID, projectID string) map[string]any {
	if t == nil {
		return nil
	}
	if v, ok := t.task[taskID]; ok {
		return v
	}
	if v, ok := t.project[projectID]; ok {
		return v
	}
	return t.global
}

func (t *tieredAny) clear(scope Scope, scopeID string) {
	switch scope {
	case ScopeGlobal:
		t.global = nil
	case ScopeProject:
		delete(t.project, scopeID)
	case ScopeTask:
		delete(t.task, scopeID)
	}
}

// overrideTable is the three-tier override store backing every Set*/Clear
// method on Engine (spec.md §6; SPEC_FULL.md §4 "Override scoping"). Set
// calls are validated against the manifest identities captured at
// construction time (known agent ids, tool ids, node/stage ids).
type overrideTable struct {
	mu sync.RWMutex

	knownAgents map[string]bool
	knownTools  map[string]bool
	knownNodes  map[string]bool

	agentModel       map[string]*tieredString
	agentHyperparams map[string]*tieredAny
	toolEnabled      map[string]*tieredBool
	nodeTimeout      map[string]*tieredDuration
	taskParameters   *tieredAny
}

func newOverrideTable(knownAgents, knownTools, knownNodes map[string]bool) *overrideTable {
	return &overrideTable{
		knownAgents:      knownAgents,
		knownTools:       knownTools,
		knownNodes:       knownNodes,
		agentModel:       map[string]*tieredString{},
		agentHyperparams: map[string]*tieredAny{},
		toolEnabled:      map[string]*tieredBool{},
		nodeTimeout:      map[string]*tieredDuration{},
		taskParameters:   &tieredAny{},
	}
}

func (o *overrideTable) validateScope(scope Scope) error {
	switch scope {
	case ScopeGlobal, ScopeProject, ScopeTask:
		return nil
	default:
		return errs.Validation(errs.SourceRuntime, "invalid_override_scope", "unknown override scope %q", scope)
	}
}

// SetAgentModel implements the `set_agent_model` override.
func (o *overrideTable) SetAgentModel(scope Scope, scopeID, agentID, model string) error {
	if err := o.validateScope(scope); err != nil {
		return err
	}
	if !o.knownAgents[agentID] {
		return errs.Validation(errs.SourceRuntime, "unknown_agent_id", "set_agent_model: unknown agent_id %q", agentID)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.agentModel[agentID]
	if !ok {
		t = &tieredString{}
		o.agentModel[agentID] = t
	}
	t.set(scope, scopeID, model)
	return nil
}

// SetAgentHyperparameters implements `set_agent_hyperparameters`.
func (o *overrideTable) SetAgentHyperparameters(scope Scope, scopeID, agentID string, params map[string]any) error {
	if err := o.validateScope(scope); err != nil {
		return err
	}
	if !o.knownAgents[agentID] {
		return errs.Validation(errs.SourceRuntime, "unknown_agent_id", "set_agent_hyperparameters: unknown agent_id %q", agentID)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.agentHyperparams[agentID]
	if !ok {
		t = &tieredAny{}
		o.agentHyperparams[agentID] = t
	}
	t.set(scope, scopeID, params)
	return nil
}

// EnableTool implements `enable_tool`.
func (o *overrideTable) EnableTool(scope Scope, scopeID, toolID string, enabled bool) error {
	if err := o.validateScope(scope); err != nil {
		return err
	}
	if !o.knownTools[toolID] {
		return errs.Validation(errs.SourceRuntime, "unknown_tool_id", "enable_tool: unknown tool_id %q", toolID)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.toolEnabled[toolID]
	if !ok {
		t = &tieredBool{}
		o.toolEnabled[toolID] = t
	}
	t.set(scope, scopeID, enabled)
	return nil
}

// SetNodeTimeout implements `set_node_timeout`.
func (o *overrideTable) SetNodeTimeout(scope Scope, scopeID, nodeOrToolID string, timeout time.Duration) error {
	if err := o.validateScope(scope); err != nil {
		return err
	}
	if !o.knownNodes[nodeOrToolID] && !o.knownTools[nodeOrToolID] {
		return errs.Validation(errs.SourceRuntime, "unknown_node_or_tool_id", "set_node_timeout: unknown node or tool id %q", nodeOrToolID)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.nodeTimeout[nodeOrToolID]
	if !ok {
		t = &tieredDuration{}
		o.nodeTimeout[nodeOrToolID] = t
	}
	t.set(scope, scopeID, timeout)
	return nil
}

// SetTaskParameters implements `set_task_parameters`: replaces the
// task/project/global-scoped bag at the given scope with params, a bag consulted when a run's Spec.Metadata is
// assembled.
func (o *overrideTable) SetTaskParameters(scope Scope, scopeID string, params map[string]any) error {
	if err := o.validateScope(scope); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.taskParameters.set(scope, scopeID, params)
	return nil
}

// ClearOverrides implements `clear_overrides`: removes every override
// entry recorded at the given scope/scopeID across all override kinds.
func (o *overrideTable) ClearOverrides(scope Scope, scopeID string) error {
	if err := o.validateScope(scope); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range o.agentModel {
		t.clear(scope, scopeID)
	}
	for _, t := range o.agentHyperparams {
		t.clear(scope, scopeID)
	}
	for _, t := range o.toolEnabled {
		t.clear(scope, scopeID)
	}
	for _, t := range o.nodeTimeout {
		t.clear(scope, scopeID)
	}
	o.taskParameters.clear(scope, scopeID)
	return nil
}

// ResolveAgentModel implements executor.AgentOverrideResolver.
func (o *overrideTable) ResolveAgentModel(agentID, taskID, projectID string) (string, map[string]any) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	model, _ := o.agentModel[agentID].resolve(taskID, projectID)
	hp := o.agentHyperparams[agentID].resolve(taskID, projectID)
	return model, hp
}

// Resolve implements tool.ParameterResolver: enable_tool + set_node_timeout
// overrides, resolved task > project > global, falling back to the tool's
// own declared timeout/enabled-by-default when no override is set.
func (o *overrideTable) Resolve(toolID, taskID, nodeID string, def tool.Definition) tool.DynamicParams {
	projectID := task.ProjectIDFromTaskID(taskID)

	o.mu.RLock()
	defer o.mu.RUnlock()

	enabled := true
	if v, ok := o.toolEnabled[toolID].resolve(taskID, projectID); ok {
		enabled = v
	}

	timeout := def.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if v, ok := o.nodeTimeout[toolID].resolve(taskID, projectID); ok {
		timeout = v
	}
	if v, ok := o.nodeTimeout[nodeID].resolve(taskID, projectID); ok {
		timeout = v
	}

	return tool.DynamicParams{Enabled: enabled, Timeout: timeout}
}

// taskParametersFor returns the effective merged task-parameter overrides
// for a not-yet-created task, consulted by Run before building the Spec.
func (o *overrideTable) taskParametersFor(taskID, projectID string) map[string]any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.taskParameters.resolve(taskID, projectID)
}
