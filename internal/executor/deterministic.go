package executor

import (
	"github.com/antigravity-dev/agentengine/internal/dag"
	"github.com/antigravity-dev/agentengine/internal/task"
)

// DeterministicHandler produces the output of a DETERMINISTIC node given
// the task and current input.
type DeterministicHandler func(t task.Task, node dag.Node, input any) (any, error)

// DeterministicRegistry resolves a DETERMINISTIC node to its handler,
// first by exact stage_id, then by role, then falling back to an identity
// transform: a lookup table keyed by classification rather than a type
// switch, with two precedence levels per
// original_source/runtime/node_executor.py's _execute_deterministic_node.
type DeterministicRegistry struct {
	byStage map[string]DeterministicHandler
	byRole  map[dag.Role]DeterministicHandler
}

// NewDeterministicRegistry builds an empty registry.
func NewDeterministicRegistry() *DeterministicRegistry {
	return &DeterministicRegistry{
		byStage: map[string]DeterministicHandler{},
		byRole:  map[dag.Role]DeterministicHandler{},
	}
}

// RegisterStage binds a handler to one specific node by stage_id. Stage
// bindings take precedence over role bindings.
func (r *DeterministicRegistry) RegisterStage(stageID string, h DeterministicHandler) {
	r.byStage[stageID] = h
}

// RegisterRole binds a default handler for every node of the given role
// that has no stage-specific binding.
func (r *DeterministicRegistry) RegisterRole(role dag.Role, h DeterministicHandler) {
	r.byRole[role] = h
}

// Resolve returns the handler for node: stage_id binding, then role
// binding, then the identity transform (the node's output is its input
// unchanged — the original's behavior for a DETERMINISTIC node with no
// registered implementation, e.g. a passthrough MERGE or EXIT node).
func (r *DeterministicRegistry) Resolve(node dag.Node) DeterministicHandler {
	if h, ok := r.byStage[node.StageID]; ok {
		return h
	}
	if h, ok := r.byRole[node.Role]; ok {
		return h
	}
	return identityHandler
}

func identityHandler(_ task.Task, _ dag.Node, input any) (any, error) {
	return input, nil
}
