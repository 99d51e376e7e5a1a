package tool

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/agentengine/internal/errs"
	"github.com/antigravity-dev/agentengine/internal/task"
	"github.com/antigravity-dev/agentengine/internal/telemetry"
)

// Registry resolves tool ids to their Definition and Handler: a small
// interface collaborators register against, rather than a global map.
type Registry struct {
	defs     map[string]Definition
	handlers map[string]Handler
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: map[string]Definition{}, handlers: map[string]Handler{}}
}

// Register adds a tool definition and its handler.
func (r *Registry) Register(def Definition, h Handler) {
	r.defs[def.ToolID] = def
	r.handlers[def.ToolID] = h
}

// Lookup returns the Definition and Handler for toolID, or false if unknown.
func (r *Registry) Lookup(toolID string) (Definition, Handler, bool) {
	def, ok := r.defs[toolID]
	if !ok {
		return Definition{}, nil, false
	}
	return def, r.handlers[toolID], true
}

// DynamicParams is the resolved enabled/timeout pair for one tool
// invocation, after applying the task>project>global override precedence
// (spec.md §4.6 step 2, SPEC_FULL.md §4 "Override scoping").
type DynamicParams struct {
	Enabled bool
	Timeout time.Duration
}

// ParameterResolver resolves per-invocation dynamic parameters. The engine
// façade supplies the concrete implementation backed by its three-tier
// override table; the tool runtime only consumes the narrow interface.
type ParameterResolver interface {
	Resolve(toolID, taskID, nodeID string, def Definition) DynamicParams
}

// staticResolver is the zero-configuration ParameterResolver: every tool is
// enabled with its own declared timeout. Used when no override table is
// wired (e.g. in tests or a minimal engine configuration).
type staticResolver struct{}

func (staticResolver) Resolve(_, _, _ string, def Definition) DynamicParams {
	timeout := def.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return DynamicParams{Enabled: true, Timeout: timeout}
}

// Runtime executes tool invocations on behalf of nodes, implementing the
// permission gate, policy gate, timeout-wrapped handler execution, and
// telemetry emission described in spec.md §4.6. Grounded step-for-step on
// original_source/runtime/tool_runtime.py's run_tool_stage and
// execute_tool_plan.
type Runtime struct {
	Registry *Registry
	Policy   PolicyEvaluator
	Params   ParameterResolver
	Bus      *telemetry.Bus
}

// NewRuntime builds a Runtime. policy and params may be nil: a nil policy
// allows every invocation, a nil params resolver falls back to
// staticResolver (every registered tool enabled at its own timeout).
func NewRuntime(reg *Registry, policy PolicyEvaluator, params ParameterResolver, bus *telemetry.Bus) *Runtime {
	if params == nil {
		params = staticResolver{}
	}
	return &Runtime{Registry: reg, Policy: policy, Params: params, Bus: bus}
}

// RunToolStage executes the single tool bound directly to a node (the
// node-attached-tool path, as opposed to an agent-emitted ToolPlan).
func (rt *Runtime) RunToolStage(ctx context.Context, toolID string, inputs any, taskID, nodeID string, nodeTools []string, caller CallerFlags) (task.ToolCall, error) {
	return rt.invoke(ctx, Step{StepID: nodeID, ToolID: toolID, Inputs: inputs}, taskID, nodeID, nodeTools, caller)
}

// ExecuteToolPlan runs every step of an agent-emitted Plan in order,
// halting on the first step that fails the tool-category, permission, or
// policy gates. Steps that succeed are recorded even if a later step
// halts the plan, matching the original runtime's "partial plan execution
// is visible in the history" behavior.
func (rt *Runtime) ExecuteToolPlan(ctx context.Context, plan Plan, taskID, nodeID string, nodeTools []string, caller CallerFlags) ([]task.ToolCall, error) {
	calls := make([]task.ToolCall, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		call, err := rt.invoke(ctx, step, taskID, nodeID, nodeTools, caller)
		calls = append(calls, call)
		if err != nil {
			return calls, err
		}
	}
	return calls, nil
}

func (rt *Runtime) invoke(ctx context.Context, step Step, taskID, nodeID string, nodeTools []string, caller CallerFlags) (task.ToolCall, error) {
	call := task.ToolCall{
		CallID:    uuid.NewString(),
		ToolID:    step.ToolID,
		Inputs:    step.Inputs,
		StartedAt: time.Now().UTC(),
	}

	def, handler, ok := rt.Registry.Lookup(step.ToolID)
	if !ok {
		err := errs.Tool(errs.SourceToolRuntime, "unknown-tool", "tool %q is not registered", step.ToolID).WithTask(taskID).WithStage(nodeID)
		return rt.fail(ctx, call, taskID, nodeID, err)
	}

	params := rt.Params.Resolve(step.ToolID, taskID, nodeID, def)
	if !params.Enabled {
		call.CompletedAt = time.Now().UTC()
		call.Metadata = map[string]any{"skipped": true, "reason": "disabled_by_override"}
		return call, nil
	}

	if err := CheckPermission(def, nodeTools, caller); err != nil {
		return rt.fail(ctx, call, taskID, nodeID, err.WithTask(taskID).WithStage(nodeID))
	}

	if rt.Policy != nil {
		if decision, reason := rt.Policy.Evaluate(PolicyContext{
			ToolID: step.ToolID, NodeID: nodeID, TaskID: taskID, RiskLevel: def.RiskLevel, Inputs: step.Inputs,
		}); decision == PolicyDeny {
			err := errs.Security(errs.SourceToolRuntime, "policy-denied", "policy denied tool %q: %s", step.ToolID, reason).WithTask(taskID).WithStage(nodeID)
			rt.emit(ctx, "tool_failed", taskID, nodeID, step.ToolID, map[string]any{"reason": reason})
			return rt.fail(ctx, call, taskID, nodeID, err)
		}
	}

	rt.emit(ctx, "tool_invoked", taskID, nodeID, step.ToolID, nil)

	output, err := rt.runWithTimeout(ctx, handler, step.Inputs, params.Timeout)
	call.CompletedAt = time.Now().UTC()
	if err != nil {
		wrapped := errs.Wrap(errs.CategoryTool, errs.SourceToolRuntime, "tool-execution-failed", err).WithTask(taskID).WithStage(nodeID)
		return rt.fail(ctx, call, taskID, nodeID, wrapped)
	}

	call.Output = output
	rt.emit(ctx, "tool_completed", taskID, nodeID, step.ToolID, nil)
	return call, nil
}

func (rt *Runtime) fail(ctx context.Context, call task.ToolCall, taskID, nodeID string, err error) (task.ToolCall, error) {
	call.CompletedAt = time.Now().UTC()
	call.Error = err.Error()
	rt.emit(ctx, "tool_failed", taskID, nodeID, call.ToolID, map[string]any{"error": err.Error()})
	return call, err
}

func (rt *Runtime) emit(ctx context.Context, name, taskID, nodeID, toolID string, extra map[string]any) {
	if rt.Bus == nil {
		return
	}
	payload := map[string]any{"tool_id": toolID}
	for k, v := range extra {
		payload[k] = v
	}
	rt.Bus.Emit(ctx, telemetry.TypeTool, name, taskID, nodeID, payload)
}

// runWithTimeout replaces the Python original's threading+TimeoutError
// mechanism (_execute_with_timeout) with context.WithTimeout plus a
// goroutine: the handler runs to completion in the background even past a
// timeout (Go has no safe way to kill a goroutine), but the caller stops
// waiting and reports a timeout error once the deadline expires.
func (rt *Runtime) runWithTimeout(ctx context.Context, h Handler, inputs any, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		return h(inputs)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out any
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := h(inputs)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
