// Package executor implements the five-step node execution lifecycle
// described in spec.md §4.8: validate input, assemble context, dispatch
// by node kind, validate output, assemble the StageExecutionRecord.
// Grounded step-for-step on original_source/runtime/node_executor.py's
// NodeExecutor.execute_node, structured as named phases (one per lifecycle
// step) rather than an unbroken function body.
package executor

import (
	"context"
	"time"

	"github.com/antigravity-dev/agentengine/internal/agent"
	ctxpkg "github.com/antigravity-dev/agentengine/internal/context"
	"github.com/antigravity-dev/agentengine/internal/dag"
	"github.com/antigravity-dev/agentengine/internal/errs"
	"github.com/antigravity-dev/agentengine/internal/manifest"
	"github.com/antigravity-dev/agentengine/internal/task"
	"github.com/antigravity-dev/agentengine/internal/telemetry"
	"github.com/antigravity-dev/agentengine/internal/tool"
)

// decisionMaker is implemented by internal/agent/fallback.Client. When an
// AGENT node's wired LLMClient supports this interface, the executor skips
// BuildPrompt/Generate/ParseResponse (spec.md §4.7's deterministic
// fallback short-circuit): a DECISION-role node gets {"condition": Decide(...)}
// and any other node passes the task's current output through.
type decisionMaker interface {
	Decide(currentOutput any) string
}

// AgentOverrideResolver resolves an AGENT node's effective model and
// hyperparameters after applying the engine's task>project>global override
// table (SPEC_FULL.md §4 "Override scoping"). A zero-value return means
// "no override for this agent/task/project", leaving the LLMClient's own
// default in effect.
type AgentOverrideResolver interface {
	ResolveAgentModel(agentID, taskID, projectID string) (model string, hyperparameters map[string]any)
}

// Executor runs one node of a Task's DAG to completion, producing an
// append-only StageExecutionRecord regardless of whether the node
// succeeds or fails at any of its five steps.
type Executor struct {
	ContextAssembler *ctxpkg.Assembler
	AgentRuntime     *agent.Runtime
	ToolRuntime      *tool.Runtime
	Deterministic    *DeterministicRegistry
	Validator        manifest.SchemaValidator
	Bus              *telemetry.Bus
	CallerFlags      tool.CallerFlags
	AgentOverrides   AgentOverrideResolver
}

// WithAgentOverrides wires the engine's agent-model/hyperparameter override
// table into the executor (nil is a valid no-override default).
func (ex *Executor) WithAgentOverrides(r AgentOverrideResolver) *Executor {
	ex.AgentOverrides = r
	return ex
}

// New builds an Executor. validator may be nil (schema steps are skipped
// for nodes that don't declare a schema id regardless); deterministic may
// be nil, in which case every DETERMINISTIC node falls back to the
// identity transform.
func New(assembler *ctxpkg.Assembler, agentRT *agent.Runtime, toolRT *tool.Runtime, deterministic *DeterministicRegistry, validator manifest.SchemaValidator, bus *telemetry.Bus, caller tool.CallerFlags) *Executor {
	if deterministic == nil {
		deterministic = NewDeterministicRegistry()
	}
	if validator == nil {
		validator = manifest.NoopValidator{}
	}
	return &Executor{
		ContextAssembler: assembler,
		AgentRuntime:     agentRT,
		ToolRuntime:      toolRT,
		Deterministic:    deterministic,
		Validator:        validator,
		Bus:              bus,
		CallerFlags:      caller,
	}
}

// ExecuteNode runs the full lifecycle for node against t's current output,
// returning a StageExecutionRecord whose NodeStatus is always either
// COMPLETED or FAILED — errors at any step are wrapped into the record
// rather than returned to the caller (original's _create_error_record
// policy: "every failure is visible in history, nothing is raised").
func (ex *Executor) ExecuteNode(ctx context.Context, t task.Task, node dag.Node) task.StageExecutionRecord {
	rec := task.StageExecutionRecord{
		NodeID:    node.StageID,
		NodeRole:  string(node.Role),
		NodeKind:  string(node.Kind),
		Input:     t.CurrentOutput,
		StartedAt: time.Now().UTC(),
	}
	ex.emit(ctx, "stage_started", t.TaskID, node.StageID, nil)

	// Phase 1: validate input against node.InputSchema, if declared.
	if node.InputSchema != "" {
		if _, err := ex.Validator.Validate(node.InputSchema, t.CurrentOutput); err != nil {
			return ex.fail(ctx, rec, t.TaskID, node.StageID, errs.Wrap(errs.CategoryValidation, errs.SourceNodeExecutor, "input-schema-invalid", err))
		}
	}

	// Phase 2: assemble context for the node's declared selector.
	contextItems, err := ex.assembleContext(t, node, &rec)
	if err != nil {
		return ex.fail(ctx, rec, t.TaskID, node.StageID, err)
	}

	// Phase 3: dispatch by node kind (agent vs. deterministic), then run
	// any resulting tool plan.
	output, plan, err := ex.dispatch(ctx, t, node, contextItems)
	rec.ToolPlan = plan
	if err != nil {
		rec.Output = output
		return ex.fail(ctx, rec, t.TaskID, node.StageID, err)
	}

	if plan != nil && len(node.Tools) > 0 {
		calls, toolErr := ex.ToolRuntime.ExecuteToolPlan(ctx, *plan, t.TaskID, node.StageID, node.Tools, ex.CallerFlags)
		rec.ToolCalls = calls
		if toolErr != nil {
			rec.Output = output
			return ex.fail(ctx, rec, t.TaskID, node.StageID, toolErr)
		}
	}

	// Phase 4: validate output against node.OutputSchema, if declared.
	if node.OutputSchema != "" {
		validated, verr := ex.Validator.Validate(node.OutputSchema, output)
		if verr != nil {
			rec.Output = output
			return ex.fail(ctx, rec, t.TaskID, node.StageID, errs.Wrap(errs.CategoryValidation, errs.SourceNodeExecutor, "output-schema-invalid", verr))
		}
		output = validated
	}

	// Phase 5: assemble the completed record.
	rec.Output = output
	rec.NodeStatus = string(task.StatusCompleted)
	rec.CompletedAt = time.Now().UTC()
	ex.emit(ctx, "stage_completed", t.TaskID, node.StageID, nil)
	return rec
}

func (ex *Executor) assembleContext(t task.Task, node dag.Node, rec *task.StageExecutionRecord) ([]any, error) {
	if ex.ContextAssembler == nil {
		return nil, nil
	}
	pkg, err := ex.ContextAssembler.Build(t, node.Context)
	if err != nil {
		return nil, errs.Wrap(errs.CategoryUnknown, errs.SourceNodeExecutor, "context-assembly-failed", err)
	}
	if pkg == nil {
		return nil, nil
	}
	rec.ContextProfileID = pkg.ID
	rec.ContextMetadata = map[string]any{
		"compression_ratio": pkg.CompressionRatio,
		"item_count":        len(pkg.Items),
	}
	items := make([]any, 0, len(pkg.Items))
	for _, it := range pkg.Items {
		items = append(items, it.Payload)
	}
	return items, nil
}

func (ex *Executor) dispatch(ctx context.Context, t task.Task, node dag.Node, contextItems []any) (any, *tool.Plan, error) {
	switch node.Kind {
	case dag.KindAgent:
		return ex.executeAgentNode(ctx, t, node, contextItems)
	default:
		out, err := ex.executeDeterministicNode(t, node)
		return out, nil, err
	}
}

func (ex *Executor) executeAgentNode(ctx context.Context, t task.Task, node dag.Node, contextItems []any) (any, *tool.Plan, error) {
	if ex.AgentRuntime == nil {
		return nil, nil, errs.Agent(errs.SourceNodeExecutor, "no-agent-runtime", "node %q requires an agent runtime, none is wired", node.StageID)
	}

	if dm, ok := ex.AgentRuntime.Client.(decisionMaker); ok {
		if node.Role == dag.RoleDecision {
			decision := dm.Decide(t.CurrentOutput)
			return map[string]any{"condition": decision}, nil, nil
		}
		return t.CurrentOutput, nil, nil
	}

	ni := agent.NodeInfo{StageID: node.StageID, Role: string(node.Role), Tools: node.Tools, OutputsSchemaID: node.OutputSchema, AgentID: node.AgentID}
	if ex.AgentOverrides != nil && node.AgentID != "" {
		ni.Model, ni.Hyperparameters = ex.AgentOverrides.ResolveAgentModel(node.AgentID, t.TaskID, t.Spec.ProjectID())
	}
	ti := agent.TaskInfo{Mode: string(t.Spec.Mode), Request: t.Spec.Request, CurrentOutput: t.CurrentOutput}
	out, plan, err := ex.AgentRuntime.RunAgentStage(ctx, ti, ni, contextItems)
	if err != nil {
		return out, plan, errs.Wrap(errs.CategoryAgent, errs.SourceNodeExecutor, "agent-stage-failed", err).WithTask(t.TaskID).WithStage(node.StageID)
	}
	return out, plan, nil
}

func (ex *Executor) executeDeterministicNode(t task.Task, node dag.Node) (any, error) {
	h := ex.Deterministic.Resolve(node)
	out, err := h(t, node, t.CurrentOutput)
	if err != nil {
		return out, errs.Wrap(errs.CategoryUnknown, errs.SourceNodeExecutor, "deterministic-stage-failed", err).WithTask(t.TaskID).WithStage(node.StageID)
	}
	return out, nil
}

func (ex *Executor) fail(ctx context.Context, rec task.StageExecutionRecord, taskID, stageID string, err error) task.StageExecutionRecord {
	rec.NodeStatus = string(task.StatusFailed)
	rec.Error = err.Error()
	rec.CompletedAt = time.Now().UTC()
	ex.emit(ctx, "stage_failed", taskID, stageID, map[string]any{"error": err.Error()})
	return rec
}

func (ex *Executor) emit(ctx context.Context, name, taskID, stageID string, extra map[string]any) {
	if ex.Bus == nil {
		return
	}
	ex.Bus.Emit(ctx, telemetry.TypeStage, name, taskID, stageID, extra)
}
