// Package agent implements the agent runtime described in spec.md §4.7:
// prompt assembly from a node/task/context package, dispatch to an
// LLMClient, and ToolPlan extraction from the model's structured response.
// Grounded on original_source/runtime/agent_runtime.py's AgentRuntime.
package agent

import (
	"context"
	"encoding/json"

	"github.com/antigravity-dev/agentengine/internal/manifest"
	"github.com/antigravity-dev/agentengine/internal/tool"
)

// ToolDefinitionSummary is the minimal tool description surfaced to an
// agent's prompt (original: `{'tool_id': ..., 'description': ...}`).
type ToolDefinitionSummary struct {
	ToolID      string `json:"tool_id"`
	Description string `json:"description"`
}

// Prompt is the structured request sent to an LLMClient. Field set
// mirrors spec.md §4.7's listed prompt contents exactly: template
// version, node metadata, task spec, context items, tool defs, output
// schema id.
type Prompt struct {
	TemplateVersion string                  `json:"template_version"`
	AgentStage      string                  `json:"agent_stage"`
	TaskMode        string                  `json:"task_mode,omitempty"`
	TaskRequest     any                     `json:"task_request"`
	Context         []any                   `json:"context"`
	Tools           []ToolDefinitionSummary `json:"tools,omitempty"`
	SchemaID        string                  `json:"schema_id,omitempty"`
	Instructions    string                  `json:"instructions,omitempty"`
	Model           string                  `json:"model,omitempty"`
	Hyperparameters map[string]any          `json:"hyperparameters,omitempty"`
}

// Response is what an LLMClient returns: the raw model message only. The
// structured result is not stored here; ParseResponse splits
// main_result/tool_plan out of Raw.
type Response struct {
	Raw string `json:"raw"`
}

// LLMClient dispatches a Prompt to a language model and returns its raw
// text or JSON response.
type LLMClient interface {
	Generate(ctx context.Context, prompt Prompt) (Response, error)
}

// toolAwareInstructions is emitted verbatim when a node has tools
// available, instructing the agent to emit both main_result and
// tool_plan keys (original_source/runtime/agent_runtime.py's
// _build_tool_aware_prompt instructions string).
const toolAwareInstructions = `When tools are available, emit JSON with both "main_result" and "tool_plan" keys. ToolPlan format: {"steps": [{"tool_id": "...", "inputs": {...}, "reason": "...", "kind": "..."}]}`

// NodeInfo is the subset of dag.Node fields the agent runtime needs,
// kept narrow to avoid an import cycle between internal/agent and
// internal/dag (the executor passes these through from the real Node).
type NodeInfo struct {
	StageID         string
	Role            string
	Tools           []string
	OutputsSchemaID string
	AgentID         string

	// Model and Hyperparameters carry a resolved override (SPEC_FULL.md §4
	// "Override scoping"), set by the caller after consulting the engine's
	// task>project>global override table; zero values mean "no override,
	// use the LLMClient's own default".
	Model           string
	Hyperparameters map[string]any
}

// TaskInfo is the subset of task.Task fields the agent runtime needs.
type TaskInfo struct {
	Mode          string
	Request       any
	CurrentOutput any
}

// BuildPrompt assembles the Prompt for a node, switching to the
// tool-aware variant when the node declares tools (original_source's
// node.tools truthiness check).
func BuildPrompt(templateVersion string, task TaskInfo, node NodeInfo, contextItems []any) Prompt {
	if len(node.Tools) > 0 {
		return buildToolAwarePrompt(templateVersion, task, node, contextItems)
	}
	return Prompt{
		TemplateVersion: templateVersion,
		AgentStage:      node.StageID,
		TaskMode:        task.Mode,
		TaskRequest:     task.Request,
		Context:         contextItems,
		SchemaID:        node.OutputsSchemaID,
		Model:           node.Model,
		Hyperparameters: node.Hyperparameters,
	}
}

func buildToolAwarePrompt(templateVersion string, task TaskInfo, node NodeInfo, contextItems []any) Prompt {
	defs := make([]ToolDefinitionSummary, 0, len(node.Tools))
	for _, id := range node.Tools {
		defs = append(defs, ToolDefinitionSummary{ToolID: id, Description: "Tool " + id + " available for use"})
	}
	return Prompt{
		TemplateVersion: templateVersion,
		AgentStage:      node.StageID,
		TaskMode:        task.Mode,
		TaskRequest:     task.Request,
		Context:         contextItems,
		Tools:           defs,
		SchemaID:        node.OutputsSchemaID,
		Instructions:    toolAwareInstructions,
		Model:           node.Model,
		Hyperparameters: node.Hyperparameters,
	}
}

// ParseResponse splits an LLM response into its main result and an
// optional tool.Plan, mirroring the original's "parse output to extract
// tool_plan if present" logic: a JSON object carrying both "main_result"
// and "tool_plan" keys is split; anything else passes through unchanged.
// A response that is a JSON string is parsed into its decoded value
// first; non-JSON text is returned as a literal string.
func ParseResponse(raw string) (mainResult any, plan *tool.Plan) {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return raw, nil
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		return decoded, nil
	}
	rawPlan, hasPlan := obj["tool_plan"]
	rawMain, hasMain := obj["main_result"]
	if !hasPlan || !hasMain {
		return decoded, nil
	}

	planBytes, err := json.Marshal(rawPlan)
	if err != nil {
		return rawMain, nil
	}
	var p tool.Plan
	if err := json.Unmarshal(planBytes, &p); err != nil {
		return rawMain, nil
	}
	return rawMain, &p
}

// Runtime wires prompt assembly to an LLMClient and validates the
// extracted main result against the node's output schema.
type Runtime struct {
	Client          LLMClient
	TemplateVersion string
	Validator       manifest.SchemaValidator
}

// NewRuntime builds a Runtime. client may be nil only if callers never
// invoke RunAgentStage on a node that requires model output (the
// deterministic fallback.Client should be wired instead of a nil client
// in practice — see internal/agent/fallback).
func NewRuntime(client LLMClient, templateVersion string, validator manifest.SchemaValidator) *Runtime {
	if validator == nil {
		validator = manifest.NoopValidator{}
	}
	return &Runtime{Client: client, TemplateVersion: templateVersion, Validator: validator}
}

// RunAgentStage executes one AGENT node: assemble prompt, call the LLM,
// split main_result/tool_plan, validate main_result against the node's
// output schema. Returns (output, toolPlan, error) mirroring the
// original's 3-tuple.
func (r *Runtime) RunAgentStage(ctx context.Context, task TaskInfo, node NodeInfo, contextItems []any) (any, *tool.Plan, error) {
	prompt := BuildPrompt(r.TemplateVersion, task, node, contextItems)

	resp, err := r.Client.Generate(ctx, prompt)
	if err != nil {
		return nil, nil, err
	}

	mainResult, plan := ParseResponse(resp.Raw)

	if node.OutputsSchemaID != "" {
		validated, err := r.Validator.Validate(node.OutputsSchemaID, mainResult)
		if err != nil {
			return nil, nil, err
		}
		return validated, plan, nil
	}
	return mainResult, plan, nil
}
