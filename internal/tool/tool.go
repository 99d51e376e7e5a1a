// Package tool implements the tool runtime described in spec.md §4.6: a
// permissioned registry of ToolDefinitions dispatched either as a single
// node-attached tool or as a full agent-emitted ToolPlan. Grounded on
// original_source/runtime/tool_runtime.py, with handlers registered
// against a small Backend-style interface rather than a global map.
package tool

import "time"

// Kind classifies how a tool produces output.
type Kind string

const (
	KindDeterministic Kind = "deterministic"
	KindLLMTool       Kind = "llm_tool"
)

// Capability is a declared maximum permission a tool may exercise.
type Capability string

const (
	CapabilityDeterministicSafe Capability = "deterministic_safe"
	CapabilityWorkspaceMutation Capability = "workspace_mutation"
	CapabilityExternalNetwork   Capability = "external_network"
	CapabilityExpensive         Capability = "expensive"
)

// RiskLevel rates a tool for audit/policy purposes.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// StepKind classifies one step of an agent-emitted ToolPlan.
type StepKind string

const (
	StepRead    StepKind = "read"
	StepWrite   StepKind = "write"
	StepAnalyze StepKind = "analyze"
	StepTest    StepKind = "test"
)

// Definition is a tool's capabilities, permissions, and metadata (spec.md
// §4.6, "Two-Level Permission Model": the definition sets the ceiling, the
// node's tool whitelist further restricts which tools it may invoke).
type Definition struct {
	ToolID          string         `yaml:"tool_id" json:"tool_id"`
	Kind            Kind           `yaml:"kind" json:"kind"`
	Name            string         `yaml:"name" json:"name"`
	Description     string         `yaml:"description" json:"description"`
	InputsSchemaID  string         `yaml:"inputs_schema_id,omitempty" json:"inputs_schema_id,omitempty"`
	OutputsSchemaID string         `yaml:"outputs_schema_id,omitempty" json:"outputs_schema_id,omitempty"`
	Capabilities    []Capability   `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	RiskLevel       RiskLevel      `yaml:"risk_level,omitempty" json:"risk_level,omitempty"`
	Version         string         `yaml:"version,omitempty" json:"version,omitempty"`
	Metadata        map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	AllowNetwork    bool           `yaml:"allow_network,omitempty" json:"allow_network,omitempty"`
	AllowShell      bool           `yaml:"allow_shell,omitempty" json:"allow_shell,omitempty"`
	FilesystemRoot  string         `yaml:"filesystem_root,omitempty" json:"filesystem_root,omitempty"`
	Timeout         time.Duration  `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

func (d Definition) hasCapability(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Step is one entry in an agent-emitted ToolPlan.
type Step struct {
	StepID string   `json:"step_id"`
	ToolID string   `json:"tool_id"`
	Inputs any      `json:"inputs"`
	Reason string   `json:"reason,omitempty"`
	Kind   StepKind `json:"kind,omitempty"`
}

// Plan is the full set of tool invocations an agent requested for a node.
type Plan struct {
	PlanID string `json:"tool_plan_id"`
	Steps  []Step `json:"steps"`
}

// CallerFlags are the permission flags a caller (node/engine context)
// brings to a tool invocation; these are ANDed against what the tool
// definition declares (spec.md §4.6 step 3).
type CallerFlags struct {
	AllowNetwork         bool
	AllowShell           bool
	AllowWorkspaceMutation bool
	FilesystemRoot       string
}

// Handler executes a deterministic tool given resolved inputs.
type Handler func(inputs any) (any, error)
