// Package task owns Task lifecycle, lineage, execution history, and
// checkpoint persistence (spec.md §3, §4.2).
package task

import "time"

// Mode tags the purpose of a run request.
type Mode string

const (
	ModeAnalysisOnly Mode = "analysis_only"
	ModeImplement    Mode = "implement"
	ModeReview       Mode = "review"
	ModeDryRun       Mode = "dry_run"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// LineageType tags how a task came to exist.
type LineageType string

const (
	LineageRoot    LineageType = "root"
	LineageClone   LineageType = "clone"
	LineageSubtask LineageType = "subtask"
)

// Spec is the immutable input describing a run request (spec.md §3,
// "TaskSpec").
type Spec struct {
	SpecID   string         `json:"spec_id"`
	Request  any            `json:"request"`
	Mode     Mode           `json:"mode"`
	Priority int            `json:"priority"`
	Metadata map[string]any `json:"metadata"`
}

// ProjectID returns the project id bound to this spec's metadata, or
// "default" if absent.
func (s Spec) ProjectID() string {
	if s.Metadata == nil {
		return "default"
	}
	if v, ok := s.Metadata["project_id"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "default"
}

// Lineage tracks how a Task relates to its parent and children. Modeled as
// a tagged variant per spec.md §9 ("From mutable graphs to tagged
// variants + indices") rather than cross-referencing pointers.
type Lineage struct {
	Type           LineageType    `json:"lineage_type"`
	ParentTaskID   string         `json:"parent_task_id,omitempty"`
	ChildTaskIDs   []string       `json:"child_task_ids,omitempty"`
	LineageMetadata map[string]any `json:"lineage_metadata,omitempty"`
}

// StageExecutionRecord is one append-only entry in a Task's history
// (spec.md §3).
type StageExecutionRecord struct {
	NodeID            string         `json:"node_id"`
	NodeRole          string         `json:"node_role"`
	NodeKind          string         `json:"node_kind"`
	Input             any            `json:"input"`
	Output            any            `json:"output"`
	Error             any            `json:"error,omitempty"`
	NodeStatus        string         `json:"node_status"`
	ToolPlan          any            `json:"tool_plan,omitempty"`
	ToolCalls         []ToolCall     `json:"tool_calls,omitempty"`
	ContextProfileID  string         `json:"context_profile_id,omitempty"`
	ContextMetadata   map[string]any `json:"context_metadata,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	CompletedAt       time.Time      `json:"completed_at"`
}

// ToolCall records one invocation made during a node's tool plan.
type ToolCall struct {
	CallID      string         `json:"call_id"`
	ToolID      string         `json:"tool_id"`
	Inputs      any            `json:"inputs"`
	Output      any            `json:"output"`
	Error       any            `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Task is the mutable run instance (spec.md §3).
type Task struct {
	TaskID        string                 `json:"task_id"`
	Spec          Spec                   `json:"spec"`
	Status        Status                 `json:"status"`
	CurrentNodeID string                 `json:"current_node_id"`
	CurrentOutput any                    `json:"current_output"`
	History       []StageExecutionRecord `json:"history"`
	Lineage       Lineage                `json:"lineage"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// Clone returns a deep-enough copy of a Task suitable for checkpoint
// round-tripping comparisons; slices/maps are not aliased with the
// original.
func (t Task) Clone() Task {
	cp := t
	cp.History = append([]StageExecutionRecord(nil), t.History...)
	cp.Lineage.ChildTaskIDs = append([]string(nil), t.Lineage.ChildTaskIDs...)
	if t.Lineage.LineageMetadata != nil {
		md := make(map[string]any, len(t.Lineage.LineageMetadata))
		for k, v := range t.Lineage.LineageMetadata {
			md[k] = v
		}
		cp.Lineage.LineageMetadata = md
	}
	return cp
}
