// Package dag implements the workflow graph model: typed nodes, directed
// edges, adjacency indexes, and the invariant validator described in
// spec.md §3-4.1.
package dag

// Role classifies a node's position in the routing topology.
type Role string

const (
	RoleStart    Role = "START"
	RoleLinear   Role = "LINEAR"
	RoleDecision Role = "DECISION"
	RoleBranch   Role = "BRANCH"
	RoleSplit    Role = "SPLIT"
	RoleMerge    Role = "MERGE"
	RoleExit     Role = "EXIT"
)

// Kind classifies how a node produces its output.
type Kind string

const (
	KindDeterministic Kind = "DETERMINISTIC"
	KindAgent         Kind = "AGENT"
)

// Node is one vertex of the workflow DAG.
type Node struct {
	StageID       string   `yaml:"stage_id" json:"stage_id"`
	Role          Role     `yaml:"role" json:"role"`
	Kind          Kind     `yaml:"kind" json:"kind"`
	Context       string   `yaml:"context" json:"context"` // profile id, "global", or "none"
	AgentID       string   `yaml:"agent_id,omitempty" json:"agent_id,omitempty"`
	Tools         []string `yaml:"tools,omitempty" json:"tools,omitempty"`
	InputSchema   string   `yaml:"input_schema,omitempty" json:"input_schema,omitempty"`
	OutputSchema  string   `yaml:"output_schema,omitempty" json:"output_schema,omitempty"`
	DefaultStart  bool     `yaml:"default_start,omitempty" json:"default_start,omitempty"`
	AlwaysFail    bool     `yaml:"always_fail,omitempty" json:"always_fail,omitempty"`
}

// Edge is a directed connection between two nodes. Condition is consulted
// only when the edge's source node is a DECISION node.
type Edge struct {
	From      string `yaml:"from" json:"from"`
	To        string `yaml:"to" json:"to"`
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
}
