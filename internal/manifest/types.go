package manifest

import (
	ctxpkg "github.com/antigravity-dev/agentengine/internal/context"
	"github.com/antigravity-dev/agentengine/internal/dag"
	"github.com/antigravity-dev/agentengine/internal/tool"
)

// Manifest is the fully decoded configuration directory (spec.md §6): the
// three required manifests plus every optional one, and the schemas/
// registry built separately via NewJSONSchemaRegistry: one typed tree per
// concern, decoded from a single directory, following
// original_source/manifest_loader.py's required-vs-optional file split.
type Manifest struct {
	Workflow    WorkflowManifest
	Agents      AgentsManifest
	Tools       ToolsManifest
	Memory      MemoryManifest
	Plugins     PluginsManifest
	Policies    PoliciesManifest
	Metrics     MetricsManifest
	Credentials CredentialsManifest
	Scheduler   SchedulerManifest
	Evaluations EvaluationsManifest
}

// WorkflowManifest is workflow.yaml (required): the node set and edge list
// that build the DAG (spec.md §3-4.1).
type WorkflowManifest struct {
	Nodes []dag.Node `yaml:"nodes"`
	Edges []dag.Edge `yaml:"edges"`
}

// AgentDefinition describes one agent identity available to AGENT-kind
// nodes (spec.md §6: "an agents manifest (list of agent definitions each
// with an id, kind `agent`, llm provider id, optional config)").
type AgentDefinition struct {
	AgentID    string         `yaml:"agent_id"`
	Kind       string         `yaml:"kind"`
	ProviderID string         `yaml:"llm_provider_id"`
	Model      string         `yaml:"model,omitempty"`
	Config     map[string]any `yaml:"config,omitempty"`
}

// AgentsManifest is agents.yaml (required).
type AgentsManifest struct {
	Agents []AgentDefinition `yaml:"agents"`
}

// ToolsManifest is tools.yaml (required): tool.Definition already carries
// yaml tags matching spec.md §3's ToolDefinition field set.
type ToolsManifest struct {
	Tools []tool.Definition `yaml:"tools"`
}

// TierBackendConfig selects and configures a memory tier's storage
// backend (spec.md §4.3 lists three interchangeable backends: in-memory,
// append-only file log, and embedded SQLite).
type TierBackendConfig struct {
	Backend string `yaml:"backend"` // "inmem" | "filelog" | "sqlite"
	Path    string `yaml:"path,omitempty"`
}

// MemoryManifest is memory.yaml (optional): per-tier backend selection
// plus the named context profiles nodes reference via their `context`
// selector (spec.md §4.4).
type MemoryManifest struct {
	Task            TierBackendConfig       `yaml:"task"`
	Project         TierBackendConfig       `yaml:"project"`
	Global          TierBackendConfig       `yaml:"global"`
	ContextProfiles []ctxpkg.Profile        `yaml:"context_profiles"`
}

// PluginConfig names one telemetry plugin to activate and its
// configuration. Go has no dynamic module-import equivalent to the
// original runtime's `importlib.import_module` (original_source's
// plugin_loader.py); plugins are instead resolved by id against a
// compiled-in registry (see plugin.go), a closed-set-of-adapters pattern
// matching how this codebase resolves other pluggable backends.
type PluginConfig struct {
	ID      string         `yaml:"id"`
	Enabled bool           `yaml:"enabled"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// PluginsManifest is plugins.yaml (optional).
type PluginsManifest struct {
	Plugins []PluginConfig `yaml:"plugins"`
}

// PolicyRule is one declarative policy-gate rule (spec.md §6, "policies
// manifest"; spec.md §4.6 step 4's "policy gate"). A rule matches when
// both ToolIDs (if non-empty) and MinRiskLevel (if set) are satisfied.
// Rules are evaluated in order and the first matching deny wins; a
// matching allow does not stop a later rule from denying.
type PolicyRule struct {
	Name         string        `yaml:"name"`
	ToolIDs      []string      `yaml:"tool_ids,omitempty"`
	MinRiskLevel tool.RiskLevel `yaml:"min_risk_level,omitempty"`
	Decision     tool.PolicyDecision `yaml:"decision"`
	Reason       string        `yaml:"reason,omitempty"`
}

// PoliciesManifest is policies.yaml (optional).
type PoliciesManifest struct {
	Rules []PolicyRule `yaml:"rules"`
}

// MetricConfig names one metric to collect, grounded on
// original_source/metrics_loader.py's MetricConfig.
type MetricConfig struct {
	Name        string            `yaml:"name"`
	Type        string            `yaml:"type"` // "counter" | "timer" | "gauge"
	Enabled     bool              `yaml:"enabled"`
	Tags        map[string]string `yaml:"tags,omitempty"`
	Description string            `yaml:"description,omitempty"`
}

// MetricsProfile groups a named, independently toggleable set of metrics.
type MetricsProfile struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Enabled     bool           `yaml:"enabled"`
	Metrics     []MetricConfig `yaml:"metrics"`
}

// MetricsManifest is metrics.yaml (optional).
type MetricsManifest struct {
	Profiles []MetricsProfile `yaml:"profiles"`
}

// CredentialAuth describes how one provider credential's secret value is
// obtained, grounded on original_source/credential_loader.py's AuthConfig
// ("v1 only supports api_key" read from env or a file).
type CredentialAuth struct {
	Type    string `yaml:"type"` // "api_key" (only supported value, matching original_source v1)
	Source  string `yaml:"source"` // "env" | "file"
	EnvVar  string `yaml:"env_var,omitempty"`
	FilePath string `yaml:"file_path,omitempty"`
	FileKey string `yaml:"file_key,omitempty"`
}

// ProviderCredential binds an llm provider id to an auth source.
type ProviderCredential struct {
	ID       string          `yaml:"id"`
	Provider string          `yaml:"provider"`
	Auth     CredentialAuth  `yaml:"auth"`
	Config   map[string]any  `yaml:"config,omitempty"`
}

// CredentialsManifest is provider_credentials.yaml (optional).
type CredentialsManifest struct {
	ProviderCredentials []ProviderCredential `yaml:"provider_credentials"`
}

// ScheduleEntry is one recurring-enqueue definition for the optional
// queued execution driver (spec.md §4.10; SPEC_FULL.md §2's
// robfig/cron wiring).
type ScheduleEntry struct {
	ID      string `yaml:"id"`
	Cron    string `yaml:"cron"`
	Input   any    `yaml:"input"`
	Enabled bool   `yaml:"enabled"`
}

// SchedulerManifest is scheduler.yaml (optional).
type SchedulerManifest struct {
	Entries []ScheduleEntry `yaml:"entries"`
}

// AssertionType is the kind of check an evaluation assertion performs,
// grounded on original_source/schemas/evaluation.py's AssertionType enum.
type AssertionType string

const (
	AssertionEquals      AssertionType = "equals"
	AssertionContains    AssertionType = "contains"
	AssertionSchemaValid AssertionType = "schema_valid"
	AssertionStatus      AssertionType = "status"
)

// Assertion is one check against an evaluation run's result.
type Assertion struct {
	Type      AssertionType `yaml:"type"`
	Expected  any           `yaml:"expected,omitempty"`
	FieldPath string        `yaml:"field_path,omitempty"`
	Message   string        `yaml:"message,omitempty"`
}

// EvaluationCase is one regression test case: an input to run through the
// engine plus assertions about the result.
type EvaluationCase struct {
	ID          string      `yaml:"id"`
	Description string      `yaml:"description,omitempty"`
	Input       any         `yaml:"input"`
	StartNodeID string      `yaml:"start_node_id,omitempty"`
	Assertions  []Assertion `yaml:"assertions"`
	Tags        []string    `yaml:"tags,omitempty"`
	Enabled     bool        `yaml:"enabled"`
}

// EvaluationSuite groups related evaluation cases.
type EvaluationSuite struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	Cases       []EvaluationCase `yaml:"cases"`
	Tags        []string         `yaml:"tags,omitempty"`
}

// EvaluationsManifest is evaluations.yaml (optional).
type EvaluationsManifest struct {
	Suites []EvaluationSuite `yaml:"suites"`
}
