package manifest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/antigravity-dev/agentengine/internal/dag"
	"github.com/antigravity-dev/agentengine/internal/errs"
)

// Load reads every manifest file from dir and returns the fully decoded,
// DAG-validated Manifest. A missing required file or malformed YAML both
// produce an `errs.CategoryValidation`/SourceConfigLoader error per
// spec.md §6 ("Missing required file -> manifest_load error. Malformed
// file -> same error with parser message."). Grounded on
// original_source/manifest_loader.py's per-file required/optional split,
// generalized into a single typed decode instead of Python's loose dicts.
func Load(dir string, logger *slog.Logger) (*Manifest, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	var m Manifest

	if err := decodeRequired(dir, "workflow.yaml", &m.Workflow); err != nil {
		return nil, err
	}
	if err := decodeRequired(dir, "agents.yaml", &m.Agents); err != nil {
		return nil, err
	}
	if err := decodeRequired(dir, "tools.yaml", &m.Tools); err != nil {
		return nil, err
	}

	if err := decodeOptional(dir, "memory.yaml", &m.Memory); err != nil {
		return nil, err
	}
	if err := decodeOptional(dir, "plugins.yaml", &m.Plugins); err != nil {
		return nil, err
	}
	if err := decodeOptional(dir, "policies.yaml", &m.Policies); err != nil {
		return nil, err
	}
	if err := decodeOptional(dir, "metrics.yaml", &m.Metrics); err != nil {
		return nil, err
	}
	if err := decodeOptional(dir, "provider_credentials.yaml", &m.Credentials); err != nil {
		return nil, err
	}
	if err := decodeOptional(dir, "scheduler.yaml", &m.Scheduler); err != nil {
		return nil, err
	}
	if err := decodeOptional(dir, "evaluations.yaml", &m.Evaluations); err != nil {
		return nil, err
	}

	if err := validateManifest(&m); err != nil {
		return nil, err
	}

	logger.Info("manifest loaded", "dir", dir,
		"nodes", len(m.Workflow.Nodes), "agents", len(m.Agents.Agents), "tools", len(m.Tools.Tools))
	return &m, nil
}

func decodeRequired(dir, name string, target any) error {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errs.Validation(errs.SourceConfigLoader, "manifest_load", "%s: file not found", name)
		}
		return errs.Wrap(errs.CategoryUnknown, errs.SourceConfigLoader, "manifest_load", err).WithDetails(map[string]any{"file": name})
	}
	if len(data) == 0 {
		return errs.Validation(errs.SourceConfigLoader, "manifest_load", "%s: empty file", name)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return errs.Wrap(errs.CategoryValidation, errs.SourceConfigLoader, "manifest_load", fmt.Errorf("%s: invalid YAML: %w", name, err))
	}
	return nil
}

func decodeOptional(dir, name string, target any) error {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Wrap(errs.CategoryUnknown, errs.SourceConfigLoader, "manifest_load", err).WithDetails(map[string]any{"file": name})
	}
	if len(data) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return errs.Wrap(errs.CategoryValidation, errs.SourceConfigLoader, "manifest_load", fmt.Errorf("%s: invalid YAML: %w", name, err))
	}
	return nil
}

// validateManifest builds the DAG from the workflow manifest and runs its
// structural validator (spec.md §6: "DAG invariant violations ->
// dag_validation error"), plus cross-manifest identity checks (duplicate
// agent/tool ids).
func validateManifest(m *Manifest) error {
	if _, err := BuildDAG(m.Workflow); err != nil {
		return err
	}

	seenAgents := map[string]bool{}
	for _, a := range m.Agents.Agents {
		if a.AgentID == "" {
			return errs.Validation(errs.SourceConfigLoader, "dag_validation", "agents.yaml: agent entry missing agent_id")
		}
		if seenAgents[a.AgentID] {
			return errs.Validation(errs.SourceConfigLoader, "dag_validation", "agents.yaml: duplicate agent_id %q", a.AgentID)
		}
		seenAgents[a.AgentID] = true
	}

	seenTools := map[string]bool{}
	for _, t := range m.Tools.Tools {
		if t.ToolID == "" {
			return errs.Validation(errs.SourceConfigLoader, "dag_validation", "tools.yaml: tool entry missing tool_id")
		}
		if seenTools[t.ToolID] {
			return errs.Validation(errs.SourceConfigLoader, "dag_validation", "tools.yaml: duplicate tool_id %q", t.ToolID)
		}
		seenTools[t.ToolID] = true
	}

	for _, n := range m.Workflow.Nodes {
		if n.Kind == dag.KindAgent && n.AgentID != "" && !seenAgents[n.AgentID] {
			return errs.Validation(errs.SourceConfigLoader, "dag_validation", "node %q references unknown agent_id %q", n.StageID, n.AgentID)
		}
		for _, toolID := range n.Tools {
			if !seenTools[toolID] {
				return errs.Validation(errs.SourceConfigLoader, "dag_validation", "node %q references unknown tool_id %q", n.StageID, toolID)
			}
		}
	}

	return nil
}

// BuildDAG constructs and validates a *dag.DAG from a decoded workflow
// manifest, exposed separately so the engine façade and CLI `validate`
// subcommand can build the graph without re-reading files.
func BuildDAG(w WorkflowManifest) (*dag.DAG, error) {
	nodes := make(map[string]*dag.Node, len(w.Nodes))
	for i := range w.Nodes {
		n := w.Nodes[i]
		if n.StageID == "" {
			return nil, errs.Validation(errs.SourceConfigLoader, "dag_validation", "workflow.yaml: node at index %d missing stage_id", i)
		}
		if _, dup := nodes[n.StageID]; dup {
			return nil, errs.Validation(errs.SourceConfigLoader, "dag_validation", "workflow.yaml: duplicate stage_id %q", n.StageID)
		}
		nodes[n.StageID] = &n
	}
	d := dag.New(nodes, w.Edges)
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
