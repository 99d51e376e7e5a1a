package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/agentengine/internal/dag"
	"github.com/antigravity-dev/agentengine/internal/errs"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

const minimalWorkflow = `
nodes:
  - stage_id: start
    role: START
    kind: DETERMINISTIC
    context: none
    default_start: true
  - stage_id: end
    role: EXIT
    kind: DETERMINISTIC
    context: none
edges:
  - from: start
    to: end
`

const minimalAgents = `
agents:
  - agent_id: planner
    kind: agent
    llm_provider_id: anthropic
`

const minimalTools = `
tools:
  - tool_id: read_file
    kind: deterministic
    name: read_file
    description: reads a file
    risk_level: low
`

func writeMinimalManifest(t *testing.T, dir string) {
	t.Helper()
	writeFile(t, dir, "workflow.yaml", minimalWorkflow)
	writeFile(t, dir, "agents.yaml", minimalAgents)
	writeFile(t, dir, "tools.yaml", minimalTools)
}

func TestLoadMinimalManifest(t *testing.T) {
	dir := t.TempDir()
	writeMinimalManifest(t, dir)

	m, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Workflow.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(m.Workflow.Nodes))
	}
	if len(m.Agents.Agents) != 1 || m.Agents.Agents[0].AgentID != "planner" {
		t.Fatalf("unexpected agents: %+v", m.Agents.Agents)
	}
	if len(m.Tools.Tools) != 1 || m.Tools.Tools[0].ToolID != "read_file" {
		t.Fatalf("unexpected tools: %+v", m.Tools.Tools)
	}
	if len(m.Memory.ContextProfiles) != 0 {
		t.Fatalf("expected no context profiles, got %d", len(m.Memory.ContextProfiles))
	}
}

func TestLoadMissingRequiredFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "agents.yaml", minimalAgents)
	writeFile(t, dir, "tools.yaml", minimalTools)

	_, err := Load(dir, nil)
	if err == nil {
		t.Fatal("expected error for missing workflow.yaml")
	}
	var ee *errs.Error
	if !errors.As(err, &ee) {
		t.Fatalf("expected *errs.Error, got %T", err)
	}
	if ee.ID != "manifest_load" {
		t.Fatalf("got id %q, want manifest_load", ee.ID)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "workflow.yaml", "nodes: [this is not valid: yaml: at all")
	writeFile(t, dir, "agents.yaml", minimalAgents)
	writeFile(t, dir, "tools.yaml", minimalTools)

	_, err := Load(dir, nil)
	if err == nil {
		t.Fatal("expected error for malformed workflow.yaml")
	}
	var ee *errs.Error
	if !errors.As(err, &ee) {
		t.Fatalf("expected *errs.Error, got %T", err)
	}
	if ee.ID != "manifest_load" {
		t.Fatalf("got id %q, want manifest_load", ee.ID)
	}
}

func TestLoadDuplicateAgentID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "workflow.yaml", minimalWorkflow)
	writeFile(t, dir, "agents.yaml", `
agents:
  - agent_id: planner
    kind: agent
    llm_provider_id: anthropic
  - agent_id: planner
    kind: agent
    llm_provider_id: anthropic
`)
	writeFile(t, dir, "tools.yaml", minimalTools)

	_, err := Load(dir, nil)
	if err == nil {
		t.Fatal("expected error for duplicate agent_id")
	}
	var ee *errs.Error
	if !errors.As(err, &ee) || ee.ID != "dag_validation" {
		t.Fatalf("got %v, want dag_validation error", err)
	}
}

func TestLoadUnknownAgentReference(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "workflow.yaml", `
nodes:
  - stage_id: start
    role: START
    kind: DETERMINISTIC
    context: none
    default_start: true
  - stage_id: plan
    role: LINEAR
    kind: AGENT
    context: none
    agent_id: nonexistent
  - stage_id: end
    role: EXIT
    kind: DETERMINISTIC
    context: none
edges:
  - from: start
    to: plan
  - from: plan
    to: end
`)
	writeFile(t, dir, "agents.yaml", minimalAgents)
	writeFile(t, dir, "tools.yaml", minimalTools)

	_, err := Load(dir, nil)
	if err == nil {
		t.Fatal("expected error for unknown agent_id reference")
	}
	var ee *errs.Error
	if !errors.As(err, &ee) || ee.ID != "dag_validation" {
		t.Fatalf("got %v, want dag_validation error", err)
	}
}

func TestLoadOptionalFilesAbsent(t *testing.T) {
	dir := t.TempDir()
	writeMinimalManifest(t, dir)

	m, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Plugins.Plugins) != 0 {
		t.Fatalf("expected no plugins, got %d", len(m.Plugins.Plugins))
	}
	if len(m.Credentials.ProviderCredentials) != 0 {
		t.Fatalf("expected no credentials, got %d", len(m.Credentials.ProviderCredentials))
	}
}

func TestBuildDAGStandalone(t *testing.T) {
	dir := t.TempDir()
	writeMinimalManifest(t, dir)
	m, err := Load(dir, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d, err := BuildDAG(m.Workflow)
	if err != nil {
		t.Fatalf("BuildDAG: %v", err)
	}
	if _, ok := d.Node("start"); !ok {
		t.Fatal("expected start node in built DAG")
	}
}

func TestBuildDAGDuplicateStageID(t *testing.T) {
	_, err := BuildDAG(WorkflowManifest{
		Nodes: []dag.Node{
			{StageID: "start", Role: dag.RoleStart, Kind: dag.KindDeterministic, Context: "none", DefaultStart: true},
			{StageID: "start", Role: dag.RoleExit, Kind: dag.KindDeterministic, Context: "none"},
		},
	})
	var ee *errs.Error
	if !errors.As(err, &ee) || ee.ID != "dag_validation" {
		t.Fatalf("got %v, want dag_validation error for duplicate stage_id", err)
	}
}
