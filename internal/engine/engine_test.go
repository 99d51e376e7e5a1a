package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testWorkflow = `
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

const testAgents = `
agents:
  - agent_id: planner
    kind: agent
    llm_provider_id: anthropic
`

const testTools = `
tools:
  - tool_id: read_file
    kind: deterministic
    name: read_file
    description: reads a file
    risk_level: low
`

func writeMinimalManifest(t *testing.T, dir string) {
	t.Helper()
	for name, content := range map[string]string{
		"workflow.yaml": testWorkflow,
		"agents.yaml":   testAgents,
		"tools.yaml":    testTools,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	writeMinimalManifest(t, dir)
	e, err := New(dir, WithStateRoot(filepath.Join(dir, "state")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func TestNew_WiresEveryCollaborator(t *testing.T) {
	e := newTestEngine(t)
	require.NotNil(t, e.Manifest)
	require.NotNil(t, e.DAG)
	require.NotNil(t, e.Tasks)
	require.NotNil(t, e.Artifacts)
	require.NotNil(t, e.Tiers)
	require.NotNil(t, e.Bus)
	require.NotNil(t, e.Tools)
	require.NotNil(t, e.Agents)
	require.NotNil(t, e.Executor)
	require.NotNil(t, e.Router)
	require.NotNil(t, e.Overrides)
}

func TestRun_LinearWorkflowReachesExit(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.Run(context.Background(), map[string]any{"goal": "demo"}, "")
	require.NoError(t, err)
	require.Equal(t, "success", result.Status)
	require.Equal(t, []string{"start", "end"}, result.NodeSequence)
	require.NotEmpty(t, result.TaskID)
	require.GreaterOrEqual(t, result.ExecutionTimeMS, int64(0))
}

func TestRun_UnknownStartNodeIsRejected(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Run(context.Background(), nil, "does_not_exist")
	require.Error(t, err)
}

func TestEnqueueThenRunQueued_DrainsInOrder(t *testing.T) {
	e := newTestEngine(t)

	id1, err := e.Enqueue(map[string]any{"n": 1}, "")
	require.NoError(t, err)
	id2, err := e.Enqueue(map[string]any{"n": 2}, "")
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	// Not yet routed: no history recorded until RunQueued drains them.
	summary, err := e.GetTaskSummary(id1)
	require.NoError(t, err)
	require.NotEqual(t, "COMPLETED", string(summary.Status))

	results, err := e.RunQueued(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, id1, results[0].TaskID)
	require.Equal(t, id2, results[1].TaskID)
	for _, r := range results {
		require.Equal(t, "success", r.Status)
	}

	// Draining twice returns nothing more.
	results, err = e.RunQueued(context.Background())
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestEnqueue_RespectsQueueCapacity(t *testing.T) {
	dir := t.TempDir()
	writeMinimalManifest(t, dir)
	e, err := New(dir, WithStateRoot(filepath.Join(dir, "state")), WithQueueCapacity(1))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })

	_, err = e.Enqueue(nil, "")
	require.NoError(t, err)
	_, err = e.Enqueue(nil, "")
	require.Error(t, err)
}

func TestInspectionSurface_ReflectsCompletedRun(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.Run(context.Background(), "hello", "")
	require.NoError(t, err)

	summary, err := e.GetTaskSummary(result.TaskID)
	require.NoError(t, err)
	require.Equal(t, result.TaskID, summary.TaskID)

	history, err := e.GetTaskHistory(result.TaskID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	events := e.GetTaskEvents(result.TaskID)
	require.NotEmpty(t, events)

	require.Contains(t, e.GetAllTaskIDs(), result.TaskID)

	e.ClearEvents()
	require.Empty(t, e.GetEvents())
}

func TestGetTaskHistory_SurvivesAcrossEngineInstances(t *testing.T) {
	dir := t.TempDir()
	writeMinimalManifest(t, dir)
	stateRoot := filepath.Join(dir, "state")

	e1, err := New(dir, WithStateRoot(stateRoot))
	require.NoError(t, err)
	result, err := e1.Run(context.Background(), "hi", "")
	require.NoError(t, err)
	require.NoError(t, e1.Close(context.Background()))

	e2, err := New(dir, WithStateRoot(stateRoot))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e2.Close(context.Background()) })

	history, err := e2.GetTaskHistory(result.TaskID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	summary, err := e2.GetTaskSummary(result.TaskID)
	require.NoError(t, err)
	require.Equal(t, result.TaskID, summary.TaskID)
}

func TestOverrides_RoundTripThroughEngine(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.SetAgentModel(ScopeGlobal, "", "planner", "claude-test"))
	model, _ := e.Overrides.ResolveAgentModel("planner", "task-x", "default")
	require.Equal(t, "claude-test", model)

	require.Error(t, e.SetAgentModel(ScopeGlobal, "", "unknown_agent", "x"))

	require.NoError(t, e.EnableTool(ScopeTask, "task-x", "read_file", false))
	require.NoError(t, e.SetNodeTimeout(ScopeGlobal, "", "read_file", 5*time.Second))
	require.NoError(t, e.SetTaskParameters(ScopeProject, "default", map[string]any{"k": "v"}))

	require.NoError(t, e.ClearOverrides(ScopeGlobal, ""))
	model, _ = e.Overrides.ResolveAgentModel("planner", "task-x", "default")
	require.Empty(t, model)
}
