package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadInput_LiteralJSON(t *testing.T) {
	v, err := readInput(`{"goal":"demo"}`, "")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"goal": "demo"}, v)
}

func TestReadInput_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "input.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1,2,3]`), 0o644))

	v, err := readInput("", path)
	require.NoError(t, err)
	require.Equal(t, []any{1.0, 2.0, 3.0}, v)
}

func TestReadInput_Empty(t *testing.T) {
	v, err := readInput("", "")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestReadInput_InvalidJSON(t *testing.T) {
	_, err := readInput("{not json", "")
	require.Error(t, err)
}

func TestBuildEngine_RequiresManifestFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c := bindCommonFlags(fs)
	require.NoError(t, fs.Parse(nil))

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	_, err := c.buildEngine(logger)
	require.Error(t, err)
}

const fixtureWorkflow = `
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

const fixtureAgents = `
agents:
  - agent_id: planner
    kind: agent
    llm_provider_id: anthropic
`

const fixtureTools = `
tools:
  - tool_id: read_file
    kind: deterministic
    name: read_file
    description: reads a file
    risk_level: low
`

func writeFixtureManifest(t *testing.T, dir string) {
	t.Helper()
	for name, content := range map[string]string{
		"workflow.yaml": fixtureWorkflow,
		"agents.yaml":   fixtureAgents,
		"tools.yaml":    fixtureTools,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func TestBuildEngine_ValidManifestConstructs(t *testing.T) {
	dir := t.TempDir()
	writeFixtureManifest(t, dir)

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c := bindCommonFlags(fs)
	require.NoError(t, fs.Parse([]string{"-manifest", dir}))

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	eng, err := c.buildEngine(logger)
	require.NoError(t, err)
	require.NotNil(t, eng)
}
