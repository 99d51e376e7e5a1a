package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// captureStdout redirects os.Stdout for the duration of fn and returns
// everything written to it, mirroring the CLI's own printJSON/fmt.Println
// output path (no test seam was otherwise threaded through run.go/
// validate.go, matching cmd/cortex's own direct os.Stdout/os.Stderr use).
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String()
}

func TestRunValidate_CleanManifestSucceeds(t *testing.T) {
	dir := t.TempDir()
	writeFixtureManifest(t, dir)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	out := captureStdout(t, func() {
		err := runValidate([]string{"-manifest", dir}, logger)
		require.NoError(t, err)
	})
	require.Contains(t, out, "is valid")
}

func TestRunValidate_MissingManifestDirFails(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	err := runValidate([]string{"-manifest", filepath.Join(t.TempDir(), "nope")}, logger)
	require.Error(t, err)
}

func TestRunRun_ExecutesAndPrintsResult(t *testing.T) {
	dir := t.TempDir()
	writeFixtureManifest(t, dir)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	out := captureStdout(t, func() {
		err := runRun([]string{"-manifest", dir, "-input", `{"goal":"demo"}`}, logger)
		require.NoError(t, err)
	})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, "success", decoded["status"])
	require.Equal(t, []any{"start", "end"}, decoded["node_sequence"])
}

func TestRunEnqueueThenRunQueued(t *testing.T) {
	dir := t.TempDir()
	writeFixtureManifest(t, dir)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	enqueueOut := captureStdout(t, func() {
		err := runEnqueue([]string{"-manifest", dir, "-state", filepath.Join(dir, "state")}, logger)
		require.NoError(t, err)
	})
	require.NotEmpty(t, enqueueOut)

	drainOut := captureStdout(t, func() {
		err := runRunQueued([]string{"-manifest", dir, "-state", filepath.Join(dir, "state")}, logger)
		require.NoError(t, err)
	})

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(drainOut), &results))
	require.Len(t, results, 1)
	require.Equal(t, "success", results[0]["status"])
}

func TestRunInspect_ListsKnownTasks(t *testing.T) {
	dir := t.TempDir()
	writeFixtureManifest(t, dir)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var taskID string
	runOut := captureStdout(t, func() {
		err := runRun([]string{"-manifest", dir, "-state", filepath.Join(dir, "state2")}, logger)
		require.NoError(t, err)
	})
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(runOut), &decoded))
	taskID, _ = decoded["task_id"].(string)
	require.NotEmpty(t, taskID)

	inspectOut := captureStdout(t, func() {
		err := runInspect([]string{"-manifest", dir, "-state", filepath.Join(dir, "state2"), "-task", taskID, "-all"}, logger)
		require.NoError(t, err)
	})
	var inspected map[string]any
	require.NoError(t, json.Unmarshal([]byte(inspectOut), &inspected))
	require.NotNil(t, inspected["summary"])
	require.NotNil(t, inspected["history"])
}
