package dockerhandler

import (
	"testing"

	"github.com/antigravity-dev/agentengine/internal/tool"
)

func TestHandle_RejectsWrongInputType(t *testing.T) {
	h := &Handler{image: "busybox", workspace: t.TempDir()}
	if _, err := h.Handle("not dockerhandler.Inputs"); err == nil {
		t.Fatal("expected an error for a non-Inputs argument")
	}
}

func TestDefinition_ScopesFilesystemRootAndShellCapability(t *testing.T) {
	h := &Handler{image: "busybox", workspace: "/tmp/ws"}
	def := h.Definition("shell.run", "Run shell command", "executes a shell command in the sandbox")

	if !def.AllowShell {
		t.Fatal("expected AllowShell to be true")
	}
	if def.FilesystemRoot != "/tmp/ws" {
		t.Fatalf("expected filesystem root to match workspace, got %q", def.FilesystemRoot)
	}
	found := false
	for _, c := range def.Capabilities {
		if c == tool.CapabilityWorkspaceMutation {
			found = true
		}
	}
	if !found {
		t.Fatal("expected workspace_mutation capability to be declared")
	}
}
