// Package dockerhandler builds a tool.Handler that runs one permissioned
// shell-tool invocation inside a short-lived, bind-mounted Docker
// container: create, start, wait, capture output, remove — one call to
// completion rather than a long-lived session.
package dockerhandler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/antigravity-dev/agentengine/internal/tool"
)

// Inputs is the expected shape of a shell-tool's Step.Inputs value.
type Inputs struct {
	Command []string `json:"command"`
}

// Output is what the handler returns on success.
type Output struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Handler runs tool.Step invocations inside a Docker container bind-mounting
// a single workspace root per invocation. One Handler may be shared by many
// concurrent calls; each call gets its own container.
type Handler struct {
	cli       *client.Client
	image     string
	workspace string
}

// New builds a Handler. image is the container image to run (e.g. a
// minimal shell image carrying the tools the workflow needs); workspace is
// the host directory bind-mounted read-write at /workspace inside the
// container — this becomes the tool definition's FilesystemRoot.
func New(image, workspace string) (*Handler, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("dockerhandler: failed to initialize docker client: %w", err)
	}
	return &Handler{cli: cli, image: image, workspace: workspace}, nil
}

// Handle implements tool.Handler. The timeout is enforced by the caller's
// context.WithTimeout (internal/tool.Runtime.runWithTimeout), which only
// stops the caller waiting: Handle runs the container under
// context.Background(), so the container runs to completion either way.
func (h *Handler) Handle(inputs any) (any, error) {
	in, ok := inputs.(Inputs)
	if !ok {
		return nil, fmt.Errorf("dockerhandler: expected dockerhandler.Inputs, got %T", inputs)
	}
	return h.run(context.Background(), in)
}

func (h *Handler) run(ctx context.Context, in Inputs) (Output, error) {
	if err := os.MkdirAll(h.workspace, 0o755); err != nil {
		return Output{}, fmt.Errorf("dockerhandler: failed to create workspace: %w", err)
	}
	workDirPath, err := filepath.Abs(h.workspace)
	if err != nil {
		return Output{}, fmt.Errorf("dockerhandler: failed to resolve workspace: %w", err)
	}

	name := fmt.Sprintf("agentengine-tool-%d", time.Now().UnixNano())
	cfg := &container.Config{
		Image:      h.image,
		Cmd:        in.Command,
		Tty:        false,
		WorkingDir: "/workspace",
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: workDirPath, Target: "/workspace"},
		},
		AutoRemove: false,
		NetworkMode: "none",
	}

	resp, err := h.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return Output{}, fmt.Errorf("dockerhandler: failed to create container: %w", err)
	}
	defer h.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})

	if err := h.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return Output{}, fmt.Errorf("dockerhandler: failed to start container: %w", err)
	}

	statusCh, errCh := h.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case err := <-errCh:
		if err != nil {
			return Output{}, fmt.Errorf("dockerhandler: failed waiting for container: %w", err)
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case <-ctx.Done():
		return Output{}, ctx.Err()
	}

	logs, err := h.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return Output{}, fmt.Errorf("dockerhandler: failed to fetch logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return Output{}, fmt.Errorf("dockerhandler: failed to demux logs: %w", err)
	}

	return Output{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
}

// Definition returns a tool.Definition suitable for registering Handle
// against, scoped to this handler's workspace and declaring the shell and
// workspace-mutation capabilities a shell tool needs.
func (h *Handler) Definition(toolID, name, description string) tool.Definition {
	return tool.Definition{
		ToolID:         toolID,
		Kind:           tool.KindDeterministic,
		Name:           name,
		Description:    description,
		Capabilities:   []tool.Capability{tool.CapabilityWorkspaceMutation},
		RiskLevel:      tool.RiskMedium,
		AllowShell:     true,
		FilesystemRoot: h.workspace,
	}
}
