package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/antigravity-dev/agentengine/internal/engine"
)

// commonFlags are accepted by every subcommand that constructs an Engine.
type commonFlags struct {
	manifestDir           string
	stateRoot             string
	schemasDir            string
	anthropicCredentialID string
	defaultModel          string
	dockerImage           string
	dockerWorkspace       string
}

func bindCommonFlags(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.manifestDir, "manifest", "", "manifest directory (required)")
	fs.StringVar(&c.stateRoot, "state", "", "task/memory state root (default: <manifest>/state)")
	fs.StringVar(&c.schemasDir, "schemas", "", "JSON schema directory for input/output validation")
	fs.StringVar(&c.anthropicCredentialID, "anthropic-credential", "", "provider_credentials.yaml entry to use for real LLM calls")
	fs.StringVar(&c.defaultModel, "default-model", "", "model name used with -anthropic-credential when no agent declares one")
	fs.StringVar(&c.dockerImage, "docker-image", "", "image used to run AllowShell tools")
	fs.StringVar(&c.dockerWorkspace, "docker-workspace", "", "bind-mounted workspace for -docker-image")
	return c
}

func (c *commonFlags) buildEngine(logger *slog.Logger) (*engine.Engine, error) {
	if c.manifestDir == "" {
		return nil, fmt.Errorf("-manifest is required")
	}
	var opts []engine.Option
	opts = append(opts, engine.WithLogger(logger))
	if c.stateRoot != "" {
		opts = append(opts, engine.WithStateRoot(c.stateRoot))
	}
	if c.schemasDir != "" {
		opts = append(opts, engine.WithSchemasDir(c.schemasDir))
	}
	if c.anthropicCredentialID != "" {
		opts = append(opts, engine.WithAnthropicCredential(c.anthropicCredentialID, c.defaultModel))
	}
	if c.dockerImage != "" {
		opts = append(opts, engine.WithDockerTool(c.dockerImage, c.dockerWorkspace))
	}
	return engine.New(c.manifestDir, opts...)
}

// readInput resolves the run/enqueue payload from either a literal JSON
// string or a file, decoding it into a generic any so it passes through
// unchanged as the task's Spec.Request.
func readInput(literal, path string) (any, error) {
	var raw []byte
	switch {
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading -input-file: %w", err)
		}
		raw = b
	case literal != "":
		raw = []byte(literal)
	default:
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("parsing input JSON: %w", err)
	}
	return v, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
