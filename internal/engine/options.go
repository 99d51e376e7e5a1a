package engine

import (
	"io"
	"log/slog"
	"path/filepath"

	"github.com/antigravity-dev/agentengine/internal/manifest"
	"github.com/antigravity-dev/agentengine/internal/tool"
)

// engineConfig collects every New() default an Option can override,
// grounded on cmd/cortex/main.go's flag-defaults-then-override style
// (there expressed via *flag.String defaults; here via functional options
// since internal/engine has no CLI of its own).
type engineConfig struct {
	manifestDir string
	stateRoot   string
	schemasDir  string

	logger *slog.Logger

	maxArtifacts int
	queueCapacity int

	promptTemplateVersion string
	callerFlags           tool.CallerFlags

	dockerImage     string
	dockerWorkspace string

	anthropicCredentialID     string
	defaultModel              string
	fallbackDefaultBranch     string
	fallbackRecognizedActions []string

	otelExporter string // "none" (default) | "otlp-http"
	otelEndpoint string
	serviceName  string

	pluginFactories map[string]manifest.PluginFactory
}

func defaultConfig(manifestDir string) engineConfig {
	return engineConfig{
		manifestDir:           manifestDir,
		stateRoot:             filepath.Join(manifestDir, "state"),
		logger:                slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxArtifacts:          10000,
		queueCapacity:         1000,
		promptTemplateVersion: "v1",
		fallbackDefaultBranch: "create",
		otelExporter:          "none",
		serviceName:           "agentengine",
		pluginFactories:       map[string]manifest.PluginFactory{},
	}
}

// Option configures an Engine at construction time.
type Option func(*engineConfig)

// WithLogger sets the structured logger used for manifest loading and bus
// instrumentation (nil is rejected silently, keeping the io.Discard default).
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStateRoot overrides where task checkpoints and filelog/sqlite memory
// backends persist (default: "<manifestDir>/state").
func WithStateRoot(root string) Option {
	return func(c *engineConfig) { c.stateRoot = root }
}

// WithSchemasDir enables JSON-schema validation against the given
// directory (default: none, every schema id validates as a no-op).
func WithSchemasDir(dir string) Option {
	return func(c *engineConfig) { c.schemasDir = dir }
}

// WithMaxArtifacts caps the artifact store's retained item count (<=0 is
// unbounded).
func WithMaxArtifacts(n int) Option {
	return func(c *engineConfig) { c.maxArtifacts = n }
}

// WithQueueCapacity caps how many Enqueue'd tasks may await a RunQueued
// drain at once (<=0 is unbounded).
func WithQueueCapacity(n int) Option {
	return func(c *engineConfig) { c.queueCapacity = n }
}

// WithCallerFlags sets the permission flags every tool invocation is
// evaluated against (spec.md §4.6 step 3).
func WithCallerFlags(flags tool.CallerFlags) Option {
	return func(c *engineConfig) { c.callerFlags = flags }
}

// WithDockerTool enables the shell-tool Docker handler for any tool
// definition with allow_shell set, running invocations in image with
// workspace bind-mounted as the tool's filesystem root.
func WithDockerTool(image, workspace string) Option {
	return func(c *engineConfig) {
		c.dockerImage = image
		c.dockerWorkspace = workspace
	}
}

// WithAnthropicCredential names the provider_credentials.yaml entry whose
// resolved secret, if present, is used to construct a real
// anthropicclient.Client; absent that credential, every AGENT node uses
// the deterministic fallback.Client (spec.md §6's "toggle enabling real
// LLM calls").
func WithAnthropicCredential(credentialID, defaultModel string) Option {
	return func(c *engineConfig) {
		c.anthropicCredentialID = credentialID
		c.defaultModel = defaultModel
	}
}

// WithFallbackClient configures the deterministic LLMClient stand-in used
// when no real model is wired.
func WithFallbackClient(defaultBranch string, recognizedActions ...string) Option {
	return func(c *engineConfig) {
		c.fallbackDefaultBranch = defaultBranch
		c.fallbackRecognizedActions = recognizedActions
	}
}

// WithOTLPExporter records an OTLP collector endpoint for future use.
// No pack example imports an OTLP exporter package, and adding one here
// would be an ungrounded new dependency (see DESIGN.md), so the telemetry
// bus's tracer/meter providers currently always run with the SDK's
// built-in no-op span/metric processors regardless of this option; the
// endpoint is accepted and stored so callers can set it in advance of a
// future exporter being wired.
func WithOTLPExporter(endpoint string) Option {
	return func(c *engineConfig) {
		c.otelExporter = "otlp-http"
		c.otelEndpoint = endpoint
	}
}

// WithServiceName sets the resource service.name attribute reported by
// the OTel SDK providers.
func WithServiceName(name string) Option {
	return func(c *engineConfig) { c.serviceName = name }
}

// WithPluginFactory registers a telemetry plugin constructor under id, so
// a plugins.yaml entry naming id can be resolved at load time.
func WithPluginFactory(id string, factory manifest.PluginFactory) Option {
	return func(c *engineConfig) { c.pluginFactories[id] = factory }
}
