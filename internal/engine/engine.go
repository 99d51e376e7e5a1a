// Package engine wires every collaborator package into the single run
// surface spec.md §6 describes: load manifests, build and validate the
// DAG, construct the memory tiers, artifact store, telemetry bus, tool
// and agent runtimes, the node executor, and the router, then expose
// run/enqueue/inspect/override operations over that assembly. Grounded on
// cmd/cortex/main.go's component-wiring order (load config, build each
// subsystem in dependency order, wire them into the top-level struct).
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/antigravity-dev/agentengine/internal/agent"
	"github.com/antigravity-dev/agentengine/internal/agent/anthropicclient"
	"github.com/antigravity-dev/agentengine/internal/agent/fallback"
	"github.com/antigravity-dev/agentengine/internal/artifact"
	ctxpkg "github.com/antigravity-dev/agentengine/internal/context"
	"github.com/antigravity-dev/agentengine/internal/dag"
	"github.com/antigravity-dev/agentengine/internal/errs"
	"github.com/antigravity-dev/agentengine/internal/executor"
	"github.com/antigravity-dev/agentengine/internal/manifest"
	"github.com/antigravity-dev/agentengine/internal/memory"
	"github.com/antigravity-dev/agentengine/internal/router"
	"github.com/antigravity-dev/agentengine/internal/task"
	"github.com/antigravity-dev/agentengine/internal/telemetry"
	"github.com/antigravity-dev/agentengine/internal/tool"
	"github.com/antigravity-dev/agentengine/internal/tool/dockerhandler"
)

// Engine is the fully-wired run surface spec.md §6 describes. Every
// exported field is a collaborator an operator-facing caller (the CLI, an
// evaluation harness) may still want direct access to; Run/Enqueue/
// RunQueued and the inspection/override methods are the intended surface.
type Engine struct {
	Manifest    *manifest.Manifest
	DAG         *dag.DAG
	Tasks       *task.Manager
	Artifacts   *artifact.Store
	Tiers       *memory.Tiers
	Bus         *telemetry.Bus
	Tools       *tool.Runtime
	Agents      *agent.Runtime
	Executor    *executor.Executor
	Router      *router.Router
	Overrides   *overrideTable
	Credentials *manifest.EnvCredentialProvider

	logger            *slog.Logger
	cron              *cronDriver
	telemetryShutdown func()

	queueMu  sync.Mutex
	queue    []queuedItem
	queueCap int
}

// queuedItem is one task seeded by Enqueue and awaiting a RunQueued drain
// (spec.md §4.10: "enqueue returns a task_id immediately ... run_queued
// drains the queue and executes each").
type queuedItem struct {
	taskID string
	nodeID string
}

// New builds a fully-wired Engine from a manifest directory, applying
// opts over the defaults (see options.go). Wiring order follows
// SPEC_FULL.md §3.11: manifests -> DAG -> memory tiers -> artifact store
// -> telemetry bus (+plugins, +OTel) -> tool registry/runtime (+policies)
// -> agent registry/runtime -> node executor -> router.
func New(manifestDir string, opts ...Option) (*Engine, error) {
	cfg := defaultConfig(manifestDir)
	for _, opt := range opts {
		opt(&cfg)
	}

	m, err := manifest.Load(cfg.manifestDir, cfg.logger)
	if err != nil {
		return nil, err
	}
	d, err := manifest.BuildDAG(m.Workflow)
	if err != nil {
		return nil, err
	}

	tiers, err := buildTiers(m.Memory, cfg.stateRoot)
	if err != nil {
		return nil, err
	}
	profiles := make(map[string]ctxpkg.Profile, len(m.Memory.ContextProfiles))
	for _, p := range m.Memory.ContextProfiles {
		profiles[p.ID] = p
	}
	assembler := ctxpkg.NewAssembler(tiers, profiles)

	artifacts := artifact.New(cfg.maxArtifacts)

	tracer, meter, shutdownTelemetry, err := buildOTel(cfg)
	if err != nil {
		return nil, err
	}
	bus := telemetry.NewBus(cfg.logger, tracer, meter)

	pluginRegistry := manifest.NewPluginRegistry()
	registerBuiltinPlugins(pluginRegistry, cfg)
	plugins, err := pluginRegistry.Build(m.Plugins)
	if err != nil {
		return nil, err
	}
	for _, p := range plugins {
		bus.Register(p)
	}

	knownAgents := make(map[string]bool, len(m.Agents.Agents))
	for _, a := range m.Agents.Agents {
		knownAgents[a.AgentID] = true
	}
	knownTools := make(map[string]bool, len(m.Tools.Tools))
	for _, t := range m.Tools.Tools {
		knownTools[t.ToolID] = true
	}
	knownNodes := make(map[string]bool, len(m.Workflow.Nodes))
	for _, n := range m.Workflow.Nodes {
		knownNodes[n.StageID] = true
	}
	overrides := newOverrideTable(knownAgents, knownTools, knownNodes)

	toolRegistry := tool.NewRegistry()
	registerTools(toolRegistry, m.Tools, cfg)
	policy := manifest.BuildPolicyEvaluator(m.Policies)
	toolRuntime := tool.NewRuntime(toolRegistry, policy, overrides, bus)

	credentials := manifest.BuildCredentialProvider(m.Credentials)
	llmClient, err := buildLLMClient(m.Agents, credentials, cfg)
	if err != nil {
		return nil, err
	}
	var schemas manifest.SchemaValidator = manifest.NoopValidator{}
	if cfg.schemasDir != "" {
		schemas = manifest.NewJSONSchemaRegistry(cfg.schemasDir)
	}
	agentRuntime := agent.NewRuntime(llmClient, cfg.promptTemplateVersion, schemas)

	tasks := task.NewManager(cfg.stateRoot)
	nodeExecutor := executor.New(assembler, agentRuntime, toolRuntime, nil, schemas, bus, cfg.callerFlags)
	nodeExecutor.WithAgentOverrides(overrides)

	r := router.New(d, tasks, nodeExecutor, bus)

	e := &Engine{
		Manifest:    m,
		DAG:         d,
		Tasks:       tasks,
		Artifacts:   artifacts,
		Tiers:       tiers,
		Bus:         bus,
		Tools:       toolRuntime,
		Agents:      agentRuntime,
		Executor:    nodeExecutor,
		Router:      r,
		Overrides:   overrides,
		Credentials: credentials,
		logger:      cfg.logger,
		queueCap:    cfg.queueCapacity,
		telemetryShutdown: shutdownTelemetry,
	}

	if err := e.initScheduler(m.Scheduler); err != nil {
		shutdownTelemetry()
		return nil, err
	}
	return e, nil
}

// Close stops the cron scheduler (if running) and shuts down the OTel
// SDK providers constructed for this engine.
func (e *Engine) Close(ctx context.Context) error {
	if e.cron != nil {
		e.cron.Stop()
	}
	if e.telemetryShutdown != nil {
		e.telemetryShutdown()
	}
	return nil
}

// RunResult is the answer to Run/RunQueued, matching spec.md §6's
// execute_task contract exactly: task_id, status, output, history,
// node_sequence, execution_time_ms.
type RunResult struct {
	TaskID          string                      `json:"task_id"`
	Status          string                      `json:"status"`
	Output          any                         `json:"output"`
	History         []task.StageExecutionRecord `json:"history"`
	NodeSequence    []string                    `json:"node_sequence"`
	ExecutionTimeMS int64                       `json:"execution_time_ms"`
}

// statusString maps a task.Status to the three-valued external status
// vocabulary spec.md §6/§7 describe: "success", "failure", "partial".
func statusString(s task.Status) string {
	switch s {
	case task.StatusCompleted:
		return "success"
	case task.StatusFailed:
		return "failure"
	default:
		return "partial"
	}
}

// RunOption configures one Run/Enqueue call's task.Spec.
type RunOption func(*task.Spec)

// WithProjectID scopes the run's memory/override precedence to projectID
// (task.Spec.ProjectID reads this back out of Metadata).
func WithProjectID(projectID string) RunOption {
	return func(s *task.Spec) {
		if s.Metadata == nil {
			s.Metadata = map[string]any{}
		}
		s.Metadata["project_id"] = projectID
	}
}

// WithMode sets the run's task.Mode.
func WithMode(mode task.Mode) RunOption {
	return func(s *task.Spec) { s.Mode = mode }
}

// WithPriority sets the run's priority.
func WithPriority(priority int) RunOption {
	return func(s *task.Spec) { s.Priority = priority }
}

func (e *Engine) buildSpec(specID string, input any, opts []RunOption) task.Spec {
	spec := task.Spec{SpecID: specID, Request: input, Mode: task.ModeImplement}
	for _, opt := range opts {
		opt(&spec)
	}
	projectID := spec.ProjectID()
	if params := e.Overrides.taskParametersFor("", projectID); len(params) > 0 {
		if spec.Metadata == nil {
			spec.Metadata = map[string]any{}
		}
		for k, v := range params {
			if _, exists := spec.Metadata[k]; !exists {
				spec.Metadata[k] = v
			}
		}
	}
	return spec
}

// resolveStartNode duplicates router.Router's unexported resolveStart
// logic: the engine needs the same validation both before queuing
// (Enqueue) and before executing immediately (Run), and router.go keeps
// that helper private to its own ExecuteTask/Enqueue+Run split.
func (e *Engine) resolveStartNode(explicit string) (*dag.Node, error) {
	if explicit == "" {
		return e.DAG.DefaultStart()
	}
	n, ok := e.DAG.Node(explicit)
	if !ok {
		return nil, errs.Routing(errs.SourceRouter, "start_node_not_found", "start node %q not found", explicit)
	}
	if n.Role != dag.RoleStart {
		return nil, errs.Routing(errs.SourceRouter, "start_node_wrong_role", "node %q is not a START node", explicit)
	}
	return n, nil
}

// taskResult assembles a RunResult from a concluded task.Task, mirroring
// router.Router's unexported result() plus the elapsed-time/status-string
// fields the external run surface adds on top of router.Result.
func taskResult(t task.Task, elapsed time.Duration) RunResult {
	seq := make([]string, 0, len(t.History))
	for _, rec := range t.History {
		seq = append(seq, rec.NodeID)
	}
	return RunResult{
		TaskID:          t.TaskID,
		Status:          statusString(t.Status),
		Output:          t.CurrentOutput,
		History:         t.History,
		NodeSequence:    seq,
		ExecutionTimeMS: elapsed.Milliseconds(),
	}
}

// Run executes spec.md §4.9's execute_task synchronously: the call
// blocks until the task concludes (reaches an EXIT node, or fails) and
// returns its full result.
func (e *Engine) Run(ctx context.Context, input any, startNodeID string, opts ...RunOption) (RunResult, error) {
	start, err := e.resolveStartNode(startNodeID)
	if err != nil {
		return RunResult{}, err
	}
	spec := e.buildSpec("run", input, opts)

	began := time.Now()
	t := e.Tasks.CreateRoot(spec)
	e.Bus.Emit(ctx, telemetry.TypeTask, "run_started", t.TaskID, "", nil)
	e.Router.Enqueue(router.WorkItem{TaskID: t.TaskID, NodeID: start.StageID})
	if err := e.Router.Run(ctx); err != nil {
		return RunResult{}, err
	}
	concluded, ok := e.Tasks.Get(t.TaskID)
	if !ok {
		return RunResult{}, errs.Routing(errs.SourceRouter, "task_not_found", "task %q vanished after routing", t.TaskID)
	}
	_ = e.Tiers.ConcludeTask(t.TaskID)
	_ = e.Tasks.Save(t.TaskID)
	result := taskResult(concluded, time.Since(began))
	e.Bus.Emit(ctx, telemetry.TypeTask, "run_completed", t.TaskID, "", map[string]any{"status": result.Status})
	return result, nil
}

// Enqueue implements spec.md §4.10's enqueue: the root task is created
// immediately (so its task_id is stable and inspectable right away) but
// not routed; RunQueued later seeds the router and drains it.
func (e *Engine) Enqueue(input any, startNodeID string, opts ...RunOption) (string, error) {
	start, err := e.resolveStartNode(startNodeID)
	if err != nil {
		return "", err
	}
	spec := e.buildSpec("queued", input, opts)

	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	if e.queueCap > 0 && len(e.queue) >= e.queueCap {
		return "", errs.Validation(errs.SourceRuntime, "queue_full", "enqueue: queue capacity %d reached", e.queueCap)
	}
	t := e.Tasks.CreateRoot(spec)
	_ = e.Tasks.Save(t.TaskID)
	e.queue = append(e.queue, queuedItem{taskID: t.TaskID, nodeID: start.StageID})
	e.Bus.Emit(context.Background(), telemetry.TypeTask, "task_enqueued", t.TaskID, "", nil)
	return t.TaskID, nil
}

// RunQueued drains every item queued by Enqueue (or the cron scheduler),
// routing and running each to conclusion in FIFO order, returning one
// RunResult per drained item (spec.md §4.10: "run_queued drains the
// queue and executes each"). A routing error on one item stops the drain
// and is returned alongside the results collected so far.
func (e *Engine) RunQueued(ctx context.Context) ([]RunResult, error) {
	var results []RunResult
	for {
		item, ok := e.dequeue()
		if !ok {
			return results, nil
		}
		began := time.Now()
		e.Router.Enqueue(router.WorkItem{TaskID: item.taskID, NodeID: item.nodeID})
		if err := e.Router.Run(ctx); err != nil {
			return results, err
		}
		concluded, ok := e.Tasks.Get(item.taskID)
		if !ok {
			return results, errs.Routing(errs.SourceRouter, "task_not_found", "task %q vanished after routing", item.taskID)
		}
		_ = e.Tiers.ConcludeTask(item.taskID)
		_ = e.Tasks.Save(item.taskID)
		result := taskResult(concluded, time.Since(began))
		e.Bus.Emit(ctx, telemetry.TypeTask, "run_completed", item.taskID, "", map[string]any{"status": result.Status})
		results = append(results, result)
	}
}

func (e *Engine) dequeue() (queuedItem, bool) {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	if len(e.queue) == 0 {
		return queuedItem{}, false
	}
	item := e.queue[0]
	e.queue = e.queue[1:]
	return item, true
}

// --- Event inspection (spec.md §6) ---

func (e *Engine) GetEvents() []telemetry.Event                    { return e.Bus.Events() }
func (e *Engine) GetEventsByType(typ telemetry.Type) []telemetry.Event { return e.Bus.EventsByType(typ) }
func (e *Engine) GetEventsByTask(taskID string) []telemetry.Event { return e.Bus.EventsByTask(taskID) }
func (e *Engine) ClearEvents()                                    { e.Bus.Clear() }

// --- Task inspection (spec.md §6) ---

// GetTaskSummary returns the lightweight status/timestamps view of a task.
func (e *Engine) GetTaskSummary(taskID string) (task.Summary, error) {
	return e.Tasks.Metadata(taskID)
}

// GetTaskHistory returns a task's full append-only execution history,
// falling back to its on-disk checkpoint (as Metadata/GetTaskSummary
// already do) when the task isn't resident in memory — e.g. a task run
// by an earlier enginectl invocation.
func (e *Engine) GetTaskHistory(taskID string) ([]task.StageExecutionRecord, error) {
	t, ok := e.Tasks.Get(taskID)
	if !ok {
		loaded, err := e.Tasks.Load(taskID)
		if err != nil {
			return nil, errs.Validation(errs.SourceTaskManager, "task_not_found", "task %q not found", taskID)
		}
		t = loaded
	}
	return t.History, nil
}

// GetTaskArtifacts returns every artifact produced on behalf of a task.
func (e *Engine) GetTaskArtifacts(taskID string) []artifact.Artifact {
	return e.Artifacts.ByTask(taskID)
}

// GetTaskEvents is an alias for GetEventsByTask, named to match spec.md
// §6's get_task_events entry in the inspection surface.
func (e *Engine) GetTaskEvents(taskID string) []telemetry.Event {
	return e.Bus.EventsByTask(taskID)
}

// GetAllTaskIDs returns every task id known to the in-memory task table.
func (e *Engine) GetAllTaskIDs() []string {
	return e.Tasks.AllIDs()
}

// --- Overrides (spec.md §6) ---

func (e *Engine) SetAgentModel(scope Scope, scopeID, agentID, model string) error {
	return e.Overrides.SetAgentModel(scope, scopeID, agentID, model)
}

func (e *Engine) SetAgentHyperparameters(scope Scope, scopeID, agentID string, params map[string]any) error {
	return e.Overrides.SetAgentHyperparameters(scope, scopeID, agentID, params)
}

func (e *Engine) EnableTool(scope Scope, scopeID, toolID string, enabled bool) error {
	return e.Overrides.EnableTool(scope, scopeID, toolID, enabled)
}

func (e *Engine) SetNodeTimeout(scope Scope, scopeID, nodeOrToolID string, timeout time.Duration) error {
	return e.Overrides.SetNodeTimeout(scope, scopeID, nodeOrToolID, timeout)
}

func (e *Engine) SetTaskParameters(scope Scope, scopeID string, params map[string]any) error {
	return e.Overrides.SetTaskParameters(scope, scopeID, params)
}

func (e *Engine) ClearOverrides(scope Scope, scopeID string) error {
	return e.Overrides.ClearOverrides(scope, scopeID)
}

// registerBuiltinPlugins wires the engine's compiled-in telemetry plugin
// factories (currently none ship by default; operators register their own
// via WithPluginFactory before a plugins.yaml entry resolves).
func registerBuiltinPlugins(reg *manifest.PluginRegistry, cfg engineConfig) {
	for id, factory := range cfg.pluginFactories {
		reg.Register(id, factory)
	}
}

// registerTools binds each declared tool.Definition to a handler: tools
// that declare AllowShell run inside a dockerhandler.Handler (when a
// docker image/workspace is configured); everything else gets the
// identity passthrough, since a manifest's Definition has no room to
// express arbitrary handler logic (DESIGN.md's tool-handler assignment
// policy).
func registerTools(reg *tool.Registry, m manifest.ToolsManifest, cfg engineConfig) {
	var shellHandler tool.Handler
	if cfg.dockerImage != "" {
		if h, err := dockerhandler.New(cfg.dockerImage, cfg.dockerWorkspace); err == nil {
			shellHandler = func(inputs any) (any, error) {
				in, ok := inputs.(dockerhandler.Inputs)
				if !ok {
					return nil, fmt.Errorf("engine: shell tool expects dockerhandler.Inputs, got %T", inputs)
				}
				return h.Handle(in)
			}
		}
	}
	for _, def := range m.Tools {
		if def.AllowShell && shellHandler != nil {
			reg.Register(def, shellHandler)
			continue
		}
		reg.Register(def, passthroughHandler)
	}
}

func passthroughHandler(inputs any) (any, error) { return inputs, nil }

// buildLLMClient wires a real anthropicclient.Client when the engine's
// real-LLM toggle resolves an API key via the credential provider;
// otherwise every AGENT node falls back to the deterministic
// fallback.Client (spec.md §4.7's "lightweight deterministic branching
// when no llm_client is configured").
func buildLLMClient(m manifest.AgentsManifest, creds *manifest.EnvCredentialProvider, cfg engineConfig) (agent.LLMClient, error) {
	if cfg.anthropicCredentialID != "" {
		if key, ok := creds.Get(cfg.anthropicCredentialID); ok && key != "" {
			model := cfg.defaultModel
			for _, a := range m.Agents {
				if a.Model != "" {
					model = a.Model
					break
				}
			}
			return anthropicclient.NewFromAPIKey(key, model)
		}
	}
	return fallback.New(cfg.fallbackDefaultBranch, cfg.fallbackRecognizedActions...), nil
}
