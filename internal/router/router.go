// Package router implements the FIFO worklist scheduler described in
// spec.md §4.9: a single-threaded cooperative loop that pops (task, node)
// work items, runs the node executor, and dispatches zero or more
// follow-up items by the node's role: a worklist-drain loop (no polling
// ticker, since this is on-demand rather than scheduled) built around
// original_source/runtime/router.py's resolve_edge priority-key
// algorithm.
package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/antigravity-dev/agentengine/internal/dag"
	"github.com/antigravity-dev/agentengine/internal/errs"
	"github.com/antigravity-dev/agentengine/internal/task"
	"github.com/antigravity-dev/agentengine/internal/telemetry"
)

// NodeExecutor is the narrow collaborator the router dispatches node
// execution to; internal/executor.Executor implements this.
type NodeExecutor interface {
	ExecuteNode(ctx context.Context, t task.Task, node dag.Node) task.StageExecutionRecord
}

// WorkItem is one entry on the router's worklist: run node_id on behalf
// of task_id.
type WorkItem struct {
	TaskID string
	NodeID string
}

// Result is the router's public answer for one execute_task call (spec.md
// §4.9: "current_output, history, and the ordered sequence of node_ids
// visited").
type Result struct {
	TaskID         string
	Status         task.Status
	CurrentOutput  any
	History        []task.StageExecutionRecord
	VisitedNodeIDs []string
}

// Router owns the worklist, the merge wait-state table, and dispatches
// node execution and role-specific routing for one DAG.
type Router struct {
	DAG      *dag.DAG
	Tasks    *task.Manager
	Executor NodeExecutor
	Bus      *telemetry.Bus

	mu         sync.Mutex
	queue      []WorkItem
	mergeWaits map[string]map[string]any // "<merge_node_id>|<parent_task_id>" -> from_stage_id -> output
}

// New builds a Router over an already-validated DAG.
func New(d *dag.DAG, tasks *task.Manager, exec NodeExecutor, bus *telemetry.Bus) *Router {
	return &Router{
		DAG:        d,
		Tasks:      tasks,
		Executor:   exec,
		Bus:        bus,
		mergeWaits: make(map[string]map[string]any),
	}
}

// ExecuteTask runs spec.md §4.9's execute_task: create a root task, select
// the start node, seed the worklist, and drain it to completion.
func (r *Router) ExecuteTask(ctx context.Context, spec task.Spec, startNodeID string) (Result, error) {
	start, err := r.resolveStart(startNodeID)
	if err != nil {
		return Result{}, err
	}
	t := r.Tasks.CreateRoot(spec)
	r.Enqueue(WorkItem{TaskID: t.TaskID, NodeID: start.StageID})

	if err := r.Run(ctx); err != nil {
		return Result{}, err
	}
	return r.result(t.TaskID)
}

func (r *Router) resolveStart(explicit string) (*dag.Node, error) {
	if explicit == "" {
		return r.DAG.DefaultStart()
	}
	n, ok := r.DAG.Node(explicit)
	if !ok {
		return nil, errs.Routing(errs.SourceRouter, "start_node_not_found", "start node %q not found", explicit)
	}
	if n.Role != dag.RoleStart {
		return nil, errs.Routing(errs.SourceRouter, "start_node_wrong_role", "node %q is not a START node", explicit)
	}
	return n, nil
}

// Enqueue appends a work item to the back of the worklist. Exposed so an
// external caller (e.g. the queued-execution surface, spec.md §4.10) can
// seed the same router used by ExecuteTask.
func (r *Router) Enqueue(item WorkItem) {
	r.mu.Lock()
	r.queue = append(r.queue, item)
	r.mu.Unlock()
}

func (r *Router) dequeue() (WorkItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return WorkItem{}, false
	}
	item := r.queue[0]
	r.queue = r.queue[1:]
	return item, true
}

// Run drains the worklist until empty (spec.md §4.9's termination rule),
// stopping immediately on the first routing error.
func (r *Router) Run(ctx context.Context) error {
	for {
		item, ok := r.dequeue()
		if !ok {
			return nil
		}
		if err := r.process(ctx, item); err != nil {
			r.emit(ctx, "routing_error", item.TaskID, item.NodeID, map[string]any{"error": err.Error()})
			return err
		}
	}
}

func (r *Router) process(ctx context.Context, item WorkItem) error {
	t, ok := r.Tasks.Get(item.TaskID)
	if !ok {
		return errs.Routing(errs.SourceRouter, "task_not_found", "task %q not found", item.TaskID)
	}
	node, ok := r.DAG.Node(item.NodeID)
	if !ok {
		return errs.Routing(errs.SourceRouter, "node_not_found", "node %q not found", item.NodeID).WithTask(item.TaskID)
	}

	// MERGE nodes are a pure router synchronization point: the node is
	// never individually executed per arrival, only combined once every
	// inbound parent has arrived (spec.md §4.9).
	if node.Role == dag.RoleMerge {
		return r.handleMergeArrival(ctx, item.NodeID, t)
	}

	r.Tasks.SetCurrentNode(item.TaskID, item.NodeID)
	r.Tasks.SetStatus(item.TaskID, task.StatusRunning)

	rec := r.Executor.ExecuteNode(ctx, t, *node)
	outputValid := rec.NodeStatus == string(task.StatusCompleted)
	if err := r.Tasks.AppendHistory(item.TaskID, rec, rec.Output, outputValid); err != nil {
		return err
	}
	t, ok = r.Tasks.Get(item.TaskID)
	if !ok {
		return errs.Routing(errs.SourceRouter, "task_not_found", "task %q vanished mid-execution", item.TaskID)
	}

	if !outputValid {
		return r.concludeFailed(ctx, t, node)
	}

	switch node.Role {
	case dag.RoleStart, dag.RoleLinear:
		return r.routeLinear(t, node)
	case dag.RoleDecision:
		return r.routeDecision(t, node, rec.Output)
	case dag.RoleBranch:
		return r.routeBranch(ctx, t, node)
	case dag.RoleSplit:
		return r.routeSplit(ctx, t, node, rec.Output)
	case dag.RoleExit:
		return r.routeExit(ctx, t, node)
	default:
		return errs.Routing(errs.SourceRouter, "unknown_role", "node %q: unrecognized role %q for routing", node.StageID, node.Role).WithTask(t.TaskID)
	}
}

func (r *Router) routeLinear(t task.Task, node *dag.Node) error {
	outs := r.DAG.Outbound(node.StageID)
	if len(outs) != 1 {
		return errs.Routing(errs.SourceRouter, "linear_outbound_arity", "node %q (%s): expected exactly one outbound edge, found %d", node.StageID, node.Role, len(outs)).WithTask(t.TaskID)
	}
	r.Enqueue(WorkItem{TaskID: t.TaskID, NodeID: outs[0].To})
	return nil
}

// routeDecision implements original_source/runtime/router.py's
// resolve_edge priority order exactly: selected_edge, then condition,
// then route, then next; a non-dict output is stringified before
// matching against edge.Condition (spec.md §4.9).
func (r *Router) routeDecision(t task.Task, node *dag.Node, output any) error {
	outs := r.DAG.Outbound(node.StageID)
	condition := extractCondition(output)
	for _, e := range outs {
		if e.Condition == condition {
			r.Enqueue(WorkItem{TaskID: t.TaskID, NodeID: e.To})
			return nil
		}
	}
	return errs.Routing(errs.SourceRouter, "no_matching_edge", "decision node %q: no outbound edge matches condition %q", node.StageID, condition).WithTask(t.TaskID).WithStage(node.StageID)
}

func extractCondition(output any) string {
	m, ok := output.(map[string]any)
	if !ok {
		return fmt.Sprint(output)
	}
	for _, key := range []string{"selected_edge", "condition", "route", "next"} {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			if s != "" {
				return s
			}
			continue
		}
		return fmt.Sprint(v)
	}
	return ""
}

// routeBranch clones the task once per outbound edge (spec.md §4.9);
// the parent stays suspended until notifyParent concludes it (DESIGN.md
// Open Question 1: any clone EXIT is sufficient unless the branch
// converges at a downstream MERGE).
func (r *Router) routeBranch(ctx context.Context, t task.Task, node *dag.Node) error {
	outs := r.DAG.Outbound(node.StageID)
	for _, e := range outs {
		clone, err := r.Tasks.CreateClone(t.TaskID, e.Condition, t.CurrentOutput)
		if err != nil {
			return err
		}
		r.emit(ctx, "branch_spawned", clone.TaskID, node.StageID, map[string]any{"branch_label": e.Condition, "parent_task_id": t.TaskID})
		r.Enqueue(WorkItem{TaskID: clone.TaskID, NodeID: e.To})
	}
	return nil
}

// routeSplit fans the step's output out into one subtask per item,
// distributed round-robin across the node's outbound edges (spec.md
// §4.9).
func (r *Router) routeSplit(ctx context.Context, t task.Task, node *dag.Node, output any) error {
	inputs, err := splitInputs(output)
	if err != nil {
		return errs.Routing(errs.SourceRouter, "split_invalid_input", "split node %q: %v", node.StageID, err).WithTask(t.TaskID).WithStage(node.StageID)
	}
	outs := r.DAG.Outbound(node.StageID)
	if len(outs) == 0 {
		return errs.Routing(errs.SourceRouter, "split_no_outbound", "split node %q has no outbound edges", node.StageID).WithTask(t.TaskID)
	}
	for i, in := range inputs {
		sub, err := r.Tasks.CreateSubtask(t.TaskID, i, in)
		if err != nil {
			return err
		}
		edge := outs[i%len(outs)]
		r.emit(ctx, "split_spawned", sub.TaskID, node.StageID, map[string]any{"subtask_index": i, "parent_task_id": t.TaskID})
		r.Enqueue(WorkItem{TaskID: sub.TaskID, NodeID: edge.To})
	}
	return nil
}

func splitInputs(output any) ([]any, error) {
	switch v := output.(type) {
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("split input list is empty")
		}
		return v, nil
	case map[string]any:
		raw, ok := v["subtask_inputs"]
		if !ok {
			return nil, fmt.Errorf("split input object missing subtask_inputs")
		}
		list, ok := raw.([]any)
		if !ok || len(list) == 0 {
			return nil, fmt.Errorf("subtask_inputs must be a non-empty list")
		}
		return list, nil
	default:
		return nil, fmt.Errorf("split input must be a list or an object with subtask_inputs, got %T", output)
	}
}

// routeExit concludes the task (COMPLETED, or FAILED if the node is
// marked always-fail), then notifies any lineage parent so BRANCH/SPLIT
// parents can evaluate their own completion (spec.md §4.9).
func (r *Router) routeExit(ctx context.Context, t task.Task, node *dag.Node) error {
	status := task.StatusCompleted
	if node.AlwaysFail {
		status = task.StatusFailed
	}
	r.Tasks.SetStatus(t.TaskID, status)
	r.emit(ctx, "task_exit", t.TaskID, node.StageID, map[string]any{"status": string(status)})

	t.Status = status
	r.notifyParent(ctx, t)
	return nil
}

func (r *Router) concludeFailed(ctx context.Context, t task.Task, node *dag.Node) error {
	r.Tasks.SetStatus(t.TaskID, task.StatusFailed)
	r.emit(ctx, "task_failed", t.TaskID, node.StageID, nil)

	t.Status = task.StatusFailed
	r.notifyParent(ctx, t)
	return nil
}

// notifyParent implements DESIGN.md Open Question 1: a BRANCH clone that
// concludes (by reaching EXIT, directly or via failure) is sufficient to
// conclude its parent, UNLESS the branch's paths converge at a downstream
// MERGE — in which case, by DAG-validation construction, the clone's path
// cannot reach an EXIT node before the MERGE, so this call never fires
// for a converging branch; the merge path concludes the parent instead.
// SPLIT subtasks do not force their parent's conclusion on their own
// (spec.md §4.9 defines no such rule for SPLIT).
func (r *Router) notifyParent(ctx context.Context, t task.Task) {
	if t.Lineage.Type != task.LineageClone {
		return
	}
	parentID := t.Lineage.ParentTaskID
	parent, ok := r.Tasks.Get(parentID)
	if !ok || parent.Status == task.StatusCompleted || parent.Status == task.StatusFailed {
		return
	}

	r.Tasks.SetOutput(parentID, t.CurrentOutput)
	status := task.StatusCompleted
	if t.Status == task.StatusFailed {
		status = task.StatusFailed
	}
	r.Tasks.SetStatus(parentID, status)
	r.emit(ctx, "branch_parent_concluded", parentID, "", map[string]any{"via_clone": t.TaskID})

	if updated, ok := r.Tasks.Get(parentID); ok {
		r.notifyParent(ctx, updated)
	}
}

// handleMergeArrival records one inbound parent's arrival at a MERGE node
// and, once every inbound edge has arrived, combines their outputs (in
// inbound-edge declaration order) into a single downstream work item
// (spec.md §4.9). The wait state is mirrored onto the owning task's
// checkpoint metadata so it round-trips a save/load cycle (DESIGN.md Open
// Question 2).
func (r *Router) handleMergeArrival(ctx context.Context, mergeNodeID string, t task.Task) error {
	parentTaskID := t.TaskID
	if t.Lineage.Type == task.LineageClone || t.Lineage.Type == task.LineageSubtask {
		parentTaskID = t.Lineage.ParentTaskID
	}
	fromStageID := t.CurrentNodeID
	key := mergeNodeID + "|" + parentTaskID

	r.mu.Lock()
	wait, ok := r.mergeWaits[key]
	if !ok {
		wait = make(map[string]any)
		r.mergeWaits[key] = wait
	}
	wait[fromStageID] = t.CurrentOutput
	received := len(wait)
	snapshot := make(map[string]any, len(wait))
	for k, v := range wait {
		snapshot[k] = v
	}
	r.mu.Unlock()

	r.Tasks.MergeMetadata(parentTaskID, "merge_wait:"+mergeNodeID, snapshot)

	inbound := r.DAG.Inbound(mergeNodeID)
	if received < len(inbound) {
		r.emit(ctx, "merge_waiting", parentTaskID, mergeNodeID, map[string]any{"received": received, "expected": len(inbound)})
		return nil
	}

	combined := make([]any, 0, len(inbound))
	r.mu.Lock()
	for _, e := range inbound {
		combined = append(combined, wait[e.From])
	}
	delete(r.mergeWaits, key)
	r.mu.Unlock()
	r.Tasks.MergeMetadata(parentTaskID, "merge_wait:"+mergeNodeID, nil)

	r.Tasks.SetOutput(parentTaskID, combined)
	r.emit(ctx, "merge_completed", parentTaskID, mergeNodeID, map[string]any{"inbound_count": len(inbound)})

	outs := r.DAG.Outbound(mergeNodeID)
	if len(outs) != 1 {
		return errs.Routing(errs.SourceRouter, "merge_outbound_arity", "merge node %q must have exactly one outbound edge, found %d", mergeNodeID, len(outs)).WithTask(parentTaskID)
	}
	r.Enqueue(WorkItem{TaskID: parentTaskID, NodeID: outs[0].To})
	return nil
}

func (r *Router) result(taskID string) (Result, error) {
	t, ok := r.Tasks.Get(taskID)
	if !ok {
		return Result{}, errs.Routing(errs.SourceRouter, "task_not_found", "task %q not found", taskID)
	}
	visited := make([]string, 0, len(t.History))
	for _, rec := range t.History {
		visited = append(visited, rec.NodeID)
	}
	return Result{
		TaskID:         t.TaskID,
		Status:         t.Status,
		CurrentOutput:  t.CurrentOutput,
		History:        t.History,
		VisitedNodeIDs: visited,
	}, nil
}

func (r *Router) emit(ctx context.Context, name, taskID, nodeID string, extra map[string]any) {
	if r.Bus == nil {
		return
	}
	r.Bus.Emit(ctx, telemetry.TypeRouting, name, taskID, nodeID, extra)
}
