package dag

import (
	"github.com/antigravity-dev/agentengine/internal/errs"
)

// DAG is the in-memory routing structure built once at engine construction
// time from a validated set of nodes and edges. Construction and lookups
// are O(|V|+|E|); see spec.md §4.1.
type DAG struct {
	nodes   map[string]*Node
	order   []string // insertion order, used for deterministic iteration
	forward map[string][]Edge
	reverse map[string][]Edge

	// convergesAtMerge maps a BRANCH stage_id to the single MERGE stage_id
	// that all of its outbound paths reconverge at, if one exists. Computed
	// once during Validate; resolves spec.md §9's branch-completion open
	// question (see DESIGN.md).
	convergesAtMerge map[string]string
}

// New constructs a DAG from a node set and edge list. It does not validate;
// call Validate separately so construction-time and validation-time errors
// stay distinguishable per spec.md §7.
func New(nodes map[string]*Node, edges []Edge) *DAG {
	d := &DAG{
		nodes:   nodes,
		forward: make(map[string][]Edge, len(nodes)),
		reverse: make(map[string][]Edge, len(nodes)),
	}
	for id := range nodes {
		d.order = append(d.order, id)
	}
	for _, e := range edges {
		d.forward[e.From] = append(d.forward[e.From], e)
		d.reverse[e.To] = append(d.reverse[e.To], e)
	}
	return d
}

// Node looks up a node by stage_id.
func (d *DAG) Node(stageID string) (*Node, bool) {
	n, ok := d.nodes[stageID]
	return n, ok
}

// Nodes returns the full node map. Callers must not mutate it.
func (d *DAG) Nodes() map[string]*Node {
	return d.nodes
}

// Outbound returns the edges leaving stageID, in declaration order.
func (d *DAG) Outbound(stageID string) []Edge {
	return d.forward[stageID]
}

// Inbound returns the edges entering stageID, in declaration order.
func (d *DAG) Inbound(stageID string) []Edge {
	return d.reverse[stageID]
}

// DefaultStart returns the unique node with role=START and default_start=true.
func (d *DAG) DefaultStart() (*Node, error) {
	var found *Node
	count := 0
	for _, id := range d.order {
		n := d.nodes[id]
		if n.Role == RoleStart && n.DefaultStart {
			found = n
			count++
		}
	}
	if count != 1 {
		return nil, errs.Validation(errs.SourceRuntime, "default_start", "expected exactly one default start node, found %d", count)
	}
	return found, nil
}

// ConvergesAtMerge returns the MERGE stage_id that all outbound paths of a
// BRANCH node reconverge at, if every path reaches the same MERGE node
// before any EXIT. Computed by Validate; returns ("", false) if absent or
// if Validate has not run.
func (d *DAG) ConvergesAtMerge(branchStageID string) (string, bool) {
	if d.convergesAtMerge == nil {
		return "", false
	}
	m, ok := d.convergesAtMerge[branchStageID]
	return m, ok
}

const (
	colorWhite = 0
	colorGray  = 1
	colorBlack = 2
)

var roleArity = map[Role]struct{ minIn, minOut, maxOut int }{
	RoleStart:    {0, 1, 1},
	RoleLinear:   {1, 1, 1},
	RoleDecision: {1, 2, -1},
	RoleBranch:   {1, 2, -1},
	RoleSplit:    {1, 1, -1},
	RoleMerge:    {2, 1, 1},
	RoleExit:     {1, 0, 0},
}

// Validate enforces every structural invariant from spec.md §3-4.1 in a
// single pass: node/role sanity, acyclicity, reachability from the default
// start, the default start reaching at least one EXIT, and per-role edge
// arity. Any failure returns a *errs.Error naming the offending node/edge.
func (d *DAG) Validate() error {
	if err := d.validateNodeInvariants(); err != nil {
		return err
	}
	start, err := d.DefaultStart()
	if err != nil {
		return err
	}
	if err := d.validateExitExists(); err != nil {
		return err
	}
	if err := d.validateAcyclic(); err != nil {
		return err
	}
	reachable := d.reachableFrom(start.StageID)
	for _, id := range d.order {
		if !reachable[id] {
			return errs.Validation(errs.SourceRuntime, "unreachable_node", "node %q is not reachable from the default start %q", id, start.StageID)
		}
	}
	if !d.reachesExit(start.StageID) {
		return errs.Validation(errs.SourceRuntime, "no_exit_reachable", "default start %q cannot reach any EXIT node", start.StageID)
	}
	if err := d.validateArity(); err != nil {
		return err
	}
	d.computeBranchConvergence()
	return nil
}

func (d *DAG) validateNodeInvariants() error {
	for _, id := range d.order {
		n := d.nodes[id]
		if n.Role == RoleStart && n.Kind != KindDeterministic {
			return errs.Validation(errs.SourceRuntime, "start_must_be_deterministic", "node %q: START nodes must be DETERMINISTIC", id)
		}
		if n.Role == RoleExit {
			if n.Kind != KindDeterministic {
				return errs.Validation(errs.SourceRuntime, "exit_must_be_deterministic", "node %q: EXIT nodes must be DETERMINISTIC", id)
			}
			if len(n.Tools) > 0 {
				return errs.Validation(errs.SourceRuntime, "exit_forbids_tools", "node %q: EXIT nodes forbid tools", id)
			}
		}
		if n.Kind == KindAgent && n.AgentID == "" {
			return errs.Validation(errs.SourceRuntime, "agent_requires_id", "node %q: AGENT kind requires a non-empty agent_id", id)
		}
		if n.DefaultStart && n.Role != RoleStart {
			return errs.Validation(errs.SourceRuntime, "default_start_not_on_start", "node %q: default_start is only permitted on START nodes", id)
		}
		if _, ok := roleArity[n.Role]; !ok {
			return errs.Validation(errs.SourceRuntime, "unknown_role", "node %q: unknown role %q", id, n.Role)
		}
	}
	return nil
}

func (d *DAG) validateExitExists() error {
	for _, id := range d.order {
		if d.nodes[id].Role == RoleExit {
			return nil
		}
	}
	return errs.Validation(errs.SourceRuntime, "no_exit", "workflow has no EXIT node")
}

func (d *DAG) validateAcyclic() error {
	color := make(map[string]int, len(d.order))
	var stack []string
	var visit func(id string) error
	visit = func(id string) error {
		color[id] = colorGray
		stack = append(stack, id)
		for _, e := range d.forward[id] {
			switch color[e.To] {
			case colorGray:
				return errs.Validation(errs.SourceRuntime, "cycle_detected", "cycle detected involving node %q", e.To)
			case colorWhite:
				if err := visit(e.To); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = colorBlack
		return nil
	}
	for _, id := range d.order {
		if color[id] == colorWhite {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *DAG) reachableFrom(start string) map[string]bool {
	seen := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range d.forward[id] {
			if !seen[e.To] {
				seen[e.To] = true
				stack = append(stack, e.To)
			}
		}
	}
	return seen
}

func (d *DAG) reachesExit(start string) bool {
	seen := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if d.nodes[id].Role == RoleExit {
			return true
		}
		for _, e := range d.forward[id] {
			if !seen[e.To] {
				seen[e.To] = true
				stack = append(stack, e.To)
			}
		}
	}
	return false
}

func (d *DAG) validateArity() error {
	for _, id := range d.order {
		n := d.nodes[id]
		arity := roleArity[n.Role]
		in := len(d.reverse[id])
		out := len(d.forward[id])
		if in < arity.minIn {
			return errs.Validation(errs.SourceRuntime, "inbound_arity", "node %q (%s): expected >=%d inbound edges, found %d", id, n.Role, arity.minIn, in)
		}
		if arity.maxOut >= 0 && (out < arity.minOut || out > arity.maxOut) {
			return errs.Validation(errs.SourceRuntime, "outbound_arity", "node %q (%s): expected exactly %d outbound edges, found %d", id, n.Role, arity.minOut, out)
		}
		if arity.maxOut < 0 && out < arity.minOut {
			return errs.Validation(errs.SourceRuntime, "outbound_arity", "node %q (%s): expected >=%d outbound edges, found %d", id, n.Role, arity.minOut, out)
		}
	}
	return nil
}

// computeBranchConvergence resolves, for every BRANCH node, whether all of
// its outbound edges reconverge at a single MERGE node reachable from each
// of them without passing through an EXIT first. See DESIGN.md Open
// Question 1.
func (d *DAG) computeBranchConvergence() {
	d.convergesAtMerge = make(map[string]string)
	for _, id := range d.order {
		n := d.nodes[id]
		if n.Role != RoleBranch {
			continue
		}
		outs := d.forward[id]
		if len(outs) == 0 {
			continue
		}
		var candidate string
		ok := true
		for i, e := range outs {
			merges := d.firstMergesReachable(e.To)
			if i == 0 {
				if len(merges) != 1 {
					ok = false
					break
				}
				for m := range merges {
					candidate = m
				}
				continue
			}
			if !merges[candidate] {
				ok = false
				break
			}
		}
		if ok && candidate != "" {
			d.convergesAtMerge[id] = candidate
		}
	}
}

// firstMergesReachable walks forward from start and returns the set of
// MERGE node ids encountered before any EXIT on each path (a path that
// hits EXIT first contributes no candidate).
func (d *DAG) firstMergesReachable(start string) map[string]bool {
	result := make(map[string]bool)
	visited := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		n := d.nodes[id]
		if n == nil {
			return
		}
		if n.Role == RoleMerge {
			result[id] = true
			return
		}
		if n.Role == RoleExit {
			return
		}
		for _, e := range d.forward[id] {
			walk(e.To)
		}
	}
	walk(start)
	return result
}
