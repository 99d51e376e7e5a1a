package dag

import "testing"

func linearNodes() (map[string]*Node, []Edge) {
	nodes := map[string]*Node{
		"start":   {StageID: "start", Role: RoleStart, Kind: KindDeterministic, DefaultStart: true},
		"process": {StageID: "process", Role: RoleLinear, Kind: KindDeterministic},
		"exit":    {StageID: "exit", Role: RoleExit, Kind: KindDeterministic},
	}
	edges := []Edge{
		{From: "start", To: "process"},
		{From: "process", To: "exit"},
	}
	return nodes, edges
}

func TestValidate_LinearHappyPath(t *testing.T) {
	nodes, edges := linearNodes()
	d := New(nodes, edges)
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	start, err := d.DefaultStart()
	if err != nil {
		t.Fatalf("DefaultStart: %v", err)
	}
	if start.StageID != "start" {
		t.Fatalf("expected start, got %s", start.StageID)
	}
}

func TestValidate_MissingDefaultStart(t *testing.T) {
	nodes, edges := linearNodes()
	nodes["start"].DefaultStart = false
	d := New(nodes, edges)
	err := d.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if got := err.Error(); !contains(got, "default start") {
		t.Fatalf("expected error about default start, got %q", got)
	}
}

func TestValidate_TwoDefaultStarts(t *testing.T) {
	nodes, edges := linearNodes()
	nodes["other_start"] = &Node{StageID: "other_start", Role: RoleStart, Kind: KindDeterministic, DefaultStart: true}
	d := New(nodes, edges)
	err := d.Validate()
	if err == nil {
		t.Fatal("expected validation error for two default starts")
	}
}

func TestValidate_CycleDetected(t *testing.T) {
	nodes := map[string]*Node{
		"start": {StageID: "start", Role: RoleStart, Kind: KindDeterministic, DefaultStart: true},
		"a":     {StageID: "a", Role: RoleLinear, Kind: KindDeterministic},
		"b":     {StageID: "b", Role: RoleLinear, Kind: KindDeterministic},
		"exit":  {StageID: "exit", Role: RoleExit, Kind: KindDeterministic},
	}
	edges := []Edge{
		{From: "start", To: "a"},
		{From: "a", To: "b"},
		{From: "b", To: "a"},
		{From: "a", To: "exit"},
	}
	d := New(nodes, edges)
	err := d.Validate()
	if err == nil {
		t.Fatal("expected cycle validation error")
	}
	if !contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %q", err.Error())
	}
}

func TestValidate_UnreachableNode(t *testing.T) {
	nodes, edges := linearNodes()
	nodes["orphan"] = &Node{StageID: "orphan", Role: RoleLinear, Kind: KindDeterministic}
	// orphan has no inbound edge from start's component; Validate checks
	// reachability before arity, and orphan is given an outbound edge to an
	// EXIT so that its only fault is being unreachable.
	nodes["orphan2"] = &Node{StageID: "orphan2", Role: RoleExit, Kind: KindDeterministic}
	edges = append(edges, Edge{From: "orphan", To: "orphan2"})
	d := New(nodes, edges)
	err := d.Validate()
	if err == nil {
		t.Fatal("expected unreachable-node validation error")
	}
}

func TestValidate_DecisionRequiresTwoOutbound(t *testing.T) {
	nodes := map[string]*Node{
		"start":    {StageID: "start", Role: RoleStart, Kind: KindDeterministic, DefaultStart: true},
		"decision": {StageID: "decision", Role: RoleDecision, Kind: KindDeterministic},
		"exit":     {StageID: "exit", Role: RoleExit, Kind: KindDeterministic},
	}
	edges := []Edge{
		{From: "start", To: "decision"},
		{From: "decision", To: "exit", Condition: "ok"},
	}
	d := New(nodes, edges)
	err := d.Validate()
	if err == nil {
		t.Fatal("expected arity validation error for DECISION with one outbound edge")
	}
}

func TestBranchConvergence_DetectsCommonMerge(t *testing.T) {
	nodes := map[string]*Node{
		"start":  {StageID: "start", Role: RoleStart, Kind: KindDeterministic, DefaultStart: true},
		"branch": {StageID: "branch", Role: RoleBranch, Kind: KindDeterministic},
		"a":      {StageID: "a", Role: RoleLinear, Kind: KindDeterministic},
		"b":      {StageID: "b", Role: RoleLinear, Kind: KindDeterministic},
		"merge":  {StageID: "merge", Role: RoleMerge, Kind: KindDeterministic},
		"exit":   {StageID: "exit", Role: RoleExit, Kind: KindDeterministic},
	}
	edges := []Edge{
		{From: "start", To: "branch"},
		{From: "branch", To: "a", Condition: "a"},
		{From: "branch", To: "b", Condition: "b"},
		{From: "a", To: "merge"},
		{From: "b", To: "merge"},
		{From: "merge", To: "exit"},
	}
	d := New(nodes, edges)
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	merge, ok := d.ConvergesAtMerge("branch")
	if !ok || merge != "merge" {
		t.Fatalf("expected branch to converge at merge, got %q ok=%v", merge, ok)
	}
}

func TestBranchConvergence_NoneWhenPathsExitIndependently(t *testing.T) {
	nodes := map[string]*Node{
		"start":  {StageID: "start", Role: RoleStart, Kind: KindDeterministic, DefaultStart: true},
		"branch": {StageID: "branch", Role: RoleBranch, Kind: KindDeterministic},
		"exit_a": {StageID: "exit_a", Role: RoleExit, Kind: KindDeterministic},
		"exit_b": {StageID: "exit_b", Role: RoleExit, Kind: KindDeterministic},
	}
	edges := []Edge{
		{From: "start", To: "branch"},
		{From: "branch", To: "exit_a", Condition: "a"},
		{From: "branch", To: "exit_b", Condition: "b"},
	}
	d := New(nodes, edges)
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, ok := d.ConvergesAtMerge("branch"); ok {
		t.Fatal("expected no convergence when branches exit independently")
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
