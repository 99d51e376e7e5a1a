package agent

import (
	"context"
	"testing"

	"github.com/antigravity-dev/agentengine/internal/manifest"
)

func TestBuildPrompt_PlainWhenNoTools(t *testing.T) {
	p := BuildPrompt("v1", TaskInfo{Mode: "auto", Request: "do a thing"}, NodeInfo{StageID: "s1"}, []any{"ctx-item"})
	if p.Instructions != "" {
		t.Fatal("expected no tool-aware instructions when the node declares no tools")
	}
	if len(p.Tools) != 0 {
		t.Fatal("expected no tool summaries when the node declares no tools")
	}
	if p.TaskMode != "auto" || p.AgentStage != "s1" {
		t.Fatalf("unexpected prompt fields: %+v", p)
	}
}

func TestBuildPrompt_ToolAwareWhenNodeDeclaresTools(t *testing.T) {
	p := BuildPrompt("v1", TaskInfo{}, NodeInfo{StageID: "s1", Tools: []string{"fs.read"}}, nil)
	if p.Instructions == "" {
		t.Fatal("expected tool-aware instructions to be set")
	}
	if len(p.Tools) != 1 || p.Tools[0].ToolID != "fs.read" {
		t.Fatalf("expected a tool summary for fs.read, got %+v", p.Tools)
	}
}

func TestParseResponse_SplitsMainResultAndToolPlan(t *testing.T) {
	raw := `{"main_result": {"ok": true}, "tool_plan": {"tool_plan_id": "p1", "steps": [{"step_id": "s1", "tool_id": "fs.read", "inputs": {}}]}}`
	main, plan := ParseResponse(raw)

	m, ok := main.(map[string]any)
	if !ok || m["ok"] != true {
		t.Fatalf("expected main_result to be extracted, got %+v", main)
	}
	if plan == nil || plan.PlanID != "p1" || len(plan.Steps) != 1 || plan.Steps[0].ToolID != "fs.read" {
		t.Fatalf("expected tool plan to be parsed, got %+v", plan)
	}
}

func TestParseResponse_PassesThroughWhenNoToolPlan(t *testing.T) {
	raw := `{"answer": 42}`
	main, plan := ParseResponse(raw)
	if plan != nil {
		t.Fatalf("expected no tool plan, got %+v", plan)
	}
	m, ok := main.(map[string]any)
	if !ok || m["answer"].(float64) != 42 {
		t.Fatalf("expected the full object to pass through, got %+v", main)
	}
}

func TestParseResponse_NonJSONPassesThroughAsLiteralString(t *testing.T) {
	main, plan := ParseResponse("plain text response")
	if plan != nil {
		t.Fatal("expected no tool plan for a non-JSON response")
	}
	if main != "plain text response" {
		t.Fatalf("expected literal string pass-through, got %+v", main)
	}
}

type stubClient struct {
	raw string
	err error
}

func (s stubClient) Generate(context.Context, Prompt) (Response, error) {
	return Response{Raw: s.raw}, s.err
}

func TestRunAgentStage_ValidatesAgainstOutputSchema(t *testing.T) {
	rt := NewRuntime(stubClient{raw: `{"name": "ada"}`}, "v1", manifest.NoopValidator{})
	out, plan, err := rt.RunAgentStage(context.Background(), TaskInfo{}, NodeInfo{StageID: "s1", OutputsSchemaID: "greeting"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan != nil {
		t.Fatal("expected no tool plan")
	}
	m, ok := out.(map[string]any)
	if !ok || m["name"] != "ada" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

type failingValidator struct{}

func (failingValidator) Validate(string, any) (any, error) {
	return nil, errBoom
}

var errBoom = fakeErr("boom")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func TestRunAgentStage_PropagatesSchemaValidationFailure(t *testing.T) {
	rt := NewRuntime(stubClient{raw: `{"name": "ada"}`}, "v1", failingValidator{})
	_, _, err := rt.RunAgentStage(context.Background(), TaskInfo{}, NodeInfo{StageID: "s1", OutputsSchemaID: "greeting"}, nil)
	if err == nil {
		t.Fatal("expected schema validation failure to propagate")
	}
}

func TestRunAgentStage_ExtractsToolPlan(t *testing.T) {
	raw := `{"main_result": {"ok": true}, "tool_plan": {"tool_plan_id": "p1", "steps": []}}`
	rt := NewRuntime(stubClient{raw: raw}, "v1", nil)
	_, plan, err := rt.RunAgentStage(context.Background(), TaskInfo{}, NodeInfo{StageID: "s1", Tools: []string{"fs.read"}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan == nil || plan.PlanID != "p1" {
		t.Fatalf("expected tool plan p1, got %+v", plan)
	}
}
