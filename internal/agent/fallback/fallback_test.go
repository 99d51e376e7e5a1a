package fallback

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/antigravity-dev/agentengine/internal/agent"
)

func TestDecide_RecognizesConfiguredActions(t *testing.T) {
	c := New("create")
	if got := c.Decide(map[string]any{"action": "edit"}); got != "edit" {
		t.Fatalf("expected recognized action to pass through, got %q", got)
	}
}

func TestDecide_FallsBackToDefaultOnUnrecognizedAction(t *testing.T) {
	c := New("create")
	if got := c.Decide(map[string]any{"action": "delete"}); got != "create" {
		t.Fatalf("expected default branch for unrecognized action, got %q", got)
	}
}

func TestDecide_FallsBackToDefaultWhenPayloadNotAMap(t *testing.T) {
	c := New("create")
	if got := c.Decide("not a map"); got != "create" {
		t.Fatalf("expected default branch for non-map payload, got %q", got)
	}
}

func TestGenerate_EmitsDefaultConditionAsJSON(t *testing.T) {
	c := New("create")
	resp, err := c.Generate(context.Background(), agent.Prompt{AgentStage: "stage-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal([]byte(resp.Raw), &decoded); err != nil {
		t.Fatalf("expected valid JSON response, got %q: %v", resp.Raw, err)
	}
	if decoded["condition"] != "create" {
		t.Fatalf("expected condition=create, got %+v", decoded)
	}
}
