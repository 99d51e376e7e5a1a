// Package fallback implements the deterministic LLMClient used when no
// real-model environment toggle is set, exactly per spec.md §4.7 and
// original_source/runtime/agent_runtime.py's "lightweight deterministic
// branching when no llm_client is configured" path: a DECISION node reads
// current_output["action"] (falling back to the first branch label when
// absent or unrecognized); every other AGENT node passes the task's
// current output through unchanged. The node executor applies both rules
// via Decide and never calls Generate for this client.
package fallback

import (
	"context"
	"encoding/json"

	"github.com/antigravity-dev/agentengine/internal/agent"
)

// Client is the deterministic agent.LLMClient stand-in. DefaultBranch is
// the condition value returned for a DECISION node whose current output
// carries no recognized action (the original defaults to "create").
type Client struct {
	DefaultBranch string
	recognized    map[string]bool
}

// New builds a fallback Client. recognizedActions lists the action values
// that should be passed straight through as the decision condition (the
// original recognizes exactly "create" and "edit"); any other action, or
// no action at all, yields defaultBranch.
func New(defaultBranch string, recognizedActions ...string) *Client {
	if defaultBranch == "" {
		defaultBranch = "create"
	}
	if len(recognizedActions) == 0 {
		recognizedActions = []string{"create", "edit"}
	}
	recognized := make(map[string]bool, len(recognizedActions))
	for _, a := range recognizedActions {
		recognized[a] = true
	}
	return &Client{DefaultBranch: defaultBranch, recognized: recognized}
}

// Generate implements agent.LLMClient.
func (c *Client) Generate(_ context.Context, prompt agent.Prompt) (agent.Response, error) {
	raw, err := json.Marshal(map[string]any{"condition": c.DefaultBranch})
	if err != nil {
		return agent.Response{}, err
	}
	return agent.Response{Raw: string(raw)}, nil
}

// Decide resolves the condition for a DECISION node given the task's
// current output, bypassing the prompt/LLM round trip entirely — callers
// (the node executor) invoke this directly for DECISION-role nodes rather
// than going through Generate, matching the original's early-return branch
// in run_agent_stage before any prompt is ever built.
func (c *Client) Decide(currentOutput any) string {
	payload, ok := currentOutput.(map[string]any)
	if !ok {
		return c.DefaultBranch
	}
	action, _ := payload["action"].(string)
	if c.recognized[action] {
		return action
	}
	return c.DefaultBranch
}
