// Package anthropicclient adapts github.com/anthropics/anthropic-sdk-go to
// agent.LLMClient. Grounded on goadesign-goa-ai's features/model/anthropic
// adapter (MessagesClient seam allowing a mock in tests, Options struct for
// model/token defaults), narrowed from goa-ai's full tool-calling surface
// down to the single-turn JSON-prompt-in/text-out contract
// internal/agent.LLMClient needs.
package anthropicclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/antigravity-dev/agentengine/internal/agent"
)

// MessagesClient captures the subset of the Anthropic SDK used here, so
// tests can substitute a mock rather than hitting the network.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter's defaults.
type Options struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Client implements agent.LLMClient on top of Anthropic Messages.
type Client struct {
	msg    MessagesClient
	model  string
	maxTok int64
	temp   float64
}

// New builds a Client from an explicit MessagesClient (primarily for
// tests); production callers should use NewFromAPIKey.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropicclient: messages client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropicclient: model identifier is required")
	}
	maxTok := opts.MaxTokens
	if maxTok <= 0 {
		maxTok = 4096
	}
	return &Client{msg: msg, model: opts.Model, maxTok: maxTok, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a Client reading the Anthropic API key directly
// (spec.md §6's "toggle enabling real LLM calls" wires this constructor
// only when that env var is set).
func NewFromAPIKey(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropicclient: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{Model: model})
}

// Generate implements agent.LLMClient: the prompt is JSON-encoded as a
// single user message, and the first text content block of the response
// becomes Response.Raw for internal/agent.ParseResponse to decode.
func (c *Client) Generate(ctx context.Context, prompt agent.Prompt) (agent.Response, error) {
	content, err := json.Marshal(prompt)
	if err != nil {
		return agent.Response{}, fmt.Errorf("anthropicclient: marshal prompt: %w", err)
	}

	model := c.model
	if prompt.Model != "" {
		model = prompt.Model
	}
	temp := c.temp
	if v, ok := prompt.Hyperparameters["temperature"]; ok {
		if f, ok := toFloat(v); ok {
			temp = f
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: c.maxTok,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(string(content)))},
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return agent.Response{}, fmt.Errorf("anthropicclient: messages.new: %w", err)
	}
	return agent.Response{Raw: firstText(msg)}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func firstText(msg *sdk.Message) string {
	if msg == nil {
		return ""
	}
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text
		}
	}
	return ""
}
