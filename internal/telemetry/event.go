// Package telemetry implements the ordered event bus described in spec.md
// §5: append-under-mutex emission, synchronous plugin fan-out with a
// copy-then-release pattern, and OpenTelemetry metrics/tracing hooks.
// Grounded on a bus-shaped logging design and goa-ai's
// runtime/agents/telemetry seam (Logger/Metrics/Tracer interfaces).
package telemetry

import "time"

// Type classifies an emitted event.
type Type string

const (
	TypeTask      Type = "task"
	TypeStage     Type = "stage"
	TypeAgent     Type = "agent"
	TypeTool      Type = "tool"
	TypeRouting   Type = "routing"
	TypeMemory    Type = "memory"
	TypeError     Type = "error"
	TypeTelemetry Type = "telemetry"
)

// Event is one entry on the bus.
type Event struct {
	Seq       uint64         `json:"seq"`
	Type      Type           `json:"type"`
	Name      string         `json:"name"`
	TaskID    string         `json:"task_id,omitempty"`
	StageID   string         `json:"stage_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
