package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Plugin receives every emitted event synchronously. Implementations must
// not block for long: the bus holds no lock while calling plugins (events
// are copied out first), but a slow plugin still delays the emitting
// caller (spec.md §5's "copy then release" pattern).
type Plugin interface {
	Handle(Event)
}

// PluginFunc adapts a function to Plugin.
type PluginFunc func(Event)

func (f PluginFunc) Handle(e Event) { f(e) }

// Bus is the engine-wide append-only telemetry event log.
type Bus struct {
	mu      sync.Mutex
	events  []Event
	nextSeq uint64
	plugins []Plugin

	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter

	eventCounter metric.Int64Counter
}

// NewBus constructs a Bus. logger, tracer, and meter may be nil: nil
// logger disables structured logging, nil tracer/meter disable OTel
// instrumentation (callers that don't wire OpenTelemetry still get full
// bus/plugin behavior).
func NewBus(logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) *Bus {
	b := &Bus{logger: logger, tracer: tracer, meter: meter}
	if meter != nil {
		if c, err := meter.Int64Counter("agentengine.telemetry.events_total"); err == nil {
			b.eventCounter = c
		}
	}
	return b
}

// Register adds a plugin. Plugins registered after events have already
// been emitted only see subsequent events.
func (b *Bus) Register(p Plugin) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.plugins = append(b.plugins, p)
}

// Emit appends an event under lock, then fans it out to plugins after
// releasing the lock (spec.md §5: "invoked synchronously while the lock is
// held briefly (copy then release) to preserve order").
func (b *Bus) Emit(ctx context.Context, typ Type, name string, taskID, stageID string, payload map[string]any) Event {
	b.mu.Lock()
	b.nextSeq++
	ev := Event{
		Seq:       b.nextSeq,
		Type:      typ,
		Name:      name,
		TaskID:    taskID,
		StageID:   stageID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	b.events = append(b.events, ev)
	plugins := append([]Plugin(nil), b.plugins...)
	b.mu.Unlock()

	b.instrument(ctx, ev)
	b.dispatch(plugins, ev)
	return ev
}

func (b *Bus) instrument(ctx context.Context, ev Event) {
	if b.logger != nil {
		b.logger.Debug("telemetry event", "type", ev.Type, "name", ev.Name, "task_id", ev.TaskID, "stage_id", ev.StageID)
	}
	if b.eventCounter != nil {
		b.eventCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", string(ev.Type)),
			attribute.String("name", ev.Name),
		))
	}
}

// dispatch invokes every plugin, swallowing panics per event so one
// misbehaving plugin cannot take down the bus or the engine (spec.md §5's
// fail-stop policy for plugins).
func (b *Bus) dispatch(plugins []Plugin, ev Event) {
	for _, p := range plugins {
		b.safeHandle(p, ev)
	}
}

func (b *Bus) safeHandle(p Plugin, ev Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("telemetry plugin panicked", "panic", r, "event", ev.Name)
		}
	}()
	p.Handle(ev)
}

// Events returns every event emitted so far, in emission order.
func (b *Bus) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// EventsByType returns events matching typ, in emission order.
func (b *Bus) EventsByType(typ Type) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for _, e := range b.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// EventsByTask returns events matching taskID, in emission order.
func (b *Bus) EventsByTask(taskID string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for _, e := range b.events {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out
}

// Clear discards all recorded events. Plugin registrations are unaffected.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}

// StartSpan starts a trace span if a tracer is wired, otherwise returns a
// no-op span via the OTel no-op tracer semantics (callers may call End
// unconditionally).
func (b *Bus) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if b.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return b.tracer.Start(ctx, name)
}
