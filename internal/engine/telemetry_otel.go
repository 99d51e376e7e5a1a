package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// buildOTel constructs the TracerProvider and MeterProvider handed to the
// telemetry bus. The bus increments one otel/metric counter per emitted
// event; the tracer is reachable only through Bus.StartSpan, which no
// engine code calls, so node executions are not wrapped in spans. No
// span/metric exporter is registered: both providers run with their built-in no-op processors, so
// spans and instruments are created and recorded against but never
// shipped anywhere, and Engine construction never depends on a collector
// being reachable (SPEC_FULL.md §2's "a no-op exporter is wired by
// default"). The pack has no repo importing otel/sdk or otel/sdk/metric
// directly (these two direct go.mod requires are otherwise orphaned);
// this file grounds their construction on the OpenTelemetry-Go SDK's own
// documented provider-construction pattern rather than a pack example. A
// real OTLP exporter is deliberately not wired here: no example repo in
// the pack imports exporters/otlp, and adding an ungrounded third-party
// dependency to reach it would violate this module's dependency-grounding
// rule (see DESIGN.md) — WithOTLPExporter is accepted as a configuration
// surface only: the exporter kind and endpoint it records are not read
// here (the service resource name comes from WithServiceName).
func buildOTel(cfg engineConfig) (trace.Tracer, metric.Meter, func(), error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.serviceName),
	))
	if err != nil {
		return nil, nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))

	shutdown := func() {
		ctx := context.Background()
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
	}

	return tp.Tracer("agentengine"), mp.Meter("agentengine"), shutdown, nil
}
