package libagent

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("github.com/decisionhub/agent/libagent")
	meter  = otel.Meter("github.com/decisionhub/agent/libagent")

	refreshCount, _ = meter.Int64Counter("agent.refresh.count",
		metric.WithDescription("Completed refresh cycles."))
	refreshDuration, _ = meter.Float64Histogram("agent.refresh.duration",
		metric.WithDescription("Time spent in one refresh cycle."),
		metric.WithUnit("s"))
	evaluateCount, _ = meter.Int64Counter("agent.evaluate.count",
		metric.WithDescription("Evaluation requests served."))
)
