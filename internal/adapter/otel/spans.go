package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agentplan"

// StartPlanSpan starts a span for one plan execution.
func StartPlanSpan(ctx context.Context, planID string, tasks int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "plan.execute",
		trace.WithAttributes(
			attribute.String("plan.id", planID),
			attribute.Int("plan.tasks", tasks),
		),
	)
}

// StartTaskSpan starts a span for a task dispatch within a plan.
func StartTaskSpan(ctx context.Context, planID, taskID, agentType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task.dispatch",
		trace.WithAttributes(
			attribute.String("plan.id", planID),
			attribute.String("task.id", taskID),
			attribute.String("task.agent_type", agentType),
		),
	)
}

// StartOracleSpan starts a span for a planner oracle call.
func StartOracleSpan(ctx context.Context, adaptation bool) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "planner.oracle",
		trace.WithAttributes(attribute.Bool("planner.adaptation", adaptation)),
	)
}
