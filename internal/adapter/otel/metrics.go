package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentplan"

// Metrics holds all orchestration metric instruments. A nil *Metrics records
// nothing.
type Metrics struct {
	PlansCreated    metric.Int64Counter
	PlansAdapted    metric.Int64Counter
	PlansFinished   metric.Int64Counter
	TasksDispatched metric.Int64Counter
	TasksFailed     metric.Int64Counter
	TaskDuration    metric.Float64Histogram
	PlanDuration    metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFrom(otel.GetMeterProvider())
}

// NewMetricsFrom creates all metric instruments on mp.
func NewMetricsFrom(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	m.PlansCreated, err = meter.Int64Counter("agentplan.plans.created",
		metric.WithDescription("Number of plans created from planner output"))
	if err != nil {
		return nil, err
	}

	m.PlansAdapted, err = meter.Int64Counter("agentplan.plans.adapted",
		metric.WithDescription("Number of successor plans produced by adaptation"))
	if err != nil {
		return nil, err
	}

	m.PlansFinished, err = meter.Int64Counter("agentplan.plans.finished",
		metric.WithDescription("Number of plan executions that reached a terminal status"))
	if err != nil {
		return nil, err
	}

	m.TasksDispatched, err = meter.Int64Counter("agentplan.tasks.dispatched",
		metric.WithDescription("Number of tasks dispatched to agent executors"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("agentplan.tasks.failed",
		metric.WithDescription("Number of tasks whose executor returned an error"))
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("agentplan.task.duration_seconds",
		metric.WithDescription("Task execution time in seconds"))
	if err != nil {
		return nil, err
	}

	m.PlanDuration, err = meter.Float64Histogram("agentplan.plan.duration_seconds",
		metric.WithDescription("Plan execution time in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordPlanCreated counts a new plan.
func (m *Metrics) RecordPlanCreated(ctx context.Context, adapted bool) {
	if m == nil {
		return
	}
	m.PlansCreated.Add(ctx, 1)
	if adapted {
		m.PlansAdapted.Add(ctx, 1)
	}
}

// RecordTask records one finished task dispatch.
func (m *Metrics) RecordTask(ctx context.Context, agentType string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("agent_type", agentType))
	m.TasksDispatched.Add(ctx, 1, attrs)
	if !success {
		m.TasksFailed.Add(ctx, 1, attrs)
	}
	m.TaskDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordPlanFinished records a terminal plan execution.
func (m *Metrics) RecordPlanFinished(ctx context.Context, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.PlansFinished.Add(ctx, 1, attrs)
	m.PlanDuration.Record(ctx, d.Seconds(), attrs)
}
