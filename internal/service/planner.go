package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/codes"

	cfotel "github.com/Strob0t/agentplan/internal/adapter/otel"
	"github.com/Strob0t/agentplan/internal/domain"
	"github.com/Strob0t/agentplan/internal/domain/plan"
	"github.com/Strob0t/agentplan/internal/port/broadcast"
)

var (
	// ErrNoPlanner is returned when a plan is requested from the oracle but
	// none is configured.
	ErrNoPlanner = errors.New("no planner oracle configured")
	// ErrPlannerFailed wraps errors returned by the planner oracle.
	ErrPlannerFailed = errors.New("planner oracle failed")
)

// Generate asks the planner oracle for a plan for req.Goal, normalizes the
// answer and stores it as pending.
func (s *OrchestratorService) Generate(ctx context.Context, req plan.GenerateRequest) (*plan.TaskPlan, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	req.Adaptation = nil

	raw, err := s.callOracle(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.createPlan(ctx, req.Goal, req.Context, raw, "")
}

// CreateFromRaw normalizes a caller supplied task list and stores it as a
// pending plan.
func (s *OrchestratorService) CreateFromRaw(ctx context.Context, goal string, planCtx map[string]any, raw *plan.RawPlan) (*plan.TaskPlan, error) {
	req := plan.GenerateRequest{Goal: goal}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return s.createPlan(ctx, goal, planCtx, raw, "")
}

func (s *OrchestratorService) callOracle(ctx context.Context, req plan.GenerateRequest) (*plan.RawPlan, error) {
	if s.oracle == nil {
		return nil, ErrNoPlanner
	}
	ctx, span := cfotel.StartOracleSpan(ctx, req.Adaptation != nil)
	defer span.End()

	raw, err := s.oracle.Plan(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %w", ErrPlannerFailed, err)
	}
	return raw, nil
}

// createPlan normalizes raw and stores the result. A non-empty adaptedFrom
// stores the plan as adapted from that predecessor.
func (s *OrchestratorService) createPlan(ctx context.Context, goal string, planCtx map[string]any, raw *plan.RawPlan, adaptedFrom string) (*plan.TaskPlan, error) {
	p, err := plan.Normalize(goal, raw, s.normalizeOptions())
	if err != nil {
		return nil, err
	}
	return s.storePlan(ctx, p, planCtx, adaptedFrom)
}

func (s *OrchestratorService) storePlan(ctx context.Context, p *plan.TaskPlan, planCtx map[string]any, adaptedFrom string) (*plan.TaskPlan, error) {
	p.Context = plan.CloneContext(planCtx)
	if adaptedFrom != "" {
		p.Status = plan.StatusAdapted
		p.AdaptedFrom = adaptedFrom
	}
	for _, w := range p.Warnings {
		slog.WarnContext(ctx, "plan repaired", "plan_id", p.ID, "warning", w)
	}

	if err := s.store.CreatePlan(ctx, p); err != nil {
		return nil, fmt.Errorf("store plan: %w", err)
	}
	s.metrics.RecordPlanCreated(ctx, adaptedFrom != "")

	event := broadcast.EventPlanCreated
	if adaptedFrom != "" {
		event = broadcast.EventPlanAdapted
	}
	s.hub.BroadcastEvent(ctx, event, PlanEvent{
		PlanID:      p.ID,
		Goal:        p.Goal,
		Status:      p.Status,
		Tasks:       len(p.Tasks),
		AdaptedFrom: p.AdaptedFrom,
	})
	slog.InfoContext(ctx, "plan created",
		"plan_id", p.ID,
		"tasks", len(p.Tasks),
		"groups", len(p.ParallelGroups),
		"warnings", len(p.Warnings),
		"adapted_from", p.AdaptedFrom,
	)
	return p, nil
}
