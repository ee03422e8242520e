package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Strob0t/agentplan/internal/domain"
	"github.com/Strob0t/agentplan/internal/domain/plan"
)

// Adapt records feedback for an executed plan and asks the planner oracle for
// a replacement when any task failed or scored under the quality threshold.
// It returns nil when no adaptation is needed or the oracle could not produce
// one. The predecessor plan is never modified.
func (s *OrchestratorService) Adapt(ctx context.Context, id string, feedback []plan.Feedback) (*plan.TaskPlan, error) {
	if s.isRunning(id) {
		return nil, fmt.Errorf("plan %s is executing: %w", id, domain.ErrConflict)
	}
	p, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == plan.StatusExecuting {
		return nil, fmt.Errorf("plan %s is executing: %w", id, domain.ErrConflict)
	}
	// Nothing is stored unless every item is valid.
	for i := range feedback {
		fb := &feedback[i]
		if err := checkFeedback(fb); err != nil {
			return nil, fmt.Errorf("feedback %d: %w", i, err)
		}
		if _, ok := p.Task(fb.TaskID); !ok {
			return nil, fmt.Errorf("feedback %d for %s: %w", i, fb.TaskID, plan.ErrUnknownTask)
		}
	}
	for i := range feedback {
		if err := s.AddFeedback(ctx, id, feedback[i]); err != nil {
			return nil, err
		}
	}

	results, err := s.store.ListResults(ctx, id)
	if err != nil {
		return nil, err
	}
	allFeedback, err := s.store.ListFeedback(ctx, id)
	if err != nil {
		return nil, err
	}

	areq := s.adaptationRequest(p, results, allFeedback)
	if !areq.NeedsAdaptation() {
		slog.InfoContext(ctx, "no adaptation needed", "plan_id", id)
		return nil, nil
	}

	raw, err := s.callOracle(ctx, plan.GenerateRequest{Goal: p.Goal, Context: p.Context, Adaptation: areq})
	if err != nil {
		slog.ErrorContext(ctx, "adaptation failed, keeping plan", "plan_id", id, "error", err)
		return nil, nil
	}

	next, err := s.normalizeAdapted(p.Goal, raw, areq.Completed)
	if err != nil {
		slog.ErrorContext(ctx, "adapted plan rejected, keeping plan", "plan_id", id, "error", err)
		return nil, nil
	}
	if next == nil {
		slog.InfoContext(ctx, "adapted plan only repeats completed work", "plan_id", id)
		return nil, nil
	}

	// Completed outputs carry over so the new plan builds on them.
	planCtx := plan.CloneContext(p.Context)
	if planCtx == nil {
		planCtx = make(map[string]any)
	}
	for _, c := range areq.Completed {
		planCtx[c.TaskID] = c.Result
	}
	return s.storePlan(ctx, next, planCtx, id)
}

func (s *OrchestratorService) adaptationRequest(p *plan.TaskPlan, results []plan.ExecutionResult, feedback []plan.Feedback) *plan.AdaptationRequest {
	name := func(taskID string) string {
		t, _ := p.Task(taskID)
		return t.Name
	}

	areq := &plan.AdaptationRequest{PlanID: p.ID}
	for _, r := range results {
		if r.Success {
			areq.Completed = append(areq.Completed, plan.CompletedTask{TaskID: r.TaskID, Name: name(r.TaskID), Result: r.Result})
		} else {
			areq.Failed = append(areq.Failed, plan.FailedTask{TaskID: r.TaskID, Name: name(r.TaskID), Error: r.Error})
		}
	}
	for i := range feedback {
		fb := &feedback[i]
		if fb.BelowThreshold(s.orchCfg.QualityThreshold) {
			areq.LowQuality = append(areq.LowQuality, plan.QualityIssue{
				TaskID:      fb.TaskID,
				Name:        name(fb.TaskID),
				Quality:     *fb.Quality,
				Notes:       fb.Notes,
				Suggestions: fb.Suggestions,
			})
		}
		areq.Suggestions = append(areq.Suggestions, fb.Suggestions...)
	}
	return areq
}

// normalizeAdapted normalizes the oracle's replacement plan and removes tasks
// that redo completed work. It returns nil when nothing is left.
func (s *OrchestratorService) normalizeAdapted(goal string, raw *plan.RawPlan, completed []plan.CompletedTask) (*plan.TaskPlan, error) {
	p, err := plan.Normalize(goal, raw, s.normalizeOptions())
	if err != nil {
		return nil, err
	}
	done := make(map[string]struct{}, len(completed))
	for _, c := range completed {
		if c.Name != "" {
			done[strings.ToLower(strings.TrimSpace(c.Name))] = struct{}{}
		}
	}
	keep := func(t *plan.Task) bool {
		_, redo := done[strings.ToLower(strings.TrimSpace(t.Name))]
		return !redo
	}

	kept := 0
	for i := range p.Tasks {
		if keep(&p.Tasks[i]) {
			kept++
		}
	}
	switch kept {
	case len(p.Tasks):
		return p, nil
	case 0:
		return nil, nil
	}

	trimmed, err := plan.Normalize(goal, p.ToRaw(keep), s.normalizeOptions())
	if err != nil {
		return nil, err
	}
	trimmed.Warnings = append(p.Warnings, trimmed.Warnings...)
	return trimmed, nil
}
