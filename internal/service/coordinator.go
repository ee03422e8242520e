package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	cfotel "github.com/Strob0t/agentplan/internal/adapter/otel"
	"github.com/Strob0t/agentplan/internal/domain"
	"github.com/Strob0t/agentplan/internal/domain/plan"
	"github.com/Strob0t/agentplan/internal/logger"
	"github.com/Strob0t/agentplan/internal/port/broadcast"
)

// ExecutionReport is the final outcome of one plan execution. Partial success
// is reported here, not as an error.
type ExecutionReport struct {
	PlanID     string                 `json:"plan_id"`
	Status     plan.Status            `json:"status"`
	Results    []plan.ExecutionResult `json:"results"`
	FailedTask string                 `json:"failed_task,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Iterations int                    `json:"iterations"`
	DurationMS int64                  `json:"duration_ms"`
}

// PlanEvent is the payload of plan.created, plan.started and plan.adapted.
type PlanEvent struct {
	PlanID      string      `json:"plan_id"`
	Goal        string      `json:"goal,omitempty"`
	Status      plan.Status `json:"status"`
	Tasks       int         `json:"tasks,omitempty"`
	AdaptedFrom string      `json:"adapted_from,omitempty"`
}

// TaskEvent is the payload of plan.task_completed.
type TaskEvent struct {
	PlanID          string         `json:"plan_id"`
	TaskID          string         `json:"task_id"`
	AgentType       plan.AgentType `json:"agent_type,omitempty"`
	Success         bool           `json:"success"`
	Error           string         `json:"error,omitempty"`
	ExecutionTimeMS int64          `json:"execution_time_ms"`
}

// Execute runs a pending or adapted plan to a terminal state and returns the
// report. Task failures are reported in the result, not as an error.
func (s *OrchestratorService) Execute(ctx context.Context, id string) (*ExecutionReport, error) {
	runCtx, release, err := s.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := s.executablePlan(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.run(runCtx, p), nil
}

// Start begins executing a plan in the background. The execution outlives ctx
// and ends on Cancel or Shutdown.
func (s *OrchestratorService) Start(ctx context.Context, id string) error {
	runCtx, release, err := s.claim(context.WithoutCancel(ctx), id)
	if err != nil {
		return err
	}
	p, err := s.executablePlan(ctx, id)
	if err != nil {
		release()
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		s.run(runCtx, p)
	}()
	return nil
}

func (s *OrchestratorService) executablePlan(ctx context.Context, id string) (*plan.TaskPlan, error) {
	p, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != plan.StatusPending && p.Status != plan.StatusAdapted {
		return nil, fmt.Errorf("plan %s is %s: %w", id, p.Status, domain.ErrConflict)
	}
	return p, nil
}

// step is the outcome of one scheduling iteration.
type step struct {
	results   []plan.ExecutionResult
	failed    *plan.ExecutionResult
	cancelled bool
}

// run is the orchestration loop. Store writes are detached from ctx so a
// cancelled run still records its final state.
func (s *OrchestratorService) run(ctx context.Context, p *plan.TaskPlan) *ExecutionReport {
	start := time.Now()
	ctx = logger.WithPlanID(ctx, p.ID)
	ctx, span := cfotel.StartPlanSpan(ctx, p.ID, len(p.Tasks))
	defer span.End()
	bg := context.WithoutCancel(ctx)

	report := &ExecutionReport{PlanID: p.ID}
	results, err := s.begin(bg, p)
	if err != nil {
		report.Status = plan.StatusFailed
		report.Error = err.Error()
		return s.finish(bg, report, results, start)
	}

	shared := plan.CloneContext(p.Context)
	if shared == nil {
		shared = make(map[string]any)
	}
	policy := s.dependencyPolicy()

	for {
		progress := plan.NewProgress(results, policy)
		if progress.Done(p) {
			report.Status = plan.StatusCompleted
			break
		}
		if ctx.Err() != nil {
			report.Status = plan.StatusCancelled
			break
		}
		groups, sequential := progress.Runnable(p)
		if len(groups) == 0 && len(sequential) == 0 {
			report.Status = plan.StatusStalled
			slog.WarnContext(ctx, "plan stalled", "remaining", len(p.Tasks)-len(progress.Terminal))
			break
		}

		report.Iterations++
		st := s.runStep(ctx, p.ID, groups, sequential, plan.CloneContext(shared))
		results = append(results, st.results...)

		merged := false
		for i := range st.results {
			if r := &st.results[i]; r.Success {
				shared[r.TaskID] = r.Result
				merged = true
			}
		}
		if merged {
			if err := s.store.UpdatePlanContext(bg, p.ID, shared); err != nil {
				slog.ErrorContext(ctx, "update plan context failed", "error", err)
			}
		}

		if st.failed != nil {
			report.Status = plan.StatusFailed
			report.FailedTask = st.failed.TaskID
			report.Error = st.failed.Error
			break
		}
		if st.cancelled {
			report.Status = plan.StatusCancelled
			break
		}
	}

	if report.Status == plan.StatusFailed || report.Status == plan.StatusStalled {
		span.SetStatus(codes.Error, string(report.Status))
	}
	return s.finish(bg, report, results, start)
}

// begin marks the plan executing and loads results recorded before the run.
func (s *OrchestratorService) begin(ctx context.Context, p *plan.TaskPlan) ([]plan.ExecutionResult, error) {
	if err := s.store.UpdatePlanStatus(ctx, p.ID, plan.StatusExecuting); err != nil {
		return nil, fmt.Errorf("mark plan executing: %w", err)
	}
	s.hub.BroadcastEvent(ctx, broadcast.EventPlanStarted, PlanEvent{
		PlanID: p.ID,
		Goal:   p.Goal,
		Status: plan.StatusExecuting,
		Tasks:  len(p.Tasks),
	})
	slog.InfoContext(ctx, "plan execution started", "tasks", len(p.Tasks))

	results, err := s.store.ListResults(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}

func (s *OrchestratorService) finish(ctx context.Context, report *ExecutionReport, results []plan.ExecutionResult, start time.Time) *ExecutionReport {
	elapsed := time.Since(start)
	report.Results = results
	if report.Results == nil {
		report.Results = []plan.ExecutionResult{}
	}
	report.DurationMS = elapsed.Milliseconds()

	if err := s.store.UpdatePlanStatus(ctx, report.PlanID, report.Status); err != nil {
		slog.ErrorContext(ctx, "update plan status failed", "status", report.Status, "error", err)
	}
	s.metrics.RecordPlanFinished(ctx, string(report.Status), elapsed)
	s.hub.BroadcastEvent(ctx, broadcast.EventPlanFinished, report)
	slog.InfoContext(ctx, "plan execution finished",
		"status", report.Status,
		"results", len(report.Results),
		"iterations", report.Iterations,
		"duration_ms", report.DurationMS,
	)
	return report
}

// runStep dispatches one iteration: parallel groups one after another with
// their members concurrent, then the remaining ready tasks one at a time. A
// failed high priority task stops the step once its group has returned.
func (s *OrchestratorService) runStep(ctx context.Context, planID string, groups [][]plan.Task, sequential []plan.Task, snapshot map[string]any) step {
	var st step
	for _, g := range groups {
		if ctx.Err() != nil {
			st.cancelled = true
			return st
		}
		rs := s.dispatchGroup(ctx, planID, g, snapshot)
		st.results = append(st.results, rs...)
		for i := range rs {
			if !rs[i].Success && g[i].Priority == plan.PriorityHigh {
				st.failed = &rs[i]
				return st
			}
		}
	}
	for _, t := range sequential {
		if ctx.Err() != nil {
			st.cancelled = true
			return st
		}
		r := s.dispatch(ctx, planID, t, snapshot)
		st.results = append(st.results, r)
		if !r.Success && t.Priority == plan.PriorityHigh {
			st.failed = &st.results[len(st.results)-1]
			return st
		}
	}
	return st
}

func (s *OrchestratorService) dispatchGroup(ctx context.Context, planID string, tasks []plan.Task, snapshot map[string]any) []plan.ExecutionResult {
	results := make([]plan.ExecutionResult, len(tasks))
	var g errgroup.Group
	g.SetLimit(max(s.orchCfg.MaxParallel, 1))
	for i := range tasks {
		g.Go(func() error {
			results[i] = s.dispatch(ctx, planID, tasks[i], snapshot)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// dispatch runs one task to completion and records its result. The executor
// is not interrupted by plan cancellation; only task_timeout bounds it.
func (s *OrchestratorService) dispatch(ctx context.Context, planID string, t plan.Task, snapshot map[string]any) plan.ExecutionResult {
	execCtx := context.WithoutCancel(ctx)
	if s.orchCfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(execCtx, s.orchCfg.TaskTimeout)
		defer cancel()
	}
	execCtx, span := cfotel.StartTaskSpan(execCtx, planID, t.ID, string(t.AgentType))
	defer span.End()

	start := time.Now()
	output, err := s.execute(execCtx, t, plan.CloneContext(snapshot))
	elapsed := time.Since(start)

	r := plan.ExecutionResult{
		TaskID:          t.ID,
		Success:         err == nil,
		ExecutionTimeMS: elapsed.Milliseconds(),
	}
	if err != nil {
		r.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, r.Error)
	} else {
		r.Result = output
	}

	bg := context.WithoutCancel(ctx)
	if err := s.store.SaveResult(bg, planID, r); err != nil {
		slog.ErrorContext(ctx, "save task result failed", "task_id", t.ID, "error", err)
	}
	s.metrics.RecordTask(bg, string(t.AgentType), r.Success, elapsed)
	s.hub.BroadcastEvent(bg, broadcast.EventPlanTaskCompleted, TaskEvent{
		PlanID:          planID,
		TaskID:          t.ID,
		AgentType:       t.AgentType,
		Success:         r.Success,
		Error:           r.Error,
		ExecutionTimeMS: r.ExecutionTimeMS,
	})
	if r.Success {
		slog.InfoContext(ctx, "task completed", "task_id", t.ID, "agent_type", t.AgentType, "duration_ms", r.ExecutionTimeMS)
	} else {
		slog.WarnContext(ctx, "task failed", "task_id", t.ID, "agent_type", t.AgentType, "priority", t.Priority, "error", r.Error)
	}
	return r
}

func (s *OrchestratorService) execute(ctx context.Context, t plan.Task, planCtx map[string]any) (out any, err error) {
	e, ok := s.executors.Lookup(t.AgentType)
	if !ok {
		return nil, fmt.Errorf("no executor registered for agent type %q", t.AgentType)
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("executor %s panicked: %v", e.Name(), rec)
		}
	}()
	return e.Execute(ctx, t, planCtx)
}
