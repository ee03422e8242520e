package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	cfotel "github.com/Strob0t/agentplan/internal/adapter/otel"
	"github.com/Strob0t/agentplan/internal/config"
	"github.com/Strob0t/agentplan/internal/domain"
	"github.com/Strob0t/agentplan/internal/domain/plan"
	"github.com/Strob0t/agentplan/internal/port/agentexec"
	"github.com/Strob0t/agentplan/internal/port/broadcast"
	"github.com/Strob0t/agentplan/internal/port/database"
	"github.com/Strob0t/agentplan/internal/port/planner"
)

// OrchestratorService owns task plans: it creates them from planner output,
// answers scheduling queries, drives execution and adapts finished plans.
type OrchestratorService struct {
	store     database.Store
	archive   database.Archive
	executors *agentexec.Registry
	oracle    planner.Oracle
	hub       broadcast.Broadcaster
	metrics   *cfotel.Metrics
	orchCfg   *config.Orchestrator
	newID     func() string
	now       func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc // plan ID -> cancel of the active execution
	wg      sync.WaitGroup
}

// NewOrchestratorService creates an OrchestratorService with all dependencies.
// A nil hub discards events.
func NewOrchestratorService(
	store database.Store,
	executors *agentexec.Registry,
	oracle planner.Oracle,
	hub broadcast.Broadcaster,
	orchCfg *config.Orchestrator,
) *OrchestratorService {
	if hub == nil {
		hub = broadcast.Nop{}
	}
	if executors == nil {
		executors = agentexec.NewRegistry()
	}
	return &OrchestratorService{
		store:     store,
		executors: executors,
		oracle:    oracle,
		hub:       hub,
		orchCfg:   orchCfg,
		newID:     uuid.NewString,
		now:       time.Now,
		running:   make(map[string]context.CancelFunc),
	}
}

// SetArchive sets the archive that receives plans removed by retention.
func (s *OrchestratorService) SetArchive(a database.Archive) {
	s.archive = a
}

// SetMetrics sets the metric instruments.
func (s *OrchestratorService) SetMetrics(m *cfotel.Metrics) {
	s.metrics = m
}

// GetPlan returns an active plan, falling back to the archive.
func (s *OrchestratorService) GetPlan(ctx context.Context, id string) (*plan.TaskPlan, error) {
	p, err := s.store.GetPlan(ctx, id)
	if err == nil || !errors.Is(err, domain.ErrNotFound) || s.archive == nil {
		return p, err
	}
	rec, archErr := s.archive.GetArchivedPlan(ctx, id)
	if archErr != nil {
		return nil, err
	}
	return rec.Plan, nil
}

// ListPlans returns all active plans, newest first.
func (s *OrchestratorService) ListPlans(ctx context.Context) ([]plan.TaskPlan, error) {
	return s.store.ListPlans(ctx)
}

// GetReadyTasks returns the tasks of a plan that may start once completed have
// reached a terminal state.
func (s *OrchestratorService) GetReadyTasks(ctx context.Context, id string, completed []string) ([]plan.Task, error) {
	p, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	return plan.ReadyTasks(p, plan.NewIDSet(completed...)), nil
}

// GetParallelGroups returns the runnable members of each parallel group of a
// plan given the completed task IDs.
func (s *OrchestratorService) GetParallelGroups(ctx context.Context, id string, completed []string) ([][]plan.Task, error) {
	p, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	return plan.ParallelGroups(p, plan.NewIDSet(completed...)), nil
}

// IsComplete reports whether every task of the plan has a recorded result.
func (s *OrchestratorService) IsComplete(ctx context.Context, id string) (bool, error) {
	p, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return false, err
	}
	results, err := s.store.ListResults(ctx, id)
	if err != nil {
		return false, err
	}
	return plan.NewProgress(results, s.dependencyPolicy()).Done(p), nil
}

// GetResults returns the recorded results of a plan, falling back to the archive.
func (s *OrchestratorService) GetResults(ctx context.Context, id string) ([]plan.ExecutionResult, error) {
	results, err := s.store.ListResults(ctx, id)
	if err == nil || !errors.Is(err, domain.ErrNotFound) || s.archive == nil {
		return results, err
	}
	rec, archErr := s.archive.GetArchivedPlan(ctx, id)
	if archErr != nil {
		return nil, err
	}
	return rec.Results, nil
}

// RecordResult records an externally produced task result. Plans under
// execution only accept results from their coordinator.
func (s *OrchestratorService) RecordResult(ctx context.Context, id string, r plan.ExecutionResult) error {
	if r.TaskID == "" {
		return fmt.Errorf("%w: task_id is required", domain.ErrValidation)
	}
	if s.isRunning(id) {
		return fmt.Errorf("plan %s is executing: %w", id, domain.ErrConflict)
	}
	if err := s.store.SaveResult(ctx, id, r); err != nil {
		return err
	}
	s.hub.BroadcastEvent(ctx, broadcast.EventPlanTaskCompleted, TaskEvent{
		PlanID:          id,
		TaskID:          r.TaskID,
		Success:         r.Success,
		Error:           r.Error,
		ExecutionTimeMS: r.ExecutionTimeMS,
	})
	slog.Info("task result recorded", "plan_id", id, "task_id", r.TaskID, "success", r.Success)
	return nil
}

// GetFeedback returns the feedback recorded for a plan.
func (s *OrchestratorService) GetFeedback(ctx context.Context, id string) ([]plan.Feedback, error) {
	return s.store.ListFeedback(ctx, id)
}

// AddFeedback records a quality signal for a task of a plan.
func (s *OrchestratorService) AddFeedback(ctx context.Context, id string, fb plan.Feedback) error {
	if err := checkFeedback(&fb); err != nil {
		return err
	}
	if err := s.store.AddFeedback(ctx, id, fb); err != nil {
		return err
	}
	slog.Debug("feedback recorded", "plan_id", id, "task_id", fb.TaskID, "success", fb.Success)
	return nil
}

func checkFeedback(fb *plan.Feedback) error {
	if fb.TaskID == "" {
		return fmt.Errorf("%w: task_id is required", domain.ErrValidation)
	}
	if fb.Quality != nil && (*fb.Quality < 0 || *fb.Quality > 1) {
		return fmt.Errorf("%w: quality must be within [0,1]", domain.ErrValidation)
	}
	return nil
}

// Cancel stops the active execution of a plan at the next iteration boundary.
func (s *OrchestratorService) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		p, err := s.store.GetPlan(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("plan %s is %s, cannot cancel: %w", id, p.Status, domain.ErrConflict)
	}
	cancel()
	slog.Info("plan cancellation requested", "plan_id", id)
	return nil
}

// ClearCompletedPlans removes terminal plans not updated within olderThan and
// returns how many were removed. Plans are archived first when an archive is
// configured; a plan that fails to archive is kept.
func (s *OrchestratorService) ClearCompletedPlans(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := s.store.ListTerminalBefore(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("list terminal plans: %w", err)
	}

	removed := 0
	for i := range stale {
		p := &stale[i]
		if s.isRunning(p.ID) {
			continue
		}
		if s.archive != nil {
			if err := s.archivePlan(ctx, p); err != nil {
				slog.Error("archive plan failed, keeping it", "plan_id", p.ID, "error", err)
				continue
			}
		}
		if err := s.store.DeletePlan(ctx, p.ID); err != nil {
			slog.Error("delete plan failed", "plan_id", p.ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("cleared completed plans", "removed", removed, "older_than", olderThan)
	}
	return removed, nil
}

func (s *OrchestratorService) archivePlan(ctx context.Context, p *plan.TaskPlan) error {
	results, err := s.store.ListResults(ctx, p.ID)
	if err != nil {
		return err
	}
	feedback, err := s.store.ListFeedback(ctx, p.ID)
	if err != nil {
		return err
	}
	return s.archive.ArchivePlan(ctx, &plan.Record{Plan: p, Results: results, Feedback: feedback})
}

// StartCleanup runs ClearCompletedPlans every cleanup interval until the
// returned function is called. It does nothing when the interval is zero.
func (s *OrchestratorService) StartCleanup(ctx context.Context) func() {
	interval := s.orchCfg.CleanupInterval
	if interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.ClearCompletedPlans(ctx, s.orchCfg.Retention); err != nil {
					slog.Error("plan cleanup failed", "error", err)
				}
			}
		}
	}()
	return cancel
}

// Shutdown cancels every active execution and waits for background
// executions to return or ctx to end.
func (s *OrchestratorService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, cancel := range s.running {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// claim marks a plan as executing in this process. The returned context is
// cancelled by Cancel, Shutdown or release.
func (s *OrchestratorService) claim(ctx context.Context, id string) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[id]; busy {
		return nil, nil, fmt.Errorf("plan %s is already executing: %w", id, domain.ErrConflict)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running[id] = cancel
	release := func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
		cancel()
	}
	return ctx, release, nil
}

func (s *OrchestratorService) isRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	return ok
}

func (s *OrchestratorService) dependencyPolicy() plan.DependencyPolicy {
	if s.orchCfg.DependencyPolicy == "" {
		return plan.DependOnTerminal
	}
	return plan.DependencyPolicy(s.orchCfg.DependencyPolicy)
}

func (s *OrchestratorService) normalizeOptions() plan.NormalizeOptions {
	return plan.NormalizeOptions{
		CyclePolicy:  plan.CyclePolicy(s.orchCfg.CyclePolicy),
		DeriveGroups: s.orchCfg.DeriveGroups,
		NewID:        s.newID,
		Now:          s.now,
	}
}
