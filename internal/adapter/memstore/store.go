// Package memstore implements the active plan store in process memory.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/agentplan/internal/domain"
	"github.com/Strob0t/agentplan/internal/domain/plan"
)

type entry struct {
	plan        *plan.TaskPlan
	results     map[string]plan.ExecutionResult
	resultOrder []string
	feedback    []plan.Feedback
}

// Store implements database.Store. All values crossing the boundary are
// copied.
type Store struct {
	mu    sync.RWMutex
	plans map[string]*entry
	now   func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{plans: make(map[string]*entry), now: time.Now}
}

// CreatePlan stores a copy of p. IDs must be unique.
func (s *Store) CreatePlan(_ context.Context, p *plan.TaskPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.plans[p.ID]; exists {
		return fmt.Errorf("create plan %s: %w", p.ID, domain.ErrConflict)
	}
	s.plans[p.ID] = &entry{plan: p.Clone(), results: make(map[string]plan.ExecutionResult)}
	return nil
}

// GetPlan returns a copy of the plan.
func (s *Store) GetPlan(_ context.Context, id string) (*plan.TaskPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("get plan %s: %w", id, plan.ErrPlanNotFound)
	}
	return e.plan.Clone(), nil
}

// ListPlans returns all plans, newest first.
func (s *Store) ListPlans(_ context.Context) ([]plan.TaskPlan, error) {
	s.mu.RLock()
	out := make([]plan.TaskPlan, 0, len(s.plans))
	for _, e := range s.plans {
		out = append(out, *e.plan.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b plan.TaskPlan) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// UpdatePlanStatus sets the plan status and bumps UpdatedAt.
func (s *Store) UpdatePlanStatus(_ context.Context, id string, status plan.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.plans[id]
	if !ok {
		return fmt.Errorf("update plan status %s: %w", id, plan.ErrPlanNotFound)
	}
	e.plan.Status = status
	e.plan.UpdatedAt = s.now()
	return nil
}

// UpdatePlanContext replaces the plan context with a copy of planCtx.
func (s *Store) UpdatePlanContext(_ context.Context, id string, planCtx map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.plans[id]
	if !ok {
		return fmt.Errorf("update plan context %s: %w", id, plan.ErrPlanNotFound)
	}
	e.plan.Context = maps.Clone(planCtx)
	e.plan.UpdatedAt = s.now()
	return nil
}

// DeletePlan removes the plan with its results and feedback.
func (s *Store) DeletePlan(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[id]; !ok {
		return fmt.Errorf("delete plan %s: %w", id, plan.ErrPlanNotFound)
	}
	delete(s.plans, id)
	return nil
}

// SaveResult records r. A later result for the same task overwrites the
// earlier one but keeps its position.
func (s *Store) SaveResult(_ context.Context, planID string, r plan.ExecutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.plans[planID]
	if !ok {
		return fmt.Errorf("save result %s: %w", planID, plan.ErrPlanNotFound)
	}
	if _, ok := e.plan.Task(r.TaskID); !ok {
		return fmt.Errorf("save result %s/%s: %w", planID, r.TaskID, plan.ErrUnknownTask)
	}
	if _, seen := e.results[r.TaskID]; !seen {
		e.resultOrder = append(e.resultOrder, r.TaskID)
	}
	e.results[r.TaskID] = r
	e.plan.UpdatedAt = s.now()
	return nil
}

// ListResults returns results in the order tasks first reported.
func (s *Store) ListResults(_ context.Context, planID string) ([]plan.ExecutionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.plans[planID]
	if !ok {
		return nil, fmt.Errorf("list results %s: %w", planID, plan.ErrPlanNotFound)
	}
	out := make([]plan.ExecutionResult, 0, len(e.resultOrder))
	for _, id := range e.resultOrder {
		out = append(out, e.results[id])
	}
	return out, nil
}

// AddFeedback appends feedback for a task of the plan.
func (s *Store) AddFeedback(_ context.Context, planID string, fb plan.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.plans[planID]
	if !ok {
		return fmt.Errorf("add feedback %s: %w", planID, plan.ErrPlanNotFound)
	}
	if _, ok := e.plan.Task(fb.TaskID); !ok {
		return fmt.Errorf("add feedback %s/%s: %w", planID, fb.TaskID, plan.ErrUnknownTask)
	}
	fb.Suggestions = slices.Clone(fb.Suggestions)
	e.feedback = append(e.feedback, fb)
	return nil
}

// ListFeedback returns the plan's feedback in arrival order.
func (s *Store) ListFeedback(_ context.Context, planID string) ([]plan.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.plans[planID]
	if !ok {
		return nil, fmt.Errorf("list feedback %s: %w", planID, plan.ErrPlanNotFound)
	}
	return slices.Clone(e.feedback), nil
}

// ListTerminalBefore returns terminal plans last updated before cutoff.
func (s *Store) ListTerminalBefore(_ context.Context, cutoff time.Time) ([]plan.TaskPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []plan.TaskPlan
	for _, e := range s.plans {
		if e.plan.Status.IsTerminal() && e.plan.UpdatedAt.Before(cutoff) {
			out = append(out, *e.plan.Clone())
		}
	}
	return out, nil
}
