package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/agentplan/internal/domain"
	"github.com/Strob0t/agentplan/internal/domain/plan"
)

func newPlan(id string, created time.Time) *plan.TaskPlan {
	return &plan.TaskPlan{
		ID:     id,
		Goal:   "goal " + id,
		Status: plan.StatusPending,
		Tasks: []plan.Task{
			{ID: "a", Name: "A", AgentType: plan.AgentResearch, Priority: plan.PriorityMedium},
			{ID: "b", Name: "B", AgentType: plan.AgentReview, Priority: plan.PriorityLow, Dependencies: []string{"a"}},
		},
		Context:   map[string]any{"k": "v"},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestCreateAndGetReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := newPlan("p1", time.Now())
	if err := s.CreatePlan(ctx, p); err != nil {
		t.Fatal(err)
	}
	p.Tasks[0].Name = "mutated"

	got, err := s.GetPlan(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Tasks[0].Name != "A" {
		t.Fatal("store must not share memory with the caller's plan")
	}
	got.Context["k"] = "changed"
	again, _ := s.GetPlan(ctx, "p1")
	if again.Context["k"] != "v" {
		t.Fatal("store must not share memory with returned plans")
	}

	if err := s.CreatePlan(ctx, p); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate id, got %v", err)
	}
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.GetPlan(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetPlan: expected ErrNotFound, got %v", err)
	}
	if err := s.UpdatePlanStatus(ctx, "missing", plan.StatusExecuting); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("UpdatePlanStatus: expected ErrNotFound, got %v", err)
	}
	if err := s.DeletePlan(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("DeletePlan: expected ErrNotFound, got %v", err)
	}
	if _, err := s.ListResults(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ListResults: expected ErrNotFound, got %v", err)
	}
}

func TestResultsOverwriteKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.CreatePlan(ctx, newPlan("p1", time.Now()))

	_ = s.SaveResult(ctx, "p1", plan.ExecutionResult{TaskID: "b", Success: false, Error: "x"})
	_ = s.SaveResult(ctx, "p1", plan.ExecutionResult{TaskID: "a", Success: true})
	_ = s.SaveResult(ctx, "p1", plan.ExecutionResult{TaskID: "b", Success: true})

	results, err := s.ListResults(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].TaskID != "b" || !results[0].Success || results[1].TaskID != "a" {
		t.Fatalf("unexpected results %+v", results)
	}

	err = s.SaveResult(ctx, "p1", plan.ExecutionResult{TaskID: "zzz"})
	if !errors.Is(err, plan.ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
}

func TestFeedback(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.CreatePlan(ctx, newPlan("p1", time.Now()))

	q := 0.3
	if err := s.AddFeedback(ctx, "p1", plan.Feedback{TaskID: "a", Quality: &q, Notes: "thin"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddFeedback(ctx, "p1", plan.Feedback{TaskID: "nope"}); !errors.Is(err, plan.ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
	fb, err := s.ListFeedback(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(fb) != 1 || fb[0].Notes != "thin" {
		t.Fatalf("unexpected feedback %+v", fb)
	}
}

func TestListPlansNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = s.CreatePlan(ctx, newPlan("old", base))
	_ = s.CreatePlan(ctx, newPlan("new", base.Add(time.Hour)))

	plans, err := s.ListPlans(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(plans) != 2 || plans[0].ID != "new" || plans[1].ID != "old" {
		t.Fatalf("unexpected order %v, %v", plans[0].ID, plans[1].ID)
	}
}

func TestListTerminalBefore(t *testing.T) {
	ctx := context.Background()
	s := New()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	_ = s.CreatePlan(ctx, newPlan("done", clock))
	_ = s.CreatePlan(ctx, newPlan("running", clock))
	_ = s.UpdatePlanStatus(ctx, "done", plan.StatusCompleted)
	_ = s.UpdatePlanStatus(ctx, "running", plan.StatusExecuting)

	got, err := s.ListTerminalBefore(ctx, clock.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "done" {
		t.Fatalf("expected only the completed plan, got %+v", got)
	}

	got, _ = s.ListTerminalBefore(ctx, clock)
	if len(got) != 0 {
		t.Fatalf("cutoff is exclusive, got %+v", got)
	}
}

func TestUpdatePlanContextCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.CreatePlan(ctx, newPlan("p1", time.Now()))

	c := map[string]any{"a": "out"}
	if err := s.UpdatePlanContext(ctx, "p1", c); err != nil {
		t.Fatal(err)
	}
	c["a"] = "mutated"
	got, _ := s.GetPlan(ctx, "p1")
	if got.Context["a"] != "out" {
		t.Fatalf("expected copied context, got %v", got.Context)
	}
}
