package agentexec_test

import (
	"context"
	"testing"

	"github.com/Strob0t/agentplan/internal/domain/plan"
	"github.com/Strob0t/agentplan/internal/port/agentexec"
)

type testExecutor struct {
	name string
}

func (e *testExecutor) Name() string { return e.name }
func (e *testExecutor) Execute(_ context.Context, _ plan.Task, _ map[string]any) (any, error) {
	return nil, nil
}

func init() {
	agentexec.Register("test-kind", func(spec agentexec.Spec) (agentexec.Executor, error) {
		return &testExecutor{name: "test-" + string(spec.AgentType)}, nil
	})
}

func TestRegisterAndNew(t *testing.T) {
	e, err := agentexec.New(agentexec.Spec{AgentType: plan.AgentResearch, Kind: "test-kind"})
	if err != nil {
		t.Fatal(err)
	}
	if e.Name() != "test-research" {
		t.Fatalf("expected test-research, got %s", e.Name())
	}
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := agentexec.New(agentexec.Spec{Kind: "nonexistent"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	agentexec.Register("test-kind", nil)
}

func TestKinds(t *testing.T) {
	found := false
	for _, k := range agentexec.Kinds() {
		if k == "test-kind" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected test-kind in registered kinds")
	}
}

func TestRegistryLookup(t *testing.T) {
	r := agentexec.NewRegistry()
	if err := r.Add(plan.AgentThink, &testExecutor{name: "think"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(plan.AgentResearch, &testExecutor{name: "research"}); err != nil {
		t.Fatal(err)
	}

	e, ok := r.Lookup(plan.AgentThink)
	if !ok || e.Name() != "think" {
		t.Fatalf("expected think executor, got %v %v", e, ok)
	}
	if _, ok := r.Lookup(plan.AgentPoster); ok {
		t.Fatal("expected no executor for poster")
	}
	if err := r.Add(plan.AgentThink, &testExecutor{}); err == nil {
		t.Fatal("expected error for second executor on one agent type")
	}
	types := r.Types()
	if len(types) != 2 || types[0] != plan.AgentResearch || types[1] != plan.AgentThink {
		t.Fatalf("unexpected types %v", types)
	}
}
