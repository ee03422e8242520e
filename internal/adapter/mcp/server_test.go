package mcp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	cfmcp "github.com/Strob0t/agentplan/internal/adapter/mcp"
	"github.com/Strob0t/agentplan/internal/domain"
	"github.com/Strob0t/agentplan/internal/domain/plan"
)

type fakeReader struct {
	plans         map[string]*plan.TaskPlan
	lastCompleted []string
}

func (f *fakeReader) GetPlan(_ context.Context, id string) (*plan.TaskPlan, error) {
	p, ok := f.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeReader) ListPlans(_ context.Context) ([]plan.TaskPlan, error) {
	out := make([]plan.TaskPlan, 0, len(f.plans))
	for _, p := range f.plans {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeReader) GetReadyTasks(_ context.Context, id string, completed []string) ([]plan.Task, error) {
	p, ok := f.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	f.lastCompleted = completed
	return plan.ReadyTasks(p, plan.NewIDSet(completed...)), nil
}

func (f *fakeReader) GetParallelGroups(_ context.Context, id string, completed []string) ([][]plan.Task, error) {
	p, ok := f.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	f.lastCompleted = completed
	return [][]plan.Task{p.Tasks}, nil
}

func (f *fakeReader) IsComplete(_ context.Context, id string) (bool, error) {
	if _, ok := f.plans[id]; !ok {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func newReader() *fakeReader {
	return &fakeReader{plans: map[string]*plan.TaskPlan{
		"p1": {
			ID:   "p1",
			Goal: "write a report",
			Tasks: []plan.Task{
				{ID: "a", Name: "research", AgentType: plan.AgentResearch, Priority: plan.PriorityHigh},
				{ID: "b", Name: "write", AgentType: plan.AgentThink, Priority: plan.PriorityMedium, Dependencies: []string{"a"}},
			},
			ExecutionOrder: []string{"a", "b"},
			Status:         plan.StatusPending,
		},
	}}
}

func newTestServer(t *testing.T, r cfmcp.PlanReader) *cfmcp.Server {
	t.Helper()
	return cfmcp.NewServer(cfmcp.ServerConfig{
		Addr:    ":0",
		Name:    "agentplan-test",
		Version: "0.0.1",
	}, cfmcp.ServerDeps{Plans: r})
}

func callTool(t *testing.T, s *cfmcp.Server, name string, args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	tool, ok := s.MCPServer().ListTools()[name]
	if !ok {
		t.Fatalf("tool %q not registered", name)
	}
	req := mcplib.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := tool.Handler(context.Background(), req)
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", name, err)
	}
	return result
}

func resultText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("expected content in result")
	}
	text, ok := result.Content[0].(mcplib.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return text.Text
}

func TestNewServer(t *testing.T) {
	s := newTestServer(t, newReader())
	if s == nil {
		t.Fatal("expected non-nil server")
	}
	if s.MCPServer() == nil {
		t.Fatal("expected non-nil MCPServer")
	}
}

func TestRegisteredTools(t *testing.T) {
	s := newTestServer(t, newReader())
	tools := s.MCPServer().ListTools()

	expected := []string{"list_plans", "get_plan", "get_ready_tasks", "get_parallel_groups", "is_plan_complete"}
	for _, name := range expected {
		if _, ok := tools[name]; !ok {
			t.Errorf("tool %q not registered", name)
		}
	}
	if len(tools) != len(expected) {
		t.Errorf("expected %d tools, got %d", len(expected), len(tools))
	}
}

func TestGetPlanTool(t *testing.T) {
	s := newTestServer(t, newReader())
	result := callTool(t, s, "get_plan", map[string]any{"plan_id": "p1"})
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}

	var p plan.TaskPlan
	if err := json.Unmarshal([]byte(resultText(t, result)), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.ID != "p1" || len(p.Tasks) != 2 {
		t.Errorf("unexpected plan: %+v", p)
	}
}

func TestGetPlanTool_Errors(t *testing.T) {
	s := newTestServer(t, newReader())

	if r := callTool(t, s, "get_plan", map[string]any{}); !r.IsError {
		t.Error("expected error result for missing plan_id")
	}
	if r := callTool(t, s, "get_plan", map[string]any{"plan_id": "nope"}); !r.IsError {
		t.Error("expected error result for unknown plan")
	}
}

func TestListPlansTool(t *testing.T) {
	s := newTestServer(t, newReader())
	result := callTool(t, s, "list_plans", nil)
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}

	var plans []plan.TaskPlan
	if err := json.Unmarshal([]byte(resultText(t, result)), &plans); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(plans) != 1 {
		t.Errorf("expected 1 plan, got %d", len(plans))
	}
}

func TestReadyTasksTool(t *testing.T) {
	r := newReader()
	s := newTestServer(t, r)

	result := callTool(t, s, "get_ready_tasks", map[string]any{
		"plan_id":   "p1",
		"completed": []any{"a"},
	})
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}
	if !slices.Equal(r.lastCompleted, []string{"a"}) {
		t.Errorf("completed not forwarded: %v", r.lastCompleted)
	}

	var tasks []plan.Task
	if err := json.Unmarshal([]byte(resultText(t, result)), &tasks); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "b" {
		t.Errorf("expected only b ready, got %+v", tasks)
	}
}

func TestReadyTasksTool_InvalidCompleted(t *testing.T) {
	s := newTestServer(t, newReader())
	result := callTool(t, s, "get_ready_tasks", map[string]any{
		"plan_id":   "p1",
		"completed": []any{"a", 3},
	})
	if !result.IsError {
		t.Error("expected error result for non-string completed entry")
	}
}

func TestParallelGroupsTool(t *testing.T) {
	s := newTestServer(t, newReader())
	result := callTool(t, s, "get_parallel_groups", map[string]any{"plan_id": "p1"})
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}

	var groups [][]plan.Task
	if err := json.Unmarshal([]byte(resultText(t, result)), &groups); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(groups) != 1 {
		t.Errorf("expected 1 group, got %d", len(groups))
	}
}

func TestIsCompleteTool(t *testing.T) {
	s := newTestServer(t, newReader())
	result := callTool(t, s, "is_plan_complete", map[string]any{"plan_id": "p1"})
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}

	var body struct {
		PlanID   string `json:"plan_id"`
		Complete bool   `json:"complete"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.PlanID != "p1" || body.Complete {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestTools_NoReader(t *testing.T) {
	s := newTestServer(t, nil)
	for _, name := range []string{"list_plans", "get_plan"} {
		if r := callTool(t, s, name, map[string]any{"plan_id": "p1"}); !r.IsError {
			t.Errorf("%s: expected error result without reader", name)
		}
	}
}

func TestServerStartStop(t *testing.T) {
	s := newTestServer(t, newReader())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	s := newTestServer(t, newReader())
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestAuthMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := cfmcp.AuthMiddleware("secret", next)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusForbidden},
		{"bearer", "Bearer secret", http.StatusOK},
		{"bare", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	h := cfmcp.AuthMiddleware("", next)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/mcp", http.NoBody))
	if !called {
		t.Error("expected request to pass through when no key is configured")
	}
}
