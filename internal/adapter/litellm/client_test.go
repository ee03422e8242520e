package litellm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/agentplan/internal/adapter/litellm"
	"github.com/Strob0t/agentplan/internal/domain/plan"
	"github.com/Strob0t/agentplan/internal/resilience"
)

func completionServer(t *testing.T, content string, capture *litellm.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "openai/gpt-4o-mini",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 120, "completion_tokens": 40},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health/liveliness" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`"I'm alive!"`))
	}))
	defer srv.Close()

	client := litellm.NewClient(srv.URL, "test-key")
	healthy, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if !healthy {
		t.Fatal("expected healthy")
	}
}

func TestHealthUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"unhealthy"}`))
	}))
	defer srv.Close()

	client := litellm.NewClient(srv.URL, "test-key")
	healthy, err := client.Health(context.Background())
	if healthy {
		t.Fatal("expected unhealthy")
	}
	var apiErr *litellm.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected APIError 503, got %v", err)
	}
}

func TestChatCompletion(t *testing.T) {
	var got litellm.ChatCompletionRequest
	srv := completionServer(t, "hello", &got)

	client := litellm.NewClient(srv.URL, "test-key")
	resp, err := client.ChatCompletion(context.Background(), litellm.ChatCompletionRequest{
		Model:    "openai/gpt-4o-mini",
		Messages: []litellm.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion failed: %v", err)
	}
	if resp.Content != "hello" || resp.TokensIn != 120 || resp.TokensOut != 40 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got.Model != "openai/gpt-4o-mini" || len(got.Messages) != 1 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestChatCompletionNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := litellm.NewClient(srv.URL, "").ChatCompletion(context.Background(), litellm.ChatCompletionRequest{})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := litellm.NewClient(srv.URL, "")
	client.SetBreaker(resilience.NewBreaker(2, time.Minute))

	for range 2 {
		_, _ = client.Health(context.Background())
	}
	_, err := client.Health(context.Background())
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", n)
	}
}

func TestOraclePlan(t *testing.T) {
	var got litellm.ChatCompletionRequest
	srv := completionServer(t, "```json\n"+`{
  "tasks": [
    {"name": "Research", "description": "gather", "agentType": "research", "priority": "high", "dependencies": []},
    {"name": "Write", "description": "draft", "agentType": "media", "priority": "medium", "dependencies": ["Research"]}
  ],
  "executionOrder": ["Research", "Write"],
  "parallelGroups": [["Research"], ["Write"]]
}`+"\n```", &got)

	oracle := litellm.NewOracle(litellm.NewClient(srv.URL, ""), litellm.OracleConfig{Model: "openai/gpt-4o-mini"})
	raw, err := oracle.Plan(context.Background(), plan.GenerateRequest{
		Goal:    "Publish a launch post",
		Context: map[string]any{"brand": "acme"},
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(raw.Tasks) != 2 || raw.Tasks[1].Dependencies[0] != "Research" {
		t.Fatalf("unexpected raw plan %+v", raw)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("expected json_object response format, got %+v", got.ResponseFormat)
	}
	user := got.Messages[1].Content
	if !strings.Contains(user, "GOAL: Publish a launch post") || !strings.Contains(user, `"brand": "acme"`) {
		t.Errorf("user prompt missing goal or context:\n%s", user)
	}
	if !strings.Contains(user, "- video-analysis: Video content analysis") {
		t.Errorf("user prompt missing agent types:\n%s", user)
	}
}

func TestOraclePlanRepairsMalformedJSON(t *testing.T) {
	srv := completionServer(t, `{"tasks": [{"name": "Research", "agentType": "research",}], "executionOrder": ["Research"],}`, nil)

	oracle := litellm.NewOracle(litellm.NewClient(srv.URL, ""), litellm.OracleConfig{Model: "m"})
	raw, err := oracle.Plan(context.Background(), plan.GenerateRequest{Goal: "g"})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(raw.Tasks) != 1 || raw.Tasks[0].Name != "Research" {
		t.Fatalf("unexpected raw plan %+v", raw)
	}
}

func TestOracleAdaptationPrompt(t *testing.T) {
	var got litellm.ChatCompletionRequest
	srv := completionServer(t, `{"tasks":[{"name":"Retry"}]}`, &got)

	oracle := litellm.NewOracle(litellm.NewClient(srv.URL, ""), litellm.OracleConfig{
		Model:      "m",
		AgentTypes: []plan.AgentType{plan.AgentReview, "translator"},
	})
	_, err := oracle.Plan(context.Background(), plan.GenerateRequest{
		Goal: "g",
		Adaptation: &plan.AdaptationRequest{
			PlanID:     "p1",
			Completed:  []plan.CompletedTask{{TaskID: "a", Name: "Research"}},
			Failed:     []plan.FailedTask{{TaskID: "b", Name: "Write", Error: "timeout"}},
			LowQuality: []plan.QualityIssue{{TaskID: "c", Name: "Review", Quality: 0.2}},
		},
	})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	user := got.Messages[1].Content
	for _, want := range []string{
		"ORIGINAL GOAL: g",
		"- Research: completed successfully",
		"- Write: timeout",
		"- Review (quality 0.20): Low quality",
		"FEEDBACK SUGGESTIONS:\n- none",
		"- translator\n",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("adaptation prompt missing %q:\n%s", want, user)
		}
	}
}
