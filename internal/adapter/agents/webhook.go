package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/Strob0t/agentplan/internal/domain/plan"
	"github.com/Strob0t/agentplan/internal/logger"
	"github.com/Strob0t/agentplan/internal/port/agentexec"
	"github.com/Strob0t/agentplan/internal/resilience"
)

// KindWebhook is the executor kind that POSTs tasks to an HTTP endpoint.
const KindWebhook = "webhook"

const maxWebhookResponse = 4 << 20

func init() {
	agentexec.Register(KindWebhook, func(spec agentexec.Spec) (agentexec.Executor, error) {
		return NewWebhookExecutor(spec)
	})
}

// WebhookRequest is the body sent to a webhook executor endpoint.
type WebhookRequest struct {
	Task    plan.Task      `json:"task"`
	Context map[string]any `json:"context"`
}

// WebhookExecutor delegates a task to a workflow automation endpoint. A JSON
// response body becomes the task output; any other body is returned as
// {"content": body}.
type WebhookExecutor struct {
	agentType  plan.AgentType
	url        string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewWebhookExecutor creates a webhook executor.
func NewWebhookExecutor(spec agentexec.Spec) (*WebhookExecutor, error) {
	if spec.URL == "" {
		return nil, fmt.Errorf("webhook executor %s: url is required", spec.AgentType)
	}
	timeout := spec.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &WebhookExecutor{
		agentType:  spec.AgentType,
		url:        spec.URL,
		apiKey:     spec.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    spec.Breaker,
	}, nil
}

// Name implements agentexec.Executor.
func (e *WebhookExecutor) Name() string { return KindWebhook + ":" + string(e.agentType) }

// Execute implements agentexec.Executor.
func (e *WebhookExecutor) Execute(ctx context.Context, task plan.Task, planCtx map[string]any) (any, error) {
	body, err := json.Marshal(WebhookRequest{Task: task, Context: planCtx})
	if err != nil {
		return nil, fmt.Errorf("marshal webhook request: %w", err)
	}

	var data []byte
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if e.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.apiKey)
		}
		if reqID := logger.RequestID(ctx); reqID != "" {
			req.Header.Set("X-Request-ID", reqID)
		}

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err = io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponse))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, truncate(string(data), 200))
		}
		return nil
	}

	if e.breaker != nil {
		err = e.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s task %s: %w", e.agentType, task.ID, err)
	}
	return decodeOutput(data), nil
}

func decodeOutput(data []byte) any {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"content": string(data)}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
