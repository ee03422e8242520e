// Package agents provides the built-in agent executors: an LLM executor backed
// by LiteLLM and a webhook executor for workflow automation endpoints.
package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/agentplan/internal/adapter/litellm"
	"github.com/Strob0t/agentplan/internal/domain/plan"
	"github.com/Strob0t/agentplan/internal/port/agentexec"
)

// KindLLM is the executor kind backed by a chat completion.
const KindLLM = "llm"

func init() {
	agentexec.Register(KindLLM, func(spec agentexec.Spec) (agentexec.Executor, error) {
		return NewLLMExecutor(spec)
	})
}

// LLMExecutor performs a task by prompting a model with the task and the plan
// context. The output is {"content": ..., "model": ...}.
type LLMExecutor struct {
	agentType    plan.AgentType
	model        string
	systemPrompt string
	timeout      time.Duration
	client       *litellm.Client
}

// NewLLMExecutor creates an LLM executor. spec.URL is the LiteLLM base URL.
func NewLLMExecutor(spec agentexec.Spec) (*LLMExecutor, error) {
	if spec.URL == "" {
		return nil, errors.New("llm executor: litellm url is required")
	}
	if spec.Model == "" {
		return nil, fmt.Errorf("llm executor %s: model is required", spec.AgentType)
	}
	client := litellm.NewClient(spec.URL, spec.APIKey)
	if spec.Breaker != nil {
		client.SetBreaker(spec.Breaker)
	}
	prompt := spec.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt(spec.AgentType)
	}
	return &LLMExecutor{
		agentType:    spec.AgentType,
		model:        spec.Model,
		systemPrompt: prompt,
		timeout:      spec.Timeout,
		client:       client,
	}, nil
}

// Name implements agentexec.Executor.
func (e *LLMExecutor) Name() string { return KindLLM + ":" + string(e.agentType) }

// Execute implements agentexec.Executor.
func (e *LLMExecutor) Execute(ctx context.Context, task plan.Task, planCtx map[string]any) (any, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	user, err := buildTaskPrompt(task, planCtx)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.ChatCompletion(ctx, litellm.ChatCompletionRequest{
		Model: e.model,
		Messages: []litellm.ChatMessage{
			{Role: "system", Content: e.systemPrompt},
			{Role: "user", Content: user},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("%s task %s: %w", e.agentType, task.ID, err)
	}
	return map[string]any{
		"content": resp.Content,
		"model":   resp.Model,
	}, nil
}

func defaultSystemPrompt(t plan.AgentType) string {
	return fmt.Sprintf("You are the %s agent of a multi-agent content team. "+
		"Complete the task you are given using the shared context from earlier tasks. "+
		"Answer with the task output only.", t)
}

func buildTaskPrompt(task plan.Task, planCtx map[string]any) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "TASK: %s\n", task.Name)
	if task.Description != "" {
		fmt.Fprintf(&b, "\nDESCRIPTION:\n%s\n", task.Description)
	}
	if len(task.Params) > 0 {
		params, err := json.MarshalIndent(task.Params, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal task params: %w", err)
		}
		fmt.Fprintf(&b, "\nPARAMETERS:\n%s\n", params)
	}
	if len(planCtx) > 0 {
		shared, err := json.MarshalIndent(planCtx, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal plan context: %w", err)
		}
		fmt.Fprintf(&b, "\nSHARED CONTEXT:\n%s\n", shared)
	}
	return b.String(), nil
}
