package main

import (
	"fmt"
	"net/url"

	"github.com/Strob0t/agentplan/internal/adapter/agents"
	"github.com/Strob0t/agentplan/internal/config"
	"github.com/Strob0t/agentplan/internal/domain/plan"
	"github.com/Strob0t/agentplan/internal/port/agentexec"
	"github.com/Strob0t/agentplan/internal/port/notifier"
	"github.com/Strob0t/agentplan/internal/resilience"
	"github.com/Strob0t/agentplan/internal/service"

	// Notifier blank imports; each import activates a self-registering adapter.
	_ "github.com/Strob0t/agentplan/internal/adapter/discord"
	_ "github.com/Strob0t/agentplan/internal/adapter/slack"
)

// buildExecutors turns the configured agents into a registry. LLM agents
// without their own URL talk to the shared LiteLLM proxy. Every agent gets
// its own circuit breaker so one failing backend does not block the others.
func buildExecutors(cfg *config.Config) (*agentexec.Registry, error) {
	specs := make([]agentexec.Spec, 0, len(cfg.Agents))
	for i := range cfg.Agents {
		a := &cfg.Agents[i]
		spec := agentexec.Spec{
			AgentType:    plan.AgentType(a.Type),
			Kind:         a.Kind,
			Model:        a.Model,
			SystemPrompt: a.SystemPrompt,
			URL:          a.URL,
			APIKey:       a.APIKey,
			Timeout:      a.Timeout,
			RPS:          a.RPS,
			Burst:        a.Burst,
			Breaker:      resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout),
		}
		if spec.Kind == agents.KindLLM {
			if spec.URL == "" {
				spec.URL = cfg.LiteLLM.URL
			}
			if spec.APIKey == "" {
				spec.APIKey = cfg.LiteLLM.MasterKey
			}
		}
		specs = append(specs, spec)
	}
	return agents.Build(specs)
}

// buildNotifier returns the plan outcome notifier, or nil when no targets
// are configured.
func buildNotifier(cfg *config.Notify) (*service.PlanNotifier, error) {
	if len(cfg.Targets) == 0 {
		return nil, nil
	}
	targets := make([]notifier.Notifier, 0, len(cfg.Targets))
	for i := range cfg.Targets {
		t := &cfg.Targets[i]
		n, err := notifier.New(notifier.Spec{Kind: t.Kind, WebhookURL: t.WebhookURL, Timeout: t.Timeout})
		if err != nil {
			return nil, fmt.Errorf("notify target %d: %w", i, err)
		}
		targets = append(targets, n)
	}
	statuses := make([]plan.Status, len(cfg.Statuses))
	for i, st := range cfg.Statuses {
		statuses[i] = plan.Status(st)
	}
	return service.NewPlanNotifier(targets, statuses, cfg.Adapted), nil
}

// originHost converts a CORS origin such as "http://localhost:3000" into the
// host pattern the WebSocket upgrader matches against.
func originHost(origin string) string {
	if origin == "" || origin == "*" {
		return origin
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}
