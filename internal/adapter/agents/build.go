package agents

import (
	"fmt"
	"log/slog"

	"github.com/Strob0t/agentplan/internal/port/agentexec"
)

// Build creates one executor per spec through the kind registry and binds it
// to its agent type.
func Build(specs []agentexec.Spec) (*agentexec.Registry, error) {
	reg := agentexec.NewRegistry()
	for i := range specs {
		spec := specs[i]
		e, err := agentexec.New(spec)
		if err != nil {
			return nil, fmt.Errorf("build executor for %s: %w", spec.AgentType, err)
		}
		e = WithRateLimit(e, spec.RPS, spec.Burst)
		if err := reg.Add(spec.AgentType, e); err != nil {
			return nil, err
		}
		slog.Debug("agent executor registered", "agent_type", spec.AgentType, "executor", e.Name(), "rps", spec.RPS)
	}
	return reg, nil
}
