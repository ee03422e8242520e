// Package agentexec defines the agent executor port and the capability-keyed
// registry the coordinator dispatches through.
package agentexec

import (
	"context"
	"time"

	"github.com/Strob0t/agentplan/internal/domain/plan"
	"github.com/Strob0t/agentplan/internal/resilience"
)

// Executor performs the side-effecting work for tasks of one agent type.
// Implementations must be safe for concurrent use by unrelated plans.
type Executor interface {
	// Name identifies the executor implementation in logs and results.
	Name() string

	// Execute runs task with a snapshot of the plan context owned by this
	// call; nested maps and slices are not shared with sibling tasks. It
	// returns the task output. The output is merged into the plan context
	// under the task ID once the current scheduling step finishes.
	Execute(ctx context.Context, task plan.Task, planCtx map[string]any) (any, error)
}

// Spec configures one executor instance.
type Spec struct {
	AgentType    plan.AgentType
	Kind         string
	Model        string
	SystemPrompt string
	URL          string
	APIKey       string
	Timeout      time.Duration
	RPS          float64 // 0 = unlimited
	Burst        int
	Breaker      *resilience.Breaker // optional, guards outbound calls
}
