package agents

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/Strob0t/agentplan/internal/domain/plan"
	"github.com/Strob0t/agentplan/internal/port/agentexec"
)

// Limited wraps an executor with a token bucket shared by every plan that
// dispatches to it. Callers wait for a token until their context ends.
type Limited struct {
	inner   agentexec.Executor
	limiter *rate.Limiter
}

// WithRateLimit wraps e when rps is positive and returns e unchanged
// otherwise. A burst less than 1 is coerced to 1.
func WithRateLimit(e agentexec.Executor, rps float64, burst int) agentexec.Executor {
	if rps <= 0 {
		return e
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{inner: e, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Name implements agentexec.Executor.
func (l *Limited) Name() string { return l.inner.Name() }

// Execute implements agentexec.Executor.
func (l *Limited) Execute(ctx context.Context, task plan.Task, planCtx map[string]any) (any, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s rate limit: %w", l.inner.Name(), err)
	}
	return l.inner.Execute(ctx, task, planCtx)
}
