// Package planner defines the planner oracle port.
package planner

import (
	"context"

	"github.com/Strob0t/agentplan/internal/domain/plan"
)

// Oracle turns a goal (and, when replanning, an adaptation summary) into a
// candidate task list. Its output is untrusted and always normalized before
// use.
type Oracle interface {
	Plan(ctx context.Context, req plan.GenerateRequest) (*plan.RawPlan, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, req plan.GenerateRequest) (*plan.RawPlan, error)

// Plan calls f.
func (f OracleFunc) Plan(ctx context.Context, req plan.GenerateRequest) (*plan.RawPlan, error) {
	return f(ctx, req)
}
