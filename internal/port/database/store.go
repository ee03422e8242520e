// Package database defines the plan store and archive ports.
package database

import (
	"context"
	"time"

	"github.com/Strob0t/agentplan/internal/domain/plan"
)

// Store holds active plans with their results and feedback. Implementations
// return copies; callers never share plan memory with the store.
type Store interface {
	// Plans
	CreatePlan(ctx context.Context, p *plan.TaskPlan) error
	GetPlan(ctx context.Context, id string) (*plan.TaskPlan, error)
	ListPlans(ctx context.Context) ([]plan.TaskPlan, error)
	UpdatePlanStatus(ctx context.Context, id string, status plan.Status) error
	UpdatePlanContext(ctx context.Context, id string, planCtx map[string]any) error
	DeletePlan(ctx context.Context, id string) error

	// Results, one per task; a later result for the same task overwrites.
	SaveResult(ctx context.Context, planID string, r plan.ExecutionResult) error
	ListResults(ctx context.Context, planID string) ([]plan.ExecutionResult, error)

	// Feedback
	AddFeedback(ctx context.Context, planID string, fb plan.Feedback) error
	ListFeedback(ctx context.Context, planID string) ([]plan.Feedback, error)

	// ListTerminalBefore returns terminal plans last updated before cutoff.
	ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]plan.TaskPlan, error)
}

// Archive keeps terminal plans after they leave the active store.
type Archive interface {
	ArchivePlan(ctx context.Context, rec *plan.Record) error
	GetArchivedPlan(ctx context.Context, id string) (*plan.Record, error)
}
