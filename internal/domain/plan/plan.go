// Package plan defines the TaskPlan domain entity and the pure scheduling
// functions used by the multi-agent orchestrator.
package plan

import (
	"maps"
	"slices"
	"time"
)

// AgentType is the capability tag used to route a task to an executor.
type AgentType string

const (
	AgentResearch      AgentType = "research"
	AgentThink         AgentType = "think"
	AgentMedia         AgentType = "media"
	AgentReview        AgentType = "review"
	AgentBrowser       AgentType = "browser"
	AgentHelper        AgentType = "helper"
	AgentPoster        AgentType = "poster"
	AgentVideoAnalysis AgentType = "video-analysis"
)

// KnownAgentTypes lists the built-in capability tags. The set is open: any
// non-empty tag with a registered executor is dispatchable.
func KnownAgentTypes() []AgentType {
	return []AgentType{
		AgentResearch, AgentThink, AgentMedia, AgentReview,
		AgentBrowser, AgentHelper, AgentPoster, AgentVideoAnalysis,
	}
}

// Priority controls fail-fast behavior during execution.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority maps free text to a Priority, defaulting to medium.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(s)
	}
	return PriorityMedium
}

// Status represents the lifecycle state of a plan.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStalled   Status = "stalled"
	StatusCancelled Status = "cancelled"
	StatusAdapted   Status = "adapted"
)

// IsTerminal returns true if no further execution will happen for the plan.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStalled, StatusCancelled:
		return true
	}
	return false
}

// Task is one unit of work. Tasks are immutable once the plan is normalized.
type Task struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	AgentType         AgentType      `json:"agent_type"`
	Priority          Priority       `json:"priority"`
	Dependencies      []string       `json:"dependencies"`
	EstimatedDuration int            `json:"estimated_duration,omitempty"` // seconds
	Params            map[string]any `json:"params,omitempty"`
}

// TaskPlan is a validated dependency graph of tasks generated for one goal.
type TaskPlan struct {
	ID             string         `json:"id"`
	Goal           string         `json:"goal"`
	Tasks          []Task         `json:"tasks"`
	ExecutionOrder []string       `json:"execution_order"`
	ParallelGroups [][]string     `json:"parallel_groups"`
	Status         Status         `json:"status"`
	Context        map[string]any `json:"context,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
	AdaptedFrom    string         `json:"adapted_from,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Task returns the task with the given ID.
func (p *TaskPlan) Task(id string) (Task, bool) {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return p.Tasks[i], true
		}
	}
	return Task{}, false
}

// TaskIDs returns the IDs of all tasks in plan order.
func (p *TaskPlan) TaskIDs() []string {
	ids := make([]string, len(p.Tasks))
	for i := range p.Tasks {
		ids[i] = p.Tasks[i].ID
	}
	return ids
}

// Clone returns a deep copy of the plan. Context and params values are copied
// with CloneContext.
func (p *TaskPlan) Clone() *TaskPlan {
	c := *p
	c.Tasks = make([]Task, len(p.Tasks))
	for i := range p.Tasks {
		t := p.Tasks[i]
		t.Dependencies = slices.Clone(t.Dependencies)
		t.Params = CloneContext(t.Params)
		c.Tasks[i] = t
	}
	c.ExecutionOrder = slices.Clone(p.ExecutionOrder)
	c.ParallelGroups = make([][]string, len(p.ParallelGroups))
	for i, g := range p.ParallelGroups {
		c.ParallelGroups[i] = slices.Clone(g)
	}
	c.Context = CloneContext(p.Context)
	c.Warnings = slices.Clone(p.Warnings)
	return &c
}

// CloneContext deep-copies the JSON-shaped parts of m: nested maps and
// slices of any. Other values, such as structs returned by executors, are
// shared.
func CloneContext(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return CloneContext(x)
	case []any:
		if x == nil {
			return x
		}
		out := make([]any, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	case []string:
		return slices.Clone(x)
	case map[string]string:
		return maps.Clone(x)
	default:
		return v
	}
}

// ExecutionResult is the outcome of dispatching one task.
type ExecutionResult struct {
	TaskID          string `json:"task_id"`
	Success         bool   `json:"success"`
	Result          any    `json:"result,omitempty"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
}

// Feedback is an external quality signal for a task, consumed by the adapter.
type Feedback struct {
	TaskID      string   `json:"task_id"`
	Success     bool     `json:"success"`
	Quality     *float64 `json:"quality,omitempty"` // 0..1
	Notes       string   `json:"notes,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// BelowThreshold reports whether the feedback carries a quality score under threshold.
func (f *Feedback) BelowThreshold(threshold float64) bool {
	return f.Quality != nil && *f.Quality < threshold
}

// Record is a plan together with everything recorded against it.
type Record struct {
	Plan     *TaskPlan         `json:"plan"`
	Results  []ExecutionResult `json:"results"`
	Feedback []Feedback        `json:"feedback"`
}
