package plan

import (
	"errors"
	"strings"
)

// RawTask is one task as emitted by the planner oracle. Every field is
// untrusted: dependencies may be IDs, names or positional references.
type RawTask struct {
	ID                string         `json:"id,omitempty"`
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	AgentType         string         `json:"agentType"`
	Priority          string         `json:"priority"`
	Dependencies      []string       `json:"dependencies"`
	EstimatedDuration int            `json:"estimatedDuration,omitempty"`
	Params            map[string]any `json:"params,omitempty"`
}

// RawPlan is the unvalidated planner oracle output. Issues lists values the
// decoder had to drop or coerce; Normalize reports them as warnings.
type RawPlan struct {
	Tasks          []RawTask  `json:"tasks"`
	ExecutionOrder []string   `json:"executionOrder"`
	ParallelGroups [][]string `json:"parallelGroups"`
	Issues         []string   `json:"issues,omitempty"`
}

// GenerateRequest asks the planner oracle for a plan. Adaptation is set when the
// oracle is asked to replace a previous plan.
type GenerateRequest struct {
	Goal       string             `json:"goal"`
	Context    map[string]any     `json:"context,omitempty"`
	Adaptation *AdaptationRequest `json:"adaptation,omitempty"`
}

// Validate checks that the request carries a goal.
func (r *GenerateRequest) Validate() error {
	if strings.TrimSpace(r.Goal) == "" {
		return errors.New("goal is required")
	}
	return nil
}

// AdaptationRequest summarizes an executed plan for replanning.
type AdaptationRequest struct {
	PlanID      string          `json:"plan_id"`
	Completed   []CompletedTask `json:"completed"`
	Failed      []FailedTask    `json:"failed"`
	LowQuality  []QualityIssue  `json:"low_quality"`
	Suggestions []string        `json:"suggestions,omitempty"`
}

// CompletedTask is a succeeded task that must be preserved by the new plan.
type CompletedTask struct {
	TaskID string `json:"task_id"`
	Name   string `json:"name"`
	Result any    `json:"result,omitempty"`
}

// FailedTask is a task whose executor returned an error.
type FailedTask struct {
	TaskID string `json:"task_id"`
	Name   string `json:"name"`
	Error  string `json:"error"`
}

// QualityIssue is a task whose feedback scored under the quality threshold.
type QualityIssue struct {
	TaskID      string   `json:"task_id"`
	Name        string   `json:"name"`
	Quality     float64  `json:"quality"`
	Notes       string   `json:"notes,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// NeedsAdaptation reports whether there is anything to replan.
func (r *AdaptationRequest) NeedsAdaptation() bool {
	return len(r.Failed) > 0 || len(r.LowQuality) > 0
}

// ToRaw converts a normalized plan back into planner form with IDs as
// references, keeping only the tasks for which keep returns true.
// Dependencies on dropped tasks are removed.
func (p *TaskPlan) ToRaw(keep func(t *Task) bool) *RawPlan {
	kept := make(IDSet, len(p.Tasks))
	raw := &RawPlan{}
	for i := range p.Tasks {
		t := &p.Tasks[i]
		if !keep(t) {
			continue
		}
		kept.Add(t.ID)
		raw.Tasks = append(raw.Tasks, RawTask{
			ID:                t.ID,
			Name:              t.Name,
			Description:       t.Description,
			AgentType:         string(t.AgentType),
			Priority:          string(t.Priority),
			EstimatedDuration: t.EstimatedDuration,
			Params:            t.Params,
		})
	}
	// Dependencies are filled in after every kept ID is known.
	for i := range raw.Tasks {
		t, _ := p.Task(raw.Tasks[i].ID)
		for _, dep := range t.Dependencies {
			if kept.Has(dep) {
				raw.Tasks[i].Dependencies = append(raw.Tasks[i].Dependencies, dep)
			}
		}
	}
	for _, id := range p.ExecutionOrder {
		if kept.Has(id) {
			raw.ExecutionOrder = append(raw.ExecutionOrder, id)
		}
	}
	for _, g := range p.ParallelGroups {
		var members []string
		for _, id := range g {
			if kept.Has(id) {
				members = append(members, id)
			}
		}
		if len(members) > 0 {
			raw.ParallelGroups = append(raw.ParallelGroups, members)
		}
	}
	return raw
}
