package plan

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/agentplan/internal/domain"
)

var (
	ErrNoTasks         = errors.New("plan has no tasks")
	ErrDependencyCycle = errors.New("task dependencies contain a cycle")
	ErrUnknownTask     = fmt.Errorf("%w: unknown task", domain.ErrValidation)
	ErrPlanNotFound    = fmt.Errorf("plan %w", domain.ErrNotFound)
)

// CyclePolicy decides what the normalizer does with a dependency cycle.
type CyclePolicy string

const (
	CycleBreak  CyclePolicy = "break"  // drop the back-edge and record a warning
	CycleReject CyclePolicy = "reject" // fail validation
)

// ValidCyclePolicy reports whether s names a known cycle policy.
func ValidCyclePolicy(s string) bool {
	switch CyclePolicy(s) {
	case CycleBreak, CycleReject:
		return true
	}
	return false
}

// NormalizeOptions tunes Normalize. The zero value breaks cycles and does not
// derive groups.
type NormalizeOptions struct {
	CyclePolicy  CyclePolicy
	DeriveGroups bool
	NewID        func() string
	Now          func() time.Time
}

// Normalize converts untrusted oracle output into a well-formed TaskPlan.
// Unresolvable references and cycles are repaired and recorded in
// TaskPlan.Warnings; only an empty task list (or a cycle under CycleReject)
// is an error.
func Normalize(goal string, raw *RawPlan, opts NormalizeOptions) (*TaskPlan, error) {
	if raw == nil || len(raw.Tasks) == 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, ErrNoTasks)
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CyclePolicy == "" {
		opts.CyclePolicy = CycleBreak
	}

	n := &normalizer{opts: opts, warnings: slices.Clone(raw.Issues)}
	tasks := n.assignIDs(raw.Tasks)
	res := newResolver(tasks)
	for i := range tasks {
		tasks[i].Dependencies = n.resolveDependencies(&tasks[i], raw.Tasks[i].Dependencies, res)
	}

	if err := n.breakCycles(tasks); err != nil {
		return nil, err
	}

	order, _ := topoOrder(tasks)
	now := opts.Now()
	p := &TaskPlan{
		ID:             opts.NewID(),
		Goal:           goal,
		Tasks:          tasks,
		ExecutionOrder: n.executionOrder(tasks, order, raw.ExecutionOrder, res),
		ParallelGroups: n.parallelGroups(tasks, order, raw.ParallelGroups, res),
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	p.Warnings = n.warnings
	return p, nil
}

type normalizer struct {
	opts     NormalizeOptions
	warnings []string
}

func (n *normalizer) warn(format string, args ...any) {
	n.warnings = append(n.warnings, fmt.Sprintf(format, args...))
}

func (n *normalizer) assignIDs(raw []RawTask) []Task {
	tasks := make([]Task, len(raw))
	seen := make(IDSet, len(raw))
	for i := range raw {
		rt := &raw[i]
		id := strings.TrimSpace(rt.ID)
		if id == "" || seen.Has(id) {
			if id != "" {
				n.warn("duplicate task id %q reassigned", id)
			}
			id = n.opts.NewID()
		}
		seen.Add(id)

		name := strings.TrimSpace(rt.Name)
		if name == "" {
			name = "task-" + strconv.Itoa(i+1)
		}
		agentType := AgentType(strings.ToLower(strings.TrimSpace(rt.AgentType)))
		if agentType == "" {
			n.warn("task %q has no agent type, defaulting to %s", name, AgentThink)
			agentType = AgentThink
		}
		dur := rt.EstimatedDuration
		if dur < 0 {
			dur = 0
		}
		tasks[i] = Task{
			ID:                id,
			Name:              name,
			Description:       rt.Description,
			AgentType:         agentType,
			Priority:          ParsePriority(strings.ToLower(strings.TrimSpace(rt.Priority))),
			EstimatedDuration: dur,
			Params:            rt.Params,
		}
		if tasks[i].Params == nil {
			tasks[i].Params = map[string]any{}
		}
	}
	return tasks
}

func (n *normalizer) resolveDependencies(t *Task, refs []string, res *resolver) []string {
	deps := make([]string, 0, len(refs))
	for _, ref := range refs {
		id, ok := res.resolve(ref)
		switch {
		case !ok:
			n.warn("task %q: dropped unresolved dependency %q", t.Name, ref)
		case id == t.ID:
			n.warn("task %q: dropped self dependency", t.Name)
		case slices.Contains(deps, id):
		default:
			deps = append(deps, id)
		}
	}
	return deps
}

// breakCycles walks the dependency graph depth-first and removes every
// back-edge it meets, or fails under CycleReject.
func (n *normalizer) breakCycles(tasks []Task) error {
	const (
		white = iota
		gray
		black
	)
	index := make(map[string]int, len(tasks))
	for i := range tasks {
		index[tasks[i].ID] = i
	}
	color := make([]int, len(tasks))

	var visit func(i int) error
	visit = func(i int) error {
		color[i] = gray
		t := &tasks[i]
		kept := t.Dependencies[:0]
		for _, dep := range t.Dependencies {
			j := index[dep]
			switch color[j] {
			case gray:
				if n.opts.CyclePolicy == CycleReject {
					return fmt.Errorf("%w: %w: %q depends on %q", domain.ErrValidation, ErrDependencyCycle, t.Name, tasks[j].Name)
				}
				n.warn("dependency cycle broken: %q no longer depends on %q", t.Name, tasks[j].Name)
				continue
			case white:
				if err := visit(j); err != nil {
					return err
				}
			}
			kept = append(kept, dep)
		}
		t.Dependencies = kept
		color[i] = black
		return nil
	}

	for i := range tasks {
		if color[i] == white {
			if err := visit(i); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *normalizer) executionOrder(tasks []Task, derived, raw []string, res *resolver) []string {
	if len(raw) == 0 {
		return derived
	}
	resolved := make([]string, 0, len(raw))
	seen := make(IDSet, len(raw))
	for _, ref := range raw {
		if id, ok := res.resolve(ref); ok && !seen.Has(id) {
			seen.Add(id)
			resolved = append(resolved, id)
		}
	}
	if len(resolved) != len(tasks) || !respectsDependencies(tasks, resolved) {
		n.warn("execution order from planner is inconsistent, using dependency order")
		return derived
	}
	return resolved
}

func (n *normalizer) parallelGroups(tasks []Task, order []string, raw [][]string, res *resolver) [][]string {
	if len(raw) > 0 {
		groups, ok := n.resolveGroups(tasks, raw, res)
		if ok {
			return groups
		}
		n.warn("parallel groups from planner are inconsistent")
	}
	if !n.opts.DeriveGroups {
		return nil
	}
	return deriveGroups(tasks, order)
}

func (n *normalizer) resolveGroups(tasks []Task, raw [][]string, res *resolver) ([][]string, bool) {
	anc := ancestors(tasks)
	assigned := make(IDSet)
	var groups [][]string
	for _, rg := range raw {
		var g []string
		for _, ref := range rg {
			id, ok := res.resolve(ref)
			if !ok {
				n.warn("parallel group: dropped unresolved task %q", ref)
				continue
			}
			if slices.Contains(g, id) {
				continue
			}
			if assigned.Has(id) {
				return nil, false
			}
			for _, other := range g {
				if anc[id].Has(other) || anc[other].Has(id) {
					return nil, false
				}
			}
			g = append(g, id)
			assigned.Add(id)
		}
		if len(g) > 0 {
			groups = append(groups, g)
		}
	}
	return groups, len(groups) > 0
}

// deriveGroups buckets tasks by dependency depth: tasks at one depth share no
// transitive dependency and become ready at the same scheduling step.
func deriveGroups(tasks []Task, order []string) [][]string {
	if len(order) != len(tasks) {
		return nil
	}
	depth := levels(tasks, order)
	maxDepth := 0
	for _, d := range depth {
		maxDepth = max(maxDepth, d)
	}
	groups := make([][]string, maxDepth+1)
	for i := range tasks {
		d := depth[tasks[i].ID]
		groups[d] = append(groups[d], tasks[i].ID)
	}
	return groups
}

func respectsDependencies(tasks []Task, order []string) bool {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for i := range tasks {
		for _, dep := range tasks[i].Dependencies {
			if pos[dep] > pos[tasks[i].ID] {
				return false
			}
		}
	}
	return true
}

// resolver maps oracle references to canonical task IDs. Accepted forms, in
// order: exact ID, exact name, case-insensitive name, bare 0-based index,
// and "task-N" / "task-id-N" / "step-N" 1-based positions.
type resolver struct {
	tasks  []Task
	ids    IDSet
	byName map[string]string
	byFold map[string]string
}

func newResolver(tasks []Task) *resolver {
	r := &resolver{
		tasks:  tasks,
		ids:    make(IDSet, len(tasks)),
		byName: make(map[string]string, len(tasks)),
		byFold: make(map[string]string, len(tasks)),
	}
	for i := range tasks {
		r.ids.Add(tasks[i].ID)
		if _, dup := r.byName[tasks[i].Name]; !dup {
			r.byName[tasks[i].Name] = tasks[i].ID
		}
		key := strings.ToLower(tasks[i].Name)
		if _, dup := r.byFold[key]; !dup {
			r.byFold[key] = tasks[i].ID
		}
	}
	return r
}

func (r *resolver) resolve(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	if r.ids.Has(ref) {
		return ref, true
	}
	if id, ok := r.byName[ref]; ok {
		return id, true
	}
	if id, ok := r.byFold[strings.ToLower(ref)]; ok {
		return id, true
	}
	if idx, err := strconv.Atoi(ref); err == nil {
		if idx >= 0 && idx < len(r.tasks) {
			return r.tasks[idx].ID, true
		}
		return "", false
	}
	lower := strings.ToLower(ref)
	for _, prefix := range []string{"task-id-", "task_id_", "task-", "task_", "step-", "#"} {
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		pos, err := strconv.Atoi(strings.TrimPrefix(lower, prefix))
		if err == nil && pos >= 1 && pos <= len(r.tasks) {
			return r.tasks[pos-1].ID, true
		}
		return "", false
	}
	return "", false
}
