package plan

// IDSet is a set of task IDs.
type IDSet map[string]struct{}

// NewIDSet builds a set from the given IDs.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set. A nil set is empty.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id into the set.
func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

// DependencyPolicy decides which task outcomes satisfy a dependency.
type DependencyPolicy string

const (
	DependOnTerminal DependencyPolicy = "terminal" // any recorded result, success or failure
	DependOnSuccess  DependencyPolicy = "success"  // only successful results
)

// ValidDependencyPolicy reports whether s names a known dependency policy.
func ValidDependencyPolicy(s string) bool {
	switch DependencyPolicy(s) {
	case DependOnTerminal, DependOnSuccess:
		return true
	}
	return false
}

// ReadyTasks returns every task not in completed whose dependencies are all in
// completed, in plan order.
func ReadyTasks(p *TaskPlan, completed IDSet) []Task {
	var ready []Task
	for i := range p.Tasks {
		t := &p.Tasks[i]
		if completed.Has(t.ID) {
			continue
		}
		if dependenciesMet(t, completed) {
			ready = append(ready, *t)
		}
	}
	return ready
}

// ParallelGroups filters each configured group to tasks that are not completed
// and whose dependencies are met. Empty groups are dropped.
func ParallelGroups(p *TaskPlan, completed IDSet) [][]Task {
	index := taskIndex(p)
	var groups [][]Task
	for _, g := range p.ParallelGroups {
		var members []Task
		for _, id := range g {
			i, ok := index[id]
			if !ok {
				continue
			}
			t := &p.Tasks[i]
			if completed.Has(t.ID) || !dependenciesMet(t, completed) {
				continue
			}
			members = append(members, *t)
		}
		if len(members) > 0 {
			groups = append(groups, members)
		}
	}
	return groups
}

// IsComplete returns true if every task of the plan is in completed.
func IsComplete(p *TaskPlan, completed IDSet) bool {
	for i := range p.Tasks {
		if !completed.Has(p.Tasks[i].ID) {
			return false
		}
	}
	return true
}

// IsStalled returns true when the plan is not complete but no task is ready
// and no group has runnable members.
func IsStalled(p *TaskPlan, completed IDSet) bool {
	if IsComplete(p, completed) {
		return false
	}
	return len(ReadyTasks(p, completed)) == 0 && len(ParallelGroups(p, completed)) == 0
}

// Grouped returns the set of task IDs that belong to any parallel group.
func Grouped(p *TaskPlan) IDSet {
	s := make(IDSet)
	for _, g := range p.ParallelGroups {
		for _, id := range g {
			s.Add(id)
		}
	}
	return s
}

func dependenciesMet(t *Task, completed IDSet) bool {
	for _, dep := range t.Dependencies {
		if !completed.Has(dep) {
			return false
		}
	}
	return true
}

func taskIndex(p *TaskPlan) map[string]int {
	index := make(map[string]int, len(p.Tasks))
	for i := range p.Tasks {
		index[p.Tasks[i].ID] = i
	}
	return index
}

// topoOrder returns task IDs in a dependency-respecting order using Kahn's
// algorithm. Ties keep plan order. ok is false if a cycle remains.
func topoOrder(tasks []Task) (order []string, ok bool) {
	n := len(tasks)
	index := make(map[string]int, n)
	for i := range tasks {
		index[tasks[i].ID] = i
	}
	inDegree := make([]int, n)
	dependents := make([][]int, n)
	for i := range tasks {
		for _, dep := range tasks[i].Dependencies {
			j, found := index[dep]
			if !found {
				continue
			}
			dependents[j] = append(dependents[j], i)
			inDegree[i]++
		}
	}

	queue := make([]int, 0, n)
	for i, d := range inDegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, tasks[node].ID)
		for _, next := range dependents[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return order, len(order) == n
}

// levels assigns each task its longest-path depth from a root. Tasks at the
// same depth never depend on each other. The graph must be acyclic.
func levels(tasks []Task, order []string) map[string]int {
	index := make(map[string]int, len(tasks))
	for i := range tasks {
		index[tasks[i].ID] = i
	}
	depth := make(map[string]int, len(tasks))
	for _, id := range order {
		d := 0
		for _, dep := range tasks[index[id]].Dependencies {
			if dd, ok := depth[dep]; ok && dd+1 > d {
				d = dd + 1
			}
		}
		depth[id] = d
	}
	return depth
}

// ancestors returns, for every task, the set of tasks it transitively depends on.
func ancestors(tasks []Task) map[string]IDSet {
	index := make(map[string]int, len(tasks))
	for i := range tasks {
		index[tasks[i].ID] = i
	}
	memo := make(map[string]IDSet, len(tasks))
	var visit func(id string, onPath IDSet) IDSet
	visit = func(id string, onPath IDSet) IDSet {
		if s, ok := memo[id]; ok {
			return s
		}
		s := make(IDSet)
		onPath.Add(id)
		for _, dep := range tasks[index[id]].Dependencies {
			if _, ok := index[dep]; !ok || onPath.Has(dep) {
				continue
			}
			s.Add(dep)
			for a := range visit(dep, onPath) {
				s.Add(a)
			}
		}
		delete(onPath, id)
		memo[id] = s
		return s
	}
	for i := range tasks {
		visit(tasks[i].ID, make(IDSet))
	}
	return memo
}

// Progress is the scheduling view of recorded results. Terminal holds every
// task that produced a result; Satisfied holds the subset that unblocks
// dependents under the dependency policy.
type Progress struct {
	Terminal  IDSet
	Satisfied IDSet
}

// NewProgress builds the scheduling view of results under policy.
func NewProgress(results []ExecutionResult, policy DependencyPolicy) Progress {
	pr := Progress{Terminal: make(IDSet, len(results)), Satisfied: make(IDSet, len(results))}
	for i := range results {
		r := &results[i]
		pr.Terminal.Add(r.TaskID)
		if r.Success || policy != DependOnSuccess {
			pr.Satisfied.Add(r.TaskID)
		}
	}
	return pr
}

// Runnable returns the work for one scheduling step: the parallel groups with
// runnable members, and the ready tasks outside those groups, in plan order.
// Tasks that already produced a result are never returned.
func (pr Progress) Runnable(p *TaskPlan) (groups [][]Task, sequential []Task) {
	dispatched := make(IDSet)
	for _, g := range ParallelGroups(p, pr.Satisfied) {
		var members []Task
		for _, t := range g {
			if pr.Terminal.Has(t.ID) || dispatched.Has(t.ID) {
				continue
			}
			dispatched.Add(t.ID)
			members = append(members, t)
		}
		if len(members) > 0 {
			groups = append(groups, members)
		}
	}
	for _, t := range ReadyTasks(p, pr.Satisfied) {
		if pr.Terminal.Has(t.ID) || dispatched.Has(t.ID) {
			continue
		}
		sequential = append(sequential, t)
	}
	return groups, sequential
}

// Done reports whether every task of p produced a result.
func (pr Progress) Done(p *TaskPlan) bool {
	return IsComplete(p, pr.Terminal)
}
