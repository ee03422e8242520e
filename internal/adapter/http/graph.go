package http

import "github.com/Strob0t/agentplan/internal/domain/plan"

// Node states in a plan graph.
const (
	nodePending   = "pending"
	nodeSucceeded = "succeeded"
	nodeFailed    = "failed"
)

type graphNode struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	AgentType plan.AgentType `json:"agent_type"`
	Priority  plan.Priority  `json:"priority"`
	State     string         `json:"state"`
	Group     int            `json:"group"` // index into parallel_groups, -1 if ungrouped
}

type graphEdge struct {
	From string `json:"from"` // dependency
	To   string `json:"to"`   // dependent
}

type planGraph struct {
	PlanID         string      `json:"plan_id"`
	Status         plan.Status `json:"status"`
	Nodes          []graphNode `json:"nodes"`
	Edges          []graphEdge `json:"edges"`
	ExecutionOrder []string    `json:"execution_order"`
	ParallelGroups [][]string  `json:"parallel_groups"`
}

// buildGraph renders a plan and its results as nodes and dependency edges.
func buildGraph(p *plan.TaskPlan, results []plan.ExecutionResult) planGraph {
	state := make(map[string]string, len(results))
	for _, r := range results {
		if r.Success {
			state[r.TaskID] = nodeSucceeded
		} else {
			state[r.TaskID] = nodeFailed
		}
	}
	group := make(map[string]int)
	for i, g := range p.ParallelGroups {
		for _, id := range g {
			group[id] = i
		}
	}

	g := planGraph{
		PlanID:         p.ID,
		Status:         p.Status,
		Nodes:          make([]graphNode, 0, len(p.Tasks)),
		Edges:          []graphEdge{},
		ExecutionOrder: p.ExecutionOrder,
		ParallelGroups: p.ParallelGroups,
	}
	for i := range p.Tasks {
		t := &p.Tasks[i]
		n := graphNode{ID: t.ID, Name: t.Name, AgentType: t.AgentType, Priority: t.Priority, State: nodePending, Group: -1}
		if s, ok := state[t.ID]; ok {
			n.State = s
		}
		if gi, ok := group[t.ID]; ok {
			n.Group = gi
		}
		g.Nodes = append(g.Nodes, n)
		for _, dep := range t.Dependencies {
			g.Edges = append(g.Edges, graphEdge{From: dep, To: t.ID})
		}
	}
	return g
}
