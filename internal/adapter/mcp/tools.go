package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listPlansTool(),
		s.getPlanTool(),
		s.readyTasksTool(),
		s.parallelGroupsTool(),
		s.isCompleteTool(),
	)
}

func planIDParam() mcplib.ToolOption {
	return mcplib.WithString("plan_id",
		mcplib.Required(),
		mcplib.Description("The plan ID"),
	)
}

func completedParam() mcplib.ToolOption {
	return mcplib.WithArray("completed",
		mcplib.Description("IDs of tasks that already reached a terminal state"),
		mcplib.WithStringItems(),
	)
}

func (s *Server) listPlansTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("list_plans",
			mcplib.WithDescription("List all active task plans, newest first"),
		),
		Handler: s.handleListPlans,
	}
}

func (s *Server) getPlanTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("get_plan",
			mcplib.WithDescription("Get a task plan with its tasks, execution order and parallel groups"),
			planIDParam(),
		),
		Handler: s.handleGetPlan,
	}
}

func (s *Server) readyTasksTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("get_ready_tasks",
			mcplib.WithDescription("List the tasks of a plan whose dependencies are all completed"),
			planIDParam(),
			completedParam(),
		),
		Handler: s.handleReadyTasks,
	}
}

func (s *Server) parallelGroupsTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("get_parallel_groups",
			mcplib.WithDescription("List the runnable members of each parallel group of a plan"),
			planIDParam(),
			completedParam(),
		),
		Handler: s.handleParallelGroups,
	}
}

func (s *Server) isCompleteTool() mcpserver.ServerTool {
	return mcpserver.ServerTool{
		Tool: mcplib.NewTool("is_plan_complete",
			mcplib.WithDescription("Report whether every task of a plan has a recorded result"),
			planIDParam(),
		),
		Handler: s.handleIsComplete,
	}
}

func (s *Server) handleListPlans(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Plans == nil {
		return mcplib.NewToolResultError("plan reader not configured"), nil
	}
	plans, err := s.deps.Plans.ListPlans(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list plans", err), nil
	}
	return marshalResult(plans)
}

func (s *Server) handleGetPlan(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	planID, errResult := s.planID(req)
	if errResult != nil {
		return errResult, nil
	}
	p, err := s.deps.Plans.GetPlan(ctx, planID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get plan %s", planID), err), nil
	}
	return marshalResult(p)
}

func (s *Server) handleReadyTasks(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	planID, errResult := s.planID(req)
	if errResult != nil {
		return errResult, nil
	}
	completed, err := completedArg(req)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	tasks, err := s.deps.Plans.GetReadyTasks(ctx, planID, completed)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get ready tasks of %s", planID), err), nil
	}
	return marshalResult(tasks)
}

func (s *Server) handleParallelGroups(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	planID, errResult := s.planID(req)
	if errResult != nil {
		return errResult, nil
	}
	completed, err := completedArg(req)
	if err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	groups, err := s.deps.Plans.GetParallelGroups(ctx, planID, completed)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get parallel groups of %s", planID), err), nil
	}
	return marshalResult(groups)
}

func (s *Server) handleIsComplete(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	planID, errResult := s.planID(req)
	if errResult != nil {
		return errResult, nil
	}
	done, err := s.deps.Plans.IsComplete(ctx, planID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to check plan %s", planID), err), nil
	}
	return marshalResult(map[string]any{"plan_id": planID, "complete": done})
}

// planID extracts the required plan_id argument, or returns an error result.
func (s *Server) planID(req mcplib.CallToolRequest) (string, *mcplib.CallToolResult) { //nolint:gocritic // hugeParam: mcp-go request type
	if s.deps.Plans == nil {
		return "", mcplib.NewToolResultError("plan reader not configured")
	}
	id, ok := req.GetArguments()["plan_id"].(string)
	if !ok || id == "" {
		return "", mcplib.NewToolResultError("plan_id is required")
	}
	return id, nil
}

// completedArg reads the optional completed list. JSON arrays arrive as []any.
func completedArg(req mcplib.CallToolRequest) ([]string, error) { //nolint:gocritic // hugeParam: mcp-go request type
	raw, ok := req.GetArguments()["completed"]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			id, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("completed must contain only strings, got %T", item)
			}
			ids = append(ids, id)
		}
		return ids, nil
	}
	return nil, fmt.Errorf("completed must be an array of task IDs, got %T", raw)
}

func marshalResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
