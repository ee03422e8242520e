package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const plansResourceURI = "agentplan://plans"

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			plansResourceURI,
			"Plan List",
			mcplib.WithResourceDescription("All active task plans"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handlePlansResource,
	)
}

func (s *Server) handlePlansResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	text := `{"error":"plan reader not configured"}`
	if s.deps.Plans != nil {
		plans, err := s.deps.Plans.ListPlans(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(plans)
		if err != nil {
			return nil, err
		}
		text = string(data)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     text,
		},
	}, nil
}
