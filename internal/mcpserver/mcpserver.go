// Package mcpserver exposes weighted percentile computation as MCP tools.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP server and registers the wpct tools.
type Server struct {
	server *mcp.Server
}

// NewServer creates a new MCP server with all wpct tools registered.
func NewServer(version string) *Server {
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "wpct",
			Version: version,
		},
		nil,
	)

	s := &Server{server: server}
	s.registerTools()
	s.registerPrompts()
	return s
}

// Run starts the MCP server over stdio transport.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	// Inline samples
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "weighted_percentile",
		Description: describeWeightedPercentile(),
	}, handleWeightedPercentile)

	// Sample files
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "analyze_datasets",
		Description: describeAnalyzeDatasets(),
	}, handleAnalyzeDatasets)
}
