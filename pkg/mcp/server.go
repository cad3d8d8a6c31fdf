// Package mcp exposes the render pipeline as MCP tools over stdio so that
// agent frontends can drive diagram generation directly.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/atessari/diaforge/internal/enrich"
	"github.com/atessari/diaforge/internal/pipeline"
)

// DiaforgeServerDeps holds the dependencies for creating a DiaforgeServer.
type DiaforgeServerDeps struct {
	Service  *pipeline.Service
	Enricher *enrich.Enricher
	Logger   *slog.Logger
}

// DiaforgeServer wraps an MCP server with diaforge-specific tool handlers.
type DiaforgeServer struct {
	service   *pipeline.Service
	enricher  *enrich.Enricher
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewDiaforgeServer creates a new DiaforgeServer with all 4 tools registered.
func NewDiaforgeServer(deps DiaforgeServerDeps) *DiaforgeServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &DiaforgeServer{
		service:  deps.Service,
		enricher: deps.Enricher,
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"diaforge",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Diaforge renders PlantUML diagrams from structured records with automatic syntax repair. Use diaforge.generate to create a diagram, diaforge.refine to adjust an existing one, diaforge.enrich to infer relations and layers for records, and diaforge.status to inspect a session."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *DiaforgeServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *DiaforgeServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 4 registered MCP tools as ServerTool entries.
func (s *DiaforgeServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: generateTool(), Handler: s.handleGenerate},
		{Tool: refineTool(), Handler: s.handleRefine},
		{Tool: enrichTool(), Handler: s.handleEnrich},
		{Tool: statusTool(), Handler: s.handleStatus},
	}
}

// --- Tool definitions ---

func generateTool() mcp.Tool {
	return mcp.NewTool("diaforge.generate",
		mcp.WithDescription("Generate and render a PlantUML diagram from a JSON array of records"),
		mcp.WithString("records_json", mcp.Required(), mcp.Description("JSON array of records: [{id, name, type, attributes, relations}]")),
		mcp.WithBoolean("enrich", mcp.Description("Run the records through AI enrichment before generating (default: false)")),
	)
}

func refineTool() mcp.Tool {
	return mcp.NewTool("diaforge.refine",
		mcp.WithDescription("Refine the diagram of an existing session with an extra instruction"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session whose diagram to refine")),
		mcp.WithString("instruction", mcp.Required(), mcp.Description("Natural-language adjustment to apply")),
	)
}

func enrichTool() mcp.Tool {
	return mcp.NewTool("diaforge.enrich",
		mcp.WithDescription("Infer missing relations, layers and single points of failure for a JSON array of records"),
		mcp.WithString("records_json", mcp.Required(), mcp.Description("JSON array of records to enrich")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("diaforge.status",
		mcp.WithDescription("Return the state and event log of a render session"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("ID of the session to inspect")),
	)
}
