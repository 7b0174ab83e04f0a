package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"canvasflow/internal/canvas"
	"canvasflow/internal/domain"
	"canvasflow/internal/service"
)

// Server is the MCP server for canvasflow. It exposes tools and resources
// so agents can build, wire, and run canvas dataflows.
type Server struct {
	mcp     *server.MCPServer
	emitter service.EventEmitter
	layout  *LayoutEngine

	notebooks *service.NotebookService
	blocks    *service.BlockService
	runs      *service.RunService
	schedules *service.ScheduleService
	database  *service.DatabaseService
	results   domain.ResultStore

	mu           sync.Mutex
	activePageID string
}

// Deps holds everything the server needs from the composition root.
type Deps struct {
	Emitter   service.EventEmitter
	Layout    canvas.Layout
	Notebooks *service.NotebookService
	Blocks    *service.BlockService
	Runs      *service.RunService
	Schedules *service.ScheduleService
	Database  *service.DatabaseService
	Results   domain.ResultStore
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	s := &Server{
		emitter:   deps.Emitter,
		layout:    NewLayoutEngine(deps.Layout),
		notebooks: deps.Notebooks,
		blocks:    deps.Blocks,
		runs:      deps.Runs,
		schedules: deps.Schedules,
		database:  deps.Database,
		results:   deps.Results,
	}

	s.mcp = server.NewMCPServer(
		"canvasflow",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerNavigationTools()
	s.registerBlockTools()
	s.registerCodeTools()
	s.registerConnectionTools()
	s.registerRunTools()
	s.registerDatabaseTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	log.Println("[MCP] Starting stdio server...")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// emitBlocksChanged notifies listeners that blocks have changed on a page.
func (s *Server) emitBlocksChanged(ctx context.Context, pageID string) {
	s.emitter.Emit(ctx, "mcp:blocks-changed", map[string]string{"pageId": pageID})
}

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func (s *Server) setActivePage(pageID string) {
	s.mu.Lock()
	s.activePageID = pageID
	s.mu.Unlock()
}

// resolvePageID returns the pageId from tool args or falls back to the
// active page.
func (s *Server) resolvePageID(args map[string]any) (string, error) {
	if pid, ok := args["pageId"].(string); ok && pid != "" {
		return pid, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activePageID != "" {
		return s.activePageID, nil
	}
	return "", fmt.Errorf("no pageId provided and no active page set (use set_active_page first)")
}

// getBlockForTool retrieves the block named by the blockId argument.
func (s *Server) getBlockForTool(args map[string]any) (*domain.Block, error) {
	blockID, ok := args["blockId"].(string)
	if !ok || blockID == "" {
		return nil, fmt.Errorf("blockId is required")
	}
	return s.blocks.GetBlock(blockID)
}

func getFloat(args map[string]any, key string, fallback float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return fallback
}

// optFloat returns a pointer to the argument, or nil when it is absent.
func optFloat(args map[string]any, key string) *float64 {
	if v, ok := args[key].(float64); ok {
		return &v
	}
	return nil
}

func optString(args map[string]any, key string) *string {
	if v, ok := args[key].(string); ok {
		return &v
	}
	return nil
}

func boolPtr(v bool) *bool { return &v }
