package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"canvasflow/internal/domain"
	"canvasflow/internal/service"
)

func (s *Server) registerConnectionTools() {
	s.mcp.AddTool(mcp.NewTool("connect",
		mcp.WithDescription("Draw a connector. Use a frame id to wire a line of code, an object id to wire the whole object, or a group id to attach a library to a block and its frames. Leave one end's id empty and give its x/y to drop a free end; running the code then creates an object there."),
		mcp.WithString("from", mcp.Description("Start node id (frame or object)")),
		mcp.WithString("to", mcp.Description("End node id (frame or object)")),
		mcp.WithNumber("fromX", mcp.Description("Start x for a free start")),
		mcp.WithNumber("fromY", mcp.Description("Start y for a free start")),
		mcp.WithNumber("toX", mcp.Description("End x for a free end")),
		mcp.WithNumber("toY", mcp.Description("End y for a free end")),
		mcp.WithString("label", mcp.Description("Connector label (optional)")),
	), s.handleConnect)

	s.mcp.AddTool(mcp.NewTool("disconnect",
		mcp.WithDescription("Delete a connector"),
		mcp.WithString("connectionId", mcp.Description("Connector ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDisconnect)
}

func (s *Server) handleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	in := service.ConnectInput{
		Start: domain.Endpoint{NodeID: req.GetString("from", ""), X: getFloat(args, "fromX", 0), Y: getFloat(args, "fromY", 0)},
		End:   domain.Endpoint{NodeID: req.GetString("to", ""), X: getFloat(args, "toX", 0), Y: getFloat(args, "toY", 0)},
		Label: req.GetString("label", ""),
	}
	conn, err := s.blocks.Connect(ctx, in)
	if err != nil {
		return nil, err
	}
	s.emitBlocksChanged(ctx, conn.PageID)
	return jsonResult(conn)
}

func (s *Server) handleDisconnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("connectionId", "")
	if id == "" {
		return nil, fmt.Errorf("connectionId is required")
	}
	if err := s.blocks.Disconnect(ctx, id); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Connector %s deleted", id)), nil
}
