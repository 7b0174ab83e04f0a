package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"canvasflow/internal/domain"
	"canvasflow/internal/value"
)

func (s *Server) registerRunTools() {
	s.mcp.AddTool(mcp.NewTool("run_block",
		mcp.WithDescription("Run a code block: resolve its connectors, execute it in a sandbox, and write its outputs onto connected objects"),
		mcp.WithString("blockId", mcp.Description("Code block ID"), mcp.Required()),
	), s.handleRunBlock)

	s.mcp.AddTool(mcp.NewTool("format_block",
		mcp.WithDescription("Pretty-print a code block in place"),
		mcp.WithString("blockId", mcp.Description("Code block ID"), mcp.Required()),
	), s.handleFormatBlock)

	s.mcp.AddTool(mcp.NewTool("get_run_status",
		mcp.WithDescription("Current status of a code block: EMPTY, RUNNING, FORMATTING, SUCCESS or ERROR"),
		mcp.WithString("blockId", mcp.Description("Code block ID"), mcp.Required()),
	), s.handleGetRunStatus)

	s.mcp.AddTool(mcp.NewTool("get_result",
		mcp.WithDescription("Read the value a code block produced at a line in this session. Line 0 holds the error of a failed run."),
		mcp.WithString("blockId", mcp.Description("Code block ID"), mcp.Required()),
		mcp.WithNumber("line", mcp.Description("1-based line number"), mcp.Required()),
	), s.handleGetResult)

	s.mcp.AddTool(mcp.NewTool("schedule_block",
		mcp.WithDescription("Re-run a code block on a cron schedule (five fields, or @hourly style descriptors)"),
		mcp.WithString("blockId", mcp.Description("Code block ID"), mcp.Required()),
		mcp.WithString("cron", mcp.Description("Cron expression"), mcp.Required()),
	), s.handleScheduleBlock)

	s.mcp.AddTool(mcp.NewTool("unschedule_block",
		mcp.WithDescription("Remove every schedule of a code block"),
		mcp.WithString("blockId", mcp.Description("Code block ID"), mcp.Required()),
	), s.handleUnscheduleBlock)
}

func (s *Server) handleRunBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	block, err := s.getBlockForTool(req.GetArguments())
	if err != nil {
		return nil, err
	}
	report, err := s.runs.Run(ctx, block.ID)
	if report == nil {
		return nil, err
	}
	s.emitBlocksChanged(ctx, block.PageID)
	// A failed script is still a successful tool call; the notice says why.
	return jsonResult(report)
}

func (s *Server) handleFormatBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	block, err := s.getBlockForTool(req.GetArguments())
	if err != nil {
		return nil, err
	}
	formatted, err := s.runs.Format(ctx, block.ID)
	if err != nil {
		return nil, err
	}
	return jsonResult(summarizeBlock(*formatted))
}

func (s *Server) handleGetRunStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blockID := req.GetString("blockId", "")
	if blockID == "" {
		return nil, fmt.Errorf("blockId is required")
	}
	return jsonResult(s.runs.Status(blockID))
}

func (s *Server) handleGetResult(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockID := req.GetString("blockId", "")
	if blockID == "" {
		return nil, fmt.Errorf("blockId is required")
	}
	line := int(getFloat(args, "line", 0))
	r, err := s.results.GetResult(domain.ResultKey(blockID, line))
	if err != nil {
		return nil, err
	}
	if r == nil {
		return textResult(fmt.Sprintf("No result for %s line %d", blockID, line)), nil
	}
	if r.Value.Type == value.TypeBinary {
		return jsonResult(map[string]any{"type": r.Value.Type, "base64Length": len(r.Value.Data)})
	}
	return jsonResult(r.Value)
}

func (s *Server) handleScheduleBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	block, err := s.getBlockForTool(req.GetArguments())
	if err != nil {
		return nil, err
	}
	if block.Type != domain.BlockTypeCode {
		return nil, fmt.Errorf("block %s is a %s block, not code", block.ID, block.Type)
	}
	sc, err := s.schedules.Schedule(ctx, block.ID, req.GetString("cron", ""))
	if err != nil {
		return nil, err
	}
	return jsonResult(sc)
}

func (s *Server) handleUnscheduleBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blockID := req.GetString("blockId", "")
	if blockID == "" {
		return nil, fmt.Errorf("blockId is required")
	}
	if err := s.schedules.Unschedule(ctx, blockID); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Schedules of %s removed", blockID)), nil
}
