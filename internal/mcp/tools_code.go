package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"canvasflow/internal/domain"
	"canvasflow/internal/locator"
	"canvasflow/internal/service"
)

func (s *Server) registerCodeTools() {
	s.mcp.AddTool(mcp.NewTool("write_code",
		mcp.WithDescription("Replace the source of a code block, or create a new code block when blockId is omitted. Frames are re-synced afterwards."),
		mcp.WithString("blockId", mcp.Description("Code block to overwrite (optional)")),
		mcp.WithString("pageId", mcp.Description("Page ID for a new block (optional, defaults to active page)")),
		mcp.WithString("language", mcp.Description("javascript, typescript, or python (optional when overwriting)")),
		mcp.WithString("code", mcp.Description("Source code"), mcp.Required()),
	), s.handleWriteCode)

	s.mcp.AddTool(mcp.NewTool("add_code_block",
		mcp.WithDescription("Add a starter code block to the right of an existing object"),
		mcp.WithString("nextTo", mcp.Description("ID of the object to place the block next to"), mcp.Required()),
		mcp.WithString("language", mcp.Description("javascript (default) or python")),
	), s.handleAddCodeBlock)

	s.mcp.AddTool(mcp.NewTool("list_code_blocks",
		mcp.WithDescription("List the code blocks of a page with their titles and run status"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
	), s.handleListCodeBlocks)

	s.mcp.AddTool(mcp.NewTool("list_frames",
		mcp.WithDescription("Sync a code block's line frames and show the inputs and outputs its connectors resolve to"),
		mcp.WithString("blockId", mcp.Description("Code block ID"), mcp.Required()),
	), s.handleListFrames)
}

func (s *Server) handleWriteCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	code, _ := args["code"].(string)
	lang := req.GetString("language", "")

	if blockID := req.GetString("blockId", ""); blockID != "" {
		block, err := s.blocks.WriteCode(ctx, blockID, code, lang)
		if err != nil {
			return nil, err
		}
		s.emitBlocksChanged(ctx, block.PageID)
		return jsonResult(summarizeBlock(*block))
	}

	pageID, err := s.resolvePageID(args)
	if err != nil {
		return nil, err
	}
	existing, _ := s.blocks.ListBlocks(pageID)
	x, y := s.layout.NextPosition(existing, 402, 260)
	block, err := s.blocks.CreateBlock(ctx, service.CreateBlockInput{
		PageID:   pageID,
		Type:     domain.BlockTypeCode,
		X:        x,
		Y:        y,
		Content:  code,
		Language: lang,
	})
	if err != nil {
		return nil, fmt.Errorf("create code block: %w", err)
	}
	s.emitBlocksChanged(ctx, pageID)
	return jsonResult(summarizeBlock(*block))
}

func (s *Server) handleAddCodeBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nextTo := req.GetString("nextTo", "")
	if nextTo == "" {
		return nil, fmt.Errorf("nextTo is required")
	}
	block, err := s.blocks.AddCodeBlock(ctx, nextTo, req.GetString("language", ""))
	if err != nil {
		return nil, err
	}
	s.emitBlocksChanged(ctx, block.PageID)
	return jsonResult(summarizeBlock(*block))
}

type codeBlockSummary struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Language string           `json:"language"`
	Status   domain.RunStatus `json:"status"`
}

func (s *Server) handleListCodeBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pageID, err := s.resolvePageID(req.GetArguments())
	if err != nil {
		return nil, err
	}
	blocks, err := s.blocks.ListCodeBlocks(pageID)
	if err != nil {
		return nil, err
	}
	out := make([]codeBlockSummary, len(blocks))
	for i, b := range blocks {
		out[i] = codeBlockSummary{
			ID:       b.ID,
			Title:    locator.Title(b.Content),
			Language: b.Language,
			Status:   s.runs.Status(b.ID).Status,
		}
	}
	return jsonResult(out)
}

type bindingSummary struct {
	SourceID     string `json:"sourceId"`
	SrcLine      int    `json:"srcLine"`
	DestLine     int    `json:"destLine,omitempty"`
	Chained      bool   `json:"chained"`
	ShouldReturn bool   `json:"shouldReturn,omitempty"`
}

func summarizeBindings(bs []domain.Binding) []bindingSummary {
	out := make([]bindingSummary, len(bs))
	for i, b := range bs {
		out[i] = bindingSummary{
			SourceID:     b.SourceID,
			SrcLine:      b.SrcLine,
			DestLine:     b.DestLine,
			Chained:      b.Chained(),
			ShouldReturn: b.ShouldReturn,
		}
	}
	return out
}

func (s *Server) handleListFrames(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blockID := req.GetString("blockId", "")
	if blockID == "" {
		return nil, fmt.Errorf("blockId is required")
	}
	frames, res, err := s.runs.Inspect(ctx, blockID)
	if err != nil {
		return nil, err
	}
	diagnostics := make([]string, len(res.Diagnostics))
	for i, d := range res.Diagnostics {
		diagnostics[i] = d.Error()
	}
	return jsonResult(map[string]any{
		"frames":      frames,
		"inputs":      summarizeBindings(res.Inputs),
		"outputs":     summarizeBindings(res.Outputs),
		"libraries":   len(res.Libraries),
		"diagnostics": diagnostics,
	})
}
