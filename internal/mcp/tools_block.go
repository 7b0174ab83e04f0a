package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"canvasflow/internal/domain"
	"canvasflow/internal/service"
)

func (s *Server) registerBlockTools() {
	// ── create_block ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("create_block",
		mcp.WithDescription("Create a canvas object. Position is picked automatically if x or y is omitted."),
		mcp.WithString("type",
			mcp.Description("Object kind: code, text, sticky, shape_with_text, link, embed, table, database, image"),
			mcp.Required(),
		),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithNumber("x", mcp.Description("X position (optional)")),
		mcp.WithNumber("y", mcp.Description("Y position (optional)")),
		mcp.WithNumber("width", mcp.Description("Width (optional)")),
		mcp.WithNumber("height", mcp.Description("Height (optional)")),
		mcp.WithString("content", mcp.Description("Initial content: text, url, table JSON, or a database query JSON")),
		mcp.WithString("language", mcp.Description("Language of a code block (javascript, typescript, python)")),
	), s.handleCreateBlock)

	// ── update_block ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("update_block",
		mcp.WithDescription("Move, resize, or change the content of an object. Only the given fields change."),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithNumber("x", mcp.Description("New X position")),
		mcp.WithNumber("y", mcp.Description("New Y position")),
		mcp.WithNumber("width", mcp.Description("New width")),
		mcp.WithNumber("height", mcp.Description("New height")),
		mcp.WithString("content", mcp.Description("New content")),
	), s.handleUpdateBlock)

	// ── list_blocks ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_blocks",
		mcp.WithDescription("List all objects on a page, optionally filtered by kind"),
		mcp.WithString("pageId", mcp.Description("Page ID (optional, defaults to active page)")),
		mcp.WithString("type", mcp.Description("Filter by kind (optional)")),
	), s.handleListBlocks)

	// ── delete_block (destructive) ─────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_block",
		mcp.WithDescription("Delete an object and every connector touching it. Deleting a code block also drops its frames, results, and schedules."),
		mcp.WithString("blockId", mcp.Description("Block ID to delete"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteBlock)
}

// ── Handlers ───────────────────────────────────────────────

func (s *Server) handleCreateBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	blockType, _ := args["type"].(string)
	if blockType == "" {
		return nil, fmt.Errorf("type is required")
	}
	pageID, err := s.resolvePageID(args)
	if err != nil {
		return nil, err
	}

	in := service.CreateBlockInput{
		PageID:   pageID,
		Type:     domain.BlockType(blockType),
		Width:    getFloat(args, "width", 0),
		Height:   getFloat(args, "height", 0),
		Content:  req.GetString("content", ""),
		Language: req.GetString("language", ""),
	}
	x, hasX := args["x"].(float64)
	y, hasY := args["y"].(float64)
	if !hasX || !hasY {
		existing, _ := s.blocks.ListBlocks(pageID)
		x, y = s.layout.NextPosition(existing, sizeOr(in.Width, 240), sizeOr(in.Height, 120))
	}
	in.X, in.Y = x, y

	block, err := s.blocks.CreateBlock(ctx, in)
	if err != nil {
		return nil, err
	}
	s.emitBlocksChanged(ctx, pageID)
	return jsonResult(block)
}

func sizeOr(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}

func (s *Server) handleUpdateBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	block, err := s.getBlockForTool(args)
	if err != nil {
		return nil, err
	}
	updated, err := s.blocks.UpdateBlock(ctx, block.ID, service.UpdateBlockInput{
		X:       optFloat(args, "x"),
		Y:       optFloat(args, "y"),
		Width:   optFloat(args, "width"),
		Height:  optFloat(args, "height"),
		Content: optString(args, "content"),
	})
	if err != nil {
		return nil, err
	}
	s.emitBlocksChanged(ctx, block.PageID)
	return jsonResult(summarizeBlock(*updated))
}

func (s *Server) handleListBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	pageID, err := s.resolvePageID(args)
	if err != nil {
		return nil, err
	}
	blocks, err := s.blocks.ListBlocks(pageID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}

	filterType := req.GetString("type", "")
	summaries := []blockSummary{}
	for _, b := range blocks {
		if filterType != "" && string(b.Type) != filterType {
			continue
		}
		summaries = append(summaries, summarizeBlock(b))
	}
	return jsonResult(summaries)
}

func (s *Server) handleDeleteBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	block, err := s.getBlockForTool(args)
	if err != nil {
		return nil, err
	}
	if err := s.blocks.DeleteBlock(ctx, block.ID); err != nil {
		return nil, err
	}
	s.emitBlocksChanged(ctx, block.PageID)
	return textResult(fmt.Sprintf("Block %s deleted", block.ID)), nil
}

// ── Summaries ──────────────────────────────────────────────

type blockSummary struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Language string  `json:"language,omitempty"`
	Preview  string  `json:"preview"` // first 200 chars of content
}

func summarizeBlock(b domain.Block) blockSummary {
	preview := b.Content
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	return blockSummary{
		ID:       b.ID,
		Type:     string(b.Type),
		X:        b.X,
		Y:        b.Y,
		Width:    b.Width,
		Height:   b.Height,
		Language: b.Language,
		Preview:  preview,
	}
}
