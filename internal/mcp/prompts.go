package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("wire_dataflow",
		mcp.WithPromptDescription("Build a small dataflow on the active page: a literal input, a script that transforms it, and an object that shows the result"),
		mcp.WithArgument("goal",
			mcp.ArgumentDescription("What the dataflow should compute"),
			mcp.RequiredArgument(),
		),
	), s.handleWireDataflowPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("query_to_canvas",
		mcp.WithPromptDescription("Pull rows from an external database into a script and lay the results out on the canvas"),
		mcp.WithArgument("connectionId",
			mcp.ArgumentDescription("Database connection to read from"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("query",
			mcp.ArgumentDescription("SQL (or a Mongo filter document) to run"),
			mcp.RequiredArgument(),
		),
	), s.handleQueryToCanvasPrompt)
}

func (s *Server) handleWireDataflowPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	goal := req.Params.Arguments["goal"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Wire a dataflow that computes: %s", goal),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Build a canvas dataflow that computes "%s" on the active page:

1. Create a text block (create_block) holding the input value.
2. Create a code block (write_code). Put a placeholder assignment such as "let input = 0;" on the line that should receive the input, and assign the result on a later line, e.g. "const output = ...;".
3. Call list_frames on the code block to get the frame ids of those two lines.
4. connect the text block to the input line's frame, then connect the output line's frame to a free end (give toX/toY) to the right of the code block.
5. run_block and report the value from get_result. The free end becomes a text object showing the output.`, goal),
				},
			},
		},
	}, nil
}

func (s *Server) handleQueryToCanvasPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	connID := req.Params.Arguments["connectionId"]
	query := req.Params.Arguments["query"]
	return &mcp.GetPromptResult{
		Description: "Bring database rows onto the canvas",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Read data from connection %s and show it on the active page:

1. Create a database block (create_block with type "database") whose content is {"connectionId": "%s", "query": %q}.
2. Write a code block with "let rows = [];" as its first statement and a line that reduces rows to the value you want.
3. connect the database block to the "rows" line, and the result line to a table block or a free end.
4. run_block. Arrays of rows land in table objects; other values are written as text.`, connID, connID, query),
				},
			},
		},
	}, nil
}
