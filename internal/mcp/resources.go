package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	notebooksURI    = "canvasflow://notebooks"
	pageBlocksURI   = "canvasflow://page/{pageId}/blocks"
	pageURIPrefix   = "canvasflow://page/"
	pageBlocksSufix = "/blocks"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(
		notebooksURI,
		"All Notebooks",
		mcp.WithMIMEType("application/json"),
	), s.handleNotebooksResource)

	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			pageBlocksURI,
			"Objects, frames, and connectors on a page",
		),
		s.handlePageBlocksResource,
	)
}

func (s *Server) handleNotebooksResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	notebooks, err := s.notebooks.ListNotebooks()
	if err != nil {
		return nil, err
	}

	type notebookSummary struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	summaries := make([]notebookSummary, len(notebooks))
	for i, n := range notebooks {
		summaries[i] = notebookSummary{ID: n.ID, Name: n.Name}
	}

	data, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      notebooksURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handlePageBlocksResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	pageID := pageIDFromURI(uri)
	if pageID == "" {
		return nil, fmt.Errorf("could not extract pageId from URI: %s", uri)
	}

	state, err := s.notebooks.GetPageState(pageID)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// pageIDFromURI extracts the page id from "canvasflow://page/{id}/blocks".
func pageIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, pageURIPrefix)
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, pageBlocksSufix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
