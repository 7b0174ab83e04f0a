package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"canvasflow/internal/service"
)

func (s *Server) registerDatabaseTools() {
	s.mcp.AddTool(mcp.NewTool("list_db_connections",
		mcp.WithDescription("List all database connections database objects can read from"),
	), s.handleListDBConnections)

	s.mcp.AddTool(mcp.NewTool("create_db_connection",
		mcp.WithDescription("Register an external database. The password goes to the secret store, never the canvas database."),
		mcp.WithString("name", mcp.Description("Display name"), mcp.Required()),
		mcp.WithString("driver", mcp.Description("sqlite, mysql, postgres, or mongodb"), mcp.Required()),
		mcp.WithString("host", mcp.Description("Hostname, or the file path for sqlite"), mcp.Required()),
		mcp.WithNumber("port", mcp.Description("Port (optional)")),
		mcp.WithString("database", mcp.Description("Database name (optional)")),
		mcp.WithString("username", mcp.Description("User name (optional)")),
		mcp.WithString("password", mcp.Description("Password (optional)")),
		mcp.WithString("sslMode", mcp.Description("Postgres sslmode (optional)")),
		mcp.WithBoolean("test", mcp.Description("Ping the database after saving (default true)")),
	), s.handleCreateDBConnection)
}

func (s *Server) handleListDBConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conns, err := s.database.ListConnections()
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return jsonResult(conns)
}

func (s *Server) handleCreateDBConnection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	conn, err := s.database.CreateConnection(service.CreateDBConnInput{
		Name:     req.GetString("name", ""),
		Driver:   req.GetString("driver", ""),
		Host:     req.GetString("host", ""),
		Port:     int(getFloat(args, "port", 0)),
		Database: req.GetString("database", ""),
		Username: req.GetString("username", ""),
		Password: req.GetString("password", ""),
		SSLMode:  req.GetString("sslMode", ""),
	})
	if err != nil {
		return nil, err
	}
	if req.GetBool("test", true) {
		if err := s.database.TestConnection(ctx, conn.ID); err != nil {
			return jsonResult(map[string]any{"connection": conn, "testError": err.Error()})
		}
	}
	return jsonResult(conn)
}

func (s *Server) handleDeleteDBConnection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("connectionId", "")
	if id == "" {
		return nil, fmt.Errorf("connectionId is required")
	}
	if err := s.database.DeleteConnection(id); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Database connection %s deleted", id)), nil
}
