package service

import (
	"context"
	"fmt"
	"sync"

	"canvasflow/internal/dbclient"
	"canvasflow/internal/domain"
	"canvasflow/internal/secret"
)

// ─────────────────────────────────────────────────────────────
// Database Service: external connections behind database blocks
// ─────────────────────────────────────────────────────────────

// CreateDBConnInput is the input for creating or updating a connection.
type CreateDBConnInput struct {
	Name     string `json:"name"`
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSLMode  string `json:"sslMode"`
}

// DatabaseService manages external database connections and runs the
// queries of database blocks. Live connectors are pooled per connection.
type DatabaseService struct {
	connStore domain.DatabaseConnectionStore
	secrets   secret.SecretStore
	open      func(*domain.DatabaseConnection, string) (dbclient.Connector, error)

	mu         sync.Mutex
	connectors map[string]dbclient.Connector
}

func NewDatabaseService(connStore domain.DatabaseConnectionStore, secrets secret.SecretStore) *DatabaseService {
	return &DatabaseService{
		connStore:  connStore,
		secrets:    secrets,
		open:       dbclient.NewConnector,
		connectors: make(map[string]dbclient.Connector),
	}
}

func secretKey(connID string) string { return "db:" + connID }

// ── Connection CRUD ────────────────────────────────────────

func (s *DatabaseService) ListConnections() ([]domain.DatabaseConnection, error) {
	return s.connStore.ListConnections()
}

func (s *DatabaseService) CreateConnection(input CreateDBConnInput) (*domain.DatabaseConnection, error) {
	switch domain.DatabaseDriver(input.Driver) {
	case domain.DatabaseDriverSQLite, domain.DatabaseDriverMySQL, domain.DatabaseDriverPostgres, domain.DatabaseDriverMongoDB:
	default:
		return nil, fmt.Errorf("unsupported driver: %s", input.Driver)
	}
	conn := &domain.DatabaseConnection{
		Name:     input.Name,
		Driver:   domain.DatabaseDriver(input.Driver),
		Host:     input.Host,
		Port:     input.Port,
		Database: input.Database,
		Username: input.Username,
		SSLMode:  input.SSLMode,
	}
	if err := s.connStore.CreateConnection(conn); err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	if input.Password != "" && s.secrets != nil {
		if err := s.secrets.Set(secretKey(conn.ID), []byte(input.Password)); err != nil {
			return nil, fmt.Errorf("store password: %w", err)
		}
	}
	return conn, nil
}

func (s *DatabaseService) UpdateConnection(id string, input CreateDBConnInput) error {
	conn, err := s.connStore.GetConnection(id)
	if err != nil {
		return err
	}
	conn.Name = input.Name
	conn.Driver = domain.DatabaseDriver(input.Driver)
	conn.Host = input.Host
	conn.Port = input.Port
	conn.Database = input.Database
	conn.Username = input.Username
	conn.SSLMode = input.SSLMode
	if err := s.connStore.UpdateConnection(conn); err != nil {
		return err
	}
	if input.Password != "" && s.secrets != nil {
		if err := s.secrets.Set(secretKey(id), []byte(input.Password)); err != nil {
			return fmt.Errorf("store password: %w", err)
		}
	}
	// The next query reconnects with the new settings.
	s.drop(id)
	return nil
}

// DeleteConnection removes a connection and its password. It refuses
// while database objects on the canvas still read from it.
func (s *DatabaseService) DeleteConnection(id string) error {
	users, err := s.connStore.ObjectsUsing(id)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return fmt.Errorf("connection %s is used by %d database object(s): %v", id, len(users), users)
	}
	s.drop(id)
	if s.secrets != nil {
		_ = s.secrets.Delete(secretKey(id))
	}
	return s.connStore.DeleteConnection(id)
}

// ── Queries ────────────────────────────────────────────────

// RunQuery runs a database block's stored query and returns its rows.
func (s *DatabaseService) RunQuery(ctx context.Context, q domain.DatabaseQuery) ([]map[string]any, error) {
	if q.ConnectionID == "" {
		return nil, fmt.Errorf("database query has no connection")
	}
	connector, err := s.connector(q.ConnectionID)
	if err != nil {
		return nil, err
	}
	rows, err := connector.Query(ctx, q.Query, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	return rows.Records, nil
}

func (s *DatabaseService) TestConnection(ctx context.Context, id string) error {
	connector, err := s.connector(id)
	if err != nil {
		return err
	}
	return connector.TestConnection(ctx)
}

func (s *DatabaseService) Introspect(ctx context.Context, id string) (*dbclient.SchemaInfo, error) {
	connector, err := s.connector(id)
	if err != nil {
		return nil, err
	}
	return connector.Introspect(ctx)
}

// ── Connector pool ─────────────────────────────────────────

func (s *DatabaseService) connector(id string) (dbclient.Connector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.connectors[id]; ok {
		return c, nil
	}

	conn, err := s.connStore.GetConnection(id)
	if err != nil {
		return nil, fmt.Errorf("get connection %s: %w", id, err)
	}
	var password string
	if s.secrets != nil {
		pw, err := s.secrets.Get(secretKey(id))
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		password = string(pw)
	}
	c, err := s.open(conn, password)
	if err != nil {
		return nil, fmt.Errorf("open db connection: %w", err)
	}
	s.connectors[id] = c
	return c, nil
}

func (s *DatabaseService) drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.connectors[id]; ok {
		_ = c.Close()
		delete(s.connectors, id)
	}
}

// Close tears down all pooled connectors.
func (s *DatabaseService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.connectors {
		_ = c.Close()
		delete(s.connectors, id)
	}
}
