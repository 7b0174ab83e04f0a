// Package dbclient reads from external databases on behalf of database
// canvas objects. Every connector is read-only.
package dbclient

import (
	"context"
	"fmt"

	"canvasflow/internal/domain"
)

// DefaultLimit caps the rows a query returns when the caller sets none.
const DefaultLimit = 1000

// Rows is a query result. Records hold one object per row keyed by
// column name; Columns keeps the column order.
type Rows struct {
	Columns []string         `json:"columns"`
	Records []map[string]any `json:"records"`
}

// SchemaInfo describes the tables (or collections) of a database.
type SchemaInfo struct {
	Tables []TableInfo `json:"tables"`
}

type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Connector abstracts read access to an external database.
type Connector interface {
	TestConnection(ctx context.Context) error

	// Query runs a read query and returns at most limit rows.
	Query(ctx context.Context, query string, limit int) (*Rows, error)

	Introspect(ctx context.Context) (*SchemaInfo, error)

	Close() error
}

// NewConnector creates a Connector for the given database connection.
// The password comes from the secret store, never from the record.
func NewConnector(conn *domain.DatabaseConnection, password string) (Connector, error) {
	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		return newSQLConnector("sqlite", sqliteDSN(conn))
	case domain.DatabaseDriverMySQL:
		return newSQLConnector("mysql", mysqlDSN(conn, password))
	case domain.DatabaseDriverPostgres:
		return newSQLConnector("postgres", postgresDSN(conn, password))
	case domain.DatabaseDriverMongoDB:
		return newMongoConnector(conn, password)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}
