package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"canvasflow/internal/domain"
)

const dbConnectionColumns = `id, name, driver, host, port, database_name, username, ssl_mode, extra_json, created_at, updated_at`

// DBConnectionStore keeps the external databases that database objects
// query. Passwords never land here; they live in the secret store.
type DBConnectionStore struct {
	db *DB
}

func NewDBConnectionStore(db *DB) *DBConnectionStore {
	return &DBConnectionStore{db: db}
}

func (s *DBConnectionStore) CreateConnection(c *domain.DatabaseConnection) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.ExtraJSON == "" {
		c.ExtraJSON = "{}"
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := s.db.conn.Exec(
		`INSERT INTO db_connections (`+dbConnectionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Driver, c.Host, c.Port, c.Database, c.Username, c.SSLMode, c.ExtraJSON, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create db connection %q: %w", c.Name, err)
	}
	return nil
}

func (s *DBConnectionStore) GetConnection(id string) (*domain.DatabaseConnection, error) {
	c, err := scanDBConnection(s.db.conn.QueryRow(`SELECT `+dbConnectionColumns+` FROM db_connections WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, fmt.Errorf("database connection %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get db connection: %w", err)
	}
	return c, nil
}

// ListConnections returns every connection, by name.
func (s *DBConnectionStore) ListConnections() ([]domain.DatabaseConnection, error) {
	rows, err := s.db.conn.Query(`SELECT ` + dbConnectionColumns + ` FROM db_connections ORDER BY name, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []domain.DatabaseConnection
	for rows.Next() {
		c, err := scanDBConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *c)
	}
	return conns, rows.Err()
}

func (s *DBConnectionStore) UpdateConnection(c *domain.DatabaseConnection) error {
	c.UpdatedAt = time.Now()
	res, err := s.db.conn.Exec(
		`UPDATE db_connections
		 SET name = ?, driver = ?, host = ?, port = ?, database_name = ?, username = ?, ssl_mode = ?, extra_json = ?, updated_at = ?
		 WHERE id = ?`,
		c.Name, c.Driver, c.Host, c.Port, c.Database, c.Username, c.SSLMode, c.ExtraJSON, c.UpdatedAt, c.ID,
	)
	return mustAffect(res, err, "database connection", c.ID)
}

func (s *DBConnectionStore) DeleteConnection(id string) error {
	res, err := s.db.conn.Exec(`DELETE FROM db_connections WHERE id = ?`, id)
	return mustAffect(res, err, "database connection", id)
}

// ObjectsUsing returns the ids of the database objects, on any page,
// whose stored query reads from the connection.
func (s *DBConnectionStore) ObjectsUsing(id string) ([]string, error) {
	rows, err := s.db.conn.Query(
		`SELECT id FROM blocks
		 WHERE type = ?
		   AND CASE WHEN json_valid(content) THEN json_extract(content, '$.connectionId') END = ?
		 ORDER BY created_at`,
		domain.BlockTypeDatabase, id,
	)
	if err != nil {
		return nil, fmt.Errorf("objects using %s: %w", id, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var blockID string
		if err := rows.Scan(&blockID); err != nil {
			return nil, err
		}
		ids = append(ids, blockID)
	}
	return ids, rows.Err()
}

func scanDBConnection(r rowScanner) (*domain.DatabaseConnection, error) {
	c := &domain.DatabaseConnection{}
	err := r.Scan(&c.ID, &c.Name, &c.Driver, &c.Host, &c.Port, &c.Database, &c.Username, &c.SSLMode, &c.ExtraJSON, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// mustAffect turns a write that touched no row into a not-found error.
func mustAffect(res sql.Result, err error, what, id string) error {
	if err != nil {
		return fmt.Errorf("write %s %s: %w", what, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s not found", what, id)
	}
	return nil
}
