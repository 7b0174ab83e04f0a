package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"canvasflow/internal/domain"
)

const connectionColumns = `id, page_id, start_node_id, start_magnet, start_x, start_y, end_node_id, end_magnet, end_x, end_y, label, color, style, created_at, updated_at`

// ConnectionStore implements domain.ConnectionStore using SQLite.
type ConnectionStore struct {
	db *DB
}

func NewConnectionStore(db *DB) *ConnectionStore {
	return &ConnectionStore{db: db}
}

func (s *ConnectionStore) CreateConnection(c *domain.Connection) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	normalizeEndpoint(&c.Start)
	normalizeEndpoint(&c.End)
	if c.Style == "" {
		c.Style = domain.ConnectionStyleSolid
	}
	if c.Color == "" {
		c.Color = "#666666"
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := s.db.conn.Exec(
		`INSERT INTO connections (`+connectionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PageID,
		c.Start.NodeID, c.Start.Magnet, c.Start.X, c.Start.Y,
		c.End.NodeID, c.End.Magnet, c.End.X, c.End.Y,
		c.Label, c.Color, c.Style, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *ConnectionStore) GetConnection(id string) (*domain.Connection, error) {
	c, err := scanConnection(s.db.conn.QueryRow(`SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return c, nil
}

func (s *ConnectionStore) ListConnections(pageID string) ([]domain.Connection, error) {
	return s.list(`SELECT `+connectionColumns+` FROM connections WHERE page_id = ? ORDER BY created_at ASC, rowid ASC`, pageID)
}

// ListConnectionsByNode returns every connector with either end on nodeID.
func (s *ConnectionStore) ListConnectionsByNode(nodeID string) ([]domain.Connection, error) {
	return s.list(`SELECT `+connectionColumns+` FROM connections WHERE start_node_id = ? OR end_node_id = ? ORDER BY created_at ASC, rowid ASC`, nodeID, nodeID)
}

func (s *ConnectionStore) list(query string, args ...any) ([]domain.Connection, error) {
	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []domain.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *c)
	}
	return conns, rows.Err()
}

func (s *ConnectionStore) UpdateConnection(c *domain.Connection) error {
	normalizeEndpoint(&c.Start)
	normalizeEndpoint(&c.End)
	c.UpdatedAt = time.Now()
	_, err := s.db.conn.Exec(
		`UPDATE connections SET start_node_id = ?, start_magnet = ?, start_x = ?, start_y = ?, end_node_id = ?, end_magnet = ?, end_x = ?, end_y = ?, label = ?, color = ?, style = ?, updated_at = ? WHERE id = ?`,
		c.Start.NodeID, c.Start.Magnet, c.Start.X, c.Start.Y,
		c.End.NodeID, c.End.Magnet, c.End.X, c.End.Y,
		c.Label, c.Color, c.Style, c.UpdatedAt, c.ID,
	)
	return err
}

func (s *ConnectionStore) DeleteConnection(id string) error {
	_, err := s.db.conn.Exec(`DELETE FROM connections WHERE id = ?`, id)
	return err
}

func (s *ConnectionStore) DeleteConnectionsByPage(pageID string) error {
	_, err := s.db.conn.Exec(`DELETE FROM connections WHERE page_id = ?`, pageID)
	return err
}

func (s *ConnectionStore) DeleteConnectionsByNode(nodeID string) error {
	_, err := s.db.conn.Exec(
		`DELETE FROM connections WHERE start_node_id = ? OR end_node_id = ?`,
		nodeID, nodeID,
	)
	return err
}

// normalizeEndpoint makes a node-less endpoint explicitly free.
func normalizeEndpoint(e *domain.Endpoint) {
	if e.NodeID == "" {
		e.Magnet = domain.MagnetNone
	} else if e.Magnet == "" {
		e.Magnet = domain.MagnetAuto
	}
}

func scanConnection(r rowScanner) (*domain.Connection, error) {
	c := &domain.Connection{}
	err := r.Scan(&c.ID, &c.PageID,
		&c.Start.NodeID, &c.Start.Magnet, &c.Start.X, &c.Start.Y,
		&c.End.NodeID, &c.End.Magnet, &c.End.X, &c.End.Y,
		&c.Label, &c.Color, &c.Style, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}
