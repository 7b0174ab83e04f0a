package storage

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"canvasflow/internal/domain"
)

// GroupStore persists the grouping of a code block with its frames.
type GroupStore struct {
	db *DB
}

func NewGroupStore(db *DB) *GroupStore {
	return &GroupStore{db: db}
}

func (s *GroupStore) CreateGroup(g *domain.Group) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	_, err := s.db.conn.Exec(
		`INSERT INTO block_groups (id, page_id, block_id) VALUES (?, ?, ?)`,
		g.ID, g.PageID, g.BlockID,
	)
	return err
}

func (s *GroupStore) GetGroup(id string) (*domain.Group, error) {
	g := &domain.Group{}
	err := s.db.conn.QueryRow(`SELECT id, page_id, block_id FROM block_groups WHERE id = ?`, id).
		Scan(&g.ID, &g.PageID, &g.BlockID)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

// FindGroup is GetGroup returning (nil, nil) when the group does not exist.
func (s *GroupStore) FindGroup(id string) (*domain.Group, error) {
	g, err := s.GetGroup(id)
	if isNoRows(err) {
		return nil, nil
	}
	return g, err
}

// GetGroupByBlock returns the block's group, or (nil, nil) if it has none.
func (s *GroupStore) GetGroupByBlock(blockID string) (*domain.Group, error) {
	g := &domain.Group{}
	err := s.db.conn.QueryRow(`SELECT id, page_id, block_id FROM block_groups WHERE block_id = ?`, blockID).
		Scan(&g.ID, &g.PageID, &g.BlockID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group by block: %w", err)
	}
	return g, nil
}

func (s *GroupStore) DeleteGroup(id string) error {
	_, err := s.db.conn.Exec(`DELETE FROM block_groups WHERE id = ?`, id)
	return err
}
