package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"canvasflow/internal/domain"
)

const blockColumns = `id, page_id, type, x, y, width, height, content, language, group_id, file_path, style_json, created_at, updated_at`

// BlockStore implements domain.BlockStore using SQLite.
type BlockStore struct {
	db *DB
}

func NewBlockStore(db *DB) *BlockStore {
	return &BlockStore{db: db}
}

func (s *BlockStore) CreateBlock(b *domain.Block) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.StyleJSON == "" {
		b.StyleJSON = "{}"
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	_, err := s.db.Conn().Exec(
		`INSERT INTO blocks (`+blockColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.PageID, b.Type, b.X, b.Y, b.Width, b.Height, b.Content, b.Language, b.GroupID, b.FilePath, b.StyleJSON, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (s *BlockStore) GetBlock(id string) (*domain.Block, error) {
	b, err := scanBlock(s.db.Conn().QueryRow(`SELECT `+blockColumns+` FROM blocks WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("get block: %w", err)
	}
	return b, nil
}

// FindBlock is GetBlock that reports a missing block as (nil, nil).
func (s *BlockStore) FindBlock(id string) (*domain.Block, error) {
	b, err := scanBlock(s.db.Conn().QueryRow(`SELECT `+blockColumns+` FROM blocks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find block: %w", err)
	}
	return b, nil
}

func (s *BlockStore) ListBlocks(pageID string) ([]domain.Block, error) {
	return s.list(`SELECT `+blockColumns+` FROM blocks WHERE page_id = ? ORDER BY created_at ASC`, pageID)
}

// ListBlocksByGroup returns the blocks that share a group.
func (s *BlockStore) ListBlocksByGroup(groupID string) ([]domain.Block, error) {
	return s.list(`SELECT `+blockColumns+` FROM blocks WHERE group_id = ? ORDER BY created_at ASC`, groupID)
}

// ListBlocksByType returns every block of one kind across all pages.
func (s *BlockStore) ListBlocksByType(t domain.BlockType) ([]domain.Block, error) {
	return s.list(`SELECT `+blockColumns+` FROM blocks WHERE type = ? ORDER BY created_at ASC`, t)
}

func (s *BlockStore) list(query string, arg any) ([]domain.Block, error) {
	rows, err := s.db.Conn().Query(query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []domain.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, *b)
	}
	return blocks, rows.Err()
}

func (s *BlockStore) UpdateBlock(b *domain.Block) error {
	b.UpdatedAt = time.Now()
	_, err := s.db.Conn().Exec(
		`UPDATE blocks SET type = ?, x = ?, y = ?, width = ?, height = ?, content = ?, language = ?, group_id = ?, file_path = ?, style_json = ?, updated_at = ? WHERE id = ?`,
		b.Type, b.X, b.Y, b.Width, b.Height, b.Content, b.Language, b.GroupID, b.FilePath, b.StyleJSON, b.UpdatedAt, b.ID,
	)
	return err
}

func (s *BlockStore) DeleteBlock(id string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM blocks WHERE id = ?`, id)
	return err
}

func (s *BlockStore) DeleteBlocksByPage(pageID string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM blocks WHERE page_id = ?`, pageID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(r rowScanner) (*domain.Block, error) {
	b := &domain.Block{}
	err := r.Scan(&b.ID, &b.PageID, &b.Type, &b.X, &b.Y, &b.Width, &b.Height, &b.Content, &b.Language, &b.GroupID, &b.FilePath, &b.StyleJSON, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return b, nil
}
