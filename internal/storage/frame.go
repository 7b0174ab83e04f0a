package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"canvasflow/internal/domain"
)

// FrameStore persists line anchors.
type FrameStore struct {
	db *DB
}

func NewFrameStore(db *DB) *FrameStore {
	return &FrameStore{db: db}
}

func (s *FrameStore) CreateFrame(f *domain.Frame) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	_, err := s.db.conn.Exec(
		`INSERT INTO frames (id, block_id, group_id, line, x, y, width, height) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.BlockID, f.GroupID, f.Line, f.X, f.Y, f.Width, f.Height,
	)
	if err != nil {
		return fmt.Errorf("create frame: %w", err)
	}
	return nil
}

func (s *FrameStore) GetFrame(id string) (*domain.Frame, error) {
	f := &domain.Frame{}
	err := s.db.conn.QueryRow(
		`SELECT id, block_id, group_id, line, x, y, width, height FROM frames WHERE id = ?`, id,
	).Scan(&f.ID, &f.BlockID, &f.GroupID, &f.Line, &f.X, &f.Y, &f.Width, &f.Height)
	if err != nil {
		return nil, fmt.Errorf("get frame: %w", err)
	}
	return f, nil
}

// FindFrame is GetFrame that reports a missing frame as (nil, nil).
func (s *FrameStore) FindFrame(id string) (*domain.Frame, error) {
	f, err := s.GetFrame(id)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}

// ListFrames returns a block's frames in ascending line order.
func (s *FrameStore) ListFrames(blockID string) ([]domain.Frame, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, block_id, group_id, line, x, y, width, height FROM frames WHERE block_id = ? ORDER BY line ASC`,
		blockID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []domain.Frame
	for rows.Next() {
		var f domain.Frame
		if err := rows.Scan(&f.ID, &f.BlockID, &f.GroupID, &f.Line, &f.X, &f.Y, &f.Width, &f.Height); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

func (s *FrameStore) UpdateFrame(f *domain.Frame) error {
	_, err := s.db.conn.Exec(
		`UPDATE frames SET group_id = ?, line = ?, x = ?, y = ?, width = ?, height = ? WHERE id = ?`,
		f.GroupID, f.Line, f.X, f.Y, f.Width, f.Height, f.ID,
	)
	return err
}

func (s *FrameStore) DeleteFrame(id string) error {
	_, err := s.db.conn.Exec(`DELETE FROM frames WHERE id = ?`, id)
	return err
}

func (s *FrameStore) DeleteFramesByBlock(blockID string) error {
	_, err := s.db.conn.Exec(`DELETE FROM frames WHERE block_id = ?`, blockID)
	return err
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
