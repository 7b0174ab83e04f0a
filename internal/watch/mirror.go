// Package watch mirrors code blocks to source files on disk and feeds
// edits made to those files back into the canvas.
package watch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"canvasflow/internal/domain"
)

// Mirror lays code blocks out as <dataDir>/<pageId>/<blockId>.<ext>.
type Mirror struct {
	dataDir string
}

func NewMirror(dataDir string) *Mirror {
	return &Mirror{dataDir: dataDir}
}

// Ext is the file extension used for a language.
func Ext(lang string) string {
	switch lang {
	case "javascript":
		return ".js"
	case "typescript":
		return ".ts"
	case "python":
		return ".py"
	default:
		return ".txt"
	}
}

func (m *Mirror) Path(b *domain.Block) string {
	return filepath.Join(m.dataDir, b.PageID, b.ID+Ext(b.Language))
}

// Write stores the block's source at its mirror path and returns the
// path. An unchanged file is left alone so watchers see no event. A file
// left behind by a language change is removed.
func (m *Mirror) Write(b *domain.Block) (string, error) {
	path := m.Path(b)
	if b.FilePath != "" && b.FilePath != path {
		_ = os.Remove(b.FilePath)
	}
	if current, err := os.ReadFile(path); err == nil && bytes.Equal(current, []byte(b.Content)) {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("mirror dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.Content), 0644); err != nil {
		return "", fmt.Errorf("mirror write: %w", err)
	}
	return path, nil
}

// Remove deletes the block's mirror file, if any.
func (m *Mirror) Remove(b *domain.Block) error {
	path := b.FilePath
	if path == "" {
		path = m.Path(b)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("mirror remove: %w", err)
	}
	return nil
}
