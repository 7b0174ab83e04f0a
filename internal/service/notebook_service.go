package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"canvasflow/internal/canvas"
	"canvasflow/internal/domain"
	"canvasflow/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Notebook Service: notebooks, pages, and whole-page state
// ─────────────────────────────────────────────────────────────

// NotebookService manages notebooks and the pages inside them.
type NotebookService struct {
	store   *storage.NotebookStore
	blocks  *BlockService
	canvas  *canvas.Canvas
	dataDir string
	emitter EventEmitter
}

func NewNotebookService(
	store *storage.NotebookStore,
	blocks *BlockService,
	c *canvas.Canvas,
	dataDir string,
	emitter EventEmitter,
) *NotebookService {
	return &NotebookService{
		store:   store,
		blocks:  blocks,
		canvas:  c,
		dataDir: dataDir,
		emitter: emitter,
	}
}

// ── Notebooks ──────────────────────────────────────────────

func (s *NotebookService) ListNotebooks() ([]domain.Notebook, error) {
	return s.store.ListNotebooks()
}

func (s *NotebookService) CreateNotebook(name string) (*domain.Notebook, error) {
	if name == "" {
		name = "Untitled"
	}
	nb := &domain.Notebook{Name: name, Icon: "📓"}
	if err := s.store.CreateNotebook(nb); err != nil {
		return nil, fmt.Errorf("create notebook: %w", err)
	}
	return nb, nil
}

func (s *NotebookService) RenameNotebook(id, name string) error {
	nb, err := s.store.GetNotebook(id)
	if err != nil {
		return err
	}
	nb.Name = name
	return s.store.UpdateNotebook(nb)
}

// DeleteNotebook removes a notebook with all of its pages.
func (s *NotebookService) DeleteNotebook(ctx context.Context, id string) error {
	pages, err := s.store.ListPages(id)
	if err != nil {
		return err
	}
	for _, p := range pages {
		if err := s.DeletePage(ctx, p.ID); err != nil {
			return err
		}
	}
	return s.store.DeleteNotebook(id)
}

// ── Pages ──────────────────────────────────────────────────

func (s *NotebookService) ListPages(notebookID string) ([]domain.Page, error) {
	return s.store.ListPages(notebookID)
}

func (s *NotebookService) CreatePage(notebookID, name string) (*domain.Page, error) {
	if _, err := s.store.GetNotebook(notebookID); err != nil {
		return nil, fmt.Errorf("create page: notebook %s: %w", notebookID, err)
	}
	pages, err := s.store.ListPages(notebookID)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = fmt.Sprintf("Page %d", len(pages)+1)
	}
	p := &domain.Page{NotebookID: notebookID, Name: name, Order: len(pages)}
	if err := s.store.CreatePage(p); err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return p, nil
}

// GetPageState returns everything drawn on a page, frames included.
func (s *NotebookService) GetPageState(pageID string) (*domain.PageState, error) {
	page, err := s.store.GetPage(pageID)
	if err != nil {
		return nil, err
	}
	blocks, err := s.blocks.ListBlocks(pageID)
	if err != nil {
		return nil, err
	}
	connections, err := s.blocks.ListConnections(pageID)
	if err != nil {
		return nil, err
	}
	state := &domain.PageState{
		Page:        *page,
		Blocks:      []domain.Block{},
		Frames:      []domain.Frame{},
		Connections: []domain.Connection{},
	}
	state.Blocks = append(state.Blocks, blocks...)
	state.Connections = append(state.Connections, connections...)
	for _, b := range blocks {
		if b.Type != domain.BlockTypeCode {
			continue
		}
		frames, err := s.canvas.Frames(b.ID)
		if err != nil {
			return nil, err
		}
		state.Frames = append(state.Frames, frames...)
	}
	return state, nil
}

func (s *NotebookService) RenamePage(id, name string) error {
	p, err := s.store.GetPage(id)
	if err != nil {
		return err
	}
	p.Name = name
	return s.store.UpdatePage(p)
}

// DeletePage removes a page, its blocks and connectors, and the directory
// holding its mirrored source files.
func (s *NotebookService) DeletePage(ctx context.Context, id string) error {
	if err := s.blocks.DeleteBlocksByPage(ctx, id); err != nil {
		return err
	}
	if err := s.canvas.Connections().DeleteConnectionsByPage(id); err != nil {
		return err
	}
	if s.dataDir != "" {
		_ = os.RemoveAll(filepath.Join(s.dataDir, id))
	}
	if err := s.store.DeletePage(id); err != nil {
		return err
	}
	s.emitter.Emit(ctx, "page:deleted", map[string]string{"pageId": id})
	return nil
}
