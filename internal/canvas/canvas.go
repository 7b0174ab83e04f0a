// Package canvas is the arena every other component works against: blocks,
// frames, groups, and connector records, all looked up by id.
package canvas

import (
	"context"
	"encoding/json"
	"fmt"

	"canvasflow/internal/domain"
	"canvasflow/internal/storage"
)

// Layout holds the geometry constants of frames and result placement.
type Layout struct {
	TextHeight    float64
	TextOffset    float64
	ResultSpacing float64
}

// DefaultLayout matches the code block's monospace line metrics.
func DefaultLayout() Layout {
	return Layout{TextHeight: 23, TextOffset: 1, ResultSpacing: 64}
}

// FrameRect returns where the frame for line sits on block b.
func (l Layout) FrameRect(b *domain.Block, line int) (x, y, w, h float64) {
	return b.X + l.TextOffset, b.Y + float64(line)*l.TextHeight, b.Width - 2*l.TextOffset, l.TextHeight
}

// Node is whatever an endpoint id resolves to: a block, a frame, or the
// group wrapping a code block and its frames.
type Node struct {
	Block *domain.Block
	Frame *domain.Frame
	Group *domain.Group
}

// Canvas is the SQLite-backed arena.
type Canvas struct {
	blocks   *storage.BlockStore
	frames   *storage.FrameStore
	groups   *storage.GroupStore
	conns    *storage.ConnectionStore
	variants *Registry
	layout   Layout
}

// New creates a Canvas over db with the built-in value-bearing variants.
func New(db *storage.DB, layout Layout) *Canvas {
	return &Canvas{
		blocks:   storage.NewBlockStore(db),
		frames:   storage.NewFrameStore(db),
		groups:   storage.NewGroupStore(db),
		conns:    storage.NewConnectionStore(db),
		variants: NewRegistry(),
		layout:   layout,
	}
}

func (c *Canvas) Layout() Layout      { return c.layout }
func (c *Canvas) Variants() *Registry { return c.variants }
func (c *Canvas) Blocks() *storage.BlockStore {
	return c.blocks
}
func (c *Canvas) Connections() *storage.ConnectionStore {
	return c.conns
}

// Block returns the block with id, or nil if it does not exist.
func (c *Canvas) Block(id string) (*domain.Block, error) {
	return c.blocks.FindBlock(id)
}

func (c *Canvas) CreateBlock(b *domain.Block) error { return c.blocks.CreateBlock(b) }
func (c *Canvas) UpdateBlock(b *domain.Block) error { return c.blocks.UpdateBlock(b) }

// Node resolves id to a block or a frame. ok is false if neither exists.
func (c *Canvas) Node(id string) (Node, bool, error) {
	if id == "" {
		return Node{}, false, nil
	}
	f, err := c.frames.FindFrame(id)
	if err != nil {
		return Node{}, false, err
	}
	if f != nil {
		return Node{Frame: f}, true, nil
	}
	b, err := c.blocks.FindBlock(id)
	if err != nil {
		return Node{}, false, err
	}
	if b != nil {
		return Node{Block: b}, true, nil
	}
	g, err := c.groups.FindGroup(id)
	if err != nil {
		return Node{}, false, err
	}
	if g != nil {
		return Node{Group: g}, true, nil
	}
	return Node{}, false, nil
}

// IsAttached reports whether e names a node that still exists.
func (c *Canvas) IsAttached(e domain.Endpoint) bool {
	if !e.References() {
		return false
	}
	_, ok, err := c.Node(e.NodeID)
	return err == nil && ok
}

// ── Frames and groups ─────────────────────────────────────

func (c *Canvas) Frames(blockID string) ([]domain.Frame, error) {
	return c.frames.ListFrames(blockID)
}

func (c *Canvas) CreateFrame(f *domain.Frame) error { return c.frames.CreateFrame(f) }
func (c *Canvas) UpdateFrame(f *domain.Frame) error { return c.frames.UpdateFrame(f) }
func (c *Canvas) DeleteFrame(id string) error       { return c.frames.DeleteFrame(id) }

// EnsureGroup returns the block's group, creating it and assigning the
// block to it if needed.
func (c *Canvas) EnsureGroup(b *domain.Block) (*domain.Group, error) {
	g, err := c.groups.GetGroupByBlock(b.ID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		g = &domain.Group{PageID: b.PageID, BlockID: b.ID}
		if err := c.groups.CreateGroup(g); err != nil {
			return nil, fmt.Errorf("create group: %w", err)
		}
	}
	if b.GroupID != g.ID {
		b.GroupID = g.ID
		if err := c.blocks.UpdateBlock(b); err != nil {
			return nil, fmt.Errorf("assign group: %w", err)
		}
	}
	return g, nil
}

// Group returns a group by id, or the group owned by a block id.
func (c *Canvas) Group(id string) (*domain.Group, error) {
	if g, err := c.groups.GetGroupByBlock(id); err != nil || g != nil {
		return g, err
	}
	return c.groups.FindGroup(id)
}

// RemoveBlockGraph deletes a code block's frames, group, and every
// connector touching the block or its frames.
func (c *Canvas) RemoveBlockGraph(blockID string) error {
	frames, err := c.frames.ListFrames(blockID)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := c.conns.DeleteConnectionsByNode(f.ID); err != nil {
			return err
		}
	}
	if err := c.frames.DeleteFramesByBlock(blockID); err != nil {
		return err
	}
	if err := c.conns.DeleteConnectionsByNode(blockID); err != nil {
		return err
	}
	g, err := c.groups.GetGroupByBlock(blockID)
	if err != nil {
		return err
	}
	if g == nil {
		return nil
	}
	if err := c.conns.DeleteConnectionsByNode(g.ID); err != nil {
		return err
	}
	return c.groups.DeleteGroup(g.ID)
}

// ── Connectors ────────────────────────────────────────────

// ConnectionsAt returns every connector with either end on nodeID.
func (c *Canvas) ConnectionsAt(nodeID string) ([]domain.Connection, error) {
	return c.conns.ListConnectionsByNode(nodeID)
}

func (c *Canvas) UpdateConnection(conn *domain.Connection) error {
	return c.conns.UpdateConnection(conn)
}

// ── Values ────────────────────────────────────────────────

// Writable reports whether a block of kind can receive an output value.
func (c *Canvas) Writable(kind domain.BlockType) bool {
	v, ok := c.variants.Lookup(kind)
	return ok && v.Writable()
}

// ReadValue returns the value of a value-bearing block, or its exported
// record for any other kind.
func (c *Canvas) ReadValue(ctx context.Context, b *domain.Block) (any, error) {
	if v, ok := c.variants.Lookup(b.Type); ok {
		return v.ReadValue(ctx, b)
	}
	return Export(b)
}

// WriteValue applies val to b through its variant and persists b.
func (c *Canvas) WriteValue(ctx context.Context, b *domain.Block, val any) error {
	v, ok := c.variants.Lookup(b.Type)
	if !ok || !v.Writable() {
		return fmt.Errorf("block %s of type %s does not accept values", b.ID, b.Type)
	}
	if err := v.WriteValue(ctx, b, val); err != nil {
		return err
	}
	v.Resize(b, c.layout)
	return c.blocks.UpdateBlock(b)
}

// Export serializes any block as a plain record.
func Export(b *domain.Block) (map[string]any, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("export block: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("export block: %w", err)
	}
	return out, nil
}
