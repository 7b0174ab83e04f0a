// Package materialize writes a finished run's output values back onto the
// canvas.
package materialize

import (
	"context"
	"errors"
	"fmt"

	"canvasflow/internal/canvas"
	"canvasflow/internal/domain"
	"canvasflow/internal/value"
)

// Canvas is the slice of the arena the materializer needs.
type Canvas interface {
	Block(id string) (*domain.Block, error)
	Node(id string) (canvas.Node, bool, error)
	IsAttached(e domain.Endpoint) bool
	Writable(kind domain.BlockType) bool
	Layout() canvas.Layout
	Frames(blockID string) ([]domain.Frame, error)
	ConnectionsAt(nodeID string) ([]domain.Connection, error)
	UpdateConnection(conn *domain.Connection) error
	CreateBlock(b *domain.Block) error
	UpdateBlock(b *domain.Block) error
	WriteValue(ctx context.Context, b *domain.Block, v any) error
}

const defaultTextWidth = 240

// Materialize delivers every output with ShouldReturn set. Each output
// goes out through every connector leaving its frame: attached
// value-bearing ends are overwritten, free ends get a new object, and
// any other end (another block's frame, an image) is left alone. One failed output does not
// stop the others; the failures are returned.
func Materialize(ctx context.Context, c Canvas, blockID string, outputs []domain.Binding) []error {
	block, err := c.Block(blockID)
	if err != nil {
		return []error{fmt.Errorf("materialize: %w", err)}
	}
	if block == nil {
		return []error{fmt.Errorf("materialize: block %s vanished", blockID)}
	}
	frames, err := c.Frames(blockID)
	if err != nil {
		return []error{fmt.Errorf("materialize: list frames: %w", err)}
	}
	byLine := make(map[int]domain.Frame, len(frames))
	for _, f := range frames {
		byLine[f.Line] = f
	}

	var errs []error
	for _, out := range outputs {
		if !out.ShouldReturn {
			continue
		}
		if err := deliver(ctx, c, block, byLine, out); err != nil {
			errs = append(errs, fmt.Errorf("materialize line %d: %w", out.SrcLine, err))
		}
	}
	return errs
}

func deliver(ctx context.Context, c Canvas, block *domain.Block, byLine map[int]domain.Frame, out domain.Binding) error {
	frame, ok := byLine[out.SrcLine]
	if !ok {
		return errors.New("frame not found")
	}
	if out.Value == nil {
		return errors.New("no value")
	}
	v, err := value.Parse(*out.Value)
	if err != nil {
		return err
	}
	conns, err := c.ConnectionsAt(frame.ID)
	if err != nil {
		return err
	}

	var errs []error
	for i := range conns {
		conn := &conns[i]
		if conn.Start.NodeID != frame.ID {
			continue
		}
		if c.IsAttached(conn.End) {
			errs = append(errs, writeTo(ctx, c, conn.End.NodeID, v))
			continue
		}
		errs = append(errs, createFor(ctx, c, block, frame, conn, v))
	}
	return errors.Join(errs...)
}

func writeTo(ctx context.Context, c Canvas, nodeID string, v any) error {
	n, ok, err := c.Node(nodeID)
	if err != nil {
		return err
	}
	if !ok || n.Block == nil || !c.Writable(n.Block.Type) {
		return nil
	}
	return c.WriteValue(ctx, n.Block, v)
}

// createFor makes a table or text object for v, places it where the
// connector's loose end was, and attaches the connector to it.
func createFor(ctx context.Context, c Canvas, block *domain.Block, frame domain.Frame, conn *domain.Connection, v any) error {
	layout := c.Layout()
	node := &domain.Block{
		PageID: block.PageID,
		Type:   domain.BlockTypeText,
		Width:  defaultTextWidth,
		Height: layout.TextHeight,
	}
	if canvas.FormatTable(v) != nil {
		node.Type = domain.BlockTypeTable
	}
	if err := c.CreateBlock(node); err != nil {
		return fmt.Errorf("create result object: %w", err)
	}
	if err := c.WriteValue(ctx, node, v); err != nil {
		return err
	}

	if conn.End.NodeID == "" {
		node.X = conn.End.X
		node.Y = conn.End.Y - node.Height/2
	} else {
		node.X = block.X + block.Width + layout.ResultSpacing
		node.Y = frame.Y
	}
	if err := c.UpdateBlock(node); err != nil {
		return fmt.Errorf("place result object: %w", err)
	}

	conn.End = domain.Endpoint{NodeID: node.ID, Magnet: domain.MagnetLeft}
	if err := c.UpdateConnection(conn); err != nil {
		return fmt.Errorf("attach connector: %w", err)
	}
	return nil
}
