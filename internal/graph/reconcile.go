package graph

import (
	"fmt"

	"canvasflow/internal/domain"
	"canvasflow/internal/locator"
)

// Reconcile brings blockID's frames in line with its code: one frame per
// declaring line, each placed over its line and grouped with the block.
// It is idempotent. Connectors on deleted frames are left in place.
func Reconcile(c Canvas, blockID string) ([]domain.Frame, error) {
	b, err := c.Block(blockID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	if b == nil || b.Type != domain.BlockTypeCode {
		return nil, fmt.Errorf("reconcile: %s is not a code block", blockID)
	}

	target := make(map[int]bool)
	for _, line := range locator.DeclaringLines(b.Content, b.Language) {
		target[line] = true
	}

	g, err := c.EnsureGroup(b)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	existing, err := c.Frames(b.ID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list frames: %w", err)
	}

	layout := c.Layout()
	kept := make(map[int]bool, len(existing))
	for i := range existing {
		f := &existing[i]
		if !target[f.Line] {
			if err := c.DeleteFrame(f.ID); err != nil {
				return nil, fmt.Errorf("reconcile: delete frame %d: %w", f.Line, err)
			}
			continue
		}
		kept[f.Line] = true
		x, y, w, h := layout.FrameRect(b, f.Line)
		if f.X == x && f.Y == y && f.Width == w && f.Height == h && f.GroupID == g.ID {
			continue
		}
		f.X, f.Y, f.Width, f.Height, f.GroupID = x, y, w, h, g.ID
		if err := c.UpdateFrame(f); err != nil {
			return nil, fmt.Errorf("reconcile: move frame %d: %w", f.Line, err)
		}
	}

	for line := range target {
		if kept[line] {
			continue
		}
		x, y, w, h := layout.FrameRect(b, line)
		f := &domain.Frame{BlockID: b.ID, GroupID: g.ID, Line: line, X: x, Y: y, Width: w, Height: h}
		if err := c.CreateFrame(f); err != nil {
			return nil, fmt.Errorf("reconcile: create frame %d: %w", line, err)
		}
	}

	return c.Frames(b.ID)
}
