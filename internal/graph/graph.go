// Package graph keeps a code block's line anchors in sync with its source
// text and resolves the connectors on those anchors into bindings.
package graph

import (
	"context"

	"canvasflow/internal/canvas"
	"canvasflow/internal/domain"
)

// Canvas is the slice of the arena the graph needs.
type Canvas interface {
	Block(id string) (*domain.Block, error)
	Node(id string) (canvas.Node, bool, error)
	IsAttached(e domain.Endpoint) bool
	Layout() canvas.Layout

	Frames(blockID string) ([]domain.Frame, error)
	CreateFrame(f *domain.Frame) error
	UpdateFrame(f *domain.Frame) error
	DeleteFrame(id string) error
	EnsureGroup(b *domain.Block) (*domain.Group, error)

	ConnectionsAt(nodeID string) ([]domain.Connection, error)
	Writable(kind domain.BlockType) bool
	ReadValue(ctx context.Context, b *domain.Block) (any, error)
}
