package graph

import (
	"context"
	"fmt"

	"canvasflow/internal/domain"
	"canvasflow/internal/value"
)

// Resolution is the dataflow of one code block. Diagnostics lists the
// connectors that were dropped along the way.
type Resolution struct {
	Inputs      []domain.Binding
	Outputs     []domain.Binding
	Libraries   []domain.Code
	Diagnostics []error
}

// Resolve walks the connectors on blockID's frames, in line order, and
// turns them into bindings. Call Reconcile first.
//
// A chained input names the block whose frame the connector starts at,
// never any block further upstream.
func Resolve(ctx context.Context, c Canvas, blockID string) (*Resolution, error) {
	b, err := c.Block(blockID)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("resolve: block %s not found", blockID)
	}
	frames, err := c.Frames(b.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve: list frames: %w", err)
	}

	res := &Resolution{}
	for _, f := range frames {
		conns, err := c.ConnectionsAt(f.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve: connectors of line %d: %w", f.Line, err)
		}
		var out *domain.Binding
		var in *domain.Binding
		for _, conn := range conns {
			switch {
			case conn.Start.NodeID == f.ID && conn.End.NodeID == f.ID:
				res.Diagnostics = append(res.Diagnostics, fmt.Errorf("%w: %s loops on line %d", domain.ErrUnknownConnector, conn.ID, f.Line))
			case conn.Start.NodeID == f.ID:
				if out == nil {
					out = &domain.Binding{SourceID: b.ID, SrcLine: f.Line}
				}
				if delivers(c, conn.End) {
					out.ShouldReturn = true
				}
			case conn.End.NodeID == f.ID:
				if in != nil {
					res.Diagnostics = append(res.Diagnostics, fmt.Errorf("%w: %s is a second input to line %d", domain.ErrUnknownConnector, conn.ID, f.Line))
					continue
				}
				bind, err := inputFrom(ctx, c, b, f, conn)
				if err != nil {
					res.Diagnostics = append(res.Diagnostics, err)
					continue
				}
				in = bind
			}
		}
		if in != nil {
			res.Inputs = append(res.Inputs, *in)
		}
		if out != nil {
			res.Outputs = append(res.Outputs, *out)
		}
	}

	libs, err := libraries(c, b)
	if err != nil {
		return nil, err
	}
	res.Libraries = libs
	return res, nil
}

// delivers reports whether a value leaving through end has somewhere to
// land: a writable object, or nowhere yet so one will be created.
func delivers(c Canvas, end domain.Endpoint) bool {
	if !c.IsAttached(end) {
		return true
	}
	n, ok, err := c.Node(end.NodeID)
	if err != nil || !ok || n.Block == nil {
		return false
	}
	return c.Writable(n.Block.Type)
}

func inputFrom(ctx context.Context, c Canvas, b *domain.Block, f domain.Frame, conn domain.Connection) (*domain.Binding, error) {
	if !c.IsAttached(conn.Start) {
		return nil, fmt.Errorf("%w: %s has no source", domain.ErrUnknownConnector, conn.ID)
	}
	n, ok, err := c.Node(conn.Start.NodeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s has no source", domain.ErrUnknownConnector, conn.ID)
	}

	if n.Frame != nil {
		if n.Frame.BlockID == b.ID {
			return nil, fmt.Errorf("%w: %s feeds block %s from itself", domain.ErrUnknownConnector, conn.ID, b.ID)
		}
		return &domain.Binding{SourceID: n.Frame.BlockID, SrcLine: n.Frame.Line, DestLine: f.Line}, nil
	}
	if n.Block == nil {
		return nil, fmt.Errorf("%w: %s starts at a group", domain.ErrUnknownConnector, conn.ID)
	}

	raw, err := c.ReadValue(ctx, n.Block)
	if err != nil {
		return nil, fmt.Errorf("read input for line %d: %w", f.Line, err)
	}
	obj, err := value.From(raw)
	if err != nil {
		return nil, fmt.Errorf("read input for line %d: %w", f.Line, err)
	}
	return &domain.Binding{SourceID: n.Block.ID, DestLine: f.Line, Value: &obj}, nil
}

// libraries collects the code of every other code block connected to b
// as a whole or to b's group. Mixing languages is fatal.
func libraries(c Canvas, b *domain.Block) ([]domain.Code, error) {
	targets := []string{b.ID}
	if b.GroupID != "" {
		targets = append(targets, b.GroupID)
	}
	var libs []domain.Code
	for _, target := range targets {
		conns, err := c.ConnectionsAt(target)
		if err != nil {
			return nil, fmt.Errorf("resolve: connectors of %s: %w", target, err)
		}
		for _, conn := range conns {
			if conn.End.NodeID != target || conn.Start.NodeID == b.ID || !c.IsAttached(conn.Start) {
				continue
			}
			n, ok, err := c.Node(conn.Start.NodeID)
			if err != nil {
				return nil, err
			}
			if !ok || n.Block == nil || n.Block.Type != domain.BlockTypeCode {
				continue
			}
			if n.Block.Language != b.Language {
				return nil, fmt.Errorf("%w: %s library for %s block", domain.ErrUnsupportedLibraryLanguage, n.Block.Language, b.Language)
			}
			libs = append(libs, domain.Code{Language: n.Block.Language, Code: n.Block.Content})
		}
	}
	return libs, nil
}
