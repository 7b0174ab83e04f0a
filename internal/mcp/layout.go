package mcpserver

import (
	"sort"

	"canvasflow/internal/canvas"
	"canvasflow/internal/domain"
)

// LayoutEngine picks free spots for objects created by tools so they
// don't land on top of what is already on the page.
type LayoutEngine struct {
	spacing float64
}

func NewLayoutEngine(l canvas.Layout) *LayoutEngine {
	return &LayoutEngine{spacing: l.ResultSpacing}
}

type rect struct {
	x, y, w, h float64
}

func (a rect) intersects(b rect) bool {
	return a.x < b.x+b.w && a.x+a.w > b.x &&
		a.y < b.y+b.h && a.y+a.h > b.y
}

// grow pads r by d on every side.
func (a rect) grow(d float64) rect {
	return rect{a.x - d, a.y - d, a.w + 2*d, a.h + 2*d}
}

// NextPosition returns the top-most, then left-most, free spot for an
// object of size (w, h). Candidates are the origin and the spots one
// spacing to the right of and below each existing object, the same gap
// materialized results keep from their script.
func (le *LayoutEngine) NextPosition(existing []domain.Block, w, h float64) (float64, float64) {
	occupied := make([]rect, len(existing))
	candidates := []rect{{0, 0, w, h}}
	for i, b := range existing {
		occupied[i] = rect{b.X, b.Y, b.Width, b.Height}
		candidates = append(candidates,
			rect{b.X + b.Width + le.spacing, b.Y, w, h},
			rect{b.X, b.Y + b.Height + le.spacing, w, h},
		)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].y != candidates[j].y {
			return candidates[i].y < candidates[j].y
		}
		return candidates[i].x < candidates[j].x
	})

	for _, c := range candidates {
		if le.free(c, occupied) {
			return c.x, c.y
		}
	}
	// Unreachable: the spot below the lowest object is always free.
	return 0, 0
}

func (le *LayoutEngine) free(c rect, occupied []rect) bool {
	// A gap slightly under spacing still counts as free so that the
	// candidates derived from a neighbour are accepted.
	pad := le.spacing/2 - 1
	if pad < 0 {
		pad = 0
	}
	for _, o := range occupied {
		if c.intersects(o.grow(pad)) {
			return false
		}
	}
	return true
}
