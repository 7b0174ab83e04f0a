package mcpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"canvasflow/internal/canvas"
	"canvasflow/internal/domain"
)

func TestNextPosition_EmptyPage(t *testing.T) {
	le := NewLayoutEngine(canvas.DefaultLayout())
	x, y := le.NextPosition(nil, 240, 120)
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 0.0, y)
}

func TestNextPosition_RightOfFirstObject(t *testing.T) {
	le := NewLayoutEngine(canvas.DefaultLayout())
	existing := []domain.Block{{X: 0, Y: 0, Width: 402, Height: 260}}

	x, y := le.NextPosition(existing, 240, 120)
	assert.Equal(t, 402.0+64, x)
	assert.Equal(t, 0.0, y)
}

func TestNextPosition_PrefersHigherRows(t *testing.T) {
	le := NewLayoutEngine(canvas.DefaultLayout())
	existing := []domain.Block{
		{X: 0, Y: 0, Width: 200, Height: 100},
		{X: 264, Y: 0, Width: 200, Height: 100},
		{X: 528, Y: 300, Width: 200, Height: 100},
	}

	x, y := le.NextPosition(existing, 200, 100)
	assert.Equal(t, 528.0, x)
	assert.Equal(t, 0.0, y)
}

func TestNextPosition_NeverOverlaps(t *testing.T) {
	le := NewLayoutEngine(canvas.DefaultLayout())
	var existing []domain.Block
	for i := 0; i < 12; i++ {
		x, y := le.NextPosition(existing, 300, 150)
		placed := rect{x, y, 300, 150}
		for _, b := range existing {
			assert.False(t, placed.intersects(rect{b.X, b.Y, b.Width, b.Height}),
				"object %d at (%.0f, %.0f) overlaps (%.0f, %.0f)", i, x, y, b.X, b.Y)
		}
		existing = append(existing, domain.Block{X: x, Y: y, Width: 300, Height: 150})
	}
}
