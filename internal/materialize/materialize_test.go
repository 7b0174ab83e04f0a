package materialize_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasflow/internal/canvas"
	"canvasflow/internal/domain"
	"canvasflow/internal/graph"
	"canvasflow/internal/materialize"
	"canvasflow/internal/storage"
	"canvasflow/internal/value"
)

func setup(t *testing.T, code string) (*canvas.Canvas, *domain.Block) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "canvas.db"), filepath.Join(dir, "data"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	c := canvas.New(db, canvas.DefaultLayout())

	b := &domain.Block{PageID: "p1", Type: domain.BlockTypeCode, Language: "javascript", Content: code, X: 0, Y: 0, Width: 300}
	require.NoError(t, c.CreateBlock(b))
	_, err = graph.Reconcile(c, b.ID)
	require.NoError(t, err)
	return c, b
}

func frameID(t *testing.T, c *canvas.Canvas, blockID string, line int) string {
	t.Helper()
	frames, err := c.Frames(blockID)
	require.NoError(t, err)
	for _, f := range frames {
		if f.Line == line {
			return f.ID
		}
	}
	t.Fatalf("no frame at line %d", line)
	return ""
}

func out(line int, v value.Obj) domain.Binding {
	return domain.Binding{SrcLine: line, Value: &v, ShouldReturn: true}
}

func TestMaterialize_WritesAttachedTarget(t *testing.T) {
	ctx := context.Background()
	c, b := setup(t, "const x = 1")
	sticky := &domain.Block{PageID: "p1", Type: domain.BlockTypeSticky}
	require.NoError(t, c.CreateBlock(sticky))
	require.NoError(t, c.Connections().CreateConnection(&domain.Connection{
		PageID: "p1",
		Start:  domain.Endpoint{NodeID: frameID(t, c, b.ID, 1), Magnet: domain.MagnetAuto},
		End:    domain.Endpoint{NodeID: sticky.ID, Magnet: domain.MagnetAuto},
	}))

	errs := materialize.Materialize(ctx, c, b.ID, []domain.Binding{out(1, value.Text("hello"))})
	assert.Empty(t, errs)
	got, err := c.Block(sticky.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
}

func TestMaterialize_CreatesObjectForFreeEnd(t *testing.T) {
	ctx := context.Background()
	c, b := setup(t, "const rows = 1\nconst msg = 2")
	tableConn := &domain.Connection{
		PageID: "p1",
		Start:  domain.Endpoint{NodeID: frameID(t, c, b.ID, 1), Magnet: domain.MagnetAuto},
		End:    domain.Endpoint{X: 500, Y: 100},
	}
	textConn := &domain.Connection{
		PageID: "p1",
		Start:  domain.Endpoint{NodeID: frameID(t, c, b.ID, 2), Magnet: domain.MagnetAuto},
		End:    domain.Endpoint{X: 500, Y: 300},
	}
	require.NoError(t, c.Connections().CreateConnection(tableConn))
	require.NoError(t, c.Connections().CreateConnection(textConn))

	grid, err := value.JSON([]any{[]any{"a", "b"}, []any{1, 2}})
	require.NoError(t, err)
	errs := materialize.Materialize(ctx, c, b.ID, []domain.Binding{out(1, grid), out(2, value.Text("done"))})
	require.Empty(t, errs)

	tc, err := c.Connections().GetConnection(tableConn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MagnetLeft, tc.End.Magnet)
	table, err := c.Block(tc.End.NodeID)
	require.NoError(t, err)
	assert.Equal(t, domain.BlockTypeTable, table.Type)
	assert.Equal(t, 500.0, table.X)
	assert.Equal(t, 100-table.Height/2, table.Y)
	rows, err := canvas.TableRows(table)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)

	xc, err := c.Connections().GetConnection(textConn.ID)
	require.NoError(t, err)
	text, err := c.Block(xc.End.NodeID)
	require.NoError(t, err)
	assert.Equal(t, domain.BlockTypeText, text.Type)
	assert.Equal(t, "done", text.Content)
}

func TestMaterialize_PartialFailure(t *testing.T) {
	ctx := context.Background()
	c, b := setup(t, "const x = 1")
	sticky := &domain.Block{PageID: "p1", Type: domain.BlockTypeSticky}
	require.NoError(t, c.CreateBlock(sticky))
	require.NoError(t, c.Connections().CreateConnection(&domain.Connection{
		PageID: "p1",
		Start:  domain.Endpoint{NodeID: frameID(t, c, b.ID, 1), Magnet: domain.MagnetAuto},
		End:    domain.Endpoint{NodeID: sticky.ID, Magnet: domain.MagnetAuto},
	}))

	skipped := domain.Binding{SrcLine: 1}
	errs := materialize.Materialize(ctx, c, b.ID, []domain.Binding{out(7, value.Text("lost")), skipped, out(1, value.Text("kept"))})
	require.Len(t, errs, 1)
	got, err := c.Block(sticky.ID)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Content)

	errs = materialize.Materialize(ctx, c, "vanished", []domain.Binding{out(1, value.Text("x"))})
	assert.Len(t, errs, 1)
}

func TestMaterialize_FanOutSkipsEndsWithoutAValue(t *testing.T) {
	ctx := context.Background()
	c, b := setup(t, "const x = 1")
	sticky := &domain.Block{PageID: "p1", Type: domain.BlockTypeSticky}
	require.NoError(t, c.CreateBlock(sticky))
	img := &domain.Block{PageID: "p1", Type: domain.BlockTypeImage, Content: "pic.png"}
	require.NoError(t, c.CreateBlock(img))
	down := &domain.Block{PageID: "p1", Type: domain.BlockTypeCode, Language: "javascript", Content: "let y = 0", X: 600}
	require.NoError(t, c.CreateBlock(down))
	_, err := graph.Reconcile(c, down.ID)
	require.NoError(t, err)

	from := frameID(t, c, b.ID, 1)
	for _, to := range []string{sticky.ID, frameID(t, c, down.ID, 1), img.ID} {
		require.NoError(t, c.Connections().CreateConnection(&domain.Connection{
			PageID: "p1",
			Start:  domain.Endpoint{NodeID: from, Magnet: domain.MagnetAuto},
			End:    domain.Endpoint{NodeID: to, Magnet: domain.MagnetAuto},
		}))
	}

	errs := materialize.Materialize(ctx, c, b.ID, []domain.Binding{out(1, value.Text("1"))})
	assert.Empty(t, errs)

	got, err := c.Block(sticky.ID)
	require.NoError(t, err)
	assert.Equal(t, "1", got.Content)
	got, err = c.Block(down.ID)
	require.NoError(t, err)
	assert.Equal(t, "let y = 0", got.Content)
	got, err = c.Block(img.ID)
	require.NoError(t, err)
	assert.Equal(t, "pic.png", got.Content)
}
