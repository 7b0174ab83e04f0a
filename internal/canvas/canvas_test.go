package canvas_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasflow/internal/canvas"
	"canvasflow/internal/domain"
	"canvasflow/internal/storage"
)

func openCanvas(t *testing.T) *canvas.Canvas {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "canvas.db"), filepath.Join(dir, "data"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return canvas.New(db, canvas.DefaultLayout())
}

func TestNode_ResolvesBlocksFramesAndGroups(t *testing.T) {
	c := openCanvas(t)
	b := &domain.Block{PageID: "p1", Type: domain.BlockTypeCode, Width: 400}
	require.NoError(t, c.CreateBlock(b))
	f := &domain.Frame{BlockID: b.ID, Line: 1}
	require.NoError(t, c.CreateFrame(f))

	n, ok, err := c.Node(b.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b.ID, n.Block.ID)

	n, ok, err = c.Node(f.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, n.Frame.Line)

	g, err := c.EnsureGroup(b)
	require.NoError(t, err)
	n, ok, err = c.Node(g.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, n.Block)
	assert.Equal(t, b.ID, n.Group.BlockID)

	_, ok, err = c.Node("gone")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, c.IsAttached(domain.Endpoint{NodeID: f.ID, Magnet: domain.MagnetAuto}))
	assert.False(t, c.IsAttached(domain.Endpoint{NodeID: "gone", Magnet: domain.MagnetAuto}))
	assert.False(t, c.IsAttached(domain.Endpoint{X: 10, Y: 10}))
}

func TestEnsureGroup_Idempotent(t *testing.T) {
	c := openCanvas(t)
	b := &domain.Block{PageID: "p1", Type: domain.BlockTypeCode}
	require.NoError(t, c.CreateBlock(b))

	g1, err := c.EnsureGroup(b)
	require.NoError(t, err)
	g2, err := c.EnsureGroup(b)
	require.NoError(t, err)
	assert.Equal(t, g1.ID, g2.ID)

	stored, err := c.Block(b.ID)
	require.NoError(t, err)
	assert.Equal(t, g1.ID, stored.GroupID)

	byID, err := c.Group(g1.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, byID.BlockID)
	missing, err := c.Group("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWriteValue_PerKind(t *testing.T) {
	ctx := context.Background()
	c := openCanvas(t)

	text := &domain.Block{PageID: "p1", Type: domain.BlockTypeText, Height: 10}
	require.NoError(t, c.CreateBlock(text))
	require.NoError(t, c.WriteValue(ctx, text, map[string]any{"a": float64(1)}))
	assert.Equal(t, "{\n  \"a\": 1\n}", text.Content)
	assert.Equal(t, 3*canvas.DefaultLayout().TextHeight, text.Height)

	code := &domain.Block{PageID: "p1", Type: domain.BlockTypeCode}
	require.NoError(t, c.CreateBlock(code))
	require.NoError(t, c.WriteValue(ctx, code, []any{float64(1)}))
	assert.Equal(t, "json", code.Language)
	require.NoError(t, c.WriteValue(ctx, code, "hello"))
	assert.Equal(t, "plaintext", code.Language)
	assert.Equal(t, "hello", code.Content)

	link := &domain.Block{PageID: "p1", Type: domain.BlockTypeLink}
	require.NoError(t, c.CreateBlock(link))
	assert.Error(t, c.WriteValue(ctx, link, float64(5)))
	require.NoError(t, c.WriteValue(ctx, link, "https://example.com"))

	table := &domain.Block{PageID: "p1", Type: domain.BlockTypeTable, Content: `[["x"]]`}
	require.NoError(t, c.CreateBlock(table))
	require.NoError(t, c.WriteValue(ctx, table, "not a table"))
	assert.Equal(t, `[["x"]]`, table.Content)
	require.NoError(t, c.WriteValue(ctx, table, []any{[]any{"a", "b"}, []any{float64(1), true}}))
	rows, err := canvas.TableRows(table)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "true"}}, rows)
	assert.Equal(t, float64(240), table.Width)

	img := &domain.Block{PageID: "p1", Type: domain.BlockTypeImage}
	require.NoError(t, c.CreateBlock(img))
	assert.Error(t, c.WriteValue(ctx, img, "x"))
	assert.False(t, c.Writable(domain.BlockTypeImage))
	assert.True(t, c.Writable(domain.BlockTypeSticky))
}

func TestReadValue_ExportsNonValueKinds(t *testing.T) {
	c := openCanvas(t)
	img := &domain.Block{PageID: "p1", Type: domain.BlockTypeImage, Content: "cat.png", Width: 50}
	require.NoError(t, c.CreateBlock(img))

	v, err := c.ReadValue(context.Background(), img)
	require.NoError(t, err)
	rec := v.(map[string]any)
	assert.Equal(t, "image", rec["type"])
	assert.Equal(t, float64(50), rec["width"])
}

type fakeQuerier struct{ got domain.DatabaseQuery }

func (f *fakeQuerier) RunQuery(_ context.Context, q domain.DatabaseQuery) ([]map[string]any, error) {
	f.got = q
	return []map[string]any{{"id": float64(1)}}, nil
}

func TestDatabaseVariant_ReadOnly(t *testing.T) {
	ctx := context.Background()
	c := openCanvas(t)
	q := &fakeQuerier{}
	c.Variants().Register(canvas.NewDatabaseVariant(q))

	b := &domain.Block{PageID: "p1", Type: domain.BlockTypeDatabase, Content: `{"connectionId":"c1","query":"select 1"}`}
	require.NoError(t, c.CreateBlock(b))
	v, err := c.ReadValue(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": float64(1)}}, v)
	assert.Equal(t, "select 1", q.got.Query)

	assert.False(t, c.Writable(domain.BlockTypeDatabase))
	assert.Error(t, c.WriteValue(ctx, b, "x"))
	assert.Panics(t, func() { c.Variants().Register(canvas.NewDatabaseVariant(q)) })
}

func TestQuery_SelectorAndScope(t *testing.T) {
	ctx := context.Background()
	c := openCanvas(t)
	code := &domain.Block{PageID: "p1", Type: domain.BlockTypeCode}
	require.NoError(t, c.CreateBlock(code))
	g, err := c.EnsureGroup(code)
	require.NoError(t, err)
	require.NoError(t, c.CreateBlock(&domain.Block{PageID: "p1", Type: domain.BlockTypeText, Content: "hi"}))
	require.NoError(t, c.CreateBlock(&domain.Block{PageID: "p1", Type: domain.BlockTypeSticky, Content: "yo"}))

	all, err := c.Query(ctx, "p1", "", "*")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	texts, err := c.Query(ctx, "p1", "", "text, sticky")
	require.NoError(t, err)
	assert.Len(t, texts, 2)

	grouped, err := c.Query(ctx, "p1", g.ID, "")
	require.NoError(t, err)
	require.Len(t, grouped, 1)
	assert.Equal(t, code.ID, grouped[0]["id"])

	viaBlock, err := c.Query(ctx, "p1", code.ID, "code")
	require.NoError(t, err)
	assert.Len(t, viaBlock, 1)
}

func TestRemoveBlockGraph(t *testing.T) {
	c := openCanvas(t)
	b := &domain.Block{PageID: "p1", Type: domain.BlockTypeCode}
	require.NoError(t, c.CreateBlock(b))
	g, err := c.EnsureGroup(b)
	require.NoError(t, err)
	f := &domain.Frame{BlockID: b.ID, Line: 1}
	require.NoError(t, c.CreateFrame(f))
	require.NoError(t, c.Connections().CreateConnection(&domain.Connection{
		PageID: "p1",
		Start:  domain.Endpoint{NodeID: f.ID},
		End:    domain.Endpoint{X: 5, Y: 5},
	}))
	require.NoError(t, c.Connections().CreateConnection(&domain.Connection{
		PageID: "p1",
		Start:  domain.Endpoint{X: 5, Y: 5},
		End:    domain.Endpoint{NodeID: g.ID},
	}))

	require.NoError(t, c.RemoveBlockGraph(b.ID))
	frames, err := c.Frames(b.ID)
	require.NoError(t, err)
	assert.Empty(t, frames)
	conns, err := c.ConnectionsAt(f.ID)
	require.NoError(t, err)
	assert.Empty(t, conns)
	conns, err = c.ConnectionsAt(g.ID)
	require.NoError(t, err)
	assert.Empty(t, conns)
	_, ok, err := c.Node(g.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteValue_RaggedRowsFitTheHeader(t *testing.T) {
	ctx := context.Background()
	c := openCanvas(t)

	table := &domain.Block{PageID: "p1", Type: domain.BlockTypeTable}
	require.NoError(t, c.CreateBlock(table))
	require.NoError(t, c.WriteValue(ctx, table, []any{
		[]any{"name"},
		[]any{"ada", float64(36), true},
		[]any{},
	}))

	rows, err := canvas.TableRows(table)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"name"}, {"ada"}, {""}}, rows)
	assert.Equal(t, float64(120), table.Width)
	assert.Equal(t, float64(96), table.Height)
}
