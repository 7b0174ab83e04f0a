package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasflow/internal/canvas"
	"canvasflow/internal/domain"
	"canvasflow/internal/executor"
	"canvasflow/internal/protocol"
	"canvasflow/internal/secret"
	"canvasflow/internal/service"
	"canvasflow/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *service.MockEmitter) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "canvas.db"), filepath.Join(dir, "data"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	results, err := storage.NewResultStore(db, 1024)
	require.NoError(t, err)
	c := canvas.New(db, canvas.DefaultLayout())
	exec := executor.New(executor.Options{JavaScriptCDN: "https://cdn.jsdelivr.net/npm/", PythonCDN: "https://cdn.jsdelivr.net/pyodide/"})
	emitter := &service.MockEmitter{}

	blocks := service.NewBlockService(c, service.NewPluginRegistry(), emitter)
	runs := service.NewRunService(c, results, &protocol.InProcessTransport{Worker: protocol.NewWorker(exec)}, exec, emitter, 0)
	schedules := service.NewScheduleService(storage.NewScheduleStore(db), runs, emitter)
	t.Cleanup(schedules.Stop)

	s := New(Deps{
		Emitter:   emitter,
		Layout:    canvas.DefaultLayout(),
		Notebooks: service.NewNotebookService(storage.NewNotebookStore(db), blocks, c, db.DataDir(), emitter),
		Blocks:    blocks,
		Runs:      runs,
		Schedules: schedules,
		Database:  service.NewDatabaseService(storage.NewDBConnectionStore(db), secret.NewEnvStore("CANVASFLOW_TEST_SECRET_")),
		Results:   results,
	})
	return s, emitter
}

type handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func call(t *testing.T, h handler, args map[string]any) string {
	t.Helper()
	res, err := h(context.Background(), mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func decode[T any](t *testing.T, text string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(text), &v), text)
	return v
}

func TestServer_WireAndRunDataflow(t *testing.T) {
	s, emitter := newTestServer(t)

	nb := decode[domain.Notebook](t, call(t, s.handleCreateNotebook, map[string]any{"name": "Flows"}))
	page := decode[domain.Page](t, call(t, s.handleCreatePage, map[string]any{"notebookId": nb.ID}))
	assert.Equal(t, "Page 1", page.Name)

	input := decode[blockSummary](t, call(t, s.handleCreateBlock, map[string]any{"type": "text", "content": "5"}))
	assert.Equal(t, 0.0, input.X, "first object lands at the origin")

	code := decode[blockSummary](t, call(t, s.handleWriteCode, map[string]any{
		"code":     "let x = 0;\nconst y = Number(x) + 1;",
		"language": "javascript",
	}))
	assert.Greater(t, code.X, input.X+input.Width, "new code block is placed beside the input")

	inspect := decode[struct {
		Frames []domain.Frame `json:"frames"`
	}](t, call(t, s.handleListFrames, map[string]any{"blockId": code.ID}))
	require.Len(t, inspect.Frames, 2)
	frameAt := map[int]string{}
	for _, f := range inspect.Frames {
		frameAt[f.Line] = f.ID
	}

	call(t, s.handleConnect, map[string]any{"from": input.ID, "to": frameAt[1]})
	call(t, s.handleConnect, map[string]any{"from": frameAt[2], "toX": 900.0, "toY": 100.0})

	report := decode[service.RunReport](t, call(t, s.handleRunBlock, map[string]any{"blockId": code.ID}))
	assert.Equal(t, domain.RunStatusSuccess, report.Status)

	result := decode[map[string]string](t, call(t, s.handleGetResult, map[string]any{"blockId": code.ID, "line": 2.0}))
	assert.Equal(t, "6", result["data"])

	texts := decode[[]blockSummary](t, call(t, s.handleListBlocks, map[string]any{"type": "text"}))
	require.Len(t, texts, 2, "the free end became a text object")
	var created blockSummary
	for _, b := range texts {
		if b.ID != input.ID {
			created = b
		}
	}
	assert.Equal(t, "6", created.Preview)
	assert.Equal(t, 900.0, created.X)

	assert.NotEmpty(t, emitter.Named("mcp:blocks-changed"))
}

func TestServer_NoActivePage(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.handleListBlocks(context.Background(), mcp.CallToolRequest{})
	assert.ErrorContains(t, err, "no active page")
}

func TestServer_ListCodeBlocksReportsTitleAndStatus(t *testing.T) {
	s, _ := newTestServer(t)
	nb := decode[domain.Notebook](t, call(t, s.handleCreateNotebook, map[string]any{}))
	call(t, s.handleCreatePage, map[string]any{"notebookId": nb.ID})
	call(t, s.handleWriteCode, map[string]any{"code": "// title: totals\nconst a = 1;"})

	list := decode[[]codeBlockSummary](t, call(t, s.handleListCodeBlocks, map[string]any{}))
	require.Len(t, list, 1)
	assert.Equal(t, "totals", list[0].Title)
	assert.Equal(t, "javascript", list[0].Language)
	assert.Equal(t, domain.RunStatusEmpty, list[0].Status)
}

func TestServer_ScheduleRejectsBadCron(t *testing.T) {
	s, _ := newTestServer(t)
	nb := decode[domain.Notebook](t, call(t, s.handleCreateNotebook, map[string]any{}))
	call(t, s.handleCreatePage, map[string]any{"notebookId": nb.ID})
	code := decode[blockSummary](t, call(t, s.handleWriteCode, map[string]any{"code": "const a = 1;"}))

	_, err := s.handleScheduleBlock(context.Background(), mcp.CallToolRequest{Params: mcp.CallToolParams{
		Arguments: map[string]any{"blockId": code.ID, "cron": "sometimes"},
	}})
	assert.Error(t, err)

	sc := decode[domain.Schedule](t, call(t, s.handleScheduleBlock, map[string]any{"blockId": code.ID, "cron": "@daily"}))
	assert.Equal(t, code.ID, sc.BlockID)
	call(t, s.handleUnscheduleBlock, map[string]any{"blockId": code.ID})
}

func TestPageIDFromURI(t *testing.T) {
	assert.Equal(t, "abc", pageIDFromURI("canvasflow://page/abc/blocks"))
	assert.Empty(t, pageIDFromURI("canvasflow://page/abc"))
	assert.Empty(t, pageIDFromURI("other://page/abc/blocks"))
	assert.Empty(t, pageIDFromURI("canvasflow://page/a/b/blocks"))
}

func TestServer_DeleteDBConnectionWhileInUse(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	nb := decode[domain.Notebook](t, call(t, s.handleCreateNotebook, map[string]any{}))
	call(t, s.handleCreatePage, map[string]any{"notebookId": nb.ID})

	conn := decode[domain.DatabaseConnection](t, call(t, s.handleCreateDBConnection, map[string]any{
		"name": "local", "driver": "sqlite", "host": filepath.Join(t.TempDir(), "local.db"), "test": false,
	}))
	obj := decode[domain.Block](t, call(t, s.handleCreateBlock, map[string]any{
		"type": "database", "content": `{"connectionId":"` + conn.ID + `","query":"select 1"}`,
	}))

	_, err := s.handleDeleteDBConnection(ctx, mcp.CallToolRequest{Params: mcp.CallToolParams{
		Arguments: map[string]any{"connectionId": conn.ID},
	}})
	assert.ErrorContains(t, err, obj.ID)

	call(t, s.handleDeleteBlock, map[string]any{"blockId": obj.ID})
	call(t, s.handleDeleteDBConnection, map[string]any{"connectionId": conn.ID})
	list := decode[[]domain.DatabaseConnection](t, call(t, s.handleListDBConnections, map[string]any{}))
	assert.Empty(t, list)
}
