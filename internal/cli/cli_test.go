package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasflow/internal/app"
	"canvasflow/internal/config"
	"canvasflow/internal/domain"
	"canvasflow/internal/service"
)

// fixture builds a page with two chained code blocks and returns the
// config file path plus the block ids.
func fixture(t *testing.T) (path, up, down, sink string) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.DBPath = filepath.Join(dir, "canvasflow.db")
	cfg.Executor.Mode = config.ExecutorInProcess
	cfg.RevertDelay = 0
	path = filepath.Join(dir, "config.yaml")
	require.NoError(t, cfg.Save(path))

	a, err := app.New(ctx, cfg, app.Options{Emitter: &service.MockEmitter{}})
	require.NoError(t, err)
	defer a.Close(ctx)

	nb, err := a.Notebooks.CreateNotebook("")
	require.NoError(t, err)
	page, err := a.Notebooks.CreatePage(nb.ID, "")
	require.NoError(t, err)
	create := func(in service.CreateBlockInput) *domain.Block {
		in.PageID = page.ID
		b, err := a.Blocks.CreateBlock(ctx, in)
		require.NoError(t, err)
		return b
	}
	u := create(service.CreateBlockInput{Type: domain.BlockTypeCode, Content: "const a = 2;"})
	d := create(service.CreateBlockInput{Type: domain.BlockTypeCode, Content: "let b = 0;\nconst c = b * 10;", X: 600})
	s := create(service.CreateBlockInput{Type: domain.BlockTypeText, X: 1200})

	frame := func(blockID string, line int) string {
		frames, _, err := a.Runs.Inspect(ctx, blockID)
		require.NoError(t, err)
		for _, f := range frames {
			if f.Line == line {
				return f.ID
			}
		}
		t.Fatalf("no frame at line %d", line)
		return ""
	}
	connect := func(from, to string) {
		_, err := a.Blocks.Connect(ctx, service.ConnectInput{Start: domain.Endpoint{NodeID: from}, End: domain.Endpoint{NodeID: to}})
		require.NoError(t, err)
	}
	connect(frame(u.ID, 1), frame(d.ID, 1))
	connect(frame(d.ID, 2), s.ID)
	return path, u.ID, d.ID, s.ID
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(args)
	t.Cleanup(func() { RootCmd.SetArgs(nil) })
	err := RootCmd.Execute()
	return out.String(), err
}

func TestRun_ChainsBlocksWithinOneInvocation(t *testing.T) {
	path, up, down, sink := fixture(t)

	out, err := execute(t, "--config", path, "run", up, down)
	require.NoError(t, err, out)
	assert.Contains(t, out, up)
	assert.Contains(t, out, "SUCCESS")

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	a, err := app.New(context.Background(), cfg, app.Options{Emitter: &service.MockEmitter{}})
	require.NoError(t, err)
	defer a.Close(context.Background())
	b, err := a.Blocks.GetBlock(sink)
	require.NoError(t, err)
	assert.Equal(t, "20", b.Content)
}

func TestRun_UpstreamMissingFails(t *testing.T) {
	path, _, down, _ := fixture(t)

	out, err := execute(t, "--config", path, "run", down)
	assert.Error(t, err)
	assert.Contains(t, out, "InputNotFound")
}

func TestFrames_ShowsBindings(t *testing.T) {
	path, _, down, _ := fixture(t)

	out, err := execute(t, "--config", path, "frames", down)
	require.NoError(t, err, out)
	assert.Contains(t, out, "line 1")
	assert.Contains(t, out, "input  line 1 <- ")
	assert.Contains(t, out, "output line 2 -> ")
}
