package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasflow/internal/app"
	"canvasflow/internal/config"
	"canvasflow/internal/domain"
	"canvasflow/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.DBPath = filepath.Join(dir, "canvasflow.db")
	cfg.Executor.Mode = config.ExecutorInProcess
	cfg.RevertDelay = 0
	return cfg
}

func newPage(t *testing.T, a *app.App) string {
	t.Helper()
	nb, err := a.Notebooks.CreateNotebook("n")
	require.NoError(t, err)
	p, err := a.Notebooks.CreatePage(nb.ID, "")
	require.NoError(t, err)
	return p.ID
}

func TestNew_RunsCodeBlocksInProcess(t *testing.T) {
	ctx := context.Background()
	a, err := app.New(ctx, testConfig(t), app.Options{Emitter: &service.MockEmitter{}})
	require.NoError(t, err)
	defer a.Close(ctx)

	page := newPage(t, a)
	code, err := a.Blocks.CreateBlock(ctx, service.CreateBlockInput{
		PageID: page, Type: domain.BlockTypeCode, Content: "const a = 40 + 2;",
	})
	require.NoError(t, err)
	require.NotEmpty(t, code.FilePath, "code blocks are mirrored to disk")
	data, err := os.ReadFile(code.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "const a = 40 + 2;", string(data))

	report, err := a.Runs.Run(ctx, code.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, report.Status)
}

func TestNew_ClearsResultsOfEarlierSessions(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := app.New(ctx, cfg, app.Options{Emitter: &service.MockEmitter{}})
	require.NoError(t, err)
	code, err := a.Blocks.CreateBlock(ctx, service.CreateBlockInput{
		PageID: newPage(t, a), Type: domain.BlockTypeCode, Content: "const a = 1;",
	})
	require.NoError(t, err)
	_, err = a.Runs.Run(ctx, code.ID)
	require.NoError(t, err)
	r, err := a.Results.GetResult(domain.ResultKey(code.ID, 1))
	require.NoError(t, err)
	require.NotNil(t, r)
	require.NoError(t, a.Close(ctx))

	b, err := app.New(ctx, cfg, app.Options{Emitter: &service.MockEmitter{}})
	require.NoError(t, err)
	defer b.Close(ctx)
	r, err = b.Results.GetResult(domain.ResultKey(code.ID, 1))
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestNew_WatchFeedsFileEditsBack(t *testing.T) {
	ctx := context.Background()
	emitter := &service.MockEmitter{}
	a, err := app.New(ctx, testConfig(t), app.Options{Watch: true, Emitter: emitter})
	require.NoError(t, err)
	defer a.Close(ctx)

	code, err := a.Blocks.CreateBlock(ctx, service.CreateBlockInput{
		PageID: newPage(t, a), Type: domain.BlockTypeCode, Content: "const a = 1;",
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(code.FilePath, []byte("const a = 1;\nconst b = 2;"), 0o644))
	require.Eventually(t, func() bool {
		b, err := a.Blocks.GetBlock(code.ID)
		return err == nil && b.Content == "const a = 1;\nconst b = 2;"
	}, 5*time.Second, 50*time.Millisecond)

	frames, _, err := a.Runs.Inspect(ctx, code.ID)
	require.NoError(t, err)
	assert.Len(t, frames, 2)
}

func TestNew_RejectsUnknownSecretBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.SecretBackend = "vault"
	_, err := app.New(context.Background(), cfg, app.Options{})
	assert.Error(t, err)
}
