package watch_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasflow/internal/domain"
	"canvasflow/internal/watch"
)

func TestMirrorWrite(t *testing.T) {
	dir := t.TempDir()
	m := watch.NewMirror(dir)
	b := &domain.Block{ID: "b1", PageID: "p1", Language: "python", Content: "x = 1\n"}

	path, err := m.Write(b)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "p1", "b1.py"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(data))

	// Switching language moves the file.
	b.FilePath = path
	b.Language = "javascript"
	newPath, err := m.Write(b)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "p1", "b1.js"), newPath)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	b.FilePath = newPath
	require.NoError(t, m.Remove(b))
	require.NoError(t, m.Remove(b))
}

func TestWatcherReportsEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "b1.js")
	require.NoError(t, os.WriteFile(path, []byte("const a = 1;"), 0644))

	changes := make(chan [2]string, 4)
	w, err := watch.NewWatcher(20*time.Millisecond, func(blockID, content string) {
		changes <- [2]string{blockID, content}
	})
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Watch("b1", path))

	require.NoError(t, os.WriteFile(path, []byte("const a = 2;"), 0644))
	select {
	case got := <-changes:
		assert.Equal(t, [2]string{"b1", "const a = 2;"}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	w.Unwatch("b1")
	require.NoError(t, os.WriteFile(path, []byte("const a = 3;"), 0644))
	select {
	case got := <-changes:
		t.Fatalf("unexpected change after unwatch: %v", got)
	case <-time.After(200 * time.Millisecond):
	}
}
