package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashgrep/flashgrep/internal/config"
	"github.com/flashgrep/flashgrep/internal/fulltext"
	"github.com/flashgrep/flashgrep/internal/indexer"
	"github.com/flashgrep/flashgrep/internal/indexstate"
	"github.com/flashgrep/flashgrep/internal/store"
)

func newTestWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()
	root := t.TempDir()
	metaDir := t.TempDir()

	meta, err := store.Open(filepath.Join(metaDir, "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	ft, err := fulltext.Open(filepath.Join(metaDir, "text_index"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ft.Close() })

	cfg := config.Default()
	engine := indexer.New(root, cfg, meta, ft, nil)
	state := indexstate.New(func() int64 { return 1 })

	w := New(root, cfg, engine, state, nil)
	return w, root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestToFileEvent_DropsPathsUnderFlashgrepDir(t *testing.T) {
	w, root := newTestWatcher(t)
	writeFile(t, root, ".flashgrep/metadata.db", "x")

	_, keep := w.toFileEvent(fsnotify.Event{Name: filepath.Join(root, ".flashgrep", "metadata.db"), Op: fsnotify.Write})
	assert.False(t, keep)
}

func TestToFileEvent_IgnoreFileBecomesRuleChangeRegardlessOfExtension(t *testing.T) {
	w, root := newTestWatcher(t)
	writeFile(t, root, ".flashgrepignore", "*.log\n")

	ev, keep := w.toFileEvent(fsnotify.Event{Name: filepath.Join(root, ".flashgrepignore"), Op: fsnotify.Write})
	require.True(t, keep)
	assert.Equal(t, OpIgnoreRuleChange, ev.Operation)
}

func TestToFileEvent_DropsDisallowedExtension(t *testing.T) {
	w, root := newTestWatcher(t)
	writeFile(t, root, "image.png", "binary-ish")

	_, keep := w.toFileEvent(fsnotify.Event{Name: filepath.Join(root, "image.png"), Op: fsnotify.Write})
	assert.False(t, keep)
}

func TestToFileEvent_KeepsAllowedFileAsModify(t *testing.T) {
	w, root := newTestWatcher(t)
	writeFile(t, root, "main.go", "package main\n")

	ev, keep := w.toFileEvent(fsnotify.Event{Name: filepath.Join(root, "main.go"), Op: fsnotify.Write})
	require.True(t, keep)
	assert.Equal(t, OpModify, ev.Operation)
	assert.Equal(t, "main.go", ev.Path)
}

func TestDispatch_IndexesOnModifyAndUpdatesState(t *testing.T) {
	w, root := newTestWatcher(t)
	writeFile(t, root, "main.go", "package main\nfunc main() {}\n")

	w.dispatch(context.Background(), FileEvent{Path: "main.go", Operation: OpModify, Timestamp: time.Now()})

	_, ok := w.state.Get("main.go")
	assert.True(t, ok)

	files, err := w.engine.Scanner().Scan(context.Background())
	require.NoError(t, err)
	found := false
	for r := range files {
		if r.File != nil && r.File.Path == "main.go" {
			found = true
		}
	}
	assert.True(t, found)

	outcome, err := w.engine.IndexFile(context.Background(), "main.go", nil)
	require.NoError(t, err)
	assert.Equal(t, indexer.Unchanged, outcome, "dispatch already indexed main.go")
}

func TestDispatch_RemovesFromStateWhenFileGone(t *testing.T) {
	w, root := newTestWatcher(t)
	writeFile(t, root, "main.go", "package main\n")
	w.dispatch(context.Background(), FileEvent{Path: "main.go", Operation: OpModify, Timestamp: time.Now()})
	require.NoError(t, os.Remove(filepath.Join(root, "main.go")))

	w.dispatch(context.Background(), FileEvent{Path: "main.go", Operation: OpDelete, Timestamp: time.Now()})

	_, ok := w.state.Get("main.go")
	assert.False(t, ok)
}

func TestInitialScan_IndexesNewFilesAndRecordsThem(t *testing.T) {
	w, root := newTestWatcher(t)
	writeFile(t, root, "a.go", "package main\n")
	writeFile(t, root, "b.go", "package main\n")

	result, err := w.InitialScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 0, result.Modified)

	_, ok := w.state.Get("a.go")
	assert.True(t, ok)
}

func TestInitialScan_SecondRunFindsNoChanges(t *testing.T) {
	w, root := newTestWatcher(t)
	writeFile(t, root, "a.go", "package main\n")

	_, err := w.InitialScan(context.Background())
	require.NoError(t, err)

	result, err := w.InitialScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 0, result.Modified)
}

func TestInitialScan_DetectsDeletionsSinceLastSnapshot(t *testing.T) {
	w, root := newTestWatcher(t)
	writeFile(t, root, "a.go", "package main\n")
	_, err := w.InitialScan(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "a.go")))

	result, err := w.InitialScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	_, ok := w.state.Get("a.go")
	assert.False(t, ok)
}
