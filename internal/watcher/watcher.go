package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/flashgrep/flashgrep/internal/config"
	"github.com/flashgrep/flashgrep/internal/ferrors"
	"github.com/flashgrep/flashgrep/internal/gitignore"
	"github.com/flashgrep/flashgrep/internal/indexer"
	"github.com/flashgrep/flashgrep/internal/indexstate"
)

// flashgrepDirName is excluded from watching entirely: it holds the
// indices themselves, and churn inside it (WAL writes, bleve segment
// merges) must never feed back into indexing.
const flashgrepDirName = ".flashgrep"

// tickInterval is how often the event loop checks the pending-changes map
// for entries that have crossed the debounce window, matching §5's "polls
// the event channel, sleeps briefly (≈10ms) between ticks".
const tickInterval = 10 * time.Millisecond

// snapshotSaveInterval is how many dispatched changes accumulate before an
// opportunistic snapshot save, per §4.I ("Snapshot persistence is
// opportunistic (every N updates)").
const snapshotSaveInterval = 100

// InitialScanResult reports the outcome of the optional startup scan that
// reconciles the Index State Snapshot against the filesystem before the
// event loop starts.
type InitialScanResult struct {
	Scanned  int
	Added    int
	Modified int
	Deleted  int
	Errors   int
}

// Watcher is one running instance of the File Watcher (§4.I): it holds the
// repository lock, owns the Index Engine and Index State Snapshot, and
// drives the debounced reindex pipeline.
type Watcher struct {
	root         string
	flashgrepDir string
	statePath    string
	cfg          *config.Config

	engine *indexer.Engine
	state  *indexstate.State
	lock   *Lock

	pending *PendingChanges

	fsWatcher   *fsnotify.Watcher
	poll        *pollingWatcher
	useFsnotify bool

	now func() time.Time
}

// New builds a Watcher rooted at root. now defaults to time.Now when nil;
// tests supply a fixed clock.
func New(root string, cfg *config.Config, engine *indexer.Engine, state *indexstate.State, now func() time.Time) *Watcher {
	if now == nil {
		now = time.Now
	}
	flashgrepDir := filepath.Join(root, flashgrepDirName)
	return &Watcher{
		root:         root,
		flashgrepDir: flashgrepDir,
		statePath:    filepath.Join(flashgrepDir, "index-state.json"),
		cfg:          cfg,
		engine:       engine,
		state:        state,
		lock:         NewLock(flashgrepDir),
		pending:      NewPendingChanges(),
		now:          now,
	}
}

// InitialScan reconciles the Index State Snapshot against the current
// filesystem, feeding every path whose metadata changed through the same
// dispatch path a live event would, then compacts the snapshot. Call this
// before Run when enable_initial_index is set.
func (w *Watcher) InitialScan(ctx context.Context) (InitialScanResult, error) {
	var result InitialScanResult

	results, err := w.engine.Scanner().Scan(ctx)
	if err != nil {
		return result, ferrors.Wrap(ferrors.FileWatcher, "initial scan", err)
	}

	seen := make(map[string]struct{})
	for r := range results {
		if r.Error != nil {
			result.Errors++
			continue
		}
		result.Scanned++
		seen[r.File.Path] = struct{}{}

		meta, err := fileMetadata(r.File.AbsPath, r.File.Size, r.File.ModTime.Unix())
		if err != nil {
			result.Errors++
			continue
		}
		if !w.state.Changed(r.File.Path, meta) {
			continue
		}

		if _, existed := w.state.Get(r.File.Path); existed {
			result.Modified++
		} else {
			result.Added++
		}

		if _, err := w.engine.IndexFile(ctx, r.File.Path, nil); err != nil {
			result.Errors++
			continue
		}
		w.state.Update(r.File.Path, meta)
	}

	for _, p := range w.state.Paths() {
		if _, ok := seen[p]; ok {
			continue
		}
		if err := w.engine.RemovePath(ctx, p); err != nil {
			result.Errors++
			continue
		}
		w.state.Remove(p)
		result.Deleted++
	}

	w.state.Compact(w.root)
	return result, w.state.Save(w.statePath)
}

// Run acquires the repository lock and blocks until ctx is cancelled,
// dispatching debounced filesystem changes to the Index Engine. The lock
// and a final snapshot save are released on every return path.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.lock.Acquire(); err != nil {
		return err
	}
	defer func() {
		_ = w.state.Save(w.statePath)
		_ = w.lock.Release()
	}()

	events, errs, err := w.startRawWatch(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	sinceSave := 0
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.pending.Add(ev, w.now())

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			drained := w.pending.Drain(w.now(), time.Duration(w.debounceMS())*time.Millisecond)
			for _, ev := range drained {
				w.dispatch(ctx, ev)
				sinceSave++
				if sinceSave >= snapshotSaveInterval {
					_ = w.state.Save(w.statePath)
					sinceSave = 0
				}
			}
		}
	}
}

func (w *Watcher) debounceMS() int {
	if w.cfg.DebounceMS > 0 {
		return w.cfg.DebounceMS
	}
	return config.DefaultDebounceMS
}

// dispatch reindexes or removes a single drained path, and special-cases
// the ignore rule file.
func (w *Watcher) dispatch(ctx context.Context, ev FileEvent) {
	if ev.Operation == OpIgnoreRuleChange {
		w.reloadIgnoreAndReconcile(ctx)
		return
	}

	absPath := filepath.Join(w.root, ev.Path)
	info, err := os.Stat(absPath)
	if os.IsNotExist(err) {
		if err := w.engine.RemovePath(ctx, ev.Path); err != nil {
			slog.Warn("remove path from index failed", slog.String("path", ev.Path), slog.String("error", err.Error()))
			return
		}
		w.state.Remove(ev.Path)
		return
	}
	if err != nil {
		slog.Warn("stat path failed", slog.String("path", ev.Path), slog.String("error", err.Error()))
		return
	}

	if _, err := w.engine.IndexFile(ctx, ev.Path, nil); err != nil {
		slog.Warn("index file failed", slog.String("path", ev.Path), slog.String("error", err.Error()))
		return
	}

	meta, err := fileMetadata(absPath, info.Size(), info.ModTime().Unix())
	if err != nil {
		slog.Warn("hash path failed", slog.String("path", ev.Path), slog.String("error", err.Error()))
		return
	}
	w.state.Update(ev.Path, meta)
}

func (w *Watcher) reloadIgnoreAndReconcile(ctx context.Context) {
	ignorePath := filepath.Join(w.root, ignoreFileName)
	m, err := gitignore.LoadDefaultIgnoreFile(ignorePath)
	if err != nil {
		slog.Warn("reload ignore rules failed", slog.String("error", err.Error()))
		return
	}
	w.engine.SetIgnore(m)

	result, err := w.engine.Reconcile(ctx)
	if err != nil {
		slog.Warn("reconcile after ignore rule change failed", slog.String("error", err.Error()))
		return
	}
	slog.Info("reconciled after ignore rule change",
		slog.Int("removed", result.Removed),
		slog.Int("retained", result.Retained))
}

func fileMetadata(absPath string, size, mtime int64) (indexstate.FileMetadata, error) {
	hash, err := indexstate.HashPrefix(absPath)
	if err != nil {
		return indexstate.FileMetadata{}, err
	}
	return indexstate.FileMetadata{Size: size, Mtime: mtime, ContentHash: hash}, nil
}

// startRawWatch starts either the fsnotify or polling backend and returns
// channels of already-filtered FileEvents and non-fatal errors.
func (w *Watcher) startRawWatch(ctx context.Context) (<-chan FileEvent, <-chan error, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.useFsnotify = false
		w.poll = newPollingWatcher(w.engine.Scanner(), w.root)
		go w.poll.run(ctx)
		return w.filterPolling(ctx), w.poll.errors, nil
	}

	w.useFsnotify = true
	w.fsWatcher = fsw
	if err := w.addRecursive(w.root); err != nil {
		_ = fsw.Close()
		return nil, nil, ferrors.Wrap(ferrors.FileWatcher, "watch repository tree", err)
	}

	filtered := make(chan FileEvent, 256)
	errs := make(chan error, 10)

	go func() {
		defer close(filtered)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				_ = fsw.Close()
				return
			case raw, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev, keep := w.toFileEvent(raw); keep {
					select {
					case filtered <- ev:
					case <-ctx.Done():
						return
					}
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				select {
				case errs <- err:
				default:
				}
			}
		}
	}()

	return filtered, errs, nil
}

// filterPolling adapts the polling backend's already-scanner-filtered
// events, additionally special-casing the ignore file, to match the
// fsnotify path's output shape.
func (w *Watcher) filterPolling(ctx context.Context) <-chan FileEvent {
	out := make(chan FileEvent, 256)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.poll.events:
				if !ok {
					return
				}
				if ev.Path == ignoreFileName {
					ev.Operation = OpIgnoreRuleChange
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// toFileEvent converts and filters a raw fsnotify event: anything under
// .flashgrep/ is dropped outright, .flashgrepignore becomes a rule-reload
// event, and everything else must still pass the scanner's path predicates.
func (w *Watcher) toFileEvent(raw fsnotify.Event) (FileEvent, bool) {
	relPath, err := filepath.Rel(w.root, raw.Name)
	if err != nil {
		return FileEvent{}, false
	}
	relPath = filepath.ToSlash(relPath)

	if relPath == flashgrepDirName || strings.HasPrefix(relPath, flashgrepDirName+"/") {
		return FileEvent{}, false
	}

	isDir := false
	if info, err := os.Stat(raw.Name); err == nil {
		isDir = info.IsDir()
		if isDir && raw.Op&fsnotify.Create != 0 {
			_ = w.fsWatcher.Add(raw.Name)
		}
	}

	if relPath == ignoreFileName {
		return FileEvent{Path: relPath, Operation: OpIgnoreRuleChange, Timestamp: w.now()}, true
	}

	if !w.engine.Scanner().PathAllowed(relPath) {
		return FileEvent{}, false
	}

	var op Operation
	switch {
	case raw.Op&fsnotify.Create != 0:
		op = OpCreate
	case raw.Op&fsnotify.Write != 0:
		op = OpModify
	case raw.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		op = OpDelete
	default:
		return FileEvent{}, false
	}

	return FileEvent{Path: relPath, Operation: op, IsDir: isDir, Timestamp: w.now()}, true
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		relPath, _ := filepath.Rel(root, path)
		relPath = filepath.ToSlash(relPath)

		if relPath == "." {
			return w.fsWatcher.Add(path)
		}
		if relPath == flashgrepDirName || strings.HasPrefix(relPath, flashgrepDirName+"/") {
			return filepath.SkipDir
		}
		if w.cfg.IsIgnoredDirName(filepath.Base(relPath)) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}
