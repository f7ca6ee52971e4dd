package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/flashgrep/flashgrep/internal/ferrors"
	"github.com/flashgrep/flashgrep/internal/scanner"
)

// pollInterval is how often the polling fallback rescans the tree. fsnotify
// is preferred; this only runs when fsnotify itself fails to initialize
// (network mounts, some container filesystems).
const pollInterval = 2 * time.Second

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// pollingWatcher discovers changes by periodically re-walking the tree and
// diffing against the previous walk's snapshot.
type pollingWatcher struct {
	scanner  *scanner.Scanner
	rootPath string
	interval time.Duration

	mu    sync.Mutex
	state map[string]fileSnapshot

	events chan FileEvent
	errors chan error
}

func newPollingWatcher(s *scanner.Scanner, rootPath string) *pollingWatcher {
	return &pollingWatcher{
		scanner:  s,
		rootPath: rootPath,
		interval: pollInterval,
		state:    make(map[string]fileSnapshot),
		events:   make(chan FileEvent, 256),
		errors:   make(chan error, 10),
	}
}

// run blocks, polling until ctx is cancelled. The initial walk only
// establishes a baseline; it emits no events.
func (p *pollingWatcher) run(ctx context.Context) {
	p.mu.Lock()
	_ = p.walk(func(relPath string, snap fileSnapshot) { p.state[relPath] = snap })
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(p.events)
			close(p.errors)
			return
		case <-ticker.C:
			p.detectChanges()
		}
	}
}

func (p *pollingWatcher) walk(visit func(relPath string, snap fileSnapshot)) error {
	return filepath.WalkDir(p.rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		relPath, err := filepath.Rel(p.rootPath, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			return nil
		}
		if !p.scanner.PathAllowed(relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		snap := fileSnapshot{modTime: info.ModTime(), size: info.Size(), isDir: false}
		visit(relPath, snap)
		return nil
	})
}

func (p *pollingWatcher) detectChanges() {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := make(map[string]fileSnapshot)
	if err := p.walk(func(relPath string, snap fileSnapshot) {
		current[relPath] = snap
		if prev, ok := p.state[relPath]; !ok {
			p.emit(FileEvent{Path: relPath, Operation: OpCreate, Timestamp: time.Now()})
		} else if prev.modTime != snap.modTime || prev.size != snap.size {
			p.emit(FileEvent{Path: relPath, Operation: OpModify, Timestamp: time.Now()})
		}
	}); err != nil {
		p.emitError(err)
		return
	}

	for relPath := range p.state {
		if _, ok := current[relPath]; !ok {
			p.emit(FileEvent{Path: relPath, Operation: OpDelete, Timestamp: time.Now()})
		}
	}

	p.state = current
}

func (p *pollingWatcher) emit(event FileEvent) {
	select {
	case p.events <- event:
	default:
		slog.Warn("polling watcher buffer full, dropping event",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()))
	}
}

func (p *pollingWatcher) emitError(err error) {
	select {
	case p.errors <- ferrors.Wrap(ferrors.FileWatcher, "polling scan", err):
	default:
	}
}
