// Package indexer implements the Index Engine (§4.G): the single-file
// reindex algorithm, repository-wide indexing with progress reporting, and
// reconciliation after an ignore-rule change.
package indexer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/flashgrep/flashgrep/internal/async"
	"github.com/flashgrep/flashgrep/internal/chunk"
	"github.com/flashgrep/flashgrep/internal/config"
	"github.com/flashgrep/flashgrep/internal/ferrors"
	"github.com/flashgrep/flashgrep/internal/fulltext"
	"github.com/flashgrep/flashgrep/internal/gitignore"
	"github.com/flashgrep/flashgrep/internal/scanner"
	"github.com/flashgrep/flashgrep/internal/store"
	"github.com/flashgrep/flashgrep/internal/symbols"
)

// Outcome reports what happened to a single file passed to IndexFile.
type Outcome int

const (
	// Unchanged means the metadata store already reflects this file's
	// current mtime; nothing was done.
	Unchanged Outcome = iota
	// Reindexed means the file's chunks and symbols were replaced.
	Reindexed
)

// progressInterval is how often repository-wide indexing reports progress,
// per §4.G ("a per-100-file progress event is emitted").
const progressInterval = 100

// Engine ties the metadata store, full-text index, scanner, and chunk/
// symbol extraction together into the indexing algorithm.
type Engine struct {
	root     string
	cfg      *config.Config
	metadata *store.MetadataStore
	fulltext *fulltext.Index
	ignore   *gitignore.Matcher
}

// New builds an Engine over an already-open metadata store and full-text
// index.
func New(root string, cfg *config.Config, metadata *store.MetadataStore, ft *fulltext.Index, ignore *gitignore.Matcher) *Engine {
	return &Engine{root: root, cfg: cfg, metadata: metadata, fulltext: ft, ignore: ignore}
}

// Scanner builds the Scanner this engine's config/ignore rules imply.
func (e *Engine) Scanner() *scanner.Scanner {
	return scanner.New(e.root, e.cfg, e.ignore)
}

// SetIgnore swaps the ignore rule set, e.g. after the watcher reloads
// .flashgrepignore. Callers must follow up with Reconcile to apply the new
// rules to already-indexed files.
func (e *Engine) SetIgnore(ignore *gitignore.Matcher) {
	e.ignore = ignore
}

// RemovePath deletes a single path's full-text documents and metadata row
// (chunks and symbols cascade), for when the watcher observes a file
// disappear between ticks.
func (e *Engine) RemovePath(ctx context.Context, relPath string) error {
	if err := e.fulltext.DeletePath(ctx, relPath); err != nil {
		return err
	}
	return e.metadata.DeleteFile(ctx, relPath)
}

// IndexFile runs the single-file indexing algorithm (§4.G steps 1-8) for a
// repository-relative path. w, if non-nil, batches the full-text write
// instead of committing immediately — used by repository-wide indexing so
// the writer commits exactly once.
func (e *Engine) IndexFile(ctx context.Context, relPath string, w *fulltext.Writer) (Outcome, error) {
	absPath := e.absPath(relPath)

	info, err := os.Stat(absPath)
	if err != nil {
		return Unchanged, ferrors.Wrap(ferrors.Io, "stat "+relPath, err)
	}
	currentMtime := info.ModTime().Unix()

	needs, err := e.metadata.NeedsReindex(ctx, relPath, currentMtime)
	if err != nil {
		return Unchanged, err
	}
	if !needs {
		return Unchanged, nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return Unchanged, ferrors.Wrap(ferrors.Io, "read "+relPath, err)
	}

	if err := e.fulltext.DeletePath(ctx, relPath); err != nil {
		return Unchanged, err
	}
	if err := e.metadata.DeleteFileChunks(ctx, relPath); err != nil {
		return Unchanged, err
	}
	if err := e.metadata.DeleteFileSymbols(ctx, relPath); err != nil {
		return Unchanged, err
	}

	if err := e.metadata.InsertFile(ctx, &store.File{
		Path:         relPath,
		Size:         info.Size(),
		LastModified: currentMtime,
		Language:     scanner.DetectLanguage(relPath),
	}); err != nil {
		return Unchanged, err
	}

	chunks := chunk.Split(string(content))
	storeChunks := make([]*store.Chunk, 0, len(chunks))
	var storeSymbols []*store.Symbol

	ownWriter := w == nil
	if ownWriter {
		w = e.fulltext.NewWriter()
	}

	for _, c := range chunks {
		storeChunks = append(storeChunks, &store.Chunk{
			FilePath:     relPath,
			StartLine:    c.StartLine,
			EndLine:      c.EndLine,
			ContentHash:  c.ContentHash,
			Content:      c.Content,
			LastModified: currentMtime,
		})
		storeSymbols = append(storeSymbols, symbols.Detect(relPath, c.Content, c.StartLine)...)

		if err := w.Add(fulltext.Document{
			FilePath:     relPath,
			Content:      c.Content,
			StartLine:    uint64(c.StartLine),
			EndLine:      uint64(c.EndLine),
			ContentHash:  c.ContentHash,
			LastModified: uint64(currentMtime),
		}); err != nil {
			return Unchanged, err
		}
	}

	if ownWriter {
		if err := w.Commit(); err != nil {
			return Unchanged, err
		}
	}

	if err := e.metadata.InsertChunksBatch(ctx, storeChunks); err != nil {
		return Unchanged, err
	}
	if err := e.metadata.InsertSymbolsBatch(ctx, storeSymbols); err != nil {
		return Unchanged, err
	}

	return Reindexed, nil
}

// Result summarizes a repository-wide indexing pass.
type Result struct {
	Indexed int
	Skipped int
	Failed  int
}

// IndexAll walks the scanner and reindexes every file it yields, matching
// async.IndexFunc so it can be driven directly by a BackgroundIndexer.
func (e *Engine) IndexAll(ctx context.Context, progress *async.IndexProgress) error {
	_, err := e.indexAll(ctx, progress)
	return err
}

// IndexRepository runs the same repository-wide pass synchronously and
// returns the (indexed, skipped, failed) counts §4.G's orchestration calls
// for, for callers that don't need a BackgroundIndexer.
func (e *Engine) IndexRepository(ctx context.Context) (Result, error) {
	return e.indexAll(ctx, nil)
}

// indexAll implements the repository-wide pass: per-file work (read, chunk,
// detect symbols) runs across a bounded worker pool, and commits the
// full-text writer exactly once at the end. The shared Writer and the
// metadata store serialize the actual writes.
func (e *Engine) indexAll(ctx context.Context, progress *async.IndexProgress) (Result, error) {
	if progress != nil {
		progress.SetStage(async.StageScanning, 0)
	}

	results, err := e.Scanner().Scan(ctx)
	if err != nil {
		return Result{}, ferrors.Wrap(ferrors.Io, "scan repository", err)
	}

	w := e.fulltext.NewWriter()
	var indexed, skipped, failed, processed int64

	if progress != nil {
		progress.SetStage(async.StageChunking, 0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for r := range results {
		r := r
		if r.Error != nil {
			atomic.AddInt64(&failed, 1)
			continue
		}

		g.Go(func() error {
			switch outcome, err := e.IndexFile(gctx, r.File.Path, w); {
			case err != nil:
				atomic.AddInt64(&failed, 1)
			case outcome == Reindexed:
				atomic.AddInt64(&indexed, 1)
			default:
				atomic.AddInt64(&skipped, 1)
			}

			n := atomic.AddInt64(&processed, 1)
			if progress != nil {
				progress.UpdateFiles(int(n))
				if n%progressInterval == 0 {
					progress.SetStage(async.StageIndexing, int(n))
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if err := w.Commit(); err != nil {
		return Result{}, err
	}

	if progress != nil {
		progress.SetStage(async.StageIndexing, int(processed))
	}

	return Result{Indexed: int(indexed), Skipped: int(skipped), Failed: int(failed)}, nil
}

// ClearIndex deletes every full-text document, commits, then truncates
// symbols, chunks, and files in that order inside one transaction.
func (e *Engine) ClearIndex(ctx context.Context) error {
	files, err := e.metadata.GetAllFiles(ctx)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := e.fulltext.DeletePath(ctx, f.Path); err != nil {
			return err
		}
	}
	return e.metadata.ClearAll(ctx)
}

// ReconcileResult reports how many files were dropped and kept by a
// Reconcile pass.
type ReconcileResult struct {
	Removed  int
	Retained int
}

// Reconcile re-applies the current scan predicates (ignore rules included)
// against every already-indexed file, dropping any that now fail them.
// Called after a .flashgrepignore edit (§4.I).
func (e *Engine) Reconcile(ctx context.Context) (ReconcileResult, error) {
	files, err := e.metadata.GetAllFiles(ctx)
	if err != nil {
		return ReconcileResult{}, err
	}

	s := e.Scanner()
	var result ReconcileResult

	for _, f := range files {
		if s.PathAllowed(f.Path) {
			result.Retained++
			continue
		}

		if err := e.fulltext.DeletePath(ctx, f.Path); err != nil {
			return result, err
		}
		if err := e.metadata.DeleteFile(ctx, f.Path); err != nil {
			return result, err
		}
		result.Removed++
	}

	return result, nil
}

func (e *Engine) absPath(relPath string) string {
	if e.root == "" {
		return relPath
	}
	return filepath.Join(e.root, relPath)
}
