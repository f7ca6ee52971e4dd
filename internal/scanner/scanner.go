// Package scanner discovers indexable files in a repository (§4.D).
//
// A path is yielded only if it passes, in order: it is not inside
// .flashgrep/; no path component matches a configured ignored-directory
// name; it is not matched by the .flashgrepignore rule set; its extension
// is in the configured allow-list; its size is within max_file_size; and
// its content is not binary.
package scanner

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/flashgrep/flashgrep/internal/config"
	"github.com/flashgrep/flashgrep/internal/gitignore"
)

const flashgrepDirName = ".flashgrep"

// FileInfo describes a single file that passed every scan predicate.
type FileInfo struct {
	Path     string // repository-relative, slash-separated
	AbsPath  string
	Size     int64
	ModTime  time.Time
	Language string
}

// ScanResult is a single item streamed from Scan: either a discovered file
// or a non-fatal walk error.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// Scanner walks a repository applying the scan predicates.
type Scanner struct {
	root   string
	cfg    *config.Config
	ignore *gitignore.Matcher
}

// New builds a Scanner rooted at root, using cfg's allow-list/ignored-dirs
// and ignore for .flashgrepignore matching. ignore may be nil.
func New(root string, cfg *config.Config, ignore *gitignore.Matcher) *Scanner {
	return &Scanner{root: root, cfg: cfg, ignore: ignore}
}

// Scan streams every file under the repository root that passes all scan
// predicates. The returned channel is closed when the walk completes.
func (s *Scanner) Scan(ctx context.Context) (<-chan ScanResult, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "scan", Path: s.root, Err: fs.ErrInvalid}
	}

	workers := runtime.NumCPU()
	results := make(chan ScanResult, workers*10)

	go func() {
		defer close(results)
		s.walk(ctx, results)
	}()

	return results, nil
}

func (s *Scanner) walk(ctx context.Context, results chan<- ScanResult) {
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if walkErr != nil {
			return nil
		}

		relPath, err := filepath.Rel(s.root, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if s.dirIgnored(relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if !s.PathAllowed(relPath) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}

		ok, err := s.ContentAllowed(path, fi.Size())
		if err != nil || !ok {
			return nil
		}

		file := &FileInfo{
			Path:     relPath,
			AbsPath:  path,
			Size:     fi.Size(),
			ModTime:  fi.ModTime(),
			Language: DetectLanguage(relPath),
		}

		select {
		case results <- ScanResult{File: file}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- ScanResult{Error: err}:
		default:
		}
	}
}

// dirIgnored reports whether a directory must not be descended into:
// predicates 1 and 2 (the .flashgrep/ exclusion and ignored-directory
// names) never require reading file content, so they alone decide whether
// to prune a subtree.
func (s *Scanner) dirIgnored(relPath string) bool {
	if s.inFlashgrepDir(relPath) {
		return true
	}
	return s.cfg.IsIgnoredDirName(filepath.Base(relPath))
}

func (s *Scanner) inFlashgrepDir(relPath string) bool {
	return relPath == flashgrepDirName || strings.HasPrefix(relPath, flashgrepDirName+"/")
}

// PathAllowed applies predicates 1-4 (no I/O beyond the ignore rule set):
// not under .flashgrep/, no ignored-directory path component, not matched
// by .flashgrepignore, extension in the allow-list. The file watcher uses
// this alone to cheaply discard events before touching the filesystem.
func (s *Scanner) PathAllowed(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	if s.inFlashgrepDir(relPath) {
		return false
	}
	for _, part := range strings.Split(relPath, "/") {
		if s.cfg.IsIgnoredDirName(part) {
			return false
		}
	}
	if s.ignore != nil && s.ignore.Match(relPath, false) {
		return false
	}
	return s.cfg.HasExtension(filepath.Ext(relPath))
}

// ContentAllowed applies predicates 5-6: size within max_file_size, and
// content that is not binary. It reads the full file, per §4.D's binary
// heuristic ("contains NUL byte or fails UTF-8 decoding on the full
// content").
func (s *Scanner) ContentAllowed(absPath string, size int64) (bool, error) {
	maxSize := s.cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = config.DefaultMaxFileSize
	}
	if size > maxSize {
		return false, nil
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return false, err
	}
	if isBinary(data) {
		return false, nil
	}
	return true, nil
}

func isBinary(data []byte) bool {
	if bytes.IndexByte(data, 0) >= 0 {
		return true
	}
	return !utf8.Valid(data)
}
