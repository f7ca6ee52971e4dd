// Package flashpaths locates and names the persistent artifacts flashgrep
// keeps under a repository's .flashgrep directory.
package flashpaths

import (
	"os"
	"path/filepath"
)

// DirName is the name of the directory holding all flashgrep artifacts.
const DirName = ".flashgrep"

// Paths resolves the on-disk locations of every artifact rooted at a
// single repository directory.
type Paths struct {
	root string
}

// New returns a Paths rooted at repoRoot (the repository's top-level
// directory, not the .flashgrep directory itself).
func New(repoRoot string) *Paths {
	return &Paths{root: repoRoot}
}

// Root returns the repository root this Paths was constructed with.
func (p *Paths) Root() string { return p.root }

// Dir returns <repo>/.flashgrep.
func (p *Paths) Dir() string { return filepath.Join(p.root, DirName) }

// MetadataDB returns <repo>/.flashgrep/metadata.db.
func (p *Paths) MetadataDB() string { return filepath.Join(p.Dir(), "metadata.db") }

// TextIndexDir returns <repo>/.flashgrep/text_index.
func (p *Paths) TextIndexDir() string { return filepath.Join(p.Dir(), "text_index") }

// ConfigFile returns <repo>/.flashgrep/config.json.
func (p *Paths) ConfigFile() string { return filepath.Join(p.Dir(), "config.json") }

// LogsDir returns <repo>/.flashgrep/logs.
func (p *Paths) LogsDir() string { return filepath.Join(p.Dir(), "logs") }

// VectorsDir returns <repo>/.flashgrep/vectors (reserved, unused by this
// implementation — no vector/embedding component exists in this spec).
func (p *Paths) VectorsDir() string { return filepath.Join(p.Dir(), "vectors") }

// IndexStateFile returns <repo>/.flashgrep/index-state.json.
func (p *Paths) IndexStateFile() string { return filepath.Join(p.Dir(), "index-state.json") }

// WatcherLockFile returns <repo>/.flashgrep/watcher.lock.
func (p *Paths) WatcherLockFile() string { return filepath.Join(p.Dir(), "watcher.lock") }

// SocketFile returns <repo>/.flashgrep/mcp.sock.
func (p *Paths) SocketFile() string { return filepath.Join(p.Dir(), "mcp.sock") }

// IgnoreFile returns <repo>/.flashgrepignore.
func (p *Paths) IgnoreFile() string { return filepath.Join(p.root, ".flashgrepignore") }

// Exists reports whether the .flashgrep directory has already been created.
func (p *Paths) Exists() bool {
	info, err := os.Stat(p.Dir())
	return err == nil && info.IsDir()
}

// Create ensures the .flashgrep directory tree exists: the root directory
// itself plus text_index/, logs/, and vectors/.
func (p *Paths) Create() error {
	for _, dir := range []string{p.Dir(), p.TextIndexDir(), p.LogsDir(), p.VectorsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the entire .flashgrep directory tree.
func (p *Paths) Remove() error {
	return os.RemoveAll(p.Dir())
}

// FindRepoRoot walks upward from startDir looking for an existing
// .flashgrep directory or a .git directory, returning the first directory
// that contains either marker. If neither marker is found by the time the
// filesystem root is reached, startDir's absolute form is returned so
// callers can still initialize a fresh repository there.
func FindRepoRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		if dirExists(filepath.Join(dir, DirName)) || dirExists(filepath.Join(dir, ".git")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
