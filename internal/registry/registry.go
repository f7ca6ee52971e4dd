// Package registry implements the Watcher Registry (§4.J): a per-user
// record of which repositories have an active watcher process, consulted
// by the `start`/`stop`/`watchers` operator commands. It is informational
// only — the watcher lock (internal/watcher.Lock), not this file, is what
// actually enforces single-writer-per-repository.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/flashgrep/flashgrep/internal/ferrors"
)

// fileName is the registry's location within the OS per-user data
// directory, per §6: "flashgrep/watchers.json".
const fileName = "watchers.json"

// Entry records one watcher process for one repository.
type Entry struct {
	RepoRoot  string `json:"repo_root"`
	PID       int    `json:"pid"`
	StartedAt int64  `json:"started_at"`
}

// data is the on-disk JSON shape, keyed by canonicalized repository path.
type data struct {
	Entries map[string]Entry `json:"entries"`
}

// Registry is a loaded, locked view of the registry file.
type Registry struct {
	mu   sync.Mutex
	path string
	data data
}

// DefaultPath returns the registry's path in the OS per-user data
// directory, falling back to the system temp directory if that cannot be
// determined (mirroring the original's `dirs::data_local_dir` fallback).
func DefaultPath() string {
	dir, err := os.UserCacheDir() // %LocalAppData% on Windows
	switch runtime.GOOS {
	case "windows":
	case "darwin":
		dir, err = os.UserConfigDir() // ~/Library/Application Support
	default:
		dir, err = os.Getenv("XDG_DATA_HOME"), nil
		if dir == "" {
			var home string
			home, err = os.UserHomeDir()
			dir = filepath.Join(home, ".local", "share")
		}
	}
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "flashgrep", fileName)
}

// Load reads the registry at path. A missing or malformed file yields an
// empty registry rather than an error — the registry is advisory, and a
// corrupt file must never block `start`/`stop`.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path, data: data{Entries: map[string]Entry{}}}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Io, "read watcher registry", err)
	}

	var parsed data
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return r, nil
	}
	if parsed.Entries != nil {
		r.data = parsed
	}
	return r, nil
}

// LoadDefault loads the registry at DefaultPath.
func LoadDefault() (*Registry, error) {
	return Load(DefaultPath())
}

// save writes the registry file directly (no atomic rename): the registry
// is advisory bookkeeping, not a correctness-critical index, so a
// non-atomic write matches the original implementation's behavior.
func (r *Registry) save() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return ferrors.Wrap(ferrors.Io, "create watcher registry dir", err)
	}
	raw, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return ferrors.Wrap(ferrors.Io, "marshal watcher registry", err)
	}
	if err := os.WriteFile(r.path, raw, 0o644); err != nil {
		return ferrors.Wrap(ferrors.Io, "write watcher registry", err)
	}
	return nil
}

// CanonicalKey resolves repoRoot to the key entries are stored under:
// its canonical (symlink-resolved, absolute) path, with a Windows
// `\\?\` verbatim prefix stripped if present.
func CanonicalKey(repoRoot string) (string, error) {
	canonical, err := filepath.EvalSymlinks(repoRoot)
	if err != nil {
		return "", ferrors.Wrap(ferrors.Io, "canonicalize repository path", err)
	}
	abs, err := filepath.Abs(canonical)
	if err != nil {
		return "", ferrors.Wrap(ferrors.Io, "resolve absolute repository path", err)
	}
	return stripWindowsVerbatimPrefix(abs), nil
}

func stripWindowsVerbatimPrefix(path string) string {
	const uncPrefix = `\\?\UNC\`
	const verbatimPrefix = `\\?\`
	switch {
	case len(path) >= len(uncPrefix) && path[:len(uncPrefix)] == uncPrefix:
		return `\\` + path[len(uncPrefix):]
	case len(path) >= len(verbatimPrefix) && path[:len(verbatimPrefix)] == verbatimPrefix:
		return path[len(verbatimPrefix):]
	default:
		return path
	}
}

// Upsert records or replaces the entry for repoRoot, then saves.
func (r *Registry) Upsert(repoRoot string, pid int) error {
	key, err := CanonicalKey(repoRoot)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.Entries[key] = Entry{RepoRoot: key, PID: pid, StartedAt: time.Now().Unix()}
	return r.save()
}

// Remove drops repoRoot's entry, if any, then saves. Returns the removed
// entry and whether one existed.
func (r *Registry) Remove(repoRoot string) (Entry, bool, error) {
	key, err := CanonicalKey(repoRoot)
	if err != nil {
		return Entry{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.data.Entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	delete(r.data.Entries, key)
	return entry, true, r.save()
}

// Get returns repoRoot's entry, if any.
func (r *Registry) Get(repoRoot string) (Entry, bool, error) {
	key, err := CanonicalKey(repoRoot)
	if err != nil {
		return Entry{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.data.Entries[key]
	return entry, ok, nil
}

// List returns every recorded entry, in no particular order.
func (r *Registry) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.data.Entries))
	for _, e := range r.data.Entries {
		entries = append(entries, e)
	}
	return entries
}

// CleanupStale removes every entry whose PID is no longer alive, saving
// once if anything was removed, and returns the count removed.
func (r *Registry) CleanupStale() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, entry := range r.data.Entries {
		if !processAlive(entry.PID) {
			delete(r.data.Entries, key)
			removed++
		}
	}
	if removed > 0 {
		return removed, r.save()
	}
	return removed, nil
}

// processAlive probes liveness by sending the null signal (signal 0) to
// pid.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// Terminate sends the process its termination signal (SIGTERM on Unix).
// Platform-specific termination (`taskkill` on Windows) belongs in a
// build-tagged variant if flashgrep is ported there; this implementation
// targets the Unix-like platforms the rest of the pack targets.
func Terminate(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return ferrors.Wrap(ferrors.Task, "find process", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return ferrors.Wrap(ferrors.Task, "terminate process", err)
	}
	return nil
}
