// Package indexstate implements the Index State Snapshot (§4.H): an
// offline-change-detection record keyed by repository-relative path, used by
// the watcher's initial scan to decide what changed while no process was
// watching, without relying on filesystem events.
package indexstate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/flashgrep/flashgrep/internal/ferrors"
)

// Version is the current snapshot format version.
const Version = 1

// hashPrefixBytes is how much of a file's content feeds the content hash:
// enough to discriminate real edits cheaply without reading whole files on
// every startup scan.
const hashPrefixBytes = 8 * 1024

// FileMetadata is what the snapshot remembers about a single file.
type FileMetadata struct {
	Size        int64  `json:"size"`
	Mtime       int64  `json:"mtime"`
	ContentHash string `json:"content_hash"`
}

// snapshot is the on-disk JSON shape.
type snapshot struct {
	Version     int                     `json:"version"`
	LastUpdated int64                   `json:"last_updated"`
	Files       map[string]FileMetadata `json:"files"`
}

// State is a readers-writer-locked wrapper over a snapshot. Every read
// method takes a consistent point-in-time view; every mutation bumps
// LastUpdated.
type State struct {
	mu   sync.RWMutex
	data snapshot
	now  func() int64
}

// New returns an empty snapshot at the current version.
func New(now func() int64) *State {
	return &State{
		data: snapshot{Version: Version, LastUpdated: now(), Files: map[string]FileMetadata{}},
		now:  now,
	}
}

// Load reads a snapshot from path. A missing file yields a fresh empty
// snapshot rather than an error, matching the original implementation. A
// file that exists but fails to parse is treated the same way: per §7
// ("recreate snapshot on parse failure"), a corrupt snapshot is non-fatal
// and indexing falls back to a full rescan rather than aborting startup.
func Load(path string, now func() int64) (*State, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(now), nil
	}
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Io, "read index state", err)
	}

	var s snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return New(now), nil
	}
	if s.Files == nil {
		s.Files = map[string]FileMetadata{}
	}

	return &State{data: s, now: now}, nil
}

// Save writes the snapshot atomically: a temp file in the same directory,
// then a rename, so a crash mid-write never leaves a truncated snapshot on
// disk.
func (s *State) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ferrors.Wrap(ferrors.Io, "create index state dir", err)
	}

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return ferrors.Wrap(ferrors.Io, "marshal index state", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return ferrors.Wrap(ferrors.Io, "write index state temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return ferrors.Wrap(ferrors.Io, "rename index state temp file", err)
	}
	return nil
}

// Update records or replaces a file's metadata.
func (s *State) Update(relPath string, meta FileMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Files[relPath] = meta
	s.data.LastUpdated = s.now()
}

// Remove drops a file's entry, if present.
func (s *State) Remove(relPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.Files, relPath)
	s.data.LastUpdated = s.now()
}

// Get returns a file's stored metadata, if any.
func (s *State) Get(relPath string) (FileMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.data.Files[relPath]
	return m, ok
}

// Changed reports whether current differs from the stored metadata for
// relPath, treating an absent entry as changed.
func (s *State) Changed(relPath string, current FileMetadata) bool {
	stored, ok := s.Get(relPath)
	if !ok {
		return true
	}
	return stored != current
}

// Paths returns every path currently recorded in the snapshot.
func (s *State) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.data.Files))
	for p := range s.data.Files {
		paths = append(paths, p)
	}
	return paths
}

// Len returns the number of recorded files.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Files)
}

// Compact drops entries whose files no longer exist under root, returning
// the count removed.
func (s *State) Compact(root string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []string
	for p := range s.data.Files {
		if _, err := os.Stat(filepath.Join(root, p)); os.IsNotExist(err) {
			stale = append(stale, p)
		}
	}
	for _, p := range stale {
		delete(s.data.Files, p)
	}
	if len(stale) > 0 {
		s.data.LastUpdated = s.now()
	}
	return len(stale)
}

// HashPrefix computes the content hash §4.H specifies: SHA-256 over at most
// the first 8 KiB of a file's bytes. This is cheap to compute on every
// startup scan yet tolerates an mtime that lies (e.g. after a git checkout
// that doesn't touch mtime, or a clock skew), because it reads actual
// content rather than trusting the filesystem's timestamp.
func HashPrefix(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", ferrors.Wrap(ferrors.Io, "open "+path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.CopyN(h, f, hashPrefixBytes); err != nil && err != io.EOF {
		return "", ferrors.Wrap(ferrors.Io, "hash "+path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
