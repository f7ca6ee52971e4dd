package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/gofrs/flock"

	"github.com/flashgrep/flashgrep/internal/ferrors"
)

// lockFileName is the file §6 reserves for the watcher lock, inside
// <repo>/.flashgrep/.
const lockFileName = "watcher.lock"

// Lock is the single-writer-per-repository guard (§4.I, testable property
// 10): an OS file lock backs the actual mutual exclusion, and the file's
// text content (a decimal PID) lets a later process tell a stale lock —
// left behind by a process that died without releasing it — from one held
// by something still alive.
type Lock struct {
	path string
	fl   *flock.Flock
}

// NewLock returns a Lock for the repository rooted at flashgrepDir (the
// <repo>/.flashgrep directory).
func NewLock(flashgrepDir string) *Lock {
	path := filepath.Join(flashgrepDir, lockFileName)
	return &Lock{path: path, fl: flock.New(path)}
}

// Acquire takes the exclusive lock, reclaiming it first if the PID recorded
// in an existing lock file is no longer alive. Returns a FileWatcher-kind
// error if another live process holds it.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return ferrors.Wrap(ferrors.FileWatcher, "create lock directory", err)
	}

	if pid, ok := readPID(l.path); ok && !processAlive(pid) {
		_ = os.Remove(l.path)
	}

	locked, err := l.fl.TryLock()
	if err != nil {
		return ferrors.Wrap(ferrors.FileWatcher, "acquire watcher lock", err)
	}
	if !locked {
		return ferrors.Wrap(ferrors.FileWatcher, "already running", errAlreadyRunning)
	}

	if err := os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = l.fl.Unlock()
		return ferrors.Wrap(ferrors.FileWatcher, "write watcher lock pid", err)
	}
	return nil
}

// Release drops the lock and removes the lock file. Safe to call more than
// once.
func (l *Lock) Release() error {
	_ = os.Remove(l.path)
	if err := l.fl.Unlock(); err != nil {
		return ferrors.Wrap(ferrors.FileWatcher, "release watcher lock", err)
	}
	return nil
}

// Path returns the lock file's path.
func (l *Lock) Path() string {
	return l.path
}

var errAlreadyRunning = errors.New("a watcher is already running for this repository")

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, false
	}
	return pid, true
}

// processAlive checks whether a process with the given PID is still
// running by sending it the null signal; a nil error means the process
// exists and is reachable.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
