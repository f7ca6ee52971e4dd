// Package watcher implements the File Watcher (§4.I): one process per
// repository that holds an exclusive lock, keeps the Index Engine's output
// in sync with the filesystem, and persists an Index State Snapshot so a
// restart can detect changes that happened while nothing was watching.
//
// The package implements a hybrid watching strategy:
//   - Primary: fsnotify for efficient event-based watching
//   - Fallback: polling, for environments where fsnotify fails (network
//     mounts, some container filesystems)
//
// Raw events are coalesced in a pending-changes map and drained by age on a
// fixed tick, per the debounce_ms config value, before being dispatched to
// the Index Engine. A dedicated path, .flashgrepignore, triggers an ignore
// rule reload and full reconciliation instead of a reindex.
package watcher
