package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	"github.com/flashgrep/flashgrep/internal/ferrors"
)

// MetadataStore persists files, chunks, and symbols in SQLite.
type MetadataStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Open creates or opens the metadata database at path, applying the
// pragmas §4.B requires (WAL journaling, synchronous=NORMAL, ~100MiB page
// cache, ~256MiB mmap, in-memory temp store, foreign keys on).
func Open(path string) (*MetadataStore, error) {
	if path != "" && path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "create metadata dir", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "open metadata database", err)
	}

	// A single writer connection avoids SQLITE_BUSY under WAL; readers share
	// it too since modernc.org/sqlite serializes access per *sql.DB anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -102400",   // ~100 MiB, negative = KiB
		"PRAGMA mmap_size = 268435456",  // 256 MiB
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, ferrors.Wrap(ferrors.Database, "set pragma "+p, err)
		}
	}

	s := &MetadataStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MetadataStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		size INTEGER NOT NULL,
		last_modified INTEGER NOT NULL,
		language TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_path TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		content_hash TEXT NOT NULL,
		content TEXT NOT NULL,
		last_modified INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_file_path ON chunks(file_path);

	CREATE TABLE IF NOT EXISTS symbols (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_path TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
		name TEXT NOT NULL,
		line_number INTEGER NOT NULL,
		symbol_type TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
	CREATE INDEX IF NOT EXISTS idx_symbols_file_path ON symbols(file_path);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return ferrors.Wrap(ferrors.Database, "init schema", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *MetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return ferrors.Wrap(ferrors.Database, "close metadata database", err)
	}
	return nil
}

// InsertFile upserts a single file row.
func (s *MetadataStore) InsertFile(ctx context.Context, f *File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files(path, size, last_modified, language) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET size=excluded.size,
			last_modified=excluded.last_modified, language=excluded.language`,
		f.Path, f.Size, f.LastModified, f.Language)
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "insert file "+f.Path, err)
	}
	return nil
}

// InsertChunksBatch inserts all chunks inside a single transaction.
func (s *MetadataStore) InsertChunksBatch(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "begin chunk batch", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks(file_path, start_line, end_line, content_hash, content, last_modified)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "prepare chunk insert", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.FilePath, c.StartLine, c.EndLine, c.ContentHash, c.Content, c.LastModified); err != nil {
			return ferrors.Wrap(ferrors.Database, "insert chunk "+c.FilePath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ferrors.Wrap(ferrors.Database, "commit chunk batch", err)
	}
	return nil
}

// InsertSymbolsBatch inserts all symbols inside a single transaction.
func (s *MetadataStore) InsertSymbolsBatch(ctx context.Context, symbols []*Symbol) error {
	if len(symbols) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "begin symbol batch", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols(file_path, name, line_number, symbol_type)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "prepare symbol insert", err)
	}
	defer stmt.Close()

	for _, sym := range symbols {
		if _, err := stmt.ExecContext(ctx, sym.FilePath, sym.Name, sym.LineNumber, sym.SymbolType); err != nil {
			return ferrors.Wrap(ferrors.Database, "insert symbol "+sym.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ferrors.Wrap(ferrors.Database, "commit symbol batch", err)
	}
	return nil
}

// DeleteFileChunks removes every chunk row for path.
func (s *MetadataStore) DeleteFileChunks(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, path); err != nil {
		return ferrors.Wrap(ferrors.Database, "delete chunks for "+path, err)
	}
	return nil
}

// DeleteFileSymbols removes every symbol row for path.
func (s *MetadataStore) DeleteFileSymbols(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM symbols WHERE file_path = ?`, path); err != nil {
		return ferrors.Wrap(ferrors.Database, "delete symbols for "+path, err)
	}
	return nil
}

// DeleteFile removes the file row itself (cascading to chunks/symbols).
func (s *MetadataStore) DeleteFile(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return ferrors.Wrap(ferrors.Database, "delete file "+path, err)
	}
	return nil
}

// DeleteFilesBulk removes many file rows (and their chunks/symbols) in one transaction.
func (s *MetadataStore) DeleteFilesBulk(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "begin bulk delete", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM files WHERE path = ?`)
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "prepare bulk delete", err)
	}
	defer stmt.Close()

	for _, p := range paths {
		if _, err := stmt.ExecContext(ctx, p); err != nil {
			return ferrors.Wrap(ferrors.Database, "delete file "+p, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ferrors.Wrap(ferrors.Database, "commit bulk delete", err)
	}
	return nil
}

// NeedsReindex reports whether path is unknown or its stored mtime differs
// from currentMtime.
func (s *MetadataStore) NeedsReindex(ctx context.Context, path string, currentMtime int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stored int64
	err := s.db.QueryRowContext(ctx, `SELECT last_modified FROM files WHERE path = ?`, path).Scan(&stored)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, ferrors.Wrap(ferrors.Database, "needs_reindex "+path, err)
	}
	return stored != currentMtime, nil
}

// FindSymbolsByName returns every symbol whose name matches exactly.
func (s *MetadataStore) FindSymbolsByName(ctx context.Context, name string) ([]*Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path, name, line_number, symbol_type FROM symbols WHERE name = ?
		ORDER BY file_path, line_number`, name)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "find symbols by name "+name, err)
	}
	defer rows.Close()

	var out []*Symbol
	for rows.Next() {
		sym := &Symbol{}
		if err := rows.Scan(&sym.FilePath, &sym.Name, &sym.LineNumber, &sym.SymbolType); err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan symbol", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// GetAllFiles returns every tracked file row, ordered by path.
func (s *MetadataStore) GetAllFiles(ctx context.Context) ([]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT path, size, last_modified, language FROM files ORDER BY path`)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "get all files", err)
	}
	defer rows.Close()

	var out []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.Path, &f.Size, &f.LastModified, &f.Language); err != nil {
			return nil, ferrors.Wrap(ferrors.Database, "scan file", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetStats summarizes table sizes.
func (s *MetadataStore) GetStats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM files`).
		Scan(&stats.FileCount, &stats.TotalSizeBytes); err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "get file stats", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&stats.ChunkCount); err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "get chunk stats", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbols`).Scan(&stats.SymbolCount); err != nil {
		return nil, ferrors.Wrap(ferrors.Database, "get symbol stats", err)
	}
	return stats, nil
}

// ClearAll empties symbols, chunks, and files in that order inside one transaction.
func (s *MetadataStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ferrors.Wrap(ferrors.Database, "begin clear_all", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{`DELETE FROM symbols`, `DELETE FROM chunks`, `DELETE FROM files`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return ferrors.Wrap(ferrors.Database, "clear_all: "+stmt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ferrors.Wrap(ferrors.Database, "commit clear_all", err)
	}
	return nil
}

// Vacuum reclaims free space by rebuilding the database file.
func (s *MetadataStore) Vacuum(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return ferrors.Wrap(ferrors.Database, "vacuum", err)
	}
	return nil
}

// Analyze refreshes the query planner's table statistics.
func (s *MetadataStore) Analyze(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `ANALYZE`); err != nil {
		return ferrors.Wrap(ferrors.Database, "analyze", err)
	}
	return nil
}
