package indexstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t int64) func() int64 {
	return func() int64 { return t }
}

func TestNew_StartsEmptyAtCurrentVersion(t *testing.T) {
	s := New(fixedClock(100))
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, Version, s.data.Version)
}

func TestLoad_MissingFileYieldsEmptySnapshot(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "index-state.json"), fixedClock(1))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestLoad_CorruptFileRecreatesSnapshotRatherThanErroring(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index-state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := Load(path, fixedClock(1))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestSaveThenLoad_PreservesFilesAndVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index-state.json")

	s := New(fixedClock(10))
	s.Update("a.go", FileMetadata{Size: 12, Mtime: 1000, ContentHash: "abc"})
	require.NoError(t, s.Save(path))

	loaded, err := Load(path, fixedClock(20))
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
	meta, ok := loaded.Get("a.go")
	require.True(t, ok)
	assert.Equal(t, FileMetadata{Size: 12, Mtime: 1000, ContentHash: "abc"}, meta)
}

func TestSave_WritesNoLeftoverTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index-state.json")

	s := New(fixedClock(1))
	s.Update("a.go", FileMetadata{Size: 1, Mtime: 1, ContentHash: "x"})
	require.NoError(t, s.Save(path))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestUpdate_BumpsLastUpdated(t *testing.T) {
	clock := int64(1)
	s := New(func() int64 { return clock })
	clock = 2
	s.Update("a.go", FileMetadata{Size: 1, Mtime: 1, ContentHash: "x"})
	assert.Equal(t, int64(2), s.data.LastUpdated)
}

func TestRemove_DropsEntry(t *testing.T) {
	s := New(fixedClock(1))
	s.Update("a.go", FileMetadata{Size: 1, Mtime: 1, ContentHash: "x"})
	s.Remove("a.go")
	_, ok := s.Get("a.go")
	assert.False(t, ok)
}

func TestChanged_TrueWhenAbsentOrDifferent(t *testing.T) {
	s := New(fixedClock(1))
	meta := FileMetadata{Size: 10, Mtime: 5, ContentHash: "h1"}

	assert.True(t, s.Changed("a.go", meta), "absent entry is always changed")

	s.Update("a.go", meta)
	assert.False(t, s.Changed("a.go", meta))
	assert.True(t, s.Changed("a.go", FileMetadata{Size: 11, Mtime: 5, ContentHash: "h1"}))
}

func TestCompact_RemovesEntriesForDeletedFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "exists.go"), []byte("package main\n"), 0o644))

	s := New(fixedClock(1))
	s.Update("exists.go", FileMetadata{Size: 1, Mtime: 1, ContentHash: "x"})
	s.Update("gone.go", FileMetadata{Size: 1, Mtime: 1, ContentHash: "y"})

	removed := s.Compact(root)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())
	_, ok := s.Get("exists.go")
	assert.True(t, ok)
}

func TestHashPrefix_StableForIdenticalContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.go")
	b := filepath.Join(dir, "b.go")
	require.NoError(t, os.WriteFile(a, []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("package main\n"), 0o644))

	hashA, err := HashPrefix(a)
	require.NoError(t, err)
	hashB, err := HashPrefix(b)
	require.NoError(t, err)
	assert.Equal(t, hashA, hashB)
}

func TestHashPrefix_DiffersForDifferentContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.go")
	b := filepath.Join(dir, "b.go")
	require.NoError(t, os.WriteFile(a, []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("package other\n"), 0o644))

	hashA, err := HashPrefix(a)
	require.NoError(t, err)
	hashB, err := HashPrefix(b)
	require.NoError(t, err)
	assert.NotEqual(t, hashA, hashB)
}

func TestHashPrefix_OnlyReadsFirst8KiB(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.go")
	b := filepath.Join(dir, "b.go")

	prefix := make([]byte, hashPrefixBytes)
	for i := range prefix {
		prefix[i] = 'x'
	}
	require.NoError(t, os.WriteFile(a, append(append([]byte{}, prefix...), []byte("TAIL-A")...), 0o644))
	require.NoError(t, os.WriteFile(b, append(append([]byte{}, prefix...), []byte("TAIL-B")...), 0o644))

	hashA, err := HashPrefix(a)
	require.NoError(t, err)
	hashB, err := HashPrefix(b)
	require.NoError(t, err)
	assert.Equal(t, hashA, hashB, "bytes past the prefix window must not affect the hash")
}
