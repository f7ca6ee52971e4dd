package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsEmptyRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchers.json")

	r, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, r.List())
}

func TestLoad_MalformedFileYieldsEmptyRegistryNoError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchers.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, r.List())
}

func TestUpsertThenGet_RoundTripsByCanonicalPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchers.json")
	repo := t.TempDir()

	r, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, r.Upsert(repo, 4242))

	entry, ok, err := r.Get(repo)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4242, entry.PID)

	_, err = os.Stat(path)
	assert.NoError(t, err, "upsert must persist to disk")
}

func TestUpsertThenReload_SurvivesProcessRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchers.json")
	repo := t.TempDir()

	r, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, r.Upsert(repo, 99))

	reloaded, err := Load(path)
	require.NoError(t, err)
	entry, ok, err := reloaded.Get(repo)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 99, entry.PID)
}

func TestRemove_DropsEntryAndReportsWhetherOneExisted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchers.json")
	repo := t.TempDir()

	r, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, r.Upsert(repo, 1))

	entry, existed, err := r.Remove(repo)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, 1, entry.PID)

	_, stillThere, err := r.Get(repo)
	require.NoError(t, err)
	assert.False(t, stillThere)

	_, existed, err = r.Remove(repo)
	require.NoError(t, err)
	assert.False(t, existed, "removing an absent entry is not an error")
}

func TestList_ReturnsAllEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchers.json")
	repoA := t.TempDir()
	repoB := t.TempDir()

	r, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, r.Upsert(repoA, 1))
	require.NoError(t, r.Upsert(repoB, 2))

	assert.Len(t, r.List(), 2)
}

func TestCleanupStale_RemovesDeadPIDsOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchers.json")
	alive := t.TempDir()
	dead := t.TempDir()

	r, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, r.Upsert(alive, os.Getpid()))
	require.NoError(t, r.Upsert(dead, 999999999))

	removed, err := r.CleanupStale()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok, err := r.Get(alive)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = r.Get(dead)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCleanupStale_NoopWhenNothingStale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchers.json")
	repo := t.TempDir()

	r, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, r.Upsert(repo, os.Getpid()))

	removed, err := r.CleanupStale()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestCanonicalKey_ResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(real, 0o755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(real, link))

	key, err := CanonicalKey(link)
	require.NoError(t, err)
	assert.Equal(t, real, key)
}
