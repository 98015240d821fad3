package fs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/builder/internal/adapters/fs"
	"go.trai.ch/builder/internal/core/domain"
)

func ref(id string) domain.TargetRef {
	return domain.TargetRef{ID: id, Backend: domain.DefaultBackend}
}

func TestLocalStore_Mtime(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "out.txt", epoch)
	writeFile(t, tmpDir, "dir/a", epoch.Add(time.Minute))
	writeFile(t, tmpDir, "dir/b", epoch.Add(2*time.Minute))

	store := fs.NewLocalStore(tmpDir, fs.NewWalker())

	mtime, ok, err := store.Mtime(ref("out.txt"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mtime.Equal(epoch))

	mtime, ok, err = store.Mtime(ref("dir"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mtime.Equal(epoch.Add(2*time.Minute)))

	_, ok, err = store.Mtime(ref("missing.txt"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStore_BulkMtime(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "a", epoch)
	writeFile(t, tmpDir, "b", epoch.Add(time.Hour))

	store := fs.NewLocalStore(tmpDir, fs.NewWalker())
	stats, err := store.BulkMtime([]domain.TargetRef{ref("a"), ref("b"), ref("c")})
	require.NoError(t, err)

	require.Len(t, stats, 2)
	assert.True(t, stats["a"].Exists)
	assert.True(t, stats["b"].Mtime.Equal(epoch.Add(time.Hour)))
	_, found := stats["c"]
	assert.False(t, found)
}

func TestGlobStore_Mtime(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "logs/2015-01-01.log", epoch)
	writeFile(t, tmpDir, "logs/2015-01-02.log", epoch.Add(24*time.Hour))

	store := fs.NewGlobStore(tmpDir)

	mtime, ok, err := store.Mtime(ref("logs/*.log"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mtime.Equal(epoch.Add(24*time.Hour)))

	_, ok, err = store.Mtime(ref("logs/*.gz"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = store.Mtime(ref("["))
	require.Error(t, err)
}

func TestGlobStore_BulkMtime(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "in/a.csv", epoch)

	store := fs.NewGlobStore(tmpDir)
	stats, err := store.BulkMtime([]domain.TargetRef{ref("in/*.csv"), ref("in/*.json")})
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.TargetStat{"in/*.csv": {Exists: true, Mtime: stats["in/*.csv"].Mtime}}, stats)
	assert.True(t, stats["in/*.csv"].Mtime.Equal(epoch))
}
