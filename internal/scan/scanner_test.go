package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	t0 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	writeFile(t, filepath.Join(root, "2024-01", "2024-01-15.1.log"), "a", t0)
	writeFile(t, filepath.Join(root, "2024-02", "2024-02-01.log"), "bb", t0.Add(time.Hour))
	writeFile(t, filepath.Join(root, "2024-02", "notes.txt"), "x", t0)
	writeFile(t, filepath.Join(root, "2024-02", "server.log"), "x", t0)
	writeFile(t, filepath.Join(root, "misc", "2024-02-01.log"), "x", t0)
	writeFile(t, filepath.Join(root, "2024-01-15.log"), "x", t0)

	files, err := New(root).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, filepath.Join(root, "2024-01", "2024-01-15.1.log"), files[0].Path)
	assert.Equal(t, int64(1), files[0].Size)
	assert.Equal(t, t0.UnixMilli(), files[0].Mtime)
	assert.Equal(t, int64(2), files[1].Size)

	latest, ok := Latest(files)
	require.True(t, ok)
	assert.Equal(t, files[1].Path, latest.Path)
}

func TestDiscoverMissingRoot(t *testing.T) {
	files, err := New(filepath.Join(t.TempDir(), "nope")).Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)

	_, ok := Latest(files)
	assert.False(t, ok)
}
