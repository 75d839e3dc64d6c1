package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const debounce = 50 * time.Millisecond

func startWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	w, err := New(root, debounce)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { w.Stop() })
	return w
}

func waitSignal(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("no change signal")
	}
}

func assertQuiet(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Changes():
		t.Fatal("unexpected change signal")
	case <-time.After(4 * debounce):
	}
}

func TestWatcherSignalsLogWrites(t *testing.T) {
	root := t.TempDir()
	month := filepath.Join(root, "2024-01")
	require.NoError(t, os.Mkdir(month, 0o755))
	w := startWatcher(t, root)

	path := filepath.Join(month, "2024-01-15.1.log")
	for i := 0; i < 5; i++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		require.NoError(t, err)
		_, err = f.WriteString("[2024-01-15 10:00:00][INFO] line\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	waitSignal(t, w)
	// the burst collapses into one signal
	assertQuiet(t, w)
}

func TestWatcherFollowsNewMonth(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	month := filepath.Join(root, "2024-02")
	require.NoError(t, os.Mkdir(month, 0o755))
	waitSignal(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(month, "2024-02-01.1.log"), []byte("x\n"), 0o644))
	waitSignal(t, w)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	month := filepath.Join(root, "2024-01")
	require.NoError(t, os.Mkdir(month, 0o755))
	w := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(month, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README"), []byte("x"), 0o644))
	assertQuiet(t, w)
}
