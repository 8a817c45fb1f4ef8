package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	mderrors "go-mdview/internal/errors"
	"go-mdview/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDebounce = 150 * time.Millisecond

func startWatcher(t *testing.T, path string) *Watcher {
	t.Helper()

	w, err := New(path, testDebounce, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to start
	time.Sleep(50 * time.Millisecond)
	return w
}

// countSignals drains the signal channel for d.
func countSignals(w *Watcher, d time.Duration) int {
	n := 0
	deadline := time.After(d)
	for {
		select {
		case _, ok := <-w.Changes():
			if !ok {
				return n
			}
			n++
		case <-deadline:
			return n
		}
	}
}

func TestNewSetupErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := New(filepath.Join(dir, "missing-dir", "doc.md"), testDebounce, nil)
	require.Error(t, err)
	assert.True(t, mderrors.Is(err, mderrors.KindWatchSetup))
	assert.True(t, mderrors.Fatal(err))

	_, err = New(dir, testDebounce, nil)
	require.Error(t, err)
	assert.True(t, mderrors.Is(err, mderrors.KindWatchSetup))
}

func TestNewAllowsMissingFile(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "later.md"), testDebounce, nil)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(w.Path()))
	require.NoError(t, w.fsw.Close())
}

func TestBurstCoalescesIntoOneSignal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	w := startWatcher(t, path)

	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("a%d", i)), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, 1, countSignals(w, 3*testDebounce))
}

func TestSeparateEditsSignalSeparately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	w := startWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("ab"), 0o644))
	assert.Equal(t, 1, countSignals(w, 3*testDebounce))

	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	assert.Equal(t, 1, countSignals(w, 3*testDebounce))
}

func TestAtomicReplaceIsFollowed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	w := startWatcher(t, path)

	tmp := filepath.Join(dir, ".doc.md.swp")
	require.NoError(t, os.WriteFile(tmp, []byte("replaced"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	assert.Equal(t, 1, countSignals(w, 3*testDebounce))

	// Still following the new inode.
	require.NoError(t, os.WriteFile(path, []byte("replaced again"), 0o644))
	assert.Equal(t, 1, countSignals(w, 3*testDebounce))
}

func TestMissingFileIsIgnoredUntilItReturns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	w := startWatcher(t, path)

	require.NoError(t, os.Remove(path))
	assert.Equal(t, 0, countSignals(w, 3*testDebounce))

	require.NoError(t, os.WriteFile(path, []byte("back"), 0o644))
	assert.Equal(t, 1, countSignals(w, 3*testDebounce))
}

func TestOtherFilesAreIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	w := startWatcher(t, path)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.md"), []byte("x"), 0o644))
	assert.Equal(t, 0, countSignals(w, 3*testDebounce))
}

func TestRunOnceAndCloseOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	w, err := New(path, testDebounce, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	assert.ErrorIs(t, w.Run(ctx), ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-done)

	_, ok := <-w.Changes()
	assert.False(t, ok, "signal stream closes when the watcher stops")
}

func TestCloseUnusedWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")

	w, err := New(path, testDebounce, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, ok := <-w.Changes()
	assert.False(t, ok)
	assert.ErrorIs(t, w.Run(context.Background()), ErrAlreadyRunning)
}
