package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	w, err := New(root, 50*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return w
}

func TestWatcherNudgesOnWrite(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644))

	select {
	case <-w.Nudges():
	case <-time.After(5 * time.Second):
		t.Fatal("no nudge after write")
	}
	assert.GreaterOrEqual(t, w.Stats().Events, 1)
}

func TestWatcherCoalescesBursts(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte{byte(i)}, 0o644))
	}

	select {
	case <-w.Nudges():
	case <-time.After(5 * time.Second):
		t.Fatal("no nudge after burst")
	}
	select {
	case <-w.Nudges():
		t.Fatal("burst produced more than one nudge")
	case <-time.After(300 * time.Millisecond):
	}
	assert.Equal(t, 1, w.Stats().Nudges)
}

func TestWatcherIgnoresVendoredDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "objects"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755))
	w := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "index"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "pkg", "index.js"), []byte("x"), 0o644))

	select {
	case <-w.Nudges():
		t.Fatal("ignored directories produced a nudge")
	case <-time.After(400 * time.Millisecond):
	}
	assert.Equal(t, 1, w.Stats().Dirs, "only the root is watched")
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	sub := filepath.Join(root, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))
	select {
	case <-w.Nudges():
	case <-time.After(5 * time.Second):
		t.Fatal("no nudge after mkdir")
	}

	require.Eventually(t, func() bool { return w.Stats().Dirs == 2 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "x.go"), []byte("package pkg\n"), 0o644))
	select {
	case <-w.Nudges():
	case <-time.After(5 * time.Second):
		t.Fatal("no nudge for file in new directory")
	}
}

func TestIgnored(t *testing.T) {
	w := &Watcher{root: "/proj"}
	tests := []struct {
		path string
		want bool
	}{
		{"/proj/main.go", false},
		{"/proj/src/app.py", false},
		{"/proj/.git/HEAD", true},
		{"/proj/web/node_modules/x.js", true},
		{"/proj/.vibe-assist/context.md", true},
		{"/elsewhere/file", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, w.ignored(tt.path))
		})
	}
}

func TestNewRequiresRoot(t *testing.T) {
	_, err := New("", 0, nil)
	assert.Error(t, err)
}
