package collab

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestFileMirror(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.py")
	buf := NewMemoryBuffer("print('template')\n")

	var mu sync.Mutex
	var origins []Origin
	buf.OnChange(func(_ string, o Origin) {
		mu.Lock()
		origins = append(origins, o)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewFileMirror(path, buf, 10*time.Millisecond).Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// A missing file is created from the buffer.
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && string(data) == "print('template')\n"
	}, time.Second, 5*time.Millisecond)

	// Remote content is written out.
	buf.SetContent("print('remote')\n", OriginRemote)
	assert.Equal(t, "print('remote')\n", readFile(t, path))

	// Local file edits come back as user changes.
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte("print('local')\n"), 0o644))
	require.NoError(t, os.Rename(tmp, path))
	assert.Eventually(t, func() bool { return buf.Content() == "print('local')\n" }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Origin{OriginRemote, OriginUser}, origins)
}

func TestFileMirror_ExistingFileWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.rb")
	require.NoError(t, os.WriteFile(path, []byte("puts 'from disk'\n"), 0o644))
	buf := NewMemoryBuffer("puts 'template'\n")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewFileMirror(path, buf, 10*time.Millisecond).Run(ctx) }()

	assert.Eventually(t, func() bool { return buf.Content() == "puts 'from disk'\n" }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
