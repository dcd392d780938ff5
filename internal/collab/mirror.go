package collab

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"
)

// FileMirror keeps a local file and a Buffer identical: content arriving from
// the room is written to the file, and edits made to the file are fed back into
// the buffer as user changes.
type FileMirror struct {
	path     string
	buffer   Buffer
	interval time.Duration

	mu   sync.Mutex
	last string
}

func NewFileMirror(path string, buf Buffer, interval time.Duration) *FileMirror {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &FileMirror{path: path, buffer: buf, interval: interval}
}

// Run mirrors until ctx is cancelled. An existing non-empty file wins over the
// buffer's initial content; otherwise the buffer is written out.
func (m *FileMirror) Run(ctx context.Context) error {
	unsubscribe := m.buffer.OnChange(func(content string, origin Origin) {
		if origin == OriginUser {
			return
		}
		if err := m.write(content); err != nil {
			slog.Error("mirror write failed", "path", m.path, "error", err)
		}
	})
	defer unsubscribe()

	data, err := os.ReadFile(m.path)
	switch {
	case err == nil && len(data) > 0:
		m.mu.Lock()
		m.last = string(data)
		m.mu.Unlock()
		m.buffer.SetContent(string(data), OriginUser)
	case err == nil || errors.Is(err, fs.ErrNotExist):
		if err := m.write(m.buffer.Content()); err != nil {
			return err
		}
	default:
		return err
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *FileMirror) poll() {
	m.mu.Lock()
	data, err := os.ReadFile(m.path)
	if err != nil {
		m.mu.Unlock()
		slog.Warn("mirror read failed", "path", m.path, "error", err)
		return
	}
	content := string(data)
	changed := content != m.last
	m.last = content
	m.mu.Unlock()

	if changed {
		m.buffer.SetContent(content, OriginUser)
	}
}

// write holds the lock across the write so poll never sees a half-written file.
func (m *FileMirror) write(content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = content
	return os.WriteFile(m.path, []byte(content), 0o644)
}
