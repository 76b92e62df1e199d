// Package lifecycle tracks the temporary files a resolution produces so
// they are removed no matter how the attempt ends.
package lifecycle

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
)

// Task collects paths created during one resolution. Cleanup removes
// every tracked path and never fails the caller; a path that is already
// gone is not an error.
type Task struct {
	mu     sync.Mutex
	paths  []string
	logger *slog.Logger
}

func NewTask(logger *slog.Logger) *Task {
	return &Task{logger: logger}
}

// Track registers a path for removal. Blank paths are ignored so
// callers can pass through optional outputs unconditionally.
func (t *Task) Track(path string) {
	if path == "" {
		return
	}
	t.mu.Lock()
	t.paths = append(t.paths, path)
	t.mu.Unlock()
}

// Cleanup deletes all tracked paths. Safe to call more than once and
// from defer; the tracked set is drained on the first call.
func (t *Task) Cleanup() {
	t.mu.Lock()
	paths := t.paths
	t.paths = nil
	t.mu.Unlock()

	for _, p := range paths {
		removeQuietly(p, t.logger)
	}
}

func removeQuietly(path string, logger *slog.Logger) {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return
	}
	if logger != nil {
		logger.Warn("failed to remove temporary file", "path", path, "error", err)
	}
}
