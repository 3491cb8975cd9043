package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const workDirPerm = 0o700

// WorkDir is the extraction directory of a single upload. It lives under a
// shared root and is removed, with everything in it, by Release.
type WorkDir struct {
	Path string
}

func NewWorkDir(root string) (*WorkDir, error) {
	if err := os.MkdirAll(root, workDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create work root: %w", err)
	}
	path := filepath.Join(root, uuid.NewString())
	if err := os.Mkdir(path, workDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	return &WorkDir{Path: path}, nil
}

// Release removes the work directory. Safe to call more than once.
func (w *WorkDir) Release() {
	if err := os.RemoveAll(w.Path); err != nil {
		slog.Error("Failed to remove work directory", "path", w.Path, "error", err)
	}
}

// PrepareWorkRoot creates root and clears out directories left behind by a
// previous process that did not shut down cleanly.
func PrepareWorkRoot(root string) error {
	if err := os.MkdirAll(root, workDirPerm); err != nil {
		return fmt.Errorf("failed to create work root: %w", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("failed to list work root: %w", err)
	}
	for _, entry := range entries {
		stale := filepath.Join(root, entry.Name())
		slog.Warn("Removing stale work directory", "path", stale)
		if err := os.RemoveAll(stale); err != nil {
			return fmt.Errorf("failed to remove stale work directory: %w", err)
		}
	}
	return nil
}

func RemoveWorkRoot(root string) error {
	return os.RemoveAll(root)
}
