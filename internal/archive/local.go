package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalArchive writes raw pages under a directory on the local filesystem.
// It is the development-time substitute for the bucket-backed archive.
type LocalArchive struct {
	root string
}

// NewLocalArchive ensures the root directory exists.
func NewLocalArchive(root string) (*LocalArchive, error) {
	if root == "" {
		return nil, fmt.Errorf("archive root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	return &LocalArchive{root: root}, nil
}

// Archive writes the page to root/key and returns the file path. Keys are
// cleaned so they cannot escape the root.
func (a *LocalArchive) Archive(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := filepath.Clean("/" + key)
	path := filepath.Join(a.root, strings.TrimPrefix(clean, "/"))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write archive file: %w", err)
	}
	return path, nil
}
