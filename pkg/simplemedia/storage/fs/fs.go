package fs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Backend is a filesystem implementation of the simplemedia.ContentStore interface
type Backend struct {
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Directory holding {hash}.{ext} blobs and staging files
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: config.BaseDir}, nil
}

// BaseDir returns the blob directory
func (b *Backend) BaseDir() string {
	return b.baseDir
}

func (b *Backend) blobPath(blob simplemedia.Blob) (string, error) {
	if err := blob.Validate(); err != nil {
		return "", err
	}
	return filepath.Join(b.baseDir, blob.Name()), nil
}

// Exists reports whether the blob file is present
func (b *Backend) Exists(ctx context.Context, blob simplemedia.Blob) (bool, error) {
	p, err := b.blobPath(blob)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to stat blob: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// Write installs the staged file under the blob name unless a file with that
// name already exists. The staged file is consumed either way.
func (b *Backend) Write(ctx context.Context, tempPath string, blob simplemedia.Blob) (bool, error) {
	dst, err := b.blobPath(blob)
	if err != nil {
		return false, err
	}

	// link fails with EEXIST when another writer got there first, which
	// makes the install atomic without a lock.
	err = os.Link(tempPath, dst)
	switch {
	case err == nil:
		discard(tempPath)
		return true, nil
	case errors.Is(err, os.ErrExist):
		discard(tempPath)
		return false, nil
	}

	// Filesystems without hard links.
	if _, statErr := os.Stat(dst); statErr == nil {
		discard(tempPath)
		return false, nil
	}
	if err := os.Rename(tempPath, dst); err != nil {
		return false, fmt.Errorf("failed to install blob: %w", err)
	}
	return true, nil
}

// Path returns the blob's file path
func (b *Backend) Path(ctx context.Context, blob simplemedia.Blob) (string, error) {
	return b.blobPath(blob)
}

// Delete removes the blob file. A missing file is not an error.
func (b *Backend) Delete(ctx context.Context, blob simplemedia.Blob) error {
	p, err := b.blobPath(blob)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// TempFile creates a staging file next to the blobs so installation is a
// same-filesystem link or rename.
func (b *Backend) TempFile(ctx context.Context) (*os.File, error) {
	f, err := os.CreateTemp(b.baseDir, "temp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	return f, nil
}

func discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to remove staged file", "path", path, "error", err)
	}
}
