package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FS stores objects as files below a root directory.
type FS struct {
	root string
}

func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating blob root: %w", err)
	}
	return &FS{root: root}, nil
}

func (s *FS) path(locator string) (string, error) {
	if err := ValidateLocator(locator); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(locator)), nil
}

func (s *FS) Get(ctx context.Context, locator string, w io.Writer) (int64, error) {
	p, err := s.path(locator)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, locator)
	}
	if err != nil {
		return 0, fmt.Errorf("open blob: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(w, ctxReader{ctx: ctx, r: f})
	if err != nil {
		return n, fmt.Errorf("read blob %s: %w", locator, err)
	}
	return n, nil
}

// Put writes to a temporary file next to the target and renames it into
// place, so readers never see a partial object.
func (s *FS) Put(ctx context.Context, locator string, r io.Reader) (int64, error) {
	p, err := s.path(locator)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return 0, fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return 0, fmt.Errorf("create blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, ctxReader{ctx: ctx, r: r})
	if err != nil {
		tmp.Close()
		return n, fmt.Errorf("write blob %s: %w", locator, err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return n, fmt.Errorf("commit blob: %w", err)
	}
	return n, nil
}

func (s *FS) Delete(_ context.Context, locator string) error {
	p, err := s.path(locator)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, locator)
	}
	if err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func (s *FS) Close() error { return nil }
