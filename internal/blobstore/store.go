// Package blobstore holds raster bytes outside the database. Objects are
// addressed by locator, a slash-separated relative path.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned when no object exists at a locator.
	ErrNotFound = errors.New("blob not found")

	// ErrInvalidLocator is returned for empty, absolute or escaping locators.
	ErrInvalidLocator = errors.New("invalid blob locator")
)

// Store is the blob-store contract used by upload and retrieval.
type Store interface {
	// Get streams the object at locator into w and returns the bytes copied.
	Get(ctx context.Context, locator string, w io.Writer) (int64, error)
	// Put creates the object if absent and writes r into it.
	Put(ctx context.Context, locator string, r io.Reader) (int64, error)
	Delete(ctx context.Context, locator string) error
	Close() error
}

// ValidateLocator rejects locators that could escape the store root.
func ValidateLocator(locator string) error {
	if locator == "" {
		return fmt.Errorf("%w: empty", ErrInvalidLocator)
	}
	if strings.ContainsAny(locator, "\\\x00\n\r") {
		return fmt.Errorf("%w: %q contains forbidden characters", ErrInvalidLocator, locator)
	}
	if strings.HasPrefix(locator, "/") {
		return fmt.Errorf("%w: %q is absolute", ErrInvalidLocator, locator)
	}
	for _, part := range strings.Split(locator, "/") {
		if part == ".." || part == "." || part == "" {
			return fmt.Errorf("%w: %q is not a clean relative path", ErrInvalidLocator, locator)
		}
	}
	if path.Clean(locator) != locator {
		return fmt.Errorf("%w: %q is not a clean relative path", ErrInvalidLocator, locator)
	}
	return nil
}

// UploadLocator is where an uploaded asset's bytes live.
func UploadLocator(assetID, fileName string) string {
	return "uploads/" + assetID + "/" + path.Base(fileName)
}

// ctxReader stops a copy once ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Open builds a store for the given backend name: "fs" or "badger".
func Open(backend, root string) (Store, error) {
	switch backend {
	case "", "fs":
		return NewFS(root)
	case "badger":
		return OpenBadger(root, false)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
