// Package retrieval copies asset bytes from the blob store into per-session
// scratch space and removes them again once processing ends.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tikpoptv/terrahost/internal/blobstore"
)

// Fetcher is the retrieval adapter. It does not retry.
type Fetcher struct {
	store   blobstore.Store
	scratch string
}

func NewFetcher(store blobstore.Store, scratchDir string) *Fetcher {
	return &Fetcher{store: store, scratch: scratchDir}
}

// Fetch copies the object at locator to <scratch>/<sessionID>/<fileName>,
// creating the directories as needed. The returned ScratchFile is non-nil
// even on error so the caller can always clean up a partial download.
func (f *Fetcher) Fetch(ctx context.Context, sessionID, locator, fileName string) (*ScratchFile, error) {
	if sessionID == "" || filepath.Base(sessionID) != sessionID {
		return &ScratchFile{}, fmt.Errorf("invalid session id %q", sessionID)
	}
	dir := filepath.Join(f.scratch, sessionID)
	sf := &ScratchFile{Dir: dir, Path: filepath.Join(dir, filepath.Base(fileName))}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return sf, fmt.Errorf("create scratch dir: %w", err)
	}

	out, err := os.Create(sf.Path)
	if err != nil {
		return sf, fmt.Errorf("create scratch file: %w", err)
	}
	n, err := f.store.Get(ctx, locator, out)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return sf, fmt.Errorf("download %s: %w", locator, err)
	}
	sf.Size = n
	return sf, nil
}

// ScratchFile is a local copy of an asset. Remove deletes it and its
// session directory exactly once.
type ScratchFile struct {
	Dir  string
	Path string
	Size int64

	once    sync.Once
	removed bool
}

// Remove deletes the scratch file and its directory. Later calls do
// nothing. Failures are logged, never returned.
func (s *ScratchFile) Remove(logger *slog.Logger) {
	if s == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	s.once.Do(func() {
		s.removed = true
		if s.Path == "" {
			return
		}
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("removing scratch file", "path", s.Path, "error", err)
		}
		if err := os.Remove(s.Dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("removing scratch dir", "path", s.Dir, "error", err)
		}
	})
}

// Removed reports whether Remove has run.
func (s *ScratchFile) Removed() bool {
	return s.removed
}
