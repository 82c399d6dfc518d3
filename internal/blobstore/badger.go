package blobstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// chunkSize stays under the 1 MiB value limit badger enforces in memory.
const (
	chunkSize  = 512 << 10
	metaPrefix = "blob:meta:"
	dataPrefix = "blob:data:"
)

// Badger stores objects in an embedded BadgerDB split into fixed-size
// chunks. The meta key is written after every chunk, so an interrupted Put
// leaves no visible object.
type Badger struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLogger adapts slog.Logger to the badger.Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (bl *badgerLogger) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLogger) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLogger) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLogger) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBadger opens a BadgerDB at dir, creating the directory when needed.
// inMemory ignores dir and keeps everything in memory.
func OpenBadger(dir string, inMemory bool) (*Badger, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating badger dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}

	logger := slog.Default().With("component", "blobstore")
	opts.Logger = &badgerLogger{logger: logger}
	// Rasters are usually compressed already.
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	return &Badger{db: db, logger: logger}, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

type blobMeta struct {
	chunks uint64
	size   uint64
}

func metaKey(locator string) []byte { return []byte(metaPrefix + locator) }

func chunkKey(locator string, i uint64) []byte {
	return fmt.Appendf(nil, "%s%s:%08d", dataPrefix, locator, i)
}

func (b *Badger) readMeta(txn *badger.Txn, locator string) (blobMeta, error) {
	item, err := txn.Get(metaKey(locator))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return blobMeta{}, fmt.Errorf("%w: %s", ErrNotFound, locator)
	}
	if err != nil {
		return blobMeta{}, fmt.Errorf("read blob meta: %w", err)
	}
	var m blobMeta
	err = item.Value(func(val []byte) error {
		if len(val) != 16 {
			return fmt.Errorf("corrupt blob meta for %s", locator)
		}
		m.chunks = binary.BigEndian.Uint64(val[:8])
		m.size = binary.BigEndian.Uint64(val[8:])
		return nil
	})
	return m, err
}

func (b *Badger) Get(ctx context.Context, locator string, w io.Writer) (int64, error) {
	if err := ValidateLocator(locator); err != nil {
		return 0, err
	}

	var written int64
	err := b.db.View(func(txn *badger.Txn) error {
		m, err := b.readMeta(txn, locator)
		if err != nil {
			return err
		}
		for i := uint64(0); i < m.chunks; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := txn.Get(chunkKey(locator, i))
			if err != nil {
				return fmt.Errorf("read chunk %d: %w", i, err)
			}
			err = item.Value(func(val []byte) error {
				n, err := w.Write(val)
				written += int64(n)
				return err
			})
			if err != nil {
				return fmt.Errorf("copy chunk %d: %w", i, err)
			}
		}
		return nil
	})
	return written, err
}

func (b *Badger) Put(ctx context.Context, locator string, r io.Reader) (int64, error) {
	if err := ValidateLocator(locator); err != nil {
		return 0, err
	}
	if err := b.Delete(ctx, locator); err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	buf := make([]byte, chunkSize)
	var m blobMeta
	for {
		n, err := io.ReadFull(ctxReader{ctx: ctx, r: r}, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := wb.Set(chunkKey(locator, m.chunks), chunk); err != nil {
				return int64(m.size), fmt.Errorf("write chunk: %w", err)
			}
			m.chunks++
			m.size += uint64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return int64(m.size), fmt.Errorf("read upload: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return int64(m.size), fmt.Errorf("flush chunks: %w", err)
	}

	val := make([]byte, 16)
	binary.BigEndian.PutUint64(val[:8], m.chunks)
	binary.BigEndian.PutUint64(val[8:], m.size)
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(locator), val)
	})
	if err != nil {
		return int64(m.size), fmt.Errorf("write blob meta: %w", err)
	}
	b.logger.Debug("blob stored", "locator", locator, "chunks", m.chunks, "size", m.size)
	return int64(m.size), nil
}

func (b *Badger) Delete(_ context.Context, locator string) error {
	if err := ValidateLocator(locator); err != nil {
		return err
	}

	var m blobMeta
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		m, err = b.readMeta(txn, locator)
		return err
	})
	if err != nil {
		return err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	if err := wb.Delete(metaKey(locator)); err != nil {
		return fmt.Errorf("delete blob meta: %w", err)
	}
	for i := uint64(0); i < m.chunks; i++ {
		if err := wb.Delete(chunkKey(locator, i)); err != nil {
			return fmt.Errorf("delete chunk %d: %w", i, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
