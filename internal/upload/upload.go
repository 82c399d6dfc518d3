// Package upload accepts raster files into the blob store and registers
// them as assets ready for processing.
package upload

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/tikpoptv/terrahost/internal/asset"
	"github.com/tikpoptv/terrahost/internal/blobstore"
	"github.com/tikpoptv/terrahost/internal/database"
)

// ErrEmptyFile is returned for a zero-byte upload.
var ErrEmptyFile = errors.New("uploaded file is empty")

// Rejected reports whether err means the file itself was refused, as
// opposed to a storage failure.
func Rejected(err error) bool {
	return errors.Is(err, asset.ErrInvalidFileName) ||
		errors.Is(err, asset.ErrFutureDate) ||
		errors.Is(err, asset.ErrNotTIFF) ||
		errors.Is(err, ErrEmptyFile)
}

type Uploader struct {
	db     *database.DB
	store  blobstore.Store
	logger *slog.Logger
	now    func() time.Time
}

func New(db *database.DB, store blobstore.Store, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{db: db, store: store, logger: logger, now: time.Now}
}

// Request is one file to upload.
type Request struct {
	FileName string
	OwnerID  string
	Body     io.Reader
}

// Upload gates the file name, checks the TIFF signature, then streams the
// body into the blob store. The asset row exists from the moment storage
// starts: it ends uploaded on success and failed otherwise. Files rejected
// by the gate never create a row.
func (u *Uploader) Upload(ctx context.Context, req Request) (*database.Asset, error) {
	name, err := asset.ParseFileName(req.FileName, u.now())
	if err != nil {
		return nil, err
	}

	body := bufio.NewReaderSize(req.Body, asset.SniffSize)
	head, err := body.Peek(asset.SniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if len(head) == 0 {
		return nil, ErrEmptyFile
	}
	hdr, err := asset.SniffTIFF(head)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, req.FileName)
	}
	if !hdr.Georeferenced && !hdr.GeoKeys {
		u.logger.Warn("upload has no GeoTIFF tags", "file", req.FileName)
	}

	a := &database.Asset{
		ID:         uuid.NewString(),
		OwnerID:    req.OwnerID,
		FileName:   name.Name,
		AcquiredOn: name.AcquiredOn.Format(time.DateOnly),
		Status:     string(asset.StatusUploading),
	}
	a.StorageLocator = blobstore.UploadLocator(a.ID, a.FileName)
	if err := u.db.CreateAsset(ctx, a); err != nil {
		return nil, err
	}

	sum := sha256.New()
	n, err := u.store.Put(ctx, a.StorageLocator, io.TeeReader(body, sum))
	if err != nil {
		u.markFailed(ctx, a, err)
		return a, fmt.Errorf("storing %s: %w", a.FileName, err)
	}

	checksum := hex.EncodeToString(sum.Sum(nil))
	if err := u.db.SetAssetContent(ctx, a.ID, checksum, n); err != nil {
		u.markFailed(ctx, a, err)
		return a, err
	}
	if err := u.db.SetAssetState(ctx, a.ID, asset.Uploaded()); err != nil {
		return a, err
	}
	a.Checksum, a.SizeBytes, a.Status = checksum, n, string(asset.StatusUploaded)

	u.logger.Info("asset uploaded", "asset_id", a.ID, "file", a.FileName, "size", humanize.Bytes(uint64(n)))
	return a, nil
}

func (u *Uploader) markFailed(ctx context.Context, a *database.Asset, cause error) {
	st := asset.Failed("", cause.Error())
	if err := u.db.SetAssetState(ctx, a.ID, st); err != nil {
		u.logger.Error("marking upload failed", "asset_id", a.ID, "error", err)
		return
	}
	a.Status, a.FailureReason = string(st.Status), st.Reason
}
