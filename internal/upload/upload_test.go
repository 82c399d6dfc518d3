package upload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikpoptv/terrahost/internal/asset"
	"github.com/tikpoptv/terrahost/internal/blobstore"
	"github.com/tikpoptv/terrahost/internal/database"
)

// tiffBytes is a little-endian TIFF header followed by padding.
func tiffBytes(n int) []byte {
	b := []byte("II*\x00\x08\x00\x00\x00")
	return append(b, bytes.Repeat([]byte{0}, n)...)
}

func setup(t *testing.T, store blobstore.Store) (*Uploader, *database.DB) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.New(filepath.Join(dir, "upload.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	if store == nil {
		fs, err := blobstore.NewFS(filepath.Join(dir, "blobs"))
		require.NoError(t, err)
		store = fs
	}
	u := New(db, store, nil)
	u.now = func() time.Time { return time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC) }
	return u, db
}

func TestUploadStoresAsset(t *testing.T) {
	u, db := setup(t, nil)
	ctx := context.Background()
	data := tiffBytes(100 << 10)

	a, err := u.Upload(ctx, Request{FileName: "MCD18A1_20250605.tif", OwnerID: "user-1", Body: bytes.NewReader(data)})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-05", a.AcquiredOn)
	assert.Equal(t, int64(len(data)), a.SizeBytes)

	sum := sha256.Sum256(data)
	got, err := db.GetAsset(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.Uploaded(), got.State())
	assert.Equal(t, hex.EncodeToString(sum[:]), got.Checksum)
	assert.Equal(t, "user-1", got.OwnerID)

	var buf bytes.Buffer
	_, err = u.store.Get(ctx, got.StorageLocator, &buf)
	require.NoError(t, err)
	assert.Equal(t, data, buf.Bytes())
}

func TestUploadGate(t *testing.T) {
	u, db := setup(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		file string
		body []byte
		want error
	}{
		{"dashed date", "MCD18A1_2025-06-05.tif", tiffBytes(8), asset.ErrInvalidFileName},
		{"no date", "MCD18A1.tif", tiffBytes(8), asset.ErrInvalidFileName},
		{"future date", "MCD18A1_20250702.tif", tiffBytes(8), asset.ErrFutureDate},
		{"not a tiff", "MCD18A1_20250605.tif", []byte("PNG\r\n\x1a\n and more bytes"), asset.ErrNotTIFF},
		{"empty", "MCD18A1_20250605.tiff", nil, ErrEmptyFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := u.Upload(ctx, Request{FileName: tt.file, Body: bytes.NewReader(tt.body)})
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, Rejected(err))
		})
	}

	all, err := db.ListAssets(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

type brokenStore struct{ blobstore.Store }

func (brokenStore) Put(_ context.Context, _ string, r io.Reader) (int64, error) {
	n, _ := io.CopyN(io.Discard, r, 16)
	return n, errors.New("disk full")
}

func TestUploadStorageFailureMarksAssetFailed(t *testing.T) {
	u, db := setup(t, brokenStore{})
	ctx := context.Background()

	a, err := u.Upload(ctx, Request{FileName: "MCD18A1_20250605.TIF", Body: bytes.NewReader(tiffBytes(64))})
	require.Error(t, err)
	assert.False(t, Rejected(err))
	require.NotNil(t, a)

	got, err := db.GetAsset(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.StatusFailed, got.State().Status)
	assert.True(t, strings.Contains(got.FailureReason, "disk full"))
}
