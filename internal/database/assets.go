package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tikpoptv/terrahost/internal/asset"
)

const assetColumns = `id, owner_id, file_name, acquired_on, storage_locator, checksum, size_bytes,
	status, session_id, failure_reason, created_at, updated_at`

func scanAsset(row interface{ Scan(...any) error }, a *Asset) error {
	return row.Scan(&a.ID, &a.OwnerID, &a.FileName, &a.AcquiredOn, &a.StorageLocator, &a.Checksum, &a.SizeBytes,
		&a.Status, &a.SessionID, &a.FailureReason, &a.CreatedAt, &a.UpdatedAt)
}

// CreateAsset inserts a fully formed asset row. An empty ID is filled in.
func (db *DB) CreateAsset(ctx context.Context, a *Asset) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = string(asset.StatusPending)
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	_, err := db.ExecContext(ctx,
		`INSERT INTO assets (`+assetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OwnerID, a.FileName, a.AcquiredOn, a.StorageLocator, a.Checksum, a.SizeBytes,
		a.Status, a.SessionID, a.FailureReason, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (db *DB) GetAsset(ctx context.Context, id string) (*Asset, error) {
	a := &Asset{}
	err := scanAsset(db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id), a)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return a, nil
}

// ListAssets returns assets newest first. An empty status lists all of them.
func (db *DB) ListAssets(ctx context.Context, status asset.Status) ([]Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		var a Asset
		if err := scanAsset(rows, &a); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// SetAssetState writes the tagged state into the status columns.
func (db *DB) SetAssetState(ctx context.Context, id string, st asset.State) error {
	res, err := db.ExecContext(ctx,
		`UPDATE assets SET status = ?, session_id = ?, failure_reason = ?, updated_at = ? WHERE id = ?`,
		string(st.Status), st.SessionID, st.Reason, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update asset state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update asset state: asset %s not found", id)
	}
	return nil
}

// TransitionAssetState moves an asset to next only when it is currently in
// status from. It reports whether the row changed.
func (db *DB) TransitionAssetState(ctx context.Context, id string, from asset.Status, next asset.State) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE assets SET status = ?, session_id = ?, failure_reason = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(next.Status), next.SessionID, next.Reason, time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("transition asset state: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// SetAssetContent records the stored object once an upload finishes.
func (db *DB) SetAssetContent(ctx context.Context, id, checksum string, size int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE assets SET checksum = ?, size_bytes = ?, updated_at = ? WHERE id = ?`,
		checksum, size, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update asset content: %w", err)
	}
	return nil
}

func (db *DB) CountAssetsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM assets GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count assets: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan asset count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
