package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (db *DB) CreateReport(ctx context.Context, r *Report) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`INSERT INTO reports (id, asset_id, title, format, content, file_path, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AssetID, r.Title, r.Format, r.Content, r.FilePath, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (db *DB) GetReport(ctx context.Context, id string) (*Report, error) {
	r := &Report{}
	err := db.QueryRowContext(ctx,
		`SELECT id, asset_id, title, format, content, file_path, created_at FROM reports WHERE id = ?`, id,
	).Scan(&r.ID, &r.AssetID, &r.Title, &r.Format, &r.Content, &r.FilePath, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

func (db *DB) ListReports(ctx context.Context, assetID string) ([]Report, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, asset_id, title, format, file_path, created_at FROM reports WHERE asset_id = ? ORDER BY created_at DESC`,
		assetID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.AssetID, &r.Title, &r.Format, &r.FilePath, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}
