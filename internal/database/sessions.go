package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sessionColumns = `id, asset_id, status, progress, step_description, error_message, worker_version, method,
	started_at, ended_at, duration_ms, updated_at`

func scanSession(row interface{ Scan(...any) error }, s *ProcessingSession) error {
	var endedAt sql.NullTime
	var duration sql.NullInt64
	err := row.Scan(&s.ID, &s.AssetID, &s.Status, &s.Progress, &s.StepDescription, &s.ErrorMessage,
		&s.WorkerVersion, &s.Method, &s.StartedAt, &endedAt, &duration, &s.UpdatedAt)
	if err != nil {
		return err
	}
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}
	if duration.Valid {
		s.DurationMs = &duration.Int64
	}
	return nil
}

// CreateSession inserts a new session in the started state at 0%.
func (db *DB) CreateSession(ctx context.Context, s *ProcessingSession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = SessionStarted
	}
	now := time.Now().UTC()
	s.StartedAt, s.UpdatedAt = now, now

	_, err := db.ExecContext(ctx,
		`INSERT INTO processing_sessions (id, asset_id, status, progress, step_description, method, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.AssetID, s.Status, s.Progress, s.StepDescription, s.Method, s.StartedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SessionUpdate lists the fields to change. Nil fields are left alone.
type SessionUpdate struct {
	Status          string
	Progress        *int
	StepDescription *string
	ErrorMessage    *string
	DurationMs      *int64
}

// UpdateSession applies u unless the session already reached a terminal
// status. Moving into a terminal status stamps ended_at. It reports whether
// the row changed.
func (db *DB) UpdateSession(ctx context.Context, id string, u SessionUpdate) (bool, error) {
	now := time.Now().UTC()
	sets := []string{"updated_at = ?"}
	args := []any{now}

	if u.Status != "" {
		sets = append(sets, "status = ?")
		args = append(args, u.Status)
		if IsTerminalSessionStatus(u.Status) {
			sets = append(sets, "ended_at = ?")
			args = append(args, now)
		}
	}
	if u.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, clampProgress(*u.Progress))
	}
	if u.StepDescription != nil {
		sets = append(sets, "step_description = ?")
		args = append(args, *u.StepDescription)
	}
	if u.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *u.ErrorMessage)
	}
	if u.DurationMs != nil {
		sets = append(sets, "duration_ms = ?")
		args = append(args, *u.DurationMs)
	}

	args = append(args, id, SessionCompleted, SessionFailed)
	res, err := db.ExecContext(ctx,
		`UPDATE processing_sessions SET `+strings.Join(sets, ", ")+` WHERE id = ? AND status NOT IN (?, ?)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("update session: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func (db *DB) SetSessionWorker(ctx context.Context, id, version, method string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE processing_sessions SET worker_version = ?, method = ?, updated_at = ? WHERE id = ?`,
		version, method, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update session worker: %w", err)
	}
	return nil
}

func (db *DB) GetSession(ctx context.Context, id string) (*ProcessingSession, error) {
	s := &ProcessingSession{}
	err := scanSession(db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM processing_sessions WHERE id = ?`, id), s)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// LatestSession returns the most recently started session of an asset, or
// nil when it has none.
func (db *DB) LatestSession(ctx context.Context, assetID string) (*ProcessingSession, error) {
	s := &ProcessingSession{}
	err := scanSession(db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM processing_sessions WHERE asset_id = ?
		 ORDER BY started_at DESC, rowid DESC LIMIT 1`, assetID), s)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest session: %w", err)
	}
	return s, nil
}

// LatestCompletedSession returns the newest completed session of an asset.
func (db *DB) LatestCompletedSession(ctx context.Context, assetID string) (*ProcessingSession, error) {
	s := &ProcessingSession{}
	err := scanSession(db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM processing_sessions WHERE asset_id = ? AND status = ?
		 ORDER BY started_at DESC, rowid DESC LIMIT 1`, assetID, SessionCompleted), s)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest completed session: %w", err)
	}
	return s, nil
}

func (db *DB) ListSessions(ctx context.Context, assetID string) ([]ProcessingSession, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM processing_sessions WHERE asset_id = ? ORDER BY started_at DESC, rowid DESC`,
		assetID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []ProcessingSession
	for rows.Next() {
		var s ProcessingSession
		if err := scanSession(rows, &s); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (db *DB) CountSessions(ctx context.Context, assetID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processing_sessions WHERE asset_id = ?`, assetID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// --- Steps ---

// CreateStep appends a step to the session log. StepOrder is assigned from
// the current number of steps when left at zero.
func (db *DB) CreateStep(ctx context.Context, st *ProcessingStep) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.StartedAt.IsZero() {
		st.StartedAt = time.Now().UTC()
	}

	var endedAt any
	if st.EndedAt != nil {
		endedAt = st.EndedAt.UTC()
	}
	var duration any
	if st.DurationMs != nil {
		duration = *st.DurationMs
	}

	if st.StepOrder == 0 {
		err := db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(step_order), 0) + 1 FROM processing_steps WHERE session_id = ?`, st.SessionID,
		).Scan(&st.StepOrder)
		if err != nil {
			return fmt.Errorf("next step order: %w", err)
		}
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO processing_steps (id, session_id, step_order, step_name, description, status, output, started_at, ended_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.SessionID, st.StepOrder, st.StepName, st.Description, st.Status, st.Output,
		st.StartedAt.UTC(), endedAt, duration,
	)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

func (db *DB) ListSteps(ctx context.Context, sessionID string) ([]ProcessingStep, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, session_id, step_order, step_name, description, status, output, started_at, ended_at, duration_ms
		 FROM processing_steps WHERE session_id = ? ORDER BY step_order`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []ProcessingStep
	for rows.Next() {
		var st ProcessingStep
		var endedAt sql.NullTime
		var duration sql.NullInt64
		if err := rows.Scan(&st.ID, &st.SessionID, &st.StepOrder, &st.StepName, &st.Description, &st.Status,
			&st.Output, &st.StartedAt, &endedAt, &duration); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		if endedAt.Valid {
			st.EndedAt = &endedAt.Time
		}
		if duration.Valid {
			st.DurationMs = &duration.Int64
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}
