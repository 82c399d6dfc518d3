// Package session tracks processing sessions: the per-attempt record and
// step log that status pollers read.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tikpoptv/terrahost/internal/database"
	"github.com/tikpoptv/terrahost/internal/tools"
)

// Event types sent to a Broadcaster.
const (
	EventProgress = "progress"
	EventLog      = "log"
	EventDone     = "done"
)

// Event is a live update about one asset's processing.
type Event struct {
	Type      string            `json:"type"`
	AssetID   string            `json:"asset_id"`
	SessionID string            `json:"session_id"`
	Status    string            `json:"status,omitempty"`
	Progress  *int              `json:"progress,omitempty"`
	Step      string            `json:"step,omitempty"`
	Error     string            `json:"error,omitempty"`
	Line      *tools.OutputLine `json:"line,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Broadcaster sends events to live subscribers of an asset.
type Broadcaster interface {
	Broadcast(assetID string, ev Event)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, Event) {}

// Tracker writes session and step rows. Apart from Create, its methods
// never fail: write errors are logged and dropped so bookkeeping problems
// cannot abort a pipeline run.
type Tracker struct {
	db          *database.DB
	broadcaster Broadcaster
	logger      *slog.Logger
}

func NewTracker(db *database.DB, broadcaster Broadcaster, logger *slog.Logger) *Tracker {
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{db: db, broadcaster: broadcaster, logger: logger}
}

// Create starts a new session for an asset at 0%.
func (t *Tracker) Create(ctx context.Context, assetID, method string) (*database.ProcessingSession, error) {
	s := &database.ProcessingSession{
		AssetID:         assetID,
		Status:          database.SessionStarted,
		StepDescription: "Session created",
		Method:          method,
	}
	if err := t.db.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	zero := 0
	t.broadcaster.Broadcast(assetID, Event{
		Type: EventProgress, AssetID: assetID, SessionID: s.ID,
		Status: s.Status, Progress: &zero, Step: s.StepDescription, Timestamp: s.StartedAt,
	})
	return s, nil
}

// Progress builds an update moving the session to status at pct percent.
func Progress(status string, pct int, step string) database.SessionUpdate {
	return database.SessionUpdate{Status: status, Progress: &pct, StepDescription: &step}
}

// Completion builds the final successful update.
func Completion(elapsed time.Duration) database.SessionUpdate {
	u := Progress(database.SessionCompleted, 100, "Processing completed")
	ms := elapsed.Milliseconds()
	u.DurationMs = &ms
	return u
}

// Failure builds the final failed update. Progress is left where it was.
func Failure(msg string, elapsed time.Duration) database.SessionUpdate {
	step := "Processing failed"
	ms := elapsed.Milliseconds()
	return database.SessionUpdate{Status: database.SessionFailed, StepDescription: &step, ErrorMessage: &msg, DurationMs: &ms}
}

// Update applies u to a session and broadcasts the change.
func (t *Tracker) Update(ctx context.Context, assetID, sessionID string, u database.SessionUpdate) {
	changed, err := t.db.UpdateSession(ctx, sessionID, u)
	if err != nil {
		t.logger.Warn("session update failed", "asset_id", assetID, "session_id", sessionID, "error", err)
	} else if !changed {
		t.logger.Warn("session update ignored", "asset_id", assetID, "session_id", sessionID, "status", u.Status)
		return
	}

	ev := Event{Type: EventProgress, AssetID: assetID, SessionID: sessionID, Status: u.Status, Progress: u.Progress, Timestamp: time.Now().UTC()}
	if u.StepDescription != nil {
		ev.Step = *u.StepDescription
	}
	if u.ErrorMessage != nil {
		ev.Error = *u.ErrorMessage
	}
	if database.IsTerminalSessionStatus(u.Status) {
		ev.Type = EventDone
	}
	t.broadcaster.Broadcast(assetID, ev)
}

// SetWorker records the worker version and invocation method.
func (t *Tracker) SetWorker(ctx context.Context, sessionID, version, method string) {
	if err := t.db.SetSessionWorker(ctx, sessionID, version, method); err != nil {
		t.logger.Warn("session worker update failed", "session_id", sessionID, "error", err)
	}
}

// Step is one entry of a session's step log.
type Step struct {
	Name        string
	Description string
	Status      string
	Output      string
	StartedAt   time.Time
	EndedAt     time.Time
}

// Step statuses.
const (
	StepCompleted = "completed"
	StepFailed    = "failed"
	StepSkipped   = "skipped"
)

// AppendStep adds a step to the session log.
func (t *Tracker) AppendStep(ctx context.Context, sessionID string, st Step) {
	row := &database.ProcessingStep{
		SessionID:   sessionID,
		StepName:    st.Name,
		Description: st.Description,
		Status:      st.Status,
		Output:      st.Output,
		StartedAt:   st.StartedAt.UTC(),
	}
	if !st.EndedAt.IsZero() {
		ended := st.EndedAt.UTC()
		d := st.EndedAt.Sub(st.StartedAt).Milliseconds()
		row.EndedAt = &ended
		row.DurationMs = &d
	}
	if err := t.db.CreateStep(ctx, row); err != nil {
		t.logger.Warn("step log write failed", "session_id", sessionID, "step", st.Name, "error", err)
	}
}

// Log forwards a worker output line to subscribers.
func (t *Tracker) Log(assetID, sessionID string, line tools.OutputLine) {
	t.broadcaster.Broadcast(assetID, Event{
		Type: EventLog, AssetID: assetID, SessionID: sessionID, Line: &line, Timestamp: line.Timestamp,
	})
}
