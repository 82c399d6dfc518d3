package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikpoptv/terrahost/internal/asset"
	"github.com/tikpoptv/terrahost/internal/database"
	"github.com/tikpoptv/terrahost/internal/tools"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Broadcast(assetID string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// setup returns a tracker over a fresh database holding one uploaded asset.
func setup(t *testing.T) (*Tracker, *database.DB, *recorder, string) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "t.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a := &database.Asset{FileName: "MCD18A1_20250605.tif", StorageLocator: "uploads/a/MCD18A1_20250605.tif", Status: string(asset.StatusUploaded)}
	require.NoError(t, db.CreateAsset(context.Background(), a))

	rec := &recorder{}
	return NewTracker(db, rec, nil), db, rec, a.ID
}

func TestCreateAndProgress(t *testing.T) {
	tr, db, rec, assetID := setup(t)
	ctx := context.Background()

	s, err := tr.Create(ctx, assetID, "subprocess")
	require.NoError(t, err)
	assert.Equal(t, database.SessionStarted, s.Status)
	assert.Equal(t, assetID, s.AssetID)

	tr.Update(ctx, assetID, s.ID, Progress(database.SessionProcessing, 40, "Extracting"))
	got, err := db.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress)
	assert.Equal(t, "Extracting", got.StepDescription)

	tr.Update(ctx, assetID, s.ID, Completion(1500*time.Millisecond))
	got, err = db.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, database.SessionCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.DurationMs)
	assert.Equal(t, int64(1500), *got.DurationMs)
	assert.NotNil(t, got.EndedAt)

	require.Len(t, rec.events, 3)
	assert.Equal(t, EventProgress, rec.events[0].Type)
	assert.Equal(t, assetID, rec.events[0].AssetID)
	assert.Equal(t, EventDone, rec.events[2].Type)
}

func TestTerminalSessionIgnoresLaterUpdates(t *testing.T) {
	tr, db, rec, assetID := setup(t)
	ctx := context.Background()

	s, err := tr.Create(ctx, assetID, "subprocess")
	require.NoError(t, err)
	tr.Update(ctx, assetID, s.ID, Progress(database.SessionProcessing, 50, "Saving"))
	tr.Update(ctx, assetID, s.ID, Failure("worker exited 2", time.Second))
	tr.Update(ctx, assetID, s.ID, Completion(time.Second))

	got, err := db.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, database.SessionFailed, got.Status)
	assert.Equal(t, 50, got.Progress)
	assert.Equal(t, "worker exited 2", got.ErrorMessage)
	assert.Len(t, rec.events, 3)
}

func TestUpdateSwallowsErrors(t *testing.T) {
	tr, db, _, _ := setup(t)
	require.NoError(t, db.Close())

	assert.NotPanics(t, func() {
		tr.Update(context.Background(), "a", "s", Progress(database.SessionProcessing, 10, "x"))
		tr.SetWorker(context.Background(), "s", "1.0", "subprocess")
		tr.AppendStep(context.Background(), "s", Step{Name: "retrieve", StartedAt: time.Now()})
	})
}

func TestAppendStepAndWorker(t *testing.T) {
	tr, db, rec, assetID := setup(t)
	ctx := context.Background()
	s, err := tr.Create(ctx, assetID, "subprocess")
	require.NoError(t, err)

	start := time.Now()
	tr.AppendStep(ctx, s.ID, Step{Name: "retrieve", Status: StepCompleted, StartedAt: start, EndedAt: start.Add(250 * time.Millisecond)})
	tr.AppendStep(ctx, s.ID, Step{Name: "extract", Status: StepFailed, Output: "boom", StartedAt: start})
	tr.SetWorker(ctx, s.ID, "2.1.0", "subprocess")

	steps, err := db.ListSteps(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "retrieve", steps[0].StepName)
	require.NotNil(t, steps[0].DurationMs)
	assert.Equal(t, int64(250), *steps[0].DurationMs)
	assert.Nil(t, steps[1].EndedAt)
	assert.Equal(t, "boom", steps[1].Output)

	got, err := db.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", got.WorkerVersion)

	tr.Log(assetID, s.ID, tools.OutputLine{Timestamp: time.Now(), Stream: "stderr", Line: "reading band 1"})
	last := rec.events[len(rec.events)-1]
	assert.Equal(t, EventLog, last.Type)
	require.NotNil(t, last.Line)
	assert.Equal(t, "reading band 1", last.Line.Line)
}
