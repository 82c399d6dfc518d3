package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikpoptv/terrahost/internal/database"
)

func TestParseSubscription(t *testing.T) {
	sub, err := ParseSubscription([]byte(`{"asset_id": "a1", "session_id": "s1"}`))
	require.NoError(t, err)
	assert.Equal(t, Subscription{AssetID: "a1", SessionID: "s1"}, sub)

	for _, msg := range []string{`{}`, `{"session_id": "s1"}`, `[1]`, `nope`} {
		_, err := ParseSubscription([]byte(msg))
		assert.ErrorIs(t, err, ErrInvalidSubscription, msg)
	}
}

func TestSubscriptionMatches(t *testing.T) {
	asset := Subscription{AssetID: "a1"}
	pinned := Subscription{AssetID: "a1", SessionID: "s1"}

	assert.True(t, asset.Matches(Event{AssetID: "a1", SessionID: "s2"}))
	assert.False(t, asset.Matches(Event{AssetID: "a2", SessionID: "s1"}))
	assert.True(t, pinned.Matches(Event{AssetID: "a1", SessionID: "s1"}))
	assert.False(t, pinned.Matches(Event{AssetID: "a1", SessionID: "s2"}))
}

func TestSnapshot(t *testing.T) {
	now := time.Now().UTC()
	s := &database.ProcessingSession{ID: "s1", AssetID: "a1", Status: database.SessionProcessing, Progress: 40, StepDescription: "Downloaded", UpdatedAt: now}
	ev := Snapshot(s)
	assert.Equal(t, EventProgress, ev.Type)
	require.NotNil(t, ev.Progress)
	assert.Equal(t, 40, *ev.Progress)
	assert.Equal(t, "Downloaded", ev.Step)
	assert.Equal(t, now, ev.Timestamp)

	s.Status, s.ErrorMessage = database.SessionFailed, "worker exited 1"
	ev = Snapshot(s)
	assert.Equal(t, EventDone, ev.Type)
	assert.Equal(t, "worker exited 1", ev.Error)
}
