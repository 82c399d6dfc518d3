package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tikpoptv/terrahost/internal/database"
)

// ErrInvalidSubscription is returned for subscribe messages without an
// asset id or with undecodable JSON.
var ErrInvalidSubscription = errors.New("invalid subscription")

// Subscription selects the events a live client receives. An empty
// SessionID follows every session of the asset.
type Subscription struct {
	AssetID   string `json:"asset_id"`
	SessionID string `json:"session_id,omitempty"`
}

// ParseSubscription decodes a client's subscribe message.
func ParseSubscription(data []byte) (Subscription, error) {
	var sub Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return Subscription{}, fmt.Errorf("%w: %v", ErrInvalidSubscription, err)
	}
	if sub.AssetID == "" {
		return Subscription{}, fmt.Errorf("%w: asset_id is required", ErrInvalidSubscription)
	}
	return sub, nil
}

// Matches reports whether ev belongs to the subscription.
func (s Subscription) Matches(ev Event) bool {
	if ev.AssetID != s.AssetID {
		return false
	}
	return s.SessionID == "" || ev.SessionID == s.SessionID
}

// Snapshot describes a stored session as an event, so a client joining
// mid-run starts from the current state.
func Snapshot(s *database.ProcessingSession) Event {
	pct := s.Progress
	ev := Event{
		Type:      EventProgress,
		AssetID:   s.AssetID,
		SessionID: s.ID,
		Status:    s.Status,
		Progress:  &pct,
		Step:      s.StepDescription,
		Error:     s.ErrorMessage,
		Timestamp: s.UpdatedAt,
	}
	if database.IsTerminalSessionStatus(s.Status) {
		ev.Type = EventDone
	}
	return ev
}
