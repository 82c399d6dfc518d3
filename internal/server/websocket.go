package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/tikpoptv/terrahost/internal/database"
	"github.com/tikpoptv/terrahost/internal/session"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsQueueSize    = 64
)

// subscriber is one live client. Events are queued so a slow client never
// stalls the pipeline that broadcasts them.
type subscriber struct {
	conn  *websocket.Conn
	sub   session.Subscription
	queue chan []byte
}

// Hub fans session events out to clients, grouped by asset.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*subscriber]struct{}),
	}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[s.sub.AssetID] == nil {
		h.clients[s.sub.AssetID] = make(map[*subscriber]struct{})
	}
	h.clients[s.sub.AssetID][s] = struct{}{}
}

// remove drops s and reports whether it was still registered.
func (h *Hub) remove(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.clients[s.sub.AssetID]
	if !ok {
		return false
	}
	if _, ok := subs[s]; !ok {
		return false
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.clients, s.sub.AssetID)
	}
	close(s.queue)
	return true
}

// Subscribers returns how many clients follow an asset.
func (h *Hub) Subscribers(assetID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[assetID])
}

// Broadcast queues ev for every matching subscriber. A subscriber whose
// queue is full is disconnected.
func (h *Hub) Broadcast(assetID string, ev session.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("encoding session event", "asset_id", assetID, "error", err)
		return
	}

	var slow []*subscriber
	h.mu.RLock()
	for s := range h.clients[assetID] {
		if !s.sub.Matches(ev) {
			continue
		}
		select {
		case s.queue <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		slog.Warn("ws subscriber too slow, disconnecting", "asset_id", assetID)
		if h.remove(s) {
			s.conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
		}
	}
}

// drain writes queued events until the queue is closed or a write fails.
func (s *subscriber) drain(ctx context.Context) {
	for data := range s.queue {
		wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		err := s.conn.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			slog.Debug("ws write error", "asset_id", s.sub.AssetID, "error", err)
			return
		}
	}
}

// handleWebSocket expects {"asset_id": ..., "session_id"?: ...} as the
// first message, replies with the latest session state when there is
// one, then streams matching events until the client leaves.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("ws accept error", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}

	sub, err := session.ParseSubscription(data)
	if err != nil {
		conn.Close(websocket.StatusInvalidFramePayloadData, err.Error())
		return
	}
	a, err := s.db.GetAsset(ctx, sub.AssetID)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "asset lookup failed")
		return
	}
	if a == nil {
		conn.Close(websocket.StatusPolicyViolation, "asset not found")
		return
	}

	client := &subscriber{conn: conn, sub: sub, queue: make(chan []byte, wsQueueSize)}
	s.hub.add(client)
	defer s.hub.remove(client)

	if latest, err := s.subscribedSession(ctx, sub); err != nil {
		slog.Warn("ws snapshot failed", "asset_id", sub.AssetID, "error", err)
	} else if latest != nil {
		if data, err := json.Marshal(session.Snapshot(latest)); err == nil {
			client.queue <- data
		}
	}

	go client.drain(ctx)

	// Client messages after the subscription are ignored.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			if !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) == -1 {
				slog.Debug("ws read error", "asset_id", sub.AssetID, "error", err)
			}
			return
		}
	}
}

// subscribedSession loads the session a subscription points at, or the
// asset's latest one.
func (s *Server) subscribedSession(ctx context.Context, sub session.Subscription) (*database.ProcessingSession, error) {
	if sub.SessionID == "" {
		return s.db.LatestSession(ctx, sub.AssetID)
	}
	sess, err := s.db.GetSession(ctx, sub.SessionID)
	if err != nil || sess == nil || sess.AssetID != sub.AssetID {
		return nil, err
	}
	return sess, nil
}
