package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/SirCrest/SDProfileManager-Windows/internal/services/pubsub"
)

const (
	eventBuffer   = 32
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingInterval  = 25 * time.Second
	maxReadBuffer = 512
)

// handleEvents upgrades to a WebSocket, sends the current workspace state
// and then streams every published change.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	sub := s.events.Subscribe(eventBuffer, pubsub.Topics...)
	defer s.events.Unsubscribe(sub)

	// Reads only serve control frames; a read error means the client left.
	closed := make(chan struct{})
	conn.SetReadLimit(maxReadBuffer)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := s.writeEvent(conn, pubsub.Event{Type: pubsub.TopicWorkspaceUpdated, Workspace: s.engine.State()}); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := s.writeEvent(conn, ev); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, ev pubsub.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
