package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"guess-the-drop/internal/pubsub"

	"github.com/gorilla/websocket"
)

// Live views hold one websocket per room. The server pushes every bus event
// as an envelope plus a keepalive when the room is quiet; a client that
// suspects it missed an event re-fetches the board instead of asking for a
// replay, because delivery is intentionally lossy.
type wsEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	code := r.PathValue("code")
	gameRow, err := s.engine.Join(r.Context(), code, user)
	if err != nil {
		writeActionError(w, err)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	isHost := gameRow.UserID == user.UserID
	role := "player"
	if isHost {
		role = "host"
	}
	log.Printf("ws connected game_code=%s role=%s remote=%s", code, role, r.RemoteAddr)

	room := s.rooms.Room(code)
	done := make(chan struct{})
	if isHost {
		events, cancel := room.HostEvents.Subscribe()
		go s.writeHostView(conn, code, events, cancel, done)
	} else {
		events, cancel := room.PlayerEvents.Subscribe()
		go s.writePlayerView(conn, code, events, cancel, done)
	}
	go s.readWS(code, conn, done)
}

// writeHostView forwards player actions to the host's board until the
// subscription or connection ends.
func (s *Server) writeHostView(conn *websocket.Conn, code string, events <-chan pubsub.PlayerAction, cancel func(), done chan struct{}) {
	defer conn.Close()
	defer s.releaseRoom(code)
	defer cancel()

	keepAlive := time.NewTicker(s.keepAliveInterval())
	defer keepAlive.Stop()
	for {
		select {
		case action, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(conn, "player_action", action); err != nil {
				return
			}
		case <-keepAlive.C:
			if err := writeEvent(conn, "keepalive", nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// writePlayerView forwards host actions to a player's board.
func (s *Server) writePlayerView(conn *websocket.Conn, code string, events <-chan pubsub.HostAction, cancel func(), done chan struct{}) {
	defer conn.Close()
	defer s.releaseRoom(code)
	defer cancel()

	keepAlive := time.NewTicker(s.keepAliveInterval())
	defer keepAlive.Stop()
	for {
		select {
		case action, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(conn, "host_action", action); err != nil {
				return
			}
		case <-keepAlive.C:
			if err := writeEvent(conn, "keepalive", nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readWS watches for the client hanging up. Incoming frames carry nothing;
// all actions arrive over the HTTP API.
func (s *Server) readWS(code string, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Printf("ws disconnected game_code=%s error=%v", code, err)
			return
		}
	}
}

func (s *Server) releaseRoom(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.engine.ReleaseRoom(ctx, code)
}

func (s *Server) keepAliveInterval() time.Duration {
	seconds := s.cfg.KeepAliveSeconds
	if seconds <= 0 {
		seconds = 5
	}
	return time.Duration(seconds) * time.Second
}

func writeEvent(conn *websocket.Conn, event string, data any) error {
	return conn.WriteJSON(wsEnvelope{Event: event, Data: data})
}
