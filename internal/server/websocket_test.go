package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"guess-the-drop/internal/config"
	"guess-the-drop/internal/db"
	"guess-the-drop/internal/pubsub"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, baseURL, gameCode, sid string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws/games/" + gameCode
	header := http.Header{}
	header.Set("Cookie", sessionCookieName+"="+sid)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Skipf("skipping test; websocket dial unavailable: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// readFrame returns the next non-keepalive frame.
func readFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) wsFrame {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		_ = conn.SetReadDeadline(deadline)
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read ws frame: %v", err)
		}
		if frame.Event == "keepalive" {
			continue
		}
		return frame
	}
}

func TestWebsocketRequiresSession(t *testing.T) {
	srv, store := newTestEnv(t)
	hostSID := seedSession(t, store, "host-1", "streamer")
	templateID := createTestTemplate(t, srv, hostSID)
	gameCode := createTestGame(t, srv, hostSID, templateID)

	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/games/" + gameCode
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("expected dial rejected without a session")
	} else if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

// waitForSubscriber blocks until the room has a live subscriber, so a test
// publishing right after a dial cannot race the server-side subscription.
func waitForSubscriber(t *testing.T, rooms *pubsub.Registry, gameCode string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if room, ok := rooms.Peek(gameCode); ok && room.Subscribers() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for the websocket subscription")
}

func TestWebsocketPlayerReceivesHostActions(t *testing.T) {
	store := db.NewMemoryStore()
	rooms := pubsub.NewRegistry()
	srv := New(store, rooms, config.Default())
	hostSID := seedSession(t, store, "host-1", "streamer")
	adaSID := seedSession(t, store, "viewer-1", "ada")
	templateID := createTestTemplate(t, srv, hostSID)
	gameCode := createTestGame(t, srv, hostSID, templateID)

	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	conn := dialWS(t, ts.URL, gameCode, adaSID)
	waitForSubscriber(t, rooms, gameCode)

	if code := doJSON(t, srv, http.MethodPost, "/api/games/"+gameCode+"/lock", hostSID, nil, nil); code != http.StatusOK {
		t.Fatalf("lock: status %d", code)
	}

	frame := readFrame(t, conn, 5*time.Second)
	if frame.Event != "host_action" {
		t.Fatalf("expected host_action frame, got %q", frame.Event)
	}
	var action pubsub.HostAction
	if err := json.Unmarshal(frame.Data, &action); err != nil {
		t.Fatalf("decode action: %v", err)
	}
	if action.Type != pubsub.HostLock || !action.Locked || action.GameCode != gameCode {
		t.Fatalf("unexpected action %#v", action)
	}
}

func TestWebsocketHostReceivesPlayerActions(t *testing.T) {
	store := db.NewMemoryStore()
	rooms := pubsub.NewRegistry()
	srv := New(store, rooms, config.Default())
	hostSID := seedSession(t, store, "host-1", "streamer")
	adaSID := seedSession(t, store, "viewer-1", "ada")
	templateID := createTestTemplate(t, srv, hostSID)
	gameCode := createTestGame(t, srv, hostSID, templateID)
	items := boardItems(t, srv, hostSID, gameCode)

	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	conn := dialWS(t, ts.URL, gameCode, hostSID)
	waitForSubscriber(t, rooms, gameCode)

	if code := doJSON(t, srv, http.MethodPost, "/api/games/"+gameCode+"/guess", adaSID, map[string]any{
		"item_id": items[0].ID,
	}, nil); code != http.StatusOK {
		t.Fatalf("guess: status %d", code)
	}

	frame := readFrame(t, conn, 5*time.Second)
	if frame.Event != "player_action" {
		t.Fatalf("expected player_action frame, got %q", frame.Event)
	}
	var action pubsub.PlayerAction
	if err := json.Unmarshal(frame.Data, &action); err != nil {
		t.Fatalf("decode action: %v", err)
	}
	if action.Type != pubsub.PlayerJoin || action.UserID != "viewer-1" {
		t.Fatalf("expected the implicit join first, got %#v", action)
	}
}

func TestWebsocketKeepaliveWhenQuiet(t *testing.T) {
	store := db.NewMemoryStore()
	cfg := config.Default()
	cfg.KeepAliveSeconds = 1
	srv := New(store, pubsub.NewRegistry(), cfg)

	hostSID := seedSession(t, store, "host-1", "streamer")
	templateID := createTestTemplate(t, srv, hostSID)
	gameCode := createTestGame(t, srv, hostSID, templateID)

	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	conn := dialWS(t, ts.URL, gameCode, hostSID)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read keepalive: %v", err)
	}
	if frame.Event != "keepalive" {
		t.Fatalf("expected keepalive, got %q", frame.Event)
	}
}

func TestWebsocketDisconnectReleasesFinishedRoom(t *testing.T) {
	store := db.NewMemoryStore()
	rooms := pubsub.NewRegistry()
	srv := New(store, rooms, config.Default())

	hostSID := seedSession(t, store, "host-1", "streamer")
	templateID := createTestTemplate(t, srv, hostSID)
	gameCode := createTestGame(t, srv, hostSID, templateID)

	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	conn := dialWS(t, ts.URL, gameCode, hostSID)
	waitForSubscriber(t, rooms, gameCode)

	if code := doJSON(t, srv, http.MethodPost, "/api/games/"+gameCode+"/finish", hostSID, nil, nil); code != http.StatusOK {
		t.Fatalf("finish: status %d", code)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := rooms.Peek(gameCode); !ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected finished room evicted after last view disconnected")
}
