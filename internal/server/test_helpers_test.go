package server

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"guess-the-drop/internal/config"
	"guess-the-drop/internal/db"
	"guess-the-drop/internal/pubsub"
)

func newTestEnv(t *testing.T) (*Server, *db.MemoryStore) {
	t.Helper()
	store := db.NewMemoryStore()
	return New(store, pubsub.NewRegistry(), config.Default()), store
}

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	return ts
}

// seedSession registers a user with a live session and returns the session id
// used as the cookie value.
func seedSession(t *testing.T, store *db.MemoryStore, userID, username string) string {
	t.Helper()
	store.AddUser(db.User{UserID: userID, Username: username, TwitchLogin: username})
	sid := "sid-" + userID
	store.AddSession(db.SessionAuth{SID: sid, UserID: userID, AccessToken: "token"})
	return sid
}

// doJSON performs one request against the server's handler and decodes the
// JSON response into dest when dest is non-nil.
func doJSON(t *testing.T, srv *Server, method, path, sid string, body, dest any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sid})
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if dest != nil {
		if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
			t.Fatalf("decode response %s %s (%d): %v", method, path, rec.Code, err)
		}
	}
	return rec.Code
}

func createTestTemplate(t *testing.T, srv *Server, sid string, items ...string) uint {
	t.Helper()
	if len(items) == 0 {
		items = []string{"Sword", "Shield", "Potion"}
	}
	type itemReq struct {
		Name string `json:"name"`
	}
	reqItems := make([]itemReq, 0, len(items))
	for _, name := range items {
		reqItems = append(reqItems, itemReq{Name: name})
	}
	var resp struct {
		TemplateID uint `json:"template_id"`
	}
	code := doJSON(t, srv, http.MethodPost, "/api/templates", sid, map[string]any{
		"name":  "Loot Drops",
		"items": reqItems,
	}, &resp)
	if code != http.StatusCreated {
		t.Fatalf("create template: status %d", code)
	}
	return resp.TemplateID
}

func createTestGame(t *testing.T, srv *Server, sid string, templateID uint) string {
	t.Helper()
	var resp struct {
		GameCode string `json:"game_code"`
	}
	code := doJSON(t, srv, http.MethodPost, "/api/games", sid, map[string]any{
		"template_id": templateID,
	}, &resp)
	if code != http.StatusCreated {
		t.Fatalf("create game: status %d", code)
	}
	if resp.GameCode == "" {
		t.Fatal("create game: empty game code")
	}
	return resp.GameCode
}

func fetchBoard(t *testing.T, srv *Server, sid, gameCode string) Board {
	t.Helper()
	var board Board
	code := doJSON(t, srv, http.MethodGet, "/api/games/"+gameCode, sid, nil, &board)
	if code != http.StatusOK {
		t.Fatalf("fetch board: status %d", code)
	}
	return board
}

func boardItems(t *testing.T, srv *Server, sid, gameCode string) []BoardItem {
	t.Helper()
	return fetchBoard(t, srv, sid, gameCode).Items
}

func uitoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
