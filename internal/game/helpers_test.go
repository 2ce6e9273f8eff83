package game

import (
	"context"
	"testing"
	"time"

	"guess-the-drop/internal/db"
	"guess-the-drop/internal/pubsub"
)

func newTestEngine(t *testing.T) (*Engine, *db.MemoryStore, *pubsub.Registry) {
	t.Helper()
	store := db.NewMemoryStore()
	rooms := pubsub.NewRegistry()
	return NewEngine(store, rooms), store, rooms
}

func seedUser(t *testing.T, store *db.MemoryStore, userID, username string) *db.User {
	t.Helper()
	user := db.User{UserID: userID, Username: username, TwitchLogin: username}
	store.AddUser(user)
	return &user
}

func strPtr(s string) *string {
	return &s
}

type templateOptions struct {
	autoLock           bool
	rewardMessage      *string
	totalRewardMessage *string
	items              []string
}

func seedTemplate(t *testing.T, store *db.MemoryStore, host *db.User, opts templateOptions) *db.GameTemplate {
	t.Helper()
	if len(opts.items) == 0 {
		opts.items = []string{"Sword", "Shield", "Potion"}
	}
	items := make([]db.GameItemTemplate, 0, len(opts.items))
	for _, name := range opts.items {
		items = append(items, db.GameItemTemplate{Name: name, StartEnabled: true})
	}
	template := &db.GameTemplate{
		UserID:             host.UserID,
		Name:               "Loot Drops",
		AutoLock:           opts.autoLock,
		RewardMessage:      opts.rewardMessage,
		TotalRewardMessage: opts.totalRewardMessage,
		Items:              items,
	}
	if err := store.CreateTemplate(context.Background(), template); err != nil {
		t.Fatalf("seed template: %v", err)
	}
	return template
}

func startGame(t *testing.T, e *Engine, store *db.MemoryStore, host *db.User, opts templateOptions) *db.Game {
	t.Helper()
	template := seedTemplate(t, store, host, opts)
	game, err := e.CreateGame(context.Background(), host, CreateGameParams{TemplateID: template.ID})
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	return game
}

func gameItems(t *testing.T, store *db.MemoryStore, code string) []db.GameItem {
	t.Helper()
	items, err := store.GameItems(context.Background(), code)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	return items
}

// hostFeed subscribes to the room's player-originated events the way a host
// live view would.
func hostFeed(t *testing.T, rooms *pubsub.Registry, code string) <-chan pubsub.PlayerAction {
	t.Helper()
	events, cancel := rooms.Room(code).HostEvents.Subscribe()
	t.Cleanup(cancel)
	return events
}

// playerFeed subscribes to the room's host-originated events the way a player
// live view would.
func playerFeed(t *testing.T, rooms *pubsub.Registry, code string) <-chan pubsub.HostAction {
	t.Helper()
	events, cancel := rooms.Room(code).PlayerEvents.Subscribe()
	t.Cleanup(cancel)
	return events
}

func nextPlayerAction(t *testing.T, events <-chan pubsub.PlayerAction) pubsub.PlayerAction {
	t.Helper()
	select {
	case action := <-events:
		return action
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for player action")
		return pubsub.PlayerAction{}
	}
}

func nextHostAction(t *testing.T, events <-chan pubsub.HostAction) pubsub.HostAction {
	t.Helper()
	select {
	case action := <-events:
		return action
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for host action")
		return pubsub.HostAction{}
	}
}

func wantNoPlayerAction(t *testing.T, events <-chan pubsub.PlayerAction) {
	t.Helper()
	select {
	case action := <-events:
		t.Fatalf("expected no player action, got %#v", action)
	default:
	}
}

func wantNoHostAction(t *testing.T, events <-chan pubsub.HostAction) {
	t.Helper()
	select {
	case action := <-events:
		t.Fatalf("expected no host action, got %#v", action)
	default:
	}
}
