package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	// pgconn here is github.com/jackc/pgx/v5/pgconn, the package behind the
	// gorm postgres driver; its PgError is what Create actually returns.
	unique := &pgconn.PgError{Code: "23505"}
	if !IsUniqueViolation(unique) {
		t.Fatal("expected 23505 recognized")
	}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", unique)) {
		t.Fatal("expected wrapped 23505 recognized")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("expected other codes rejected")
	}
	if IsUniqueViolation(errors.New("plain")) {
		t.Fatal("expected plain errors rejected")
	}
	if IsUniqueViolation(nil) {
		t.Fatal("expected nil rejected")
	}
}

func TestMemoryStoreSessionExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.AddUser(User{UserID: "u1", Username: "ada"})
	store.AddSession(SessionAuth{SID: "live", UserID: "u1"})
	store.AddSession(SessionAuth{SID: "stale", UserID: "u1", Expiry: time.Now().Add(-time.Hour).Unix()})
	store.AddSession(SessionAuth{SID: "future", UserID: "u1", Expiry: time.Now().Add(time.Hour).Unix()})

	if _, ok, _ := store.FindUserBySession(ctx, "live"); !ok {
		t.Fatal("expected session without expiry accepted")
	}
	if _, ok, _ := store.FindUserBySession(ctx, "future"); !ok {
		t.Fatal("expected unexpired session accepted")
	}
	if _, ok, _ := store.FindUserBySession(ctx, "stale"); ok {
		t.Fatal("expected expired session rejected")
	}
	if _, ok, _ := store.FindUserBySession(ctx, "missing"); ok {
		t.Fatal("expected unknown session rejected")
	}
}

func TestMemoryStoreChatSessionNeedsCanChat(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.AddUser(User{UserID: "u1", Username: "ada"})
	store.AddSession(SessionAuth{SID: "s1", UserID: "u1", AccessToken: "old"})

	if _, ok, _ := store.ChatSession(ctx, "u1"); ok {
		t.Fatal("expected no chat session without can_chat")
	}

	store.AddSession(SessionAuth{SID: "s2", UserID: "u1", AccessToken: "first", CanChat: true})
	store.AddSession(SessionAuth{SID: "s3", UserID: "u1", AccessToken: "latest", CanChat: true})
	auth, ok, _ := store.ChatSession(ctx, "u1")
	if !ok {
		t.Fatal("expected a chat session")
	}
	if auth.AccessToken != "latest" {
		t.Fatalf("expected newest chat session, got %q", auth.AccessToken)
	}
}

func TestMemoryStorePlayerUniquePerGame(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	game := &Game{GameCode: "abc123", UserID: "host", Status: GameStatusActive, Name: "Drops"}
	if err := store.CreateGame(ctx, game, nil); err != nil {
		t.Fatalf("create game: %v", err)
	}

	first, created, err := store.FindOrCreatePlayer(ctx, "abc123", "u1")
	if err != nil || !created {
		t.Fatalf("expected new player, created=%v err=%v", created, err)
	}
	again, created, err := store.FindOrCreatePlayer(ctx, "abc123", "u1")
	if err != nil || created {
		t.Fatalf("expected existing player, created=%v err=%v", created, err)
	}
	if again.ID != first.ID {
		t.Fatalf("expected same player row, got %d and %d", first.ID, again.ID)
	}

	if err := store.CreateGame(ctx, &Game{GameCode: "abc123"}, nil); err == nil {
		t.Fatal("expected duplicate game code rejected")
	}
}
