package game

import (
	"context"
	"errors"
	"testing"

	"guess-the-drop/internal/db"
	"guess-the-drop/internal/pubsub"
)

func TestChooseItemAwardsCorrectGuessersOnce(t *testing.T) {
	e, store, rooms := newTestEngine(t)
	host := seedUser(t, store, "host-1", "streamer")
	ada := seedUser(t, store, "viewer-1", "ada")
	bob := seedUser(t, store, "viewer-2", "bob")
	cys := seedUser(t, store, "viewer-3", "cys")
	game := startGame(t, e, store, host, templateOptions{})
	items := gameItems(t, store, game.GameCode)

	ctx := context.Background()
	if err := e.SubmitGuess(ctx, game.GameCode, ada, items[0].ID); err != nil {
		t.Fatalf("guess: %v", err)
	}
	if err := e.SubmitGuess(ctx, game.GameCode, bob, items[0].ID); err != nil {
		t.Fatalf("guess: %v", err)
	}
	if err := e.SubmitGuess(ctx, game.GameCode, cys, items[1].ID); err != nil {
		t.Fatalf("guess: %v", err)
	}

	feed := playerFeed(t, rooms, game.GameCode)
	if err := e.ChooseItem(ctx, game.GameCode, host, items[0].ID); err != nil {
		t.Fatalf("choose: %v", err)
	}

	action := nextHostAction(t, feed)
	if action.Type != pubsub.HostChoose || action.ItemID != items[0].ID {
		t.Fatalf("expected choose action, got %#v", action)
	}

	standings, err := store.PlayerStandings(ctx, game.GameCode)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	points := make(map[string]int, len(standings))
	for _, standing := range standings {
		points[standing.UserID] = standing.Points
	}
	if points[ada.UserID] != 1 || points[bob.UserID] != 1 || points[cys.UserID] != 0 {
		t.Fatalf("unexpected points %v", points)
	}

	// Every pending guess, including the wrong one, is closed by the reveal.
	if total, _ := store.CountPendingGuesses(ctx, game.GameCode); total != 0 {
		t.Fatalf("expected no pending guesses after reveal, got %d", total)
	}
	fresh, _, _ := store.FindItem(ctx, game.GameCode, items[0].ID)
	if fresh.Enabled {
		t.Fatal("expected chosen item disabled")
	}
	if drops, _ := store.CountOutcomes(ctx, game.GameCode); drops != 1 {
		t.Fatalf("expected one outcome recorded, got %d", drops)
	}
}

func TestChooseItemRepeatFailsWithoutDoubleAward(t *testing.T) {
	e, store, _ := newTestEngine(t)
	host := seedUser(t, store, "host-1", "streamer")
	ada := seedUser(t, store, "viewer-1", "ada")
	game := startGame(t, e, store, host, templateOptions{})
	items := gameItems(t, store, game.GameCode)

	ctx := context.Background()
	if err := e.SubmitGuess(ctx, game.GameCode, ada, items[0].ID); err != nil {
		t.Fatalf("guess: %v", err)
	}
	if err := e.ChooseItem(ctx, game.GameCode, host, items[0].ID); err != nil {
		t.Fatalf("first choose: %v", err)
	}
	if err := e.ChooseItem(ctx, game.GameCode, host, items[0].ID); !IsInvalidState(err) {
		t.Fatalf("expected invalid state on repeat choose, got %v", err)
	}

	standings, _ := store.PlayerStandings(ctx, game.GameCode)
	if len(standings) != 1 || standings[0].Points != 1 {
		t.Fatalf("expected exactly one point awarded, got %#v", standings)
	}
	if drops, _ := store.CountOutcomes(ctx, game.GameCode); drops != 1 {
		t.Fatalf("expected a single outcome, got %d", drops)
	}
}

func TestChooseItemWithAutoLockRelocksAndAnnounces(t *testing.T) {
	e, store, rooms := newTestEngine(t)
	host := seedUser(t, store, "host-1", "streamer")
	game := startGame(t, e, store, host, templateOptions{autoLock: true})
	items := gameItems(t, store, game.GameCode)
	ctx := context.Background()

	// The host unlocked for the round; the reveal restores the auto-lock.
	if err := e.SetLocked(ctx, game.GameCode, host, false); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	feed := playerFeed(t, rooms, game.GameCode)
	if err := e.ChooseItem(ctx, game.GameCode, host, items[0].ID); err != nil {
		t.Fatalf("choose: %v", err)
	}

	choose := nextHostAction(t, feed)
	if choose.Type != pubsub.HostChoose || !choose.Locked {
		t.Fatalf("expected choose with locked flag, got %#v", choose)
	}
	lock := nextHostAction(t, feed)
	if lock.Type != pubsub.HostLock || !lock.Locked {
		t.Fatalf("expected follow-up lock action, got %#v", lock)
	}

	refreshed, _, _ := store.FindGame(ctx, game.GameCode)
	if !refreshed.IsLocked {
		t.Fatal("expected game relocked after reveal")
	}
}

func TestChooseItemWithoutLockChangeStaysQuiet(t *testing.T) {
	e, store, rooms := newTestEngine(t)
	host := seedUser(t, store, "host-1", "streamer")
	game := startGame(t, e, store, host, templateOptions{})
	items := gameItems(t, store, game.GameCode)
	ctx := context.Background()

	feed := playerFeed(t, rooms, game.GameCode)
	if err := e.ChooseItem(ctx, game.GameCode, host, items[0].ID); err != nil {
		t.Fatalf("choose: %v", err)
	}
	choose := nextHostAction(t, feed)
	if choose.Type != pubsub.HostChoose {
		t.Fatalf("expected choose action, got %#v", choose)
	}
	wantNoHostAction(t, feed)
}

func TestChooseItemEnqueuesRewardMessages(t *testing.T) {
	e, store, _ := newTestEngine(t)
	host := seedUser(t, store, "host-1", "streamer")
	ada := seedUser(t, store, "viewer-1", "ada")
	bob := seedUser(t, store, "viewer-2", "bob")
	game := startGame(t, e, store, host, templateOptions{
		rewardMessage: strPtr("{name} guessed {item}!"),
	})
	items := gameItems(t, store, game.GameCode)
	ctx := context.Background()

	if err := e.SubmitGuess(ctx, game.GameCode, ada, items[0].ID); err != nil {
		t.Fatalf("guess: %v", err)
	}
	if err := e.SubmitGuess(ctx, game.GameCode, bob, items[1].ID); err != nil {
		t.Fatalf("guess: %v", err)
	}
	if err := e.ChooseItem(ctx, game.GameCode, host, items[0].ID); err != nil {
		t.Fatalf("choose: %v", err)
	}

	lockID := "test-lock"
	if _, err := store.ClaimChatMessages(ctx, lockID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	messages, err := store.MessagesByLock(ctx, lockID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected one reward message, got %d", len(messages))
	}
	want := "ada guessed " + items[0].Name + "!"
	if messages[0].Message != want {
		t.Fatalf("expected %q, got %q", want, messages[0].Message)
	}
}

func TestFinishPicksAllTiedMaxima(t *testing.T) {
	e, store, rooms := newTestEngine(t)
	host := seedUser(t, store, "host-1", "streamer")
	ada := seedUser(t, store, "viewer-1", "ada")
	bob := seedUser(t, store, "viewer-2", "bob")
	cys := seedUser(t, store, "viewer-3", "cys")
	game := startGame(t, e, store, host, templateOptions{items: []string{"Sword", "Shield", "Potion", "Helm"}})
	items := gameItems(t, store, game.GameCode)
	ctx := context.Background()

	// Round one: ada and bob are right.
	if err := e.SubmitGuess(ctx, game.GameCode, ada, items[0].ID); err != nil {
		t.Fatalf("guess: %v", err)
	}
	if err := e.SubmitGuess(ctx, game.GameCode, bob, items[0].ID); err != nil {
		t.Fatalf("guess: %v", err)
	}
	if err := e.SubmitGuess(ctx, game.GameCode, cys, items[1].ID); err != nil {
		t.Fatalf("guess: %v", err)
	}
	if err := e.ChooseItem(ctx, game.GameCode, host, items[0].ID); err != nil {
		t.Fatalf("choose: %v", err)
	}

	feed := playerFeed(t, rooms, game.GameCode)
	winners, err := e.Finish(ctx, game.GameCode, host)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if len(winners) != 2 {
		t.Fatalf("expected two tied winners, got %d", len(winners))
	}
	names := map[string]bool{}
	for _, winner := range winners {
		names[winner.Username] = true
	}
	if !names["ada"] || !names["bob"] {
		t.Fatalf("unexpected winners %v", names)
	}

	action := nextHostAction(t, feed)
	if action.Type != pubsub.HostFinish {
		t.Fatalf("expected finish action, got %#v", action)
	}

	refreshed, _, _ := store.FindGame(ctx, game.GameCode)
	if refreshed.Status != db.GameStatusFinished {
		t.Fatalf("expected FINISHED, got %q", refreshed.Status)
	}
	recorded, _ := store.Winners(ctx, game.GameCode)
	if len(recorded) != 2 {
		t.Fatalf("expected two winner rows, got %d", len(recorded))
	}
}

func TestFinishWithAllZeroScoresHasNoWinners(t *testing.T) {
	e, store, _ := newTestEngine(t)
	host := seedUser(t, store, "host-1", "streamer")
	ada := seedUser(t, store, "viewer-1", "ada")
	game := startGame(t, e, store, host, templateOptions{})
	ctx := context.Background()

	if _, err := e.Join(ctx, game.GameCode, ada); err != nil {
		t.Fatalf("join: %v", err)
	}
	winners, err := e.Finish(ctx, game.GameCode, host)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if len(winners) != 0 {
		t.Fatalf("expected no winners at zero points, got %d", len(winners))
	}
	recorded, _ := store.Winners(ctx, game.GameCode)
	if len(recorded) != 0 {
		t.Fatalf("expected no winner rows, got %d", len(recorded))
	}
}

func TestFinishRejectsNonHost(t *testing.T) {
	e, store, _ := newTestEngine(t)
	host := seedUser(t, store, "host-1", "streamer")
	ada := seedUser(t, store, "viewer-1", "ada")
	game := startGame(t, e, store, host, templateOptions{})

	if _, err := e.Finish(context.Background(), game.GameCode, ada); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestFinishEnqueuesTotalRewardMessages(t *testing.T) {
	e, store, _ := newTestEngine(t)
	host := seedUser(t, store, "host-1", "streamer")
	ada := seedUser(t, store, "viewer-1", "ada")
	game := startGame(t, e, store, host, templateOptions{
		totalRewardMessage: strPtr("{name} wins with {points} of {drops} drops"),
	})
	items := gameItems(t, store, game.GameCode)
	ctx := context.Background()

	if err := e.SubmitGuess(ctx, game.GameCode, ada, items[0].ID); err != nil {
		t.Fatalf("guess: %v", err)
	}
	if err := e.ChooseItem(ctx, game.GameCode, host, items[0].ID); err != nil {
		t.Fatalf("choose: %v", err)
	}
	if _, err := e.Finish(ctx, game.GameCode, host); err != nil {
		t.Fatalf("finish: %v", err)
	}

	lockID := "test-lock"
	if _, err := store.ClaimChatMessages(ctx, lockID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	messages, err := store.MessagesByLock(ctx, lockID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected one total reward message, got %d", len(messages))
	}
	if want := "ada wins with 1 of 1 drops"; messages[0].Message != want {
		t.Fatalf("expected %q, got %q", want, messages[0].Message)
	}
}

func TestFinishEvictsIdleRoom(t *testing.T) {
	e, store, rooms := newTestEngine(t)
	host := seedUser(t, store, "host-1", "streamer")
	game := startGame(t, e, store, host, templateOptions{})
	ctx := context.Background()

	rooms.Room(game.GameCode)
	if _, err := e.Finish(ctx, game.GameCode, host); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if _, ok := rooms.Peek(game.GameCode); ok {
		t.Fatal("expected room evicted when nobody is subscribed")
	}
}

func TestReleaseRoomKeepsActiveGames(t *testing.T) {
	e, store, rooms := newTestEngine(t)
	host := seedUser(t, store, "host-1", "streamer")
	game := startGame(t, e, store, host, templateOptions{})
	ctx := context.Background()

	rooms.Room(game.GameCode)
	e.ReleaseRoom(ctx, game.GameCode)
	if _, ok := rooms.Peek(game.GameCode); !ok {
		t.Fatal("expected active game's room kept")
	}

	if _, err := e.Finish(ctx, game.GameCode, host); err != nil {
		t.Fatalf("finish: %v", err)
	}
	rooms.Room(game.GameCode)
	e.ReleaseRoom(ctx, game.GameCode)
	if _, ok := rooms.Peek(game.GameCode); ok {
		t.Fatal("expected finished game's room released")
	}
}
