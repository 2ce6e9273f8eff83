package game

import (
	"context"
	"log"
	"time"

	"guess-the-drop/internal/db"
	"guess-the-drop/internal/pubsub"
)

// actionTimeout caps how long one action may hold a room lock waiting on the
// database. On expiry the action fails and nothing is published.
const actionTimeout = 5 * time.Second

const maxTemplatesPerUser = 100

// Engine owns the game lifecycle: it validates each host or player action,
// applies the mutation through the persistence store, and publishes the
// resulting event to the room's broadcast pair. Conflicting mutations within
// one room are serialized by a per-room lock; rooms never contend with each
// other.
type Engine struct {
	store db.GameStore
	rooms *pubsub.Registry
	locks *roomLocks
}

func NewEngine(store db.GameStore, rooms *pubsub.Registry) *Engine {
	return &Engine{
		store: store,
		rooms: rooms,
		locks: newRoomLocks(),
	}
}

func withActionTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, actionTimeout)
}

// publishHost fans a host action out to the room's player views and appends
// it to the audit trail. The audit write is best-effort: live delivery is
// already lossy and views reconcile against the board.
func (e *Engine) publishHost(ctx context.Context, action pubsub.HostAction) {
	if err := e.store.SaveEvent(ctx, action.GameCode, string(action.Type), action); err != nil {
		log.Printf("event audit failed game_code=%s type=%s error=%v", action.GameCode, action.Type, err)
	}
	e.rooms.Room(action.GameCode).PlayerEvents.Publish(action)
}

// publishPlayer fans a player action out to the room's host view.
func (e *Engine) publishPlayer(ctx context.Context, action pubsub.PlayerAction) {
	if err := e.store.SaveEvent(ctx, action.GameCode, string(action.Type), action); err != nil {
		log.Printf("event audit failed game_code=%s type=%s error=%v", action.GameCode, action.Type, err)
	}
	e.rooms.Room(action.GameCode).HostEvents.Publish(action)
}

// hostedActiveGame loads the game and checks that userID hosts it and that
// it is still running.
func (e *Engine) hostedActiveGame(ctx context.Context, code, userID string) (*db.Game, error) {
	game, ok, err := e.store.FindGame(ctx, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if game.UserID != userID {
		return nil, ErrForbidden
	}
	if game.Status != db.GameStatusActive {
		return nil, invalidState("game is already finished")
	}
	return game, nil
}

// CreateGameParams selects the template to snapshot and an optional display
// name overriding the template's.
type CreateGameParams struct {
	TemplateID uint
	Name       string
}

// CreateGame snapshots the host's template into a new room. Template items
// are copied, so edits to the template never touch a running game.
func (e *Engine) CreateGame(ctx context.Context, host *db.User, params CreateGameParams) (*db.Game, error) {
	ctx, cancel := withActionTimeout(ctx)
	defer cancel()

	template, ok, err := e.store.FindTemplate(ctx, params.TemplateID, host.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if len(template.Items) == 0 {
		return nil, invalidState("template has no items")
	}

	name := params.Name
	if name == "" {
		name = template.Name
	}

	// A generated code can still collide with a game inserted between the
	// existence check and our insert; the unique key catches that and we
	// draw again.
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := e.generateGameCode(ctx)
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		game := &db.Game{
			GameCode:           code,
			UserID:             host.UserID,
			Status:             db.GameStatusActive,
			Name:               name,
			AutoLock:           template.AutoLock,
			RewardMessage:      template.RewardMessage,
			TotalRewardMessage: template.TotalRewardMessage,
			CreatedAt:          now,
			ActiveAt:           now,
		}
		items := make([]db.GameItem, 0, len(template.Items))
		for _, item := range template.Items {
			items = append(items, db.GameItem{
				Name:    item.Name,
				Image:   item.Image,
				Enabled: item.StartEnabled,
			})
		}
		if err := e.store.CreateGame(ctx, game, items); err != nil {
			if db.IsUniqueViolation(err) {
				continue
			}
			return nil, err
		}
		log.Printf("game created game_code=%s host=%s items=%d", game.GameCode, host.UserID, len(items))
		return game, nil
	}
	return nil, invalidState("could not allocate a room code, try again")
}

// CreateTemplateParams describes a new per-user game template.
type CreateTemplateParams struct {
	Name               string
	AutoLock           bool
	RewardMessage      *string
	TotalRewardMessage *string
	Items              []db.GameItemTemplate
}

func (e *Engine) CreateTemplate(ctx context.Context, user *db.User, params CreateTemplateParams) (*db.GameTemplate, error) {
	ctx, cancel := withActionTimeout(ctx)
	defer cancel()

	if params.Name == "" {
		return nil, invalidState("template name is required")
	}
	if len(params.Items) == 0 {
		return nil, invalidState("template needs at least one item")
	}
	count, err := e.store.CountTemplatesByUser(ctx, user.UserID)
	if err != nil {
		return nil, err
	}
	if count >= maxTemplatesPerUser {
		return nil, invalidState("template limit reached")
	}
	template := &db.GameTemplate{
		UserID:             user.UserID,
		Name:               params.Name,
		AutoLock:           params.AutoLock,
		RewardMessage:      params.RewardMessage,
		TotalRewardMessage: params.TotalRewardMessage,
		Items:              params.Items,
	}
	if err := e.store.CreateTemplate(ctx, template); err != nil {
		return nil, err
	}
	return template, nil
}

// Join registers user as a player of the room on their first visit and
// notifies the host view with the updated player count. Repeat visits and
// the host's own visits are no-ops.
func (e *Engine) Join(ctx context.Context, code string, user *db.User) (*db.Game, error) {
	ctx, cancel := withActionTimeout(ctx)
	defer cancel()

	game, ok, err := e.store.FindGame(ctx, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if game.UserID == user.UserID || game.Status != db.GameStatusActive {
		return game, nil
	}

	release := e.locks.lock(code)
	defer release()

	_, created, err := e.store.FindOrCreatePlayer(ctx, code, user.UserID)
	if err != nil {
		return nil, err
	}
	if created {
		count, err := e.store.CountPlayers(ctx, code)
		if err != nil {
			return nil, err
		}
		log.Printf("player joined game_code=%s user=%s players=%d", code, user.UserID, count)
		e.publishPlayer(ctx, pubsub.PlayerAction{
			GameCode:    code,
			UserID:      user.UserID,
			Type:        pubsub.PlayerJoin,
			PlayerCount: count,
		})
	}
	return game, nil
}

// SubmitGuess records or moves the player's single pending guess. Moving a
// guess publishes an UndoGuess for the old item before the Guess for the new
// one so per-item counts on the host board stay consistent.
func (e *Engine) SubmitGuess(ctx context.Context, code string, user *db.User, itemID uint) error {
	ctx, cancel := withActionTimeout(ctx)
	defer cancel()

	release := e.locks.lock(code)
	defer release()

	game, ok, err := e.store.FindGame(ctx, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if game.UserID == user.UserID {
		return ErrForbidden
	}
	if game.Status != db.GameStatusActive {
		return invalidState("game is already finished")
	}
	if game.IsLocked {
		return invalidState("guessing is locked")
	}

	item, ok, err := e.store.FindItem(ctx, code, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if !item.Enabled {
		return invalidState("item is no longer available")
	}

	player, created, err := e.store.FindOrCreatePlayer(ctx, code, user.UserID)
	if err != nil {
		return err
	}
	if created {
		count, err := e.store.CountPlayers(ctx, code)
		if err != nil {
			return err
		}
		e.publishPlayer(ctx, pubsub.PlayerAction{
			GameCode:    code,
			UserID:      user.UserID,
			Type:        pubsub.PlayerJoin,
			PlayerCount: count,
		})
	}

	pendingTotal, err := e.store.CountPendingGuesses(ctx, code)
	if err != nil {
		return err
	}

	pending, hasPending, err := e.store.FindPendingGuess(ctx, code, player.ID)
	if err != nil {
		return err
	}

	switch {
	case hasPending && pending.ItemID == itemID:
		// Same item again: nothing to move, nothing to announce.
		return nil

	case hasPending:
		oldItemID := pending.ItemID
		if err := e.store.MoveGuess(ctx, pending.ID, itemID); err != nil {
			return err
		}
		oldCount, err := e.store.CountPendingGuessesForItem(ctx, code, oldItemID)
		if err != nil {
			return err
		}
		newCount, err := e.store.CountPendingGuessesForItem(ctx, code, itemID)
		if err != nil {
			return err
		}
		e.publishPlayer(ctx, pubsub.PlayerAction{
			GameCode:   code,
			UserID:     user.UserID,
			Type:       pubsub.PlayerUndoGuess,
			ItemID:     oldItemID,
			GuessCount: oldCount,
		})
		e.publishPlayer(ctx, pubsub.PlayerAction{
			GameCode:   code,
			UserID:     user.UserID,
			Type:       pubsub.PlayerGuess,
			ItemID:     itemID,
			GuessCount: newCount,
		})
		return nil

	default:
		guess := &db.PlayerGuess{
			GameCode: code,
			PlayerID: player.ID,
			ItemID:   itemID,
		}
		if err := e.store.CreateGuess(ctx, guess); err != nil {
			return err
		}
		count, err := e.store.CountPendingGuessesForItem(ctx, code, itemID)
		if err != nil {
			return err
		}
		e.publishPlayer(ctx, pubsub.PlayerAction{
			GameCode:   code,
			UserID:     user.UserID,
			Type:       pubsub.PlayerGuess,
			ItemID:     itemID,
			GuessCount: count,
		})
		if pendingTotal == 0 {
			// First pending guess in the room: the host's clear-guesses
			// control becomes useful.
			e.publishPlayer(ctx, pubsub.PlayerAction{
				GameCode: code,
				UserID:   user.UserID,
				Type:     pubsub.PlayerEnableClearGuesses,
			})
		}
		return nil
	}
}

// SetLocked sets the lock flag. Setting the current value again is a no-op
// mutation but the event is still re-published; views treat it as a
// duplicate-safe notification.
func (e *Engine) SetLocked(ctx context.Context, code string, user *db.User, locked bool) error {
	ctx, cancel := withActionTimeout(ctx)
	defer cancel()

	release := e.locks.lock(code)
	defer release()

	if _, err := e.hostedActiveGame(ctx, code, user.UserID); err != nil {
		return err
	}
	if err := e.store.SetGameLocked(ctx, code, locked); err != nil {
		return err
	}
	action := pubsub.HostAction{GameCode: code, Type: pubsub.HostUnlock}
	if locked {
		action.Type = pubsub.HostLock
		action.Locked = true
	}
	e.publishHost(ctx, action)
	return nil
}

// SetItemEnabled flips an item's enabled flag; the event is published only
// when the flag actually changes.
func (e *Engine) SetItemEnabled(ctx context.Context, code string, user *db.User, itemID uint, enabled bool) error {
	ctx, cancel := withActionTimeout(ctx)
	defer cancel()

	release := e.locks.lock(code)
	defer release()

	if _, err := e.hostedActiveGame(ctx, code, user.UserID); err != nil {
		return err
	}
	item, ok, err := e.store.FindItem(ctx, code, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if item.Enabled == enabled {
		return nil
	}
	if err := e.store.SetItemEnabled(ctx, code, itemID, enabled); err != nil {
		return err
	}
	action := pubsub.HostAction{GameCode: code, Type: pubsub.HostDisable, ItemID: itemID}
	if enabled {
		action.Type = pubsub.HostEnable
	}
	e.publishHost(ctx, action)
	return nil
}

// ClearGuesses deletes every pending guess in the room so the host can reset
// before a reveal.
func (e *Engine) ClearGuesses(ctx context.Context, code string, user *db.User) error {
	ctx, cancel := withActionTimeout(ctx)
	defer cancel()

	release := e.locks.lock(code)
	defer release()

	if _, err := e.hostedActiveGame(ctx, code, user.UserID); err != nil {
		return err
	}
	if err := e.store.DeletePendingGuesses(ctx, code); err != nil {
		return err
	}
	log.Printf("guesses cleared game_code=%s", code)
	e.publishHost(ctx, pubsub.HostAction{GameCode: code, Type: pubsub.HostClearGuesses})
	return nil
}
