package game

import (
	"context"
	"log"

	"guess-the-drop/internal/db"
	"guess-the-drop/internal/pubsub"
)

// ChooseItem is the reveal: the host declares which item dropped. The whole
// resolution runs as one unit inside the room lock and one transaction, so a
// guess is either fully counted by the resolution that stamps it or left
// untouched for the next one. Repeating the call on an already-disabled item
// fails with an invalid-state error and awards nothing.
func (e *Engine) ChooseItem(ctx context.Context, code string, user *db.User, itemID uint) error {
	ctx, cancel := withActionTimeout(ctx)
	defer cancel()

	release := e.locks.lock(code)
	defer release()

	game, err := e.hostedActiveGame(ctx, code, user.UserID)
	if err != nil {
		return err
	}
	item, ok, err := e.store.FindItem(ctx, code, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if !item.Enabled {
		return invalidState("item was already chosen or is disabled")
	}

	lockChanged := game.IsLocked != game.AutoLock
	var correct []db.PendingGuesser

	err = e.store.InTransaction(ctx, func(tx db.GameStore) error {
		outcomeID, err := tx.InsertOutcome(ctx, code, itemID)
		if err != nil {
			return err
		}

		// The award set is computed exactly once, from the pending guesses
		// visible at this instant. Retried calls never reach this point
		// because the item is disabled below.
		correct, err = tx.PendingGuessersForItem(ctx, code, itemID)
		if err != nil {
			return err
		}
		playerIDs := make([]uint, 0, len(correct))
		for _, guesser := range correct {
			playerIDs = append(playerIDs, guesser.GamePlayerID)
		}
		if err := tx.AwardPoints(ctx, playerIDs); err != nil {
			return err
		}

		// Every pending guess in the game is closed by this outcome,
		// correct or not: the round has resolved.
		if err := tx.StampPendingGuesses(ctx, code, outcomeID); err != nil {
			return err
		}

		if game.RewardMessage != nil && *game.RewardMessage != "" && len(correct) > 0 {
			messages := make([]string, 0, len(correct))
			for _, guesser := range correct {
				messages = append(messages, renderRewardMessage(*game.RewardMessage, guesser.Username, item.Name))
			}
			if err := tx.EnqueueChatMessages(ctx, code, messages); err != nil {
				return err
			}
		}

		if err := tx.SetItemEnabled(ctx, code, itemID, false); err != nil {
			return err
		}
		if lockChanged {
			if err := tx.SetGameLocked(ctx, code, game.AutoLock); err != nil {
				return err
			}
		}
		return tx.TouchGame(ctx, code)
	})
	if err != nil {
		return err
	}

	log.Printf("item chosen game_code=%s item_id=%d winners=%d", code, itemID, len(correct))
	e.publishHost(ctx, pubsub.HostAction{
		GameCode: code,
		Type:     pubsub.HostChoose,
		ItemID:   itemID,
		Locked:   game.AutoLock,
	})
	if lockChanged {
		action := pubsub.HostAction{GameCode: code, Type: pubsub.HostUnlock}
		if game.AutoLock {
			action.Type = pubsub.HostLock
			action.Locked = true
		}
		e.publishHost(ctx, action)
	}
	return nil
}

// Finish ends the game: every player whose point total equals the session
// maximum wins, ties all win, and an all-zero game has no winners. Not
// reversible.
func (e *Engine) Finish(ctx context.Context, code string, user *db.User) ([]db.PlayerStanding, error) {
	ctx, cancel := withActionTimeout(ctx)
	defer cancel()

	release := e.locks.lock(code)
	defer release()

	game, err := e.hostedActiveGame(ctx, code, user.UserID)
	if err != nil {
		return nil, err
	}

	standings, err := e.store.PlayerStandings(ctx, code)
	if err != nil {
		return nil, err
	}
	maxPoints := 0
	for _, standing := range standings {
		if standing.Points > maxPoints {
			maxPoints = standing.Points
		}
	}
	var winners []db.PlayerStanding
	if maxPoints > 0 {
		for _, standing := range standings {
			if standing.Points == maxPoints {
				winners = append(winners, standing)
			}
		}
	}

	err = e.store.InTransaction(ctx, func(tx db.GameStore) error {
		if err := tx.SetGameStatus(ctx, code, db.GameStatusFinished); err != nil {
			return err
		}
		winnerIDs := make([]uint, 0, len(winners))
		for _, winner := range winners {
			winnerIDs = append(winnerIDs, winner.GamePlayerID)
		}
		if err := tx.InsertWinners(ctx, code, winnerIDs); err != nil {
			return err
		}
		if game.TotalRewardMessage != nil && *game.TotalRewardMessage != "" && len(winners) > 0 {
			totalDrops, err := tx.CountOutcomes(ctx, code)
			if err != nil {
				return err
			}
			messages := make([]string, 0, len(winners))
			for _, winner := range winners {
				messages = append(messages, renderTotalRewardMessage(*game.TotalRewardMessage, winner.Username, winner.Points, totalDrops))
			}
			if err := tx.EnqueueChatMessages(ctx, code, messages); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("game finished game_code=%s winners=%d max_points=%d", code, len(winners), maxPoints)
	e.publishHost(ctx, pubsub.HostAction{GameCode: code, Type: pubsub.HostFinish})

	// The room's channels go away once the last live view disconnects; if
	// nobody is watching, drop them now.
	e.rooms.EvictIfIdle(code)
	return winners, nil
}

// ReleaseRoom drops the room's broadcast channels if its game has finished
// and nobody is subscribed. Live-view transports call it on disconnect.
func (e *Engine) ReleaseRoom(ctx context.Context, code string) {
	game, ok, err := e.store.FindGame(ctx, code)
	if err != nil || !ok {
		return
	}
	if game.Status == db.GameStatusFinished {
		e.rooms.EvictIfIdle(code)
	}
}
