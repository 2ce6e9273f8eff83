package server

import (
	"context"

	"guess-the-drop/internal/db"
	"guess-the-drop/internal/game"
)

// Board is the authoritative room view. Live views re-fetch it whenever they
// suspect they missed a broadcast.
type Board struct {
	GameCode        string        `json:"game_code"`
	Name            string        `json:"name"`
	Status          string        `json:"status"`
	Host            string        `json:"host"`
	IsHost          bool          `json:"is_host"`
	Locked          bool          `json:"locked"`
	AutoLock        bool          `json:"auto_lock"`
	PlayerCount     int64         `json:"player_count"`
	TotalDrops      int64         `json:"total_drops"`
	CanClearGuesses bool          `json:"can_clear_guesses"`
	Items           []BoardItem   `json:"items"`
	Players         []BoardPlayer `json:"players"`
	MyGuessItemID   *uint         `json:"my_guess_item_id,omitempty"`
	MyPoints        int           `json:"my_points"`
	Winners         []string      `json:"winners,omitempty"`
}

type BoardItem struct {
	ID         uint    `json:"id"`
	Name       string  `json:"name"`
	Image      *string `json:"image,omitempty"`
	Enabled    bool    `json:"enabled"`
	GuessCount int64   `json:"guess_count"`
}

type BoardPlayer struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Points   int    `json:"points"`
}

func (s *Server) buildBoard(ctx context.Context, code string, user *db.User) (*Board, error) {
	gameRow, ok, err := s.store.FindGame(ctx, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, game.ErrNotFound
	}

	items, err := s.store.GameItems(ctx, code)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.PendingGuessCounts(ctx, code)
	if err != nil {
		return nil, err
	}
	standings, err := s.store.PlayerStandings(ctx, code)
	if err != nil {
		return nil, err
	}
	pendingTotal, err := s.store.CountPendingGuesses(ctx, code)
	if err != nil {
		return nil, err
	}
	totalDrops, err := s.store.CountOutcomes(ctx, code)
	if err != nil {
		return nil, err
	}

	host, hostFound, err := s.store.FindUser(ctx, gameRow.UserID)
	if err != nil {
		return nil, err
	}
	hostName := gameRow.UserID
	if hostFound {
		hostName = host.Username
	}

	board := &Board{
		GameCode:        gameRow.GameCode,
		Name:            gameRow.Name,
		Status:          gameRow.Status,
		Host:            hostName,
		IsHost:          gameRow.UserID == user.UserID,
		Locked:          gameRow.IsLocked,
		AutoLock:        gameRow.AutoLock,
		PlayerCount:     int64(len(standings)),
		TotalDrops:      totalDrops,
		CanClearGuesses: pendingTotal > 0,
	}
	for _, item := range items {
		board.Items = append(board.Items, BoardItem{
			ID:         item.ID,
			Name:       item.Name,
			Image:      item.Image,
			Enabled:    item.Enabled,
			GuessCount: counts[item.ID],
		})
	}
	for _, standing := range standings {
		board.Players = append(board.Players, BoardPlayer{
			UserID:   standing.UserID,
			Username: standing.Username,
			Points:   standing.Points,
		})
	}

	if !board.IsHost {
		player, found, err := s.store.FindPlayer(ctx, code, user.UserID)
		if err != nil {
			return nil, err
		}
		if found {
			board.MyPoints = player.Points
			guess, hasGuess, err := s.store.FindPendingGuess(ctx, code, player.ID)
			if err != nil {
				return nil, err
			}
			if hasGuess {
				itemID := guess.ItemID
				board.MyGuessItemID = &itemID
			}
		}
	}

	if gameRow.Status == db.GameStatusFinished {
		winners, err := s.store.Winners(ctx, code)
		if err != nil {
			return nil, err
		}
		winnerIDs := make(map[uint]struct{}, len(winners))
		for _, winner := range winners {
			winnerIDs[winner.GamePlayerID] = struct{}{}
		}
		for _, standing := range standings {
			if _, won := winnerIDs[standing.GamePlayerID]; won {
				board.Winners = append(board.Winners, standing.Username)
			}
		}
	}
	return board, nil
}
