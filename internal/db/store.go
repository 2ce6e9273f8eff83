package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PendingGuesser is one distinct player with an unresolved guess on an item,
// joined with the user behind the game_players row.
type PendingGuesser struct {
	GamePlayerID uint
	UserID       string
	Username     string
}

// PlayerStanding is a player's point total with display name, used for the
// board view and for winner computation.
type PlayerStanding struct {
	GamePlayerID uint
	UserID       string
	Username     string
	Points       int
}

// HostedSummary describes one game from its host's perspective.
type HostedSummary struct {
	GameCode     string
	Name         string
	Status       string
	CreatedAt    time.Time
	PlayersCount int64
	TotalDrops   int64
	WinnersCount int64
}

// JoinedSummary describes one game from a joined player's perspective.
type JoinedSummary struct {
	GameCode   string
	Name       string
	Status     string
	Host       string
	Points     int
	IsWinner   bool
	TotalDrops int64
}

// Store is the GORM-backed persistence collaborator. Absence is a
// first-class (value, ok, error) result on every lookup.
type Store struct {
	conn *gorm.DB
}

func NewStore(conn *gorm.DB) *Store {
	return &Store{conn: conn}
}

// InTransaction runs fn against a store bound to one database transaction.
func (s *Store) InTransaction(ctx context.Context, fn func(GameStore) error) error {
	return s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

func (s *Store) db(ctx context.Context) *gorm.DB {
	return s.conn.WithContext(ctx)
}

// IsUniqueViolation reports whether err is a Postgres duplicate-key error.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// --- users and sessions ---

func (s *Store) FindUser(ctx context.Context, userID string) (*User, bool, error) {
	var user User
	err := s.db(ctx).Where("user_id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &user, true, nil
}

// FindUserBySession resolves an opaque session id to the authenticated user.
func (s *Store) FindUserBySession(ctx context.Context, sid string) (*User, bool, error) {
	var auth SessionAuth
	err := s.db(ctx).Where("sid = ?", sid).First(&auth).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if auth.Expiry > 0 && auth.Expiry < time.Now().Unix() {
		return nil, false, nil
	}
	return s.FindUser(ctx, auth.UserID)
}

// ChatSession finds a session usable for sending chat as userID.
func (s *Store) ChatSession(ctx context.Context, userID string) (*SessionAuth, bool, error) {
	var auth SessionAuth
	err := s.db(ctx).
		Where("user_id = ? AND can_chat = true", userID).
		Order("id DESC").
		First(&auth).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &auth, true, nil
}

// UpdateSessionTokens stores a refreshed token pair on an existing session.
func (s *Store) UpdateSessionTokens(ctx context.Context, sessionID uint, accessToken, refreshToken string, expiry int64) error {
	return s.db(ctx).Model(&SessionAuth{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expiry":        expiry,
		}).Error
}

// --- templates ---

func (s *Store) FindTemplate(ctx context.Context, templateID uint, userID string) (*GameTemplate, bool, error) {
	var template GameTemplate
	err := s.db(ctx).
		Preload("Items").
		Where("id = ? AND user_id = ?", templateID, userID).
		First(&template).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &template, true, nil
}

func (s *Store) TemplatesByUser(ctx context.Context, userID string) ([]GameTemplate, error) {
	var templates []GameTemplate
	err := s.db(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("id").
		Find(&templates).Error
	return templates, err
}

func (s *Store) CountTemplatesByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db(ctx).Model(&GameTemplate{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (s *Store) CreateTemplate(ctx context.Context, template *GameTemplate) error {
	return s.db(ctx).Create(template).Error
}

// --- games ---

func (s *Store) FindGame(ctx context.Context, code string) (*Game, bool, error) {
	var game Game
	err := s.db(ctx).Where("game_code = ?", code).First(&game).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &game, true, nil
}

func (s *Store) GameCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := s.db(ctx).Model(&Game{}).Where("game_code = ?", code).Count(&count).Error
	return count > 0, err
}

// CreateGame inserts the game and its item snapshot in one transaction.
func (s *Store) CreateGame(ctx context.Context, game *Game, items []GameItem) error {
	return s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(game).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].GameCode = game.GameCode
		}
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&items).Error
	})
}

func (s *Store) SetGameLocked(ctx context.Context, code string, locked bool) error {
	return s.db(ctx).Model(&Game{}).
		Where("game_code = ?", code).
		Updates(map[string]any{"is_locked": locked, "active_at": time.Now().UTC()}).Error
}

func (s *Store) SetGameStatus(ctx context.Context, code string, status string) error {
	return s.db(ctx).Model(&Game{}).
		Where("game_code = ?", code).
		Updates(map[string]any{"status": status, "active_at": time.Now().UTC()}).Error
}

func (s *Store) TouchGame(ctx context.Context, code string) error {
	return s.db(ctx).Model(&Game{}).
		Where("game_code = ?", code).
		Update("active_at", time.Now().UTC()).Error
}

// --- items ---

func (s *Store) FindItem(ctx context.Context, code string, itemID uint) (*GameItem, bool, error) {
	var item GameItem
	err := s.db(ctx).Where("game_code = ? AND id = ?", code, itemID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &item, true, nil
}

func (s *Store) GameItems(ctx context.Context, code string) ([]GameItem, error) {
	var items []GameItem
	err := s.db(ctx).Where("game_code = ?", code).Order("id").Find(&items).Error
	return items, err
}

func (s *Store) SetItemEnabled(ctx context.Context, code string, itemID uint, enabled bool) error {
	return s.db(ctx).Model(&GameItem{}).
		Where("game_code = ? AND id = ?", code, itemID).
		Update("enabled", enabled).Error
}

// --- players ---

// FindOrCreatePlayer returns the (game, user) join row, creating it on first
// join. The unique index keeps a concurrent double-join from inserting twice;
// the loser of that race re-reads the winner's row.
func (s *Store) FindOrCreatePlayer(ctx context.Context, code, userID string) (*GamePlayer, bool, error) {
	var player GamePlayer
	err := s.db(ctx).Where("game_code = ? AND user_id = ?", code, userID).First(&player).Error
	if err == nil {
		return &player, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	player = GamePlayer{GameCode: code, UserID: userID}
	if err := s.db(ctx).Create(&player).Error; err != nil {
		if IsUniqueViolation(err) {
			var existing GamePlayer
			if lookupErr := s.db(ctx).Where("game_code = ? AND user_id = ?", code, userID).First(&existing).Error; lookupErr == nil {
				return &existing, false, nil
			}
		}
		return nil, false, err
	}
	return &player, true, nil
}

func (s *Store) FindPlayer(ctx context.Context, code, userID string) (*GamePlayer, bool, error) {
	var player GamePlayer
	err := s.db(ctx).Where("game_code = ? AND user_id = ?", code, userID).First(&player).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &player, true, nil
}

func (s *Store) CountPlayers(ctx context.Context, code string) (int64, error) {
	var count int64
	err := s.db(ctx).Model(&GamePlayer{}).Where("game_code = ?", code).Count(&count).Error
	return count, err
}

func (s *Store) PlayerStandings(ctx context.Context, code string) ([]PlayerStanding, error) {
	var standings []PlayerStanding
	err := s.db(ctx).Model(&GamePlayer{}).
		Select("game_players.id AS game_player_id, game_players.user_id, users.username, game_players.points").
		Joins("JOIN users ON users.user_id = game_players.user_id").
		Where("game_players.game_code = ?", code).
		Order("game_players.points DESC, users.username").
		Scan(&standings).Error
	return standings, err
}

func (s *Store) AwardPoints(ctx context.Context, playerIDs []uint) error {
	if len(playerIDs) == 0 {
		return nil
	}
	return s.db(ctx).Model(&GamePlayer{}).
		Where("id IN ?", playerIDs).
		Update("points", gorm.Expr("points + 1")).Error
}

// --- guesses and outcomes ---

func (s *Store) FindPendingGuess(ctx context.Context, code string, playerID uint) (*PlayerGuess, bool, error) {
	var guess PlayerGuess
	err := s.db(ctx).
		Where("game_code = ? AND player_id = ? AND outcome_id IS NULL", code, playerID).
		First(&guess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &guess, true, nil
}

func (s *Store) CreateGuess(ctx context.Context, guess *PlayerGuess) error {
	return s.db(ctx).Create(guess).Error
}

// MoveGuess repoints an existing pending guess at a different item.
func (s *Store) MoveGuess(ctx context.Context, guessID, itemID uint) error {
	return s.db(ctx).Model(&PlayerGuess{}).
		Where("id = ?", guessID).
		Update("item_id", itemID).Error
}

func (s *Store) CountPendingGuesses(ctx context.Context, code string) (int64, error) {
	var count int64
	err := s.db(ctx).Model(&PlayerGuess{}).
		Where("game_code = ? AND outcome_id IS NULL", code).
		Count(&count).Error
	return count, err
}

func (s *Store) CountPendingGuessesForItem(ctx context.Context, code string, itemID uint) (int64, error) {
	var count int64
	err := s.db(ctx).Model(&PlayerGuess{}).
		Where("game_code = ? AND item_id = ? AND outcome_id IS NULL", code, itemID).
		Count(&count).Error
	return count, err
}

// PendingGuessCounts returns the per-item pending guess counts for the board.
func (s *Store) PendingGuessCounts(ctx context.Context, code string) (map[uint]int64, error) {
	type row struct {
		ItemID uint
		Count  int64
	}
	var rows []row
	err := s.db(ctx).Model(&PlayerGuess{}).
		Select("item_id, COUNT(*) AS count").
		Where("game_code = ? AND outcome_id IS NULL", code).
		Group("item_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.ItemID] = r.Count
	}
	return counts, nil
}

func (s *Store) DeletePendingGuesses(ctx context.Context, code string) error {
	return s.db(ctx).
		Where("game_code = ? AND outcome_id IS NULL", code).
		Delete(&PlayerGuess{}).Error
}

// PendingGuessersForItem returns the distinct players whose pending guess
// points at itemID.
func (s *Store) PendingGuessersForItem(ctx context.Context, code string, itemID uint) ([]PendingGuesser, error) {
	var guessers []PendingGuesser
	err := s.db(ctx).Model(&PlayerGuess{}).
		Select("DISTINCT game_players.id AS game_player_id, game_players.user_id, users.username").
		Joins("JOIN game_players ON game_players.id = player_guesses.player_id").
		Joins("JOIN users ON users.user_id = game_players.user_id").
		Where("player_guesses.game_code = ? AND player_guesses.item_id = ? AND player_guesses.outcome_id IS NULL", code, itemID).
		Scan(&guessers).Error
	return guessers, err
}

func (s *Store) InsertOutcome(ctx context.Context, code string, itemID uint) (uint, error) {
	outcome := GameItemOutcome{GameCode: code, ItemID: itemID}
	if err := s.db(ctx).Create(&outcome).Error; err != nil {
		return 0, err
	}
	return outcome.ID, nil
}

// StampPendingGuesses closes every pending guess in the game with outcomeID.
func (s *Store) StampPendingGuesses(ctx context.Context, code string, outcomeID uint) error {
	return s.db(ctx).Model(&PlayerGuess{}).
		Where("game_code = ? AND outcome_id IS NULL", code).
		Update("outcome_id", outcomeID).Error
}

func (s *Store) CountOutcomes(ctx context.Context, code string) (int64, error) {
	var count int64
	err := s.db(ctx).Model(&GameItemOutcome{}).Where("game_code = ?", code).Count(&count).Error
	return count, err
}

// --- winners ---

func (s *Store) InsertWinners(ctx context.Context, code string, playerIDs []uint) error {
	if len(playerIDs) == 0 {
		return nil
	}
	winners := make([]GameWinner, 0, len(playerIDs))
	for _, id := range playerIDs {
		winners = append(winners, GameWinner{GameCode: code, GamePlayerID: id})
	}
	return s.db(ctx).Create(&winners).Error
}

func (s *Store) Winners(ctx context.Context, code string) ([]GameWinner, error) {
	var winners []GameWinner
	err := s.db(ctx).Where("game_code = ?", code).Find(&winners).Error
	return winners, err
}

// --- chat queue ---

func (s *Store) EnqueueChatMessages(ctx context.Context, code string, messages []string) error {
	if len(messages) == 0 {
		return nil
	}
	rows := make([]ChatMessage, 0, len(messages))
	for _, message := range messages {
		rows = append(rows, ChatMessage{GameCode: code, Message: message})
	}
	return s.db(ctx).Create(&rows).Error
}

// ClaimChatMessages stamps every unclaimed, unsent message with lockID so one
// sender instance owns them.
func (s *Store) ClaimChatMessages(ctx context.Context, lockID string) (int64, error) {
	result := s.db(ctx).Model(&ChatMessage{}).
		Where("lock_id IS NULL AND sent = false").
		Update("lock_id", lockID)
	return result.RowsAffected, result.Error
}

func (s *Store) MessagesByLock(ctx context.Context, lockID string) ([]ChatMessage, error) {
	var messages []ChatMessage
	err := s.db(ctx).Where("lock_id = ? AND sent = false", lockID).Order("id").Find(&messages).Error
	return messages, err
}

func (s *Store) MarkMessagesSent(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db(ctx).Model(&ChatMessage{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"lock_id": nil, "sent": true}).Error
}

// ReleaseChatMessages puts claimed-but-unsent messages back in the queue.
func (s *Store) ReleaseChatMessages(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db(ctx).Model(&ChatMessage{}).
		Where("id IN ?", ids).
		Update("lock_id", nil).Error
}

// GameHosts maps each game code to the user id of its host.
func (s *Store) GameHosts(ctx context.Context, codes []string) (map[string]string, error) {
	if len(codes) == 0 {
		return map[string]string{}, nil
	}
	var games []Game
	if err := s.db(ctx).Where("game_code IN ?", codes).Find(&games).Error; err != nil {
		return nil, err
	}
	hosts := make(map[string]string, len(games))
	for _, game := range games {
		hosts[game.GameCode] = game.UserID
	}
	return hosts, nil
}

// --- events ---

// SaveEvent appends one published event to the audit trail.
func (s *Store) SaveEvent(ctx context.Context, code, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	event := GameEvent{GameCode: code, Type: eventType, Payload: data}
	return s.db(ctx).Create(&event).Error
}

// --- summaries ---

func (s *Store) HostedSummaries(ctx context.Context, userID string) ([]HostedSummary, error) {
	var summaries []HostedSummary
	err := s.db(ctx).Model(&Game{}).
		Select(`games.game_code, games.name, games.status, games.created_at,
			(SELECT COUNT(*) FROM game_players WHERE game_players.game_code = games.game_code) AS players_count,
			(SELECT COUNT(*) FROM game_item_outcomes WHERE game_item_outcomes.game_code = games.game_code) AS total_drops,
			(SELECT COUNT(*) FROM game_winners WHERE game_winners.game_code = games.game_code) AS winners_count`).
		Where("games.user_id = ?", userID).
		Order("games.created_at DESC").
		Scan(&summaries).Error
	return summaries, err
}

func (s *Store) JoinedSummaries(ctx context.Context, userID string) ([]JoinedSummary, error) {
	var summaries []JoinedSummary
	err := s.db(ctx).Model(&GamePlayer{}).
		Select(`games.game_code, games.name, games.status, users.username AS host, game_players.points,
			EXISTS(SELECT 1 FROM game_winners WHERE game_winners.game_player_id = game_players.id) AS is_winner,
			(SELECT COUNT(*) FROM game_item_outcomes WHERE game_item_outcomes.game_code = games.game_code) AS total_drops`).
		Joins("JOIN games ON games.game_code = game_players.game_code").
		Joins("JOIN users ON users.user_id = games.user_id").
		Where("game_players.user_id = ?", userID).
		Order("games.created_at DESC").
		Scan(&summaries).Error
	return summaries, err
}
