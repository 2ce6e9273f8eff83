package db

import "context"

// GameStore is the persistence surface the game engine and HTTP layer depend
// on. *Store implements it against Postgres; *MemoryStore implements it
// in-memory for tests and database-less development.
type GameStore interface {
	InTransaction(ctx context.Context, fn func(GameStore) error) error

	FindUser(ctx context.Context, userID string) (*User, bool, error)
	FindUserBySession(ctx context.Context, sid string) (*User, bool, error)

	FindTemplate(ctx context.Context, templateID uint, userID string) (*GameTemplate, bool, error)
	TemplatesByUser(ctx context.Context, userID string) ([]GameTemplate, error)
	CountTemplatesByUser(ctx context.Context, userID string) (int64, error)
	CreateTemplate(ctx context.Context, template *GameTemplate) error

	FindGame(ctx context.Context, code string) (*Game, bool, error)
	GameCodeExists(ctx context.Context, code string) (bool, error)
	CreateGame(ctx context.Context, game *Game, items []GameItem) error
	SetGameLocked(ctx context.Context, code string, locked bool) error
	SetGameStatus(ctx context.Context, code string, status string) error
	TouchGame(ctx context.Context, code string) error

	FindItem(ctx context.Context, code string, itemID uint) (*GameItem, bool, error)
	GameItems(ctx context.Context, code string) ([]GameItem, error)
	SetItemEnabled(ctx context.Context, code string, itemID uint, enabled bool) error

	FindOrCreatePlayer(ctx context.Context, code, userID string) (*GamePlayer, bool, error)
	FindPlayer(ctx context.Context, code, userID string) (*GamePlayer, bool, error)
	CountPlayers(ctx context.Context, code string) (int64, error)
	PlayerStandings(ctx context.Context, code string) ([]PlayerStanding, error)
	AwardPoints(ctx context.Context, playerIDs []uint) error

	FindPendingGuess(ctx context.Context, code string, playerID uint) (*PlayerGuess, bool, error)
	CreateGuess(ctx context.Context, guess *PlayerGuess) error
	MoveGuess(ctx context.Context, guessID, itemID uint) error
	CountPendingGuesses(ctx context.Context, code string) (int64, error)
	CountPendingGuessesForItem(ctx context.Context, code string, itemID uint) (int64, error)
	PendingGuessCounts(ctx context.Context, code string) (map[uint]int64, error)
	DeletePendingGuesses(ctx context.Context, code string) error
	PendingGuessersForItem(ctx context.Context, code string, itemID uint) ([]PendingGuesser, error)
	InsertOutcome(ctx context.Context, code string, itemID uint) (uint, error)
	StampPendingGuesses(ctx context.Context, code string, outcomeID uint) error
	CountOutcomes(ctx context.Context, code string) (int64, error)

	InsertWinners(ctx context.Context, code string, playerIDs []uint) error
	Winners(ctx context.Context, code string) ([]GameWinner, error)

	EnqueueChatMessages(ctx context.Context, code string, messages []string) error

	SaveEvent(ctx context.Context, code, eventType string, payload any) error

	HostedSummaries(ctx context.Context, userID string) ([]HostedSummary, error)
	JoinedSummaries(ctx context.Context, userID string) ([]JoinedSummary, error)
}

// ChatQueue is the narrow surface the chat relay sender needs.
type ChatQueue interface {
	ClaimChatMessages(ctx context.Context, lockID string) (int64, error)
	MessagesByLock(ctx context.Context, lockID string) ([]ChatMessage, error)
	MarkMessagesSent(ctx context.Context, ids []uint) error
	ReleaseChatMessages(ctx context.Context, ids []uint) error
	GameHosts(ctx context.Context, codes []string) (map[string]string, error)
	FindUser(ctx context.Context, userID string) (*User, bool, error)
	ChatSession(ctx context.Context, userID string) (*SessionAuth, bool, error)
	UpdateSessionTokens(ctx context.Context, sessionID uint, accessToken, refreshToken string, expiry int64) error
}
