package db

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory GameStore used by tests and when the server
// runs without DATABASE_URL. Individual calls are safe for concurrent use;
// multi-call atomicity comes from the engine's per-room serialization, the
// same property the Postgres store gets from transactions plus that lock.
type MemoryStore struct {
	mu sync.Mutex

	nextID    uint
	users     map[string]*User
	sessions  map[string]*SessionAuth
	templates map[uint]*GameTemplate
	games     map[string]*Game
	items     map[uint]*GameItem
	players   map[uint]*GamePlayer
	guesses   map[uint]*PlayerGuess
	outcomes  map[uint]*GameItemOutcome
	winners   []GameWinner
	messages  map[uint]*ChatMessage
	events    []GameEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:    1,
		users:     make(map[string]*User),
		sessions:  make(map[string]*SessionAuth),
		templates: make(map[uint]*GameTemplate),
		games:     make(map[string]*Game),
		items:     make(map[uint]*GameItem),
		players:   make(map[uint]*GamePlayer),
		guesses:   make(map[uint]*PlayerGuess),
		outcomes:  make(map[uint]*GameItemOutcome),
		messages:  make(map[uint]*ChatMessage),
	}
}

func (m *MemoryStore) id() uint {
	id := m.nextID
	m.nextID++
	return id
}

// InTransaction runs fn directly: rollback fidelity is not modelled, the
// engine's room lock keeps the sequence exclusive.
func (m *MemoryStore) InTransaction(ctx context.Context, fn func(GameStore) error) error {
	return fn(m)
}

// --- fixtures ---

// AddUser seeds a user row. Test helper.
func (m *MemoryStore) AddUser(user User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := user
	m.users[user.UserID] = &u
}

// AddSession seeds a session row. Test helper.
func (m *MemoryStore) AddSession(auth SessionAuth) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := auth
	if a.ID == 0 {
		a.ID = m.id()
	}
	m.sessions[a.SID] = &a
}

// --- users and sessions ---

func (m *MemoryStore) FindUser(ctx context.Context, userID string) (*User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return nil, false, nil
	}
	copied := *user
	return &copied, true, nil
}

func (m *MemoryStore) FindUserBySession(ctx context.Context, sid string) (*User, bool, error) {
	m.mu.Lock()
	auth, ok := m.sessions[sid]
	if ok && auth.Expiry > 0 && auth.Expiry < time.Now().Unix() {
		ok = false
	}
	var userID string
	if ok {
		userID = auth.UserID
	}
	m.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	return m.FindUser(ctx, userID)
}

func (m *MemoryStore) ChatSession(ctx context.Context, userID string) (*SessionAuth, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *SessionAuth
	for _, auth := range m.sessions {
		if auth.UserID != userID || !auth.CanChat {
			continue
		}
		if found == nil || auth.ID > found.ID {
			found = auth
		}
	}
	if found == nil {
		return nil, false, nil
	}
	copied := *found
	return &copied, true, nil
}

func (m *MemoryStore) UpdateSessionTokens(ctx context.Context, sessionID uint, accessToken, refreshToken string, expiry int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, auth := range m.sessions {
		if auth.ID == sessionID {
			auth.AccessToken = accessToken
			auth.RefreshToken = refreshToken
			auth.Expiry = expiry
			return nil
		}
	}
	return errors.New("session not found")
}

// --- templates ---

func (m *MemoryStore) FindTemplate(ctx context.Context, templateID uint, userID string) (*GameTemplate, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	template, ok := m.templates[templateID]
	if !ok || template.UserID != userID {
		return nil, false, nil
	}
	copied := *template
	copied.Items = append([]GameItemTemplate(nil), template.Items...)
	return &copied, true, nil
}

func (m *MemoryStore) TemplatesByUser(ctx context.Context, userID string) ([]GameTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var templates []GameTemplate
	for _, template := range m.templates {
		if template.UserID != userID {
			continue
		}
		copied := *template
		copied.Items = append([]GameItemTemplate(nil), template.Items...)
		templates = append(templates, copied)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}

func (m *MemoryStore) CountTemplatesByUser(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, template := range m.templates {
		if template.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CreateTemplate(ctx context.Context, template *GameTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	template.ID = m.id()
	for i := range template.Items {
		template.Items[i].ID = m.id()
		template.Items[i].GameTemplateID = template.ID
	}
	copied := *template
	copied.Items = append([]GameItemTemplate(nil), template.Items...)
	m.templates[template.ID] = &copied
	return nil
}

// --- games ---

func (m *MemoryStore) FindGame(ctx context.Context, code string) (*Game, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	game, ok := m.games[code]
	if !ok {
		return nil, false, nil
	}
	copied := *game
	return &copied, true, nil
}

func (m *MemoryStore) GameCodeExists(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.games[code]
	return ok, nil
}

func (m *MemoryStore) CreateGame(ctx context.Context, game *Game, items []GameItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[game.GameCode]; ok {
		return errors.New("duplicate game code")
	}
	copied := *game
	m.games[game.GameCode] = &copied
	for i := range items {
		items[i].ID = m.id()
		items[i].GameCode = game.GameCode
		item := items[i]
		m.items[item.ID] = &item
	}
	return nil
}

func (m *MemoryStore) SetGameLocked(ctx context.Context, code string, locked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	game, ok := m.games[code]
	if !ok {
		return errors.New("game not found")
	}
	game.IsLocked = locked
	game.ActiveAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) SetGameStatus(ctx context.Context, code string, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	game, ok := m.games[code]
	if !ok {
		return errors.New("game not found")
	}
	game.Status = status
	game.ActiveAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) TouchGame(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if game, ok := m.games[code]; ok {
		game.ActiveAt = time.Now().UTC()
	}
	return nil
}

// --- items ---

func (m *MemoryStore) FindItem(ctx context.Context, code string, itemID uint) (*GameItem, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok || item.GameCode != code {
		return nil, false, nil
	}
	copied := *item
	return &copied, true, nil
}

func (m *MemoryStore) GameItems(ctx context.Context, code string) ([]GameItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []GameItem
	for _, item := range m.items {
		if item.GameCode == code {
			items = append(items, *item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *MemoryStore) SetItemEnabled(ctx context.Context, code string, itemID uint, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok || item.GameCode != code {
		return errors.New("item not found")
	}
	item.Enabled = enabled
	return nil
}

// --- players ---

func (m *MemoryStore) FindOrCreatePlayer(ctx context.Context, code, userID string) (*GamePlayer, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, player := range m.players {
		if player.GameCode == code && player.UserID == userID {
			copied := *player
			return &copied, false, nil
		}
	}
	player := &GamePlayer{ID: m.id(), GameCode: code, UserID: userID}
	m.players[player.ID] = player
	copied := *player
	return &copied, true, nil
}

func (m *MemoryStore) FindPlayer(ctx context.Context, code, userID string) (*GamePlayer, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, player := range m.players {
		if player.GameCode == code && player.UserID == userID {
			copied := *player
			return &copied, true, nil
		}
	}
	return nil, false, nil
}

func (m *MemoryStore) CountPlayers(ctx context.Context, code string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, player := range m.players {
		if player.GameCode == code {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) PlayerStandings(ctx context.Context, code string) ([]PlayerStanding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var standings []PlayerStanding
	for _, player := range m.players {
		if player.GameCode != code {
			continue
		}
		standing := PlayerStanding{
			GamePlayerID: player.ID,
			UserID:       player.UserID,
			Points:       player.Points,
		}
		if user, ok := m.users[player.UserID]; ok {
			standing.Username = user.Username
		}
		standings = append(standings, standing)
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Points != standings[j].Points {
			return standings[i].Points > standings[j].Points
		}
		return standings[i].Username < standings[j].Username
	})
	return standings, nil
}

func (m *MemoryStore) AwardPoints(ctx context.Context, playerIDs []uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range playerIDs {
		if player, ok := m.players[id]; ok {
			player.Points++
		}
	}
	return nil
}

// --- guesses and outcomes ---

func (m *MemoryStore) FindPendingGuess(ctx context.Context, code string, playerID uint) (*PlayerGuess, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, guess := range m.guesses {
		if guess.GameCode == code && guess.PlayerID == playerID && guess.OutcomeID == nil {
			copied := *guess
			return &copied, true, nil
		}
	}
	return nil, false, nil
}

func (m *MemoryStore) CreateGuess(ctx context.Context, guess *PlayerGuess) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	guess.ID = m.id()
	guess.CreatedAt = time.Now().UTC()
	guess.UpdatedAt = guess.CreatedAt
	copied := *guess
	m.guesses[guess.ID] = &copied
	return nil
}

func (m *MemoryStore) MoveGuess(ctx context.Context, guessID, itemID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	guess, ok := m.guesses[guessID]
	if !ok {
		return errors.New("guess not found")
	}
	guess.ItemID = itemID
	guess.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) CountPendingGuesses(ctx context.Context, code string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, guess := range m.guesses {
		if guess.GameCode == code && guess.OutcomeID == nil {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CountPendingGuessesForItem(ctx context.Context, code string, itemID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, guess := range m.guesses {
		if guess.GameCode == code && guess.ItemID == itemID && guess.OutcomeID == nil {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) PendingGuessCounts(ctx context.Context, code string) (map[uint]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[uint]int64)
	for _, guess := range m.guesses {
		if guess.GameCode == code && guess.OutcomeID == nil {
			counts[guess.ItemID]++
		}
	}
	return counts, nil
}

func (m *MemoryStore) DeletePendingGuesses(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, guess := range m.guesses {
		if guess.GameCode == code && guess.OutcomeID == nil {
			delete(m.guesses, id)
		}
	}
	return nil
}

func (m *MemoryStore) PendingGuessersForItem(ctx context.Context, code string, itemID uint) ([]PendingGuesser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uint]struct{})
	var guessers []PendingGuesser
	for _, guess := range m.guesses {
		if guess.GameCode != code || guess.ItemID != itemID || guess.OutcomeID != nil {
			continue
		}
		if _, dup := seen[guess.PlayerID]; dup {
			continue
		}
		seen[guess.PlayerID] = struct{}{}
		guesser := PendingGuesser{GamePlayerID: guess.PlayerID}
		if player, ok := m.players[guess.PlayerID]; ok {
			guesser.UserID = player.UserID
			if user, ok := m.users[player.UserID]; ok {
				guesser.Username = user.Username
			}
		}
		guessers = append(guessers, guesser)
	}
	sort.Slice(guessers, func(i, j int) bool { return guessers[i].GamePlayerID < guessers[j].GamePlayerID })
	return guessers, nil
}

func (m *MemoryStore) InsertOutcome(ctx context.Context, code string, itemID uint) (uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	outcome := &GameItemOutcome{ID: m.id(), GameCode: code, ItemID: itemID, CreatedAt: time.Now().UTC()}
	m.outcomes[outcome.ID] = outcome
	return outcome.ID, nil
}

func (m *MemoryStore) StampPendingGuesses(ctx context.Context, code string, outcomeID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, guess := range m.guesses {
		if guess.GameCode == code && guess.OutcomeID == nil {
			id := outcomeID
			guess.OutcomeID = &id
		}
	}
	return nil
}

func (m *MemoryStore) CountOutcomes(ctx context.Context, code string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, outcome := range m.outcomes {
		if outcome.GameCode == code {
			count++
		}
	}
	return count, nil
}

// --- winners ---

func (m *MemoryStore) InsertWinners(ctx context.Context, code string, playerIDs []uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range playerIDs {
		m.winners = append(m.winners, GameWinner{ID: m.id(), GameCode: code, GamePlayerID: id})
	}
	return nil
}

func (m *MemoryStore) Winners(ctx context.Context, code string) ([]GameWinner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var winners []GameWinner
	for _, winner := range m.winners {
		if winner.GameCode == code {
			winners = append(winners, winner)
		}
	}
	return winners, nil
}

// --- chat queue ---

func (m *MemoryStore) EnqueueChatMessages(ctx context.Context, code string, messages []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, message := range messages {
		row := &ChatMessage{ID: m.id(), GameCode: code, Message: message, CreatedAt: time.Now().UTC()}
		m.messages[row.ID] = row
	}
	return nil
}

func (m *MemoryStore) ClaimChatMessages(ctx context.Context, lockID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed int64
	for _, message := range m.messages {
		if message.LockID == nil && !message.Sent {
			lock := lockID
			message.LockID = &lock
			claimed++
		}
	}
	return claimed, nil
}

func (m *MemoryStore) MessagesByLock(ctx context.Context, lockID string) ([]ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var messages []ChatMessage
	for _, message := range m.messages {
		if message.LockID != nil && *message.LockID == lockID && !message.Sent {
			messages = append(messages, *message)
		}
	}
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	return messages, nil
}

func (m *MemoryStore) MarkMessagesSent(ctx context.Context, ids []uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if message, ok := m.messages[id]; ok {
			message.LockID = nil
			message.Sent = true
		}
	}
	return nil
}

func (m *MemoryStore) ReleaseChatMessages(ctx context.Context, ids []uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if message, ok := m.messages[id]; ok {
			message.LockID = nil
		}
	}
	return nil
}

func (m *MemoryStore) GameHosts(ctx context.Context, codes []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hosts := make(map[string]string, len(codes))
	for _, code := range codes {
		if game, ok := m.games[code]; ok {
			hosts[code] = game.UserID
		}
	}
	return hosts, nil
}

// --- events ---

func (m *MemoryStore) SaveEvent(ctx context.Context, code, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, GameEvent{
		ID:        m.id(),
		GameCode:  code,
		Type:      eventType,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// Events returns the audit trail for a game. Test helper.
func (m *MemoryStore) Events(code string) []GameEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []GameEvent
	for _, event := range m.events {
		if event.GameCode == code {
			events = append(events, event)
		}
	}
	return events
}

// --- summaries ---

func (m *MemoryStore) HostedSummaries(ctx context.Context, userID string) ([]HostedSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var summaries []HostedSummary
	for _, game := range m.games {
		if game.UserID != userID {
			continue
		}
		summary := HostedSummary{
			GameCode:  game.GameCode,
			Name:      game.Name,
			Status:    game.Status,
			CreatedAt: game.CreatedAt,
		}
		for _, player := range m.players {
			if player.GameCode == game.GameCode {
				summary.PlayersCount++
			}
		}
		for _, outcome := range m.outcomes {
			if outcome.GameCode == game.GameCode {
				summary.TotalDrops++
			}
		}
		for _, winner := range m.winners {
			if winner.GameCode == game.GameCode {
				summary.WinnersCount++
			}
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].CreatedAt.After(summaries[j].CreatedAt) })
	return summaries, nil
}

func (m *MemoryStore) JoinedSummaries(ctx context.Context, userID string) ([]JoinedSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var summaries []JoinedSummary
	for _, player := range m.players {
		if player.UserID != userID {
			continue
		}
		game, ok := m.games[player.GameCode]
		if !ok {
			continue
		}
		summary := JoinedSummary{
			GameCode: game.GameCode,
			Name:     game.Name,
			Status:   game.Status,
			Points:   player.Points,
		}
		if host, ok := m.users[game.UserID]; ok {
			summary.Host = host.Username
		}
		for _, winner := range m.winners {
			if winner.GamePlayerID == player.ID {
				summary.IsWinner = true
			}
		}
		for _, outcome := range m.outcomes {
			if outcome.GameCode == game.GameCode {
				summary.TotalDrops++
			}
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].GameCode < summaries[j].GameCode })
	return summaries, nil
}
