package pubsub

// PlayerActionType names an event originating from a player, delivered to the
// host's live view.
type PlayerActionType string

const (
	PlayerJoin               PlayerActionType = "join"
	PlayerGuess              PlayerActionType = "guess"
	PlayerUndoGuess          PlayerActionType = "undo_guess"
	PlayerEnableClearGuesses PlayerActionType = "enable_clear_guesses"
)

// HostActionType names an event originating from the host, delivered to every
// player live view in the room.
type HostActionType string

const (
	HostLock         HostActionType = "lock"
	HostUnlock       HostActionType = "unlock"
	HostChoose       HostActionType = "choose"
	HostEnable       HostActionType = "enable"
	HostDisable      HostActionType = "disable"
	HostClearGuesses HostActionType = "clear_guesses"
	HostFinish       HostActionType = "finish"
)

// PlayerAction is one player-originated event. Only the fields relevant to
// Type are populated; consumers switch on Type.
type PlayerAction struct {
	GameCode    string           `json:"game_code"`
	UserID      string           `json:"user_id"`
	Type        PlayerActionType `json:"type"`
	ItemID      uint             `json:"item_id,omitempty"`
	GuessCount  int64            `json:"guess_count,omitempty"`
	PlayerCount int64            `json:"player_count,omitempty"`
}

// HostAction is one host-originated event.
type HostAction struct {
	GameCode string         `json:"game_code"`
	Type     HostActionType `json:"type"`
	ItemID   uint           `json:"item_id,omitempty"`
	Locked   bool           `json:"locked,omitempty"`
}
