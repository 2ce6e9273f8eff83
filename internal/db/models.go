package db

import (
	"time"

	"gorm.io/datatypes"
)

const (
	GameStatusActive   = "ACTIVE"
	GameStatusFinished = "FINISHED"
)

type User struct {
	UserID      string    `gorm:"primaryKey;size:64"`
	Username    string    `gorm:"size:64;not null"`
	TwitchLogin string    `gorm:"size:64;not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type SessionAuth struct {
	ID           uint      `gorm:"primaryKey"`
	SID          string    `gorm:"size:64;uniqueIndex;not null"`
	UserID       string    `gorm:"size:64;index;not null"`
	AccessToken  string    `gorm:"size:255;not null"`
	RefreshToken string    `gorm:"size:255;not null"`
	Expiry       int64     `gorm:"not null"`
	CanChat      bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type GameTemplate struct {
	ID                 uint      `gorm:"primaryKey"`
	UserID             string    `gorm:"size:64;index;not null"`
	Name               string    `gorm:"size:64;not null"`
	RewardMessage      *string   `gorm:"size:255"`
	TotalRewardMessage *string   `gorm:"size:255"`
	AutoLock           bool      `gorm:"not null;default:false"`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
	Items              []GameItemTemplate
}

type GameItemTemplate struct {
	ID             uint    `gorm:"primaryKey"`
	GameTemplateID uint    `gorm:"index;not null"`
	Name           string  `gorm:"size:64;not null"`
	Image          *string `gorm:"size:255"`
	StartEnabled   bool    `gorm:"not null;default:true"`
}

type Game struct {
	GameCode           string    `gorm:"primaryKey;size:12"`
	UserID             string    `gorm:"size:64;index;not null"`
	Status             string    `gorm:"size:16;not null"`
	Name               string    `gorm:"size:64;not null"`
	AutoLock           bool      `gorm:"not null;default:false"`
	IsLocked           bool      `gorm:"not null;default:false"`
	RewardMessage      *string   `gorm:"size:255"`
	TotalRewardMessage *string   `gorm:"size:255"`
	CreatedAt          time.Time `gorm:"not null"`
	ActiveAt           time.Time `gorm:"not null"`
}

type GameItem struct {
	ID       uint    `gorm:"primaryKey"`
	GameCode string  `gorm:"size:12;index;not null"`
	Name     string  `gorm:"size:64;not null"`
	Image    *string `gorm:"size:255"`
	Enabled  bool    `gorm:"not null;default:true"`
}

type GamePlayer struct {
	ID       uint   `gorm:"primaryKey"`
	GameCode string `gorm:"size:12;not null;uniqueIndex:idx_game_players_game_user"`
	UserID   string `gorm:"size:64;not null;uniqueIndex:idx_game_players_game_user"`
	Points   int    `gorm:"not null;default:0"`
}

type PlayerGuess struct {
	ID        uint      `gorm:"primaryKey"`
	GameCode  string    `gorm:"size:12;index;not null"`
	PlayerID  uint      `gorm:"index;not null"`
	ItemID    uint      `gorm:"index;not null"`
	OutcomeID *uint     `gorm:"index"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type GameItemOutcome struct {
	ID        uint      `gorm:"primaryKey"`
	GameCode  string    `gorm:"size:12;index;not null"`
	ItemID    uint      `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type GameWinner struct {
	ID           uint   `gorm:"primaryKey"`
	GameCode     string `gorm:"size:12;index;not null"`
	GamePlayerID uint   `gorm:"index;not null"`
}

type ChatMessage struct {
	ID        uint      `gorm:"primaryKey"`
	GameCode  string    `gorm:"size:12;index;not null"`
	Message   string    `gorm:"size:512;not null"`
	LockID    *string   `gorm:"size:64;index"`
	Sent      bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null"`
}

type GameEvent struct {
	ID        uint           `gorm:"primaryKey"`
	GameCode  string         `gorm:"size:12;index;not null"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
