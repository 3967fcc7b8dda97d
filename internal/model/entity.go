package model

import "time"

// GameRecord is the Postgres row for a persisted game (GORM). Payload holds
// the serialized GameDocument; the store never queries into it.
type GameRecord struct {
	GameCode  string    `gorm:"primaryKey;size:16"`
	Payload   []byte    `gorm:"type:jsonb;not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (GameRecord) TableName() string { return "game_records" }
