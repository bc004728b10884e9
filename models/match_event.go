package models

import (
	"time"

	"gorm.io/datatypes"
)

// MatchEvent is an outbox row written in the same transaction as the state
// change it describes. Seq orders events for replay.
type MatchEvent struct {
	Seq       uint64         `gorm:"primaryKey;autoIncrement" json:"seq"`
	ID        string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"id"`
	MatchID   string         `gorm:"type:varchar(64);not null;index" json:"matchId"`
	Type      string         `gorm:"type:varchar(32);not null" json:"type"`
	Sender    string         `gorm:"type:varchar(128)" json:"sender"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"timestamp"`
}
