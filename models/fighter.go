package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Fighter is the persistent profile attached to a player address.
// Fighters are created on first sight and never deleted.
type Fighter struct {
	Address    string                          `gorm:"primaryKey;type:varchar(128)" json:"address"`
	Name       string                          `gorm:"type:varchar(64);not null" json:"name"`
	Handle     string                          `gorm:"type:varchar(80);index" json:"handle"`
	IsAI       bool                            `gorm:"not null;default:false;index" json:"is_ai"`
	Style      datatypes.JSONType[MoveWeights] `json:"style"`
	Wins       int                             `gorm:"not null;default:0;index" json:"wins"`
	Losses     int                             `gorm:"not null;default:0" json:"losses"`
	Draws      int                             `gorm:"not null;default:0" json:"draws"`
	Earnings   decimal.Decimal                 `gorm:"type:numeric(20,6);not null;default:0" json:"earnings"`
	LastSeenAt *time.Time                      `json:"last_seen_at,omitempty"`

	// Archetype is derived from Style when the fighter is served.
	Archetype string `gorm:"-" json:"archetype"`

	Timestamps
}
