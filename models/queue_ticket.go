package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketStatus indicates where a queue ticket is in matchmaking
type TicketStatus string

const (
	TicketStatusWaiting   TicketStatus = "waiting"
	TicketStatusMatched   TicketStatus = "matched"
	TicketStatusCancelled TicketStatus = "cancelled"
	TicketStatusExpired   TicketStatus = "expired"
)

// QueueTicket is one player's request to be paired for a match.
// A player holds at most one waiting ticket, enforced by a partial unique index.
type QueueTicket struct {
	ID            string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	PlayerAddress string          `gorm:"type:varchar(128);not null;index;uniqueIndex:idx_queue_one_waiting,where:status = 'waiting'" json:"player_address"`
	EntryFee      decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"entry_fee"`
	Status        TicketStatus    `gorm:"type:varchar(16);not null;index" json:"status"`
	MatchID       *string         `gorm:"type:varchar(64)" json:"match_id,omitempty"`
	MatchedWith   *string         `gorm:"type:varchar(128)" json:"matched_with,omitempty"`
	MatchedAt     *time.Time      `json:"matched_at,omitempty"`
	ClosedAt      *time.Time      `json:"closed_at,omitempty"`

	Timestamps
}
