package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchStatus tracks a match through entry, play and settlement.
type MatchStatus string

const (
	MatchStatusReady      MatchStatus = "ready"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusFinished   MatchStatus = "finished"
)

// PayoutStatus summarizes the payout ledger rows of a finished match.
type PayoutStatus string

const (
	PayoutStatusNone     PayoutStatus = "none"
	PayoutStatusPending  PayoutStatus = "pending"
	PayoutStatusPaid     PayoutStatus = "paid"
	PayoutStatusRefunded PayoutStatus = "refunded"
	PayoutStatusFailed   PayoutStatus = "failed"
)

// Slot identifies which side of a match a player occupies.
type Slot string

const (
	SlotPlayer1 Slot = "p1"
	SlotPlayer2 Slot = "p2"
)

// Match is a best-of-N duel between two player addresses.
type Match struct {
	ID           string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Player1      string          `gorm:"type:varchar(128);not null;index" json:"player1"`
	Player2      string          `gorm:"type:varchar(128);not null;index" json:"player2"`
	TotalRounds  int             `gorm:"not null" json:"total_rounds"`
	EntryFee     decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"entry_fee"`
	PrizePool    decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"prize_pool"`
	CurrentRound int             `gorm:"not null" json:"current_round"`
	ScoreP1      int             `gorm:"not null;default:0" json:"score_p1"`
	ScoreP2      int             `gorm:"not null;default:0" json:"score_p2"`
	Status       MatchStatus     `gorm:"type:varchar(16);not null;index" json:"status"`
	Winner       *string         `gorm:"type:varchar(128)" json:"winner"`

	Paid            bool         `gorm:"not null;default:false" json:"paid"`
	PayoutReference *string      `gorm:"type:varchar(128)" json:"payout_reference,omitempty"`
	PayoutStatus    PayoutStatus `gorm:"type:varchar(16);not null;default:'none'" json:"payout_status"`

	// Entry deposits, verified with the wallet service before play starts.
	P1EntryConfirmed bool    `gorm:"not null;default:false" json:"p1_entry_confirmed"`
	P2EntryConfirmed bool    `gorm:"not null;default:false" json:"p2_entry_confirmed"`
	P1EntryTx        *string `gorm:"type:varchar(128)" json:"p1_entry_tx,omitempty"`
	P2EntryTx        *string `gorm:"type:varchar(128)" json:"p2_entry_tx,omitempty"`

	IsPractice   bool       `gorm:"not null;default:false" json:"is_practice"`
	ForfeitedBy  *string    `gorm:"type:varchar(128)" json:"forfeited_by,omitempty"`
	LastActionAt time.Time  `gorm:"index" json:"last_action_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`

	Rounds []Round `gorm:"foreignKey:MatchID;references:ID" json:"rounds,omitempty"`

	Timestamps
}

// SlotOf reports which side address plays on.
func (m *Match) SlotOf(address string) (Slot, bool) {
	switch address {
	case m.Player1:
		return SlotPlayer1, true
	case m.Player2:
		return SlotPlayer2, true
	}
	return "", false
}

// Opponent returns the other side's address.
func (m *Match) Opponent(slot Slot) string {
	if slot == SlotPlayer1 {
		return m.Player2
	}
	return m.Player1
}

// OpponentSlot returns the side facing slot.
func (m *Match) OpponentSlot(slot Slot) Slot {
	if slot == SlotPlayer1 {
		return SlotPlayer2
	}
	return SlotPlayer1
}

func (m *Match) EntryConfirmed(slot Slot) bool {
	if slot == SlotPlayer1 {
		return m.P1EntryConfirmed
	}
	return m.P2EntryConfirmed
}

// WinsNeeded is the score that ends the match early.
func (m *Match) WinsNeeded() int {
	return (m.TotalRounds + 1) / 2
}

func (m *Match) IsFinished() bool {
	return m.Status == MatchStatusFinished
}
