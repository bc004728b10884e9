package models

import "time"

// RoundWinner is the outcome of a resolved round.
type RoundWinner string

const (
	RoundWinnerPlayer1 RoundWinner = "player1"
	RoundWinnerPlayer2 RoundWinner = "player2"
	RoundWinnerDraw    RoundWinner = "draw"
)

// Round holds the commit-reveal state of one round of a match.
type Round struct {
	ID          string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	MatchID     string `gorm:"type:varchar(64);not null;uniqueIndex:idx_rounds_match_number" json:"match_id"`
	RoundNumber int    `gorm:"not null;uniqueIndex:idx_rounds_match_number" json:"round_number"`

	P1Commit *string `gorm:"type:varchar(64)" json:"p1_commit,omitempty"`
	P2Commit *string `gorm:"type:varchar(64)" json:"p2_commit,omitempty"`
	P1Move   *Move   `gorm:"type:varchar(16)" json:"p1_move,omitempty"`
	P2Move   *Move   `gorm:"type:varchar(16)" json:"p2_move,omitempty"`
	P1Secret *string `gorm:"type:varchar(128)" json:"p1_secret,omitempty"`
	P2Secret *string `gorm:"type:varchar(128)" json:"p2_secret,omitempty"`

	Winner      *RoundWinner `gorm:"type:varchar(16)" json:"winner,omitempty"`
	Description string       `gorm:"type:text" json:"description,omitempty"`
	Resolved    bool         `gorm:"not null;default:false" json:"resolved"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty"`

	Timestamps
}

// Commit returns the commitment stored for slot.
func (r *Round) Commit(slot Slot) *string {
	if slot == SlotPlayer1 {
		return r.P1Commit
	}
	return r.P2Commit
}

// Move returns the revealed move for slot.
func (r *Round) Move(slot Slot) *Move {
	if slot == SlotPlayer1 {
		return r.P1Move
	}
	return r.P2Move
}

// HasReveal reports whether either side has opened its commitment.
func (r *Round) HasReveal() bool {
	return r.P1Move != nil || r.P2Move != nil
}
