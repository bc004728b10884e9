package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayoutKind string

const (
	PayoutKindPrize  PayoutKind = "prize"
	PayoutKindRefund PayoutKind = "refund"
)

// PayoutState is the delivery state of one ledger row.
type PayoutState string

const (
	PayoutStatePending PayoutState = "pending"
	PayoutStateSending PayoutState = "sending"
	PayoutStateSent    PayoutState = "sent"
	PayoutStateFailed  PayoutState = "failed"
)

// Payout is a ledger row for money leaving the arena. IdempotencyKey is
// unique, so planning the same settlement twice cannot create a second row,
// and the wallet service deduplicates on the same key.
type Payout struct {
	ID             string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	MatchID        string          `gorm:"type:varchar(64);not null;index" json:"match_id"`
	Kind           PayoutKind      `gorm:"type:varchar(16);not null" json:"kind"`
	ToAddress      string          `gorm:"type:varchar(128);not null" json:"to_address"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"amount"`
	IdempotencyKey string          `gorm:"type:varchar(160);not null;uniqueIndex" json:"idempotency_key"`
	Status         PayoutState     `gorm:"type:varchar(16);not null;index" json:"status"`
	ReceiptID      *string         `gorm:"type:varchar(128)" json:"receipt_id,omitempty"`
	Attempts       int             `gorm:"not null;default:0" json:"attempts"`
	LastError      string          `gorm:"type:text" json:"last_error,omitempty"`
	ClaimedAt      *time.Time      `json:"claimed_at,omitempty"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`

	Timestamps
}
