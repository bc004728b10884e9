package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"duel-arena/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Archiver stores finished match transcripts.
type Archiver interface {
	PutJSON(ctx context.Context, key string, body []byte) (string, error)
}

// SettlementService plans and delivers prize and refund payouts. Every
// payout is a ledger row with a unique idempotency key; delivery claims the
// row before calling the wallet, so a payout is sent at most once per claim
// and the key makes retries safe on the wallet side.
type SettlementService struct {
	DB      *gorm.DB
	Gateway PaymentGateway
	Bus     EventBus
	Archive Archiver

	HouseFeePercent decimal.Decimal
	// ClaimTTL is how long a "sending" claim is honoured before another
	// worker may take the payout over.
	ClaimTTL    time.Duration
	MaxAttempts int
	Now         func() time.Time
}

func NewSettlementService(db *gorm.DB, gateway PaymentGateway, bus EventBus) *SettlementService {
	return &SettlementService{
		DB:              db,
		Gateway:         gateway,
		Bus:             bus,
		HouseFeePercent: decimal.Zero,
		ClaimTTL:        2 * time.Minute,
		MaxAttempts:     10,
		Now:             utcNow,
	}
}

var hundred = decimal.NewFromInt(100)

// PrizeAmount is the prize pool minus the house cut.
func (s *SettlementService) PrizeAmount(pool decimal.Decimal) decimal.Decimal {
	cut := pool.Mul(s.HouseFeePercent).Div(hundred)
	return pool.Sub(cut).Round(6)
}

func prizeKey(matchID string) string { return matchID }

func refundKey(matchID string, slot models.Slot) string {
	return fmt.Sprintf("%s:refund:%s", matchID, slot)
}

// planTx writes the payout rows owed by a finished match and records the
// resulting payout status on m. A winner takes the prize; otherwise every
// confirmed entry is refunded.
func (s *SettlementService) planTx(tx *gorm.DB, m *models.Match) error {
	var rows []models.Payout
	if m.EntryFee.IsPositive() {
		if m.Winner != nil {
			rows = append(rows, s.newPayout(m.ID, models.PayoutKindPrize, *m.Winner, s.PrizeAmount(m.PrizePool), prizeKey(m.ID)))
		} else {
			for _, slot := range []models.Slot{models.SlotPlayer1, models.SlotPlayer2} {
				if !m.EntryConfirmed(slot) {
					continue
				}
				addr := m.Player1
				if slot == models.SlotPlayer2 {
					addr = m.Player2
				}
				rows = append(rows, s.newPayout(m.ID, models.PayoutKindRefund, addr, m.EntryFee, refundKey(m.ID, slot)))
			}
		}
	}

	status := models.PayoutStatusNone
	if len(rows) > 0 {
		status = models.PayoutStatusPending
	}
	for i := range rows {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).Create(&rows[i]).Error
		if err != nil {
			return err
		}
	}
	if err := tx.Model(&models.Match{}).Where("id = ?", m.ID).Update("payout_status", status).Error; err != nil {
		return err
	}
	m.PayoutStatus = status
	return nil
}

func (s *SettlementService) newPayout(matchID string, kind models.PayoutKind, to string, amount decimal.Decimal, key string) models.Payout {
	return models.Payout{
		ID:             uuid.NewString(),
		MatchID:        matchID,
		Kind:           kind,
		ToAddress:      to,
		Amount:         amount,
		IdempotencyKey: key,
		Status:         models.PayoutStatePending,
	}
}

// deliverable selects payouts that may be claimed now.
func (s *SettlementService) deliverable(db *gorm.DB) *gorm.DB {
	staleBefore := s.Now().Add(-s.ClaimTTL)
	return db.Where("(status IN ? OR (status = ? AND claimed_at < ?))",
		[]models.PayoutState{models.PayoutStatePending, models.PayoutStateFailed},
		models.PayoutStateSending, staleBefore)
}

// SettleMatch delivers every outstanding payout of a match. It is safe to
// call repeatedly and concurrently.
func (s *SettlementService) SettleMatch(ctx context.Context, matchID string) error {
	var payouts []models.Payout
	err := s.deliverable(s.DB.WithContext(ctx)).
		Where("match_id = ?", matchID).
		Order("created_at ASC").
		Find(&payouts).Error
	if err != nil {
		return err
	}

	var errs []error
	for i := range payouts {
		if err := s.deliver(ctx, &payouts[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.refreshMatch(ctx, matchID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// deliver claims one payout and sends it through the gateway.
func (s *SettlementService) deliver(ctx context.Context, p *models.Payout) error {
	now := s.Now()
	res := s.deliverable(s.DB.WithContext(ctx).Model(&models.Payout{})).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"status":     models.PayoutStateSending,
			"claimed_at": now,
			"attempts":   gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Delivered or claimed by someone else.
		return nil
	}

	receipt, err := s.Gateway.Pay(ctx, p.ToAddress, p.Amount, p.IdempotencyKey)
	if err != nil {
		log.Printf("[PAYOUT] ❌ %s %s of %s to %s failed: %v", p.Kind, p.IdempotencyKey, p.Amount, p.ToAddress, err)
		uerr := s.DB.WithContext(ctx).Model(&models.Payout{}).
			Where("id = ? AND status = ?", p.ID, models.PayoutStateSending).
			Updates(map[string]any{"status": models.PayoutStateFailed, "last_error": err.Error()}).Error
		if uerr != nil {
			log.Printf("[PAYOUT] ❌ could not record failure of %s: %v", p.ID, uerr)
		}
		if CodeOf(err) != CodePaymentFailed {
			err = WrapError(err, CodePaymentFailed, "payout failed")
		}
		return err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Payout{}).
			Where("id = ? AND status = ?", p.ID, models.PayoutStateSending).
			Updates(map[string]any{
				"status":     models.PayoutStateSent,
				"receipt_id": receipt,
				"sent_at":    s.Now(),
				"last_error": "",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 || p.Kind != models.PayoutKindPrize {
			return nil
		}
		res = tx.Model(&models.Match{}).
			Where("id = ? AND status = ? AND winner = ? AND paid = ?", p.MatchID, models.MatchStatusFinished, p.ToAddress, false).
			Updates(map[string]any{"paid": true, "payout_reference": receipt})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			return creditEarningsTx(tx, p.ToAddress, p.Amount)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("[PAYOUT] ✅ %s %s of %s to %s, receipt %s", p.Kind, p.IdempotencyKey, p.Amount, p.ToAddress, receipt)
	return nil
}

func summarizePayouts(payouts []models.Payout) models.PayoutStatus {
	if len(payouts) == 0 {
		return models.PayoutStatusNone
	}
	allSent, prize := true, false
	for _, p := range payouts {
		if p.Status == models.PayoutStateFailed {
			return models.PayoutStatusFailed
		}
		if p.Status != models.PayoutStateSent {
			allSent = false
		}
		if p.Kind == models.PayoutKindPrize {
			prize = true
		}
	}
	switch {
	case !allSent:
		return models.PayoutStatusPending
	case prize:
		return models.PayoutStatusPaid
	default:
		return models.PayoutStatusRefunded
	}
}

// refreshMatch recomputes the match payout status from its ledger rows.
func (s *SettlementService) refreshMatch(ctx context.Context, matchID string) error {
	var payouts []models.Payout
	if err := s.DB.WithContext(ctx).Where("match_id = ?", matchID).Find(&payouts).Error; err != nil {
		return err
	}
	status := summarizePayouts(payouts)

	var evt models.MatchEvent
	changed := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Match{}).
			Where("id = ? AND payout_status <> ?", matchID, status).
			Update("payout_status", status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true
		if status != models.PayoutStatusPaid && status != models.PayoutStatusRefunded {
			return nil
		}
		var err error
		evt, err = recordEvent(tx, matchID, EventMatchSettled, "", map[string]any{"payout_status": status, "payouts": payouts})
		return err
	})
	if err != nil {
		return err
	}
	if !changed || evt.ID == "" {
		return nil
	}
	publishAll(ctx, s.Bus, nil, []models.MatchEvent{evt})
	s.archiveMatch(ctx, matchID)
	return nil
}

// archiveMatch uploads the settled match transcript when an archive is set.
func (s *SettlementService) archiveMatch(ctx context.Context, matchID string) {
	if s.Archive == nil {
		return
	}
	var m models.Match
	err := s.DB.WithContext(ctx).
		Preload("Rounds", func(db *gorm.DB) *gorm.DB { return db.Order("round_number ASC") }).
		First(&m, "id = ?", matchID).Error
	if err != nil {
		log.Printf("[ARCHIVE] ❌ load %s: %v", matchID, err)
		return
	}
	var payouts []models.Payout
	if err := s.DB.WithContext(ctx).Where("match_id = ?", matchID).Find(&payouts).Error; err != nil {
		log.Printf("[ARCHIVE] ❌ load payouts of %s: %v", matchID, err)
		return
	}
	body, err := json.Marshal(map[string]any{"match": m, "payouts": payouts})
	if err != nil {
		log.Printf("[ARCHIVE] ❌ encode %s: %v", matchID, err)
		return
	}
	url, err := s.Archive.PutJSON(ctx, fmt.Sprintf("matches/%s.json", matchID), body)
	if err != nil {
		log.Printf("[ARCHIVE] ❌ upload %s: %v", matchID, err)
		return
	}
	log.Printf("[ARCHIVE] 📦 %s archived at %s", matchID, url)
}

// RetryOutstanding re-drives payouts left pending, failed or stuck in a
// stale claim. It returns the number of matches it touched.
func (s *SettlementService) RetryOutstanding(ctx context.Context) (int, error) {
	var matchIDs []string
	err := s.deliverable(s.DB.WithContext(ctx).Model(&models.Payout{})).
		Where("attempts < ?", s.MaxAttempts).
		Distinct().
		Pluck("match_id", &matchIDs).Error
	if err != nil {
		return 0, err
	}
	for _, id := range matchIDs {
		if err := s.SettleMatch(ctx, id); err != nil {
			log.Printf("[PAYOUT] ⚠️ retry of match %s still failing: %v", id, err)
		}
	}
	return len(matchIDs), nil
}

// ListPayouts returns the ledger rows of a match.
func (s *SettlementService) ListPayouts(ctx context.Context, matchID string) ([]models.Payout, error) {
	var payouts []models.Payout
	err := s.DB.WithContext(ctx).Where("match_id = ?", matchID).Order("created_at ASC").Find(&payouts).Error
	return payouts, err
}
