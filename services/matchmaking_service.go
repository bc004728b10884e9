package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"duel-arena/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// pairAttempts bounds how often a join re-tries after losing a pairing race.
const pairAttempts = 3

// MatchmakingService pairs queued players into matches. Every joiner first
// holds a waiting ticket, then tries to claim the oldest compatible ticket.
// Claims are conditional updates applied in id order, so of two concurrent
// joiners exactly one creates the match and the other finds itself matched.
type MatchmakingService struct {
	DB       *gorm.DB
	Matches  *MatchService
	Fighters *FighterService
	Bus      EventBus

	DefaultEntryFee decimal.Decimal
	TicketTTL       time.Duration
	Now             func() time.Time
}

func NewMatchmakingService(db *gorm.DB, matches *MatchService, fighters *FighterService, bus EventBus) *MatchmakingService {
	return &MatchmakingService{
		DB:              db,
		Matches:         matches,
		Fighters:        fighters,
		Bus:             bus,
		DefaultEntryFee: decimal.NewFromInt(1),
		TicketTTL:       15 * time.Minute,
		Now:             utcNow,
	}
}

// QueueStatus is what a player sees after joining or polling the queue.
type QueueStatus struct {
	Status QueueState          `json:"status"`
	Ticket *models.QueueTicket `json:"ticket,omitempty"`
	Match  *models.Match       `json:"match,omitempty"`
}

// QueueState mirrors models.TicketStatus with an extra "idle" state for
// players without any ticket.
type QueueState string

const (
	QueueIdle      QueueState = "idle"
	QueueWaiting   QueueState = QueueState(models.TicketStatusWaiting)
	QueueMatched   QueueState = QueueState(models.TicketStatusMatched)
	QueueCancelled QueueState = QueueState(models.TicketStatusCancelled)
	QueueExpired   QueueState = QueueState(models.TicketStatusExpired)
)

// JoinQueue enqueues player for a match at entryFee (the default fee when
// nil) and pairs them at once if a compatible opponent is waiting.
func (s *MatchmakingService) JoinQueue(ctx context.Context, player string, entryFee *decimal.Decimal) (*QueueStatus, error) {
	player = strings.TrimSpace(player)
	if player == "" {
		return nil, invalidArgument("player address is required")
	}
	fee := s.DefaultEntryFee
	if entryFee != nil {
		fee = *entryFee
	}
	if fee.IsNegative() {
		return nil, invalidArgument("entry fee must not be negative")
	}
	if _, err := s.Fighters.EnsureFighter(ctx, player); err != nil {
		return nil, err
	}

	var ticket *models.QueueTicket
	err := retryOnConflict(2, func() error {
		var err error
		ticket, err = s.openTicket(ctx, player, fee)
		return err
	})
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < pairAttempts; attempt++ {
		status, err := s.pair(ctx, ticket)
		if err == nil {
			return status, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
	}
	return s.statusOf(ctx, ticket.ID)
}

// openTicket returns the player's waiting ticket, creating it if needed.
func (s *MatchmakingService) openTicket(ctx context.Context, player string, fee decimal.Decimal) (*models.QueueTicket, error) {
	db := s.DB.WithContext(ctx)
	now := s.Now()
	t := models.QueueTicket{
		ID:            uuid.NewString(),
		PlayerAddress: player,
		EntryFee:      fee,
		Status:        models.TicketStatusWaiting,
		Timestamps:    models.Timestamps{CreatedAt: now, UpdatedAt: now},
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&t)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 1 {
		log.Printf("[QUEUE] 🎟️ %s waiting at fee %s", player, fee)
		return &t, nil
	}

	var existing models.QueueTicket
	err := db.Where("player_address = ? AND status = ?", player, models.TicketStatusWaiting).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Paired or cancelled in between; the caller may simply join again.
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	if !existing.EntryFee.Equal(fee) {
		return nil, invalidState("already queued at entry fee %s", existing.EntryFee)
	}
	return &existing, nil
}

// claimTicketTx marks a waiting ticket as matched. A ticket another
// transaction already matched or cancelled yields ErrConflict.
func claimTicketTx(tx *gorm.DB, ticketID, matchID, counterpart string, now time.Time) error {
	res := tx.Model(&models.QueueTicket{}).
		Where("id = ? AND status = ?", ticketID, models.TicketStatusWaiting).
		Updates(map[string]any{
			"status":       models.TicketStatusMatched,
			"match_id":     matchID,
			"matched_with": counterpart,
			"matched_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// pair tries to match ticket with the oldest other waiting ticket of the
// same fee. ErrConflict means another joiner won a claim; re-reading the
// ticket on the next attempt reveals whether it was paired by them.
func (s *MatchmakingService) pair(ctx context.Context, ticket *models.QueueTicket) (*QueueStatus, error) {
	var status *QueueStatus
	var match *models.Match
	var events []models.MatchEvent

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var mine models.QueueTicket
		if err := tx.First(&mine, "id = ?", ticket.ID).Error; err != nil {
			return err
		}
		if mine.Status != models.TicketStatusWaiting {
			status = &QueueStatus{Status: QueueState(mine.Status), Ticket: &mine}
			return nil
		}

		var other models.QueueTicket
		err := tx.Where("status = ? AND entry_fee = ? AND player_address <> ?", models.TicketStatusWaiting, mine.EntryFee, mine.PlayerAddress).
			Order("created_at ASC").
			Order("id ASC").
			First(&other).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			status = &QueueStatus{Status: QueueWaiting, Ticket: &mine}
			return nil
		}
		if err != nil {
			return err
		}

		// The player who waited longer takes the first slot.
		first, second := &other, &mine
		if mine.CreatedAt.Before(other.CreatedAt) {
			first, second = &mine, &other
		}
		m, err := s.Matches.newMatch(first.PlayerAddress, second.PlayerAddress, mine.EntryFee, 0)
		if err != nil {
			return err
		}

		now := s.Now()
		claims := []*models.QueueTicket{&mine, &other}
		if other.ID < mine.ID {
			claims[0], claims[1] = &other, &mine
		}
		for _, t := range claims {
			counterpart := other.PlayerAddress
			if t.ID == other.ID {
				counterpart = mine.PlayerAddress
			}
			if err := claimTicketTx(tx, t.ID, m.ID, counterpart, now); err != nil {
				return err
			}
		}

		events, err = s.Matches.insertMatchTx(tx, m)
		if err != nil {
			return err
		}
		if err := tx.First(&mine, "id = ?", mine.ID).Error; err != nil {
			return err
		}
		match = m
		status = &QueueStatus{Status: QueueMatched, Ticket: &mine, Match: m}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if match != nil {
		publishAll(ctx, s.Bus, match, events)
		log.Printf("[QUEUE] 🤝 paired %s vs %s into match %s", match.Player1, match.Player2, match.ID)
	} else if status.Status == QueueMatched && status.Ticket.MatchID != nil {
		if m, err := s.Matches.GetMatch(ctx, *status.Ticket.MatchID); err == nil {
			status.Match = m
		}
	}
	return status, nil
}

func (s *MatchmakingService) statusOf(ctx context.Context, ticketID string) (*QueueStatus, error) {
	var t models.QueueTicket
	if err := s.DB.WithContext(ctx).First(&t, "id = ?", ticketID).Error; err != nil {
		return nil, err
	}
	return s.describe(ctx, &t)
}

func (s *MatchmakingService) describe(ctx context.Context, t *models.QueueTicket) (*QueueStatus, error) {
	status := &QueueStatus{Status: QueueState(t.Status), Ticket: t}
	if t.Status == models.TicketStatusMatched && t.MatchID != nil {
		m, err := s.Matches.GetMatch(ctx, *t.MatchID)
		if err != nil {
			return nil, err
		}
		status.Match = m
	}
	return status, nil
}

// QueueStatusFor reports the player's latest ticket.
func (s *MatchmakingService) QueueStatusFor(ctx context.Context, player string) (*QueueStatus, error) {
	var t models.QueueTicket
	err := s.DB.WithContext(ctx).
		Where("player_address = ?", player).
		Order("created_at DESC").
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &QueueStatus{Status: QueueIdle}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.describe(ctx, &t)
}

// LeaveQueue cancels the player's waiting ticket. It reports whether a
// ticket was cancelled; a ticket that was already paired stays matched.
func (s *MatchmakingService) LeaveQueue(ctx context.Context, player string) (bool, error) {
	now := s.Now()
	res := s.DB.WithContext(ctx).Model(&models.QueueTicket{}).
		Where("player_address = ? AND status = ?", player, models.TicketStatusWaiting).
		Updates(map[string]any{"status": models.TicketStatusCancelled, "closed_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("[QUEUE] 👋 %s left the queue", player)
	}
	return res.RowsAffected > 0, nil
}

// ExpireTickets closes waiting tickets older than TicketTTL.
func (s *MatchmakingService) ExpireTickets(ctx context.Context) (int64, error) {
	now := s.Now()
	res := s.DB.WithContext(ctx).Model(&models.QueueTicket{}).
		Where("status = ? AND created_at < ?", models.TicketStatusWaiting, now.Add(-s.TicketTTL)).
		Updates(map[string]any{"status": models.TicketStatusExpired, "closed_at": now})
	return res.RowsAffected, res.Error
}

// WaitingCount is the number of open tickets, shown in the lobby.
func (s *MatchmakingService) WaitingCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.QueueTicket{}).Where("status = ?", models.TicketStatusWaiting).Count(&n).Error
	return n, err
}
