package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"duel-arena/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultTotalRounds = 5
	maxTotalRounds     = 99
	// revealAttempts bounds the optimistic retry of a reveal that lost a race.
	revealAttempts = 2
	commitAttempts = 2
)

// MatchService runs the commit-reveal state machine of arena matches.
type MatchService struct {
	DB         *gorm.DB
	Bus        EventBus
	Fighters   *FighterService
	Settlement *SettlementService
	Gateway    PaymentGateway
	Supplier   MoveSupplier

	DefaultRounds int
	RoundTimeout  time.Duration
	EntryTimeout  time.Duration
	Now           func() time.Time
}

func NewMatchService(db *gorm.DB, bus EventBus, fighters *FighterService, settlement *SettlementService, gateway PaymentGateway) *MatchService {
	return &MatchService{
		DB:            db,
		Bus:           bus,
		Fighters:      fighters,
		Settlement:    settlement,
		Gateway:       gateway,
		Supplier:      NewStyleMoveSupplier(),
		DefaultRounds: defaultTotalRounds,
		RoundTimeout:  2 * time.Minute,
		EntryTimeout:  10 * time.Minute,
		Now:           utcNow,
	}
}

// RoundResult is returned from a reveal.
type RoundResult struct {
	Match           *models.Match `json:"match"`
	Round           *models.Round `json:"round"`
	Resolved        bool          `json:"resolved"`
	Finished        bool          `json:"finished"`
	SettlementError string        `json:"settlement_error,omitempty"`
}

func retryOnConflict(attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}

// newMatch validates the parameters of a match and builds it unsaved.
// Matches without an entry fee skip the entry phase.
func (s *MatchService) newMatch(player1, player2 string, entryFee decimal.Decimal, totalRounds int) (*models.Match, error) {
	player1, player2 = strings.TrimSpace(player1), strings.TrimSpace(player2)
	if player1 == "" || player2 == "" {
		return nil, invalidArgument("both player addresses are required")
	}
	if player1 == player2 {
		return nil, invalidArgument("a player cannot be matched against themselves")
	}
	if entryFee.IsNegative() {
		return nil, invalidArgument("entry fee must not be negative")
	}
	if totalRounds == 0 {
		totalRounds = s.DefaultRounds
	}
	if totalRounds < 1 || totalRounds%2 == 0 || totalRounds > maxTotalRounds {
		return nil, invalidArgument("total rounds must be an odd number between 1 and %d", maxTotalRounds)
	}

	now := s.Now()
	m := &models.Match{
		ID:           "match-" + uuid.NewString(),
		Player1:      player1,
		Player2:      player2,
		TotalRounds:  totalRounds,
		EntryFee:     entryFee,
		PrizePool:    entryFee.Mul(decimal.NewFromInt(2)),
		CurrentRound: 1,
		Status:       models.MatchStatusReady,
		PayoutStatus: models.PayoutStatusNone,
		LastActionAt: now,
		Timestamps:   models.Timestamps{CreatedAt: now, UpdatedAt: now},
	}
	if entryFee.IsZero() {
		m.Status = models.MatchStatusInProgress
		m.StartedAt = &now
	}
	return m, nil
}

// insertMatchTx stores m and its start event. Both fighters must exist or
// are created with defaults.
func (s *MatchService) insertMatchTx(tx *gorm.DB, m *models.Match) ([]models.MatchEvent, error) {
	for _, p := range []string{m.Player1, m.Player2} {
		if err := ensureFighterTx(tx, p); err != nil {
			return nil, err
		}
	}
	if err := tx.Create(m).Error; err != nil {
		return nil, err
	}
	evt, err := recordEvent(tx, m.ID, EventMatchStart, "", map[string]any{
		"status":       m.Status,
		"player1":      m.Player1,
		"player2":      m.Player2,
		"entry_fee":    m.EntryFee,
		"prize_pool":   m.PrizePool,
		"total_rounds": m.TotalRounds,
		"is_practice":  m.IsPractice,
	})
	if err != nil {
		return nil, err
	}
	return []models.MatchEvent{evt}, nil
}

// CreateMatch opens a match between two players.
func (s *MatchService) CreateMatch(ctx context.Context, player1, player2 string, entryFee decimal.Decimal, totalRounds int) (*models.Match, error) {
	m, err := s.newMatch(player1, player2, entryFee, totalRounds)
	if err != nil {
		return nil, err
	}
	var events []models.MatchEvent
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		events, err = s.insertMatchTx(tx, m)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	publishAll(ctx, s.Bus, m, events)
	log.Printf("[MATCH] ⚔️ %s created: %s vs %s, fee=%s, rounds=%d", m.ID, m.Player1, m.Player2, m.EntryFee, m.TotalRounds)
	return m, nil
}

// CreatePracticeMatch pits player against a fresh AI fighter for free.
func (s *MatchService) CreatePracticeMatch(ctx context.Context, player string, totalRounds int) (*models.Match, error) {
	ai := newAIFighter(rand.Float64)
	m, err := s.newMatch(player, ai.Address, decimal.Zero, totalRounds)
	if err != nil {
		return nil, err
	}
	m.IsPractice = true

	var events []models.MatchEvent
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ai).Error; err != nil {
			return err
		}
		var err error
		events, err = s.insertMatchTx(tx, m)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create practice match: %w", err)
	}
	publishAll(ctx, s.Bus, m, events)
	log.Printf("[MATCH] 🤖 practice %s: %s vs %s (%s)", m.ID, player, ai.Name, Archetype(ai.Style.Data()))
	return m, nil
}

func (s *MatchService) loadMatch(db *gorm.DB, matchID string) (*models.Match, error) {
	var m models.Match
	err := db.First(&m, "id = ?", matchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMatchNotFound.With("match_id", matchID)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMatch returns a match with its rounds in order.
func (s *MatchService) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	var m models.Match
	err := s.DB.WithContext(ctx).
		Preload("Rounds", func(db *gorm.DB) *gorm.DB { return db.Order("round_number ASC") }).
		First(&m, "id = ?", matchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMatchNotFound.With("match_id", matchID)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListRecentMatches returns the newest matches, optionally only those of player.
func (s *MatchService) ListRecentMatches(ctx context.Context, player string, limit int) ([]models.Match, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := s.DB.WithContext(ctx).Order("created_at DESC").Order("id ASC").Limit(limit)
	if player != "" {
		q = q.Where("(player1 = ? OR player2 = ?)", player, player)
	}
	var matches []models.Match
	if err := q.Find(&matches).Error; err != nil {
		return nil, err
	}
	return matches, nil
}

// ConfirmEntry records a verified entry deposit. The match starts once both
// deposits are confirmed.
func (s *MatchService) ConfirmEntry(ctx context.Context, matchID, player, txRef string) (*models.Match, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, invalidArgument("tx_ref is required")
	}
	m, err := s.loadMatch(s.DB.WithContext(ctx), matchID)
	if err != nil {
		return nil, err
	}
	slot, ok := m.SlotOf(player)
	if !ok {
		return nil, ErrUnknownPlayer.With("match_id", matchID)
	}
	if m.EntryConfirmed(slot) {
		return m, nil
	}
	if m.Status != models.MatchStatusReady {
		return nil, invalidState("match is %s, entries are closed", m.Status)
	}
	if err := s.Gateway.VerifyEntry(ctx, player, m.EntryFee, txRef); err != nil {
		return nil, err
	}

	confirmedCol, txCol := "p1_entry_confirmed", "p1_entry_tx"
	if slot == models.SlotPlayer2 {
		confirmedCol, txCol = "p2_entry_confirmed", "p2_entry_tx"
	}

	var events []models.MatchEvent
	started := false
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.Now()
		res := tx.Model(&models.Match{}).
			Where("id = ? AND status = ? AND "+confirmedCol+" = ?", matchID, models.MatchStatusReady, false).
			Updates(map[string]any{confirmedCol: true, txCol: txRef, "last_action_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		evt, err := recordEvent(tx, matchID, EventMatchEntry, player, map[string]any{"slot": slot, "tx_ref": txRef})
		if err != nil {
			return err
		}
		events = append(events, evt)

		res = tx.Model(&models.Match{}).
			Where("id = ? AND status = ? AND p1_entry_confirmed = ? AND p2_entry_confirmed = ?", matchID, models.MatchStatusReady, true, true).
			Updates(map[string]any{"status": models.MatchStatusInProgress, "started_at": now})
		if res.Error != nil {
			return res.Error
		}
		started = res.RowsAffected == 1
		return nil
	})
	if errors.Is(err, ErrConflict) {
		// Lost to a concurrent confirmation of the same slot, or the match moved on.
		fresh, ferr := s.loadMatch(s.DB.WithContext(ctx), matchID)
		if ferr == nil && fresh.EntryConfirmed(slot) {
			return fresh, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	m, err = s.loadMatch(s.DB.WithContext(ctx), matchID)
	if err != nil {
		return nil, err
	}
	publishAll(ctx, s.Bus, m, events)
	if started {
		log.Printf("[MATCH] 🔔 %s funded, round 1 open", matchID)
	}
	return m, nil
}

func slotColumns(slot models.Slot) (commit, move, secret, otherCommit string) {
	if slot == models.SlotPlayer1 {
		return "p1_commit", "p1_move", "p1_secret", "p2_commit"
	}
	return "p2_commit", "p2_move", "p2_secret", "p1_commit"
}

func (s *MatchService) findRound(db *gorm.DB, matchID string, roundNumber int) (*models.Round, error) {
	var r models.Round
	err := db.Where("match_id = ? AND round_number = ?", matchID, roundNumber).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// touchMatchTx guards a round mutation: the match must still be in play on
// roundNumber. It bumps last_action_at and returns the current row.
func (s *MatchService) touchMatchTx(tx *gorm.DB, matchID string, roundNumber int) (*models.Match, error) {
	res := tx.Model(&models.Match{}).
		Where("id = ? AND status = ? AND current_round = ?", matchID, models.MatchStatusInProgress, roundNumber).
		Update("last_action_at", s.Now())
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrConflict
	}
	return s.loadMatch(tx, matchID)
}

func (s *MatchService) checkPlayable(m *models.Match, roundNumber int) error {
	switch m.Status {
	case models.MatchStatusInProgress:
	case models.MatchStatusReady:
		return invalidState("match is waiting for entry fees")
	default:
		return invalidState("match is %s", m.Status)
	}
	if roundNumber != m.CurrentRound {
		return invalidState("round %d is not open, current round is %d", roundNumber, m.CurrentRound).
			With("current_round", fmt.Sprint(m.CurrentRound))
	}
	return nil
}

// SubmitCommitment stores player's sealed move for roundNumber. A commitment
// may be replaced until either side reveals.
func (s *MatchService) SubmitCommitment(ctx context.Context, matchID, player string, roundNumber int, commitment string) (*models.Match, error) {
	commitment, err := normalizeCommitment(commitment)
	if err != nil {
		return nil, err
	}
	var m *models.Match
	err = retryOnConflict(commitAttempts, func() error {
		var err error
		m, err = s.submitCommitmentOnce(ctx, matchID, player, roundNumber, commitment)
		return err
	})
	if err != nil {
		return nil, err
	}
	if m.IsPractice && player == m.Player1 {
		if err := s.playAITurn(ctx, m, roundNumber); err != nil {
			log.Printf("[MATCH] ❌ AI turn in %s round %d failed: %v", matchID, roundNumber, err)
		}
	}
	return s.GetMatch(ctx, matchID)
}

func (s *MatchService) submitCommitmentOnce(ctx context.Context, matchID, player string, roundNumber int, commitment string) (*models.Match, error) {
	db := s.DB.WithContext(ctx)
	m, err := s.loadMatch(db, matchID)
	if err != nil {
		return nil, err
	}
	slot, ok := m.SlotOf(player)
	if !ok {
		return nil, ErrUnknownPlayer.With("match_id", matchID)
	}
	if err := s.checkPlayable(m, roundNumber); err != nil {
		return nil, err
	}

	commitCol, _, _, _ := slotColumns(slot)
	var events []models.MatchEvent
	err = db.Transaction(func(tx *gorm.DB) error {
		round := models.Round{ID: uuid.NewString(), MatchID: matchID, RoundNumber: roundNumber}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "match_id"}, {Name: "round_number"}},
			DoNothing: true,
		}).Create(&round).Error
		if err != nil {
			return err
		}

		res := tx.Model(&models.Round{}).
			Where("match_id = ? AND round_number = ? AND resolved = ? AND p1_move IS NULL AND p2_move IS NULL", matchID, roundNumber, false).
			Update(commitCol, commitment)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return invalidState("round %d already has a reveal, commitments are frozen", roundNumber)
		}

		if m, err = s.touchMatchTx(tx, matchID, roundNumber); err != nil {
			return err
		}
		evt, err := recordEvent(tx, matchID, EventMatchCommit, player, map[string]any{
			"round":      roundNumber,
			"slot":       slot,
			"commitment": commitment,
		})
		if err != nil {
			return err
		}
		events = append(events, evt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishAll(ctx, s.Bus, m, events)
	return m, nil
}

// RevealMove opens player's commitment for roundNumber. When both moves are
// known the round is resolved in the same transaction, and a finished match
// is settled before returning.
func (s *MatchService) RevealMove(ctx context.Context, matchID, player string, roundNumber int, moveName, secret string) (*RoundResult, error) {
	move, ok := models.ParseMove(moveName)
	if !ok {
		return nil, invalidArgument("unknown move %q", moveName)
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, invalidArgument("secret is required")
	}
	if len(secret) > maxSecretLength {
		return nil, invalidArgument("secret must be at most %d characters", maxSecretLength)
	}

	var result *RoundResult
	err := retryOnConflict(revealAttempts, func() error {
		var err error
		result, err = s.revealOnce(ctx, matchID, player, roundNumber, move, secret)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.Finished && s.Settlement != nil {
		if err := s.Settlement.SettleMatch(ctx, matchID); err != nil {
			log.Printf("[MATCH] ⚠️ settlement of %s incomplete: %v", matchID, err)
			result.SettlementError = err.Error()
		}
		if fresh, err := s.loadMatch(s.DB.WithContext(ctx), matchID); err == nil {
			result.Match = fresh
		}
	}
	return result, nil
}

func (s *MatchService) revealOnce(ctx context.Context, matchID, player string, roundNumber int, move models.Move, secret string) (*RoundResult, error) {
	db := s.DB.WithContext(ctx)
	m, err := s.loadMatch(db, matchID)
	if err != nil {
		return nil, err
	}
	slot, ok := m.SlotOf(player)
	if !ok {
		return nil, ErrUnknownPlayer.With("match_id", matchID)
	}
	round, err := s.findRound(db, matchID, roundNumber)
	if err != nil {
		return nil, err
	}

	if round != nil {
		if prev := round.Move(slot); prev != nil {
			if *prev != move {
				return nil, invalidState("move for round %d was already revealed", roundNumber)
			}
			// Repeated reveal, possibly after losing a race: report current state.
			return &RoundResult{Match: m, Round: round, Resolved: round.Resolved, Finished: m.IsFinished()}, nil
		}
	}
	if err := s.checkPlayable(m, roundNumber); err != nil {
		return nil, err
	}
	if round == nil || round.Commit(slot) == nil {
		return nil, ErrNoCommitment.With("round", fmt.Sprint(roundNumber))
	}
	if round.Commit(m.OpponentSlot(slot)) == nil {
		return nil, invalidState("opponent has not committed to round %d yet", roundNumber)
	}
	if !VerifyCommitment(move, secret, *round.Commit(slot)) {
		return nil, ErrCommitmentMismatch.With("round", fmt.Sprint(roundNumber))
	}

	commitCol, moveCol, secretCol, otherCommitCol := slotColumns(slot)
	result := &RoundResult{}
	var events []models.MatchEvent
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Round{}).
			Where("id = ? AND resolved = ? AND "+moveCol+" IS NULL AND "+commitCol+" = ? AND "+otherCommitCol+" IS NOT NULL",
				round.ID, false, *round.Commit(slot)).
			Updates(map[string]any{moveCol: move, secretCol: secret})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		cur, err := s.touchMatchTx(tx, matchID, roundNumber)
		if err != nil {
			return err
		}
		evt, err := recordEvent(tx, matchID, EventMatchReveal, player, map[string]any{
			"round": roundNumber,
			"slot":  slot,
			"move":  move,
		})
		if err != nil {
			return err
		}
		events = append(events, evt)

		var fresh models.Round
		if err := tx.First(&fresh, "id = ?", round.ID).Error; err != nil {
			return err
		}
		if fresh.P1Move != nil && fresh.P2Move != nil {
			more, err := s.resolveRoundTx(tx, cur, &fresh)
			if err != nil {
				return err
			}
			events = append(events, more...)
			result.Resolved = true
			result.Finished = cur.IsFinished()
		}
		result.Match = cur
		result.Round = &fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishAll(ctx, s.Bus, result.Match, events)
	return result, nil
}

// advanceMatch applies a round outcome to m in memory and reports whether
// the match is over. A side that reaches the majority wins at once;
// otherwise the match ends after the final round on score.
func advanceMatch(m *models.Match, winner models.RoundWinner, now time.Time) bool {
	switch winner {
	case models.RoundWinnerPlayer1:
		m.ScoreP1++
	case models.RoundWinnerPlayer2:
		m.ScoreP2++
	}
	m.LastActionAt = now

	needed := m.WinsNeeded()
	finished := false
	switch {
	case m.ScoreP1 >= needed:
		m.Winner = &m.Player1
		finished = true
	case m.ScoreP2 >= needed:
		m.Winner = &m.Player2
		finished = true
	case m.CurrentRound >= m.TotalRounds:
		finished = true
		if m.ScoreP1 > m.ScoreP2 {
			m.Winner = &m.Player1
		} else if m.ScoreP2 > m.ScoreP1 {
			m.Winner = &m.Player2
		}
	}
	if finished {
		m.Status = models.MatchStatusFinished
		m.FinishedAt = &now
	} else {
		m.CurrentRound++
	}
	return finished
}

// resolveRoundTx scores a fully revealed round. It runs at most once per
// round because both the round and the match are updated conditionally.
func (s *MatchService) resolveRoundTx(tx *gorm.DB, m *models.Match, r *models.Round) ([]models.MatchEvent, error) {
	outcome, err := Resolve(*r.P1Move, *r.P2Move)
	if err != nil {
		return nil, err
	}
	now := s.Now()

	res := tx.Model(&models.Round{}).
		Where("id = ? AND resolved = ?", r.ID, false).
		Updates(map[string]any{
			"resolved":    true,
			"winner":      outcome.Winner,
			"description": outcome.Description,
			"resolved_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrConflict
	}
	r.Resolved = true
	r.Winner = &outcome.Winner
	r.Description = outcome.Description
	r.ResolvedAt = &now

	roundNumber := m.CurrentRound
	finished := advanceMatch(m, outcome.Winner, now)
	updates := map[string]any{
		"score_p1":       m.ScoreP1,
		"score_p2":       m.ScoreP2,
		"last_action_at": now,
	}
	if finished {
		updates["status"] = m.Status
		updates["winner"] = m.Winner
		updates["finished_at"] = now
	} else {
		updates["current_round"] = m.CurrentRound
	}
	res = tx.Model(&models.Match{}).
		Where("id = ? AND status = ? AND current_round = ?", m.ID, models.MatchStatusInProgress, roundNumber).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrConflict
	}

	matchup := r.P1Move.DisplayName() + " vs " + r.P2Move.DisplayName()
	evt, err := recordEvent(tx, m.ID, EventRoundResult, "", map[string]any{
		"round":       roundNumber,
		"p1_move":     *r.P1Move,
		"p2_move":     *r.P2Move,
		"matchup":     matchup,
		"winner":      outcome.Winner,
		"description": outcome.Description,
		"score":       map[string]int{"p1": m.ScoreP1, "p2": m.ScoreP2},
	})
	if err != nil {
		return nil, err
	}
	events := []models.MatchEvent{evt}
	log.Printf("[MATCH] 🥊 %s round %d: %s, %s (%d-%d)", m.ID, roundNumber, matchup, outcome.Description, m.ScoreP1, m.ScoreP2)

	if finished {
		more, err := s.finishTx(tx, m, "decided")
		if err != nil {
			return nil, err
		}
		events = append(events, more...)
	}
	return events, nil
}

// finishTx runs the bookkeeping of a match that was just marked finished:
// fighter records, the payout plan and the end event.
func (s *MatchService) finishTx(tx *gorm.DB, m *models.Match, reason string) ([]models.MatchEvent, error) {
	var rounds []models.Round
	if err := tx.Where("match_id = ?", m.ID).Order("round_number ASC").Find(&rounds).Error; err != nil {
		return nil, err
	}
	if m.StartedAt != nil && s.Fighters != nil {
		if err := s.Fighters.recordResultTx(tx, m, rounds); err != nil {
			return nil, err
		}
	}
	if s.Settlement != nil {
		if err := s.Settlement.planTx(tx, m); err != nil {
			return nil, err
		}
	}
	evt, err := recordEvent(tx, m.ID, EventMatchEnd, "", map[string]any{
		"winner":        m.Winner,
		"score":         map[string]int{"p1": m.ScoreP1, "p2": m.ScoreP2},
		"reason":        reason,
		"forfeited_by":  m.ForfeitedBy,
		"payout_status": m.PayoutStatus,
	})
	if err != nil {
		return nil, err
	}
	winner := "none"
	if m.Winner != nil {
		winner = *m.Winner
	}
	log.Printf("[MATCH] 🏁 %s finished (%s): winner=%s score=%d-%d", m.ID, reason, winner, m.ScoreP1, m.ScoreP2)
	return []models.MatchEvent{evt}, nil
}

// playAITurn commits and immediately reveals the AI side of a practice round.
func (s *MatchService) playAITurn(ctx context.Context, m *models.Match, roundNumber int) error {
	ai, err := s.Fighters.GetFighter(ctx, m.Player2)
	if err != nil {
		return err
	}
	round, err := s.findRound(s.DB.WithContext(ctx), m.ID, roundNumber)
	if err != nil {
		return err
	}
	if round != nil && round.P2Commit != nil {
		return nil
	}
	move, err := s.Supplier.NextMove(ctx, ai, m.ID, roundNumber)
	if err != nil {
		return err
	}
	commitment, secret, err := Commit(move)
	if err != nil {
		return err
	}
	if _, err := s.submitCommitmentOnce(ctx, m.ID, ai.Address, roundNumber, commitment); err != nil {
		return err
	}
	_, err = s.RevealMove(ctx, m.ID, ai.Address, roundNumber, string(move), secret)
	return err
}
