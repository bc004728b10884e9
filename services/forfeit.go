package services

import (
	"context"
	"log"

	"duel-arena/models"

	"gorm.io/gorm"
)

// forfeitWinner decides a stalled round: a side that revealed beats one that
// did not, then a side that committed beats one that did not. Otherwise
// nobody wins.
func forfeitWinner(m *models.Match, r *models.Round) (winner, forfeitedBy *string) {
	if r == nil {
		return nil, nil
	}
	acted := func(slot models.Slot) bool { return r.Commit(slot) != nil }
	if r.HasReveal() {
		acted = func(slot models.Slot) bool { return r.Move(slot) != nil }
	}
	for _, slot := range []models.Slot{models.SlotPlayer1, models.SlotPlayer2} {
		opp := m.OpponentSlot(slot)
		if acted(slot) && !acted(opp) {
			w, l := m.Opponent(opp), m.Opponent(slot)
			return &w, &l
		}
	}
	return nil, nil
}

// ForfeitStale ends in-progress matches with no action for RoundTimeout and
// ready matches whose entries were not confirmed within EntryTimeout.
// It returns how many matches it ended.
func (s *MatchService) ForfeitStale(ctx context.Context) (int, error) {
	now := s.Now()
	ended := 0

	var stalled []models.Match
	err := s.DB.WithContext(ctx).
		Where("status = ? AND last_action_at < ?", models.MatchStatusInProgress, now.Add(-s.RoundTimeout)).
		Find(&stalled).Error
	if err != nil {
		return 0, err
	}
	for i := range stalled {
		ok, err := s.forfeit(ctx, &stalled[i])
		if err != nil {
			log.Printf("[SWEEP] ❌ forfeit %s: %v", stalled[i].ID, err)
			continue
		}
		if ok {
			ended++
		}
	}

	var unfunded []models.Match
	err = s.DB.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.MatchStatusReady, now.Add(-s.EntryTimeout)).
		Find(&unfunded).Error
	if err != nil {
		return ended, err
	}
	for i := range unfunded {
		ok, err := s.abandon(ctx, &unfunded[i])
		if err != nil {
			log.Printf("[SWEEP] ❌ abandon %s: %v", unfunded[i].ID, err)
			continue
		}
		if ok {
			ended++
		}
	}
	return ended, nil
}

// forfeit ends a stalled match unless someone acted since it was read.
func (s *MatchService) forfeit(ctx context.Context, m *models.Match) (bool, error) {
	round, err := s.findRound(s.DB.WithContext(ctx), m.ID, m.CurrentRound)
	if err != nil {
		return false, err
	}
	winner, forfeitedBy := forfeitWinner(m, round)
	cutoff := s.Now().Add(-s.RoundTimeout)
	return s.endMatch(ctx, m, winner, forfeitedBy, "forfeit", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ? AND current_round = ? AND last_action_at < ?", models.MatchStatusInProgress, m.CurrentRound, cutoff)
	})
}

// abandon closes a match that never got both entry deposits.
func (s *MatchService) abandon(ctx context.Context, m *models.Match) (bool, error) {
	cutoff := s.Now().Add(-s.EntryTimeout)
	return s.endMatch(ctx, m, nil, nil, "entry_timeout", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ? AND created_at < ?", models.MatchStatusReady, cutoff)
	})
}

// endMatch finishes m if guard still matches its row, then settles it.
func (s *MatchService) endMatch(ctx context.Context, m *models.Match, winner, forfeitedBy *string, reason string, guard func(*gorm.DB) *gorm.DB) (bool, error) {
	var events []models.MatchEvent
	ended := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.Now()
		res := guard(tx.Model(&models.Match{}).Where("id = ?", m.ID)).
			Updates(map[string]any{
				"status":         models.MatchStatusFinished,
				"winner":         winner,
				"forfeited_by":   forfeitedBy,
				"finished_at":    now,
				"last_action_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		fresh, err := s.loadMatch(tx, m.ID)
		if err != nil {
			return err
		}
		events, err = s.finishTx(tx, fresh, reason)
		if err != nil {
			return err
		}
		*m = *fresh
		ended = true
		return nil
	})
	if err != nil || !ended {
		return false, err
	}
	publishAll(ctx, s.Bus, m, events)
	if s.Settlement != nil {
		if err := s.Settlement.SettleMatch(ctx, m.ID); err != nil {
			log.Printf("[SWEEP] ⚠️ settlement of %s incomplete: %v", m.ID, err)
		}
	}
	return true, nil
}
