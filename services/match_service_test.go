package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"duel-arena/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreateMatch(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()

	free, err := a.matches.CreateMatch(ctx, alice, bob, decimal.Zero, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(free.ID, "match-"), free.ID)
	assert.Equal(t, models.MatchStatusInProgress, free.Status)
	assert.Equal(t, 5, free.TotalRounds)
	assert.Equal(t, 1, free.CurrentRound)
	assert.True(t, free.PrizePool.IsZero())
	assert.NotNil(t, free.StartedAt)

	paid, err := a.matches.CreateMatch(ctx, alice, bob, decimal.NewFromInt(3), 7)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusReady, paid.Status)
	assert.True(t, paid.PrizePool.Equal(decimal.NewFromInt(6)))
	assert.Nil(t, paid.StartedAt)

	for _, f := range []string{alice, bob} {
		fighter, err := a.fighters.GetFighter(ctx, f)
		require.NoError(t, err)
		assert.Equal(t, DefaultFighterName(f), fighter.Name)
	}
}

func TestCreateMatchRejectsBadParameters(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()

	cases := map[string]func() error{
		"even rounds": func() error {
			_, err := a.matches.CreateMatch(ctx, alice, bob, decimal.Zero, 4)
			return err
		},
		"negative rounds": func() error {
			_, err := a.matches.CreateMatch(ctx, alice, bob, decimal.Zero, -1)
			return err
		},
		"self match": func() error {
			_, err := a.matches.CreateMatch(ctx, alice, alice, decimal.Zero, 3)
			return err
		},
		"missing player": func() error {
			_, err := a.matches.CreateMatch(ctx, alice, " ", decimal.Zero, 3)
			return err
		},
		"negative fee": func() error {
			_, err := a.matches.CreateMatch(ctx, alice, bob, decimal.NewFromInt(-1), 3)
			return err
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, CodeInvalidArgument, CodeOf(fn()))
		})
	}
}

func TestRockCrushesScissors(t *testing.T) {
	a := newArena(t)
	m := a.newFundedMatch(t, 0, 5)

	res := a.playRound(t, m.ID, 1, models.MoveRock, models.MoveScissors)

	assert.Equal(t, models.RoundWinnerPlayer1, *res.Round.Winner)
	assert.Equal(t, "Rock crushes Scissors!", res.Round.Description)
	assert.Equal(t, 1, res.Match.ScoreP1)
	assert.Equal(t, 0, res.Match.ScoreP2)
	assert.Equal(t, 2, res.Match.CurrentRound)
	assert.False(t, res.Finished)
	assert.Equal(t, models.MatchStatusInProgress, res.Match.Status)
}

func TestMajorityEndsMatchEarly(t *testing.T) {
	a := newArena(t)
	m := a.newFundedMatch(t, 0, 5)

	a.playRound(t, m.ID, 1, models.MoveRock, models.MoveScissors)
	a.playRound(t, m.ID, 2, models.MoveRock, models.MovePaper)
	a.playRound(t, m.ID, 3, models.MoveShield, models.MoveRock)
	res := a.playRound(t, m.ID, 4, models.MoveFeint, models.MoveShield)

	require.True(t, res.Finished)
	assert.Equal(t, models.MatchStatusFinished, res.Match.Status)
	assert.Equal(t, 3, res.Match.ScoreP1)
	assert.Equal(t, 1, res.Match.ScoreP2)
	assert.Equal(t, 4, res.Match.CurrentRound)
	require.NotNil(t, res.Match.Winner)
	assert.Equal(t, alice, *res.Match.Winner)
	assert.NotNil(t, res.Match.FinishedAt)

	// Free match: nothing to pay.
	assert.Equal(t, models.PayoutStatusNone, res.Match.PayoutStatus)
	assert.False(t, res.Match.Paid)

	_, err := a.matches.SubmitCommitment(context.Background(), m.ID, alice, 5, seal(t, models.MoveRock).commitment)
	assert.Equal(t, CodeInvalidState, CodeOf(err))

	stored, err := a.matches.GetMatch(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Rounds, 4)
}

func TestFinalRoundTieHasNoWinner(t *testing.T) {
	a := newArena(t)
	m := a.newFundedMatch(t, 0, 3)

	a.playRound(t, m.ID, 1, models.MovePaper, models.MovePaper)
	a.playRound(t, m.ID, 2, models.MovePaper, models.MoveRock)
	res := a.playRound(t, m.ID, 3, models.MovePaper, models.MoveScissors)

	require.True(t, res.Finished)
	assert.Nil(t, res.Match.Winner)
	assert.Equal(t, 1, res.Match.ScoreP1)
	assert.Equal(t, 1, res.Match.ScoreP2)
	assert.False(t, res.Match.Paid)
}

func TestScoreCountsDecisiveRounds(t *testing.T) {
	a := newArena(t)
	m := a.newFundedMatch(t, 0, 7)

	a.playRound(t, m.ID, 1, models.MoveRock, models.MoveRock)
	a.playRound(t, m.ID, 2, models.MoveShield, models.MoveScissors)
	a.playRound(t, m.ID, 3, models.MoveFeint, models.MoveFeint)
	res := a.playRound(t, m.ID, 4, models.MovePaper, models.MoveScissors)

	var decisive int64
	require.NoError(t, a.db.Model(&models.Round{}).
		Where("match_id = ? AND resolved = ? AND winner <> ?", m.ID, true, models.RoundWinnerDraw).
		Count(&decisive).Error)
	assert.EqualValues(t, decisive, res.Match.ScoreP1+res.Match.ScoreP2)
	assert.Equal(t, 5, res.Match.CurrentRound)
}

func TestRevealMismatchLeavesRoundUntouched(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	m := a.newFundedMatch(t, 0, 3)

	s1, s2 := seal(t, models.MoveRock), seal(t, models.MoveShield)
	a.commit(t, m.ID, alice, 1, s1)
	a.commit(t, m.ID, bob, 1, s2)

	_, err := a.matches.RevealMove(ctx, m.ID, alice, 1, string(models.MovePaper), s1.secret)
	require.ErrorIs(t, err, ErrCommitmentMismatch)

	_, err = a.matches.RevealMove(ctx, m.ID, alice, 1, string(models.MoveRock), "not-the-secret")
	require.ErrorIs(t, err, ErrCommitmentMismatch)

	var r models.Round
	require.NoError(t, a.db.First(&r, "match_id = ? AND round_number = ?", m.ID, 1).Error)
	assert.Nil(t, r.P1Move)
	assert.False(t, r.Resolved)

	// The honest reveal still works afterwards.
	_, err = a.matches.RevealMove(ctx, m.ID, alice, 1, string(models.MoveRock), s1.secret)
	require.NoError(t, err)
}

func TestRevealRejectsOversizedSecret(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	m := a.newFundedMatch(t, 0, 3)

	long := strings.Repeat("s", 300)
	s1 := sealed{move: models.MoveRock, secret: long, commitment: CommitWithSecret(models.MoveRock, long)}
	a.commit(t, m.ID, alice, 1, s1)
	a.commit(t, m.ID, bob, 1, seal(t, models.MovePaper))

	_, err := a.matches.RevealMove(ctx, m.ID, alice, 1, "rock", long)
	assert.Equal(t, CodeInvalidArgument, CodeOf(err))

	var r models.Round
	require.NoError(t, a.db.First(&r, "match_id = ? AND round_number = ?", m.ID, 1).Error)
	assert.Nil(t, r.P1Move)
	assert.Nil(t, r.P1Secret)

	// A secret that fits the column still opens.
	fits := strings.Repeat("s", maxSecretLength)
	s2 := sealed{move: models.MoveScissors, secret: fits, commitment: CommitWithSecret(models.MoveScissors, fits)}
	m2 := a.newFundedMatch(t, 0, 3)
	a.commit(t, m2.ID, alice, 1, s2)
	a.commit(t, m2.ID, bob, 1, seal(t, models.MovePaper))
	_, err = a.matches.RevealMove(ctx, m2.ID, alice, 1, "scissors", fits)
	require.NoError(t, err)
}

func TestRevealRequiresCommitments(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	m := a.newFundedMatch(t, 0, 3)

	_, err := a.matches.RevealMove(ctx, m.ID, alice, 1, "rock", "abc")
	require.ErrorIs(t, err, ErrNoCommitment)

	s1 := seal(t, models.MoveRock)
	a.commit(t, m.ID, alice, 1, s1)

	_, err = a.matches.RevealMove(ctx, m.ID, bob, 1, "rock", "abc")
	require.ErrorIs(t, err, ErrNoCommitment)

	// Opponent has not committed yet.
	_, err = a.matches.RevealMove(ctx, m.ID, alice, 1, "rock", s1.secret)
	assert.Equal(t, CodeInvalidState, CodeOf(err))
}

func TestUnknownPlayerAndMatch(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	m := a.newFundedMatch(t, 0, 3)
	s := seal(t, models.MoveRock)

	_, err := a.matches.SubmitCommitment(ctx, m.ID, carol, 1, s.commitment)
	require.ErrorIs(t, err, ErrUnknownPlayer)

	_, err = a.matches.RevealMove(ctx, m.ID, carol, 1, "rock", s.secret)
	require.ErrorIs(t, err, ErrUnknownPlayer)

	_, err = a.matches.SubmitCommitment(ctx, "missing", alice, 1, s.commitment)
	require.ErrorIs(t, err, ErrMatchNotFound)

	_, err = a.matches.GetMatch(ctx, "missing")
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestCommitTargetsCurrentRound(t *testing.T) {
	a := newArena(t)
	m := a.newFundedMatch(t, 0, 3)

	_, err := a.matches.SubmitCommitment(context.Background(), m.ID, alice, 2, seal(t, models.MoveRock).commitment)
	assert.Equal(t, CodeInvalidState, CodeOf(err))

	_, err = a.matches.SubmitCommitment(context.Background(), m.ID, alice, 1, "not-a-hash")
	assert.Equal(t, CodeInvalidArgument, CodeOf(err))
}

func TestCommitmentsFreezeAfterFirstReveal(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	m := a.newFundedMatch(t, 0, 3)

	// Replacing a commitment before any reveal is allowed.
	a.commit(t, m.ID, alice, 1, seal(t, models.MoveRock))
	s1 := seal(t, models.MovePaper)
	a.commit(t, m.ID, alice, 1, s1)
	s2 := seal(t, models.MoveShield)
	a.commit(t, m.ID, bob, 1, s2)

	_, err := a.matches.RevealMove(ctx, m.ID, alice, 1, "paper", s1.secret)
	require.NoError(t, err)

	_, err = a.matches.SubmitCommitment(ctx, m.ID, bob, 1, seal(t, models.MoveScissors).commitment)
	assert.Equal(t, CodeInvalidState, CodeOf(err))

	res, err := a.matches.RevealMove(ctx, m.ID, bob, 1, "shield", s2.secret)
	require.NoError(t, err)
	assert.Equal(t, models.RoundWinnerPlayer1, *res.Round.Winner)
}

func TestRepeatedRevealReturnsState(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	m := a.newFundedMatch(t, 0, 3)

	s1, s2 := seal(t, models.MoveRock), seal(t, models.MoveFeint)
	a.commit(t, m.ID, alice, 1, s1)
	a.commit(t, m.ID, bob, 1, s2)
	_, err := a.matches.RevealMove(ctx, m.ID, alice, 1, "rock", s1.secret)
	require.NoError(t, err)
	first, err := a.matches.RevealMove(ctx, m.ID, bob, 1, "feint", s2.secret)
	require.NoError(t, err)

	again, err := a.matches.RevealMove(ctx, m.ID, bob, 1, "feint", s2.secret)
	require.NoError(t, err)
	assert.True(t, again.Resolved)
	assert.Equal(t, first.Match.ScoreP1, again.Match.ScoreP1)
	assert.Equal(t, 1, again.Match.ScoreP1)

	_, err = a.matches.RevealMove(ctx, m.ID, bob, 1, "rock", s2.secret)
	assert.Equal(t, CodeInvalidState, CodeOf(err))
}

func TestConcurrentRevealsResolveAndPayOnce(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	m := a.newFundedMatch(t, 5, 1)

	s1, s2 := seal(t, models.MoveScissors), seal(t, models.MovePaper)
	a.commit(t, m.ID, alice, 1, s1)
	a.commit(t, m.ID, bob, 1, s2)

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 3; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := a.matches.RevealMove(ctx, m.ID, alice, 1, "scissors", s1.secret)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := a.matches.RevealMove(ctx, m.ID, bob, 1, "paper", s2.secret)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			// A reveal may lose every race but must never corrupt state.
			assert.Equal(t, CodeConcurrencyConflict, CodeOf(err))
		}
	}

	final, err := a.matches.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusFinished, final.Status)
	assert.Equal(t, 1, final.ScoreP1)
	assert.Equal(t, 0, final.ScoreP2)
	require.NotNil(t, final.Winner)
	assert.Equal(t, alice, *final.Winner)
	assert.True(t, final.Paid)
	assert.Equal(t, models.PayoutStatusPaid, final.PayoutStatus)

	calls := a.gateway.payCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, alice, calls[0].To)
	assert.True(t, calls[0].Amount.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, m.ID, calls[0].Key)
	require.NotNil(t, final.PayoutReference)
	assert.Equal(t, "rcpt-"+m.ID, *final.PayoutReference)

	var ends int64
	require.NoError(t, a.db.Model(&models.MatchEvent{}).Where("match_id = ? AND type = ?", m.ID, EventMatchEnd).Count(&ends).Error)
	assert.EqualValues(t, 1, ends)
}

func TestResolveRoundTwiceConflicts(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	m := a.newFundedMatch(t, 0, 3)
	a.playRound(t, m.ID, 1, models.MoveRock, models.MoveScissors)

	// A resolver holding the pre-resolution view loses on the round row.
	var r models.Round
	require.NoError(t, a.db.First(&r, "match_id = ? AND round_number = ?", m.ID, 1).Error)
	staleRound := r
	staleRound.Resolved = false
	staleMatch := *m
	err := a.db.Transaction(func(tx *gorm.DB) error {
		_, err := a.matches.resolveRoundTx(tx, &staleMatch, &staleRound)
		return err
	})
	require.ErrorIs(t, err, ErrConflict)

	got, err := a.matches.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ScoreP1)
	assert.Equal(t, 0, got.ScoreP2)
	assert.Equal(t, 2, got.CurrentRound)

	var results int64
	require.NoError(t, a.db.Model(&models.MatchEvent{}).Where("match_id = ? AND type = ?", m.ID, EventRoundResult).Count(&results).Error)
	assert.EqualValues(t, 1, results)
}

func TestResolveRoundRollsBackWhenMatchMoved(t *testing.T) {
	a := newArena(t)
	m := a.newFundedMatch(t, 0, 3)
	a.commit(t, m.ID, alice, 1, seal(t, models.MoveRock))
	a.commit(t, m.ID, bob, 1, seal(t, models.MoveScissors))
	require.NoError(t, a.db.Model(&models.Round{}).
		Where("match_id = ? AND round_number = ?", m.ID, 1).
		Updates(map[string]any{"p1_move": models.MoveRock, "p2_move": models.MoveScissors}).Error)
	require.NoError(t, a.db.Model(&models.Match{}).Where("id = ?", m.ID).Update("current_round", 2).Error)

	var r models.Round
	require.NoError(t, a.db.First(&r, "match_id = ? AND round_number = ?", m.ID, 1).Error)
	err := a.db.Transaction(func(tx *gorm.DB) error {
		_, err := a.matches.resolveRoundTx(tx, m, &r)
		return err
	})
	require.ErrorIs(t, err, ErrConflict)

	// The round update made before the match guard failed is rolled back.
	var after models.Round
	require.NoError(t, a.db.First(&after, "id = ?", r.ID).Error)
	assert.False(t, after.Resolved)
	assert.Nil(t, after.Winner)

	var stored models.Match
	require.NoError(t, a.db.First(&stored, "id = ?", m.ID).Error)
	assert.Equal(t, 0, stored.ScoreP1)

	var results int64
	require.NoError(t, a.db.Model(&models.MatchEvent{}).Where("match_id = ? AND type = ?", m.ID, EventRoundResult).Count(&results).Error)
	assert.Zero(t, results)
}

func TestConfirmEntryStartsMatch(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	m, err := a.matches.CreateMatch(ctx, alice, bob, decimal.NewFromInt(2), 3)
	require.NoError(t, err)

	_, err = a.matches.SubmitCommitment(ctx, m.ID, alice, 1, seal(t, models.MoveRock).commitment)
	assert.Equal(t, CodeInvalidState, CodeOf(err))

	m, err = a.matches.ConfirmEntry(ctx, m.ID, alice, "tx-a")
	require.NoError(t, err)
	assert.True(t, m.P1EntryConfirmed)
	assert.Equal(t, models.MatchStatusReady, m.Status)

	// Confirming twice is harmless.
	m, err = a.matches.ConfirmEntry(ctx, m.ID, alice, "tx-a")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusReady, m.Status)

	_, err = a.matches.ConfirmEntry(ctx, m.ID, carol, "tx-c")
	require.ErrorIs(t, err, ErrUnknownPlayer)

	m, err = a.matches.ConfirmEntry(ctx, m.ID, bob, "tx-b")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusInProgress, m.Status)
	assert.NotNil(t, m.StartedAt)
	require.NotNil(t, m.P2EntryTx)
	assert.Equal(t, "tx-b", *m.P2EntryTx)
	assert.Len(t, a.gateway.verified, 2)
}

func TestConfirmEntryFailsWhenDepositUnverified(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	a.gateway.verifyErr = NewError(CodePaymentFailed, "entry deposit not verified")

	m, err := a.matches.CreateMatch(ctx, alice, bob, decimal.NewFromInt(2), 3)
	require.NoError(t, err)

	_, err = a.matches.ConfirmEntry(ctx, m.ID, alice, "tx-bogus")
	require.ErrorIs(t, err, ErrPaymentFailed)

	stored, err := a.matches.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, stored.P1EntryConfirmed)
}

func TestPracticeOpponentAnswersCommit(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()

	m, err := a.matches.CreatePracticeMatch(ctx, alice, 3)
	require.NoError(t, err)
	assert.True(t, m.IsPractice)
	assert.Equal(t, models.MatchStatusInProgress, m.Status)

	ai, err := a.fighters.GetFighter(ctx, m.Player2)
	require.NoError(t, err)
	assert.True(t, ai.IsAI)

	s := seal(t, models.MovePaper)
	after, err := a.matches.SubmitCommitment(ctx, m.ID, alice, 1, s.commitment)
	require.NoError(t, err)
	require.Len(t, after.Rounds, 1)
	require.NotNil(t, after.Rounds[0].P2Move)
	assert.Nil(t, after.Rounds[0].P1Move)

	res, err := a.matches.RevealMove(ctx, m.ID, alice, 1, "paper", s.secret)
	require.NoError(t, err)
	assert.True(t, res.Resolved)
	// The stub supplier always throws rock.
	assert.Equal(t, models.RoundWinnerPlayer1, *res.Round.Winner)
}

func TestMatchEventsAreRecordedAndPublished(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	m := a.newFundedMatch(t, 0, 3)

	live, cancel, err := a.bus.Subscribe(ctx, MatchTopic(m.ID))
	require.NoError(t, err)
	defer cancel()

	a.playRound(t, m.ID, 1, models.MoveRock, models.MoveScissors)

	want := []string{EventMatchCommit, EventMatchCommit, EventMatchReveal, EventMatchReveal, EventRoundResult}
	var got []string
	timeout := time.After(time.Second)
	for len(got) < len(want) {
		select {
		case evt := <-live:
			got = append(got, evt.Type)
		case <-timeout:
			t.Fatalf("only received %v", got)
		}
	}
	assert.Equal(t, want, got)

	stored, err := replayEvents(a.db, m.ID, 0)
	require.NoError(t, err)
	require.Len(t, stored, 6)
	assert.Equal(t, EventMatchStart, stored[0].Type)
	for i := 1; i < len(stored); i++ {
		assert.Greater(t, stored[i].Seq, stored[i-1].Seq)
	}
}

func TestAdvanceMatch(t *testing.T) {
	now := time.Now().UTC()
	m := &models.Match{Player1: alice, Player2: bob, TotalRounds: 5, CurrentRound: 1, Status: models.MatchStatusInProgress}

	assert.False(t, advanceMatch(m, models.RoundWinnerDraw, now))
	assert.Equal(t, 2, m.CurrentRound)
	assert.False(t, advanceMatch(m, models.RoundWinnerPlayer2, now))
	assert.False(t, advanceMatch(m, models.RoundWinnerPlayer2, now))
	assert.True(t, advanceMatch(m, models.RoundWinnerPlayer2, now))
	assert.Equal(t, 4, m.CurrentRound)
	assert.Equal(t, bob, *m.Winner)
	assert.Equal(t, models.MatchStatusFinished, m.Status)
}
