package services

import (
	"context"
	"strings"
	"testing"

	"duel-arena/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noJitter() float64 { return 0.5 }

func styleSum(w models.MoveWeights) float64 {
	total := 0.0
	for _, m := range models.Moves {
		total += w[m]
	}
	return total
}

func TestEnsureFighterCreatesDefaults(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()

	f, err := a.fighters.EnsureFighter(ctx, "  "+alice+" ")
	require.NoError(t, err)
	assert.Equal(t, alice, f.Address)
	assert.Equal(t, "Fighter-0xA11C", f.Name)
	assert.Equal(t, "fighter-0xa11c", f.Handle)
	assert.Equal(t, "Balanced", f.Archetype)
	assert.False(t, f.IsAI)
	assert.InDelta(t, 1.0, styleSum(f.Style.Data()), 1e-9)
	require.NotNil(t, f.LastSeenAt)
	assert.True(t, f.LastSeenAt.Equal(a.clock.Now()))

	_, err = a.fighters.RenameFighter(ctx, alice, "Night Owl")
	require.NoError(t, err)
	again, err := a.fighters.EnsureFighter(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "Night Owl", again.Name, "second sight must not reset the profile")

	_, err = a.fighters.EnsureFighter(ctx, " ")
	assert.Equal(t, CodeInvalidArgument, CodeOf(err))
}

func TestRenameFighter(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	_, err := a.fighters.EnsureFighter(ctx, alice)
	require.NoError(t, err)

	f, err := a.fighters.RenameFighter(ctx, alice, "  Café Crusher! ")
	require.NoError(t, err)
	assert.Equal(t, "Café Crusher!", f.Name)
	assert.Equal(t, "cafe-crusher", f.Handle)

	for _, bad := range []string{"", "   ", "!!!", strings.Repeat("x", 33)} {
		_, err := a.fighters.RenameFighter(ctx, alice, bad)
		assert.Equal(t, CodeInvalidArgument, CodeOf(err), "name %q", bad)
	}

	_, err = a.fighters.RenameFighter(ctx, carol, "Nobody")
	assert.ErrorIs(t, err, ErrFighterNotFound)
}

func TestAIFightersCannotBeRenamed(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	m, err := a.matches.CreatePracticeMatch(ctx, alice, 1)
	require.NoError(t, err)

	_, err = a.fighters.RenameFighter(ctx, m.Player2, "Hijacked")
	assert.ErrorIs(t, err, ErrFighterNotFound)
}

func TestEvolveStyleShiftsTowardCounters(t *testing.T) {
	next := EvolveStyle(models.DefaultStyle(), []models.Move{models.MoveRock, models.MoveRock, models.MoveRock}, noJitter)

	assert.InDelta(t, 1.0, styleSum(next), 0.005)
	for _, c := range CountersOf(models.MoveRock) {
		assert.Greater(t, next[c], next[models.MoveRock], "counter %s", c)
		assert.InDelta(t, 0.269, next[c], 0.0005)
	}
	assert.InDelta(t, 0.154, next[models.MoveScissors], 0.0005)
}

func TestEvolveStyleIgnoresRareMoves(t *testing.T) {
	var seen []models.Move
	seen = append(seen, models.Moves...)
	next := EvolveStyle(models.DefaultStyle(), seen, noJitter)
	for _, m := range models.Moves {
		assert.InDelta(t, 0.2, next[m], 0.0005, "move %s", m)
	}
}

func TestEvolveStyleKeepsEveryMoveAlive(t *testing.T) {
	lopsided := models.MoveWeights{models.MoveRock: 1}
	next := EvolveStyle(lopsided, nil, func() float64 { return 0 })
	for _, m := range models.Moves {
		assert.Greater(t, next[m], 0.0, "move %s", m)
	}
	assert.InDelta(t, 1.0, styleSum(next), 0.005)
}

func TestArchetype(t *testing.T) {
	assert.Equal(t, "Balanced", Archetype(models.DefaultStyle()))
	assert.Equal(t, "Brawler", Archetype(models.MoveWeights{models.MoveRock: 0.4, models.MovePaper: 0.15, models.MoveScissors: 0.15, models.MoveShield: 0.15, models.MoveFeint: 0.15}))
	assert.Equal(t, "Trickster", Archetype(models.MoveWeights{models.MoveFeint: 0.36}))
	assert.Equal(t, "Balanced", Archetype(models.MoveWeights{models.MoveShield: 0.35}))
}

func TestMatchRecordsAndEvolvesFighters(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	m := a.newFundedMatch(t, 0, 3)

	a.playRound(t, m.ID, 1, models.MovePaper, models.MoveRock)
	res := a.playRound(t, m.ID, 2, models.MovePaper, models.MoveRock)
	require.True(t, res.Finished)

	winner, err := a.fighters.GetFighter(ctx, alice)
	require.NoError(t, err)
	loser, err := a.fighters.GetFighter(ctx, bob)
	require.NoError(t, err)

	assert.Equal(t, 1, winner.Wins)
	assert.Equal(t, 1, loser.Losses)
	// Alice faced only rock, so she leans toward its counters.
	style := winner.Style.Data()
	assert.Greater(t, style[models.MoveShield], style[models.MoveRock])
	// Bob faced only paper.
	bobStyle := loser.Style.Data()
	for _, c := range CountersOf(models.MovePaper) {
		assert.Greater(t, bobStyle[c], bobStyle[models.MovePaper])
	}
}

func TestPracticeLeavesRecordAlone(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	m, err := a.matches.CreatePracticeMatch(ctx, alice, 1)
	require.NoError(t, err)

	s := seal(t, models.MoveShield)
	_, err = a.matches.SubmitCommitment(ctx, m.ID, alice, 1, s.commitment)
	require.NoError(t, err)
	res, err := a.matches.RevealMove(ctx, m.ID, alice, 1, "shield", s.secret)
	require.NoError(t, err)
	require.True(t, res.Finished)
	require.NotNil(t, res.Match.Winner)
	assert.Equal(t, alice, *res.Match.Winner)

	f, err := a.fighters.GetFighter(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, f.Wins)
	assert.Zero(t, f.Losses)
	assert.NotEqual(t, models.DefaultStyle(), f.Style.Data())
	assert.Empty(t, a.gateway.payCalls())
}

func TestLeaderboard(t *testing.T) {
	a := newArena(t)
	ctx := context.Background()
	for _, p := range []string{alice, bob, carol} {
		_, err := a.fighters.EnsureFighter(ctx, p)
		require.NoError(t, err)
	}
	practice, err := a.matches.CreatePracticeMatch(ctx, carol, 1)
	require.NoError(t, err)

	set := func(addr string, wins int, earnings int64) {
		require.NoError(t, a.db.Model(&models.Fighter{}).Where("address = ?", addr).
			Updates(map[string]any{"wins": wins, "earnings": decimal.NewFromInt(earnings)}).Error)
	}
	set(alice, 1, 5)
	set(bob, 1, 0)
	set(carol, 3, 0)
	set(practice.Player2, 10, 0)

	board, err := a.fighters.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, []string{carol, alice, bob}, []string{board[0].Address, board[1].Address, board[2].Address})
	assert.NotEmpty(t, board[0].Archetype)

	top, err := a.fighters.Leaderboard(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}
