package services

import (
	"fmt"

	"duel-arena/models"
)

// Outcome is the result of a single round.
type Outcome struct {
	Winner      models.RoundWinner
	Description string
}

type pairing struct{ attacker, defender models.Move }

// victories lists every winning pairing with its flavor line. Each move
// beats exactly two others.
var victories = map[pairing]string{
	{models.MoveRock, models.MoveScissors}:   "Rock crushes Scissors!",
	{models.MoveRock, models.MoveFeint}:      "Rock smashes through the bluff!",
	{models.MovePaper, models.MoveRock}:      "Paper wraps Rock!",
	{models.MovePaper, models.MoveShield}:    "Paper slips past the Shield!",
	{models.MoveScissors, models.MovePaper}:  "Scissors cuts Paper!",
	{models.MoveScissors, models.MoveFeint}:  "Scissors cuts through the bluff!",
	{models.MoveShield, models.MoveRock}:     "Shield blocks Rock!",
	{models.MoveShield, models.MoveScissors}: "Shield deflects Scissors!",
	{models.MoveFeint, models.MovePaper}:     "Feint reads Paper's intent!",
	{models.MoveFeint, models.MoveShield}:    "Feint sees through the Shield!",
}

const drawDescription = "Both chose the same. Draw!"

// Beats reports whether a defeats b.
func Beats(a, b models.Move) bool {
	_, ok := victories[pairing{a, b}]
	return ok
}

// CountersOf returns the moves that defeat m.
func CountersOf(m models.Move) []models.Move {
	var out []models.Move
	for _, c := range models.Moves {
		if Beats(c, m) {
			out = append(out, c)
		}
	}
	return out
}

// Resolve decides a round between player1's move p1 and player2's move p2.
func Resolve(p1, p2 models.Move) (Outcome, error) {
	if !p1.Valid() || !p2.Valid() {
		return Outcome{}, invalidArgument("invalid move pairing %q vs %q", p1, p2)
	}
	if p1 == p2 {
		return Outcome{Winner: models.RoundWinnerDraw, Description: drawDescription}, nil
	}
	if desc, ok := victories[pairing{p1, p2}]; ok {
		return Outcome{Winner: models.RoundWinnerPlayer1, Description: desc}, nil
	}
	if desc, ok := victories[pairing{p2, p1}]; ok {
		return Outcome{Winner: models.RoundWinnerPlayer2, Description: desc}, nil
	}
	// The table covers every distinct pair; reaching here means it was edited badly.
	return Outcome{}, &Error{Code: CodeInternal, Message: fmt.Sprintf("no outcome for %s vs %s", p1, p2)}
}
