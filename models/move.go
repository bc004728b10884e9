package models

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Move is one of the five symbols a fighter can throw in a round.
type Move string

const (
	MoveRock     Move = "rock"
	MovePaper    Move = "paper"
	MoveScissors Move = "scissors"
	MoveShield   Move = "shield"
	MoveFeint    Move = "feint"
)

// Moves lists every valid move in a stable order.
var Moves = []Move{MoveRock, MovePaper, MoveScissors, MoveShield, MoveFeint}

var titleCaser = cases.Title(language.English)

// ParseMove normalizes user input into a Move.
func ParseMove(s string) (Move, bool) {
	m := Move(strings.ToLower(strings.TrimSpace(s)))
	return m, m.Valid()
}

func (m Move) Valid() bool {
	switch m {
	case MoveRock, MovePaper, MoveScissors, MoveShield, MoveFeint:
		return true
	}
	return false
}

// DisplayName renders the move the way round descriptions print it ("Rock").
func (m Move) DisplayName() string {
	return titleCaser.String(string(m))
}

// MoveWeights is a probability distribution over moves.
type MoveWeights map[Move]float64

// DefaultStyle is the uniform distribution every new fighter starts with.
func DefaultStyle() MoveWeights {
	w := make(MoveWeights, len(Moves))
	for _, m := range Moves {
		w[m] = 1 / float64(len(Moves))
	}
	return w
}
