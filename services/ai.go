package services

import (
	"context"
	"math"
	"math/rand/v2"

	"duel-arena/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// MoveSupplier picks moves for server-controlled fighters.
type MoveSupplier interface {
	NextMove(ctx context.Context, fighter *models.Fighter, matchID string, round int) (models.Move, error)
}

// StyleMoveSupplier samples a move from the fighter's style weights.
type StyleMoveSupplier struct {
	Rand func() float64
}

func NewStyleMoveSupplier() *StyleMoveSupplier {
	return &StyleMoveSupplier{Rand: rand.Float64}
}

func (s *StyleMoveSupplier) NextMove(_ context.Context, fighter *models.Fighter, _ string, _ int) (models.Move, error) {
	return pickMove(fighter.Style.Data(), s.Rand()), nil
}

// pickMove walks the cumulative distribution of style at r in [0,1).
func pickMove(style models.MoveWeights, r float64) models.Move {
	cumulative := 0.0
	for _, m := range models.Moves {
		cumulative += style[m]
		if r < cumulative {
			return m
		}
	}
	// Weights are rounded and may sum just under 1.
	return models.MoveRock
}

var aiNames = []string{"Gladiator-X", "Shadow-V", "Iron-Fist", "Ghost-0", "Razor-7", "Phantom-K", "Viper-Z", "Blaze-Q"}

// aiBias is the extra weight an AI fighter gets on its favourite move.
const aiBias = 0.15

// newAIFighter rolls a practice opponent with a random favourite move.
func newAIFighter(rng func() float64) models.Fighter {
	name := aiNames[int(math.Floor(rng()*float64(len(aiNames))))%len(aiNames)]
	style := models.DefaultStyle()
	bias := models.Moves[int(math.Floor(rng()*float64(len(models.Moves))))%len(models.Moves)]
	style[bias] += aiBias
	style = normalizeStyle(style)

	id := uuid.NewString()
	return models.Fighter{
		Address:  "0xAI" + id[:8],
		Name:     name,
		Handle:   slug.Make(name + "-" + id[:4]),
		IsAI:     true,
		Style:    datatypes.NewJSONType(style),
		Earnings: decimal.Zero,
	}
}
