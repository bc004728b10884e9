package services

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"duel-arena/models"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// archetypeThreshold is the weight a move needs before it defines a style.
	archetypeThreshold = 0.35
	// counterShift is how far a frequent opponent move pulls weight toward its counters.
	counterShift = 0.15
	// frequentShare marks an opponent move as a habit worth countering.
	frequentShare = 0.25
	styleJitter   = 0.05
	minWeight     = 0.02
	maxNameLength = 32
)

var archetypeNames = map[models.Move]string{
	models.MoveRock:     "Brawler",
	models.MovePaper:    "Tactician",
	models.MoveScissors: "Assassin",
	models.MoveShield:   "Turtle",
	models.MoveFeint:    "Trickster",
}

// FighterService owns fighter profiles, records and style evolution.
type FighterService struct {
	DB *gorm.DB
	// Jitter returns a value in [0,1) used to perturb evolving styles.
	Jitter func() float64
	Now    func() time.Time
}

func NewFighterService(db *gorm.DB) *FighterService {
	return &FighterService{DB: db, Jitter: rand.Float64, Now: utcNow}
}

func utcNow() time.Time { return time.Now().UTC() }

// DefaultFighterName is the name given to a fighter seen for the first time.
func DefaultFighterName(address string) string {
	short := address
	if len(short) > 6 {
		short = short[:6]
	}
	return "Fighter-" + short
}

// Archetype names the fighter's dominant move, or "Balanced".
func Archetype(style models.MoveWeights) string {
	best := models.Moves[0]
	for _, m := range models.Moves[1:] {
		if style[m] > style[best] {
			best = m
		}
	}
	if style[best] > archetypeThreshold {
		return archetypeNames[best]
	}
	return "Balanced"
}

// EvolveStyle nudges current toward the counters of habits seen in
// opponentMoves, jitters every weight and renormalizes. jitter returns
// values in [0,1).
func EvolveStyle(current models.MoveWeights, opponentMoves []models.Move, jitter func() float64) models.MoveWeights {
	next := make(models.MoveWeights, len(models.Moves))
	for _, m := range models.Moves {
		next[m] = current[m]
	}

	freq := make(map[models.Move]float64, len(models.Moves))
	for _, m := range opponentMoves {
		freq[m] += 1 / float64(len(opponentMoves))
	}

	for _, m := range models.Moves {
		if freq[m] > frequentShare {
			for _, c := range CountersOf(m) {
				next[c] += freq[m] * counterShift
			}
		}
		next[m] += (jitter() - 0.5) * styleJitter
		next[m] = math.Max(minWeight, next[m])
	}
	return normalizeStyle(next)
}

func normalizeStyle(w models.MoveWeights) models.MoveWeights {
	total := 0.0
	for _, m := range models.Moves {
		total += w[m]
	}
	out := make(models.MoveWeights, len(models.Moves))
	for _, m := range models.Moves {
		out[m] = math.Round(w[m]/total*1000) / 1000
	}
	return out
}

func withArchetype(f *models.Fighter) *models.Fighter {
	f.Archetype = Archetype(f.Style.Data())
	return f
}

// EnsureFighter returns the fighter for address, creating it on first sight.
func (s *FighterService) EnsureFighter(ctx context.Context, address string) (*models.Fighter, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, invalidArgument("player address is required")
	}
	var f models.Fighter
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureFighterTx(tx, address); err != nil {
			return err
		}
		now := s.Now()
		if err := tx.Model(&models.Fighter{}).Where("address = ?", address).Update("last_seen_at", now).Error; err != nil {
			return err
		}
		return tx.First(&f, "address = ?", address).Error
	})
	if err != nil {
		return nil, err
	}
	return withArchetype(&f), nil
}

// ensureFighterTx inserts a default human fighter unless one exists.
func ensureFighterTx(tx *gorm.DB, address string) error {
	name := DefaultFighterName(address)
	f := models.Fighter{
		Address:  address,
		Name:     name,
		Handle:   slug.Make(name),
		Style:    datatypes.NewJSONType(models.DefaultStyle()),
		Earnings: decimal.Zero,
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&f).Error
}

func (s *FighterService) GetFighter(ctx context.Context, address string) (*models.Fighter, error) {
	var f models.Fighter
	err := s.DB.WithContext(ctx).First(&f, "address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFighterNotFound
	}
	if err != nil {
		return nil, err
	}
	return withArchetype(&f), nil
}

// RenameFighter sets a display name and refreshes the URL handle.
func (s *FighterService) RenameFighter(ctx context.Context, address, name string) (*models.Fighter, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, invalidArgument("name must be 1 to %d characters", maxNameLength)
	}
	handle := slug.Make(name)
	if handle == "" {
		return nil, invalidArgument("name must contain letters or digits")
	}
	res := s.DB.WithContext(ctx).Model(&models.Fighter{}).
		Where("address = ? AND is_ai = ?", address, false).
		Updates(map[string]any{"name": name, "handle": handle})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrFighterNotFound
	}
	return s.GetFighter(ctx, address)
}

// Leaderboard ranks human fighters by wins, then earnings.
func (s *FighterService) Leaderboard(ctx context.Context, limit int) ([]models.Fighter, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var fighters []models.Fighter
	err := s.DB.WithContext(ctx).
		Where("is_ai = ?", false).
		Order("wins DESC").
		Order("earnings DESC").
		Order("address ASC").
		Limit(limit).
		Find(&fighters).Error
	if err != nil {
		return nil, err
	}
	for i := range fighters {
		withArchetype(&fighters[i])
	}
	return fighters, nil
}

// recordResultTx updates both fighters' records and evolves their styles
// after a match ends. Practice matches only evolve the human's style.
func (s *FighterService) recordResultTx(tx *gorm.DB, m *models.Match, rounds []models.Round) error {
	sides := []struct {
		address string
		slot    models.Slot
	}{{m.Player1, models.SlotPlayer1}, {m.Player2, models.SlotPlayer2}}

	for _, side := range sides {
		var f models.Fighter
		if err := tx.First(&f, "address = ?", side.address).Error; err != nil {
			return err
		}
		if f.IsAI {
			continue
		}

		var opponentMoves []models.Move
		opp := models.SlotPlayer2
		if side.slot == models.SlotPlayer2 {
			opp = models.SlotPlayer1
		}
		for _, r := range rounds {
			if mv := r.Move(opp); mv != nil {
				opponentMoves = append(opponentMoves, *mv)
			}
		}

		updates := map[string]any{}
		if len(opponentMoves) > 0 {
			updates["style"] = datatypes.NewJSONType(EvolveStyle(f.Style.Data(), opponentMoves, s.Jitter))
		}
		if !m.IsPractice {
			switch {
			case m.Winner == nil:
				updates["draws"] = gorm.Expr("draws + 1")
			case *m.Winner == side.address:
				updates["wins"] = gorm.Expr("wins + 1")
			default:
				updates["losses"] = gorm.Expr("losses + 1")
			}
		}
		if len(updates) == 0 {
			continue
		}
		if err := tx.Model(&models.Fighter{}).Where("address = ?", side.address).Updates(updates).Error; err != nil {
			return err
		}
	}
	return nil
}

// creditEarningsTx adds a delivered prize to the winner's lifetime earnings.
func creditEarningsTx(tx *gorm.DB, address string, amount decimal.Decimal) error {
	return tx.Model(&models.Fighter{}).
		Where("address = ?", address).
		Update("earnings", gorm.Expr("earnings + ?", amount)).Error
}
