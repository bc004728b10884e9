package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"duel-arena/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type payCall struct {
	To     string
	Amount decimal.Decimal
	Key    string
}

// fakeGateway records payouts and fails the next failPays calls.
type fakeGateway struct {
	mu        sync.Mutex
	pays      []payCall
	failPays  int
	verifyErr error
	verified  []string
}

func (g *fakeGateway) Pay(_ context.Context, to string, amount decimal.Decimal, key string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failPays > 0 {
		g.failPays--
		return "", errors.New("wallet unavailable")
	}
	g.pays = append(g.pays, payCall{To: to, Amount: amount, Key: key})
	return "rcpt-" + key, nil
}

func (g *fakeGateway) VerifyEntry(_ context.Context, from string, _ decimal.Decimal, txRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifyErr != nil {
		return g.verifyErr
	}
	g.verified = append(g.verified, from+":"+txRef)
	return nil
}

func (g *fakeGateway) payCalls() []payCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]payCall(nil), g.pays...)
}

type fakeArchive struct {
	mu   sync.Mutex
	keys []string
}

func (a *fakeArchive) PutJSON(_ context.Context, key string, _ []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	return "https://cdn.example/" + key, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: ":memory:"}), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps the in-memory database alive and shared.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.AutoMigrate(db))
	return db
}

type arena struct {
	db         *gorm.DB
	clock      *testClock
	gateway    *fakeGateway
	bus        *LocalBus
	fighters   *FighterService
	settlement *SettlementService
	matches    *MatchService
	queue      *MatchmakingService
}

func newArena(t *testing.T) *arena {
	t.Helper()
	db := newTestDB(t)
	clock := newTestClock()
	gw := &fakeGateway{}
	bus := NewLocalBus()

	fighters := NewFighterService(db)
	fighters.Now = clock.Now
	fighters.Jitter = func() float64 { return 0.5 }

	settlement := NewSettlementService(db, gw, bus)
	settlement.Now = clock.Now

	matches := NewMatchService(db, bus, fighters, settlement, gw)
	matches.Now = clock.Now
	matches.Supplier = &StyleMoveSupplier{Rand: func() float64 { return 0 }}

	queue := NewMatchmakingService(db, matches, fighters, bus)
	queue.Now = clock.Now
	queue.DefaultEntryFee = decimal.Zero

	return &arena{
		db:         db,
		clock:      clock,
		gateway:    gw,
		bus:        bus,
		fighters:   fighters,
		settlement: settlement,
		matches:    matches,
		queue:      queue,
	}
}

const (
	alice = "0xA11CE0000000000000000000000000000000001"
	bob   = "0xB0B0000000000000000000000000000000000002"
	carol = "0xCA401000000000000000000000000000000003"
)

// newFundedMatch creates a match with fee and confirms both entries.
func (a *arena) newFundedMatch(t *testing.T, fee int64, rounds int) *models.Match {
	t.Helper()
	ctx := context.Background()
	m, err := a.matches.CreateMatch(ctx, alice, bob, decimal.NewFromInt(fee), rounds)
	require.NoError(t, err)
	if fee > 0 {
		_, err = a.matches.ConfirmEntry(ctx, m.ID, alice, "tx-a")
		require.NoError(t, err)
		m, err = a.matches.ConfirmEntry(ctx, m.ID, bob, "tx-b")
		require.NoError(t, err)
	}
	require.Equal(t, models.MatchStatusInProgress, m.Status)
	return m
}

type sealed struct {
	move       models.Move
	secret     string
	commitment string
}

func seal(t *testing.T, m models.Move) sealed {
	t.Helper()
	c, s, err := Commit(m)
	require.NoError(t, err)
	return sealed{move: m, secret: s, commitment: c}
}

func (a *arena) commit(t *testing.T, matchID, player string, round int, s sealed) {
	t.Helper()
	_, err := a.matches.SubmitCommitment(context.Background(), matchID, player, round, s.commitment)
	require.NoError(t, err)
}

// playRound commits and reveals both moves and returns the second reveal.
func (a *arena) playRound(t *testing.T, matchID string, round int, p1, p2 models.Move) *RoundResult {
	t.Helper()
	s1, s2 := seal(t, p1), seal(t, p2)
	a.commit(t, matchID, alice, round, s1)
	a.commit(t, matchID, bob, round, s2)

	ctx := context.Background()
	first, err := a.matches.RevealMove(ctx, matchID, alice, round, string(p1), s1.secret)
	require.NoError(t, err)
	require.False(t, first.Resolved)

	res, err := a.matches.RevealMove(ctx, matchID, bob, round, string(p2), s2.secret)
	require.NoError(t, err, "round %d", round)
	require.True(t, res.Resolved)
	return res
}
