package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elo-ledger/internal/config"
	"github.com/elo-ledger/internal/domain"
	"github.com/elo-ledger/internal/memory"
)

type fakeLadder struct {
	mu      sync.Mutex
	ratings map[domain.Identity]uint32
	err     error
}

func newFakeLadder() *fakeLadder {
	return &fakeLadder{ratings: make(map[domain.Identity]uint32)}
}

func (f *fakeLadder) SetRating(ctx context.Context, player domain.Identity, username string, rating uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ratings[player] = rating
	return nil
}

func (f *fakeLadder) GetTopN(ctx context.Context, n int) ([]domain.LadderEntry, error) {
	return make([]domain.LadderEntry, n), nil
}

func (f *fakeLadder) GetPlayerRank(ctx context.Context, player domain.Identity) (*domain.LadderEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rating, ok := f.ratings[player]
	if !ok {
		return nil, domain.ErrPlayerNotRanked
	}
	return &domain.LadderEntry{Rank: 1, Player: player, Rating: rating}, nil
}

func (f *fakeLadder) GetAroundPlayer(ctx context.Context, player domain.Identity, count int) ([]domain.LadderEntry, error) {
	return make([]domain.LadderEntry, count), nil
}

type recordingNotifier struct {
	changes []domain.RatingChange
	results []domain.GameResult
	claims  []domain.RewardClaim
}

func (r *recordingNotifier) BroadcastRatingChange(c domain.RatingChange) { r.changes = append(r.changes, c) }
func (r *recordingNotifier) BroadcastGameResult(g domain.GameResult) { r.results = append(r.results, g) }
func (r *recordingNotifier) BroadcastRewardClaim(c domain.RewardClaim) { r.claims = append(r.claims, c) }

type fixture struct {
	ledger   *Ledger
	store    *memory.Store
	ladder   *fakeLadder
	notifier *recordingNotifier
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	f := &fixture{
		store:    memory.NewStore(),
		ladder:   newFakeLadder(),
		notifier: &recordingNotifier{},
		now:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	f.ledger = NewLedger(f.store, f.ladder, &cfg.Ladder, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.ledger.SetNotifier(f.notifier)
	f.ledger.SetClock(func() time.Time { return f.now })
	return f
}

func player(b byte) domain.Identity {
	var id domain.Identity
	id[0] = b
	id[31] = b
	return id
}

func (f *fixture) createProfile(t *testing.T, owner domain.Identity) *domain.Profile {
	t.Helper()
	p, err := f.ledger.CreateProfile(context.Background(), owner, "trader")
	require.NoError(t, err)
	return p
}

func TestCreateProfile(t *testing.T) {
	f := newFixture(t)
	owner := player(1)

	p := f.createProfile(t, owner)

	assert.EqualValues(t, 1000, p.Rating)
	assert.Equal(t, f.now, p.CreatedAt)
	assert.EqualValues(t, 1000, f.ladder.ratings[owner])

	_, err := f.ledger.CreateProfile(context.Background(), owner, "again")
	assert.ErrorIs(t, err, domain.ErrProfileExists)
}

func TestCreateProfileValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.CreateProfile(context.Background(), player(1), "")
	assert.ErrorIs(t, err, domain.ErrUsernameEmpty)

	_, err = f.ledger.CreateProfile(context.Background(), player(1), strings.Repeat("n", 33))
	assert.ErrorIs(t, err, domain.ErrUsernameTooLong)

	_, err = f.ledger.GetProfile(context.Background(), player(1))
	assert.ErrorIs(t, err, domain.ErrProfileNotFound, "failed create must not persist anything")

	_, err = f.ledger.CreateProfile(context.Background(), player(1), strings.Repeat("n", 32))
	assert.NoError(t, err)
}

func TestUpdateRatingScenarios(t *testing.T) {
	f := newFixture(t)
	owner := player(1)
	f.createProfile(t, owner)

	f.now = f.now.Add(time.Minute)
	change, err := f.ledger.UpdateRating(context.Background(), owner, owner, domain.RatingUpdate{Delta: -1500, Won: false, Mode: domain.ModePredictBattle})
	require.NoError(t, err)

	p := change.Profile
	assert.EqualValues(t, 0, p.Rating)
	assert.EqualValues(t, 1000, p.PeakRating)
	assert.EqualValues(t, 1, p.TotalGames)
	assert.EqualValues(t, 1, p.Losses)
	assert.EqualValues(t, 1, p.PredictGames)
	assert.Equal(t, f.now, p.LastPlayedAt)
	assert.EqualValues(t, 0, f.ladder.ratings[owner])
	require.Len(t, f.notifier.changes, 1)

	other := player(2)
	f.createProfile(t, other)
	change, err = f.ledger.UpdateRating(context.Background(), other, other, domain.RatingUpdate{Delta: 50, Won: true, Mode: domain.ModeBattleRoyale})
	require.NoError(t, err)
	assert.EqualValues(t, 1050, change.NewRating)
	assert.EqualValues(t, 1050, change.Profile.PeakRating)
	assert.EqualValues(t, 1, change.Profile.Wins)
	assert.EqualValues(t, 1, change.Profile.BattleGames)
}

func TestUpdateRatingUnauthorizedLeavesProfileUnchanged(t *testing.T) {
	f := newFixture(t)
	owner, intruder := player(1), player(2)
	original := f.createProfile(t, owner)

	_, err := f.ledger.UpdateRating(context.Background(), intruder, owner, domain.RatingUpdate{Delta: -500, Mode: domain.ModeBattleRoyale})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	got, err := f.ledger.GetProfile(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, *original, *got)
	assert.Empty(t, f.notifier.changes)
}

func TestUpdateRatingRejectsUnknownMode(t *testing.T) {
	f := newFixture(t)
	owner := player(1)
	f.createProfile(t, owner)

	_, err := f.ledger.UpdateRating(context.Background(), owner, owner, domain.RatingUpdate{Delta: 5})
	assert.ErrorIs(t, err, domain.ErrInvalidMode)
}

func TestUpdateRatingSurvivesLadderFailure(t *testing.T) {
	f := newFixture(t)
	owner := player(1)
	f.createProfile(t, owner)
	f.ladder.err = errors.New("redis down")

	change, err := f.ledger.UpdateRating(context.Background(), owner, owner, domain.RatingUpdate{Delta: 10, Won: true, Mode: domain.ModePredictBattle})
	require.NoError(t, err)
	assert.EqualValues(t, 1010, change.NewRating)
}

func TestRecordGameResultUsesPostUpdateRating(t *testing.T) {
	f := newFixture(t)
	owner := player(1)
	f.createProfile(t, owner)

	change, err := f.ledger.UpdateRating(context.Background(), owner, owner, domain.RatingUpdate{Delta: 24, Won: true, Mode: domain.ModeBattleRoyale})
	require.NoError(t, err)

	result, err := f.ledger.RecordGameResult(context.Background(), owner, owner, domain.ModeBattleRoyale, domain.GameOutcome{
		Won:   true,
		Delta: 24,
		Label: "ETH/USD",
		PnL:   3500,
	})
	require.NoError(t, err)

	assert.Equal(t, change.NewRating, result.FinalRating)
	assert.EqualValues(t, 1024, result.FinalRating)

	history, err := f.ledger.ListGameResults(context.Background(), owner, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, result.ID, history[0].ID)
}

func TestRecordGameResultValidation(t *testing.T) {
	f := newFixture(t)
	owner := player(1)
	f.createProfile(t, owner)

	_, err := f.ledger.RecordGameResult(context.Background(), player(2), owner, domain.ModePredictBattle, domain.GameOutcome{Label: "BTC"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.ledger.RecordGameResult(context.Background(), owner, owner, domain.ModePredictBattle, domain.GameOutcome{Label: "BTC/USD/PERP"})
	assert.ErrorIs(t, err, domain.ErrLabelTooLong)

	_, err = f.ledger.RecordGameResult(context.Background(), owner, player(3), domain.ModePredictBattle, domain.GameOutcome{})
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)

	history, _ := f.ledger.ListGameResults(context.Background(), owner, 0)
	assert.Empty(t, history)
}

func TestReportGameIsAtomic(t *testing.T) {
	f := newFixture(t)
	owner := player(1)
	original := f.createProfile(t, owner)

	_, err := f.ledger.ReportGame(context.Background(), owner, owner, domain.ModePredictBattle, domain.GameOutcome{
		Won:   true,
		Delta: 12,
		Label: "this label is too long",
	})
	assert.ErrorIs(t, err, domain.ErrLabelTooLong)

	got, _ := f.ledger.GetProfile(context.Background(), owner)
	assert.Equal(t, *original, *got, "rejected report must not touch the profile")

	_, err = f.ledger.ReportGame(context.Background(), owner, owner, domain.ModePredictBattle, domain.GameOutcome{
		Won:   true,
		Delta: 12,
		Label: "BTC\x00",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidText)

	got, _ = f.ledger.GetProfile(context.Background(), owner)
	assert.Equal(t, *original, *got, "rejected report must not touch the profile")

	report, err := f.ledger.ReportGame(context.Background(), owner, owner, domain.ModePredictBattle, domain.GameOutcome{
		Won:   true,
		Delta: 12,
		Label: "SOL/USD",
		PnL:   90,
	})
	require.NoError(t, err)

	got, _ = f.ledger.GetProfile(context.Background(), owner)
	assert.EqualValues(t, 1012, got.Rating)
	assert.Equal(t, got.Rating, report.Result.FinalRating)
	assert.Equal(t, got.Rating, report.Change.NewRating)
	assert.Len(t, f.notifier.changes, 1)
	assert.Len(t, f.notifier.results, 1)
}

func TestReportGameUnauthorized(t *testing.T) {
	f := newFixture(t)
	owner := player(1)
	f.createProfile(t, owner)

	_, err := f.ledger.ReportGame(context.Background(), player(2), owner, domain.ModeBattleRoyale, domain.GameOutcome{Delta: 100})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestLogFidelityOverManyGames(t *testing.T) {
	f := newFixture(t)
	owner := player(1)
	f.createProfile(t, owner)

	deltas := []int32{30, -700, -700, 15, 400, -5}
	for i, d := range deltas {
		mode := domain.ModePredictBattle
		if i%2 == 1 {
			mode = domain.ModeBattleRoyale
		}
		report, err := f.ledger.ReportGame(context.Background(), owner, owner, mode, domain.GameOutcome{Won: d > 0, Delta: d, Label: "BTC"})
		require.NoError(t, err)

		p, err := f.ledger.GetProfile(context.Background(), owner)
		require.NoError(t, err)
		assert.Equal(t, p.Rating, report.Result.FinalRating)
		assert.Equal(t, p.TotalGames, p.Wins+p.Losses)
		assert.Equal(t, p.TotalGames, p.PredictGames+p.BattleGames)
		assert.GreaterOrEqual(t, p.PeakRating, p.Rating)
	}
}

func TestClaimReward(t *testing.T) {
	f := newFixture(t)
	owner := player(1)
	f.createProfile(t, owner)
	_, err := f.ledger.UpdateRating(context.Background(), owner, owner, domain.RatingUpdate{Delta: 420, Won: true, Mode: domain.ModeBattleRoyale})
	require.NoError(t, err)

	claim, err := f.ledger.ClaimReward(context.Background(), owner, owner, domain.RewardTierAchievement, "ipfs://gold")
	require.NoError(t, err)
	assert.EqualValues(t, 1420, claim.RatingAtClaim)

	again, err := f.ledger.ClaimReward(context.Background(), owner, owner, domain.RewardTierAchievement, "ipfs://gold")
	require.NoError(t, err, "repeat claims are allowed")
	assert.NotEqual(t, claim.ID, again.ID)

	p, _ := f.ledger.GetProfile(context.Background(), owner)
	assert.EqualValues(t, 1420, p.Rating, "claims never mutate the profile")

	claims, err := f.ledger.ListRewardClaims(context.Background(), owner, 10)
	require.NoError(t, err)
	assert.Len(t, claims, 2)
	assert.Len(t, f.notifier.claims, 2)
}

func TestClaimRewardValidation(t *testing.T) {
	f := newFixture(t)
	owner := player(1)
	f.createProfile(t, owner)

	_, err := f.ledger.ClaimReward(context.Background(), owner, owner, domain.RewardDailyLogin, strings.Repeat("u", 201))
	assert.ErrorIs(t, err, domain.ErrURITooLong)

	_, err = f.ledger.ClaimReward(context.Background(), player(2), owner, domain.RewardDailyLogin, "ipfs://x")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.ledger.ClaimReward(context.Background(), owner, owner, domain.RewardDailyLogin, strings.Repeat("u", 200))
	assert.NoError(t, err)

	claims, _ := f.ledger.ListRewardClaims(context.Background(), owner, 0)
	assert.Len(t, claims, 1)
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	owner := player(1)
	f.createProfile(t, owner)

	delta, err := f.ledger.Quote(context.Background(), owner, QuoteRequest{Mode: domain.ModePredictBattle, Won: true})
	require.NoError(t, err)
	assert.EqualValues(t, 10, delta)

	delta, err = f.ledger.Quote(context.Background(), owner, QuoteRequest{Mode: domain.ModeBattleRoyale, Won: false, OpponentRating: 1000})
	require.NoError(t, err)
	assert.EqualValues(t, -16, delta)

	delta, err = f.ledger.Quote(context.Background(), owner, QuoteRequest{Mode: domain.ModeBattleRoyale, Draw: true})
	require.NoError(t, err)
	assert.EqualValues(t, 0, delta)

	_, err = f.ledger.Quote(context.Background(), owner, QuoteRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidMode)
}

func TestLadderQueries(t *testing.T) {
	f := newFixture(t)
	owner := player(1)
	f.createProfile(t, owner)

	top, err := f.ledger.GetTopN(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, top, 100)

	top, err = f.ledger.GetTopN(context.Background(), 5000)
	require.NoError(t, err)
	assert.Len(t, top, 1000)

	entry, err := f.ledger.GetPlayerRank(context.Background(), owner)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, entry.Rating)

	around, err := f.ledger.GetAroundPlayer(context.Background(), owner, 500)
	require.NoError(t, err)
	assert.Len(t, around, 50)
}

func TestLadderDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	l := NewLedger(memory.NewStore(), nil, &cfg.Ladder, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := l.CreateProfile(context.Background(), player(1), "solo")
	require.NoError(t, err)

	_, err = l.GetTopN(context.Background(), 10)
	assert.ErrorIs(t, err, domain.ErrLadderDisabled)
}
