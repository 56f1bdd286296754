package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elo-ledger/internal/domain"
)

func identity(b byte) domain.Identity {
	var id domain.Identity
	id[0] = b
	return id
}

func seed(t *testing.T, s *Store, owner domain.Identity) domain.Profile {
	t.Helper()
	p, err := domain.NewProfile(owner, "seed", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.CreateProfile(context.Background(), *p))
	return *p
}

func TestCreateProfileIsUniquePerIdentity(t *testing.T) {
	s := NewStore()
	owner := identity(1)
	seed(t, s, owner)

	p, _ := domain.NewProfile(owner, "again", time.Now())
	err := s.CreateProfile(context.Background(), *p)
	assert.ErrorIs(t, err, domain.ErrProfileExists)

	got, err := s.GetProfile(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, "seed", got.Username)
}

func TestGetProfileNotFound(t *testing.T) {
	_, err := NewStore().GetProfile(context.Background(), identity(9))
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestUpdateProfileRollsBackOnError(t *testing.T) {
	s := NewStore()
	owner := identity(1)
	original := seed(t, s, owner)
	boom := errors.New("boom")

	_, err := s.UpdateProfile(context.Background(), owner, func(p *domain.Profile) error {
		p.Rating = 1
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetProfile(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, original, *got)
}

func TestRecordGameRollsBackOnError(t *testing.T) {
	s := NewStore()
	owner := identity(1)
	original := seed(t, s, owner)

	_, _, err := s.RecordGame(context.Background(), owner, func(p *domain.Profile) (*domain.GameResult, error) {
		p.Rating = 5
		return nil, domain.ErrLabelTooLong
	})
	assert.ErrorIs(t, err, domain.ErrLabelTooLong)

	got, _ := s.GetProfile(context.Background(), owner)
	assert.Equal(t, original, *got)
	results, _ := s.ListGameResults(context.Background(), owner, 0)
	assert.Empty(t, results)
}

func TestUpdateProfileSerializesWriters(t *testing.T) {
	s := NewStore()
	owner := identity(1)
	seed(t, s, owner)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateProfile(context.Background(), owner, func(p *domain.Profile) error {
				*p = domain.ApplyRating(*p, domain.RatingUpdate{Delta: 1, Won: true, Mode: domain.ModePredictBattle}, time.Now())
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, _ := s.GetProfile(context.Background(), owner)
	assert.EqualValues(t, 1050, got.Rating)
	assert.EqualValues(t, 50, got.TotalGames)
}

func TestListsAreNewestFirstAndFilteredByPlayer(t *testing.T) {
	s := NewStore()
	a, b := identity(1), identity(2)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertGameResult(context.Background(), domain.GameResult{ID: uuid.New(), Player: a, PnL: int64(i)}))
		require.NoError(t, s.InsertRewardClaim(context.Background(), domain.RewardClaim{ID: uuid.New(), Player: a, RatingAtClaim: uint32(i)}))
	}
	require.NoError(t, s.InsertGameResult(context.Background(), domain.GameResult{ID: uuid.New(), Player: b}))

	results, err := s.ListGameResults(context.Background(), a, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.EqualValues(t, 2, results[0].PnL)
	assert.EqualValues(t, 1, results[1].PnL)

	claims, err := s.ListRewardClaims(context.Background(), a, 0)
	require.NoError(t, err)
	require.Len(t, claims, 3)
	assert.EqualValues(t, 2, claims[0].RatingAtClaim)

	other, _ := s.ListGameResults(context.Background(), b, 10)
	assert.Len(t, other, 1)
}
