package service

import (
	"context"

	"github.com/elo-ledger/internal/domain"
)

// Store is the record store the ledger runs on. Implementations serialize
// writes to a given profile and never persist a partial update: when a
// callback returns an error nothing is written.
type Store interface {
	// CreateProfile fails with domain.ErrProfileExists if owner already has one.
	CreateProfile(ctx context.Context, profile domain.Profile) error
	GetProfile(ctx context.Context, owner domain.Identity) (*domain.Profile, error)
	// UpdateProfile loads the profile, lets fn mutate it and writes it back.
	UpdateProfile(ctx context.Context, owner domain.Identity, fn func(*domain.Profile) error) (*domain.Profile, error)
	// RecordGame runs fn on the profile and stores the updated profile together
	// with the result fn returns, in one transaction.
	RecordGame(ctx context.Context, owner domain.Identity, fn func(*domain.Profile) (*domain.GameResult, error)) (*domain.Profile, *domain.GameResult, error)
	InsertGameResult(ctx context.Context, result domain.GameResult) error
	InsertRewardClaim(ctx context.Context, claim domain.RewardClaim) error
	ListGameResults(ctx context.Context, player domain.Identity, limit int) ([]domain.GameResult, error)
	ListRewardClaims(ctx context.Context, player domain.Identity, limit int) ([]domain.RewardClaim, error)
	ListProfiles(ctx context.Context) ([]domain.Profile, error)
}

// Ladder is the rating index kept next to the store.
type Ladder interface {
	SetRating(ctx context.Context, player domain.Identity, username string, rating uint32) error
	GetTopN(ctx context.Context, n int) ([]domain.LadderEntry, error)
	GetPlayerRank(ctx context.Context, player domain.Identity) (*domain.LadderEntry, error)
	GetAroundPlayer(ctx context.Context, player domain.Identity, count int) ([]domain.LadderEntry, error)
}

// Notifier receives committed ledger events for live subscribers.
type Notifier interface {
	BroadcastRatingChange(change domain.RatingChange)
	BroadcastGameResult(result domain.GameResult)
	BroadcastRewardClaim(claim domain.RewardClaim)
}
