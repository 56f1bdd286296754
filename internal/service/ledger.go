package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/elo-ledger/internal/config"
	"github.com/elo-ledger/internal/domain"
)

// Ledger provides the profile, rating and record operations
type Ledger struct {
	store    Store
	ladder   Ladder
	notifier Notifier
	config   *config.LadderConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewLedger creates a new ledger service. ladder may be nil when the rating
// ladder is disabled.
func NewLedger(
	store Store,
	ladder Ladder,
	cfg *config.LadderConfig,
	logger *slog.Logger,
) *Ledger {
	return &Ledger{
		store:  store,
		ladder: ladder,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetNotifier sets the live feed committed events are broadcast to
func (l *Ledger) SetNotifier(n Notifier) {
	l.notifier = n
}

// SetClock replaces the time source
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// CreateProfile creates the profile owned by caller
func (l *Ledger) CreateProfile(ctx context.Context, caller domain.Identity, username string) (*domain.Profile, error) {
	profile, err := domain.NewProfile(caller, username, l.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := l.store.CreateProfile(ctx, *profile); err != nil {
		return nil, err
	}

	l.logger.Info("profile created", "player", caller, "username", username)
	l.mirror(ctx, *profile)
	return profile, nil
}

// GetProfile returns the profile owned by player
func (l *Ledger) GetProfile(ctx context.Context, player domain.Identity) (*domain.Profile, error) {
	return l.store.GetProfile(ctx, player)
}

// UpdateRating applies one game's rating delta to owner's profile. caller must
// own the profile.
func (l *Ledger) UpdateRating(ctx context.Context, caller, owner domain.Identity, update domain.RatingUpdate) (*domain.RatingChange, error) {
	if !update.Mode.Valid() {
		return nil, domain.ErrInvalidMode
	}

	var before domain.Profile
	after, err := l.store.UpdateProfile(ctx, owner, func(p *domain.Profile) error {
		if !p.Authorize(caller) {
			return domain.ErrUnauthorized
		}
		before = *p
		*p = domain.ApplyRating(*p, update, l.now().UTC())
		return nil
	})
	if err != nil {
		return nil, err
	}

	change := domain.DescribeChange(before, *after, update.Delta)
	l.logger.Info("rating updated",
		"player", owner,
		"old_rating", change.OldRating,
		"new_rating", change.NewRating,
		"delta", update.Delta,
		"mode", update.Mode,
	)

	l.mirror(ctx, *after)
	if l.notifier != nil {
		l.notifier.BroadcastRatingChange(change)
	}
	return &change, nil
}

// RecordGameResult logs a finished game against a profile that was already
// updated with UpdateRating. The result carries the profile's current rating.
func (l *Ledger) RecordGameResult(ctx context.Context, caller, owner domain.Identity, mode domain.GameMode, outcome domain.GameOutcome) (*domain.GameResult, error) {
	profile, err := l.store.GetProfile(ctx, owner)
	if err != nil {
		return nil, err
	}

	result, err := domain.NewGameResult(profile, caller, mode, outcome, l.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := l.store.InsertGameResult(ctx, *result); err != nil {
		return nil, fmt.Errorf("inserting game result: %w", err)
	}

	l.logger.Info("game result recorded",
		"player", owner,
		"result_id", result.ID,
		"won", result.Won,
		"final_rating", result.FinalRating,
	)
	if l.notifier != nil {
		l.notifier.BroadcastGameResult(*result)
	}
	return result, nil
}

// ReportGame updates the rating and records the result in a single store
// transaction, so the logged final rating is always the committed one.
func (l *Ledger) ReportGame(ctx context.Context, caller, owner domain.Identity, mode domain.GameMode, outcome domain.GameOutcome) (*domain.GameReport, error) {
	if !mode.Valid() {
		return nil, domain.ErrInvalidMode
	}

	var before domain.Profile
	after, result, err := l.store.RecordGame(ctx, owner, func(p *domain.Profile) (*domain.GameResult, error) {
		if !p.Authorize(caller) {
			return nil, domain.ErrUnauthorized
		}
		if err := domain.ValidateLabel(outcome.Label); err != nil {
			return nil, err
		}
		now := l.now().UTC()
		before = *p
		*p = domain.ApplyRating(*p, domain.RatingUpdate{
			Delta: outcome.Delta,
			Won:   outcome.Won,
			Mode:  mode,
		}, now)
		return domain.NewGameResult(p, caller, mode, outcome, now)
	})
	if err != nil {
		return nil, err
	}

	report := &domain.GameReport{
		Change: domain.DescribeChange(before, *after, outcome.Delta),
		Result: *result,
	}
	l.logger.Info("game reported",
		"player", owner,
		"result_id", result.ID,
		"old_rating", report.Change.OldRating,
		"new_rating", report.Change.NewRating,
	)

	l.mirror(ctx, *after)
	if l.notifier != nil {
		l.notifier.BroadcastRatingChange(report.Change)
		l.notifier.BroadcastGameResult(*result)
	}
	return report, nil
}

// ClaimReward records a reward grant for owner's profile
func (l *Ledger) ClaimReward(ctx context.Context, caller, owner domain.Identity, kind domain.RewardKind, metadataURI string) (*domain.RewardClaim, error) {
	profile, err := l.store.GetProfile(ctx, owner)
	if err != nil {
		return nil, err
	}

	claim, err := domain.NewRewardClaim(caller, profile, kind, metadataURI, l.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := l.store.InsertRewardClaim(ctx, *claim); err != nil {
		return nil, fmt.Errorf("inserting reward claim: %w", err)
	}

	l.logger.Info("reward claimed",
		"player", owner,
		"claim_id", claim.ID,
		"kind", claim.Kind,
		"rating_at_claim", claim.RatingAtClaim,
	)
	if l.notifier != nil {
		l.notifier.BroadcastRewardClaim(*claim)
	}
	return claim, nil
}

// ListGameResults returns player's most recent game results
func (l *Ledger) ListGameResults(ctx context.Context, player domain.Identity, limit int) ([]domain.GameResult, error) {
	return l.store.ListGameResults(ctx, player, l.historyLimit(limit))
}

// ListRewardClaims returns player's most recent reward claims
func (l *Ledger) ListRewardClaims(ctx context.Context, player domain.Identity, limit int) ([]domain.RewardClaim, error) {
	return l.store.ListRewardClaims(ctx, player, l.historyLimit(limit))
}

func (l *Ledger) historyLimit(limit int) int {
	if limit <= 0 || limit > l.config.HistoryLimit {
		return l.config.HistoryLimit
	}
	return limit
}

// QuoteRequest asks what a game would be worth for a profile
type QuoteRequest struct {
	Mode           domain.GameMode `json:"mode"`
	Won            bool            `json:"won"`
	Draw           bool            `json:"draw,omitempty"`
	OpponentRating uint32          `json:"opponent_rating,omitempty"`
}

// Quote computes the rating delta a game would produce for player
func (l *Ledger) Quote(ctx context.Context, player domain.Identity, req QuoteRequest) (int32, error) {
	profile, err := l.store.GetProfile(ctx, player)
	if err != nil {
		return 0, err
	}

	switch req.Mode {
	case domain.ModePredictBattle:
		return domain.PredictBattleDelta(req.Won, profile.CurrentStreak), nil
	case domain.ModeBattleRoyale:
		score := 0.0
		if req.Draw {
			score = 0.5
		} else if req.Won {
			score = 1
		}
		opponent := req.OpponentRating
		if opponent == 0 {
			opponent = profile.Rating
		}
		return domain.BattleRoyaleDelta(profile.Rating, opponent, score, profile.TotalGames), nil
	}
	return 0, domain.ErrInvalidMode
}

// GetTopN returns the top N players of the rating ladder
func (l *Ledger) GetTopN(ctx context.Context, n int) ([]domain.LadderEntry, error) {
	if l.ladder == nil {
		return nil, domain.ErrLadderDisabled
	}
	if n <= 0 {
		n = l.config.DefaultLimit
	}
	if n > l.config.MaxLimit {
		n = l.config.MaxLimit
	}

	entries, err := l.ladder.GetTopN(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("getting top n from ladder: %w", err)
	}
	return entries, nil
}

// GetPlayerRank returns a player's ladder position
func (l *Ledger) GetPlayerRank(ctx context.Context, player domain.Identity) (*domain.LadderEntry, error) {
	if l.ladder == nil {
		return nil, domain.ErrLadderDisabled
	}
	return l.ladder.GetPlayerRank(ctx, player)
}

// GetAroundPlayer returns the ladder window around a player
func (l *Ledger) GetAroundPlayer(ctx context.Context, player domain.Identity, count int) ([]domain.LadderEntry, error) {
	if l.ladder == nil {
		return nil, domain.ErrLadderDisabled
	}
	if count <= 0 {
		count = 5
	}
	if count > l.config.MaxAround {
		count = l.config.MaxAround
	}
	return l.ladder.GetAroundPlayer(ctx, player, count)
}

// mirror copies a committed rating into the ladder. The store stays the
// source of truth; the sync worker repairs missed writes.
func (l *Ledger) mirror(ctx context.Context, p domain.Profile) {
	if l.ladder == nil {
		return
	}
	if err := l.ladder.SetRating(ctx, p.Owner, p.Username, p.Rating); err != nil {
		l.logger.Warn("failed to mirror rating to ladder", "player", p.Owner, "error", err)
	}
}
