package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// StartingRating is the rating (and peak) of a freshly created profile.
	StartingRating = 1000
	// MaxUsernameLength is the username limit in bytes.
	MaxUsernameLength = 32
)

// Profile is the per-player rating and statistics record.
//
// Invariants kept by NewProfile and ApplyRating:
//   - PeakRating >= Rating
//   - TotalGames == Wins + Losses == PredictGames + BattleGames
//   - LastPlayedAt never moves backwards
type Profile struct {
	Owner         Identity  `json:"owner"`
	Username      string    `json:"username"`
	Rating        uint32    `json:"rating"`
	PeakRating    uint32    `json:"peak_rating"`
	TotalGames    uint32    `json:"total_games"`
	Wins          uint32    `json:"wins"`
	Losses        uint32    `json:"losses"`
	PredictGames  uint32    `json:"predict_games"`
	BattleGames   uint32    `json:"battle_games"`
	CurrentStreak uint32    `json:"current_streak"`
	BestStreak    uint32    `json:"best_streak"`
	TotalEarnings int64     `json:"total_earnings"`
	CreatedAt     time.Time `json:"created_at"`
	LastPlayedAt  time.Time `json:"last_played_at"`
}

// ValidateUsername checks the 1..32 byte length rule and that the name is
// storable text.
func ValidateUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	if !storableText(username) {
		return ErrInvalidText
	}
	return nil
}

// storableText rejects what a text column cannot hold: invalid UTF-8 and NUL.
func storableText(s string) bool {
	return utf8.ValidString(s) && strings.IndexByte(s, 0) < 0
}

// NewProfile builds the initial profile for owner.
func NewProfile(owner Identity, username string, now time.Time) (*Profile, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	return &Profile{
		Owner:        owner,
		Username:     username,
		Rating:       StartingRating,
		PeakRating:   StartingRating,
		CreatedAt:    now,
		LastPlayedAt: now,
	}, nil
}

// Authorize reports whether id owns the profile.
func (p *Profile) Authorize(id Identity) bool {
	return p.Owner == id
}

// Tier returns the rating band the profile currently sits in.
func (p *Profile) Tier() Tier {
	return TierFor(p.Rating)
}
