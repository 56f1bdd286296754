package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxLabelLength is the label limit in bytes (e.g. "BTC/USD").
const MaxLabelLength = 10

// GameOutcome is what the caller reports about one finished game.
type GameOutcome struct {
	Won   bool   `json:"won"`
	Delta int32  `json:"delta"`
	Label string `json:"label"`
	PnL   int64  `json:"pnl"`
}

// GameResult is an immutable log entry for one completed game.
type GameResult struct {
	ID           uuid.UUID `json:"id"`
	Player       Identity  `json:"player"`
	Mode         GameMode  `json:"mode"`
	Timestamp    time.Time `json:"timestamp"`
	Won          bool      `json:"won"`
	RatingChange int32     `json:"rating_change"`
	FinalRating  uint32    `json:"final_rating"`
	Label        string    `json:"label"`
	PnL          int64     `json:"pnl"`
}

// ValidateLabel checks the label length and that it is storable text. An
// empty label is allowed.
func ValidateLabel(label string) error {
	if len(label) > MaxLabelLength {
		return ErrLabelTooLong
	}
	if !storableText(label) {
		return ErrInvalidText
	}
	return nil
}

// NewGameResult builds the log entry for a game. profile must be the record
// already updated by ApplyRating: FinalRating is read from it, never computed.
func NewGameResult(profile *Profile, player Identity, mode GameMode, outcome GameOutcome, now time.Time) (*GameResult, error) {
	if !profile.Authorize(player) {
		return nil, ErrUnauthorized
	}
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	if err := ValidateLabel(outcome.Label); err != nil {
		return nil, err
	}
	return &GameResult{
		ID:           uuid.New(),
		Player:       player,
		Mode:         mode,
		Timestamp:    now,
		Won:          outcome.Won,
		RatingChange: outcome.Delta,
		FinalRating:  profile.Rating,
		Label:        outcome.Label,
		PnL:          outcome.PnL,
	}, nil
}
