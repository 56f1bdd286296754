package domain

import (
	"math"
	"time"
)

// RatingUpdate is the input of a single rating transition.
type RatingUpdate struct {
	Delta int32    `json:"delta"`
	Won   bool     `json:"won"`
	Mode  GameMode `json:"mode"`
}

// ApplyRating returns p after one completed game. It performs no
// authorization; callers must have checked ownership first.
func ApplyRating(p Profile, u RatingUpdate, now time.Time) Profile {
	p.Rating = clampRating(int64(p.Rating) + int64(u.Delta))
	if p.Rating > p.PeakRating {
		p.PeakRating = p.Rating
	}

	p.TotalGames++
	if u.Won {
		p.Wins++
		p.CurrentStreak++
		if p.CurrentStreak > p.BestStreak {
			p.BestStreak = p.CurrentStreak
		}
	} else {
		p.Losses++
		p.CurrentStreak = 0
	}

	switch u.Mode {
	case ModePredictBattle:
		p.PredictGames++
	case ModeBattleRoyale:
		p.BattleGames++
	default:
		panic("domain: ApplyRating called with unknown game mode")
	}

	if now.After(p.LastPlayedAt) {
		p.LastPlayedAt = now
	}
	return p
}

func clampRating(r int64) uint32 {
	if r < 0 {
		return 0
	}
	if r > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(r)
}

// RatingChange summarises a transition for callers and live feeds.
type RatingChange struct {
	Player    Identity `json:"player"`
	OldRating uint32   `json:"old_rating"`
	NewRating uint32   `json:"new_rating"`
	Delta     int32    `json:"delta"`
	OldTier   string   `json:"old_tier"`
	NewTier   string   `json:"new_tier"`
	TierUp    bool     `json:"tier_up"`
	Profile   Profile  `json:"profile"`
}

// DescribeChange compares the profile before and after ApplyRating.
func DescribeChange(before, after Profile, delta int32) RatingChange {
	oldTier := TierFor(before.Rating)
	newTier := TierFor(after.Rating)
	return RatingChange{
		Player:    after.Owner,
		OldRating: before.Rating,
		NewRating: after.Rating,
		Delta:     delta,
		OldTier:   oldTier.Name,
		NewTier:   newTier.Name,
		TierUp:    newTier.Level > oldTier.Level,
		Profile:   after,
	}
}
