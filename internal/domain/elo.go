package domain

import "math"

// Rating quote constants
const (
	PredictWinBase      = 10
	PredictLoss         = -5
	PredictStreakCap    = 10
	KFactorNew          = 32
	KFactorEstablished  = 24
	EstablishedAfter    = 30
	expectedScoreSpread = 400
)

// ExpectedScore is the standard ELO win expectancy of rating against opponent.
func ExpectedScore(rating, opponent float64) float64 {
	return 1 / (1 + math.Pow(10, (opponent-rating)/expectedScoreSpread))
}

// BattleRoyaleDelta quotes the rating change of a head-to-head battle.
// score is 1 for a win, 0.5 for a draw and 0 for a loss.
func BattleRoyaleDelta(rating, opponent uint32, score float64, gamesPlayed uint32) int32 {
	k := float64(KFactorEstablished)
	if gamesPlayed < EstablishedAfter {
		k = KFactorNew
	}
	expected := ExpectedScore(float64(rating), float64(opponent))
	return roundHalfUp(k * (score - expected))
}

// roundHalfUp rounds halves toward positive infinity, so -2.5 becomes -2.
func roundHalfUp(x float64) int32 {
	return int32(math.Floor(x + 0.5))
}

// PredictBattleDelta quotes the rating change of a prediction round.
func PredictBattleDelta(correct bool, streak uint32) int32 {
	if !correct {
		return PredictLoss
	}
	bonus := streak
	if bonus > PredictStreakCap {
		bonus = PredictStreakCap
	}
	return PredictWinBase + int32(bonus)
}
