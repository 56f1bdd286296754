package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierFor(t *testing.T) {
	tests := []struct {
		rating uint32
		level  int
	}{
		{0, 1},
		{999, 1},
		{1000, 2},
		{1399, 3},
		{1400, 4},
		{1999, 6},
		{2299, 7},
		{2300, 8},
		{100000, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, TierFor(tt.rating).Level, "rating %d", tt.rating)
	}
}

func TestExpectedScore(t *testing.T) {
	assert.InDelta(t, 0.5, ExpectedScore(1200, 1200), 1e-9)
	assert.InDelta(t, 0.909, ExpectedScore(1400, 1000), 0.001)
	assert.InDelta(t, 1, ExpectedScore(1400, 1000)+ExpectedScore(1000, 1400), 1e-9)
}

func TestBattleRoyaleDelta(t *testing.T) {
	// Even match, new player: K=32
	assert.EqualValues(t, 16, BattleRoyaleDelta(1000, 1000, 1, 0))
	assert.EqualValues(t, -16, BattleRoyaleDelta(1000, 1000, 0, 10))
	// Established player: K=24
	assert.EqualValues(t, 12, BattleRoyaleDelta(1000, 1000, 1, 30))
	assert.EqualValues(t, 0, BattleRoyaleDelta(1000, 1000, 0.5, 30))
}

func TestRoundHalfUp(t *testing.T) {
	assert.EqualValues(t, 3, roundHalfUp(2.5))
	assert.EqualValues(t, -2, roundHalfUp(-2.5))
	assert.EqualValues(t, -3, roundHalfUp(-2.6))
	assert.EqualValues(t, 0, roundHalfUp(-0.5))
	assert.EqualValues(t, 16, roundHalfUp(15.5))
}

func TestPredictBattleDelta(t *testing.T) {
	assert.EqualValues(t, -5, PredictBattleDelta(false, 7))
	assert.EqualValues(t, 10, PredictBattleDelta(true, 0))
	assert.EqualValues(t, 14, PredictBattleDelta(true, 4))
	assert.EqualValues(t, 20, PredictBattleDelta(true, 50))
}
