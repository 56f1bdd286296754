package domain

import "fmt"

// GameMode is the closed set of game formats a result can belong to.
type GameMode uint8

const (
	// ModePredictBattle is a single price-direction prediction round.
	ModePredictBattle GameMode = iota + 1
	// ModeBattleRoyale is a timed multi-trade battle.
	ModeBattleRoyale
)

// ParseGameMode converts the wire name of a mode.
func ParseGameMode(s string) (GameMode, error) {
	switch s {
	case "predict":
		return ModePredictBattle, nil
	case "battle":
		return ModeBattleRoyale, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Valid reports whether m is one of the declared modes.
func (m GameMode) Valid() bool {
	return m == ModePredictBattle || m == ModeBattleRoyale
}

func (m GameMode) String() string {
	switch m {
	case ModePredictBattle:
		return "predict"
	case ModeBattleRoyale:
		return "battle"
	}
	return fmt.Sprintf("GameMode(%d)", uint8(m))
}

func (m GameMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, ErrInvalidMode
	}
	return []byte(m.String()), nil
}

func (m *GameMode) UnmarshalText(text []byte) error {
	parsed, err := ParseGameMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// RewardKind is the closed set of reward events a player can claim.
type RewardKind uint8

const (
	RewardDailyLogin RewardKind = iota + 1
	RewardTierAchievement
	RewardWinStreak
	RewardTournament
)

var rewardNames = map[RewardKind]string{
	RewardDailyLogin:      "daily_login",
	RewardTierAchievement: "tier_achievement",
	RewardWinStreak:       "win_streak",
	RewardTournament:      "tournament",
}

// ParseRewardKind converts the wire name of a reward kind.
func ParseRewardKind(s string) (RewardKind, error) {
	for kind, name := range rewardNames {
		if name == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidReward, s)
}

func (k RewardKind) Valid() bool {
	_, ok := rewardNames[k]
	return ok
}

func (k RewardKind) String() string {
	if name, ok := rewardNames[k]; ok {
		return name
	}
	return fmt.Sprintf("RewardKind(%d)", uint8(k))
}

func (k RewardKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, ErrInvalidReward
	}
	return []byte(k.String()), nil
}

func (k *RewardKind) UnmarshalText(text []byte) error {
	parsed, err := ParseRewardKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
