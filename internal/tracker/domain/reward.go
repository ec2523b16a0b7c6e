package domain

import "math"

// XPBracket maps an inclusive level range to an experience rate per
// rewarded hour.
type XPBracket struct {
	MinLevel int
	MaxLevel int
	PerHour  int
}

// LootTier maps an inclusive level range to a loot table name.
type LootTier struct {
	Name     string
	MinLevel int
	MaxLevel int
}

// RewardConfig holds the tables the reward calculator runs against.
// Callers pass it explicitly; there is no ambient reward state.
type RewardConfig struct {
	// CurrencyPerLevelHour scales currency as level * rate * rewarded hours.
	CurrencyPerLevelHour int
	XPBrackets           []XPBracket
	LootTiers            []LootTier
}

// DefaultRewardConfig returns the standard reward tables.
//
// The experience table deliberately starts at level 2: level-1 characters
// earn currency but no experience. That asymmetry is long-standing table
// behavior and is preserved, not corrected.
func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		CurrencyPerLevelHour: 10,
		XPBrackets: []XPBracket{
			{MinLevel: 2, MaxLevel: 4, PerHour: 300},
			{MinLevel: 5, MaxLevel: 8, PerHour: 600},
			{MinLevel: 9, MaxLevel: 12, PerHour: 800},
			{MinLevel: 13, MaxLevel: 16, PerHour: 1000},
			{MinLevel: 17, MaxLevel: 20, PerHour: 1200},
		},
	}
}

// RewardedHours converts settled seconds to whole rewarded hours using the
// 45-minute threshold: 44:59 rounds to zero, 45:00 counts as the first hour,
// and each later hour is granted at its own minus-15-minute boundary. The
// additive-900 integer formula is the contract, not a rounding shortcut.
func RewardedHours(accruedSeconds float64) int {
	hours := math.Floor((accruedSeconds + 900) / 3600)
	if hours < 0 {
		return 0
	}
	return int(hours)
}

// Reward is one participant's payout line at session end.
type Reward struct {
	UserID        string
	CharacterName string
	Level         int
	RewardedHours int
	// Experience is zero for capped participants; Keys is zero otherwise.
	Experience int
	Keys       int
	Currency   int
	LootTier   string
}

// RewardReport itemizes the payouts computed when a session ends.
type RewardReport struct {
	SessionID      string
	ChannelID      string
	ElapsedSeconds float64
	Rewards        []Reward
}

// Compute maps one participant's settled time and attributes to a payout.
// It is a pure function of the participant and the config tables.
func (c RewardConfig) Compute(p Participant) Reward {
	hours := RewardedHours(p.AccruedSeconds)

	currency := p.Level * c.CurrencyPerLevelHour * hours
	if p.Flags.Has(FlagCurrencyMultiplier) {
		currency *= 2
	}

	reward := Reward{
		UserID:        p.UserID,
		CharacterName: p.CharacterName,
		Level:         p.Level,
		RewardedHours: hours,
		Currency:      currency,
		LootTier:      c.lootTier(p.Level),
	}

	if p.Flags.Has(FlagCapped) {
		reward.Keys = hours
		return reward
	}

	xp := c.xpPerHour(p.Level) * hours
	if p.Flags.Has(FlagXPMultiplier) {
		xp *= 2
	}
	reward.Experience = xp
	return reward
}

// xpPerHour returns the bracket rate for a level, or zero when no bracket
// covers it.
func (c RewardConfig) xpPerHour(level int) int {
	for _, bracket := range c.XPBrackets {
		if level >= bracket.MinLevel && level <= bracket.MaxLevel {
			return bracket.PerHour
		}
	}
	return 0
}

// lootTier returns the name of the first tier covering a level, or empty.
func (c RewardConfig) lootTier(level int) string {
	for _, tier := range c.LootTiers {
		if level >= tier.MinLevel && level <= tier.MaxLevel {
			return tier.Name
		}
	}
	return ""
}
