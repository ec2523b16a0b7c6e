package domain

import "sort"

// Reward modifier flags recognized by the reward calculator. Flags are an
// open set; unknown names are carried through untouched so new modifiers do
// not require storage changes.
const (
	// FlagCapped grants bonus-currency keys instead of experience.
	FlagCapped = "capped"
	// FlagXPMultiplier doubles the experience payout.
	FlagXPMultiplier = "xp_multiplier"
	// FlagCurrencyMultiplier doubles the currency payout.
	FlagCurrencyMultiplier = "currency_multiplier"
)

// Flags is a set of named boolean reward modifiers.
type Flags map[string]bool

// Has reports whether the named flag is set.
func (f Flags) Has(name string) bool {
	return f[name]
}

// Clone returns an independent copy holding only the set flags.
func (f Flags) Clone() Flags {
	if len(f) == 0 {
		return nil
	}
	clone := make(Flags, len(f))
	for name, set := range f {
		if set {
			clone[name] = true
		}
	}
	if len(clone) == 0 {
		return nil
	}
	return clone
}

// Names returns the sorted names of all set flags.
func (f Flags) Names() []string {
	if len(f) == 0 {
		return nil
	}
	names := make([]string, 0, len(f))
	for name, set := range f {
		if set {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
