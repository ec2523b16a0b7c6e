// Package domain defines the entities and lifecycle rules for role-play
// session tracking.
//
// A Session represents one posted tracker. It moves between Stopped, Running,
// and Paused states while participants accumulate play time, and is logically
// closed when ended.
//
// # Accrual
//
// Elapsed time is only ever computed in the settle functions: a participant's
// checkpoint (AccruingSince) is folded into their stored total and advanced to
// the current time. Every other rule reads and writes settled totals, so
// settling twice with the same clock reading adds nothing.
//
// # Rewards
//
// At session end each participant's settled total converts to rewarded hours
// via the 45-minute threshold formula, and rewarded hours scale experience,
// currency, and key payouts according to RewardConfig.
package domain
