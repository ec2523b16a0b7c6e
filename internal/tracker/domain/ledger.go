package domain

import (
	"errors"
	"time"
)

// ErrInvalidKeyAmount indicates a non-positive ledger amount.
var ErrInvalidKeyAmount = errors.New("key amount must be positive")

// KeyLedger tracks one user's bonus-currency balance across all sessions.
// Entries are created lazily on first credit and are never reset.
type KeyLedger struct {
	UserID string
	// CurrentBalance never goes below zero; debits clamp.
	CurrentBalance int
	// LifetimeTotal only ever increases, and only on credits.
	LifetimeTotal int
	UpdatedAt     time.Time
}

// Credit adds keys to both the balance and the lifetime total.
func (l *KeyLedger) Credit(amount int, now time.Time) error {
	if amount <= 0 {
		return ErrInvalidKeyAmount
	}
	l.CurrentBalance += amount
	l.LifetimeTotal += amount
	l.UpdatedAt = now.UTC()
	return nil
}

// Debit removes keys from the balance, clamping at zero. The lifetime total
// is untouched by debits.
func (l *KeyLedger) Debit(amount int, now time.Time) error {
	if amount <= 0 {
		return ErrInvalidKeyAmount
	}
	l.CurrentBalance -= amount
	if l.CurrentBalance < 0 {
		l.CurrentBalance = 0
	}
	l.UpdatedAt = now.UTC()
	return nil
}
