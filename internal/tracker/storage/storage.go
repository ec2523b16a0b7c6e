// Package storage defines the persistence contracts of the tracker core.
//
// A session and its roster form one transactional unit: ApplySessionUpdate
// must persist both atomically so a crash never leaves a transition half
// applied. Key ledgers are per-user and independent of any session.
package storage

import (
	"context"
	"errors"

	"github.com/louisbranch/rollcall/internal/tracker/domain"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable marks transient store failures. Callers own retry
	// policy; the core never retries a partially observed mutation.
	ErrUnavailable = errors.New("storage unavailable")
)

// SessionStore persists session records.
type SessionStore interface {
	CreateSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, id string) (domain.Session, error)
	// ListOpenSessions returns every session that has not been ended, for
	// the periodic tick sweep and for tracker re-attachment after restart.
	ListOpenSessions(ctx context.Context) ([]domain.Session, error)
	// ApplySessionUpdate persists a session and its roster in one
	// transaction. Participants absent from the slice are left untouched.
	ApplySessionUpdate(ctx context.Context, session domain.Session, roster []domain.Participant) error
}

// ParticipantStore persists attendance records.
type ParticipantStore interface {
	GetParticipant(ctx context.Context, sessionID, userID string) (domain.Participant, error)
	ListRoster(ctx context.Context, sessionID string) ([]domain.Participant, error)
	PutParticipant(ctx context.Context, participant domain.Participant) error
}

// LedgerStore persists per-user key balances.
type LedgerStore interface {
	// GetLedger returns ErrNotFound for users who have never been credited.
	GetLedger(ctx context.Context, userID string) (domain.KeyLedger, error)
	// CreditKeys creates the ledger on first credit and adds to both the
	// balance and the lifetime total.
	CreditKeys(ctx context.Context, userID string, amount int) (domain.KeyLedger, error)
	// DebitKeys subtracts from the balance, clamping at zero. The lifetime
	// total is never decremented.
	DebitKeys(ctx context.Context, userID string, amount int) (domain.KeyLedger, error)
}
