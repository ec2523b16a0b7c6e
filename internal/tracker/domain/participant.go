package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Level bounds accepted at join time. Out-of-range levels are rejected,
// never clamped.
const (
	MinLevel = 1
	MaxLevel = 20
)

var (
	// ErrEmptySessionID indicates a missing session reference.
	ErrEmptySessionID = errors.New("session id is required")
	// ErrEmptyUserID indicates a missing user reference.
	ErrEmptyUserID = errors.New("user id is required")
	// ErrEmptyCharacterName indicates a missing character name.
	ErrEmptyCharacterName = errors.New("character name is required")
	// ErrInvalidLevel indicates a character level outside the accepted range.
	ErrInvalidLevel = fmt.Errorf("character level must be between %d and %d", MinLevel, MaxLevel)
)

// Participant represents one user's attendance record within a session.
type Participant struct {
	SessionID     string
	UserID        string
	CharacterName string
	Level         int
	// AccruedSeconds is the participant's settled play time in this session.
	AccruedSeconds float64
	// AccruingSince is non-nil while the participant is actively accumulating
	// time, which requires the owning session to be Running.
	AccruingSince *time.Time
	Flags         Flags
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// JoinInput describes the character attributes entered when joining a session.
type JoinInput struct {
	SessionID     string
	UserID        string
	CharacterName string
	Level         int
	Flags         Flags
}

// NormalizeJoinInput trims and validates join attributes.
func NormalizeJoinInput(input JoinInput) (JoinInput, error) {
	input.SessionID = strings.TrimSpace(input.SessionID)
	if input.SessionID == "" {
		return JoinInput{}, ErrEmptySessionID
	}
	input.UserID = strings.TrimSpace(input.UserID)
	if input.UserID == "" {
		return JoinInput{}, ErrEmptyUserID
	}
	input.CharacterName = strings.TrimSpace(input.CharacterName)
	if input.CharacterName == "" {
		return JoinInput{}, ErrEmptyCharacterName
	}
	if input.Level < MinLevel || input.Level > MaxLevel {
		return JoinInput{}, ErrInvalidLevel
	}
	return input, nil
}

// NewParticipant creates a fresh attendance record from normalized input.
func NewParticipant(input JoinInput, now func() time.Time) (Participant, error) {
	if now == nil {
		now = time.Now
	}
	normalized, err := NormalizeJoinInput(input)
	if err != nil {
		return Participant{}, err
	}
	createdAt := now().UTC()
	return Participant{
		SessionID:     normalized.SessionID,
		UserID:        normalized.UserID,
		CharacterName: normalized.CharacterName,
		Level:         normalized.Level,
		Flags:         normalized.Flags.Clone(),
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}, nil
}

// ApplyJoin replaces the character attributes of an existing record.
// Settled time is always preserved; editing a character never resets it.
func (p *Participant) ApplyJoin(input JoinInput, now time.Time) error {
	normalized, err := NormalizeJoinInput(input)
	if err != nil {
		return err
	}
	p.CharacterName = normalized.CharacterName
	p.Level = normalized.Level
	p.Flags = normalized.Flags.Clone()
	p.UpdatedAt = now.UTC()
	return nil
}

// Settle folds the time since the accrual checkpoint into the settled total
// and advances the checkpoint to now. Negative deltas from clock skew or
// stale checkpoints settle as zero.
func (p *Participant) Settle(now time.Time) {
	if p.AccruingSince == nil {
		return
	}
	now = now.UTC()
	if delta := now.Sub(*p.AccruingSince).Seconds(); delta > 0 {
		p.AccruedSeconds += delta
	}
	checkpoint := now
	p.AccruingSince = &checkpoint
	p.UpdatedAt = now
}

// Arm starts the participant's accrual checkpoint at now.
func (p *Participant) Arm(now time.Time) {
	now = now.UTC()
	checkpoint := now
	p.AccruingSince = &checkpoint
	p.UpdatedAt = now
}

// Disarm clears the participant's accrual checkpoint without settling.
func (p *Participant) Disarm(now time.Time) {
	p.AccruingSince = nil
	p.UpdatedAt = now.UTC()
}

// Leave settles the participant's accrual up to now and stops their clock.
// The session may keep running for everyone else.
func (p *Participant) Leave(now time.Time) {
	p.Settle(now)
	p.Disarm(now)
}

// Rejoin re-arms the participant when the owning session is running.
// It reports whether accrual actually restarted; when the session clock is
// stopped the participant is merely marked present.
func (p *Participant) Rejoin(sessionStatus Status, now time.Time) bool {
	if sessionStatus == StatusRunning {
		p.Arm(now)
		return true
	}
	p.Disarm(now)
	return false
}
