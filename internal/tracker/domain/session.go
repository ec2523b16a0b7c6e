package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/rollcall/internal/id"
)

// Status describes the lifecycle state of a tracked session.
type Status int

const (
	// StatusUnspecified represents an invalid session status value.
	StatusUnspecified Status = iota
	// StatusStopped indicates the session clock is not running and no paused
	// segment is pending. Newly posted trackers start here.
	StatusStopped
	// StatusRunning indicates the session clock is running.
	StatusRunning
	// StatusPaused indicates the session clock is suspended between segments.
	StatusPaused
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	default:
		return "unspecified"
	}
}

var (
	// ErrEmptyChannelID indicates a missing channel reference.
	ErrEmptyChannelID = errors.New("channel id is required")
)

// Session represents one posted role-play tracker.
type Session struct {
	ID        string
	ChannelID string
	Status    Status
	// RunStartedAt is non-nil exactly while Status is StatusRunning.
	RunStartedAt *time.Time
	// AccumulatedRunSeconds is the total time spent Running across all past
	// segments, excluding the in-progress segment.
	AccumulatedRunSeconds float64
	CreatedAt             time.Time
	UpdatedAt             time.Time
	EndedAt               *time.Time // nil until the session is first ended
}

// CreateSessionInput describes the metadata needed to post a tracker.
type CreateSessionInput struct {
	ChannelID string
}

// CreateSession creates a new session with a generated ID and timestamps.
// The session is created Stopped with no accumulated time.
func CreateSession(input CreateSessionInput, now func() time.Time, idGenerator func() (string, error)) (Session, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	normalized, err := NormalizeCreateSessionInput(input)
	if err != nil {
		return Session{}, err
	}

	sessionID, err := idGenerator()
	if err != nil {
		return Session{}, fmt.Errorf("generate session id: %w", err)
	}

	createdAt := now().UTC()
	return Session{
		ID:        sessionID,
		ChannelID: normalized.ChannelID,
		Status:    StatusStopped,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}

// NormalizeCreateSessionInput trims and validates session input metadata.
func NormalizeCreateSessionInput(input CreateSessionInput) (CreateSessionInput, error) {
	input.ChannelID = strings.TrimSpace(input.ChannelID)
	if input.ChannelID == "" {
		return CreateSessionInput{}, ErrEmptyChannelID
	}
	return input, nil
}

// ElapsedSeconds returns the session's total running time as of now,
// including the in-progress segment when the session is Running.
func (s *Session) ElapsedSeconds(now time.Time) float64 {
	total := s.AccumulatedRunSeconds
	if s.Status == StatusRunning && s.RunStartedAt != nil {
		if live := now.UTC().Sub(*s.RunStartedAt).Seconds(); live > 0 {
			total += live
		}
	}
	return total
}

// TransitionResult reports the outcome of a session lifecycle transition.
type TransitionResult int

const (
	// TransitionApplied indicates the transition changed session state.
	TransitionApplied TransitionResult = iota
	// TransitionAlreadyRunning indicates Start was called on a running session.
	TransitionAlreadyRunning
	// TransitionNotRunning indicates Pause was called while the clock was stopped.
	TransitionNotRunning
)

// StartSession moves a session into Running and arms the entire roster.
//
// Start doubles as Resume: the accumulated total is untouched because Pause
// already folded the previous segment. Arming covers participants who left
// during an earlier segment; leaving is per-segment and must be re-asserted
// after every resume. Starting a closed tracker reopens it.
func StartSession(s *Session, roster []Participant, now time.Time) TransitionResult {
	if s.Status == StatusRunning {
		return TransitionAlreadyRunning
	}
	now = now.UTC()
	started := now
	s.Status = StatusRunning
	s.RunStartedAt = &started
	s.EndedAt = nil
	s.UpdatedAt = now
	for i := range roster {
		roster[i].Arm(now)
	}
	return TransitionApplied
}

// PauseSession settles accrual, folds the in-progress segment into the
// accumulated total, and suspends the clock. Every participant is disarmed;
// Resume re-arms the roster as a whole.
func PauseSession(s *Session, roster []Participant, now time.Time) TransitionResult {
	if s.Status != StatusRunning || s.RunStartedAt == nil {
		return TransitionNotRunning
	}
	now = now.UTC()
	SettleSession(s, roster, now)
	if segment := now.Sub(*s.RunStartedAt).Seconds(); segment > 0 {
		s.AccumulatedRunSeconds += segment
	}
	s.RunStartedAt = nil
	s.Status = StatusPaused
	s.UpdatedAt = now
	for i := range roster {
		roster[i].Disarm(now)
	}
	return TransitionApplied
}

// EndSession finalizes a session from any state.
//
// A running session is settled and its segment folded first. Ending an
// already stopped session only refreshes bookkeeping; reward computation from
// the settled totals is the caller's next step and is safe to repeat.
func EndSession(s *Session, roster []Participant, now time.Time) {
	now = now.UTC()
	if s.Status == StatusRunning && s.RunStartedAt != nil {
		SettleSession(s, roster, now)
		if segment := now.Sub(*s.RunStartedAt).Seconds(); segment > 0 {
			s.AccumulatedRunSeconds += segment
		}
	}
	s.RunStartedAt = nil
	s.Status = StatusStopped
	for i := range roster {
		roster[i].Disarm(now)
	}
	if s.EndedAt == nil {
		ended := now
		s.EndedAt = &ended
	}
	s.UpdatedAt = now
}

// SettleSession advances accrual for every armed participant of a running
// session. This is the only place elapsed time is derived from timestamps;
// calling it twice with the same clock reading adds zero on the second call.
func SettleSession(s *Session, roster []Participant, now time.Time) {
	if s.Status != StatusRunning {
		return
	}
	now = now.UTC()
	for i := range roster {
		roster[i].Settle(now)
	}
	s.UpdatedAt = now
}
