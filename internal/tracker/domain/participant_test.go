package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizeJoinInputValidation(t *testing.T) {
	valid := JoinInput{
		SessionID:     "sess123",
		UserID:        "user-a",
		CharacterName: "Vex",
		Level:         10,
	}

	tests := []struct {
		name   string
		mutate func(*JoinInput)
		err    error
	}{
		{
			name:   "valid",
			mutate: func(*JoinInput) {},
		},
		{
			name:   "empty session id",
			mutate: func(in *JoinInput) { in.SessionID = "  " },
			err:    ErrEmptySessionID,
		},
		{
			name:   "empty user id",
			mutate: func(in *JoinInput) { in.UserID = "" },
			err:    ErrEmptyUserID,
		},
		{
			name:   "empty character name",
			mutate: func(in *JoinInput) { in.CharacterName = "   " },
			err:    ErrEmptyCharacterName,
		},
		{
			name:   "level zero",
			mutate: func(in *JoinInput) { in.Level = 0 },
			err:    ErrInvalidLevel,
		},
		{
			name:   "level above cap",
			mutate: func(in *JoinInput) { in.Level = 21 },
			err:    ErrInvalidLevel,
		},
		{
			name:   "level at lower bound",
			mutate: func(in *JoinInput) { in.Level = 1 },
		},
		{
			name:   "level at upper bound",
			mutate: func(in *JoinInput) { in.Level = 20 },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := valid
			tc.mutate(&input)
			_, err := NormalizeJoinInput(input)
			if !errors.Is(err, tc.err) {
				t.Fatalf("err = %v, want %v", err, tc.err)
			}
		})
	}
}

func TestNewParticipantTrimsAttributes(t *testing.T) {
	fixedTime := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	participant, err := NewParticipant(JoinInput{
		SessionID:     " sess123 ",
		UserID:        " user-a ",
		CharacterName: "  Vex  ",
		Level:         3,
		Flags:         Flags{FlagCapped: true},
	}, func() time.Time { return fixedTime })
	if err != nil {
		t.Fatalf("new participant: %v", err)
	}

	if participant.CharacterName != "Vex" {
		t.Fatalf("character = %q, want trimmed", participant.CharacterName)
	}
	if participant.SessionID != "sess123" || participant.UserID != "user-a" {
		t.Fatalf("ids not trimmed: %q/%q", participant.SessionID, participant.UserID)
	}
	if !participant.Flags.Has(FlagCapped) {
		t.Fatal("expected capped flag preserved")
	}
	if participant.AccruedSeconds != 0 {
		t.Fatalf("accrued = %v, want 0 for fresh join", participant.AccruedSeconds)
	}
	if participant.AccruingSince != nil {
		t.Fatal("fresh participant must not be armed; the service arms on running sessions")
	}
}

func TestApplyJoinPreservesAccruedSeconds(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	participant := Participant{
		SessionID:      "sess123",
		UserID:         "user-a",
		CharacterName:  "Vex",
		Level:          3,
		AccruedSeconds: 1234.5,
	}

	err := participant.ApplyJoin(JoinInput{
		SessionID:     "sess123",
		UserID:        "user-a",
		CharacterName: "Vax",
		Level:         4,
		Flags:         Flags{FlagXPMultiplier: true},
	}, now)
	if err != nil {
		t.Fatalf("apply join: %v", err)
	}

	if participant.CharacterName != "Vax" || participant.Level != 4 {
		t.Fatalf("attributes not replaced: %q level %d", participant.CharacterName, participant.Level)
	}
	if participant.AccruedSeconds != 1234.5 {
		t.Fatalf("accrued = %v, want 1234.5 preserved across edit", participant.AccruedSeconds)
	}
	if !participant.Flags.Has(FlagXPMultiplier) {
		t.Fatal("expected replaced flags")
	}
}

func TestApplyJoinRejectsInvalidEdit(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	participant := Participant{
		SessionID:     "sess123",
		UserID:        "user-a",
		CharacterName: "Vex",
		Level:         3,
	}

	err := participant.ApplyJoin(JoinInput{
		SessionID:     "sess123",
		UserID:        "user-a",
		CharacterName: "Vex",
		Level:         0,
	}, now)
	if !errors.Is(err, ErrInvalidLevel) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidLevel)
	}
	if participant.Level != 3 {
		t.Fatalf("level mutated to %d by rejected edit", participant.Level)
	}
}

func TestSettleGuardsAgainstClockSkew(t *testing.T) {
	checkpoint := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	participant := Participant{AccruingSince: &checkpoint, AccruedSeconds: 50}

	// A now earlier than the checkpoint settles zero, never negative.
	participant.Settle(checkpoint.Add(-30 * time.Second))
	if participant.AccruedSeconds != 50 {
		t.Fatalf("accrued = %v, want 50 under clock skew", participant.AccruedSeconds)
	}
}

func TestLeaveSettlesThenDisarms(t *testing.T) {
	checkpoint := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	participant := Participant{AccruingSince: &checkpoint}

	participant.Leave(checkpoint.Add(90 * time.Second))

	if participant.AccruedSeconds != 90 {
		t.Fatalf("accrued = %v, want 90", participant.AccruedSeconds)
	}
	if participant.AccruingSince != nil {
		t.Fatal("expected disarmed after leave")
	}
}

func TestRejoinArmsOnlyWhileRunning(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	participant := Participant{}
	if armed := participant.Rejoin(StatusRunning, now); !armed {
		t.Fatal("expected rejoin to arm while running")
	}
	if participant.AccruingSince == nil || !participant.AccruingSince.Equal(now) {
		t.Fatalf("accruing since = %v, want %v", participant.AccruingSince, now)
	}

	participant = Participant{}
	if armed := participant.Rejoin(StatusPaused, now); armed {
		t.Fatal("expected rejoin on a paused session to stay disarmed")
	}
	if participant.AccruingSince != nil {
		t.Fatal("expected nil checkpoint while paused")
	}
}
