// Package service exposes the tracker operations called by the bot layer.
//
// Every operation takes the session identifier and, where relevant, the
// acting user and runs under that session's lock. Illegal transitions are
// reported as informational ack fields, not errors; the caller decides how
// to surface them.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/rollcall/internal/id"
	"github.com/louisbranch/rollcall/internal/tracker/domain"
	"github.com/louisbranch/rollcall/internal/tracker/storage"
)

// ErrNotJoined indicates a participant-level action on a user without an
// attendance record in the session.
var ErrNotJoined = errors.New("participant has not joined this session")

// Stores groups all tracker storage interfaces.
type Stores struct {
	Session     storage.SessionStore
	Participant storage.ParticipantStore
	Ledger      storage.LedgerStore
}

// Service implements the tracker operation surface.
type Service struct {
	stores      Stores
	rewards     domain.RewardConfig
	clock       func() time.Time
	idGenerator func() (string, error)
	locks       *sessionLocks
	tracer      trace.Tracer
}

// New creates a Service with default dependencies. A zero RewardConfig
// selects the default reward tables.
func New(stores Stores, rewards domain.RewardConfig) *Service {
	if rewards.CurrencyPerLevelHour == 0 && len(rewards.XPBrackets) == 0 {
		rewards = domain.DefaultRewardConfig()
	}
	return &Service{
		stores:      stores,
		rewards:     rewards,
		clock:       time.Now,
		idGenerator: id.NewID,
		locks:       newSessionLocks(),
		tracer:      otel.Tracer("rollcall/tracker"),
	}
}

func (s *Service) checkStores() error {
	if s.stores.Session == nil {
		return fmt.Errorf("session store is not configured")
	}
	if s.stores.Participant == nil {
		return fmt.Errorf("participant store is not configured")
	}
	if s.stores.Ledger == nil {
		return fmt.Errorf("ledger store is not configured")
	}
	return nil
}

// CreateSession posts a new tracker for a channel. The session starts
// Stopped with an empty roster.
func (s *Service) CreateSession(ctx context.Context, channelID string) (domain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "tracker.create_session")
	defer span.End()

	if err := s.checkStores(); err != nil {
		return domain.Session{}, err
	}
	session, err := domain.CreateSession(domain.CreateSessionInput{ChannelID: channelID}, s.clock, s.idGenerator)
	if err != nil {
		return domain.Session{}, err
	}
	if err := s.stores.Session.CreateSession(ctx, session); err != nil {
		return domain.Session{}, fmt.Errorf("persist session: %w", err)
	}
	span.SetAttributes(attribute.String("session.id", session.ID))
	return session, nil
}

// JoinAck reports the result of a join or a character edit.
type JoinAck struct {
	Participant domain.Participant
	// Armed reports whether the participant's clock started immediately
	// because the session was live.
	Armed bool
	// Edited reports whether an existing record was updated rather than a
	// new one created.
	Edited bool
}

// Join upserts a user's character attributes for a session. Rejoining with
// edited attributes preserves settled time; joining a running session starts
// the participant's clock right away.
func (s *Service) Join(ctx context.Context, input domain.JoinInput) (JoinAck, error) {
	ctx, span := s.tracer.Start(ctx, "tracker.join")
	defer span.End()

	if err := s.checkStores(); err != nil {
		return JoinAck{}, err
	}
	normalized, err := domain.NormalizeJoinInput(input)
	if err != nil {
		return JoinAck{}, err
	}
	span.SetAttributes(
		attribute.String("session.id", normalized.SessionID),
		attribute.String("user.id", normalized.UserID),
	)

	unlock := s.locks.lock(normalized.SessionID)
	defer unlock()

	session, err := s.stores.Session.GetSession(ctx, normalized.SessionID)
	if err != nil {
		return JoinAck{}, s.wrapStoreErr("load session", err)
	}

	now := s.clock().UTC()
	ack := JoinAck{}

	participant, err := s.stores.Participant.GetParticipant(ctx, normalized.SessionID, normalized.UserID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		participant, err = domain.NewParticipant(normalized, s.clock)
		if err != nil {
			return JoinAck{}, err
		}
	case err != nil:
		return JoinAck{}, s.wrapStoreErr("load participant", err)
	default:
		if err := participant.ApplyJoin(normalized, now); err != nil {
			return JoinAck{}, err
		}
		ack.Edited = true
	}

	if session.Status == domain.StatusRunning {
		// Settle before re-arming so an edit mid-segment loses nothing.
		participant.Settle(now)
		participant.Arm(now)
		ack.Armed = true
	}

	if err := s.stores.Participant.PutParticipant(ctx, participant); err != nil {
		return JoinAck{}, s.wrapStoreErr("persist participant", err)
	}
	ack.Participant = participant
	return ack, nil
}

// LeaveAck reports the participant's settled record after leaving.
type LeaveAck struct {
	Participant domain.Participant
}

// Leave settles one participant's accrual and stops their clock while the
// session keeps running for everyone else. Leaving only covers the current
// segment: the next Start or Resume arms the whole roster again.
func (s *Service) Leave(ctx context.Context, sessionID, userID string) (LeaveAck, error) {
	ctx, span := s.tracer.Start(ctx, "tracker.leave")
	defer span.End()

	if err := s.checkStores(); err != nil {
		return LeaveAck{}, err
	}
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("user.id", userID),
	)

	unlock := s.locks.lock(sessionID)
	defer unlock()

	if _, err := s.stores.Session.GetSession(ctx, sessionID); err != nil {
		return LeaveAck{}, s.wrapStoreErr("load session", err)
	}
	participant, err := s.stores.Participant.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return LeaveAck{}, ErrNotJoined
		}
		return LeaveAck{}, s.wrapStoreErr("load participant", err)
	}

	participant.Leave(s.clock())
	if err := s.stores.Participant.PutParticipant(ctx, participant); err != nil {
		return LeaveAck{}, s.wrapStoreErr("persist participant", err)
	}
	return LeaveAck{Participant: participant}, nil
}

// RejoinAck reports whether rejoining restarted the participant's clock.
type RejoinAck struct {
	// Armed is false when the session clock is stopped; the participant is
	// then only marked present.
	Armed bool
}

// Rejoin re-arms a participant who previously left. When the session is not
// running the record stays disarmed until the next Start.
func (s *Service) Rejoin(ctx context.Context, sessionID, userID string) (RejoinAck, error) {
	ctx, span := s.tracer.Start(ctx, "tracker.rejoin")
	defer span.End()

	if err := s.checkStores(); err != nil {
		return RejoinAck{}, err
	}
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("user.id", userID),
	)

	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.stores.Session.GetSession(ctx, sessionID)
	if err != nil {
		return RejoinAck{}, s.wrapStoreErr("load session", err)
	}
	participant, err := s.stores.Participant.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return RejoinAck{}, ErrNotJoined
		}
		return RejoinAck{}, s.wrapStoreErr("load participant", err)
	}

	armed := participant.Rejoin(session.Status, s.clock())
	if err := s.stores.Participant.PutParticipant(ctx, participant); err != nil {
		return RejoinAck{}, s.wrapStoreErr("persist participant", err)
	}
	return RejoinAck{Armed: armed}, nil
}

// StartAck reports the result of starting or resuming a session.
type StartAck struct {
	// AlreadyRunning marks the informational no-op when the clock was
	// already live.
	AlreadyRunning bool
}

// Start moves a session into Running and arms the entire roster. Start
// doubles as Resume from Paused.
func (s *Service) Start(ctx context.Context, sessionID string) (StartAck, error) {
	ctx, span := s.tracer.Start(ctx, "tracker.start")
	defer span.End()

	if err := s.checkStores(); err != nil {
		return StartAck{}, err
	}
	span.SetAttributes(attribute.String("session.id", sessionID))

	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, roster, err := s.loadSessionUnit(ctx, sessionID)
	if err != nil {
		return StartAck{}, err
	}

	if result := domain.StartSession(&session, roster, s.clock()); result == domain.TransitionAlreadyRunning {
		return StartAck{AlreadyRunning: true}, nil
	}
	if err := s.stores.Session.ApplySessionUpdate(ctx, session, roster); err != nil {
		return StartAck{}, s.wrapStoreErr("persist start", err)
	}
	return StartAck{}, nil
}

// PauseAck reports the result of pausing a session.
type PauseAck struct {
	// NotRunning marks the informational no-op when the clock was stopped.
	NotRunning bool
}

// Pause settles accrual, folds the live segment, and suspends the clock.
func (s *Service) Pause(ctx context.Context, sessionID string) (PauseAck, error) {
	ctx, span := s.tracer.Start(ctx, "tracker.pause")
	defer span.End()

	if err := s.checkStores(); err != nil {
		return PauseAck{}, err
	}
	span.SetAttributes(attribute.String("session.id", sessionID))

	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, roster, err := s.loadSessionUnit(ctx, sessionID)
	if err != nil {
		return PauseAck{}, err
	}

	if result := domain.PauseSession(&session, roster, s.clock()); result == domain.TransitionNotRunning {
		return PauseAck{NotRunning: true}, nil
	}
	if err := s.stores.Session.ApplySessionUpdate(ctx, session, roster); err != nil {
		return PauseAck{}, s.wrapStoreErr("persist pause", err)
	}
	return PauseAck{}, nil
}

// End finalizes a session from any state and computes the reward report.
// Keys earned by capped participants are credited to their persistent
// ledgers as part of the operation. Ending an already stopped session
// recomputes rewards from the settled totals.
func (s *Service) End(ctx context.Context, sessionID string) (domain.RewardReport, error) {
	ctx, span := s.tracer.Start(ctx, "tracker.end")
	defer span.End()

	if err := s.checkStores(); err != nil {
		return domain.RewardReport{}, err
	}
	span.SetAttributes(attribute.String("session.id", sessionID))

	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, roster, err := s.loadSessionUnit(ctx, sessionID)
	if err != nil {
		return domain.RewardReport{}, err
	}

	alreadyClosed := session.EndedAt != nil
	domain.EndSession(&session, roster, s.clock())
	if err := s.stores.Session.ApplySessionUpdate(ctx, session, roster); err != nil {
		return domain.RewardReport{}, s.wrapStoreErr("persist end", err)
	}

	report := domain.RewardReport{
		SessionID:      session.ID,
		ChannelID:      session.ChannelID,
		ElapsedSeconds: session.AccumulatedRunSeconds,
	}
	for _, participant := range roster {
		reward := s.rewards.Compute(participant)
		report.Rewards = append(report.Rewards, reward)
		// Recomputing a closed session's report must not double-credit.
		if reward.Keys > 0 && !alreadyClosed {
			if _, err := s.stores.Ledger.CreditKeys(ctx, participant.UserID, reward.Keys); err != nil {
				return domain.RewardReport{}, s.wrapStoreErr("credit keys", err)
			}
		}
	}
	return report, nil
}

// Tick settles accrual for every running session. The app driver calls it on
// a fixed interval; user actions settle synchronously under the same lock,
// so a tick racing an action can only ever add a zero-length delta.
func (s *Service) Tick(ctx context.Context, now time.Time) error {
	ctx, span := s.tracer.Start(ctx, "tracker.tick")
	defer span.End()

	if err := s.checkStores(); err != nil {
		return err
	}

	sessions, err := s.stores.Session.ListOpenSessions(ctx)
	if err != nil {
		return s.wrapStoreErr("list open sessions", err)
	}

	var errs []error
	for _, candidate := range sessions {
		if candidate.Status != domain.StatusRunning {
			continue
		}
		if err := s.tickSession(ctx, candidate.ID, now); err != nil {
			errs = append(errs, fmt.Errorf("tick session %s: %w", candidate.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) tickSession(ctx context.Context, sessionID string, now time.Time) error {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	// Reload under the lock; a user action may have transitioned the
	// session between the sweep listing and this settle.
	session, roster, err := s.loadSessionUnit(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != domain.StatusRunning {
		return nil
	}
	domain.SettleSession(&session, roster, now)
	if err := s.stores.Session.ApplySessionUpdate(ctx, session, roster); err != nil {
		return s.wrapStoreErr("persist settle", err)
	}
	return nil
}

// Snapshot describes a session and its roster for display.
type Snapshot struct {
	SessionID      string
	ChannelID      string
	Status         domain.Status
	ElapsedSeconds float64
	Ended          bool
	Roster         []domain.Participant
}

// Snapshot settles a running session and returns its current state. The
// settle is persisted so displayed totals and stored totals never diverge.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "tracker.snapshot")
	defer span.End()

	if err := s.checkStores(); err != nil {
		return Snapshot{}, err
	}
	span.SetAttributes(attribute.String("session.id", sessionID))

	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, roster, err := s.loadSessionUnit(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	now := s.clock().UTC()
	if session.Status == domain.StatusRunning {
		domain.SettleSession(&session, roster, now)
		if err := s.stores.Session.ApplySessionUpdate(ctx, session, roster); err != nil {
			return Snapshot{}, s.wrapStoreErr("persist settle", err)
		}
	}

	return Snapshot{
		SessionID:      session.ID,
		ChannelID:      session.ChannelID,
		Status:         session.Status,
		ElapsedSeconds: session.ElapsedSeconds(now),
		Ended:          session.EndedAt != nil,
		Roster:         roster,
	}, nil
}

// ListOpenSessions returns every tracker that has not been ended, for
// re-attaching chat views after a restart.
func (s *Service) ListOpenSessions(ctx context.Context) ([]domain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "tracker.list_open_sessions")
	defer span.End()

	if err := s.checkStores(); err != nil {
		return nil, err
	}
	sessions, err := s.stores.Session.ListOpenSessions(ctx)
	if err != nil {
		return nil, s.wrapStoreErr("list open sessions", err)
	}
	return sessions, nil
}

// Keys returns a user's persistent key ledger. Users who have never been
// credited get a zero ledger.
func (s *Service) Keys(ctx context.Context, userID string) (domain.KeyLedger, error) {
	ctx, span := s.tracer.Start(ctx, "tracker.keys")
	defer span.End()

	if err := s.checkStores(); err != nil {
		return domain.KeyLedger{}, err
	}
	span.SetAttributes(attribute.String("user.id", userID))

	ledger, err := s.stores.Ledger.GetLedger(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.KeyLedger{UserID: userID}, nil
		}
		return domain.KeyLedger{}, s.wrapStoreErr("load key ledger", err)
	}
	return ledger, nil
}

// SpendKeys debits a user's ledger, clamping the balance at zero.
func (s *Service) SpendKeys(ctx context.Context, userID string, amount int) (domain.KeyLedger, error) {
	ctx, span := s.tracer.Start(ctx, "tracker.spend_keys")
	defer span.End()

	if err := s.checkStores(); err != nil {
		return domain.KeyLedger{}, err
	}
	span.SetAttributes(attribute.String("user.id", userID))

	ledger, err := s.stores.Ledger.DebitKeys(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, domain.ErrInvalidKeyAmount) {
			return domain.KeyLedger{}, err
		}
		return domain.KeyLedger{}, s.wrapStoreErr("debit key ledger", err)
	}
	return ledger, nil
}

// loadSessionUnit loads a session and its roster as one mutation unit.
// Callers must hold the session lock.
func (s *Service) loadSessionUnit(ctx context.Context, sessionID string) (domain.Session, []domain.Participant, error) {
	session, err := s.stores.Session.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, nil, s.wrapStoreErr("load session", err)
	}
	roster, err := s.stores.Participant.ListRoster(ctx, sessionID)
	if err != nil {
		return domain.Session{}, nil, s.wrapStoreErr("load roster", err)
	}
	return session, roster, nil
}

// wrapStoreErr passes sentinel errors through untouched and marks everything
// else as an unavailable-store failure. The core never retries; retry policy
// belongs to the caller.
func (s *Service) wrapStoreErr(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
}
