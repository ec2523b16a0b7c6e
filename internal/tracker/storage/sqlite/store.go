// Package sqlite provides the SQLite-backed tracker store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/rollcall/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/rollcall/internal/tracker/domain"
	"github.com/louisbranch/rollcall/internal/tracker/storage"
	"github.com/louisbranch/rollcall/internal/tracker/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides a SQLite-backed store implementing all tracker storage
// interfaces.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a tracker SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// toNullMillis maps optional domain times to sql.NullInt64 for nullable columns.
func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

// encodeFlags stores set flag names as a comma-joined sorted list.
func encodeFlags(flags domain.Flags) string {
	return strings.Join(flags.Names(), ",")
}

func decodeFlags(encoded string) domain.Flags {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil
	}
	flags := make(domain.Flags)
	for _, name := range strings.Split(encoded, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			flags[name] = true
		}
	}
	if len(flags) == 0 {
		return nil
	}
	return flags
}

// CreateSession inserts a new session record.
func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("session id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO sessions (id, channel_id, status, run_started_at, accumulated_run_seconds, created_at, updated_at, ended_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.ChannelID,
		int(session.Status),
		toNullMillis(session.RunStartedAt),
		session.AccumulatedRunSeconds,
		toMillis(session.CreatedAt),
		toMillis(session.UpdatedAt),
		toNullMillis(session.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession loads one session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Session{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, channel_id, status, run_started_at, accumulated_run_seconds, created_at, updated_at, ended_at
FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, storage.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("query session: %w", err)
	}
	return session, nil
}

// ListOpenSessions returns every session that has not been ended.
func (s *Store) ListOpenSessions(ctx context.Context) ([]domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, channel_id, status, run_started_at, accumulated_run_seconds, created_at, updated_at, ended_at
FROM sessions WHERE ended_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query open sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		session      domain.Session
		status       int
		runStartedAt sql.NullInt64
		createdAt    int64
		updatedAt    int64
		endedAt      sql.NullInt64
	)
	if err := row.Scan(
		&session.ID,
		&session.ChannelID,
		&status,
		&runStartedAt,
		&session.AccumulatedRunSeconds,
		&createdAt,
		&updatedAt,
		&endedAt,
	); err != nil {
		return domain.Session{}, err
	}
	session.Status = domain.Status(status)
	session.RunStartedAt = fromNullMillis(runStartedAt)
	session.CreatedAt = fromMillis(createdAt)
	session.UpdatedAt = fromMillis(updatedAt)
	session.EndedAt = fromNullMillis(endedAt)
	return session, nil
}

// ApplySessionUpdate persists a session and its roster in one transaction.
func (s *Store) ApplySessionUpdate(ctx context.Context, session domain.Session, roster []domain.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("session id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session update: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
UPDATE sessions
SET status = ?, run_started_at = ?, accumulated_run_seconds = ?, updated_at = ?, ended_at = ?
WHERE id = ?`,
		int(session.Status),
		toNullMillis(session.RunStartedAt),
		session.AccumulatedRunSeconds,
		toMillis(session.UpdatedAt),
		toNullMillis(session.EndedAt),
		session.ID,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("session update rows: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return storage.ErrNotFound
	}

	for _, participant := range roster {
		if err := upsertParticipant(ctx, tx, participant); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert participant %s: %w", participant.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session update: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertParticipant(ctx context.Context, db execer, participant domain.Participant) error {
	if strings.TrimSpace(participant.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(participant.UserID) == "" {
		return fmt.Errorf("user id is required")
	}

	_, err := db.ExecContext(ctx, `
INSERT INTO participants (session_id, user_id, character_name, level, accrued_seconds, accruing_since, flags, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (session_id, user_id) DO UPDATE SET
    character_name = excluded.character_name,
    level = excluded.level,
    accrued_seconds = excluded.accrued_seconds,
    accruing_since = excluded.accruing_since,
    flags = excluded.flags,
    updated_at = excluded.updated_at`,
		participant.SessionID,
		participant.UserID,
		participant.CharacterName,
		participant.Level,
		participant.AccruedSeconds,
		toNullMillis(participant.AccruingSince),
		encodeFlags(participant.Flags),
		toMillis(participant.CreatedAt),
		toMillis(participant.UpdatedAt),
	)
	return err
}

// PutParticipant upserts one attendance record.
func (s *Store) PutParticipant(ctx context.Context, participant domain.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := upsertParticipant(ctx, s.sqlDB, participant); err != nil {
		return fmt.Errorf("upsert participant: %w", err)
	}
	return nil
}

// GetParticipant loads one attendance record.
func (s *Store) GetParticipant(ctx context.Context, sessionID, userID string) (domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Participant{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Participant{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT session_id, user_id, character_name, level, accrued_seconds, accruing_since, flags, created_at, updated_at
FROM participants WHERE session_id = ? AND user_id = ?`, sessionID, userID)
	participant, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Participant{}, storage.ErrNotFound
		}
		return domain.Participant{}, fmt.Errorf("query participant: %w", err)
	}
	return participant, nil
}

// ListRoster returns all attendance records of a session ordered by join time.
func (s *Store) ListRoster(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT session_id, user_id, character_name, level, accrued_seconds, accruing_since, flags, created_at, updated_at
FROM participants WHERE session_id = ? ORDER BY created_at, user_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var roster []domain.Participant
	for rows.Next() {
		participant, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		roster = append(roster, participant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster: %w", err)
	}
	return roster, nil
}

func scanParticipant(row rowScanner) (domain.Participant, error) {
	var (
		participant   domain.Participant
		accruingSince sql.NullInt64
		flags         string
		createdAt     int64
		updatedAt     int64
	)
	if err := row.Scan(
		&participant.SessionID,
		&participant.UserID,
		&participant.CharacterName,
		&participant.Level,
		&participant.AccruedSeconds,
		&accruingSince,
		&flags,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Participant{}, err
	}
	participant.AccruingSince = fromNullMillis(accruingSince)
	participant.Flags = decodeFlags(flags)
	participant.CreatedAt = fromMillis(createdAt)
	participant.UpdatedAt = fromMillis(updatedAt)
	return participant, nil
}

// GetLedger loads one user's key ledger.
func (s *Store) GetLedger(ctx context.Context, userID string) (domain.KeyLedger, error) {
	if err := ctx.Err(); err != nil {
		return domain.KeyLedger{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.KeyLedger{}, fmt.Errorf("storage is not configured")
	}

	var (
		ledger    domain.KeyLedger
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT user_id, current_balance, lifetime_total, updated_at
FROM key_ledgers WHERE user_id = ?`, userID).Scan(
		&ledger.UserID,
		&ledger.CurrentBalance,
		&ledger.LifetimeTotal,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.KeyLedger{}, storage.ErrNotFound
		}
		return domain.KeyLedger{}, fmt.Errorf("query key ledger: %w", err)
	}
	ledger.UpdatedAt = fromMillis(updatedAt)
	return ledger, nil
}

// CreditKeys adds keys to a user's balance and lifetime total, creating the
// ledger on first credit.
func (s *Store) CreditKeys(ctx context.Context, userID string, amount int) (domain.KeyLedger, error) {
	if err := ctx.Err(); err != nil {
		return domain.KeyLedger{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.KeyLedger{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.KeyLedger{}, fmt.Errorf("user id is required")
	}
	if amount <= 0 {
		return domain.KeyLedger{}, domain.ErrInvalidKeyAmount
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO key_ledgers (user_id, current_balance, lifetime_total, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
    current_balance = current_balance + excluded.current_balance,
    lifetime_total = lifetime_total + excluded.lifetime_total,
    updated_at = excluded.updated_at`,
		userID,
		amount,
		amount,
		toMillis(time.Now()),
	)
	if err != nil {
		return domain.KeyLedger{}, fmt.Errorf("credit keys: %w", err)
	}
	return s.GetLedger(ctx, userID)
}

// DebitKeys subtracts keys from a user's balance, clamping at zero. The
// lifetime total is untouched.
func (s *Store) DebitKeys(ctx context.Context, userID string, amount int) (domain.KeyLedger, error) {
	if err := ctx.Err(); err != nil {
		return domain.KeyLedger{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.KeyLedger{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.KeyLedger{}, fmt.Errorf("user id is required")
	}
	if amount <= 0 {
		return domain.KeyLedger{}, domain.ErrInvalidKeyAmount
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE key_ledgers
SET current_balance = MAX(0, current_balance - ?), updated_at = ?
WHERE user_id = ?`,
		amount,
		toMillis(time.Now()),
		userID,
	)
	if err != nil {
		return domain.KeyLedger{}, fmt.Errorf("debit keys: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.KeyLedger{}, fmt.Errorf("debit rows: %w", err)
	}
	if affected == 0 {
		return domain.KeyLedger{}, storage.ErrNotFound
	}
	return s.GetLedger(ctx, userID)
}
