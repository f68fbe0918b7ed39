package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/LingJien0709/shiny-carnival/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite is a single-writer engine; keep one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// UpsertUser inserts a user or, when the display name exists, updates the
// chat handle and (if provided) the chat id. Savings are never touched here.
func (r *SQLiteRepo) UpsertUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	if u == nil {
		return nil, errors.New("nil user")
	}
	created := u.CreatedAt.UTC().Unix()
	if created <= 0 {
		created = time.Now().UTC().Unix()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, chat_handle, chat_id, total_saved, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(display_name) DO UPDATE SET
			chat_handle = excluded.chat_handle,
			chat_id     = COALESCE(excluded.chat_id, users.chat_id)`,
		u.ID, u.DisplayName, u.ChatHandle, toNullInt64(u.ChatID), created,
	)
	if err != nil {
		return nil, err
	}
	return r.GetUserByName(ctx, u.DisplayName)
}

const userColumns = `id, display_name, chat_handle, chat_id, total_saved, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var (
		u         domain.User
		chatID    sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.DisplayName, &u.ChatHandle, &chatID, &u.TotalSaved, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	u.ChatID = fromNullInt64(chatID)
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

// GetUserByName returns the user with the given display name.
func (r *SQLiteRepo) GetUserByName(ctx context.Context, displayName string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE display_name = ?`, displayName)
	return scanUser(row)
}

// GetUserByChatID returns the user linked to the given messaging chat id.
func (r *SQLiteRepo) GetUserByChatID(ctx context.Context, chatID int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE chat_id = ?`, chatID)
	return scanUser(row)
}

// ListLeaderboard returns users ordered by cumulative savings, highest first.
func (r *SQLiteRepo) ListLeaderboard(ctx context.Context, limit int) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY total_saved DESC, display_name ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

const sessionColumns = `id, user_id, date, start_at, last_repark_at, repark_count,
	active, reminder_at, reminder_sent_at, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*domain.ParkingSession, error) {
	var (
		s                  domain.ParkingSession
		startAt, reparkAt  int64
		activeInt          int
		reminderNS, sentNS sql.NullInt64
		createdAt, updated int64
	)
	if err := row.Scan(
		&s.ID, &s.UserID, &s.Date, &startAt, &reparkAt, &s.ReparkCount,
		&activeInt, &reminderNS, &sentNS, &createdAt, &updated,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	s.StartAt = time.Unix(startAt, 0).UTC()
	s.LastReparkAt = time.Unix(reparkAt, 0).UTC()
	s.Active = activeInt != 0
	s.ReminderAt = fromNullTime(reminderNS)
	s.ReminderSentAt = fromNullTime(sentNS)
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	s.UpdatedAt = time.Unix(updated, 0).UTC()
	return &s, nil
}

// FindActiveSession returns the active session for (user, date), or ErrNotFound.
func (r *SQLiteRepo) FindActiveSession(ctx context.Context, userID, date string) (*domain.ParkingSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = ? AND date = ? AND active = 1`,
		userID, date)
	return scanSession(row)
}

// CreateSession inserts a new session row.
func (r *SQLiteRepo) CreateSession(ctx context.Context, s *domain.ParkingSession) error {
	if s == nil {
		return errors.New("nil session")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, user_id, date, start_at, last_repark_at, repark_count,
			active, reminder_at, reminder_sent_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Date,
		s.StartAt.UTC().Unix(), s.LastReparkAt.UTC().Unix(), s.ReparkCount,
		boolToInt(s.Active), toNullTime(s.ReminderAt), toNullTime(s.ReminderSentAt),
		s.CreatedAt.UTC().Unix(), s.UpdatedAt.UTC().Unix(),
	)
	return err
}

// RecordRepark updates the session and increments the user's savings in one
// transaction. The session update is conditional on the last-repark timestamp
// the caller observed; a concurrent repark makes it fail with ErrConflict and
// nothing is committed.
func (r *SQLiteRepo) RecordRepark(ctx context.Context, rep Repark) (*domain.ParkingSession, *domain.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET last_repark_at   = ?,
		    repark_count     = repark_count + 1,
		    reminder_at      = ?,
		    reminder_sent_at = NULL,
		    updated_at       = ?
		WHERE id = ? AND active = 1 AND last_repark_at = ?`,
		rep.Now.UTC().Unix(), toNullTime(rep.ReminderAt), rep.Now.UTC().Unix(),
		rep.SessionID, rep.ObservedAt.UTC().Unix(),
	)
	if err != nil {
		return nil, nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, nil, err
	}
	if n == 0 {
		return nil, nil, domain.ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET total_saved = total_saved + ? WHERE id = ?`,
		rep.Savings, rep.UserID,
	); err != nil {
		return nil, nil, err
	}

	session, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, rep.SessionID))
	if err != nil {
		return nil, nil, err
	}
	user, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, rep.UserID))
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// FindDueReminders returns today's active sessions whose reminder time has
// arrived and has not been sent yet, joined with their owners.
func (r *SQLiteRepo) FindDueReminders(ctx context.Context, date string, now time.Time) ([]domain.DueReminder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.user_id, s.date, s.start_at, s.last_repark_at, s.repark_count,
		       s.active, s.reminder_at, s.reminder_sent_at, s.created_at, s.updated_at,
		       u.id, u.display_name, u.chat_handle, u.chat_id, u.total_saved, u.created_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.active = 1
		  AND s.date = ?
		  AND s.reminder_at IS NOT NULL
		  AND s.reminder_at <= ?
		  AND s.reminder_sent_at IS NULL
		ORDER BY s.reminder_at ASC`,
		date, now.UTC().Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.DueReminder
	for rows.Next() {
		var (
			s                  domain.ParkingSession
			startAt, reparkAt  int64
			activeInt          int
			reminderNS, sentNS sql.NullInt64
			sCreated, sUpdated int64
			u                  domain.User
			chatID             sql.NullInt64
			uCreated           int64
		)
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.Date, &startAt, &reparkAt, &s.ReparkCount,
			&activeInt, &reminderNS, &sentNS, &sCreated, &sUpdated,
			&u.ID, &u.DisplayName, &u.ChatHandle, &chatID, &u.TotalSaved, &uCreated,
		); err != nil {
			return nil, err
		}
		s.StartAt = time.Unix(startAt, 0).UTC()
		s.LastReparkAt = time.Unix(reparkAt, 0).UTC()
		s.Active = activeInt != 0
		s.ReminderAt = fromNullTime(reminderNS)
		s.ReminderSentAt = fromNullTime(sentNS)
		s.CreatedAt = time.Unix(sCreated, 0).UTC()
		s.UpdatedAt = time.Unix(sUpdated, 0).UTC()
		u.ChatID = fromNullInt64(chatID)
		u.CreatedAt = time.Unix(uCreated, 0).UTC()
		res = append(res, domain.DueReminder{Session: s, User: u})
	}
	return res, rows.Err()
}

// MarkReminderSent stamps reminder_sent_at, guarded so it happens at most
// once per scheduled reminder; a repark clearing the field re-arms the gate.
func (r *SQLiteRepo) MarkReminderSent(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET reminder_sent_at = ?, updated_at = ?
		WHERE id = ? AND active = 1 AND reminder_sent_at IS NULL`,
		at.UTC().Unix(), at.UTC().Unix(), sessionID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeactivateStale flips sessions dormant once their civil day rolled over or
// their grace deadline lapsed.
func (r *SQLiteRepo) DeactivateStale(ctx context.Context, today string, now time.Time) (int64, error) {
	cutoff := now.Add(-domain.GraceWindow)
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET active = 0, updated_at = ?
		WHERE active = 1 AND (date < ? OR last_repark_at <= ?)`,
		now.UTC().Unix(), today, cutoff.UTC().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeInactiveBefore deletes dormant sessions not touched since cutoff.
func (r *SQLiteRepo) PurgeInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE active = 0 AND updated_at < ?`,
		cutoff.UTC().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
