// Package storage persists AFK statuses with sqlx on PostgreSQL or SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/afkbot/afk/status"
)

// ErrNotFound is returned when no status record exists for a key.
var ErrNotFound = errors.New("storage: status not found")

// FirstKey sorts before every real key and starts keyset pagination.
var FirstKey = status.Key{ChatID: math.MinInt64, UserID: math.MinInt64}

const columns = `chat_id, user_id, username, display_name, away, reason, since_ms, last_seen_ms, last_announced_ms`

type row struct {
	ChatID          int64  `db:"chat_id"`
	UserID          int64  `db:"user_id"`
	Username        string `db:"username"`
	DisplayName     string `db:"display_name"`
	Away            bool   `db:"away"`
	Reason          string `db:"reason"`
	SinceMS         int64  `db:"since_ms"`
	LastSeenMS      int64  `db:"last_seen_ms"`
	LastAnnouncedMS int64  `db:"last_announced_ms"`
}

func (r row) status() status.Status {
	return status.Status{
		Key:             status.Key{ChatID: r.ChatID, UserID: r.UserID},
		Username:        r.Username,
		DisplayName:     r.DisplayName,
		Away:            r.Away,
		Reason:          r.Reason,
		Since:           fromMillis(r.SinceMS),
		LastSeen:        fromMillis(r.LastSeenMS),
		LastAnnouncedAt: fromMillis(r.LastAnnouncedMS),
	}
}

// toMillis maps the zero time to 0 so "unset" survives a round trip.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Store is the sqlx-backed status repository. It is safe for concurrent use.
type Store struct {
	db *sqlx.DB
}

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the status for key or ErrNotFound.
func (s *Store) Get(ctx context.Context, key status.Key) (status.Status, error) {
	var r row
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+columns+` FROM afk_status WHERE chat_id = ? AND user_id = ?`),
		key.ChatID, key.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return status.Status{}, ErrNotFound
	}
	if err != nil {
		return status.Status{}, fmt.Errorf("get status %s: %w", key, err)
	}
	return r.status(), nil
}

const setAwayQuery = `
INSERT INTO afk_status (chat_id, user_id, username, display_name, away, reason, since_ms, last_seen_ms, last_announced_ms)
VALUES (?, ?, ?, ?, TRUE, ?, ?, ?, 0)
ON CONFLICT (chat_id, user_id) DO UPDATE SET
    username          = excluded.username,
    display_name      = excluded.display_name,
    away              = TRUE,
    reason            = excluded.reason,
    since_ms          = excluded.since_ms,
    last_seen_ms      = CASE WHEN excluded.last_seen_ms > afk_status.last_seen_ms THEN excluded.last_seen_ms ELSE afk_status.last_seen_ms END,
    last_announced_ms = 0
RETURNING ` + columns

// SetAway upserts st as away with its reason and since, and resets the announcement time.
// The stored last_seen never moves backwards.
func (s *Store) SetAway(ctx context.Context, st status.Status) (status.Status, error) {
	var r row
	err := s.db.GetContext(ctx, &r, s.db.Rebind(setAwayQuery),
		st.ChatID, st.UserID, status.NormalizeUsername(st.Username), st.DisplayName, st.Reason,
		toMillis(st.Since), toMillis(st.LastSeen),
	)
	if err != nil {
		return status.Status{}, fmt.Errorf("set away %s: %w", st.Key, err)
	}
	return r.status(), nil
}

// ClearAway flips key from away to present. It returns the status as it was
// before clearing and whether this call performed the flip. Concurrent callers
// see exactly one true.
func (s *Store) ClearAway(ctx context.Context, key status.Key) (status.Status, bool, error) {
	var (
		before  status.Status
		flipped bool
	)
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var r row
		err := tx.GetContext(ctx, &r, tx.Rebind(`SELECT `+columns+` FROM afk_status WHERE chat_id = ? AND user_id = ?`),
			key.ChatID, key.UserID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if !r.Away {
			before = r.status()
			return nil
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`
UPDATE afk_status SET away = FALSE, reason = '', since_ms = 0, last_announced_ms = 0
 WHERE chat_id = ? AND user_id = ? AND away`), key.ChatID, key.UserID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		before, flipped = r.status(), n == 1
		return nil
	})
	if err != nil {
		return status.Status{}, false, fmt.Errorf("clear away %s: %w", key, err)
	}
	return before, flipped, nil
}

const touchQuery = `
INSERT INTO afk_status (chat_id, user_id, username, display_name, away, reason, since_ms, last_seen_ms, last_announced_ms)
VALUES (?, ?, ?, ?, FALSE, '', 0, ?, 0)
ON CONFLICT (chat_id, user_id) DO UPDATE SET
    username     = excluded.username,
    display_name = excluded.display_name,
    last_seen_ms = CASE WHEN excluded.last_seen_ms > afk_status.last_seen_ms THEN excluded.last_seen_ms ELSE afk_status.last_seen_ms END`

// Touch records activity for every entry in one transaction. Usernames are
// stored normalized.
func (s *Store) Touch(ctx context.Context, touches []status.Touch) error {
	if len(touches) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, tx.Rebind(touchQuery))
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, t := range touches {
			if _, err := stmt.ExecContext(ctx, t.ChatID, t.UserID, status.NormalizeUsername(t.Username), t.DisplayName, toMillis(t.At)); err != nil {
				return fmt.Errorf("touch %s: %w", t.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("touch batch of %d: %w", len(touches), err)
	}
	return nil
}

// FindByUsername returns the most recently seen user with username in chatID.
func (s *Store) FindByUsername(ctx context.Context, chatID int64, username string) (status.Status, error) {
	username = status.NormalizeUsername(username)
	if username == "" {
		return status.Status{}, ErrNotFound
	}
	var r row
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`
SELECT `+columns+` FROM afk_status
 WHERE chat_id = ? AND username = ?
 ORDER BY last_seen_ms DESC
 LIMIT 1`), chatID, username)
	if errors.Is(err, sql.ErrNoRows) {
		return status.Status{}, ErrNotFound
	}
	if err != nil {
		return status.Status{}, fmt.Errorf("find @%s in %d: %w", username, chatID, err)
	}
	return r.status(), nil
}

// ListInactive returns up to limit present users last seen before cutoff,
// ordered by key and strictly after the given key.
func (s *Store) ListInactive(ctx context.Context, cutoff time.Time, after status.Key, limit int) ([]status.Status, error) {
	if limit <= 0 {
		return nil, nil
	}
	var rows []row
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
SELECT `+columns+` FROM afk_status
 WHERE NOT away AND last_seen_ms > 0 AND last_seen_ms < ?
   AND (chat_id > ? OR (chat_id = ? AND user_id > ?))
 ORDER BY chat_id, user_id
 LIMIT ?`), toMillis(cutoff), after.ChatID, after.ChatID, after.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("list inactive: %w", err)
	}
	out := make([]status.Status, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.status())
	}
	return out, nil
}

const markInactiveQuery = `
UPDATE afk_status SET away = TRUE, reason = ?, since_ms = last_seen_ms, last_announced_ms = 0
 WHERE chat_id = ? AND user_id = ? AND NOT away AND last_seen_ms > 0 AND last_seen_ms < ?
RETURNING ` + columns

// MarkInactive marks the given users away in one transaction. Each row is
// re-checked against cutoff, so users active since listing are skipped.
// The statuses actually marked are returned; their since equals last_seen.
func (s *Store) MarkInactive(ctx context.Context, keys []status.Key, cutoff time.Time, reason string) ([]status.Status, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var marked []status.Status
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, tx.Rebind(markInactiveQuery))
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, k := range keys {
			var r row
			err := stmt.GetContext(ctx, &r, reason, k.ChatID, k.UserID, toMillis(cutoff))
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("mark %s: %w", k, err)
			}
			marked = append(marked, r.status())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mark inactive: %w", err)
	}
	return marked, nil
}

// MarkAnnounced records an "is AFK" notice at for key if the user is away and
// was not announced after notBefore. It reports whether the claim succeeded,
// so concurrent announcers cannot both post.
func (s *Store) MarkAnnounced(ctx context.Context, key status.Key, at, notBefore time.Time) (status.Status, bool, error) {
	var r row
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`
UPDATE afk_status SET last_announced_ms = ?
 WHERE chat_id = ? AND user_id = ? AND away AND last_announced_ms <= ?
RETURNING `+columns), toMillis(at), key.ChatID, key.UserID, toMillis(notBefore))
	if errors.Is(err, sql.ErrNoRows) {
		return status.Status{}, false, nil
	}
	if err != nil {
		return status.Status{}, false, fmt.Errorf("mark announced %s: %w", key, err)
	}
	return r.status(), true, nil
}

// Prune deletes present users last seen before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM afk_status WHERE NOT away AND last_seen_ms < ?`), toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows: %w", err)
	}
	return n, nil
}

// Counts returns the number of tracked records and how many of them are away.
func (s *Store) Counts(ctx context.Context) (tracked, away int64, err error) {
	var c struct {
		Tracked int64 `db:"tracked"`
		Away    int64 `db:"away"`
	}
	err = s.db.GetContext(ctx, &c, `
SELECT COUNT(*) AS tracked, COALESCE(SUM(CASE WHEN away THEN 1 ELSE 0 END), 0) AS away
  FROM afk_status`)
	if err != nil {
		return 0, 0, fmt.Errorf("counts: %w", err)
	}
	return c.Tracked, c.Away, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
