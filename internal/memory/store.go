// Package memory provides bounded conversation memory backed by SQLite.
//
// Sessions and their messages persist across process restarts. History is
// retained for a configurable window; sessions idle past the window are
// removed wholesale by PurgeExpired.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/unifeast/feastd/internal/logging"
)

// Sentinel errors for memory operations.
var (
	// ErrSessionNotFound indicates the session id does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidInput indicates empty or malformed input.
	ErrInvalidInput = errors.New("invalid input")
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is a known value.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Session is one conversation thread.
type Session struct {
	ID          string
	UserID      string
	CreatedAt   time.Time
	LastUpdated time.Time
}

// Message is one turn in a session.
type Message struct {
	ID        int64
	SessionID string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Store persists sessions and messages in a single SQLite database.
// All methods are safe for concurrent use; the driver serializes writes.
type Store struct {
	db        *sql.DB
	retention time.Duration
	logger    *logging.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	last_updated INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at, id);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(last_updated);
`

// Open opens (creating if necessary) the database at path and applies the
// schema. retention is the idle window after which PurgeExpired removes a
// session. A nil logger is replaced with a no-op.
func Open(path string, retention time.Duration, logger *logging.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path required", ErrInvalidInput)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("%w: retention must be positive", ErrInvalidInput)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{
		db:        db,
		retention: retention,
		logger:    logger.Named("memory"),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetOrCreate returns the session with the given id, creating it for userID
// if it does not exist. Creation and lookup are a single atomic statement,
// so concurrent calls for the same id cannot race.
func (s *Store) GetOrCreate(ctx context.Context, sessionID, userID string) (Session, error) {
	if sessionID == "" {
		return Session{}, fmt.Errorf("%w: session id required", ErrInvalidInput)
	}
	if userID == "" {
		return Session{}, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}

	now := time.Now().UnixNano()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, last_updated) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		sessionID, userID, now, now,
	)
	if err != nil {
		return Session{}, fmt.Errorf("creating session: %w", err)
	}

	return s.getSession(ctx, sessionID)
}

func (s *Store) getSession(ctx context.Context, sessionID string) (Session, error) {
	var sess Session
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, last_updated FROM sessions WHERE id = ?`,
		sessionID,
	).Scan(&sess.ID, &sess.UserID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return Session{}, fmt.Errorf("loading session: %w", err)
	}
	sess.CreatedAt = time.Unix(0, created)
	sess.LastUpdated = time.Unix(0, updated)
	return sess, nil
}

// Append writes a message to a session and bumps its last-updated time in
// one transaction. The session must exist.
func (s *Store) Append(ctx context.Context, sessionID string, role Role, content string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id required", ErrInvalidInput)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if content == "" {
		return fmt.Errorf("%w: content required", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixNano()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET last_updated = ? WHERE id = ?`, now, sessionID)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, string(role), content, now,
	); err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}
	return nil
}

// LoadRecent returns the most recent limit messages of a session in
// chronological order, oldest first. A session with fewer messages returns
// them all; an unknown session returns an empty slice, not an error, so a
// purged session reads as a fresh one.
func (s *Store) LoadRecent(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id required", ErrInvalidInput)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}

	// Newest-first window, then reversed to chronological order. The
	// (created_at, id) tie-break keeps same-instant messages stable.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM messages
		 WHERE session_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var role string
		var created int64
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.Unix(0, created)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// PurgeExpired deletes every session whose last update is older than the
// retention window, along with all its messages, and returns the number of
// sessions removed. The cutoff is computed once, so a session touched after
// the call starts is never swept by it. Running with nothing to purge is a
// no-op.
func (s *Store) PurgeExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.retention).UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id IN
		 (SELECT id FROM sessions WHERE last_updated < ?)`,
		cutoff,
	); err != nil {
		return 0, fmt.Errorf("deleting expired messages: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE last_updated < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged sessions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing purge: %w", err)
	}

	if purged > 0 {
		s.logger.Info(ctx, "purged expired sessions",
			zap.Int64("sessions", purged),
			zap.Duration("retention", s.retention),
		)
	}
	return int(purged), nil
}

// Sessions returns all sessions for a user, most recently updated first.
func (s *Store) Sessions(ctx context.Context, userID string) ([]Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, created_at, last_updated FROM sessions
		 WHERE user_id = ?
		 ORDER BY last_updated DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var created, updated int64
		if err := rows.Scan(&sess.ID, &sess.UserID, &created, &updated); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sess.CreatedAt = time.Unix(0, created)
		sess.LastUpdated = time.Unix(0, updated)
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}
