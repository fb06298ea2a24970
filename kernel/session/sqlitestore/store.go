// Package sqlitestore keeps session state in a single SQLite database. Each
// session is one row holding a CBOR blob; mirrored summaries live in their
// own table so readers can query them without decoding state.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/OnslaughtSnail/edgechat/kernel/session"
)

const (
	driverName = "sqlite"
	dsnOptions = "?_pragma=busy_timeout(3000)&_pragma=journal_mode(WAL)"
)

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlitestore: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlitestore: create dir: %w", err)
	}
	db, err := sql.Open(driverName, path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS session_state (
	session_id TEXT PRIMARY KEY,
	state BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS chat_summaries (
	session_id TEXT PRIMARY KEY,
	summary TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, sessionID string) (*session.State, error) {
	if err := session.ValidateID(sessionID); err != nil {
		return nil, err
	}
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT state FROM session_state WHERE session_id = ?`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load %q: %w", sessionID, err)
	}
	state, err := decodeState(raw)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: decode %q: %w", sessionID, err)
	}
	return state, nil
}

func (s *Store) Save(ctx context.Context, sessionID string, state *session.State) error {
	if err := session.ValidateID(sessionID); err != nil {
		return err
	}
	if state == nil {
		return session.ErrNilState
	}
	raw, err := encodeState(state)
	if err != nil {
		return fmt.Errorf("sqlitestore: encode %q: %w", sessionID, err)
	}
	const q = `
INSERT INTO session_state (session_id, state, updated_at) VALUES (?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	state = excluded.state,
	updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, sessionID, raw, state.LastUpdated.UnixMilli()); err != nil {
		return fmt.Errorf("sqlitestore: save %q: %w", sessionID, err)
	}
	return nil
}

func (s *Store) PutSummary(ctx context.Context, sessionID, summary string) error {
	if err := session.ValidateID(sessionID); err != nil {
		return err
	}
	const q = `
INSERT INTO chat_summaries (session_id, summary, updated_at) VALUES (?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	summary = excluded.summary,
	updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, q, sessionID, summary, time.Now().UnixMilli())
	return err
}

// Summary returns the mirrored summary for sessionID, if any.
func (s *Store) Summary(ctx context.Context, sessionID string) (string, bool, error) {
	var summary string
	err := s.db.QueryRowContext(ctx, `SELECT summary FROM chat_summaries WHERE session_id = ?`, sessionID).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return summary, true, nil
}
