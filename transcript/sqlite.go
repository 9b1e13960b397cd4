package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists the transcript in a SQLite database file so history
// survives restarts and can be shared by multiple processes.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS transcript (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_key TEXT NOT NULL,
	session_id  TEXT NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	old         INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_transcript_session_key ON transcript (session_key, old, id);
CREATE INDEX IF NOT EXISTS idx_transcript_session_id ON transcript (session_id);
`

// NewSQLiteStore opens (creating if needed) the database at dsn and ensures
// the schema exists.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open transcript store: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init transcript store schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, msg Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcript (session_key, session_id, role, content, created_at, old)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.SessionKey, msg.SessionID, msg.Role, msg.Content, msg.CreatedAt.UnixMilli(), boolToInt(msg.Old),
	)
	return err
}

// Recent implements Store.
func (s *SQLiteStore) Recent(ctx context.Context, sessionKey string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_key, session_id, role, content, created_at, old
		 FROM (
			SELECT * FROM transcript WHERE session_key = ? AND old = 0 ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`,
		sessionKey, limitOrMax(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var createdAt int64
		var old int
		if err := rows.Scan(&msg.SessionKey, &msg.SessionID, &msg.Role, &msg.Content, &createdAt, &old); err != nil {
			return nil, err
		}
		msg.CreatedAt = time.UnixMilli(createdAt)
		msg.Old = old != 0
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// MarkSessionOld implements Store.
func (s *SQLiteStore) MarkSessionOld(ctx context.Context, sessionID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transcript SET old = 1 WHERE session_id = ? AND old = 0`,
		sessionID,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func limitOrMax(limit int) int {
	if limit <= 0 {
		return -1 // SQLite treats a negative LIMIT as unlimited
	}
	return limit
}
