package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a Store backed by a SQLite database file. Because SQLite
// serializes writers at the file level, the compare-and-set operations are
// atomic across independent processes sharing the same database, which makes
// this implementation suitable for multi-instance deployments that share one
// credential pool without a dedicated coordination service.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);
`

// NewSQLiteStore opens (creating if needed) the database at dsn and ensures
// the schema exists. A dsn of "file:pool.db?_busy_timeout=5000" is typical.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite store schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func nowMillis() int64 { return time.Now().UnixMilli() }

func expiryMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return time.Now().Add(ttl).UnixMilli()
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, nowMillis(),
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiryMillis(ttl),
	)
	return err
}

// SetIfAbsent implements Store. An expired row counts as absent and is
// overwritten in the same statement.
func (s *SQLiteStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
		 WHERE kv.expires_at != 0 AND kv.expires_at <= ?`,
		key, value, expiryMillis(ttl), nowMillis(),
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

// CompareAndSwap implements Store.
func (s *SQLiteStore) CompareAndSwap(ctx context.Context, key, old, new string, ttl time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE kv SET value = ?, expires_at = ?
		 WHERE key = ? AND value = ? AND (expires_at = 0 OR expires_at > ?)`,
		new, expiryMillis(ttl), key, old, nowMillis(),
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

// CompareAndDelete implements Store.
func (s *SQLiteStore) CompareAndDelete(ctx context.Context, key, expect string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE key = ? AND value = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, expect, nowMillis(),
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

// IncrBy implements Store. The addition happens inside a transaction so that
// concurrent writers from other connections serialize correctly.
func (s *SQLiteStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var current int64
	var value string
	err = tx.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, nowMillis(),
	).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		current = 0
	case err != nil:
		return 0, err
	default:
		current, err = strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, err
		}
	}

	current += delta
	_, err = tx.ExecContext(ctx,
		`INSERT INTO kv (key, value, expires_at) VALUES (?, ?, 0)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, strconv.FormatInt(current, 10),
	)
	if err != nil {
		return 0, err
	}
	return current, tx.Commit()
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}
