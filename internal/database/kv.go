package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetValue returns the value stored under key if it has not expired at now.
func (db *DB) GetValue(ctx context.Context, key string, now time.Time) ([]byte, bool, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT value FROM kv_entries
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, now.UnixMilli(),
	)

	var value []byte
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// SetValue inserts or replaces the value under key. A zero expiresAt means
// the entry never expires.
func (db *DB) SetValue(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	var exp *int64
	if !expiresAt.IsZero() {
		ms := expiresAt.UnixMilli()
		exp = &ms
	}
	if value == nil {
		value = []byte{}
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO kv_entries (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		key, value, exp,
	)
	return err
}

// PurgeExpired deletes entries that expired at or before now and returns
// how many were removed.
func (db *DB) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		"DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= ?",
		now.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
