package store

import (
	"context"
	"time"

	"github.com/TobiSchelling/sprintlog/internal/database"
)

// SQLite stores blobs in the kv_entries table of a database.DB. It does not
// own the database; Close leaves it open.
type SQLite struct {
	db  *database.DB
	now func() time.Time
}

// NewSQLite returns a Store over db.
func NewSQLite(db *database.DB) *SQLite {
	return &SQLite{db: db, now: time.Now}
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.db.GetValue(ctx, key, s.now())
}

// Set implements Store.
func (s *SQLite) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}
	return s.db.SetValue(ctx, key, value, expiresAt)
}

// Close implements Store.
func (s *SQLite) Close() error { return nil }
