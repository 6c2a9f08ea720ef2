package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// runTimeFormat is fixed width so created_at sorts lexically.
const runTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// InsertRun journals one ingest pass.
func (db *DB) InsertRun(ctx context.Context, r IngestRun) error {
	createdAt := r.CreatedAt
	if createdAt == "" {
		createdAt = time.Now().UTC().Format(runTimeFormat)
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO ingest_runs
		(id, story_id, cycle_id, cycle_resolved, source, parsed, inserted, updated,
		 duplicates_removed, folded, gaps, changed, summary_found, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StoryID, r.CycleID, boolInt(r.CycleResolved), r.Source, r.Parsed, r.Inserted, r.Updated,
		r.DuplicatesRemoved, r.Folded, r.Gaps, boolInt(r.Changed), boolInt(r.SummaryFound), r.Error, createdAt,
	)
	return err
}

// GetRuns returns the most recent runs for a story, newest first.
func (db *DB) GetRuns(ctx context.Context, storyID string, limit int) ([]IngestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, story_id, cycle_id, cycle_resolved, source, parsed, inserted, updated,
			duplicates_removed, folded, gaps, changed, summary_found, error, created_at
		FROM ingest_runs WHERE story_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		storyID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []IngestRun
	for rows.Next() {
		var r IngestRun
		var resolved, changed, summary int
		if err := rows.Scan(&r.ID, &r.StoryID, &r.CycleID, &resolved, &r.Source, &r.Parsed,
			&r.Inserted, &r.Updated, &r.DuplicatesRemoved, &r.Folded, &r.Gaps,
			&changed, &summary, &r.Error, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.CycleResolved = resolved != 0
		r.Changed = changed != 0
		r.SummaryFound = summary != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetLastRunAt returns the timestamp of the most recent run, or "" when
// nothing has been ingested yet.
func (db *DB) GetLastRunAt(ctx context.Context) (string, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT created_at FROM ingest_runs ORDER BY created_at DESC LIMIT 1",
	)

	var createdAt string
	if err := row.Scan(&createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return createdAt, nil
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}
	now := time.Now().UnixMilli()

	queries := []struct {
		sql  string
		args []any
		dest *int
	}{
		{"SELECT COUNT(*) FROM kv_entries", nil, &s.Keys},
		{"SELECT COUNT(*) FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= ?", []any{now}, &s.ExpiredKeys},
		{"SELECT COUNT(*) FROM ingest_runs", nil, &s.Runs},
		{"SELECT COUNT(DISTINCT story_id) FROM ingest_runs", nil, &s.Stories},
		{"SELECT COUNT(*) FROM ingest_runs WHERE error IS NOT NULL", nil, &s.FailedRuns},
	}

	for _, q := range queries {
		if err := db.conn.QueryRowContext(ctx, q.sql, q.args...).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
