// Package cyclelog keeps a lightweight audit trail of pipeline cycles in its
// own sqlite file, separate from the risk store, so operators can inspect
// cycle cadence and outcomes without touching the hot database.
package cyclelog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Entry is one completed (or discarded) cycle.
type Entry struct {
	ID         int64   `json:"id"`
	AccountID  string  `json:"account_id"`
	CycleID    string  `json:"cycle_id"`
	TS         int64   `json:"ts"`
	Zone       string  `json:"zone"`
	UsagePct   float64 `json:"usage_pct"`
	Stale      bool    `json:"stale"`
	Degraded   bool    `json:"degraded"`
	DurationMS int64   `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
}

type Store struct {
	mu sync.Mutex
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("cycle log path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS cycle_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL,
		cycle_id TEXT NOT NULL DEFAULT '',
		ts INTEGER NOT NULL,
		zone TEXT NOT NULL DEFAULT '',
		usage_pct REAL NOT NULL DEFAULT 0,
		stale INTEGER NOT NULL DEFAULT 0,
		degraded INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		note TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_cycle_log_account_ts ON cycle_log(account_id, ts DESC);`)
	return err
}

func (s *Store) Append(ctx context.Context, e Entry) error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO cycle_log
		(account_id, cycle_id, ts, zone, usage_pct, stale, degraded, duration_ms, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.AccountID, e.CycleID, e.TS, e.Zone, e.UsagePct,
		boolToInt(e.Stale), boolToInt(e.Degraded), e.DurationMS, e.Note)
	return err
}

// Recent returns the newest entries for an account, newest first.
func (s *Store) Recent(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id, account_id, cycle_id, ts, zone, usage_pct,
		stale, degraded, duration_ms, note
		FROM cycle_log WHERE account_id = ? ORDER BY ts DESC, id DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var stale, degraded int
		if err := rows.Scan(&e.ID, &e.AccountID, &e.CycleID, &e.TS, &e.Zone, &e.UsagePct,
			&stale, &degraded, &e.DurationMS, &e.Note); err != nil {
			return nil, err
		}
		e.Stale = stale != 0
		e.Degraded = degraded != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
