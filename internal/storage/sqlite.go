package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tazhate/remindbot/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite keeps one row per reminder; Save rewrites the table inside a single
// transaction so readers only ever see a whole snapshot.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS reminders (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			title TEXT NOT NULL,
			event_time TEXT NOT NULL,
			lead_minutes INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			sent INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_owner ON reminders(owner)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Load() (Snapshot, error) {
	rows, err := s.db.Query(
		`SELECT id, owner, title, event_time, lead_minutes, created_at, sent FROM reminders`,
	)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()

	snap := make(Snapshot)
	for rows.Next() {
		var (
			r                  domain.Reminder
			eventAt, createdAt string
		)
		if err := rows.Scan(&r.ID, &r.Owner, &r.Title, &eventAt, &r.LeadMinutes, &createdAt, &r.Sent); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		if r.EventTime, err = time.Parse(time.RFC3339Nano, eventAt); err != nil {
			return nil, fmt.Errorf("parse event_time of %s: %w", r.ID, err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", r.ID, err)
		}
		snap[r.ID] = r
	}
	return snap, rows.Err()
}

func (s *SQLite) Save(snap Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM reminders`); err != nil {
		return fmt.Errorf("clear reminders: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO reminders (id, owner, title, event_time, lead_minutes, created_at, sent)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for id, r := range snap {
		_, err := stmt.Exec(id, r.Owner, r.Title,
			r.EventTime.UTC().Format(time.RFC3339Nano), r.LeadMinutes,
			r.CreatedAt.UTC().Format(time.RFC3339Nano), r.Sent)
		if err != nil {
			return fmt.Errorf("insert reminder %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
