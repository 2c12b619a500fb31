// Package sqlite stores parameters, derived records and the audit log in a
// single SQLite database. Records are kept as JSON documents keyed by project;
// each save runs in its own transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/kalk/pkg/domain"
	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS parameters (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	doc TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pre_calculations (
	project_id TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	doc TEXT NOT NULL,
	derived_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS post_calculations (
	project_id TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	doc TEXT NOT NULL,
	computed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	project_id TEXT,
	action TEXT NOT NULL,
	doc TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_project ON events(project_id);
`

var _ domain.WorkspaceRepository = (*Store)(nil)

// Store implements domain.WorkspaceRepository on SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database at path. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer; also keeps an in-memory database on one connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Initialize creates the schema.
func (s *Store) Initialize() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *Store) IsInitialized() bool {
	var name string
	err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'post_calculations'`).Scan(&name)
	return err == nil
}

func (s *Store) LoadParameters(ctx context.Context) (calculation.Parameters, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM parameters WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return calculation.DefaultParameters(), nil
	}
	if err != nil {
		return calculation.Parameters{}, fmt.Errorf("failed to load parameters: %w", err)
	}

	p := calculation.DefaultParameters()
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return calculation.Parameters{}, fmt.Errorf("failed to unmarshal parameters: %w", err)
	}
	return p, nil
}

func (s *Store) SaveParameters(ctx context.Context, p calculation.Parameters) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO parameters (id, doc, updated_at) VALUES (1, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
			string(doc), formatTime(p.LastModified))
		return err
	})
}

func (s *Store) LoadPreCalculation(ctx context.Context, projectID string) (*calculation.PreCalculation, error) {
	var pc calculation.PreCalculation
	ok, err := s.loadDoc(ctx, `SELECT doc FROM pre_calculations WHERE project_id = ?`, projectID, &pc)
	if err != nil || !ok {
		return nil, err
	}
	return &pc, nil
}

func (s *Store) SavePreCalculation(ctx context.Context, pc *calculation.PreCalculation) error {
	if _, err := domain.NewProjectID(pc.ProjectID); err != nil {
		return err
	}
	doc, err := json.Marshal(pc)
	if err != nil {
		return fmt.Errorf("failed to marshal pre-calculation: %w", err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pre_calculations (project_id, fingerprint, doc, derived_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(project_id) DO UPDATE SET fingerprint = excluded.fingerprint, doc = excluded.doc, derived_at = excluded.derived_at`,
			pc.ProjectID, pc.Fingerprint(), string(doc), formatTime(pc.DerivedAt))
		return err
	})
}

func (s *Store) LoadPostCalculation(ctx context.Context, projectID string) (*calculation.PostCalculation, error) {
	var pc calculation.PostCalculation
	ok, err := s.loadDoc(ctx, `SELECT doc FROM post_calculations WHERE project_id = ?`, projectID, &pc)
	if err != nil || !ok {
		return nil, err
	}
	return &pc, nil
}

func (s *Store) SavePostCalculation(ctx context.Context, pc *calculation.PostCalculation) error {
	if _, err := domain.NewProjectID(pc.ProjectID); err != nil {
		return err
	}
	if err := pc.CheckInvariant(); err != nil {
		return err
	}
	doc, err := json.Marshal(pc)
	if err != nil {
		return fmt.Errorf("failed to marshal post-calculation: %w", err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO post_calculations (project_id, fingerprint, doc, computed_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(project_id) DO UPDATE SET fingerprint = excluded.fingerprint, doc = excluded.doc, computed_at = excluded.computed_at`,
			pc.ProjectID, pc.Fingerprint(), string(doc), formatTime(pc.LastComputedAt))
		return err
	})
}

func (s *Store) RecordEvent(event domain.Event) error {
	doc, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO events (id, project_id, action, doc) VALUES (?, ?, ?, ?)`,
		event.ID, event.ProjectID, event.Action, string(doc))
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (s *Store) LoadEvents() ([]domain.Event, error) {
	rows, err := s.db.Query(`SELECT doc FROM events ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		var e domain.Event
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			continue // Skip malformed rows
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) loadDoc(ctx context.Context, query, projectID string, v any) (bool, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, query, projectID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", projectID, err)
	}
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", projectID, err)
	}
	return true, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to write: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
