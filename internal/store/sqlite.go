package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"syllabuscal/internal/model"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when an event ID does not exist.
var ErrNotFound = errors.New("store: event not found")

// Store persists captured events. Two events with the same title and
// instant are the same event: the second insert is ignored.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the sqlite database at dbPath.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers; merges are read-modify-write.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Merge inserts the events whose (title, date) key is not stored yet and
// returns the ones that were actually added, with IDs assigned.
func (s *Store) Merge(ctx context.Context, events []model.Event) ([]model.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO events
			(id, title, date_ms, source, added_ms, auto_captured, context, confidence, type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	added := make([]model.Event, 0, len(events))
	for _, ev := range events {
		ev.Title = strings.TrimSpace(ev.Title)
		if ev.Title == "" || ev.Date.IsZero() {
			continue
		}
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		if ev.Added.IsZero() {
			ev.Added = now
		}

		res, err := stmt.ExecContext(ctx,
			ev.ID, ev.Title, ev.Date.UnixMilli(), ev.Source, ev.Added.UnixMilli(),
			ev.AutoCaptured, ev.Context, ev.Confidence, ev.Type,
		)
		if err != nil {
			return nil, fmt.Errorf("insert event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("insert event: %w", err)
		}
		if n == 1 {
			added = append(added, ev)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit merge: %w", err)
	}
	return added, nil
}

// Filter narrows List. Zero times are open bounds.
type Filter struct {
	From time.Time
	To   time.Time
	Type string
}

const selectColumns = `SELECT id, title, date_ms, source, added_ms, auto_captured, context, confidence, type FROM events`

// List returns stored events ordered by date, then capture time.
func (s *Store) List(ctx context.Context, f Filter) ([]model.Event, error) {
	var (
		where []string
		args  []any
	)
	if !f.From.IsZero() {
		where = append(where, "date_ms >= ?")
		args = append(args, f.From.UnixMilli())
	}
	if !f.To.IsZero() {
		where = append(where, "date_ms <= ?")
		args = append(args, f.To.UnixMilli())
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date_ms, added_ms"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]model.Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Get retrieves an event by ID.
func (s *Store) Get(ctx context.Context, id string) (model.Event, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	return ev, err
}

// Delete removes an event by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear removes every stored event and reports how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events")
	if err != nil {
		return 0, fmt.Errorf("clear events: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(r scanner) (model.Event, error) {
	var (
		ev              model.Event
		dateMs, addedMs int64
	)
	err := r.Scan(&ev.ID, &ev.Title, &dateMs, &ev.Source, &addedMs,
		&ev.AutoCaptured, &ev.Context, &ev.Confidence, &ev.Type)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ev, err
		}
		return ev, fmt.Errorf("scan event: %w", err)
	}
	ev.Date = time.UnixMilli(dateMs)
	ev.Added = time.UnixMilli(addedMs)
	return ev, nil
}
