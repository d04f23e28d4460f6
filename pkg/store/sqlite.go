package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/BYTE-6D65/liveboard/pkg/clock"
	"github.com/BYTE-6D65/liveboard/pkg/event"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

const (
	createWidgets = `CREATE TABLE IF NOT EXISTS widgets (
    widget_id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    position INTEGER NOT NULL,
    config TEXT NOT NULL,
    updated_by TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);`

	createWrites = `CREATE TABLE IF NOT EXISTS writes (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    widget_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    patch TEXT NOT NULL,
    origin TEXT NOT NULL,
    written_at INTEGER NOT NULL
);`

	createWritesIndex = `CREATE INDEX IF NOT EXISTS idx_writes_widget ON writes(widget_id, seq);`
)

// SQLiteStore persists the board in a SQLite database: one row per widget
// holding its JSON config document, plus an append-only log of writes.
type SQLiteStore struct {
	mu     sync.Mutex // serializes read-merge-write
	db     *sql.DB
	closed bool

	notify *notifier
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the board database at dsn. Use
// ":memory:" for a throwaway board.
func OpenSQLite(ctx context.Context, dsn string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dsn, err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	for _, ddl := range []string{createWidgets, createWrites, createWritesIndex} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, notify: newNotifier(opts)}, nil
}

// Widgets implements Reader.
func (s *SQLiteStore) Widgets(ctx context.Context) ([]widget.Widget, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT widget_id, kind, config FROM widgets ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list widgets: %w", err)
	}
	defer rows.Close()

	var out []widget.Widget
	for rows.Next() {
		var id, kind, raw string
		if err := rows.Scan(&id, &kind, &raw); err != nil {
			return nil, fmt.Errorf("scan widget: %w", err)
		}
		w, err := decodeRow(id, kind, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Widget implements Reader.
func (s *SQLiteStore) Widget(ctx context.Context, id string) (widget.Widget, error) {
	if err := s.check(); err != nil {
		return widget.Widget{}, err
	}
	return s.load(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) load(ctx context.Context, q queryer, id string) (widget.Widget, error) {
	var kind, raw string
	err := q.QueryRowContext(ctx, `SELECT kind, config FROM widgets WHERE widget_id = ?`, id).Scan(&kind, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return widget.Widget{}, fmt.Errorf("%w: %s", ErrWidgetNotFound, id)
	}
	if err != nil {
		return widget.Widget{}, fmt.Errorf("load %s: %w", id, err)
	}
	return decodeRow(id, kind, raw)
}

func decodeRow(id, kind, raw string) (widget.Widget, error) {
	k, err := widget.ParseKind(kind)
	if err != nil {
		return widget.Widget{}, fmt.Errorf("widget %s: %w", id, err)
	}
	cfg, err := widget.DecodeConfig(k, []byte(raw))
	if err != nil {
		return widget.Widget{}, fmt.Errorf("widget %s: %w", id, err)
	}
	return widget.Widget{ID: id, Kind: k, Config: cfg}, nil
}

// Write implements Writer. The merge and the log row commit together.
func (s *SQLiteStore) Write(ctx context.Context, id string, patch widget.Patch) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	w, err := s.writeTx(ctx, id, patch)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify.written(ctx, w, patch)
	return nil
}

func (s *SQLiteStore) writeTx(ctx context.Context, id string, patch widget.Patch) (widget.Widget, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return widget.Widget{}, fmt.Errorf("begin write %s: %w", id, err)
	}
	defer tx.Rollback()

	w, err := s.load(ctx, tx, id)
	if err != nil {
		return widget.Widget{}, err
	}
	merged, err := widget.Apply(w.Config, patch)
	if err != nil {
		return widget.Widget{}, fmt.Errorf("write %s: %w", id, err)
	}
	doc, err := widget.EncodeConfig(merged)
	if err != nil {
		return widget.Widget{}, fmt.Errorf("write %s: %w", id, err)
	}
	patchDoc, err := widget.EncodePatch(patch)
	if err != nil {
		return widget.Widget{}, fmt.Errorf("write %s: %w", id, err)
	}

	origin, at := s.notify.stamp(ctx)
	now := int64(at)
	if _, err := tx.ExecContext(ctx,
		`UPDATE widgets SET config = ?, updated_by = ?, updated_at = ? WHERE widget_id = ?`,
		string(doc), origin, now, id); err != nil {
		return widget.Widget{}, fmt.Errorf("update %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO writes (widget_id, kind, patch, origin, written_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(w.Kind), string(patchDoc), origin, now); err != nil {
		return widget.Widget{}, fmt.Errorf("log write %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return widget.Widget{}, fmt.Errorf("commit write %s: %w", id, err)
	}

	w.Config = merged
	return w, nil
}

// Add implements Store.
func (s *SQLiteStore) Add(ctx context.Context, w widget.Widget) error {
	if w.Config == nil || w.Config.Kind() != w.Kind {
		return fmt.Errorf("add %s: %w", w.ID, widget.ErrKindMismatch)
	}
	doc, err := widget.EncodeConfig(w.Config)
	if err != nil {
		return fmt.Errorf("add %s: %w", w.ID, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	err = s.insert(ctx, w, string(doc))
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify.lifecycle(ctx, event.EventTypeWidgetAdded, w)
	return nil
}

func (s *SQLiteStore) insert(ctx context.Context, w widget.Widget, doc string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM widgets WHERE widget_id = ?`, w.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("add %s: %w", w.ID, err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateWidget, w.ID)
	}

	origin, at := s.notify.stamp(ctx)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO widgets (widget_id, kind, position, config, updated_by, updated_at)
         VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM widgets), ?, ?, ?)`,
		w.ID, string(w.Kind), doc, origin, int64(at))
	if err != nil {
		return fmt.Errorf("add %s: %w", w.ID, err)
	}
	return nil
}

// Remove implements Store. The widget's write log is kept.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	w, err := s.load(ctx, s.db, id)
	if err == nil {
		_, err = s.db.ExecContext(ctx, `DELETE FROM widgets WHERE widget_id = ?`, id)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify.lifecycle(ctx, event.EventTypeWidgetRemoved, w)
	return nil
}

// History returns the logged writes for a widget, oldest first.
func (s *SQLiteStore) History(ctx context.Context, id string) ([]WriteRecord, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, kind, patch, origin, written_at FROM writes WHERE widget_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", id, err)
	}
	defer rows.Close()

	var out []WriteRecord
	for rows.Next() {
		var (
			rec  WriteRecord
			kind string
			raw  string
			at   int64
		)
		if err := rows.Scan(&rec.Seq, &kind, &raw, &rec.Origin, &at); err != nil {
			return nil, fmt.Errorf("scan write: %w", err)
		}
		patch, err := widget.DecodePatch([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("history %s: %w", id, err)
		}
		rec.WidgetID = id
		rec.Kind = widget.Kind(kind)
		rec.Patch = patch
		rec.At = clock.MonoTime(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Store. Idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
