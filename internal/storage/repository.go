package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"ricorrenti/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an expense does not exist or was deleted.
var ErrNotFound = errors.New("not found")

const timeLayout = time.RFC3339Nano

// StoredEvent is an event together with its position in the log.
type StoredEvent struct {
	ID int64
	core.ExpenseEvent
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateExpense stores a new recurring expense and its "created" event.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.RecurringExpense) (StoredEvent, error) {
	if err := e.Validate(); err != nil {
		return StoredEvent{}, err
	}

	var stored StoredEvent
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO recurring_expenses
				(id, description, category, amount_cents, frequency, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Description, e.Category, core.ToCents(e.Amount), string(e.Frequency),
			boolToInt(e.IsActive), formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
		if err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}

		stored, err = appendEvent(ctx, tx, e.Event(core.EventCreated, e.CreatedAt))
		return err
	})
	if err != nil {
		return StoredEvent{}, err
	}

	slog.InfoContext(ctx, "Recurring expense saved",
		"id", e.ID,
		"amount_cents", core.ToCents(e.Amount),
		"frequency", e.Frequency,
		"event_id", stored.ID)

	return stored, nil
}

// UpdateExpense overwrites description, category, amount and frequency of an
// existing expense and records an "updated" event. The active flag is kept.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.RecurringExpense) (core.RecurringExpense, StoredEvent, error) {
	return r.mutate(ctx, e.ID, core.EventUpdated, e.UpdatedAt, func(cur *core.RecurringExpense) {
		cur.Description = e.Description
		cur.Category = e.Category
		cur.Amount = e.Amount
		cur.Frequency = e.Frequency
	})
}

// SetActive pauses or reactivates an expense.
func (r *SQLiteRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) (core.RecurringExpense, StoredEvent, error) {
	typ := core.EventPaused
	if active {
		typ = core.EventActivated
	}
	return r.mutate(ctx, id, typ, at, func(cur *core.RecurringExpense) {
		cur.IsActive = active
	})
}

// DeleteExpense soft deletes an expense. The row stays for history; the
// "deleted" event carries the last known amount and frequency.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id string, at time.Time) (StoredEvent, error) {
	_, stored, err := r.mutate(ctx, id, core.EventDeleted, at, func(cur *core.RecurringExpense) {
		cur.IsActive = false
	})
	return stored, err
}

func (r *SQLiteRepository) mutate(ctx context.Context, id string, typ core.EventType, at time.Time, fn func(*core.RecurringExpense)) (core.RecurringExpense, StoredEvent, error) {
	var (
		cur    core.RecurringExpense
		stored StoredEvent
	)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		cur, err = scanExpense(tx.QueryRowContext(ctx, selectExpense+` WHERE id = ? AND deleted_at IS NULL`, id))
		if err != nil {
			return err
		}

		fn(&cur)
		cur.UpdatedAt = at
		if err := cur.Validate(); err != nil {
			return err
		}

		var deletedAt any
		if typ == core.EventDeleted {
			deletedAt = formatTime(at)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE recurring_expenses
			SET description = ?, category = ?, amount_cents = ?, frequency = ?,
				is_active = ?, updated_at = ?, deleted_at = ?
			WHERE id = ?`,
			cur.Description, cur.Category, core.ToCents(cur.Amount), string(cur.Frequency),
			boolToInt(cur.IsActive), formatTime(at), deletedAt, id)
		if err != nil {
			return fmt.Errorf("update expense: %w", err)
		}

		stored, err = appendEvent(ctx, tx, cur.Event(typ, at))
		return err
	})
	if err != nil {
		return core.RecurringExpense{}, StoredEvent{}, err
	}

	slog.InfoContext(ctx, "Recurring expense changed",
		"id", id,
		"event_type", typ,
		"event_id", stored.ID)

	return cur, stored, nil
}

// GetExpense returns a non-deleted expense by id.
func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.RecurringExpense, error) {
	return scanExpense(r.db.QueryRowContext(ctx, selectExpense+` WHERE id = ? AND deleted_at IS NULL`, id))
}

// ListExpenses returns every non-deleted expense, oldest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context) ([]core.RecurringExpense, error) {
	rows, err := r.db.QueryContext(ctx, selectExpense+` WHERE deleted_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringExpense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendEvent records an externally produced event without touching the
// recurring_expenses table.
func (r *SQLiteRepository) AppendEvent(ctx context.Context, ev core.ExpenseEvent) (StoredEvent, error) {
	if err := ev.Validate(); err != nil {
		return StoredEvent{}, err
	}
	var stored StoredEvent
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		stored, err = appendEvent(ctx, tx, ev)
		return err
	})
	return stored, err
}

// ListEvents returns the whole event log in insertion order.
func (r *SQLiteRepository) ListEvents(ctx context.Context) ([]core.ExpenseEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, expense_id, event_type, amount_cents, frequency, is_active, changed_at
		FROM expense_events
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []core.ExpenseEvent
	for rows.Next() {
		var (
			id        int64
			ev        core.ExpenseEvent
			typ, freq string
			cents     int64
			active    int
			changedAt string
		)
		if err := rows.Scan(&id, &ev.ExpenseID, &typ, &cents, &freq, &active, &changedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = core.EventType(typ)
		ev.Frequency = core.Frequency(freq)
		ev.Amount = core.FromCents(cents)
		ev.IsActive = active != 0
		if ev.ChangedAt, err = parseTime(changedAt); err != nil {
			return nil, fmt.Errorf("event %d: parse changed_at %q: %w", id, changedAt, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// EventLogVersion returns the id of the newest event, 0 for an empty log.
// It grows with every append, so it identifies a state of the log.
func (r *SQLiteRepository) EventLogVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM expense_events`).Scan(&v); err != nil {
		return 0, fmt.Errorf("event log version: %w", err)
	}
	return v, nil
}

// ReplaceSnapshots swaps the stored timeline for points computed at version.
func (r *SQLiteRepository) ReplaceSnapshots(ctx context.Context, points []core.TimelinePoint, version int64, at time.Time) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM timeline_snapshots`); err != nil {
			return fmt.Errorf("clear snapshots: %w", err)
		}
		for _, p := range points {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO timeline_snapshots (month, label, total_cents, event_version, computed_at)
				VALUES (?, ?, ?, ?, ?)`,
				p.Month, p.Label, core.ToCents(p.Total), version, formatTime(at))
			if err != nil {
				return fmt.Errorf("insert snapshot %s: %w", p.Month, err)
			}
		}
		return nil
	})
}

// ListSnapshots returns the stored timeline and the event version it was built from.
func (r *SQLiteRepository) ListSnapshots(ctx context.Context) ([]core.TimelinePoint, int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT month, label, total_cents, event_version
		FROM timeline_snapshots
		ORDER BY month`)
	if err != nil {
		return nil, 0, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := []core.TimelinePoint{}
	var version int64
	for rows.Next() {
		var (
			p     core.TimelinePoint
			cents int64
		)
		if err := rows.Scan(&p.Month, &p.Label, &cents, &version); err != nil {
			return nil, 0, fmt.Errorf("scan snapshot: %w", err)
		}
		p.Total = core.FromCents(cents)
		out = append(out, p)
	}
	return out, version, rows.Err()
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func appendEvent(ctx context.Context, tx *sql.Tx, ev core.ExpenseEvent) (StoredEvent, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO expense_events
			(expense_id, event_type, amount_cents, frequency, is_active, changed_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ExpenseID, string(ev.Type), core.ToCents(ev.Amount), string(ev.Frequency),
		boolToInt(ev.IsActive), formatTime(ev.ChangedAt), formatTime(time.Now()))
	if err != nil {
		return StoredEvent{}, fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return StoredEvent{}, fmt.Errorf("event id: %w", err)
	}
	return StoredEvent{ID: id, ExpenseEvent: ev}, nil
}

const selectExpense = `
	SELECT id, description, category, amount_cents, frequency, is_active, created_at, updated_at
	FROM recurring_expenses`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (core.RecurringExpense, error) {
	var (
		e                    core.RecurringExpense
		cents                int64
		freq                 string
		active               int
		createdAt, updatedAt string
	)
	err := row.Scan(&e.ID, &e.Description, &e.Category, &cents, &freq, &active, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringExpense{}, ErrNotFound
	}
	if err != nil {
		return core.RecurringExpense{}, fmt.Errorf("scan expense: %w", err)
	}
	e.Amount = core.FromCents(cents)
	e.Frequency = core.Frequency(freq)
	e.IsActive = active != 0
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.RecurringExpense{}, fmt.Errorf("expense %s: parse created_at: %w", e.ID, err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.RecurringExpense{}, fmt.Errorf("expense %s: parse updated_at: %w", e.ID, err)
	}
	return e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
