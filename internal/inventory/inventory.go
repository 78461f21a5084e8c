// Package inventory is the SQL repository for equipment, alarms and
// documentation. It runs on either store driver and is the local store
// the sync engine reconciles into.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/alarmdesk/pkg/plugin"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a lookup by id or upstream id misses.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would duplicate an upstream id.
	ErrConflict = errors.New("conflict")
)

// Store persists inventory records through a plugin.Store.
type Store struct {
	db     *sql.DB
	rebind func(string) string
	driver string
	now    func() time.Time
}

// New wraps a shared database handle. Call Migrate before use.
func New(s plugin.Store) *Store {
	return &Store{
		db:     s.DB(),
		rebind: s.Rebind,
		driver: s.Driver(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates or upgrades the inventory tables.
func Migrate(ctx context.Context, s plugin.Store) error {
	return s.Migrate(ctx, "inventory", migrations(s.Driver()))
}

func (s *Store) q(query string) string { return s.rebind(query) }

// classify maps driver errors to ErrNotFound / ErrConflict.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w: %s", what, ErrConflict, pgErr.Detail)
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func checkAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// page normalizes skip/limit. limit <= 0 selects defaultLimit; it is capped at maxLimit.
func page(skip, limit int) (int, int) {
	const defaultLimit, maxLimit = 100, 1000
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return skip, limit
}

// where accumulates AND-ed predicates with '?' arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}
