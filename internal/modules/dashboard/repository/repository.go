package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"swapit-dashboard/internal/frame"
	"swapit-dashboard/internal/modules/dashboard/definitions"
	"swapit-dashboard/internal/modules/dashboard/types"
)

var ErrNotFound = errors.New("no rows")

// sqliteTimeLayout sorts lexically against the YYYY-MM-DD bounds rendered into queries.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// Pools hands out the connection pool for a database name.
type Pools interface {
	Get(name string) (*sql.DB, error)
}

type ChartRepository interface {
	// Query runs a rendered catalog query and reshapes the result.
	Query(ctx context.Context, database, query string) (*frame.Frame, error)
	// FirstEntry returns the earliest datetime stored in table.
	FirstEntry(ctx context.Context, database, table string) (types.FirstEntry, error)
	InsertMeasurement(ctx context.Context, m types.Measurement) error
}

type repositoryImpl struct {
	pools  Pools
	driver string
}

// NewRepository returns a repository over pools opened with driver ("pgx" or "sqlite3").
func NewRepository(pools Pools, driver string) ChartRepository {
	return &repositoryImpl{pools: pools, driver: driver}
}

func (r *repositoryImpl) Query(ctx context.Context, database, query string) (*frame.Frame, error) {
	db, err := r.pools.Get(database)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", database, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close chart rows", "database", database, "error", err)
		}
	}()
	return frame.FromRows(rows)
}

func (r *repositoryImpl) FirstEntry(ctx context.Context, database, table string) (types.FirstEntry, error) {
	if !definitions.ValidIdentifier(table) {
		return types.FirstEntry{}, fmt.Errorf("invalid table name %q", table)
	}
	db, err := r.pools.Get(database)
	if err != nil {
		return types.FirstEntry{}, err
	}
	q := "SELECT " + frame.IndexColumn + " FROM " + table +
		" WHERE " + frame.IndexColumn + " IS NOT NULL ORDER BY " + frame.IndexColumn + " LIMIT 1"

	var raw any
	if err := db.QueryRowContext(ctx, q).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.FirstEntry{}, ErrNotFound
		}
		return types.FirstEntry{}, fmt.Errorf("first entry %s.%s: %w", database, table, err)
	}
	ts, err := frame.ParseTime(raw)
	if err != nil {
		return types.FirstEntry{}, fmt.Errorf("first entry %s.%s: %w", database, table, err)
	}
	return types.FirstEntry{Database: database, Datetime: ts}, nil
}

func (r *repositoryImpl) InsertMeasurement(ctx context.Context, m types.Measurement) error {
	if !definitions.ValidIdentifier(m.Table) {
		return fmt.Errorf("invalid table name %q", m.Table)
	}
	cols := make([]string, 0, len(m.Values))
	for c := range m.Values {
		if !definitions.ValidIdentifier(c) {
			return fmt.Errorf("invalid column name %q", c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)

	db, err := r.pools.Get(m.Database)
	if err != nil {
		return err
	}

	names := append([]string{frame.IndexColumn}, cols...)
	args := make([]any, 0, len(names))
	if r.driver == "sqlite3" {
		args = append(args, m.Datetime.UTC().Format(sqliteTimeLayout))
	} else {
		args = append(args, m.Datetime.UTC())
	}
	for _, c := range cols {
		if v := m.Values[c]; v != nil {
			args = append(args, *v)
		} else {
			args = append(args, nil)
		}
	}

	q := "INSERT INTO " + m.Table + " (" + strings.Join(names, ", ") + ") VALUES (" +
		strings.Join(r.placeholders(len(names)), ", ") + ")"
	if _, err := db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert into %s.%s: %w", m.Database, m.Table, err)
	}
	return nil
}

func (r *repositoryImpl) placeholders(n int) []string {
	out := make([]string, n)
	for i := range out {
		if r.driver == "sqlite3" {
			out[i] = "?"
		} else {
			out[i] = "$" + strconv.Itoa(i+1)
		}
	}
	return out
}
