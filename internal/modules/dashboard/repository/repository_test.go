package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"swapit-dashboard/internal/modules/dashboard/types"
)

const testSchema = `
CREATE TABLE bor__csat_m_v0 (
  datetime TEXT NOT NULL,
  ws_u     REAL,
  ws_v     REAL,
  vtempa   REAL
);
`

type mapPools map[string]*sql.DB

func (m mapPools) Get(name string) (*sql.DB, error) {
	db, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("unknown database %q", name)
	}
	return db, nil
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// :memory: is per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(testSchema); err != nil {
		_ = db.Close()
		t.Fatalf("exec schema: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	return db
}

func f64(v float64) *float64 { return &v }

func TestInsertAndQuery(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(mapPools{"borden": db}, "sqlite3")
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		m := types.Measurement{
			Database: "borden",
			Table:    "bor__csat_m_v0",
			Datetime: base.Add(time.Duration(i) * time.Minute),
			Values:   map[string]*float64{"ws_u": f64(float64(i)), "vtempa": nil},
		}
		if err := repo.InsertMeasurement(ctx, m); err != nil {
			t.Fatalf("InsertMeasurement: %v", err)
		}
	}

	f, err := repo.Query(ctx, "borden", "SELECT datetime, ws_u, vtempa FROM bor__csat_m_v0 WHERE datetime >= '2024-06-01' ORDER BY datetime")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if f.Len() != 3 {
		t.Fatalf("rows: got %d, want 3", f.Len())
	}
	if !f.Index[1].Equal(base.Add(time.Minute)) {
		t.Errorf("index[1]: got %v", f.Index[1])
	}
	wsU, ok := f.Column("ws_u")
	if !ok || wsU[2] == nil || *wsU[2] != 2 {
		t.Errorf("ws_u: got %v", wsU)
	}
	vt, _ := f.Column("vtempa")
	if vt[0] != nil {
		t.Errorf("vtempa should be null, got %v", *vt[0])
	}
}

func TestQuery_UnknownDatabase(t *testing.T) {
	repo := NewRepository(mapPools{}, "sqlite3")
	if _, err := repo.Query(context.Background(), "nope", "SELECT 1"); err == nil {
		t.Fatal("expected error for unknown database")
	}
}

func TestQuery_SQLError(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(mapPools{"borden": db}, "sqlite3")
	if _, err := repo.Query(context.Background(), "borden", "SELECT datetime FROM missing_table"); err == nil {
		t.Fatal("expected error for missing table")
	}
}

func TestFirstEntry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(mapPools{"borden": db}, "sqlite3")
	ctx := context.Background()

	if _, err := repo.FirstEntry(ctx, "borden", "bor__csat_m_v0"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty table: got %v, want ErrNotFound", err)
	}

	for _, ts := range []string{"2024-03-05 00:01:00", "2023-11-20 08:30:00", "2024-01-01 00:00:00"} {
		if _, err := db.Exec("INSERT INTO bor__csat_m_v0 (datetime, ws_u) VALUES (?, 1)", ts); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	got, err := repo.FirstEntry(ctx, "borden", "bor__csat_m_v0")
	if err != nil {
		t.Fatalf("FirstEntry: %v", err)
	}
	want := time.Date(2023, 11, 20, 8, 30, 0, 0, time.UTC)
	if !got.Datetime.Equal(want) {
		t.Errorf("FirstEntry: got %v, want %v", got.Datetime, want)
	}
	if got.Database != "borden" {
		t.Errorf("database: got %q", got.Database)
	}
}

func TestFirstEntry_InvalidTable(t *testing.T) {
	repo := NewRepository(mapPools{}, "sqlite3")
	if _, err := repo.FirstEntry(context.Background(), "borden", "x; DROP TABLE y"); err == nil {
		t.Fatal("expected error for invalid table name")
	}
}

func TestInsertMeasurement_InvalidNames(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(mapPools{"borden": db}, "sqlite3")
	ctx := context.Background()
	now := time.Now()

	bad := []types.Measurement{
		{Database: "borden", Table: "bad-table", Datetime: now, Values: map[string]*float64{"ws_u": f64(1)}},
		{Database: "borden", Table: "bor__csat_m_v0", Datetime: now, Values: map[string]*float64{"ws_u)--": f64(1)}},
	}
	for _, m := range bad {
		if err := repo.InsertMeasurement(ctx, m); err == nil {
			t.Errorf("InsertMeasurement(%s %v): expected error", m.Table, m.Values)
		}
	}
}

func TestPlaceholders(t *testing.T) {
	pg := &repositoryImpl{driver: "pgx"}
	if got := fmt.Sprint(pg.placeholders(3)); got != "[$1 $2 $3]" {
		t.Errorf("pgx placeholders: got %s", got)
	}
	lite := &repositoryImpl{driver: "sqlite3"}
	if got := fmt.Sprint(lite.placeholders(2)); got != "[? ?]" {
		t.Errorf("sqlite placeholders: got %s", got)
	}
}
