package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"swapit-dashboard/internal/catalog"
	"swapit-dashboard/internal/chart"
	"swapit-dashboard/internal/config"
	"swapit-dashboard/internal/db"
	"swapit-dashboard/internal/frame"
	"swapit-dashboard/internal/metrics"
	"swapit-dashboard/internal/modules/dashboard/definitions"
	"swapit-dashboard/internal/modules/dashboard/repository"
	"swapit-dashboard/internal/modules/dashboard/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const properties = `query;plot_title;y_title_1;y_title_2;axis_list;secondary_y_flag
plot_1;Borden CR3000 Temperatures;Temperature (C);;;False
plot_2;Borden CSAT;Winds (m/s);Virt Temp (C);[False, False, True];True
bad_axes;Broken;Winds (m/s);Temp;[False];True
`

func testCatalog() *catalog.Catalog {
	return catalog.New(fstest.MapFS{
		catalog.PropertiesFile: {Data: []byte(properties)},
		"plot_1.sql":           {Data: []byte(`SELECT datetime, air_temp_2m, air_temp_16m FROM bor__cr3000_m_v0 WHERE datetime >= '{}' AND datetime < '{}' ORDER BY datetime`)},
		"plot_2.sql":           {Data: []byte(`SELECT datetime, ws_u AS u, ws_v AS v, vtempa AS temp FROM bor__csat_m_v0 WHERE datetime >= '{}' AND datetime < '{}' ORDER BY datetime`)},
		"bad_axes.sql":         {Data: []byte(`SELECT datetime, ws_u, ws_v FROM bor__csat_m_v0 WHERE datetime >= '{}' AND datetime < '{}'`)},
	})
}

const dashboardsYAML = `
dashboards:
  - id: borden
    title: BORDEN DASHBOARD
    database: borden
    tables: [bor__csat_m_v0, bor__cr3000_m_v0]
    plots:
      - {id: plot_1, heading: CR3000, query: plot_1}
      - {id: plot_2, heading: CSAT, query: plot_2}
      - {id: missing, heading: Missing, query: plot_9}
`

func testDashboards(t *testing.T) *definitions.File {
	t.Helper()
	f, err := definitions.Parse([]byte(dashboardsYAML))
	require.NoError(t, err)
	return f
}

func f64(v float64) *float64 { return &v }

// fakeRepo serves a fixed frame and counts store calls.
type fakeRepo struct {
	mu       sync.Mutex
	frame    *frame.Frame
	err      error
	queries  atomic.Int32
	lastSQL  string
	first    map[string]types.FirstEntry
	inserted []types.Measurement
}

func (r *fakeRepo) Query(_ context.Context, _ string, q string) (*frame.Frame, error) {
	r.queries.Add(1)
	r.mu.Lock()
	r.lastSQL = q
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.frame, nil
}

func (r *fakeRepo) FirstEntry(_ context.Context, database, table string) (types.FirstEntry, error) {
	e, ok := r.first[table]
	if !ok {
		return types.FirstEntry{}, repository.ErrNotFound
	}
	e.Database = database
	return e, nil
}

func (r *fakeRepo) InsertMeasurement(_ context.Context, m types.Measurement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserted = append(r.inserted, m)
	return nil
}

func csatFrame() *frame.Frame {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return &frame.Frame{
		Index:   []time.Time{base, base.Add(time.Minute)},
		Columns: []string{"u", "v", "temp"},
		Values: [][]*float64{
			{f64(1), f64(2)},
			{f64(3), nil},
			{f64(20), f64(21)},
		},
	}
}

func newTestService(t *testing.T, repo repository.ChartRepository, m *metrics.Metrics) *Service {
	t.Helper()
	return NewService(Options{
		Catalog:      testCatalog(),
		Repository:   repo,
		Dashboards:   testDashboards(t),
		Metrics:      m,
		QueryTimeout: time.Second,
	})
}

func day(s string) time.Time {
	t, err := time.Parse(catalog.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func req(query, start, end string) types.ChartRequest {
	return types.ChartRequest{Query: query, Database: "borden", Start: day(start), End: day(end)}
}

func TestFigure(t *testing.T) {
	repo := &fakeRepo{frame: csatFrame()}
	s := newTestService(t, repo, nil)

	fig, err := s.Figure(context.Background(), req("plot_2", "2024-06-01", "2024-06-07"))
	require.NoError(t, err)
	assert.Equal(t, "Borden CSAT", fig.Title)
	assert.Equal(t, chart.XTitle, fig.XTitle)
	assert.Equal(t, "Virt Temp (C)", fig.Y2Title)
	assert.Equal(t, []string{"u", "v", "temp"}, fig.SeriesNames())
	assert.Equal(t, chart.AxisSecondary, fig.Traces[2].Axis)
	assert.Contains(t, repo.lastSQL, "datetime >= '2024-06-01' AND datetime < '2024-06-08'")
}

func TestFigure_UnknownQueryNeverHitsStore(t *testing.T) {
	repo := &fakeRepo{frame: csatFrame()}
	s := newTestService(t, repo, nil)

	_, err := s.Figure(context.Background(), req("plot_9", "2024-06-01", "2024-06-07"))
	require.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Zero(t, repo.queries.Load())
}

func TestFigure_InvalidRange(t *testing.T) {
	repo := &fakeRepo{frame: csatFrame()}
	s := newTestService(t, repo, nil)

	_, err := s.Figure(context.Background(), req("plot_2", "2024-06-08", "2024-06-07"))
	require.ErrorIs(t, err, ErrInvalidRange)
	assert.Zero(t, repo.queries.Load())

	_, err = s.Figure(context.Background(), req("plot_2", "2024-06-07", "2024-06-07"))
	require.NoError(t, err, "single-day range is valid")
}

func TestFigure_EmptyResultIsZeroTraces(t *testing.T) {
	repo := &fakeRepo{frame: &frame.Frame{Columns: []string{"u"}, Values: [][]*float64{{}}}}
	s := newTestService(t, repo, nil)

	fig, err := s.Figure(context.Background(), req("plot_2", "2024-06-01", "2024-06-07"))
	require.NoError(t, err)
	assert.Empty(t, fig.Traces)
	assert.Equal(t, "Borden CSAT", fig.Title)
}

func TestFigure_AxisListMismatch(t *testing.T) {
	repo := &fakeRepo{frame: csatFrame()}
	s := newTestService(t, repo, nil)

	_, err := s.Figure(context.Background(), req("bad_axes", "2024-06-01", "2024-06-07"))
	require.ErrorIs(t, err, chart.ErrConfig)
}

func TestFigure_StoreError(t *testing.T) {
	repo := &fakeRepo{err: errors.New("connection refused")}
	s := newTestService(t, repo, nil)

	_, err := s.Figure(context.Background(), req("plot_1", "2024-06-01", "2024-06-07"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFigure_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := newTestService(t, &fakeRepo{frame: csatFrame()}, m)
	ctx := context.Background()

	_, _ = s.Figure(ctx, req("plot_2", "2024-06-01", "2024-06-07"))
	_, _ = s.Figure(ctx, req("plot_9", "2024-06-01", "2024-06-07"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Figures.WithLabelValues("plot_2", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Figures.WithLabelValues("plot_9", "not_found")))
}

// seedCR3000 creates a sqlite database with one reading per hour over ten days.
func seedCR3000(t *testing.T) *db.Registry {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	_, err = conn.Exec(`CREATE TABLE bor__cr3000_m_v0 (datetime TEXT NOT NULL, air_temp_2m REAL, air_temp_16m REAL)`)
	require.NoError(t, err)

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 24*10; h++ {
		ts := base.Add(time.Duration(h) * time.Hour).Format("2006-01-02 15:04:05")
		_, err := conn.Exec(`INSERT INTO bor__cr3000_m_v0 VALUES (?, ?, ?)`, ts, float64(h%24), nil)
		require.NoError(t, err)
	}

	reg := db.NewRegistry(config.Config{})
	reg.Register("borden", conn)
	t.Cleanup(func() { assert.NoError(t, reg.Close()) })
	return reg
}

func TestFigure_EndDateInclusive(t *testing.T) {
	reg := seedCR3000(t)
	s := newTestService(t, repository.NewRepository(reg, "sqlite3"), nil)
	ctx := context.Background()

	fig, err := s.Figure(ctx, req("plot_1", "2024-06-03", "2024-06-03"))
	require.NoError(t, err)
	assert.Equal(t, 24, fig.Points(), "a single day returns every reading of that day")

	// The seeded data ends on 2024-06-10 23:00.
	fig, err = s.Figure(ctx, req("plot_1", "2024-06-09", "2024-06-10"))
	require.NoError(t, err)
	require.Equal(t, 48, fig.Points())
	x := fig.Traces[0].X
	assert.Equal(t, time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC), x[0])
	assert.Equal(t, time.Date(2024, 6, 10, 23, 0, 0, 0, time.UTC), x[len(x)-1])
}

func TestFigure_DeterministicAndMonotonic(t *testing.T) {
	reg := seedCR3000(t)
	s := newTestService(t, repository.NewRepository(reg, "sqlite3"), nil)
	ctx := context.Background()

	a, err := s.Figure(ctx, req("plot_1", "2024-06-02", "2024-06-04"))
	require.NoError(t, err)
	b, err := s.Figure(ctx, req("plot_1", "2024-06-02", "2024-06-04"))
	require.NoError(t, err)
	assert.Equal(t, a.SeriesNames(), b.SeriesNames())
	assert.Equal(t, a.Points(), b.Points())
	assert.Equal(t, []string{"air_temp_2m", "air_temp_16m"}, a.SeriesNames())

	ranges := [][2]string{
		{"2024-06-03", "2024-06-03"},
		{"2024-06-03", "2024-06-05"},
		{"2024-06-02", "2024-06-05"},
		{"2024-05-01", "2024-07-01"},
	}
	prev := -1
	for _, r := range ranges {
		fig, err := s.Figure(ctx, req("plot_1", r[0], r[1]))
		require.NoError(t, err)
		n := 0
		if len(fig.Traces) > 0 {
			n = len(fig.Traces[0].X)
		}
		assert.GreaterOrEqual(t, n, prev, "range %v", r)
		prev = n
	}
	assert.Equal(t, 240, prev)

	empty, err := s.Figure(ctx, req("plot_1", "2023-01-01", "2023-01-31"))
	require.NoError(t, err)
	assert.Empty(t, empty.Traces)
}

func TestDashboardFigures_PartialFailure(t *testing.T) {
	s := newTestService(t, &fakeRepo{frame: csatFrame()}, nil)
	d, err := s.Dashboard("borden")
	require.NoError(t, err)

	results := s.DashboardFigures(context.Background(), d, day("2024-06-01"), day("2024-06-07"))
	require.Len(t, results, 3)

	// plot_1 declares no secondary axis, so any column count is fine.
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Len(t, results[1].Figure.Traces, 3)
	assert.ErrorIs(t, results[2].Err, catalog.ErrNotFound)
	assert.Equal(t, "missing", results[2].Plot.ID)
}

func TestDashboard_Unknown(t *testing.T) {
	s := newTestService(t, &fakeRepo{}, nil)
	_, err := s.Dashboard("nope")
	assert.ErrorIs(t, err, ErrUnknownDashboard)
}

func TestDashboards(t *testing.T) {
	s := newTestService(t, &fakeRepo{}, nil)
	got := s.Dashboards()
	require.Len(t, got, 1)
	assert.Equal(t, types.DashboardSummary{ID: "borden", Title: "BORDEN DASHBOARD", Plots: 3}, got[0])
}

func TestQueries(t *testing.T) {
	s := newTestService(t, &fakeRepo{}, nil)
	names, err := s.Queries()
	require.NoError(t, err)
	assert.Equal(t, []string{"plot_1", "plot_2", "bad_axes"}, names)
}

func TestFirstEntry(t *testing.T) {
	early := time.Date(2023, 11, 20, 8, 30, 0, 0, time.UTC)
	repo := &fakeRepo{first: map[string]types.FirstEntry{
		"bor__csat_m_v0":   {Datetime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		"bor__cr3000_m_v0": {Datetime: early},
	}}
	s := newTestService(t, repo, nil)

	e, err := s.FirstEntry(context.Background(), "borden")
	require.NoError(t, err)
	assert.Equal(t, early, e.Datetime)
	assert.Equal(t, "borden", e.DashboardID)
	assert.Equal(t, "borden", e.Database)

	got, ok := s.MinDate(context.Background(), s.dashboards.Dashboards[0])
	assert.True(t, ok)
	assert.Equal(t, early, got)
}

func TestFirstEntry_NoData(t *testing.T) {
	s := newTestService(t, &fakeRepo{}, nil)
	_, err := s.FirstEntry(context.Background(), "borden")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, ok := s.MinDate(context.Background(), s.dashboards.Dashboards[0])
	assert.False(t, ok)
}

func TestMinDate_Configured(t *testing.T) {
	s := newTestService(t, &fakeRepo{}, nil)
	d := definitions.Dashboard{ID: "x", MinDate: "2024-01-01"}
	got, ok := s.MinDate(context.Background(), d)
	assert.True(t, ok)
	assert.Equal(t, day("2024-01-01"), got)
}

func TestRecord(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	repo := &fakeRepo{}
	s := newTestService(t, repo, m)
	ctx := context.Background()
	now := time.Now().UTC()

	ok := types.Measurement{Database: "borden", Table: "bor__csat_m_v0", Datetime: now, Values: map[string]*float64{"ws_u": f64(1.5)}}
	require.NoError(t, s.Record(ctx, ok))
	require.Len(t, repo.inserted, 1)

	tests := []struct {
		name string
		m    types.Measurement
		want error
	}{
		{name: "undeclared table", m: types.Measurement{Database: "borden", Table: "secrets", Datetime: now, Values: ok.Values}, want: ErrTableNotAllowed},
		{name: "other database", m: types.Measurement{Database: "hwy401", Table: "bor__csat_m_v0", Datetime: now, Values: ok.Values}, want: ErrTableNotAllowed},
		{name: "no values", m: types.Measurement{Database: "borden", Table: "bor__csat_m_v0", Datetime: now}, want: ErrEmptyMeasurement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.Record(ctx, tt.m), tt.want)
		})
	}
	assert.Len(t, repo.inserted, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Measurements.WithLabelValues("stored")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Measurements.WithLabelValues("rejected")))
}

func ExampleService_Figure() {
	s := NewService(Options{
		Catalog:    testCatalog(),
		Repository: &fakeRepo{frame: csatFrame()},
		Dashboards: &definitions.File{},
	})
	fig, err := s.Figure(context.Background(), req("plot_2", "2024-06-01", "2024-06-07"))
	if err != nil {
		fmt.Println(err)
		return
	}
	for _, tr := range fig.Traces {
		fmt.Println(tr.Name, tr.Axis, tr.Color)
	}
	// Output:
	// u 0 black
	// v 0 blue
	// temp 1 red
}

func TestDatabaseForEnv(t *testing.T) {
	f, err := definitions.Parse([]byte(`
dashboards:
  - id: borden
    title: Borden
    database_env: DATAHUB_BORDEN_DBNAME
    plots: [{id: p, query: plot_1}]
`))
	require.NoError(t, err)
	s := NewService(Options{Catalog: testCatalog(), Repository: &fakeRepo{}, Dashboards: f})

	t.Setenv("DATAHUB_BORDEN_DBNAME", "borden_db")
	name, err := s.DatabaseForEnv("DATAHUB_BORDEN_DBNAME")
	require.NoError(t, err)
	assert.Equal(t, "borden_db", name)

	t.Setenv("HOME", "/root")
	_, err = s.DatabaseForEnv("HOME")
	assert.ErrorIs(t, err, ErrUnknownDatabase)
}
