package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"swapit-dashboard/internal/catalog"
	"swapit-dashboard/internal/chart"
	"swapit-dashboard/internal/config"
	"swapit-dashboard/internal/metrics"
	"swapit-dashboard/internal/modules/dashboard/definitions"
	"swapit-dashboard/internal/modules/dashboard/repository"
	"swapit-dashboard/internal/modules/dashboard/types"
)

var (
	ErrInvalidRange     = errors.New("start date is after end date")
	ErrUnknownDashboard = errors.New("unknown dashboard")
	ErrTableNotAllowed  = errors.New("table not declared by any dashboard")
	ErrEmptyMeasurement = errors.New("measurement has no values")
	ErrUnknownDatabase  = errors.New("database not declared by any dashboard")
)

type Service struct {
	catalog      *catalog.Catalog
	repository   repository.ChartRepository
	dashboards   *definitions.File
	metrics      *metrics.Metrics
	logger       *slog.Logger
	queryTimeout time.Duration
}

type Options struct {
	Catalog      *catalog.Catalog
	Repository   repository.ChartRepository
	Dashboards   *definitions.File
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	QueryTimeout time.Duration
}

func NewService(o Options) *Service {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog:      o.Catalog,
		repository:   o.Repository,
		dashboards:   o.Dashboards,
		metrics:      o.Metrics,
		logger:       logger,
		queryTimeout: o.QueryTimeout,
	}
}

// Figure runs one chart request end to end. The catalog is consulted before
// the store, so an unknown query never reaches the database.
func (s *Service) Figure(ctx context.Context, req types.ChartRequest) (*chart.Figure, error) {
	q, err := s.catalog.Resolve(req.Query)
	if err != nil {
		s.metrics.FigureDone(req.Query, outcome(err))
		return nil, err
	}
	if req.Start.After(req.End) {
		s.metrics.FigureDone(req.Query, "invalid")
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange,
			req.Start.Format(catalog.DateLayout), req.End.Format(catalog.DateLayout))
	}
	sqlText, err := catalog.Render(q, req.Start, req.End)
	if err != nil {
		s.metrics.FigureDone(req.Query, outcome(err))
		return nil, err
	}

	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	began := time.Now()
	f, err := s.repository.Query(ctx, req.Database, sqlText)
	if err != nil {
		s.metrics.FigureDone(req.Query, "error")
		return nil, fmt.Errorf("query %s: %w", req.Query, err)
	}
	s.metrics.ObserveQuery(req.Query, time.Since(began), f.Len())
	s.logger.Debug("chart query executed",
		"query", req.Query,
		"database", req.Database,
		"start", req.Start.Format(catalog.DateLayout),
		"end", req.End.Format(catalog.DateLayout),
		"rows", f.Len(),
		"duration", time.Since(began),
	)

	if f.Empty() {
		s.metrics.FigureDone(req.Query, "empty")
		return chart.Empty(q.Metadata), nil
	}
	fig, err := chart.Build(f, q.Metadata)
	if err != nil {
		s.metrics.FigureDone(req.Query, outcome(err))
		return nil, fmt.Errorf("query %s: %w", req.Query, err)
	}
	s.metrics.FigureDone(req.Query, "ok")
	return fig, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return "not_found"
	case errors.Is(err, catalog.ErrConfig), errors.Is(err, chart.ErrConfig):
		return "config_error"
	default:
		return "error"
	}
}

// PlotResult is one plot of a dashboard page. Err is set instead of Figure
// when that plot failed.
type PlotResult struct {
	Plot   definitions.Plot
	Figure *chart.Figure
	Err    error
}

// DashboardFigures computes every plot of the dashboard for [start, end].
// A failing plot does not prevent the others from rendering.
func (s *Service) DashboardFigures(ctx context.Context, d definitions.Dashboard, start, end time.Time) []PlotResult {
	out := make([]PlotResult, len(d.Plots))
	database, err := d.DatabaseName()
	if err != nil {
		s.logger.Error("dashboard database unavailable", "dashboard", d.ID, "error", err)
		for i, p := range d.Plots {
			out[i] = PlotResult{Plot: p, Err: err}
		}
		return out
	}
	var wg sync.WaitGroup
	for i, p := range d.Plots {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fig, err := s.Figure(ctx, types.ChartRequest{
				Query:    p.Query,
				Database: database,
				Start:    start,
				End:      end,
			})
			if err != nil {
				s.logger.Error("plot failed", "dashboard", d.ID, "plot", p.ID, "error", err)
			}
			out[i] = PlotResult{Plot: p, Figure: fig, Err: err}
		}()
	}
	wg.Wait()
	return out
}

func (s *Service) Queries() ([]string, error) {
	return s.catalog.Names()
}

func (s *Service) Dashboards() []types.DashboardSummary {
	out := make([]types.DashboardSummary, 0, len(s.dashboards.Dashboards))
	for _, d := range s.dashboards.Dashboards {
		out = append(out, types.DashboardSummary{
			ID:          d.ID,
			Title:       d.Title,
			Description: d.Description,
			Plots:       len(d.Plots),
		})
	}
	return out
}

func (s *Service) Dashboard(id string) (definitions.Dashboard, error) {
	d, ok := s.dashboards.Find(id)
	if !ok {
		return definitions.Dashboard{}, fmt.Errorf("%w: %q", ErrUnknownDashboard, id)
	}
	return d, nil
}

// DatabaseForEnv resolves a database_env key. Only keys used by some
// dashboard are accepted, so callers cannot read arbitrary variables.
func (s *Service) DatabaseForEnv(key string) (string, error) {
	for _, d := range s.dashboards.Dashboards {
		if d.DatabaseEnv != "" && d.DatabaseEnv == key {
			return config.DatabaseName(key)
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDatabase, key)
}

// FirstEntry returns the earliest datetime across the dashboard's tables.
// Empty tables are skipped; repository.ErrNotFound means no table has data.
func (s *Service) FirstEntry(ctx context.Context, id string) (types.FirstEntry, error) {
	d, err := s.Dashboard(id)
	if err != nil {
		return types.FirstEntry{}, err
	}
	database, err := d.DatabaseName()
	if err != nil {
		return types.FirstEntry{}, err
	}

	var first types.FirstEntry
	for _, table := range d.Tables {
		e, err := s.repository.FirstEntry(ctx, database, table)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return types.FirstEntry{}, err
		}
		if first.Datetime.IsZero() || e.Datetime.Before(first.Datetime) {
			first = e
		}
	}
	if first.Datetime.IsZero() {
		return types.FirstEntry{}, repository.ErrNotFound
	}
	first.DashboardID = d.ID
	return first, nil
}

// MinDate is the earliest selectable date for the dashboard's picker: the
// configured min_date, else the first stored entry. ok is false when neither
// is known.
func (s *Service) MinDate(ctx context.Context, d definitions.Dashboard) (time.Time, bool) {
	if d.MinDate != "" {
		t, err := time.Parse(catalog.DateLayout, d.MinDate)
		return t, err == nil
	}
	e, err := s.FirstEntry(ctx, d.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("first entry lookup failed", "dashboard", d.ID, "error", err)
		}
		return time.Time{}, false
	}
	return e.Datetime, true
}

// Record stores one ingested measurement after checking that some dashboard
// declares its table.
func (s *Service) Record(ctx context.Context, m types.Measurement) error {
	if len(m.Values) == 0 {
		s.metrics.MeasurementDone("rejected")
		return ErrEmptyMeasurement
	}
	if !s.dashboards.HasTable(m.Database, m.Table) {
		s.metrics.MeasurementDone("rejected")
		return fmt.Errorf("%w: %s.%s", ErrTableNotAllowed, m.Database, m.Table)
	}
	if err := s.repository.InsertMeasurement(ctx, m); err != nil {
		s.metrics.MeasurementDone("error")
		return err
	}
	s.metrics.MeasurementDone("stored")
	return nil
}
