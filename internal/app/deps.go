package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"swapit-dashboard/internal/catalog"
	"swapit-dashboard/internal/config"
	"swapit-dashboard/internal/db"
	"swapit-dashboard/internal/metrics"
	"swapit-dashboard/internal/migrate"
	"swapit-dashboard/internal/modules/dashboard/definitions"
	"swapit-dashboard/internal/modules/dashboard/repository"
	"swapit-dashboard/internal/modules/dashboard/service"
)

// Deps are the components shared by the HTTP server and the CLI commands.
type Deps struct {
	Dashboards *definitions.File
	Registry   *db.Registry
	Gatherer   *prometheus.Registry
	Metrics    *metrics.Metrics
	Service    *service.Service

	logger *slog.Logger
}

// NewDeps loads the dashboard definitions and wires the chart pipeline.
// Databases are opened lazily by the registry.
func NewDeps(cfg config.Config, logger *slog.Logger) (*Deps, error) {
	if logger == nil {
		logger = slog.Default()
	}
	defs, err := definitions.Load(cfg.DashboardsFile)
	if err != nil {
		return nil, err
	}

	gatherer := metrics.NewRegistry()
	m := metrics.New(gatherer)
	registry := db.NewRegistry(cfg)

	svc := service.NewService(service.Options{
		Catalog:      catalog.New(os.DirFS(cfg.SQLDir)),
		Repository:   repository.NewRepository(registry, cfg.Driver),
		Dashboards:   defs,
		Metrics:      m,
		Logger:       logger,
		QueryTimeout: cfg.QueryTimeout,
	})
	return &Deps{
		Dashboards: defs,
		Registry:   registry,
		Gatherer:   gatherer,
		Metrics:    m,
		Service:    svc,
		logger:     logger,
	}, nil
}

func (d *Deps) Close() {
	if err := d.Registry.Close(); err != nil {
		slog.Error("db close", "error", err)
	}
}

// DatabaseNames lists the distinct databases the dashboards read from.
// A dashboard whose database variable is unset is logged and left out; its
// plots report the error when rendered.
func (d *Deps) DatabaseNames() []string {
	seen := make(map[string]bool)
	var out []string
	for _, dash := range d.Dashboards.Dashboards {
		name, err := dash.DatabaseName()
		if err != nil {
			d.logger.Warn("dashboard database unavailable", "dashboard", dash.ID, "error", err)
			continue
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// OpenAll opens every resolvable dashboard database so that an unreachable
// store fails at startup rather than on the first request.
func (d *Deps) OpenAll() error {
	for _, name := range d.DatabaseNames() {
		if _, err := d.Registry.Get(name); err != nil {
			return err
		}
	}
	return nil
}

// Migrate applies the embedded schema to every dashboard database. Only
// sqlite3 stores are migrated.
func (d *Deps) Migrate(ctx context.Context, cfg config.Config) error {
	if cfg.Driver != "sqlite3" {
		return fmt.Errorf("migrations only apply to the sqlite3 driver, got %q", cfg.Driver)
	}
	for _, name := range d.DatabaseNames() {
		conn, err := d.Registry.Get(name)
		if err != nil {
			return err
		}
		if err := migrate.Run(ctx, conn); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
		slog.Info("database migrated", "database", name)
	}
	return nil
}
