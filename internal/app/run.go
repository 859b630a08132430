package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"swapit-dashboard/internal/config"
	"swapit-dashboard/internal/httpapi"
	"swapit-dashboard/internal/modules/dashboard"
	dashboardviews "swapit-dashboard/internal/modules/dashboard/views"
	"swapit-dashboard/internal/mqtt"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"staticDir", cfg.StaticDir,
		"sqlDir", cfg.SQLDir,
		"dashboardsFile", cfg.DashboardsFile,
		"dbDriver", cfg.Driver,
		"dbMaxOpenConns", cfg.MaxOpenConns,
		"dbMaxIdleConns", cfg.MaxIdleConns,
		"dbConnMaxLifetime", cfg.ConnMaxLifetime,
		"dbQueryTimeout", cfg.QueryTimeout,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
	)

	deps, err := NewDeps(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer deps.Close()

	if cfg.Driver == "sqlite3" {
		if err := deps.Migrate(ctx, cfg); err != nil {
			return err
		}
	}
	if err := deps.OpenAll(); err != nil {
		return err
	}
	slog.Info("database connection successful", "databases", deps.Registry.Names())

	if err := dashboardviews.LoadTemplates(); err != nil {
		return err
	}

	mux := httpapi.NewMux(deps.Registry, cfg.StaticDir, deps.Gatherer)
	dashboard.RegisterFeature(mux, deps.Service)

	var subscriber *mqtt.Subscriber
	if cfg.MQTTEnabled() {
		subscriber = mqtt.NewSubscriber(cfg, slog.Default())
		// Handler first: the broker may deliver queued messages right after CONNACK.
		dashboard.RegisterIngest(subscriber, deps.Service, slog.Default())

		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = subscriber.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	}

	srv := httpapi.NewServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if subscriber != nil {
		slog.Info("mqtt disconnecting")
		subscriber.Disconnect()
	}

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
