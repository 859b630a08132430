package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"swapit-dashboard/internal/app"
	"swapit-dashboard/internal/config"
	"swapit-dashboard/internal/logging"
)

const appName = "swapit-dash"

// Default version is "dev" if not set with -ldflags "-X main.version=..."
var version = "dev"

type cli struct {
	cfg    config.Config
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           appName,
		Short:         "Environmental sensor dashboards for the SWAPIT datahub",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
	root.AddCommand(
		newServeCmd(c),
		newMigrateCmd(c),
		newFigureCmd(c),
	)
	return root
}

func (c *cli) setup() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	c.cfg = cfg
	c.logger = logging.New(cfg, version, appName)
	slog.SetDefault(c.logger)
	return nil
}

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard web service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	slog.Info("starting",
		"app", appName,
		"version", version,
		"env", c.cfg.AppEnv,
		"log_level", c.cfg.LogLevel.String(),
	)
	err := app.Run(ctx, c.cfg)
	slog.Info("shutting down")
	return err
}

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the instrument tables in every local SQLite dashboard database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := app.NewDeps(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer deps.Close()
			return deps.Migrate(cmd.Context(), c.cfg)
		},
	}
}
