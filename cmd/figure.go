package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"swapit-dashboard/internal/app"
	"swapit-dashboard/internal/catalog"
	"swapit-dashboard/internal/chart"
	"swapit-dashboard/internal/modules/dashboard/types"
)

type figureFlags struct {
	query       string
	dashboard   string
	databaseEnv string
	start       string
	end         string
	out         string
	json        bool
}

func newFigureCmd(c *cli) *cobra.Command {
	var f figureFlags
	cmd := &cobra.Command{
		Use:   "figure",
		Short: "Run one named query and write the chart as HTML or JSON",
		Example: `  swapit-dash figure --query plot_1 --database-env DATAHUB_BORDEN_DBNAME \
      --start 2024-06-01 --end 2024-06-07 --out plot_1.html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.figure(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.query, "query", "", "named query (a <name>.sql template with a plotting_inputs.txt row)")
	fl.StringVar(&f.dashboard, "dashboard", "", "read from this dashboard's database")
	fl.StringVar(&f.databaseEnv, "database-env", "", "environment variable holding the database name")
	fl.StringVar(&f.start, "start", "", "first day, YYYY-MM-DD")
	fl.StringVar(&f.end, "end", "", "last day, YYYY-MM-DD")
	fl.StringVarP(&f.out, "out", "o", "", "output file (default stdout)")
	fl.BoolVar(&f.json, "json", false, "write the figure as JSON instead of HTML")
	_ = cmd.MarkFlagRequired("query")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	cmd.MarkFlagsMutuallyExclusive("dashboard", "database-env")
	cmd.MarkFlagsOneRequired("dashboard", "database-env")
	return cmd
}

func (c *cli) figure(cmd *cobra.Command, f figureFlags) error {
	start, err := time.Parse(catalog.DateLayout, f.start)
	if err != nil {
		return fmt.Errorf("invalid --start %q (expected YYYY-MM-DD)", f.start)
	}
	end, err := time.Parse(catalog.DateLayout, f.end)
	if err != nil {
		return fmt.Errorf("invalid --end %q (expected YYYY-MM-DD)", f.end)
	}

	deps, err := app.NewDeps(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	var database string
	if f.dashboard != "" {
		d, err := deps.Service.Dashboard(f.dashboard)
		if err != nil {
			return err
		}
		if database, err = d.DatabaseName(); err != nil {
			return err
		}
	} else if database, err = deps.Service.DatabaseForEnv(f.databaseEnv); err != nil {
		return err
	}

	fig, err := deps.Service.Figure(cmd.Context(), types.ChartRequest{
		Query:    f.query,
		Database: database,
		Start:    start,
		End:      end,
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if f.out != "" {
		file, err := os.Create(f.out)
		if err != nil {
			return err
		}
		defer func() {
			if err := file.Close(); err != nil {
				c.logger.Error("close output", "path", f.out, "error", err)
			}
		}()
		w = file
	}
	return writeFigure(w, fig, f.json)
}

func writeFigure(w io.Writer, fig *chart.Figure, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(fig)
	}
	return chart.ToECharts(fig, chart.RenderOptions{Height: "600px"}).Render(w)
}
