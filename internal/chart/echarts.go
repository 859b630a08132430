package chart

import (
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderOptions controls the size and DOM id of a rendered chart.
type RenderOptions struct {
	ChartID string
	Width   string
	Height  string
}

// ToECharts converts fig into a go-echarts line chart. NULL values become
// gaps in the line.
func ToECharts(fig *Figure, ro RenderOptions) *charts.Line {
	if ro.Width == "" {
		ro.Width = "100%"
	}
	if ro.Height == "" {
		ro.Height = "420px"
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: fig.Title,
			ChartID:   ro.ChartID,
			Width:     ro.Width,
			Height:    ro.Height,
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fig.Title,
			Left:  "center",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Type: "time",
			Name: fig.XTitle,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type: "value",
			Name: fig.YTitle,
		}),
		charts.WithLegendOpts(opts.Legend{
			Show:   opts.Bool(true),
			Orient: "vertical",
			Left:   percent(fig.Legend.X),
			Top:    percent(1 - fig.Legend.Y),
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithDataZoomOpts(opts.DataZoom{
			Type: "inside",
		}),
	)
	if fig.Secondary {
		line.ExtendYAxis(opts.YAxis{
			Type: "value",
			Name: fig.Y2Title,
		})
	}

	for _, tr := range fig.Traces {
		line.AddSeries(tr.Name, lineData(tr),
			charts.WithLineChartOpts(opts.LineChart{
				YAxisIndex: tr.Axis,
				ShowSymbol: opts.Bool(false),
			}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: tr.Color}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: tr.Color}),
		)
	}
	return line
}

func lineData(tr Trace) []opts.LineData {
	items := make([]opts.LineData, len(tr.X))
	for i, ts := range tr.X {
		var v any = "-"
		if i < len(tr.Y) && tr.Y[i] != nil {
			v = *tr.Y[i]
		}
		items[i] = opts.LineData{Value: []any{ts.UnixMilli(), v}}
	}
	return items
}

func percent(frac float64) string {
	return fmt.Sprintf("%.0f%%", frac*100)
}
