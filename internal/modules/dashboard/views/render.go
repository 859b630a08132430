package views

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"strings"
	"sync/atomic"

	"swapit-dashboard/internal/catalog"
	"swapit-dashboard/internal/chart"
	"swapit-dashboard/internal/modules/dashboard/types"
)

var pageTmpl *template.Template

// chartSeq makes chart DOM ids unique across HTMX swaps; go-echarts declares
// one global per chart id.
var chartSeq atomic.Uint64

// loadTemplatesFromFS loads page templates from the given fs and dir.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	pageTmpl, err = template.ParseFS(sub, "*.html", "partials/*.html")
	return err
}

// LoadTemplates loads the embedded templates. Call during startup before
// serving requests.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

type IndexData struct {
	Dashboards []types.DashboardSummary
}

// PlotView is one rendered chart, or the error that replaced it.
type PlotView struct {
	ID      string
	Heading string
	Element template.HTML
	Script  template.HTML
	Error   string
}

type DashboardData struct {
	ID          string
	Title       string
	Description string
	// Dates are YYYY-MM-DD; Min is empty when the earliest entry is unknown.
	Start string
	End   string
	Min   string
	Max   string
	Plots []PlotView
}

// NewPlotView renders fig as an embeddable go-echarts snippet. A non-nil err
// produces an inline error instead.
func NewPlotView(dashboardID, plotID, heading string, fig *chart.Figure, err error) PlotView {
	v := PlotView{ID: plotID, Heading: heading}
	if err != nil {
		v.Error = plotErrorMessage(err)
		return v
	}
	line := chart.ToECharts(fig, chart.RenderOptions{ChartID: chartID(dashboardID, plotID)})
	snippet := line.RenderSnippet()
	v.Element = template.HTML(snippet.Element)
	v.Script = template.HTML(snippet.Script)
	return v
}

func plotErrorMessage(err error) string {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return "This plot's query is not configured."
	case errors.Is(err, catalog.ErrConfig), errors.Is(err, chart.ErrConfig):
		return "This plot is misconfigured: " + err.Error()
	default:
		return "Data could not be loaded for this plot."
	}
}

func chartID(dashboardID, plotID string) string {
	r := strings.NewReplacer("-", "_")
	return fmt.Sprintf("chart_%s_%s_%d", r.Replace(dashboardID), r.Replace(plotID), chartSeq.Add(1))
}

func RenderIndex(w io.Writer, data *IndexData) error {
	if pageTmpl == nil {
		return errors.New("page templates not loaded: call views.LoadTemplates during startup")
	}
	return pageTmpl.ExecuteTemplate(w, "index.html", data)
}

func RenderDashboard(w io.Writer, data *DashboardData) error {
	if pageTmpl == nil {
		return errors.New("page templates not loaded: call views.LoadTemplates during startup")
	}
	return pageTmpl.ExecuteTemplate(w, "dashboard.html", data)
}

// RenderPlotsPartial executes only the plots fragment, for HTMX swaps.
func RenderPlotsPartial(w io.Writer, plots []PlotView) error {
	if pageTmpl == nil {
		return errors.New("page templates not loaded: call views.LoadTemplates during startup")
	}
	return pageTmpl.ExecuteTemplate(w, "plots", plots)
}
