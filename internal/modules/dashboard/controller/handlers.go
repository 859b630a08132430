package controller

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"swapit-dashboard/internal/catalog"
	"swapit-dashboard/internal/chart"
	"swapit-dashboard/internal/modules/dashboard/definitions"
	"swapit-dashboard/internal/modules/dashboard/repository"
	"swapit-dashboard/internal/modules/dashboard/service"
	"swapit-dashboard/internal/modules/dashboard/types"
	"swapit-dashboard/internal/modules/dashboard/views"
	"swapit-dashboard/internal/utils"
)

func (c *dashboardControllerImpl) handleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := views.RenderIndex(&buf, &views.IndexData{Dashboards: c.service.Dashboards()}); err != nil {
		slog.Error("index template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (c *dashboardControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := c.service.Dashboard(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	start, end := d.Range(c.now())
	data := views.DashboardData{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Start:       formatDate(start),
		End:         formatDate(end),
		Max:         formatDate(end),
	}
	if minDate, ok := c.service.MinDate(r.Context(), d); ok {
		data.Min = formatDate(minDate)
	}

	data.Plots = c.plotViews(r, d, start, end)

	var buf bytes.Buffer
	if err := views.RenderDashboard(&buf, &data); err != nil {
		slog.Error("dashboard template render failed", "dashboard", d.ID, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

// handlePlotsPartial re-renders every plot for the picked range. A missing
// bound answers 204 so HTMX leaves the current charts in place.
func (c *dashboardControllerImpl) handlePlotsPartial(w http.ResponseWriter, r *http.Request) {
	d, err := c.service.Dashboard(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	start, end, err := parseRangeQuery(r)
	if errors.Is(err, errMissingBound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	plots := c.plotViews(r, d, start, end)

	var buf bytes.Buffer
	if err := views.RenderPlotsPartial(&buf, plots); err != nil {
		slog.Error("plots partial render failed", "dashboard", d.ID, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (c *dashboardControllerImpl) plotViews(r *http.Request, d definitions.Dashboard, start, end time.Time) []views.PlotView {
	results := c.service.DashboardFigures(r.Context(), d, start, end)
	out := make([]views.PlotView, 0, len(results))
	for _, res := range results {
		out = append(out, views.NewPlotView(d.ID, res.Plot.ID, res.Plot.Heading, res.Figure, res.Err))
	}
	return out
}

func (c *dashboardControllerImpl) handleDashboards(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, c.service.Dashboards())
}

func (c *dashboardControllerImpl) handleFirstEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := c.service.FirstEntry(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, service.ErrUnknownDashboard):
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, repository.ErrNotFound):
		utils.WriteError(w, http.StatusNotFound, "no data stored for this dashboard")
		return
	case err != nil:
		slog.Error("first entry failed", "dashboard", r.PathValue("id"), "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load first entry")
		return
	}
	utils.WriteJSON(w, http.StatusOK, entry)
}

func (c *dashboardControllerImpl) handleQueries(w http.ResponseWriter, r *http.Request) {
	names, err := c.service.Queries()
	if err != nil {
		slog.Error("list queries failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to list queries")
		return
	}
	if names == nil {
		names = []string{}
	}
	utils.WriteJSON(w, http.StatusOK, names)
}

// handleFigure runs one chart request. The database is chosen by dashboard
// id or by a database_env key some dashboard declares.
func (c *dashboardControllerImpl) handleFigure(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRangeQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	database, status, err := c.resolveDatabase(r)
	if err != nil {
		utils.WriteError(w, status, err.Error())
		return
	}

	fig, err := c.service.Figure(r.Context(), types.ChartRequest{
		Query:    r.PathValue("name"),
		Database: database,
		Start:    start,
		End:      end,
	})
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, service.ErrInvalidRange):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, catalog.ErrConfig), errors.Is(err, chart.ErrConfig):
		slog.Error("figure: configuration error", "query", r.PathValue("name"), "error", err)
		utils.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	case err != nil:
		slog.Error("figure failed", "query", r.PathValue("name"), "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to build figure")
		return
	}
	utils.WriteJSON(w, http.StatusOK, fig)
}

func (c *dashboardControllerImpl) resolveDatabase(r *http.Request) (string, int, error) {
	q := r.URL.Query()
	if id := q.Get("dashboard"); id != "" {
		d, err := c.service.Dashboard(id)
		if err != nil {
			return "", http.StatusNotFound, err
		}
		name, err := d.DatabaseName()
		if err != nil {
			return "", http.StatusInternalServerError, err
		}
		return name, 0, nil
	}
	key := q.Get("database_env")
	if key == "" {
		return "", http.StatusBadRequest, errors.New("one of 'dashboard' or 'database_env' is required")
	}
	name, err := c.service.DatabaseForEnv(key)
	if errors.Is(err, service.ErrUnknownDatabase) {
		return "", http.StatusBadRequest, err
	}
	if err != nil {
		return "", http.StatusInternalServerError, err
	}
	return name, 0, nil
}
