package controller

import (
	"net/http"
	"time"

	"swapit-dashboard/internal/modules/dashboard/service"
)

type DashboardController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type dashboardControllerImpl struct {
	service *service.Service
	now     func() time.Time
}

func NewDashboardController(svc *service.Service) DashboardController {
	return &dashboardControllerImpl{service: svc, now: time.Now}
}

func (c *dashboardControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", c.handleIndex)
	mux.HandleFunc("GET /dashboards/{id}", c.handleDashboard)
	mux.HandleFunc("GET /dashboards/{id}/plots", c.handlePlotsPartial)

	mux.HandleFunc("GET /api/v1/dashboards", c.handleDashboards)
	mux.HandleFunc("GET /api/v1/dashboards/{id}/first-entry", c.handleFirstEntry)
	mux.HandleFunc("GET /api/v1/queries", c.handleQueries)
	mux.HandleFunc("GET /api/v1/queries/{name}/figure", c.handleFigure)
}
