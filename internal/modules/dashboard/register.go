package dashboard

import (
	"net/http"

	"swapit-dashboard/internal/modules/dashboard/controller"
	"swapit-dashboard/internal/modules/dashboard/service"
)

func RegisterFeature(mux *http.ServeMux, svc *service.Service) {
	dashboardController := controller.NewDashboardController(svc)
	dashboardController.RegisterRoutes(mux)
}
