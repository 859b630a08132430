package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"swapit-dashboard/internal/utils"
)

// Pinger checks that every backing database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	dbs Pinger
}

func NewHealthchecker(dbs Pinger) healthchecker {
	return &healthcheckerImpl{dbs: dbs}
}

func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := h.dbs.Ping(ctx); err != nil {
		slog.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusServiceUnavailable, "failed to check database connectivity")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func registerHealthcheck(mux *http.ServeMux, dbs Pinger) {
	healthchecker := NewHealthchecker(dbs)
	mux.HandleFunc("GET /healthz", healthchecker.handleHealthz)
}
