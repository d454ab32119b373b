// Package api is the read-only status server.
package api

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nadmax/reportd/internal/dashboard"
	"github.com/nadmax/reportd/internal/httputil"
	"github.com/nadmax/reportd/internal/middleware"
)

type API struct {
	status  dashboard.StatusSource
	runs    dashboard.RunSource
	mux     *http.ServeMux
	handler http.Handler
}

func NewAPI(status dashboard.StatusSource, runs dashboard.RunSource) *API {
	api := &API{
		status: status,
		runs:   runs,
		mux:    http.NewServeMux(),
	}

	api.setupRoutes()
	api.handler = middleware.MetricsMiddleware(api.mux)
	return api
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("/api/reports", a.handleReports)
	a.mux.HandleFunc("/api/reports/", a.handleReportByID)

	dash := dashboard.NewDashboard(a.status, a.runs)
	a.mux.HandleFunc("/api/dashboard/stats", dash.GetStats)
	a.mux.HandleFunc("/api/dashboard/history", dash.GetRecentRuns)

	a.mux.Handle("/metrics", promhttp.Handler())
	a.mux.HandleFunc("/healthz", a.handleHealth)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

func (a *API) handleReports(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a.status.Status())
}

func (a *API) handleReportByID(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/reports/")
	if id == "" {
		httputil.WriteJSONError(w, "Report ID is required", http.StatusBadRequest)
		return
	}

	for _, rep := range a.status.Status().Reports {
		if rep.ID == id {
			httputil.WriteJSON(w, http.StatusOK, rep)
			return
		}
	}
	httputil.WriteJSONError(w, "Report not found", http.StatusNotFound)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) {
		return
	}
	st := a.status.Status()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"started_at": st.StartedAt,
		"reports":    len(st.Reports),
	})
}
