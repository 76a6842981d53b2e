package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"pclub/main_backend/metrics"
	"pclub/main_backend/ratelimit"
)

// newRouter wires the API, the admin gate and the static site. CORS wraps
// the router so preflight requests never reach method matching.
func newRouter(a *api, limiter ratelimit.Limiter, origins []string, staticDir string) http.Handler {
	r := mux.NewRouter()
	r.Use(requestLogger(a.log), a.resolveCaller)

	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	clientKey := a.clientKey
	if clientKey == nil {
		clientKey = ratelimit.ClientIP
	}

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Handle("/applications",
		ratelimit.Middleware(limiter, clientKey)(http.HandlerFunc(a.handleSubmit)),
	).Methods(http.MethodPost)
	apiRouter.HandleFunc("/auth/login", a.handleLogin).Methods(http.MethodPost)
	apiRouter.HandleFunc("/auth/logout", a.handleLogout).Methods(http.MethodPost)

	authed := apiRouter.NewRoute().Subrouter()
	authed.Use(requireCaller)
	authed.HandleFunc("/auth/password", a.handlePassword).Methods(http.MethodPost)
	authed.HandleFunc("/me", a.handleMe).Methods(http.MethodGet)
	authed.HandleFunc("/admin/applications", a.handleList).Methods(http.MethodGet)
	authed.HandleFunc("/admin/applications/export", a.handleExport).Methods(http.MethodGet)
	authed.HandleFunc("/admin/applications/{id}/status", a.handleSetStatus).Methods(http.MethodPatch)
	authed.HandleFunc("/admin/applications/{id}/notes", a.handleSetNotes).Methods(http.MethodPatch)

	if staticDir != "" {
		r.PathPrefix("/").Handler(a.adminGate(http.FileServer(http.Dir(staticDir))))
	}

	return cors(origins)(metrics.InstrumentHandler(r))
}
