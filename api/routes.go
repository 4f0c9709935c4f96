package api

import (
	"net/http"

	"releasewatch/handlers"

	"github.com/gorilla/mux"
)

// corsMiddleware lets calendar clients and local pages read the API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleOptions handles OPTIONS requests for CORS preflight
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Register mounts the preview endpoints onto the provided router.
func Register(r *mux.Router, siteHandler *handlers.SiteHandler) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	api.HandleFunc("/users", siteHandler.ListUsers).Methods(http.MethodGet)
	api.HandleFunc("/users", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/users/{user}/releases", siteHandler.Releases).Methods(http.MethodGet)
	api.HandleFunc("/users/{user}/releases", handleOptions).Methods(http.MethodOptions)

	r.Handle("/{user}/releases.ics", corsMiddleware(http.HandlerFunc(siteHandler.Calendar))).Methods(http.MethodGet, http.MethodHead)
	r.PathPrefix("/").Handler(siteHandler.Static()).Methods(http.MethodGet, http.MethodHead)
}

// NewRouter builds the preview server's router.
func NewRouter(siteHandler *handlers.SiteHandler) *mux.Router {
	r := mux.NewRouter()
	Register(r, siteHandler)
	return r
}
