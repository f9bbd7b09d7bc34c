package api

import (
	"net/http"

	"codesync/internal/auth"
	"codesync/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler, tokens *auth.TokenIssuer) *mux.Router {
	r := mux.NewRouter()

	// Global middleware: tracing first, then recovery, then CORS.
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	// Public endpoints
	api.HandleFunc("/signup", h.Signup).Methods("POST")
	api.HandleFunc("/login", h.Login).Methods("POST")
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Everything else requires a verified identity.
	authed := api.NewRoute().Subrouter()
	authed.Use(middleware.AuthMiddleware(tokens))

	authed.HandleFunc("/me", h.Me).Methods("GET")

	authed.HandleFunc("/docs", h.ListDocuments).Methods("GET")
	authed.HandleFunc("/docs", h.CreateDocument).Methods("POST")
	authed.HandleFunc("/docs/{id}", h.RenameDocument).Methods("PATCH")
	authed.HandleFunc("/docs/{id}", h.DeleteDocument).Methods("DELETE")

	authed.HandleFunc("/share/grant", h.GrantShare).Methods("POST")
	authed.HandleFunc("/share/set-permission", h.GrantShare).Methods("POST")
	authed.HandleFunc("/share/revoke", h.RevokeShare).Methods("POST")
	authed.HandleFunc("/share/list", h.ListShares).Methods("GET")
	authed.HandleFunc("/share/create-link", h.CreateShareLink).Methods("POST")
	authed.HandleFunc("/share/accept", h.AcceptShareLink).Methods("POST")

	// WebSocket sync endpoint (token via query param or header).
	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(middleware.AuthMiddleware(tokens))
	ws.HandleFunc("", h.HandleSync)

	return r
}
