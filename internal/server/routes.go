package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Runs
	mux.HandleFunc("POST /api/runs", s.app.APIHandler.SubmitRunHandler)
	mux.HandleFunc("GET /api/runs", s.app.APIHandler.ListRunsHandler)
	mux.HandleFunc("GET /api/runs/{id}", s.app.APIHandler.GetRunHandler)

	// API routes - System
	mux.HandleFunc("GET /api/status", s.app.APIHandler.StatusHandler)
	mux.HandleFunc("GET /api/version", s.app.APIHandler.VersionHandler)

	return mux
}
